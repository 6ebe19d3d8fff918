package bot

import (
	"context"
	"log"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/zerocas99/zenload/internal/activity"
	"github.com/zerocas99/zenload/internal/config"
	"github.com/zerocas99/zenload/internal/deliver"
	"github.com/zerocas99/zenload/internal/download"
	"github.com/zerocas99/zenload/internal/media"
	"github.com/zerocas99/zenload/internal/platform"
	"github.com/zerocas99/zenload/internal/util"
)

// Bot is the Telegram front end: it turns inbound messages containing media
// links into scheduled downloads and keeps a status message updated while
// each one runs.
type Bot struct {
	api        *tgbotapi.BotAPI
	deliverer  deliver.Deliverer
	scheduler  *download.Scheduler
	dispatcher *platform.Dispatcher
	activity   *activity.Log

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(api *tgbotapi.BotAPI, deliverer deliver.Deliverer, sched *download.Scheduler, disp *platform.Dispatcher, act *activity.Log) *Bot {
	ctx, cancel := context.WithCancel(context.Background())
	return &Bot{
		api:        api,
		deliverer:  deliverer,
		scheduler:  sched,
		dispatcher: disp,
		activity:   act,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start consumes the long-poll update stream until Stop is called.
func (b *Bot) Start() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.api.GetUpdatesChan(u)

	log.Printf("[Bot] Logged in as @%s", b.api.Self.UserName)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			select {
			case <-b.ctx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message == nil || update.Message.Text == "" {
					continue
				}
				b.handleMessage(update.Message)
			}
		}
	}()
}

// Stop halts the update stream and waits for handlers to settle. In-flight
// downloads keep running; the scheduler owns their lifecycle.
func (b *Bot) Stop() {
	b.api.StopReceivingUpdates()
	b.cancel()
	b.wg.Wait()
}

func (b *Bot) handleMessage(msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	if msg.IsCommand() {
		b.handleCommand(msg)
		return
	}

	rawURL := firstURL(msg.Text)
	if rawURL == "" {
		return
	}

	validation := util.ValidateURL(rawURL)
	if !validation.Valid {
		b.deliverer.SendError(b.ctx, msg.Chat.ID, validation.Error)
		return
	}

	strategy := b.dispatcher.SelectStrategy(rawURL)
	if strategy == nil {
		b.deliverer.SendError(b.ctx, msg.Chat.ID, "This link isn't from a supported platform.")
		return
	}

	quality := b.activity.DefaultQuality(msg.From.ID, msg.Chat.ID)
	if quality.Mode == "ask" {
		// Without selection keyboards the safe answer to "ask" is best.
		quality = media.QualityBest
	}

	task, err := b.scheduler.Submit(media.Request{
		URL:     rawURL,
		Quality: quality,
		UserID:  msg.From.ID,
		ChatID:  msg.Chat.ID,
	}, strategy)
	if err != nil {
		b.deliverer.SendError(b.ctx, msg.Chat.ID, util.ToUserError(err.Error()))
		return
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.trackStatus(task, msg.Chat.ID)
	}()
}

// trackStatus mirrors the task's progress stream into one chat message,
// deleting it once the media has been sent.
func (b *Bot) trackStatus(task *download.Task, chatID int64) {
	ref, err := b.deliverer.SendStatus(b.ctx, chatID, deliver.StatusText(media.ProgressEvent{Stage: media.StageGettingInfo}))
	if err != nil {
		log.Printf("[Bot] Status message failed: %v", err)
	}

	task.Progress.Consume(b.ctx, func(ev media.ProgressEvent) {
		switch ev.Stage {
		case media.StageDone:
			b.deliverer.DeleteStatus(b.ctx, ref)
		case media.StageError:
			b.deliverer.EditStatus(b.ctx, ref, deliver.StatusText(ev))
		default:
			b.deliverer.EditStatus(b.ctx, ref, deliver.StatusText(ev))
		}
	})
}

func (b *Bot) handleCommand(msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start", "help":
		b.deliverer.SendError(b.ctx, msg.Chat.ID,
			"Send me a link from TikTok, YouTube, Instagram, Pinterest, SoundCloud and more, and I'll fetch the media for you.\n\n"+
				"/quality best|720p|1080p — set your preferred quality")
	case "quality":
		b.handleQuality(msg)
	}
}

func (b *Bot) handleQuality(msg *tgbotapi.Message) {
	arg := strings.TrimSpace(msg.CommandArguments())
	var q media.Quality
	switch {
	case arg == "best":
		q = media.QualityBest
	case arg == "ask":
		q = media.QualityAsk
	default:
		h, ok := config.QualityHeight[arg]
		if !ok {
			b.deliverer.SendError(b.ctx, msg.Chat.ID, "Usage: /quality best|480p|720p|1080p|1440p|2160p")
			return
		}
		q = media.QualityHeightOf(h)
	}
	if err := b.activity.SetQuality("user", msg.From.ID, q); err != nil {
		log.Printf("[Bot] Quality save failed: %v", err)
		b.deliverer.SendError(b.ctx, msg.Chat.ID, "Couldn't save that preference, try again later.")
		return
	}
	b.deliverer.SendError(b.ctx, msg.Chat.ID, "Quality preference saved: "+arg)
}

// firstURL pulls the first http(s) URL out of a message.
func firstURL(text string) string {
	for _, field := range strings.Fields(text) {
		if strings.HasPrefix(field, "http://") || strings.HasPrefix(field, "https://") {
			return field
		}
	}
	return ""
}
