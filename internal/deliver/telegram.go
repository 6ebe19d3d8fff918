package deliver

import (
	"context"
	"fmt"
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/zerocas99/zenload/internal/media"
)

// Telegram delivers through the Bot API. Artifacts go up as video/audio/
// photo by kind, direct links are handed to Telegram by URL so its servers
// fetch the media themselves.
type Telegram struct {
	api *tgbotapi.BotAPI
}

func NewTelegram(api *tgbotapi.BotAPI) *Telegram {
	return &Telegram{api: api}
}

func (t *Telegram) DeliverFile(ctx context.Context, chatID int64, dl *media.Downloaded) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	file := tgbotapi.FilePath(dl.LocalPath)

	var msg tgbotapi.Chattable
	switch dl.Kind {
	case media.KindAudio:
		audio := tgbotapi.NewAudio(chatID, file)
		audio.Caption = dl.Caption
		if dl.ThumbPath != "" {
			audio.Thumb = tgbotapi.FilePath(dl.ThumbPath)
		}
		msg = audio
	case media.KindPhoto:
		photo := tgbotapi.NewPhoto(chatID, file)
		photo.Caption = dl.Caption
		msg = photo
	default:
		video := tgbotapi.NewVideo(chatID, file)
		video.Caption = dl.Caption
		video.SupportsStreaming = true
		if dl.ThumbPath != "" {
			video.Thumb = tgbotapi.FilePath(dl.ThumbPath)
		}
		msg = video
	}

	if _, err := t.api.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

func (t *Telegram) DeliverDirect(ctx context.Context, chatID int64, link *media.DirectLink) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	file := tgbotapi.FileURL(link.URL)

	var msg tgbotapi.Chattable
	switch link.Kind {
	case media.KindAudio:
		audio := tgbotapi.NewAudio(chatID, file)
		audio.Caption = link.Caption
		msg = audio
	case media.KindPhoto:
		photo := tgbotapi.NewPhoto(chatID, file)
		photo.Caption = link.Caption
		msg = photo
	default:
		video := tgbotapi.NewVideo(chatID, file)
		video.Caption = link.Caption
		video.SupportsStreaming = true
		msg = video
	}

	if _, err := t.api.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

func (t *Telegram) DeliverAlbum(ctx context.Context, chatID int64, urls []string, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	// Telegram caps media groups at 10 items per message.
	for start := 0; start < len(urls); start += 10 {
		end := start + 10
		if end > len(urls) {
			end = len(urls)
		}
		items := make([]interface{}, 0, end-start)
		for i, u := range urls[start:end] {
			photo := tgbotapi.NewInputMediaPhoto(tgbotapi.FileURL(u))
			if start == 0 && i == 0 {
				photo.Caption = caption
			}
			items = append(items, photo)
		}
		group := tgbotapi.NewMediaGroup(chatID, items)
		if _, err := t.api.SendMediaGroup(group); err != nil {
			return fmt.Errorf("telegram album: %w", err)
		}
	}
	return nil
}

func (t *Telegram) SendStatus(ctx context.Context, chatID int64, text string) (StatusRef, error) {
	if err := ctx.Err(); err != nil {
		return StatusRef{}, err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	sent, err := t.api.Send(msg)
	if err != nil {
		return StatusRef{}, err
	}
	return StatusRef{ChatID: chatID, MessageID: int64(sent.MessageID)}, nil
}

func (t *Telegram) EditStatus(ctx context.Context, ref StatusRef, text string) error {
	if ref.MessageID == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	edit := tgbotapi.NewEditMessageText(ref.ChatID, int(ref.MessageID), text)
	if _, err := t.api.Send(edit); err != nil {
		// "message is not modified" comes back as an error; not worth surfacing.
		log.Printf("[Telegram] Status edit failed: %v", err)
	}
	return nil
}

func (t *Telegram) DeleteStatus(ctx context.Context, ref StatusRef) error {
	if ref.MessageID == 0 {
		return nil
	}
	del := tgbotapi.NewDeleteMessage(ref.ChatID, int(ref.MessageID))
	if _, err := t.api.Request(del); err != nil {
		log.Printf("[Telegram] Status delete failed: %v", err)
	}
	return nil
}

func (t *Telegram) SendError(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := t.api.Send(tgbotapi.NewMessage(chatID, text))
	return err
}
