package download

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/zerocas99/zenload/internal/activity"
	"github.com/zerocas99/zenload/internal/alerts"
	"github.com/zerocas99/zenload/internal/config"
	"github.com/zerocas99/zenload/internal/deliver"
	"github.com/zerocas99/zenload/internal/media"
	"github.com/zerocas99/zenload/internal/platform"
	"github.com/zerocas99/zenload/internal/provider"
	"github.com/zerocas99/zenload/internal/util"
)

// Worker executes one scheduled task end to end: resolve, download, deliver,
// clean up. It owns every temp file it creates and removes them before
// returning, success or failure.
type Worker struct {
	Dispatcher *platform.Dispatcher
	Deliverer  deliver.Deliverer
	Activity   *activity.Log
}

// Run drives the task. Returns the error the task ended with, nil on
// successful delivery.
func (w *Worker) Run(ctx context.Context, task *Task) (err error) {
	jobID := util.ShortID(task.Request.CorrelationID)
	started := time.Now()

	var artifact *media.Downloaded
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[%s] PANIC: %v", jobID, r)
			alerts.WorkerPanic(jobID, r)
			err = fmt.Errorf("internal error")
		}
		// Cleanup runs on every exit path and tolerates repeats.
		if artifact != nil {
			util.RemoveFile(artifact.LocalPath)
			util.RemoveFile(artifact.ThumbPath)
		}
		w.finish(task, jobID, started, artifact, err)
	}()

	task.Progress.Publish(media.ProgressEvent{Stage: media.StageGettingInfo})

	strategy := task.Strategy
	if strategy == nil && task.Request.PlatformHint != "" {
		strategy = w.Dispatcher.StrategyByName(task.Request.PlatformHint)
	}
	if strategy == nil {
		strategy = w.Dispatcher.SelectStrategy(task.Request.URL)
	}
	if strategy == nil {
		return provider.Failf(provider.FailUnsupported, "no strategy for url")
	}

	targetURL := strategy.NormalizeURL(ctx, task.Request.URL)
	log.Printf("[%s] %s: %s", jobID, strategy.Name(), targetURL)

	if w.Activity != nil {
		w.Activity.RecordAttempt(activity.Attempt{
			UserID:   task.Request.UserID,
			URL:      targetURL,
			Platform: strategy.Name(),
		})
	}

	opts := provider.Options{FormatID: task.Request.FormatID}
	if q := task.Request.Quality; q.Mode == "height" && q.Height > 0 {
		opts.Quality = strconv.Itoa(q.Height)
	}

	// Zero-copy shortcut: hand the remote URL straight to the transport.
	// Any failure here silently falls back to the full download path.
	if task.Request.FormatID == "" {
		if done, shortcutErr := w.tryDirect(ctx, task, jobID, strategy, targetURL, opts); done {
			return shortcutErr
		}
	}

	// Rewind, not Publish: a failed direct-delivery attempt already showed
	// the sending stage, and the display has to come back to downloading.
	task.Progress.Rewind(media.ProgressEvent{Stage: media.StageDownloading})
	lastLogged := -25.0
	dl, err := strategy.Download(ctx, targetURL, opts, func(percent float64) {
		task.Progress.Percent(media.StageDownloading, percent)
		if percent-lastLogged >= 25 {
			lastLogged = percent
			log.Printf("[%s] downloading: %.0f%%", jobID, percent)
		}
	})
	if err != nil {
		var apf *provider.AllProvidersFailed
		if errors.As(err, &apf) {
			alerts.AllProvidersFailed(jobID, strategy.Name(), targetURL, err)
		} else if ctx.Err() == nil {
			alerts.DownloadFailed(jobID, strategy.Name(), targetURL, err)
		}
		return err
	}
	artifact = dl
	log.Printf("[%s] downloaded %s (%s)", jobID, dl.LocalPath, humanize.Bytes(uint64(dl.SizeBytes)))

	w.fetchThumbnail(ctx, dl)

	task.Progress.Publish(media.ProgressEvent{Stage: media.StageSending})
	sendCtx, cancel := context.WithTimeout(ctx, config.DeliveryTimeout)
	defer cancel()
	if err := w.Deliverer.DeliverFile(sendCtx, task.Request.ChatID, dl); err != nil {
		alerts.DeliveryFailed(jobID, err)
		return fmt.Errorf("delivery failed: %w", err)
	}
	return nil
}

// tryDirect attempts the direct-link path. Reports done=true only when the
// media was actually delivered; otherwise the caller falls back to the
// artifact path.
func (w *Worker) tryDirect(ctx context.Context, task *Task, jobID string, strategy platform.Strategy, targetURL string, opts provider.Options) (bool, error) {
	res, err := strategy.FetchDirectLink(ctx, targetURL, opts)
	if err != nil || res == nil {
		return false, nil
	}

	sendCtx, cancel := context.WithTimeout(ctx, config.DeliveryTimeout)
	defer cancel()
	task.Progress.Publish(media.ProgressEvent{Stage: media.StageSending})

	if len(res.PickerItems) > 0 {
		if err := w.Deliverer.DeliverAlbum(sendCtx, task.Request.ChatID, res.PickerItems, res.Caption()); err != nil {
			log.Printf("[%s] album delivery failed, falling back: %v", jobID, err)
			return false, nil
		}
		log.Printf("[%s] delivered album of %d items", jobID, len(res.PickerItems))
		return true, nil
	}

	if res.MediaURL == "" {
		return false, nil
	}
	kind := res.Kind
	if kind == "" {
		kind = media.KindForPath(res.MediaURL)
	}
	link := &media.DirectLink{URL: res.MediaURL, Kind: kind, Caption: res.Caption()}
	if err := w.Deliverer.DeliverDirect(sendCtx, task.Request.ChatID, link); err != nil {
		log.Printf("[%s] direct delivery failed, falling back: %v", jobID, err)
		return false, nil
	}
	log.Printf("[%s] delivered direct link", jobID)
	return true, nil
}

// fetchThumbnail materializes the artwork for audio artifacts so the
// transport can attach it. Best effort.
func (w *Worker) fetchThumbnail(ctx context.Context, dl *media.Downloaded) {
	if dl.Kind != media.KindAudio || dl.ThumbnailURL == "" || dl.ThumbPath != "" {
		return
	}
	ext := "jpg"
	if strings.Contains(dl.ThumbnailURL, ".webp") {
		ext = "webp"
	}
	path := util.ThumbFilePath(ext)
	thumbCtx, cancel := context.WithTimeout(ctx, config.ShortLinkTimeout)
	defer cancel()
	if _, err := provider.FetchToFile(thumbCtx, dl.ThumbnailURL, path, nil); err != nil {
		util.RemoveFile(path)
		return
	}
	if ext == "webp" {
		// Telegram won't take webp thumbs.
		converted := util.ThumbFilePath("jpg")
		cmd := exec.CommandContext(ctx, "ffmpeg", "-y", "-i", path, converted)
		if err := cmd.Run(); err != nil {
			util.RemoveFile(converted)
			util.RemoveFile(path)
			return
		}
		util.RemoveFile(path)
		path = converted
	}
	dl.ThumbPath = path
}

// finish publishes the terminal progress event and records the outcome.
func (w *Worker) finish(task *Task, jobID string, started time.Time, artifact *media.Downloaded, err error) {
	if err == nil {
		task.Progress.Publish(media.ProgressEvent{Stage: media.StageDone})
		log.Printf("[%s] done in %s", jobID, time.Since(started).Round(time.Millisecond))
	} else {
		task.Progress.Publish(media.ProgressEvent{
			Stage:   media.StageError,
			Message: util.ToUserError(err.Error()),
		})
		log.Printf("[%s] failed after %s: %v", jobID, time.Since(started).Round(time.Millisecond), err)
	}

	if w.Activity == nil {
		return
	}
	outcome := activity.Outcome{
		UserID:   task.Request.UserID,
		URL:      task.Request.URL,
		Success:  err == nil,
		Duration: time.Since(started),
	}
	if artifact != nil {
		outcome.FileType = string(artifact.Kind)
		outcome.FileSize = artifact.SizeBytes
	}
	if err != nil {
		outcome.Error = err.Error()
	}
	w.Activity.RecordOutcome(outcome)
}
