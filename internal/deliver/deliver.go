package deliver

import (
	"context"
	"strconv"

	"github.com/zerocas99/zenload/internal/media"
)

// StatusRef identifies a progress message the deliverer can keep editing.
// Zero value means no status message exists yet.
type StatusRef struct {
	ChatID    int64
	MessageID int64
}

// Deliverer sends finished media and progress updates to wherever the
// request came from. Implementations are safe for concurrent use.
type Deliverer interface {
	// DeliverFile uploads a local artifact. The file still belongs to the
	// caller; implementations never delete it.
	DeliverFile(ctx context.Context, chatID int64, dl *media.Downloaded) error
	// DeliverDirect sends a remote media URL without a local copy.
	DeliverDirect(ctx context.Context, chatID int64, link *media.DirectLink) error
	// DeliverAlbum sends a photo gallery in one message where the transport
	// supports it.
	DeliverAlbum(ctx context.Context, chatID int64, urls []string, caption string) error

	SendStatus(ctx context.Context, chatID int64, text string) (StatusRef, error)
	EditStatus(ctx context.Context, ref StatusRef, text string) error
	DeleteStatus(ctx context.Context, ref StatusRef) error
	SendError(ctx context.Context, chatID int64, text string) error
}

// StatusText renders one progress event as a short status line.
func StatusText(ev media.ProgressEvent) string {
	switch ev.Stage {
	case media.StageGettingInfo:
		return "⌛ Getting info..."
	case media.StageDownloading:
		if ev.Percent > 0 {
			return "📥 Downloading... " + strconv.Itoa(ev.Percent) + "%"
		}
		return "📥 Downloading..."
	case media.StageSending:
		return "📤 Sending..."
	case media.StageError:
		if ev.Message != "" {
			return "❌ " + ev.Message
		}
		return "❌ Download failed."
	default:
		return "✅ Done."
	}
}
