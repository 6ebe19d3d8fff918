package media

import (
	"path/filepath"
	"strings"
)

// Kind classifies a delivered artifact.
type Kind string

const (
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
	KindPhoto Kind = "photo"
)

// Quality is a user's format choice for a request.
type Quality struct {
	Mode   string // "ask", "best", "height"
	Height int    // set when Mode == "height"
}

var (
	QualityAsk  = Quality{Mode: "ask"}
	QualityBest = Quality{Mode: "best"}
)

func QualityHeightOf(h int) Quality {
	return Quality{Mode: "height", Height: h}
}

// Request is one inbound download request. Immutable after creation,
// consumed by exactly one worker.
type Request struct {
	URL           string
	PlatformHint  string
	Quality       Quality
	FormatID      string
	UserID        int64
	ChatID        int64
	CorrelationID string
}

// Downloaded is a materialized local artifact. Owned exclusively by the
// worker that produced it; that worker deletes it during cleanup.
type Downloaded struct {
	LocalPath    string
	SizeBytes    int64
	Kind         Kind
	Caption      string
	ThumbnailURL string
	ThumbPath    string
}

// DirectLink is a remote URL deliverable without a local copy.
type DirectLink struct {
	URL     string
	Kind    Kind
	Caption string
}

// FormatDescriptor is one selectable download format.
type FormatDescriptor struct {
	ID      string
	Quality string
	Ext     string
}

// BestFormat is the synthetic descriptor used when format listing fails.
var BestFormat = FormatDescriptor{ID: "best", Quality: "Best", Ext: "mp4"}

// Stage identifies a progress phase. Stages are strictly ordered per
// request: info -> download -> send, then one terminal stage.
type Stage string

const (
	StageGettingInfo Stage = "getting-info"
	StageDownloading Stage = "downloading"
	StageSending     Stage = "sending"
	StageDone        Stage = "done"
	StageError       Stage = "error"
)

// Terminal reports whether the stage ends the progress stream.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageError
}

// ProgressEvent is one ephemeral status update. Percent is scoped to the
// stage and monotonically non-decreasing within it.
type ProgressEvent struct {
	Stage   Stage
	Percent int
	Message string
}

var audioExts = map[string]bool{
	"mp3": true, "m4a": true, "opus": true, "wav": true, "flac": true, "ogg": true, "aac": true,
}

var photoExts = map[string]bool{
	"jpg": true, "jpeg": true, "png": true, "webp": true, "gif": true, "heic": true,
}

// KindForPath infers the artifact kind from a filename or URL path.
func KindForPath(path string) Kind {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(strippedQuery(path)), "."))
	switch {
	case audioExts[ext]:
		return KindAudio
	case photoExts[ext]:
		return KindPhoto
	default:
		return KindVideo
	}
}

func strippedQuery(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		return path[:i]
	}
	return path
}
