package provider

import (
	"context"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	ytdl "github.com/kkdai/youtube/v2"

	"github.com/zerocas99/zenload/internal/media"
	"github.com/zerocas99/zenload/internal/util"
)

// YouTube is the native innertube client. No subprocess, answers fast, and
// its stream URLs work for zero-copy delivery while they last.
type YouTube struct {
	client ytdl.Client
}

func NewYouTube() *YouTube {
	return &YouTube{client: ytdl.Client{}}
}

func (y *YouTube) Name() string { return "youtube-native" }

func (y *YouTube) video(ctx context.Context, url string) (*ytdl.Video, error) {
	video, err := y.client.GetVideoContext(ctx, url)
	if err != nil {
		return nil, Failf(ClassifyMessage(err.Error()), "%v", err)
	}
	return video, nil
}

func (y *YouTube) pickFormat(video *ytdl.Video, opts Options) *ytdl.Format {
	if opts.AudioOnly {
		var best *ytdl.Format
		for i := range video.Formats {
			f := &video.Formats[i]
			if !strings.HasPrefix(f.MimeType, "audio/") {
				continue
			}
			if best == nil || f.Bitrate > best.Bitrate {
				best = f
			}
		}
		return best
	}

	maxHeight := math.MaxInt
	if h, err := strconv.Atoi(opts.Quality); err == nil && h > 0 {
		maxHeight = h
	}

	// Progressive formats only: a single stream with both tracks, so no
	// merge step is needed.
	formats := video.Formats.WithAudioChannels()
	var best *ytdl.Format
	for i := range formats {
		f := &formats[i]
		if !strings.HasPrefix(f.MimeType, "video/") || f.Height > maxHeight {
			continue
		}
		if best == nil || f.Height > best.Height {
			best = f
		}
	}
	return best
}

func (y *YouTube) Resolve(ctx context.Context, url string, opts Options) (*Result, error) {
	video, err := y.video(ctx, url)
	if err != nil {
		return nil, err
	}

	format := y.pickFormat(video, opts)
	if format == nil {
		return nil, Failf(FailUnsupported, "no matching progressive format")
	}

	streamURL, err := y.client.GetStreamURLContext(ctx, video, format)
	if err != nil {
		return nil, Failf(FailTransient, "stream url: %v", err)
	}

	kind := media.KindVideo
	if opts.AudioOnly {
		kind = media.KindAudio
	}
	var thumb string
	if len(video.Thumbnails) > 0 {
		thumb = video.Thumbnails[len(video.Thumbnails)-1].URL
	}

	return &Result{
		MediaURL:  streamURL,
		IsDirect:  true,
		Title:     video.Title,
		Author:    video.Author,
		Thumbnail: thumb,
		Kind:      kind,
	}, nil
}

func (y *YouTube) DirectURL(ctx context.Context, url string, opts Options) (*Result, error) {
	return y.Resolve(ctx, url, opts)
}

// Fetch streams the chosen format to a local file. Used when the direct link
// was rejected by the delivery side (size caps, expired URL).
func (y *YouTube) Fetch(ctx context.Context, url string, opts Options, onProgress func(percent float64)) (*media.Downloaded, error) {
	video, err := y.video(ctx, url)
	if err != nil {
		return nil, err
	}

	format := y.pickFormat(video, opts)
	if format == nil {
		return nil, Failf(FailUnsupported, "no matching progressive format")
	}

	stream, size, err := y.client.GetStreamContext(ctx, video, format)
	if err != nil {
		return nil, Failf(FailTransient, "stream: %v", err)
	}
	defer stream.Close()

	ext := "mp4"
	kind := media.KindVideo
	if opts.AudioOnly {
		ext = "m4a"
		kind = media.KindAudio
	}
	dest := util.TempFilePath(firstNonEmpty(opts.Platform, "youtube"), ext)

	f, err := os.Create(dest)
	if err != nil {
		return nil, err
	}

	var written int64
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			f.Close()
			util.RemoveFile(dest)
			return nil, err
		}
		n, readErr := stream.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				f.Close()
				util.RemoveFile(dest)
				return nil, werr
			}
			written += int64(n)
			if onProgress != nil && size > 0 {
				onProgress(math.Min(100, float64(written)/float64(size)*100))
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			f.Close()
			util.RemoveFile(dest)
			return nil, Failf(FailTransient, "stream read: %v", readErr)
		}
	}
	if err := f.Close(); err != nil {
		util.RemoveFile(dest)
		return nil, err
	}

	var thumb string
	if len(video.Thumbnails) > 0 {
		thumb = video.Thumbnails[len(video.Thumbnails)-1].URL
	}

	return &media.Downloaded{
		LocalPath:    dest,
		SizeBytes:    written,
		Kind:         kind,
		Caption:      (&Result{Title: video.Title, Author: video.Author}).Caption(),
		ThumbnailURL: thumb,
	}, nil
}

// ListFormats enumerates distinct progressive heights.
func (y *YouTube) ListFormats(ctx context.Context, url string) ([]media.FormatDescriptor, error) {
	video, err := y.video(ctx, url)
	if err != nil {
		return nil, err
	}

	seen := make(map[int]bool)
	var formats []media.FormatDescriptor
	for _, f := range video.Formats.WithAudioChannels() {
		if f.Height == 0 || seen[f.Height] || !strings.HasPrefix(f.MimeType, "video/") {
			continue
		}
		seen[f.Height] = true
		formats = append(formats, media.FormatDescriptor{
			ID:      strconv.Itoa(f.ItagNo),
			Quality: strconv.Itoa(f.Height) + "p",
			Ext:     "mp4",
		})
	}
	return formats, nil
}
