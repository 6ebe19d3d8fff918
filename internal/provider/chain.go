package provider

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/zerocas99/zenload/internal/config"
	"github.com/zerocas99/zenload/internal/media"
	"github.com/zerocas99/zenload/internal/util"
)

// AllProvidersFailed aggregates the last error per exhausted provider.
type AllProvidersFailed struct {
	Errors map[string]string
}

func (e *AllProvidersFailed) Error() string {
	if len(e.Errors) == 0 {
		return "all providers failed"
	}
	names := make([]string, 0, len(e.Errors))
	for name := range e.Errors {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", name, e.Errors[name]))
	}
	return "all providers failed (" + strings.Join(parts, "; ") + ")"
}

// Chain runs an ordered provider list until one yields a validated artifact.
type Chain struct {
	Providers []Provider
	Policy    RetryPolicy
}

func NewChain(policy RetryPolicy, providers ...Provider) *Chain {
	if policy.MaxAttempts <= 0 {
		policy = DefaultPolicy
	}
	return &Chain{Providers: providers, Policy: policy}
}

// Download executes the fallback chain. Each provider is invoked at most
// once; transient failures and invalid artifacts move to the next provider,
// auth/not-found classifications stop the chain immediately.
func (c *Chain) Download(ctx context.Context, url string, opts Options, onProgress func(percent float64)) (*media.Downloaded, error) {
	lastErrors := make(map[string]string)
	attempts := 0

	for i, p := range c.Providers {
		if attempts >= c.Policy.MaxAttempts {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if i > 0 && c.Policy.Backoff > 0 {
			select {
			case <-time.After(c.Policy.Backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		attempts++

		dl, err := c.tryProvider(ctx, p, url, opts, onProgress)
		if err == nil {
			return dl, nil
		}

		var failure *Failure
		if errors.As(err, &failure) && failure.Terminal() {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		log.Printf("[Chain] [%s] %s failed: %s", opts.Platform, p.Name(), err)
		lastErrors[p.Name()] = err.Error()
	}

	return nil, &AllProvidersFailed{Errors: lastErrors}
}

func (c *Chain) tryProvider(ctx context.Context, p Provider, url string, opts Options, onProgress func(percent float64)) (*media.Downloaded, error) {
	attemptCtx := ctx
	if c.Policy.PerAttemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, c.Policy.PerAttemptTimeout)
		defer cancel()
	}

	var dl *media.Downloaded
	var err error
	if fetcher, ok := p.(FileFetcher); ok {
		dl, err = fetcher.Fetch(attemptCtx, url, opts, onProgress)
	} else {
		dl, err = c.resolveAndFetch(attemptCtx, p, url, opts, onProgress)
	}
	if err != nil {
		return nil, err
	}

	if err := ValidateArtifact(dl.LocalPath, dl.Kind); err != nil {
		util.RemoveFile(dl.LocalPath)
		return nil, err
	}
	if info, statErr := os.Stat(dl.LocalPath); statErr == nil {
		dl.SizeBytes = info.Size()
	}
	return dl, nil
}

func (c *Chain) resolveAndFetch(ctx context.Context, p Provider, url string, opts Options, onProgress func(percent float64)) (*media.Downloaded, error) {
	res, err := p.Resolve(ctx, url, opts)
	if err != nil {
		return nil, err
	}

	target := res.MediaURL
	if target == "" && len(res.PickerItems) > 0 {
		// Single-item delivery takes the first picker entry; galleries are
		// surfaced through the strategy layer instead.
		target = res.PickerItems[0]
	}
	if target == "" {
		return nil, Failf(FailTransient, "%s returned no media url", p.Name())
	}

	kind := res.Kind
	if kind == "" {
		kind = media.KindForPath(firstNonEmpty(res.Filename, target))
	}
	ext := extFor(kind, res.Filename, opts)
	dest := util.TempFilePath(firstNonEmpty(opts.Platform, p.Name()), ext)

	if _, err := FetchToFile(ctx, target, dest, onProgress); err != nil {
		util.RemoveFile(dest)
		return nil, err
	}

	return &media.Downloaded{
		LocalPath:    dest,
		Kind:         kind,
		Caption:      res.Caption(),
		ThumbnailURL: res.Thumbnail,
	}, nil
}

// ValidateArtifact rejects files a provider silently failed to produce:
// error pages dressed up as media, truncated or oversized output, or a
// container that cannot hold the expected kind.
func ValidateArtifact(path string, kind media.Kind) error {
	info, err := os.Stat(path)
	if err != nil {
		return Failf(FailTransient, "validation failed: %v", err)
	}
	if info.Size() < config.MinArtifactLen {
		return Failf(FailTransient, "validation failed: artifact too small (%d bytes)", info.Size())
	}
	if info.Size() > config.FileSizeLimit {
		return Failf(FailTransient, "validation failed: artifact too large (%d bytes)", info.Size())
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	switch kind {
	case media.KindVideo:
		if _, ok := config.ContainerMIMEs[ext]; !ok {
			return Failf(FailTransient, "validation failed: unexpected video container .%s", ext)
		}
	case media.KindAudio:
		if _, ok := config.AudioMIMEs[ext]; !ok {
			return Failf(FailTransient, "validation failed: unexpected audio container .%s", ext)
		}
	}
	return nil
}

func extFor(kind media.Kind, filename string, opts Options) string {
	if filename != "" {
		if i := strings.LastIndexByte(filename, '.'); i >= 0 && i < len(filename)-1 {
			return filename[i+1:]
		}
	}
	switch {
	case opts.AudioOnly || kind == media.KindAudio:
		return "mp3"
	case kind == media.KindPhoto:
		return "jpg"
	default:
		return "mp4"
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
