package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/zerocas99/zenload/internal/media"
)

// FailReason classifies a provider failure for fallback decisions.
type FailReason string

const (
	FailAuthRequired FailReason = "auth_required"
	FailNotFound     FailReason = "not_found"
	FailRateLimited  FailReason = "rate_limited"
	FailTransient    FailReason = "transient"
	FailUnsupported  FailReason = "unsupported"
)

// Failure is a classified provider error. Auth and not-found stop the
// fallback chain; everything else moves it to the next provider.
type Failure struct {
	Reason  FailReason
	Message string
}

func (f *Failure) Error() string {
	if f.Message == "" {
		return string(f.Reason)
	}
	return fmt.Sprintf("%s: %s", f.Reason, f.Message)
}

// Terminal reports whether the failure ends the chain instead of
// falling through to the next provider.
func (f *Failure) Terminal() bool {
	return f.Reason == FailAuthRequired || f.Reason == FailNotFound
}

func Failf(reason FailReason, format string, args ...interface{}) *Failure {
	return &Failure{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// ClassifyMessage maps a raw backend error string onto a Failure reason.
func ClassifyMessage(msg string) FailReason {
	m := strings.ToLower(msg)
	switch {
	case strings.Contains(m, "login") || strings.Contains(m, "auth") || strings.Contains(m, "sign in") || strings.Contains(m, "cookies"):
		return FailAuthRequired
	case strings.Contains(m, "unavailable") || strings.Contains(m, "not found") || strings.Contains(m, "404") || strings.Contains(m, "private") || strings.Contains(m, "removed"):
		return FailNotFound
	case strings.Contains(m, "rate") && strings.Contains(m, "limit"), strings.Contains(m, "429"):
		return FailRateLimited
	case strings.Contains(m, "unsupported"):
		return FailUnsupported
	default:
		return FailTransient
	}
}

// Result is a resolved, not-yet-downloaded link or a picker set.
// Exactly one of MediaURL / PickerItems is set.
type Result struct {
	MediaURL    string
	PickerItems []string
	IsDirect    bool
	Filename    string
	Title       string
	Author      string
	Thumbnail   string
	Kind        media.Kind
}

func (r *Result) Caption() string {
	switch {
	case r.Title != "" && r.Author != "":
		return fmt.Sprintf("%s\nBy: %s", r.Title, r.Author)
	case r.Title != "":
		return r.Title
	case r.Author != "":
		return "By: " + r.Author
	default:
		return ""
	}
}

// Options carries per-request knobs down to a provider call.
type Options struct {
	AudioOnly bool
	Quality   string // max video height as a string ("1080"), or ""
	FormatID  string
	Platform  string // temp-file prefix and logging tag
}

// Provider is one external download backend.
type Provider interface {
	Name() string
	// Resolve returns a remote link (or picker set) without writing a file.
	Resolve(ctx context.Context, url string, opts Options) (*Result, error)
}

// FileFetcher is implemented by providers that materialize the artifact
// themselves (subprocess downloaders, tunneling APIs).
type FileFetcher interface {
	Provider
	Fetch(ctx context.Context, url string, opts Options, onProgress func(percent float64)) (*media.Downloaded, error)
}

// DirectLinker is implemented by providers whose resolved URLs are suitable
// for zero-copy delivery (stable, unauthenticated, correct content type).
type DirectLinker interface {
	Provider
	DirectURL(ctx context.Context, url string, opts Options) (*Result, error)
}

// RetryPolicy bounds chain execution. Each provider is invoked at most once
// per chain run; Backoff is slept between successive providers after a
// failure, and MaxAttempts caps the total providers tried.
type RetryPolicy struct {
	MaxAttempts       int
	PerAttemptTimeout time.Duration
	Backoff           time.Duration
}

var DefaultPolicy = RetryPolicy{
	MaxAttempts:       4,
	PerAttemptTimeout: 90 * time.Second,
	Backoff:           2 * time.Second,
}
