package platform

import (
	"context"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/zerocas99/zenload/internal/config"
	"github.com/zerocas99/zenload/internal/media"
	"github.com/zerocas99/zenload/internal/provider"
)

// Strategy encapsulates one platform family: URL recognition and
// normalization plus the ordered provider fallback chain behind it.
type Strategy interface {
	Name() string
	// CanHandle is a cheap domain predicate, never does I/O.
	CanHandle(rawURL string) bool
	// NormalizeURL canonicalizes the URL. Short-link resolution is the only
	// I/O, bounded, and failure falls back to the input.
	NormalizeURL(ctx context.Context, rawURL string) string
	// ListFormats is best-effort; total failure yields a synthetic "best".
	ListFormats(ctx context.Context, rawURL string) []media.FormatDescriptor
	// FetchDirectLink tries the zero-copy path within DirectLinkTimeout.
	FetchDirectLink(ctx context.Context, rawURL string, opts provider.Options) (*provider.Result, error)
	// Download runs the full fallback chain to a validated local artifact.
	Download(ctx context.Context, rawURL string, opts provider.Options, onProgress func(percent float64)) (*media.Downloaded, error)
}

// Dispatcher matches a URL to exactly one strategy. Registration order is
// significant: specific platforms first, the universal catch-all last.
type Dispatcher struct {
	strategies []Strategy
}

func NewDispatcher(strategies ...Strategy) *Dispatcher {
	return &Dispatcher{strategies: strategies}
}

// SelectStrategy returns the first registered strategy claiming the URL,
// or nil when none does.
func (d *Dispatcher) SelectStrategy(rawURL string) Strategy {
	for _, s := range d.strategies {
		if s.CanHandle(rawURL) {
			return s
		}
	}
	return nil
}

func (d *Dispatcher) Strategies() []Strategy {
	return d.strategies
}

// StrategyByName returns the registered strategy with that name, or nil.
// Used when a request carries an explicit platform hint.
func (d *Dispatcher) StrategyByName(name string) Strategy {
	for _, s := range d.strategies {
		if s.Name() == name {
			return s
		}
	}
	return nil
}

// Providers bundles the shared provider clients handed to each strategy.
// Clients are stateless or internally synchronized, safe to share.
type Providers struct {
	Cobalt  *provider.Cobalt
	TikWm   *provider.TikWm
	YouTube *provider.YouTube
	Ytdlp   *provider.Ytdlp
	Scrape  *provider.Scrape
}

func NewProviders() *Providers {
	return &Providers{
		Cobalt:  provider.NewCobalt(),
		TikWm:   provider.NewTikWm(),
		YouTube: provider.NewYouTube(),
		Ytdlp:   provider.NewYtdlp(),
		Scrape:  provider.NewScrape(),
	}
}

// DefaultDispatcher wires the full strategy registry in dispatch order.
func DefaultDispatcher(p *Providers) *Dispatcher {
	return NewDispatcher(
		NewTikTok(p),
		NewYouTube(p),
		NewInstagram(p),
		NewPinterest(p),
		NewSoundCloud(p),
		NewUniversal(p),
	)
}

func hostOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}

// hostMatches reports whether host equals domain or is a subdomain of it.
func hostMatches(host, domain string) bool {
	return host == domain || strings.HasSuffix(host, "."+domain)
}

func hostMatchesAny(rawURL string, domains ...string) bool {
	host := hostOf(rawURL)
	if host == "" {
		return false
	}
	for _, d := range domains {
		if hostMatches(host, d) {
			return true
		}
	}
	return false
}

// stripQuery drops the query string and fragment.
func stripQuery(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	parsed.RawQuery = ""
	parsed.Fragment = ""
	return parsed.String()
}

// keepParams drops every query parameter except the named ones.
func keepParams(rawURL string, keys ...string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := parsed.Query()
	kept := url.Values{}
	for _, k := range keys {
		if v := q.Get(k); v != "" {
			kept.Set(k, v)
		}
	}
	parsed.RawQuery = kept.Encode()
	parsed.Fragment = ""
	return parsed.String()
}

var shortLinkClient = &http.Client{
	CheckRedirect: func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	},
}

// resolveShortLink follows redirects manually up to a small hop limit.
// Any failure returns the input unchanged; normalization is never fatal.
func resolveShortLink(ctx context.Context, rawURL string) string {
	ctx, cancel := context.WithTimeout(ctx, config.ShortLinkTimeout)
	defer cancel()

	current := rawURL
	for hop := 0; hop < 5; hop++ {
		req, err := http.NewRequestWithContext(ctx, "HEAD", current, nil)
		if err != nil {
			return rawURL
		}
		resp, err := shortLinkClient.Do(req)
		if err != nil {
			return rawURL
		}
		resp.Body.Close()

		if resp.StatusCode < 300 || resp.StatusCode >= 400 {
			return current
		}
		loc := resp.Header.Get("Location")
		if loc == "" {
			return current
		}
		next, err := url.Parse(loc)
		if err != nil {
			return current
		}
		base, err := url.Parse(current)
		if err != nil {
			return current
		}
		current = base.ResolveReference(next).String()
	}
	return current
}

// bestEffortFormats wraps a format probe so listing never errors.
func bestEffortFormats(name string, formats []media.FormatDescriptor, err error) []media.FormatDescriptor {
	if err != nil || len(formats) == 0 {
		if err != nil {
			log.Printf("[%s] Format listing failed, offering best: %v", name, err)
		}
		return []media.FormatDescriptor{media.BestFormat}
	}
	return formats
}

// fetchDirect tries each direct-capable provider in order under the shared
// direct-link timeout. Failure means "no shortcut", never a hard error.
func fetchDirect(ctx context.Context, rawURL string, opts provider.Options, linkers ...provider.DirectLinker) (*provider.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, config.DirectLinkTimeout)
	defer cancel()

	var lastErr error
	for _, l := range linkers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := l.DirectURL(ctx, rawURL, opts)
		if err == nil && (res.MediaURL != "" || len(res.PickerItems) > 0) {
			return res, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = provider.Failf(provider.FailUnsupported, "no direct link available")
	}
	return nil, lastErr
}
