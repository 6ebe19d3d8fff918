package platform

import (
	"context"
	"net/url"
	"strings"

	"github.com/zerocas99/zenload/internal/config"
	"github.com/zerocas99/zenload/internal/media"
	"github.com/zerocas99/zenload/internal/provider"
)

// YouTube: native client first (no subprocess, direct-capable), cobalt
// second, yt-dlp last. yt-dlp gets a longer attempt window because merges
// are slow.
type YouTube struct {
	providers *Providers
	chain     *provider.Chain
}

func NewYouTube(p *Providers) *YouTube {
	policy := provider.DefaultPolicy
	policy.PerAttemptTimeout = config.YtdlpTimeout
	return &YouTube{
		providers: p,
		chain:     provider.NewChain(policy, p.YouTube, p.Cobalt, p.Ytdlp),
	}
}

func (y *YouTube) Name() string { return "youtube" }

func (y *YouTube) CanHandle(rawURL string) bool {
	return hostMatchesAny(rawURL, "youtube.com", "youtu.be", "music.youtube.com")
}

// NormalizeURL converts short and mobile variants to the canonical watch URL
// and keeps only the video ID.
func (y *YouTube) NormalizeURL(ctx context.Context, rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	host := strings.ToLower(parsed.Hostname())

	if hostMatches(host, "youtu.be") {
		id := strings.TrimPrefix(parsed.Path, "/")
		if id != "" {
			return "https://www.youtube.com/watch?v=" + id
		}
		return rawURL
	}

	if strings.HasPrefix(parsed.Path, "/shorts/") || strings.HasPrefix(parsed.Path, "/live/") {
		parts := strings.Split(strings.Trim(parsed.Path, "/"), "/")
		if len(parts) >= 2 && parts[1] != "" {
			return "https://www.youtube.com/watch?v=" + parts[1]
		}
	}

	return keepParams(rawURL, "v", "list")
}

func (y *YouTube) ListFormats(ctx context.Context, rawURL string) []media.FormatDescriptor {
	formats, err := y.providers.YouTube.ListFormats(ctx, rawURL)
	if err != nil || len(formats) == 0 {
		formats, err = y.providers.Ytdlp.ListFormats(ctx, rawURL)
	}
	return bestEffortFormats(y.Name(), formats, err)
}

func (y *YouTube) FetchDirectLink(ctx context.Context, rawURL string, opts provider.Options) (*provider.Result, error) {
	opts.Platform = y.Name()
	return fetchDirect(ctx, rawURL, opts, y.providers.YouTube, y.providers.Cobalt)
}

func (y *YouTube) Download(ctx context.Context, rawURL string, opts provider.Options, onProgress func(percent float64)) (*media.Downloaded, error) {
	opts.Platform = y.Name()
	return y.chain.Download(ctx, rawURL, opts, onProgress)
}
