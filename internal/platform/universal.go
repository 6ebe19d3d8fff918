package platform

import (
	"context"

	"github.com/zerocas99/zenload/internal/config"
	"github.com/zerocas99/zenload/internal/media"
	"github.com/zerocas99/zenload/internal/provider"
)

// Universal is the catch-all for every cobalt-supported service without a
// dedicated strategy, plus anything yt-dlp might still crack. It claims any
// domain in the cobalt service table and, as the last registered strategy,
// any well-formed URL at all.
type Universal struct {
	providers *Providers
	chain     *provider.Chain
}

func NewUniversal(p *Providers) *Universal {
	policy := provider.DefaultPolicy
	policy.PerAttemptTimeout = config.YtdlpTimeout
	return &Universal{
		providers: p,
		chain:     provider.NewChain(policy, p.Cobalt, p.Ytdlp),
	}
}

func (u *Universal) Name() string { return "universal" }

func (u *Universal) CanHandle(rawURL string) bool {
	return hostOf(rawURL) != ""
}

// ServiceFor returns the cobalt service name the URL's host belongs to,
// or "" when it is off the table.
func ServiceFor(rawURL string) string {
	host := hostOf(rawURL)
	if host == "" {
		return ""
	}
	for service, domains := range config.CobaltServices {
		for _, d := range domains {
			if hostMatches(host, d) {
				return service
			}
		}
	}
	return ""
}

func (u *Universal) NormalizeURL(ctx context.Context, rawURL string) string {
	// Tracking params are harmless to cobalt and yt-dlp but short links on
	// known services hide the real host from the resolvers.
	switch ServiceFor(rawURL) {
	case "twitter", "reddit", "bilibili", "dailymotion", "xiaohongshu":
		if hostMatchesAny(rawURL, "t.co", "redd.it", "b23.tv", "dai.ly", "xhslink.com") {
			return resolveShortLink(ctx, rawURL)
		}
	}
	return rawURL
}

func (u *Universal) ListFormats(ctx context.Context, rawURL string) []media.FormatDescriptor {
	formats, err := u.providers.Ytdlp.ListFormats(ctx, rawURL)
	return bestEffortFormats(u.Name(), formats, err)
}

func (u *Universal) FetchDirectLink(ctx context.Context, rawURL string, opts provider.Options) (*provider.Result, error) {
	opts.Platform = u.Name()
	if svc := ServiceFor(rawURL); svc != "" {
		opts.Platform = svc
	}
	return fetchDirect(ctx, rawURL, opts, u.providers.Cobalt)
}

func (u *Universal) Download(ctx context.Context, rawURL string, opts provider.Options, onProgress func(percent float64)) (*media.Downloaded, error) {
	opts.Platform = u.Name()
	if svc := ServiceFor(rawURL); svc != "" {
		opts.Platform = svc
	}
	return u.chain.Download(ctx, rawURL, opts, onProgress)
}
