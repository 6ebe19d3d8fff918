package platform

import (
	"context"
	"net/url"
	"strings"

	"github.com/zerocas99/zenload/internal/config"
	"github.com/zerocas99/zenload/internal/media"
	"github.com/zerocas99/zenload/internal/provider"
)

// Instagram: cobalt handles reels, posts and carousels; yt-dlp is the
// fallback for whatever cobalt rejects.
type Instagram struct {
	providers *Providers
	chain     *provider.Chain
}

func NewInstagram(p *Providers) *Instagram {
	policy := provider.DefaultPolicy
	policy.PerAttemptTimeout = config.ProviderTimeout
	return &Instagram{
		providers: p,
		chain:     provider.NewChain(policy, p.Cobalt, p.Ytdlp),
	}
}

func (i *Instagram) Name() string { return "instagram" }

func (i *Instagram) CanHandle(rawURL string) bool {
	return hostMatchesAny(rawURL, "instagram.com", "instagr.am")
}

// NormalizeURL rewrites share and mobile variants onto www.instagram.com and
// drops the tracking query (igsh and friends).
func (i *Instagram) NormalizeURL(ctx context.Context, rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	path := strings.Trim(parsed.Path, "/")
	parts := strings.Split(path, "/")

	// /share/<code> links redirect to the real post.
	if len(parts) >= 2 && parts[0] == "share" {
		resolved := resolveShortLink(ctx, rawURL)
		if resolved != rawURL {
			return i.NormalizeURL(ctx, resolved)
		}
	}

	for idx, p := range parts {
		switch p {
		case "p", "reel", "reels", "tv":
			if idx+1 < len(parts) && parts[idx+1] != "" {
				kind := p
				if kind == "reels" {
					kind = "reel"
				}
				return "https://www.instagram.com/" + kind + "/" + parts[idx+1] + "/"
			}
		}
	}

	parsed.Host = "www.instagram.com"
	parsed.Scheme = "https"
	parsed.RawQuery = ""
	parsed.Fragment = ""
	return parsed.String()
}

func (i *Instagram) ListFormats(ctx context.Context, rawURL string) []media.FormatDescriptor {
	return []media.FormatDescriptor{media.BestFormat}
}

func (i *Instagram) FetchDirectLink(ctx context.Context, rawURL string, opts provider.Options) (*provider.Result, error) {
	opts.Platform = i.Name()
	return fetchDirect(ctx, rawURL, opts, i.providers.Cobalt)
}

func (i *Instagram) Download(ctx context.Context, rawURL string, opts provider.Options, onProgress func(percent float64)) (*media.Downloaded, error) {
	opts.Platform = i.Name()
	return i.chain.Download(ctx, rawURL, opts, onProgress)
}
