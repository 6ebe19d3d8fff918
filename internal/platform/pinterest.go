package platform

import (
	"context"

	"github.com/zerocas99/zenload/internal/config"
	"github.com/zerocas99/zenload/internal/media"
	"github.com/zerocas99/zenload/internal/provider"
)

// Pinterest: the pin page carries its media in og tags, so the scraper goes
// first and cobalt covers the rest.
type Pinterest struct {
	providers *Providers
	chain     *provider.Chain
}

func NewPinterest(p *Providers) *Pinterest {
	policy := provider.DefaultPolicy
	policy.PerAttemptTimeout = config.ProviderTimeout
	return &Pinterest{
		providers: p,
		chain:     provider.NewChain(policy, p.Scrape, p.Cobalt),
	}
}

func (p *Pinterest) Name() string { return "pinterest" }

func (p *Pinterest) CanHandle(rawURL string) bool {
	return hostMatchesAny(rawURL,
		"pinterest.com", "pin.it", "pinterest.ru", "pinterest.co.uk", "pinterest.de", "pinterest.fr")
}

func (p *Pinterest) NormalizeURL(ctx context.Context, rawURL string) string {
	if hostMatchesAny(rawURL, "pin.it") {
		rawURL = resolveShortLink(ctx, rawURL)
	}
	return stripQuery(rawURL)
}

func (p *Pinterest) ListFormats(ctx context.Context, rawURL string) []media.FormatDescriptor {
	return []media.FormatDescriptor{media.BestFormat}
}

func (p *Pinterest) FetchDirectLink(ctx context.Context, rawURL string, opts provider.Options) (*provider.Result, error) {
	opts.Platform = p.Name()
	return fetchDirect(ctx, rawURL, opts, p.providers.Scrape, p.providers.Cobalt)
}

func (p *Pinterest) Download(ctx context.Context, rawURL string, opts provider.Options, onProgress func(percent float64)) (*media.Downloaded, error) {
	opts.Platform = p.Name()
	return p.chain.Download(ctx, rawURL, opts, onProgress)
}
