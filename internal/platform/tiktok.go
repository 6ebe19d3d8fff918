package platform

import (
	"context"

	"github.com/zerocas99/zenload/internal/config"
	"github.com/zerocas99/zenload/internal/media"
	"github.com/zerocas99/zenload/internal/provider"
)

// TikTok: tikwm answers in one round trip without a watermark, cobalt is the
// reliable second, yt-dlp the slow last resort.
type TikTok struct {
	providers *Providers
	chain     *provider.Chain
}

func NewTikTok(p *Providers) *TikTok {
	policy := provider.DefaultPolicy
	policy.PerAttemptTimeout = config.ProviderTimeout
	return &TikTok{
		providers: p,
		chain:     provider.NewChain(policy, p.TikWm, p.Cobalt, p.Ytdlp),
	}
}

func (t *TikTok) Name() string { return "tiktok" }

func (t *TikTok) CanHandle(rawURL string) bool {
	return hostMatchesAny(rawURL, "tiktok.com", "vm.tiktok.com", "vt.tiktok.com")
}

func (t *TikTok) NormalizeURL(ctx context.Context, rawURL string) string {
	if hostMatchesAny(rawURL, "vm.tiktok.com", "vt.tiktok.com") {
		rawURL = resolveShortLink(ctx, rawURL)
	}
	return stripQuery(rawURL)
}

func (t *TikTok) ListFormats(ctx context.Context, rawURL string) []media.FormatDescriptor {
	// One watermark-free quality is all tikwm serves; probing further is
	// wasted latency.
	if _, err := t.providers.TikWm.Resolve(ctx, rawURL, provider.Options{Platform: t.Name()}); err == nil {
		return []media.FormatDescriptor{{ID: "best", Quality: "Best (no watermark)", Ext: "mp4"}}
	}
	formats, err := t.providers.Ytdlp.ListFormats(ctx, rawURL)
	return bestEffortFormats(t.Name(), formats, err)
}

func (t *TikTok) FetchDirectLink(ctx context.Context, rawURL string, opts provider.Options) (*provider.Result, error) {
	opts.Platform = t.Name()
	return fetchDirect(ctx, rawURL, opts, t.providers.TikWm, t.providers.Cobalt)
}

func (t *TikTok) Download(ctx context.Context, rawURL string, opts provider.Options, onProgress func(percent float64)) (*media.Downloaded, error) {
	opts.Platform = t.Name()
	return t.chain.Download(ctx, rawURL, opts, onProgress)
}
