package platform

import (
	"context"

	"github.com/zerocas99/zenload/internal/config"
	"github.com/zerocas99/zenload/internal/media"
	"github.com/zerocas99/zenload/internal/provider"
)

// SoundCloud is audio-only: every request goes out with AudioOnly set
// regardless of what the caller asked for.
type SoundCloud struct {
	providers *Providers
	chain     *provider.Chain
}

func NewSoundCloud(p *Providers) *SoundCloud {
	policy := provider.DefaultPolicy
	policy.PerAttemptTimeout = config.YtdlpTimeout
	return &SoundCloud{
		providers: p,
		chain:     provider.NewChain(policy, p.Cobalt, p.Ytdlp),
	}
}

func (s *SoundCloud) Name() string { return "soundcloud" }

func (s *SoundCloud) CanHandle(rawURL string) bool {
	return hostMatchesAny(rawURL, "soundcloud.com", "on.soundcloud.com", "snd.sc")
}

func (s *SoundCloud) NormalizeURL(ctx context.Context, rawURL string) string {
	if hostMatchesAny(rawURL, "on.soundcloud.com", "snd.sc") {
		rawURL = resolveShortLink(ctx, rawURL)
	}
	return stripQuery(rawURL)
}

func (s *SoundCloud) ListFormats(ctx context.Context, rawURL string) []media.FormatDescriptor {
	return []media.FormatDescriptor{{ID: "mp3", Quality: "Audio", Ext: "mp3"}}
}

func (s *SoundCloud) FetchDirectLink(ctx context.Context, rawURL string, opts provider.Options) (*provider.Result, error) {
	opts.Platform = s.Name()
	opts.AudioOnly = true
	return fetchDirect(ctx, rawURL, opts, s.providers.Cobalt)
}

func (s *SoundCloud) Download(ctx context.Context, rawURL string, opts provider.Options, onProgress func(percent float64)) (*media.Downloaded, error) {
	opts.Platform = s.Name()
	opts.AudioOnly = true
	dl, err := s.chain.Download(ctx, rawURL, opts, onProgress)
	if err != nil {
		return nil, err
	}
	dl.Kind = media.KindAudio
	return dl, nil
}
