package platform

import (
	"context"
	"testing"

	"github.com/zerocas99/zenload/internal/provider"
)

func testDispatcher() *Dispatcher {
	return DefaultDispatcher(NewProviders())
}

// fakeLinker answers DirectURL with a canned result.
type fakeLinker struct {
	res *provider.Result
	err error
}

func (f *fakeLinker) Name() string { return "fake" }

func (f *fakeLinker) Resolve(ctx context.Context, url string, opts provider.Options) (*provider.Result, error) {
	return f.res, f.err
}

func (f *fakeLinker) DirectURL(ctx context.Context, url string, opts provider.Options) (*provider.Result, error) {
	return f.res, f.err
}

func TestFetchDirectPassesPickerThrough(t *testing.T) {
	linker := &fakeLinker{res: &provider.Result{
		PickerItems: []string{"https://cdn.example/1.jpg", "https://cdn.example/2.jpg"},
	}}

	res, err := fetchDirect(context.Background(), "https://example.com/slides", provider.Options{}, linker)
	if err != nil {
		t.Fatalf("picker result rejected: %v", err)
	}
	if len(res.PickerItems) != 2 {
		t.Fatalf("PickerItems = %v, want both gallery urls", res.PickerItems)
	}
}

func TestFetchDirectSkipsEmptyResults(t *testing.T) {
	empty := &fakeLinker{res: &provider.Result{}}
	good := &fakeLinker{res: &provider.Result{MediaURL: "https://cdn.example/v.mp4"}}

	res, err := fetchDirect(context.Background(), "https://example.com/v", provider.Options{}, empty, good)
	if err != nil {
		t.Fatal(err)
	}
	if res.MediaURL != "https://cdn.example/v.mp4" {
		t.Fatalf("MediaURL = %q, want the second linker's url", res.MediaURL)
	}
}

func TestStrategyByName(t *testing.T) {
	d := testDispatcher()
	for _, name := range []string{"tiktok", "youtube", "universal"} {
		s := d.StrategyByName(name)
		if s == nil || s.Name() != name {
			t.Errorf("StrategyByName(%q) = %v", name, s)
		}
	}
	if s := d.StrategyByName("myspace"); s != nil {
		t.Errorf("unknown platform resolved to %s", s.Name())
	}
}

func TestSelectStrategy(t *testing.T) {
	d := testDispatcher()
	tests := []struct {
		url  string
		want string
	}{
		{"https://www.tiktok.com/@user/video/7123456789", "tiktok"},
		{"https://vm.tiktok.com/ZM8abcdef/", "tiktok"},
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", "youtube"},
		{"https://youtu.be/dQw4w9WgXcQ", "youtube"},
		{"https://music.youtube.com/watch?v=abc", "youtube"},
		{"https://www.instagram.com/reel/Cabc123/", "instagram"},
		{"https://www.pinterest.com/pin/123456/", "pinterest"},
		{"https://pin.it/abc123", "pinterest"},
		{"https://soundcloud.com/artist/track", "soundcloud"},
		{"https://on.soundcloud.com/abc", "soundcloud"},
		{"https://x.com/user/status/123", "universal"},
		{"https://www.reddit.com/r/videos/comments/abc/", "universal"},
		{"https://some.random.site/video.mp4", "universal"},
	}
	for _, tt := range tests {
		s := d.SelectStrategy(tt.url)
		if s == nil {
			t.Errorf("SelectStrategy(%q) = nil, want %s", tt.url, tt.want)
			continue
		}
		if s.Name() != tt.want {
			t.Errorf("SelectStrategy(%q) = %s, want %s", tt.url, s.Name(), tt.want)
		}
	}
}

func TestSelectStrategyNoMatch(t *testing.T) {
	d := testDispatcher()
	for _, u := range []string{"", "not a url at all", "/relative/path"} {
		if s := d.SelectStrategy(u); s != nil {
			t.Errorf("SelectStrategy(%q) = %s, want nil", u, s.Name())
		}
	}
}

func TestDispatchOrderSpecificBeforeUniversal(t *testing.T) {
	d := testDispatcher()
	all := d.Strategies()
	if len(all) == 0 {
		t.Fatal("no strategies registered")
	}
	if all[len(all)-1].Name() != "universal" {
		t.Errorf("last strategy = %s, want universal", all[len(all)-1].Name())
	}
	for _, s := range all[:len(all)-1] {
		if s.Name() == "universal" {
			t.Error("universal registered before the end")
		}
	}
}

func TestYouTubeNormalizeURL(t *testing.T) {
	y := NewYouTube(NewProviders())
	ctx := context.Background()
	tests := []struct {
		in   string
		want string
	}{
		{"https://youtu.be/dQw4w9WgXcQ", "https://www.youtube.com/watch?v=dQw4w9WgXcQ"},
		{"https://www.youtube.com/shorts/Abc123XYZ", "https://www.youtube.com/watch?v=Abc123XYZ"},
		{"https://www.youtube.com/live/Abc123XYZ", "https://www.youtube.com/watch?v=Abc123XYZ"},
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ&feature=share&si=track", "https://www.youtube.com/watch?v=dQw4w9WgXcQ"},
		{"https://www.youtube.com/watch?list=PL123&v=abc&t=42", "https://www.youtube.com/watch?list=PL123&v=abc"},
	}
	for _, tt := range tests {
		if got := y.NormalizeURL(ctx, tt.in); got != tt.want {
			t.Errorf("NormalizeURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestInstagramNormalizeURL(t *testing.T) {
	i := NewInstagram(NewProviders())
	ctx := context.Background()
	tests := []struct {
		in   string
		want string
	}{
		{"https://www.instagram.com/reel/Cabc123/?igsh=tracker", "https://www.instagram.com/reel/Cabc123/"},
		{"https://www.instagram.com/reels/Cabc123/", "https://www.instagram.com/reel/Cabc123/"},
		{"https://instagram.com/p/Cxyz789", "https://www.instagram.com/p/Cxyz789/"},
		{"https://www.instagram.com/tv/Ctv000/", "https://www.instagram.com/tv/Ctv000/"},
		{"https://www.instagram.com/username/reel/Cnested1/", "https://www.instagram.com/reel/Cnested1/"},
	}
	for _, tt := range tests {
		if got := i.NormalizeURL(ctx, tt.in); got != tt.want {
			t.Errorf("NormalizeURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTikTokNormalizeStripsQuery(t *testing.T) {
	tk := NewTikTok(NewProviders())
	got := tk.NormalizeURL(context.Background(), "https://www.tiktok.com/@user/video/7123?is_from_webapp=1&sender_device=pc")
	want := "https://www.tiktok.com/@user/video/7123"
	if got != want {
		t.Errorf("NormalizeURL = %q, want %q", got, want)
	}
}

func TestHostMatches(t *testing.T) {
	tests := []struct {
		host, domain string
		want         bool
	}{
		{"tiktok.com", "tiktok.com", true},
		{"www.tiktok.com", "tiktok.com", true},
		{"vm.tiktok.com", "tiktok.com", true},
		{"nottiktok.com", "tiktok.com", false},
		{"tiktok.com.evil.io", "tiktok.com", false},
	}
	for _, tt := range tests {
		if got := hostMatches(tt.host, tt.domain); got != tt.want {
			t.Errorf("hostMatches(%q, %q) = %v, want %v", tt.host, tt.domain, got, tt.want)
		}
	}
}

func TestServiceFor(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://x.com/user/status/1", "twitter"},
		{"https://old.reddit.com/r/pics/", "reddit"},
		{"https://clips.twitch.tv/Clip", "twitch"},
		{"https://bsky.app/profile/u/post/1", "bluesky"},
		{"https://unknown.example.com/v", ""},
	}
	for _, tt := range tests {
		if got := ServiceFor(tt.url); got != tt.want {
			t.Errorf("ServiceFor(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestKeepParams(t *testing.T) {
	got := keepParams("https://www.youtube.com/watch?v=abc&si=xx&t=10#frag", "v", "list")
	want := "https://www.youtube.com/watch?v=abc"
	if got != want {
		t.Errorf("keepParams = %q, want %q", got, want)
	}
}
