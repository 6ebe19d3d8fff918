package provider

import (
	"context"
	"net/http"

	"github.com/PuerkitoBio/goquery"

	"github.com/zerocas99/zenload/internal/media"
)

// Scrape pulls media URLs out of a page's OpenGraph tags. Pinterest and
// similar platforms embed the full-resolution asset there, which makes this
// the cheapest possible provider for them.
type Scrape struct{}

func NewScrape() *Scrape { return &Scrape{} }

func (s *Scrape) Name() string { return "og-scrape" }

func (s *Scrape) Resolve(ctx context.Context, pageURL string, opts Options) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", browserUA)

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, Failf(FailTransient, "page fetch failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, Failf(classifyStatus(resp.StatusCode), "page returned HTTP %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, Failf(FailTransient, "page parse failed: %v", err)
	}

	metaContent := func(props ...string) string {
		for _, prop := range props {
			if v, ok := doc.Find(`meta[property="` + prop + `"]`).First().Attr("content"); ok && v != "" {
				return v
			}
			if v, ok := doc.Find(`meta[name="` + prop + `"]`).First().Attr("content"); ok && v != "" {
				return v
			}
		}
		return ""
	}

	res := &Result{
		Title:     metaContent("og:title", "twitter:title"),
		Thumbnail: metaContent("og:image"),
		IsDirect:  true,
	}

	if video := metaContent("og:video", "og:video:url", "og:video:secure_url", "twitter:player:stream"); video != "" {
		res.MediaURL = video
		res.Kind = media.KindVideo
		return res, nil
	}
	if !opts.AudioOnly {
		if image := metaContent("og:image", "twitter:image"); image != "" {
			res.MediaURL = image
			res.Kind = media.KindPhoto
			return res, nil
		}
	}

	return nil, Failf(FailUnsupported, "page exposes no og media tags")
}

func (s *Scrape) DirectURL(ctx context.Context, pageURL string, opts Options) (*Result, error) {
	return s.Resolve(ctx, pageURL, opts)
}
