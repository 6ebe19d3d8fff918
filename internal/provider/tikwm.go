package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/zerocas99/zenload/internal/config"
	"github.com/zerocas99/zenload/internal/media"
)

// TikWm is the fast TikTok metadata API. It answers in a single round trip
// with watermark-free CDN URLs, so it sits first in the TikTok chain and
// backs the zero-copy path.
type TikWm struct{}

func NewTikWm() *TikWm { return &TikWm{} }

func (t *TikWm) Name() string { return "tikwm" }

type tikwmResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		Play   string   `json:"play"`
		HDPlay string   `json:"hdplay"`
		Music  string   `json:"music"`
		Cover  string   `json:"cover"`
		Title  string   `json:"title"`
		Images []string `json:"images"`
		Author struct {
			Nickname string `json:"nickname"`
			UniqueID string `json:"unique_id"`
		} `json:"author"`
		PlayCount int `json:"play_count"`
		DiggCount int `json:"digg_count"`
	} `json:"data"`
}

func (t *TikWm) fetch(ctx context.Context, videoURL string) (*tikwmResponse, error) {
	apiURL := fmt.Sprintf("%s?url=%s&hd=1", config.TikWmAPI, url.QueryEscape(videoURL))

	req, err := http.NewRequestWithContext(ctx, "GET", apiURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", browserUA)

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, Failf(FailTransient, "tikwm request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, Failf(classifyStatus(resp.StatusCode), "tikwm returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, Failf(FailTransient, "tikwm read failed: %v", err)
	}

	var parsed tikwmResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, Failf(FailTransient, "tikwm returned invalid JSON")
	}
	if parsed.Code != 0 {
		return nil, Failf(ClassifyMessage(parsed.Msg), "tikwm: %s", parsed.Msg)
	}
	return &parsed, nil
}

func (t *TikWm) Resolve(ctx context.Context, videoURL string, opts Options) (*Result, error) {
	parsed, err := t.fetch(ctx, videoURL)
	if err != nil {
		return nil, err
	}
	d := parsed.Data

	res := &Result{
		Title:     d.Title,
		Author:    d.Author.Nickname,
		Thumbnail: d.Cover,
		IsDirect:  true,
	}

	switch {
	case opts.AudioOnly && d.Music != "":
		res.MediaURL = d.Music
		res.Kind = media.KindAudio
	case len(d.Images) > 0:
		// Photo-mode slideshow: every image is a separate deliverable.
		res.PickerItems = d.Images
		res.Kind = media.KindPhoto
	case d.HDPlay != "":
		res.MediaURL = d.HDPlay
		res.Kind = media.KindVideo
	case d.Play != "":
		res.MediaURL = d.Play
		res.Kind = media.KindVideo
	default:
		return nil, Failf(FailTransient, "tikwm response had no media")
	}

	return res, nil
}

// DirectURL exposes the resolved CDN links for zero-copy delivery.
// Slideshows come back as picker items, one per photo.
func (t *TikWm) DirectURL(ctx context.Context, videoURL string, opts Options) (*Result, error) {
	return t.Resolve(ctx, videoURL, opts)
}
