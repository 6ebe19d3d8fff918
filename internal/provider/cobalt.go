package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/zerocas99/zenload/internal/alerts"
	"github.com/zerocas99/zenload/internal/config"
)

// Cobalt talks to cobalt-compatible instances. Instance order is self-hosted
// first, then public instances from the instances API (cached with a TTL),
// then the static fallback list.
type Cobalt struct {
	mu        sync.Mutex
	cached    []string
	fetchedAt time.Time
}

func NewCobalt() *Cobalt {
	return &Cobalt{}
}

func (c *Cobalt) Name() string { return "cobalt" }

func cobaltHeaders() map[string]string {
	h := map[string]string{
		"Accept":       "application/json",
		"Content-Type": "application/json",
		"User-Agent":   browserUA,
	}
	if config.CobaltAPIKey != "" {
		h["Authorization"] = "Api-Key " + config.CobaltAPIKey
	}
	return h
}

// Instances returns the ordered instance list, refreshing the public-instance
// cache when the TTL has lapsed. Refresh failure degrades to the static list.
func (c *Cobalt) Instances(ctx context.Context) []string {
	c.mu.Lock()
	stale := time.Since(c.fetchedAt) > config.InstanceCacheTTL
	cached := c.cached
	c.mu.Unlock()

	if stale {
		if err := c.RefreshInstances(ctx); err != nil {
			log.Printf("[Cobalt] Instance refresh failed: %v", err)
			alerts.CobaltInstancesDown(err)
		}
		c.mu.Lock()
		cached = c.cached
		c.mu.Unlock()
	}

	var out []string
	if config.CobaltSelfHosted != "" {
		out = append(out, config.CobaltSelfHosted)
	}
	out = append(out, cached...)
	for _, api := range config.CobaltAPIs {
		if !contains(out, api) {
			out = append(out, api)
		}
	}
	return out
}

// RefreshInstances re-fetches the public instance list immediately,
// regardless of cache age.
func (c *Cobalt) RefreshInstances(ctx context.Context) error {
	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, "GET", config.CobaltInstancesAPI, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", browserUA)

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return fmt.Errorf("instances API returned %d", resp.StatusCode)
	}

	var entries []struct {
		API      string `json:"api"`
		Protocol string `json:"protocol"`
		Online   bool   `json:"api_online"`
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, &entries); err != nil {
		return err
	}

	var instances []string
	for _, e := range entries {
		if e.API == "" || !e.Online {
			continue
		}
		proto := e.Protocol
		if proto == "" {
			proto = "https"
		}
		instances = append(instances, proto+"://"+e.API)
		if len(instances) >= 10 {
			break
		}
	}

	c.mu.Lock()
	c.cached = instances
	c.fetchedAt = time.Now()
	c.mu.Unlock()

	log.Printf("[Cobalt] Instance cache refreshed (%d public instances)", len(instances))
	return nil
}

func (c *Cobalt) post(ctx context.Context, apiURL string, body map[string]interface{}) (map[string]interface{}, error) {
	jsonBody, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, "POST", apiURL, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, err
	}
	for k, v := range cobaltHeaders() {
		req.Header.Set(k, v)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if code := cobaltErrorCode(respBody); code != "" {
			return nil, fmt.Errorf("%s", code)
		}
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	var data map[string]interface{}
	if err := json.Unmarshal(respBody, &data); err != nil {
		return nil, fmt.Errorf("invalid JSON response")
	}

	if data["status"] == "error" {
		if code := cobaltErrorCode(respBody); code != "" {
			return nil, fmt.Errorf("%s", code)
		}
		return nil, fmt.Errorf("cobalt error")
	}

	return data, nil
}

func cobaltErrorCode(respBody []byte) string {
	var errData map[string]interface{}
	if json.Unmarshal(respBody, &errData) != nil {
		return ""
	}
	if errObj, ok := errData["error"].(map[string]interface{}); ok {
		if code, ok := errObj["code"].(string); ok {
			return code
		}
	}
	return ""
}

func (c *Cobalt) requestBody(url string, opts Options) map[string]interface{} {
	quality := opts.Quality
	if quality == "" {
		quality = "1080"
	}
	body := map[string]interface{}{
		"url":           url,
		"downloadMode":  "auto",
		"filenameStyle": "basic",
		"videoQuality":  quality,
	}
	if opts.AudioOnly {
		body["downloadMode"] = "audio"
	}
	return body
}

// Resolve asks each instance in order for a download URL. Instances that
// fail within this call are not retried.
func (c *Cobalt) Resolve(ctx context.Context, url string, opts Options) (*Result, error) {
	var lastErr error
	for _, apiURL := range c.Instances(ctx) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		data, err := c.post(ctx, apiURL, c.requestBody(url, opts))
		if err != nil {
			log.Printf("[Cobalt] %s failed: %s", apiURL, err)
			lastErr = err
			if reason := ClassifyMessage(err.Error()); reason == FailAuthRequired || reason == FailNotFound {
				return nil, Failf(reason, "%s", err)
			}
			continue
		}

		res := cobaltResult(data, opts)
		if res == nil {
			lastErr = fmt.Errorf("no download URL in response")
			continue
		}

		log.Printf("[Cobalt] Resolved via %s", apiURL)
		return res, nil
	}

	if lastErr != nil {
		return nil, Failf(ClassifyMessage(lastErr.Error()), "%s", lastErr)
	}
	return nil, Failf(FailTransient, "all cobalt instances failed")
}

func cobaltResult(data map[string]interface{}, opts Options) *Result {
	status, _ := data["status"].(string)
	filename, _ := data["filename"].(string)

	switch status {
	case "tunnel", "redirect":
		downloadURL, _ := data["url"].(string)
		if downloadURL == "" {
			return nil
		}
		return &Result{
			MediaURL: downloadURL,
			IsDirect: status == "redirect",
			Filename: filename,
		}
	case "picker":
		picker, _ := data["picker"].([]interface{})
		var items []string
		for _, raw := range picker {
			if entry, ok := raw.(map[string]interface{}); ok {
				if u, ok := entry["url"].(string); ok && u != "" {
					items = append(items, u)
				}
			}
		}
		if len(items) == 0 {
			return nil
		}
		return &Result{PickerItems: items, Filename: filename}
	default:
		return nil
	}
}

// DirectURL returns links usable for zero-copy delivery. Tunnel URLs proxy
// through the instance and expire quickly, so only redirects and picker
// galleries qualify.
func (c *Cobalt) DirectURL(ctx context.Context, url string, opts Options) (*Result, error) {
	res, err := c.Resolve(ctx, url, opts)
	if err != nil {
		return nil, err
	}
	if !res.IsDirect && len(res.PickerItems) == 0 {
		return nil, Failf(FailUnsupported, "no direct link for this content")
	}
	return res, nil
}

func contains(slice []string, val string) bool {
	for _, s := range slice {
		if s == val {
			return true
		}
	}
	return false
}
