package alerts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/zerocas99/zenload/internal/config"
)

var (
	mu                sync.Mutex
	categoryCooldowns = make(map[string]time.Time)
)

const (
	colorOrange = 0xFFA500
	colorRed    = 0xFF4444
	colorCrit   = 0xFF0000
	colorGreen  = 0x2ECC71
)

type embed struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Color       int     `json:"color"`
	Fields      []field `json:"fields,omitempty"`
	Timestamp   string  `json:"timestamp"`
	Footer      *footer `json:"footer,omitempty"`
}

type field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type footer struct {
	Text string `json:"text"`
}

type payload struct {
	Content string  `json:"content,omitempty"`
	Embeds  []embed `json:"embeds"`
}

func send(category string, cooldown time.Duration, ping bool, color int, title, description string, fields map[string]string) {
	if !config.AlertsEnabled || config.AlertWebhookURL == "" {
		return
	}

	mu.Lock()
	now := time.Now()
	if cooldown > 0 {
		if last, ok := categoryCooldowns[category]; ok && now.Sub(last) < cooldown {
			mu.Unlock()
			return
		}
	}
	categoryCooldowns[category] = now
	mu.Unlock()

	var embedFields []field
	for k, v := range fields {
		if v == "" {
			continue
		}
		if len(v) > 1024 {
			v = v[:1021] + "..."
		}
		embedFields = append(embedFields, field{Name: k, Value: v, Inline: true})
	}

	p := payload{
		Embeds: []embed{{
			Title:       title,
			Description: truncate(description, 2048),
			Color:       color,
			Fields:      embedFields,
			Timestamp:   now.UTC().Format(time.RFC3339),
			Footer:      &footer{Text: "zenload"},
		}},
	}

	if ping && config.AlertPingUserID != "" {
		p.Content = fmt.Sprintf("<@%s>", config.AlertPingUserID)
	}

	body, _ := json.Marshal(p)
	go func() {
		resp, err := http.Post(config.AlertWebhookURL, "application/json", bytes.NewReader(body))
		if err != nil {
			log.Printf("[Alerts] send failed: %v", err)
			return
		}
		resp.Body.Close()
	}()
}

func Started() {
	send("start", 0, false, colorGreen, "Started", fmt.Sprintf("zenload %s is up", config.Version), nil)
}

func Stopping() {
	send("stop", 0, false, colorOrange, "Stopping", "zenload is shutting down", nil)
}

func DownloadFailed(jobID, platform, url string, err error) {
	send("download", 5*time.Second, true, colorRed, "Download Failed", err.Error(), map[string]string{
		"Job":      jobID,
		"Platform": platform,
		"URL":      truncate(url, 200),
		"Error":    truncate(err.Error(), 500),
	})
}

func AllProvidersFailed(jobID, platform, url string, err error) {
	send("providers", 10*time.Second, true, colorRed, "All Providers Failed", err.Error(), map[string]string{
		"Job":      jobID,
		"Platform": platform,
		"URL":      truncate(url, 200),
		"Error":    truncate(err.Error(), 500),
	})
}

func DeliveryFailed(jobID string, err error) {
	send("delivery", 10*time.Second, true, colorRed, "Delivery Failed", err.Error(), map[string]string{
		"Job":   jobID,
		"Error": truncate(err.Error(), 500),
	})
}

func CobaltInstancesDown(err error) {
	send("cobalt", 60*time.Second, false, colorOrange, "Cobalt Instance Refresh Failed", err.Error(), nil)
}

func QueueRejected(userID int64) {
	send("queue", 30*time.Second, false, colorOrange, "Per-User Limit Hit",
		fmt.Sprintf("user %d rejected at the concurrent-download cap", userID), nil)
}

func WorkerPanic(jobID string, v any) {
	send("panic", 0, true, colorCrit, "Worker Panic", fmt.Sprint(v), map[string]string{
		"Job": jobID,
	})
}

func truncate(s string, maxLen int) string {
	if len(s) > maxLen {
		return s[:maxLen-3] + "..."
	}
	return s
}
