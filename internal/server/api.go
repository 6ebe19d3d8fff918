package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zerocas99/zenload/internal/config"
	"github.com/zerocas99/zenload/internal/download"
	"github.com/zerocas99/zenload/internal/media"
	"github.com/zerocas99/zenload/internal/platform"
	"github.com/zerocas99/zenload/internal/util"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, 200, map[string]interface{}{
		"status":  "ok",
		"version": config.Version,
		"queue":   s.Scheduler.Stats(),
	})
}

type downloadRequest struct {
	URL      string `json:"url"`
	Platform string `json:"platform,omitempty"` // overrides URL-based dispatch
	Quality  string `json:"quality,omitempty"`  // "best" or a height like "720p"
	FormatID string `json:"formatId,omitempty"`
	UserID   int64  `json:"userId"`
	ChatID   int64  `json:"chatId"`
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	var body downloadRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondJSON(w, 400, map[string]string{"error": "Invalid JSON body"})
		return
	}

	validation := util.ValidateURL(body.URL)
	if !validation.Valid {
		respondJSON(w, 400, map[string]string{"error": validation.Error})
		return
	}
	if body.ChatID == 0 {
		respondJSON(w, 400, map[string]string{"error": "chatId is required"})
		return
	}

	var strategy platform.Strategy
	if body.Platform != "" {
		strategy = s.Dispatcher.StrategyByName(body.Platform)
		if strategy == nil {
			respondJSON(w, 422, map[string]string{"error": "Unknown platform"})
			return
		}
	} else {
		strategy = s.Dispatcher.SelectStrategy(body.URL)
		if strategy == nil {
			respondJSON(w, 422, map[string]string{"error": "Unsupported URL"})
			return
		}
	}

	quality := media.QualityBest
	if h, ok := config.QualityHeight[body.Quality]; ok {
		quality = media.QualityHeightOf(h)
	}

	task, err := s.Scheduler.Submit(media.Request{
		URL:          body.URL,
		PlatformHint: body.Platform,
		Quality:      quality,
		FormatID:     body.FormatID,
		UserID:       body.UserID,
		ChatID:       body.ChatID,
	}, strategy)
	if err != nil {
		switch {
		case errors.Is(err, download.ErrTooManyDownloads):
			respondJSON(w, 409, map[string]string{"error": util.ToUserError(err.Error())})
		case errors.Is(err, download.ErrShuttingDown):
			respondJSON(w, 503, map[string]string{"error": "Server is shutting down"})
		default:
			respondJSON(w, 500, map[string]string{"error": "Internal error"})
		}
		return
	}

	respondJSON(w, 202, map[string]string{
		"id":       task.ID,
		"platform": strategy.Name(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	task, ok := s.Scheduler.Lookup(id)
	if !ok {
		respondJSON(w, 404, map[string]string{"error": "Unknown job"})
		return
	}
	respondJSON(w, 200, task.Snapshot())
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"queue": s.Scheduler.Stats(),
		"limits": map[string]int{
			"maxConcurrent": config.MaxConcurrentDownloads,
			"maxPerUser":    config.MaxDownloadsPerUser,
		},
	}
	if s.Activity != nil {
		if stats, err := s.Activity.Stats(); err == nil {
			resp["totals"] = stats
		}
	}
	respondJSON(w, 200, resp)
}

func (s *Server) handleFormats(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	validation := util.ValidateURL(rawURL)
	if !validation.Valid {
		respondJSON(w, 400, map[string]string{"error": validation.Error})
		return
	}
	strategy := s.Dispatcher.SelectStrategy(rawURL)
	if strategy == nil {
		respondJSON(w, 422, map[string]string{"error": "Unsupported URL"})
		return
	}
	respondJSON(w, 200, map[string]interface{}{
		"platform": strategy.Name(),
		"formats":  strategy.ListFormats(r.Context(), rawURL),
	})
}
