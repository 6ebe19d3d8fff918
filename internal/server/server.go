package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/zerocas99/zenload/internal/activity"
	"github.com/zerocas99/zenload/internal/config"
	"github.com/zerocas99/zenload/internal/download"
	"github.com/zerocas99/zenload/internal/middleware"
	"github.com/zerocas99/zenload/internal/platform"
)

// Server is the HTTP introspection and submission surface in front of the
// scheduler.
type Server struct {
	Scheduler  *download.Scheduler
	Dispatcher *platform.Dispatcher
	Activity   *activity.Log
}

func New(sched *download.Scheduler, disp *platform.Dispatcher, act *activity.Log) *http.Server {
	s := &Server{Scheduler: sched, Dispatcher: disp, Activity: act}

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(securityHeaders)
	r.Use(middleware.LoadCORS())
	r.Use(middleware.RateLimit)

	r.Get("/health", s.handleHealth)
	r.Post("/api/download", s.handleDownload)
	r.Get("/api/status/{id}", s.handleStatus)
	r.Get("/api/queue", s.handleQueue)
	r.Get("/api/formats", s.handleFormats)

	return &http.Server{
		Addr:              ":" + config.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

func PrintBanner() {
	fmt.Printf(`
  ┌──────────────────────────────────┐
  │         zenload %s           │
  │   media download orchestrator    │
  └──────────────────────────────────┘
`, padVersion(config.Version))
}

func padVersion(v string) string {
	for len(v) < 10 {
		v += " "
	}
	return v
}
