package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/sessions"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// App is the application context shared by every handler. It is built
// once at startup.
type App struct {
	config    *Config
	log       zerolog.Logger
	store     *Store
	syncer    *Syncer
	metrics   *Metrics
	sessions  sessions.Store
	templates *Templates
}

// NewApp opens the database and wires the Twitter client from cfg.
func NewApp(cfg *Config, log zerolog.Logger) (*App, error) {
	store, err := OpenStore(cfg.DatabaseURL, log)
	if err != nil {
		return nil, err
	}

	app, err := newApp(cfg, log, store, NewTwitterClient(cfg.Twitter, log))
	if err != nil {
		store.Close()
		return nil, err
	}
	return app, nil
}

func newApp(cfg *Config, log zerolog.Logger, store *Store, fetcher Fetcher) (*App, error) {
	templates, err := loadTemplates()
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}

	if cfg.SessionSecret == "" {
		log.Warn().Msg("SESSION_SECRET not set, using a random key")
	}

	metrics := NewMetrics(cfg.ServiceName)
	return &App{
		config:    cfg,
		log:       log,
		store:     store,
		syncer:    NewSyncer(store, fetcher, cfg.TweetLimit, metrics, log),
		metrics:   metrics,
		sessions:  newStore(cfg.SessionSecret),
		templates: templates,
	}, nil
}

func (a *App) Close() error {
	return a.store.Close()
}

func (a *App) setupRouter() *mux.Router {
	r := mux.NewRouter()
	r.Use(a.recoverMiddleware, a.logMiddleware)

	r.HandleFunc("/", a.homeHandler).Methods(http.MethodGet)
	r.HandleFunc("/user", a.userHandler).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/user/{name}", a.userHandler).Methods(http.MethodGet)
	r.HandleFunc("/reset", a.resetHandler).Methods(http.MethodGet)
	r.HandleFunc("/update", a.updateHandler).Methods(http.MethodGet)
	r.HandleFunc("/healthz", a.healthHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(a.metrics.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	return r
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (a *App) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)

		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tmpl, err := current.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		a.metrics.RequestDuration.WithLabelValues(route, r.Method).Observe(elapsed.Seconds())

		a.log.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", elapsed).
			Msg("request")
	})
}

func (a *App) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				a.log.Error().Interface("panic", p).Str("path", r.URL.Path).Msg("handler panicked")
				http.Error(w, "Internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
