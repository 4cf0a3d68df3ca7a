package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dai-orchestrator/internal/dai"
	"dai-orchestrator/internal/decision"
	"dai-orchestrator/internal/orchestrator"
	"dai-orchestrator/internal/platform/config"
	"dai-orchestrator/internal/platform/logger"
	"dai-orchestrator/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sony/gobreaker/v2"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.LoadDotEnv()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	met := metrics.New()

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{"Location"},
		MaxAge:         300,
	}))
	r.Use(middleware.RequestID)
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))

	decisioner, err := newDecisioner(cfg, log, met, r)
	if err != nil {
		log.Error("decisioning backend unavailable", "error", err)
		os.Exit(1)
	}

	repo := orchestrator.NewInMemoryRepository()
	svc := orchestrator.NewService(repo, decisioner, sessionSettings(cfg.Session), log, met)
	orchestrator.NewHandler(svc, log, orchestrator.WithAllowedOrigins(cfg.Server.CORSOrigins)).Routes(r)

	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() { met.SetActiveSessions(svc.ActiveSessionCount()) }).ServeHTTP(w, r)
	})

	addr := ":" + cfg.Server.Port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", cfg.Server.Port,
		"decision_url", cfg.Decision.URL,
		"log_level", cfg.Log.Level,
		"debug_mode", cfg.Session.DebugMode,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}
	svc.Close(ctx)

	log.Info("server stopped")
}

// newDecisioner returns the HTTP decisioning client when a decision URL is configured.
// Otherwise streams are stitched from local fixtures and the decisioning API is served
// by this process under /decision.
func newDecisioner(cfg *config.Config, log *slog.Logger, met *metrics.Metrics, r chi.Router) (dai.Decisioner, error) {
	if cfg.Decision.URL != "" {
		return decision.NewClient(cfg.Decision.URL, cfg.Decision.Timeout,
			decision.WithClientLogger(log),
			decision.WithBreakerListener(func(_, to gobreaker.State) { met.SetBreakerState(to) }),
		), nil
	}

	fixtures, err := decision.LoadFixtures(cfg.Decision.FixturesPath)
	if err != nil {
		return nil, err
	}
	fs := decision.NewFixtureService(fixtures, cfg.Server.PublicBaseURL+"/decision", log)
	r.Route("/decision", decision.NewHandler(fs, log).Routes)
	log.Info("serving fixture streams", "path", cfg.Decision.FixturesPath, "streams", len(fixtures.Streams))
	return fs, nil
}

func sessionSettings(c config.SessionConfig) dai.Settings {
	return dai.Settings{
		DebugMode:              c.DebugMode,
		RequestTimeout:         c.RequestTimeout,
		RefreshInterval:        c.RefreshInterval,
		Countdown:              c.Countdown,
		SkipPlayedBreaks:       c.SkipPlayedBreaks,
		Snapback:               c.Snapback,
		DisablePersonalizedAds: c.DisablePersonalizedAds,
		EnableAgeRestriction:   c.EnableAgeRestriction,
	}
}
