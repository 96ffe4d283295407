package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/alcounit/jserrorcollector/internal/service"
	"github.com/alcounit/jserrorcollector/pkg/auth"
	"github.com/alcounit/jserrorcollector/pkg/env"
	"github.com/alcounit/jserrorcollector/pkg/extension"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const requestIdHeader = "X-Request-Id"

type serveConfig struct {
	listenAddr      string
	hubURL          string
	authFile        string
	inject          bool
	bidi            bool
	maxRequestBytes int
	consoleLogLevel string
	drainTimeout    time.Duration
	shutdownTimeout time.Duration
}

func getCmdServe(gs *globalState) *cobra.Command {
	var cfg serveConfig

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the hub proxy and the error drain API",
		Long: `Run an HTTP service in front of a Selenium hub.

  New sessions relayed through the service get the collector extension
  registered with their browser profile. Collected errors of a session are
  drained with GET /jserrors/v1/sessions/{sessionId}.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), gs, cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.listenAddr, "listen", env.GetEnvOrDefault("LISTEN_ADDR", ":4444"), "listen address")
	flags.StringVar(&cfg.hubURL, "hub", env.GetEnvOrDefault("SELENIUM_URL", "http://selenium-hub:4444/wd/hub"), "upstream Selenium hub URL")
	flags.StringVar(&cfg.authFile, "auth-file", env.GetEnvOrDefault("AUTH_FILE", ""), "JSON or YAML users file enabling basic auth")
	flags.BoolVar(&cfg.inject, "inject", env.GetEnvBoolOrDefault("INJECT_EXTENSION", true), "register the collector extension with new sessions")
	flags.BoolVar(&cfg.bidi, "bidi", env.GetEnvBoolOrDefault("ENABLE_BIDI", false), "request a BiDi endpoint for new sessions and relay it")
	flags.IntVar(&cfg.maxRequestBytes, "max-request-bytes", env.GetEnvIntOrDefault("MAX_REQUEST_BYTES", 32<<20), "size limit of a new session request")
	consoleLevelFlag(flags, &cfg.consoleLogLevel)
	flags.DurationVar(&cfg.drainTimeout, "drain-timeout", env.GetEnvDurationOrDefault("DRAIN_TIMEOUT", 30*time.Second), "timeout of one drain against the hub")
	flags.DurationVar(&cfg.shutdownTimeout, "shutdown-timeout", env.GetEnvDurationOrDefault("SHUTDOWN_TIMEOUT", 10*time.Second), "graceful shutdown timeout")

	return cmd
}

func runServe(ctx context.Context, gs *globalState, cfg serveConfig) error {
	log := gs.logger

	if cfg.listenAddr == "" {
		return errors.New("LISTEN_ADDR must be provided")
	}

	if err := extension.ValidateConsoleLevel(cfg.consoleLogLevel); err != nil {
		return err
	}

	hub, err := url.Parse(cfg.hubURL)
	if err != nil || hub.Host == "" {
		return fmt.Errorf("invalid hub url %q", cfg.hubURL)
	}

	var store *auth.AuthStore
	if cfg.authFile != "" {
		if store, err = auth.LoadFromFile(gs.fs, cfg.authFile); err != nil {
			return err
		}
	}

	registry := prometheus.NewRegistry()
	svc := service.NewService(service.ServiceConfig{
		HubURL:          hub,
		InjectExtension: cfg.inject,
		EnableBiDi:      cfg.bidi,
		ConsoleLogLevel: cfg.consoleLogLevel,
		DrainTimeout:    cfg.drainTimeout,
		MaxRequestBytes: int64(cfg.maxRequestBytes),
	}, service.NewMetrics(registry))

	srv := &http.Server{
		Addr:    cfg.listenAddr,
		Handler: newRouter(svc, log, store, registry),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("hub", hub.Redacted()).Msgf("HTTP server listening %s", cfg.listenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown: %w", err)
	}
	return nil
}

func newRouter(svc *service.Service, log zerolog.Logger, store *auth.AuthStore, gatherer prometheus.Gatherer) http.Handler {
	router := chi.NewRouter()
	router.Use(requestLogger(log))

	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	router.Group(func(r chi.Router) {
		if store != nil {
			r.Use(store.BasicAuth("jserrors"))
		}

		selenium := chi.NewRouter()
		selenium.Post("/session", svc.CreateSession)
		selenium.Route("/session/{sessionId}", func(r chi.Router) {
			r.HandleFunc("/*", svc.ProxySession)
		})
		selenium.Get("/status", svc.SessionStatus)

		r.Route("/jserrors/v1/sessions/{sessionId}", func(r chi.Router) {
			r.Get("/", svc.ReadErrors)
			r.Post("/drain", svc.ReadErrors)
		})

		r.Mount("/wd/hub", selenium)
		r.Mount("/", selenium)
	})

	return router
}

func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(rw http.ResponseWriter, req *http.Request) {
			reqId := uuid.NewString()

			logger := log.With().
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Str("reqId", reqId).
				Logger()

			rw.Header().Set(requestIdHeader, reqId)
			ctx := logger.WithContext(req.Context())

			next.ServeHTTP(rw, req.WithContext(ctx))
		}
		return http.HandlerFunc(fn)
	}
}
