package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/capitalize-ai/traychat/internal/handler"
	"github.com/capitalize-ai/traychat/internal/middleware"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the local bridge the tray window talks to",
		Long: `Starts the loopback HTTP bridge. When no bridge secret is configured a
random one is generated and a bearer token for the window is printed to stdout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func runServe(ctx context.Context, opts *rootOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := loadApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close()
	log := a.log

	log.Info("starting bridge")

	if err := a.connectMirror(ctx); err != nil {
		return err
	}
	if err := a.buildBroker(); err != nil {
		return err
	}

	// Prime the cached exit flag before the window asks for it.
	if _, err := a.store.Load(a.cfg.DefaultModel, a.cfg.DefaultPreventExit); err != nil {
		log.Warn("failed to load settings, exit prevention left at default", zap.Error(err))
	}

	if a.cfg.BridgeSecret == "" {
		secret, err := randomSecret()
		if err != nil {
			return err
		}
		a.cfg.BridgeSecret = secret

		token, err := middleware.IssueToken(secret, "webview", middleware.DefaultScopes, a.cfg.BridgeTokenTTL)
		if err != nil {
			return fmt.Errorf("failed to issue bridge token: %w", err)
		}
		fmt.Fprintln(os.Stdout, token)
	}

	server := &http.Server{
		Addr:              a.cfg.BridgeAddr,
		Handler:           newRouter(a),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("bridge listening", zap.String("addr", a.cfg.BridgeAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			log.Error("server error", zap.Error(err))
			return err
		}
	}

	log.Info("shutting down bridge")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("bridge forced to shutdown", zap.Error(err))
	}

	log.Info("bridge stopped")
	return nil
}

// newRouter builds the bridge routes.
func newRouter(a *app) http.Handler {
	healthHandler := handler.NewHealthHandler(a.natsClient)
	bridgeHandler := handler.NewBridgeHandler(a.broker, a.store, a.log)

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(a.log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(a.cfg.AllowedOrigins))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(a.cfg.BridgeSecret))

		r.With(middleware.RequireScope(middleware.ScopeSettings)).
			Get("/exit-prevention", bridgeHandler.ExitPrevention)

		r.Route("/invoke", func(r chi.Router) {
			r.Use(middleware.RateLimit(a.cfg.RateLimitRequests, a.cfg.RateLimitWindow))

			r.With(middleware.RequireScope(middleware.ScopeChat)).
				Post("/handle_request", bridgeHandler.HandleRequest)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireScope(middleware.ScopeSettings))
				r.Post("/load_settings", bridgeHandler.LoadSettings)
				r.Post("/save_settings", bridgeHandler.SaveSettings)
				r.Post("/set_exit_prevention", bridgeHandler.SetExitPrevention)
			})
		})
	})

	return r
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate bridge secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
