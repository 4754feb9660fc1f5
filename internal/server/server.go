// Package server wires the application together and runs the HTTP server.
//
// COMPOSITION ROOT:
// Everything is built here, in dependency order:
//
//	config → sqlstore.DB → policy.Engine → image storage → event publisher
//	       → services → handlers → routes
//
// Each layer only receives what it needs: services get repository
// interfaces, handlers get services. Optional collaborators (JWT secret,
// GitHub OAuth, image bucket, broker) degrade to "not configured" instead of
// stopping the server.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/lunchbox/internal/auth"
	"github.com/sakif/lunchbox/internal/config"
	"github.com/sakif/lunchbox/internal/events"
	"github.com/sakif/lunchbox/internal/handler"
	"github.com/sakif/lunchbox/internal/metrics"
	"github.com/sakif/lunchbox/internal/middleware"
	"github.com/sakif/lunchbox/internal/policy"
	"github.com/sakif/lunchbox/internal/repository/sqlstore"
	"github.com/sakif/lunchbox/internal/service"
	"github.com/sakif/lunchbox/internal/storage"
)

// Server owns the router and every long-lived resource. Start closes them
// on shutdown.
type Server struct {
	router    *chi.Mux
	cfg       *config.Config
	logger    *slog.Logger
	store     *sqlstore.DB
	publisher events.Publisher
	gcs       *gcs.Client // nil when uploads are disabled
}

// New builds the full dependency graph. On error, anything already opened
// is closed again.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if err := EnsureDataDir(cfg); err != nil {
		return nil, err
	}

	store, err := sqlstore.Open(ctx, cfg.Store.Driver, cfg.Store.DSN, logger)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		cfg:    cfg,
		logger: logger,
		store:  store,
	}

	images, err := s.imageStore(ctx)
	if err != nil {
		s.close()
		return nil, err
	}
	s.publisher = events.NewPublisher(cfg.Events.AMQPURL, cfg.Events.Exchange, logger)

	if err := s.setupRoutes(ctx, images); err != nil {
		s.close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// imageStore returns a GCS-backed store when a bucket is configured, and a
// store that rejects uploads otherwise.
func (s *Server) imageStore(ctx context.Context) (storage.ImageStore, error) {
	if !s.cfg.UploadsEnabled() {
		s.logger.Warn("IMAGE_BUCKET not set; image uploads are disabled")
		return storage.Disabled{}, nil
	}
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating storage client: %w", err)
	}
	s.gcs = client
	bucket := storage.NewGCSBucket(client, s.cfg.Images.Bucket)
	return storage.NewObjectStore(bucket, s.cfg.Images.Prefix, s.cfg.Images.PublicBaseURL), nil
}

// setupRoutes builds services and handlers and mounts them.
//
// MIDDLEWARE ORDER:
//  1. RequestID, RealIP: request metadata used by the logger
//  2. Logger, metrics.HTTP: one log line and one sample per request
//  3. Recoverer: panics become 500s (and are still logged and counted)
//
// Per group, OptionalAuth or RequireAuth attaches the user.
func (s *Server) setupRoutes(ctx context.Context, images storage.ImageStore) error {
	cfg := s.cfg
	logger := s.logger

	var tokens *auth.TokenService
	if cfg.AuthEnabled() {
		t, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.TokenDuration())
		if err != nil {
			return err
		}
		tokens = t
	} else {
		logger.Warn("JWT_SECRET not set; sign-in and authenticated routes are disabled")
	}

	authz, err := policy.New(ctx)
	if err != nil {
		return err
	}

	emitter := events.NewEmitter(s.publisher, logger)

	profileSvc, err := service.NewProfileService(s.store, authz, service.DefaultProfileCacheSize, logger)
	if err != nil {
		return err
	}
	authSvc := service.NewAuthService(s.store, profileSvc, tokens, auth.NewPasswordService(), emitter, logger)
	friendSvc := service.NewFriendService(s.store, profileSvc, authz, emitter, logger)
	listSvc := service.NewListService(s.store, s.store, images, authz, emitter, logger)
	restaurantSvc := service.NewRestaurantService(s.store, s.store, images, authz, emitter, cfg.Images.MaxBytes, logger)
	commentSvc := service.NewCommentService(s.store, s.store, friendSvc, profileSvc, authz, emitter, logger)

	var github *auth.GitHubProvider
	if cfg.GitHubEnabled() {
		github = auth.NewGitHubProvider(cfg.Auth.GitHub.ClientID, cfg.Auth.GitHub.ClientSecret, cfg.Auth.GitHub.CallbackURL)
	}
	// cookies are Secure when the public URL is https
	secure := strings.HasPrefix(cfg.Auth.GitHub.CallbackURL, "https://")

	authH := handler.NewAuthHandler(authSvc, github, secure, logger)
	profileH := handler.NewProfileHandler(authSvc, profileSvc, logger)
	listH := handler.NewListHandler(listSvc, logger)
	restaurantH := handler.NewRestaurantHandler(restaurantSvc, cfg.Images.MaxBytes, logger)
	commentH := handler.NewCommentHandler(commentSvc, logger)
	friendH := handler.NewFriendHandler(friendSvc, logger)

	r := s.router
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(metrics.HTTP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/auth", func(r chi.Router) {
		r.Use(auth.OptionalAuth(tokens), middleware.CaptureUser)
		r.Post("/signup", authH.HandleSignUp)
		r.Post("/signin", authH.HandleSignIn)
		r.Post("/signout", authH.HandleSignOut)
		if github != nil {
			r.Get("/github/login", authH.HandleGitHubLogin)
			r.Get("/github/callback", authH.HandleGitHubCallback)
		}
	})

	r.Route("/api", func(r chi.Router) {
		// public reads
		r.Group(func(r chi.Router) {
			r.Use(auth.OptionalAuth(tokens), middleware.CaptureUser)
			r.Get("/lists", listH.HandleList)
			r.Get("/lists/{id}", listH.HandleGet)
			r.Get("/lists/{id}/restaurants", restaurantH.HandleListForList)
			r.Get("/restaurants/{id}", restaurantH.HandleGet)
			r.Get("/restaurants/{id}/comments", commentH.HandleList)
			r.Get("/profiles/{id}", profileH.HandleGet)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(tokens), middleware.CaptureUser)
			r.Get("/me", profileH.HandleMe)
			r.Patch("/me", profileH.HandleUpdateMe)
			r.Get("/me/lists", listH.HandleMine)

			r.Post("/lists", listH.HandleCreate)
			r.Patch("/lists/{id}", listH.HandleUpdate)
			r.Delete("/lists/{id}", listH.HandleDelete)

			r.Post("/lists/{id}/restaurants", restaurantH.HandleCreate)
			r.Patch("/restaurants/{id}", restaurantH.HandleUpdate)
			r.Delete("/restaurants/{id}", restaurantH.HandleDelete)

			r.Post("/restaurants/{id}/comments", commentH.HandlePost)

			r.Get("/friends", friendH.HandleList)
			r.Get("/friends/search", friendH.HandleSearch)
			r.Post("/friends/requests", friendH.HandleSend)
			r.Post("/friends/requests/{id}/respond", friendH.HandleRespond)
		})
	})

	return nil
}

// handleHealth reports whether the store answers.
//
// HTTP: GET /healthz
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Error("health check failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"unavailable"}`))
		return
	}
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// Start serves until SIGINT/SIGTERM, then drains in-flight requests for up
// to 30 seconds and closes the store, publisher and storage client.
func (s *Server) Start() error {
	defer s.close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.cfg.Server.Port),
			slog.String("store", s.cfg.Store.Driver),
			slog.Bool("auth", s.cfg.AuthEnabled()),
			slog.Bool("github", s.cfg.GitHubEnabled()),
			slog.Bool("uploads", s.cfg.UploadsEnabled()),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}
	return nil
}

// close releases every resource New opened. Safe to call on a partially
// built Server.
func (s *Server) close() {
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			s.logger.Warn("closing event publisher", slog.String("error", err.Error()))
		}
	}
	if s.gcs != nil {
		if err := s.gcs.Close(); err != nil {
			s.logger.Warn("closing storage client", slog.String("error", err.Error()))
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn("closing store", slog.String("error", err.Error()))
		}
	}
}

// EnsureDataDir creates the parent directory of a file-backed SQLite DSN,
// like mkdir -p.
func EnsureDataDir(cfg *config.Config) error {
	if cfg.Store.Driver != config.DriverSQLite {
		return nil
	}
	dsn := cfg.Store.DSN
	if dsn == ":memory:" || strings.HasPrefix(dsn, "file:") {
		return nil
	}
	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating database directory %s: %w", dir, err)
	}
	return nil
}
