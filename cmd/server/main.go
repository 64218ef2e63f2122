// Aviya - conversational companion server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/aviya/internal/agent"
	"github.com/ashureev/aviya/internal/api"
	"github.com/ashureev/aviya/internal/completion"
	"github.com/ashureev/aviya/internal/config"
	"github.com/ashureev/aviya/internal/embellish"
	"github.com/ashureev/aviya/internal/identity"
	"github.com/ashureev/aviya/internal/middleware"
	"github.com/ashureev/aviya/internal/realtime"
	"github.com/ashureev/aviya/internal/session"
	"github.com/ashureev/aviya/internal/store"
	"github.com/ashureev/aviya/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "session_store", cfg.Session.Store)

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	sessions, err := newSessionStore(cfg)
	if err != nil {
		slog.Error("Failed to initialize session store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := sessions.Close(); closeErr != nil {
			slog.Error("Failed to close session store", "error", closeErr)
		}
	}()

	if cfg.Completion.APIKey == "" {
		slog.Warn("No completion API key set, every reply will be the fallback")
	}
	gateway := completion.NewOpenAIGateway(completion.Config{
		BaseURL:               cfg.Completion.BaseURL,
		APIKey:                cfg.Completion.APIKey,
		Model:                 cfg.Completion.Model,
		MaxTokens:             cfg.Completion.MaxTokens,
		Temperature:           cfg.Completion.Temperature,
		Timeout:               cfg.Completion.Timeout,
		SurfaceProviderErrors: cfg.Completion.SurfaceProviderErrors,
	})

	// Initialize services.
	linker := identity.NewLinker(repo, cfg.CreatorEmail)
	chatService := agent.NewService(sessions, repo, gateway, embellish.New(embellish.NewSource(cfg.EmbellishSeed)))
	chatService.SetPromoter(linker)
	cm := realtime.NewConnectionManager()

	providers := identity.NewRegistry(configuredProviders(cfg)...)
	if providers.Len() == 0 {
		slog.Warn("No OAuth providers configured, sign-in is disabled")
	}
	redirect := cfg.FrontendURL
	if redirect == "" {
		redirect = "/"
	}

	// Initialize handlers.
	healthHandler := api.NewHandler(map[string]api.Pinger{
		"database": repo,
		"sessions": sessions,
	})
	chatHandler := agent.NewHandler(chatService, agent.HandlerConfig{
		RateLimitRequests: cfg.RateLimit.RequestsPerWindow,
		RateLimitWindow:   cfg.RateLimit.WindowDuration,
		MaxBodySize:       cfg.MaxRequestBodyBytes,
	})
	defer chatHandler.Close()
	authHandler := identity.NewHandler(providers, linker, repo, identity.HandlerConfig{
		LoginTTL:    cfg.LoginSessionTTL,
		RedirectURL: redirect,
		Secure:      !cfg.IsDevelopment(),
		OnLogout: func(identityID string) {
			cm.CloseOwner("id:" + identityID)
		},
	})
	allowedOrigin := cfg.FrontendURL
	if allowedOrigin == "" {
		allowedOrigin = "*"
	}
	wsHandler := realtime.NewWebSocketHandler(chatService, cm, allowedOrigin, cfg.IsDevelopment(), cfg.MaxRequestBodyBytes)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.Metrics)
	r.Use(middleware.CORS([]string{allowedOrigin}))
	r.Use(identity.Middleware(repo))

	// Public routes.
	r.Get("/api/health", healthHandler.Health)
	r.Handle("/metrics", promhttp.Handler())

	authHandler.Routes(r)
	chatHandler.RegisterRoutes(r)

	// WebSocket endpoint.
	r.Get("/ws/chat", wsHandler.ServeHTTP)

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// No WriteTimeout: /ws/chat sockets are long-lived.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	identity.StartCleanupWorker(ctx, repo, identity.DefaultCleanupInterval)

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...", "open_sockets", cm.Count())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

func newSessionStore(cfg *config.Config) (session.Store, error) {
	if cfg.Session.Store == config.SessionStoreRedis {
		s, err := session.NewRedisStore(session.RedisConfig{
			Addr:     cfg.Session.RedisAddr,
			Password: cfg.Session.RedisPassword,
			DB:       cfg.Session.RedisDB,
		}, cfg.Session.TTL)
		if err != nil {
			return nil, err
		}
		slog.Info("Session store connected", "backend", "redis", "addr", cfg.Session.RedisAddr)
		return s, nil
	}
	slog.Info("Session store ready", "backend", "memory", "max_entries", cfg.Session.MaxEntries)
	return session.NewMemoryStore(cfg.Session.MaxEntries, cfg.Session.TTL), nil
}

// configuredProviders returns a provider for every client id that is set.
func configuredProviders(cfg *config.Config) []identity.Provider {
	var providers []identity.Provider
	if cfg.OAuth.GoogleClientID != "" {
		providers = append(providers, identity.NewGoogleProvider(
			cfg.OAuth.GoogleClientID, cfg.OAuth.GoogleClientSecret, cfg.CallbackURL(identity.ProviderGoogle)))
	}
	if cfg.OAuth.MicrosoftClientID != "" {
		providers = append(providers, identity.NewMicrosoftProvider(
			cfg.OAuth.MicrosoftClientID, cfg.OAuth.MicrosoftClientSecret,
			cfg.CallbackURL(identity.ProviderMicrosoft), cfg.OAuth.MicrosoftTenant))
	}
	return providers
}
