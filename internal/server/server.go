package server

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"

	"github.com/entomo-labs/gdhcn-validator-go/app/internal/config"
	"github.com/entomo-labs/gdhcn-validator-go/app/internal/gdhcn"
	"github.com/entomo-labs/gdhcn-validator-go/app/internal/server/handlers"
	"github.com/entomo-labs/gdhcn-validator-go/app/internal/server/middleware"
)

type Server struct {
	pool    *pgxpool.Pool
	config  *config.ServerEnvironment
	logger  *slog.Logger
	router  *chi.Mux
	service *gdhcn.Service
	jwkSet  jwk.Set
}

func NewServer(
	pool *pgxpool.Pool,
	cfg *config.ServerEnvironment,
	logger *slog.Logger,
	service *gdhcn.Service,
	signingPublicKey *ecdsa.PublicKey,
) (*Server, error) {
	server := &Server{
		pool:    pool,
		config:  cfg,
		logger:  logger,
		router:  chi.NewRouter(),
		service: service,
	}

	jwkSet, err := buildJWKSet(signingPublicKey, cfg.DSCKeyID)
	if err != nil {
		return nil, fmt.Errorf("failed to build JWK set: %w", err)
	}
	server.jwkSet = jwkSet

	server.setupMiddleware()
	server.registerRoutes()

	return server, nil
}

// buildJWKSet converts the DSC public key to a one-key JWK set so external
// verifiers can discover it at /.well-known/jwks.json.
func buildJWKSet(publicKey *ecdsa.PublicKey, keyID string) (jwk.Set, error) {
	key, err := jwk.Import(publicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to import public key: %w", err)
	}
	if err := key.Set(jwk.KeyIDKey, keyID); err != nil {
		return nil, fmt.Errorf("failed to set kid: %w", err)
	}
	if err := key.Set(jwk.AlgorithmKey, jwa.ES256()); err != nil {
		return nil, fmt.Errorf("failed to set alg: %w", err)
	}
	if err := key.Set(jwk.KeyUsageKey, "sig"); err != nil {
		return nil, fmt.Errorf("failed to set use: %w", err)
	}

	set := jwk.NewSet()
	if err := set.AddKey(key); err != nil {
		return nil, fmt.Errorf("failed to add key to set: %w", err)
	}
	return set, nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(chimiddleware.Timeout(60 * time.Second))
	s.router.Use(middleware.RequestLogging(s.logger))
	s.router.Use(middleware.SecurityHeaders(s.config.Environment))
	s.router.Use(middleware.RequestSizeLimit(s.config.MaxRequestBytes))
	s.router.Use(middleware.RateLimit(s.config.RateLimitRPS, s.config.RateLimitBurst))
}

func (s *Server) registerRoutes() {
	s.router.Get("/health", handlers.HandleHealth)
	s.router.Get("/ready", handlers.HandleReadiness(s.pool))
	s.router.Get("/version", handlers.HandleVersion())

	s.router.Route("/v2", func(r chi.Router) {
		r.Post("/vshcIssuance", s.handleIssuance)
		r.Post("/vshcValidation", s.handleValidation)
		r.Post("/manifests/{manifestId}", s.handleManifest)
		r.Get("/ips-json/{id}", s.handleIPSJSON)
	})

	s.router.Get("/.well-known/jwks.json", handlers.HandleJWKS(s.jwkSet))
}

// Router exposes the configured handler, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) Start(ctx context.Context) error {
	serverAddr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	httpServer := &http.Server{
		Addr:         serverAddr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("service listening",
			slog.String("environment", s.config.Environment),
			slog.String("address", serverAddr))

		err := httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			serverErrors <- fmt.Errorf("server failed to start: %w", err)
		}
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), s.config.ServerShutdownTimeout)
	defer shutdownCancel()

	s.logger.Info("shutting down HTTP server")

	err := httpServer.Shutdown(shutdownCtx)
	if err != nil {
		s.logger.Warn("HTTP server shutdown error",
			slog.String("error", err.Error()))
		return fmt.Errorf("HTTP server shutdown failed: %w", err)
	}

	s.logger.Info("HTTP server shutdown complete")
	return nil
}

func (s *Server) DatabaseShutdown() {
	if s.pool != nil {
		s.pool.Close()
		s.logger.Info("database connection closed")
	}
}
