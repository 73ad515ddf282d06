package server

import (
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"shopline/internal/config"
	custommiddleware "shopline/internal/middleware"
	"shopline/internal/repository"
	"shopline/internal/service"
	"shopline/internal/transport"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Server struct {
	*http.Server
	config *config.Config
	logger *zap.Logger
	db     *sql.DB
}

// NewServer wires repositories, services, and handlers into the two route
// trees: the public storefront tree and the admin tree. redisClient may be
// nil, in which case rate limiting is disabled.
func NewServer(cfg *config.Config, logger *zap.Logger, db *sql.DB, redisClient *redis.Client) *Server {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Compress(5))
	router.Use(custommiddleware.CORSMiddleware(cfg.Server.AllowedOrigins, cfg.Server.Env == "development"))
	router.Use(custommiddleware.LoggingMiddleware(logger))
	router.Use(custommiddleware.ErrorHandlingMiddleware(logger))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Repositories
	userRepo := repository.NewUserRepository(db)
	productRepo := repository.NewProductRepository(db)
	orderRepo := repository.NewOrderRepository(db)

	// Services
	accessExpiry := time.Duration(cfg.JWT.AccessExpiry) * time.Minute
	userService := service.NewUserService(userRepo, cfg.JWT.Secret, accessExpiry)
	productService := service.NewProductService(productRepo, logger)
	orderService := service.NewOrderService(orderRepo, productRepo, logger)

	// Handlers
	userHandler := transport.NewUserHandler(userService, logger)
	productHandler := transport.NewProductHandler(productService, logger)
	orderHandler := transport.NewOrderHandler(orderService, logger)

	authMiddleware := custommiddleware.AuthMiddleware(cfg.JWT.Secret, logger)

	// Rate limiting guards the credential endpoints when Redis is available
	rateLimit := func(next http.Handler) http.Handler { return next }
	if redisClient != nil {
		rateLimit = custommiddleware.RateLimitMiddleware(redisClient, custommiddleware.RateLimitConfig{
			RequestsPerWindow: cfg.RateLimit.RequestsPerWindow,
			Window:            time.Duration(cfg.RateLimit.WindowSeconds) * time.Second,
			KeyPrefix:         "rate_limit:auth",
		}, logger)
	}

	// Public storefront tree
	router.Group(func(r chi.Router) {
		r.Use(rateLimit)
		userHandler.RegisterRoutes(r, authMiddleware)
	})
	productHandler.RegisterRoutes(router)
	orderHandler.RegisterRoutes(router, authMiddleware)

	// Admin tree: login is public, everything else re-checks the admin role
	// on every request
	router.Route("/api/admin", func(r chi.Router) {
		r.With(rateLimit).Post("/auth/login", userHandler.AdminLogin)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware)
			r.Use(custommiddleware.RequireAdmin(logger))
			productHandler.RegisterAdminRoutes(r)
			orderHandler.RegisterAdminRoutes(r)
		})
	})

	server := &Server{
		Server: &http.Server{
			Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
			Handler:      router,
			IdleTimeout:  time.Minute,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		config: cfg,
		logger: logger,
		db:     db,
	}

	return server
}

// Close releases server resources.
func (s *Server) Close() error {
	s.logger.Info("Closing server resources")

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Failed to close database connection", zap.Error(err))
		}
	}

	s.logger.Sync()
	return nil
}
