package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"

	"github.com/threatdocs/threatdocs-backend/internal/docprocess/processor"
	"github.com/threatdocs/threatdocs-backend/internal/template/events"
	"github.com/threatdocs/threatdocs-backend/internal/template/handler"
	"github.com/threatdocs/threatdocs-backend/internal/template/repository"
	"github.com/threatdocs/threatdocs-backend/internal/template/service"
	"github.com/threatdocs/threatdocs-backend/internal/template/validation"
	"github.com/threatdocs/threatdocs-backend/pkg/config"
	"github.com/threatdocs/threatdocs-backend/pkg/database"
	"github.com/threatdocs/threatdocs-backend/pkg/httputil"
	"github.com/threatdocs/threatdocs-backend/pkg/logger"
	"github.com/threatdocs/threatdocs-backend/pkg/messaging"
)

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation("template-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New("template-service", cfg.Server.Environment)
	log.Info().Msg("starting Template Service")

	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer rmq.Close()

	publisher, err := events.NewTemplateEventPublisher(rmq, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create event publisher")
	}

	// Redis is an optional fast path in front of the relational match
	// cache; the service runs fine without it
	var redisClient *redis.Client
	if cfg.Cache.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.Addr,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			log.Warn().Err(err).Msg("redis unreachable, continuing without fast cache")
			redisClient = nil
		}
	}

	// Repositories
	templateRepo := repository.NewTemplateRepository(db)
	versionRepo := repository.NewVersionRepository(db)
	inheritanceRepo := repository.NewInheritanceRepository(db)
	matchCacheRepo := repository.NewMatchCacheRepository(db)

	// Services
	templateValidator := validation.New(validation.Options{StrictZones: cfg.Validation.StrictZones})
	resolver := service.NewInheritanceResolver(templateRepo, inheritanceRepo, cfg.Matching.MaxInheritanceDepth, log)
	// Redis entries live under cache.ttl; the relational rows expire on
	// the matcher's matching.cache_ttl
	redisTTL := cfg.Cache.TTL
	if redisTTL <= 0 {
		redisTTL = cfg.Matching.CacheTTL
	}
	matchCache := service.NewLayeredMatchCache(matchCacheRepo, redisClient, redisTTL, log)
	matcher := service.NewMatcher(templateRepo, matchCache, &cfg.Matching, log)
	extractor := service.NewFieldExtractor(log)
	templateService := service.NewTemplateService(
		templateRepo, versionRepo, inheritanceRepo, matchCache,
		resolver, templateValidator, publisher, log)
	exchangeService := service.NewExchangeService(templateRepo, templateRepo, inheritanceRepo, versionRepo, templateValidator, log)

	// Document processors
	registry := processor.NewRegistry(
		processor.NewTextProcessor(log),
		processor.NewOCRProcessor(cfg.Processing.OCRLanguages, log),
	)

	// Handlers
	templateHandler := handler.NewTemplateHandler(templateService, templateValidator, log)
	matchingHandler := handler.NewMatchingHandler(matcher, extractor, templateService, registry, publisher, log)
	exchangeHandler := handler.NewExchangeHandler(exchangeService, publisher, log)

	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"service":  "template-service",
			"database": db.Health(r.Context()),
			"rabbitmq": rmq.Health(),
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httputil.JWTAuth(&cfg.JWT))
		handler.Routes(r, templateHandler, matchingHandler, exchangeHandler)
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
