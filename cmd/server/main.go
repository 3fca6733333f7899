package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"astroshare/equipment-service/internal/client"
	"astroshare/equipment-service/internal/constants"
	"astroshare/equipment-service/internal/handler"
	"astroshare/equipment-service/internal/jobs"
	"astroshare/equipment-service/internal/policy"
	"astroshare/equipment-service/internal/repository"
	"astroshare/equipment-service/internal/service"
	"astroshare/equipment-service/pkg/auth"
	"astroshare/equipment-service/pkg/db"
	"astroshare/equipment-service/pkg/helpers"
	"astroshare/equipment-service/pkg/logger"
	"astroshare/equipment-service/pkg/metrics"
)

func main() {
	log := logger.NewLogger("equipment-service")

	if err := godotenv.Load(); err != nil {
		log.Debug("No .env file found, using environment variables")
	}

	conn, err := db.NewConnection(db.Config{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnv("DB_PORT", "3306"),
		User:     getEnv("DB_USER", "root"),
		Password: getEnv("DB_PASSWORD", ""),
		Database: getEnv("DB_DATABASE", "astroshare_db"),
	})
	if err != nil {
		log.WithField("error", err.Error()).Fatal("Failed to connect to database")
	}
	defer conn.Close()
	log.Info("Successfully connected to database")

	guard := db.NewSchemaGuard(conn.DB)
	if err := guard.ValidateTables(expectedSchemas()); err != nil {
		log.WithField("error", err.Error()).Fatal("Database schema mismatch")
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
		Password: getEnv("REDIS_PASSWORD", ""),
	})
	defer redisClient.Close()

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		log.WithField("error", err.Error()).Fatal("Failed to connect to Redis")
	}
	log.Info("Successfully connected to Redis")

	m := metrics.NewMetrics("equipment")
	stopStats := make(chan struct{})
	defer close(stopStats)
	go m.CollectDBStats(conn.DB, 15*time.Second, stopStats)

	// clients for the surrounding platform services
	notificationClient := client.NewNotificationClient(getEnv("NOTIFICATION_SERVICE_URL", "http://localhost:8061"))
	searchClient := client.NewSearchClient(getEnv("SEARCH_SERVICE_URL", "http://localhost:8062"))
	tokenValidator := auth.NewAuthServiceTokenValidator(getEnv("AUTH_SERVICE_URL", "http://localhost:8060"))

	// repositories
	itemRepo := repository.NewItemRepository(conn.DB)
	brandRepo := repository.NewBrandRepository(conn.DB)
	lockRepo := repository.NewLockRepository(conn.DB)
	cacheRepo := repository.NewCacheRepository(redisClient)

	dispatcher := jobs.NewRedisDispatcher(redisClient)
	reviewPolicy := policy.NewReviewPolicy()

	// services
	baseURL := getEnv("APP_BASE_URL", "https://astroshare.example.com")
	reviewService := service.NewReviewService(itemRepo, reviewPolicy, notificationClient, dispatcher, baseURL, log, m)
	listingService := service.NewListingService(itemRepo, brandRepo, log)
	aggregatesService := service.NewAggregatesService(cacheRepo, searchClient, log, m)
	itemService := service.NewItemService(itemRepo, brandRepo, reviewPolicy, log)
	lockService := service.NewLockService(lockRepo, reviewPolicy, log)

	// handlers
	validator := helpers.NewCustomValidator()
	equipmentHandler := handler.NewEquipmentHandler(
		listingService, reviewService, aggregatesService, itemService, lockService, validator, log,
	)
	authMiddleware := handler.NewAuthMiddleware(tokenValidator, log)
	createThrottle := handler.NewThrottle(constants.CreateThrottleRequests, constants.CreateThrottlePeriod)

	mux := http.NewServeMux()
	equipmentHandler.RegisterRoutes(mux, authMiddleware, createThrottle)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	var root http.Handler = mux
	root = metrics.HTTPMiddleware(m)(root)
	root = logger.HTTPMiddleware(log)(root)
	root = handler.RequestIDMiddleware(root)

	httpPort := getEnv("HTTP_PORT", "8063")
	server := &http.Server{
		Addr:         ":" + httpPort,
		Handler:      root,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithField("port", httpPort).Info("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithField("error", err.Error()).Fatal("Failed to serve HTTP")
		}
	}()

	// metrics on a separate port, not exposed through the gateway
	metricsPort := getEnv("METRICS_PORT", "9063")
	metricsServer := &http.Server{
		Addr:    ":" + metricsPort,
		Handler: metricsMux(),
	}
	go func() {
		log.WithField("port", metricsPort).Info("Metrics server listening")
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithField("error", err.Error()).Error("Failed to serve metrics")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithField("error", err.Error()).Error("Server shutdown failed")
	}
	metricsServer.Shutdown(shutdownCtx)
	log.Info("Server stopped")
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metrics.Handler())
	return mux
}

// expectedSchemas lists the columns this service reads and writes; startup
// fails fast when a migration has not been applied yet
func expectedSchemas() []db.TableSchema {
	return []db.TableSchema{
		{
			Name: "equipment_items",
			Columns: []db.ColumnType{
				{Name: "id", DataType: "bigint"},
				{Name: "klass", DataType: "varchar"},
				{Name: "name", DataType: "varchar"},
				{Name: "brand_id", DataType: "bigint", Nullable: true},
				{Name: "variant_of_id", DataType: "bigint", Nullable: true},
				{Name: "edit_proposal_target_id", DataType: "bigint", Nullable: true},
				{Name: "created_by_id", DataType: "bigint", Nullable: true},
				{Name: "reviewed_by_id", DataType: "bigint", Nullable: true},
				{Name: "reviewed_timestamp", DataType: "datetime", Nullable: true},
				{Name: "reviewer_decision", DataType: "varchar", Nullable: true},
				{Name: "reviewer_comment", DataType: "text", Nullable: true},
				{Name: "reviewer_rejection_reason", DataType: "varchar", Nullable: true},
				{Name: "reviewer_rejection_duplicate_of", DataType: "bigint", Nullable: true},
				{Name: "reviewer_rejection_duplicate_of_klass", DataType: "varchar", Nullable: true},
				{Name: "reviewer_rejection_duplicate_of_usage_type", DataType: "varchar", Nullable: true},
				{Name: "reviewer_lock", DataType: "bigint", Nullable: true},
				{Name: "reviewer_lock_timestamp", DataType: "datetime", Nullable: true},
				{Name: "edit_proposal_lock", DataType: "bigint", Nullable: true},
				{Name: "edit_proposal_lock_timestamp", DataType: "datetime", Nullable: true},
				{Name: "user_count", DataType: "bigint"},
				{Name: "image_count", DataType: "bigint"},
				{Name: "created_at", DataType: "datetime"},
				{Name: "updated_at", DataType: "datetime"},
				{Name: "deleted_at", DataType: "datetime", Nullable: true},
			},
		},
		{
			Name: "equipment_brands",
			Columns: []db.ColumnType{
				{Name: "id", DataType: "bigint"},
				{Name: "name", DataType: "varchar"},
				{Name: "created_at", DataType: "datetime"},
				{Name: "updated_at", DataType: "datetime"},
			},
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
