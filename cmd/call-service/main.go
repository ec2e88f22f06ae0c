package main

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"callbridge-backend/internal/database"
	callHandler "callbridge-backend/internal/handler/http/call"
	wsHandler "callbridge-backend/internal/handler/ws"
	"callbridge-backend/internal/middleware"
	cockroachRepo "callbridge-backend/internal/repository/cockroach"
	"callbridge-backend/internal/repository/memory"
	minioRepo "callbridge-backend/internal/repository/minio"
	redisRepo "callbridge-backend/internal/repository/redis"
	"callbridge-backend/internal/service/analysis"
	callService "callbridge-backend/internal/service/call"
	"callbridge-backend/pkg/env"
	"callbridge-backend/pkg/jwt"
	"callbridge-backend/pkg/logger"
	"callbridge-backend/pkg/metrics"
)

func main() {
	ctx := context.Background()

	logger.InitDefault()
	defer logger.Sync()

	// 1. Setup JWT Manager
	jwtSecret := env.GetStringFromFile("JWT_SECRET", "")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET environment variable is required")
	}
	if len(jwtSecret) < 32 {
		log.Fatal("JWT_SECRET must be at least 32 characters")
	}

	jwtManager := jwt.NewJWTManager(jwtSecret, 15*time.Minute, 30*24*time.Hour)

	// 2. Connect to CockroachDB for durable call history with retry logic
	dbConfig := &database.CockroachConfig{
		Host:     env.GetString("DB_HOST", "localhost"),
		Port:     env.GetInt("DB_PORT", 26257),
		User:     env.GetString("DB_USER", "root"),
		Password: env.GetStringFromFile("DB_PASSWORD", ""),
		Database: env.GetString("DB_NAME", "callbridge"),
		SSLMode:  env.GetString("DB_SSLMODE", "disable"),
	}

	var db *database.CockroachDB
	var err error

	maxRetries := 5
	baseDelay := 1 * time.Second
	maxDelay := 30 * time.Second

	db, err = database.NewCockroachDB(ctx, dbConfig)
	if err != nil {
		// Retry with exponential backoff
		for attempt := 2; attempt <= maxRetries; attempt++ {
			delay := time.Duration(float64(baseDelay) * math.Pow(2, float64(attempt-1)))
			if delay > maxDelay {
				delay = maxDelay
			}
			log.Printf("⚠️  CockroachDB connection attempt %d failed: %v. Retrying in %v...", attempt-1, err, delay)
			time.Sleep(delay)

			db, err = database.NewCockroachDB(ctx, dbConfig)
			if err == nil {
				break
			}
		}
	}

	if err != nil {
		log.Printf("Warning: Failed to connect to CockroachDB after %d attempts: %v", maxRetries, err)
		log.Println("Running without durable call history persistence")
	} else {
		defer db.Close()
		log.Println("✅ Connected to CockroachDB")
	}

	// 3. Initialize Redis for history indexing and token revocation checks
	redisConfig := &database.RedisConfig{
		Host:     env.GetString("REDIS_HOST", "localhost"),
		Port:     env.GetInt("REDIS_PORT", 6379),
		Password: env.GetStringFromFile("REDIS_PASSWORD", ""),
		DB:       0,
		PoolSize: 10,
		Timeout:  5 * time.Second,
	}

	redisDB, err := database.NewRedisDB(ctx, redisConfig)
	if err != nil {
		log.Printf("Warning: Failed to connect to Redis: %v", err)
		redisDB = nil
	} else {
		defer redisDB.Close()
		log.Println("✅ Connected to Redis")
	}

	// 4. Select the call history store: CockroachDB when available, Redis as
	// a fallback index, in-memory last.
	retention := env.GetInt("HISTORY_RETENTION", memory.DefaultHistoryRetention)

	var historyStore callService.HistoryStore
	switch {
	case db != nil:
		historyStore = cockroachRepo.NewHistoryRepository(db.Pool)
	case redisDB != nil:
		historyStore = redisRepo.NewHistoryRepository(redisDB.Client, retention)
		log.Println("ℹ️  Using Redis call history store")
	default:
		historyStore = memory.NewHistoryStore(retention)
		log.Println("ℹ️  Using in-memory call history store")
	}

	// 5. Select the recording store: MinIO when configured, in-memory otherwise
	var recordingStore callService.RecordingStore
	if minioEndpoint := env.GetString("MINIO_ENDPOINT", ""); minioEndpoint != "" {
		store, err := minioRepo.NewRecordingStore(
			minioEndpoint,
			env.GetStringFromFile("MINIO_ACCESS_KEY", ""),
			env.GetStringFromFile("MINIO_SECRET_KEY", ""),
			env.GetString("MINIO_BUCKET", "callbridge-recordings"),
			env.GetBool("MINIO_USE_SSL", false),
		)
		if err != nil {
			log.Fatalf("Failed to initialize MinIO recording store: %v", err)
		}
		recordingStore = store
		log.Println("✅ Connected to MinIO")
	} else {
		recordingStore = memory.NewRecordingStore()
		log.Println("ℹ️  Using in-memory recording store")
	}

	// 6. Analysis pipeline hand-off
	var submitter callService.AnalysisSubmitter
	if endpoint := env.GetString("ANALYSIS_ENDPOINT", ""); endpoint != "" {
		submitter = analysis.NewSubmitter(endpoint)
		log.Printf("✅ Analysis hand-off enabled: %s", endpoint)
	} else {
		submitter = analysis.NoopSubmitter{}
	}

	// 7. Initialize Metrics
	appMetrics := metrics.NewMetrics("call-service")
	prometheusMiddleware := middleware.NewPrometheusMiddleware(appMetrics)

	// 8. Initialize the signaling hub, relay and call service. The hub is the
	// service's transport and dispatches inbound frames back into it.
	signalingHub := wsHandler.NewSignalingHub(appMetrics)
	relay := callService.NewRelay(signalingHub, appMetrics)
	registry := callService.NewRegistry(recordingStore)
	callSvc := callService.NewService(registry, historyStore, recordingStore, relay, submitter, appMetrics)
	signalingHub.AttachCallService(callSvc)

	callHdlr := callHandler.NewHandler(callSvc)

	// 9. Setup Gin Router
	router := gin.New()

	trustedProxies := []string{}
	if os.Getenv("ENV") == "production" {
		trustedProxies = []string{
			"https://api.callbridge.io",
			"https://*.callbridge.io",
		}
	} else {
		trustedProxies = []string{
			"http://localhost:3000",
			"http://localhost:8080",
			"http://127.0.0.1:3000",
			"http://127.0.0.1:8080",
		}
	}
	router.SetTrustedProxies(trustedProxies)

	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORSMiddleware())
	router.Use(prometheusMiddleware.Handler())

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"service": "call-service",
			"time":    time.Now().UTC(),
		})
	})

	// Metrics endpoint (for Prometheus scraping)
	router.GET("/metrics", middleware.MetricsHandler())

	// Revocation checker
	var revocationChecker middleware.RevocationChecker
	if redisDB != nil {
		revocationChecker = middleware.NewRedisRevocationChecker(redisDB.Client)
	}

	// Call routes (all require authentication)
	v1 := router.Group("/v1/calls")
	v1.Use(middleware.AuthMiddleware(jwtManager, revocationChecker))
	{
		v1.POST("/initiate", callHdlr.InitiateCall)
		v1.POST("/:id/join", callHdlr.JoinCall)
		v1.POST("/:id/leave", callHdlr.LeaveCall)
		v1.POST("/:id/end", callHdlr.EndCall)
		v1.POST("/:id/signal", callHdlr.RelaySignal)

		// Recording lifecycle
		v1.POST("/:id/recording/start", callHdlr.StartRecording)
		v1.POST("/:id/recording/chunks", callHdlr.AppendRecordingChunk)
		v1.POST("/:id/recording/stop", callHdlr.StopRecording)

		v1.GET("/active", callHdlr.GetActiveCalls)
		v1.GET("/history", callHdlr.GetHistory)
		v1.GET("/:id", callHdlr.GetCall)

		// WebSocket endpoint for WebRTC signaling
		v1.GET("/ws/signaling", signalingHub.ServeWS)
	}

	// 10. Start server
	port := env.GetString("PORT", "8083")
	addr := fmt.Sprintf(":%s", port)

	log.Printf("🚀 Call Service starting on port %s\n", port)
	log.Println("📡 WebRTC Signaling: /v1/calls/ws/signaling")
	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
