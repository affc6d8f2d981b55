// Package main is the application entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"comerse-go/internal/config"
	"comerse-go/internal/handler"
	"comerse-go/internal/middleware"
	"comerse-go/internal/model"
	"comerse-go/internal/pipeline"
	"comerse-go/internal/repository"
	"comerse-go/internal/service"
	"comerse-go/pkg/database"
	"comerse-go/pkg/embedding"
	"comerse-go/pkg/llm"
	"comerse-go/pkg/log"
	"comerse-go/pkg/queue"
	"comerse-go/pkg/search"
	"comerse-go/pkg/storage"
	"comerse-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
)

func main() {
	// 1. configuration
	cfg, err := config.Load("./configs/config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. logger
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("logger initialized")

	// 3. backing stores
	db, err := database.NewMySQL(cfg.Database.MySQL.DSN)
	if err != nil {
		log.Fatalf("mysql init failed: %v", err)
	}
	if err := db.AutoMigrate(
		&model.Tenant{},
		&model.APIKey{},
		&model.UsageEvent{},
		&model.PaymentOrder{},
		&model.TrainingJob{},
	); err != nil {
		log.Fatalf("migration failed: %v", err)
	}

	rdb, err := database.NewRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	if err != nil {
		log.Fatalf("redis init failed: %v", err)
	}

	store, err := search.NewStore(cfg.Elasticsearch, cfg.Embedding.Dimensions)
	if err != nil {
		log.Fatalf("elasticsearch init failed: %v", err)
	}

	archive, err := storage.NewArchive(cfg.MinIO)
	if err != nil {
		log.Fatalf("minio init failed: %v", err)
	}

	turnProducer := queue.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TurnTopic)
	defer turnProducer.Close()
	ingestProducer := queue.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.IngestTopic)
	defer ingestProducer.Close()

	// 4. repositories
	tenantRepo := repository.NewTenantRepository(db)
	apiKeyRepo := repository.NewAPIKeyRepository(db)
	usageRepo := repository.NewUsageEventRepository(db)
	orderRepo := repository.NewPaymentOrderRepository(db)
	jobRepo := repository.NewTrainingJobRepository(db)
	sessionRepo := repository.NewSessionRepository(rdb, time.Duration(cfg.Chat.SessionRetentionDays)*24*time.Hour)
	idemStore := repository.NewIdempotencyStore(rdb, time.Duration(cfg.Chat.IdempotencyWindowHours)*time.Hour)

	// 5. services
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours, cfg.JWT.RefreshTokenExpireDays)
	embeddingClient := embedding.NewClient(cfg.Embedding)
	llmClient := llm.NewClient(cfg.LLM)

	identityService := service.NewIdentityService(tenantRepo, apiKeyRepo, jwtManager)
	gateService := service.NewUsageGateService(tenantRepo)
	retrievalService := service.NewRetrievalService(embeddingClient, store, time.Duration(cfg.Chat.RetrievalTimeoutSecs)*time.Second)
	chatService := service.NewChatService(
		gateService,
		retrievalService,
		llmClient,
		turnProducer,
		usageRepo,
		cfg.Chat.RetrievalTopK,
		time.Duration(cfg.Chat.GenerationTimeoutSecs)*time.Second,
	)
	ingestionService := service.NewIngestionService(jobRepo, archive, store, ingestProducer)
	billingService := service.NewBillingService(tenantRepo, orderRepo, cfg.Billing.WebhookSecret)
	analyticsService := service.NewAnalyticsService(usageRepo, tenantRepo, idemStore)
	accountService := service.NewAccountService(tenantRepo, apiKeyRepo, jwtManager)

	// 6. kafka task processors
	recorder := pipeline.NewRecorder(tenantRepo, usageRepo, sessionRepo, idemStore)
	ingestor := pipeline.NewIngestor(jobRepo, embeddingClient, store)

	consumerCtx, stopConsumers := context.WithCancel(context.Background())
	defer stopConsumers()
	go queue.StartConsumer(consumerCtx, queue.ConsumerConfig{
		Brokers:     cfg.Kafka.Brokers,
		Topic:       cfg.Kafka.TurnTopic,
		GroupID:     cfg.Kafka.GroupID,
		MaxAttempts: int64(cfg.Chat.RecorderMaxAttempts),
	}, rdb, recorder)
	go queue.StartConsumer(consumerCtx, queue.ConsumerConfig{
		Brokers:     cfg.Kafka.Brokers,
		Topic:       cfg.Kafka.IngestTopic,
		GroupID:     cfg.Kafka.GroupID,
		MaxAttempts: int64(cfg.Chat.RecorderMaxAttempts),
	}, rdb, ingestor)

	// 7. scheduled maintenance
	scheduler := cron.New()
	// monthly usage rollover at midnight on the 1st
	scheduler.AddFunc("0 0 1 * *", func() {
		cutoff := time.Now().AddDate(0, -1, 0)
		n, err := tenantRepo.ResetExpiredPeriods(cutoff)
		if err != nil {
			log.Errorf("usage period rollover failed: %v", err)
			return
		}
		log.Infof("usage period rollover: %d tenants reset", n)
	})
	// daily sweep re-applying session log TTLs
	scheduler.AddFunc("30 3 * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		n, err := sessionRepo.EnsureExpiry(ctx)
		if err != nil {
			log.Errorf("session expiry sweep failed: %v", err)
			return
		}
		log.Infof("session expiry sweep: %d keys touched", n)
	})
	scheduler.Start()
	defer scheduler.Stop()

	// 8. gin engine and routes
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	chatHandler := handler.NewChatHandler(identityService, chatService, sessionRepo, cfg.Chat.HistoryTurnLimit)
	authHandler := handler.NewAuthHandler(accountService)
	usageHandler := handler.NewUsageHandler(identityService, gateService, analyticsService)
	analyticsHandler := handler.NewAnalyticsHandler(analyticsService)
	trainingHandler := handler.NewTrainingHandler(ingestionService)
	billingHandler := handler.NewBillingHandler(billingService)

	sessionAuth := middleware.SessionAuth(identityService)

	apiV1 := r.Group("/api/v1")
	{
		auth := apiV1.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.RefreshToken)

			authed := auth.Group("/")
			authed.Use(sessionAuth)
			{
				authed.GET("/profile", authHandler.Profile)
				authed.PUT("/profile", authHandler.UpdateProfile)
				authed.POST("/apikeys", authHandler.CreateAPIKey)
				authed.GET("/apikeys", authHandler.ListAPIKeys)
			}
		}

		chat := apiV1.Group("/chat")
		{
			chat.POST("", chatHandler.Stream)
			chat.GET("/sessions/:sessionId", chatHandler.History)
		}
		r.GET("/api/v1/chat/ws/:apikey", chatHandler.Handle)

		usage := apiV1.Group("/usage")
		{
			usage.GET("/check", usageHandler.Check)
			usage.POST("/track", usageHandler.Track)
		}

		analytics := apiV1.Group("/analytics")
		analytics.Use(sessionAuth)
		{
			analytics.GET("/dashboard", analyticsHandler.Dashboard)
		}

		training := apiV1.Group("/training")
		training.Use(sessionAuth)
		{
			training.POST("/upload", trainingHandler.Upload)
			training.POST("/replace", trainingHandler.Replace)
			training.DELETE("", trainingHandler.Delete)
			training.GET("/jobs", trainingHandler.Jobs)
			training.GET("/jobs/:jobId", trainingHandler.Job)
		}

		payments := apiV1.Group("/payments")
		{
			payments.POST("/webhook", billingHandler.Webhook)
		}
	}

	// 9. HTTP server with graceful shutdown
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server failed: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutdown signal received, closing server...")

	stopConsumers()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("http server shutdown failed: %v", err)
	}
	log.Info("server stopped")
}
