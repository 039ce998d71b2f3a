// Package main runs the course registration and payments HTTP server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fairdinkum/course-backend/config"
	"github.com/fairdinkum/course-backend/internal/analytics"
	"github.com/fairdinkum/course-backend/internal/applications"
	"github.com/fairdinkum/course-backend/internal/auth"
	"github.com/fairdinkum/course-backend/internal/mailer"
	"github.com/fairdinkum/course-backend/internal/middleware"
	"github.com/fairdinkum/course-backend/internal/payments"
	"github.com/fairdinkum/course-backend/internal/referrals"
	"github.com/fairdinkum/course-backend/internal/registrations"
	"github.com/fairdinkum/course-backend/pkg/database"
	"github.com/fairdinkum/course-backend/pkg/redis"
	"github.com/fairdinkum/course-backend/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	awsCfg, err := database.NewAWSConfig(ctx, cfg.AWS)
	if err != nil {
		logger.Fatal("aws config", zap.Error(err))
	}
	dynamoClient := database.NewDynamoClient(awsCfg, cfg.AWS.Endpoint, logger)
	sesClient := database.NewSESClient(awsCfg)

	// Webhook dedup degrades gracefully: without Redis the webhook still
	// relies on idempotent resolution by registration_id.
	var dedup payments.Deduper
	if cfg.Redis.Addr != "" {
		rdb, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			logger.Warn("redis unavailable, webhook dedup disabled", zap.Error(err))
		} else {
			defer rdb.Close()
			logger.Info("redis connected", zap.String("addr", cfg.Redis.Addr))
			dedup = payments.NewRedisDeduper(rdb, 24*time.Hour)
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	authHandler := auth.NewHandler(cfg.Admin, jwtService, logger)

	mail := mailer.New(sesClient, cfg.Email.FromAddress, cfg.Email.AdminAddress, logger)
	meta := analytics.NewClient(cfg.Meta, logger)

	registrationRepo := registrations.NewRepository(dynamoClient, cfg.Dynamo.RegistrationsTable, cfg.Dynamo.RegistrationIDIndex)
	registrationHandler := registrations.NewHandler(registrationRepo, meta, mail, logger)

	webhookHandler := payments.NewWebhookHandler(registrationRepo, mail, meta, dedup, cfg.Stripe.WebhookSecret, logger)
	approvalHandler := applications.NewHandler(registrationRepo, mail, cfg.Server.BaseURL, logger)

	referralRepo := referrals.NewRepository(dynamoClient, cfg.Dynamo.ReferralEventsTable, cfg.Dynamo.ReferralCodeIndex)
	referralHandler := referrals.NewHandler(referralRepo, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Public registration and tracking endpoints
	router.POST("/registrations", registrationHandler.Register)
	router.POST("/livestream/register", registrationHandler.RegisterFree)
	router.POST("/referrals/events", referralHandler.Record)

	// Stripe webhook (authenticated by signature, not JWT)
	router.POST("/webhooks/stripe", webhookHandler.HandleWebhook)

	// Admin
	router.POST("/auth/login", authHandler.Login)
	admin := router.Group("")
	admin.Use(middleware.JWT(jwtService))
	{
		admin.POST("/applications/:id/approve", approvalHandler.Approve)
		admin.GET("/referrals/:code/events", referralHandler.ListByCode)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
