package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/sync/errgroup"

	"robot-market/internal/auth"
	"robot-market/internal/broker"
	"robot-market/internal/config"
	"robot-market/internal/db"
	grpcserver "robot-market/internal/grpc"
	"robot-market/internal/handlers"
	"robot-market/internal/middleware"
	"robot-market/internal/observability"
	"robot-market/internal/repositories"
	"robot-market/internal/storage"
	"robot-market/internal/telemetry"
	"robot-market/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg.Env).With("service", cfg.ServiceName)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.ServiceName, cfg.Env, cfg.OTLPEndpoint)
	if err != nil {
		logger.Error("failed to init tracing", "error", err)
		os.Exit(1)
	}

	database, err := db.Connect(ctx, cfg.DBDSN, logger)
	if err != nil {
		logger.Error("failed to connect to db", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	publisher := broker.NewPublisher(cfg, logger)
	defer publisher.Close()
	logger.Info("broker configured", "mode", broker.Mode(publisher), "noop_reason", broker.NoopReason(publisher))
	auditEmitter := telemetry.NewAuditEmitter(publisher, cfg.AuditRouting, cfg.ServiceName, cfg.Env, logger)

	userRepo := repositories.NewUserRepo(database)
	robotRepo := repositories.NewRobotRepo(database)
	ratingRepo := repositories.NewRatingRepo(database)
	convRepo := repositories.NewConversationRepo(database)
	messageRepo := repositories.NewMessageRepo(database)

	authService := auth.NewService(userRepo, auth.BcryptHasher{}, auth.RandomTokenGenerator{}, cfg.SessionTTL, logger)
	hub := ws.NewHub(publisher, logger)

	var uploader storage.Uploader = storage.NoopUploader{}
	if cfg.S3Endpoint != "" {
		minioUploader, err := storage.NewMinioUploader(cfg.S3Endpoint, cfg.S3UseSSL, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Bucket, cfg.S3PublicURL, logger)
		if err != nil {
			logger.Error("failed to init object storage", "error", err)
			os.Exit(1)
		}
		uploader = minioUploader
	}

	authHandler := handlers.NewAuthHandler(authService)
	profileHandler := handlers.NewProfileHandler(userRepo)
	robotHandler := handlers.NewRobotHandler(robotRepo, userRepo, uploader, auditEmitter, cfg.MaxImageBytes)
	ratingHandler := handlers.NewRatingHandler(ratingRepo, robotRepo, auditEmitter)
	conversationHandler := handlers.NewConversationHandler(convRepo, messageRepo, robotRepo, hub, auditEmitter)
	realtimeWS := ws.NewRealtimeHandler(hub, convRepo, authService)

	if cfg.Env != "dev" && cfg.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Request-Id", "X-Device-Id"},
		ExposeHeaders:    []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(observability.RequestID())
	router.Use(observability.AccessLog(logger))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		if err := database.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authMiddleware := middleware.AuthMiddleware(authService)

	router.POST("/auth/register", authHandler.Register)
	router.POST("/auth/login", authHandler.Login)
	router.POST("/auth/logout", authMiddleware, authHandler.Logout)
	router.GET("/auth/session", authMiddleware, authHandler.Session)

	router.GET("/profiles/:id", profileHandler.GetProfile)

	router.GET("/robots", robotHandler.ListRobots)
	router.GET("/robots/:id", robotHandler.GetRobot)
	router.GET("/robots/:id/rating", ratingHandler.GetRating)
	router.GET("/robots/:id/rating/me", authMiddleware, ratingHandler.GetMyRating)
	router.PUT("/robots/:id/rating", authMiddleware, ratingHandler.PutRating)

	seller := router.Group("/", authMiddleware, middleware.RequireSeller())
	seller.GET("/me/robots", robotHandler.MyRobots)
	seller.POST("/robots", robotHandler.CreateRobot)
	seller.PUT("/robots/:id", robotHandler.UpdateRobot)
	seller.PATCH("/robots/:id/active", robotHandler.SetActive)
	seller.DELETE("/robots/:id", robotHandler.DeleteRobot)
	seller.POST("/robots/images", robotHandler.UploadImage)

	router.GET("/conversations", authMiddleware, conversationHandler.ListConversations)
	router.POST("/conversations", authMiddleware, conversationHandler.CreateConversation)
	router.POST("/conversations/lookup", authMiddleware, conversationHandler.LookupConversation)
	router.GET("/conversations/:id/messages", authMiddleware, conversationHandler.ListMessages)
	router.GET("/conversations/:id/messages/latest", authMiddleware, conversationHandler.LatestMessage)
	router.POST("/conversations/:id/messages", authMiddleware, conversationHandler.PostMessage)

	router.GET("/ws/conversations", realtimeWS.HandleConversations)
	router.GET("/ws/conversations/:id/messages", realtimeWS.HandleMessages)

	handlers.RegisterDebugRoutes(router, auditEmitter, hub, cfg.DebugRoutes)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	grpcServer, healthServer := grpcserver.NewServer(cfg.ServiceName)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return err
		}
		logger.Info("grpc health server listening", "addr", cfg.GRPCAddr)
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		grpcserver.WatchDependency(gctx, healthServer, cfg.ServiceName, database, 5*time.Second, logger)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		grpcServer.GracefulStop()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
