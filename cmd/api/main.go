package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront-api/internal/config"
	"github.com/noah-isme/storefront-api/internal/database"
	"github.com/noah-isme/storefront-api/internal/handler"
	"github.com/noah-isme/storefront-api/internal/middleware"
	"github.com/noah-isme/storefront-api/internal/models"
	"github.com/noah-isme/storefront-api/internal/repository"
	"github.com/noah-isme/storefront-api/internal/router"
	"github.com/noah-isme/storefront-api/internal/service"
	cloud "github.com/noah-isme/storefront-api/pkg/cloudinary"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName).Logger()
	if cfg.AppEnv == "development" {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if cfg.AutoMigrate {
		if err := db.AutoMigrate(&models.Conversation{}); err != nil {
			log.Fatalf("failed to migrate database: %v", err)
		}
	}

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	probes := []handler.HealthProbe{{
		Name: "database",
		Check: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(rootCtx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
		probes = append(probes, handler.HealthProbe{Name: "redis", Check: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}})
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Close()
		probes = append(probes, handler.HealthProbe{Name: "nats", Check: func(context.Context) error {
			if !natsConn.IsConnected() {
				return nats.ErrConnectionClosed
			}
			return nil
		}})
	}

	var voiceStorage service.FileStorage
	if cfg.CloudinaryEnabled() {
		uploader, err := cloud.New(cloud.Config{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
			Folder:    cfg.CloudinaryUploadFolder,
		}, logger)
		if err != nil {
			log.Fatalf("failed to create cloudinary client: %v", err)
		}
		voiceStorage = uploader
	} else {
		logger.Info().Msg("cloudinary not configured, voice notes stored inline")
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	conversationRepo := repository.NewConversationRepository(db)
	events := service.NewConversationEvents(redisClient, cfg.RealtimeChannel, natsConn, logger)
	events.Start(rootCtx)

	voiceEncoder := service.NewVoiceEncoder(voiceStorage, cfg.ChatVoiceMaxKB, logger)
	conversationService := service.NewConversationService(conversationRepo, events, voiceEncoder, validate, service.ConversationOptions{
		EditWindow: cfg.ChatEditWindow,
		TypingRPS:  cfg.ChatTypingRPS,
	}, logger)

	sendLimiter := middleware.RateLimit("conversation-send", cfg.ChatSendRateLimit, cfg.ChatSendRateWindow)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    cfg.BodyLimitKB * 1024,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AllowOrigins: cfg.CORSAllowOrigins})
	router.Register(app, cfg, router.Dependencies{
		ConversationHandler:      handler.NewConversationHandler(conversationService, validate, sendLimiter, logger),
		AdminConversationHandler: handler.NewAdminConversationHandler(conversationService, validate, logger),
		StreamHandler:            handler.NewConversationStreamHandler(conversationService, cfg.ChatWebsocketKeepAlive, logger),
		JWTMiddleware:            middleware.JWTProtected(cfg.JWTSecret),
		HealthProbes:             probes,
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	logger.Info().Str("address", cfg.HTTPAddress()).Bool("redis", redisClient != nil).Bool("nats", natsConn != nil).Msg("conversation api started")

	waitForShutdown(app, cancelRoot)
}

func waitForShutdown(app *fiber.App, stopBackground context.CancelFunc) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()
	stopBackground()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
