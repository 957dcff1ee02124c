package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sonora-voice/bridge/adapters"
	"github.com/sonora-voice/bridge/adapters/customer"
	"github.com/sonora-voice/bridge/adapters/knowledge"
	mongoadapter "github.com/sonora-voice/bridge/adapters/mongo"
	"github.com/sonora-voice/bridge/adapters/profile"
	"github.com/sonora-voice/bridge/domain/repositories"
	"github.com/sonora-voice/bridge/internal/api"
	"github.com/sonora-voice/bridge/internal/auth"
	"github.com/sonora-voice/bridge/internal/bridge"
	"github.com/sonora-voice/bridge/internal/config"
	"github.com/sonora-voice/bridge/internal/protocol"
	"github.com/sonora-voice/bridge/internal/tools"
	"github.com/sonora-voice/bridge/internal/transport"
	"github.com/sonora-voice/bridge/internal/websocket"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load(logger)
	if err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	issuer := auth.NewIssuer(cfg.JWTSecret)

	// Stores: Mongo and Redis when configured, file-backed otherwise.
	customers := repositories.CustomerStore(customer.NewMemoryStoreFromFile(cfg.CustomerDataPath, logger))
	var recorder bridge.TranscriptRecorder
	if cfg.MongoURI != "" {
		mongoClient, err := mongoadapter.NewClient(cfg.MongoURI, cfg.MongoDatabase, logger)
		if err != nil {
			logger.Fatal("MongoDB connection failed", zap.Error(err))
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			mongoClient.Close(ctx)
		}()
		customers = mongoadapter.NewCustomerStore(mongoClient.Database)
		recorder = adapters.NewTranscriptRecorder(mongoadapter.NewTranscriptRepository(mongoClient.Database))
	}

	var profiles repositories.ProfileStore = profile.NewMemoryStore(nil)
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		profiles = profile.NewRedisStore(redisClient)
		logger.Info("Profile store backed by Redis", zap.String("addr", cfg.RedisAddr))
	}

	kb := knowledge.NewMemoryBaseFromFile(cfg.KnowledgeDataPath, logger)

	// Tools
	registry := tools.NewRegistry()
	tools.RegisterDefaults(registry, tools.Stores{
		Knowledge: kb,
		Customers: customers,
		Profiles:  profiles,
	}, logger)
	dispatcher := tools.NewDispatcher(registry, cfg.StrictToolFailures, logger)

	// Upstream credentials: a static token when provided, otherwise
	// short-lived service tokens minted on demand.
	var creds transport.CredentialSource
	if cfg.UpstreamToken != "" {
		creds = transport.StaticToken(cfg.UpstreamToken)
	} else {
		creds = transport.NewRefreshingSource(func(ctx context.Context) (string, time.Time, error) {
			return issuer.GenerateServiceToken()
		})
	}

	sessionCfg := bridge.Config{
		SystemPrompt: cfg.SystemPrompt,
		Inference: protocol.InferenceConfiguration{
			MaxTokens:   cfg.MaxTokens,
			TopP:        cfg.TopP,
			Temperature: cfg.Temperature,
		},
		AudioOutput: protocol.AudioOutputConfiguration{
			MediaType:       "audio/lpcm",
			SampleRateHertz: cfg.OutputSampleRate,
			SampleSizeBits:  16,
			ChannelCount:    1,
			VoiceID:         cfg.VoiceID,
			Encoding:        "base64",
		},
		AudioInput: protocol.AudioInputConfiguration{
			MediaType:       "audio/lpcm",
			SampleRateHertz: cfg.InputSampleRate,
			SampleSizeBits:  16,
			ChannelCount:    1,
			Encoding:        "base64",
			AudioType:       "SPEECH",
		},
		Tools:       registry.Specs(),
		IdleTimeout: cfg.IdleTimeout,
	}

	hub := websocket.NewHub(websocket.Deps{
		DialUpstream: func(ctx context.Context) (bridge.UpstreamLeg, error) {
			return transport.Dial(ctx, transport.Config{
				URL:         cfg.UpstreamURL,
				Credentials: creds,
			}, logger)
		},
		Dispatcher:            dispatcher,
		Recorder:              recorder,
		Session:               sessionCfg,
		EnableSpeechDetection: cfg.EnableSpeechDetection,
	}, logger)
	go hub.Run()

	cleanup := websocket.NewSessionCleanupService(hub, cfg.MaxSessionDuration, logger)
	cleanup.Start()
	defer cleanup.Stop()

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Initialize API routes
	api.InitRoutes(e, api.Options{
		Hub:     hub,
		Issuer:  issuer,
		APIKey:  cfg.APIKey,
		DevMode: cfg.DevMode,
	}, logger)

	// Graceful shutdown
	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Bridge server started",
		zap.String("port", cfg.Port),
		zap.String("upstream", cfg.UpstreamURL),
		zap.Bool("devMode", cfg.DevMode))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
