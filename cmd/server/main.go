package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"

	"github.com/linchuyao6/talk-essence/internal/client"
	"github.com/linchuyao6/talk-essence/internal/config"
	"github.com/linchuyao6/talk-essence/internal/handler"
	"github.com/linchuyao6/talk-essence/internal/media"
	"github.com/linchuyao6/talk-essence/internal/middleware"
	"github.com/linchuyao6/talk-essence/internal/resolver"
	"github.com/linchuyao6/talk-essence/internal/service"
	"github.com/linchuyao6/talk-essence/internal/worker"
	"github.com/linchuyao6/talk-essence/pkg/response"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Redis backs the rate limiter only; the service runs without it
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Printf("Warning: Redis not available, rate limiting disabled: %v", err)
	}

	validate := validator.New()

	// External capabilities
	groqClient := client.NewGroqClient(&cfg.Groq)
	episodeResolver := resolver.NewResolver()
	fetcher := media.NewFetcher()
	segmenter := media.NewSegmenter(cfg.Pipeline.SegmentSeconds)

	// Pipeline services
	transcriptService := service.NewTranscriptService(groqClient, segmenter, cfg.Groq.SpeechModel, cfg.Groq.Language)
	summaryService := service.NewSummaryService(groqClient, service.SummaryConfig{
		PrimaryModel:  cfg.Groq.ChatModel,
		FallbackModel: cfg.Groq.FallbackModel,
		DirectLimit:   cfg.Pipeline.DirectSummaryLimit,
		ChunkLimit:    cfg.Pipeline.ChunkCharLimit,
	})

	episodeWorker := worker.NewEpisodeWorker(
		episodeResolver,
		fetcher,
		transcriptService,
		summaryService,
		cfg.Pipeline.WorkDir,
		time.Duration(cfg.Pipeline.JobTimeoutMinutes)*time.Minute,
		time.Duration(cfg.Pipeline.HeartbeatSeconds)*time.Second,
	)

	// Handlers
	episodeHandler := handler.NewEpisodeHandler(episodeWorker, validate)
	audioHandler := handler.NewAudioHandler()
	rateLimiter := middleware.NewRateLimiter(redisClient)

	app := fiber.New(fiber.Config{
		ErrorHandler: response.ErrorHandler,
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	app.Get("/", func(c *fiber.Ctx) error {
		return response.OK(c, fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		ffmpeg, ffprobe := media.ToolsAvailable()
		return response.OK(c, fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"ffmpeg":  ffmpeg,
				"ffprobe": ffprobe,
				"redis":   redisClient.Ping(c.UserContext()).Err() == nil,
			},
		})
	})

	// Audio relay endpoints
	audio := app.Group("/api/audio", rateLimiter.AudioLimit(cfg.RateLimit.AudioPerMin))
	audio.Get("/download", audioHandler.Download)
	audio.Get("/mp3", audioHandler.MP3)

	// Episode processing over WebSocket: one job per connection
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/episode", rateLimiter.EpisodeLimit(cfg.RateLimit.EpisodesPerHour), websocket.New(episodeHandler.Handle))

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
