package e2e

import (
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
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

// testApp holds all components needed for testing
type testApp struct {
	app *fiber.App
}

// setupApp creates a Fiber app identical to main.go. The rate limiter points
// at localhost Redis but fails open, so the suite runs without it.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	redisClient := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // use DB 15 for tests to avoid collision
	})
	t.Cleanup(func() { redisClient.Close() })

	validate := validator.New()

	groqClient := client.NewGroqClient(&config.GroqConfig{BaseURL: "http://localhost:1"})
	episodeResolver := resolver.NewResolver()
	fetcher := media.NewFetcher()
	segmenter := media.NewSegmenter(180)

	transcriptService := service.NewTranscriptService(groqClient, segmenter, "whisper-large-v3", "zh")
	summaryService := service.NewSummaryService(groqClient, service.SummaryConfig{
		PrimaryModel:  "llama-3.3-70b-versatile",
		FallbackModel: "llama-3.1-8b-instant",
		DirectLimit:   15000,
		ChunkLimit:    8000,
	})

	episodeWorker := worker.NewEpisodeWorker(
		episodeResolver,
		fetcher,
		transcriptService,
		summaryService,
		t.TempDir(),
		time.Minute,
		3*time.Second,
	)

	episodeHandler := handler.NewEpisodeHandler(episodeWorker, validate)
	audioHandler := handler.NewAudioHandler()
	rateLimiter := middleware.NewRateLimiter(redisClient)

	app := fiber.New(fiber.Config{
		ErrorHandler: response.ErrorHandler,
	})

	app.Get("/", func(c *fiber.Ctx) error {
		return response.OK(c, fiber.Map{"timestamp": time.Now().Unix()})
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

	// Use very high rate limits so tests don't get blocked
	audio := app.Group("/api/audio", rateLimiter.AudioLimit(10000))
	audio.Get("/download", audioHandler.Download)
	audio.Get("/mp3", audioHandler.MP3)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/episode", rateLimiter.EpisodeLimit(10000), websocket.New(episodeHandler.Handle))

	return &testApp{app: app}
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequest(method, path, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return app.Test(req, -1)
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}
