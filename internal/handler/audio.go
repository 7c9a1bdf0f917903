package handler

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os/exec"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/linchuyao6/talk-essence/internal/media"
	"github.com/linchuyao6/talk-essence/pkg/response"
)

// Relay targets are limited to the podcast platform and its media CDN.
// Anything else is rejected before any outbound request, so the endpoints
// cannot be used as an open proxy.
var allowedAudioHosts = []string{"xiaoyuzhoufm.com", "xyzcdn.net"}

// AudioHandler serves the thin audio relay endpoints: a direct byte proxy
// for download, and an on-the-fly mp3 transcode. Both are stateless stream
// relays with no pipeline behavior.
type AudioHandler struct {
	httpClient   *http.Client
	allowedHosts []string
}

func NewAudioHandler() *AudioHandler {
	return &AudioHandler{
		httpClient:   &http.Client{Timeout: 30 * time.Minute},
		allowedHosts: allowedAudioHosts,
	}
}

func (h *AudioHandler) parseAudioURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid url")
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("invalid url")
	}
	host := strings.ToLower(u.Hostname())
	for _, allowed := range h.allowedHosts {
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return u.String(), nil
		}
	}
	return "", fmt.Errorf("host not allowed")
}

// Download handles GET /api/audio/download?url=...
// Proxies the remote audio bytes straight through.
func (h *AudioHandler) Download(c *fiber.Ctx) error {
	audioURL, err := h.parseAudioURL(c.Query("url"))
	if err != nil {
		return response.ValidationError(c, "仅支持小宇宙的音频地址", nil)
	}

	req, err := http.NewRequestWithContext(c.UserContext(), http.MethodGet, audioURL, nil)
	if err != nil {
		return response.ValidationError(c, "无效的音频地址", nil)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return response.RelayError(c, "音频源不可用")
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return response.RelayError(c, fmt.Sprintf("音频源返回状态 %d", resp.StatusCode))
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	c.Set(fiber.HeaderContentType, contentType)
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="episode`+media.ExtFromURL(audioURL)+`"`)

	// fasthttp closes the body stream when it implements io.Closer
	if resp.ContentLength > 0 {
		return c.SendStream(resp.Body, int(resp.ContentLength))
	}
	return c.SendStream(resp.Body)
}

// MP3 handles GET /api/audio/mp3?url=...
// Transcodes the remote audio to 128k mp3 and streams it out.
func (h *AudioHandler) MP3(c *fiber.Ctx) error {
	audioURL, err := h.parseAudioURL(c.Query("url"))
	if err != nil {
		return response.ValidationError(c, "仅支持小宇宙的音频地址", nil)
	}

	// ffmpeg -i url -vn -ab 128k -ar 44100 -f mp3 pipe:1
	cmd := exec.Command("ffmpeg",
		"-i", audioURL,
		"-vn",
		"-ab", "128k",
		"-ar", "44100",
		"-f", "mp3",
		"pipe:1",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return response.RelayError(c, "转码服务不可用")
	}
	if err := cmd.Start(); err != nil {
		return response.RelayError(c, "转码服务不可用")
	}

	c.Set(fiber.HeaderContentType, "audio/mpeg")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="episode.mp3"`)
	return c.SendStream(&ffmpegStream{ReadCloser: stdout, cmd: cmd})
}

// ffmpegStream reaps the ffmpeg process once the response stream is done.
type ffmpegStream struct {
	io.ReadCloser
	cmd *exec.Cmd
}

func (s *ffmpegStream) Close() error {
	s.ReadCloser.Close()
	if s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
	s.cmd.Wait()
	return nil
}
