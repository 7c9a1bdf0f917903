package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/linchuyao6/talk-essence/internal/model"
)

const connectTimeout = 60 * time.Second

var knownExtensions = map[string]bool{
	".mp3": true,
	".m4a": true,
	".mp4": true,
	".wav": true,
}

// Fetcher streams remote audio bytes into a job's work directory. The file
// lands with an extension matching the detected container format because the
// segmenter picks its demuxer by extension.
type Fetcher struct {
	httpClient *http.Client
}

func NewFetcher() *Fetcher {
	return &Fetcher{
		httpClient: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: connectTimeout,
				}).DialContext,
				TLSHandshakeTimeout:   connectTimeout,
				ResponseHeaderTimeout: connectTimeout,
			},
		},
	}
}

// ExtFromURL classifies the likely audio container from the URL path,
// defaulting to .mp3.
func ExtFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ".mp3"
	}
	ext := strings.ToLower(filepath.Ext(u.Path))
	if knownExtensions[ext] {
		return ext
	}
	return ".mp3"
}

// Fetch downloads audioURL into dir without buffering the payload in memory
// and returns the local path.
func (f *Fetcher) Fetch(ctx context.Context, audioURL, dir string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, audioURL, nil)
	if err != nil {
		return "", model.NewPipelineError(model.CodeFetchFailed, "音频地址无效", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return "", model.NewPipelineError(model.CodeFetchTimeout, "音频下载连接超时", err)
		}
		return "", model.NewPipelineError(model.CodeFetchFailed, "音频下载失败", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", model.NewPipelineError(model.CodeFetchFailed,
			fmt.Sprintf("音频服务器返回异常状态 %d", resp.StatusCode), nil)
	}

	path := filepath.Join(dir, "episode"+ExtFromURL(audioURL))
	out, err := os.Create(path)
	if err != nil {
		return "", model.NewPipelineError(model.CodeFetchFailed, "无法写入临时文件", err)
	}

	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(path)
		return "", model.NewPipelineError(model.CodeFetchFailed, "音频下载中断", err)
	}
	if err := out.Close(); err != nil {
		return "", model.NewPipelineError(model.CodeFetchFailed, "无法写入临时文件", err)
	}

	return path, nil
}

func isTimeout(err error) bool {
	if os.IsTimeout(err) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}
