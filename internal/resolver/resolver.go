package resolver

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/linchuyao6/talk-essence/internal/model"
)

const pageFetchTimeout = 10 * time.Second

// Episode is the resolved result of a podcast episode page.
type Episode struct {
	AudioURL string
	Title    string
}

// Resolver turns a xiaoyuzhoufm.com episode page into an audio source URL
// and a display title.
type Resolver struct {
	httpClient *http.Client
}

func NewResolver() *Resolver {
	return &Resolver{
		httpClient: &http.Client{Timeout: pageFetchTimeout},
	}
}

// IsEpisodeURL reports whether raw points at a supported episode page.
func IsEpisodeURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if host != "xiaoyuzhoufm.com" {
		return false
	}
	return strings.HasPrefix(u.Path, "/episode/")
}

// Resolve fetches the episode page and extracts the audio source and title.
func (r *Resolver) Resolve(ctx context.Context, pageURL string) (*Episode, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, model.NewPipelineError(model.CodeInvalidInput, "无法解析节目链接", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; talk-essence/1.0)")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, model.NewPipelineError(model.CodeFetchFailed, "获取节目页面失败", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, model.NewPipelineError(model.CodeFetchFailed,
			fmt.Sprintf("节目页面返回异常状态 %d", resp.StatusCode), nil)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, model.NewPipelineError(model.CodeFetchFailed, "节目页面解析失败", err)
	}

	audioURL := extractAudioURL(doc)
	if audioURL == "" {
		return nil, model.NewPipelineError(model.CodeFetchFailed, "页面中未找到音频资源", nil)
	}

	return &Episode{
		AudioURL: audioURL,
		Title:    extractTitle(doc),
	}, nil
}

// extractAudioURL looks for the episode audio source. Xiaoyuzhou pages carry
// it in an og:audio meta tag; <audio> elements are the fallback.
func extractAudioURL(doc *goquery.Document) string {
	if content, ok := doc.Find("meta[property='og:audio']").Attr("content"); ok && content != "" {
		return content
	}
	if src, ok := doc.Find("audio").First().Attr("src"); ok && src != "" {
		return src
	}
	if src, ok := doc.Find("audio source").First().Attr("src"); ok && src != "" {
		return src
	}
	return ""
}

// extractTitle tries og:title, then the document title, then readability.
func extractTitle(doc *goquery.Document) string {
	if content, ok := doc.Find("meta[property='og:title']").Attr("content"); ok {
		if title := strings.TrimSpace(content); title != "" {
			return title
		}
	}
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		return title
	}

	if html, err := doc.Html(); err == nil {
		if article, err := readability.FromReader(strings.NewReader(html), nil); err == nil {
			if title := strings.TrimSpace(article.Title); title != "" {
				return title
			}
		}
	}
	return "未命名节目"
}
