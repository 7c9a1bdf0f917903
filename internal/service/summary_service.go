package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"github.com/linchuyao6/talk-essence/internal/client"
	"github.com/linchuyao6/talk-essence/internal/model"
)

const maxHighlights = 3

const summarySystemPrompt = `你是一位专业的播客内容编辑。请根据给定的播客转写文稿，输出一份结构化的 Markdown 总结，必须包含：
1. 一个一级标题（# 开头），概括整期节目
2. 「背景概述」部分，交代节目主题与上下文
3. 「内容详解」部分，按逻辑分成若干小节，使用要点列表（- 开头）提炼关键内容与观点
4. 结尾一段「写在最后」的思考性结语
只输出 Markdown 正文，不要输出任何额外说明。`

const chunkSystemPrompt = `你是一位专业的播客内容编辑。下面是一段播客转写文稿的节选（不是完整节目），请用 Markdown 要点列表（- 开头）提炼其中的关键信息与观点。这只是节目的一部分，不要写总结性的结尾。只输出 Markdown。`

// ChatCompleter is the text-generation capability the engine depends on.
type ChatCompleter interface {
	ChatCompletion(ctx context.Context, apiKey string, req *client.ChatRequest) (string, error)
}

// SummaryConfig carries the model pair and size thresholds. Passed in at
// construction so tests can substitute small limits.
type SummaryConfig struct {
	PrimaryModel  string
	FallbackModel string
	DirectLimit   int // max transcript runes for a single-call summary
	ChunkLimit    int // max runes per chunk in map/reduce mode
}

// SummaryService turns a full transcript into a structured Markdown summary.
// Oversized transcripts go through a split/map/reduce pass; rate-limited
// calls retry once on the fallback model.
type SummaryService struct {
	chat ChatCompleter
	cfg  SummaryConfig
}

func NewSummaryService(chat ChatCompleter, cfg SummaryConfig) *SummaryService {
	return &SummaryService{chat: chat, cfg: cfg}
}

// Summarize produces the summary for transcript. notify receives
// caller-visible notices (chunk progress, model fallback); it may be nil.
func (s *SummaryService) Summarize(ctx context.Context, apiKey, transcript string, notify func(message string)) (*model.SummaryResult, error) {
	transcript = strings.TrimSpace(transcript)

	var markdown string
	var err error
	if utf8.RuneCountInString(transcript) <= s.cfg.DirectLimit {
		markdown, err = s.generate(ctx, apiKey, summarySystemPrompt,
			"请总结以下播客转写文稿：\n\n"+transcript, notify)
	} else {
		markdown, err = s.summarizeChunked(ctx, apiKey, transcript, notify)
	}
	if err != nil {
		return nil, err
	}

	return &model.SummaryResult{
		Markdown:   markdown,
		Highlights: extractHighlights(markdown),
		Category:   categorize(markdown),
	}, nil
}

// summarizeChunked splits the transcript at sentence boundaries, extracts
// each chunk independently, then issues one reduce call that restructures
// the partial summaries into a single coherent document.
func (s *SummaryService) summarizeChunked(ctx context.Context, apiKey, transcript string, notify func(string)) (string, error) {
	chunks := splitChunks(transcript, s.cfg.ChunkLimit)
	if notify != nil {
		notify(fmt.Sprintf("文稿较长，分 %d 段处理", len(chunks)))
	}

	partials := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		if notify != nil {
			notify(fmt.Sprintf("正在提炼第 %d/%d 段...", i+1, len(chunks)))
		}
		partial, err := s.generate(ctx, apiKey, chunkSystemPrompt, chunk, notify)
		if err != nil {
			return "", err
		}
		partials = append(partials, partial)
	}

	reduceUser := "以下是同一期节目各部分的分段摘要，请将它们整合为一份完整总结，合并重复内容，重新组织结构：\n\n" +
		strings.Join(partials, "\n\n---\n\n")
	return s.generate(ctx, apiKey, summarySystemPrompt, reduceUser, notify)
}

// generate runs one chat completion on the primary model, falling back to
// the secondary model exactly once when the primary is rate-limited.
func (s *SummaryService) generate(ctx context.Context, apiKey, system, user string, notify func(string)) (string, error) {
	out, err := s.chat.ChatCompletion(ctx, apiKey, &client.ChatRequest{
		Model:       s.cfg.PrimaryModel,
		System:      system,
		User:        user,
		Temperature: 0.7,
		MaxTokens:   4096,
	})
	if err == nil {
		return out, nil
	}

	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		return "", model.NewPipelineError(model.CodeSummarizationFailed, "内容总结失败", err)
	}
	if apiErr.IsAuth() {
		return "", model.NewPipelineError(model.CodeAuthInvalid, "API Key 无效或已过期", err)
	}
	if !apiErr.IsRateLimit() {
		return "", model.NewPipelineError(model.CodeSummarizationFailed, "内容总结失败", err)
	}

	hint := apiErr.RetryAfter()
	if notify != nil {
		msg := "主模型限流，已切换备用模型 " + s.cfg.FallbackModel
		if hint != "" {
			msg += "（建议 " + hint + " 后再试主模型）"
		}
		notify(msg)
	}
	log.Printf("Primary model rate limited, falling back to %s", s.cfg.FallbackModel)

	out, err = s.chat.ChatCompletion(ctx, apiKey, &client.ChatRequest{
		Model:       s.cfg.FallbackModel,
		System:      system,
		User:        user,
		Temperature: 0.7,
		MaxTokens:   4096,
	})
	if err == nil {
		return out, nil
	}

	var fbErr *client.APIError
	if errors.As(err, &fbErr) {
		if fbErr.IsAuth() {
			return "", model.NewPipelineError(model.CodeAuthInvalid, "API Key 无效或已过期", err)
		}
		if fbErr.IsRateLimit() {
			if after := fbErr.RetryAfter(); after != "" {
				hint = after
			}
			msg := "主模型与备用模型均已限流"
			if hint != "" {
				msg += "，请在 " + hint + " 后重试"
			}
			return "", model.NewPipelineError(model.CodeQuotaExhausted, msg, err)
		}
	}
	return "", model.NewPipelineError(model.CodeSummarizationFailed, "内容总结失败", err)
}

var sentenceBoundary = map[rune]bool{
	'。': true, '！': true, '？': true, '；': true,
	'.': true, '!': true, '?': true, ';': true,
	'\n': true,
}

// splitChunks splits text into pieces of at most limit runes, preferring to
// cut just after sentence-ending punctuation or a newline. Concatenating the
// chunks reconstructs the input exactly.
func splitChunks(text string, limit int) []string {
	runes := []rune(text)
	var chunks []string

	for len(runes) > limit {
		cut := limit
		// search back for a boundary, but never shrink a chunk below half
		// the limit
		for i := limit - 1; i > limit/2; i-- {
			if sentenceBoundary[runes[i]] {
				cut = i + 1
				break
			}
		}
		chunks = append(chunks, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}

// extractHighlights picks up to 3 top-level bulleted lines from the summary.
// Advisory metadata only.
func extractHighlights(markdown string) []string {
	var highlights []string
	for _, line := range strings.Split(markdown, "\n") {
		if len(highlights) == maxHighlights {
			break
		}
		if !strings.HasPrefix(line, "- ") && !strings.HasPrefix(line, "* ") {
			continue
		}
		text := strings.TrimSpace(line[2:])
		if text != "" {
			highlights = append(highlights, text)
		}
	}
	return highlights
}

var categoryKeywords = []struct {
	tag      string
	keywords []string
}{
	{"科技", []string{"技术", "科技", "互联网", "AI", "人工智能", "产品", "程序", "软件"}},
	{"商业", []string{"商业", "创业", "投资", "公司", "市场", "经济", "品牌", "增长"}},
	{"文化", []string{"文化", "历史", "艺术", "电影", "音乐", "文学", "书"}},
	{"健康", []string{"健康", "心理", "医疗", "运动", "睡眠", "焦虑"}},
	{"社会", []string{"社会", "教育", "职场", "城市", "家庭", "女性"}},
}

// categorize derives a coarse category tag by keyword frequency.
func categorize(text string) string {
	best := "综合"
	bestScore := 0
	for _, c := range categoryKeywords {
		score := 0
		for _, kw := range c.keywords {
			score += strings.Count(text, kw)
		}
		if score > bestScore {
			best = c.tag
			bestScore = score
		}
	}
	return best
}
