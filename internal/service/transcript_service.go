package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/linchuyao6/talk-essence/internal/client"
	"github.com/linchuyao6/talk-essence/internal/model"
)

// Transcription occupies the [30, 85] band of overall job progress.
const (
	transcribeProgressStart = 30
	transcribeProgressEnd   = 85
)

const (
	maxTranscribeAttempts = 3
	initialBackoff        = time.Second
)

// SpeechTranscriber turns one audio segment into text.
type SpeechTranscriber interface {
	Transcribe(ctx context.Context, apiKey, audioPath, model, language string) (string, error)
}

// AudioSegmenter splits a local audio file into ordered segments.
type AudioSegmenter interface {
	Segment(ctx context.Context, path string) ([]string, error)
}

// TranscriptService drives segments through transcription strictly in index
// order and assembles the full transcript. Segments are processed one at a
// time: ordering and straightforward progress accounting take priority over
// throughput.
type TranscriptService struct {
	transcriber SpeechTranscriber
	segmenter   AudioSegmenter
	speechModel string
	language    string

	// sleep is injectable so tests can observe backoff without waiting.
	sleep func(time.Duration)
}

func NewTranscriptService(transcriber SpeechTranscriber, segmenter AudioSegmenter, speechModel, language string) *TranscriptService {
	return &TranscriptService{
		transcriber: transcriber,
		segmenter:   segmenter,
		speechModel: speechModel,
		language:    language,
		sleep:       time.Sleep,
	}
}

// Assemble segments audioPath, transcribes every segment in order, and
// returns the concatenated transcript. report is called with overall job
// progress both when a segment starts and when it completes, so the caller
// always sees forward motion. Any segment failure is fatal.
func (s *TranscriptService) Assemble(ctx context.Context, apiKey, audioPath string, report func(progress int, message string)) (string, error) {
	segments, err := s.segmenter.Segment(ctx, audioPath)
	if err != nil {
		return "", err
	}

	total := len(segments)
	span := transcribeProgressEnd - transcribeProgressStart
	parts := make([]string, 0, total)

	for i, segment := range segments {
		report(transcribeProgressStart+span*i/total,
			fmt.Sprintf("正在转写第 %d/%d 段...", i+1, total))

		text, err := s.transcribeWithRetry(ctx, apiKey, segment)
		if err != nil {
			return "", err
		}
		parts = append(parts, text)

		report(transcribeProgressStart+span*(i+1)/total,
			fmt.Sprintf("已完成 %d/%d 段", i+1, total))
	}

	return strings.Join(parts, "\n"), nil
}

// transcribeWithRetry retries transient network failures with doubling
// backoff (1s, 2s, 4s). Anything else propagates immediately.
func (s *TranscriptService) transcribeWithRetry(ctx context.Context, apiKey, segmentPath string) (string, error) {
	backoff := initialBackoff
	var lastErr error

	for attempt := 1; attempt <= maxTranscribeAttempts; attempt++ {
		text, err := s.transcriber.Transcribe(ctx, apiKey, segmentPath, s.speechModel, s.language)
		if err == nil {
			return text, nil
		}
		lastErr = err

		var apiErr *client.APIError
		if errors.As(err, &apiErr) && apiErr.IsAuth() {
			return "", model.NewPipelineError(model.CodeAuthInvalid, "API Key 无效或已过期", err)
		}
		if !client.IsTransientNetworkError(err) {
			return "", model.NewPipelineError(model.CodeTranscriptionFailed, "语音转写失败", err)
		}

		if attempt < maxTranscribeAttempts {
			log.Printf("Transient transcription error (attempt %d/%d): %v", attempt, maxTranscribeAttempts, err)
			s.sleep(backoff)
			backoff *= 2
		}
	}

	return "", model.NewPipelineError(model.CodeTranscriptionFailed, "语音转写多次重试后仍失败", lastErr)
}
