package model

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodeOf(t *testing.T) {
	pe := NewPipelineError(CodeQuotaExhausted, "限流", nil)
	if got := CodeOf(pe); got != CodeQuotaExhausted {
		t.Errorf("CodeOf = %s", got)
	}

	wrapped := fmt.Errorf("summarize: %w", pe)
	if got := CodeOf(wrapped); got != CodeQuotaExhausted {
		t.Errorf("CodeOf(wrapped) = %s", got)
	}

	if got := CodeOf(errors.New("plain")); got != CodeInternal {
		t.Errorf("CodeOf(plain) = %s, want %s", got, CodeInternal)
	}
}

func TestUserMessage(t *testing.T) {
	pe := NewPipelineError(CodeFetchTimeout, "音频下载连接超时", errors.New("dial timeout"))
	if got := UserMessage(pe); got != "音频下载连接超时" {
		t.Errorf("UserMessage = %q", got)
	}

	if got := UserMessage(errors.New("plain")); got != "处理失败，请稍后重试" {
		t.Errorf("UserMessage(plain) = %q", got)
	}

	empty := &PipelineError{Code: CodeInternal}
	if got := UserMessage(empty); got != "处理失败，请稍后重试" {
		t.Errorf("UserMessage(empty message) = %q", got)
	}
}

func TestPipelineErrorUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	pe := NewPipelineError(CodeTranscriptionFailed, "转写失败", cause)
	if !errors.Is(pe, cause) {
		t.Error("expected errors.Is to reach the cause")
	}
}
