package model

// Stage identifies where a job currently is in the processing pipeline.
type Stage string

const (
	StageParsing      Stage = "parsing"
	StageDownloading  Stage = "downloading"
	StageTranscribing Stage = "transcribing"
	StageSummarizing  Stage = "summarizing"
	StageDone         Stage = "done"
	StageError        Stage = "error"
)

// ProcessRequest is the first frame a client sends on the episode WebSocket.
type ProcessRequest struct {
	URL    string `json:"url" validate:"required,url"`
	APIKey string `json:"apiKey" validate:"required,min=8"`
}

// Job tracks one end-to-end processing request. It is created when the
// request is accepted and mutated only by the worker as stages advance.
type Job struct {
	ID         string
	URL        string
	Stage      Stage
	Progress   int
	Message    string
	Transcript string
	Result     *EpisodeResult
}

// EpisodeResult is the terminal payload attached to the done event.
type EpisodeResult struct {
	Title      string   `json:"title"`
	AudioURL   string   `json:"audioUrl"`
	Transcript string   `json:"transcript"`
	Summary    string   `json:"summary"`
	Highlights []string `json:"highlights,omitempty"`
	Category   string   `json:"category,omitempty"`
}

// SummaryResult is what the summarization engine produces. Immutable once
// returned; the worker copies it into the job's EpisodeResult.
type SummaryResult struct {
	Markdown   string
	Highlights []string
	Category   string
}
