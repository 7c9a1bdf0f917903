package model

// Event is one frame of the progress stream. Every event carries the stage;
// progress is a 0-100 integer. Data is only set on the done event and Error
// only on the error event.
type Event struct {
	Stage    Stage          `json:"stage"`
	Progress int            `json:"progress"`
	Message  string         `json:"message,omitempty"`
	Data     *EpisodeResult `json:"data,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// ProgressEvent builds a non-terminal event.
func ProgressEvent(stage Stage, progress int, message string) *Event {
	return &Event{Stage: stage, Progress: progress, Message: message}
}

// DoneEvent builds the terminal success event with the result payload.
func DoneEvent(result *EpisodeResult) *Event {
	return &Event{Stage: StageDone, Progress: 100, Data: result}
}

// ErrorEvent builds the terminal failure event.
func ErrorEvent(message string) *Event {
	return &Event{Stage: StageError, Error: message}
}
