package worker

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/linchuyao6/talk-essence/internal/model"
	"github.com/linchuyao6/talk-essence/internal/resolver"
)

// EpisodeResolver resolves an episode page into an audio source and title.
type EpisodeResolver interface {
	Resolve(ctx context.Context, pageURL string) (*resolver.Episode, error)
}

// AudioFetcher downloads remote audio into a work directory.
type AudioFetcher interface {
	Fetch(ctx context.Context, audioURL, dir string) (string, error)
}

// TranscriptAssembler produces the full transcript for a local audio file.
type TranscriptAssembler interface {
	Assemble(ctx context.Context, apiKey, audioPath string, report func(progress int, message string)) (string, error)
}

// Summarizer produces the structured summary for a transcript.
type Summarizer interface {
	Summarize(ctx context.Context, apiKey, transcript string, notify func(message string)) (*model.SummaryResult, error)
}

// EventSink receives the job's progress events. Implementations must not
// block the pipeline and must tolerate a disconnected peer.
type EventSink interface {
	Emit(ev *model.Event)
}

// EpisodeWorker runs one job end to end: resolve, download, transcribe,
// summarize. Stages advance strictly in order; error is reachable from any
// stage and terminal. The job's transient directory is removed on every exit
// path.
type EpisodeWorker struct {
	resolver    EpisodeResolver
	fetcher     AudioFetcher
	transcripts TranscriptAssembler
	summaries   Summarizer

	workRoot   string
	jobTimeout time.Duration
	heartbeat  time.Duration
}

func NewEpisodeWorker(
	r EpisodeResolver,
	f AudioFetcher,
	t TranscriptAssembler,
	s Summarizer,
	workRoot string,
	jobTimeout time.Duration,
	heartbeat time.Duration,
) *EpisodeWorker {
	return &EpisodeWorker{
		resolver:    r,
		fetcher:     f,
		transcripts: t,
		summaries:   s,
		workRoot:    workRoot,
		jobTimeout:  jobTimeout,
		heartbeat:   heartbeat,
	}
}

// Process executes one job and streams events to sink. It always emits
// exactly one terminal event (done or error) and never leaves the job's
// work directory behind.
func (w *EpisodeWorker) Process(ctx context.Context, req *model.ProcessRequest, sink EventSink) {
	if !resolver.IsEpisodeURL(req.URL) {
		sink.Emit(model.ErrorEvent("仅支持小宇宙播客的节目链接"))
		return
	}

	job := &model.Job{
		ID:    uuid.New().String(),
		URL:   req.URL,
		Stage: model.StageParsing,
	}

	dir := filepath.Join(w.workRoot, "episode-"+job.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		sink.Emit(model.ErrorEvent("无法创建临时工作目录"))
		return
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			log.Printf("Job %s: failed to remove work dir: %v", job.ID, err)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	log.Printf("Job %s: processing %s", job.ID, req.URL)

	// parsing
	w.advance(job, sink, model.StageParsing, 0, "正在解析节目页面...")
	episode, err := w.resolver.Resolve(ctx, req.URL)
	if err != nil {
		w.fail(job, sink, err)
		return
	}

	// downloading
	w.advance(job, sink, model.StageDownloading, 10, "正在下载音频...")
	audioPath, err := w.fetcher.Fetch(ctx, episode.AudioURL, dir)
	if err != nil {
		w.fail(job, sink, err)
		return
	}

	// transcribing
	w.advance(job, sink, model.StageTranscribing, 30, "准备转写音频...")
	transcript, err := w.transcripts.Assemble(ctx, req.APIKey, audioPath, func(progress int, message string) {
		w.advance(job, sink, model.StageTranscribing, progress, message)
	})
	if err != nil {
		w.fail(job, sink, err)
		return
	}
	job.Transcript = transcript

	// summarizing, with a heartbeat so the connection stays alive during
	// long model latency
	w.advance(job, sink, model.StageSummarizing, 85, "正在总结内容...")
	var summarizeProgress atomic.Int64
	summarizeProgress.Store(85)
	stopHeartbeat := w.startHeartbeat(sink, &summarizeProgress)
	summary, err := w.summaries.Summarize(ctx, req.APIKey, transcript, func(message string) {
		summarizeProgress.Store(90)
		w.advance(job, sink, model.StageSummarizing, 90, message)
	})
	stopHeartbeat()
	if err != nil {
		w.fail(job, sink, err)
		return
	}

	job.Stage = model.StageDone
	job.Progress = 100
	job.Result = &model.EpisodeResult{
		Title:      episode.Title,
		AudioURL:   episode.AudioURL,
		Transcript: transcript,
		Summary:    summary.Markdown,
		Highlights: summary.Highlights,
		Category:   summary.Category,
	}
	sink.Emit(model.DoneEvent(job.Result))
	log.Printf("Job %s: done", job.ID)
}

// advance mutates the job and emits a progress event. Progress never moves
// backwards within a stage.
func (w *EpisodeWorker) advance(job *model.Job, sink EventSink, stage model.Stage, progress int, message string) {
	if stage == job.Stage && progress < job.Progress {
		progress = job.Progress
	}
	job.Stage = stage
	job.Progress = progress
	job.Message = message
	sink.Emit(model.ProgressEvent(stage, progress, message))
}

func (w *EpisodeWorker) fail(job *model.Job, sink EventSink, err error) {
	message := model.UserMessage(err)
	if model.CodeOf(err) == model.CodeAuthInvalid {
		// normalize provider auth errors to one explicit notice
		message = "API Key 无效或已过期，请检查后重试"
	}
	log.Printf("Job %s: failed at %s: %v", job.ID, job.Stage, err)
	job.Stage = model.StageError
	job.Message = message
	sink.Emit(model.ErrorEvent(message))
}

// startHeartbeat emits the current summarization progress on a fixed
// interval until the returned stop function is called. Carries no new
// information; it only keeps the long-lived connection moving.
func (w *EpisodeWorker) startHeartbeat(sink EventSink, progress *atomic.Int64) func() {
	stop := make(chan struct{})
	var once sync.Once
	go func() {
		ticker := time.NewTicker(w.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				sink.Emit(model.ProgressEvent(model.StageSummarizing, int(progress.Load()), ""))
			}
		}
	}()
	return func() { once.Do(func() { close(stop) }) }
}
