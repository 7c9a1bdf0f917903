package media

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/linchuyao6/talk-essence/internal/model"
)

// Segmenter splits a local audio file into bounded-length segments for the
// speech-to-text service. Splitting is a copy remux (no re-encode), so the
// output keeps the source container format.
type Segmenter struct {
	windowSeconds int

	// probe is injectable for tests; defaults to ffprobe.
	probe func(ctx context.Context, path string) (float64, error)
}

func NewSegmenter(windowSeconds int) *Segmenter {
	return &Segmenter{
		windowSeconds: windowSeconds,
		probe:         probeDuration,
	}
}

// Segment returns the ordered list of segment paths for path. Audio no
// longer than the window is returned as-is; anything longer is split into
// fixed windows. Segment index order equals chronological order.
func (s *Segmenter) Segment(ctx context.Context, path string) ([]string, error) {
	duration, err := s.probe(ctx, path)
	if err != nil {
		return nil, model.NewPipelineError(model.CodeProbeFailed, "无法读取音频时长", err)
	}

	if duration <= float64(s.windowSeconds) {
		return []string{path}, nil
	}

	dir := filepath.Dir(path)
	ext := filepath.Ext(path)
	pattern := filepath.Join(dir, "segment_%03d"+ext)

	// ffmpeg -i in -f segment -segment_time N -c copy out_%03d.ext
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y", "-i", path,
		"-f", "segment",
		"-segment_time", strconv.Itoa(s.windowSeconds),
		"-c", "copy",
		"-reset_timestamps", "1",
		pattern,
	)
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return nil, model.NewPipelineError(model.CodeSegmentationFailed, "音频切分失败", err)
	}

	segments, err := filepath.Glob(filepath.Join(dir, "segment_*"+ext))
	if err != nil || len(segments) == 0 {
		return nil, model.NewPipelineError(model.CodeSegmentationFailed, "音频切分未产生输出", err)
	}

	sortSegments(segments)
	return segments, nil
}

var segmentIndexPattern = regexp.MustCompile(`segment_(\d+)`)

// sortSegments orders segment paths by their numeric index. Lexicographic
// order would break past segment 999 or with mixed padding.
func sortSegments(paths []string) {
	sort.Slice(paths, func(i, j int) bool {
		return segmentIndex(paths[i]) < segmentIndex(paths[j])
	})
}

func segmentIndex(path string) int {
	m := segmentIndexPattern.FindStringSubmatch(filepath.Base(path))
	if len(m) < 2 {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

// probeDuration asks ffprobe for the media duration in seconds.
func probeDuration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}
	return parseProbeDuration(string(out))
}

func parseProbeDuration(out string) (float64, error) {
	s := strings.TrimSpace(out)
	d, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("unexpected ffprobe output %q: %w", s, err)
	}
	return d, nil
}

// ToolsAvailable reports whether ffmpeg and ffprobe are on PATH. Used by the
// health endpoint.
func ToolsAvailable() (ffmpeg, ffprobe bool) {
	_, err := exec.LookPath("ffmpeg")
	ffmpeg = err == nil
	_, err = exec.LookPath("ffprobe")
	ffprobe = err == nil
	return ffmpeg, ffprobe
}
