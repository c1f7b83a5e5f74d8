// Package generator drives the task lifecycle: submit prompts, poll the
// remote tasks and download finished audio, persisting every step in the
// status file so an interrupted run resumes where it stopped.
package generator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/wachiwi/suno-sounds/pkg/audioinfo"
	"github.com/wachiwi/suno-sounds/pkg/status"
	"github.com/wachiwi/suno-sounds/pkg/suno"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// ErrAlreadyCompleted is returned when a single submission targets a label
// whose audio was already downloaded.
var ErrAlreadyCompleted = errors.New("label already completed")

var (
	submissionsCounter metric.Int64Counter
	pollsCounter       metric.Int64Counter
	downloadsCounter   metric.Int64Counter
)

func init() {
	var err error
	meter := otel.Meter("github.com/wachiwi/suno-sounds/pkg/generator")
	submissionsCounter, err = meter.Int64Counter("sunogen.submissions",
		metric.WithDescription("Generation requests sent"),
		metric.WithUnit("{requests}"),
	)
	if err != nil {
		slog.Error("Failed to create submission metrics", "error", err)
	}
	pollsCounter, err = meter.Int64Counter("sunogen.polls",
		metric.WithDescription("Task status queries by reported status"),
		metric.WithUnit("{requests}"),
	)
	if err != nil {
		slog.Error("Failed to create poll metrics", "error", err)
	}
	downloadsCounter, err = meter.Int64Counter("sunogen.downloads",
		metric.WithDescription("Artifact downloads"),
		metric.WithUnit("{files}"),
	)
	if err != nil {
		slog.Error("Failed to create download metrics", "error", err)
	}
}

// API is the subset of the generation service the lifecycle needs.
type API interface {
	Submit(ctx context.Context, prompt string, opts suno.Options) (string, error)
	Poll(ctx context.Context, taskID string) (*suno.TaskInfo, error)
	Download(ctx context.Context, url, dest string) error
}

// Generator runs submissions and status checks against one status file.
type Generator struct {
	API       API
	Store     *status.Store
	OutputDir string

	// SubmitDelay spaces batch submissions, PollDelay spaces status queries.
	SubmitDelay time.Duration
	PollDelay   time.Duration

	// Out receives the human-readable progress report.
	Out io.Writer

	Now   func() time.Time
	Probe func(path string) (*audioinfo.Info, error)
}

func New(api API, store *status.Store, outputDir string, out io.Writer) *Generator {
	return &Generator{
		API:         api,
		Store:       store,
		OutputDir:   outputDir,
		SubmitDelay: 5 * time.Second,
		PollDelay:   1 * time.Second,
		Out:         out,
		Now:         time.Now,
		Probe:       audioinfo.ProbeFile,
	}
}

func (g *Generator) now() time.Time {
	if g.Now == nil {
		return time.Now()
	}
	return g.Now()
}

// sleep waits d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
