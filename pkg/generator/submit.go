package generator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/wachiwi/suno-sounds/pkg/sounds"
	"github.com/wachiwi/suno-sounds/pkg/suno"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// DefaultLabel is used for single prompts submitted without a title.
const DefaultLabel = "single"

// SingleRequest is one ad-hoc prompt.
type SingleRequest struct {
	Prompt string
	Vocals bool
	Style  string
	Title  string
	// Force resubmits a label that is already in the completed set.
	Force bool
}

// Label is the status key the request is tracked under.
func (r SingleRequest) Label() string {
	if r.Title != "" {
		return r.Title
	}
	return DefaultLabel
}

func (g *Generator) printf(format string, args ...any) {
	out := g.Out
	if out == nil {
		out = io.Discard
	}
	fmt.Fprintf(out, format, args...)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// SubmitSingle submits one prompt and records it as PENDING.
func (g *Generator) SubmitSingle(ctx context.Context, req SingleRequest) (string, error) {
	label := req.Label()

	file, err := g.Store.Load()
	if err != nil {
		return "", err
	}
	if file.IsCompleted(label) && !req.Force {
		return "", fmt.Errorf("%w: %q (use -force to regenerate)", ErrAlreadyCompleted, label)
	}

	g.printf("Submitting: %q\n", truncate(req.Prompt, 80))
	taskID, err := g.API.Submit(ctx, req.Prompt, suno.Options{
		Vocals: req.Vocals,
		Style:  req.Style,
		Title:  req.Title,
	})
	if err != nil {
		submissionsCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "failed")))
		return "", fmt.Errorf("generation failed: %w", err)
	}
	submissionsCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "ok")))
	g.printf("Task ID: %s\n", taskID)

	if req.Force {
		file.Uncomplete(label)
	}
	file.Put(label, taskID, g.now())
	if err := g.Store.Save(file); err != nil {
		return taskID, fmt.Errorf("save status: %w", err)
	}
	slog.Info("Submitted", "label", label, "task_id", taskID)

	g.printf("Run -check-status in ~2 minutes to download results.\n")
	return taskID, nil
}

// BatchOptions selects what SubmitBatch does with the matched definitions.
type BatchOptions struct {
	Filter sounds.Filter
	// DryRun previews the pending submissions without calling the API.
	DryRun bool
	// List prints the matched definitions with their done marks.
	List bool
}

// BatchReport summarizes a batch run.
type BatchReport struct {
	Matched   int
	Pending   int
	Submitted int
	Failed    int
}

// SubmitBatch submits every matched definition that is not yet completed,
// one at a time, spaced by SubmitDelay.
func (g *Generator) SubmitBatch(ctx context.Context, defs []sounds.Definition, opts BatchOptions) (*BatchReport, error) {
	report := &BatchReport{}

	matched := opts.Filter.Apply(defs)
	report.Matched = len(matched)
	if len(matched) == 0 {
		g.printf("No sounds match filters.\n")
		return report, nil
	}

	file, err := g.Store.Load()
	if err != nil {
		return report, err
	}
	done := file.CompletedSet()
	pending := sounds.Without(matched, done)
	report.Pending = len(pending)

	if opts.List {
		g.printList(matched, done)
		return report, nil
	}

	if len(pending) == 0 {
		g.printf("All matching sounds already generated.\n")
		return report, nil
	}

	g.printf("Sounds to generate: %d (of %d matched, %d already done)\n", len(pending), len(matched), len(done))

	if opts.DryRun {
		for _, s := range pending {
			g.printf("  [%d] %-20s %-8s %s\n", s.Priority, s.ID, s.Type, s.Category)
		}
		return report, nil
	}

	for i, s := range pending {
		g.printf("[%d/%d] %s\n", i+1, len(pending), s.ID)

		taskID, err := g.API.Submit(ctx, s.Prompt, suno.Options{})
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			submissionsCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "failed")))
			slog.Error("Failed to submit", "label", s.ID, "error", err)
			g.printf("  FAILED to submit\n")
			report.Failed++
		} else {
			submissionsCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "ok")))
			g.printf("  Task: %s\n", taskID)
			file.Put(s.ID, taskID, g.now())
			if err := g.Store.Save(file); err != nil {
				return report, fmt.Errorf("save status: %w", err)
			}
			report.Submitted++
		}

		if i < len(pending)-1 {
			if err := sleep(ctx, g.SubmitDelay); err != nil {
				return report, err
			}
		}
	}

	g.printf("\nSubmitted %d sounds", report.Submitted)
	if report.Failed > 0 {
		g.printf(" (%d failed)", report.Failed)
	}
	g.printf(". Run -check-status in ~2 minutes.\n")
	return report, nil
}

func (g *Generator) printList(defs []sounds.Definition, done map[string]bool) {
	for _, group := range sounds.ByCategory(defs) {
		g.printf("\n  %s\n", strings.ToUpper(group.Category))
		for _, s := range group.Sounds {
			mark := "    "
			if done[s.ID] {
				mark = "done"
			}
			g.printf("    [%d] %s %-20s %-8s %s\n", s.Priority, mark, s.ID, s.Type, s.Filename)
		}
	}
}
