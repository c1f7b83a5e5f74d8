package generator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/wachiwi/suno-sounds/pkg/status"
	"github.com/wachiwi/suno-sounds/pkg/suno"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// CheckReport summarizes one status check cycle.
type CheckReport struct {
	Downloaded int
	Pending    int
	Failed     int
	// TotalDone is the size of the completed set after the cycle.
	TotalDone int
}

// CheckStatus polls every tracked label that is not downloaded yet and
// downloads the audio of finished tasks. Poll and download errors are
// logged per label and never abort the cycle.
func (g *Generator) CheckStatus(ctx context.Context) (*CheckReport, error) {
	report := &CheckReport{}

	file, err := g.Store.Load()
	if err != nil {
		return report, err
	}
	if len(file.Tasks) == 0 {
		g.printf("No pending tasks.\n")
		return report, nil
	}

	if err := os.MkdirAll(g.OutputDir, 0755); err != nil {
		return report, err
	}

	polled := 0
	for _, label := range file.Labels() {
		rec := file.Tasks[label]
		if rec.Status == status.Downloaded || file.IsCompleted(label) {
			continue
		}

		if polled > 0 {
			if err := sleep(ctx, g.PollDelay); err != nil {
				return report, err
			}
		}
		polled++

		info, err := g.API.Poll(ctx, rec.TaskID)
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			pollsCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "ERROR")))
			slog.Error("Failed to poll task", "label", label, "task_id", rec.TaskID, "error", err)
			g.printf("  %s: ERROR (API call failed)\n", label)
			report.Pending++
			continue
		}

		remote := status.ParseStatus(info.Status)
		pollsCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", remote.String())))
		g.printf("  %s: %s\n", label, info.Status)

		switch remote {
		case status.Success:
			if g.downloadAll(ctx, label, info.Tracks()) {
				file.MarkDownloaded(label)
				report.Downloaded++
			} else {
				rec.Status = status.Success
				report.Pending++
				g.printf("    Some artifacts are missing, re-run to retry\n")
			}

		case status.Pending, status.Generating, status.TextSuccess:
			rec.Status = remote
			report.Pending++
			if remote == status.TextSuccess {
				g.printf("    Audio rendering, retry in ~90s\n")
			}

		case status.Failed:
			rec.Status = status.Failed
			report.Failed++
			if info.ErrorMessage != "" {
				g.printf("    %s\n", info.ErrorMessage)
			}
			g.printf("    Re-submit this sound to retry\n")

		case status.Unknown, status.Downloaded:
			slog.Warn("Unrecognised task status", "label", label, "task_id", rec.TaskID, "status", info.Status)
			report.Pending++
		}

		if err := g.Store.Save(file); err != nil {
			return report, fmt.Errorf("save status: %w", err)
		}
	}

	report.TotalDone = len(file.Completed)
	g.printf("\nDownloaded: %d  |  Pending: %d  |  Total done: %d\n", report.Downloaded, report.Pending, report.TotalDone)
	if report.Pending > 0 {
		g.printf("Re-run -check-status to poll remaining tasks.\n")
	}
	return report, nil
}

// ArtifactPath is where track index (0-based) of total is stored for label.
func ArtifactPath(outputDir, label string, index, total int) string {
	suffix := ""
	if total > 1 {
		suffix = fmt.Sprintf("_v%d", index+1)
	}
	return filepath.Join(outputDir, label+suffix+".mp3")
}

// downloadAll fetches every track with a URL. It reports true only when at
// least one artifact exists and none failed.
func (g *Generator) downloadAll(ctx context.Context, label string, tracks []suno.Track) bool {
	fetched, failed := 0, 0
	for j, track := range tracks {
		url := track.URL()
		if url == "" {
			continue
		}
		dest := ArtifactPath(g.OutputDir, label, j, len(tracks))

		dur := "?"
		if track.Duration > 0 {
			dur = fmt.Sprintf("%.1f", track.Duration)
		}
		g.printf("    v%d: %ss -> %s\n", j+1, dur, dest)

		if err := g.API.Download(ctx, url, dest); err != nil {
			downloadsCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "failed")))
			slog.Error("Download failed", "label", label, "url", url, "error", err)
			g.printf("    Download failed: %v\n", err)
			failed++
			continue
		}
		downloadsCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "ok")))
		fetched++
		g.probe(label, dest)
	}

	if fetched == 0 && failed == 0 {
		slog.Warn("Task succeeded without downloadable audio", "label", label)
	}
	return fetched > 0 && failed == 0
}

func (g *Generator) probe(label, path string) {
	if g.Probe == nil {
		return
	}
	info, err := g.Probe(path)
	if err != nil {
		slog.Warn("Downloaded artifact does not decode", "label", label, "file", path, "error", err)
		return
	}
	slog.Debug("Artifact decoded", "label", label, "file", path, "format", info.Format, "duration", info.Duration, "sample_rate", info.SampleRate)
}
