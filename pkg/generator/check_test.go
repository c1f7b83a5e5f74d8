package generator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/wachiwi/suno-sounds/pkg/audioinfo"
	"github.com/wachiwi/suno-sounds/pkg/status"
)

func seed(t *testing.T, g *Generator, labels map[string]string) {
	t.Helper()
	f := status.NewFile()
	for label, taskID := range labels {
		f.Put(label, taskID, time.Now())
	}
	if err := g.Store.Save(f); err != nil {
		t.Fatal(err)
	}
}

func TestCheckStatusEmpty(t *testing.T) {
	g, out := newTestGenerator(t, newFakeAPI())
	report, err := g.CheckStatus(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if *report != (CheckReport{}) || !strings.Contains(out.String(), "No pending tasks.") {
		t.Errorf("unexpected report %+v output %q", report, out.String())
	}
}

func TestCheckStatusLifecycle(t *testing.T) {
	api := newFakeAPI()
	g, out := newTestGenerator(t, api)
	seed(t, g, map[string]string{
		"whistle": "t-whistle",
		"crowd":   "t-crowd",
		"theme":   "t-theme",
		"buzzer":  "t-buzzer",
		"horn":    "t-horn",
	})
	api.setStatus("t-whistle", "SUCCESS", "http://cdn/w1.mp3", "http://cdn/w2.mp3")
	api.setStatus("t-crowd", "TEXT_SUCCESS")
	api.setStatus("t-theme", "FAILED")
	api.setStatus("t-buzzer", "SUCCESS", "http://cdn/buzzer.mp3")
	api.pollErr["t-horn"] = errors.New("timeout")

	report, err := g.CheckStatus(context.Background())
	if err != nil {
		t.Fatalf("CheckStatus failed: %v", err)
	}
	want := CheckReport{Downloaded: 2, Pending: 2, Failed: 1, TotalDone: 2}
	if *report != want {
		t.Errorf("report = %+v, want %+v", *report, want)
	}

	for _, name := range []string{"whistle_v1.mp3", "whistle_v2.mp3", "buzzer.mp3"} {
		if _, err := os.Stat(filepath.Join(g.OutputDir, name)); err != nil {
			t.Errorf("missing artifact %s: %v", name, err)
		}
	}

	f := load(t, g)
	expect := map[string]status.Status{
		"whistle": status.Downloaded,
		"buzzer":  status.Downloaded,
		"crowd":   status.TextSuccess,
		"theme":   status.Failed,
		"horn":    status.Pending,
	}
	for label, st := range expect {
		if got := f.Tasks[label].Status; got != st {
			t.Errorf("%s: status %v, want %v", label, got, st)
		}
	}
	if f.IsCompleted("theme") {
		t.Error("failed label must stay out of the completed set")
	}
	if !f.IsCompleted("whistle") || !f.IsCompleted("buzzer") {
		t.Errorf("completed set wrong: %v", f.Completed)
	}
	if !strings.Contains(out.String(), "Re-submit this sound to retry") {
		t.Errorf("missing resubmit hint:\n%s", out.String())
	}
}

func TestCompletedNeverRedownloaded(t *testing.T) {
	api := newFakeAPI()
	g, _ := newTestGenerator(t, api)
	seed(t, g, map[string]string{"whistle": "t-whistle"})
	api.setStatus("t-whistle", "SUCCESS", "http://cdn/w.mp3")

	ctx := context.Background()
	if _, err := g.CheckStatus(ctx); err != nil {
		t.Fatal(err)
	}
	if len(api.fetched) != 1 {
		t.Fatalf("expected 1 download, got %v", api.fetched)
	}

	for i := 0; i < 3; i++ {
		if _, err := g.CheckStatus(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if len(api.fetched) != 1 || len(api.polled) != 1 {
		t.Errorf("completed label touched again: polled %v fetched %v", api.polled, api.fetched)
	}

	// A completed label whose record was reset by hand is still skipped.
	f := load(t, g)
	f.Tasks["whistle"].Status = status.Pending
	if err := g.Store.Save(f); err != nil {
		t.Fatal(err)
	}
	if _, err := g.CheckStatus(ctx); err != nil {
		t.Fatal(err)
	}
	if len(api.polled) != 1 {
		t.Errorf("completed label polled again: %v", api.polled)
	}
}

func TestFailedLabelCanBeResubmitted(t *testing.T) {
	api := newFakeAPI()
	g, _ := newTestGenerator(t, api)
	ctx := context.Background()

	if _, err := g.SubmitBatch(ctx, defs[:1], BatchOptions{}); err != nil {
		t.Fatal(err)
	}
	first := load(t, g).Tasks["whistle"].TaskID
	api.setStatus(first, "GENERATE_AUDIO_FAILED")

	report, err := g.CheckStatus(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.Failed != 1 {
		t.Fatalf("expected failure, got %+v", report)
	}

	if _, err := g.SubmitBatch(ctx, defs[:1], BatchOptions{}); err != nil {
		t.Fatal(err)
	}
	f := load(t, g)
	rec := f.Tasks["whistle"]
	if rec.TaskID == first || rec.Status != status.Pending {
		t.Errorf("resubmission not recorded: %+v", rec)
	}
	if len(f.Tasks) != 1 {
		t.Errorf("duplicate records: %+v", f.Tasks)
	}
}

func TestCheckStatusPartialDownloadRetries(t *testing.T) {
	api := newFakeAPI()
	g, _ := newTestGenerator(t, api)
	seed(t, g, map[string]string{"whistle": "t-whistle"})
	api.setStatus("t-whistle", "SUCCESS", "http://cdn/ok.mp3", "http://cdn/broken.mp3")
	api.badURLs["http://cdn/broken.mp3"] = true

	ctx := context.Background()
	report, err := g.CheckStatus(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.Downloaded != 0 || report.Pending != 1 {
		t.Errorf("unexpected report %+v", report)
	}
	f := load(t, g)
	if f.Tasks["whistle"].Status != status.Success || f.IsCompleted("whistle") {
		t.Errorf("partial download marked done: %+v %v", f.Tasks["whistle"], f.Completed)
	}

	delete(api.badURLs, "http://cdn/broken.mp3")
	report, err = g.CheckStatus(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.Downloaded != 1 {
		t.Errorf("retry did not finish: %+v", report)
	}
	if _, err := os.Stat(filepath.Join(g.OutputDir, "whistle_v2.mp3")); err != nil {
		t.Errorf("second variant missing: %v", err)
	}
}

func TestCheckStatusSuccessWithoutAudio(t *testing.T) {
	api := newFakeAPI()
	g, _ := newTestGenerator(t, api)
	seed(t, g, map[string]string{"whistle": "t-whistle"})
	api.setStatus("t-whistle", "SUCCESS")

	report, err := g.CheckStatus(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Downloaded != 0 || report.Pending != 1 {
		t.Errorf("unexpected report %+v", report)
	}
}

func TestCheckStatusUnknownCountsPending(t *testing.T) {
	api := newFakeAPI()
	g, _ := newTestGenerator(t, api)
	seed(t, g, map[string]string{"whistle": "t-whistle"})
	api.setStatus("t-whistle", "UNKNOWN")

	report, err := g.CheckStatus(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Pending != 1 {
		t.Errorf("unexpected report %+v", report)
	}
	if got := load(t, g).Tasks["whistle"].Status; got != status.Pending {
		t.Errorf("unknown remote status changed record to %v", got)
	}
}

func TestCheckStatusProbeFailureIsNotFatal(t *testing.T) {
	api := newFakeAPI()
	g, _ := newTestGenerator(t, api)
	g.Probe = func(string) (*audioinfo.Info, error) { return nil, audioinfo.ErrUnknownFormat }
	seed(t, g, map[string]string{"whistle": "t-whistle"})
	api.setStatus("t-whistle", "SUCCESS", "http://cdn/w.mp3")

	report, err := g.CheckStatus(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Downloaded != 1 {
		t.Errorf("probe failure blocked completion: %+v", report)
	}
}

func TestArtifactPath(t *testing.T) {
	if got := ArtifactPath("out", "whistle", 0, 1); got != filepath.Join("out", "whistle.mp3") {
		t.Errorf("single artifact path %q", got)
	}
	if got := ArtifactPath("out", "whistle", 1, 2); got != filepath.Join("out", "whistle_v2.mp3") {
		t.Errorf("variant path %q", got)
	}
}
