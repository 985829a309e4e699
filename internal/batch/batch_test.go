package batch

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"image-converter-go/internal/converter"
	"image-converter-go/internal/history"

	"github.com/sirupsen/logrus"
)

// scriptedConverter fails for paths containing "bad" and records call order.
type scriptedConverter struct {
	calls    []string
	inFlight int
	overlap  bool
}

func (c *scriptedConverter) Convert(ctx context.Context, req converter.Request) converter.Result {
	c.inFlight++
	if c.inFlight > 1 {
		c.overlap = true
	}
	defer func() { c.inFlight-- }()

	c.calls = append(c.calls, req.SourcePath)
	if strings.Contains(req.SourcePath, "bad") {
		return converter.Result{OriginalPath: req.SourcePath, Error: "corrupt header"}
	}
	return converter.Result{
		Success:          true,
		OriginalPath:     req.SourcePath,
		OutputPath:       req.OutputPath(),
		OriginalSize:     1000,
		NewSize:          400,
		CompressionRatio: "60.00",
	}
}

type recordingHistory struct {
	items []history.Item
	err   error
}

func (h *recordingHistory) Append(item history.Item) error {
	h.items = append([]history.Item{item}, h.items...)
	return h.err
}

type recordingDirs struct {
	dirs []string
}

func (d *recordingDirs) SetLastOutputDirectory(dir string) error {
	d.dirs = append(d.dirs, dir)
	return nil
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestRunIsSequentialAndContinuesPastFailures(t *testing.T) {
	conv := &scriptedConverter{}
	hist := &recordingHistory{}
	runner := NewRunner(conv, hist, quietLogger())

	session := NewSession(Settings{Quality: 80, Format: converter.FormatWebP})
	session.Add("/a/one.png", "/a/bad.png", "/a/three.png")

	stats := runner.Run(context.Background(), session)

	expected := []string{"/a/one.png", "/a/bad.png", "/a/three.png"}
	if strings.Join(conv.calls, ",") != strings.Join(expected, ",") {
		t.Errorf("Expected call order %v, got %v", expected, conv.calls)
	}
	if conv.overlap {
		t.Error("Conversions overlapped")
	}

	items := session.Items()
	wantStatus := []Status{StatusConverted, StatusError, StatusConverted}
	for i, it := range items {
		if it.Status != wantStatus[i] {
			t.Errorf("Item %d: expected %s, got %s", i, wantStatus[i], it.Status)
		}
	}
	if items[1].Error != "corrupt header" {
		t.Errorf("Expected inline error, got %q", items[1].Error)
	}
	if items[0].OutputPath != "/a/one.webp" || items[0].CompressionRatio != "60.00" {
		t.Errorf("Unexpected result fields: %+v", items[0])
	}

	if stats.FilesConverted != 2 || stats.FilesFailed != 1 || stats.TotalFiles != 3 {
		t.Errorf("Unexpected stats: %+v", stats.Snapshot())
	}

	if len(hist.items) != 2 {
		t.Fatalf("Expected 2 history entries, got %d", len(hist.items))
	}
	if hist.items[0].OriginalPath != "/a/three.png" || hist.items[1].OriginalPath != "/a/one.png" {
		t.Errorf("History not in most-recent-first order: %+v", hist.items)
	}
	if hist.items[1].ID != items[0].ID {
		t.Errorf("History id should match item id: %s vs %s", hist.items[1].ID, items[0].ID)
	}
}

func TestRunSkipsFinishedItems(t *testing.T) {
	conv := &scriptedConverter{}
	runner := NewRunner(conv, nil, quietLogger())
	session := NewSession(Settings{Quality: 80, Format: converter.FormatPNG})
	session.Add("/a/one.png")

	runner.Run(context.Background(), session)
	session.Add("/a/two.png")
	runner.Run(context.Background(), session)

	if len(conv.calls) != 2 || conv.calls[1] != "/a/two.png" {
		t.Errorf("Expected only the new item on second run, got %v", conv.calls)
	}
}

func TestRunReportsStatusTransitions(t *testing.T) {
	runner := NewRunner(&scriptedConverter{}, nil, quietLogger())
	var seen []Status
	runner.SetUpdateCallback(func(it Item) { seen = append(seen, it.Status) })

	session := NewSession(Settings{Quality: 80, Format: converter.FormatJPG})
	session.Add("/a/one.png", "/a/bad.png")
	runner.Run(context.Background(), session)

	expected := []Status{StatusConverting, StatusConverted, StatusConverting, StatusError}
	if len(seen) != len(expected) {
		t.Fatalf("Expected %v, got %v", expected, seen)
	}
	for i := range expected {
		if seen[i] != expected[i] {
			t.Errorf("Transition %d: expected %s, got %s", i, expected[i], seen[i])
		}
	}
}

func TestRunRemembersOutputDirectory(t *testing.T) {
	dirs := &recordingDirs{}
	runner := NewRunner(&scriptedConverter{}, nil, quietLogger())
	runner.SetDirectoryRecorder(dirs)

	runner.Run(context.Background(), NewSession(Settings{Quality: 80, Format: converter.FormatWebP, OutputDirectory: "  "}))
	if len(dirs.dirs) != 0 {
		t.Errorf("Blank output directory should not be remembered, got %v", dirs.dirs)
	}

	runner.Run(context.Background(), NewSession(Settings{Quality: 80, Format: converter.FormatWebP, OutputDirectory: "/out"}))
	if len(dirs.dirs) != 1 || dirs.dirs[0] != "/out" {
		t.Errorf("Expected /out to be remembered, got %v", dirs.dirs)
	}
}

func TestRunToleratesHistoryErrors(t *testing.T) {
	hist := &recordingHistory{err: errors.New("disk full")}
	runner := NewRunner(&scriptedConverter{}, hist, quietLogger())
	session := NewSession(Settings{Quality: 80, Format: converter.FormatWebP})
	session.Add("/a/one.png", "/a/two.png")

	stats := runner.Run(context.Background(), session)
	if stats.FilesConverted != 2 {
		t.Errorf("History errors must not fail conversions, got %d converted", stats.FilesConverted)
	}
}

func TestSessionRemove(t *testing.T) {
	session := NewSession(Settings{})
	added := session.Add("/a/one.png", "/a/two.png")

	if !session.Remove(added[0].ID) {
		t.Fatal("Expected item to be removed")
	}
	if session.Remove("missing") {
		t.Error("Removing an unknown id should report false")
	}
	items := session.Items()
	if len(items) != 1 || items[0].Path != "/a/two.png" {
		t.Errorf("Unexpected items after remove: %+v", items)
	}

	session.RemoveAll()
	if len(session.Items()) != 0 {
		t.Error("Expected empty session")
	}
}

func TestSessionAddReadsSize(t *testing.T) {
	session := NewSession(Settings{})
	added := session.Add("/definitely/not/here.png")
	if added[0].Size != 0 || added[0].Status != StatusPending || added[0].Name != "here.png" {
		t.Errorf("Unexpected item: %+v", added[0])
	}
	if added[0].ID == "" {
		t.Error("Expected generated id")
	}
}
