package progress

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"
)

type fixedSource struct {
	mu   sync.Mutex
	snap Snapshot
}

func (f *fixedSource) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestNewProgress(t *testing.T) {
	src := &fixedSource{}
	progress := NewProgress(src, false)

	if progress.source != src {
		t.Error("source not assigned")
	}
	if progress.quiet {
		t.Error("quiet should be false")
	}
}

func TestProgress_QuietMode(t *testing.T) {
	progress := NewProgress(&fixedSource{}, true)

	// Start and stop should not panic in quiet mode
	progress.Start()
	time.Sleep(10 * time.Millisecond)
	progress.Stop()
}

func TestProgress_DoubleStop(t *testing.T) {
	progress := NewProgress(&fixedSource{}, false)
	progress.SetOutput(&bytes.Buffer{})
	progress.Start()

	progress.Stop()
	progress.Stop()
}

func TestProgress_StopWithoutStart(t *testing.T) {
	progress := NewProgress(&fixedSource{}, false)
	progress.SetOutput(&bytes.Buffer{})

	progress.Stop()
}

func TestProgress_Print(t *testing.T) {
	var buf bytes.Buffer
	progress := NewProgress(&fixedSource{}, false)
	progress.SetOutput(&buf)

	progress.Print("ready")
	progress.Printf("drive heading=%.1f°", 12.5)

	output := buf.String()
	if !strings.Contains(output, "ready\n") {
		t.Errorf("expected 'ready' line, got %q", output)
	}
	if !strings.Contains(output, "drive heading=12.5°\n") {
		t.Errorf("expected formatted line, got %q", output)
	}
}

func TestProgress_PrintInQuietMode(t *testing.T) {
	var buf bytes.Buffer
	progress := NewProgress(&fixedSource{}, true)
	progress.SetOutput(&buf)

	progress.Print("end")

	if !strings.Contains(buf.String(), "end\n") {
		t.Errorf("quiet mode should still print lines, got %q", buf.String())
	}
}

func TestProgress_StatusLine(t *testing.T) {
	src := &fixedSource{snap: Snapshot{Last: "strafe", Events: 3, Relays: 1}}
	buf := &syncBuffer{}
	progress := NewProgress(src, false)
	progress.SetOutput(buf)

	progress.Start()
	time.Sleep(1100 * time.Millisecond)
	progress.Stop()

	output := buf.String()
	if !strings.Contains(output, "Last: strafe | Events: 3 | Relays: 1") {
		t.Errorf("expected status line, got %q", output)
	}
}
