// Package progress renders a live status line for the watch client.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot is what the status line shows.
type Snapshot struct {
	Last   string
	Events int64
	Relays int64
}

// Source supplies the current Snapshot.
type Source interface {
	Snapshot() Snapshot
}

type Progress struct {
	startTime time.Time
	source    Source
	ticker    *time.Ticker
	stopCh    chan struct{}
	stopped   atomic.Bool
	quiet     bool
	output    io.Writer
	mu        sync.Mutex
}

func NewProgress(src Source, quiet bool) *Progress {
	return &Progress{
		source: src,
		quiet:  quiet,
		output: os.Stderr,
	}
}

func (p *Progress) SetOutput(w io.Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.output = w
}

func (p *Progress) Start() {
	if p.quiet {
		return
	}
	p.startTime = time.Now()
	p.stopCh = make(chan struct{})
	p.ticker = time.NewTicker(1 * time.Second)
	go p.run()
}

func (p *Progress) run() {
	for {
		select {
		case <-p.stopCh:
			return
		case <-p.ticker.C:
			p.printStatus()
		}
	}
}

func (p *Progress) printStatus() {
	s := p.source.Snapshot()
	elapsed := time.Since(p.startTime).Round(time.Second)
	mins := int(elapsed.Minutes())
	secs := int(elapsed.Seconds()) % 60
	last := s.Last
	if last == "" {
		last = "-"
	}
	p.mu.Lock()
	fmt.Fprintf(p.output, "\r\033[K[%02d:%02d] Last: %s | Events: %d | Relays: %d",
		mins, secs, last, s.Events, s.Relays)
	p.mu.Unlock()
}

func (p *Progress) Stop() {
	if p.quiet || p.stopped.Swap(true) {
		return
	}
	if p.ticker != nil {
		p.ticker.Stop()
	}
	if p.stopCh != nil {
		close(p.stopCh)
	}
	p.mu.Lock()
	fmt.Fprintf(p.output, "\r\033[K")
	p.mu.Unlock()
}

// Print writes a full line above the status line. Lines are printed even in
// quiet mode; only the status line is suppressed.
func (p *Progress) Print(message string) {
	p.mu.Lock()
	fmt.Fprintf(p.output, "\r\033[K%s\n", message)
	p.mu.Unlock()
}

func (p *Progress) Printf(format string, args ...interface{}) {
	p.Print(fmt.Sprintf(format, args...))
}
