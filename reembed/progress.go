package reembed

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// ProgressTracker prints a single self-overwriting line per collection:
//
//	handbook: 200/1000 (20.0%) - 54.3 chunks/s, eta 15s
type ProgressTracker struct {
	mu sync.Mutex

	out      io.Writer
	label    string
	total    int
	every    int
	done     int
	printed  int
	begin    time.Time
	running  bool
	clockNow func() time.Time
}

// NewProgressTracker creates a tracker that prints after every reportInterval
// chunks. An empty label becomes "Progress".
func NewProgressTracker(writer io.Writer, label string, total, reportInterval int) *ProgressTracker {
	if label == "" {
		label = "Progress"
	}
	return &ProgressTracker{
		out:      writer,
		label:    label,
		total:    total,
		every:    max(reportInterval, 1),
		clockNow: time.Now,
	}
}

// Start resets the counters and the clock.
func (p *ProgressTracker) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.begin = p.clockNow()
	p.running = true
	p.done, p.printed = 0, 0
}

// Update records the absolute number of processed chunks, capped at the total.
// Calls before Start are ignored.
func (p *ProgressTracker) Update(done int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}
	p.done = min(done, p.total)
	if p.done-p.printed >= p.every {
		fmt.Fprint(p.out, p.line())
		p.printed = p.done
	}
}

// Finish prints the final line at 100% and terminates it.
func (p *ProgressTracker) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}
	p.done = p.total
	fmt.Fprintln(p.out, p.line())
	p.running = false
}

// Elapsed returns the time since Start.
func (p *ProgressTracker) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.begin.IsZero() {
		return 0
	}
	return p.clockNow().Sub(p.begin)
}

func (p *ProgressTracker) line() string {
	elapsed := p.clockNow().Sub(p.begin).Seconds()

	var rate float64
	if elapsed > 0 {
		rate = float64(p.done) / elapsed
	}
	percent := 100.0
	if p.total > 0 {
		percent = float64(p.done) * 100 / float64(p.total)
	}

	s := fmt.Sprintf("\r%s: %d/%d (%.1f%%) - %.1f chunks/s", p.label, p.done, p.total, percent, rate)
	if remaining := p.total - p.done; remaining > 0 && rate > 0 {
		eta := time.Duration(float64(remaining) / rate * float64(time.Second)).Round(time.Second)
		s += fmt.Sprintf(", eta %s", eta)
	}
	return s
}
