package reveal

import (
	"errors"
	"sync"
	"time"
)

// DefaultFlushInterval is the default minimum interval between UI flushes.
const DefaultFlushInterval = 100 * time.Millisecond

// ErrTimeSlicedInvalidConfig is returned when TimeSlicedConfig is invalid.
var ErrTimeSlicedInvalidConfig = errors.New("invalid time-sliced config: FlushInterval must be positive")

// TimeSlicedConfig configures a TimeSlicedPacer.
type TimeSlicedConfig struct {
	// FlushInterval is the minimum interval between observer flushes
	// (default 100ms).
	FlushInterval time.Duration

	// Observer receives reveal snapshots. Optional.
	Observer Observer
}

// TimeSlicedPacer reveals the full committed text but flushes snapshots
// to the observer at most once per interval, regardless of how many
// deltas arrived in between. Later flushes always reflect the full
// prefix already accumulated, so coalescing never violates ordering.
type TimeSlicedPacer struct {
	acc      accumulator
	observer Observer
	interval time.Duration

	mu        sync.Mutex // guards dirty, counters, lastFlush
	dirty     bool
	appends   int64
	flushes   int64
	lastFlush time.Time

	stopCh   chan struct{}
	loopDone chan struct{}
	stopped  bool
}

// NewTimeSlicedPacer creates a time-sliced pacer and starts its flush
// timer. Close must be called to stop the timer.
func NewTimeSlicedPacer(config TimeSlicedConfig) (*TimeSlicedPacer, error) {
	if config.FlushInterval < 0 {
		return nil, ErrTimeSlicedInvalidConfig
	}
	if config.FlushInterval == 0 {
		config.FlushInterval = DefaultFlushInterval
	}

	p := &TimeSlicedPacer{
		observer: config.Observer,
		interval: config.FlushInterval,
		stopCh:   make(chan struct{}),
		loopDone: make(chan struct{}),
	}

	go p.flushLoop()

	return p, nil
}

// Append commits a delta. The observer is flushed immediately if the
// interval has elapsed since the last flush; otherwise the timer loop
// picks it up.
func (p *TimeSlicedPacer) Append(delta string) {
	p.acc.append(delta)
	p.acc.revealAll()

	p.mu.Lock()
	p.appends++
	p.dirty = true
	due := time.Since(p.lastFlush) >= p.interval
	p.mu.Unlock()

	if due {
		p.flush(false)
	}
}

// Replace overwrites the committed text.
func (p *TimeSlicedPacer) Replace(text string) {
	p.acc.replace(text)
	p.acc.revealAll()

	p.mu.Lock()
	p.dirty = true
	p.mu.Unlock()
}

// Finalize flushes the full committed text immediately.
func (p *TimeSlicedPacer) Finalize() {
	p.acc.revealAll()
	p.flush(true)
}

// Reset clears all state for a new stream.
func (p *TimeSlicedPacer) Reset() {
	p.acc.reset()

	p.mu.Lock()
	p.dirty = false
	p.lastFlush = time.Time{}
	p.mu.Unlock()
}

// Committed returns the full committed text.
func (p *TimeSlicedPacer) Committed() string {
	return p.acc.committedText()
}

// Close stops the flush timer and waits for the timer goroutine to
// return, including any flush it is still executing. The observer is
// never invoked from the timer once Close has returned.
func (p *TimeSlicedPacer) Close() error {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.stopCh)
	}
	p.mu.Unlock()
	<-p.loopDone
	return nil
}

// Stats returns pacer statistics.
func (p *TimeSlicedPacer) Stats() Stats {
	committed, revealed := p.acc.lengths()

	p.mu.Lock()
	defer p.mu.Unlock()

	return Stats{
		Appends:      p.appends,
		Flushes:      p.flushes,
		Shrinks:      p.acc.shrinkCount(),
		CommittedLen: committed,
		RevealedLen:  revealed,
	}
}

func (p *TimeSlicedPacer) flush(final bool) {
	p.mu.Lock()
	if !p.dirty && !final {
		p.mu.Unlock()
		return
	}
	p.dirty = false
	p.lastFlush = time.Now()
	p.flushes++
	observer := p.observer
	p.mu.Unlock()

	if observer != nil {
		observer(p.acc.snapshot(final))
	}
}

func (p *TimeSlicedPacer) flushLoop() {
	defer close(p.loopDone)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.flush(false)
		case <-p.stopCh:
			return
		}
	}
}

// Verify TimeSlicedPacer implements Pacer.
var _ Pacer = (*TimeSlicedPacer)(nil)
