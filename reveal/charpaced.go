package reveal

import (
	"errors"
	"sync"
	"time"
)

// DefaultCharsPerSecond is the default reveal rate.
const DefaultCharsPerSecond = 60.0

// DefaultTickInterval is the default animation tick interval.
const DefaultTickInterval = 33 * time.Millisecond

// ErrCharPacedInvalidConfig is returned when CharPacedConfig is invalid.
var ErrCharPacedInvalidConfig = errors.New("invalid char-paced config: CharsPerSecond must be positive")

// CharPacedConfig configures a CharPacedPacer.
type CharPacedConfig struct {
	// CharsPerSecond is the reveal rate in runes per second (default 60).
	CharsPerSecond float64

	// TickInterval is the animation tick interval (default 33ms).
	TickInterval time.Duration

	// ManualTick disables the internal ticker; the caller drives the
	// reveal via Tick. Used by deterministic callers and tests.
	ManualTick bool

	// Observer receives reveal snapshots. Optional.
	Observer Observer
}

// CharPacedPacer advances a revealed length on every tick at a fixed
// characters-per-second rate, bounded by the committed length and
// independent of delta arrival timing.
type CharPacedPacer struct {
	acc      accumulator
	observer Observer
	cps      float64
	interval time.Duration

	mu      sync.Mutex // guards carry, counters
	carry   float64
	appends int64
	flushes int64

	stopCh   chan struct{}
	loopDone chan struct{}
	stopped  bool
}

// NewCharPacedPacer creates a char-paced pacer. Unless ManualTick is
// set, an internal ticker drives the reveal; Close must be called to
// stop it.
func NewCharPacedPacer(config CharPacedConfig) (*CharPacedPacer, error) {
	if config.CharsPerSecond < 0 {
		return nil, ErrCharPacedInvalidConfig
	}
	if config.CharsPerSecond == 0 {
		config.CharsPerSecond = DefaultCharsPerSecond
	}
	if config.TickInterval <= 0 {
		config.TickInterval = DefaultTickInterval
	}

	p := &CharPacedPacer{
		observer: config.Observer,
		cps:      config.CharsPerSecond,
		interval: config.TickInterval,
		stopCh:   make(chan struct{}),
	}

	if !config.ManualTick {
		p.loopDone = make(chan struct{})
		go p.tickLoop()
	}

	return p, nil
}

// Append commits a delta. The revealed length is untouched; ticks
// advance it.
func (p *CharPacedPacer) Append(delta string) {
	p.acc.append(delta)

	p.mu.Lock()
	p.appends++
	p.mu.Unlock()
}

// Replace overwrites the committed text. A shrink resets the revealed
// length immediately inside the accumulator; the correction is made
// visible without waiting for the next natural advance.
func (p *CharPacedPacer) Replace(text string) {
	p.acc.replace(text)
	p.emit(false)
}

// Tick advances the revealed length by the per-tick rune budget and
// emits a snapshot if it moved.
func (p *CharPacedPacer) Tick() {
	p.mu.Lock()
	p.carry += p.cps * p.interval.Seconds()
	step := int(p.carry)
	p.carry -= float64(step)
	p.mu.Unlock()

	if step <= 0 {
		return
	}
	if p.acc.advance(step) {
		p.emit(false)
	}
}

// Finalize forces the revealed length to the committed length and
// emits a final snapshot. No partial cut-off survives completion.
func (p *CharPacedPacer) Finalize() {
	p.acc.revealAll()
	p.emit(true)
}

// Reset clears all state for a new stream.
func (p *CharPacedPacer) Reset() {
	p.acc.reset()

	p.mu.Lock()
	p.carry = 0
	p.mu.Unlock()
}

// Committed returns the full committed text.
func (p *CharPacedPacer) Committed() string {
	return p.acc.committedText()
}

// Close stops the internal ticker and waits for the ticker goroutine
// to return, including any emit it is still executing. The observer is
// never invoked from the ticker once Close has returned.
func (p *CharPacedPacer) Close() error {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.stopCh)
	}
	p.mu.Unlock()
	if p.loopDone != nil {
		<-p.loopDone
	}
	return nil
}

// Stats returns pacer statistics.
func (p *CharPacedPacer) Stats() Stats {
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

func (p *CharPacedPacer) emit(final bool) {
	p.mu.Lock()
	p.flushes++
	observer := p.observer
	p.mu.Unlock()

	if observer != nil {
		observer(p.acc.snapshot(final))
	}
}

func (p *CharPacedPacer) tickLoop() {
	defer close(p.loopDone)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.Tick()
		case <-p.stopCh:
			return
		}
	}
}

// Verify CharPacedPacer implements Pacer.
var _ Pacer = (*CharPacedPacer)(nil)
