// Package reveal paces the exposure of accumulated stream text to the UI.
//
// Text deltas arrive in network-timed bursts; a Pacer decouples what has
// been received (committed text) from what is shown (the revealed prefix)
// so fast backend bursts do not appear as discontinuous jumps. Two
// strategies are provided: TimeSliced flushes the full committed text at
// a bounded interval, CharPaced advances a revealed length at a fixed
// characters-per-second rate.
package reveal

import (
	"sync"
)

// Snapshot is one observable view of the reveal state.
type Snapshot struct {
	// Text is the revealed prefix.
	Text string
	// CommittedLen is the committed length in runes.
	CommittedLen int
	// RevealedLen is the revealed length in runes.
	RevealedLen int
	// Final is true for the snapshot emitted by Finalize.
	Final bool
}

// Observer receives reveal snapshots. Called from pacer goroutines;
// implementations must be safe for concurrent use.
type Observer func(Snapshot)

// Pacer is the reveal strategy interface.
type Pacer interface {
	// Append commits a text delta.
	Append(delta string)

	// Replace overwrites the committed text (corrective overwrite from
	// the backend). If the text shrinks, the revealed length is reset
	// immediately to match — no ghost trailing characters.
	Replace(text string)

	// Finalize forces the revealed length to the committed length and
	// emits a final snapshot. Called on session completion.
	Finalize()

	// Reset clears all state for a new stream.
	Reset()

	// Committed returns the full committed text.
	Committed() string

	// Close stops any internal timers.
	Close() error

	// Stats returns pacer statistics.
	Stats() Stats
}

// Stats holds pacer observability counters.
type Stats struct {
	// Appends is the number of committed deltas.
	Appends int64
	// Flushes is the number of snapshots delivered to the observer.
	Flushes int64
	// Shrinks is the number of shrink-corrections observed.
	Shrinks int64
	// CommittedLen is the current committed length in runes.
	CommittedLen int
	// RevealedLen is the current revealed length in runes.
	RevealedLen int
}

// accumulator holds committed text and the revealed length, enforcing
// the reveal invariants: revealed never exceeds committed, and revealed
// is monotonically non-decreasing except on shrink-correction or reset.
//
// Text is tracked in runes so pacing never splits a multi-byte character.
type accumulator struct {
	mu        sync.Mutex
	committed []rune
	revealed  int
	shrinks   int64
}

func (a *accumulator) append(delta string) {
	a.mu.Lock()
	a.committed = append(a.committed, []rune(delta)...)
	a.mu.Unlock()
}

func (a *accumulator) replace(text string) {
	a.mu.Lock()
	next := []rune(text)
	if len(next) < len(a.committed) {
		a.shrinks++
		if a.revealed > len(next) {
			a.revealed = len(next)
		}
	}
	a.committed = next
	a.mu.Unlock()
}

// advance moves the revealed length forward by up to n runes,
// bounded by the committed length. Returns true if it moved.
func (a *accumulator) advance(n int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.revealed >= len(a.committed) {
		return false
	}
	a.revealed += n
	if a.revealed > len(a.committed) {
		a.revealed = len(a.committed)
	}
	return true
}

// revealAll snaps the revealed length to the committed length.
func (a *accumulator) revealAll() {
	a.mu.Lock()
	a.revealed = len(a.committed)
	a.mu.Unlock()
}

func (a *accumulator) reset() {
	a.mu.Lock()
	a.committed = nil
	a.revealed = 0
	a.mu.Unlock()
}

// snapshot returns a consistent view of the current state.
func (a *accumulator) snapshot(final bool) Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	return Snapshot{
		Text:         string(a.committed[:a.revealed]),
		CommittedLen: len(a.committed),
		RevealedLen:  a.revealed,
		Final:        final,
	}
}

func (a *accumulator) committedText() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return string(a.committed)
}

func (a *accumulator) lengths() (committed, revealed int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.committed), a.revealed
}

func (a *accumulator) shrinkCount() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.shrinks
}
