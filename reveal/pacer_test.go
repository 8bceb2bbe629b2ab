package reveal

import (
	"strings"
	"sync"
	"testing"
	"time"
)

// recordingObserver collects snapshots for assertions.
type recordingObserver struct {
	mu        sync.Mutex
	snapshots []Snapshot
}

func (o *recordingObserver) observe(s Snapshot) {
	o.mu.Lock()
	o.snapshots = append(o.snapshots, s)
	o.mu.Unlock()
}

func (o *recordingObserver) all() []Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Snapshot(nil), o.snapshots...)
}

func newManualCharPaced(t *testing.T, cps float64, tick time.Duration, obs Observer) *CharPacedPacer {
	t.Helper()
	p, err := NewCharPacedPacer(CharPacedConfig{
		CharsPerSecond: cps,
		TickInterval:   tick,
		ManualTick:     true,
		Observer:       obs,
	})
	if err != nil {
		t.Fatalf("NewCharPacedPacer: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestCharPaced_RevealNeverExceedsCommitted(t *testing.T) {
	obs := &recordingObserver{}
	// 1000 cps at 100ms ticks: 100 runes per tick, far more than committed.
	p := newManualCharPaced(t, 1000, 100*time.Millisecond, obs.observe)

	p.Append("hello")
	p.Tick()
	p.Tick()

	for _, s := range obs.all() {
		if s.RevealedLen > s.CommittedLen {
			t.Fatalf("revealed %d exceeds committed %d", s.RevealedLen, s.CommittedLen)
		}
	}

	stats := p.Stats()
	if stats.RevealedLen != 5 || stats.CommittedLen != 5 {
		t.Errorf("expected full reveal of 5 runes, got %+v", stats)
	}
}

func TestCharPaced_MonotonicReveal(t *testing.T) {
	obs := &recordingObserver{}
	// 100 cps at 50ms ticks: 5 runes per tick.
	p := newManualCharPaced(t, 100, 50*time.Millisecond, obs.observe)

	p.Append(strings.Repeat("x", 20))
	for i := 0; i < 6; i++ {
		p.Tick()
	}

	snaps := obs.all()
	if len(snaps) == 0 {
		t.Fatal("expected snapshots")
	}
	prev := -1
	for _, s := range snaps {
		if s.RevealedLen < prev {
			t.Fatalf("reveal regressed: %d -> %d", prev, s.RevealedLen)
		}
		prev = s.RevealedLen
	}
	if prev != 20 {
		t.Errorf("expected final reveal 20, got %d", prev)
	}
}

func TestCharPaced_ShrinkCorrectionResetsReveal(t *testing.T) {
	p := newManualCharPaced(t, 1000, 100*time.Millisecond, nil)

	p.Append("abcdefghij")
	p.Tick()
	if _, revealed := p.acc.lengths(); revealed != 10 {
		t.Fatalf("expected reveal 10 before shrink, got %d", revealed)
	}

	p.Replace("abc")
	committed, revealed := p.acc.lengths()
	if committed != 3 || revealed != 3 {
		t.Errorf("shrink should reset reveal: committed=%d revealed=%d", committed, revealed)
	}
	if p.Stats().Shrinks != 1 {
		t.Errorf("expected 1 shrink, got %d", p.Stats().Shrinks)
	}
}

func TestCharPaced_FinalizeForcesFullReveal(t *testing.T) {
	obs := &recordingObserver{}
	// 1 cps: no tick could ever reveal all of this naturally.
	p := newManualCharPaced(t, 1, time.Millisecond, obs.observe)

	p.Append("slow reveal text")
	p.Finalize()

	snaps := obs.all()
	last := snaps[len(snaps)-1]
	if !last.Final {
		t.Error("expected final snapshot")
	}
	if last.Text != "slow reveal text" {
		t.Errorf("finalize should reveal everything, got %q", last.Text)
	}
}

func TestCharPaced_FractionalRateAccumulates(t *testing.T) {
	// 10 cps at 50ms ticks: 0.5 runes per tick; reveal moves every 2nd tick.
	p := newManualCharPaced(t, 10, 50*time.Millisecond, nil)
	p.Append("abcd")

	p.Tick()
	if _, revealed := p.acc.lengths(); revealed != 0 {
		t.Fatalf("expected no reveal after half a rune, got %d", revealed)
	}
	p.Tick()
	if _, revealed := p.acc.lengths(); revealed != 1 {
		t.Fatalf("expected 1 rune after two ticks, got %d", revealed)
	}
}

func TestCharPaced_MultiByteRunesNeverSplit(t *testing.T) {
	obs := &recordingObserver{}
	// 20 cps at 50ms ticks: 1 rune per tick.
	p := newManualCharPaced(t, 20, 50*time.Millisecond, obs.observe)

	p.Append("héllo")
	p.Tick()
	p.Tick()

	snaps := obs.all()
	last := snaps[len(snaps)-1]
	if last.Text != "hé" {
		t.Errorf("expected %q, got %q", "hé", last.Text)
	}
}

func TestTimeSliced_CoalescesFlushes(t *testing.T) {
	obs := &recordingObserver{}
	p, err := NewTimeSlicedPacer(TimeSlicedConfig{
		FlushInterval: time.Hour, // only explicit flushes during the test
		Observer:      obs.observe,
	})
	if err != nil {
		t.Fatalf("NewTimeSlicedPacer: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })

	// First append flushes (interval since zero lastFlush has elapsed);
	// the rest coalesce behind the interval.
	for _, d := range []string{"a", "b", "c", "d"} {
		p.Append(d)
	}
	p.Finalize()

	snaps := obs.all()
	if len(snaps) != 2 {
		t.Fatalf("expected 2 flushes (first append + finalize), got %d", len(snaps))
	}
	last := snaps[len(snaps)-1]
	if last.Text != "abcd" || !last.Final {
		t.Errorf("final flush should carry the full prefix, got %+v", last)
	}
}

func TestTimeSliced_LaterFlushesReflectFullPrefix(t *testing.T) {
	obs := &recordingObserver{}
	p, err := NewTimeSlicedPacer(TimeSlicedConfig{
		FlushInterval: 10 * time.Millisecond,
		Observer:      obs.observe,
	})
	if err != nil {
		t.Fatalf("NewTimeSlicedPacer: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })

	p.Append("one ")
	p.Append("two ")
	p.Append("three")
	p.Finalize()

	snaps := obs.all()
	for i := 1; i < len(snaps); i++ {
		if !strings.HasPrefix(snaps[i].Text, snaps[i-1].Text) {
			t.Fatalf("flush %d (%q) is not an extension of flush %d (%q)",
				i, snaps[i].Text, i-1, snaps[i-1].Text)
		}
	}
	if got := snaps[len(snaps)-1].Text; got != "one two three" {
		t.Errorf("expected full text, got %q", got)
	}
}

func TestTimeSliced_CloseWaitsForInFlightFlush(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	p, err := NewTimeSlicedPacer(TimeSlicedConfig{
		FlushInterval: 5 * time.Millisecond,
		Observer: func(Snapshot) {
			once.Do(func() {
				close(entered)
				<-release
			})
		},
	})
	if err != nil {
		t.Fatalf("NewTimeSlicedPacer: %v", err)
	}

	// Replace marks dirty without flushing, so the flush that enters
	// the observer comes from the timer goroutine.
	p.Replace("hello")
	<-entered

	closed := make(chan struct{})
	go func() {
		_ = p.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned while a flush was still executing")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close never returned after the flush completed")
	}
}

func TestCharPaced_CloseWaitsForInFlightEmit(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	p, err := NewCharPacedPacer(CharPacedConfig{
		CharsPerSecond: 1000,
		TickInterval:   time.Millisecond,
		Observer: func(Snapshot) {
			once.Do(func() {
				close(entered)
				<-release
			})
		},
	})
	if err != nil {
		t.Fatalf("NewCharPacedPacer: %v", err)
	}

	p.Append("hello world")
	<-entered // ticker goroutine is inside the observer

	closed := make(chan struct{})
	go func() {
		_ = p.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned while an emit was still executing")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close never returned after the emit completed")
	}
}

func TestPacer_ResetClearsState(t *testing.T) {
	p := newManualCharPaced(t, 100, 50*time.Millisecond, nil)

	p.Append("first stream")
	p.Tick()
	p.Reset()

	stats := p.Stats()
	if stats.CommittedLen != 0 || stats.RevealedLen != 0 {
		t.Errorf("reset should clear lengths, got %+v", stats)
	}
	if p.Committed() != "" {
		t.Errorf("reset should clear text, got %q", p.Committed())
	}
}
