package metrics

import (
	"sync"
	"testing"
)

func TestCollector_CountersAccumulate(t *testing.T) {
	c := NewCollector("time-sliced", "memory", "sess-1", "conv-1")

	c.IncSessionStarted()
	c.IncTextDeltas()
	c.IncTextDeltas()
	c.IncToolEvents()
	c.IncDecodeErrors()
	c.IncArtifactsCreated()
	c.IncArtifactUpdates()
	c.IncArtifactNoOps()
	c.IncRetries()
	c.IncSessionCompleted()

	snap := c.Snapshot()
	if snap.TextDeltas != 2 {
		t.Errorf("text deltas %d", snap.TextDeltas)
	}
	if snap.ToolEvents != 1 || snap.DecodeErrors != 1 || snap.Retries != 1 {
		t.Errorf("snapshot %+v", snap)
	}
	if snap.SessionsStarted != 1 || snap.SessionsCompleted != 1 {
		t.Errorf("lifecycle %+v", snap)
	}
	if snap.Pacer != "time-sliced" || snap.StoreBackend != "memory" {
		t.Errorf("dimensions %+v", snap)
	}
	if snap.SessionID != "sess-1" || snap.ConversationID != "conv-1" {
		t.Errorf("identity %+v", snap)
	}
}

func TestCollector_NilReceiverSafe(t *testing.T) {
	var c *Collector

	// None of these may panic.
	c.IncSessionStarted()
	c.IncTextDeltas()
	c.IncRetries()

	snap := c.Snapshot()
	if snap.TextDeltas != 0 {
		t.Errorf("nil collector snapshot %+v", snap)
	}
}

func TestCollector_ConcurrentIncrements(t *testing.T) {
	c := NewCollector("time-sliced", "memory", "sess-1", "conv-1")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.IncRecordsReceived()
			}
		}()
	}
	wg.Wait()

	if got := c.Snapshot().RecordsReceived; got != 800 {
		t.Errorf("records %d, want 800", got)
	}
}
