// Package metrics provides per-session metrics collection.
//
// The Collector accumulates counters during a single stream session. It
// is a leaf package with no internal dependencies. All increment methods
// are nil-receiver safe so callers never need to guard instrumentation.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of session metrics.
// Safe to read concurrently after creation.
type Snapshot struct {
	// Session lifecycle
	SessionsStarted   int64
	SessionsCompleted int64
	SessionsFailed    int64
	SessionsAborted   int64

	// Ingestion
	RecordsReceived int64
	DecodeErrors    int64
	TextDeltas      int64
	ToolEvents      int64
	UnknownRecords  int64

	// Materialization
	ArtifactsCreated int64
	ArtifactUpdates  int64
	ArtifactNoOps    int64
	LegacyExtracts   int64

	// Recovery
	Retries int64

	// Dimensions (informational, set at construction)
	Pacer          string
	StoreBackend   string
	SessionID      string
	ConversationID string
}

// Collector accumulates metrics during a single session.
// Thread-safe via sync.Mutex.
type Collector struct {
	mu sync.Mutex

	sessionsStarted   int64
	sessionsCompleted int64
	sessionsFailed    int64
	sessionsAborted   int64

	recordsReceived int64
	decodeErrors    int64
	textDeltas      int64
	toolEvents      int64
	unknownRecords  int64

	artifactsCreated int64
	artifactUpdates  int64
	artifactNoOps    int64
	legacyExtracts   int64

	retries int64

	pacer          string
	storeBackend   string
	sessionID      string
	conversationID string
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(pacer, storeBackend, sessionID, conversationID string) *Collector {
	return &Collector{
		pacer:          pacer,
		storeBackend:   storeBackend,
		sessionID:      sessionID,
		conversationID: conversationID,
	}
}

func (c *Collector) inc(field *int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	*field++
	c.mu.Unlock()
}

// IncSessionStarted records a session start.
func (c *Collector) IncSessionStarted() {
	if c == nil {
		return
	}
	c.inc(&c.sessionsStarted)
}

// IncSessionCompleted records a successful completion.
func (c *Collector) IncSessionCompleted() {
	if c == nil {
		return
	}
	c.inc(&c.sessionsCompleted)
}

// IncSessionFailed records a terminal error.
func (c *Collector) IncSessionFailed() {
	if c == nil {
		return
	}
	c.inc(&c.sessionsFailed)
}

// IncSessionAborted records a user-initiated abort.
func (c *Collector) IncSessionAborted() {
	if c == nil {
		return
	}
	c.inc(&c.sessionsAborted)
}

// IncRecordsReceived records one decoded record.
func (c *Collector) IncRecordsReceived() {
	if c == nil {
		return
	}
	c.inc(&c.recordsReceived)
}

// IncDecodeErrors records a malformed record.
func (c *Collector) IncDecodeErrors() {
	if c == nil {
		return
	}
	c.inc(&c.decodeErrors)
}

// IncTextDeltas records a text delta.
func (c *Collector) IncTextDeltas() {
	if c == nil {
		return
	}
	c.inc(&c.textDeltas)
}

// IncToolEvents records a tool-lifecycle event.
func (c *Collector) IncToolEvents() {
	if c == nil {
		return
	}
	c.inc(&c.toolEvents)
}

// IncUnknownRecords records an ignored unrecognized record.
func (c *Collector) IncUnknownRecords() {
	if c == nil {
		return
	}
	c.inc(&c.unknownRecords)
}

// IncArtifactsCreated records an artifact creation.
func (c *Collector) IncArtifactsCreated() {
	if c == nil {
		return
	}
	c.inc(&c.artifactsCreated)
}

// IncArtifactUpdates records an applied artifact patch.
func (c *Collector) IncArtifactUpdates() {
	if c == nil {
		return
	}
	c.inc(&c.artifactUpdates)
}

// IncArtifactNoOps records a duplicate payload that changed nothing.
func (c *Collector) IncArtifactNoOps() {
	if c == nil {
		return
	}
	c.inc(&c.artifactNoOps)
}

// IncLegacyExtracts records an embedded-JSON extraction.
func (c *Collector) IncLegacyExtracts() {
	if c == nil {
		return
	}
	c.inc(&c.legacyExtracts)
}

// IncRetries records one retry attempt.
func (c *Collector) IncRetries() {
	if c == nil {
		return
	}
	c.inc(&c.retries)
}

// Snapshot returns a point-in-time view of all counters.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		SessionsStarted:   c.sessionsStarted,
		SessionsCompleted: c.sessionsCompleted,
		SessionsFailed:    c.sessionsFailed,
		SessionsAborted:   c.sessionsAborted,
		RecordsReceived:   c.recordsReceived,
		DecodeErrors:      c.decodeErrors,
		TextDeltas:        c.textDeltas,
		ToolEvents:        c.toolEvents,
		UnknownRecords:    c.unknownRecords,
		ArtifactsCreated:  c.artifactsCreated,
		ArtifactUpdates:   c.artifactUpdates,
		ArtifactNoOps:     c.artifactNoOps,
		LegacyExtracts:    c.legacyExtracts,
		Retries:           c.retries,
		Pacer:             c.pacer,
		StoreBackend:      c.storeBackend,
		SessionID:         c.sessionID,
		ConversationID:    c.conversationID,
	}
}
