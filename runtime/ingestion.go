// Package runtime orchestrates stream sessions: it dispatches decoded
// records to the reveal pacer and artifact materializer, and owns the
// per-conversation session lifecycle.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/inletlabs/inlet/artifact"
	"github.com/inletlabs/inlet/journal"
	"github.com/inletlabs/inlet/log"
	"github.com/inletlabs/inlet/metrics"
	"github.com/inletlabs/inlet/reveal"
	"github.com/inletlabs/inlet/sse"
	"github.com/inletlabs/inlet/types"
)

// IngestErrorKind classifies ingestion failures for outcome determination.
type IngestErrorKind int

const (
	// IngestErrorTransport indicates a transport or fatal decode failure.
	IngestErrorTransport IngestErrorKind = iota
	// IngestErrorWire indicates an explicit error record on the stream.
	IngestErrorWire
	// IngestErrorCanceled indicates context cancellation.
	IngestErrorCanceled
)

// IngestError classifies ingestion errors.
type IngestError struct {
	Kind IngestErrorKind
	Err  error
}

func (e *IngestError) Error() string {
	return e.Err.Error()
}

func (e *IngestError) Unwrap() error {
	return e.Err
}

// IsCanceledError returns true if the error is due to context cancellation.
func IsCanceledError(err error) bool {
	var ingErr *IngestError
	if errors.As(err, &ingErr) {
		return ingErr.Kind == IngestErrorCanceled
	}
	return false
}

// IsWireError returns true if the error came from an explicit error record.
func IsWireError(err error) bool {
	var ingErr *IngestError
	if errors.As(err, &ingErr) {
		return ingErr.Kind == IngestErrorWire
	}
	return false
}

// StatusSink receives ordered notifications from the engine. Calls are
// made synchronously, one per record, in arrival order; implementations
// must not reorder or coalesce tool events.
type StatusSink interface {
	// OnStreamActivity fires on the first text or tool record
	// (connecting -> streaming).
	OnStreamActivity()
	// OnThinking delivers ephemeral narration.
	OnThinking(st *types.ThinkingStatus)
	// OnTool delivers a tool-lifecycle event.
	OnTool(ev *types.ToolEvent)
	// OnConversationID delivers the backend-assigned conversation id.
	OnConversationID(id string)
}

// Engine consumes one decoded record stream and routes each record to
// its handler. Exactly one branch fires per record; unrecognized
// records are ignored for forward compatibility.
//
// Ordering: records are processed strictly in arrival order and handler
// calls are synchronous, so tool-lifecycle events reach the sink in the
// exact wire order. Text deltas may later be coalesced by the pacer for
// UI flushing; that never violates ordering because every flush carries
// the full accumulated prefix.
type Engine struct {
	decoder      *sse.Decoder
	pacer        reveal.Pacer
	materializer *artifact.Materializer
	sink         StatusSink
	logger       *log.Logger
	collector    *metrics.Collector
	journal      *journal.Writer

	started  bool
	doneSeen bool
	toolLog  []types.ToolResult
}

// NewEngine creates an ingestion engine over the transport's byte stream.
func NewEngine(
	r io.Reader,
	pacer reveal.Pacer,
	materializer *artifact.Materializer,
	sink StatusSink,
	logger *log.Logger,
	collector *metrics.Collector,
	jw *journal.Writer,
) *Engine {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Engine{
		decoder:      sse.NewDecoder(r),
		pacer:        pacer,
		materializer: materializer,
		sink:         sink,
		logger:       logger,
		collector:    collector,
		journal:      jw,
	}
}

// Run runs the ingestion loop until the sentinel, EOF, or a fatal error.
// Returns:
//   - nil: [DONE] sentinel received
//   - *IngestError with Kind=IngestErrorTransport: transport/decode failure,
//     or stream closed before the sentinel
//   - *IngestError with Kind=IngestErrorWire: explicit error record
//   - *IngestError with Kind=IngestErrorCanceled: context canceled
func (e *Engine) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return &IngestError{Kind: IngestErrorCanceled, Err: ctx.Err()}
		default:
		}

		record, err := e.decoder.Next()
		if err != nil {
			// An abort closes the transport reader to unblock the read;
			// the resulting read error is cancellation, not a fault.
			if ctx.Err() != nil {
				return &IngestError{Kind: IngestErrorCanceled, Err: ctx.Err()}
			}

			if errors.Is(err, io.EOF) {
				if e.doneSeen {
					return nil
				}
				// EOF before the sentinel means the transport dropped
				// mid-stream.
				return &IngestError{
					Kind: IngestErrorTransport,
					Err:  errors.New("stream closed before completion"),
				}
			}

			var decErr *sse.DecodeError
			if errors.As(err, &decErr) && !decErr.IsFatal() {
				// One malformed record does not abort the stream.
				e.collector.IncDecodeErrors()
				e.logger.Warn("malformed record skipped", map[string]any{
					"error": decErr.Error(),
				})
				continue
			}

			e.logger.Error("stream read failed", map[string]any{
				"error": err.Error(),
			})
			return &IngestError{
				Kind: IngestErrorTransport,
				Err:  fmt.Errorf("stream read failed: %w", err),
			}
		}

		if err := e.processRecord(ctx, record); err != nil {
			return err
		}
		if e.doneSeen {
			return nil
		}
	}
}

// processRecord dispatches a single record. Exhaustive over RecordKind.
func (e *Engine) processRecord(ctx context.Context, record types.Record) error {
	e.collector.IncRecordsReceived()

	if e.journal != nil {
		if err := e.journal.Append(record); err != nil {
			// Journal is a debug aid; failures never abort ingestion.
			e.logger.Warn("journal append failed", map[string]any{
				"error": err.Error(),
			})
		}
	}

	switch record.Kind {
	case types.RecordError:
		e.logger.Error("error record received", map[string]any{
			"message": record.Error,
		})
		return &IngestError{
			Kind: IngestErrorWire,
			Err:  errors.New(record.Error),
		}

	case types.RecordThinking:
		e.sink.OnThinking(record.Thinking)
		return nil

	case types.RecordTool:
		e.markActivity()
		e.collector.IncToolEvents()
		e.appendToolResult(record.Tool)
		e.sink.OnTool(record.Tool)
		return nil

	case types.RecordText:
		e.markActivity()
		e.collector.IncTextDeltas()
		e.pacer.Append(record.Content)
		// Legacy path: a document may be embedded in the prose.
		if err := e.materializer.ScanText(ctx, e.pacer.Committed()); err != nil {
			e.logger.Error("legacy extraction failed", map[string]any{
				"error": err.Error(),
			})
			return &IngestError{Kind: IngestErrorTransport, Err: err}
		}
		return nil

	case types.RecordArtifact:
		if err := e.materializer.UpsertStructured(ctx, record.Artifact); err != nil {
			e.logger.Error("artifact upsert failed", map[string]any{
				"error": err.Error(),
			})
			return &IngestError{Kind: IngestErrorTransport, Err: err}
		}
		return nil

	case types.RecordConversation:
		e.materializer.SetConversationID(record.ConversationID)
		e.sink.OnConversationID(record.ConversationID)
		return nil

	case types.RecordDone:
		e.doneSeen = true
		e.logger.Info("stream completed", nil)
		return nil

	case types.RecordUnknown:
		e.collector.IncUnknownRecords()
		return nil

	default:
		e.collector.IncUnknownRecords()
		return nil
	}
}

func (e *Engine) markActivity() {
	if e.started {
		return
	}
	e.started = true
	e.sink.OnStreamActivity()
}

func (e *Engine) appendToolResult(ev *types.ToolEvent) {
	e.toolLog = append(e.toolLog, types.ToolResult{
		ToolID:  ev.ToolID,
		Status:  ev.Status,
		Message: ev.Message,
		Index:   ev.CurrentIndex,
		Total:   ev.TotalTools,
	})
}

// ToolLog returns the ordered tool-result log.
func (e *Engine) ToolLog() []types.ToolResult {
	return append([]types.ToolResult(nil), e.toolLog...)
}

// DoneSeen returns true once the sentinel has been observed.
func (e *Engine) DoneSeen() bool {
	return e.doneSeen
}
