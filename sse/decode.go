// Package sse decodes the line-oriented event-stream wire format into
// typed records.
//
// The wire is a sequence of text lines: blank lines separate frames, and
// `data: <json-or-sentinel>` lines carry payloads. Record kind on the wire
// is duck-typed (implied by field presence); this package resolves each
// record to exactly one types.RecordKind at the boundary so downstream
// dispatch can match exhaustively.
package sse

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/inletlabs/inlet/types"
)

// DataPrefix is the field prefix for payload lines.
const DataPrefix = "data:"

// DoneSentinel is the literal value terminating a stream successfully.
const DoneSentinel = "[DONE]"

// MaxLineSize is the maximum accepted line length (1 MiB). Longer lines
// indicate a missing newline or a corrupt stream and are rejected.
const MaxLineSize = 1 * 1024 * 1024

// DecodeErrorKind classifies decode errors.
type DecodeErrorKind int

const (
	// DecodeErrorParse indicates malformed JSON in a record. Non-fatal:
	// decoding continues with the next record.
	DecodeErrorParse DecodeErrorKind = iota
	// DecodeErrorOversize indicates a line exceeding MaxLineSize. Fatal.
	DecodeErrorOversize
)

// DecodeError represents a record decoding error.
type DecodeError struct {
	Kind DecodeErrorKind
	Msg  string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsFatal returns true if decoding cannot continue past this error.
// A single malformed record is tolerated; an oversized line is not.
func (e *DecodeError) IsFatal() bool {
	return e.Kind == DecodeErrorOversize
}

// IsFatalDecodeError returns true if the error is a fatal decode error.
func IsFatalDecodeError(err error) bool {
	var decErr *DecodeError
	if errors.As(err, &decErr) {
		return decErr.IsFatal()
	}
	return false
}

// wireRecord mirrors the duck-typed JSON shape of one data line.
// Any subset of fields may appear; pointers distinguish absent from empty.
type wireRecord struct {
	Error          *string                `json:"error,omitempty"`
	Thinking       *types.ThinkingStatus  `json:"thinking,omitempty"`
	ToolExecution  *types.ToolEvent       `json:"toolExecution,omitempty"`
	Content        *string                `json:"content,omitempty"`
	Artifact       *types.ArtifactPayload `json:"artifact,omitempty"`
	ConversationID *string                `json:"conversation_id,omitempty"`
}

// DecodeValue decodes the value portion of a data line into a Record.
// The sentinel value yields RecordDone. Malformed JSON yields a
// non-fatal *DecodeError.
func DecodeValue(value string) (types.Record, error) {
	if value == DoneSentinel {
		return types.Record{Kind: types.RecordDone}, nil
	}

	var wire wireRecord
	if err := json.Unmarshal([]byte(value), &wire); err != nil {
		return types.Record{}, &DecodeError{
			Kind: DecodeErrorParse,
			Msg:  "malformed record",
			Err:  err,
		}
	}

	return classify(&wire), nil
}

// classify resolves a wire record to exactly one kind.
// Precedence when multiple fields appear: error, thinking, tool
// execution, text content, artifact, conversation id.
func classify(wire *wireRecord) types.Record {
	switch {
	case wire.Error != nil:
		return types.Record{Kind: types.RecordError, Error: *wire.Error}
	case wire.Thinking != nil:
		return types.Record{Kind: types.RecordThinking, Thinking: wire.Thinking}
	case wire.ToolExecution != nil:
		return types.Record{Kind: types.RecordTool, Tool: wire.ToolExecution}
	case wire.Content != nil:
		return types.Record{Kind: types.RecordText, Content: *wire.Content}
	case wire.Artifact != nil:
		return types.Record{Kind: types.RecordArtifact, Artifact: wire.Artifact}
	case wire.ConversationID != nil:
		return types.Record{Kind: types.RecordConversation, ConversationID: *wire.ConversationID}
	default:
		// Unrecognized fields only: ignored for forward compatibility.
		return types.Record{Kind: types.RecordUnknown}
	}
}

// decodeLine decodes one complete wire line.
// Returns ok=false for lines carrying no record (blank separators,
// comments, non-data fields).
func decodeLine(line string) (types.Record, bool, error) {
	line = strings.TrimSuffix(line, "\r")
	if line == "" || strings.HasPrefix(line, ":") {
		return types.Record{}, false, nil
	}
	if !strings.HasPrefix(line, DataPrefix) {
		// event:, id:, retry: and unknown fields carry no payload here.
		return types.Record{}, false, nil
	}

	value := strings.TrimSpace(line[len(DataPrefix):])
	if value == "" {
		return types.Record{}, false, nil
	}

	rec, err := DecodeValue(value)
	if err != nil {
		return types.Record{}, false, err
	}
	return rec, true, nil
}
