// Package journal archives decoded stream records for replay and
// debugging. Entries are length-prefixed msgpack frames, written in
// arrival order so a replay reproduces the exact record sequence the
// session observed.
package journal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/inletlabs/inlet/types"
)

// Frame size constants.
const (
	// MaxFrameSize is the maximum frame size (16 MiB), including length prefix.
	MaxFrameSize = 16 * 1024 * 1024
	// MaxPayloadSize is the maximum payload size (MaxFrameSize - 4 bytes).
	MaxPayloadSize = MaxFrameSize - LengthPrefixSize
	// LengthPrefixSize is the size of the length prefix in bytes.
	LengthPrefixSize = 4
)

// FrameErrorKind classifies journal frame errors.
type FrameErrorKind int

const (
	// FrameErrorPartial indicates a truncated or incomplete frame.
	FrameErrorPartial FrameErrorKind = iota
	// FrameErrorTooLarge indicates a frame exceeding MaxFrameSize.
	FrameErrorTooLarge
	// FrameErrorDecode indicates a msgpack decoding error.
	FrameErrorDecode
	// FrameErrorEncode indicates a msgpack encoding error.
	FrameErrorEncode
)

// FrameError represents a journal frame error.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// IsFrameError returns true if the error is a journal frame error.
func IsFrameError(err error) bool {
	var frameErr *FrameError
	return errors.As(err, &frameErr)
}

// Entry is one archived record with arrival metadata.
type Entry struct {
	// Seq is the 1-based arrival ordinal within the session.
	Seq int64 `msgpack:"seq"`
	// At is the arrival timestamp in RFC 3339 nano format.
	At string `msgpack:"at"`
	// Record is the decoded record.
	Record types.Record `msgpack:"record"`
}

// Writer appends entries to a journal stream.
type Writer struct {
	w   io.Writer
	seq int64
}

// NewWriter creates a journal writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Append writes the record as the next journal entry.
func (w *Writer) Append(record types.Record) error {
	w.seq++
	entry := Entry{
		Seq:    w.seq,
		At:     time.Now().UTC().Format(time.RFC3339Nano),
		Record: record,
	}

	payload, err := msgpack.Marshal(&entry)
	if err != nil {
		return &FrameError{Kind: FrameErrorEncode, Msg: "failed to encode entry", Err: err}
	}
	if len(payload) > MaxPayloadSize {
		return &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", len(payload), MaxPayloadSize),
		}
	}

	var lengthBuf [LengthPrefixSize]byte
	binary.BigEndian.PutUint32(lengthBuf[:], uint32(len(payload)))
	if _, err := w.w.Write(lengthBuf[:]); err != nil {
		return fmt.Errorf("write length prefix: %w", err)
	}
	if _, err := w.w.Write(payload); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}
	return nil
}

// Count returns the number of entries written.
func (w *Writer) Count() int64 {
	return w.seq
}

// Reader reads entries from a journal stream.
type Reader struct {
	r io.Reader
}

// NewReader creates a journal reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Next reads the next entry.
//
// Errors:
//   - io.EOF: stream ended cleanly (no more entries)
//   - *FrameError with Kind=FrameErrorPartial: truncated frame
//   - *FrameError with Kind=FrameErrorTooLarge: frame exceeds limit
//   - *FrameError with Kind=FrameErrorDecode: msgpack decode failure
func (r *Reader) Next() (*Entry, error) {
	var lengthBuf [LengthPrefixSize]byte
	_, err := io.ReadFull(r.r, lengthBuf[:])
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, &FrameError{
			Kind: FrameErrorPartial,
			Msg:  "failed to read length prefix",
			Err:  err,
		}
	}

	payloadSize := binary.BigEndian.Uint32(lengthBuf[:])
	if payloadSize > MaxPayloadSize {
		return nil, &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", payloadSize, MaxPayloadSize),
		}
	}

	payload := make([]byte, payloadSize)
	if _, err := io.ReadFull(r.r, payload); err != nil {
		return nil, &FrameError{
			Kind: FrameErrorPartial,
			Msg:  "failed to read payload",
			Err:  err,
		}
	}

	var entry Entry
	if err := msgpack.Unmarshal(payload, &entry); err != nil {
		return nil, &FrameError{
			Kind: FrameErrorDecode,
			Msg:  "failed to decode entry",
			Err:  err,
		}
	}
	return &entry, nil
}

// ReadAll reads every remaining entry.
func (r *Reader) ReadAll() ([]*Entry, error) {
	var entries []*Entry
	for {
		entry, err := r.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return entries, nil
			}
			return entries, err
		}
		entries = append(entries, entry)
	}
}
