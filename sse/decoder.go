package sse

import (
	"bytes"
	"io"

	"github.com/inletlabs/inlet/types"
)

// Item is one decode result: either a record or a non-fatal decode error.
// Items preserve wire arrival order.
type Item struct {
	Record types.Record
	Err    error
}

// Scanner is a push-fed line splitter. Chunks arrive at arbitrary
// boundaries; an incomplete trailing line is buffered and prepended to
// the next chunk. The Scanner performs no business interpretation of
// record fields.
type Scanner struct {
	tail []byte
	done bool
}

// NewScanner creates a new scanner.
func NewScanner() *Scanner {
	return &Scanner{}
}

// Feed appends a chunk and returns the decode results for every line
// completed by it. A malformed record yields an Item with Err set and
// scanning continues; an oversized buffered line yields a fatal Item
// and the scanner stops producing further results.
func (s *Scanner) Feed(chunk []byte) []Item {
	if s.done {
		return nil
	}

	s.tail = append(s.tail, chunk...)

	var items []Item
	for {
		idx := bytes.IndexByte(s.tail, '\n')
		if idx < 0 {
			break
		}
		line := string(s.tail[:idx])
		s.tail = s.tail[idx+1:]

		if item, ok := s.scanLine(line); ok {
			items = append(items, item)
			if item.Err != nil && IsFatalDecodeError(item.Err) {
				s.done = true
				return items
			}
			if item.Record.Kind == types.RecordDone {
				s.done = true
				return items
			}
		}
	}

	if len(s.tail) > MaxLineSize {
		s.done = true
		items = append(items, Item{Err: &DecodeError{
			Kind: DecodeErrorOversize,
			Msg:  "buffered line exceeds maximum size",
		}})
	}

	return items
}

// Flush decodes any buffered tail as a final line. Call once at end of
// stream to handle transports that omit the trailing newline.
func (s *Scanner) Flush() []Item {
	if s.done || len(s.tail) == 0 {
		return nil
	}
	line := string(s.tail)
	s.tail = nil
	if item, ok := s.scanLine(line); ok {
		return []Item{item}
	}
	return nil
}

// Done returns true once the sentinel or a fatal error has been seen.
func (s *Scanner) Done() bool {
	return s.done
}

func (s *Scanner) scanLine(line string) (Item, bool) {
	rec, ok, err := decodeLine(line)
	if err != nil {
		return Item{Err: err}, true
	}
	if !ok {
		return Item{}, false
	}
	return Item{Record: rec}, true
}

// Decoder pulls records from an io.Reader, feeding chunks through a
// Scanner. It yields records strictly in arrival order.
type Decoder struct {
	reader  io.Reader
	scanner *Scanner
	queue   []Item
	buf     []byte
	eof     bool
}

// NewDecoder creates a decoder over the transport's byte stream.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{
		reader:  r,
		scanner: NewScanner(),
		buf:     make([]byte, 4096),
	}
}

// Next returns the next decode result.
//
// Errors:
//   - io.EOF: stream ended with no further records
//   - *DecodeError with Kind=DecodeErrorParse: malformed record (non-fatal,
//     call Next again to continue)
//   - *DecodeError with Kind=DecodeErrorOversize: corrupt stream (fatal)
//   - any other error: transport read failure
func (d *Decoder) Next() (types.Record, error) {
	for {
		if len(d.queue) > 0 {
			item := d.queue[0]
			d.queue = d.queue[1:]
			if item.Err != nil {
				return types.Record{}, item.Err
			}
			return item.Record, nil
		}

		if d.eof || d.scanner.Done() {
			return types.Record{}, io.EOF
		}

		n, err := d.reader.Read(d.buf)
		if n > 0 {
			d.queue = d.scanner.Feed(d.buf[:n])
		}
		if err != nil {
			if err == io.EOF {
				d.eof = true
				d.queue = append(d.queue, d.scanner.Flush()...)
				continue
			}
			return types.Record{}, err
		}
	}
}
