package sse

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/inletlabs/inlet/types"
)

// drain collects all records from a decoder, returning non-fatal decode
// errors alongside.
func drain(t *testing.T, d *Decoder) ([]types.Record, []error) {
	t.Helper()

	var records []types.Record
	var decodeErrs []error
	for {
		rec, err := d.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return records, decodeErrs
			}
			var decErr *DecodeError
			if errors.As(err, &decErr) && !decErr.IsFatal() {
				decodeErrs = append(decodeErrs, err)
				continue
			}
			t.Fatalf("unexpected decoder error: %v", err)
		}
		records = append(records, rec)
	}
}

func TestDecoder_TextDeltasAndSentinel(t *testing.T) {
	input := "data: {\"content\":\"Hello\"}\n\ndata: {\"content\":\" world\"}\n\ndata: [DONE]\n\n"
	records, decodeErrs := drain(t, NewDecoder(strings.NewReader(input)))

	if len(decodeErrs) != 0 {
		t.Fatalf("unexpected decode errors: %v", decodeErrs)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if records[0].Kind != types.RecordText || records[0].Content != "Hello" {
		t.Errorf("record 0: got %+v", records[0])
	}
	if records[1].Kind != types.RecordText || records[1].Content != " world" {
		t.Errorf("record 1: got %+v", records[1])
	}
	if records[2].Kind != types.RecordDone {
		t.Errorf("record 2: expected done sentinel, got %+v", records[2])
	}
}

func TestScanner_RecordSplitAcrossChunks(t *testing.T) {
	s := NewScanner()

	items := s.Feed([]byte("data: {\"cont"))
	if len(items) != 0 {
		t.Fatalf("incomplete line should buffer, got %d items", len(items))
	}

	items = s.Feed([]byte("ent\":\"Hi\"}\n"))
	if len(items) != 1 {
		t.Fatalf("expected 1 item after completing line, got %d", len(items))
	}
	if items[0].Record.Kind != types.RecordText || items[0].Record.Content != "Hi" {
		t.Errorf("got %+v", items[0].Record)
	}
}

func TestScanner_MalformedRecordDoesNotAbortDecoding(t *testing.T) {
	input := "data: {\"content\":\"a\"}\ndata: {not json}\ndata: {\"content\":\"b\"}\ndata: [DONE]\n"
	records, decodeErrs := drain(t, NewDecoder(strings.NewReader(input)))

	if len(decodeErrs) != 1 {
		t.Fatalf("expected 1 decode error, got %d", len(decodeErrs))
	}
	var decErr *DecodeError
	if !errors.As(decodeErrs[0], &decErr) || decErr.Kind != DecodeErrorParse {
		t.Errorf("expected parse error, got %v", decodeErrs[0])
	}

	var texts []string
	for _, rec := range records {
		if rec.Kind == types.RecordText {
			texts = append(texts, rec.Content)
		}
	}
	if len(texts) != 2 || texts[0] != "a" || texts[1] != "b" {
		t.Errorf("both valid deltas should survive, got %v", texts)
	}
}

func TestScanner_IgnoresSeparatorsCommentsAndOtherFields(t *testing.T) {
	input := "\n: keepalive\nevent: message\nid: 7\ndata: {\"content\":\"x\"}\n"
	items := NewScanner().Feed([]byte(input))

	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if items[0].Record.Content != "x" {
		t.Errorf("got %+v", items[0].Record)
	}
}

func TestScanner_CRLFLines(t *testing.T) {
	items := NewScanner().Feed([]byte("data: {\"content\":\"x\"}\r\n\r\ndata: [DONE]\r\n"))

	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].Record.Kind != types.RecordText || items[1].Record.Kind != types.RecordDone {
		t.Errorf("got %+v / %+v", items[0].Record, items[1].Record)
	}
}

func TestScanner_FlushHandlesMissingTrailingNewline(t *testing.T) {
	s := NewScanner()
	if items := s.Feed([]byte("data: {\"content\":\"tail\"}")); len(items) != 0 {
		t.Fatalf("expected buffered tail, got %d items", len(items))
	}

	items := s.Flush()
	if len(items) != 1 || items[0].Record.Content != "tail" {
		t.Fatalf("flush should decode the tail, got %+v", items)
	}
}

func TestScanner_StopsAfterSentinel(t *testing.T) {
	s := NewScanner()
	items := s.Feed([]byte("data: [DONE]\ndata: {\"content\":\"late\"}\n"))

	if len(items) != 1 || items[0].Record.Kind != types.RecordDone {
		t.Fatalf("expected only the sentinel, got %+v", items)
	}
	if !s.Done() {
		t.Error("scanner should report done after sentinel")
	}
}

func TestDecodeValue_FieldPrecedence(t *testing.T) {
	tests := []struct {
		name string
		json string
		kind types.RecordKind
	}{
		{"error wins over content", `{"error":"boom","content":"x"}`, types.RecordError},
		{"thinking wins over content", `{"thinking":{"status":"planning","message":"m"},"content":"x"}`, types.RecordThinking},
		{"tool wins over content", `{"toolExecution":{"status":"starting","message":"m"},"content":"x"}`, types.RecordTool},
		{"content wins over artifact", `{"content":"x","artifact":{"type":"mindmap","title":"t","data":{}}}`, types.RecordText},
		{"artifact wins over conversation", `{"artifact":{"type":"mindmap","title":"t","data":{}},"conversation_id":"c1"}`, types.RecordArtifact},
		{"conversation id alone", `{"conversation_id":"c1"}`, types.RecordConversation},
		{"unknown fields ignored", `{"future_field":true}`, types.RecordUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := DecodeValue(tt.json)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rec.Kind != tt.kind {
				t.Errorf("expected kind %s, got %s", tt.kind, rec.Kind)
			}
		})
	}
}

func TestDecodeValue_ToolEventFields(t *testing.T) {
	rec, err := DecodeValue(`{"toolExecution":{"status":"executing","toolId":"t-1","message":"searching","currentIndex":2,"totalTools":3}}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tool := rec.Tool
	if tool == nil {
		t.Fatal("expected tool payload")
	}
	if tool.Status != types.ToolExecuting || tool.ToolID != "t-1" || tool.CurrentIndex != 2 || tool.TotalTools != 3 {
		t.Errorf("got %+v", tool)
	}
}

func TestScanner_OversizedLineIsFatal(t *testing.T) {
	s := NewScanner()
	chunk := make([]byte, MaxLineSize+2)
	for i := range chunk {
		chunk[i] = 'a'
	}

	items := s.Feed(chunk)
	if len(items) != 1 || items[0].Err == nil {
		t.Fatalf("expected fatal item, got %+v", items)
	}
	if !IsFatalDecodeError(items[0].Err) {
		t.Errorf("expected fatal decode error, got %v", items[0].Err)
	}
	if !s.Done() {
		t.Error("scanner should stop after fatal error")
	}
}
