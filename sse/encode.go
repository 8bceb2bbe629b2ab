package sse

import (
	"encoding/json"
	"fmt"

	"github.com/inletlabs/inlet/types"
)

// EncodeValue renders a record back to its wire value, the inverse of
// DecodeValue. Used by replay to feed journaled records through the
// decoder again.
func EncodeValue(rec types.Record) (string, error) {
	if rec.Kind == types.RecordDone {
		return DoneSentinel, nil
	}

	var wire wireRecord
	switch rec.Kind {
	case types.RecordError:
		wire.Error = &rec.Error
	case types.RecordThinking:
		wire.Thinking = rec.Thinking
	case types.RecordTool:
		wire.ToolExecution = rec.Tool
	case types.RecordText:
		wire.Content = &rec.Content
	case types.RecordArtifact:
		wire.Artifact = rec.Artifact
	case types.RecordConversation:
		wire.ConversationID = &rec.ConversationID
	case types.RecordUnknown:
		// Unrecognized fields did not survive decoding; an empty object
		// round-trips back to an unknown record.
		return "{}", nil
	default:
		return "", fmt.Errorf("cannot encode record kind %q", rec.Kind)
	}

	body, err := json.Marshal(&wire)
	if err != nil {
		return "", fmt.Errorf("encode record: %w", err)
	}
	return string(body), nil
}

// EncodeLine renders a record as a complete wire line including the
// data prefix and trailing newline.
func EncodeLine(rec types.Record) (string, error) {
	value, err := EncodeValue(rec)
	if err != nil {
		return "", err
	}
	return DataPrefix + " " + value + "\n", nil
}
