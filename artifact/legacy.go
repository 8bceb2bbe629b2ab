package artifact

// Legacy extraction: older backends emit the document as a JSON block
// embedded in conversational prose instead of using the structured
// artifact channel. This file is a compatibility shim, not the primary
// path; it feeds the same Upsert contract and is disabled for a session
// as soon as a structured payload arrives.

import (
	"encoding/json"
	"strings"

	"github.com/inletlabs/inlet/types"
)

// ExtractEmbedded scans prose for the first complete, well-formed JSON
// object that looks like an artifact document (an object carrying "id"
// and "title"). The surrounding message does not need to be valid JSON.
// Best effort: returns false until a complete candidate has streamed in.
func ExtractEmbedded(text string) (*types.ArtifactPayload, bool) {
	for start := strings.IndexByte(text, '{'); start >= 0; {
		block, ok := balancedObject(text[start:])
		if !ok {
			// Candidate not yet complete; a later scan over the grown
			// text may succeed.
			return nil, false
		}

		if payload, ok := parseCandidate(block); ok {
			return payload, true
		}

		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			return nil, false
		}
		start += 1 + next
	}
	return nil, false
}

// balancedObject returns the prefix of s forming one brace-balanced
// object, honoring JSON string literals and escapes.
func balancedObject(s string) (string, bool) {
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[:i+1], true
			}
		}
	}
	return "", false
}

// parseCandidate validates a balanced block as an artifact document.
func parseCandidate(block string) (*types.ArtifactPayload, bool) {
	var data map[string]any
	if err := json.Unmarshal([]byte(block), &data); err != nil {
		return nil, false
	}

	title, hasTitle := data["title"].(string)
	_, hasID := data["id"].(string)
	if !hasTitle || !hasID {
		return nil, false
	}

	artifactType := types.ArtifactMindmap
	if t, ok := data["type"].(string); ok && types.ArtifactType(t).Known() {
		artifactType = types.ArtifactType(t)
	}

	return &types.ArtifactPayload{
		Type:  artifactType,
		Title: title,
		Data:  data,
	}, true
}
