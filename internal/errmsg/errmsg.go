// Package errmsg is the single point where backend failures become text
// shown to the user. Pipelines never surface raw backend errors.
package errmsg

import (
	"encoding/json"
	"strings"
)

// Fixed user-facing sentences for recognized failure classes.
const (
	MsgInvalidKey    = "Your API key looks invalid or unauthorized. Please check it and try again."
	MsgContentPolicy = "The request was blocked by the content policy. Try rephrasing your prompt."
	MsgQuota         = "You've hit the rate limit or quota for your API key. Wait a moment and try again."
	MsgUnavailable   = "The model is temporarily overloaded or unavailable. Please try again shortly."
	MsgKeyPermission = "The requested model isn't available to your API key. Check the key's project permissions."
	MsgGeneric       = "Something went wrong while talking to the model. Please try again."
)

// nestedError matches the backend's JSON error envelope:
// {"error":{"message":"...","code":...}}
type nestedError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Normalize maps an arbitrary thrown error to one stable user-facing string.
//
// Check order: a JSON-wrapped nested message first (with a "Quota exceeded."
// prefix when it mentions quota), then known substrings of the lowercased
// message, then the raw message verbatim, then a generic fallback.
func Normalize(err error) string {
	if err == nil {
		return MsgGeneric
	}
	raw := err.Error()
	if raw == "" {
		return MsgGeneric
	}

	if nested := nestedMessage(raw); nested != "" {
		if strings.Contains(strings.ToLower(nested), "quota") {
			return "Quota exceeded. " + nested
		}
		return nested
	}

	lower := strings.ToLower(raw)
	switch {
	case strings.Contains(lower, "api key not valid"),
		strings.Contains(lower, "invalid api key"),
		strings.Contains(lower, "api_key_invalid"),
		strings.Contains(lower, "permission_denied"):
		return MsgInvalidKey
	case strings.Contains(lower, "safety"),
		strings.Contains(lower, "blocked"),
		strings.Contains(lower, "content policy"):
		return MsgContentPolicy
	case strings.Contains(lower, "quota"),
		strings.Contains(lower, "rate limit"),
		strings.Contains(lower, "429"),
		strings.Contains(lower, "resource_exhausted"):
		return MsgQuota
	case strings.Contains(lower, "503"),
		strings.Contains(lower, "unavailable"),
		strings.Contains(lower, "overloaded"):
		return MsgUnavailable
	case strings.Contains(lower, "entity was not found"),
		strings.Contains(lower, "entity not found"):
		// The backend reports inaccessible models as missing entities.
		return MsgKeyPermission
	}

	return raw
}

// nestedMessage extracts error.message when the whole error message parses
// as the backend's JSON envelope. Returns "" otherwise.
func nestedMessage(raw string) string {
	trimmed := strings.TrimSpace(raw)
	// Some SDK layers prefix the JSON body; find the first brace.
	if i := strings.Index(trimmed, "{"); i > 0 {
		trimmed = trimmed[i:]
	}
	if !strings.HasPrefix(trimmed, "{") {
		return ""
	}
	var ne nestedError
	if err := json.Unmarshal([]byte(trimmed), &ne); err != nil {
		return ""
	}
	return ne.Error.Message
}
