package supabase

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// APIError is a non-2xx response from the backend. Table and RPC errors carry
// a PostgREST code such as "PGRST202"; auth errors carry an error code such as
// "invalid_credentials".
type APIError struct {
	Status  int
	Code    string
	Message string
	Details string
	Hint    string
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "status %d", e.Status)
	if e.Code != "" {
		fmt.Fprintf(&b, " (%s)", e.Code)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Details != "" {
		b.WriteString("; ")
		b.WriteString(e.Details)
	}
	return b.String()
}

// newAPIError decodes the PostgREST and auth error shapes. Unknown bodies are
// kept verbatim as the message.
func newAPIError(status int, body []byte) *APIError {
	e := &APIError{Status: status}
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		e.Message = strings.TrimSpace(string(body))
		if e.Message == "" {
			e.Message = http.StatusText(status)
		}
		return e
	}
	e.Code = firstString(raw, "code", "error_code", "error")
	e.Message = firstString(raw, "message", "msg", "error_description", "error")
	e.Details = firstString(raw, "details")
	e.Hint = firstString(raw, "hint")
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}

// firstString returns the first key holding a non-empty string. Numeric codes
// are skipped.
func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// IsMissingFunction reports whether err says the called RPC function does
// not exist.
func IsMissingFunction(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Code == "PGRST202" || apiErr.Code == "42883" {
		return true
	}
	msg := strings.ToLower(apiErr.Message)
	return strings.Contains(msg, "does not exist") || strings.Contains(msg, "could not find the function")
}
