package tools

import (
	"encoding/json"
	"fmt"
)

// ResultTypeError is the discriminator every layer treats as failure.
const ResultTypeError = "error"

// Result is the payload a tool returns. Success payloads carry their own
// "type" discriminator; failures use ResultTypeError with "message" and
// optional "details".
type Result map[string]any

// ErrorResult builds a failure payload.
func ErrorResult(message string, details map[string]any) Result {
	r := Result{"type": ResultTypeError, "message": message}
	if len(details) > 0 {
		r["details"] = details
	}
	return r
}

// Errorf is ErrorResult with formatting and no details.
func Errorf(format string, args ...any) Result {
	return ErrorResult(fmt.Sprintf(format, args...), nil)
}

func (r Result) Type() string {
	t, _ := r["type"].(string)
	return t
}

func (r Result) IsError() bool {
	return r == nil || r.Type() == ResultTypeError
}

// Message returns the failure message, or "" for successes.
func (r Result) Message() string {
	if r == nil {
		return "tool returned no result"
	}
	m, _ := r["message"].(string)
	return m
}

// Retryable reports whether the failure is transient and worth repeating
// with identical arguments.
func (r Result) Retryable() bool {
	b, _ := r["retryable"].(bool)
	return b
}

// Clone returns a shallow copy.
func (r Result) Clone() Result {
	out := make(Result, len(r)+1)
	for k, v := range r {
		out[k] = v
	}
	return out
}

// JSON serializes the result for a tool-role message.
func (r Result) JSON() string {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Sprintf(`{"type":"error","message":%q}`, "unserializable tool result: "+err.Error())
	}
	return string(data)
}
