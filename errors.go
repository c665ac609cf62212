package gojinn

import (
	"encoding/json"
	"fmt"
)

// GatewayError is the tagged error value spec.md §3/§7 describes:
// {statusCode, message, cause?}. It satisfies the standard error interface
// so it composes with fmt.Errorf("...: %w", err) the way the teacher's own
// errors do throughout gojinn.go/broker.go/worker.go.
type GatewayError struct {
	StatusCode int
	Message    string
	RawBody    json.RawMessage // set when the backend error body was structured JSON
	Cause      error
}

func (e *GatewayError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *GatewayError) Unwrap() error { return e.Cause }

// StatusOrDefault applies spec.md §3's "statusCode: int (default 500)".
func (e *GatewayError) StatusOrDefault() int {
	if e.StatusCode == 0 {
		return 500
	}
	return e.StatusCode
}

// MarshalJSON produces the pretty-printed {message, statusCode, ...} body
// spec.md §7 requires, preferring a structured backend body when present
// (spec.md §9: "a trie implementation should preserve structured bodies").
func (e *GatewayError) MarshalJSON() ([]byte, error) {
	out := map[string]interface{}{
		"message":    e.Message,
		"statusCode": e.StatusOrDefault(),
	}
	if len(e.RawBody) > 0 {
		out["body"] = json.RawMessage(e.RawBody)
	}
	return json.Marshal(out)
}

func newErr(status int, msg string, cause error) *GatewayError {
	return &GatewayError{StatusCode: status, Message: msg, Cause: cause}
}

// ConfigError — startup-fatal, malformed configuration (spec.md §7.1).
func ConfigError(msg string) *GatewayError { return newErr(500, msg, nil) }

// BadRequest — body parse failure, malformed cache-admin payload (§7.2).
func BadRequest(msg string, cause error) *GatewayError { return newErr(400, msg, cause) }

// Forbidden — missing/invalid JWT, role mismatch, malformed auth spec (§7.3).
func Forbidden(msg string, cause error) *GatewayError { return newErr(403, msg, cause) }

// NotFound — no matching route, no cache driver for admin request (§7.4).
func NotFound(msg string) *GatewayError { return newErr(404, msg, nil) }

// BackendErrorFrom — status reported by backend >= 400 (§7.5). body is the
// raw backend body value; if it's a JSON object/array it is preserved
// structurally rather than stringified (spec.md §9).
func BackendErrorFrom(status int, body interface{}) *GatewayError {
	err := &GatewayError{StatusCode: status}
	switch v := body.(type) {
	case string:
		err.Message = v
	case nil:
		err.Message = fmt.Sprintf("backend returned status %d", status)
	default:
		raw, marshalErr := json.Marshal(v)
		if marshalErr == nil {
			err.RawBody = raw
			err.Message = string(raw)
		} else {
			err.Message = fmt.Sprintf("%v", v)
		}
	}
	return err
}

// Internal — unexpected exception in the pipeline (§7.6).
func Internal(msg string, cause error) *GatewayError { return newErr(500, msg, cause) }
