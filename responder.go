package gojinn

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
)

// Responder implements spec.md §4.7: apply default headers, write
// success/error bodies, base64-decode when asked, and always terminate the
// response exactly once.
type Responder struct {
	logSink LogSink
}

func NewResponder(logSink LogSink) *Responder {
	return &Responder{logSink: logSink}
}

var defaultResponseHeaders = map[string]string{
	"content-type":                "application/json",
	"access-control-allow-origin": "*",
}

// write sets status and serializes data the way spec.md §4.7 describes:
// byte buffers and strings are written as-is, everything else is
// JSON-encoded. Headers must already be set by the caller.
func (r *Responder) write(w http.ResponseWriter, data interface{}, status int) {
	if status == 0 {
		status = 200
	}
	w.WriteHeader(status)

	if data == nil {
		return
	}
	if raw, ok := data.([]byte); ok {
		w.Write(raw)
		return
	}
	if s, ok := data.(string); ok {
		w.Write([]byte(s))
		return
	}

	encoded, err := json.Marshal(data)
	if err != nil {
		w.Write([]byte(`{"message":"failed to encode response"}`))
		return
	}
	w.Write(encoded)
}

// writeError implements spec.md §4.7's writeError: status from the error
// (default 500), a normalized {message, statusCode} JSON body, and a
// LogSink emission at warn/error level before the response is written.
func (r *Responder) writeError(w http.ResponseWriter, requestID string, err error) {
	gwErr, ok := err.(*GatewayError)
	if !ok {
		gwErr = Internal(err.Error(), err)
	}

	level := "warn"
	if gwErr.StatusOrDefault() >= 500 {
		level = "error"
	}
	r.logSink.Log(LogEntry{
		Level:     level,
		Message:   gwErr.Message,
		RequestID: requestID,
		Error:     gwErr.Error(),
	})

	body, marshalErr := json.Marshal(gwErr)
	if marshalErr != nil {
		body = []byte(`{"message":"internal error","statusCode":500}`)
	}

	for k, v := range defaultResponseHeaders {
		w.Header().Set(k, v)
	}
	w.Header().Set("content-type", "application/json")
	r.write(w, body, gwErr.StatusOrDefault())
}

// Responds implements spec.md §4.7's responds entry point: on error, defer
// to writeError; otherwise apply headers, optionally base64-decode a string
// body, and write.
func (r *Responder) Responds(w http.ResponseWriter, requestID string, err error, env ResponseEnvelope) {
	if err != nil {
		r.writeError(w, requestID, err)
		return
	}

	for k, v := range defaultResponseHeaders {
		w.Header().Set(k, v)
	}
	for k, v := range env.Headers {
		w.Header().Set(k, v)
	}

	body := env.Body
	if env.Base64 {
		if s, ok := env.Body.(string); ok {
			decoded, decodeErr := base64.StdEncoding.DecodeString(s)
			if decodeErr != nil {
				r.writeError(w, requestID, BadRequest("invalid base64 response body", decodeErr))
				return
			}
			body = decoded
		}
	}

	r.write(w, body, env.StatusCode)
}

// RespondEmpty implements pipeline step 1: OPTIONS/favicon fast-path, a bare
// 200 with an empty body.
func (r *Responder) RespondEmpty(w http.ResponseWriter) {
	r.write(w, nil, 200)
}
