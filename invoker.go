package gojinn

import (
	"context"
	"encoding/json"
)

// Invoker is the external function-invocation transport GLOSSARY names:
// takes {name, payload, version} and returns the parsed JSON response
// payload, per spec.md §4.5.
type Invoker interface {
	Invoke(ctx context.Context, name string, payload interface{}, version string) (interface{}, error)
}

// invokerRequest is the wire shape spec.md §4.5 names literally:
// {FunctionName, Payload: JSON.stringify(payload), Qualifier}.
type invokerRequest struct {
	FunctionName string
	Payload      []byte
	Qualifier    string
}

func buildInvokerRequest(name string, payload interface{}, version string) (invokerRequest, error) {
	if version == "" {
		version = "$LATEST"
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return invokerRequest{}, Internal("failed to marshal invoke payload", err)
	}
	return invokerRequest{FunctionName: name, Payload: body, Qualifier: version}, nil
}
