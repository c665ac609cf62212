package gojinn

// ShapeResponse implements spec.md §4.6: classify the raw backend value,
// merge headers (backend's envelope wins over lambda.defaults.headers),
// resolve the base64/statusCode defaults, and surface statusCode >= 400 as
// a BackendErrorFrom error rather than a 200 envelope.
func ShapeResponse(lambda *LambdaSpec, raw interface{}) (ResponseEnvelope, error) {
	parsed := ParseBackendResponse(raw)

	env := ResponseEnvelope{
		Headers:    map[string]string{},
		Base64:     lambda.Defaults.ResponseBase64,
		StatusCode: 200,
	}
	for k, v := range lambda.Defaults.ResponseHeaders {
		env.Headers[k] = v
	}

	if parsed.Envelope == nil {
		env.Body = parsed.Raw
		return env, nil
	}

	env.Body = parsed.Envelope.Body
	for k, v := range parsed.Envelope.Headers {
		env.Headers[k] = stringifyHeaderValue(v)
	}
	if parsed.Envelope.Base64 != nil {
		env.Base64 = *parsed.Envelope.Base64
	}
	if parsed.Envelope.StatusCode != nil {
		env.StatusCode = *parsed.Envelope.StatusCode
	}

	if env.StatusCode >= 400 {
		return ResponseEnvelope{}, BackendErrorFrom(env.StatusCode, env.Body)
	}
	return env, nil
}

// stringifyHeaderValue handles the loosely-typed header values a backend's
// JSON envelope may send (numbers, bools) the way ValueCoder.Stringify does
// for query params.
func stringifyHeaderValue(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return Stringify(v)
}
