package gojinn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShapeResponse_PlainValuePassesThrough(t *testing.T) {
	lambda := &LambdaSpec{}
	env, err := ShapeResponse(lambda, map[string]interface{}{"hello": "world"})
	require.NoError(t, err)
	assert.Equal(t, 200, env.StatusCode)
	assert.Equal(t, map[string]interface{}{"hello": "world"}, env.Body)
}

func TestShapeResponse_EnvelopeRequiresBodyAndHeaders(t *testing.T) {
	lambda := &LambdaSpec{}
	raw := map[string]interface{}{"body": "just a body"}
	env, err := ShapeResponse(lambda, raw)
	require.NoError(t, err)
	assert.Equal(t, raw, env.Body)
}

func TestShapeResponse_EnvelopeOverridesDefaults(t *testing.T) {
	lambda := &LambdaSpec{
		Defaults: ResponseDefaults{
			ResponseHeaders: map[string]string{"x-default": "1", "x-shared": "default"},
			ResponseBase64:  false,
		},
	}
	raw := map[string]interface{}{
		"body":       "hi",
		"headers":    map[string]interface{}{"x-shared": "envelope", "x-extra": "2"},
		"base64":     true,
		"statusCode": 201.0,
	}
	env, err := ShapeResponse(lambda, raw)
	require.NoError(t, err)
	assert.Equal(t, "hi", env.Body)
	assert.Equal(t, "1", env.Headers["x-default"])
	assert.Equal(t, "envelope", env.Headers["x-shared"])
	assert.Equal(t, "2", env.Headers["x-extra"])
	assert.True(t, env.Base64)
	assert.Equal(t, 201, env.StatusCode)
}

func TestShapeResponse_StatusCodeAboveThresholdBecomesError(t *testing.T) {
	lambda := &LambdaSpec{}
	raw := map[string]interface{}{
		"body":       map[string]interface{}{"reason": "denied"},
		"headers":    map[string]interface{}{},
		"statusCode": 422.0,
	}
	_, err := ShapeResponse(lambda, raw)
	require.Error(t, err)

	gwErr, ok := err.(*GatewayError)
	require.True(t, ok)
	assert.Equal(t, 422, gwErr.StatusOrDefault())
	assert.Contains(t, gwErr.Message, "denied")
}

func TestShapeResponse_DefaultBase64FromLambda(t *testing.T) {
	lambda := &LambdaSpec{Defaults: ResponseDefaults{ResponseBase64: true}}
	env, err := ShapeResponse(lambda, "plain-string-body")
	require.NoError(t, err)
	assert.True(t, env.Base64)
	assert.Equal(t, "plain-string-body", env.Body)
}
