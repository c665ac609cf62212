package gojinn

import (
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestAuthenticator_NoAuthConfigured(t *testing.T) {
	a := NewAuthenticator()
	args := &RequestArgs{Headers: http.Header{}, Params: Params{}}
	got, err := a.Authenticate(&LambdaSpec{}, args)
	require.NoError(t, err)
	assert.Same(t, args, got)
}

func TestAuthenticator_MissingToken(t *testing.T) {
	a := NewAuthenticator()
	lambda := &LambdaSpec{Auth: &AuthConfig{AllowedFields: []string{"user"}, Secret: Static("S")}}
	args := &RequestArgs{Headers: http.Header{}, Params: Params{}}

	_, err := a.Authenticate(lambda, args)
	require.Error(t, err)
	gerr, ok := err.(*GatewayError)
	require.True(t, ok)
	assert.Equal(t, 403, gerr.StatusCode)
	assert.Equal(t, "jwt must be provided", gerr.Message)
}

func TestAuthenticator_ValidTokenAllowedFields(t *testing.T) {
	a := NewAuthenticator()
	token := signToken(t, "S", jwt.MapClaims{"role": "public", "user": "alice"})

	lambda := &LambdaSpec{Auth: &AuthConfig{AllowedFields: []string{"user"}, Secret: Static("S")}}
	headers := http.Header{}
	headers.Set("Authorization", token)
	args := &RequestArgs{Headers: headers, Params: Params{}}

	got, err := a.Authenticate(lambda, args)
	require.NoError(t, err)

	authParams, ok := got.Params["auth"].(Params)
	require.True(t, ok)
	assert.Equal(t, "public", authParams["role"])
	assert.Equal(t, "alice", authParams["user"])
}

func TestAuthenticator_TokenFromQueryParam(t *testing.T) {
	a := NewAuthenticator()
	token := signToken(t, "S", jwt.MapClaims{"role": "public"})

	lambda := &LambdaSpec{Auth: &AuthConfig{Secret: Static("S")}}
	args := &RequestArgs{Headers: http.Header{}, Params: Params{"token": token}}

	_, err := a.Authenticate(lambda, args)
	require.NoError(t, err)
}

func TestAuthenticator_RoleMismatch(t *testing.T) {
	a := NewAuthenticator()
	token := signToken(t, "S", jwt.MapClaims{"role": "public"})

	lambda := &LambdaSpec{Auth: &AuthConfig{Secret: Static("S"), RequiredRoles: []string{"admin"}}}
	headers := http.Header{}
	headers.Set("Authorization", token)
	args := &RequestArgs{Headers: headers, Params: Params{}}

	_, err := a.Authenticate(lambda, args)
	require.Error(t, err)
	gerr, ok := err.(*GatewayError)
	require.True(t, ok)
	assert.Equal(t, 403, gerr.StatusCode)
	assert.Equal(t, "Forbidden", gerr.Message)
}

func TestAuthenticator_BadSignature(t *testing.T) {
	a := NewAuthenticator()
	token := signToken(t, "wrong-secret", jwt.MapClaims{"role": "public"})

	lambda := &LambdaSpec{Auth: &AuthConfig{Secret: Static("S")}}
	headers := http.Header{}
	headers.Set("Authorization", token)
	args := &RequestArgs{Headers: headers, Params: Params{}}

	_, err := a.Authenticate(lambda, args)
	require.Error(t, err)
}

func TestAuthenticator_DynamicSecretFromPayload(t *testing.T) {
	a := NewAuthenticator()
	token := signToken(t, "dyn-secret", jwt.MapClaims{"role": "admin", "kid": "k1"})

	lambda := &LambdaSpec{Auth: &AuthConfig{
		SecretFn: func(payload map[string]interface{}, params Params, headers http.Header) string {
			if payload["kid"] == "k1" {
				return "dyn-secret"
			}
			return "wrong"
		},
	}}
	headers := http.Header{}
	headers.Set("Authorization", token)
	args := &RequestArgs{Headers: headers, Params: Params{}}

	got, err := a.Authenticate(lambda, args)
	require.NoError(t, err)
	authParams := got.Params["auth"].(Params)
	assert.Equal(t, "admin", authParams["role"])
}

func TestAuthenticator_ExpiredToken(t *testing.T) {
	a := NewAuthenticator()
	token := signToken(t, "S", jwt.MapClaims{
		"role": "public",
		"exp":  time.Now().Add(-time.Hour).Unix(),
	})

	lambda := &LambdaSpec{Auth: &AuthConfig{Secret: Static("S")}}
	headers := http.Header{}
	headers.Set("Authorization", token)
	args := &RequestArgs{Headers: headers, Params: Params{}}

	_, err := a.Authenticate(lambda, args)
	require.Error(t, err)
}
