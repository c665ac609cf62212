package gojinn

import (
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Authenticator implements spec.md §4.4, grounded on
// Romerolweb-bakery-invoice-generator's internal/middleware/auth.go (HMAC
// keyfunc, jwt.ParseWithClaims) but generalized to the spec's
// per-lambda, possibly-dynamic secret/token/role contract.
type Authenticator struct{}

func NewAuthenticator() *Authenticator { return &Authenticator{} }

// Authenticate resolves, decodes, and verifies the request's JWT against
// lambda.Auth, returning an updated RequestArgs with params["auth"] set on
// success. A nil lambda or a nil lambda.Auth passes args through unchanged.
func (a *Authenticator) Authenticate(lambda *LambdaSpec, args *RequestArgs) (*RequestArgs, error) {
	if lambda == nil || lambda.Auth == nil {
		return args, nil
	}
	auth := lambda.Auth

	rawToken := a.resolveToken(auth, args.Params, args.Headers)
	if rawToken == "" {
		return nil, Forbidden("jwt must be provided", nil)
	}

	unverified, _, err := jwt.NewParser().ParseUnverified(rawToken, jwt.MapClaims{})
	if err != nil {
		return nil, Forbidden(err.Error(), err)
	}
	payloadClaims, _ := unverified.Claims.(jwt.MapClaims)

	secret := a.resolveSecret(auth, payloadClaims, args.Params, args.Headers)

	opts := buildParserOptions(auth.Options)
	var claims jwt.MapClaims
	_, err = jwt.NewParser(opts...).ParseWithClaims(rawToken, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, Forbidden(err.Error(), err)
	}

	role, _ := claims["role"].(string)
	authParams := Params{"role": role}
	for _, field := range auth.AllowedFields {
		if v, ok := claims[field]; ok {
			authParams[field] = v
		}
	}

	if len(auth.RequiredRoles) > 0 && !containsString(auth.RequiredRoles, role) {
		return nil, Forbidden("Forbidden", nil)
	}

	next := *args
	if next.Params == nil {
		next.Params = Params{}
	}
	next.Params["auth"] = authParams
	return &next, nil
}

func (a *Authenticator) resolveToken(auth *AuthConfig, params Params, headers http.Header) string {
	if auth.Token != nil {
		return auth.Token(params, headers)
	}
	if h := headers.Get("Authorization"); h != "" {
		return h
	}
	if v, ok := params["token"]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func (a *Authenticator) resolveSecret(auth *AuthConfig, claims jwt.MapClaims, params Params, headers http.Header) string {
	if auth.SecretFn != nil {
		payload := map[string]interface{}(claims)
		return auth.SecretFn(payload, params, headers)
	}
	return auth.Secret.Value
}

func buildParserOptions(opts VerifyOptions) []jwt.ParserOption {
	var parserOpts []jwt.ParserOption
	if opts.Leeway > 0 {
		parserOpts = append(parserOpts, jwt.WithLeeway(time.Duration(opts.Leeway)*time.Second))
	}
	if opts.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(opts.Issuer))
	}
	if len(opts.Audience) > 0 {
		for _, aud := range opts.Audience {
			parserOpts = append(parserOpts, jwt.WithAudience(aud))
		}
	}
	return parserOpts
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
