package gojinn

import (
	"encoding/json"
	"net/http"

	"github.com/caddyserver/caddy/v2/modules/caddyhttp"
	"github.com/google/uuid"
)

// Pipeline implements spec.md §4.9's orchestration as a Caddy HTTP
// middleware handler: RequestParser → (Router | CacheAdmin) → Authenticator
// → CachedInvoker → ResponseShaper → Responder, with every error
// short-circuiting to Responder.writeError.
type Pipeline struct {
	router     *Router
	auth       *Authenticator
	invoker    *CachedInvoker
	cacheAdmin *CacheAdmin
	responder  *Responder
}

func NewPipeline(router *Router, auth *Authenticator, invoker *CachedInvoker, cacheAdmin *CacheAdmin, responder *Responder) *Pipeline {
	return &Pipeline{router: router, auth: auth, invoker: invoker, cacheAdmin: cacheAdmin, responder: responder}
}

// ServeHTTP satisfies caddyhttp.MiddlewareHandler.
func (p *Pipeline) ServeHTTP(w http.ResponseWriter, r *http.Request, next caddyhttp.Handler) error {
	requestID := r.Header.Get("X-Request-Id")
	if requestID == "" {
		requestID = uuid.New().String()
	}

	// Step 1: OPTIONS / favicon fast-path.
	if r.Method == http.MethodOptions || r.URL.Path == "/favicon.ico" {
		p.responder.RespondEmpty(w)
		return nil
	}

	// Step 2: parse request.
	args, err := ParseRequest(r)
	if err != nil {
		p.responder.Responds(w, requestID, err, ResponseEnvelope{})
		return nil
	}

	// Step 3: is this a cache-admin request?
	cacheRequest := args.Method == http.MethodPost && args.URL.Pathname == "/cache"

	// Step 4: resolve route.
	lambda := p.router.Resolve(args.URI)

	// Step 5: neither a route nor a cache-admin request -> 404.
	if lambda == nil && !cacheRequest {
		p.responder.Responds(w, requestID, NotFound("no matching route for "+args.URI), ResponseEnvelope{})
		return nil
	}

	// Step 6: cache-admin dispatch.
	if cacheRequest {
		rawBody, _ := bodyToJSON(args.Body)
		result, err := p.cacheAdmin.Handle(r.Context(), args, rawBody)
		if err != nil {
			p.responder.Responds(w, requestID, err, ResponseEnvelope{})
			return nil
		}
		p.responder.Responds(w, requestID, nil, ResponseEnvelope{Body: result, StatusCode: 200})
		return nil
	}

	// Step 7: §4.4 -> §4.5 -> §4.6 -> §4.7.
	authedArgs, err := p.auth.Authenticate(lambda, args)
	if err != nil {
		p.responder.Responds(w, requestID, err, ResponseEnvelope{})
		return nil
	}

	raw, err := p.invoker.Invoke(r.Context(), lambda, authedArgs)
	if err != nil {
		p.responder.Responds(w, requestID, err, ResponseEnvelope{})
		return nil
	}

	env, err := ShapeResponse(lambda, raw)
	if err != nil {
		p.responder.Responds(w, requestID, err, ResponseEnvelope{})
		return nil
	}

	p.responder.Responds(w, requestID, nil, env)
	return nil
}

// bodyToJSON re-serializes the already-decoded request body map back to
// raw JSON bytes, since CacheAdmin.Handle parses its own request shape
// ({operation, keys}) independently of RequestParser's generic body map.
func bodyToJSON(body map[string]interface{}) ([]byte, error) {
	if len(body) == 0 {
		return nil, nil
	}
	return json.Marshal(body)
}
