package gojinn

import "context"

// CachedInvoker implements spec.md §4.5: decide cache eligibility, fetch-
// or-fill via CacheStore, and call through to Invoker.
type CachedInvoker struct {
	store       CacheStore
	invoker     Invoker
	cachePrefix string
}

func NewCachedInvoker(store CacheStore, invoker Invoker, cachePrefix string) *CachedInvoker {
	return &CachedInvoker{store: store, invoker: invoker, cachePrefix: cachePrefix}
}

// Invoke resolves the effective payload for lambda+args, then either calls
// the backend directly or mediates the call through the cache store.
func (c *CachedInvoker) Invoke(ctx context.Context, lambda *LambdaSpec, args *RequestArgs) (interface{}, error) {
	payload := c.buildPayload(lambda, args)

	fill := func(fillCtx context.Context) (interface{}, error) {
		return c.invoker.Invoke(fillCtx, lambda.Name, payload, lambda.version())
	}

	if spec, ok := c.cacheKeySpec(lambda, args); ok {
		return c.store.Get(ctx, spec, fill)
	}
	return fill(ctx)
}

// cacheKeySpec implements spec.md §4.5's eligibility rule:
// cacheStore != nil AND lambda.cache != nil AND evaluate(enabled, args);
// if the computed key is empty, caching is disabled for this request.
func (c *CachedInvoker) cacheKeySpec(lambda *LambdaSpec, args *RequestArgs) (KeySpec, bool) {
	if c.store == nil || lambda.Cache == nil {
		return KeySpec{}, false
	}
	if !lambda.Cache.Enabled.Evaluate(args) {
		return KeySpec{}, false
	}

	key := lambda.Cache.Key.Evaluate(args)
	if key == "" {
		return KeySpec{}, false
	}

	return KeySpec{Namespace: args.Host, Key: c.cachePrefix + key, Lambda: lambda.Name}, true
}

// buildPayload implements spec.md §4.5's payload construction rule.
func (c *CachedInvoker) buildPayload(lambda *LambdaSpec, args *RequestArgs) interface{} {
	if lambda.ParamsOnly {
		merged := Params{}
		for k, v := range lambda.Defaults.RequestParams {
			merged[k] = v
		}
		for k, v := range args.Params {
			merged[k] = v
		}
		return merged
	}

	merged := Params{}
	for k, v := range lambda.Defaults.RequestParams {
		merged[k] = v
	}
	for k, v := range args.Params {
		merged[k] = v
	}

	return InvokePayload{
		Method:  args.Method,
		Headers: args.Headers,
		Body:    args.Body,
		Params:  merged,
		URI:     args.URI,
	}
}
