package client

import "context"

type bypassCacheKey struct{}

// BypassCache returns a context whose GET requests skip the response cache
// and always reach the API. Fresh responses are still stored.
func BypassCache(ctx context.Context) context.Context {
	return context.WithValue(ctx, bypassCacheKey{}, true)
}

func cacheBypassed(ctx context.Context) bool {
	bypass, _ := ctx.Value(bypassCacheKey{}).(bool)
	return bypass
}
