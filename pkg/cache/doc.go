// Package cache stores read-only Klaviyo listing responses in Redis.
//
// Only idempotent GET responses are cached. Report and aggregate queries are
// POSTs whose answers depend on the requested timeframe, so they always go to
// the API. Every key is scoped by a namespace, normally the credential
// fingerprint, so two accounts sharing one Redis never read each other's data.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	manager := cache.NewManager(redisClient, 5*time.Minute)
//
//	key := cache.Key{
//		Namespace: cred.Fingerprint(),
//		Method:    http.MethodGet,
//		Endpoint:  "/lists/",
//		Query:     url.Values{"additional-fields[list]": {"profile_count"}},
//	}
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch, then:
//		ttl, ok := cache.TTLFromHeader(resp.Header, manager.DefaultTTL())
//		if ok {
//			_ = manager.Set(ctx, key, cache.NewEntry(resp.StatusCode, resp.Header, body, ttl))
//		}
//	}
//
// # Metrics
//
//   - klaviyo_cache_hits_total - Cache hits
//   - klaviyo_cache_misses_total - Cache misses
//   - klaviyo_cache_size_bytes - Bytes written to the cache
//   - klaviyo_cache_errors_total{operation} - Cache operation errors
//
// A cache failure is never fatal to a request; callers log it and fall
// through to the API.
package cache
