// Package cache provides a bounded, time-expiring response cache keyed by a
// digest of the request payload.
//
// The cache combines a TTL with LRU eviction: entries expire after a
// configured age and the least-recently-used entry is evicted when the cache
// is full. Keys are derived internally from the cached-against content via a
// fast non-cryptographic digest, so arbitrarily long payloads map to
// fixed-size storage keys.
//
//	c := cache.New[*llm.CompletionResponse](cache.Config{MaxEntries: 100, TTL: time.Hour})
//	if resp, ok := c.Get(payload); ok {
//	    return resp, nil
//	}
//	resp, err := complete(ctx, payload)
//	if err == nil {
//	    c.Set(payload, resp)
//	}
package cache
