package cache

import (
	"encoding/hex"
	"net/http"

	"golang.org/x/crypto/blake2b"

	"request_pipeline/internal/web"
)

// KeyOptions controls which request parts identify a cache entry.
type KeyOptions struct {
	// Include query parameters in cache key
	IncludeQuery bool

	// Include request headers in cache key
	IncludeHeaders []string
}

// RequestKey builds a CacheSpec.Key function hashing method, path, query
// and selected headers with BLAKE2b-256. Keys are namespaced by route name.
func RequestKey(opts KeyOptions) func(ctx *web.Context) (string, error) {
	return func(ctx *web.Context) (string, error) {
		h, err := blake2b.New256(nil)
		if err != nil {
			return "", err
		}
		r := ctx.Request

		h.Write([]byte(r.Method + ":" + r.URL.Path))
		if opts.IncludeQuery && r.URL.RawQuery != "" {
			h.Write([]byte("?" + r.URL.RawQuery))
		}
		for _, name := range opts.IncludeHeaders {
			if value := r.Header.Get(name); value != "" {
				h.Write([]byte("\n" + http.CanonicalHeaderKey(name) + ":" + value))
			}
		}

		prefix := "route"
		if ctx.Route != nil && ctx.Route.Name != "" {
			prefix = ctx.Route.Name
		}
		return prefix + ":" + hex.EncodeToString(h.Sum(nil)), nil
	}
}

// SafeMethods is a CacheSpec.Cacheable accepting GET and HEAD requests.
func SafeMethods(ctx *web.Context) (bool, error) {
	m := ctx.Method()
	return m == http.MethodGet || m == http.MethodHead, nil
}
