// Package sessions manages the per viewer context instances that requests
// execute under. A context instance is memoized on the credentials that
// produced it and lives for the rest of the process.
package sessions

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/diwise/graph-gateway/internal/pkg/infrastructure/storage"
	"github.com/diwise/graph-gateway/pkg/graphapi/types"
)

// ContextData carries the credential material and request scoped signals
// extracted from an incoming request.
type ContextData struct {
	Token  string
	APIKey string
	Purge  bool
	Origin string
}

// Context is the execution context derived from one set of credentials.
type Context struct {
	viewer        types.Viewer
	requestID     string
	allowOverride bool
	errorOnly     bool
	output        func(options map[string]string) Output
	cache         storage.Cache
}

func (c *Context) Viewer() types.Viewer {
	return c.viewer
}

// RequestID identifies this context instance. It namespaces every cached
// request so that no two viewers can ever observe each other's entries.
func (c *Context) RequestID() string {
	return c.requestID
}

// AllowsMethodOverride reports whether requests under this context may remap
// GET to another method via the method option.
func (c *Context) AllowsMethodOverride() bool {
	return c.allowOverride
}

// ErrorOnly reports whether this is the fallback context used to deliver
// failures when no real context could be established.
func (c *Context) ErrorOnly() bool {
	return c.errorOnly
}

func (c *Context) Output(options map[string]string) Output {
	return c.output(options)
}

// CachedRequest looks up a previously memoized request result.
func (c *Context) CachedRequest(ctx context.Context, key string) (string, bool) {
	if c.cache == nil {
		return "", false
	}

	value, err := c.cache.Get(ctx, c.requestKey(key))
	if err != nil {
		return "", false
	}

	return value, true
}

// CacheRequest memoizes a request result for ttl.
func (c *Context) CacheRequest(ctx context.Context, key, value string, ttl time.Duration) error {
	if c.cache == nil {
		return errors.New("context has no cache")
	}

	return c.cache.Set(ctx, c.requestKey(key), value, ttl)
}

// ClearCachedRequests drops every request result memoized under this
// context and returns how many there were.
func (c *Context) ClearCachedRequests(ctx context.Context) (int, error) {
	if c.cache == nil {
		return 0, nil
	}

	return c.cache.DelPrefix(ctx, "req:"+c.requestID+":")
}

func (c *Context) requestKey(key string) string {
	return "req:" + c.requestID + ":" + hashString(key)
}

func hashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[0:24]
}
