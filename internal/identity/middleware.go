package identity

import (
	"context"

	"github.com/gin-gonic/gin"
)

type contextKey struct{}

const ginContextKey = "atlacatl.identity"

// Middleware resolves the identity of every request and stores it in both the gin
// context and the request context.
func Middleware(resolver *Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		resolved := resolver.Resolve(c.Writer, c.Request)
		c.Set(ginContextKey, resolved)
		c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), resolved))
		c.Next()
	}
}

// WithIdentity returns a child context carrying the identity.
func WithIdentity(ctx context.Context, resolved Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, resolved)
}

// FromContext extracts the identity stored by Middleware.
func FromContext(ctx context.Context) (Identity, bool) {
	resolved, ok := ctx.Value(contextKey{}).(Identity)
	return resolved, ok
}

// FromGin returns the identity resolved for the current gin request.
func FromGin(c *gin.Context) (Identity, bool) {
	value, ok := c.Get(ginContextKey)
	if !ok {
		return FromContext(c.Request.Context())
	}
	resolved, ok := value.(Identity)
	return resolved, ok
}
