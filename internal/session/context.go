package session

import (
	"context"

	fwerr "github.com/mrz1836/fedwallet/pkg/errors"
)

type containerKey struct{}

// WithContainer returns a context carrying c.
func WithContainer(ctx context.Context, c *Container) context.Context {
	return context.WithValue(ctx, containerKey{}, c)
}

// FromContext returns the container attached with WithContainer. It panics
// with ErrNotInitialized when there is none.
func FromContext(ctx context.Context) *Container {
	c, ok := ctx.Value(containerKey{}).(*Container)
	if !ok || c == nil {
		panic(fwerr.ErrNotInitialized)
	}
	return c
}
