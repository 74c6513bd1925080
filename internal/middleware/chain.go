// Package middleware holds the HTTP middleware wrapped around the SSR
// gateway: request IDs, access logging, panic recovery, compression and the
// production static file fall-through.
package middleware

import (
	"fmt"
	"net/http"
)

// Middleware represents a single middleware function
type Middleware func(http.Handler) http.Handler

// Chain is an ordered middleware stack. The first middleware added is the
// outermost wrapper.
type Chain struct {
	middlewares []Middleware
}

// NewChain creates a chain from middlewares, outermost first.
func NewChain(middlewares ...Middleware) *Chain {
	c := &Chain{middlewares: make([]Middleware, 0, len(middlewares))}
	for _, m := range middlewares {
		c.Add(m)
	}
	return c
}

// Add appends a middleware inside the ones already added. nil is ignored.
func (c *Chain) Add(middleware Middleware) {
	if middleware == nil {
		return
	}
	c.middlewares = append(c.middlewares, middleware)
}

// Len returns the number of middlewares in the chain.
func (c *Chain) Len() int {
	return len(c.middlewares)
}

// Apply wraps handler so that a request flows through the middlewares in
// the order they were added.
func (c *Chain) Apply(handler http.Handler) http.Handler {
	if handler == nil {
		panic("middleware: Apply called with nil handler")
	}

	wrapped := handler
	for i := len(c.middlewares) - 1; i >= 0; i-- {
		wrapped = c.middlewares[i](wrapped)
		if wrapped == nil {
			panic(fmt.Sprintf("middleware: middleware at index %d returned nil handler", i))
		}
	}
	return wrapped
}
