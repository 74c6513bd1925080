package middleware

import (
	"fmt"
	"net/http"

	"github.com/klauspost/compress/gzhttp"
)

// DefaultCompressionMinSize is the smallest response body worth
// compressing.
const DefaultCompressionMinSize = 1024

// Compress gzips responses for clients that accept it. Bodies smaller than
// minSize are sent as-is.
func Compress(minSize int) (Middleware, error) {
	if minSize <= 0 {
		minSize = DefaultCompressionMinSize
	}
	wrapper, err := gzhttp.NewWrapper(gzhttp.MinSize(minSize))
	if err != nil {
		return nil, fmt.Errorf("creating gzip wrapper: %w", err)
	}
	return func(next http.Handler) http.Handler {
		return wrapper(next)
	}, nil
}
