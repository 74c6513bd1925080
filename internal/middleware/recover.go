package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/conneroisu/ssrgate/internal/logging"
)

// Recover turns a panic outside the render pipeline into a 500 so one bad
// request cannot take the process down.
func Recover(logger logging.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Error(r.Context(), fmt.Errorf("%v", rec), "Handler panicked",
					"path", r.URL.Path, "stack", string(debug.Stack()))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
