// Package ssr implements the dual-mode server-side rendering pipeline.
//
// A request flows through four stages, strictly in order:
//
//	Resolver   -> template string + render entry point (mode dependent)
//	Executor   -> rendered HTML fragment
//	Compose    -> fragment spliced into the template at the marker
//	Gateway    -> HTTP response (200 text/html or 500 text/plain)
//
// Development mode sources the template and the entry point from disk on
// every request through a DevAdapter, production mode reads pre-built
// artifacts and loads the entry point once per process. Both modes share the
// Gateway code path; only the Resolver branches.
package ssr

// Mode selects where templates and render modules come from. It is fixed at
// process start.
type Mode int

const (
	Development Mode = iota
	Production
)

// String returns the string representation of the Mode
func (m Mode) String() string {
	switch m {
	case Production:
		return "production"
	default:
		return "development"
	}
}

// ParseMode maps the environment value onto a Mode: exactly "production" is
// Production, everything else Development.
func ParseMode(env string) Mode {
	if env == "production" {
		return Production
	}
	return Development
}
