// Package internal holds the implementation packages of ssrgate.
//
//   - ssr: request gateway, resolvers, render executor, compositor and diagnostics
//   - devserver: development adapter with the module graph and live reload
//   - module: render module loading (templates, processes, compiled-in registry)
//   - manifest: build manifest lookup for the production bundle
//   - server: HTTP composition and lifecycle
//   - middleware, livereload, watcher: HTTP and filesystem plumbing
//   - config, logging, errors, validation, version: ambient concerns
package internal
