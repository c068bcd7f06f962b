// Package service defines the contract between HTTP services and the server
// that mounts them.
package service

import "net/http"

// Service is an HTTP service mounted by the server under Prefix().
type Service interface {
	// Handler serves requests with the prefix already stripped.
	Handler() http.Handler

	// Prefix is the mount path without slashes, e.g. "api".
	Prefix() string

	// Close releases resources on shutdown.
	Close() error

	// Unprotected lists paths (relative to Prefix) that skip session auth.
	Unprotected() []string
}
