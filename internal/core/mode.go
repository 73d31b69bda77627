// Package core is the orchestration layer.  It composes transports,
// streams and capabilities into complete operational modes and
// provides a builder that selects the right mode from a Config.
//
// Architecture layers (bottom → top):
//
//	poll, transport  →  gzstream  →  session, capability  →  core  →  cmd (CLI)
//
// The builder in this package is the single dispatch point between
// the parsed command line and the loops that run.
package core

import "context"

// Mode represents a complete operational mode of gzstream (server,
// client, or both co-located).  Each mode owns its full lifecycle
// from socket setup to teardown.
type Mode interface {
	Run(ctx context.Context) error
}
