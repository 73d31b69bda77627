//go:build linux || darwin

package capability

import (
	"context"
	"fmt"
	"io"
	"sync"

	"gzstream/internal/session"
	"gzstream/util"
)

// Log reports every completed message on the session's logger.
type Log struct{}

func (Log) Handle(ctx context.Context, sess *session.Session, d Delivery) error {
	for _, m := range d.Messages {
		if m.Partial {
			sess.Logger.Warn("Server %s message cut at %d bytes: [%s]",
				sess, len(m.Data), util.Printable(m.Data))
			continue
		}
		sess.Logger.Verbose("Server %s message: [%s]", sess, util.Printable(m.Data))
	}
	return nil
}

// Echo relays completed messages to W, one per line.
type Echo struct {
	W io.Writer

	mu sync.Mutex
}

func (e *Echo) Handle(ctx context.Context, sess *session.Session, d Delivery) error {
	if e.W == nil || len(d.Messages) == 0 {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, m := range d.Messages {
		if _, err := fmt.Fprintf(e.W, "%s\n", m.Data); err != nil {
			return fmt.Errorf("echo: %w", err)
		}
	}
	return nil
}
