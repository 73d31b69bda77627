//go:build linux || darwin

package capability

import (
	"context"
	"fmt"

	"gzstream/internal/session"
)

// StopOnKeyword asks the server to shut down when a completed message
// equals Keyword.  An empty Keyword never matches.
type StopOnKeyword struct {
	Keyword string
}

func (s StopOnKeyword) Handle(ctx context.Context, sess *session.Session, d Delivery) error {
	if s.Keyword == "" {
		return nil
	}
	for _, m := range d.Messages {
		if !m.Partial && string(m.Data) == s.Keyword {
			sess.Logger.Info("Server %s received stop keyword %q", sess, s.Keyword)
			return fmt.Errorf("keyword %q: %w", s.Keyword, ErrStop)
		}
	}
	return nil
}
