//go:build linux || darwin

// Package capability defines what the server does with decoded data.
// Each Capability encapsulates a single behaviour (log messages, echo
// them, stop on a keyword) and operates on a Session rather than a raw
// stream, which keeps policies testable and out of the Session Loop.
package capability

import (
	"context"
	"errors"

	"gzstream/internal/message"
	"gzstream/internal/session"
)

// ErrStop is returned by a Capability that wants the server to shut
// down after the current delivery.
var ErrStop = errors.New("stop requested")

// Delivery is the result of one successful stream read: the decoded
// chunk and any messages it completed.
type Delivery struct {
	Chunk    []byte
	Messages []message.Message
}

// Capability handles decoded data for a single connection.
type Capability interface {
	// Handle is called once per successful read.  Returning ErrStop
	// (possibly wrapped) asks the loop to terminate; any other error
	// is logged and the connection stays up.
	Handle(ctx context.Context, sess *session.Session, d Delivery) error
}

// Chain runs capabilities in order.  It stops at the first ErrStop
// and otherwise joins every error.
type Chain []Capability

func (c Chain) Handle(ctx context.Context, sess *session.Session, d Delivery) error {
	var errs []error
	for _, capab := range c {
		err := capab.Handle(ctx, sess, d)
		if errors.Is(err, ErrStop) {
			return err
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
