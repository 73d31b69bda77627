//go:build linux || darwin

package core

import (
	"context"
	"fmt"
	"time"

	gerrors "gzstream/internal/errors"
	"gzstream/internal/gzstream"
	"gzstream/internal/message"
	"gzstream/internal/metrics"
	"gzstream/internal/retry"
	"gzstream/internal/transport"
	"gzstream/util"
)

// ClientMode is the Send Loop.  It connects, then compress-writes each
// literal token and sync-flushes it so the server can decode it alone,
// pausing for every delay token.  Token failures do not stop the loop:
// every token is attempted and the run fails at the end if any did.
type ClientMode struct {
	Dialer transport.Dialer
	Retry  *retry.Backoff // nil connects once
	Host   string
	Port   int
	Tokens []message.Token

	MaxMessage    int // longest payload sent, terminator included
	Level         int
	BufferSize    int
	WriteTimeout  time.Duration
	DelayInterval time.Duration

	Metrics *metrics.Collector
	Logger  *util.Logger
}

// Run connects and sends every token in order.  The stream is always
// finished and closed before Run returns.
func (m *ClientMode) Run(ctx context.Context) error {
	defer m.Dialer.Close()

	address := util.FormatAddr(m.Host, m.Port)
	m.Logger.Verbose("Client connecting to %s", address)

	fd, err := m.dial(ctx)
	if err != nil {
		m.Metrics.RecordError(err.Error())
		return fmt.Errorf("client: %w", err)
	}

	stream, err := gzstream.OpenWrite(fd, m.Level)
	if err != nil {
		transport.CloseFD(fd)
		m.Metrics.RecordError(err.Error())
		return fmt.Errorf("client: %w", err)
	}
	if m.BufferSize > 0 {
		if err := stream.SetBuffer(m.BufferSize); err != nil {
			stream.Close()
			return fmt.Errorf("client: %w", err)
		}
	}
	stream.SetWriteTimeout(m.WriteTimeout)
	m.Logger.Info("Client connected to %s (fd %d)", address, fd)

	failed, attempted := 0, 0
	for _, tok := range m.Tokens {
		if ctx.Err() != nil {
			m.Logger.Warn("Client interrupted before %s", tok)
			break
		}

		switch {
		case tok.Kind == message.Delay:
			m.Logger.Verbose("Client %s: pausing %v", tok, m.DelayInterval)
			sleep(ctx, m.DelayInterval)

		case m.MaxMessage > 0 && tok.EncodedLen() > m.MaxMessage:
			m.Logger.Warn("Client ignoring long message in argument %d (%d > %d bytes)",
				tok.Index, tok.EncodedLen(), m.MaxMessage)
			m.Metrics.MessageSkipped()

		default:
			attempted++
			before := stream.BytesOut()
			err := stream.WriteFlush(tok.Payload())
			m.Metrics.BytesSent(stream.BytesOut() - before)
			if err != nil {
				failed++
				m.Logger.Error("Client %s: %v", tok, err)
				m.Metrics.MessageFailed()
				m.Metrics.RecordError(err.Error())
				continue
			}
			m.Metrics.MessageSent()
			m.Logger.Verbose("Client sent %s (%d compressed bytes)", tok, stream.BytesOut()-before)
		}
	}

	before := stream.BytesOut()
	if err := stream.Close(); err != nil {
		m.Logger.Warn("Client finish fd %d: %v", fd, err)
		m.Metrics.RecordError(err.Error())
	}
	m.Metrics.BytesSent(stream.BytesOut() - before)
	m.Logger.Info("Client closed fd %d after %d compressed bytes", fd, stream.BytesOut())

	if failed > 0 {
		return fmt.Errorf("client: %d of %d messages failed", failed, attempted)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("client: %w", err)
	}
	return nil
}

// dial connects, retrying refused or timed-out attempts under m.Retry.
// Resolution and socket failures are not retried.
func (m *ClientMode) dial(ctx context.Context) (int, error) {
	if m.Retry == nil {
		return m.Dialer.Dial(ctx, m.Host, m.Port)
	}
	if m.Retry.OnRetry == nil {
		m.Retry.OnRetry = func(attempt int, wait time.Duration, err error) {
			m.Logger.Verbose("Client connect attempt %d failed, retrying in %v: %v", attempt, wait, err)
		}
	}

	fd := -1
	err := m.Retry.Do(ctx, func(int) error {
		var err error
		fd, err = m.Dialer.Dial(ctx, m.Host, m.Port)
		if err != nil && !gerrors.IsRetryable(err) {
			return retry.Stop(err)
		}
		return err
	})
	return fd, err
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
