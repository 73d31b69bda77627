//go:build linux || darwin

package core

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"gzstream/util"
)

// CoLocatedMode runs the server and a client in one process as two
// goroutines that share nothing but the socket.  The client starts
// only after the server reports that it is listening, then waits
// StartupDelay more.
//
// The server keeps running after the client is done, exactly as it
// would on its own.  A client failure stops the server and is
// returned.
type CoLocatedMode struct {
	Server       *ServerMode
	Client       *ClientMode
	StartupDelay time.Duration
	Logger       *util.Logger
}

func (m *CoLocatedMode) Run(ctx context.Context) error {
	ready := make(chan string, 1)
	m.Server.Ready = ready

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return m.Server.Run(gctx)
	})
	g.Go(func() error {
		var addr string
		select {
		case addr = <-ready:
		case <-gctx.Done():
			return nil
		}
		if m.Client.Port == 0 {
			port, err := portOf(addr)
			if err != nil {
				return fmt.Errorf("client: %w", err)
			}
			m.Client.Port = port
		}
		m.Logger.Verbose("Client starting against %s after %v", addr, m.StartupDelay)
		sleep(gctx, m.StartupDelay)
		return m.Client.Run(gctx)
	})
	return g.Wait()
}

func portOf(addr string) (int, error) {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(p)
}
