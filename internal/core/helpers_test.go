//go:build linux || darwin

package core

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"gzstream/internal/capability"
	"gzstream/internal/message"
	"gzstream/internal/metrics"
	"gzstream/internal/session"
	"gzstream/internal/transport"
	"gzstream/util"
)

// recorder is a Capability that keeps everything it is handed.
type recorder struct {
	mu       sync.Mutex
	chunks   []string
	messages []string
	arrived  []time.Time
}

func (r *recorder) Handle(ctx context.Context, sess *session.Session, d capability.Delivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(d.Chunk) > 0 {
		r.chunks = append(r.chunks, string(d.Chunk))
	}
	for _, m := range d.Messages {
		if !m.Partial {
			r.messages = append(r.messages, string(m.Data))
			r.arrived = append(r.arrived, time.Now())
		}
	}
	return nil
}

func (r *recorder) snapshot() (chunks, messages []string, arrived []time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.chunks...),
		append([]string(nil), r.messages...),
		append([]time.Time(nil), r.arrived...)
}

func newServer(capab capability.Capability) *ServerMode {
	return &ServerMode{
		Host:         "127.0.0.1",
		BufferSize:   16,
		ReadSize:     128,
		MaxMessage:   128,
		PollInterval: 50 * time.Millisecond,
		Capability:   capab,
		Metrics:      metrics.New(),
		Logger:       util.NewLogger(0),
	}
}

func newClient(port int, tokens ...string) *ClientMode {
	return &ClientMode{
		Dialer:        &transport.TCPDialer{Timeout: 2 * time.Second},
		Host:          "127.0.0.1",
		Port:          port,
		Tokens:        message.Parse(tokens, 0),
		MaxMessage:    128,
		Level:         -1,
		BufferSize:    16,
		WriteTimeout:  2 * time.Second,
		DelayInterval: 300 * time.Millisecond,
		Metrics:       metrics.New(),
		Logger:        util.NewLogger(0),
	}
}

// runningServer is a ServerMode running on its own goroutine.
type runningServer struct {
	*ServerMode
	port   int
	errc   chan error
	cancel context.CancelFunc
}

func startServer(t *testing.T, m *ServerMode) *runningServer {
	t.Helper()
	ready := make(chan string, 1)
	m.Ready = ready

	ctx, cancel := context.WithCancel(context.Background())
	rs := &runningServer{ServerMode: m, errc: make(chan error, 1), cancel: cancel}
	go func() { rs.errc <- m.Run(ctx) }()

	select {
	case addr := <-ready:
		port, err := portOf(addr)
		if err != nil {
			t.Fatalf("ready address %q: %v", addr, err)
		}
		rs.port = port
	case err := <-rs.errc:
		t.Fatalf("server exited early: %v", err)
	case <-time.After(3 * time.Second):
		t.Fatal("server never became ready")
	}
	t.Cleanup(func() { rs.stop(t) })
	return rs
}

// stop cancels the server and waits for Run to return.  Calling it
// again after the server exited on its own is harmless.
func (rs *runningServer) stop(t *testing.T) {
	rs.cancel()
	select {
	case err := <-rs.errc:
		if err != nil {
			t.Errorf("server: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Error("server did not shut down in time")
	}
}

// waitExit waits for Run to return without cancelling it.
func (rs *runningServer) waitExit(t *testing.T) error {
	t.Helper()
	select {
	case err := <-rs.errc:
		rs.errc <- err // keep stop() from blocking
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("server did not exit")
		return nil
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// backToListening reports whether n connections came and went.
func backToListening(m *ServerMode, n int64) func() bool {
	return func() bool {
		return m.Metrics.TotalConnections() == n && m.Metrics.ActiveConnections() == 0
	}
}

func joined(parts []string) string { return strings.Join(parts, "") }
