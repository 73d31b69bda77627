//go:build linux || darwin

package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"gzstream/internal/capability"
	"gzstream/internal/poll"
	"gzstream/internal/transport"
)

// fakeMux replays a script of poll outcomes: a nil entry is a timeout,
// anything else a poll error.  It cancels the run after the last one.
type fakeMux struct {
	script  []error
	cancel  context.CancelFunc
	calls   int
	lingers int
	watched []int
}

func (f *fakeMux) Wait(set ...poll.Watch) ([]int, error) {
	for _, w := range set {
		f.watched = append(f.watched, w.FD)
	}
	i := f.calls
	f.calls++
	if f.calls >= len(f.script) {
		f.cancel()
	}
	if i < len(f.script) && f.script[i] != nil {
		return nil, f.script[i]
	}
	return nil, nil
}

func (f *fakeMux) Linger(time.Time) { f.lingers++ }

// TestServerMode_IdleCounting verifies one increment per timed-out
// poll and that idling never touches the connection slot.
func TestServerMode_IdleCounting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mux := &fakeMux{script: make([]error, 5), cancel: cancel}
	m := newServer(nil)
	m.Poller = mux

	if err := m.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if m.IdleCount() != 5 {
		t.Errorf("IdleCount = %d, want 5", m.IdleCount())
	}
	if m.Metrics.IdlePolls() != 5 {
		t.Errorf("IdlePolls = %d, want 5", m.Metrics.IdlePolls())
	}
	if m.Metrics.TotalConnections() != 0 {
		t.Error("idle polls must not open a connection")
	}
	for _, fd := range mux.watched {
		if fd != mux.watched[0] {
			t.Fatalf("watched fds changed while idle: %v", mux.watched)
		}
	}
}

// TestServerMode_PollErrorResetsIdle verifies a poll error resets the
// idle counter, lingers out the timeout and keeps the loop running.
func TestServerMode_PollErrorResetsIdle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	boom := errors.New("poll exploded")
	mux := &fakeMux{script: []error{nil, nil, boom, nil}, cancel: cancel}
	m := newServer(nil)
	m.Poller = mux

	if err := m.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if m.IdleCount() != 1 {
		t.Errorf("IdleCount = %d, want 1", m.IdleCount())
	}
	if mux.lingers != 1 {
		t.Errorf("lingers = %d, want 1", mux.lingers)
	}
	if m.Metrics.ErrorCount() != 1 {
		t.Errorf("ErrorCount = %d, want 1", m.Metrics.ErrorCount())
	}
	if mux.calls != 4 {
		t.Errorf("calls = %d, want 4", mux.calls)
	}
}

// TestServerMode_ListenFailure verifies an unusable address is a setup
// error.
func TestServerMode_ListenFailure(t *testing.T) {
	m := newServer(nil)
	m.Host = "::1"
	if err := m.Run(context.Background()); err == nil {
		t.Fatal("expected setup error")
	}
}

// TestServerMode_SingleMessage is the hello scenario: one token is
// reconstructed exactly, the stream ends and the slot empties.
func TestServerMode_SingleMessage(t *testing.T) {
	rec := &recorder{}
	srv := startServer(t, newServer(rec))

	if err := newClient(srv.port, "hello").Run(context.Background()); err != nil {
		t.Fatalf("client: %v", err)
	}
	eventually(t, "end of stream", backToListening(srv.ServerMode, 1))

	chunks, messages, _ := rec.snapshot()
	if got := joined(chunks); got != "hello\x00" {
		t.Errorf("decoded = %q, want %q", got, "hello\x00")
	}
	if len(messages) != 1 || messages[0] != "hello" {
		t.Errorf("messages = %q", messages)
	}
	if srv.Metrics.TotalBytesIn() == 0 || srv.Metrics.TotalDecoded() != 6 {
		t.Errorf("bytes in/decoded = %d/%d", srv.Metrics.TotalBytesIn(), srv.Metrics.TotalDecoded())
	}
}

// TestServerMode_ReturnsToListening verifies a second client is served
// after the first one finished.
func TestServerMode_ReturnsToListening(t *testing.T) {
	rec := &recorder{}
	srv := startServer(t, newServer(rec))

	for i, tok := range []string{"first", "second"} {
		if err := newClient(srv.port, tok).Run(context.Background()); err != nil {
			t.Fatalf("client %d: %v", i, err)
		}
		eventually(t, "connection closed", backToListening(srv.ServerMode, int64(i+1)))
	}

	_, messages, _ := rec.snapshot()
	if len(messages) != 2 || messages[0] != "first" || messages[1] != "second" {
		t.Errorf("messages = %q", messages)
	}
}

// TestServerMode_StreamErrorClosesSlot verifies garbage on the wire
// tears the connection down without stopping the server.
func TestServerMode_StreamErrorClosesSlot(t *testing.T) {
	srv := startServer(t, newServer(&recorder{}))

	d := &transport.TCPDialer{Timeout: 2 * time.Second}
	fd, err := d.Dial(context.Background(), "127.0.0.1", srv.port)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := unix.Write(fd, []byte("this is not gzip at all")); err != nil {
		t.Fatal(err)
	}
	transport.CloseFD(fd)

	eventually(t, "stream error teardown", func() bool {
		return backToListening(srv.ServerMode, 1)() && srv.Metrics.ErrorCount() > 0
	})
}

// TestServerMode_SetupFailureStaysListening verifies a stream that
// cannot be configured is discarded before it occupies the slot.
func TestServerMode_SetupFailureStaysListening(t *testing.T) {
	m := newServer(&recorder{})
	m.BufferSize = 0
	srv := startServer(t, m)

	d := &transport.TCPDialer{Timeout: 2 * time.Second}
	fd, err := d.Dial(context.Background(), "127.0.0.1", srv.port)
	if err != nil {
		t.Fatal(err)
	}
	defer transport.CloseFD(fd)

	eventually(t, "setup failure", func() bool { return srv.Metrics.ErrorCount() > 0 })
	if srv.Metrics.TotalConnections() != 0 {
		t.Errorf("TotalConnections = %d, want 0", srv.Metrics.TotalConnections())
	}
}

// TestServerMode_StopKeyword verifies the keyword policy ends Run.
func TestServerMode_StopKeyword(t *testing.T) {
	rec := &recorder{}
	srv := startServer(t, newServer(capability.Chain{rec, capability.StopOnKeyword{Keyword: "-stopserver-"}}))

	if err := newClient(srv.port, "one", "-stopserver-").Run(context.Background()); err != nil {
		t.Fatalf("client: %v", err)
	}
	if err := srv.waitExit(t); err != nil {
		t.Fatalf("server: %v", err)
	}

	_, messages, _ := rec.snapshot()
	if len(messages) != 2 || messages[1] != "-stopserver-" {
		t.Errorf("messages = %q", messages)
	}
	if srv.Metrics.ActiveConnections() != 0 {
		t.Error("slot should be closed on stop")
	}
}

// TestServerMode_KeywordIsDataWithoutPolicy verifies the stop keyword
// is ordinary data when no policy is installed.
func TestServerMode_KeywordIsDataWithoutPolicy(t *testing.T) {
	rec := &recorder{}
	srv := startServer(t, newServer(rec))

	if err := newClient(srv.port, "-stopserver-", "after").Run(context.Background()); err != nil {
		t.Fatalf("client: %v", err)
	}
	eventually(t, "both messages", backToListening(srv.ServerMode, 1))

	_, messages, _ := rec.snapshot()
	if len(messages) != 2 || messages[1] != "after" {
		t.Errorf("messages = %q", messages)
	}
}
