//go:build linux || darwin

package capability

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"gzstream/internal/message"
	"gzstream/internal/session"
	"gzstream/util"
)

func testSession(buf *bytes.Buffer, verbosity int) *session.Session {
	logger := util.NewLogger(verbosity)
	logger.SetOutput(buf)
	return &session.Session{FD: 7, Peer: "127.0.0.1:5000", Logger: logger}
}

func delivery(msgs ...string) Delivery {
	d := Delivery{}
	for _, m := range msgs {
		d.Messages = append(d.Messages, message.Message{Data: []byte(m)})
	}
	return d
}

// TestLog_Messages verifies completed messages are logged at verbose
// level with non-printable bytes escaped.
func TestLog_Messages(t *testing.T) {
	var buf bytes.Buffer
	sess := testSession(&buf, 2)

	if err := (Log{}).Handle(context.Background(), sess, delivery("hi\x01")); err != nil {
		t.Fatal(err)
	}

	out := buf.String()
	if !strings.Contains(out, "[VRB]") || !strings.Contains(out, "[hi<0x01>]") {
		t.Errorf("log output = %q", out)
	}
	if !strings.Contains(out, "fd 7 from 127.0.0.1:5000") {
		t.Errorf("log output lacks session: %q", out)
	}
}

// TestLog_PartialWarns verifies a cut message is reported as a warning.
func TestLog_PartialWarns(t *testing.T) {
	var buf bytes.Buffer
	sess := testSession(&buf, 1)

	d := Delivery{Messages: []message.Message{{Data: []byte("abc"), Partial: true}}}
	(Log{}).Handle(context.Background(), sess, d)

	if out := buf.String(); !strings.Contains(out, "[WRN]") || !strings.Contains(out, "cut at 3 bytes") {
		t.Errorf("log output = %q", out)
	}
}

// TestEcho_WritesLines verifies each message becomes one output line.
func TestEcho_WritesLines(t *testing.T) {
	var logs, out bytes.Buffer
	sess := testSession(&logs, 0)

	e := &Echo{W: &out}
	if err := e.Handle(context.Background(), sess, delivery("a", "b")); err != nil {
		t.Fatal(err)
	}
	if got := out.String(); got != "a\nb\n" {
		t.Errorf("echo = %q, want %q", got, "a\nb\n")
	}
}

// TestEcho_NilWriter verifies an Echo without a writer is a no-op.
func TestEcho_NilWriter(t *testing.T) {
	var logs bytes.Buffer
	e := &Echo{}
	if err := e.Handle(context.Background(), testSession(&logs, 0), delivery("a")); err != nil {
		t.Errorf("nil writer: %v", err)
	}
}

// TestStopOnKeyword verifies only a complete matching message stops
// the server.
func TestStopOnKeyword(t *testing.T) {
	var logs bytes.Buffer
	sess := testSession(&logs, 1)
	stop := StopOnKeyword{Keyword: "-stopserver-"}

	if err := stop.Handle(context.Background(), sess, delivery("hello")); err != nil {
		t.Errorf("ordinary message: %v", err)
	}

	err := stop.Handle(context.Background(), sess, delivery("x", "-stopserver-"))
	if !errors.Is(err, ErrStop) {
		t.Fatalf("err = %v, want ErrStop", err)
	}

	// A cut fragment never matches.
	partial := Delivery{Messages: []message.Message{{Data: []byte("-stopserver-"), Partial: true}}}
	if err := stop.Handle(context.Background(), sess, partial); err != nil {
		t.Errorf("partial message: %v", err)
	}
}

// TestStopOnKeyword_Disabled verifies an empty keyword never matches,
// not even an empty message.
func TestStopOnKeyword_Disabled(t *testing.T) {
	var logs bytes.Buffer
	if err := (StopOnKeyword{}).Handle(context.Background(), testSession(&logs, 1), delivery("")); err != nil {
		t.Errorf("empty keyword matched: %v", err)
	}
}

type failing struct{ err error }

func (f failing) Handle(context.Context, *session.Session, Delivery) error { return f.err }

// TestChain verifies ordinary errors are joined while ErrStop ends the
// chain at once.
func TestChain(t *testing.T) {
	var logs bytes.Buffer
	sess := testSession(&logs, 0)
	boom := errors.New("boom")

	var out bytes.Buffer
	c := Chain{failing{boom}, &Echo{W: &out}}
	err := c.Handle(context.Background(), sess, delivery("m"))
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
	if out.String() != "m\n" {
		t.Error("later capabilities should still run after an ordinary error")
	}

	out.Reset()
	c = Chain{StopOnKeyword{Keyword: "m"}, &Echo{W: &out}}
	if err := c.Handle(context.Background(), sess, delivery("m")); !errors.Is(err, ErrStop) {
		t.Errorf("err = %v, want ErrStop", err)
	}
	if out.Len() != 0 {
		t.Error("chain should stop at ErrStop")
	}
}
