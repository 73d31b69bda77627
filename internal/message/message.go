// Package message models what travels over a gzstream connection: the
// client's command-line tokens and the NUL-terminated messages the
// server rebuilds from decoded bytes.
package message

import (
	"bytes"
	"fmt"
)

// DelayToken is the argument that makes the client pause instead of
// sending.
const DelayToken = "--delay"

// Kind distinguishes literal payloads from control tokens.
type Kind int

const (
	Literal Kind = iota
	Delay
)

func (k Kind) String() string {
	if k == Delay {
		return "delay"
	}
	return "literal"
}

// Token is one client-side unit, in command-line order.
type Token struct {
	Kind  Kind
	Text  string // literal text without terminator
	Index int    // argv position, <port> counted as 1
}

// Payload returns the bytes sent on the wire: the text plus its
// terminating NUL.  Delay tokens have no payload.
func (t Token) Payload() []byte {
	if t.Kind == Delay {
		return nil
	}
	b := make([]byte, len(t.Text)+1)
	copy(b, t.Text)
	return b
}

// EncodedLen is len(Payload()) without allocating.
func (t Token) EncodedLen() int {
	if t.Kind == Delay {
		return 0
	}
	return len(t.Text) + 1
}

func (t Token) String() string {
	if t.Kind == Delay {
		return fmt.Sprintf("#%d %s", t.Index, DelayToken)
	}
	return fmt.Sprintf("#%d %q", t.Index, t.Text)
}

// Parse turns arguments into tokens.  Every argument equal to
// DelayToken is a delay; everything else is a literal.  first is the
// index of args[0] in the full argument list.
func Parse(args []string, first int) []Token {
	tokens := make([]Token, 0, len(args))
	for i, a := range args {
		t := Token{Kind: Literal, Text: a, Index: first + i}
		if a == DelayToken {
			t.Kind = Delay
			t.Text = ""
		}
		tokens = append(tokens, t)
	}
	return tokens
}

// ── Reassembly ───────────────────────────────────────────────────────

// Message is a NUL-terminated unit rebuilt from decoded bytes.
type Message struct {
	Data []byte
	// Partial is set when Data was cut at the size limit or at stream
	// end before a terminator arrived.
	Partial bool
}

// Assembler splits decoded bytes on NUL terminators, carrying
// unfinished text across partial reads.
type Assembler struct {
	Limit int // maximum message size including the terminator; 0 = no limit

	buf bytes.Buffer
}

// NewAssembler returns an Assembler for messages of at most limit bytes.
func NewAssembler(limit int) *Assembler {
	return &Assembler{Limit: limit}
}

// Feed consumes chunk and returns every message it completed.
func (a *Assembler) Feed(chunk []byte) []Message {
	var out []Message
	for len(chunk) > 0 {
		i := bytes.IndexByte(chunk, 0)
		if i < 0 {
			a.buf.Write(chunk)
			out = a.cut(out)
			break
		}
		a.buf.Write(chunk[:i])
		out = append(out, Message{Data: a.take()})
		chunk = chunk[i+1:]
	}
	return out
}

// Flush returns the unterminated remainder, if any, as a partial
// message.
func (a *Assembler) Flush() (Message, bool) {
	if a.buf.Len() == 0 {
		return Message{}, false
	}
	return Message{Data: a.take(), Partial: true}, true
}

// Buffered returns the length of the unterminated remainder.
func (a *Assembler) Buffered() int { return a.buf.Len() }

// cut emits the buffer as partial messages while it holds more than
// Limit-1 bytes without a terminator.  Exactly Limit-1 bytes may still
// be completed by a terminator in the next chunk.
func (a *Assembler) cut(out []Message) []Message {
	if a.Limit <= 0 {
		return out
	}
	max := a.Limit - 1
	if max < 1 {
		max = 1
	}
	for a.buf.Len() > max {
		part := make([]byte, max)
		a.buf.Read(part)
		out = append(out, Message{Data: part, Partial: true})
	}
	return out
}

func (a *Assembler) take() []byte {
	b := append([]byte(nil), a.buf.Bytes()...)
	a.buf.Reset()
	return b
}
