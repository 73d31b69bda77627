// Package metrics provides lightweight, lock-free counters and gauges
// for tracking runtime statistics of a gzstream run.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Collector tracks runtime metrics for one process.  The co-located
// mode shares a single Collector between its server and client.
// A nil Collector is safe to use: all methods become no-ops.
type Collector struct {
	connectionsActive atomic.Int64
	connectionsTotal  atomic.Int64
	bytesIn           atomic.Int64 // compressed bytes read
	bytesOut          atomic.Int64 // compressed bytes written
	decoded           atomic.Int64
	messagesSent      atomic.Int64
	messagesSkipped   atomic.Int64
	messagesFailed    atomic.Int64
	idlePolls         atomic.Int64
	errorsTotal       atomic.Int64

	mu           sync.RWMutex
	startTime    time.Time
	lastError    time.Time
	lastErrorMsg string
}

// New creates a metrics collector with the start time set to now.
func New() *Collector {
	return &Collector{startTime: time.Now()}
}

// ── Connection metrics ───────────────────────────────────────────────

// ConnectionOpened increments both the active and total counters.
func (c *Collector) ConnectionOpened() {
	if c == nil {
		return
	}
	c.connectionsActive.Add(1)
	c.connectionsTotal.Add(1)
}

// ConnectionClosed decrements the active connection counter.
func (c *Collector) ConnectionClosed() {
	if c == nil {
		return
	}
	c.connectionsActive.Add(-1)
}

// ActiveConnections returns the current number of open connections.
func (c *Collector) ActiveConnections() int64 {
	if c == nil {
		return 0
	}
	return c.connectionsActive.Load()
}

// TotalConnections returns the lifetime connection count.
func (c *Collector) TotalConnections() int64 {
	if c == nil {
		return 0
	}
	return c.connectionsTotal.Load()
}

// ── I/O metrics ──────────────────────────────────────────────────────

// BytesReceived records n compressed bytes read from the network.
func (c *Collector) BytesReceived(n int64) {
	if c == nil {
		return
	}
	c.bytesIn.Add(n)
}

// BytesSent records n compressed bytes written to the network.
func (c *Collector) BytesSent(n int64) {
	if c == nil {
		return
	}
	c.bytesOut.Add(n)
}

// BytesDecoded records n bytes delivered by the decompressor.
func (c *Collector) BytesDecoded(n int64) {
	if c == nil {
		return
	}
	c.decoded.Add(n)
}

// TotalBytesIn returns total compressed bytes received.
func (c *Collector) TotalBytesIn() int64 {
	if c == nil {
		return 0
	}
	return c.bytesIn.Load()
}

// TotalBytesOut returns total compressed bytes sent.
func (c *Collector) TotalBytesOut() int64 {
	if c == nil {
		return 0
	}
	return c.bytesOut.Load()
}

// TotalDecoded returns total decoded bytes.
func (c *Collector) TotalDecoded() int64 {
	if c == nil {
		return 0
	}
	return c.decoded.Load()
}

// ── Client messages ──────────────────────────────────────────────────

func (c *Collector) MessageSent() {
	if c == nil {
		return
	}
	c.messagesSent.Add(1)
}

func (c *Collector) MessageSkipped() {
	if c == nil {
		return
	}
	c.messagesSkipped.Add(1)
}

func (c *Collector) MessageFailed() {
	if c == nil {
		return
	}
	c.messagesFailed.Add(1)
}

// Messages returns the sent, skipped and failed counts.
func (c *Collector) Messages() (sent, skipped, failed int64) {
	if c == nil {
		return 0, 0, 0
	}
	return c.messagesSent.Load(), c.messagesSkipped.Load(), c.messagesFailed.Load()
}

// ── Poll metrics ─────────────────────────────────────────────────────

// IdlePoll records one poll that timed out with nothing ready.
func (c *Collector) IdlePoll() {
	if c == nil {
		return
	}
	c.idlePolls.Add(1)
}

// IdlePolls returns the lifetime idle poll count.  Unlike the Session
// Loop's idle counter it never resets.
func (c *Collector) IdlePolls() int64 {
	if c == nil {
		return 0
	}
	return c.idlePolls.Load()
}

// ── Error metrics ────────────────────────────────────────────────────

// RecordError increments the error counter and stores the message.
func (c *Collector) RecordError(msg string) {
	if c == nil {
		return
	}
	c.errorsTotal.Add(1)
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// ErrorCount returns the total number of errors recorded.
func (c *Collector) ErrorCount() int64 {
	if c == nil {
		return 0
	}
	return c.errorsTotal.Load()
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime            string `json:"uptime"`
	ConnectionsActive int64  `json:"connections_active"`
	ConnectionsTotal  int64  `json:"connections_total"`
	BytesIn           int64  `json:"bytes_in"`
	BytesOut          int64  `json:"bytes_out"`
	BytesDecoded      int64  `json:"bytes_decoded"`
	MessagesSent      int64  `json:"messages_sent"`
	MessagesSkipped   int64  `json:"messages_skipped"`
	MessagesFailed    int64  `json:"messages_failed"`
	IdlePolls         int64  `json:"idle_polls"`
	ErrorsTotal       int64  `json:"errors_total"`
	LastError         string `json:"last_error,omitempty"`
	LastErrorMessage  string `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:            time.Since(c.startTime).Truncate(time.Second).String(),
		ConnectionsActive: c.connectionsActive.Load(),
		ConnectionsTotal:  c.connectionsTotal.Load(),
		BytesIn:           c.bytesIn.Load(),
		BytesOut:          c.bytesOut.Load(),
		BytesDecoded:      c.decoded.Load(),
		MessagesSent:      c.messagesSent.Load(),
		MessagesSkipped:   c.messagesSkipped.Load(),
		MessagesFailed:    c.messagesFailed.Load(),
		IdlePolls:         c.idlePolls.Load(),
		ErrorsTotal:       c.errorsTotal.Load(),
	}
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// JSON returns the snapshot as an indented JSON string.
func (c *Collector) JSON() string {
	s := c.Snapshot()
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}
