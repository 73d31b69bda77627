package gzstream

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/gzip"
)

// decoder runs a gzip reader against compressed bytes handed over by
// the owning Stream.  The gzip reader pulls its input, so it lives on
// its own goroutine, but control passes strictly back and forth: the
// goroutine only runs between a hand-over and the next idle/done
// signal, and the owner only touches out and err while it is parked.
type decoder struct {
	in   chan []byte   // owner -> decoder: next compressed chunk; closed on peer EOF
	idle chan struct{} // decoder -> owner: every handed-over byte is consumed
	done chan struct{} // closed when the gzip member ended or failed

	pend        []byte       // decoder side: handed-over bytes not yet consumed
	out         bytes.Buffer // decoded bytes not yet delivered
	err         error        // terminal error, io.EOF on a clean end; valid after done
	inputClosed bool
}

func newDecoder() *decoder {
	d := &decoder{
		in:   make(chan []byte),
		idle: make(chan struct{}),
		done: make(chan struct{}),
	}
	go d.run()
	d.wait()
	return d
}

func (d *decoder) run() {
	defer close(d.done)

	zr, err := gzip.NewReader(d)
	if err != nil {
		d.err = err
		return
	}
	zr.Multistream(false)

	buf := make([]byte, 512)
	for {
		n, err := zr.Read(buf)
		d.out.Write(buf[:n])
		if err != nil {
			d.err = err
			return
		}
	}
}

// Read is the gzip reader's source.  When the current chunk is used
// up it reports idle and parks until the owner hands over more.
func (d *decoder) Read(p []byte) (int, error) {
	if len(d.pend) == 0 {
		d.idle <- struct{}{}
		chunk, ok := <-d.in
		if !ok {
			return 0, io.EOF
		}
		d.pend = chunk
	}
	n := copy(p, d.pend)
	d.pend = d.pend[n:]
	return n, nil
}

// wait blocks until the decoder has consumed its input or finished.
func (d *decoder) wait() {
	select {
	case <-d.idle:
	case <-d.done:
	}
}

// feed hands b to the decoder and returns once all of it is consumed.
// b may be reused by the caller afterwards.
func (d *decoder) feed(b []byte) {
	if d.inputClosed {
		return
	}
	select {
	case d.in <- b:
	case <-d.done:
		return
	}
	d.wait()
}

// closeInput signals end of compressed input and waits for the
// decoder to finish.
func (d *decoder) closeInput() {
	if d.inputClosed {
		return
	}
	d.inputClosed = true
	close(d.in)
	for {
		select {
		case <-d.idle:
		case <-d.done:
			return
		}
	}
}

func (d *decoder) finished() bool {
	select {
	case <-d.done:
		return true
	default:
		return false
	}
}

// take moves up to len(p) decoded bytes into p.
func (d *decoder) take(p []byte) int {
	n, _ := d.out.Read(p)
	return n
}

func (d *decoder) buffered() int { return d.out.Len() }
