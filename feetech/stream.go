package feetech

import (
	"sync"
	"time"
)

// streamReader is the inbound byte queue between the background receiver
// (producer) and the transaction engine (consumer). The producer appends,
// the consumer peeks and drains; no other access pattern exists. Waits are
// deadline-bounded condition waits, not polling loops, and Close wakes
// every pending waiter immediately.
type streamReader struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []byte // ring buffer
	head   int
	length int
	closed bool
}

func newStreamReader() *streamReader {
	r := &streamReader{buf: make([]byte, 256)}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// append adds received bytes to the queue and wakes any waiting consumer.
func (r *streamReader) append(p []byte) {
	if len(p) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	if r.length+len(p) > len(r.buf) {
		r.grow(r.length + len(p))
	}

	tail := (r.head + r.length) % len(r.buf)
	n := copy(r.buf[tail:], p)
	if n < len(p) {
		copy(r.buf, p[n:])
	}
	r.length += len(p)

	r.cond.Broadcast()
}

// grow resizes the ring to at least need bytes, linearizing the contents.
func (r *streamReader) grow(need int) {
	size := len(r.buf) * 2
	for size < need {
		size *= 2
	}
	next := make([]byte, size)
	r.copyOut(next[:r.length])
	r.buf = next
	r.head = 0
}

// copyOut copies the first len(dst) buffered bytes into dst without
// consuming them. Caller must hold the lock and ensure enough bytes exist.
func (r *streamReader) copyOut(dst []byte) {
	n := copy(dst, r.buf[r.head:min(r.head+len(dst), len(r.buf))])
	if n < len(dst) {
		copy(dst[n:], r.buf)
	}
}

// waitLocked blocks until at least n bytes are buffered, the deadline
// passes, or the reader closes. Caller must hold the lock.
func (r *streamReader) waitLocked(n int, deadline time.Time) error {
	for r.length < n {
		if r.closed {
			return ErrConnectionLost
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ErrTimeout
		}

		timer := time.AfterFunc(remaining, func() {
			r.mu.Lock()
			r.cond.Broadcast()
			r.mu.Unlock()
		})
		r.cond.Wait()
		timer.Stop()
	}
	return nil
}

// peek returns a copy of the first n buffered bytes without consuming them,
// waiting until they arrive or the deadline passes.
func (r *streamReader) peek(n int, deadline time.Time) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.waitLocked(n, deadline); err != nil {
		return nil, err
	}

	out := make([]byte, n)
	r.copyOut(out)
	return out, nil
}

// next consumes and returns the first n buffered bytes, waiting until they
// arrive or the deadline passes.
func (r *streamReader) next(n int, deadline time.Time) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.waitLocked(n, deadline); err != nil {
		return nil, err
	}

	out := make([]byte, n)
	r.copyOut(out)
	r.head = (r.head + n) % len(r.buf)
	r.length -= n
	return out, nil
}

// discard drops up to n buffered bytes without waiting.
func (r *streamReader) discard(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n > r.length {
		n = r.length
	}
	r.head = (r.head + n) % len(r.buf)
	r.length -= n
}

// reset drops everything buffered. Used to flush stale input before a
// transaction.
func (r *streamReader) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.head = 0
	r.length = 0
}

// size returns the number of buffered bytes.
func (r *streamReader) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.length
}

// close invalidates all pending waits immediately rather than letting them
// time out.
func (r *streamReader) close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	r.cond.Broadcast()
}

// nextFrame extracts one complete frame from the queue, discarding leading
// garbage until a header is found. The scan makes the engine
// self-resynchronizing: it never requires the transport to deliver
// byte-aligned frames.
//
// Returns the number of garbage bytes skipped alongside the raw frame.
func (r *streamReader) nextFrame(deadline time.Time) (frame []byte, skipped int, err error) {
	// Scan for the two-byte header marker, dropping one byte at a time.
	for {
		hdr, err := r.peek(2, deadline)
		if err != nil {
			return nil, skipped, err
		}
		if hdr[0] == headerByte1 && hdr[1] == headerByte2 {
			break
		}
		r.discard(1)
		skipped++
	}

	// Header + id + length tell us the total frame size.
	prefix, err := r.peek(4, deadline)
	if err != nil {
		return nil, skipped, err
	}
	total := 4 + int(prefix[3])

	frame, err = r.next(total, deadline)
	return frame, skipped, err
}
