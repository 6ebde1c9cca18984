// Package transports provides Transport implementations for the servo bus:
// an OS serial port, a baremetal UART, and a mock for tests.
package transports

import (
	"io"
	"sync"
	"time"
)

// Mock implements the bus Transport for testing. Reads block until data is
// queued or the read timeout passes, mimicking a serial port with a
// timeout, so it works under the bus's background receiver.
type Mock struct {
	mu     sync.Mutex
	cond   *sync.Cond
	inbox  []byte
	writes [][]byte

	closed      bool
	flushed     int
	readTimeout time.Duration

	// OnWrite, if set, is invoked for every written packet; the returned
	// byte slices are queued as inbound data, simulating servo replies.
	OnWrite func(packet []byte) [][]byte
}

// NewMock creates a mock transport.
func NewMock() *Mock {
	m := &Mock{readTimeout: 10 * time.Millisecond}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// QueueRead appends bytes to the inbound data, waking a blocked Read.
func (m *Mock) QueueRead(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inbox = append(m.inbox, data...)
	m.cond.Broadcast()
}

func (m *Mock) Read(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	deadline := time.Now().Add(m.readTimeout)
	for len(m.inbox) == 0 {
		if m.closed {
			return 0, io.ErrClosedPipe
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0, nil // timeout, like a serial port
		}
		timer := time.AfterFunc(remaining, func() {
			m.mu.Lock()
			m.cond.Broadcast()
			m.mu.Unlock()
		})
		m.cond.Wait()
		timer.Stop()
	}

	n := copy(p, m.inbox)
	m.inbox = m.inbox[n:]
	return n, nil
}

func (m *Mock) Write(p []byte) (int, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, io.ErrClosedPipe
	}
	packet := append([]byte(nil), p...)
	m.writes = append(m.writes, packet)
	onWrite := m.OnWrite
	m.mu.Unlock()

	if onWrite != nil {
		for _, reply := range onWrite(packet) {
			m.QueueRead(reply)
		}
	}

	return len(p), nil
}

func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.cond.Broadcast()
	return nil
}

func (m *Mock) SetReadTimeout(timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if timeout > 0 {
		m.readTimeout = timeout
	}
	return nil
}

func (m *Mock) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inbox = nil
	m.flushed++
	return nil
}

// Writes returns every packet written so far, one slice per Write call.
func (m *Mock) Writes() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.writes))
	copy(out, m.writes)
	return out
}

// FlushCount returns how many times Flush was called.
func (m *Mock) FlushCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushed
}
