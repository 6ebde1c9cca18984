package feetech

import (
	"context"
	"fmt"
)

// SyncWriter batches values for one register across many servos into a
// single broadcast transmission. Entries accumulate via Add and go out on
// the wire together when Execute is called. Servos do not acknowledge
// broadcast writes, so Execute transmits once and waits only for the settle
// delay.
type SyncWriter struct {
	bus   *Bus
	label string
	entry RegisterEntry

	order  []byte
	values map[byte][]byte
}

// NewSyncWriter creates a batcher for the given register. The fleet lists
// the models participating in the batch; every model must place the
// register at the same address with the same width. With no fleet given the
// batch assumes STS3215.
func (b *Bus) NewSyncWriter(reg RegisterID, fleet ...ModelID) (*SyncWriter, error) {
	if len(fleet) == 0 {
		fleet = []ModelID{ModelSTS3215}
	}

	entry, err := RegisterForModels(fleet, reg)
	if err != nil {
		return nil, err
	}
	if entry.ReadOnly {
		return nil, fmt.Errorf("%w: register %s is read-only", ErrInvalidParameter, reg)
	}

	return &SyncWriter{
		bus:    b,
		label:  reg.String(),
		entry:  entry,
		values: make(map[byte][]byte),
	}, nil
}

// NewRawSyncWriter creates a batcher for a raw (address, width) target,
// bypassing the control table. Used for multi-register block writes such as
// position+time+velocity.
func (b *Bus) NewRawSyncWriter(address byte, width int) *SyncWriter {
	return &SyncWriter{
		bus:    b,
		label:  fmt.Sprintf("addr %d", address),
		entry:  RegisterEntry{Address: address, Size: width},
		values: make(map[byte][]byte),
	}
}

// Add stages data for one servo. The data width must match the register
// width. Adding an id twice overwrites its previous value without changing
// its position in the transmission order.
func (w *SyncWriter) Add(id int, data []byte) error {
	if err := validateUnicastID(id); err != nil {
		return err
	}
	if len(data) != w.entry.Size {
		return fmt.Errorf("%w: servo %d: data width %d, register %s needs %d", ErrInvalidParameter, id, len(data), w.label, w.entry.Size)
	}

	key := byte(id)
	if _, exists := w.values[key]; !exists {
		w.order = append(w.order, key)
	}
	w.values[key] = append([]byte(nil), data...)

	return nil
}

// AddWord stages a 16-bit value for one servo, encoded in the bus's
// protocol byte order. Only valid for 2-byte registers.
func (w *SyncWriter) AddWord(id int, value uint16) error {
	if w.entry.Size != 2 {
		return fmt.Errorf("%w: register %s is %d bytes, not a word", ErrInvalidParameter, w.label, w.entry.Size)
	}
	return w.Add(id, w.bus.Protocol().EncodeWord(value))
}

// Len returns the number of staged entries.
func (w *SyncWriter) Len() int {
	return len(w.order)
}

// Clear drops all staged entries so the batcher can be reused.
func (w *SyncWriter) Clear() {
	w.order = w.order[:0]
	w.values = make(map[byte][]byte)
}

// Execute transmits all staged entries in one broadcast packet, in the
// order they were added. Fails if the batch is empty. The staged entries
// remain after execution and may be transmitted again.
func (w *SyncWriter) Execute(ctx context.Context) error {
	if len(w.order) == 0 {
		return fmt.Errorf("%w: sync write batch is empty", ErrInvalidParameter)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	b := w.bus
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed.Load() {
		return ErrConnectionLost
	}

	packet := b.protocol.SyncWritePacket(w.entry.Address, byte(w.entry.Size), w.order, w.values)
	if err := b.sendLocked(packet); err != nil {
		return &CommError{Op: "sync_write", Err: err}
	}

	// Broadcast writes get no response; give every addressed servo time to
	// apply the value before the next command.
	b.settleLocked()

	return nil
}
