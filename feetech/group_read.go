package feetech

import (
	"context"
	"errors"
	"fmt"
)

// SyncReader reads one register from many servos with a single broadcast
// solicitation. The servos answer individually, in the order their ids
// appear in the request, so Execute runs one receive cycle per id. A servo
// that fails to answer is simply absent from the results; it never aborts
// the rest of the batch.
type SyncReader struct {
	bus   *Bus
	entry RegisterEntry

	ids     []byte
	results map[byte][]byte
}

// NewSyncReader creates an orchestrator for the given register. The fleet
// lists the models participating; every model must place the register at
// the same address with the same width. With no fleet given the batch
// assumes STS3215.
func (b *Bus) NewSyncReader(reg RegisterID, fleet ...ModelID) (*SyncReader, error) {
	if len(fleet) == 0 {
		fleet = []ModelID{ModelSTS3215}
	}

	entry, err := RegisterForModels(fleet, reg)
	if err != nil {
		return nil, err
	}

	return &SyncReader{
		bus:     b,
		entry:   entry,
		results: make(map[byte][]byte),
	}, nil
}

// NewRawSyncReader creates an orchestrator for a raw (address, width)
// target, bypassing the control table.
func (b *Bus) NewRawSyncReader(address byte, width int) *SyncReader {
	return &SyncReader{
		bus:     b,
		entry:   RegisterEntry{Address: address, Size: width},
		results: make(map[byte][]byte),
	}
}

// AddID adds a servo to the read set. Adding an id twice is a no-op.
func (r *SyncReader) AddID(id int) error {
	if err := validateUnicastID(id); err != nil {
		return err
	}

	key := byte(id)
	for _, existing := range r.ids {
		if existing == key {
			return nil
		}
	}
	r.ids = append(r.ids, key)
	return nil
}

// RemoveID removes a servo from the read set.
func (r *SyncReader) RemoveID(id int) {
	key := byte(id)
	for i, existing := range r.ids {
		if existing == key {
			r.ids = append(r.ids[:i], r.ids[i+1:]...)
			return
		}
	}
}

// IDs returns the servo ids in the read set, in addition order.
func (r *SyncReader) IDs() []int {
	out := make([]int, len(r.ids))
	for i, id := range r.ids {
		out[i] = int(id)
	}
	return out
}

// Execute sends one broadcast solicitation and collects each servo's reply
// in the order the ids were added. Previously cached results are discarded
// first. A per-id failure (timeout, checksum error, id mismatch, hardware
// error bit) leaves that id absent and the batch continues: ten servos with
// one unplugged still yield data for the other nine.
func (r *SyncReader) Execute(ctx context.Context) error {
	if len(r.ids) == 0 {
		return fmt.Errorf("%w: sync read set is empty", ErrInvalidParameter)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	b := r.bus
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed.Load() {
		return ErrConnectionLost
	}

	r.results = make(map[byte][]byte, len(r.ids))

	pending := make(map[byte]bool, len(r.ids))
	for _, id := range r.ids {
		pending[id] = true
	}

	packet := b.protocol.SyncReadPacket(r.entry.Address, byte(r.entry.Size), r.ids)
	if err := b.sendLocked(packet); err != nil {
		return &CommError{Op: "sync_read", Err: err}
	}

	// The servos answer in request order, but a missing servo leaves a gap:
	// during its cycle the next servo's reply may arrive instead. Each cycle
	// therefore credits the frame to whichever pending servo actually sent
	// it, so one dead servo on a ten-servo bus still yields nine results.
	for range r.ids {
		if len(pending) == 0 {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		deadline, err := b.deadline(ctx)
		if err != nil {
			return err
		}

		raw, _, err := b.in.nextFrame(deadline)
		if err != nil {
			// Timeout means no further replies are coming; remaining ids
			// stay absent. Closure propagates.
			if errors.Is(err, ErrConnectionLost) {
				return err
			}
			b.log.Debug().Int("pending", len(pending)).Msg("sync read: no more replies")
			break
		}

		pkt, err := b.protocol.Decode(raw)
		if err != nil {
			b.log.Debug().Err(err).Msg("sync read: dropped bad frame")
			continue
		}
		if !pending[pkt.ID] {
			b.log.Debug().Int("id", int(pkt.ID)).Msg("sync read: reply from unexpected servo")
			continue
		}

		delete(pending, pkt.ID)

		if pkt.Error.HasError() {
			b.log.Debug().Int("id", int(pkt.ID)).Str("status", pkt.Error.Error()).Msg("sync read: servo reported error")
			continue
		}
		if len(raw) != b.protocol.ExpectedResponseLength(r.entry.Size) {
			b.log.Debug().Int("id", int(pkt.ID)).Int("bytes", len(raw)).Msg("sync read: reply length mismatch")
			continue
		}

		r.results[pkt.ID] = pkt.Parameters
	}

	return nil
}

// Result returns the cached bytes for one servo from the last Execute, or
// false if it failed or was never requested.
func (r *SyncReader) Result(id int) ([]byte, bool) {
	data, ok := r.results[byte(id)]
	return data, ok
}

// Word returns the cached value for one servo decoded as a 16-bit word in
// the bus's protocol byte order.
func (r *SyncReader) Word(id int) (uint16, bool) {
	data, ok := r.results[byte(id)]
	if !ok || len(data) < 2 {
		return 0, false
	}
	return r.bus.Protocol().DecodeWord(data), true
}

// Results returns a copy of all cached results keyed by servo id.
func (r *SyncReader) Results() map[int][]byte {
	out := make(map[int][]byte, len(r.results))
	for id, data := range r.results {
		out[int(id)] = data
	}
	return out
}
