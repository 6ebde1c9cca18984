package feetech

import (
	"context"
	"fmt"
	"maps"
	"time"
)

// ServoGroup manages coordinated operations across multiple servos, layered
// on the sync write batcher and sync read orchestrator.
type ServoGroup struct {
	bus    *Bus
	servos []*Servo
	ids    []int
}

// NewServoGroup creates a new group from the given servos.
func NewServoGroup(bus *Bus, servos ...*Servo) *ServoGroup {
	ids := make([]int, len(servos))
	for i, s := range servos {
		ids[i] = s.ID()
	}
	return &ServoGroup{
		bus:    bus,
		servos: servos,
		ids:    ids,
	}
}

// NewServoGroupByIDs creates servos with the given IDs and groups them.
// All servos default to the STS3215 model.
func NewServoGroupByIDs(bus *Bus, ids ...int) *ServoGroup {
	servos := make([]*Servo, len(ids))
	for i, id := range ids {
		servos[i] = NewServo(bus, id, ModelSTS3215)
	}
	return NewServoGroup(bus, servos...)
}

// Servos returns the servos in this group.
func (g *ServoGroup) Servos() []*Servo {
	return g.servos
}

// IDs returns the servo IDs in this group.
func (g *ServoGroup) IDs() []int {
	return g.ids
}

// ServoByID returns the servo with the given ID, or nil if not found.
func (g *ServoGroup) ServoByID(id int) *Servo {
	for _, s := range g.servos {
		if s.ID() == id {
			return s
		}
	}
	return nil
}

// fleet returns the distinct models present in the group.
func (g *ServoGroup) fleet() []ModelID {
	seen := make(map[ModelID]bool)
	var out []ModelID
	for _, s := range g.servos {
		if !seen[s.Model()] {
			seen[s.Model()] = true
			out = append(out, s.Model())
		}
	}
	return out
}

// PositionMap is a map of servo ID to position value.
type PositionMap map[int]int

// Positions reads positions from all servos using sync read.
// Servos that fail to answer are absent from the returned map.
func (g *ServoGroup) Positions(ctx context.Context) (PositionMap, error) {
	reader, err := g.bus.NewSyncReader(RegPresentPosition, g.fleet()...)
	if err != nil {
		return nil, err
	}
	for _, id := range g.ids {
		if err := reader.AddID(id); err != nil {
			return nil, err
		}
	}

	if err := reader.Execute(ctx); err != nil {
		return nil, err
	}

	positions := make(PositionMap, len(g.ids))
	for _, id := range g.ids {
		if value, ok := reader.Word(id); ok {
			positions[id] = int(value)
		}
	}

	return positions, nil
}

// SetPositions writes positions to servos using sync write.
// Only servos with IDs present in the positions map are written.
func (g *ServoGroup) SetPositions(ctx context.Context, positions PositionMap) error {
	if len(positions) == 0 {
		return nil // No-op for empty map
	}

	writer, err := g.bus.NewSyncWriter(RegGoalPosition, g.fleet()...)
	if err != nil {
		return err
	}

	for id, pos := range positions {
		if g.ServoByID(id) == nil {
			return fmt.Errorf("%w: servo ID %d not in group", ErrInvalidParameter, id)
		}
		if err := writer.AddWord(id, uint16(pos)); err != nil {
			return err
		}
	}

	return writer.Execute(ctx)
}

// SetPositionsWithSpeed writes positions with speed to servos. The 6-byte
// payload covers goal position, time and velocity in one block. Only servos
// present in BOTH positions and speeds maps are written (intersection).
func (g *ServoGroup) SetPositionsWithSpeed(ctx context.Context, positions, speeds PositionMap) error {
	return g.setPositionsWithExtra(ctx, positions, speeds, false)
}

// SetPositionsWithTime writes positions with per-servo travel time in
// milliseconds. Only servos present in BOTH maps are written (intersection).
func (g *ServoGroup) SetPositionsWithTime(ctx context.Context, positions, times PositionMap) error {
	return g.setPositionsWithExtra(ctx, positions, times, true)
}

func (g *ServoGroup) setPositionsWithExtra(ctx context.Context, positions, extra PositionMap, extraIsTime bool) error {
	if len(positions) == 0 || len(extra) == 0 {
		return nil // No-op for empty maps
	}

	goal, err := RegisterForModels(g.fleet(), RegGoalPosition)
	if err != nil {
		return err
	}

	proto := g.bus.Protocol()
	writer := g.bus.NewRawSyncWriter(goal.Address, 6)

	for id, pos := range positions {
		value, ok := extra[id]
		if !ok {
			continue
		}

		if g.ServoByID(id) == nil {
			return fmt.Errorf("%w: servo ID %d not in group", ErrInvalidParameter, id)
		}

		data := make([]byte, 6)
		copy(data[0:2], proto.EncodeWord(uint16(pos)))
		if extraIsTime {
			copy(data[2:4], proto.EncodeWord(uint16(value)))
		} else {
			copy(data[4:6], proto.EncodeWord(uint16(value)))
		}
		if err := writer.Add(id, data); err != nil {
			return err
		}
	}

	if writer.Len() == 0 {
		return nil // No servos in intersection
	}

	return writer.Execute(ctx)
}

// EnableAll enables torque on all servos.
func (g *ServoGroup) EnableAll(ctx context.Context) error {
	return g.writeTorque(ctx, 1)
}

// DisableAll disables torque on all servos.
func (g *ServoGroup) DisableAll(ctx context.Context) error {
	return g.writeTorque(ctx, 0)
}

func (g *ServoGroup) writeTorque(ctx context.Context, value byte) error {
	writer, err := g.bus.NewSyncWriter(RegTorqueEnable, g.fleet()...)
	if err != nil {
		return err
	}
	for _, id := range g.ids {
		if err := writer.Add(id, []byte{value}); err != nil {
			return err
		}
	}
	return writer.Execute(ctx)
}

// RegWritePositions buffers position writes to servos.
// Call bus.Action() to execute them simultaneously.
// Only servos with IDs present in the positions map are written.
func (g *ServoGroup) RegWritePositions(ctx context.Context, positions PositionMap) error {
	if len(positions) == 0 {
		return nil // No-op for empty map
	}

	proto := g.bus.Protocol()
	for id, pos := range positions {
		servo := g.ServoByID(id)
		if servo == nil {
			return fmt.Errorf("%w: servo ID %d not in group", ErrInvalidParameter, id)
		}

		goal, err := mustLookup(servo.Model(), RegGoalPosition)
		if err != nil {
			return err
		}

		data := proto.EncodeWord(uint16(pos))
		if err := g.bus.RegWrite(ctx, id, goal.Address, data); err != nil {
			return fmt.Errorf("servo %d: %w", id, err)
		}
	}

	return nil
}

// MoveTo moves servos to target positions and waits for completion.
// Returns the final positions for only the servos that were commanded.
// Timeout is in milliseconds.
func (g *ServoGroup) MoveTo(ctx context.Context, positions PositionMap, timeoutMs int) (PositionMap, error) {
	if err := g.SetPositions(ctx, positions); err != nil {
		return nil, err
	}

	if _, err := g.WaitForStop(ctx, timeoutMs); err != nil {
		return nil, err
	}

	allPositions, err := g.Positions(ctx)
	if err != nil {
		return nil, err
	}

	result := make(PositionMap, len(positions))
	for id := range positions {
		if pos, ok := allPositions[id]; ok {
			result[id] = pos
		}
	}

	return result, nil
}

// WaitForStop waits for all servos in the group to stop moving.
// Returns the final positions of all servos. Timeout is in milliseconds.
func (g *ServoGroup) WaitForStop(ctx context.Context, timeoutMs int) (PositionMap, error) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	timeout := time.After(time.Duration(timeoutMs) * time.Millisecond)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timeout:
			pos, _ := g.Positions(ctx)
			return pos, fmt.Errorf("move timeout after %dms", timeoutMs)
		case <-ticker.C:
			allStopped := true
			for _, s := range g.servos {
				moving, err := s.Moving(ctx)
				if err != nil {
					continue
				}
				if moving {
					allStopped = false
					break
				}
			}

			if allStopped {
				return g.Positions(ctx)
			}
		}
	}
}

// ReadRegister reads a register from servos in the group using sync read.
// Returns data only for servos whose model exposes the register. Servos are
// batched by (address, size) so heterogeneous groups still work.
func (g *ServoGroup) ReadRegister(ctx context.Context, reg RegisterID) (map[int][]byte, error) {
	type addrSize struct {
		addr byte
		size int
	}
	groups := make(map[addrSize][]int)

	for _, servo := range g.servos {
		entry, ok := Lookup(servo.Model(), reg)
		if !ok {
			continue
		}

		key := addrSize{addr: entry.Address, size: entry.Size}
		groups[key] = append(groups[key], servo.ID())
	}

	if len(groups) == 0 {
		return nil, fmt.Errorf("%w: no servos in group have register %s", ErrInvalidParameter, reg)
	}

	result := make(map[int][]byte)
	for key, ids := range groups {
		reader := g.bus.NewRawSyncReader(key.addr, key.size)
		for _, id := range ids {
			if err := reader.AddID(id); err != nil {
				return nil, err
			}
		}
		if err := reader.Execute(ctx); err != nil {
			return nil, fmt.Errorf("sync read for %s at addr=%d size=%d: %w", reg, key.addr, key.size, err)
		}

		maps.Copy(result, reader.Results())
	}

	return result, nil
}

// WriteRegister writes a register to servos in the group using sync write.
// Writes only to servos that expose the register and are present in the
// data map. Servos are batched by (address, size).
func (g *ServoGroup) WriteRegister(ctx context.Context, reg RegisterID, data map[int][]byte) error {
	if len(data) == 0 {
		return nil // No-op for empty map
	}

	type addrSize struct {
		addr byte
		size int
	}
	groups := make(map[addrSize]map[int][]byte)

	for id, bytes := range data {
		servo := g.ServoByID(id)
		if servo == nil {
			return fmt.Errorf("%w: servo ID %d not in group", ErrInvalidParameter, id)
		}

		entry, ok := Lookup(servo.Model(), reg)
		if !ok {
			continue
		}
		if entry.ReadOnly {
			return fmt.Errorf("%w: register %s is read-only", ErrInvalidParameter, reg)
		}

		key := addrSize{addr: entry.Address, size: entry.Size}
		if groups[key] == nil {
			groups[key] = make(map[int][]byte)
		}
		groups[key][id] = bytes
	}

	if len(groups) == 0 {
		return nil // No servos to write (none have the register)
	}

	for key, servoData := range groups {
		writer := g.bus.NewRawSyncWriter(key.addr, key.size)
		for id, bytes := range servoData {
			if err := writer.Add(id, bytes); err != nil {
				return err
			}
		}
		if err := writer.Execute(ctx); err != nil {
			return fmt.Errorf("sync write for %s at addr=%d size=%d: %w", reg, key.addr, key.size, err)
		}
	}

	return nil
}
