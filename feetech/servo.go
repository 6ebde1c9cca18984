package feetech

import (
	"context"
	"fmt"
)

// Servo provides a high-level interface for controlling a single servo.
// Register names are resolved through the model's control table; asking for
// a register the model does not expose is a configuration error, never a
// runtime retry.
type Servo struct {
	bus   *Bus
	id    int
	model ModelID
}

// NewServo creates a new Servo instance with the given model.
func NewServo(bus *Bus, id int, model ModelID) *Servo {
	return &Servo{
		bus:   bus,
		id:    id,
		model: model,
	}
}

// ID returns the servo's ID.
func (s *Servo) ID() int {
	return s.id
}

// Model returns the servo's model.
func (s *Servo) Model() ModelID {
	return s.model
}

// SetModel changes the servo's model.
func (s *Servo) SetModel(model ModelID) {
	s.model = model
}

// Ping verifies communication with the servo.
func (s *Servo) Ping(ctx context.Context) (PingResult, error) {
	return s.bus.Ping(ctx, s.id)
}

// DetectModel pings the servo and sets the model from the reported model
// number.
func (s *Servo) DetectModel(ctx context.Context) error {
	result, err := s.bus.Ping(ctx, s.id)
	if err != nil {
		return err
	}

	model, ok := result.Model()
	if !ok {
		return fmt.Errorf("unknown model number: %d", result.ModelNumber)
	}

	s.model = model
	return nil
}

// Position Control

// Position reads the current position.
func (s *Servo) Position(ctx context.Context) (int, error) {
	data, err := s.ReadRegister(ctx, RegPresentPosition)
	if err != nil {
		return 0, err
	}
	return int(s.bus.Protocol().DecodeWord(data)), nil
}

// SetPosition commands the servo to move to the specified position.
func (s *Servo) SetPosition(ctx context.Context, position int) error {
	data := s.bus.Protocol().EncodeWord(uint16(position))
	return s.WriteRegister(ctx, RegGoalPosition, data)
}

// SetPositionWithSpeed commands the servo to move to position at the
// specified speed in steps per second.
func (s *Servo) SetPositionWithSpeed(ctx context.Context, position, speed int) error {
	goal, err := mustLookup(s.model, RegGoalPosition)
	if err != nil {
		return err
	}

	proto := s.bus.Protocol()

	// Position, time and velocity are adjacent: one 6-byte write covers all
	// three. Time stays zero when speed drives the move.
	data := make([]byte, 6)
	copy(data[0:2], proto.EncodeWord(uint16(position)))
	copy(data[2:4], proto.EncodeWord(0))
	copy(data[4:6], proto.EncodeWord(uint16(speed)))

	return s.bus.WriteRegister(ctx, s.id, goal.Address, data)
}

// SetPositionWithTime commands the servo to reach position in the
// specified time in milliseconds.
func (s *Servo) SetPositionWithTime(ctx context.Context, position, timeMs int) error {
	goal, err := mustLookup(s.model, RegGoalPosition)
	if err != nil {
		return err
	}

	proto := s.bus.Protocol()

	data := make([]byte, 6)
	copy(data[0:2], proto.EncodeWord(uint16(position)))
	copy(data[2:4], proto.EncodeWord(uint16(timeMs)))
	copy(data[4:6], proto.EncodeWord(0))

	return s.bus.WriteRegister(ctx, s.id, goal.Address, data)
}

// Velocity Control

// Velocity reads the current velocity.
// Returns a signed value; negative indicates reverse direction.
func (s *Servo) Velocity(ctx context.Context) (int, error) {
	reg, err := mustLookup(s.model, RegPresentVelocity)
	if err != nil {
		return 0, err
	}

	data, err := s.bus.ReadRegister(ctx, s.id, reg.Address, reg.Size)
	if err != nil {
		return 0, err
	}

	raw := int(s.bus.Protocol().DecodeWord(data))
	return decodeSignMagnitude(raw, reg.SignBit), nil
}

// SetVelocity sets the goal velocity (for wheel mode).
// Positive values rotate clockwise, negative counter-clockwise.
func (s *Servo) SetVelocity(ctx context.Context, velocity int) error {
	reg, err := mustLookup(s.model, RegGoalVelocity)
	if err != nil {
		return err
	}

	encoded := encodeSignMagnitude(velocity, reg.SignBit)
	data := s.bus.Protocol().EncodeWord(uint16(encoded))
	return s.bus.WriteRegister(ctx, s.id, reg.Address, data)
}

// Torque Control

// TorqueEnabled returns whether torque is enabled.
func (s *Servo) TorqueEnabled(ctx context.Context) (bool, error) {
	data, err := s.ReadRegister(ctx, RegTorqueEnable)
	if err != nil {
		return false, err
	}
	return data[0] != 0, nil
}

// SetTorqueEnabled enables or disables torque.
func (s *Servo) SetTorqueEnabled(ctx context.Context, enabled bool) error {
	var val byte
	if enabled {
		val = 1
	}
	return s.WriteRegister(ctx, RegTorqueEnable, []byte{val})
}

// Enable is a convenience alias for SetTorqueEnabled(true).
func (s *Servo) Enable(ctx context.Context) error {
	return s.SetTorqueEnabled(ctx, true)
}

// Disable is a convenience alias for SetTorqueEnabled(false).
func (s *Servo) Disable(ctx context.Context) error {
	return s.SetTorqueEnabled(ctx, false)
}

// Status

// ServoStatus is a snapshot of a servo's feedback registers.
type ServoStatus struct {
	Position      int
	Speed         int // signed, steps per second
	Load          int // signed, per mille of max torque
	VoltageTenths int // supply voltage in 0.1V units
	Temperature   int // degrees Celsius
	Moving        bool
}

// Status reads the full feedback snapshot: one contiguous block covering
// position through temperature, plus the moving flag which sits past a gap
// in the control table.
func (s *Servo) Status(ctx context.Context) (ServoStatus, error) {
	pos, err := mustLookup(s.model, RegPresentPosition)
	if err != nil {
		return ServoStatus{}, err
	}
	vel, err := mustLookup(s.model, RegPresentVelocity)
	if err != nil {
		return ServoStatus{}, err
	}
	load, err := mustLookup(s.model, RegPresentLoad)
	if err != nil {
		return ServoStatus{}, err
	}

	// position(2) + velocity(2) + load(2) + voltage(1) + temp(1)
	const blockLen = 8
	data, err := s.bus.ReadRegister(ctx, s.id, pos.Address, blockLen)
	if err != nil {
		return ServoStatus{}, err
	}

	proto := s.bus.Protocol()
	status := ServoStatus{
		Position:      int(proto.DecodeWord(data[0:2])),
		Speed:         decodeSignMagnitude(int(proto.DecodeWord(data[2:4])), vel.SignBit),
		Load:          decodeSignMagnitude(int(proto.DecodeWord(data[4:6])), load.SignBit),
		VoltageTenths: int(data[6]),
		Temperature:   int(data[7]),
	}

	moving, err := s.Moving(ctx)
	if err != nil {
		return ServoStatus{}, err
	}
	status.Moving = moving

	return status, nil
}

// Moving returns whether the servo is currently moving.
func (s *Servo) Moving(ctx context.Context) (bool, error) {
	data, err := s.ReadRegister(ctx, RegMoving)
	if err != nil {
		return false, err
	}
	return data[0] != 0, nil
}

// Load reads the current load.
// Returns a signed value; negative indicates load in reverse direction.
func (s *Servo) Load(ctx context.Context) (int, error) {
	reg, err := mustLookup(s.model, RegPresentLoad)
	if err != nil {
		return 0, err
	}

	data, err := s.bus.ReadRegister(ctx, s.id, reg.Address, reg.Size)
	if err != nil {
		return 0, err
	}

	raw := int(s.bus.Protocol().DecodeWord(data))
	return decodeSignMagnitude(raw, reg.SignBit), nil
}

// Voltage reads the current supply voltage in tenths of a volt.
func (s *Servo) Voltage(ctx context.Context) (int, error) {
	data, err := s.ReadRegister(ctx, RegPresentVoltage)
	if err != nil {
		return 0, err
	}
	return int(data[0]), nil
}

// Temperature reads the current temperature in degrees Celsius.
func (s *Servo) Temperature(ctx context.Context) (int, error) {
	data, err := s.ReadRegister(ctx, RegPresentTemp)
	if err != nil {
		return 0, err
	}
	return int(data[0]), nil
}

// Configuration

// OperatingMode reads the current operating mode.
func (s *Servo) OperatingMode(ctx context.Context) (int, error) {
	data, err := s.ReadRegister(ctx, RegOperatingMode)
	if err != nil {
		return 0, err
	}
	return int(data[0]), nil
}

// SetOperatingMode sets the operating mode.
// Must disable torque first.
func (s *Servo) SetOperatingMode(ctx context.Context, mode int) error {
	return s.WriteRegister(ctx, RegOperatingMode, []byte{byte(mode)})
}

// PositionLimits reads the min and max position limits.
func (s *Servo) PositionLimits(ctx context.Context) (min, max int, err error) {
	minData, err := s.ReadRegister(ctx, RegMinAngleLimit)
	if err != nil {
		return 0, 0, err
	}

	maxData, err := s.ReadRegister(ctx, RegMaxAngleLimit)
	if err != nil {
		return 0, 0, err
	}

	proto := s.bus.Protocol()
	return int(proto.DecodeWord(minData)), int(proto.DecodeWord(maxData)), nil
}

// SetPositionLimits sets the min and max position limits.
func (s *Servo) SetPositionLimits(ctx context.Context, min, max int) error {
	proto := s.bus.Protocol()

	if err := s.WriteRegister(ctx, RegMinAngleLimit, proto.EncodeWord(uint16(min))); err != nil {
		return err
	}
	return s.WriteRegister(ctx, RegMaxAngleLimit, proto.EncodeWord(uint16(max)))
}

// EEPROM Configuration (requires torque disabled and lock disabled)

// SetID changes the servo's ID.
// The servo object is updated with the new ID on success.
func (s *Servo) SetID(ctx context.Context, newID int) error {
	if err := validateUnicastID(newID); err != nil {
		return err
	}

	// Safety: disable torque first
	if err := s.SetTorqueEnabled(ctx, false); err != nil {
		return fmt.Errorf("failed to disable torque: %w", err)
	}

	if err := s.WriteRegister(ctx, RegID, []byte{byte(newID)}); err != nil {
		return err
	}

	s.id = newID
	return nil
}

// SetBaudRate changes the servo's baud rate.
// Takes the actual baud rate value (e.g., 1000000) not the register index.
func (s *Servo) SetBaudRate(ctx context.Context, baudRate int) error {
	idx := -1
	for i, rate := range BaudRates {
		if rate == baudRate {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: unsupported baud rate %d", ErrInvalidParameter, baudRate)
	}

	// Safety: disable torque first
	if err := s.SetTorqueEnabled(ctx, false); err != nil {
		return fmt.Errorf("failed to disable torque: %w", err)
	}

	return s.WriteRegister(ctx, RegBaudRate, []byte{byte(idx)})
}

// Reboot restarts the servo.
func (s *Servo) Reboot(ctx context.Context) error {
	return s.bus.Reboot(ctx, s.id)
}

// FactoryReset restores the servo's control table to factory defaults.
func (s *Servo) FactoryReset(ctx context.Context) error {
	return s.bus.FactoryReset(ctx, s.id)
}

// ReadRegister reads a register by its identifier, resolved through the
// servo's model.
func (s *Servo) ReadRegister(ctx context.Context, reg RegisterID) ([]byte, error) {
	entry, err := mustLookup(s.model, reg)
	if err != nil {
		return nil, err
	}
	return s.bus.ReadRegister(ctx, s.id, entry.Address, entry.Size)
}

// WriteRegister writes a register by its identifier, resolved through the
// servo's model.
func (s *Servo) WriteRegister(ctx context.Context, reg RegisterID, data []byte) error {
	entry, err := mustLookup(s.model, reg)
	if err != nil {
		return err
	}
	if entry.ReadOnly {
		return fmt.Errorf("%w: register %s is read-only", ErrInvalidParameter, reg)
	}
	if len(data) != entry.Size {
		return fmt.Errorf("%w: data size mismatch: expected %d bytes, got %d", ErrInvalidParameter, entry.Size, len(data))
	}
	return s.bus.WriteRegister(ctx, s.id, entry.Address, data)
}

// Sign-magnitude encoding helpers

func decodeSignMagnitude(value, signBit int) int {
	if signBit == 0 {
		return value
	}

	signMask := 1 << signBit
	if value&signMask != 0 {
		return -(value & (signMask - 1))
	}
	return value
}

func encodeSignMagnitude(value, signBit int) int {
	if signBit == 0 {
		return value
	}

	if value < 0 {
		signMask := 1 << signBit
		return (-value) | signMask
	}
	return value
}
