package feetech

import "fmt"

// RegisterID enumerates the control table registers the library knows about.
// Unknown (model, register) pairs are a configuration error, never resolved
// at runtime.
type RegisterID int

const (
	RegFirmwareVersion RegisterID = iota
	RegModelNumber
	RegID
	RegBaudRate
	RegResponseDelay
	RegMinAngleLimit
	RegMaxAngleLimit
	RegMaxTemp
	RegMaxVoltage
	RegMinVoltage
	RegMaxTorque
	RegPGain
	RegDGain
	RegIGain
	RegPositionOffset
	RegOperatingMode
	RegTorqueEnable
	RegAcceleration
	RegGoalPosition
	RegGoalTime
	RegGoalVelocity
	RegTorqueLimit
	RegLock
	RegPresentPosition
	RegPresentVelocity
	RegPresentLoad
	RegPresentVoltage
	RegPresentTemp
	RegServoStatus
	RegMoving
	RegPresentCurrent
	RegMaxAcceleration

	registerCount
)

var registerNames = [registerCount]string{
	RegFirmwareVersion: "firmware_version",
	RegModelNumber:     "model_number",
	RegID:              "id",
	RegBaudRate:        "baud_rate",
	RegResponseDelay:   "response_delay",
	RegMinAngleLimit:   "min_angle_limit",
	RegMaxAngleLimit:   "max_angle_limit",
	RegMaxTemp:         "max_temp",
	RegMaxVoltage:      "max_voltage",
	RegMinVoltage:      "min_voltage",
	RegMaxTorque:       "max_torque",
	RegPGain:           "p_gain",
	RegDGain:           "d_gain",
	RegIGain:           "i_gain",
	RegPositionOffset:  "position_offset",
	RegOperatingMode:   "operating_mode",
	RegTorqueEnable:    "torque_enable",
	RegAcceleration:    "acceleration",
	RegGoalPosition:    "goal_position",
	RegGoalTime:        "goal_time",
	RegGoalVelocity:    "goal_velocity",
	RegTorqueLimit:     "torque_limit",
	RegLock:            "lock",
	RegPresentPosition: "present_position",
	RegPresentVelocity: "present_velocity",
	RegPresentLoad:     "present_load",
	RegPresentVoltage:  "present_voltage",
	RegPresentTemp:     "present_temp",
	RegServoStatus:     "servo_status",
	RegMoving:          "moving",
	RegPresentCurrent:  "present_current",
	RegMaxAcceleration: "max_acceleration",
}

func (r RegisterID) String() string {
	if r < 0 || r >= registerCount {
		return fmt.Sprintf("RegisterID(%d)", int(r))
	}
	return registerNames[r]
}

// RegisterEntry describes one control table register: its byte offset and
// width, plus access metadata.
type RegisterEntry struct {
	Address  byte
	Size     int // 1 or 2 bytes
	ReadOnly bool
	// SignBit indicates which bit is the sign bit for sign-magnitude
	// encoding. 0 means no sign-magnitude encoding.
	SignBit int
}

// Valid reports whether the entry describes a real register. A model table
// leaves unsupported registers zeroed.
func (e RegisterEntry) Valid() bool {
	return e.Size != 0
}

// ModelID enumerates the supported servo models.
type ModelID int

const (
	ModelSTS3215 ModelID = iota
	ModelSTS3250
	ModelSCS0009
	ModelSCS15

	modelCount
)

func (m ModelID) String() string {
	if m < 0 || m >= modelCount {
		return fmt.Sprintf("ModelID(%d)", int(m))
	}
	return models[m].Name
}

// Control table for the STS series (STS3215, STS3250).
var stsTable = [registerCount]RegisterEntry{
	RegFirmwareVersion: {Address: 0, Size: 1, ReadOnly: true},
	RegModelNumber:     {Address: 3, Size: 2, ReadOnly: true},
	RegID:              {Address: 5, Size: 1},
	RegBaudRate:        {Address: 6, Size: 1},
	RegResponseDelay:   {Address: 7, Size: 1},
	RegMinAngleLimit:   {Address: 9, Size: 2},
	RegMaxAngleLimit:   {Address: 11, Size: 2},
	RegMaxTemp:         {Address: 13, Size: 1},
	RegMaxVoltage:      {Address: 14, Size: 1},
	RegMinVoltage:      {Address: 15, Size: 1},
	RegMaxTorque:       {Address: 16, Size: 2},
	RegPGain:           {Address: 21, Size: 1},
	RegDGain:           {Address: 22, Size: 1},
	RegIGain:           {Address: 23, Size: 1},
	RegPositionOffset:  {Address: 31, Size: 2, SignBit: 11},
	RegOperatingMode:   {Address: 33, Size: 1},
	RegTorqueEnable:    {Address: 40, Size: 1},
	RegAcceleration:    {Address: 41, Size: 1},
	RegGoalPosition:    {Address: 42, Size: 2},
	RegGoalTime:        {Address: 44, Size: 2},
	RegGoalVelocity:    {Address: 46, Size: 2, SignBit: 15},
	RegTorqueLimit:     {Address: 48, Size: 2},
	RegLock:            {Address: 55, Size: 1},
	RegPresentPosition: {Address: 56, Size: 2, ReadOnly: true},
	RegPresentVelocity: {Address: 58, Size: 2, ReadOnly: true, SignBit: 15},
	RegPresentLoad:     {Address: 60, Size: 2, ReadOnly: true, SignBit: 9},
	RegPresentVoltage:  {Address: 62, Size: 1, ReadOnly: true},
	RegPresentTemp:     {Address: 63, Size: 1, ReadOnly: true},
	RegServoStatus:     {Address: 65, Size: 1, ReadOnly: true},
	RegMoving:          {Address: 66, Size: 1, ReadOnly: true},
	RegPresentCurrent:  {Address: 69, Size: 2, ReadOnly: true},
	RegMaxAcceleration: {Address: 85, Size: 1},
}

// Control table for the SCS series. Sparser than STS; registers absent here
// are rejected for SCS models.
var scsTable = [registerCount]RegisterEntry{
	RegFirmwareVersion: {Address: 0, Size: 1, ReadOnly: true},
	RegModelNumber:     {Address: 3, Size: 2, ReadOnly: true},
	RegID:              {Address: 5, Size: 1},
	RegBaudRate:        {Address: 6, Size: 1},
	RegMinAngleLimit:   {Address: 9, Size: 2},
	RegMaxAngleLimit:   {Address: 11, Size: 2},
	RegTorqueEnable:    {Address: 40, Size: 1},
	RegGoalPosition:    {Address: 42, Size: 2},
	RegGoalTime:        {Address: 44, Size: 2},
	RegGoalVelocity:    {Address: 46, Size: 2, SignBit: 15},
	RegPresentPosition: {Address: 56, Size: 2, ReadOnly: true},
	RegPresentVelocity: {Address: 58, Size: 2, ReadOnly: true, SignBit: 15},
	RegPresentLoad:     {Address: 60, Size: 2, ReadOnly: true, SignBit: 9},
	RegPresentVoltage:  {Address: 62, Size: 1, ReadOnly: true},
	RegPresentTemp:     {Address: 63, Size: 1, ReadOnly: true},
	RegMoving:          {Address: 66, Size: 1, ReadOnly: true},
}

// BaudRates maps the baud rate register values 0-7 to bits per second.
var BaudRates = [8]int{
	1000000, // 0
	500000,  // 1
	250000,  // 2
	128000,  // 3
	115200,  // 4
	57600,   // 5
	38400,   // 6
	19200,   // 7
}

// Model holds the static specification for one servo model.
type Model struct {
	Name        string
	Number      int // Model number returned by ping
	Protocol    int // ProtocolSTS or ProtocolSCS
	Resolution  int // Position resolution in steps (e.g., 4096 for 12-bit)
	MaxPosition int // Maximum position value

	table *[registerCount]RegisterEntry
}

// Built at init, immutable afterwards.
var models = [modelCount]Model{
	ModelSTS3215: {Name: "sts3215", Number: 777, Protocol: ProtocolSTS, Resolution: 4096, MaxPosition: 4095, table: &stsTable},
	ModelSTS3250: {Name: "sts3250", Number: 1540, Protocol: ProtocolSTS, Resolution: 4096, MaxPosition: 4095, table: &stsTable},
	ModelSCS0009: {Name: "scs0009", Number: 9, Protocol: ProtocolSCS, Resolution: 1024, MaxPosition: 1023, table: &scsTable},
	ModelSCS15:   {Name: "scs15", Number: 15, Protocol: ProtocolSCS, Resolution: 1024, MaxPosition: 1023, table: &scsTable},
}

// Spec returns the model's static specification.
func (m ModelID) Spec() (Model, bool) {
	if m < 0 || m >= modelCount {
		return Model{}, false
	}
	return models[m], true
}

// ModelByNumber resolves a hardware model number (as returned by ping) to a
// ModelID.
func ModelByNumber(number int) (ModelID, bool) {
	for id := ModelID(0); id < modelCount; id++ {
		if models[id].Number == number {
			return id, true
		}
	}
	return 0, false
}

// ModelByName resolves a model name to a ModelID.
func ModelByName(name string) (ModelID, bool) {
	for id := ModelID(0); id < modelCount; id++ {
		if models[id].Name == name {
			return id, true
		}
	}
	return 0, false
}

// Lookup resolves a register for a model. The second return is false when
// the model does not expose the register.
func Lookup(model ModelID, reg RegisterID) (RegisterEntry, bool) {
	if model < 0 || model >= modelCount || reg < 0 || reg >= registerCount {
		return RegisterEntry{}, false
	}
	entry := models[model].table[reg]
	return entry, entry.Valid()
}

// mustLookup resolves a register or returns an ErrInvalidParameter wrapper.
func mustLookup(model ModelID, reg RegisterID) (RegisterEntry, error) {
	entry, ok := Lookup(model, reg)
	if !ok {
		return RegisterEntry{}, fmt.Errorf("%w: model %s has no register %s", ErrInvalidParameter, model, reg)
	}
	return entry, nil
}

// RegisterForModels resolves one register across a mixed-model fleet and
// asserts every model places it at the same address with the same width.
// Group operations use a single address layout for all participants, so a
// disagreement fails fast rather than being silently resolved.
func RegisterForModels(fleet []ModelID, reg RegisterID) (RegisterEntry, error) {
	if len(fleet) == 0 {
		return RegisterEntry{}, fmt.Errorf("%w: empty model list", ErrInvalidParameter)
	}

	first, err := mustLookup(fleet[0], reg)
	if err != nil {
		return RegisterEntry{}, err
	}

	for _, m := range fleet[1:] {
		entry, err := mustLookup(m, reg)
		if err != nil {
			return RegisterEntry{}, err
		}
		if entry.Address != first.Address || entry.Size != first.Size {
			return RegisterEntry{}, fmt.Errorf("%w: register %s differs between %s (addr=%d size=%d) and %s (addr=%d size=%d)",
				ErrInvalidParameter, reg, fleet[0], first.Address, first.Size, m, entry.Address, entry.Size)
		}
	}

	return first, nil
}

// Operating modes.
const (
	ModePosition = 0
	ModeVelocity = 1 // Wheel mode
	ModePWM      = 2
	ModeStep     = 3
)
