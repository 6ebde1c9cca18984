package feetech

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/neka-nat/feetech-servo-go/transports"
)

// recvReadTimeout bounds each blocking transport read so the receiver can
// notice a closed bus.
const recvReadTimeout = 20 * time.Millisecond

// busTurnaround is the pause after transmitting before the first response
// byte can appear on the half-duplex link.
const busTurnaround = 100 * time.Microsecond

// Bus manages communication with servos sharing one half-duplex serial link.
// The bus is single-master: every operation funnels through one
// mutex-serialized transaction, so at most one request/response cycle is in
// flight at any time.
type Bus struct {
	transport Transport
	protocol  *Protocol
	timeout   time.Duration
	settle    time.Duration
	log       zerolog.Logger

	in       *streamReader
	recvDone chan struct{}

	mu          sync.Mutex
	lastCmdTime time.Time
	minCmdGap   time.Duration

	// closed lives outside b.mu so Close never queues behind an in-flight
	// transaction holding the bus lock.
	closed atomic.Bool
}

// BusConfig holds configuration for creating a new Bus.
type BusConfig struct {
	// Transport is the underlying communication transport.
	// If nil, Port must be specified to open a serial connection.
	Transport Transport

	// Port is the serial port path (e.g., "/dev/ttyUSB0").
	// Ignored if Transport is provided.
	Port string

	// BaudRate is the communication speed. Default is 1000000.
	BaudRate int

	// Protocol version: ProtocolSTS (default) or ProtocolSCS.
	Protocol int

	// Timeout is the per-transaction deadline. Default is 1 second.
	Timeout time.Duration

	// SettleDelay is the pause after a write-type operation before the next
	// command may be issued, giving the servo time to apply the value.
	// Default is 5ms.
	SettleDelay time.Duration

	// MinCommandGap is the minimum time between commands. Default is 1ms.
	MinCommandGap time.Duration

	// Logger receives structured protocol logs. Defaults to a no-op logger.
	Logger *zerolog.Logger
}

// NewBus creates a new servo bus with the given configuration and starts
// the background receiver.
func NewBus(cfg BusConfig) (*Bus, error) {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 1000000
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = time.Second
	}
	if cfg.SettleDelay == 0 {
		cfg.SettleDelay = 5 * time.Millisecond
	}
	if cfg.MinCommandGap == 0 {
		cfg.MinCommandGap = time.Millisecond
	}

	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = *cfg.Logger
	}

	transport := cfg.Transport
	if transport == nil {
		if cfg.Port == "" {
			return nil, errors.New("either Transport or Port must be specified")
		}
		var err error
		transport, err = transports.OpenSerial(transports.SerialConfig{
			Port:     cfg.Port,
			BaudRate: cfg.BaudRate,
			Timeout:  cfg.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open serial port: %w", err)
		}
	}

	b := &Bus{
		transport:   transport,
		protocol:    NewProtocol(cfg.Protocol),
		timeout:     cfg.Timeout,
		settle:      cfg.SettleDelay,
		minCmdGap:   cfg.MinCommandGap,
		log:         log,
		in:          newStreamReader(),
		recvDone:    make(chan struct{}),
		lastCmdTime: time.Now(),
	}

	go b.receiveLoop()

	return b, nil
}

// Close shuts down the background receiver, wakes any pending waits with
// ErrConnectionLost, and closes the transport. It does not take b.mu: an
// in-flight transaction holds the lock until its deadline, and Close must
// wake that wait immediately, not queue behind it.
func (b *Bus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}

	// Invalidate pending waits before tearing down the transport so nothing
	// sits out its full timeout.
	b.in.close()
	err := b.transport.Close()
	<-b.recvDone
	return err
}

// Protocol returns the protocol handler for this bus.
func (b *Bus) Protocol() *Protocol {
	return b.protocol
}

// receiveLoop is the passive producer: it drains the transport into the
// inbound queue until the bus closes. The consumer only ever reads from the
// queue, never from the transport directly.
func (b *Bus) receiveLoop() {
	defer close(b.recvDone)

	b.transport.SetReadTimeout(recvReadTimeout)
	buf := make([]byte, 256)

	for {
		if b.isClosed() {
			return
		}

		n, err := b.transport.Read(buf)
		if n > 0 {
			b.log.Trace().Hex("rx", buf[:n]).Msg("bus receive")
			b.in.append(buf[:n])
		}
		if err != nil {
			if !b.isClosed() {
				b.log.Warn().Err(err).Msg("transport read failed, receiver stopping")
				b.in.close()
			}
			return
		}
	}
}

func (b *Bus) isClosed() bool {
	return b.closed.Load()
}

// Ping verifies communication with the specified servo. Model number and
// firmware version are read best-effort; their absence does not fail the
// ping.
func (b *Bus) Ping(ctx context.Context, id int) (PingResult, error) {
	if err := validateUnicastID(id); err != nil {
		return PingResult{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed.Load() {
		return PingResult{}, ErrConnectionLost
	}

	deadline, err := b.deadline(ctx)
	if err != nil {
		return PingResult{}, err
	}

	if _, err := b.transactLocked(ctx, "ping", b.protocol.PingPacket(byte(id)), byte(id), deadline); err != nil {
		return PingResult{}, err
	}

	result := PingResult{ID: id, ModelNumber: -1, FirmwareVersion: -1}

	if data, err := b.readRegisterLocked(ctx, byte(id), stsTable[RegModelNumber].Address, byte(stsTable[RegModelNumber].Size)); err == nil {
		result.ModelNumber = int(b.protocol.DecodeWord(data))
	}
	if data, err := b.readRegisterLocked(ctx, byte(id), stsTable[RegFirmwareVersion].Address, byte(stsTable[RegFirmwareVersion].Size)); err == nil {
		result.FirmwareVersion = int(data[0])
	}

	return result, nil
}

// PingResult reports a servo that answered a ping. ModelNumber and
// FirmwareVersion are -1 when the follow-up reads did not answer.
type PingResult struct {
	ID              int
	ModelNumber     int
	FirmwareVersion int
}

// Model resolves the ModelNumber against the known model catalog.
func (r PingResult) Model() (ModelID, bool) {
	if r.ModelNumber < 0 {
		return 0, false
	}
	return ModelByNumber(r.ModelNumber)
}

// ReadRegister reads length bytes from a servo register address.
func (b *Bus) ReadRegister(ctx context.Context, id int, address byte, length int) ([]byte, error) {
	if err := validateUnicastID(id); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed.Load() {
		return nil, ErrConnectionLost
	}

	return b.readRegisterLocked(ctx, byte(id), address, byte(length))
}

// WriteRegister writes bytes to a servo register address. A settle delay
// follows the acknowledged write before the call returns.
func (b *Bus) WriteRegister(ctx context.Context, id int, address byte, data []byte) error {
	if err := validateUnicastID(id); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed.Load() {
		return ErrConnectionLost
	}

	return b.writeRegisterLocked(ctx, byte(id), address, data)
}

// RegWrite writes data to a servo's buffer without immediate execution.
// Call Action() to execute all buffered writes.
func (b *Bus) RegWrite(ctx context.Context, id int, address byte, data []byte) error {
	if err := validateUnicastID(id); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed.Load() {
		return ErrConnectionLost
	}

	deadline, err := b.deadline(ctx)
	if err != nil {
		return err
	}

	packet := b.protocol.RegWritePacket(byte(id), address, data)
	_, err = b.transactLocked(ctx, "reg_write", packet, byte(id), deadline)
	return err
}

// Action triggers execution of all buffered RegWrite commands. Broadcast:
// no response is expected.
func (b *Bus) Action(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed.Load() {
		return ErrConnectionLost
	}

	if err := b.sendLocked(b.protocol.ActionPacket()); err != nil {
		return &CommError{Op: "action", Err: err}
	}
	return nil
}

// FactoryReset restores a servo's control table to factory defaults.
func (b *Bus) FactoryReset(ctx context.Context, id int) error {
	if err := validateUnicastID(id); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed.Load() {
		return ErrConnectionLost
	}

	deadline, err := b.deadline(ctx)
	if err != nil {
		return err
	}

	if _, err := b.transactLocked(ctx, "factory_reset", b.protocol.FactoryResetPacket(byte(id)), byte(id), deadline); err != nil {
		return err
	}

	b.settleLocked()
	return nil
}

// Reboot restarts a servo.
func (b *Bus) Reboot(ctx context.Context, id int) error {
	if err := validateUnicastID(id); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed.Load() {
		return ErrConnectionLost
	}

	deadline, err := b.deadline(ctx)
	if err != nil {
		return err
	}

	if _, err := b.transactLocked(ctx, "reboot", b.protocol.RebootPacket(byte(id)), byte(id), deadline); err != nil {
		return err
	}

	b.settleLocked()
	return nil
}

// discoverSettle is how long servos get to stagger their replies to a
// broadcast ping before the drain starts.
const discoverSettle = 23 * time.Millisecond

// Discover finds servos with a single broadcast ping, then drains replies
// until the bus timeout. Faster than Scan, but only the STS series answers
// broadcast pings. Model numbers are read best-effort per responder.
func (b *Bus) Discover(ctx context.Context) ([]PingResult, error) {
	if b.protocol.Version() != ProtocolSTS {
		return nil, fmt.Errorf("%w: broadcast discovery needs the STS protocol", ErrInvalidParameter)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed.Load() {
		return nil, ErrConnectionLost
	}

	if err := b.sendLocked(b.protocol.PingPacket(BroadcastID)); err != nil {
		return nil, &CommError{Op: "discover", Err: err}
	}

	time.Sleep(discoverSettle)

	deadline, err := b.deadline(ctx)
	if err != nil {
		return nil, err
	}

	var ids []byte
	for {
		raw, _, err := b.in.nextFrame(deadline)
		if err != nil {
			if errors.Is(err, ErrConnectionLost) {
				return nil, err
			}
			break // timeout: no more replies
		}

		pkt, err := b.protocol.Decode(raw)
		if err != nil {
			b.log.Debug().Err(err).Msg("discover: dropped bad frame")
			continue
		}
		if pkt.Error.HasError() || pkt.ID > MaxServoID {
			continue
		}
		ids = append(ids, pkt.ID)
	}

	found := make([]PingResult, 0, len(ids))
	for _, id := range ids {
		result := PingResult{ID: int(id), ModelNumber: -1, FirmwareVersion: -1}
		if data, err := b.readRegisterLocked(ctx, id, stsTable[RegModelNumber].Address, byte(stsTable[RegModelNumber].Size)); err == nil {
			result.ModelNumber = int(b.protocol.DecodeWord(data))
		}
		b.log.Debug().Int("id", result.ID).Int("model", result.ModelNumber).Msg("servo discovered")
		found = append(found, result)
	}

	return found, nil
}

// Scan probes every ID in [startID, endID] and reports those that answer.
// A per-id failure means that servo is absent from the result; it never
// aborts the scan.
func (b *Bus) Scan(ctx context.Context, startID, endID int) ([]PingResult, error) {
	if startID < 0 || endID > MaxServoID || startID > endID {
		return nil, fmt.Errorf("%w: invalid ID range: %d to %d", ErrInvalidParameter, startID, endID)
	}

	var found []PingResult

	for id := startID; id <= endID; id++ {
		if err := ctx.Err(); err != nil {
			return found, err
		}

		result, err := b.Ping(ctx, id)
		if err != nil {
			continue // No response at this ID
		}

		b.log.Debug().Int("id", result.ID).Int("model", result.ModelNumber).Msg("servo found")
		found = append(found, result)
	}

	return found, nil
}

// Internal methods. Callers of *Locked methods hold b.mu.

func validateUnicastID(id int) error {
	if id < 0 || id > MaxServoID {
		return fmt.Errorf("%w: servo id %d out of range 0-%d", ErrInvalidParameter, id, MaxServoID)
	}
	return nil
}

// deadline computes the per-operation deadline, capped by a context
// deadline when one is set.
func (b *Bus) deadline(ctx context.Context) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}

	d := time.Now().Add(b.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(d) {
		d = ctxDeadline
	}
	return d, nil
}

func (b *Bus) enforceCommandGap() {
	elapsed := time.Since(b.lastCmdTime)
	if elapsed < b.minCmdGap {
		time.Sleep(b.minCmdGap - elapsed)
	}
}

func (b *Bus) settleLocked() {
	time.Sleep(b.settle)
}

// sendLocked flushes stale input and transmits one packet.
func (b *Bus) sendLocked(packet []byte) error {
	b.enforceCommandGap()

	// Drop anything left over from an earlier exchange; a response can only
	// belong to the request we are about to send. Transport first, queue
	// last: bytes the receiver has already read off the transport may still
	// land in the queue after the flush, and the late reset catches them.
	b.transport.Flush()
	b.in.reset()

	b.log.Trace().Hex("tx", packet).Msg("bus send")

	n, err := b.transport.Write(packet)
	if err != nil {
		return fmt.Errorf("write failed: %w", err)
	}
	if n != len(packet) {
		return fmt.Errorf("incomplete write: %d of %d bytes", n, len(packet))
	}

	b.lastCmdTime = time.Now()

	time.Sleep(busTurnaround)

	return nil
}

// transactLocked runs one full request/response cycle: transmit, extract a
// frame, decode, verify the addressee and the status bits. Every
// single-device operation is built on this one primitive. There is no
// automatic retry; a failed transaction is reported once.
func (b *Bus) transactLocked(ctx context.Context, op string, packet []byte, expectedID byte, deadline time.Time) (Packet, error) {
	if err := ctx.Err(); err != nil {
		return Packet{}, err
	}

	if err := b.sendLocked(packet); err != nil {
		return Packet{}, &CommError{Op: op, Err: err}
	}

	return b.receiveLocked(op, expectedID, deadline)
}

// receiveLocked waits for one frame addressed from expectedID. Also used on
// its own for sync read, where each servo answers a broadcast solicitation
// individually.
func (b *Bus) receiveLocked(op string, expectedID byte, deadline time.Time) (Packet, error) {
	raw, skipped, err := b.in.nextFrame(deadline)
	if skipped > 0 {
		b.log.Warn().Int("bytes", skipped).Str("op", op).Msg("discarded garbage before frame header")
	}
	if err != nil {
		return Packet{}, &ServoError{ID: int(expectedID), Op: op, Err: err}
	}

	pkt, err := b.protocol.Decode(raw)
	if err != nil {
		return Packet{}, &ServoError{ID: int(expectedID), Op: op, Err: err}
	}

	if pkt.ID != expectedID {
		return Packet{}, &ServoError{
			ID: int(expectedID), Op: op,
			Err: fmt.Errorf("%w: reply from servo %d, expected %d", ErrInvalidResponse, pkt.ID, expectedID),
		}
	}

	if pkt.Error.HasError() {
		return Packet{}, &ServoError{ID: int(expectedID), Op: op, Status: pkt.Error}
	}

	return pkt, nil
}

func (b *Bus) readRegisterLocked(ctx context.Context, id, address, length byte) ([]byte, error) {
	deadline, err := b.deadline(ctx)
	if err != nil {
		return nil, err
	}

	packet := b.protocol.ReadPacket(id, address, length)
	resp, err := b.transactLocked(ctx, "read", packet, id, deadline)
	if err != nil {
		return nil, err
	}

	if len(resp.Parameters) != int(length) {
		return nil, &ServoError{
			ID: int(id), Op: "read",
			Err: fmt.Errorf("%w: got %d data bytes, expected %d", ErrInvalidResponse, len(resp.Parameters), length),
		}
	}

	return resp.Parameters, nil
}

func (b *Bus) writeRegisterLocked(ctx context.Context, id, address byte, data []byte) error {
	deadline, err := b.deadline(ctx)
	if err != nil {
		return err
	}

	packet := b.protocol.WritePacket(id, address, data)
	if _, err := b.transactLocked(ctx, "write", packet, id, deadline); err != nil {
		return err
	}

	b.settleLocked()
	return nil
}
