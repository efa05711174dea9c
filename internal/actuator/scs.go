package actuator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/loqalabs/fortune-bird/internal/config"
	"go.bug.st/serial"
)

const (
	instRead  = 0x02
	instWrite = 0x03

	addrTorqueEnable    = 40
	addrGoalAcc         = 41
	addrGoalPosition    = 42
	addrGoalSpeed       = 46
	addrPresentPosition = 56
)

var ErrTimeout = errors.New("servo response timeout")

// StatusError carries a nonzero error byte from a servo status packet.
type StatusError struct {
	Code byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("servo status error 0x%02x", e.Code)
}

// encodePacket frames an instruction: ff ff id len instr params checksum.
func encodePacket(id, instr byte, params ...byte) []byte {
	pkt := make([]byte, 0, 6+len(params))
	pkt = append(pkt, 0xff, 0xff, id, byte(len(params)+2), instr)
	pkt = append(pkt, params...)
	return append(pkt, checksum(pkt[2:]))
}

func checksum(b []byte) byte {
	var sum byte
	for _, v := range b {
		sum += v
	}
	return ^sum
}

// Servo speaks the SCS half-duplex protocol. Words are big-endian.
type Servo struct {
	mu      sync.Mutex
	port    io.ReadWriter
	id      byte
	timeout time.Duration
}

func NewServo(port io.ReadWriter, id byte, timeout time.Duration) *Servo {
	if timeout <= 0 {
		timeout = 100 * time.Millisecond
	}
	return &Servo{port: port, id: id, timeout: timeout}
}

func (s *Servo) WriteU8(addr, value byte) error {
	_, err := s.txrx(instWrite, addr, value)
	return err
}

func (s *Servo) WriteU16(addr byte, value uint16) error {
	_, err := s.txrx(instWrite, addr, byte(value>>8), byte(value))
	return err
}

func (s *Servo) ReadU16(addr byte) (uint16, error) {
	params, err := s.txrx(instRead, addr, 2)
	if err != nil {
		return 0, err
	}
	if len(params) != 2 {
		return 0, fmt.Errorf("servo read returned %d bytes", len(params))
	}
	return uint16(params[0])<<8 | uint16(params[1]), nil
}

func (s *Servo) txrx(instr byte, params ...byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.port.Write(encodePacket(s.id, instr, params...)); err != nil {
		return nil, fmt.Errorf("write servo packet: %w", err)
	}
	return s.readStatus()
}

// readStatus reads ff ff id len err params checksum and returns params.
func (s *Servo) readStatus() ([]byte, error) {
	deadline := time.Now().Add(s.timeout)
	var prev byte
	for {
		b, err := s.readExact(1, deadline)
		if err != nil {
			return nil, err
		}
		if prev == 0xff && b[0] == 0xff {
			break
		}
		prev = b[0]
	}
	head, err := s.readExact(2, deadline)
	if err != nil {
		return nil, err
	}
	id, length := head[0], head[1]
	if length < 2 {
		return nil, fmt.Errorf("servo status length %d", length)
	}
	body, err := s.readExact(int(length), deadline)
	if err != nil {
		return nil, err
	}
	if id != s.id {
		return nil, fmt.Errorf("status from servo %d, expected %d", id, s.id)
	}
	want := checksum(append([]byte{id, length}, body[:len(body)-1]...))
	if body[len(body)-1] != want {
		return nil, fmt.Errorf("servo status checksum mismatch")
	}
	if body[0] != 0 {
		return nil, &StatusError{Code: body[0]}
	}
	return body[1 : len(body)-1], nil
}

// readExact tolerates the zero-byte reads a port returns on its read timeout.
func (s *Servo) readExact(n int, deadline time.Time) ([]byte, error) {
	buf := make([]byte, n)
	got := 0
	for got < n {
		m, err := s.port.Read(buf[got:])
		got += m
		if err != nil && !(errors.Is(err, io.EOF) && m == 0) {
			return nil, fmt.Errorf("read servo: %w", err)
		}
		if got < n && time.Now().After(deadline) {
			return nil, ErrTimeout
		}
	}
	return buf, nil
}

// SCS drives the bird through a serial-attached SCS servo.
type SCS struct {
	servo  *Servo
	port   io.Closer
	cfg    config.ActuatorConfig
	log    *slog.Logger
	poll   time.Duration
	moveTO time.Duration
}

// OpenSCS opens the servo driver board and writes acceleration and speed.
func OpenSCS(cfg config.ActuatorConfig, log *slog.Logger) (*SCS, error) {
	p, err := serial.Open(cfg.SerialPort, &serial.Mode{BaudRate: cfg.BaudRate})
	if err != nil {
		return nil, fmt.Errorf("open servo port %s: %w", cfg.SerialPort, err)
	}
	if err := p.SetReadTimeout(20 * time.Millisecond); err != nil {
		p.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}
	a, err := NewSCS(p, cfg, log)
	if err != nil {
		p.Close()
		return nil, err
	}
	return a, nil
}

// NewSCS configures the servo behind port. Close closes port if it is an io.Closer.
func NewSCS(port io.ReadWriter, cfg config.ActuatorConfig, log *slog.Logger) (*SCS, error) {
	a := &SCS{
		servo:  NewServo(port, byte(cfg.ServoID), 100*time.Millisecond),
		cfg:    cfg,
		log:    log.With(slog.String("component", "actuator")),
		poll:   5 * time.Millisecond,
		moveTO: moveTimeout(cfg),
	}
	if c, ok := port.(io.Closer); ok {
		a.port = c
	}
	if err := a.servo.WriteU8(addrGoalAcc, byte(cfg.Acceleration)); err != nil {
		return nil, fmt.Errorf("write acceleration: %w", err)
	}
	if err := a.servo.WriteU16(addrGoalSpeed, uint16(cfg.Speed)); err != nil {
		return nil, fmt.Errorf("write speed: %w", err)
	}
	return a, nil
}

func (a *SCS) Perform(ctx context.Context) error {
	for _, goal := range Gesture(a.cfg.NeutralPosition, a.cfg.MinPosition, a.cfg.MaxPosition) {
		if err := a.moveTo(ctx, goal); err != nil {
			return err
		}
	}
	return nil
}

// moveTo writes the goal, waits until the present position is within the
// moving threshold, then releases torque.
func (a *SCS) moveTo(ctx context.Context, goal int) error {
	if err := a.servo.WriteU16(addrGoalPosition, uint16(goal)); err != nil {
		return fmt.Errorf("write goal %d: %w", goal, err)
	}
	deadline := time.Now().Add(a.moveTO)
	for {
		pos, err := a.servo.ReadU16(addrPresentPosition)
		if err != nil {
			a.log.Warn("read present position failed", slog.Int("goal", goal), slogError(err))
			break
		}
		if abs(goal-int(pos)) <= a.cfg.MovingThreshold {
			break
		}
		if time.Now().After(deadline) {
			a.log.Warn("servo did not reach goal", slog.Int("goal", goal), slog.Int("position", int(pos)))
			break
		}
		select {
		case <-ctx.Done():
			_ = a.servo.WriteU8(addrTorqueEnable, 0)
			return ctx.Err()
		case <-time.After(a.poll):
		}
	}
	if err := a.servo.WriteU8(addrTorqueEnable, 0); err != nil {
		return fmt.Errorf("disable torque: %w", err)
	}
	return nil
}

func (a *SCS) Close() error {
	if a.port == nil {
		return nil
	}
	return a.port.Close()
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
