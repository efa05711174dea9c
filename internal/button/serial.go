package button

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.bug.st/serial"
)

// maxPartialLine bounds the bytes kept while waiting for a newline.
const maxPartialLine = 64

type inputResetter interface {
	ResetInputBuffer() error
}

// LineSource treats each newline-terminated line equal to the pressed value as a press.
type LineSource struct {
	r        io.ReadCloser
	pressed  string
	buf      []byte
	scratch  []byte
	resetErr error
}

// OpenSerial opens the microcontroller's serial port in 8N1 with a read timeout.
func OpenSerial(port string, baud int, pressed string, timeout time.Duration) (*LineSource, error) {
	p, err := serial.Open(port, &serial.Mode{BaudRate: baud, DataBits: 8, Parity: serial.NoParity, StopBits: serial.OneStopBit})
	if err != nil {
		return nil, fmt.Errorf("open button port %s: %w", port, err)
	}
	if err := p.SetReadTimeout(timeout); err != nil {
		p.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}
	if err := p.ResetInputBuffer(); err != nil {
		p.Close()
		return nil, fmt.Errorf("reset button input: %w", err)
	}
	return NewLineSource(p, pressed), nil
}

// NewLineSource reads from r, which must return (0, nil) or data within a bounded time.
func NewLineSource(r io.ReadCloser, pressed string) *LineSource {
	return &LineSource{r: r, pressed: strings.TrimSpace(pressed), scratch: make([]byte, 64)}
}

func (s *LineSource) Poll(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := s.resetErr; err != nil {
		s.resetErr = nil
		return false, fmt.Errorf("reset button input: %w", err)
	}
	n, err := s.r.Read(s.scratch)
	if n > 0 {
		s.buf = append(s.buf, s.scratch[:n]...)
	}
	pressed := s.consumeLines()
	if err != nil && err != io.EOF {
		return pressed, fmt.Errorf("read button: %w", err)
	}
	return pressed, nil
}

func (s *LineSource) consumeLines() bool {
	pressed := false
	for {
		i := bytes.IndexByte(s.buf, '\n')
		if i < 0 {
			if len(s.buf) > maxPartialLine {
				s.buf = append(s.buf[:0], s.buf[len(s.buf)-maxPartialLine:]...)
			}
			return pressed
		}
		line := strings.TrimSpace(string(s.buf[:i]))
		s.buf = s.buf[i+1:]
		if line == s.pressed {
			pressed = true
		}
	}
}

// Discard drops buffered partial lines and, for serial ports, the driver's
// input buffer. A reset failure is reported by the next Poll.
func (s *LineSource) Discard() {
	s.buf = s.buf[:0]
	if r, ok := s.r.(inputResetter); ok {
		s.resetErr = r.ResetInputBuffer()
	}
}

func (s *LineSource) Close() error {
	return s.r.Close()
}
