package printer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrDeviceNotFound   = errors.New("printer not found")
	ErrEndpointNotFound = errors.New("printer endpoint not found")
)

// TransportError is returned for any failure after the printer was discovered.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("printer %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Peripheral is a device found during discovery.
type Peripheral struct {
	Name    string
	Address string
	native  any
}

// Endpoint is a readable/writable characteristic exposed by a session.
type Endpoint interface {
	UUID() string
	Write(p []byte) error
	Read() ([]byte, error)
}

// Session is an open connection to one peripheral.
type Session interface {
	Endpoints() ([]Endpoint, error)
	Disconnect() error
}

// Link is the wireless adapter the transport drives. Scan returns
// ErrDeviceNotFound when a full pass ends without a match.
type Link interface {
	Scan(ctx context.Context, name string, timeout time.Duration) (Peripheral, error)
	Connect(ctx context.Context, p Peripheral) (Session, error)
}

// RetryPolicy controls discovery retries. MaxAttempts of 0 retries until the
// device shows up or the context ends.
type RetryPolicy struct {
	Interval    time.Duration
	MaxAttempts int
}

func (p RetryPolicy) options(notify backoff.Notify) []backoff.RetryOption {
	opts := []backoff.RetryOption{
		backoff.WithBackOff(backoff.NewConstantBackOff(p.Interval)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(notify),
	}
	if p.MaxAttempts > 0 {
		opts = append(opts, backoff.WithMaxTries(uint(p.MaxAttempts)))
	}
	return opts
}

type TransportConfig struct {
	DeviceName  string
	WritePrefix string
	ReadPrefix  string
	ScanTimeout time.Duration
	Retry       RetryPolicy
}

// Transport delivers encoded frames to the printer. Sessions never outlive a Deliver call.
type Transport struct {
	cfg  TransportConfig
	link Link
	log  *slog.Logger

	scans metric.Int64Counter
	jobs  metric.Int64Counter
}

func NewTransport(cfg TransportConfig, link Link, log *slog.Logger) *Transport {
	t := &Transport{
		cfg:  cfg,
		link: link,
		log:  log.With(slog.String("component", "printer")),
	}
	meter := otel.Meter("github.com/loqalabs/fortune-bird/printer")
	var err error
	if t.scans, err = meter.Int64Counter("bird.printer.discovery_attempts", metric.WithDescription("Printer scan passes")); err != nil {
		t.log.Warn("failed to create discovery counter", slogError(err))
	}
	if t.jobs, err = meter.Int64Counter("bird.printer.jobs", metric.WithDescription("Print jobs by result")); err != nil {
		t.log.Warn("failed to create job counter", slogError(err))
	}
	return t
}

// Deliver discovers the printer, writes the frame and confirms with one read.
func (t *Transport) Deliver(ctx context.Context, frame Frame) error {
	err := t.deliver(ctx, frame)
	result := "ok"
	if err != nil {
		result = "error"
	}
	if t.jobs != nil {
		t.jobs.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
	}
	return err
}

func (t *Transport) deliver(ctx context.Context, frame Frame) (err error) {
	peripheral, err := t.discover(ctx)
	if err != nil {
		return err
	}

	session, err := t.link.Connect(ctx, peripheral)
	if err != nil {
		return &TransportError{Op: "connect", Err: err}
	}
	defer func() {
		if derr := session.Disconnect(); derr != nil {
			t.log.Warn("printer disconnect failed", slogError(derr))
		}
	}()

	endpoints, err := session.Endpoints()
	if err != nil {
		return &TransportError{Op: "discover endpoints", Err: err}
	}
	write := findEndpoint(endpoints, t.cfg.WritePrefix)
	if write == nil {
		return &TransportError{Op: "select write endpoint", Err: fmt.Errorf("%w: prefix %s", ErrEndpointNotFound, t.cfg.WritePrefix)}
	}
	read := findEndpoint(endpoints, t.cfg.ReadPrefix)
	if read == nil {
		return &TransportError{Op: "select read endpoint", Err: fmt.Errorf("%w: prefix %s", ErrEndpointNotFound, t.cfg.ReadPrefix)}
	}

	payload := frame.Bytes()
	if err := write.Write(payload); err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	if _, err := read.Read(); err != nil {
		return &TransportError{Op: "read", Err: err}
	}
	t.log.Info("print job delivered",
		slog.String("device", peripheral.Name),
		slog.Int("bytes", len(payload)),
		slog.Int("lines", frame.Lines()))
	return nil
}

func (t *Transport) discover(ctx context.Context) (Peripheral, error) {
	attempt := 0
	scan := func() (Peripheral, error) {
		attempt++
		if t.scans != nil {
			t.scans.Add(ctx, 1)
		}
		return t.link.Scan(ctx, t.cfg.DeviceName, t.cfg.ScanTimeout)
	}
	notify := func(err error, next time.Duration) {
		t.log.Info("printer not found, scanning again",
			slog.String("device", t.cfg.DeviceName),
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", next),
			slogError(err))
	}

	peripheral, err := backoff.Retry(ctx, scan, t.cfg.Retry.options(notify)...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Peripheral{}, ctxErr
		}
		return Peripheral{}, &TransportError{Op: "discover", Err: err}
	}
	t.log.Info("printer discovered",
		slog.String("device", peripheral.Name),
		slog.String("address", peripheral.Address),
		slog.Int("attempts", attempt))
	return peripheral, nil
}

func findEndpoint(endpoints []Endpoint, prefix string) Endpoint {
	prefix = strings.ToLower(prefix)
	for _, ep := range endpoints {
		if strings.HasPrefix(strings.ToLower(ep.UUID()), prefix) {
			return ep
		}
	}
	return nil
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
