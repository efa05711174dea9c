package bus

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/loqalabs/fortune-bird/internal/config"
	"github.com/loqalabs/fortune-bird/internal/protocol"
	"github.com/nats-io/nats.go"
)

// Client wraps the NATS connection and JetStream context with the kiosk's publish helpers.
type Client struct {
	conn *nats.Conn
	js   nats.JetStreamContext
	log  *slog.Logger
}

func Connect(ctx context.Context, cfg config.BusConfig, runtimeName string, log *slog.Logger) (*Client, error) {
	if len(cfg.Servers) == 0 {
		return nil, errors.New("no NATS servers configured")
	}

	options := []nats.Option{
		nats.Name(runtimeName),
		nats.Timeout(config.Millis(cfg.ConnectTimeout)),
	}

	if cfg.Username != "" || cfg.Password != "" {
		options = append(options, nats.UserInfo(cfg.Username, cfg.Password))
	}
	if cfg.Token != "" {
		options = append(options, nats.Token(cfg.Token))
	}
	if cfg.TLSInsecure {
		options = append(options, nats.Secure(&tls.Config{InsecureSkipVerify: true}))
	}

	url := strings.Join(cfg.Servers, ",")
	conn, err := nats.Connect(url, options...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	log = log.With(slog.String("component", "bus"))
	log.Info("connected to NATS", slog.String("servers", url))

	return &Client{
		conn: conn,
		js:   js,
		log:  log,
	}, nil
}

// EnsureInteractionStream creates the stream retaining completed interactions.
// Servers without JetStream only get a warning.
func (c *Client) EnsureInteractionStream(maxMsgs int) {
	if c == nil || c.js == nil {
		return
	}
	if _, err := c.js.StreamInfo(protocol.StreamInteractions); err == nil {
		return
	}
	cfg := &nats.StreamConfig{
		Name:     protocol.StreamInteractions,
		Subjects: []string{protocol.SubjectInteractionCompleted},
		Storage:  nats.FileStorage,
		MaxMsgs:  int64(maxMsgs),
		MaxAge:   0,
	}
	if maxMsgs <= 0 {
		cfg.MaxMsgs = -1
	}
	if _, err := c.js.AddStream(cfg); err != nil {
		c.log.Warn("interaction stream unavailable", slog.String("error", err.Error()))
	}
}

// PublishJSON marshals v and publishes it on subject.
func (c *Client) PublishJSON(subject string, v any) error {
	if c == nil {
		return nil
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", subject, err)
	}
	return c.conn.Publish(subject, payload)
}

// Subscribe registers handler for subject.
func (c *Client) Subscribe(subject string, handler nats.MsgHandler) (*nats.Subscription, error) {
	if c == nil {
		return nil, errors.New("bus not connected")
	}
	sub, err := c.conn.Subscribe(subject, handler)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	return sub, nil
}

func (c *Client) Close() {
	if c == nil {
		return
	}
	c.log.Info("closing NATS connection")
	_ = c.conn.Drain()
	c.conn.Close()
}

func (c *Client) Healthy() bool {
	return c != nil && c.conn != nil && c.conn.Status() == nats.CONNECTED
}

// Flush waits for buffered publishes to reach the server.
func (c *Client) Flush(timeout time.Duration) error {
	if c == nil {
		return nil
	}
	return c.conn.FlushTimeout(timeout)
}
