package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/loqalabs/fortune-bird/internal/bus"
	"github.com/loqalabs/fortune-bird/internal/config"
	"github.com/loqalabs/fortune-bird/internal/protocol"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// NodeInfo is the last known view of a kiosk on the bus.
type NodeInfo struct {
	ID           string                `json:"id"`
	State        string                `json:"state"`
	Interactions int64                 `json:"interactions_completed"`
	Capabilities []protocol.Capability `json:"capabilities,omitempty"`
	LastSeen     time.Time             `json:"last_seen"`
	Healthy      bool                  `json:"healthy"`
}

// StatusFunc reports the local node's state and completed interaction count.
type StatusFunc func() (state string, interactions int64)

// Registry heartbeats the local kiosk and tracks its peers.
type Registry struct {
	nodeID   string
	caps     []protocol.Capability
	status   StatusFunc
	interval time.Duration
	timeout  time.Duration
	log      *slog.Logger
	bus      *bus.Client
	now      func() time.Time

	mu    sync.RWMutex
	nodes map[string]*NodeInfo

	cancel context.CancelFunc
	wg     sync.WaitGroup
	sub    *nats.Subscription
}

func Start(ctx context.Context, cfg config.BusConfig, nodeID string, caps []protocol.Capability, status StatusFunc, client *bus.Client, log *slog.Logger) (*Registry, error) {
	ctx, cancel := context.WithCancel(ctx)
	r := &Registry{
		nodeID:   nodeID,
		caps:     caps,
		status:   status,
		interval: config.Millis(cfg.HeartbeatIntervalMS),
		timeout:  config.Millis(cfg.HeartbeatTimeoutMS),
		log:      log.With(slog.String("component", "presence")),
		bus:      client,
		now:      time.Now,
		nodes:    make(map[string]*NodeInfo),
		cancel:   cancel,
	}
	if r.interval <= 0 {
		r.interval = 5 * time.Second
	}
	if r.timeout < r.interval {
		r.timeout = 3 * r.interval
	}

	if err := r.initMetrics(); err != nil {
		r.log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
	}

	sub, err := client.Subscribe(protocol.SubjectNodeHeartbeatPrefix+".*", r.handleHeartbeat)
	if err != nil {
		cancel()
		return nil, err
	}
	r.sub = sub

	if err := r.publishHeartbeat(); err != nil {
		r.log.Warn("failed to publish heartbeat", slog.String("error", err.Error()))
	}

	r.wg.Add(1)
	go r.run(ctx)
	return r, nil
}

func (r *Registry) Close() {
	r.cancel()
	r.wg.Wait()
	if r.sub != nil {
		_ = r.sub.Unsubscribe()
	}
}

func (r *Registry) run(ctx context.Context) {
	defer r.wg.Done()
	heartbeat := time.NewTicker(r.interval)
	defer heartbeat.Stop()
	check := time.Second
	if half := r.timeout / 2; half < check {
		check = half
	}
	health := time.NewTicker(check)
	defer health.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if err := r.publishHeartbeat(); err != nil {
				r.log.Warn("failed to publish heartbeat", slog.String("error", err.Error()))
			}
		case <-health.C:
			r.evaluateHealth()
		}
	}
}

func (r *Registry) publishHeartbeat() error {
	msg := protocol.NodeHeartbeat{
		NodeID:       r.nodeID,
		Capabilities: r.caps,
		Timestamp:    r.now().UTC(),
	}
	if r.status != nil {
		msg.State, msg.Interactions = r.status()
	}
	subject := fmt.Sprintf("%s.%s", protocol.SubjectNodeHeartbeatPrefix, r.nodeID)
	return r.bus.PublishJSON(subject, msg)
}

func (r *Registry) handleHeartbeat(msg *nats.Msg) {
	var hb protocol.NodeHeartbeat
	if err := json.Unmarshal(msg.Data, &hb); err != nil {
		r.log.Warn("invalid heartbeat message", slog.String("error", err.Error()))
		return
	}
	if hb.NodeID == "" {
		return
	}
	if hb.Timestamp.IsZero() {
		hb.Timestamp = r.now().UTC()
	}
	r.update(hb)
}

func (r *Registry) update(hb protocol.NodeHeartbeat) {
	r.mu.Lock()
	defer r.mu.Unlock()

	node, ok := r.nodes[hb.NodeID]
	if !ok {
		node = &NodeInfo{ID: hb.NodeID}
		r.nodes[hb.NodeID] = node
		if hb.NodeID != r.nodeID {
			r.log.Info("kiosk joined", slog.String("node_id", hb.NodeID))
		}
	}
	node.State = hb.State
	node.Interactions = hb.Interactions
	if len(hb.Capabilities) > 0 {
		node.Capabilities = hb.Capabilities
	}
	node.LastSeen = hb.Timestamp
	node.Healthy = true
}

func (r *Registry) evaluateHealth() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for _, node := range r.nodes {
		if node.Healthy && now.Sub(node.LastSeen) > r.timeout {
			node.Healthy = false
			r.log.Warn("kiosk heartbeat lost", slog.String("node_id", node.ID))
		}
	}
}

// Healthy reports whether this node's own heartbeat made the round trip recently.
func (r *Registry) Healthy() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	node, ok := r.nodes[r.nodeID]
	return ok && node.Healthy
}

// Nodes returns every known kiosk, including this one, ordered by ID.
func (r *Registry) Nodes() []NodeInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]NodeInfo, 0, len(r.nodes))
	for _, node := range r.nodes {
		out = append(out, *node)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Registry) initMetrics() error {
	meter := otel.Meter("github.com/loqalabs/fortune-bird/presence")
	gauge, err := meter.Int64ObservableGauge("bird.nodes.healthy", metric.WithDescription("Kiosks with a recent heartbeat"))
	if err != nil {
		return err
	}
	_, err = meter.RegisterCallback(func(ctx context.Context, obs metric.Observer) error {
		var healthy int64
		for _, n := range r.Nodes() {
			if n.Healthy {
				healthy++
			}
		}
		obs.ObserveInt64(gauge, healthy)
		return nil
	}, gauge)
	return err
}

// CapabilitiesFromConfig lists what this kiosk can do.
func CapabilitiesFromConfig(cfg config.Config) []protocol.Capability {
	caps := []protocol.Capability{
		{Name: "llm", Attributes: map[string]string{"mode": cfg.LLM.Mode, "model": cfg.LLM.Model}},
		{Name: "button", Attributes: map[string]string{"source": cfg.Button.Source}},
	}
	if cfg.TTS.Enabled {
		caps = append(caps, protocol.Capability{Name: "tts", Attributes: map[string]string{"mode": cfg.TTS.Mode, "language": cfg.TTS.Language}})
	}
	if cfg.Printer.Enabled {
		caps = append(caps, protocol.Capability{Name: "printer", Attributes: map[string]string{"device": cfg.Printer.DeviceName}})
	}
	if cfg.Actuator.Mode != "" && cfg.Actuator.Mode != "noop" {
		caps = append(caps, protocol.Capability{Name: "actuator", Attributes: map[string]string{"mode": cfg.Actuator.Mode}})
	}
	return caps
}
