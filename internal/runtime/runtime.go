package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/loqalabs/fortune-bird/internal/config"
	"github.com/loqalabs/fortune-bird/internal/eventstore"
	"github.com/loqalabs/fortune-bird/internal/kiosk"
	"github.com/loqalabs/fortune-bird/internal/presence"
)

type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	tracerClose func(context.Context) error
	orch        *kiosk.Orchestrator
	store       *eventstore.Store
	presence    *presence.Registry
	wg          sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start builds the kiosk and runs it until ctx ends. Errors returned before
// the orchestrator starts are startup failures.
func (r *Runtime) Start(ctx context.Context) error {
	shutdownTelemetry, metricHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry
	defer r.flushTelemetry()

	comps, err := buildComponents(ctx, r.cfg, r.logger)
	if err != nil {
		return err
	}
	defer comps.close(r.logger)
	r.store = comps.store

	orch, err := kiosk.New(r.cfg, comps.deps, r.logger)
	if err != nil {
		return err
	}
	r.orch = orch

	if comps.bus != nil {
		status := func() (string, int64) {
			st := orch.Status()
			return st.State, st.Interactions
		}
		reg, err := presence.Start(ctx, r.cfg.Bus, r.cfg.RuntimeName, presence.CapabilitiesFromConfig(r.cfg), status, comps.bus, r.logger)
		if err != nil {
			r.logger.Warn("presence disabled", slog.String("error", err.Error()))
		} else {
			r.presence = reg
			defer reg.Close()
		}
	}

	if r.cfg.HTTP.Enabled {
		r.startHTTP(metricHandler)
	}

	r.logger.Info("runtime started")
	if err := orch.Run(ctx); err != nil {
		return err
	}
	r.logger.Info("runtime stopping")

	if r.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("http shutdown error", slog.String("error", err.Error()))
		}
	}
	r.wg.Wait()
	return nil
}

func (r *Runtime) flushTelemetry() {
	if r.tracerClose == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.tracerClose(ctx); err != nil {
		r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
	}
}

func (r *Runtime) startHTTP(metricHandler http.Handler) {
	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r.routes(metricHandler),
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()
	r.logger.Info("http server listening", slog.String("addr", addr))
}

func (r *Runtime) routes(metricHandler http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	mux.HandleFunc("/state", r.handleState)
	mux.HandleFunc("/interactions", r.handleInteractions)
	mux.HandleFunc("/peers", r.handlePeers)
	if metricHandler != nil {
		mux.Handle("/metrics", metricHandler)
	}
	return mux
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.orch != nil && r.orch.Ready() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

func (r *Runtime) handleState(w http.ResponseWriter, _ *http.Request) {
	if r.orch == nil {
		http.Error(w, "not started", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, r.orch.Status())
}

func (r *Runtime) handlePeers(w http.ResponseWriter, _ *http.Request) {
	if r.presence == nil {
		writeJSON(w, []presence.NodeInfo{})
		return
	}
	writeJSON(w, r.presence.Nodes())
}

type interactionView struct {
	ID         string    `json:"interaction_id"`
	Topic      string    `json:"topic"`
	Status     string    `json:"status"`
	Spoken     bool      `json:"spoken"`
	Printed    bool      `json:"printed"`
	Error      string    `json:"error,omitempty"`
	TextPath   string    `json:"text_path,omitempty"`
	ImagePath  string    `json:"image_path,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
}

func (r *Runtime) handleInteractions(w http.ResponseWriter, req *http.Request) {
	limit := 20
	if v := req.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	list, err := r.store.ListInteractions(req.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	views := make([]interactionView, 0, len(list))
	for _, in := range list {
		views = append(views, interactionView{
			ID:         in.ID,
			Topic:      in.Topic,
			Status:     in.Status,
			Spoken:     in.Spoken,
			Printed:    in.Printed,
			Error:      in.Error,
			TextPath:   in.TextPath,
			ImagePath:  in.ImagePath,
			StartedAt:  in.StartedAt,
			DurationMS: in.Duration.Milliseconds(),
		})
	}
	writeJSON(w, views)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
