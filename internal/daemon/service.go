// Package daemon provides the long-running local relay: a paid prompt
// endpoint, a gateway health monitor and an event stream.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/theirongolddev/paychat/internal/store"
	"github.com/theirongolddev/paychat/internal/x402"
)

// Event types.
const (
	EventSnapshot = "snapshot"
	EventHealth   = "health"
	EventExchange = "exchange"
)

// Config controls the daemon runtime behavior.
type Config struct {
	Addr            string
	Interval        time.Duration
	EventsBuffer    int
	APIBaseURL      string
	Network         string
	MaxSpendUSDC    float64
	DefaultModel    string
	MaxOutputTokens int
}

// Gateway is the paid inference backend. *x402.Client implements it.
type Gateway interface {
	Send(ctx context.Context, req x402.Request, signer x402.Signer) x402.Result
	Health(ctx context.Context) bool
}

// Ledger records relayed exchanges. *store.Ledger implements it.
type Ledger interface {
	RecordExchange(ctx context.Context, e store.Exchange) error
	Totals(ctx context.Context) (store.Totals, error)
}

// Snapshot is a compact relay state for status/event payloads.
type Snapshot struct {
	At           time.Time `json:"at"`
	GatewayUp    bool      `json:"gateway_up"`
	Exchanges    int       `json:"exchanges"`
	Failures     int       `json:"failures"`
	Paid         int       `json:"paid"`
	ChargedUSDC  float64   `json:"charged_usdc"`
	RefundedUSDC float64   `json:"refunded_usdc"`
	Tokens       int64     `json:"tokens"`
}

// Delta captures snapshot deltas between events.
type Delta struct {
	Exchanges   int     `json:"exchanges"`
	Failures    int     `json:"failures"`
	ChargedUSDC float64 `json:"charged_usdc"`
	Tokens      int64   `json:"tokens"`
}

func (d Delta) isZero() bool {
	return d.Exchanges == 0 &&
		d.Failures == 0 &&
		d.ChargedUSDC == 0 &&
		d.Tokens == 0
}

// ExchangeInfo describes one relayed exchange in an event.
type ExchangeInfo struct {
	Model           string  `json:"model"`
	OK              bool    `json:"ok"`
	Error           string  `json:"error,omitempty"`
	Paid            bool    `json:"paid"`
	ChargedUSDC     float64 `json:"charged_usdc"`
	RefundUSDC      float64 `json:"refund_usdc"`
	TransactionHash string  `json:"transaction_hash,omitempty"`
	DurationMs      int64   `json:"duration_ms"`
}

// Event is emitted on health transitions and relayed exchanges.
type Event struct {
	ID        int64         `json:"id"`
	Type      string        `json:"type"`
	Timestamp time.Time     `json:"timestamp"`
	Snapshot  Snapshot      `json:"snapshot"`
	Delta     Delta         `json:"delta"`
	Exchange  *ExchangeInfo `json:"exchange,omitempty"`
}

// Status is served at /v1/status.
type Status struct {
	StartedAt       time.Time `json:"started_at"`
	LastPollAt      time.Time `json:"last_poll_at"`
	PollIntervalSec int       `json:"poll_interval_sec"`
	PollCount       int64     `json:"poll_count"`
	APIBaseURL      string    `json:"api_base_url"`
	Network         string    `json:"network"`
	MaxSpendUSDC    float64   `json:"max_spend_usdc"`
	Wallet          string    `json:"wallet,omitempty"`
	Summary         Snapshot  `json:"summary"`
	LastError       string    `json:"last_error,omitempty"`
	EventCount      int       `json:"event_count"`
	SubscriberCount int       `json:"subscriber_count"`
}

// Service provides the daemon runtime and HTTP API.
type Service struct {
	cfg     Config
	gateway Gateway
	signer  x402.Signer
	ledger  Ledger
	log     *slog.Logger
	metrics *metrics

	mu          sync.RWMutex
	startedAt   time.Time
	lastPollAt  time.Time
	pollCount   int64
	lastError   string
	hasSnapshot bool
	snapshot    Snapshot
	nextEventID int64
	events      []Event

	nextSubID int
	subs      map[int]chan Event
}

// Option configures a Service.
type Option func(*Service)

// WithSigner sets the wallet used to pay for relayed prompts. Without one,
// /v1/prompt answers 503.
func WithSigner(s x402.Signer) Option {
	return func(svc *Service) { svc.signer = s }
}

// WithLedger records relayed exchanges and feeds the status summary.
func WithLedger(l Ledger) Option {
	return func(svc *Service) { svc.ledger = l }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(svc *Service) { svc.log = l }
}

// New returns a new daemon service relaying through gw.
func New(cfg Config, gw Gateway, opts ...Option) *Service {
	if cfg.Interval < 2*time.Second {
		cfg.Interval = 10 * time.Second
	}
	if cfg.EventsBuffer < 1 {
		cfg.EventsBuffer = 200
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8787"
	}

	s := &Service{
		cfg:       cfg,
		gateway:   gw,
		log:       slog.Default(),
		metrics:   newMetrics(),
		startedAt: time.Now(),
		subs:      make(map[int]chan Event),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler returns the HTTP API.
func (s *Service) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(s.metrics.instrument)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/events", s.handleEvents)
		r.Get("/stream", s.handleStream)
		r.Post("/prompt", s.handlePrompt)
	})
	return r
}

// Run serves the HTTP API and polls gateway health until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("daemon listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Service) Serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		// Streams end when the daemon stops.
		BaseContext: func(net.Listener) context.Context { return gctx },
	}

	g.Go(func() error {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("daemon http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		s.pollLoop(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func (s *Service) pollLoop(ctx context.Context) {
	// Seed initial snapshot so status is useful immediately.
	s.pollOnce(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pollOnce(ctx)
		}
	}
}

func (s *Service) pollOnce(ctx context.Context) {
	up := s.gateway.Health(ctx)
	s.metrics.setGatewayUp(up)

	now := time.Now()
	snap, err := s.buildSnapshot(ctx, now, up)

	var (
		ev      Event
		publish bool
	)

	s.mu.Lock()
	prev := s.snapshot
	prevExists := s.hasSnapshot

	s.hasSnapshot = true
	s.snapshot = snap
	s.lastPollAt = now
	s.pollCount++
	s.lastError = ""
	if err != nil {
		s.lastError = err.Error()
	} else if !up {
		s.lastError = "gateway health check failed"
	}

	switch {
	case !prevExists:
		s.nextEventID++
		ev = Event{ID: s.nextEventID, Type: EventSnapshot, Timestamp: now, Snapshot: snap}
		publish = true
	case prev.GatewayUp != up:
		s.nextEventID++
		ev = Event{ID: s.nextEventID, Type: EventHealth, Timestamp: now, Snapshot: snap, Delta: diffSnapshots(prev, snap)}
		publish = true
	}
	s.mu.Unlock()

	if prevExists && prev.GatewayUp != up {
		s.log.Info("gateway health changed", "up", up)
	}
	if publish {
		s.publishEvent(ev)
	}
}

func (s *Service) buildSnapshot(ctx context.Context, at time.Time, up bool) (Snapshot, error) {
	snap := Snapshot{At: at, GatewayUp: up}
	if s.ledger == nil {
		return snap, nil
	}
	t, err := s.ledger.Totals(ctx)
	if err != nil {
		return snap, err
	}
	snap.Exchanges = t.Exchanges
	snap.Failures = t.Failures
	snap.Paid = t.Paid
	snap.ChargedUSDC = t.Charged
	snap.RefundedUSDC = t.Refunded
	snap.Tokens = t.Tokens
	return snap, nil
}

func diffSnapshots(prev, curr Snapshot) Delta {
	return Delta{
		Exchanges:   curr.Exchanges - prev.Exchanges,
		Failures:    curr.Failures - prev.Failures,
		ChargedUSDC: curr.ChargedUSDC - prev.ChargedUSDC,
		Tokens:      curr.Tokens - prev.Tokens,
	}
}

func (s *Service) publishEvent(ev Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	if len(s.events) > s.cfg.EventsBuffer {
		s.events = s.events[len(s.events)-s.cfg.EventsBuffer:]
	}

	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	s.mu.Unlock()
}

func (s *Service) snapshotStatus() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{
		StartedAt:       s.startedAt,
		LastPollAt:      s.lastPollAt,
		PollIntervalSec: int(s.cfg.Interval.Seconds()),
		PollCount:       s.pollCount,
		APIBaseURL:      s.cfg.APIBaseURL,
		Network:         s.cfg.Network,
		MaxSpendUSDC:    s.cfg.MaxSpendUSDC,
		Summary:         s.snapshot,
		LastError:       s.lastError,
		EventCount:      len(s.events),
		SubscriberCount: len(s.subs),
	}
	if s.signer != nil {
		st.Wallet = s.signer.Address()
	}
	return st
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Service) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.snapshotStatus())
}

func (s *Service) handleEvents(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	events := make([]Event, len(s.events))
	copy(events, s.events)
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, events)
}

func (s *Service) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := make(chan Event, 16)
	id := s.addSubscriber(ch)
	defer s.removeSubscriber(id)

	// Send current snapshot immediately.
	current := Event{
		Type:      EventSnapshot,
		Timestamp: time.Now(),
		Snapshot:  s.snapshotStatus().Summary,
	}
	writeSSE(w, current)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-ch:
			writeSSE(w, ev)
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(w, "event: %s\n", ev.Type)
	_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Service) addSubscriber(ch chan Event) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSubID++
	id := s.nextSubID
	s.subs[id] = ch
	return id
}

func (s *Service) removeSubscriber(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
}
