// Package chat sequences user input through cost preview, paid dispatch and
// transcript updates. It owns the conversation state.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/theirongolddev/paychat/internal/config"
	"github.com/theirongolddev/paychat/internal/estimate"
	"github.com/theirongolddev/paychat/internal/store"
	"github.com/theirongolddev/paychat/internal/wallet"
	"github.com/theirongolddev/paychat/internal/x402"
)

const walletRequiredMessage = "wallet required"

var (
	// ErrWalletRequired indicates Submit was called with no active wallet.
	ErrWalletRequired = errors.New("chat: wallet required")
	// ErrBusy indicates an exchange is already in flight.
	ErrBusy = errors.New("chat: an exchange is already in flight")
)

// Role identifies the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in the transcript.
type Turn struct {
	ID      string
	Role    Role
	Content string
	Model   string
	Usage   *x402.Usage
	Receipt *x402.Receipt
	At      time.Time
}

// Sender dispatches one paid exchange. *x402.Client implements it.
type Sender interface {
	Send(ctx context.Context, req x402.Request, signer x402.Signer) x402.Result
}

// Wallet yields the signer of the active wallet session, if any.
type Wallet interface {
	Active() (x402.Signer, bool)
}

// Ledger records finished exchanges. *store.Ledger implements it.
type Ledger interface {
	RecordExchange(ctx context.Context, e store.Exchange) error
}

// FromManager adapts a wallet manager to the Wallet interface.
func FromManager(m *wallet.Manager) Wallet {
	return managerWallet{m: m}
}

type managerWallet struct {
	m *wallet.Manager
}

func (w managerWallet) Active() (x402.Signer, bool) {
	if w.m == nil {
		return nil, false
	}
	s, ok := w.m.Active()
	if !ok {
		// Return an untyped nil so callers' nil checks hold.
		return nil, false
	}
	return s, true
}

// State is a snapshot of the conversation.
type State struct {
	Transcript      []Turn
	Draft           string
	Sending         bool
	LastError       string
	Model           string
	MaxOutputTokens int
}

// Preview is the pre-flight cost of sending a draft.
type Preview struct {
	estimate.CostEstimate
	Model      config.Model
	SpendCap   float64
	ExceedsCap bool
}

// Orchestrator serializes exchanges and keeps the transcript consistent with
// what was actually paid for.
type Orchestrator struct {
	client Sender
	wallet Wallet
	ledger Ledger
	est    estimate.Estimator
	log    *slog.Logger
	now    func() time.Time

	mu         sync.Mutex
	model      config.Model
	maxTokens  int
	spendCap   float64
	transcript []Turn
	draft      string
	sending    bool
	lastError  string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithModel selects the initial model. Unknown ids are ignored.
func WithModel(id string) Option {
	return func(o *Orchestrator) {
		if m, ok := config.LookupModel(id); ok {
			o.model = m
		}
	}
}

// WithMaxOutputTokens sets the output cap sent with each request.
func WithMaxOutputTokens(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxTokens = n
		}
	}
}

// WithSpendCap sets the per-request ceiling previews are compared against.
func WithSpendCap(usdc float64) Option {
	return func(o *Orchestrator) { o.spendCap = usdc }
}

// WithEstimator replaces the cost estimator.
func WithEstimator(e estimate.Estimator) Option {
	return func(o *Orchestrator) { o.est = e }
}

// WithLedger records every finished exchange in l.
func WithLedger(l Ledger) Option {
	return func(o *Orchestrator) { o.ledger = l }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// WithClock sets the time source for turn timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an orchestrator dispatching through client and paying with wallet.
func New(client Sender, w Wallet, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		client:    client,
		wallet:    w,
		log:       slog.Default(),
		now:       time.Now,
		maxTokens: config.DefaultMaxOutputTokens,
		spendCap:  config.DefaultMaxSpendUSDC,
	}
	o.model, _ = config.LookupModel(config.DefaultModelID)
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// NewFromSettings creates an orchestrator configured from resolved settings.
func NewFromSettings(client Sender, w Wallet, s config.Settings, opts ...Option) *Orchestrator {
	base := []Option{
		WithModel(s.DefaultModel),
		WithMaxOutputTokens(s.MaxOutputTokens),
		WithSpendCap(s.MaxSpendUSDC),
	}
	return New(client, w, append(base, opts...)...)
}

// Submit sends draft as the next user turn.
//
// A blank draft is a no-op. Without an active wallet LastError is set and no
// request is made. The user turn is appended and the draft cleared before the
// request completes; on failure both are rolled back and LastError describes
// the failure.
func (o *Orchestrator) Submit(ctx context.Context, draft string) error {
	prompt := strings.TrimSpace(draft)
	if prompt == "" {
		return nil
	}

	o.mu.Lock()
	if o.sending {
		o.mu.Unlock()
		return ErrBusy
	}
	signer, ok := o.activeSigner()
	if !ok {
		o.lastError = walletRequiredMessage
		o.mu.Unlock()
		return ErrWalletRequired
	}

	started := o.now()
	userTurn := Turn{
		ID:      uuid.NewString(),
		Role:    RoleUser,
		Content: prompt,
		Model:   o.model.ID,
		At:      started,
	}
	o.transcript = append(o.transcript, userTurn)
	o.draft = ""
	o.lastError = ""
	o.sending = true

	req := x402.Request{Model: o.model.ID, Prompt: prompt, MaxOutputTokens: o.maxTokens}
	est := o.est.Estimate(prompt, o.maxTokens, o.model.Pricing)
	o.mu.Unlock()

	res := o.client.Send(ctx, req, signer)

	o.mu.Lock()
	o.sending = false
	if res.OK() {
		o.transcript = append(o.transcript, Turn{
			ID:      uuid.NewString(),
			Role:    RoleAssistant,
			Content: res.Response.Content,
			Model:   req.Model,
			Usage:   res.Response.Usage,
			Receipt: res.Response.Receipt,
			At:      o.now(),
		})
	} else {
		o.removeTurn(userTurn.ID)
		o.draft = draft
		o.lastError = failureMessage(res)
	}
	o.mu.Unlock()

	o.record(ctx, userTurn.ID, req.Model, started, est, res)

	if !res.OK() {
		if res.Err != nil {
			return res.Err
		}
		return errors.New("chat: " + failureMessage(res))
	}
	return nil
}

func (o *Orchestrator) activeSigner() (x402.Signer, bool) {
	if o.wallet == nil {
		return nil, false
	}
	s, ok := o.wallet.Active()
	if !ok || s == nil {
		return nil, false
	}
	return s, true
}

func (o *Orchestrator) removeTurn(id string) {
	for i := len(o.transcript) - 1; i >= 0; i-- {
		if o.transcript[i].ID == id {
			o.transcript = append(o.transcript[:i], o.transcript[i+1:]...)
			return
		}
	}
}

func failureMessage(res x402.Result) string {
	if msg := res.Message(); msg != "" {
		return msg
	}
	return "request failed"
}

func (o *Orchestrator) record(ctx context.Context, id, model string, started time.Time, est estimate.CostEstimate, res x402.Result) {
	e := store.Exchange{
		ID:            id,
		At:            started,
		Model:         model,
		Status:        store.StatusOK,
		EstimatedCost: est.TotalCost,
		Duration:      o.now().Sub(started),
	}
	if res.OK() {
		resp := res.Response
		e.Paid = resp.Paid
		if u := resp.Usage; u != nil {
			e.PromptTokens = u.PromptTokens
			e.CompletionTokens = u.CompletionTokens
			e.TotalTokens = u.TotalTokens
		}
		if r := resp.Receipt; r != nil {
			e.AmountCharged = r.AmountCharged
			e.RefundAmount = r.RefundAmount
			e.TransactionHash = r.TransactionHash
			e.Network = r.Network
		}
		o.log.Info("exchange complete",
			"model", model,
			"paid", e.Paid,
			"charged", e.AmountCharged,
			"tokens", e.TotalTokens,
			"duration", e.Duration,
		)
	} else {
		e.Status = store.StatusFailed
		e.Error = failureMessage(res)
	}

	if o.ledger == nil {
		return
	}
	// The exchange already happened; don't let a cancelled caller lose the record.
	if err := o.ledger.RecordExchange(context.WithoutCancel(ctx), e); err != nil {
		o.log.Warn("recording exchange", "error", err)
	}
}

// Preview estimates the cost of sending draft with the current model.
// ExceedsCap is advisory; the gateway's quote is what the client enforces.
func (o *Orchestrator) Preview(draft string) Preview {
	o.mu.Lock()
	defer o.mu.Unlock()

	est := o.est.Estimate(draft, o.maxTokens, o.model.Pricing)
	return Preview{
		CostEstimate: est,
		Model:        o.model,
		SpendCap:     o.spendCap,
		ExceedsCap:   est.TotalCost > o.spendCap,
	}
}

// SetModel selects the model for subsequent exchanges.
func (o *Orchestrator) SetModel(id string) error {
	m, ok := config.LookupModel(id)
	if !ok {
		return fmt.Errorf("chat: unknown model %q", id)
	}
	o.mu.Lock()
	o.model = m
	o.mu.Unlock()
	return nil
}

// CycleModel advances to the next catalog model and returns it.
func (o *Orchestrator) CycleModel() config.Model {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.model = config.NextModel(o.model.ID)
	return o.model
}

// Model returns the current model.
func (o *Orchestrator) Model() config.Model {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.model
}

// SetDraft replaces the pending draft text.
func (o *Orchestrator) SetDraft(s string) {
	o.mu.Lock()
	o.draft = s
	o.mu.Unlock()
}

// ClearError dismisses LastError.
func (o *Orchestrator) ClearError() {
	o.mu.Lock()
	o.lastError = ""
	o.mu.Unlock()
}

// State returns a copy of the conversation state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()

	transcript := make([]Turn, len(o.transcript))
	copy(transcript, o.transcript)
	return State{
		Transcript:      transcript,
		Draft:           o.draft,
		Sending:         o.sending,
		LastError:       o.lastError,
		Model:           o.model.ID,
		MaxOutputTokens: o.maxTokens,
	}
}

// Spent returns the net USDC charged across the transcript's receipts.
func (o *Orchestrator) Spent() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()

	var total float64
	for _, t := range o.transcript {
		if t.Receipt != nil {
			total += t.Receipt.AmountCharged - t.Receipt.RefundAmount
		}
	}
	if total < 0 {
		return 0
	}
	return total
}

// Reset clears the transcript and any error. It does nothing while an
// exchange is in flight.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sending {
		return
	}
	o.transcript = nil
	o.lastError = ""
}
