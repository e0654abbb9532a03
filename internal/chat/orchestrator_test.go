package chat

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/theirongolddev/paychat/internal/config"
	"github.com/theirongolddev/paychat/internal/logging"
	"github.com/theirongolddev/paychat/internal/store"
	"github.com/theirongolddev/paychat/internal/wallet"
	"github.com/theirongolddev/paychat/internal/x402"
)

const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

const challenge = `{
	"x402Version": 1,
	"error": "X-PAYMENT header is required",
	"accepts": [{
		"scheme": "exact",
		"network": "base-sepolia",
		"maxAmountRequired": "600300",
		"resource": "http://gateway/v1/responses",
		"mimeType": "application/json",
		"payTo": "0x209693Bc6afc0C5328bA36FaF03C514EF312287C",
		"maxTimeoutSeconds": 60,
		"asset": "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		"extra": {"name": "USDC", "version": "2"}
	}]
}`

// gateway is a fake inference endpoint. A nil handler answers with a 402
// challenge first and a paid completion on retry.
type gateway struct {
	srv      *httptest.Server
	requests atomic.Int32
}

func newGateway(t *testing.T, handler http.HandlerFunc) *gateway {
	t.Helper()
	g := &gateway{}
	if handler == nil {
		handler = payThenAnswer
	}
	g.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.requests.Add(1)
		handler(w, r)
	}))
	t.Cleanup(g.srv.Close)
	return g
}

func payThenAnswer(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Header.Get(x402.HeaderPayment) == "" {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(challenge))
		return
	}
	w.Header().Set(x402.HeaderPaymentResponse, x402.EncodeReceipt(x402.Receipt{
		Settled:         true,
		AmountCharged:   0.6003,
		RefundAmount:    0.1,
		TransactionHash: "0xfeed",
		Network:         "base-sepolia",
	}))
	_, _ = w.Write([]byte(`{
		"choices": [{"message": {"content": "Hi!"}}],
		"usage": {"prompt_tokens": 2, "completion_tokens": 1, "total_tokens": 3}
	}`))
}

func (g *gateway) client() *x402.Client {
	return x402.NewClient(config.Settings{
		APIBaseURL:     g.srv.URL,
		Network:        config.BaseSepolia,
		MaxSpendUSDC:   1.0,
		RequestTimeout: 5 * time.Second,
	}, x402.WithLogger(logging.Discard()))
}

func connectedManager(t *testing.T) *wallet.Manager {
	t.Helper()
	var m wallet.Manager
	if _, err := m.Connect(testKey); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return &m
}

func openLedger(t *testing.T) *store.Ledger {
	t.Helper()
	l, err := store.Open()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestSubmitBlankDraftIsNoop(t *testing.T) {
	g := newGateway(t, nil)
	o := New(g.client(), FromManager(connectedManager(t)), WithLogger(logging.Discard()))

	for _, draft := range []string{"", "   ", "\n\t"} {
		if err := o.Submit(context.Background(), draft); err != nil {
			t.Fatalf("Submit(%q) = %v", draft, err)
		}
	}
	if g.requests.Load() != 0 || len(o.State().Transcript) != 0 {
		t.Fatal("blank draft reached the gateway")
	}
}

func TestSubmitWithoutWallet(t *testing.T) {
	g := newGateway(t, nil)
	o := New(g.client(), FromManager(&wallet.Manager{}), WithLogger(logging.Discard()))

	err := o.Submit(context.Background(), "Hello")
	if !errors.Is(err, ErrWalletRequired) {
		t.Fatalf("err = %v, want ErrWalletRequired", err)
	}

	st := o.State()
	if len(st.Transcript) != 0 {
		t.Fatalf("transcript = %+v, want empty", st.Transcript)
	}
	if st.LastError != "wallet required" {
		t.Fatalf("LastError = %q", st.LastError)
	}
	if st.Sending {
		t.Fatal("Sending left true")
	}
	if n := g.requests.Load(); n != 0 {
		t.Fatalf("gateway saw %d requests, want 0", n)
	}
}

func TestSubmitAfterDisconnect(t *testing.T) {
	g := newGateway(t, nil)
	m := connectedManager(t)
	m.Disconnect()
	o := New(g.client(), FromManager(m), WithLogger(logging.Discard()))

	if err := o.Submit(context.Background(), "Hello"); !errors.Is(err, ErrWalletRequired) {
		t.Fatalf("err = %v, want ErrWalletRequired", err)
	}
	if g.requests.Load() != 0 {
		t.Fatal("request sent after disconnect")
	}
}

func TestSubmitPaidExchange(t *testing.T) {
	g := newGateway(t, nil)
	ledger := openLedger(t)
	o := New(g.client(), FromManager(connectedManager(t)),
		WithLedger(ledger),
		WithLogger(logging.Discard()),
	)

	if err := o.Submit(context.Background(), "Hello"); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	st := o.State()
	if len(st.Transcript) != 2 {
		t.Fatalf("transcript has %d turns, want 2", len(st.Transcript))
	}
	user, reply := st.Transcript[0], st.Transcript[1]
	if user.Role != RoleUser || user.Content != "Hello" {
		t.Fatalf("user turn = %+v", user)
	}
	if reply.Role != RoleAssistant || reply.Content != "Hi!" {
		t.Fatalf("assistant turn = %+v", reply)
	}
	if reply.Receipt == nil || reply.Receipt.TransactionHash != "0xfeed" {
		t.Fatalf("receipt = %+v", reply.Receipt)
	}
	if reply.Usage == nil || reply.Usage.TotalTokens != 3 {
		t.Fatalf("usage = %+v", reply.Usage)
	}
	if st.Draft != "" || st.LastError != "" || st.Sending {
		t.Fatalf("state = %+v", st)
	}
	if g.requests.Load() != 2 {
		t.Fatalf("requests = %d, want 2", g.requests.Load())
	}
	if math.Abs(o.Spent()-0.5003) > 1e-9 {
		t.Fatalf("Spent = %g", o.Spent())
	}

	totals, err := ledger.Totals(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if totals.Exchanges != 1 || totals.Paid != 1 || totals.Failures != 0 || totals.Tokens != 3 {
		t.Fatalf("ledger totals = %+v", totals)
	}
}

func TestSubmitServerErrorRollsBack(t *testing.T) {
	g := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error": "upstream exploded"}`))
	})
	ledger := openLedger(t)
	o := New(g.client(), FromManager(connectedManager(t)),
		WithLedger(ledger),
		WithLogger(logging.Discard()),
	)

	draft := "  Hello there "
	err := o.Submit(context.Background(), draft)
	if !errors.Is(err, x402.ErrRequestFailed) {
		t.Fatalf("err = %v, want ErrRequestFailed", err)
	}

	st := o.State()
	if len(st.Transcript) != 0 {
		t.Fatalf("transcript = %+v, want rolled back", st.Transcript)
	}
	if st.Draft != draft {
		t.Fatalf("Draft = %q, want %q", st.Draft, draft)
	}
	if st.LastError != "upstream exploded" {
		t.Fatalf("LastError = %q", st.LastError)
	}
	if g.requests.Load() != 1 {
		t.Fatalf("requests = %d, want 1 (no retry)", g.requests.Load())
	}

	totals, _ := ledger.Totals(context.Background())
	if totals.Failures != 1 {
		t.Fatalf("ledger totals = %+v", totals)
	}
}

func TestSubmitRollbackKeepsEarlierTurns(t *testing.T) {
	var fail atomic.Bool
	g := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		payThenAnswer(w, r)
	})
	o := New(g.client(), FromManager(connectedManager(t)), WithLogger(logging.Discard()))

	if err := o.Submit(context.Background(), "first"); err != nil {
		t.Fatal(err)
	}
	fail.Store(true)
	if err := o.Submit(context.Background(), "second"); err == nil {
		t.Fatal("expected failure")
	}

	st := o.State()
	if len(st.Transcript) != 2 || st.Transcript[0].Content != "first" {
		t.Fatalf("transcript = %+v", st.Transcript)
	}
	if st.Draft != "second" || st.LastError != "request failed with status 502" {
		t.Fatalf("state = %+v", st)
	}
}

func TestSubmitTransportFailure(t *testing.T) {
	g := newGateway(t, nil)
	c := g.client()
	g.srv.Close()

	o := New(c, FromManager(connectedManager(t)), WithLogger(logging.Discard()))
	if err := o.Submit(context.Background(), "Hello"); !errors.Is(err, x402.ErrTransport) {
		t.Fatalf("err = %v, want ErrTransport", err)
	}
	st := o.State()
	if st.LastError != "network error: could not reach the gateway" || st.Draft != "Hello" || len(st.Transcript) != 0 {
		t.Fatalf("state = %+v", st)
	}
}

// blockingSender holds each exchange until release is closed.
type blockingSender struct {
	entered chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (b *blockingSender) Send(ctx context.Context, req x402.Request, signer x402.Signer) x402.Result {
	b.calls.Add(1)
	b.entered <- struct{}{}
	<-b.release
	return x402.Result{Response: &x402.Response{Status: 200, Content: "done"}}
}

type staticWallet struct{ signer x402.Signer }

func (w staticWallet) Active() (x402.Signer, bool) { return w.signer, w.signer != nil }

func TestSubmitRejectsConcurrentSubmission(t *testing.T) {
	sess, err := wallet.Connect(testKey)
	if err != nil {
		t.Fatal(err)
	}
	sender := &blockingSender{entered: make(chan struct{}, 1), release: make(chan struct{})}
	o := New(sender, staticWallet{signer: sess}, WithLogger(logging.Discard()))

	done := make(chan error, 1)
	go func() { done <- o.Submit(context.Background(), "first") }()
	<-sender.entered

	st := o.State()
	if !st.Sending {
		t.Fatal("Sending = false during an exchange")
	}
	if len(st.Transcript) != 1 || st.Draft != "" {
		t.Fatalf("optimistic state = %+v", st)
	}

	if err := o.Submit(context.Background(), "second"); !errors.Is(err, ErrBusy) {
		t.Fatalf("second Submit = %v, want ErrBusy", err)
	}
	if got := len(o.State().Transcript); got != 1 {
		t.Fatalf("busy submit changed transcript to %d turns", got)
	}

	close(sender.release)
	if err := <-done; err != nil {
		t.Fatalf("first Submit = %v", err)
	}
	if sender.calls.Load() != 1 {
		t.Fatalf("sender called %d times", sender.calls.Load())
	}
	if st := o.State(); st.Sending || len(st.Transcript) != 2 {
		t.Fatalf("final state = %+v", st)
	}
}

func TestPreview(t *testing.T) {
	o := New(nil, nil, WithModel("gpt-4o-mini"), WithMaxOutputTokens(1000), WithSpendCap(1.0))

	p := o.Preview("Hello")
	if p.InputTokens != 2 || p.OutputTokens != 1000 {
		t.Fatalf("tokens = %d/%d", p.InputTokens, p.OutputTokens)
	}
	if math.Abs(p.TotalCost-0.0006003) > 1e-12 {
		t.Fatalf("TotalCost = %g", p.TotalCost)
	}
	if p.ExceedsCap || p.Model.ID != "gpt-4o-mini" {
		t.Fatalf("preview = %+v", p)
	}

	tight := New(nil, nil, WithSpendCap(0.0001))
	if !tight.Preview("Hello").ExceedsCap {
		t.Fatal("ExceedsCap = false for a cap below the estimate")
	}
}

func TestNewFromSettings(t *testing.T) {
	s := config.Settings{DefaultModel: "gpt-4o", MaxOutputTokens: 256, MaxSpendUSDC: 0.25}
	o := NewFromSettings(nil, nil, s)
	st := o.State()
	if st.Model != "gpt-4o" || st.MaxOutputTokens != 256 || o.Preview("x").SpendCap != 0.25 {
		t.Fatalf("state = %+v", st)
	}
}

func TestSetModel(t *testing.T) {
	o := New(nil, nil)
	if err := o.SetModel("no-such-model"); err == nil {
		t.Fatal("unknown model accepted")
	}
	if err := o.SetModel("GPT-4O"); err != nil {
		t.Fatal(err)
	}
	if o.Model().ID != "gpt-4o" {
		t.Fatalf("Model = %s", o.Model().ID)
	}

	next := o.CycleModel()
	if next.ID == "gpt-4o" || o.State().Model != next.ID {
		t.Fatalf("CycleModel = %s", next.ID)
	}
}

func TestResetClearsTranscript(t *testing.T) {
	g := newGateway(t, nil)
	o := New(g.client(), FromManager(connectedManager(t)), WithLogger(logging.Discard()))
	if err := o.Submit(context.Background(), "Hello"); err != nil {
		t.Fatal(err)
	}
	o.Reset()
	if st := o.State(); len(st.Transcript) != 0 || st.LastError != "" {
		t.Fatalf("state after Reset = %+v", st)
	}
}

func TestStateReturnsCopy(t *testing.T) {
	g := newGateway(t, nil)
	o := New(g.client(), FromManager(connectedManager(t)), WithLogger(logging.Discard()))
	_ = o.Submit(context.Background(), "Hello")

	st := o.State()
	st.Transcript[0].Content = "mutated"
	if o.State().Transcript[0].Content != "Hello" {
		t.Fatal("State exposed internal transcript")
	}
}
