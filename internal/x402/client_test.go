package x402

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/theirongolddev/paychat/internal/config"
	"github.com/theirongolddev/paychat/internal/logging"
	"github.com/theirongolddev/paychat/internal/wallet"
)

const (
	testKey   = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	testPayTo = "0x209693Bc6afc0C5328bA36FaF03C514EF312287C"
)

var testNow = time.Unix(1_700_000_000, 0)

type countingSigner struct {
	inner Signer
	calls atomic.Int32
}

func (s *countingSigner) Address() string { return s.inner.Address() }

func (s *countingSigner) Sign(digest []byte) ([]byte, error) {
	s.calls.Add(1)
	return s.inner.Sign(digest)
}

func newSigner(t *testing.T) *countingSigner {
	t.Helper()
	sess, err := wallet.Connect(testKey)
	if err != nil {
		t.Fatalf("wallet.Connect: %v", err)
	}
	return &countingSigner{inner: sess}
}

func newTestClient(url string, maxSpend float64) *Client {
	s := config.Settings{
		APIBaseURL:      url,
		Network:         config.BaseSepolia,
		MaxSpendUSDC:    maxSpend,
		RequestTimeout:  5 * time.Second,
		DefaultModel:    config.DefaultModelID,
		MaxOutputTokens: config.DefaultMaxOutputTokens,
	}
	return NewClient(s,
		WithLogger(logging.Discard()),
		WithClock(func() time.Time { return testNow }),
		WithNonceSource(bytes.NewReader(bytes.Repeat([]byte{0xab}, 64))),
	)
}

func challengeBody(amount, network, errText string) []byte {
	body, _ := json.Marshal(PaymentRequired{
		X402Version: Version,
		Error:       errText,
		Accepts: []PaymentRequirements{{
			Scheme:            SchemeExact,
			Network:           network,
			MaxAmountRequired: amount,
			Resource:          "http://gateway/v1/responses",
			MimeType:          "application/json",
			PayTo:             testPayTo,
			MaxTimeoutSeconds: 60,
			Asset:             config.BaseSepolia.USDC,
			Extra:             &TokenDomain{Name: "USDC", Version: "2"},
		}},
	})
	return body
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

var helloRequest = Request{Model: "gpt-4o-mini", Prompt: "Hello", MaxOutputTokens: 1000}

func TestSendPaysChallengeAndReturnsReceipt(t *testing.T) {
	signer := newSigner(t)
	receipt := Receipt{
		Settled:         true,
		AmountCharged:   0.0006003,
		RefundAmount:    0.0001,
		TransactionHash: "0x" + strings.Repeat("ab", 32),
		Network:         "base-sepolia",
	}

	var (
		requests atomic.Int32
		mu       sync.Mutex
		bodies   [][]byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if r.Method != http.MethodPost || r.URL.Path != "/v1/responses" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, b)
		mu.Unlock()

		header := r.Header.Get(HeaderPayment)
		if header == "" {
			writeJSON(w, http.StatusPaymentRequired, challengeBody("600300", "base-sepolia", "X-PAYMENT header is required"))
			return
		}

		payment, err := DecodePaymentHeader(header)
		if err != nil {
			t.Errorf("decoding X-PAYMENT: %v", err)
			writeJSON(w, http.StatusPaymentRequired, challengeBody("600300", "base-sepolia", "bad header"))
			return
		}
		verifyPayment(t, payment, signer.Address())

		w.Header().Set(HeaderPaymentResponse, EncodeReceipt(receipt))
		writeJSON(w, http.StatusOK, []byte(`{
			"choices": [{"message": {"role": "assistant", "content": "Hi there"}}],
			"usage": {"prompt_tokens": 2, "completion_tokens": 3, "total_tokens": 5}
		}`))
	}))
	defer srv.Close()

	res := newTestClient(srv.URL, 1.0).Send(context.Background(), helloRequest, signer)
	if !res.OK() {
		t.Fatalf("Send failed: %v", res.Err)
	}
	if got := requests.Load(); got != 2 {
		t.Fatalf("requests = %d, want 2", got)
	}
	if got := signer.calls.Load(); got != 1 {
		t.Fatalf("sign calls = %d, want 1", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if !bytes.Equal(bodies[0], bodies[1]) {
		t.Fatalf("retry body differs:\n%s\n%s", bodies[0], bodies[1])
	}

	var sent Request
	if err := json.Unmarshal(bodies[0], &sent); err != nil {
		t.Fatal(err)
	}
	if sent != helloRequest {
		t.Fatalf("sent request = %+v", sent)
	}

	resp := res.Response
	if resp.Content != "Hi there" {
		t.Errorf("Content = %q", resp.Content)
	}
	if !resp.Paid || resp.Requirement == nil || resp.Requirement.MaxAmountRequired != "600300" {
		t.Errorf("Paid = %v, Requirement = %+v", resp.Paid, resp.Requirement)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 5 {
		t.Errorf("Usage = %+v", resp.Usage)
	}
	if resp.Receipt == nil || *resp.Receipt != receipt {
		t.Errorf("Receipt = %+v, want %+v", resp.Receipt, receipt)
	}
}

func verifyPayment(t *testing.T, p *PaymentPayload, wantFrom string) {
	t.Helper()
	if p.X402Version != 1 || p.Scheme != SchemeExact || p.Network != "base-sepolia" {
		t.Errorf("payload envelope = %+v", p)
	}
	auth := p.Payload.Authorization
	if auth.From != wantFrom || !strings.EqualFold(auth.To, testPayTo) || auth.Value != "600300" {
		t.Errorf("authorization = %+v", auth)
	}
	if auth.ValidAfter != "1699999400" || auth.ValidBefore != "1700000060" {
		t.Errorf("validity window = [%s, %s]", auth.ValidAfter, auth.ValidBefore)
	}
	if auth.Nonce != "0x"+strings.Repeat("ab", 32) {
		t.Errorf("nonce = %s", auth.Nonce)
	}

	digest, err := AuthorizationDigest(auth, Domain{
		Name:              "USDC",
		Version:           "2",
		ChainID:           config.BaseSepolia.ChainID,
		VerifyingContract: config.BaseSepolia.USDC,
	})
	if err != nil {
		t.Errorf("AuthorizationDigest: %v", err)
		return
	}
	sig, err := hexutil.Decode(p.Payload.Signature)
	if err != nil || len(sig) != 65 {
		t.Errorf("signature %q: %v", p.Payload.Signature, err)
		return
	}
	sig[64] -= 27
	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		t.Errorf("SigToPub: %v", err)
		return
	}
	if got := crypto.PubkeyToAddress(*pub).Hex(); got != wantFrom {
		t.Errorf("signature recovers to %s, want %s", got, wantFrom)
	}
}

func TestSendDoesNotRetryOnServerError(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{"error field", `{"error": "upstream exploded"}`, "upstream exploded"},
		{"nested error", `{"error": {"message": "model overloaded"}}`, "model overloaded"},
		{"no body", ``, "request failed with status 500"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			signer := newSigner(t)
			var requests atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				requests.Add(1)
				writeJSON(w, http.StatusInternalServerError, []byte(c.body))
			}))
			defer srv.Close()

			res := newTestClient(srv.URL, 1.0).Send(context.Background(), helloRequest, signer)
			if res.OK() {
				t.Fatal("Send succeeded on a 500")
			}
			if !errors.Is(res.Err, ErrRequestFailed) {
				t.Fatalf("err = %v, want ErrRequestFailed", res.Err)
			}
			if res.Message() != c.wantMsg {
				t.Fatalf("Message = %q, want %q", res.Message(), c.wantMsg)
			}
			if requests.Load() != 1 || signer.calls.Load() != 0 {
				t.Fatalf("requests = %d, signs = %d; want 1, 0", requests.Load(), signer.calls.Load())
			}
		})
	}
}

func TestSendEnforcesSpendCap(t *testing.T) {
	signer := newSigner(t)
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		writeJSON(w, http.StatusPaymentRequired, challengeBody("1000000", "base-sepolia", "X-PAYMENT header is required"))
	}))
	defer srv.Close()

	res := newTestClient(srv.URL, 0.5).Send(context.Background(), helloRequest, signer)
	if !errors.Is(res.Err, ErrSpendCapExceeded) {
		t.Fatalf("err = %v, want ErrSpendCapExceeded", res.Err)
	}
	if signer.calls.Load() != 0 {
		t.Fatalf("signer invoked %d times", signer.calls.Load())
	}
	if requests.Load() != 1 {
		t.Fatalf("requests = %d, want 1", requests.Load())
	}
	if !strings.Contains(res.Message(), "1.000000 USDC") || !strings.Contains(res.Message(), "0.500000 USDC") {
		t.Fatalf("Message = %q", res.Message())
	}
}

func TestSendAllowsPaymentEqualToCap(t *testing.T) {
	signer := newSigner(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(HeaderPayment) == "" {
			writeJSON(w, http.StatusPaymentRequired, challengeBody("1000000", "base-sepolia", ""))
			return
		}
		writeJSON(w, http.StatusOK, []byte(`{"text": "ok"}`))
	}))
	defer srv.Close()

	res := newTestClient(srv.URL, 1.0).Send(context.Background(), helloRequest, signer)
	if !res.OK() {
		t.Fatalf("Send failed: %v", res.Err)
	}
	if res.Response.Receipt != nil {
		t.Fatal("no receipt header should mean no receipt")
	}
}

func TestSendSecondChallengeFails(t *testing.T) {
	signer := newSigner(t)
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		errText := "X-PAYMENT header is required"
		if r.Header.Get(HeaderPayment) != "" {
			errText = "Payment verification failed"
		}
		writeJSON(w, http.StatusPaymentRequired, challengeBody("1000", "base-sepolia", errText))
	}))
	defer srv.Close()

	res := newTestClient(srv.URL, 1.0).Send(context.Background(), helloRequest, signer)
	if !errors.Is(res.Err, ErrChallengeRetryFailed) {
		t.Fatalf("err = %v, want ErrChallengeRetryFailed", res.Err)
	}
	if res.Message() != "Payment verification failed" {
		t.Fatalf("Message = %q", res.Message())
	}
	if requests.Load() != 2 || signer.calls.Load() != 1 {
		t.Fatalf("requests = %d, signs = %d; want 2, 1", requests.Load(), signer.calls.Load())
	}
}

func TestSendRetryServerError(t *testing.T) {
	signer := newSigner(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(HeaderPayment) == "" {
			writeJSON(w, http.StatusPaymentRequired, challengeBody("1000", "base-sepolia", ""))
			return
		}
		writeJSON(w, http.StatusBadGateway, []byte(`{"detail": "upstream unavailable"}`))
	}))
	defer srv.Close()

	res := newTestClient(srv.URL, 1.0).Send(context.Background(), helloRequest, signer)
	if !errors.Is(res.Err, ErrChallengeRetryFailed) {
		t.Fatalf("err = %v, want ErrChallengeRetryFailed", res.Err)
	}
	if res.Message() != "upstream unavailable" {
		t.Fatalf("Message = %q", res.Message())
	}
}

func TestSendWithoutSignerMakesNoRequest(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))
	defer srv.Close()

	res := newTestClient(srv.URL, 1.0).Send(context.Background(), helloRequest, nil)
	if !errors.Is(res.Err, ErrNotConnected) {
		t.Fatalf("err = %v, want ErrNotConnected", res.Err)
	}
	if requests.Load() != 0 {
		t.Fatalf("requests = %d, want 0", requests.Load())
	}
}

func TestSendDisconnectedSessionMakesNoRequest(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		writeJSON(w, http.StatusPaymentRequired, challengeBody("1000", "base-sepolia", ""))
	}))
	defer srv.Close()

	sess, err := wallet.Connect(testKey)
	if err != nil {
		t.Fatalf("wallet.Connect: %v", err)
	}
	sess.Disconnect()

	res := newTestClient(srv.URL, 1.0).Send(context.Background(), helloRequest, sess)
	if !errors.Is(res.Err, ErrNotConnected) {
		t.Fatalf("err = %v, want ErrNotConnected", res.Err)
	}
	if requests.Load() != 0 {
		t.Fatalf("requests = %d, want 0", requests.Load())
	}
}

func TestSendNonFiniteCapFailsBeforeSigning(t *testing.T) {
	for name, limit := range map[string]float64{"nan": math.NaN(), "inf": math.Inf(1)} {
		t.Run(name, func(t *testing.T) {
			signer := newSigner(t)
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusPaymentRequired, challengeBody("1000", "base-sepolia", ""))
			}))
			defer srv.Close()

			res := newTestClient(srv.URL, limit).Send(context.Background(), helloRequest, signer)
			if !errors.Is(res.Err, ErrInvalidSpendCap) {
				t.Fatalf("err = %v, want ErrInvalidSpendCap", res.Err)
			}
			if signer.calls.Load() != 0 {
				t.Fatalf("signer invoked %d times", signer.calls.Load())
			}
		})
	}
}

func TestSendTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	res := newTestClient(url, 1.0).Send(context.Background(), helloRequest, newSigner(t))
	if !errors.Is(res.Err, ErrTransport) {
		t.Fatalf("err = %v, want ErrTransport", res.Err)
	}
	if res.Message() != "network error: could not reach the gateway" {
		t.Fatalf("Message = %q", res.Message())
	}
}

func TestSendTimesOutPerAttempt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 1.0)
	c.timeout = 50 * time.Millisecond

	start := time.Now()
	res := c.Send(context.Background(), helloRequest, newSigner(t))
	if !errors.Is(res.Err, ErrTransport) {
		t.Fatalf("err = %v, want ErrTransport", res.Err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("timeout not applied, took %v", time.Since(start))
	}
}

func TestSendMalformedChallenge(t *testing.T) {
	cases := map[string][]byte{
		"not json":      []byte("payment required"),
		"wrong network": challengeBody("1000", "base", ""),
		"no accepts":    []byte(`{"x402Version": 1, "accepts": []}`),
		"bad amount":    challengeBody("one dollar", "base-sepolia", ""),
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			signer := newSigner(t)
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusPaymentRequired, body)
			}))
			defer srv.Close()

			res := newTestClient(srv.URL, 1.0).Send(context.Background(), helloRequest, signer)
			if !errors.Is(res.Err, ErrMalformedChallenge) {
				t.Fatalf("err = %v, want ErrMalformedChallenge", res.Err)
			}
			if signer.calls.Load() != 0 {
				t.Fatal("signer invoked for an unpayable challenge")
			}
		})
	}
}

func TestSendUnpaidSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(HeaderPayment) != "" {
			t.Error("payment header sent without a challenge")
		}
		writeJSON(w, http.StatusOK, []byte(`{"output": [{"content": [{"type": "output_text", "text": "free"}]}]}`))
	}))
	defer srv.Close()

	res := newTestClient(srv.URL, 1.0).Send(context.Background(), helloRequest, newSigner(t))
	if !res.OK() {
		t.Fatalf("Send failed: %v", res.Err)
	}
	if res.Response.Paid || res.Response.Content != "free" {
		t.Fatalf("Response = %+v", res.Response)
	}
}

func TestSendNonJSONSuccessStillSurfacesContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(HeaderPaymentResponse, "%%%not-base64%%%")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("<html>oops</html>"))
	}))
	defer srv.Close()

	res := newTestClient(srv.URL, 1.0).Send(context.Background(), helloRequest, newSigner(t))
	if !res.OK() {
		t.Fatalf("Send failed: %v", res.Err)
	}
	if res.Response.Content != NoContent {
		t.Fatalf("Content = %q, want sentinel", res.Response.Content)
	}
	if res.Response.Receipt != nil || res.Response.Body != nil {
		t.Fatalf("Receipt = %+v, Body = %s", res.Response.Receipt, res.Response.Body)
	}
}

func TestHealth(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.WriteHeader(int(status.Load()))
	}))

	c := newTestClient(srv.URL, 1.0)
	if !c.Health(context.Background()) {
		t.Fatal("Health = false for 200")
	}
	status.Store(http.StatusServiceUnavailable)
	if c.Health(context.Background()) {
		t.Fatal("Health = true for 503")
	}

	srv.Close()
	if c.Health(context.Background()) {
		t.Fatal("Health = true for an unreachable gateway")
	}
}
