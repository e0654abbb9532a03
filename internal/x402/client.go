// Package x402 implements the client side of the x402 HTTP 402 payment
// handshake against an inference gateway.
package x402

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/theirongolddev/paychat/internal/config"
)

const (
	responsesPath = "/v1/responses"
	healthPath    = "/health"
	healthTimeout = 5 * time.Second
	maxBodySize   = 4 << 20 // 4 MB
	userAgent     = "paychat/1.0"

	transportMessage = "network error: could not reach the gateway"
)

var (
	// ErrNotConnected indicates Send was called without an active signer.
	ErrNotConnected = errors.New("x402: wallet not connected")
	// ErrSpendCapExceeded indicates the challenge asked for more than the configured ceiling.
	ErrSpendCapExceeded = errors.New("x402: spend cap exceeded")
	// ErrChallengeRetryFailed indicates the paid retry did not succeed.
	ErrChallengeRetryFailed = errors.New("x402: payment retry failed")
	// ErrRequestFailed indicates a non-402 error status on the initial attempt.
	ErrRequestFailed = errors.New("x402: request failed")
	// ErrMalformedChallenge indicates a 402 body that could not be paid.
	ErrMalformedChallenge = errors.New("x402: malformed payment challenge")
	// ErrInvalidSpendCap indicates a configured ceiling that is not a finite amount.
	ErrInvalidSpendCap = errors.New("x402: invalid spend cap")
	// ErrTransport indicates a network-level failure.
	ErrTransport = errors.New("x402: transport error")
)

// StatusError is an error status returned by the gateway. Message is the
// server-supplied error text, or a generic description of the status.
type StatusError struct {
	Kind    error
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%v: %s", e.Kind, e.Message)
}

func (e *StatusError) Unwrap() error { return e.Kind }

// Message returns a human-readable description of a failed result.
// Server error text is passed through verbatim; transport failures collapse
// to a generic message.
func (r Result) Message() string {
	if r.Err == nil {
		return ""
	}
	var se *StatusError
	switch {
	case errors.As(r.Err, &se):
		return se.Message
	case errors.Is(r.Err, ErrTransport):
		return transportMessage
	default:
		return strings.TrimPrefix(r.Err.Error(), "x402: ")
	}
}

// Client sends inference requests and pays 402 challenges with a Signer.
type Client struct {
	baseURL  string
	network  config.Network
	maxSpend float64
	timeout  time.Duration

	http   *http.Client
	log    *slog.Logger
	now    func() time.Time
	random io.Reader
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithClock sets the time source used for authorization validity windows.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithNonceSource sets the reader authorization nonces are drawn from.
func WithNonceSource(r io.Reader) Option {
	return func(c *Client) { c.random = r }
}

// NewClient creates a client for the gateway and network in s.
func NewClient(s config.Settings, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(s.APIBaseURL, "/"),
		network:  s.Network,
		maxSpend: s.MaxSpendUSDC,
		timeout:  s.RequestTimeout,
		http:     &http.Client{},
		log:      slog.Default(),
		now:      time.Now,
		random:   rand.Reader,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Network returns the settlement network the client pays on.
func (c *Client) Network() config.Network { return c.network }

// MaxSpend returns the per-request spend ceiling in USDC.
func (c *Client) MaxSpend() float64 { return c.maxSpend }

// Send performs one logical exchange. A 402 challenge is paid with signer and
// the request retried exactly once. Send never returns a bare error; every
// failure is reported through Result.Err.
func (c *Client) Send(ctx context.Context, req Request, signer Signer) Result {
	if !signerReady(signer) {
		return Result{Err: ErrNotConnected}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return Result{Err: fmt.Errorf("x402: encoding request: %w", err)}
	}

	first, err := c.post(ctx, body, "")
	if err != nil {
		return c.fail(req, err)
	}

	switch {
	case isSuccess(first.status):
		return Result{Response: c.buildResponse(first, nil)}
	case first.status != http.StatusPaymentRequired:
		return c.fail(req, &StatusError{
			Kind:    ErrRequestFailed,
			Status:  first.status,
			Message: errorText(first.body, first.status),
		})
	}

	requirement, err := c.selectRequirement(first.body)
	if err != nil {
		return c.fail(req, err)
	}
	if err := c.checkCap(requirement); err != nil {
		return c.fail(req, err)
	}

	c.log.Debug("paying challenge",
		"model", req.Model,
		"network", requirement.Network,
		"amount", requirement.MaxAmountRequired,
		"pay_to", requirement.PayTo,
	)

	header, err := c.authorize(requirement, signer)
	if err != nil {
		return c.fail(req, err)
	}

	retry, err := c.post(ctx, body, header)
	if err != nil {
		return c.fail(req, err)
	}
	if !isSuccess(retry.status) {
		msg := errorText(retry.body, retry.status)
		if retry.status == http.StatusPaymentRequired && !hasErrorText(retry.body) {
			msg = "payment was not accepted by the gateway"
		}
		return c.fail(req, &StatusError{
			Kind:    ErrChallengeRetryFailed,
			Status:  retry.status,
			Message: msg,
		})
	}

	return Result{Response: c.buildResponse(retry, &requirement)}
}

// Health reports whether the gateway answers its health endpoint with a 2xx
// status. Every failure collapses to false.
func (c *Client) Health(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+healthPath, nil)
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug("health check failed", "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))

	return isSuccess(resp.StatusCode)
}

type attempt struct {
	status int
	header http.Header
	body   []byte
}

// post issues one attempt. payment, when non-empty, is sent as X-PAYMENT.
func (c *Client) post(ctx context.Context, body []byte, payment string) (*attempt, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+responsesPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("x402: creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if payment != "" {
		req.Header.Set(HeaderPayment, payment)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrTransport, err)
	}

	return &attempt{status: resp.StatusCode, header: resp.Header, body: data}, nil
}

func (c *Client) buildResponse(a *attempt, paid *PaymentRequirements) *Response {
	resp := &Response{
		Status:      a.status,
		Content:     ExtractContent(a.body),
		Usage:       ParseUsage(a.body),
		Paid:        paid != nil,
		Requirement: paid,
	}
	if json.Valid(a.body) {
		resp.Body = json.RawMessage(a.body)
	}

	if h := a.header.Get(HeaderPaymentResponse); h != "" {
		resp.Receipt = ParseReceipt(h)
		if resp.Receipt == nil {
			c.log.Debug("ignoring malformed payment receipt", "length", len(h))
		}
	}
	return resp
}

func (c *Client) fail(req Request, err error) Result {
	c.log.Warn("exchange failed", "model", req.Model, "error", err)
	return Result{Err: err}
}

// selectRequirement picks the first "exact" requirement on the client's network.
func (c *Client) selectRequirement(body []byte) (PaymentRequirements, error) {
	var challenge PaymentRequired
	if err := json.Unmarshal(body, &challenge); err != nil {
		return PaymentRequirements{}, fmt.Errorf("%w: %v", ErrMalformedChallenge, err)
	}
	for _, r := range challenge.Accepts {
		if r.Scheme == SchemeExact && r.Network == c.network.Name {
			return r, nil
		}
	}
	return PaymentRequirements{}, fmt.Errorf("%w: no %q requirement for network %s",
		ErrMalformedChallenge, SchemeExact, c.network.Name)
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

// errorText returns the gateway's error message from an error body, or a
// generic description of the status.
func errorText(body []byte, status int) string {
	if msg := serverError(body); msg != "" {
		return msg
	}
	return fmt.Sprintf("request failed with status %d", status)
}

func hasErrorText(body []byte) bool {
	return serverError(body) != ""
}

// serverError understands {"error": "..."}, {"error": {"message": "..."}}
// and {"detail": "..."}.
func serverError(body []byte) string {
	var env struct {
		Error  json.RawMessage `json:"error"`
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return ""
	}

	var s string
	if len(env.Error) > 0 {
		if err := json.Unmarshal(env.Error, &s); err == nil && s != "" {
			return s
		}
		var nested struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(env.Error, &nested); err == nil && nested.Message != "" {
			return nested.Message
		}
	}
	if len(env.Detail) > 0 {
		if err := json.Unmarshal(env.Detail, &s); err == nil && s != "" {
			return s
		}
	}
	return ""
}
