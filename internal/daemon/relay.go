package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/theirongolddev/paychat/internal/config"
	"github.com/theirongolddev/paychat/internal/estimate"
	"github.com/theirongolddev/paychat/internal/store"
	"github.com/theirongolddev/paychat/internal/x402"
)

const maxPromptBody = 1 << 20

// PromptRequest is the body of POST /v1/prompt. Empty model and
// max_output_tokens fall back to the daemon defaults.
type PromptRequest struct {
	Model           string `json:"model"`
	Prompt          string `json:"prompt"`
	MaxOutputTokens int    `json:"max_output_tokens"`
}

// PromptResponse is the successful reply of POST /v1/prompt.
type PromptResponse struct {
	ID       string                `json:"id"`
	Model    string                `json:"model"`
	Content  string                `json:"content"`
	Paid     bool                  `json:"paid"`
	Usage    *x402.Usage           `json:"usage,omitempty"`
	Receipt  *x402.Receipt         `json:"receipt,omitempty"`
	Estimate estimate.CostEstimate `json:"estimate"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Service) handlePrompt(w http.ResponseWriter, r *http.Request) {
	var in PromptRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPromptBody))
	if err := dec.Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	prompt := strings.TrimSpace(in.Prompt)
	if prompt == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "prompt is required"})
		return
	}
	modelID := in.Model
	if modelID == "" {
		modelID = s.cfg.DefaultModel
	}
	if modelID == "" {
		modelID = config.DefaultModelID
	}
	if _, ok := config.LookupModel(modelID); !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unknown model " + modelID})
		return
	}
	if s.signer == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "wallet required"})
		return
	}

	maxTokens := in.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = s.cfg.MaxOutputTokens
	}
	if maxTokens <= 0 {
		maxTokens = config.DefaultMaxOutputTokens
	}

	est, _ := estimate.ForModel(modelID, prompt, maxTokens)
	req := x402.Request{Model: modelID, Prompt: prompt, MaxOutputTokens: maxTokens}

	started := time.Now()
	res := s.gateway.Send(r.Context(), req, s.signer)
	elapsed := time.Since(started)

	id := uuid.NewString()
	info := s.recordExchange(r.Context(), id, req, started, elapsed, est, res)

	if !res.OK() {
		writeJSON(w, statusFor(res.Err), errorResponse{Error: info.Error})
		return
	}

	resp := res.Response
	writeJSON(w, http.StatusOK, PromptResponse{
		ID:       id,
		Model:    modelID,
		Content:  resp.Content,
		Paid:     resp.Paid,
		Usage:    resp.Usage,
		Receipt:  resp.Receipt,
		Estimate: est,
	})
}

// recordExchange writes the exchange to the ledger and metrics and publishes
// an exchange event.
func (s *Service) recordExchange(ctx context.Context, id string, req x402.Request, started time.Time, elapsed time.Duration, est estimate.CostEstimate, res x402.Result) ExchangeInfo {
	info := ExchangeInfo{
		Model:      req.Model,
		OK:         res.OK(),
		DurationMs: elapsed.Milliseconds(),
	}
	e := store.Exchange{
		ID:            id,
		At:            started,
		Model:         req.Model,
		Status:        store.StatusOK,
		EstimatedCost: est.TotalCost,
		Duration:      elapsed,
	}

	if res.OK() {
		resp := res.Response
		info.Paid = resp.Paid
		e.Paid = resp.Paid
		if u := resp.Usage; u != nil {
			e.PromptTokens = u.PromptTokens
			e.CompletionTokens = u.CompletionTokens
			e.TotalTokens = u.TotalTokens
		}
		if rc := resp.Receipt; rc != nil {
			info.ChargedUSDC = rc.AmountCharged
			info.RefundUSDC = rc.RefundAmount
			info.TransactionHash = rc.TransactionHash
			e.AmountCharged = rc.AmountCharged
			e.RefundAmount = rc.RefundAmount
			e.TransactionHash = rc.TransactionHash
			e.Network = rc.Network
		}
	} else {
		info.Error = res.Message()
		if info.Error == "" {
			info.Error = "request failed"
		}
		e.Status = store.StatusFailed
		e.Error = info.Error
	}

	s.metrics.observeExchange(req.Model, info.OK, info.ChargedUSDC, info.RefundUSDC, elapsed)

	if s.ledger != nil {
		if err := s.ledger.RecordExchange(context.WithoutCancel(ctx), e); err != nil {
			s.log.Warn("recording exchange", "error", err)
		}
	}

	now := time.Now()
	s.mu.Lock()
	prev := s.snapshot
	snap := prev
	snap.At = now
	snap.Exchanges++
	if info.OK {
		if info.Paid {
			snap.Paid++
		}
		snap.ChargedUSDC += info.ChargedUSDC
		snap.RefundedUSDC += info.RefundUSDC
		snap.Tokens += int64(e.TotalTokens)
	} else {
		snap.Failures++
	}
	s.snapshot = snap
	s.hasSnapshot = true
	s.nextEventID++
	ev := Event{
		ID:        s.nextEventID,
		Type:      EventExchange,
		Timestamp: now,
		Snapshot:  snap,
		Delta:     diffSnapshots(prev, snap),
		Exchange:  &info,
	}
	s.mu.Unlock()
	s.publishEvent(ev)

	if info.OK {
		s.log.Info("relayed exchange",
			"model", req.Model,
			"paid", info.Paid,
			"charged", info.ChargedUSDC,
			"duration", elapsed,
		)
	}
	return info
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, x402.ErrNotConnected):
		return http.StatusServiceUnavailable
	case errors.Is(err, x402.ErrSpendCapExceeded):
		return http.StatusUnprocessableEntity
	case errors.Is(err, x402.ErrInvalidSpendCap):
		return http.StatusInternalServerError
	default:
		return http.StatusBadGateway
	}
}
