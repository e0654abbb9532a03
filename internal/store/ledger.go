// Package store provides an in-memory SQLite ledger of paid exchanges.
// Nothing is written to disk; the ledger lives as long as the process.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite" // register sqlite driver
)

// timeLayout is fixed-width so that text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Exchange statuses.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Exchange is one recorded request/response round, paid or not.
type Exchange struct {
	ID               string
	At               time.Time
	Model            string
	Status           string
	Error            string
	Paid             bool
	EstimatedCost    float64
	AmountCharged    float64
	RefundAmount     float64
	TransactionHash  string
	Network          string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Duration         time.Duration
}

// Totals aggregates every exchange in the ledger.
type Totals struct {
	Exchanges     int     `json:"exchanges" yaml:"exchanges"`
	Failures      int     `json:"failures" yaml:"failures"`
	Paid          int     `json:"paid" yaml:"paid"`
	EstimatedCost float64 `json:"estimated_cost" yaml:"estimated_cost"`
	Charged       float64 `json:"charged" yaml:"charged"`
	Refunded      float64 `json:"refunded" yaml:"refunded"`
	Tokens        int64   `json:"tokens" yaml:"tokens"`
}

// Net returns the amount charged less refunds, never negative.
func (t Totals) Net() float64 {
	if n := t.Charged - t.Refunded; n > 0 {
		return n
	}
	return 0
}

// ModelTotals is the per-model slice of Totals.
type ModelTotals struct {
	Model     string  `json:"model" yaml:"model"`
	Exchanges int     `json:"exchanges" yaml:"exchanges"`
	Charged   float64 `json:"charged" yaml:"charged"`
	Refunded  float64 `json:"refunded" yaml:"refunded"`
	Tokens    int64   `json:"tokens" yaml:"tokens"`
}

// Ledger records exchanges in an in-memory SQLite database.
type Ledger struct {
	db *sql.DB
}

// Open creates an empty in-memory ledger.
func Open() (*Ledger, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("opening ledger db: %w", err)
	}
	// Each connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Ledger{db: db}, nil
}

// Close releases the database. The recorded exchanges are discarded.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// RecordExchange stores e. A missing ID or timestamp is filled in.
func (l *Ledger) RecordExchange(ctx context.Context, e Exchange) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	if e.Status == "" {
		e.Status = StatusOK
	}

	paid := 0
	if e.Paid {
		paid = 1
	}

	_, err := l.db.ExecContext(ctx, `INSERT OR REPLACE INTO exchanges
		(exchange_id, at, model, status, error, paid, estimated_cost,
		 amount_charged, refund_amount, transaction_hash, network,
		 prompt_tokens, completion_tokens, total_tokens, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.At.UTC().Format(timeLayout), e.Model, e.Status, e.Error, paid, e.EstimatedCost,
		e.AmountCharged, e.RefundAmount, e.TransactionHash, e.Network,
		e.PromptTokens, e.CompletionTokens, e.TotalTokens, e.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("recording exchange: %w", err)
	}
	return nil
}

// Totals sums every recorded exchange.
func (l *Ledger) Totals(ctx context.Context) (Totals, error) {
	var t Totals
	err := l.db.QueryRowContext(ctx, `SELECT
		COUNT(*),
		COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(paid), 0),
		COALESCE(SUM(estimated_cost), 0),
		COALESCE(SUM(amount_charged), 0),
		COALESCE(SUM(refund_amount), 0),
		COALESCE(SUM(total_tokens), 0)
		FROM exchanges`, StatusFailed,
	).Scan(&t.Exchanges, &t.Failures, &t.Paid, &t.EstimatedCost, &t.Charged, &t.Refunded, &t.Tokens)
	if err != nil {
		return Totals{}, fmt.Errorf("summing exchanges: %w", err)
	}
	return t, nil
}

// Recent returns up to limit exchanges, newest first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]Exchange, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx, `SELECT
		exchange_id, at, model, status, error, paid, estimated_cost,
		amount_charged, refund_amount, transaction_hash, network,
		prompt_tokens, completion_tokens, total_tokens, duration_ms
		FROM exchanges ORDER BY at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing exchanges: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Exchange
	for rows.Next() {
		var e Exchange
		var at string
		var errText, txHash, network sql.NullString
		var paid int
		var durationMs int64

		err := rows.Scan(
			&e.ID, &at, &e.Model, &e.Status, &errText, &paid, &e.EstimatedCost,
			&e.AmountCharged, &e.RefundAmount, &txHash, &network,
			&e.PromptTokens, &e.CompletionTokens, &e.TotalTokens, &durationMs,
		)
		if err != nil {
			return nil, err
		}

		e.At, _ = time.Parse(timeLayout, at)
		e.Paid = paid != 0
		e.Error = errText.String
		e.TransactionHash = txHash.String
		e.Network = network.String
		e.Duration = time.Duration(durationMs) * time.Millisecond
		out = append(out, e)
	}
	return out, rows.Err()
}

// ByModel returns per-model totals, highest charge first.
func (l *Ledger) ByModel(ctx context.Context) ([]ModelTotals, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT
		model, COUNT(*), SUM(amount_charged), SUM(refund_amount), SUM(total_tokens)
		FROM exchanges
		WHERE status = ?
		GROUP BY model
		ORDER BY SUM(amount_charged) DESC, model ASC`, StatusOK)
	if err != nil {
		return nil, fmt.Errorf("grouping exchanges: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []ModelTotals
	for rows.Next() {
		var m ModelTotals
		if err := rows.Scan(&m.Model, &m.Exchanges, &m.Charged, &m.Refunded, &m.Tokens); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
