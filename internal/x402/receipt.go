package x402

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"strconv"
	"strings"
)

// rawReceipt is the wire form of X-PAYMENT-RESPONSE. Facilitators disagree on
// field names and on whether amounts are numbers or strings, so amounts are
// kept raw for defensive parsing.
type rawReceipt struct {
	Settled         *bool           `json:"settled"`
	Success         *bool           `json:"success"`
	AmountCharged   json.RawMessage `json:"amount_charged"`
	RefundAmount    json.RawMessage `json:"refund_amount"`
	TransactionHash string          `json:"transaction_hash"`
	Transaction     string          `json:"transaction"`
	Network         string          `json:"network"`
	Payer           string          `json:"payer"`
}

// ParseReceipt decodes an X-PAYMENT-RESPONSE header value.
// Returns nil if the value is not base64-encoded JSON describing a receipt;
// a malformed receipt never fails an exchange.
func ParseReceipt(header string) *Receipt {
	data, ok := decodeBase64(strings.TrimSpace(header))
	if !ok {
		return nil
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil
	}

	var raw rawReceipt
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}

	charged, ok := parseAmount(raw.AmountCharged)
	if !ok {
		return nil
	}
	refund, ok := parseAmount(raw.RefundAmount)
	if !ok {
		return nil
	}

	r := &Receipt{
		AmountCharged:   charged,
		RefundAmount:    refund,
		TransactionHash: raw.TransactionHash,
		Network:         raw.Network,
		Payer:           raw.Payer,
	}
	switch {
	case raw.Settled != nil:
		r.Settled = *raw.Settled
	case raw.Success != nil:
		r.Settled = *raw.Success
	}
	if r.TransactionHash == "" {
		r.TransactionHash = raw.Transaction
	}
	return r
}

// EncodeReceipt is the inverse of ParseReceipt.
func EncodeReceipt(r Receipt) string {
	data, err := json.Marshal(r)
	if err != nil {
		return ""
	}
	return base64.StdEncoding.EncodeToString(data)
}

func decodeBase64(s string) ([]byte, bool) {
	if s == "" {
		return nil, false
	}
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.URLEncoding,
		base64.RawStdEncoding,
		base64.RawURLEncoding,
	} {
		if data, err := enc.DecodeString(s); err == nil {
			return data, true
		}
	}
	return nil, false
}

// parseAmount accepts a JSON number or a numeric string. An absent or null
// field is zero.
func parseAmount(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, true
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, f >= 0
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		if s == "" {
			return 0, true
		}
		if v, err := strconv.ParseFloat(s, 64); err == nil && v >= 0 {
			return v, true
		}
	}
	return 0, false
}
