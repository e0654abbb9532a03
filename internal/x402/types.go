package x402

import "encoding/json"

// Version is the x402 protocol version spoken by the gateway.
const Version = 1

// SchemeExact is the only payment scheme this client can authorize.
const SchemeExact = "exact"

// Header names used by the payment handshake.
const (
	HeaderPayment         = "X-PAYMENT"
	HeaderPaymentResponse = "X-PAYMENT-RESPONSE"
)

// Signer is the signing capability a wallet exposes to the client.
// Sign receives a 32-byte digest and returns a 65-byte [R || S || V] signature.
type Signer interface {
	Address() string
	Sign(digest []byte) ([]byte, error)
}

// activeSigner is implemented by signers that can be closed, such as
// *wallet.Session. A closed signer is treated as no signer at all.
type activeSigner interface {
	Active() bool
}

func signerReady(s Signer) bool {
	if s == nil {
		return false
	}
	if a, ok := s.(activeSigner); ok {
		return a.Active()
	}
	return true
}

// Request is the logical inference request. It is serialized as the body of
// both the initial and the paid attempt.
type Request struct {
	Model           string `json:"model"`
	Prompt          string `json:"input"`
	MaxOutputTokens int    `json:"max_output_tokens"`
}

// PaymentRequired is the body of a 402 response.
type PaymentRequired struct {
	X402Version int                   `json:"x402Version"`
	Error       string                `json:"error"`
	Accepts     []PaymentRequirements `json:"accepts"`
}

// PaymentRequirements describes one acceptable way to pay for a resource.
// MaxAmountRequired is in atomic token units (6 decimals for USDC).
type PaymentRequirements struct {
	Scheme            string          `json:"scheme"`
	Network           string          `json:"network"`
	MaxAmountRequired string          `json:"maxAmountRequired"`
	Resource          string          `json:"resource"`
	Description       string          `json:"description"`
	MimeType          string          `json:"mimeType"`
	PayTo             string          `json:"payTo"`
	MaxTimeoutSeconds int             `json:"maxTimeoutSeconds"`
	Asset             string          `json:"asset"`
	OutputSchema      json.RawMessage `json:"outputSchema,omitempty"`
	Extra             *TokenDomain    `json:"extra,omitempty"`
}

// TokenDomain carries the EIP-712 domain name and version of the asset.
type TokenDomain struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// PaymentPayload is the decoded form of the X-PAYMENT header.
type PaymentPayload struct {
	X402Version int          `json:"x402Version"`
	Scheme      string       `json:"scheme"`
	Network     string       `json:"network"`
	Payload     ExactPayload `json:"payload"`
}

// ExactPayload is the scheme-specific part of an "exact" payment.
type ExactPayload struct {
	Signature     string        `json:"signature"`
	Authorization Authorization `json:"authorization"`
}

// Authorization is an EIP-3009 TransferWithAuthorization message.
// Numeric fields are decimal strings; Nonce is 0x-prefixed 32-byte hex.
type Authorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`
	Nonce       string `json:"nonce"`
}

// Usage is the token accounting reported by the gateway.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens" yaml:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens" yaml:"completion_tokens"`
	TotalTokens      int `json:"total_tokens" yaml:"total_tokens"`
}

// Receipt is the settlement outcome decoded from X-PAYMENT-RESPONSE.
// Amounts are in USDC.
type Receipt struct {
	Settled         bool    `json:"settled" yaml:"settled"`
	AmountCharged   float64 `json:"amount_charged" yaml:"amount_charged"`
	RefundAmount    float64 `json:"refund_amount" yaml:"refund_amount"`
	TransactionHash string  `json:"transaction_hash,omitempty" yaml:"transaction_hash,omitempty"`
	Network         string  `json:"network,omitempty" yaml:"network,omitempty"`
	Payer           string  `json:"payer,omitempty" yaml:"payer,omitempty"`
}

// Response is a successful exchange.
type Response struct {
	Status  int
	Body    json.RawMessage
	Content string
	Usage   *Usage
	Receipt *Receipt

	// Paid is true when the exchange went through a 402 challenge.
	Paid bool
	// Requirement is the challenge requirement that was paid, if any.
	Requirement *PaymentRequirements
}

// Result is the outcome of Send. Exactly one of Response and Err is set.
type Result struct {
	Response *Response
	Err      error
}

// OK reports whether the exchange succeeded.
func (r Result) OK() bool {
	return r.Err == nil && r.Response != nil
}
