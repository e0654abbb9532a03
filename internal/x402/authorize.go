package x402

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const (
	// validAfterSkew backdates authorizations to tolerate clock drift
	// between the client and the facilitator.
	validAfterSkew = 600

	defaultValiditySeconds = 60
)

var transferTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	"TransferWithAuthorization": {
		{Name: "from", Type: "address"},
		{Name: "to", Type: "address"},
		{Name: "value", Type: "uint256"},
		{Name: "validAfter", Type: "uint256"},
		{Name: "validBefore", Type: "uint256"},
		{Name: "nonce", Type: "bytes32"},
	},
}

// Domain identifies the token contract an authorization is bound to.
type Domain struct {
	Name              string
	Version           string
	ChainID           int64
	VerifyingContract string
}

// AuthorizationDigest returns the EIP-712 digest of a TransferWithAuthorization
// message under domain d.
func AuthorizationDigest(auth Authorization, d Domain) ([]byte, error) {
	if !common.IsHexAddress(d.VerifyingContract) {
		return nil, fmt.Errorf("x402: invalid asset address %q", d.VerifyingContract)
	}
	td := apitypes.TypedData{
		Types:       transferTypes,
		PrimaryType: "TransferWithAuthorization",
		Domain: apitypes.TypedDataDomain{
			Name:              d.Name,
			Version:           d.Version,
			ChainId:           gethmath.NewHexOrDecimal256(d.ChainID),
			VerifyingContract: d.VerifyingContract,
		},
		Message: apitypes.TypedDataMessage{
			"from":        auth.From,
			"to":          auth.To,
			"value":       auth.Value,
			"validAfter":  auth.ValidAfter,
			"validBefore": auth.ValidBefore,
			"nonce":       auth.Nonce,
		},
	}
	digest, _, err := apitypes.TypedDataAndHash(td)
	if err != nil {
		return nil, fmt.Errorf("x402: hashing authorization: %w", err)
	}
	return digest, nil
}

// DecodePaymentHeader decodes an X-PAYMENT header value.
func DecodePaymentHeader(h string) (*PaymentPayload, error) {
	raw, err := base64.StdEncoding.DecodeString(h)
	if err != nil {
		return nil, fmt.Errorf("x402: decoding payment header: %w", err)
	}
	var p PaymentPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("x402: parsing payment header: %w", err)
	}
	return &p, nil
}

// checkCap rejects requirements above the spend ceiling before anything is signed.
func (c *Client) checkCap(r PaymentRequirements) error {
	amount, ok := new(big.Int).SetString(r.MaxAmountRequired, 10)
	if !ok || amount.Sign() < 0 {
		return fmt.Errorf("%w: invalid amount %q", ErrMalformedChallenge, r.MaxAmountRequired)
	}

	limit, ok := atomicUnits(c.maxSpend, c.network.Decimals)
	if !ok {
		return fmt.Errorf("%w: %v", ErrInvalidSpendCap, c.maxSpend)
	}
	if amount.Cmp(limit) > 0 {
		return fmt.Errorf("%w: payment of %s USDC exceeds cap of %s USDC",
			ErrSpendCapExceeded,
			formatAtomic(amount, c.network.Decimals),
			formatAtomic(limit, c.network.Decimals))
	}
	return nil
}

// authorize signs an EIP-3009 authorization for r and returns the X-PAYMENT header value.
func (c *Client) authorize(r PaymentRequirements, signer Signer) (string, error) {
	if !common.IsHexAddress(r.PayTo) {
		return "", fmt.Errorf("%w: invalid payTo %q", ErrMalformedChallenge, r.PayTo)
	}

	var nonce [32]byte
	if _, err := io.ReadFull(c.random, nonce[:]); err != nil {
		return "", fmt.Errorf("x402: generating nonce: %w", err)
	}

	validity := r.MaxTimeoutSeconds
	if validity <= 0 {
		validity = defaultValiditySeconds
	}
	now := c.now().Unix()

	auth := Authorization{
		From:        common.HexToAddress(signer.Address()).Hex(),
		To:          common.HexToAddress(r.PayTo).Hex(),
		Value:       r.MaxAmountRequired,
		ValidAfter:  strconv.FormatInt(now-validAfterSkew, 10),
		ValidBefore: strconv.FormatInt(now+int64(validity), 10),
		Nonce:       hexutil.Encode(nonce[:]),
	}

	digest, err := AuthorizationDigest(auth, c.domainFor(r))
	if err != nil {
		return "", err
	}

	sig, err := signer.Sign(digest)
	if err != nil {
		return "", fmt.Errorf("x402: signing authorization: %w", err)
	}

	payload := PaymentPayload{
		X402Version: Version,
		Scheme:      SchemeExact,
		Network:     r.Network,
		Payload: ExactPayload{
			Signature:     hexutil.Encode(sig),
			Authorization: auth,
		},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("x402: encoding payment: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// domainFor prefers the token domain advertised in the challenge and falls
// back to the configured network's USDC deployment.
func (c *Client) domainFor(r PaymentRequirements) Domain {
	d := Domain{
		Name:              c.network.TokenName,
		Version:           c.network.TokenVersion,
		ChainID:           c.network.ChainID,
		VerifyingContract: c.network.USDC,
	}
	if r.Extra != nil {
		if r.Extra.Name != "" {
			d.Name = r.Extra.Name
		}
		if r.Extra.Version != "" {
			d.Version = r.Extra.Version
		}
	}
	if r.Asset != "" {
		d.VerifyingContract = r.Asset
	}
	return d
}

// atomicUnits converts a token amount to its smallest unit, rounding to nearest.
// It reports false for NaN and infinite amounts.
func atomicUnits(amount float64, decimals int) (*big.Int, bool) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return nil, false
	}
	if amount <= 0 {
		return new(big.Int), true
	}
	scaled := math.Round(amount * math.Pow10(decimals))
	if math.IsInf(scaled, 0) {
		return nil, false
	}
	n, _ := new(big.Float).SetFloat64(scaled).Int(nil)
	return n, n != nil
}

func formatAtomic(n *big.Int, decimals int) string {
	f := new(big.Float).SetInt(n)
	f.Quo(f, new(big.Float).SetFloat64(math.Pow10(decimals)))
	return f.Text('f', decimals)
}
