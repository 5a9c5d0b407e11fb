// Package x402 - Wire model
// PaymentRequest and PaymentAuthorization are the two messages exchanged
// between server and client. Field names are part of the wire protocol
// and must stay stable across implementations.
package x402

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuthorizationHeader carries the base64-encoded PaymentAuthorization on
// retried requests.
const AuthorizationHeader = "X-Payment-Authorization"

// Response headers set on every 402 challenge.
const (
	PaymentRequiredHeader = "X-Payment-Required"
	PaymentProtocolHeader = "X-Payment-Protocol"
	ProtocolName          = "x402"
)

// AssetTypeSPL is the only asset type this implementation settles.
const AssetTypeSPL = "SPL"

// Supported network identifiers.
const (
	NetworkMainnet = "solana-mainnet"
	NetworkDevnet  = "solana-devnet"
	NetworkTestnet = "solana-testnet"
)

// USDC mint addresses per network, and the number of decimals USDC uses.
const (
	USDCMainnetMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	USDCDevnetMint  = "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU"
	USDCDecimals    = uint8(6)
)

// PaymentRequest is the challenge a server issues in a 402 response body.
// Amounts are decimal token-unit strings.
type PaymentRequest struct {
	MaxAmountRequired string    `json:"max_amount_required"`
	AssetType         string    `json:"asset_type"`
	AssetAddress      string    `json:"asset_address"`
	PaymentAddress    string    `json:"payment_address"`
	Network           string    `json:"network"`
	ExpiresAt         time.Time `json:"expires_at"`
	Nonce             string    `json:"nonce"`
	PaymentID         string    `json:"payment_id"`
	Resource          string    `json:"resource,omitempty"`
	Description       string    `json:"description,omitempty"`
}

// PaymentAuthorization is the proof of payment a client attaches to its
// retried request. It echoes the challenge's identifying fields and adds
// the settlement details.
type PaymentAuthorization struct {
	PaymentID       string    `json:"payment_id"`
	ActualAmount    string    `json:"actual_amount"`
	AssetType       string    `json:"asset_type"`
	AssetAddress    string    `json:"asset_address"`
	PaymentAddress  string    `json:"payment_address"`
	Network         string    `json:"network"`
	Nonce           string    `json:"nonce"`
	Timestamp       time.Time `json:"timestamp"`
	Signature       string    `json:"signature"`
	PublicKey       string    `json:"public_key"`
	TransactionHash string    `json:"transaction_hash"`
}

// NewPaymentRequest builds a challenge with a fresh payment ID and nonce,
// expiring ttl from now.
func NewPaymentRequest(amount, assetAddress, paymentAddress, network, resource, description string, ttl time.Duration) *PaymentRequest {
	return &PaymentRequest{
		MaxAmountRequired: amount,
		AssetType:         AssetTypeSPL,
		AssetAddress:      assetAddress,
		PaymentAddress:    paymentAddress,
		Network:           network,
		ExpiresAt:         time.Now().UTC().Add(ttl),
		Nonce:             newNonce(),
		PaymentID:         uuid.NewString(),
		Resource:          resource,
		Description:       description,
	}
}

// newNonce returns 16 random bytes hex encoded.
func newNonce() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// Validate checks that all required challenge fields are present and the
// amount parses.
func (r *PaymentRequest) Validate() error {
	switch {
	case r.MaxAmountRequired == "":
		return NewInvalidPaymentRequestError("max_amount_required is required")
	case r.AssetType == "":
		return NewInvalidPaymentRequestError("asset_type is required")
	case r.AssetAddress == "":
		return NewInvalidPaymentRequestError("asset_address is required")
	case r.PaymentAddress == "":
		return NewInvalidPaymentRequestError("payment_address is required")
	case r.Network == "":
		return NewInvalidPaymentRequestError("network is required")
	case r.PaymentID == "":
		return NewInvalidPaymentRequestError("payment_id is required")
	case r.Nonce == "":
		return NewInvalidPaymentRequestError("nonce is required")
	case r.ExpiresAt.IsZero():
		return NewInvalidPaymentRequestError("expires_at is required")
	}
	if err := CheckAmountSyntax(r.MaxAmountRequired); err != nil {
		return err
	}
	return nil
}

// IsExpired reports whether the challenge can no longer be paid. The
// boundary instant expires_at itself is already expired.
func (r *PaymentRequest) IsExpired() bool {
	return !time.Now().Before(r.ExpiresAt)
}

// ToJSON serializes the challenge for a 402 response body.
func (r *PaymentRequest) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

// ParsePaymentRequest decodes a 402 response body.
func ParsePaymentRequest(data []byte) (*PaymentRequest, error) {
	var req PaymentRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, NewInvalidPaymentRequestError("malformed payment request: " + err.Error())
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

// Validate checks that all required authorization fields are present.
func (a *PaymentAuthorization) Validate() error {
	switch {
	case a.PaymentID == "":
		return NewInvalidAuthorizationError("payment_id is required")
	case a.ActualAmount == "":
		return NewInvalidAuthorizationError("actual_amount is required")
	case a.AssetAddress == "":
		return NewInvalidAuthorizationError("asset_address is required")
	case a.PaymentAddress == "":
		return NewInvalidAuthorizationError("payment_address is required")
	case a.Network == "":
		return NewInvalidAuthorizationError("network is required")
	case a.Nonce == "":
		return NewInvalidAuthorizationError("nonce is required")
	case a.PublicKey == "":
		return NewInvalidAuthorizationError("public_key is required")
	case a.TransactionHash == "":
		return NewInvalidAuthorizationError("transaction_hash is required")
	}
	if err := CheckAmountSyntax(a.ActualAmount); err != nil {
		return NewInvalidAuthorizationError("actual_amount: " + err.Error())
	}
	return nil
}

// ToHeaderValue encodes the authorization as base64 JSON for the
// X-Payment-Authorization header.
func (a *PaymentAuthorization) ToHeaderValue() (string, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// ParseAuthorizationHeader decodes an X-Payment-Authorization header value.
func ParseAuthorizationHeader(value string) (*PaymentAuthorization, error) {
	data, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, NewInvalidAuthorizationError("authorization header is not valid base64")
	}
	var auth PaymentAuthorization
	if err := json.Unmarshal(data, &auth); err != nil {
		return nil, NewInvalidAuthorizationError("authorization header is not valid JSON")
	}
	if err := auth.Validate(); err != nil {
		return nil, err
	}
	return &auth, nil
}
