package x402

import (
	"encoding/json"
	"testing"
	"time"
)

func validRequest() *PaymentRequest {
	return NewPaymentRequest("0.10", USDCDevnetMint, "RecipientWallet1111111111111111111111111111", NetworkDevnet, "/premium", "premium data", time.Minute)
}

func TestNewPaymentRequest(t *testing.T) {
	req := validRequest()

	if err := req.Validate(); err != nil {
		t.Fatalf("fresh request failed validation: %v", err)
	}
	if req.PaymentID == "" || req.Nonce == "" {
		t.Error("Expected payment ID and nonce to be generated")
	}
	if req.AssetType != AssetTypeSPL {
		t.Errorf("Expected asset type %q, got %q", AssetTypeSPL, req.AssetType)
	}
	if req.IsExpired() {
		t.Error("Fresh request should not be expired")
	}

	other := validRequest()
	if other.PaymentID == req.PaymentID {
		t.Error("Expected unique payment IDs")
	}
	if other.Nonce == req.Nonce {
		t.Error("Expected unique nonces")
	}
}

func TestPaymentRequest_WireFormat(t *testing.T) {
	data, err := validRequest().ToJSON()
	if err != nil {
		t.Fatalf("ToJSON failed: %v", err)
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("Failed to decode JSON: %v", err)
	}
	for _, key := range []string{
		"max_amount_required", "asset_type", "asset_address", "payment_address",
		"network", "expires_at", "nonce", "payment_id", "resource", "description",
	} {
		if _, ok := fields[key]; !ok {
			t.Errorf("Expected field %q in wire format", key)
		}
	}
}

func TestPaymentRequest_ExpiryBoundary(t *testing.T) {
	req := validRequest()

	// The boundary instant itself counts as expired.
	req.ExpiresAt = time.Now()
	if !req.IsExpired() {
		t.Error("Request at expires_at should be expired")
	}

	req.ExpiresAt = time.Now().Add(time.Hour)
	if req.IsExpired() {
		t.Error("Future request should not be expired")
	}

	req.ExpiresAt = time.Now().Add(-time.Second)
	if !req.IsExpired() {
		t.Error("Past request should be expired")
	}
}

func TestParsePaymentRequest_Invalid(t *testing.T) {
	if _, err := ParsePaymentRequest([]byte("not json")); err == nil {
		t.Error("Expected error for malformed JSON")
	}

	req := validRequest()
	req.MaxAmountRequired = ""
	data, _ := json.Marshal(req)
	if _, err := ParsePaymentRequest(data); err == nil {
		t.Error("Expected error for missing amount")
	}
}

func TestPaymentRequest_ValidateFineGrainedMint(t *testing.T) {
	// A 9-decimal mint's challenge must pass structural validation even
	// though the parser here is configured for 6-decimal USDC.
	req := validRequest()
	req.MaxAmountRequired = "0.000000125"
	if err := req.Validate(); err != nil {
		t.Errorf("Expected fine-grained amount to validate, got %v", err)
	}
}

func validAuthorization() *PaymentAuthorization {
	req := validRequest()
	return &PaymentAuthorization{
		PaymentID:       req.PaymentID,
		ActualAmount:    "0.10",
		AssetType:       AssetTypeSPL,
		AssetAddress:    req.AssetAddress,
		PaymentAddress:  req.PaymentAddress,
		Network:         req.Network,
		Nonce:           req.Nonce,
		Timestamp:       time.Now().UTC(),
		Signature:       "deadbeef",
		PublicKey:       "PayerWallet111111111111111111111111111111111",
		TransactionHash: "5K3x1YgJ9sfQeTq1wMQstDiPW3kQ8kDtR7yLh2vXpYbN",
	}
}

func TestAuthorizationHeaderRoundTrip(t *testing.T) {
	auth := validAuthorization()

	header, err := auth.ToHeaderValue()
	if err != nil {
		t.Fatalf("ToHeaderValue failed: %v", err)
	}

	decoded, err := ParseAuthorizationHeader(header)
	if err != nil {
		t.Fatalf("ParseAuthorizationHeader failed: %v", err)
	}
	if decoded.PaymentID != auth.PaymentID {
		t.Errorf("Expected payment ID %q, got %q", auth.PaymentID, decoded.PaymentID)
	}
	if decoded.TransactionHash != auth.TransactionHash {
		t.Errorf("Expected transaction hash %q, got %q", auth.TransactionHash, decoded.TransactionHash)
	}
}

func TestParseAuthorizationHeader_Invalid(t *testing.T) {
	if _, err := ParseAuthorizationHeader("%%%not-base64%%%"); err == nil {
		t.Error("Expected error for invalid base64")
	}
	if _, err := ParseAuthorizationHeader("bm90IGpzb24="); err == nil {
		t.Error("Expected error for non-JSON payload")
	}

	auth := validAuthorization()
	auth.TransactionHash = ""
	header, _ := auth.ToHeaderValue()
	if _, err := ParseAuthorizationHeader(header); err == nil {
		t.Error("Expected error for missing transaction hash")
	}
}
