// Package x402test provides fakes for testing code built on package x402
// without a ledger. FakeProcessor implements x402.Processor with scripted
// balances and verification results, and records every broadcast.
package x402test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/x402labs/x402-go/pkg/x402"
)

// FakeIdentity is a deterministic x402.Identity for tests.
type FakeIdentity struct {
	// Address is returned by PublicKey.
	Address string
}

// PublicKey returns the configured address.
func (f *FakeIdentity) PublicKey() string { return f.Address }

// Sign returns a deterministic pseudo signature over the message.
func (f *FakeIdentity) Sign(message []byte) ([]byte, error) {
	sig := make([]byte, 64)
	for i, b := range message {
		sig[i%64] ^= b
	}
	return sig, nil
}

// Broadcast records one SignAndBroadcast call.
type Broadcast struct {
	PaymentID string
	Amount    uint64
	Payer     string
	TxHash    string
}

// FakeTransaction is the LedgerTransaction type FakeProcessor produces.
type FakeTransaction struct {
	Request *x402.PaymentRequest
	Amount  uint64
	Payer   string
}

// FakeProcessor is a scriptable in-memory x402.Processor.
type FakeProcessor struct {
	mu sync.Mutex

	// Balance is returned by GetBalance for every account.
	Balance uint64
	// BalanceErr, CreateErr, BroadcastErr and VerifyErr force the
	// corresponding method to fail.
	BalanceErr   error
	CreateErr    error
	BroadcastErr error
	VerifyErr    error
	// VerifyResult is returned by VerifyTransaction when VerifyErr is
	// nil. Broadcast transactions verify as true regardless unless
	// VerifyBroadcastsToo is disabled by setting StrictVerify.
	VerifyResult bool
	// StrictVerify makes VerifyTransaction return VerifyResult even for
	// hashes this processor broadcast itself.
	StrictVerify bool

	broadcasts []Broadcast
	seq        int
}

// Broadcasts returns a copy of all recorded broadcasts.
func (p *FakeProcessor) Broadcasts() []Broadcast {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Broadcast, len(p.broadcasts))
	copy(out, p.broadcasts)
	return out
}

// GetBalance returns the scripted balance.
func (p *FakeProcessor) GetBalance(_ context.Context, _, _ string) (uint64, error) {
	if p.BalanceErr != nil {
		return 0, p.BalanceErr
	}
	return p.Balance, nil
}

// CreateTransferTransaction returns a FakeTransaction capturing the
// request.
func (p *FakeProcessor) CreateTransferTransaction(_ context.Context, req *x402.PaymentRequest, baseUnits uint64, payer x402.Identity) (x402.LedgerTransaction, error) {
	if p.CreateErr != nil {
		return nil, p.CreateErr
	}
	return &FakeTransaction{Request: req, Amount: baseUnits, Payer: payer.PublicKey()}, nil
}

// SignAndBroadcast records the transaction and returns a unique fake hash.
func (p *FakeProcessor) SignAndBroadcast(_ context.Context, tx x402.LedgerTransaction, payer x402.Identity) (string, error) {
	if p.BroadcastErr != nil {
		return "", p.BroadcastErr
	}
	ft, ok := tx.(*FakeTransaction)
	if !ok {
		return "", fmt.Errorf("unexpected transaction type %T", tx)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	hash := fmt.Sprintf("fake_tx_%06d", p.seq)
	p.broadcasts = append(p.broadcasts, Broadcast{
		PaymentID: ft.Request.PaymentID,
		Amount:    ft.Amount,
		Payer:     payer.PublicKey(),
		TxHash:    hash,
	})
	return hash, nil
}

// VerifyTransaction returns VerifyErr or VerifyResult, except that hashes
// broadcast through this processor verify as true unless StrictVerify is
// set.
func (p *FakeProcessor) VerifyTransaction(_ context.Context, txHash, _ string, _ uint64, _ string) (bool, error) {
	if p.VerifyErr != nil {
		return false, p.VerifyErr
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.StrictVerify {
		for _, b := range p.broadcasts {
			if b.TxHash == txHash {
				return true, nil
			}
		}
	}
	return p.VerifyResult, nil
}

// Challenge builds a valid payment request for tests, expiring in one
// minute.
func Challenge(amount string) *x402.PaymentRequest {
	return x402.NewPaymentRequest(
		amount,
		x402.USDCDevnetMint,
		"RecipientWallet1111111111111111111111111111",
		x402.NetworkDevnet,
		"/premium",
		"test resource",
		time.Minute,
	)
}

// Authorization builds a valid authorization settling req with the given
// transaction hash.
func Authorization(req *x402.PaymentRequest, txHash string) *x402.PaymentAuthorization {
	return &x402.PaymentAuthorization{
		PaymentID:       req.PaymentID,
		ActualAmount:    req.MaxAmountRequired,
		AssetType:       req.AssetType,
		AssetAddress:    req.AssetAddress,
		PaymentAddress:  req.PaymentAddress,
		Network:         req.Network,
		Nonce:           req.Nonce,
		Timestamp:       time.Now().UTC(),
		Signature:       "74657374",
		PublicKey:       "PayerWallet111111111111111111111111111111111",
		TransactionHash: txHash,
	}
}
