// Package x402 - Ledger abstraction
// The protocol engine never talks to a blockchain directly. Everything it
// needs from a ledger sits behind Processor, and everything it needs from
// a wallet sits behind Identity. Package pkg/solana provides the real
// implementations; package x402test provides fakes.
package x402

import "context"

// Identity is a wallet the engine can sign with. Implementations hold the
// private key; the engine only ever sees the public key and signatures.
type Identity interface {
	// PublicKey returns the wallet address in its canonical string form.
	PublicKey() string

	// Sign signs an opaque message and returns the raw signature bytes.
	Sign(message []byte) ([]byte, error)
}

// LedgerTransaction is an unsigned ledger transaction produced by
// CreateTransferTransaction. Its concrete type belongs to the processor
// that produced it and must be passed back to the same processor's
// SignAndBroadcast.
type LedgerTransaction interface{}

// Processor settles and verifies payments on a ledger. All amounts are
// integer base units of the asset's mint. Every method honors ctx for
// cancellation.
type Processor interface {
	// GetBalance returns the token balance of account for the given mint,
	// in base units. A missing token account reads as zero.
	GetBalance(ctx context.Context, account, mint string) (uint64, error)

	// CreateTransferTransaction builds an unsigned transfer of baseUnits
	// from payer to the challenge's payment address. It does not move
	// funds.
	CreateTransferTransaction(ctx context.Context, req *PaymentRequest, baseUnits uint64, payer Identity) (LedgerTransaction, error)

	// SignAndBroadcast signs tx with payer, submits it and blocks until
	// the ledger confirms it, returning the transaction hash. On
	// confirmation timeout it returns a retryable TransactionBroadcastError
	// carrying the hash; the transaction may still land afterwards.
	SignAndBroadcast(ctx context.Context, tx LedgerTransaction, payer Identity) (string, error)

	// VerifyTransaction checks that the transaction with the given hash
	// succeeded on chain and delivered at least expectedBaseUnits of mint
	// to recipient. It returns false (not an error) when the transaction
	// exists but failed or paid too little, a TransactionNotVisibleError
	// when the ledger has not surfaced it yet, and other errors only for
	// transport failures.
	VerifyTransaction(ctx context.Context, txHash, recipient string, expectedBaseUnits uint64, mint string) (bool, error)
}
