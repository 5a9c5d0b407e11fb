// Package solana settles x402 payments with SPL token transfers through
// a Solana RPC node.
package solana

import (
	solanago "github.com/gagliardetto/solana-go"

	"github.com/x402labs/x402-go/pkg/x402"
)

// WalletIdentity is an x402.Identity backed by a Solana keypair held in
// memory.
type WalletIdentity struct {
	key solanago.PrivateKey
}

// NewWalletIdentity parses a base58-encoded private key.
func NewWalletIdentity(privateKeyBase58 string) (*WalletIdentity, error) {
	key, err := solanago.PrivateKeyFromBase58(privateKeyBase58)
	if err != nil {
		return nil, x402.NewConfigurationError("invalid private key: " + err.Error())
	}
	return &WalletIdentity{key: key}, nil
}

// IdentityFromPrivateKey wraps an existing keypair.
func IdentityFromPrivateKey(key solanago.PrivateKey) *WalletIdentity {
	return &WalletIdentity{key: key}
}

// PublicKey returns the wallet address in base58.
func (w *WalletIdentity) PublicKey() string {
	return w.key.PublicKey().String()
}

// Sign signs a serialized transaction message with ed25519.
func (w *WalletIdentity) Sign(message []byte) ([]byte, error) {
	sig, err := w.key.Sign(message)
	if err != nil {
		return nil, err
	}
	return sig[:], nil
}
