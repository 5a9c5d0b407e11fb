package solana

import (
	"testing"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

var (
	testMint      = solanago.MustPublicKeyFromBase58("4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU")
	otherMint     = solanago.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	testRecipient = solanago.MustPublicKeyFromBase58("7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU")
	testSender    = solanago.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
)

func tokenBalance(index uint16, mint solanago.PublicKey, owner solanago.PublicKey, amount string) rpc.TokenBalance {
	o := owner
	return rpc.TokenBalance{
		AccountIndex: index,
		Mint:         mint,
		Owner:        &o,
		UiTokenAmount: &rpc.UiTokenAmount{
			Amount:   amount,
			Decimals: 6,
		},
	}
}

// transferMeta models a 0.10 USDC transfer from sender to recipient.
func transferMeta() *rpc.TransactionMeta {
	return &rpc.TransactionMeta{
		PreTokenBalances: []rpc.TokenBalance{
			tokenBalance(1, testMint, testSender, "1000000"),
			tokenBalance(2, testMint, testRecipient, "500000"),
		},
		PostTokenBalances: []rpc.TokenBalance{
			tokenBalance(1, testMint, testSender, "900000"),
			tokenBalance(2, testMint, testRecipient, "600000"),
		},
	}
}

func TestReceivedAmount(t *testing.T) {
	got, err := receivedAmount(transferMeta(), testRecipient, testMint)
	if err != nil {
		t.Fatalf("receivedAmount failed: %v", err)
	}
	if got != 100000 {
		t.Errorf("Expected 100000 base units received, got %d", got)
	}
}

func TestReceivedAmount_SenderGainsNothing(t *testing.T) {
	got, err := receivedAmount(transferMeta(), testSender, testMint)
	if err != nil {
		t.Fatalf("receivedAmount failed: %v", err)
	}
	if got != 0 {
		t.Errorf("Sender lost funds, expected 0 received, got %d", got)
	}
}

func TestReceivedAmount_WrongMintIgnored(t *testing.T) {
	got, err := receivedAmount(transferMeta(), testRecipient, otherMint)
	if err != nil {
		t.Fatalf("receivedAmount failed: %v", err)
	}
	if got != 0 {
		t.Errorf("Expected 0 for a different mint, got %d", got)
	}
}

func TestReceivedAmount_FreshTokenAccount(t *testing.T) {
	// No pre balance entry: the recipient's token account was created in
	// this transaction.
	meta := &rpc.TransactionMeta{
		PostTokenBalances: []rpc.TokenBalance{
			tokenBalance(2, testMint, testRecipient, "100000"),
		},
	}

	got, err := receivedAmount(meta, testRecipient, testMint)
	if err != nil {
		t.Fatalf("receivedAmount failed: %v", err)
	}
	if got != 100000 {
		t.Errorf("Expected 100000 base units for fresh account, got %d", got)
	}
}

func TestReceivedAmount_MissingOwner(t *testing.T) {
	meta := transferMeta()
	meta.PostTokenBalances[1].Owner = nil

	got, err := receivedAmount(meta, testRecipient, testMint)
	if err != nil {
		t.Fatalf("receivedAmount failed: %v", err)
	}
	if got != 0 {
		t.Errorf("Balances without owner info cannot be attributed, got %d", got)
	}
}

func TestReceivedAmount_NilMeta(t *testing.T) {
	got, err := receivedAmount(nil, testRecipient, testMint)
	if err != nil || got != 0 {
		t.Errorf("Expected 0 for nil meta, got %d err=%v", got, err)
	}
}

func TestSettles(t *testing.T) {
	tests := []struct {
		received uint64
		expected uint64
		want     bool
	}{
		{100000, 100000, true},
		{99999, 100000, true}, // one base unit of rounding slack
		{99998, 100000, false},
		{200000, 100000, true},
		{0, 100000, false},
		{0, 0, true},
		{1, 1, true},
	}

	for _, tt := range tests {
		if got := settles(tt.received, tt.expected); got != tt.want {
			t.Errorf("settles(%d, %d) = %v, want %v", tt.received, tt.expected, got, tt.want)
		}
	}
}
