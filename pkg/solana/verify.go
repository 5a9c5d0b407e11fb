// Package solana - Settlement verification
// How much a transaction actually delivered is read from the pre and post
// token balances in its metadata, never from its instructions. Balance
// deltas reflect what the ledger settled regardless of how the transfer
// was composed.
package solana

import (
	"strconv"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// toleranceBaseUnits absorbs sub-unit rounding differences between the
// amount a challenge states and the amount the transfer carried.
const toleranceBaseUnits = 1

// receivedAmount returns how many base units of mint the owner's token
// accounts gained in the transaction described by meta. Accounts are
// matched by owner and mint across pre and post balances; a net loss
// counts as zero.
func receivedAmount(meta *rpc.TransactionMeta, owner, mint solanago.PublicKey) (uint64, error) {
	if meta == nil {
		return 0, nil
	}

	pre := make(map[uint16]uint64)
	for _, b := range meta.PreTokenBalances {
		if !b.Mint.Equals(mint) {
			continue
		}
		amount, err := balanceBaseUnits(b.UiTokenAmount)
		if err != nil {
			return 0, err
		}
		pre[b.AccountIndex] = amount
	}

	var received uint64
	for _, b := range meta.PostTokenBalances {
		if !b.Mint.Equals(mint) || b.Owner == nil || !b.Owner.Equals(owner) {
			continue
		}
		post, err := balanceBaseUnits(b.UiTokenAmount)
		if err != nil {
			return 0, err
		}
		if prev := pre[b.AccountIndex]; post > prev {
			received += post - prev
		}
	}
	return received, nil
}

// balanceBaseUnits reads the exact base-unit amount from a token balance.
// The Amount field is an integer string, so no float conversion happens.
func balanceBaseUnits(amount *rpc.UiTokenAmount) (uint64, error) {
	if amount == nil {
		return 0, nil
	}
	return strconv.ParseUint(amount.Amount, 10, 64)
}

// settles reports whether a received amount satisfies an expected one
// within the rounding tolerance.
func settles(received, expected uint64) bool {
	if expected <= toleranceBaseUnits {
		return received > 0 || expected == 0
	}
	return received >= expected-toleranceBaseUnits
}
