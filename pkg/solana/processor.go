// Package solana - Payment processor
// Implements x402.Processor on top of the Solana JSON-RPC API. Transfers
// are TransferChecked instructions between associated token accounts; the
// recipient's token account is created in the same transaction when it
// does not exist yet.
package solana

import (
	"context"
	"errors"
	"strconv"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/sirupsen/logrus"

	"github.com/x402labs/x402-go/pkg/x402"
)

// DefaultRPCURL returns the public RPC endpoint for a network identifier.
func DefaultRPCURL(network string) string {
	switch network {
	case x402.NetworkMainnet:
		return rpc.MainNetBeta_RPC
	case x402.NetworkTestnet:
		return rpc.TestNet_RPC
	default:
		return rpc.DevNet_RPC
	}
}

// ProcessorConfig configures a Solana payment processor.
type ProcessorConfig struct {
	// RPCURL of the node to talk to. Required.
	RPCURL string
	// Decimals of the token mint. Defaults to x402.USDCDecimals.
	Decimals uint8
	// ConfirmTimeout bounds how long SignAndBroadcast waits for the
	// ledger to confirm. Defaults to 30s.
	ConfirmTimeout time.Duration
	// PollInterval between confirmation checks. Defaults to 2s.
	PollInterval time.Duration
	// Logger receives structured processor logs. Defaults to the logrus
	// standard logger.
	Logger *logrus.Logger
}

// Processor is the Solana implementation of x402.Processor.
type Processor struct {
	client *rpc.Client
	cfg    ProcessorConfig
	log    *logrus.Logger
}

// NewProcessor connects a processor to the node at cfg.RPCURL.
func NewProcessor(cfg ProcessorConfig) (*Processor, error) {
	if cfg.RPCURL == "" {
		return nil, x402.NewConfigurationError("rpc url is required")
	}
	if cfg.Decimals == 0 {
		cfg.Decimals = x402.USDCDecimals
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 30 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	return &Processor{client: rpc.New(cfg.RPCURL), cfg: cfg, log: cfg.Logger}, nil
}

// GetBalance returns the base-unit token balance of account's associated
// token account for mint. A wallet that never held the token reads as
// zero.
func (p *Processor) GetBalance(ctx context.Context, account, mint string) (uint64, error) {
	wallet, err := solanago.PublicKeyFromBase58(account)
	if err != nil {
		return 0, x402.NewConfigurationError("invalid wallet address: " + err.Error())
	}
	mintKey, err := solanago.PublicKeyFromBase58(mint)
	if err != nil {
		return 0, x402.NewConfigurationError("invalid token mint: " + err.Error())
	}
	ata, _, err := solanago.FindAssociatedTokenAddress(wallet, mintKey)
	if err != nil {
		return 0, err
	}

	res, err := p.client.GetTokenAccountBalance(ctx, ata, rpc.CommitmentConfirmed)
	if err != nil {
		// A nonexistent token account surfaces as a plain RPC error
		// here, not rpc.ErrNotFound. Confirm through GetAccountInfo so
		// a first-time payer reads as zero while real outages still
		// propagate.
		if errors.Is(err, rpc.ErrNotFound) || p.accountMissing(ctx, ata) {
			return 0, nil
		}
		return 0, err
	}
	if res == nil || res.Value == nil {
		return 0, nil
	}
	return strconv.ParseUint(res.Value.Amount, 10, 64)
}

// CreateTransferTransaction builds an unsigned TransferChecked of
// baseUnits from payer to the challenge's payment address, creating the
// recipient's token account when needed.
func (p *Processor) CreateTransferTransaction(ctx context.Context, req *x402.PaymentRequest, baseUnits uint64, payer x402.Identity) (x402.LedgerTransaction, error) {
	payerKey, err := solanago.PublicKeyFromBase58(payer.PublicKey())
	if err != nil {
		return nil, x402.NewTransactionBroadcastError("invalid payer address: "+err.Error(), "", err)
	}
	recipientKey, err := solanago.PublicKeyFromBase58(req.PaymentAddress)
	if err != nil {
		return nil, x402.NewTransactionBroadcastError("invalid payment address: "+err.Error(), "", err)
	}
	mintKey, err := solanago.PublicKeyFromBase58(req.AssetAddress)
	if err != nil {
		return nil, x402.NewTransactionBroadcastError("invalid token mint: "+err.Error(), "", err)
	}

	payerATA, _, err := solanago.FindAssociatedTokenAddress(payerKey, mintKey)
	if err != nil {
		return nil, x402.NewTransactionBroadcastError("deriving payer token account: "+err.Error(), "", err)
	}
	recipientATA, _, err := solanago.FindAssociatedTokenAddress(recipientKey, mintKey)
	if err != nil {
		return nil, x402.NewTransactionBroadcastError("deriving recipient token account: "+err.Error(), "", err)
	}

	var instructions []solanago.Instruction
	if !p.accountExists(ctx, recipientATA) {
		instructions = append(instructions, associatedtokenaccount.NewCreateInstruction(
			payerKey,
			recipientKey,
			mintKey,
		).Build())
	}

	instructions = append(instructions, token.NewTransferCheckedInstruction(
		baseUnits,
		p.cfg.Decimals,
		payerATA,
		mintKey,
		recipientATA,
		payerKey,
		[]solanago.PublicKey{},
	).Build())

	blockhash, err := p.client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return nil, x402.NewTransactionBroadcastError("fetching blockhash: "+err.Error(), "", err)
	}

	tx, err := solanago.NewTransaction(
		instructions,
		blockhash.Value.Blockhash,
		solanago.TransactionPayer(payerKey),
	)
	if err != nil {
		return nil, x402.NewTransactionBroadcastError("building transaction: "+err.Error(), "", err)
	}
	return tx, nil
}

func (p *Processor) accountExists(ctx context.Context, account solanago.PublicKey) bool {
	info, err := p.client.GetAccountInfo(ctx, account)
	return err == nil && info != nil && info.Value != nil
}

// accountMissing is true only when the ledger positively reports the
// account as absent. RPC failures do not count as missing.
func (p *Processor) accountMissing(ctx context.Context, account solanago.PublicKey) bool {
	_, err := p.client.GetAccountInfo(ctx, account)
	return errors.Is(err, rpc.ErrNotFound)
}

// SignAndBroadcast signs the fee payer slot with payer, submits the
// transaction and polls until the ledger confirms it.
func (p *Processor) SignAndBroadcast(ctx context.Context, ltx x402.LedgerTransaction, payer x402.Identity) (string, error) {
	tx, ok := ltx.(*solanago.Transaction)
	if !ok {
		return "", x402.NewTransactionBroadcastError("unexpected transaction type", "", nil)
	}

	// The identity signs the serialized message; the processor never sees
	// the private key.
	message, err := tx.Message.MarshalBinary()
	if err != nil {
		return "", x402.NewTransactionBroadcastError("serializing message: "+err.Error(), "", err)
	}
	sigBytes, err := payer.Sign(message)
	if err != nil {
		return "", x402.NewTransactionBroadcastError("signing transaction: "+err.Error(), "", err)
	}
	sig := solanago.SignatureFromBytes(sigBytes)

	// The fee payer occupies signature slot 0.
	required := int(tx.Message.Header.NumRequiredSignatures)
	if len(tx.Signatures) < required {
		tx.Signatures = make([]solanago.Signature, required)
	}
	tx.Signatures[0] = sig

	txSig, err := p.client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return "", x402.NewTransactionBroadcastError("sending transaction: "+err.Error(), "", err)
	}

	hash := txSig.String()
	p.log.WithField("transaction_hash", hash).Debug("transaction submitted, awaiting confirmation")
	if err := p.awaitConfirmation(ctx, txSig); err != nil {
		return "", err
	}
	return hash, nil
}

// awaitConfirmation polls signature statuses until the transaction is
// confirmed or finalized. On timeout the transaction may still land, so
// the returned error is retryable and carries the hash.
func (p *Processor) awaitConfirmation(ctx context.Context, sig solanago.Signature) error {
	deadline := time.NewTimer(p.cfg.ConfirmTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		res, err := p.client.GetSignatureStatuses(ctx, true, sig)
		if err == nil && res != nil && len(res.Value) > 0 && res.Value[0] != nil {
			status := res.Value[0]
			if status.Err != nil {
				return x402.NewTransactionBroadcastError("transaction failed on-chain", sig.String(), nil)
			}
			switch status.ConfirmationStatus {
			case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
				return nil
			}
		} else if err != nil {
			p.log.WithError(err).Debug("confirmation status check failed")
		}

		select {
		case <-ctx.Done():
			return x402.NewTransactionBroadcastError("confirmation interrupted: "+ctx.Err().Error(), sig.String(), ctx.Err())
		case <-deadline.C:
			e := x402.NewTransactionBroadcastError("transaction not confirmed before timeout", sig.String(), nil)
			e.Retryable = true
			return e
		case <-ticker.C:
		}
	}
}

// VerifyTransaction checks that the transaction succeeded and delivered at
// least expectedBaseUnits of mint to recipient, judged by token balance
// deltas.
func (p *Processor) VerifyTransaction(ctx context.Context, txHash, recipient string, expectedBaseUnits uint64, mint string) (bool, error) {
	sig, err := solanago.SignatureFromBase58(txHash)
	if err != nil {
		// Not a ledger signature, so it cannot possibly verify.
		return false, nil
	}
	recipientKey, err := solanago.PublicKeyFromBase58(recipient)
	if err != nil {
		return false, x402.NewConfigurationError("invalid recipient address: " + err.Error())
	}
	mintKey, err := solanago.PublicKeyFromBase58(mint)
	if err != nil {
		return false, x402.NewConfigurationError("invalid token mint: " + err.Error())
	}

	res, err := p.client.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Commitment: rpc.CommitmentConfirmed,
		Encoding:   solanago.EncodingBase64,
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return false, x402.NewTransactionNotVisibleError(txHash)
		}
		return false, err
	}
	if res == nil {
		return false, x402.NewTransactionNotVisibleError(txHash)
	}
	if res.Meta == nil {
		return false, nil
	}
	if res.Meta.Err != nil {
		p.log.WithField("transaction_hash", txHash).Info("transaction exists but failed on-chain")
		return false, nil
	}

	received, err := receivedAmount(res.Meta, recipientKey, mintKey)
	if err != nil {
		return false, nil
	}
	if !settles(received, expectedBaseUnits) {
		p.log.WithFields(logrus.Fields{
			"transaction_hash": txHash,
			"expected":         expectedBaseUnits,
			"received":         received,
		}).Info("transaction settled less than expected")
		return false, nil
	}
	return true, nil
}
