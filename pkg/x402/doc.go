// Package x402 implements the HTTP 402 Payment Required protocol for
// machine-to-machine micropayments.
//
// A server wraps its paid endpoints with a Guard. Requests without a
// payment authorization receive a 402 response carrying a PaymentRequest
// challenge. A client pays the challenge on chain, encodes the resulting
// PaymentAuthorization into the X-Payment-Authorization header and retries.
// The guard verifies the payment against the ledger, consumes the
// transaction hash so it cannot be replayed, and lets the request through.
//
// Server side:
//
//	guard, _ := x402.NewGuard(x402.GuardConfig{
//	    PaymentAddress: "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU",
//	    AssetAddress:   x402.USDCDevnetMint,
//	    Network:        x402.NetworkDevnet,
//	    Amount:         "0.10",
//	}, processor, x402.NewInMemoryReplayStore())
//
//	mux.Handle("/premium", x402.Middleware(premiumHandler, guard, nil))
//
// Client side:
//
//	client := x402.NewAutoClient(x402.NewClient(processor, wallet, x402.ClientConfig{}), nil)
//	resp, err := client.Get(ctx, "https://api.example.com/premium")
//
// The ledger integration lives behind the Processor interface; the Solana
// implementation is in package pkg/solana.
package x402
