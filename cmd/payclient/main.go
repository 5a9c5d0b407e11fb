// payclient - Fetch an x402-protected resource, paying the challenge
// automatically from a Solana wallet.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/x402labs/x402-go/pkg/solana"
	"github.com/x402labs/x402-go/pkg/x402"
)

func main() {
	method := flag.String("method", "GET", "HTTP method")
	rpcURL := flag.String("rpc-url", "", "Solana RPC URL (defaults to the network's public endpoint)")
	network := flag.String("network", x402.NetworkDevnet, "Payment network")
	maxPayment := flag.String("max-payment", "1.00", "Maximum amount to pay per request, in token units")
	timeout := flag.Duration("timeout", 2*time.Minute, "Overall request timeout")
	allowLocal := flag.Bool("allow-local", false, "Allow requests to localhost and private addresses")
	noPay := flag.Bool("no-pay", false, "Show the payment challenge instead of paying it")

	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <url>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}
	targetURL := flag.Arg(0)

	// The key never travels through argv.
	privateKey := os.Getenv("X402_PRIVATE_KEY")
	if privateKey == "" {
		log.Fatal("X402_PRIVATE_KEY environment variable is required")
	}
	if env := os.Getenv("X402_RPC_URL"); env != "" && *rpcURL == "" {
		*rpcURL = env
	}
	if *rpcURL == "" {
		*rpcURL = solana.DefaultRPCURL(*network)
	}

	identity, err := solana.NewWalletIdentity(privateKey)
	if err != nil {
		log.Fatalf("Invalid private key: %v", err)
	}

	processor, err := solana.NewProcessor(solana.ProcessorConfig{RPCURL: *rpcURL})
	if err != nil {
		log.Fatalf("Failed to create payment processor: %v", err)
	}

	client := x402.NewAutoClient(
		x402.NewClient(processor, identity, x402.ClientConfig{AllowLocal: *allowLocal}),
		&x402.AutoClientConfig{AutoRetry: !*noPay, MaxPaymentAmount: *maxPayment},
	)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	resp, err := client.Fetch(ctx, *method, targetURL, nil)
	if err != nil {
		var required *x402.PaymentRequiredError
		if errors.As(err, &required) {
			data, _ := required.Request.ToJSON()
			fmt.Fprintf(os.Stderr, "Payment required:\n%s\n", data)
			os.Exit(1)
		}
		log.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	fmt.Fprintf(os.Stderr, "HTTP %d\n", resp.StatusCode)
	if _, err := io.Copy(os.Stdout, resp.Body); err != nil {
		log.Fatalf("Reading response: %v", err)
	}
	fmt.Println()
}
