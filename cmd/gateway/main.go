// gateway - A reverse proxy that puts an x402 paywall in front of any
// backend. Requests to non-exempt paths must carry a verified Solana
// payment before they are proxied.
package main

import (
	"flag"
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"strings"

	"github.com/x402labs/x402-go/pkg/solana"
	"github.com/x402labs/x402-go/pkg/x402"
)

func main() {
	listenAddr := flag.String("listen", ":8402", "Gateway listen address")
	backendURL := flag.String("backend", "", "Backend URL to proxy to (e.g., http://localhost:3000)")
	paymentAddress := flag.String("payment-address", "", "Wallet that receives payments")
	assetAddress := flag.String("asset", x402.USDCDevnetMint, "SPL token mint payments must use")
	network := flag.String("network", x402.NetworkDevnet, "Payment network")
	rpcURL := flag.String("rpc-url", "", "Solana RPC URL (defaults to the network's public endpoint)")
	price := flag.String("price", "0.10", "Price per request in token units")
	exemptPaths := flag.String("exempt", "/health,/favicon.ico", "Comma-separated exempt path prefixes")

	flag.Parse()

	// Allow environment variable overrides
	if env := os.Getenv("X402_BACKEND_URL"); env != "" {
		*backendURL = env
	}
	if env := os.Getenv("X402_PAYMENT_ADDRESS"); env != "" {
		*paymentAddress = env
	}
	if env := os.Getenv("X402_LISTEN_ADDR"); env != "" {
		*listenAddr = env
	}
	if env := os.Getenv("X402_RPC_URL"); env != "" {
		*rpcURL = env
	}

	if *backendURL == "" {
		log.Fatal("Backend URL is required. Use -backend flag or X402_BACKEND_URL env var")
	}
	if *paymentAddress == "" {
		log.Fatal("Payment address is required. Use -payment-address flag or X402_PAYMENT_ADDRESS env var")
	}
	if *rpcURL == "" {
		*rpcURL = solana.DefaultRPCURL(*network)
	}

	target, err := url.Parse(*backendURL)
	if err != nil {
		log.Fatalf("Invalid backend URL: %v", err)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)

	originalDirector := proxy.Director
	proxy.Director = func(req *http.Request) {
		originalDirector(req)
		req.Header.Set("X-Forwarded-Host", req.Host)
		req.Header.Set("X-Origin-Host", target.Host)
		// The backend can trust this header because the gateway strips
		// the raw authorization after verifying it.
		if auth := x402.GetPaymentAuthorization(req); auth != nil {
			req.Header.Set("X-Payment-Verified", "true")
			req.Header.Set("X-Payment-Payer", auth.PublicKey)
			req.Header.Del(x402.AuthorizationHeader)
		}
	}

	processor, err := solana.NewProcessor(solana.ProcessorConfig{RPCURL: *rpcURL})
	if err != nil {
		log.Fatalf("Failed to create payment processor: %v", err)
	}

	guard, err := x402.NewGuard(x402.GuardConfig{
		PaymentAddress: *paymentAddress,
		AssetAddress:   *assetAddress,
		Network:        *network,
		Amount:         *price,
		Description:    "access via x402 gateway",
	}, processor, x402.NewInMemoryReplayStore())
	if err != nil {
		log.Fatalf("Invalid payment configuration: %v", err)
	}

	paywalled := x402.Middleware(proxy, guard, nil)
	handler := exemptHandler(strings.Split(*exemptPaths, ","), proxy, paywalled)

	log.Printf("🚀 x402 gateway starting on %s", *listenAddr)
	log.Printf("🔗 Proxying to: %s", *backendURL)
	log.Printf("💰 Price: %s per request (%s)", *price, *network)
	log.Printf("🔓 Exempt paths: %s", *exemptPaths)

	log.Fatal(http.ListenAndServe(*listenAddr, handler))
}

// exemptHandler routes exempt path prefixes straight to the backend and
// everything else through the paywall.
func exemptHandler(exempt []string, free, paid http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, prefix := range exempt {
			prefix = strings.TrimSpace(prefix)
			if prefix != "" && strings.HasPrefix(r.URL.Path, prefix) {
				free.ServeHTTP(w, r)
				return
			}
		}
		paid.ServeHTTP(w, r)
	})
}
