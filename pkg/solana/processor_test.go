package solana

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/x402labs/x402-go/pkg/x402"
)

const testWallet = "So11111111111111111111111111111111111111112"

// fakeNode answers JSON-RPC calls with canned result or error fragments
// keyed by method name.
func fakeNode(t *testing.T, responses map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Failed to decode rpc request: %v", err)
			return
		}
		fragment, ok := responses[req.Method]
		if !ok {
			t.Errorf("Unexpected rpc method %q", req.Method)
			fragment = `"error":{"code":-32601,"message":"method not found"}`
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,%s}`, req.ID, fragment)
	}))
}

func testProcessor(t *testing.T, responses map[string]string) *Processor {
	t.Helper()
	srv := fakeNode(t, responses)
	t.Cleanup(srv.Close)
	p, err := NewProcessor(ProcessorConfig{RPCURL: srv.URL})
	if err != nil {
		t.Fatalf("NewProcessor failed: %v", err)
	}
	return p
}

func TestGetBalance_ReturnsBaseUnits(t *testing.T) {
	p := testProcessor(t, map[string]string{
		"getTokenAccountBalance": `"result":{"context":{"slot":1},"value":{"amount":"250000","decimals":6,"uiAmountString":"0.25"}}`,
	})

	balance, err := p.GetBalance(context.Background(), testWallet, x402.USDCDevnetMint)
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if balance != 250000 {
		t.Errorf("Expected balance 250000, got %d", balance)
	}
}

func TestGetBalance_MissingAccountReadsZero(t *testing.T) {
	// A wallet with no token account for the mint: the balance call
	// fails with a plain rpc error, and the account lookup reports the
	// account absent.
	p := testProcessor(t, map[string]string{
		"getTokenAccountBalance": `"error":{"code":-32602,"message":"could not find account"}`,
		"getAccountInfo":         `"result":{"context":{"slot":1},"value":null}`,
	})

	balance, err := p.GetBalance(context.Background(), testWallet, x402.USDCDevnetMint)
	if err != nil {
		t.Fatalf("Expected missing account to read as zero, got error: %v", err)
	}
	if balance != 0 {
		t.Errorf("Expected balance 0, got %d", balance)
	}
}

func TestGetBalance_OutagePropagatesError(t *testing.T) {
	// When the node is unhealthy the account lookup fails too, so the
	// original error must surface instead of a misleading zero balance.
	p := testProcessor(t, map[string]string{
		"getTokenAccountBalance": `"error":{"code":-32004,"message":"Block not available"}`,
		"getAccountInfo":         `"error":{"code":-32004,"message":"Block not available"}`,
	})

	if _, err := p.GetBalance(context.Background(), testWallet, x402.USDCDevnetMint); err == nil {
		t.Fatal("Expected rpc outage to propagate an error, got nil")
	}
}

func TestGetBalance_InvalidAddresses(t *testing.T) {
	p := testProcessor(t, nil)

	if _, err := p.GetBalance(context.Background(), "not-base58", x402.USDCDevnetMint); err == nil {
		t.Error("Expected error for invalid wallet address")
	}
	if _, err := p.GetBalance(context.Background(), testWallet, "not-base58"); err == nil {
		t.Error("Expected error for invalid token mint")
	}
}
