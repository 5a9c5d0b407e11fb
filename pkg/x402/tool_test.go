package x402_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/x402labs/x402-go/pkg/x402"
	"github.com/x402labs/x402-go/pkg/x402/x402test"
)

func TestFetchTool_Definition(t *testing.T) {
	proc := &x402test.FakeProcessor{}
	tool := x402.NewFetchTool(testAutoClient(proc, nil))

	def := tool.Definition()
	if def.Name != "x402_fetch" {
		t.Errorf("Expected tool name x402_fetch, got %s", def.Name)
	}
	if _, ok := def.InputSchema.Properties["url"]; !ok {
		t.Error("Expected url property in schema")
	}
	if len(def.InputSchema.Required) != 1 || def.InputSchema.Required[0] != "url" {
		t.Errorf("Expected url to be the only required field, got %v", def.InputSchema.Required)
	}

	// The definition must serialize cleanly for agent runtimes.
	if _, err := json.Marshal(def); err != nil {
		t.Fatalf("Definition failed to marshal: %v", err)
	}
}

func TestFetchTool_InvokePaidResource(t *testing.T) {
	proc := &x402test.FakeProcessor{Balance: 1000000}
	server := paidServer(t, proc)
	tool := x402.NewFetchTool(testAutoClient(proc, nil))

	args, _ := json.Marshal(x402.FetchToolArgs{URL: server.URL + "/premium"})
	result, err := tool.Invoke(context.Background(), args)
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}

	if result.Status != 200 {
		t.Errorf("Expected status 200, got %d", result.Status)
	}
	if result.Body != "premium content" {
		t.Errorf("Expected premium content, got %q", result.Body)
	}
	if !result.PaymentMade {
		t.Error("Expected payment_made to be true")
	}
	if len(proc.Broadcasts()) != 1 {
		t.Errorf("Expected 1 payment, got %d", len(proc.Broadcasts()))
	}
}

func TestFetchTool_InvokeInvalidArguments(t *testing.T) {
	proc := &x402test.FakeProcessor{}
	tool := x402.NewFetchTool(testAutoClient(proc, nil))

	if _, err := tool.Invoke(context.Background(), []byte("{")); err == nil {
		t.Error("Expected error for malformed arguments")
	}
	if _, err := tool.Invoke(context.Background(), []byte("{}")); err == nil {
		t.Error("Expected error for missing url")
	}
}
