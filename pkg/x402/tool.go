// Package x402 - Agent tool adapter
// Exposes the automatic client as a schema-described tool so LLM agents
// can fetch paid resources. The schema follows the JSON Schema subset
// tool-calling APIs expect.
package x402

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

// ToolProperty describes one input field of a tool.
type ToolProperty struct {
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Enum        []string `json:"enum,omitempty"`
}

// ToolInputSchema is the JSON schema of a tool's arguments.
type ToolInputSchema struct {
	Type       string                  `json:"type"`
	Properties map[string]ToolProperty `json:"properties"`
	Required   []string                `json:"required,omitempty"`
}

// ToolDefinition describes a tool to an agent runtime.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema ToolInputSchema `json:"input_schema"`
}

// FetchToolArgs are the arguments of the paid fetch tool.
type FetchToolArgs struct {
	URL    string `json:"url"`
	Method string `json:"method,omitempty"`
	Body   string `json:"body,omitempty"`
}

// FetchToolResult is what an invocation returns to the agent.
type FetchToolResult struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        string `json:"body"`
	PaymentMade bool   `json:"payment_made"`
}

// FetchTool lets an agent fetch x402-protected resources, paying within
// the wrapped client's spending ceiling.
type FetchTool struct {
	client *AutoClient
}

// NewFetchTool wraps an automatic client as an agent tool.
func NewFetchTool(client *AutoClient) *FetchTool {
	return &FetchTool{client: client}
}

// Definition returns the tool's schema for registration with an agent.
func (t *FetchTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name: "x402_fetch",
		Description: "Fetch an HTTP resource that may require payment. " +
			"Handles HTTP 402 challenges automatically within the configured spending limit.",
		InputSchema: ToolInputSchema{
			Type: "object",
			Properties: map[string]ToolProperty{
				"url": {
					Type:        "string",
					Description: "The URL to fetch",
				},
				"method": {
					Type:        "string",
					Description: "HTTP method, defaults to GET",
					Enum:        []string{"GET", "POST", "PUT", "DELETE"},
				},
				"body": {
					Type:        "string",
					Description: "Request body for POST and PUT",
				},
			},
			Required: []string{"url"},
		},
	}
}

// Invoke runs the tool with raw JSON arguments from the agent runtime.
func (t *FetchTool) Invoke(ctx context.Context, args json.RawMessage) (*FetchToolResult, error) {
	var in FetchToolArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, NewConfigurationError("invalid tool arguments: " + err.Error())
	}
	if in.URL == "" {
		return nil, NewConfigurationError("url is required")
	}
	method := strings.ToUpper(in.Method)
	if method == "" {
		method = http.MethodGet
	}
	var body []byte
	if in.Body != "" {
		body = []byte(in.Body)
	}

	resp, err := t.client.Fetch(ctx, method, in.URL, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	return &FetchToolResult{
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        string(data),
		PaymentMade: resp.Request != nil && resp.Request.Header.Get(AuthorizationHeader) != "",
	}, nil
}
