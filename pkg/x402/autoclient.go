// Package x402 - Automatic payment client
// AutoClient hides the 402 handshake: on a payment challenge it checks the
// price against its configured ceiling, pays, and retries exactly once. A
// second 402 after paying is a protocol failure and surfaces as an error
// rather than another payment.
package x402

import (
	"bytes"
	"context"
	"io"
	"net/http"
)

// AutoClientConfig configures an automatic client.
type AutoClientConfig struct {
	// AutoRetry pays and retries 402 responses automatically. When a nil
	// config is passed to NewAutoClient this defaults to true.
	AutoRetry bool
	// MaxPaymentAmount is a spending ceiling in decimal token units.
	// Challenges above it are refused with a ConfigurationError before
	// any funds move. Empty means no ceiling.
	MaxPaymentAmount string
}

// AutoClient pays 402 challenges transparently.
type AutoClient struct {
	client *Client
	cfg    AutoClientConfig
}

// NewAutoClient wraps an explicit client. cfg may be nil, which enables
// AutoRetry with no spending ceiling.
func NewAutoClient(client *Client, cfg *AutoClientConfig) *AutoClient {
	if cfg == nil {
		cfg = &AutoClientConfig{AutoRetry: true}
	}
	return &AutoClient{client: client, cfg: *cfg}
}

// FetchOptions overrides AutoClient behavior for one request.
type FetchOptions struct {
	// AutoRetry overrides the configured AutoRetry when non-nil.
	AutoRetry *bool
}

// Fetch performs the request, settling a payment challenge along the way
// when AutoRetry is enabled. The caller owns the response body.
func (c *AutoClient) Fetch(ctx context.Context, method, rawURL string, body []byte) (*http.Response, error) {
	return c.FetchWithOptions(ctx, method, rawURL, body, FetchOptions{})
}

// Get fetches rawURL with GET.
func (c *AutoClient) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	return c.Fetch(ctx, http.MethodGet, rawURL, nil)
}

// Post fetches rawURL with POST and a JSON body.
func (c *AutoClient) Post(ctx context.Context, rawURL string, body []byte) (*http.Response, error) {
	return c.Fetch(ctx, http.MethodPost, rawURL, body)
}

// FetchWithOptions is Fetch with per-request overrides.
func (c *AutoClient) FetchWithOptions(ctx context.Context, method, rawURL string, body []byte, opts FetchOptions) (*http.Response, error) {
	resp, err := c.request(ctx, method, rawURL, body, nil)
	if err != nil {
		return nil, err
	}
	if !IsPaymentRequired(resp) {
		return resp, nil
	}

	req, err := ParseChallenge(resp)
	if err != nil {
		return nil, err
	}

	autoRetry := c.cfg.AutoRetry
	if opts.AutoRetry != nil {
		autoRetry = *opts.AutoRetry
	}
	if !autoRetry {
		return nil, NewPaymentRequiredError(req)
	}

	if err := c.checkCeiling(req); err != nil {
		return nil, err
	}

	auth, err := c.client.CreatePayment(ctx, req, "")
	if err != nil {
		return nil, err
	}

	resp, err = c.request(ctx, method, rawURL, body, auth)
	if err != nil {
		return nil, err
	}
	if IsPaymentRequired(resp) {
		// Funds already moved; paying again here would double spend.
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()
		return nil, NewPaymentVerificationError("server demanded payment again after settlement", auth.TransactionHash)
	}
	return resp, nil
}

// checkCeiling enforces MaxPaymentAmount before any funds move. The
// comparison is done in base units so string formatting differences do not
// matter.
func (c *AutoClient) checkCeiling(req *PaymentRequest) error {
	if c.cfg.MaxPaymentAmount == "" {
		return nil
	}
	ceiling, err := ParseAmount(c.cfg.MaxPaymentAmount, c.client.decimals)
	if err != nil {
		return NewConfigurationError("invalid max payment amount: " + err.Error())
	}
	asked, err := ParseAmount(req.MaxAmountRequired, c.client.decimals)
	if err != nil {
		return err
	}
	if asked > ceiling {
		return NewConfigurationError(
			"challenge amount " + req.MaxAmountRequired + " exceeds max payment amount " + c.cfg.MaxPaymentAmount)
	}
	return nil
}

func (c *AutoClient) request(ctx context.Context, method, rawURL string, body []byte, auth *PaymentAuthorization) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.client.Do(req, auth)
}
