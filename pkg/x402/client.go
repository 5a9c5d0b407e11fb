// Package x402 - Explicit payment client
// Client gives the caller full control: it surfaces 402 responses, and
// payment only happens when the caller invokes CreatePayment and retries
// with the returned authorization. AutoClient builds on it for the
// pay-without-asking flow.
package x402

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ClientConfig configures an explicit payment client.
type ClientConfig struct {
	// HTTPClient performs the requests. Defaults to a client with a 30s
	// timeout.
	HTTPClient *http.Client
	// AllowLocal permits requests to localhost and private address
	// ranges, which are otherwise refused to keep a payment-capable
	// client from being steered at internal services. Enable for tests.
	AllowLocal bool
	// Decimals of the token mint. Defaults to USDCDecimals.
	Decimals uint8
	// Logger receives structured client logs. Defaults to the logrus
	// standard logger.
	Logger *logrus.Logger
}

// Client is an HTTP client that can settle 402 challenges on demand.
type Client struct {
	proc       Processor
	identity   Identity
	httpClient *http.Client
	allowLocal bool
	decimals   uint8
	log        *logrus.Logger
}

// NewClient builds an explicit client paying from identity via processor.
func NewClient(processor Processor, identity Identity, cfg ClientConfig) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Decimals == 0 {
		cfg.Decimals = USDCDecimals
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	return &Client{
		proc:       processor,
		identity:   identity,
		httpClient: cfg.HTTPClient,
		allowLocal: cfg.AllowLocal,
		decimals:   cfg.Decimals,
		log:        cfg.Logger,
	}
}

// Do sends the request, attaching auth as the payment authorization header
// when non-nil. The caller owns the response body.
func (c *Client) Do(req *http.Request, auth *PaymentAuthorization) (*http.Response, error) {
	if err := c.checkURL(req.URL); err != nil {
		return nil, err
	}
	if auth != nil {
		header, err := auth.ToHeaderValue()
		if err != nil {
			return nil, NewInvalidAuthorizationError("encoding authorization: " + err.Error())
		}
		req.Header.Set(AuthorizationHeader, header)
	}
	return c.httpClient.Do(req)
}

// Get issues a GET, optionally with a payment authorization.
func (c *Client) Get(ctx context.Context, rawURL string, auth *PaymentAuthorization) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req, auth)
}

// Post issues a POST with a JSON body, optionally with a payment
// authorization.
func (c *Client) Post(ctx context.Context, rawURL string, body []byte, auth *PaymentAuthorization) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.Do(req, auth)
}

// Put issues a PUT with a JSON body, optionally with a payment
// authorization.
func (c *Client) Put(ctx context.Context, rawURL string, body []byte, auth *PaymentAuthorization) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, rawURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.Do(req, auth)
}

// Delete issues a DELETE, optionally with a payment authorization.
func (c *Client) Delete(ctx context.Context, rawURL string, auth *PaymentAuthorization) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, rawURL, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req, auth)
}

// IsPaymentRequired reports whether resp is a 402 payment challenge.
func IsPaymentRequired(resp *http.Response) bool {
	return resp != nil && resp.StatusCode == http.StatusPaymentRequired
}

// ParseChallenge reads and closes a 402 response body and decodes the
// payment request in it.
func ParseChallenge(resp *http.Response) (*PaymentRequest, error) {
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, NewInvalidPaymentRequestError("reading challenge body: " + err.Error())
	}
	return ParsePaymentRequest(data)
}

// CreatePayment settles a challenge on chain and returns the authorization
// to retry with. amountOverride, when non-empty, pays that amount instead
// of the challenge's max_amount_required; it must still satisfy the
// server. The flow is: check expiry, check balance, build the transfer,
// sign and broadcast, then assemble the signed authorization.
func (c *Client) CreatePayment(ctx context.Context, req *PaymentRequest, amountOverride string) (*PaymentAuthorization, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.IsExpired() {
		return nil, NewPaymentExpiredError(req)
	}

	amount := req.MaxAmountRequired
	if amountOverride != "" {
		amount = amountOverride
	}
	baseUnits, err := ParseAmount(amount, c.decimals)
	if err != nil {
		return nil, err
	}

	balance, err := c.proc.GetBalance(ctx, c.identity.PublicKey(), req.AssetAddress)
	if err != nil {
		return nil, err
	}
	if balance < baseUnits {
		return nil, NewInsufficientFundsError(amount, FormatAmount(balance, c.decimals))
	}

	start := time.Now()
	tx, err := c.proc.CreateTransferTransaction(ctx, req, baseUnits, c.identity)
	if err != nil {
		return nil, err
	}
	txHash, err := c.proc.SignAndBroadcast(ctx, tx, c.identity)
	if err != nil {
		return nil, err
	}
	metricPaymentsCreated.Inc()
	metricPaymentDuration.Observe(time.Since(start).Seconds())

	c.log.WithFields(logrus.Fields{
		"payment_id":       req.PaymentID,
		"transaction_hash": txHash,
		"amount":           amount,
	}).Info("payment confirmed")

	auth := &PaymentAuthorization{
		PaymentID:       req.PaymentID,
		ActualAmount:    amount,
		AssetType:       req.AssetType,
		AssetAddress:    req.AssetAddress,
		PaymentAddress:  req.PaymentAddress,
		Network:         req.Network,
		Nonce:           req.Nonce,
		Timestamp:       time.Now().UTC(),
		PublicKey:       c.identity.PublicKey(),
		TransactionHash: txHash,
	}

	// The signature binds the wallet to this specific authorization.
	sig, err := c.identity.Sign(auth.signingPayload())
	if err != nil {
		return nil, NewInvalidAuthorizationError("signing authorization: " + err.Error())
	}
	auth.Signature = fmt.Sprintf("%x", sig)
	return auth, nil
}

// signingPayload is the byte string an authorization signature covers.
func (a *PaymentAuthorization) signingPayload() []byte {
	return []byte(strings.Join([]string{
		a.PaymentID, a.ActualAmount, a.PaymentAddress, a.Nonce, a.TransactionHash,
	}, "|"))
}

// checkURL refuses non-HTTP schemes and, unless AllowLocal is set,
// loopback and private destinations.
func (c *Client) checkURL(u *url.URL) error {
	if u == nil {
		return NewConfigurationError("request URL is required")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return NewConfigurationError(fmt.Sprintf("unsupported URL scheme %q", u.Scheme))
	}
	if c.allowLocal {
		return nil
	}

	host := u.Hostname()
	if host == "localhost" || strings.HasSuffix(host, ".localhost") || strings.HasSuffix(host, ".local") {
		return NewConfigurationError("requests to local hosts are not allowed")
	}
	if ip := net.ParseIP(host); ip != nil {
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
			return NewConfigurationError("requests to private addresses are not allowed")
		}
	}
	return nil
}
