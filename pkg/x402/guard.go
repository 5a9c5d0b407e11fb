// Package x402 - Server-side payment guard
// The Guard is framework agnostic: Evaluate takes the resource path and the
// raw authorization header and returns an Outcome saying whether to serve
// the request or what refusal to write. Middleware adapts it to net/http;
// package x402gin adapts it to gin.
package x402

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrorHeader carries the protocol error code on refused responses so
// clients can branch without parsing the body.
const ErrorHeader = "X-Payment-Error"

// DefaultChallengeTTL is how long an issued challenge stays payable when
// GuardConfig.ChallengeTTL is zero.
const DefaultChallengeTTL = 5 * time.Minute

// GuardConfig configures a payment guard.
type GuardConfig struct {
	// PaymentAddress is the wallet that must receive payments.
	PaymentAddress string
	// AssetAddress is the SPL token mint payments must use.
	AssetAddress string
	// Network identifies the ledger, e.g. NetworkDevnet.
	Network string
	// Amount is the default price per request in decimal token units.
	// EndpointOptions can override it per endpoint.
	Amount string
	// Description is attached to issued challenges.
	Description string
	// Decimals of the token mint. Defaults to USDCDecimals.
	Decimals uint8
	// ChallengeTTL bounds how long a challenge stays payable. Defaults to
	// DefaultChallengeTTL.
	ChallengeTTL time.Duration
	// InsecureSkipVerify skips on-chain verification and trusts the
	// client's claim. Only for tests against fake ledgers; never enable
	// in production.
	InsecureSkipVerify bool
	// Logger receives structured guard logs. Defaults to the logrus
	// standard logger.
	Logger *logrus.Logger
}

// EndpointOptions overrides guard defaults for a single endpoint.
type EndpointOptions struct {
	Amount      string
	Description string
}

// Outcome is the guard's decision for one request.
type Outcome struct {
	// Allow is true when the request carried a valid, unconsumed payment
	// and should be served.
	Allow bool
	// Status, Headers and Body describe the refusal response when Allow
	// is false.
	Status  int
	Headers map[string]string
	Body    interface{}
	// Authorization is the verified payment when Allow is true.
	Authorization *PaymentAuthorization
}

// Guard evaluates payment authorizations for protected resources.
type Guard struct {
	cfg    GuardConfig
	proc   Processor
	replay ReplayStore
	log    *logrus.Logger
}

// NewGuard validates the configuration and builds a guard. processor may
// be nil only when InsecureSkipVerify is set.
func NewGuard(cfg GuardConfig, processor Processor, replay ReplayStore) (*Guard, error) {
	if cfg.PaymentAddress == "" {
		return nil, NewConfigurationError("payment address is required")
	}
	if cfg.AssetAddress == "" {
		return nil, NewConfigurationError("asset address is required")
	}
	if cfg.Network == "" {
		return nil, NewConfigurationError("network is required")
	}
	if cfg.Decimals == 0 {
		cfg.Decimals = USDCDecimals
	}
	if _, err := ParseAmount(cfg.Amount, cfg.Decimals); err != nil {
		return nil, NewConfigurationError("invalid default amount: " + err.Error())
	}
	if cfg.ChallengeTTL <= 0 {
		cfg.ChallengeTTL = DefaultChallengeTTL
	}
	if processor == nil && !cfg.InsecureSkipVerify {
		return nil, NewConfigurationError("a payment processor is required")
	}
	if replay == nil {
		return nil, NewConfigurationError("a replay store is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	return &Guard{cfg: cfg, proc: processor, replay: replay, log: cfg.Logger}, nil
}

// Evaluate decides what to do with a request for resource carrying the
// given raw X-Payment-Authorization header value (empty when absent).
func (g *Guard) Evaluate(ctx context.Context, resource, authHeader string, opts *EndpointOptions) Outcome {
	amount := g.cfg.Amount
	description := g.cfg.Description
	if opts != nil {
		if opts.Amount != "" {
			amount = opts.Amount
		}
		if opts.Description != "" {
			description = opts.Description
		}
	}

	requiredBase, err := ParseAmount(amount, g.cfg.Decimals)
	if err != nil {
		g.log.WithFields(logrus.Fields{"resource": resource, "amount": amount}).
			WithError(err).Error("invalid endpoint amount")
		return refusal(http.StatusInternalServerError, NewConfigurationError("invalid endpoint amount"))
	}

	if authHeader == "" {
		return g.challenge(resource, amount, description)
	}

	auth, err := ParseAuthorizationHeader(authHeader)
	if err != nil {
		metricVerifications.WithLabelValues(ResultMalformed).Inc()
		g.log.WithField("resource", resource).WithError(err).Info("rejecting malformed authorization")
		return refusal(http.StatusBadRequest, err)
	}

	if auth.PaymentAddress != g.cfg.PaymentAddress ||
		auth.AssetAddress != g.cfg.AssetAddress ||
		auth.Network != g.cfg.Network {
		metricVerifications.WithLabelValues(ResultInvalid).Inc()
		g.log.WithFields(logrus.Fields{
			"resource":   resource,
			"payment_id": auth.PaymentID,
		}).Info("authorization does not match endpoint payment parameters")
		return refusal(http.StatusBadRequest,
			NewInvalidAuthorizationError("authorization does not match this endpoint's payment parameters"))
	}

	paidBase, err := ParseAmount(auth.ActualAmount, g.cfg.Decimals)
	if err != nil {
		metricVerifications.WithLabelValues(ResultMalformed).Inc()
		return refusal(http.StatusBadRequest, NewInvalidAuthorizationError("actual_amount: "+err.Error()))
	}
	if paidBase < requiredBase {
		metricVerifications.WithLabelValues(ResultUnderpaid).Inc()
		g.log.WithFields(logrus.Fields{
			"resource":   resource,
			"payment_id": auth.PaymentID,
			"required":   requiredBase,
			"provided":   paidBase,
		}).Info("rejecting underpayment")
		out := g.challenge(resource, amount, description)
		out.Headers[ErrorHeader] = CodeInsufficientFunds
		return out
	}

	keys := []string{TransactionKey(auth.TransactionHash), PaymentIDKey(auth.PaymentID)}

	seen, err := g.replay.Seen(ctx, keys...)
	if err != nil {
		metricReplayStoreFailures.Inc()
		g.log.WithError(err).Error("replay store lookup failed")
		return refusal(http.StatusBadGateway, verificationUnavailable())
	}
	if seen {
		return g.replayRejected(resource, auth)
	}

	if !g.cfg.InsecureSkipVerify {
		if out, ok := g.verify(ctx, resource, amount, description, auth, requiredBase); !ok {
			return out
		}
	}

	// Commit point. Exactly one concurrent request with this proof wins.
	consumed, err := g.replay.Consume(ctx, keys...)
	if err != nil {
		metricReplayStoreFailures.Inc()
		g.log.WithError(err).Error("replay store consume failed")
		return refusal(http.StatusBadGateway, verificationUnavailable())
	}
	if !consumed {
		return g.replayRejected(resource, auth)
	}

	metricVerifications.WithLabelValues(ResultOK).Inc()
	g.log.WithFields(logrus.Fields{
		"resource":         resource,
		"payment_id":       auth.PaymentID,
		"transaction_hash": auth.TransactionHash,
		"amount":           auth.ActualAmount,
	}).Info("payment accepted")
	return Outcome{Allow: true, Authorization: auth}
}

// verify runs on-chain verification. It returns ok=true when the payment
// checked out; otherwise the Outcome to write.
func (g *Guard) verify(ctx context.Context, resource, amount, description string, auth *PaymentAuthorization, requiredBase uint64) (Outcome, bool) {
	verified, err := g.proc.VerifyTransaction(ctx, auth.TransactionHash, g.cfg.PaymentAddress, requiredBase, g.cfg.AssetAddress)
	if err != nil {
		var notVisible *TransactionNotVisibleError
		if errors.As(err, &notVisible) {
			metricVerifications.WithLabelValues(ResultFailed).Inc()
			g.log.WithFields(logrus.Fields{
				"resource":         resource,
				"transaction_hash": auth.TransactionHash,
			}).Info("transaction not yet visible, client may retry")
			out := refusal(http.StatusPaymentRequired, err)
			out.Headers[PaymentRequiredHeader] = "true"
			out.Headers[PaymentProtocolHeader] = ProtocolName
			return out, false
		}
		metricRPCFailures.Inc()
		g.log.WithFields(logrus.Fields{
			"resource":         resource,
			"transaction_hash": auth.TransactionHash,
		}).WithError(err).Error("ledger verification unavailable")
		return refusal(http.StatusBadGateway, verificationUnavailable()), false
	}
	if !verified {
		metricVerifications.WithLabelValues(ResultFailed).Inc()
		g.log.WithFields(logrus.Fields{
			"resource":         resource,
			"payment_id":       auth.PaymentID,
			"transaction_hash": auth.TransactionHash,
		}).Info("rejecting unverified payment")
		out := g.challenge(resource, amount, description)
		out.Headers[ErrorHeader] = CodePaymentVerificationFailed
		return out, false
	}
	return Outcome{}, true
}

// challenge issues a fresh 402 with a new payment ID and nonce.
func (g *Guard) challenge(resource, amount, description string) Outcome {
	req := NewPaymentRequest(amount, g.cfg.AssetAddress, g.cfg.PaymentAddress, g.cfg.Network, resource, description, g.cfg.ChallengeTTL)
	metricChallengesIssued.Inc()
	return Outcome{
		Status: http.StatusPaymentRequired,
		Headers: map[string]string{
			PaymentRequiredHeader: "true",
			PaymentProtocolHeader: ProtocolName,
		},
		Body: req,
	}
}

// verificationUnavailable is the retryable 502 body used when the RPC
// node or replay store cannot be reached.
func verificationUnavailable() *ProtocolError {
	return &ProtocolError{
		Code:      CodeVerificationUnavailable,
		Message:   "payment verification temporarily unavailable",
		Retryable: true,
	}
}

func (g *Guard) replayRejected(resource string, auth *PaymentAuthorization) Outcome {
	metricVerifications.WithLabelValues(ResultReplay).Inc()
	g.log.WithFields(logrus.Fields{
		"resource":         resource,
		"payment_id":       auth.PaymentID,
		"transaction_hash": auth.TransactionHash,
	}).Warn("rejecting replayed payment authorization")
	return refusal(http.StatusConflict, &ProtocolError{
		Code:    CodeReplayDetected,
		Message: "payment authorization has already been used",
	})
}

// refusal builds a non-allowing outcome with a JSON error body.
func refusal(status int, err error) Outcome {
	body := map[string]interface{}{
		"error": err.Error(),
	}
	var pe *ProtocolError
	if errors.As(err, &pe) {
		body["code"] = pe.Code
		body["retryable"] = pe.Retryable
		if len(pe.Details) > 0 {
			body["details"] = pe.Details
		}
	}
	headers := map[string]string{}
	if code, ok := body["code"].(string); ok {
		headers[ErrorHeader] = code
	}
	return Outcome{Status: status, Headers: headers, Body: body}
}

type contextKey string

const authorizationContextKey contextKey = "x402.authorization"

// GetPaymentAuthorization returns the verified payment attached to a
// request that passed the middleware, or nil.
func GetPaymentAuthorization(r *http.Request) *PaymentAuthorization {
	auth, _ := r.Context().Value(authorizationContextKey).(*PaymentAuthorization)
	return auth
}

// Middleware wraps next so only paid requests reach it. opts may be nil to
// use the guard's defaults.
func Middleware(next http.Handler, g *Guard, opts *EndpointOptions) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		out := g.Evaluate(r.Context(), r.URL.Path, r.Header.Get(AuthorizationHeader), opts)
		if !out.Allow {
			for k, v := range out.Headers {
				w.Header().Set(k, v)
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(out.Status)
			_ = json.NewEncoder(w).Encode(out.Body)
			return
		}

		ctx := context.WithValue(r.Context(), authorizationContextKey, out.Authorization)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
