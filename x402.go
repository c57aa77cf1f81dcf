// Package x402 implements the x402 micropayment protocol settled on
// Aptos: a server requires a small, cryptographically verifiable
// on-chain payment before releasing a response, with no client accounts
// or API keys.
package x402

import (
	"context"
	"time"

	"github.com/adipundir/aptos-x402/clients"
	"github.com/adipundir/aptos-x402/logger"
	"github.com/adipundir/aptos-x402/metrics"
	"github.com/adipundir/aptos-x402/settlement"
	"github.com/adipundir/aptos-x402/types"
	"github.com/adipundir/aptos-x402/verification"
)

// Version information.
const (
	Version         = "1.0.0"
	ProtocolVersion = 1
)

// X402 wires the verifier, the settlement orchestrator and the chain
// client into one engine. All fields are set at construction and
// read-only afterwards; request handlers share a single instance.
type X402 struct {
	verifier *verification.VerificationService
	settler  *settlement.SettlementService
	client   clients.Client
	routes   *RouteTable

	log     logger.Logger
	metrics metrics.Recorder
	timeout time.Duration

	feePayer *settlement.FeePayer
	cache    *settlement.Cache
	cacheSet bool
}

// New builds an engine over one chain client and a validated route
// table.
func New(client clients.Client, routes *RouteTable, opts ...Option) (*X402, error) {
	if client == nil {
		return nil, types.ConfigErrorf("chain client is required")
	}
	if routes == nil {
		return nil, types.ConfigErrorf("route table is required")
	}

	x := &X402{
		client:  client,
		routes:  routes,
		log:     logger.NoopLogger{},
		metrics: metrics.NoopRecorder{},
		timeout: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(x)
	}
	if !x.cacheSet {
		x.cache = settlement.NewCache(2*time.Minute, 1024)
	}

	// Sponsored routes need a fee payer up front, not at first use.
	if x.feePayer == nil {
		for _, r := range routes.Routes() {
			if r.Requirements.Sponsored {
				return nil, types.ConfigErrorf("route %q is sponsored but no fee payer is configured", r.Pattern)
			}
		}
	}

	settleOpts := []settlement.Option{
		settlement.WithLogger(x.log),
		settlement.WithMetrics(x.metrics),
		settlement.WithCache(x.cache),
	}
	if x.feePayer != nil {
		settleOpts = append(settleOpts, settlement.WithFeePayer(x.feePayer))
	}

	x.verifier = verification.NewVerificationService(x.log, x.metrics)
	x.settler = settlement.NewSettlementService(client, settleOpts...)
	return x, nil
}

// Routes exposes the engine's route table.
func (x *X402) Routes() *RouteTable {
	return x.routes
}

// Verify checks a payment against a requirement without touching the
// chain.
func (x *X402) Verify(
	ctx context.Context,
	payload *types.PaymentPayload,
	requirements *types.PaymentRequirements,
) (*types.VerificationResult, error) {
	return x.verifier.Verify(ctx, payload, requirements)
}

// Settle submits a verified payment and waits for its terminal outcome.
func (x *X402) Settle(
	ctx context.Context,
	payload *types.PaymentPayload,
	requirements *types.PaymentRequirements,
) (*types.SettlementResult, error) {
	settleCtx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()
	return x.settler.Settle(settleCtx, payload, requirements)
}

// BatchVerify verifies multiple payments concurrently. Payloads and
// requirements are matched by index.
func (x *X402) BatchVerify(
	ctx context.Context,
	payloads []*types.PaymentPayload,
	requirements []*types.PaymentRequirements,
) ([]*types.VerificationResult, error) {
	if len(payloads) != len(requirements) {
		return nil, &types.X402Error{
			Code:    types.ErrInvalidPayload,
			Message: "number of payloads must match number of requirements",
		}
	}

	type indexed struct {
		i      int
		result *types.VerificationResult
		err    error
	}
	ch := make(chan indexed, len(payloads))
	for i := range payloads {
		go func(i int) {
			result, err := x.Verify(ctx, payloads[i], requirements[i])
			ch <- indexed{i: i, result: result, err: err}
		}(i)
	}

	results := make([]*types.VerificationResult, len(payloads))
	for range payloads {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case r := <-ch:
			if r.err != nil {
				return nil, r.err
			}
			results[r.i] = r.result
		}
	}
	return results, nil
}

// BatchSettle settles multiple payments concurrently. Individual
// failures land in the result slice, not in the error.
func (x *X402) BatchSettle(
	ctx context.Context,
	payloads []*types.PaymentPayload,
	requirements []*types.PaymentRequirements,
) ([]*types.SettlementResult, error) {
	if len(payloads) != len(requirements) {
		return nil, &types.X402Error{
			Code:    types.ErrInvalidPayload,
			Message: "number of payloads must match number of requirements",
		}
	}

	type indexed struct {
		i      int
		result *types.SettlementResult
		err    error
	}
	ch := make(chan indexed, len(payloads))
	for i := range payloads {
		go func(i int) {
			result, err := x.Settle(ctx, payloads[i], requirements[i])
			ch <- indexed{i: i, result: result, err: err}
		}(i)
	}

	results := make([]*types.SettlementResult, len(payloads))
	for range payloads {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case r := <-ch:
			if r.err != nil {
				results[r.i] = &types.SettlementResult{
					Success:   false,
					ErrorKind: types.ErrChainSubmission,
					Error:     r.err.Error(),
				}
				continue
			}
			results[r.i] = r.result
		}
	}
	return results, nil
}

// Supported lists the payment kinds this engine accepts.
func (x *X402) Supported() *types.SupportedResponse {
	return &types.SupportedResponse{
		Kinds: []types.SupportedItem{
			{
				X402Version: int(types.X402Version1),
				Scheme:      string(types.SchemeExact),
				Network:     x.client.Network().String(),
			},
			{
				X402Version: int(types.X402Version2),
				Scheme:      string(types.SchemeExact),
				Network:     x.client.Network().String(),
			},
		},
	}
}

// Close releases the chain client connection.
func (x *X402) Close() {
	x.client.Close()
}
