// Package settlement submits verified payments to the chain and waits,
// bounded by the route's timeout, for a terminal outcome.
package settlement

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/aptos-labs/aptos-go-sdk"
	"github.com/aptos-labs/aptos-go-sdk/crypto"

	"github.com/adipundir/aptos-x402/clients"
	"github.com/adipundir/aptos-x402/logger"
	"github.com/adipundir/aptos-x402/metrics"
	"github.com/adipundir/aptos-x402/types"
)

// Settler is the contract for payment settlement.
type Settler interface {
	Settle(ctx context.Context, payload *types.PaymentPayload, requirements *types.PaymentRequirements) (*types.SettlementResult, error)
}

// FeePayer is the facilitator's sponsorship identity: its account
// covers gas on sponsored routes.
type FeePayer struct {
	Address aptos.AccountAddress
	Signer  crypto.Signer
}

// SettlementService submits verified payments through a chain client.
// It assumes the payload already passed verification; it re-decodes but
// does not re-verify.
type SettlementService struct {
	client   clients.Client
	feePayer *FeePayer
	cache    *Cache
	log      logger.Logger
	metrics  metrics.Recorder
}

var _ Settler = (*SettlementService)(nil)

// Option configures a SettlementService.
type Option func(*SettlementService)

// WithFeePayer enables sponsorship with the given fee payer identity.
func WithFeePayer(fp *FeePayer) Option {
	return func(s *SettlementService) {
		s.feePayer = fp
	}
}

// WithCache installs an idempotency cache. Pass nil to disable caching
// for deployments that guarantee one in-flight submission per sender
// sequence number.
func WithCache(cache *Cache) Option {
	return func(s *SettlementService) {
		s.cache = cache
	}
}

// WithLogger sets the service logger.
func WithLogger(log logger.Logger) Option {
	return func(s *SettlementService) {
		s.log = log
	}
}

// WithMetrics sets the telemetry recorder.
func WithMetrics(rec metrics.Recorder) Option {
	return func(s *SettlementService) {
		s.metrics = rec
	}
}

// NewSettlementService creates a settlement service over one chain
// client.
func NewSettlementService(client clients.Client, opts ...Option) *SettlementService {
	s := &SettlementService{
		client:  client,
		log:     logger.NoopLogger{},
		metrics: metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Settle submits the payment and waits for confirmation, bounded by
// the requirement's timeout. The result distinguishes chain rejection
// (retrying needs a fresh payment) from a confirmation timeout (the
// transaction may still land). An error return means either the
// payload never reached the chain or the caller cancelled mid-wait.
func (s *SettlementService) Settle(
	ctx context.Context,
	payload *types.PaymentPayload,
	requirements *types.PaymentRequirements,
) (*types.SettlementResult, error) {
	inner, err := payload.Aptos()
	if err != nil {
		return nil, &types.X402Error{Code: types.ErrInvalidPayload, Message: err.Error()}
	}

	if s.cache == nil {
		return s.settle(ctx, inner, requirements)
	}

	key := Key([]byte(inner.Transaction + inner.SenderAuthenticator))
	for {
		status, cached, done := s.cache.CheckAndMark(key)
		switch status {
		case StatusCached:
			s.metrics.IncCounter("settle_cache_hit", map[string]string{
				"network": requirements.Network.String(),
				"outcome": "cached",
			})
			return cached, nil
		case StatusInFlight:
			result, err := s.cache.Wait(ctx, key, done)
			if err != nil {
				return nil, err
			}
			if result == nil {
				// The in-flight attempt failed without caching; take
				// another turn. The context bounds how long a waiter
				// keeps retrying.
				continue
			}
			return result, nil
		}

		result, err := s.settle(ctx, inner, requirements)
		if err != nil {
			s.cache.Fail(key, done)
			return nil, err
		}
		// Cache every terminal outcome, including chain rejections: the
		// retry of a rejected payload would be rejected again anyway.
		s.cache.Complete(key, result, done)
		return result, nil
	}
}

func (s *SettlementService) settle(
	ctx context.Context,
	inner *types.AptosPayload,
	requirements *types.PaymentRequirements,
) (*types.SettlementResult, error) {
	start := time.Now()
	network := s.client.Network()

	txBytes, err := base64.StdEncoding.DecodeString(inner.Transaction)
	if err != nil {
		return nil, &types.X402Error{Code: types.ErrInvalidPayload, Message: "transaction bytes: " + err.Error()}
	}
	rawTxn, err := clients.DeserializeRawTransaction(txBytes)
	if err != nil {
		return nil, &types.X402Error{Code: types.ErrInvalidPayload, Message: err.Error()}
	}
	authBytes, err := base64.StdEncoding.DecodeString(inner.SenderAuthenticator)
	if err != nil {
		return nil, &types.X402Error{Code: types.ErrInvalidPayload, Message: "sender authenticator: " + err.Error()}
	}
	senderAuth, err := clients.DeserializeAuthenticator(authBytes)
	if err != nil {
		return nil, &types.X402Error{Code: types.ErrInvalidPayload, Message: err.Error()}
	}

	signedTxn, err := s.assemble(rawTxn, senderAuth, inner, requirements)
	if err != nil {
		return nil, err
	}

	submittedAt := time.Now()
	hash, err := s.client.Submit(ctx, signedTxn)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		code := clients.ClassifySubmissionError(err)
		s.log.Warn("settlement rejected by chain", map[string]any{
			"network": network.String(),
			"code":    code,
		})
		s.record("settle", network, string(types.ErrChainSubmission), start)
		return &types.SettlementResult{
			Success:     false,
			Network:     network,
			ErrorKind:   types.ErrChainSubmission,
			Error:       fmt.Sprintf("%s: %s", code, clients.RemediationFor(code)),
			SubmittedAt: submittedAt,
		}, nil
	}

	confirmCtx, cancel := context.WithTimeout(ctx, requirements.ConfirmationTimeout())
	defer cancel()

	conf, err := s.client.AwaitConfirmation(confirmCtx, hash)
	if err != nil {
		// Once submitted, an expired deadline means the transaction's
		// fate is unknown, whichever context carried the deadline.
		// Only cancellation stays a bare error.
		if errors.Is(err, context.DeadlineExceeded) {
			s.record("settle", network, string(types.ErrChainTimeout), start)
			return &types.SettlementResult{
				Success:     false,
				TxHash:      hash,
				Network:     network,
				ErrorKind:   types.ErrChainTimeout,
				Error:       "timed out waiting for confirmation; the transaction may still commit, do not re-sign with the same sequence number",
				SubmittedAt: submittedAt,
			}, nil
		}
		return nil, err
	}

	if !conf.Success {
		s.record("settle", network, string(types.ErrChainSubmission), start)
		return &types.SettlementResult{
			Success:     false,
			TxHash:      hash,
			Network:     network,
			ErrorKind:   types.ErrChainSubmission,
			Error:       fmt.Sprintf("%s: %s", clients.ErrExecutionFailed, clients.RemediationFor(clients.ClassifySubmissionError(errors.New(conf.VMStatus)))),
			SubmittedAt: submittedAt,
		}, nil
	}

	s.log.Info("payment settled", map[string]any{
		"network": network.String(),
		"hash":    conf.Hash,
		"version": conf.Version,
	})
	s.record("settle", network, "success", start)

	return &types.SettlementResult{
		Success:     true,
		TxHash:      conf.Hash,
		Network:     network,
		SubmittedAt: submittedAt,
		SettledAt:   time.Now(),
	}, nil
}

// assemble attaches authenticators, signing the fee-payer slot with the
// service's fee payer on sponsored routes.
func (s *SettlementService) assemble(
	rawTxn *aptos.RawTransaction,
	senderAuth *crypto.AccountAuthenticator,
	inner *types.AptosPayload,
	requirements *types.PaymentRequirements,
) (*aptos.SignedTransaction, error) {
	if !requirements.Sponsored {
		return clients.AssembleSignedTransaction(rawTxn, senderAuth, nil, nil)
	}

	// A pre-signed fee payer slot wins over the service's own signer.
	if inner.FeePayerAuthenticator != "" {
		if inner.FeePayerAddress == "" {
			return nil, types.ConfigErrorf("payment carries a fee payer authenticator without an address")
		}
		addr, err := clients.ParseAddress(inner.FeePayerAddress)
		if err != nil {
			return nil, &types.X402Error{Code: types.ErrInvalidPayload, Message: err.Error()}
		}
		authBytes, err := base64.StdEncoding.DecodeString(inner.FeePayerAuthenticator)
		if err != nil {
			return nil, &types.X402Error{Code: types.ErrInvalidPayload, Message: "fee payer authenticator: " + err.Error()}
		}
		feePayerAuth, err := clients.DeserializeAuthenticator(authBytes)
		if err != nil {
			return nil, &types.X402Error{Code: types.ErrInvalidPayload, Message: err.Error()}
		}
		return clients.AssembleSignedTransaction(rawTxn, senderAuth, &addr, feePayerAuth)
	}

	if s.feePayer == nil {
		return nil, types.ConfigErrorf("route is sponsored but no fee payer is configured")
	}
	feePayerAuth, err := clients.SignTransfer(s.feePayer.Signer, rawTxn, &s.feePayer.Address)
	if err != nil {
		return nil, fmt.Errorf("sign fee payer slot: %w", err)
	}
	return clients.AssembleSignedTransaction(rawTxn, senderAuth, &s.feePayer.Address, feePayerAuth)
}

// Receipt builds the response-header receipt for a successful
// settlement.
func Receipt(result *types.SettlementResult, requirements *types.PaymentRequirements) *types.SettlementReceipt {
	return &types.SettlementReceipt{
		TransactionHash: result.TxHash,
		Amount:          requirements.MaxAmountRequired,
		Recipient:       requirements.PayTo,
		Settled:         result.Success,
	}
}

func (s *SettlementService) record(op string, network types.Network, outcome string, start time.Time) {
	labels := map[string]string{
		"network": network.String(),
		"outcome": outcome,
	}
	s.metrics.IncCounter(op, labels)
	s.metrics.ObserveLatency(op, time.Since(start), labels)
}
