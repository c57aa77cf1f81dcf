// Package verification checks client-submitted payments against a route's
// payment requirement. Verification is pure: it never touches the chain,
// so an invalid payment costs no network round trip.
package verification

import (
	"context"
	"encoding/base64"
	"errors"
	"time"

	"github.com/aptos-labs/aptos-go-sdk"

	"github.com/adipundir/aptos-x402/clients"
	"github.com/adipundir/aptos-x402/logger"
	"github.com/adipundir/aptos-x402/metrics"
	"github.com/adipundir/aptos-x402/types"
	"github.com/adipundir/aptos-x402/utils"
)

// Verifier is the contract for payment verification.
type Verifier interface {
	Verify(ctx context.Context, payload *types.PaymentPayload, requirements *types.PaymentRequirements) (*types.VerificationResult, error)
}

// VerificationService verifies Aptos payments. It holds no chain client
// and no mutable state.
type VerificationService struct {
	log     logger.Logger
	metrics metrics.Recorder

	// now is swappable for expiry tests.
	now func() time.Time
}

var _ Verifier = (*VerificationService)(nil)

// NewVerificationService creates a verification service.
func NewVerificationService(log logger.Logger, rec metrics.Recorder) *VerificationService {
	if log == nil {
		log = logger.NoopLogger{}
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &VerificationService{
		log:     log,
		metrics: rec,
		now:     time.Now,
	}
}

// Verify checks a payment against a requirement. The checks run in a
// fixed order and fail closed on the first mismatch. An error return
// means the requirement itself is unusable, never that the payment is
// invalid; invalid payments come back as a tagged result.
func (s *VerificationService) Verify(
	ctx context.Context,
	payload *types.PaymentPayload,
	requirements *types.PaymentRequirements,
) (*types.VerificationResult, error) {
	start := s.now()
	result, err := s.verify(payload, requirements)
	if err != nil {
		return nil, err
	}

	labels := map[string]string{
		"network": requirements.Network.String(),
		"outcome": "valid",
	}
	if !result.Valid {
		labels["outcome"] = string(result.ErrorKind)
		s.log.Debug("payment rejected", map[string]any{
			"network": requirements.Network.String(),
			"reason":  string(result.ErrorKind),
			"detail":  result.Error,
		})
	}
	s.metrics.IncCounter("verify", labels)
	s.metrics.ObserveLatency("verify", s.now().Sub(start), labels)

	return result, nil
}

func (s *VerificationService) verify(
	payload *types.PaymentPayload,
	requirements *types.PaymentRequirements,
) (*types.VerificationResult, error) {
	// Requirement fields were validated at start-up; parse failures
	// here are configuration bugs, not client errors.
	requiredNetwork, err := types.Canonical(string(requirements.Network))
	if err != nil {
		return nil, err
	}
	requiredChainID, err := requiredNetwork.ChainID()
	if err != nil {
		return nil, types.ConfigErrorf("requirement network %q: %v", requirements.Network, err)
	}
	price, err := utils.ParseMinorUnits(requirements.MaxAmountRequired)
	if err != nil {
		return nil, types.ConfigErrorf("requirement price: %v", err)
	}
	requiredAsset, err := clients.ParseAddress(requirements.Asset)
	if err != nil {
		return nil, types.ConfigErrorf("requirement asset: %v", err)
	}
	requiredRecipient, err := clients.ParseAddress(requirements.PayTo)
	if err != nil {
		return nil, types.ConfigErrorf("requirement payTo: %v", err)
	}

	// 1-2. Decode the envelope and the canonical transaction bytes.
	inner, err := payload.Aptos()
	if err != nil {
		return types.Invalid(types.ErrMalformedPayload, "%v", err), nil
	}
	txBytes, err := decodeBase64(inner.Transaction)
	if err != nil {
		return types.Invalid(types.ErrMalformedPayload, "transaction bytes: %v", err), nil
	}
	rawTxn, err := clients.DeserializeRawTransaction(txBytes)
	if err != nil {
		return types.Invalid(types.ErrMalformedPayload, "%v", err), nil
	}

	// 3. Extract the transfer call's semantics.
	transfer, err := clients.ParseTransfer(rawTxn)
	if err != nil {
		return types.Invalid(types.ErrMalformedPayload, "%v", err), nil
	}

	// 4. Compare against the requirement, failing closed on the first
	// mismatch. Field checks run before any cryptography.
	if payload.Network != "" {
		payloadNetwork, err := types.Canonical(string(payload.Network))
		if err != nil || payloadNetwork != requiredNetwork {
			return types.Invalid(types.ErrNetworkMismatch,
				"payment names network %q, route requires %q", payload.Network, requiredNetwork), nil
		}
	}
	if transfer.ChainID != requiredChainID {
		return types.Invalid(types.ErrNetworkMismatch,
			"transaction targets chain id %d, route requires %d", transfer.ChainID, requiredChainID), nil
	}
	if transfer.Asset != requiredAsset {
		return types.Invalid(types.ErrAssetMismatch,
			"transaction transfers asset %s, route requires %s", transfer.Asset.String(), requiredAsset.String()), nil
	}
	if transfer.Amount < price {
		return types.Invalid(types.ErrAmountTooLow,
			"transaction transfers %d, route requires %d", transfer.Amount, price), nil
	}
	if transfer.Recipient != requiredRecipient {
		return types.Invalid(types.ErrRecipientMismatch,
			"transaction pays %s, route requires %s", transfer.Recipient.String(), requiredRecipient.String()), nil
	}

	// 5. Verify the sender authenticator over the canonical signing
	// message.
	authBytes, err := decodeBase64(inner.SenderAuthenticator)
	if err != nil || len(authBytes) == 0 {
		return types.Invalid(types.ErrMalformedPayload, "sender authenticator bytes: %v", err), nil
	}
	senderAuth, err := clients.DeserializeAuthenticator(authBytes)
	if err != nil {
		return types.Invalid(types.ErrMalformedPayload, "%v", err), nil
	}

	feePayer, err := sponsorAddress(requirements, inner)
	if err != nil {
		return types.Invalid(types.ErrMalformedPayload, "%v", err), nil
	}
	msg, err := clients.SigningMessage(rawTxn, feePayer)
	if err != nil {
		return types.Invalid(types.ErrMalformedPayload, "signing message: %v", err), nil
	}
	if !senderAuth.Verify(msg) {
		return types.Invalid(types.ErrBadSignature,
			"sender signature does not verify over the transaction"), nil
	}
	if clients.AuthenticatorAddress(senderAuth) != transfer.Sender {
		return types.Invalid(types.ErrBadSignature,
			"signature is not bound to the sender account"), nil
	}

	// 6. Check the transaction has not expired.
	if transfer.ExpirationTimestamp <= uint64(s.now().Unix()) {
		return types.Invalid(types.ErrExpired,
			"transaction expired at %d", transfer.ExpirationTimestamp), nil
	}

	return &types.VerificationResult{
		Valid:     true,
		Sender:    transfer.Sender.String(),
		Recipient: transfer.Recipient.String(),
		Amount:    utils.FormatMinorUnits(transfer.Amount),
		Asset:     requiredAsset.String(),
	}, nil
}

var errNotSponsored = errors.New("payment names a fee payer but the route is not sponsored")

func decodeBase64(s string) ([]byte, error) {
	if s == "" {
		return nil, errors.New("empty")
	}
	return base64.StdEncoding.DecodeString(s)
}

// sponsorAddress resolves the fee payer address the sender signed over.
// On sponsored routes a sender that does not know the fee payer signs
// over AccountZero.
func sponsorAddress(requirements *types.PaymentRequirements, inner *types.AptosPayload) (*aptos.AccountAddress, error) {
	if !requirements.Sponsored {
		if inner.FeePayerAddress != "" {
			return nil, errNotSponsored
		}
		return nil, nil
	}
	if inner.FeePayerAddress == "" {
		zero := aptos.AccountZero
		return &zero, nil
	}
	addr, err := clients.ParseAddress(inner.FeePayerAddress)
	if err != nil {
		return nil, err
	}
	return &addr, nil
}
