package types

import (
	"fmt"
	"time"
)

// X402Version is the protocol version carried in headers and payloads.
type X402Version int

const (
	// X402Version1 encodes the whole payment envelope as base64 JSON in
	// a single header.
	X402Version1 X402Version = 1

	// X402Version2 carries the payment body as JSON and the sender
	// authenticator in a separate signature header.
	X402Version2 X402Version = 2
)

// PaymentScheme identifies how the payment amount relates to the price.
type PaymentScheme string

const (
	SchemeExact PaymentScheme = "exact"
)

// PaymentRequirements defines what a resource server accepts as payment
// for one protected route. Instances are built from static configuration
// at start-up and never mutated afterwards.
type PaymentRequirements struct {
	// Scheme of the payment protocol (only "exact" is supported).
	Scheme PaymentScheme `json:"scheme" validate:"required,oneof=exact"`

	// Network the payment must settle on, as a chain-agnostic
	// identifier such as "aptos:1".
	Network Network `json:"network" validate:"required"`

	// Asset is the fungible-asset metadata object address, e.g. the
	// USDC metadata address on Aptos.
	Asset string `json:"asset" validate:"required"`

	// MaxAmountRequired is the price in minor units of the asset,
	// as a base-10 integer string.
	MaxAmountRequired string `json:"maxAmountRequired" validate:"required,number"`

	// PayTo is the account address that must receive the transfer.
	PayTo string `json:"payTo" validate:"required"`

	// Description of what is being purchased.
	Description string `json:"description,omitempty"`

	// Sponsored marks the route as gas-sponsored: the facilitator's
	// fee payer covers gas and the sender only signs the transfer.
	Sponsored bool `json:"sponsored,omitempty"`

	// MaxTimeoutSeconds bounds how long settlement may wait for
	// on-chain confirmation.
	MaxTimeoutSeconds int `json:"maxTimeoutSeconds" validate:"required,gt=0"`
}

// ConfirmationTimeout returns MaxTimeoutSeconds as a duration.
func (pr *PaymentRequirements) ConfirmationTimeout() time.Duration {
	return time.Duration(pr.MaxTimeoutSeconds) * time.Second
}

// PaymentRequired is the challenge a server returns with status 402.
type PaymentRequired struct {
	X402Version X402Version           `json:"x402Version"`
	Accepts     []PaymentRequirements `json:"accepts"`
	Error       string                `json:"error,omitempty"`
}

// PaymentPayload is the client-submitted payment envelope.
type PaymentPayload struct {
	X402Version X402Version   `json:"x402Version"`
	Scheme      PaymentScheme `json:"scheme"`
	Network     Network       `json:"network"`

	// Payload is the base64-encoded JSON AptosPayload.
	Payload string `json:"payload"`
}

// AptosPayload carries the already-signed transfer: the raw transaction
// and its authenticators, each base64 BCS.
type AptosPayload struct {
	// Transaction is the BCS-encoded raw transaction.
	Transaction string `json:"transaction"`

	// SenderAuthenticator is the BCS-encoded sender account
	// authenticator over the transaction's signing message.
	SenderAuthenticator string `json:"senderAuthenticator"`

	// FeePayerAuthenticator is set once the facilitator sponsors gas.
	// Clients leave it empty; the sender never signs for gas on
	// sponsored routes.
	FeePayerAuthenticator string `json:"feePayerAuthenticator,omitempty"`

	// FeePayerAddress is required whenever the transaction was signed
	// against the fee-payer signing envelope.
	FeePayerAddress string `json:"feePayerAddress,omitempty"`
}

// ErrorKind is one member of the closed verification error taxonomy.
type ErrorKind string

const (
	ErrMalformedPayload  ErrorKind = "MalformedPayload"
	ErrNetworkMismatch   ErrorKind = "NetworkMismatch"
	ErrAssetMismatch     ErrorKind = "AssetMismatch"
	ErrAmountTooLow      ErrorKind = "AmountTooLow"
	ErrRecipientMismatch ErrorKind = "RecipientMismatch"
	ErrBadSignature      ErrorKind = "BadSignature"
	ErrExpired           ErrorKind = "Expired"
)

// Settlement outcome kinds. A submission error means the chain rejected
// the transaction; a timeout means its fate is unknown and retrying may
// double-spend.
const (
	ErrChainSubmission ErrorKind = "ChainSubmissionError"
	ErrChainTimeout    ErrorKind = "ChainTimeoutError"
)

// VerificationResult is the verifier's tagged result. On success the
// fields decoded from the transaction are populated and equal the
// requirement's fields.
type VerificationResult struct {
	Valid     bool      `json:"isValid"`
	ErrorKind ErrorKind `json:"invalidReason,omitempty"`
	Error     string    `json:"error,omitempty"`

	Sender    string `json:"sender,omitempty"`
	Recipient string `json:"recipient,omitempty"`
	Amount    string `json:"amount,omitempty"`
	Asset     string `json:"asset,omitempty"`
}

// Invalid builds a failed VerificationResult with the given kind.
func Invalid(kind ErrorKind, format string, args ...any) *VerificationResult {
	return &VerificationResult{
		Valid:     false,
		ErrorKind: kind,
		Error:     fmt.Sprintf(format, args...),
	}
}

// SettlementResult is the orchestrator's tagged result.
type SettlementResult struct {
	Success     bool      `json:"success"`
	TxHash      string    `json:"txHash,omitempty"`
	Network     Network   `json:"network,omitempty"`
	ErrorKind   ErrorKind `json:"errorKind,omitempty"`
	Error       string    `json:"error,omitempty"`
	SubmittedAt time.Time `json:"submittedAt,omitempty"`
	SettledAt   time.Time `json:"settledAt,omitempty"`
}

// SettlementReceipt is attached to the gated response as a header.
type SettlementReceipt struct {
	TransactionHash string `json:"transactionHash"`
	Amount          string `json:"amount"`
	Recipient       string `json:"recipient"`
	Settled         bool   `json:"settled"`
}

// SupportedItem describes one payment kind a facilitator accepts.
type SupportedItem struct {
	X402Version int    `json:"x402Version"`
	Scheme      string `json:"scheme"`
	Network     string `json:"network"`
}

// SupportedResponse lists every payment kind a facilitator accepts.
type SupportedResponse struct {
	Kinds []SupportedItem `json:"kinds"`
}

// X402Error is returned for configuration and infrastructure failures,
// never for expected verification outcomes.
type X402Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *X402Error) Error() string {
	return e.Message
}

// Error codes for X402Error.
const (
	ErrConfigError        = "CONFIG_ERROR"
	ErrUnsupportedNetwork = "UNSUPPORTED_NETWORK"
	ErrInvalidPayload     = "INVALID_PAYLOAD"
	ErrNetworkError       = "NETWORK_ERROR"
)

// ConfigErrorf builds a fatal configuration error.
func ConfigErrorf(format string, args ...any) *X402Error {
	return &X402Error{Code: ErrConfigError, Message: fmt.Sprintf(format, args...)}
}
