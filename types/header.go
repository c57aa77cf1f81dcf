package types

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Header names of the x402 HTTP wire contract.
const (
	PaymentHeader          = "X-Payment"
	PaymentSignatureHeader = "X-Payment-Signature"
	PaymentRequiredHeader  = "X-Payment-Required"
	PaymentResponseHeader  = "X-Payment-Response"
)

// EncodePaymentHeader encodes a PaymentPayload for the X-Payment header
// in the version-1 layout: base64 over the whole JSON envelope.
func EncodePaymentHeader(payload *PaymentPayload) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payment payload: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodePaymentHeader decodes the X-Payment header. Two layouts are
// accepted for compatibility across protocol versions:
//
//   - v1: the header value is base64 over the whole JSON envelope,
//     signature included.
//   - v2: the header value is the JSON envelope itself and the sender
//     authenticator arrives separately in X-Payment-Signature.
func DecodePaymentHeader(header, signatureHeader string) (*PaymentPayload, error) {
	if header == "" {
		return nil, fmt.Errorf("empty payment header")
	}

	raw := []byte(header)
	if !strings.HasPrefix(strings.TrimSpace(header), "{") {
		decoded, err := base64.StdEncoding.DecodeString(header)
		if err != nil {
			return nil, fmt.Errorf("payment header is neither JSON nor base64: %w", err)
		}
		raw = decoded
	}

	var payload PaymentPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("parse payment header: %w", err)
	}
	if payload.X402Version <= 0 {
		return nil, fmt.Errorf("x402Version is required")
	}
	if payload.Payload == "" {
		return nil, fmt.Errorf("payload is required")
	}

	if signatureHeader != "" {
		if err := attachSignature(&payload, signatureHeader); err != nil {
			return nil, err
		}
	}
	return &payload, nil
}

// attachSignature merges a detached X-Payment-Signature value into the
// inner AptosPayload.
func attachSignature(payload *PaymentPayload, signature string) error {
	inner, err := payload.Aptos()
	if err != nil {
		return err
	}
	if inner.SenderAuthenticator != "" && inner.SenderAuthenticator != signature {
		return fmt.Errorf("payment carries conflicting sender authenticators")
	}
	inner.SenderAuthenticator = signature

	raw, err := json.Marshal(inner)
	if err != nil {
		return fmt.Errorf("re-encode payment payload: %w", err)
	}
	payload.Payload = base64.StdEncoding.EncodeToString(raw)
	return nil
}

// Aptos decodes the inner base64 JSON AptosPayload.
func (p *PaymentPayload) Aptos() (*AptosPayload, error) {
	raw, err := base64.StdEncoding.DecodeString(p.Payload)
	if err != nil {
		return nil, fmt.Errorf("payload is not valid base64: %w", err)
	}
	var inner AptosPayload
	if err := json.Unmarshal(raw, &inner); err != nil {
		return nil, fmt.Errorf("parse aptos payload: %w", err)
	}
	if inner.Transaction == "" {
		return nil, fmt.Errorf("transaction is required")
	}
	return &inner, nil
}

// SetAptos encodes an AptosPayload back into the envelope.
func (p *PaymentPayload) SetAptos(inner *AptosPayload) error {
	raw, err := json.Marshal(inner)
	if err != nil {
		return fmt.Errorf("marshal aptos payload: %w", err)
	}
	p.Payload = base64.StdEncoding.EncodeToString(raw)
	return nil
}

// EncodePaymentRequired encodes the 402 challenge for the
// X-Payment-Required header.
func EncodePaymentRequired(challenge *PaymentRequired) (string, error) {
	raw, err := json.Marshal(challenge)
	if err != nil {
		return "", fmt.Errorf("marshal payment challenge: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodePaymentRequired decodes an X-Payment-Required header value.
func DecodePaymentRequired(header string) (*PaymentRequired, error) {
	raw, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return nil, fmt.Errorf("decode payment challenge: %w", err)
	}
	var challenge PaymentRequired
	if err := json.Unmarshal(raw, &challenge); err != nil {
		return nil, fmt.Errorf("parse payment challenge: %w", err)
	}
	return &challenge, nil
}

// EncodeReceipt encodes a settlement receipt for the
// X-Payment-Response header.
func EncodeReceipt(receipt *SettlementReceipt) (string, error) {
	raw, err := json.Marshal(receipt)
	if err != nil {
		return "", fmt.Errorf("marshal settlement receipt: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeReceipt decodes an X-Payment-Response header value.
func DecodeReceipt(header string) (*SettlementReceipt, error) {
	raw, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return nil, fmt.Errorf("decode settlement receipt: %w", err)
	}
	var receipt SettlementReceipt
	if err := json.Unmarshal(raw, &receipt); err != nil {
		return nil, fmt.Errorf("parse settlement receipt: %w", err)
	}
	return &receipt, nil
}
