package types

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePayload(t *testing.T) *PaymentPayload {
	t.Helper()
	p := &PaymentPayload{
		X402Version: 1,
		Scheme:      "exact",
		Network:     NetworkAptosTestnet,
	}
	require.NoError(t, p.SetAptos(&AptosPayload{
		Transaction:         base64.StdEncoding.EncodeToString([]byte("txn-bytes")),
		SenderAuthenticator: base64.StdEncoding.EncodeToString([]byte("auth-bytes")),
	}))
	return p
}

func TestPaymentHeaderV1RoundTrip(t *testing.T) {
	payload := samplePayload(t)

	header, err := EncodePaymentHeader(payload)
	require.NoError(t, err)

	decoded, err := DecodePaymentHeader(header, "")
	require.NoError(t, err)
	assert.Equal(t, payload, decoded)
}

func TestPaymentHeaderV2DetachedSignature(t *testing.T) {
	payload := samplePayload(t)
	payload.X402Version = 2

	inner, err := payload.Aptos()
	require.NoError(t, err)
	signature := inner.SenderAuthenticator
	inner.SenderAuthenticator = ""
	require.NoError(t, payload.SetAptos(inner))

	// v2 layout: plain JSON envelope plus a separate signature header.
	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	decoded, err := DecodePaymentHeader(string(raw), signature)
	require.NoError(t, err)

	got, err := decoded.Aptos()
	require.NoError(t, err)
	assert.Equal(t, signature, got.SenderAuthenticator)
}

func TestDecodePaymentHeaderRejectsConflictingSignatures(t *testing.T) {
	payload := samplePayload(t)
	header, err := EncodePaymentHeader(payload)
	require.NoError(t, err)

	_, err = DecodePaymentHeader(header, base64.StdEncoding.EncodeToString([]byte("other")))
	assert.Error(t, err)
}

func TestDecodePaymentHeaderRejectsGarbage(t *testing.T) {
	cases := []string{
		"",
		"not base64 and not json",
		base64.StdEncoding.EncodeToString([]byte("not json")),
		base64.StdEncoding.EncodeToString([]byte(`{"scheme":"exact"}`)), // missing version and payload
	}
	for _, in := range cases {
		_, err := DecodePaymentHeader(in, "")
		assert.Error(t, err, "header %q", in)
	}
}

func TestPaymentRequiredRoundTripPreservesPrice(t *testing.T) {
	challenge := &PaymentRequired{
		X402Version: 1,
		Accepts: []PaymentRequirements{{
			Scheme:            "exact",
			Network:           NetworkAptosMainnet,
			Asset:             "0xa",
			MaxAmountRequired: "18446744073709551615", // max uint64, no precision loss allowed
			PayTo:             "0xb",
			Sponsored:         true,
			MaxTimeoutSeconds: 30,
		}},
	}

	header, err := EncodePaymentRequired(challenge)
	require.NoError(t, err)
	decoded, err := DecodePaymentRequired(header)
	require.NoError(t, err)
	assert.Equal(t, challenge, decoded)
}

func TestReceiptRoundTrip(t *testing.T) {
	receipt := &SettlementReceipt{
		TransactionHash: "0xdeadbeef",
		Amount:          "1000",
		Recipient:       "0xb",
		Settled:         true,
	}
	header, err := EncodeReceipt(receipt)
	require.NoError(t, err)
	decoded, err := DecodeReceipt(header)
	require.NoError(t, err)
	assert.Equal(t, receipt, decoded)
}
