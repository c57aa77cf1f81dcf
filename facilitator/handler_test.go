package facilitator

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aptos-labs/aptos-go-sdk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	x402 "github.com/adipundir/aptos-x402"
	"github.com/adipundir/aptos-x402/clients"
	"github.com/adipundir/aptos-x402/types"
)

type fakeClient struct{}

func (fakeClient) Network() types.Network { return types.NetworkAptosTestnet }
func (fakeClient) ChainID() uint8         { return 2 }
func (fakeClient) Close()                 {}

func (fakeClient) Submit(ctx context.Context, txn *aptos.SignedTransaction) (string, error) {
	return "0xfeed", nil
}

func (fakeClient) AwaitConfirmation(ctx context.Context, txHash string) (*clients.Confirmation, error) {
	return &clients.Confirmation{Hash: txHash, Success: true}, nil
}

func (fakeClient) FungibleAssetBalance(ctx context.Context, account, asset aptos.AccountAddress) (uint64, error) {
	return 0, nil
}

func (fakeClient) AccountExists(ctx context.Context, account aptos.AccountAddress) (bool, error) {
	return true, nil
}

func testRequirements() types.PaymentRequirements {
	return types.PaymentRequirements{
		Scheme:            types.SchemeExact,
		Network:           types.NetworkAptosTestnet,
		Asset:             "0x69091fbab5f7d635ee7ac5098cf0c1efbe31d68fec0f2cd565e8d168daf52832",
		MaxAmountRequired: "10000",
		PayTo:             "0xcafe",
		MaxTimeoutSeconds: 30,
	}
}

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	table, err := x402.NewRouteTable([]x402.Route{
		{Pattern: "/api/*", Requirements: testRequirements()},
	})
	require.NoError(t, err)
	engine, err := x402.New(fakeClient{}, table)
	require.NoError(t, err)
	return NewHandler(engine, nil)
}

// signedRequest builds a complete verify/settle request body with an
// offline-signed transfer.
func signedRequest(t *testing.T) *VerifyRequest {
	t.Helper()
	account, err := aptos.NewEd25519Account()
	require.NoError(t, err)

	req := testRequirements()
	recipient, err := clients.ParseAddress(req.PayTo)
	require.NoError(t, err)
	asset, err := clients.ParseAddress(req.Asset)
	require.NoError(t, err)

	rawTxn, err := clients.BuildRawTransfer(clients.TransferParams{
		Sender:    account.Address,
		Recipient: recipient,
		Asset:     asset,
		Amount:    10000,
		ChainID:   2,
	})
	require.NoError(t, err)
	auth, err := clients.SignTransfer(account, rawTxn, nil)
	require.NoError(t, err)

	txBytes, err := clients.SerializeRawTransaction(rawTxn)
	require.NoError(t, err)
	authBytes, err := clients.SerializeAuthenticator(auth)
	require.NoError(t, err)

	payload := types.PaymentPayload{
		X402Version: types.X402Version1,
		Scheme:      types.SchemeExact,
		Network:     types.NetworkAptosTestnet,
	}
	require.NoError(t, payload.SetAptos(&types.AptosPayload{
		Transaction:         base64.StdEncoding.EncodeToString(txBytes),
		SenderAuthenticator: base64.StdEncoding.EncodeToString(authBytes),
	}))

	return &VerifyRequest{
		X402Version:         1,
		PaymentPayload:      payload,
		PaymentRequirements: req,
	}
}

func post(t *testing.T, mux *http.ServeMux, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw)))
	return rec
}

func TestHandleVerify(t *testing.T) {
	mux := newTestHandler(t).Mux()

	rec := post(t, mux, "/verify", signedRequest(t))
	require.Equal(t, http.StatusOK, rec.Code)

	var result types.VerificationResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.True(t, result.Valid, result.Error)
	assert.Equal(t, "10000", result.Amount)
}

func TestHandleVerifyReportsInvalidPayment(t *testing.T) {
	mux := newTestHandler(t).Mux()

	req := signedRequest(t)
	req.PaymentRequirements.MaxAmountRequired = "999999"

	rec := post(t, mux, "/verify", req)
	require.Equal(t, http.StatusOK, rec.Code)

	var result types.VerificationResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.False(t, result.Valid)
	assert.Equal(t, types.ErrAmountTooLow, result.ErrorKind)
}

func TestHandleSettle(t *testing.T) {
	mux := newTestHandler(t).Mux()

	rec := post(t, mux, "/settle", signedRequest(t))
	require.Equal(t, http.StatusOK, rec.Code)

	var result types.SettlementResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.True(t, result.Success)
	assert.Equal(t, "0xfeed", result.TxHash)
}

func TestHandleRejectsIncompleteRequests(t *testing.T) {
	mux := newTestHandler(t).Mux()

	tests := []struct {
		name   string
		mutate func(*VerifyRequest)
	}{
		{"missing payload", func(r *VerifyRequest) { r.PaymentPayload.Payload = "" }},
		{"missing scheme", func(r *VerifyRequest) { r.PaymentRequirements.Scheme = "" }},
		{"missing network", func(r *VerifyRequest) { r.PaymentRequirements.Network = "" }},
		{"missing price", func(r *VerifyRequest) { r.PaymentRequirements.MaxAmountRequired = "" }},
		{"missing recipient", func(r *VerifyRequest) { r.PaymentRequirements.PayTo = "" }},
		{"zero timeout", func(r *VerifyRequest) { r.PaymentRequirements.MaxTimeoutSeconds = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := signedRequest(t)
			tt.mutate(req)
			rec := post(t, mux, "/verify", req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestHandleRejectsMalformedJSON(t *testing.T) {
	mux := newTestHandler(t).Mux()
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/verify", bytes.NewReader([]byte("{not json"))))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSupported(t *testing.T) {
	mux := newTestHandler(t).Mux()
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/supported", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var supported types.SupportedResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&supported))
	require.Len(t, supported.Kinds, 2)
	assert.Equal(t, "exact", supported.Kinds[0].Scheme)
	assert.Equal(t, types.NetworkAptosTestnet.String(), supported.Kinds[0].Network)
}
