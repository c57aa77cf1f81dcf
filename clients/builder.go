package clients

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/aptos-labs/aptos-go-sdk"
	"github.com/aptos-labs/aptos-go-sdk/bcs"
	"github.com/aptos-labs/aptos-go-sdk/crypto"
)

const (
	defaultMaxGasAmount = 20_000
	defaultGasUnitPrice = 100
	defaultExpiry       = 5 * time.Minute
)

// TransferParams fully determines an unsigned fungible-asset transfer.
type TransferParams struct {
	Sender         aptos.AccountAddress
	Recipient      aptos.AccountAddress
	Asset          aptos.AccountAddress
	Amount         uint64
	SequenceNumber uint64
	ChainID        uint8

	// Zero values fall back to the package defaults.
	MaxGasAmount uint64
	GasUnitPrice uint64
	ExpiresIn    time.Duration
}

// FungibleTransferPayload builds the standard
// 0x1::primary_fungible_store::transfer entry-function call.
func FungibleTransferPayload(asset, recipient aptos.AccountAddress, amount uint64) (*aptos.EntryFunction, error) {
	amountBytes, err := bcs.SerializeU64(amount)
	if err != nil {
		return nil, fmt.Errorf("serialize transfer amount: %w", err)
	}
	return &aptos.EntryFunction{
		Module: aptos.ModuleId{
			Address: aptos.AccountOne,
			Name:    "primary_fungible_store",
		},
		Function: "transfer",
		ArgTypes: []aptos.TypeTag{metadataTypeTag()},
		Args: [][]byte{
			asset[:],
			recipient[:],
			amountBytes,
		},
	}, nil
}

func metadataTypeTag() aptos.TypeTag {
	return aptos.TypeTag{Value: &aptos.StructTag{
		Address: aptos.AccountOne,
		Module:  "fungible_asset",
		Name:    "Metadata",
	}}
}

// BuildRawTransfer constructs the unsigned transfer transaction. It is
// pure: sequence number and chain id come in through params, so it can
// run without a node connection.
func BuildRawTransfer(p TransferParams) (*aptos.RawTransaction, error) {
	if p.Amount == 0 {
		return nil, fmt.Errorf("transfer amount must be positive")
	}
	payload, err := FungibleTransferPayload(p.Asset, p.Recipient, p.Amount)
	if err != nil {
		return nil, err
	}

	maxGas := p.MaxGasAmount
	if maxGas == 0 {
		maxGas = defaultMaxGasAmount
	}
	gasPrice := p.GasUnitPrice
	if gasPrice == 0 {
		gasPrice = defaultGasUnitPrice
	}
	expiry := p.ExpiresIn
	if expiry == 0 {
		expiry = defaultExpiry
	}

	return &aptos.RawTransaction{
		Sender:                     p.Sender,
		SequenceNumber:             p.SequenceNumber,
		Payload:                    aptos.TransactionPayload{Payload: payload},
		MaxGasAmount:               maxGas,
		GasUnitPrice:               gasPrice,
		ExpirationTimestampSeconds: uint64(time.Now().Add(expiry).Unix()),
		ChainId:                    p.ChainID,
	}, nil
}

// SigningMessage returns the canonical bytes a signer commits to. With
// a fee payer the message covers the fee-payer envelope; senders that
// do not yet know the fee payer sign over AccountZero, which the chain
// accepts for optimistic sponsorship.
func SigningMessage(rawTxn *aptos.RawTransaction, feePayer *aptos.AccountAddress) ([]byte, error) {
	if feePayer == nil {
		return rawTxn.SigningMessage()
	}
	withData := feePayerEnvelope(rawTxn, feePayer)
	return withData.SigningMessage()
}

func feePayerEnvelope(rawTxn *aptos.RawTransaction, feePayer *aptos.AccountAddress) *aptos.RawTransactionWithData {
	return &aptos.RawTransactionWithData{
		Variant: aptos.MultiAgentWithFeePayerRawTransactionWithDataVariant,
		Inner: &aptos.MultiAgentWithFeePayerRawTransactionWithData{
			RawTxn:           rawTxn,
			SecondarySigners: []aptos.AccountAddress{},
			FeePayer:         feePayer,
		},
	}
}

// SignTransfer produces the account authenticator over the transfer's
// signing message. The same signer and transaction always yield an
// authenticator bound to exactly one account.
func SignTransfer(signer crypto.Signer, rawTxn *aptos.RawTransaction, feePayer *aptos.AccountAddress) (*crypto.AccountAuthenticator, error) {
	msg, err := SigningMessage(rawTxn, feePayer)
	if err != nil {
		return nil, fmt.Errorf("derive signing message: %w", err)
	}
	auth, err := signer.Sign(msg)
	if err != nil {
		return nil, fmt.Errorf("sign transfer: %w", err)
	}
	return auth, nil
}

// AssembleSignedTransaction combines a raw transaction with its
// authenticators into the submittable form.
func AssembleSignedTransaction(
	rawTxn *aptos.RawTransaction,
	senderAuth *crypto.AccountAuthenticator,
	feePayer *aptos.AccountAddress,
	feePayerAuth *crypto.AccountAuthenticator,
) (*aptos.SignedTransaction, error) {
	if feePayer == nil {
		return rawTxn.SignedTransactionWithAuthenticator(senderAuth)
	}
	if feePayerAuth == nil {
		return nil, fmt.Errorf("fee payer authenticator is required for sponsored transactions")
	}
	withData := feePayerEnvelope(rawTxn, feePayer)
	signed, ok := withData.ToFeePayerSignedTransaction(senderAuth, feePayerAuth, []crypto.AccountAuthenticator{})
	if !ok {
		return nil, fmt.Errorf("assemble fee payer transaction")
	}
	return signed, nil
}

// TransferDetails are the semantics extracted from a raw transaction's
// entry-function call, used to check a payment against a requirement.
type TransferDetails struct {
	Sender              aptos.AccountAddress
	Recipient           aptos.AccountAddress
	Asset               aptos.AccountAddress
	Amount              uint64
	SequenceNumber      uint64
	ChainID             uint8
	ExpirationTimestamp uint64
}

// ParseTransfer extracts the transfer semantics from a raw transaction.
// Anything other than a plain primary_fungible_store transfer is
// rejected.
func ParseTransfer(rawTxn *aptos.RawTransaction) (*TransferDetails, error) {
	entry, ok := rawTxn.Payload.Payload.(*aptos.EntryFunction)
	if !ok {
		return nil, fmt.Errorf("transaction payload is not an entry function call")
	}
	if entry.Module.Address != aptos.AccountOne ||
		entry.Module.Name != "primary_fungible_store" ||
		entry.Function != "transfer" {
		return nil, fmt.Errorf("transaction does not call 0x1::primary_fungible_store::transfer")
	}
	if len(entry.Args) != 3 {
		return nil, fmt.Errorf("transfer call has %d arguments, want 3", len(entry.Args))
	}

	var asset, recipient aptos.AccountAddress
	if err := bcs.Deserialize(&asset, entry.Args[0]); err != nil {
		return nil, fmt.Errorf("decode asset argument: %w", err)
	}
	if err := bcs.Deserialize(&recipient, entry.Args[1]); err != nil {
		return nil, fmt.Errorf("decode recipient argument: %w", err)
	}
	if len(entry.Args[2]) != 8 {
		return nil, fmt.Errorf("amount argument is not a u64")
	}
	amount := binary.LittleEndian.Uint64(entry.Args[2])

	return &TransferDetails{
		Sender:              rawTxn.Sender,
		Recipient:           recipient,
		Asset:               asset,
		Amount:              amount,
		SequenceNumber:      rawTxn.SequenceNumber,
		ChainID:             rawTxn.ChainId,
		ExpirationTimestamp: rawTxn.ExpirationTimestampSeconds,
	}, nil
}

// DeserializeRawTransaction decodes BCS raw transaction bytes.
func DeserializeRawTransaction(b []byte) (*aptos.RawTransaction, error) {
	rawTxn := &aptos.RawTransaction{}
	if err := bcs.Deserialize(rawTxn, b); err != nil {
		return nil, fmt.Errorf("decode raw transaction: %w", err)
	}
	return rawTxn, nil
}

// DeserializeAuthenticator decodes BCS account authenticator bytes.
func DeserializeAuthenticator(b []byte) (*crypto.AccountAuthenticator, error) {
	auth := &crypto.AccountAuthenticator{}
	if err := bcs.Deserialize(auth, b); err != nil {
		return nil, fmt.Errorf("decode authenticator: %w", err)
	}
	return auth, nil
}

// SerializeRawTransaction encodes a raw transaction to BCS.
func SerializeRawTransaction(rawTxn *aptos.RawTransaction) ([]byte, error) {
	return bcs.Serialize(rawTxn)
}

// SerializeAuthenticator encodes an account authenticator to BCS.
func SerializeAuthenticator(auth *crypto.AccountAuthenticator) ([]byte, error) {
	return bcs.Serialize(auth)
}

// AuthenticatorAddress derives the account address the authenticator's
// public key controls. It only matches accounts that never rotated
// their authentication key.
func AuthenticatorAddress(auth *crypto.AccountAuthenticator) aptos.AccountAddress {
	authKey := auth.PubKey().AuthKey()
	var addr aptos.AccountAddress
	copy(addr[:], authKey[:])
	return addr
}

// ParseAddress parses an account address in any accepted hex form.
func ParseAddress(s string) (aptos.AccountAddress, error) {
	var addr aptos.AccountAddress
	if err := addr.ParseStringRelaxed(s); err != nil {
		return addr, fmt.Errorf("invalid account address %q: %w", s, err)
	}
	return addr, nil
}
