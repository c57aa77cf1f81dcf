package clients

import (
	"context"

	"github.com/aptos-labs/aptos-go-sdk"

	x402types "github.com/adipundir/aptos-x402/types"
)

// Confirmation is the terminal outcome of an on-chain transaction.
type Confirmation struct {
	Hash     string
	Success  bool
	VMStatus string
	Version  uint64
}

// Client is the chain surface the engine depends on. Settlement and
// balance checks go through it; verification never does.
type Client interface {
	// Network returns the chain-agnostic identifier this client serves.
	Network() x402types.Network

	// ChainID returns the numeric chain id of the connected network.
	ChainID() uint8

	// Submit broadcasts a signed transaction and returns its hash.
	Submit(ctx context.Context, txn *aptos.SignedTransaction) (string, error)

	// AwaitConfirmation blocks until the transaction reaches a terminal
	// state or the context is done.
	AwaitConfirmation(ctx context.Context, txHash string) (*Confirmation, error)

	// FungibleAssetBalance returns the account's primary-store balance
	// of the asset, in minor units.
	FungibleAssetBalance(ctx context.Context, account, asset aptos.AccountAddress) (uint64, error)

	// AccountExists reports whether the account has been created
	// on-chain.
	AccountExists(ctx context.Context, account aptos.AccountAddress) (bool, error)

	Close()
}
