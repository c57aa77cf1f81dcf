package clients

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/aptos-labs/aptos-go-sdk"

	"github.com/adipundir/aptos-x402/logger"
	x402types "github.com/adipundir/aptos-x402/types"
)

// AptosClient talks to one Aptos fullnode. It is safe for concurrent
// use and intended to live for the process lifetime.
type AptosClient struct {
	network x402types.Network
	cfg     x402types.ChainConfig
	sdk     *aptos.Client
	log     logger.Logger
}

var _ Client = (*AptosClient)(nil)

// NewAptosClient resolves the network identifier and connects to its
// configured fullnode. Unknown networks fail here, at start-up.
func NewAptosClient(network x402types.Network, log logger.Logger) (*AptosClient, error) {
	network, err := x402types.Canonical(string(network))
	if err != nil {
		return nil, err
	}
	cfg, err := x402types.Resolve(network)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NoopLogger{}
	}

	sdkClient, err := aptos.NewClient(aptos.NetworkConfig{
		Name:       cfg.Name,
		ChainId:    cfg.ChainID,
		NodeUrl:    cfg.NodeURL,
		IndexerUrl: cfg.IndexerURL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to %s fullnode: %w", cfg.Name, err)
	}

	log.Info("chain client ready", map[string]any{
		"network": network.String(),
		"node":    cfg.NodeURL,
		"testnet": network.IsTestnet(),
	})

	return &AptosClient{
		network: network,
		cfg:     cfg,
		sdk:     sdkClient,
		log:     log,
	}, nil
}

func (c *AptosClient) Network() x402types.Network { return c.network }

func (c *AptosClient) ChainID() uint8 { return c.cfg.ChainID }

// Submit broadcasts the signed transaction and returns its hash.
func (c *AptosClient) Submit(ctx context.Context, txn *aptos.SignedTransaction) (string, error) {
	type result struct {
		hash string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		resp, err := c.sdk.SubmitTransaction(txn)
		if err != nil {
			ch <- result{err: err}
			return
		}
		ch <- result{hash: resp.Hash}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		if r.err != nil {
			c.log.Warn("transaction submission rejected", map[string]any{
				"network": c.network.String(),
				"error":   r.err.Error(),
			})
			return "", r.err
		}
		c.log.Debug("transaction submitted", map[string]any{
			"network": c.network.String(),
			"hash":    r.hash,
		})
		return r.hash, nil
	}
}

// AwaitConfirmation polls the node until the transaction is committed
// or the context is done. Cancelling one wait never affects another.
func (c *AptosClient) AwaitConfirmation(ctx context.Context, txHash string) (*Confirmation, error) {
	type result struct {
		conf *Confirmation
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		userTxn, err := c.sdk.WaitForTransaction(txHash)
		if err != nil {
			ch <- result{err: err}
			return
		}
		ch <- result{conf: &Confirmation{
			Hash:     userTxn.Hash,
			Success:  userTxn.Success,
			VMStatus: userTxn.VmStatus,
			Version:  userTxn.Version,
		}}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		return r.conf, r.err
	}
}

// FungibleAssetBalance reads the primary-store balance through the
// 0x1::primary_fungible_store::balance view function.
func (c *AptosClient) FungibleAssetBalance(ctx context.Context, account, asset aptos.AccountAddress) (uint64, error) {
	type result struct {
		balance uint64
		err     error
	}
	ch := make(chan result, 1)
	go func() {
		vals, err := c.sdk.View(&aptos.ViewPayload{
			Module: aptos.ModuleId{
				Address: aptos.AccountOne,
				Name:    "primary_fungible_store",
			},
			Function: "balance",
			ArgTypes: []aptos.TypeTag{metadataTypeTag()},
			Args:     [][]byte{account[:], asset[:]},
		})
		if err != nil {
			ch <- result{err: err}
			return
		}
		if len(vals) != 1 {
			ch <- result{err: fmt.Errorf("balance view returned %d values", len(vals))}
			return
		}
		raw, ok := vals[0].(string)
		if !ok {
			ch <- result{err: fmt.Errorf("balance view returned %T, want string", vals[0])}
			return
		}
		balance, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			ch <- result{err: fmt.Errorf("parse balance %q: %w", raw, err)}
			return
		}
		ch <- result{balance: balance}
	}()

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case r := <-ch:
		return r.balance, r.err
	}
}

// AccountExists reports whether the account has on-chain state.
func (c *AptosClient) AccountExists(ctx context.Context, account aptos.AccountAddress) (bool, error) {
	type result struct {
		exists bool
		err    error
	}
	ch := make(chan result, 1)
	go func() {
		_, err := c.sdk.Account(account)
		if err != nil {
			if isNotFound(err) {
				ch <- result{exists: false}
				return
			}
			ch <- result{err: err}
			return
		}
		ch <- result{exists: true}
	}()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case r := <-ch:
		return r.exists, r.err
	}
}

// BuildTransfer builds an unsigned transfer against live chain state,
// fetching the sender's next sequence number from the node.
func (c *AptosClient) BuildTransfer(ctx context.Context, p TransferParams) (*aptos.RawTransaction, error) {
	type result struct {
		seq uint64
		err error
	}
	ch := make(chan result, 1)
	go func() {
		info, err := c.sdk.Account(p.Sender)
		if err != nil {
			ch <- result{err: fmt.Errorf("fetch sender account: %w", err)}
			return
		}
		seq, err := info.SequenceNumber()
		if err != nil {
			ch <- result{err: fmt.Errorf("read sequence number: %w", err)}
			return
		}
		ch <- result{seq: seq}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		p.SequenceNumber = r.seq
		p.ChainID = c.cfg.ChainID
		return BuildRawTransfer(p)
	}
}

func (c *AptosClient) Close() {}

func isNotFound(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "404") ||
		strings.Contains(msg, "not found") ||
		strings.Contains(msg, "account_not_found")
}
