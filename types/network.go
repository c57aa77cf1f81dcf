package types

import (
	"fmt"
	"strconv"
	"strings"
)

// Network is a chain-agnostic network identifier in CAIP-2 form,
// namespace:reference, e.g. "aptos:1" for Aptos mainnet.
type Network string

const (
	NetworkAptosMainnet Network = "aptos:1"
	NetworkAptosTestnet Network = "aptos:2"
	NetworkAptosDevnet  Network = "aptos:174"
	NetworkAptosLocal   Network = "aptos:4"
)

// Parse splits the identifier into namespace and reference.
func (n Network) Parse() (namespace, reference string, err error) {
	parts := strings.SplitN(string(n), ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid network identifier %q: want namespace:reference", string(n))
	}
	return parts[0], parts[1], nil
}

func (n Network) String() string {
	return string(n)
}

// ChainConfig is the concrete endpoint configuration one network
// identifier resolves to.
type ChainConfig struct {
	Name       string
	ChainID    uint8
	NodeURL    string
	IndexerURL string
}

// Chain configurations for the known Aptos networks. Devnet's chain id
// rotates on every reset; 174 is only a placeholder until overridden.
var chainConfigs = map[Network]ChainConfig{
	NetworkAptosMainnet: {
		Name:       "mainnet",
		ChainID:    1,
		NodeURL:    "https://api.mainnet.aptoslabs.com/v1",
		IndexerURL: "https://api.mainnet.aptoslabs.com/v1/graphql",
	},
	NetworkAptosTestnet: {
		Name:       "testnet",
		ChainID:    2,
		NodeURL:    "https://api.testnet.aptoslabs.com/v1",
		IndexerURL: "https://api.testnet.aptoslabs.com/v1/graphql",
	},
	NetworkAptosDevnet: {
		Name:       "devnet",
		ChainID:    174,
		NodeURL:    "https://api.devnet.aptoslabs.com/v1",
		IndexerURL: "https://api.devnet.aptoslabs.com/v1/graphql",
	},
	NetworkAptosLocal: {
		Name:    "localnet",
		ChainID: 4,
		NodeURL: "http://127.0.0.1:8080/v1",
	},
}

// Aliases kept for compatibility with pre-CAIP x402 clients that send
// bare network names.
var networkAliases = map[string]Network{
	"aptos":          NetworkAptosMainnet,
	"aptos-mainnet":  NetworkAptosMainnet,
	"aptos-testnet":  NetworkAptosTestnet,
	"aptos-devnet":   NetworkAptosDevnet,
	"aptos-localnet": NetworkAptosLocal,
}

// Canonical normalizes a network identifier, resolving aliases.
// Unknown identifiers are an error, never a default network.
func Canonical(s string) (Network, error) {
	if n, ok := networkAliases[s]; ok {
		return n, nil
	}
	n := Network(s)
	if _, _, err := n.Parse(); err != nil {
		return "", ConfigErrorf("unknown network %q", s)
	}
	if _, ok := chainConfigs[n]; !ok {
		return "", ConfigErrorf("unknown network %q", s)
	}
	return n, nil
}

// Resolve maps a network identifier to its chain configuration.
func Resolve(n Network) (ChainConfig, error) {
	canonical, err := Canonical(string(n))
	if err != nil {
		return ChainConfig{}, err
	}
	return chainConfigs[canonical], nil
}

// FromChainID maps a numeric chain id back to its network identifier.
func FromChainID(chainID uint8) (Network, error) {
	for n, cfg := range chainConfigs {
		if cfg.ChainID == chainID {
			return n, nil
		}
	}
	return "", ConfigErrorf("no network registered for chain id %d", chainID)
}

// ChainID parses the reference part of an aptos network identifier.
func (n Network) ChainID() (uint8, error) {
	namespace, reference, err := n.Parse()
	if err != nil {
		return 0, err
	}
	if namespace != "aptos" {
		return 0, fmt.Errorf("network %q is not an aptos network", string(n))
	}
	id, err := strconv.ParseUint(reference, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("network %q has a non-numeric chain id", string(n))
	}
	return uint8(id), nil
}

// IsTestnet reports whether the network is a non-mainnet environment.
func (n Network) IsTestnet() bool {
	return n == NetworkAptosTestnet || n == NetworkAptosDevnet || n == NetworkAptosLocal
}
