package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNetworkParse(t *testing.T) {
	namespace, reference, err := NetworkAptosMainnet.Parse()
	require.NoError(t, err)
	assert.Equal(t, "aptos", namespace)
	assert.Equal(t, "1", reference)

	for _, bad := range []string{"", "aptos", ":1", "aptos:"} {
		_, _, err := Network(bad).Parse()
		assert.Error(t, err, "identifier %q", bad)
	}
}

func TestCanonicalResolvesAliases(t *testing.T) {
	cases := map[string]Network{
		"aptos":         NetworkAptosMainnet,
		"aptos-mainnet": NetworkAptosMainnet,
		"aptos-testnet": NetworkAptosTestnet,
		"aptos:2":       NetworkAptosTestnet,
	}
	for in, want := range cases {
		got, err := Canonical(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestCanonicalRejectsUnknownNetworks(t *testing.T) {
	// An unknown identifier must be an error, never a fallback to a
	// default network.
	for _, bad := range []string{"aptos:99", "eip155:1", "solana:mainnet", "bogus", ""} {
		_, err := Canonical(bad)
		require.Error(t, err, bad)
		var x402err *X402Error
		require.ErrorAs(t, err, &x402err, bad)
		assert.Equal(t, ErrConfigError, x402err.Code, bad)
	}
}

func TestResolve(t *testing.T) {
	cfg, err := Resolve(NetworkAptosTestnet)
	require.NoError(t, err)
	assert.Equal(t, uint8(2), cfg.ChainID)
	assert.Equal(t, "testnet", cfg.Name)
	assert.NotEmpty(t, cfg.NodeURL)

	_, err = Resolve(Network("aptos:250"))
	assert.Error(t, err)
}

func TestFromChainIDRoundTrip(t *testing.T) {
	for _, n := range []Network{NetworkAptosMainnet, NetworkAptosTestnet, NetworkAptosLocal} {
		id, err := n.ChainID()
		require.NoError(t, err)
		back, err := FromChainID(id)
		require.NoError(t, err)
		assert.Equal(t, n, back)
	}

	_, err := FromChainID(99)
	assert.Error(t, err)
}

func TestChainIDRejectsForeignNamespace(t *testing.T) {
	_, err := Network("eip155:1").ChainID()
	assert.Error(t, err)
}

func TestIsTestnet(t *testing.T) {
	assert.False(t, NetworkAptosMainnet.IsTestnet())
	for _, n := range []Network{NetworkAptosTestnet, NetworkAptosDevnet, NetworkAptosLocal} {
		assert.True(t, n.IsTestnet(), n.String())
	}
}
