package solana

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

// Cluster names accepted by EndpointForNetwork.
const (
	NetworkMainnetBeta = "mainnet-beta"
	NetworkDevnet      = "devnet"
	NetworkTestnet     = "testnet"
	NetworkLocalnet    = "localnet"
)

var publicEndpoints = map[string]string{
	NetworkMainnetBeta: "https://api.mainnet-beta.solana.com",
	NetworkDevnet:      "https://api.devnet.solana.com",
	NetworkTestnet:     "https://api.testnet.solana.com",
	NetworkLocalnet:    "http://127.0.0.1:8899",
}

// EndpointForNetwork returns the public RPC URL for a cluster name.
// "mainnet" is accepted as an alias for "mainnet-beta".
func EndpointForNetwork(network string) (string, error) {
	network = strings.ToLower(strings.TrimSpace(network))
	if network == "mainnet" {
		network = NetworkMainnetBeta
	}
	url, ok := publicEndpoints[network]
	if !ok {
		return "", fmt.Errorf("unknown solana network %q: must be one of mainnet-beta, devnet, testnet, localnet", network)
	}
	return url, nil
}

// SelectRandomEndpoint picks one endpoint uniformly at random.
// Used when several RPC URLs are configured for the same cluster.
func SelectRandomEndpoint(endpoints []string) (string, error) {
	if len(endpoints) == 0 {
		return "", fmt.Errorf("no RPC endpoints configured")
	}
	return endpoints[rand.IntN(len(endpoints))], nil
}
