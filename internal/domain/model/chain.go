package model

import "math/big"

const (
	BlockchainDecimalEthereum     = 1
	BlockchainDecimalBSC          = 56
	BlockchainDecimalMainnet      = 137
	BlockchainDecimalAmoy         = 80002
	BlockchainDecimalHardhatLocal = 1337
)

// ChainName returns a short label for known chains, used in logs and metric labels.
func ChainName(chainID *big.Int) string {
	if chainID == nil {
		return "unknown"
	}
	if !chainID.IsInt64() {
		return chainID.String()
	}
	switch chainID.Int64() {
	case BlockchainDecimalEthereum:
		return "ethereum"
	case BlockchainDecimalBSC:
		return "bsc"
	case BlockchainDecimalMainnet:
		return "polygon"
	case BlockchainDecimalAmoy:
		return "amoy"
	case BlockchainDecimalHardhatLocal:
		return "local"
	default:
		return chainID.String()
	}
}

// HasGasStation reports whether chainID is served by the Polygon gas station.
func HasGasStation(chainID *big.Int) bool {
	if chainID == nil || !chainID.IsInt64() {
		return false
	}
	switch chainID.Int64() {
	case BlockchainDecimalMainnet, BlockchainDecimalAmoy:
		return true
	}
	return false
}
