package gateway

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// TxLink points at a transaction on the configured block explorer, or is
// just the hash when no explorer is configured.
func TxLink(explorerURL string, hash common.Hash) string {
	base := strings.TrimRight(explorerURL, "/")
	if base == "" {
		return hash.Hex()
	}
	return base + "/tx/" + hash.Hex()
}
