package solana

import "strings"

// Well known cluster endpoints, addressable by moniker.
const (
	LocalnetURL = "http://localhost:8899"
	DevnetURL   = "https://api.devnet.solana.com"
	MainnetURL  = "https://api.mainnet-beta.solana.com"
)

var clusterMonikers = map[string]string{
	"l":            LocalnetURL,
	"localhost":    LocalnetURL,
	"localnet":     LocalnetURL,
	"d":            DevnetURL,
	"devnet":       DevnetURL,
	"m":            MainnetURL,
	"mainnet":      MainnetURL,
	"mainnet-beta": MainnetURL,
}

// ResolveCluster expands a cluster moniker into its JSON-RPC endpoint. Any
// other value is treated as an endpoint and returned unchanged.
func ResolveCluster(urlOrMoniker string) string {
	if url, ok := clusterMonikers[strings.ToLower(strings.TrimSpace(urlOrMoniker))]; ok {
		return url
	}
	return urlOrMoniker
}
