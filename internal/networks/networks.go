// Package networks provides the static chain-id to display-identity table.
package networks

import "fmt"

// Network is the display identity of one chain.
type Network struct {
	Name     string
	Explorer string
}

var knownNetworks = map[uint64]Network{
	31337:    {Name: "Localhost", Explorer: "http://localhost:8545"},
	11155111: {Name: "Sepolia", Explorer: "https://sepolia.etherscan.io"},
	80001:    {Name: "Mumbai", Explorer: "https://mumbai.polygonscan.com"},
	137:      {Name: "Polygon", Explorer: "https://polygonscan.com"},
}

// Lookup resolves a chain id to its display identity. Unknown chains fall
// back to a generic label with no explorer.
func Lookup(chainID uint64) Network {
	if network, found := knownNetworks[chainID]; found {
		return network
	}
	return Network{Name: fmt.Sprintf("Chain %d", chainID)}
}
