package secondary

import "context"

// StrategyManifest describes one discovered strategy: its stable
// identity, the tag its trades carry in the ledger, and how to invoke it.
type StrategyManifest struct {
	ID         string // directory name, stable state key
	SourceTag  string
	Entrypoint string
	Dir        string
}

// StrategyRegistry defines the secondary port for strategy discovery.
// Malformed manifests surface as warnings, never as errors; a bad
// sibling must not take the allocator down.
type StrategyRegistry interface {
	Discover(ctx context.Context) (manifests []StrategyManifest, warnings []string, err error)
}
