// Package consensus implements the longest-valid-chain resolver
// (component C9): fetching every peer's chain, validating each as a
// whole, and adopting the longest one that validates, breaking ties in
// favor of whichever chain was encountered first.
package consensus

import (
	"context"
	"time"

	"github.com/wahahalyy/blockchain-simulator/pkg/block"
	"github.com/wahahalyy/blockchain-simulator/pkg/chain"
)

// FetchTimeout bounds a single peer's chain fetch during resolution.
const FetchTimeout = 5 * time.Second

// PeriodicInterval is how often the background resolver loop runs
// unprompted, independent of the inbound-block-ahead and manual triggers.
const PeriodicInterval = 60 * time.Second

// Fetcher retrieves a peer's full chain. The HTTP implementation lives
// in pkg/api; tests substitute a fake.
type Fetcher interface {
	FetchChain(ctx context.Context, peerURL string) ([]*block.Block, error)
}

// Resolver runs the consensus procedure against a node's local chain.
type Resolver struct {
	fetcher Fetcher
}

// New returns a Resolver that fetches peer chains through fetcher.
func New(fetcher Fetcher) *Resolver {
	return &Resolver{fetcher: fetcher}
}

// Resolve fetches every peer's chain (bounded by FetchTimeout each),
// and replaces the local chain with the longest one that validates from
// genesis and is strictly longer than the current chain. Among equally
// long valid candidates, the first one encountered (in peers' order)
// wins. It reports whether a replacement occurred.
func (r *Resolver) Resolve(ctx context.Context, c *chain.Chain, peers []string) (bool, error) {
	var best []*block.Block

	for _, peerURL := range peers {
		fetchCtx, cancel := context.WithTimeout(ctx, FetchTimeout)
		candidate, err := r.fetcher.FetchChain(fetchCtx, peerURL)
		cancel()
		if err != nil || len(candidate) == 0 {
			continue
		}
		if len(candidate) <= c.Len() {
			continue
		}
		if best == nil || len(candidate) > len(best) {
			if _, err := chain.Restore(candidate, nil); err != nil {
				continue
			}
			best = candidate
		}
	}

	if best == nil {
		return false, nil
	}
	if err := c.Replace(best); err != nil {
		return false, err
	}
	return true, nil
}

// RunPeriodic invokes resolve every PeriodicInterval until ctx is
// cancelled. Callers typically pass a closure over a fixed Resolver,
// Chain and peer source.
func RunPeriodic(ctx context.Context, resolve func(context.Context) (bool, error)) {
	ticker := time.NewTicker(PeriodicInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = resolve(ctx)
		}
	}
}
