//go:build !p2p

// Package discovery adds LAN peer discovery on top of the HTTP peer
// registry (component A7). The default build is a no-op: discovery is
// opt-in via the p2p build tag, which wires libp2p mDNS in
// discovery_p2p.go. Either way nodes still register with each other
// over HTTP; discovery only supplies addresses to register.
package discovery

import "context"

// Discoverer finds peer addresses on the local network and reports
// each one found to onPeerFound.
type Discoverer interface {
	Start(ctx context.Context, onPeerFound func(addr string)) error
	Stop() error
}

type noopDiscoverer struct{}

// New returns the default discoverer for this build. Without the p2p
// build tag it never finds anything; nodes rely entirely on
// --seed-url and /nodes/register.
func New(listenPort int) Discoverer { return noopDiscoverer{} }

func (noopDiscoverer) Start(ctx context.Context, onPeerFound func(addr string)) error { return nil }
func (noopDiscoverer) Stop() error                                                    { return nil }
