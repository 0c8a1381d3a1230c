//go:build p2p

package discovery

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
)

const serviceTag = "blockchain-node"

// mdnsDiscoverer advertises this node on the LAN and reports peers
// found back as host:port strings, reusing each peer's first
// advertised IPv4 address and the node's own HTTP port (mDNS here
// only finds neighbors; it is not the transport for blocks or
// transactions, HTTP still is).
type mdnsDiscoverer struct {
	listenPort int
	host       host.Host
	service    mdns.Service
}

// New returns the p2p-build discoverer, advertising listenPort over
// mDNS once Start is called.
func New(listenPort int) Discoverer {
	return &mdnsDiscoverer{listenPort: listenPort}
}

func (d *mdnsDiscoverer) Start(ctx context.Context, onPeerFound func(addr string)) error {
	priv, _, err := crypto.GenerateKeyPairWithReader(crypto.Ed25519, 2048, rand.Reader)
	if err != nil {
		return fmt.Errorf("generate discovery identity: %w", err)
	}

	h, err := libp2p.New(
		libp2p.Identity(priv),
		libp2p.ListenAddrStrings(fmt.Sprintf("/ip4/0.0.0.0/tcp/%d", d.listenPort+1)),
	)
	if err != nil {
		return fmt.Errorf("create discovery host: %w", err)
	}
	d.host = h

	notifee := &peerNotifee{onPeerFound: onPeerFound, httpPort: d.listenPort}
	d.service = mdns.NewMdnsService(h, serviceTag, notifee)
	return d.service.Start()
}

func (d *mdnsDiscoverer) Stop() error {
	if d.service != nil {
		if err := d.service.Close(); err != nil {
			return err
		}
	}
	if d.host != nil {
		return d.host.Close()
	}
	return nil
}

type peerNotifee struct {
	onPeerFound func(addr string)
	httpPort    int
}

// HandlePeerFound implements mdns.Notifee. It reports the discovered
// peer's first IPv4 address paired with this node's configured HTTP
// port; the node on the other end is assumed to listen on the same
// port, matching the default deployment where every node binds the
// port named by --port.
func (n *peerNotifee) HandlePeerFound(pi peer.AddrInfo) {
	for _, addr := range pi.Addrs {
		if ip, ok := extractIPv4(addr.String()); ok {
			n.onPeerFound(fmt.Sprintf("%s:%d", ip, n.httpPort))
			return
		}
	}
}

// extractIPv4 pulls the address component out of a "/ip4/x.x.x.x/tcp/n"
// multiaddr string.
func extractIPv4(maddr string) (string, bool) {
	parts := strings.Split(maddr, "/")
	for i, p := range parts {
		if p == "ip4" && i+1 < len(parts) {
			return parts[i+1], true
		}
	}
	return "", false
}
