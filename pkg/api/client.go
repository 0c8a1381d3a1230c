package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/wahahalyy/blockchain-simulator/pkg/block"
	"github.com/wahahalyy/blockchain-simulator/pkg/gossip"
)

// Client is the outbound side of the HTTP transport: it delivers
// gossip messages and fetches peer chains for the consensus resolver.
// It implements both gossip.Transport and consensus.Fetcher.
type Client struct {
	http *http.Client
}

// NewClient returns a Client with a generous top-level timeout; callers
// that need a tighter per-call bound pass a context.WithTimeout, which
// takes precedence.
func NewClient() *Client {
	return &Client{http: &http.Client{Timeout: 30 * time.Second}}
}

func (c *Client) postJSON(ctx context.Context, url string, body interface{}) (*http.Response, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.http.Do(req)
}

// Send implements gossip.Transport, relaying msg to the matching
// endpoint on peerURL based on its kind.
func (c *Client) Send(ctx context.Context, peerURL string, msg gossip.Message) error {
	var path string
	var body interface{}
	switch msg.Kind {
	case gossip.KindTx:
		path = "/transaction/broadcast"
		body = json.RawMessage(msg.Payload)
	case gossip.KindBlock:
		path = "/block/receive"
		body = json.RawMessage(msg.Payload)
	case gossip.KindPeerList:
		path = "/nodes/sync"
		body = map[string]interface{}{
			"nodes":       json.RawMessage(msg.Payload),
			"message_id":  msg.ID,
			"source_node": msg.Origin,
			"timestamp":   time.Now().Unix(),
		}
	default:
		return fmt.Errorf("unknown gossip kind %q", msg.Kind)
	}

	resp, err := c.postJSON(ctx, "http://"+peerURL+path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("peer %s responded %d", peerURL, resp.StatusCode)
	}
	return nil
}

// FetchChain implements consensus.Fetcher over GET /chain.
func (c *Client) FetchChain(ctx context.Context, peerURL string) ([]*block.Block, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+peerURL+"/chain", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("peer %s responded %d", peerURL, resp.StatusCode)
	}

	var body struct {
		Chain []*block.Block `json:"chain"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	return body.Chain, nil
}

// RegisterWith posts this node's own address to peerURL's
// /nodes/register, the standard way a freshly started node introduces
// itself to a seed peer.
func (c *Client) RegisterWith(ctx context.Context, peerURL, self string) error {
	resp, err := c.postJSON(ctx, "http://"+peerURL+"/nodes/register", map[string]interface{}{"nodes": []string{self}})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("peer %s responded %d", peerURL, resp.StatusCode)
	}
	return nil
}

// ProbeHealth issues a bounded GET /health against peerURL, reporting
// whether it responded with 200.
func (c *Client) ProbeHealth(ctx context.Context, peerURL string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+peerURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}
