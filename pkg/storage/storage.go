// Package storage persists node state as the three literal JSON
// documents the wire format mandates (component A3): a chain+UTXO
// snapshot, the peer list, and wallet records. There is no KV-engine
// backend — spec.md §6 names field-level JSON shapes a document store
// can serve directly; a key-value engine would need a translation
// shim on top, which defeats the point of reusing the library.
package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/wahahalyy/blockchain-simulator/pkg/block"
	"github.com/wahahalyy/blockchain-simulator/pkg/utxo"
	"github.com/wahahalyy/blockchain-simulator/pkg/wallet"
)

// ChainSnapshot is the on-disk shape of the chain+UTXO document.
type ChainSnapshot struct {
	Chain     []*block.Block       `json:"chain"`
	UTXOSet   map[string]utxo.Entry `json:"utxo_set"`
	Timestamp int64                `json:"timestamp"`
}

// PeerList is the on-disk shape of the peer-list document.
type PeerList struct {
	Nodes []string `json:"nodes"`
}

// Store is the persistence boundary the node depends on. jsonstore is
// the only implementation; it exists so the chain/peer/wallet
// subsystems never import the filesystem directly.
type Store interface {
	LoadChain() (ChainSnapshot, error)
	SaveChain(ChainSnapshot) error

	LoadPeers() (PeerList, error)
	SavePeers(PeerList) error

	LoadWallet() (wallet.Record, error)
	SaveWallet(wallet.Record) error

	LoadWallets() (map[string]wallet.Record, error)
	SaveWallets(map[string]wallet.Record) error
}

// jsonStore implements Store over four files under a data directory:
// chain, peers, default wallet and wallet collection.
type jsonStore struct {
	mu      sync.Mutex
	dataDir string
}

// New returns a Store rooted at dataDir, creating it if necessary.
func New(dataDir string) (Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}
	return &jsonStore{dataDir: dataDir}, nil
}

func (s *jsonStore) path(name string) string {
	return filepath.Join(s.dataDir, name)
}

// writeJSON serializes v to a temp file in the data directory and
// renames it over the destination, so a crash mid-write never leaves a
// half-written document in place.
func (s *jsonStore) writeJSON(name string, v interface{}) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	dest := s.path(name)
	tmp := dest + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, dest)
}

func (s *jsonStore) readJSON(name string, v interface{}) (bool, error) {
	raw, err := os.ReadFile(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, err
	}
	return true, nil
}

const (
	chainFile   = "chain.json"
	peersFile   = "nodes.json"
	walletFile  = "wallet.json"
	walletsFile = "wallets.json"
)

func (s *jsonStore) LoadChain() (ChainSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var snap ChainSnapshot
	_, err := s.readJSON(chainFile, &snap)
	return snap, err
}

func (s *jsonStore) SaveChain(snap ChainSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeJSON(chainFile, snap)
}

func (s *jsonStore) LoadPeers() (PeerList, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var list PeerList
	_, err := s.readJSON(peersFile, &list)
	return list, err
}

func (s *jsonStore) SavePeers(list PeerList) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeJSON(peersFile, list)
}

func (s *jsonStore) LoadWallet() (wallet.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rec wallet.Record
	_, err := s.readJSON(walletFile, &rec)
	return rec, err
}

func (s *jsonStore) SaveWallet(rec wallet.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeJSON(walletFile, rec)
}

func (s *jsonStore) LoadWallets() (map[string]wallet.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs := make(map[string]wallet.Record)
	_, err := s.readJSON(walletsFile, &recs)
	return recs, err
}

func (s *jsonStore) SaveWallets(recs map[string]wallet.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeJSON(walletsFile, recs)
}
