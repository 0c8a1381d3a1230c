package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wahahalyy/blockchain-simulator/pkg/block"
	"github.com/wahahalyy/blockchain-simulator/pkg/txn"
	"github.com/wahahalyy/blockchain-simulator/pkg/utxo"
	"github.com/wahahalyy/blockchain-simulator/pkg/wallet"
)

func TestChainRoundTrip(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	cb := txn.NewCoinbase("miner", 50, "genesis", 1700000000)
	genesis := block.New(0, 1700000000, []*txn.Transaction{cb}, block.GenesisPreviousHash)
	snap := ChainSnapshot{
		Chain:     []*block.Block{genesis},
		UTXOSet:   map[string]utxo.Entry{genesis.Hash: {Address: "miner", Amount: 50}},
		Timestamp: 1700000001,
	}
	require.NoError(t, store.SaveChain(snap))

	loaded, err := store.LoadChain()
	require.NoError(t, err)
	assert.Equal(t, snap.Timestamp, loaded.Timestamp)
	require.Len(t, loaded.Chain, 1)
	assert.Equal(t, genesis.Hash, loaded.Chain[0].Hash)
	assert.Equal(t, uint64(50), loaded.UTXOSet[genesis.Hash].Amount)
}

func TestPeersRoundTrip(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.SavePeers(PeerList{Nodes: []string{"a:1", "b:2"}}))
	loaded, err := store.LoadPeers()
	require.NoError(t, err)
	assert.Equal(t, []string{"a:1", "b:2"}, loaded.Nodes)
}

func TestWalletRoundTrip(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	w, err := wallet.New()
	require.NoError(t, err)
	rec := w.ToRecord()
	require.NoError(t, store.SaveWallet(rec))

	loaded, err := store.LoadWallet()
	require.NoError(t, err)
	assert.Equal(t, rec, loaded)
}

func TestWalletsRoundTrip(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	w1, err := wallet.New()
	require.NoError(t, err)
	w2, err := wallet.New()
	require.NoError(t, err)

	recs := map[string]wallet.Record{
		w1.Address(): w1.ToRecord(),
		w2.Address(): w2.ToRecord(),
	}
	require.NoError(t, store.SaveWallets(recs))

	loaded, err := store.LoadWallets()
	require.NoError(t, err)
	assert.Equal(t, recs, loaded)
}

func TestLoadMissingFileReturnsZeroValue(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	snap, err := store.LoadChain()
	require.NoError(t, err)
	assert.Empty(t, snap.Chain)
}
