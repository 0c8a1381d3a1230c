package block

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wahahalyy/blockchain-simulator/pkg/txn"
)

func coinbase(t *testing.T) *txn.Transaction {
	t.Helper()
	return txn.NewCoinbase("miner", 50, "genesis", 1700000000)
}

func TestNewComputesHash(t *testing.T) {
	b := New(0, 1700000000, []*txn.Transaction{coinbase(t)}, "")
	assert.NotEmpty(t, b.Hash)
	assert.True(t, b.VerifyHash())
}

func TestRehashAfterNonceChange(t *testing.T) {
	b := New(1, 1700000000, []*txn.Transaction{coinbase(t)}, "prevhash")
	original := b.Hash
	b.Nonce = 42
	b.Rehash()
	assert.NotEqual(t, original, b.Hash)
	assert.True(t, b.VerifyHash())
}

func TestVerifyHashDetectsTamper(t *testing.T) {
	b := New(1, 1700000000, []*txn.Transaction{coinbase(t)}, "prevhash")
	b.PreviousHash = "tampered"
	assert.False(t, b.VerifyHash())
}

func TestMeetsDifficulty(t *testing.T) {
	b := New(0, 0, []*txn.Transaction{coinbase(t)}, "")
	b.Hash = "0000abc"
	assert.True(t, b.MeetsDifficulty(4))
	assert.False(t, b.MeetsDifficulty(5))
	assert.True(t, b.MeetsDifficulty(0))
}

func TestVerifyTransactionsRequiresCoinbase(t *testing.T) {
	b := New(0, 0, []*txn.Transaction{coinbase(t)}, "")
	require.NoError(t, b.VerifyTransactions())

	b.Transactions = nil
	require.Error(t, b.VerifyTransactions())
}

func TestVerifyTransactionsRejectsSecondCoinbase(t *testing.T) {
	b := New(0, 0, []*txn.Transaction{coinbase(t), coinbase(t)}, "")
	assert.Error(t, b.VerifyTransactions())
}

func TestSizeIncludesHash(t *testing.T) {
	b := New(0, 0, []*txn.Transaction{coinbase(t)}, "")
	size, err := b.Size()
	require.NoError(t, err)
	assert.Greater(t, size, len(b.Hash))
}
