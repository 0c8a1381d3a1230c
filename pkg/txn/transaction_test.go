package txn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wahahalyy/blockchain-simulator/pkg/wallet"
)

func TestSignThenVerify(t *testing.T) {
	sender, err := wallet.New()
	require.NoError(t, err)

	tx := New(sender.Address(), "recipient-address", 10, 0, 1_700_000_000)
	require.NoError(t, tx.Sign(sender))

	assert.NoError(t, tx.Verify())
}

func TestVerifyRejectsTamperedField(t *testing.T) {
	sender, err := wallet.New()
	require.NoError(t, err)

	tx := New(sender.Address(), "recipient-address", 10, 0, 1_700_000_000)
	require.NoError(t, tx.Sign(sender))

	tx.Amount = 999
	// txid still refers to the original amount, so recomputation diverges.
	assert.Error(t, tx.Verify())
}

func TestVerifyRejectsTamperedTxIDRecompute(t *testing.T) {
	sender, err := wallet.New()
	require.NoError(t, err)

	tx := New(sender.Address(), "recipient-address", 10, 0, 1_700_000_000)
	require.NoError(t, tx.Sign(sender))

	tx.Recipient = "someone-else"
	tx.TxID = tx.computeTxID()
	// txid now matches the tampered fields, but the signature no longer does.
	assert.Error(t, tx.Verify())
}

func TestSignRejectsMismatchedWallet(t *testing.T) {
	sender, err := wallet.New()
	require.NoError(t, err)
	other, err := wallet.New()
	require.NoError(t, err)

	tx := New(sender.Address(), "recipient-address", 10, 0, 1_700_000_000)
	assert.Error(t, tx.Sign(other))
}

func TestSignFillsNonceFromWallet(t *testing.T) {
	sender, err := wallet.New()
	require.NoError(t, err)
	sender.IncrementNonce()
	sender.IncrementNonce()

	tx := New(sender.Address(), "recipient-address", 10, 0, 1_700_000_000)
	require.NoError(t, tx.Sign(sender))

	assert.Equal(t, uint64(2), tx.Nonce)
	assert.Equal(t, uint64(3), sender.CurrentNonce())
}

func TestCoinbaseAlwaysVerifies(t *testing.T) {
	cb := NewCoinbase("miner-address", 50, "block-7", 1_700_000_000)
	assert.True(t, cb.IsCoinbase())
	assert.NoError(t, cb.Verify())
}

func TestVerifyRejectsZeroAmount(t *testing.T) {
	sender, err := wallet.New()
	require.NoError(t, err)

	tx := New(sender.Address(), "recipient-address", 0, 0, 1_700_000_000)
	require.NoError(t, tx.Sign(sender))

	assert.Error(t, tx.Verify())
}

func TestChangeUTXOKey(t *testing.T) {
	assert.Equal(t, "abc123_change", ChangeUTXOKey("abc123"))
}
