package miner

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wahahalyy/blockchain-simulator/pkg/block"
	"github.com/wahahalyy/blockchain-simulator/pkg/chain"
	"github.com/wahahalyy/blockchain-simulator/pkg/mempool"
	"github.com/wahahalyy/blockchain-simulator/pkg/txn"
	"github.com/wahahalyy/blockchain-simulator/pkg/wallet"
)

// fakeClock lets tests fast-forward EmptyBlockThreshold without a real
// 30-second sleep; Sleep advances the clock instead of blocking.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Unix(1700000000, 0)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d + time.Millisecond)
	c.mu.Unlock()
}

func TestMineOnceAppendsBlockAndCallsOnMined(t *testing.T) {
	c := chain.NewGenesis("someone", 1700000000)
	pool := mempool.New()

	var mined *block.Block
	m := New(c, pool, "miner-address", func(b *block.Block) { mined = b })
	m.SetClock(newFakeClock())

	m.mineOnce(context.Background(), nil)

	require.NotNil(t, mined)
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, StateIdle, m.State())
}

func TestRunTransactionDrivenMinesEmptyBlockAfterThreshold(t *testing.T) {
	c := chain.NewGenesis("someone", 1700000000)
	pool := mempool.New()

	done := make(chan struct{})
	m := New(c, pool, "miner-address", func(b *block.Block) { close(done) })
	m.SetClock(newFakeClock())
	m.SetMode(ModeTransactionDriven)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go m.runTransactionDriven(ctx)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected an empty block to be mined after the threshold elapsed")
	}
	assert.Equal(t, 2, c.Len())
}

func TestMineOnceReadmitsTransactionsOnAppendFailure(t *testing.T) {
	c := chain.NewGenesis("someone", 1700000000)
	pool := mempool.New()
	w, err := wallet.New()
	require.NoError(t, err)

	// w holds no UTXO balance, so this signs cleanly (passing
	// VerifyTransactions) but fails Append's UTXO application with
	// insufficient funds, the case the re-admission guard exists for.
	tx := txn.New(w.Address(), "recipient", 1, 0, 1700000005)
	require.NoError(t, tx.Sign(w))

	m := New(c, pool, "miner-address", nil)
	m.SetClock(newFakeClock())

	m.mineOnce(context.Background(), []*txn.Transaction{tx})

	assert.Equal(t, 1, c.Len(), "the bad block must not have been appended")
	got, ok := pool.Get(tx.TxID)
	require.True(t, ok, "the transaction should be readmitted to the mempool")
	assert.Equal(t, tx.TxID, got.TxID)
}

func TestDisabledModeNeverMines(t *testing.T) {
	c := chain.NewGenesis("someone", 1700000000)
	pool := mempool.New()
	m := New(c, pool, "miner-address", nil)
	m.SetClock(newFakeClock())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	m.Run(ctx)

	assert.Equal(t, ModeDisabled, m.Mode())
	assert.Equal(t, 1, c.Len())
}

func TestSetModeIsThreadSafe(t *testing.T) {
	c := chain.NewGenesis("someone", 1700000000)
	pool := mempool.New()
	m := New(c, pool, "miner-address", nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				m.SetMode(ModeContinuous)
			} else {
				m.SetMode(ModeDisabled)
			}
		}(i)
	}
	wg.Wait()
}
