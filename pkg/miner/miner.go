// Package miner drives the proof-of-work mining loop (component C10):
// selecting pending transactions, assembling a candidate block, mining
// it, appending it to the chain, and handing the result off for gossip.
package miner

import (
	"context"
	"sync"
	"time"

	"github.com/wahahalyy/blockchain-simulator/pkg/block"
	"github.com/wahahalyy/blockchain-simulator/pkg/chain"
	"github.com/wahahalyy/blockchain-simulator/pkg/mempool"
	"github.com/wahahalyy/blockchain-simulator/pkg/txn"
)

// Mode selects how the mining loop decides when to mine.
type Mode int

const (
	// ModeDisabled polls but never mines.
	ModeDisabled Mode = iota
	// ModeTransactionDriven mines as soon as a transaction is pending,
	// falling back to an empty (coinbase-only) block after
	// EmptyBlockThreshold with nothing pending, to keep the chain moving.
	ModeTransactionDriven
	// ModeContinuous mines back-to-back regardless of mempool contents.
	ModeContinuous
)

const (
	// DisabledPollInterval is how often a disabled miner re-checks its mode.
	DisabledPollInterval = 10 * time.Second
	// EmptyBlockThreshold is how long transaction-driven mode waits with
	// an empty mempool before mining an empty block anyway.
	EmptyBlockThreshold = 30 * time.Second
	// SelectionLimit bounds how many pending transactions one block pulls,
	// leaving room for the prepended coinbase within
	// block.MaxTransactionsPerBlock.
	SelectionLimit = block.MaxTransactionsPerBlock - 1
	// idlePoll is how often transaction-driven mode re-checks the
	// mempool while waiting for the empty-block threshold to elapse.
	idlePoll = 500 * time.Millisecond
)

// State names a step of the mining state machine, exposed for
// diagnostics (the HTTP /mining/status route and tests).
type State string

const (
	StateIdle        State = "idle"
	StateSelectTx    State = "select_tx"
	StateAssemble    State = "assemble"
	StateProofOfWork State = "proof_of_work"
	StateAppend      State = "append"
	StateGossip      State = "gossip"
)

// Clock abstracts time so tests can control the passage of time instead
// of sleeping in real time.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time     { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// Miner owns the background mining loop for one node.
type Miner struct {
	mu      sync.Mutex
	mode    Mode
	state   State
	address string

	chain   *chain.Chain
	pool    *mempool.Pool
	clock   Clock
	onMined func(*block.Block)
}

// New returns a miner in ModeDisabled, mining to address when enabled.
func New(c *chain.Chain, pool *mempool.Pool, address string, onMined func(*block.Block)) *Miner {
	return &Miner{
		mode:    ModeDisabled,
		state:   StateIdle,
		address: address,
		chain:   c,
		pool:    pool,
		clock:   realClock{},
		onMined: onMined,
	}
}

// SetClock overrides the miner's time source; intended for tests.
func (m *Miner) SetClock(c Clock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock = c
}

// SetMode changes the mining mode; safe to call concurrently with Run.
func (m *Miner) SetMode(mode Mode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mode = mode
}

// Mode returns the current mining mode.
func (m *Miner) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// State returns the mining loop's current state-machine step.
func (m *Miner) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Miner) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// Run drives the mining loop until ctx is cancelled.
func (m *Miner) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		switch m.Mode() {
		case ModeDisabled:
			m.setState(StateIdle)
			m.clock.Sleep(DisabledPollInterval)
		case ModeTransactionDriven:
			m.runTransactionDriven(ctx)
		case ModeContinuous:
			m.mineOnce(ctx, m.pool.Take(SelectionLimit))
		}
	}
}

// seed derives a per-attempt uniqueness string for the coinbase
// transaction so two blocks mined back-to-back never collide on txid.
func (m *Miner) seed(now time.Time) string {
	return m.address + "_" + now.Format(time.RFC3339Nano)
}

// mineOnce assembles and mines a single block from txs, appends it to
// the chain on success, and hands it to onMined for gossip. Failures
// (context cancellation, a concurrently-appended competing block) are
// swallowed; the loop simply tries again on its next iteration.
func (m *Miner) mineOnce(ctx context.Context, txs []*txn.Transaction) {
	m.setState(StateAssemble)
	now := m.clock.Now()

	m.setState(StateProofOfWork)
	candidate, err := m.chain.Mine(ctx, m.address, txs, now.Unix(), m.seed(now))
	if err != nil {
		return
	}

	m.setState(StateAppend)
	if err := m.chain.Append(candidate); err != nil {
		for _, tx := range txs {
			if !tx.IsCoinbase() {
				_ = m.pool.Add(tx)
			}
		}
		return
	}

	m.setState(StateGossip)
	if m.onMined != nil {
		m.onMined(candidate)
	}
	m.setState(StateIdle)
}

// runTransactionDriven waits for a pending transaction, or mines an
// empty block once EmptyBlockThreshold has elapsed with nothing
// pending.
func (m *Miner) runTransactionDriven(ctx context.Context) {
	deadline := m.clock.Now().Add(EmptyBlockThreshold)
	for {
		if ctx.Err() != nil || m.Mode() != ModeTransactionDriven {
			return
		}
		m.setState(StateSelectTx)
		if m.pool.Size() > 0 {
			m.mineOnce(ctx, m.pool.Take(SelectionLimit))
			return
		}
		if !m.clock.Now().Before(deadline) {
			m.mineOnce(ctx, nil)
			return
		}
		m.clock.Sleep(idlePoll)
	}
}
