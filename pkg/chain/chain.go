// Package chain implements the block-by-block ledger (component C6):
// validation against the tip, proof-of-work mining, difficulty
// retargeting and whole-chain replacement during consensus resolution.
package chain

import (
	"context"

	"github.com/wahahalyy/blockchain-simulator/pkg/block"
	"github.com/wahahalyy/blockchain-simulator/pkg/errs"
	"github.com/wahahalyy/blockchain-simulator/pkg/txn"
	"github.com/wahahalyy/blockchain-simulator/pkg/utxo"
)

const (
	// InitialDifficulty is the leading-zero-nibble count new chains start at.
	InitialDifficulty = 2
	// RetargetInterval is how many blocks elapse between difficulty checks.
	RetargetInterval = 5
	// ExpectedWindowSeconds is how long RetargetInterval blocks should take
	// to mine at the current difficulty.
	ExpectedWindowSeconds = 50
	// FastWindowSeconds below this, difficulty increases.
	FastWindowSeconds = 25
	// SlowWindowSeconds above this, difficulty decreases (floor of 1).
	SlowWindowSeconds = 100

	// CoinbaseReward is the fixed subsidy paid to the miner of a block.
	CoinbaseReward = 50
)

// Chain is the thread-safe, append-only ledger plus its derived UTXO
// set. The chain lock guards append, validation, UTXO application and
// difficulty retargeting as one atomic step (spec.md §5); the UTXO
// set's own lock nests inside it.
type Chain struct {
	blocks     []*block.Block
	difficulty int
	utxos      *utxo.Set
}

// NewGenesis builds a fresh single-block chain: a genesis block at index
// 0 whose sole transaction is the coinbase reward to minerAddress.
func NewGenesis(minerAddress string, now int64) *Chain {
	cb := txn.NewCoinbase(minerAddress, CoinbaseReward, "genesis", now)
	genesis := block.New(0, now, []*txn.Transaction{cb}, block.GenesisPreviousHash)

	c := &Chain{
		blocks:     []*block.Block{genesis},
		difficulty: InitialDifficulty,
		utxos:      utxo.New(),
	}
	_ = c.utxos.ApplyTransaction(cb)
	return c
}

// UTXOs exposes the chain's derived unspent-output set.
func (c *Chain) UTXOs() *utxo.Set { return c.utxos }

// Len returns the number of blocks in the chain.
func (c *Chain) Len() int { return len(c.blocks) }

// Tip returns the most recently appended block.
func (c *Chain) Tip() *block.Block { return c.blocks[len(c.blocks)-1] }

// Difficulty returns the current proof-of-work difficulty.
func (c *Chain) Difficulty() int { return c.difficulty }

// Blocks returns the chain's blocks in order. Callers must not mutate
// the returned slice's elements.
func (c *Chain) Blocks() []*block.Block { return c.blocks }

// BlockAt returns the block at index, or an UnknownBlockIndex error if
// out of range.
func (c *Chain) BlockAt(index uint64) (*block.Block, error) {
	if index >= uint64(len(c.blocks)) {
		return nil, errs.New(errs.UnknownBlockIndex, "no block at index %d", index)
	}
	return c.blocks[index], nil
}

// validateAgainstTip runs the five-step procedure from spec.md §4.4:
// index continuity, previous-hash linkage, hash integrity, proof-of-work
// satisfaction, and the transaction bundle's validity (including the
// block-size ceiling).
func (c *Chain) validateAgainstTip(candidate *block.Block) error {
	tip := c.Tip()
	if candidate.Index != tip.Index+1 {
		return errs.New(errs.Malformed, "block index %d does not follow tip %d", candidate.Index, tip.Index)
	}
	if candidate.PreviousHash != tip.Hash {
		return errs.New(errs.BadPrevHash, "block %d previous_hash does not match tip hash", candidate.Index)
	}
	if !candidate.VerifyHash() {
		return errs.New(errs.Malformed, "block %d hash does not match its contents", candidate.Index)
	}
	if !candidate.MeetsDifficulty(c.difficulty) {
		return errs.New(errs.BadProofOfWork, "block %d does not meet difficulty %d", candidate.Index, c.difficulty)
	}
	if err := candidate.VerifyTransactions(); err != nil {
		return err
	}
	size, err := candidate.Size()
	if err != nil {
		return errs.Wrap(errs.Malformed, err, "block %d size computation", candidate.Index)
	}
	if size > block.MaxSizeBytes {
		return errs.New(errs.BlockTooLarge, "block %d is %d bytes, exceeds %d", candidate.Index, size, block.MaxSizeBytes)
	}
	return nil
}

// Append validates candidate against the current tip, applies its
// transactions to the UTXO set, appends it, and retargets difficulty if
// this append crosses a RetargetInterval boundary. Validation, append
// and UTXO update happen as one atomic step (spec.md §5): transactions
// are applied against a snapshot of the UTXO set, and if any
// transaction in the block fails to apply (e.g. a double-spend within
// the block itself), the snapshot is restored and the chain and UTXO
// set are left exactly as they were before the call.
func (c *Chain) Append(candidate *block.Block) error {
	if err := c.validateAgainstTip(candidate); err != nil {
		return err
	}
	snapshot := c.utxos.Snapshot()
	for _, tx := range candidate.Transactions {
		if err := c.utxos.ApplyTransaction(tx); err != nil {
			c.utxos.Restore(snapshot)
			return errs.Wrap(errs.InvalidTxBundle, err, "applying block %d transaction %s", candidate.Index, tx.TxID)
		}
	}
	c.blocks = append(c.blocks, candidate)
	c.retarget()
	return nil
}

// retarget applies the every-5-blocks difficulty adjustment: compare
// elapsed real time over the last RetargetInterval blocks against
// ExpectedWindowSeconds. Consistently fast mining raises difficulty;
// consistently slow mining lowers it, never below 1.
func (c *Chain) retarget() {
	n := len(c.blocks)
	if n < RetargetInterval || n%RetargetInterval != 0 {
		return
	}
	window := c.blocks[n-RetargetInterval:]
	elapsed := window[len(window)-1].Timestamp - window[0].Timestamp

	switch {
	case elapsed < FastWindowSeconds:
		c.difficulty++
	case elapsed > SlowWindowSeconds && c.difficulty > 1:
		c.difficulty--
	}
}

// Mine assembles a candidate block on top of the current tip from txs
// (mempool-selected transactions, coinbase excluded) plus a fresh
// coinbase reward to minerAddress, then scans nonces until the hash
// satisfies the current difficulty or ctx is cancelled.
func (c *Chain) Mine(ctx context.Context, minerAddress string, txs []*txn.Transaction, now int64, seed string) (*block.Block, error) {
	tip := c.Tip()
	cb := txn.NewCoinbase(minerAddress, CoinbaseReward, seed, now)
	bundle := make([]*txn.Transaction, 0, len(txs)+1)
	bundle = append(bundle, cb)
	bundle = append(bundle, txs...)

	candidate := block.New(tip.Index+1, now, bundle, tip.Hash)
	difficulty := c.difficulty

	for nonce := uint64(0); ; nonce++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		candidate.Nonce = nonce
		candidate.Rehash()
		if candidate.MeetsDifficulty(difficulty) {
			return candidate, nil
		}
	}
}

// Replace atomically swaps the chain for candidate if candidate is
// longer than the current chain and validates fully from genesis. The
// UTXO set is rebuilt from scratch by replaying candidate; difficulty is
// recomputed by replaying the retarget rule over the new history.
func (c *Chain) Replace(candidate []*block.Block) error {
	if len(candidate) <= len(c.blocks) {
		return errs.New(errs.ChainBehind, "candidate chain (%d blocks) is not longer than current (%d)", len(candidate), len(c.blocks))
	}
	trial, err := rebuild(candidate)
	if err != nil {
		return err
	}
	c.blocks = trial.blocks
	c.difficulty = trial.difficulty
	c.utxos = trial.utxos
	return nil
}

// Restore rebuilds a Chain from a persisted snapshot of blocks, by the
// same from-genesis replay Replace uses for an adopted candidate
// chain. The persisted UTXO snapshot is not trusted directly; it is
// recomputed so a snapshot written by a different version of the
// validation rules can't silently carry stale state forward.
func Restore(blocks []*block.Block, _ map[string]utxo.Entry) (*Chain, error) {
	return rebuild(blocks)
}

// rebuild validates a full candidate chain from genesis and replays its
// transactions into a fresh UTXO set, returning a standalone Chain. It
// never mutates an existing Chain; Replace adopts the result only once
// validation succeeds completely.
func rebuild(candidate []*block.Block) (*Chain, error) {
	if len(candidate) == 0 {
		return nil, errs.New(errs.Malformed, "candidate chain is empty")
	}
	if candidate[0].PreviousHash != block.GenesisPreviousHash || candidate[0].Index != 0 || !candidate[0].VerifyHash() {
		return nil, errs.New(errs.Malformed, "candidate genesis block is invalid")
	}

	trial := &Chain{
		blocks:     []*block.Block{candidate[0]},
		difficulty: InitialDifficulty,
		utxos:      utxo.New(),
	}
	if err := candidate[0].VerifyTransactions(); err != nil {
		return nil, err
	}
	for _, tx := range candidate[0].Transactions {
		if err := trial.utxos.ApplyTransaction(tx); err != nil {
			return nil, err
		}
	}
	trial.retarget()

	for _, b := range candidate[1:] {
		if err := trial.Append(b); err != nil {
			return nil, err
		}
	}
	return trial, nil
}
