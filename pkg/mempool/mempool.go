// Package mempool holds transactions awaiting inclusion in a block
// (component C4): a bounded, duplicate-free pending set served in
// ascending-timestamp order.
package mempool

import (
	"sort"
	"sync"

	"github.com/wahahalyy/blockchain-simulator/pkg/errs"
	"github.com/wahahalyy/blockchain-simulator/pkg/txn"
)

// Capacity is the maximum number of transactions the pool holds at
// once; once full, further admissions are rejected rather than evicting
// older entries.
const Capacity = 10000

// Pool is the thread-safe pending-transaction set.
type Pool struct {
	mu  sync.Mutex
	txs map[string]*txn.Transaction
}

// New returns an empty pool.
func New() *Pool {
	return &Pool{txs: make(map[string]*txn.Transaction)}
}

// Add admits tx into the pool. It rejects malformed transactions
// (including ones whose signature doesn't verify), duplicate txids, and
// admission once the pool is at Capacity.
func (p *Pool) Add(tx *txn.Transaction) error {
	if err := tx.Verify(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.txs[tx.TxID]; exists {
		return errs.New(errs.DuplicateTx, "transaction %s already pending", tx.TxID)
	}
	if len(p.txs) >= Capacity {
		return errs.New(errs.MempoolFull, "mempool at capacity (%d)", Capacity)
	}
	p.txs[tx.TxID] = tx
	return nil
}

// Take returns up to n pending transactions ordered ascending by
// timestamp (oldest first) and removes them from the pool atomically
// with the read, so concurrent miners never take the same transaction
// twice.
func (p *Pool) Take(n int) []*txn.Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()

	all := make([]*txn.Transaction, 0, len(p.txs))
	for _, tx := range p.txs {
		all = append(all, tx)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Timestamp != all[j].Timestamp {
			return all[i].Timestamp < all[j].Timestamp
		}
		return all[i].TxID < all[j].TxID
	})
	if n > len(all) {
		n = len(all)
	}
	taken := all[:n]
	for _, tx := range taken {
		delete(p.txs, tx.TxID)
	}
	return taken
}

// Remove drops txid from the pool if present; it is a no-op otherwise,
// used when a transaction arrives in an accepted block without ever
// having passed through Take (e.g. relayed from a peer).
func (p *Pool) Remove(txid string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.txs, txid)
}

// Get returns the pending transaction with the given txid, if any.
func (p *Pool) Get(txid string) (*txn.Transaction, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	tx, ok := p.txs[txid]
	return tx, ok
}

// Size reports the number of pending transactions.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.txs)
}

// All returns every pending transaction, unordered. Intended for
// diagnostics and the CLI menu's mempool listing.
func (p *Pool) All() []*txn.Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*txn.Transaction, 0, len(p.txs))
	for _, tx := range p.txs {
		out = append(out, tx)
	}
	return out
}
