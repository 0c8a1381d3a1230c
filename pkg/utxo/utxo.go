// Package utxo maintains the unspent-output set derived from an applied
// chain (component C3). Keys are txids (or a txid suffixed with
// "_change" for a sender's change output); there is no explicit
// input/output script model, matching the node's implicit
// smallest-first UTXO selection.
package utxo

import (
	"sort"
	"sync"

	"github.com/wahahalyy/blockchain-simulator/pkg/errs"
	"github.com/wahahalyy/blockchain-simulator/pkg/txn"
)

// Entry is one unspent (or spent) output tracked by the set.
type Entry struct {
	Address string `json:"address"`
	Amount  uint64 `json:"amount"`
	Spent   bool   `json:"spent"`
}

// Set is the mutable, thread-safe unspent-output table. The zero value
// is not usable; construct with New.
type Set struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

// New returns an empty UTXO set.
func New() *Set {
	return &Set{entries: make(map[string]*Entry)}
}

// Add inserts a fresh unspent entry under key, overwriting any existing
// entry at that key.
func (s *Set) Add(key, address string, amount uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = &Entry{Address: address, Amount: amount}
}

// Spend marks the entry at key as spent. It is a no-op if the key is
// unknown or already spent.
func (s *Set) Spend(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok {
		e.Spent = true
	}
}

// Balance sums every unspent entry owned by address.
func (s *Set) Balance(address string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total uint64
	for _, e := range s.entries {
		if !e.Spent && e.Address == address {
			total += e.Amount
		}
	}
	return total
}

// unspentFor is a (key, amount) pair used for selection; kept unexported
// so callers can't reach into the set's internal keys.
type unspentFor struct {
	key    string
	amount uint64
}

// selectFor returns address's unspent entries sorted ascending by
// amount, smallest-first, matching the original source's selection
// order.
func (s *Set) selectFor(address string) []unspentFor {
	var out []unspentFor
	for key, e := range s.entries {
		if !e.Spent && e.Address == address {
			out = append(out, unspentFor{key: key, amount: e.Amount})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].amount != out[j].amount {
			return out[i].amount < out[j].amount
		}
		return out[i].key < out[j].key
	})
	return out
}

// ApplyTransaction folds tx into the set. A coinbase transaction simply
// adds a new unspent entry keyed by its txid. A normal transaction
// selects the sender's unspent entries ascending by amount until their
// sum covers tx.Amount, marks every selected entry spent, credits the
// recipient at tx.TxID, and — if the selected total exceeds tx.Amount —
// credits the sender's change at the "_change" key.
//
// ApplyTransaction does not itself re-verify the transaction's signature;
// callers are expected to have done so already (mempool admission, block
// validation).
func (s *Set) ApplyTransaction(tx *txn.Transaction) error {
	if tx.IsCoinbase() {
		s.Add(tx.TxID, tx.Recipient, tx.Amount)
		return nil
	}

	s.mu.Lock()
	candidates := s.selectFor(tx.Sender)
	var total uint64
	var chosen []string
	for _, c := range candidates {
		chosen = append(chosen, c.key)
		total += c.amount
		if total >= tx.Amount {
			break
		}
	}
	if total < tx.Amount {
		s.mu.Unlock()
		return errs.New(errs.InsufficientFunds, "sender %s has %d available, needs %d", tx.Sender, total, tx.Amount)
	}
	for _, key := range chosen {
		s.entries[key].Spent = true
	}
	s.mu.Unlock()

	s.Add(tx.TxID, tx.Recipient, tx.Amount)
	if change := total - tx.Amount; change > 0 {
		s.Add(txn.ChangeUTXOKey(tx.TxID), tx.Sender, change)
	}
	return nil
}

// Snapshot returns a deep copy of the set's entries, suitable for
// persistence or for rebuilding a trial set during chain replacement.
func (s *Set) Snapshot() map[string]Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Entry, len(s.entries))
	for k, e := range s.entries {
		out[k] = *e
	}
	return out
}

// Restore replaces the set's contents with a copy of snapshot; later
// changes to snapshot do not affect the set.
func (s *Set) Restore(snapshot map[string]Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*Entry, len(snapshot))
	for k, e := range snapshot {
		cp := e
		s.entries[k] = &cp
	}
}

// Reset clears the set back to empty. Chain replacement does not use it;
// it rebuilds into a fresh set from New.
func (s *Set) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*Entry)
}
