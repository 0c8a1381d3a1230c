// Package block implements the block envelope (component C5): canonical
// hashing, proof-of-work validation and the serialized size used by the
// block-size invariant.
package block

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/wahahalyy/blockchain-simulator/pkg/errs"
	"github.com/wahahalyy/blockchain-simulator/pkg/txn"
)

// MaxSizeBytes bounds the canonical JSON encoding of a block, including
// its hash field.
const MaxSizeBytes = 1 << 20 // 1 MiB

// MaxTransactionsPerBlock bounds how many transactions (coinbase
// included) one block may carry.
const MaxTransactionsPerBlock = 1000

// GenesisPreviousHash is the literal previous_hash of the chain's first
// block, since there is no real predecessor to link to.
const GenesisPreviousHash = "0"

// Block is one link of the chain. Hash is the SHA-256 digest of the
// canonical JSON encoding of every other field; it is excluded from its
// own computation.
type Block struct {
	Index        uint64             `json:"index"`
	Timestamp    int64              `json:"timestamp"`
	Transactions []*txn.Transaction `json:"transactions"`
	PreviousHash string             `json:"previous_hash"`
	Nonce        uint64             `json:"nonce"`
	Hash         string             `json:"hash"`
}

// New builds a block with a freshly computed hash at nonce 0. Callers
// mining a block set Nonce and call Rehash on each attempt (as
// chain.Mine does) rather than constructing a new Block per attempt.
func New(index uint64, timestamp int64, txs []*txn.Transaction, previousHash string) *Block {
	b := &Block{
		Index:        index,
		Timestamp:    timestamp,
		Transactions: txs,
		PreviousHash: previousHash,
	}
	b.Hash = b.computeHash()
	return b
}

// canonicalFields mirrors txn's approach: a map marshaled by
// encoding/json, whose key-sorting gives us the canonical, hash-excluded
// payload for free.
func (b *Block) canonicalFields() map[string]interface{} {
	return map[string]interface{}{
		"index":         b.Index,
		"timestamp":     b.Timestamp,
		"transactions":  b.Transactions,
		"previous_hash": b.PreviousHash,
		"nonce":         b.Nonce,
	}
}

func (b *Block) computeHash() string {
	raw, _ := json.Marshal(b.canonicalFields())
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// Rehash recomputes Hash from the block's current fields; callers use
// this after mutating Nonce while mining.
func (b *Block) Rehash() {
	b.Hash = b.computeHash()
}

// MeetsDifficulty reports whether Hash has at least difficulty leading
// hex zero nibbles.
func (b *Block) MeetsDifficulty(difficulty int) bool {
	if difficulty <= 0 {
		return true
	}
	return strings.HasPrefix(b.Hash, strings.Repeat("0", difficulty))
}

// Size returns the length in bytes of the block's canonical JSON
// encoding, including the hash field — the quantity the block-size
// invariant bounds.
func (b *Block) Size() (int, error) {
	raw, err := json.Marshal(b)
	if err != nil {
		return 0, err
	}
	return len(raw), nil
}

// VerifyHash reports whether Hash matches recomputation from the
// block's other fields.
func (b *Block) VerifyHash() bool {
	return b.Hash == b.computeHash()
}

// VerifyTransactions checks every transaction in the block verifies in
// isolation, and that exactly one coinbase transaction is present
// somewhere in the list; position is not constrained.
func (b *Block) VerifyTransactions() error {
	if len(b.Transactions) == 0 {
		return errs.New(errs.InvalidTxBundle, "block %d has no transactions", b.Index)
	}
	if len(b.Transactions) > MaxTransactionsPerBlock {
		return errs.New(errs.InvalidTxBundle, "block %d has %d transactions, exceeds %d", b.Index, len(b.Transactions), MaxTransactionsPerBlock)
	}
	coinbaseCount := 0
	for _, tx := range b.Transactions {
		if tx.IsCoinbase() {
			coinbaseCount++
		}
	}
	if coinbaseCount != 1 {
		return errs.New(errs.InvalidTxBundle, "block %d has %d coinbase transactions, expected exactly 1", b.Index, coinbaseCount)
	}
	for _, tx := range b.Transactions {
		if err := tx.Verify(); err != nil {
			return errs.Wrap(errs.InvalidTxBundle, err, "block %d transaction %s invalid", b.Index, tx.TxID)
		}
	}
	return nil
}
