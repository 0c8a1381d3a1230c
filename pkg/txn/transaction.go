// Package txn implements the canonical transaction object (component C2):
// construction, txid hashing, signing and verification.
package txn

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/wahahalyy/blockchain-simulator/pkg/errs"
	"github.com/wahahalyy/blockchain-simulator/pkg/wallet"
)

// Transaction is the wire and in-memory representation of a transfer.
// Sender is empty for the single coinbase transaction of a block.
type Transaction struct {
	TxID      string `json:"txid"`
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Amount    uint64 `json:"amount"`
	Nonce     uint64 `json:"nonce"`
	Timestamp int64  `json:"timestamp"`
	Signature string `json:"signature"`
}

// IsCoinbase reports whether tx is the reward-creating transaction of a block.
func (tx *Transaction) IsCoinbase() bool {
	return tx.Sender == wallet.CoinbaseAddress
}

// New builds an unsigned transaction stamped with now. A zero nonce is
// filled in by Sign from the sending wallet.
func New(sender, recipient string, amount uint64, nonce uint64, now int64) *Transaction {
	tx := &Transaction{
		Sender:    sender,
		Recipient: recipient,
		Amount:    amount,
		Nonce:     nonce,
		Timestamp: now,
	}
	tx.TxID = tx.computeTxID()
	return tx
}

// canonicalFields returns the hashed payload: sender, recipient, amount,
// nonce, timestamp — signature and txid excluded, keys sorted
// lexicographically. encoding/json sorts map keys, which gives us the
// canonical form for free.
func (tx *Transaction) canonicalFields() map[string]interface{} {
	return map[string]interface{}{
		"sender":    tx.Sender,
		"recipient": tx.Recipient,
		"amount":    tx.Amount,
		"nonce":     tx.Nonce,
		"timestamp": tx.Timestamp,
	}
}

func (tx *Transaction) computeTxID() string {
	raw, _ := json.Marshal(tx.canonicalFields())
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// Sign sets the nonce from the wallet's current counter if it is still
// zero, recomputes the txid, signs SHA-256(txid) and advances the
// wallet's nonce. It fails with InvalidSignature if the wallet's address
// doesn't match Sender.
func (tx *Transaction) Sign(w *wallet.Wallet) error {
	if w.Address() != tx.Sender {
		return errs.New(errs.InvalidSignature, "signing wallet address does not match sender")
	}
	if tx.Nonce == 0 {
		tx.Nonce = w.CurrentNonce()
	}
	tx.TxID = tx.computeTxID()

	digest := sha256.Sum256([]byte(tx.TxID))
	sig, err := w.Sign(digest[:])
	if err != nil {
		return errs.Wrap(errs.InvalidSignature, err, "sign transaction")
	}
	tx.Signature = sig
	w.IncrementNonce()
	return nil
}

// Verify validates tx in isolation: coinbase transactions are always
// valid (signature checking doesn't apply to them); everything else must
// have a non-empty sender, a positive amount, a txid that matches
// recomputation, and a signature that verifies against sender.
func (tx *Transaction) Verify() error {
	if tx.IsCoinbase() {
		return nil
	}
	if tx.Sender == "" || tx.Recipient == "" {
		return errs.New(errs.Malformed, "transaction missing sender or recipient")
	}
	if tx.Amount == 0 {
		return errs.New(errs.Malformed, "transaction amount must be positive")
	}
	if tx.TxID != tx.computeTxID() {
		return errs.New(errs.Malformed, "txid does not match recomputed hash")
	}
	if tx.Signature == "" {
		return errs.New(errs.InvalidSignature, "transaction missing signature")
	}
	digest := sha256.Sum256([]byte(tx.TxID))
	if !wallet.Verify(digest[:], tx.Signature, tx.Sender) {
		return errs.New(errs.InvalidSignature, "signature does not verify against sender")
	}
	return nil
}

// NewCoinbase builds the unsigned, unverifiable coinbase transaction for
// a freshly mined block. txid is SHA-256("coinbase_" + a unique seed),
// grounded on the original source's coinbase_tx construction.
func NewCoinbase(recipient string, reward uint64, seed string, now int64) *Transaction {
	sum := sha256.Sum256([]byte("coinbase_" + seed))
	return &Transaction{
		TxID:      hex.EncodeToString(sum[:]),
		Sender:    wallet.CoinbaseAddress,
		Recipient: recipient,
		Amount:    reward,
		Nonce:     0,
		Timestamp: now,
		Signature: "",
	}
}

// ChangeUTXOKey derives the change-output UTXO key for a transaction.
func ChangeUTXOKey(txid string) string {
	return txid + "_change"
}
