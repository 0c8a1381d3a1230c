// Package wallet implements SECP256k1 key generation, signing and
// verification (component C1 of the node). An address is the hex
// encoding of the wallet's uncompressed public key; the empty address
// is reserved to denote the coinbase source.
package wallet

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
)

// CoinbaseAddress is the reserved empty address used as the sender of a
// coinbase transaction.
const CoinbaseAddress = ""

// Wallet owns one SECP256k1 keypair and a monotonic nonce counter, the
// source of a fresh nonce when a transaction doesn't carry one yet. The
// nonce is part of a transaction's hashed payload; no component rejects
// a transaction for reusing a nonce.
type Wallet struct {
	mu      sync.Mutex
	private *btcec.PrivateKey
	nonce   uint64
}

// Record is the on-disk shape of a wallet: a hex private key plus its
// current nonce, matching the original source's `wallet.to_dict()`.
type Record struct {
	PrivateKey string `json:"private_key"`
	Nonce      uint64 `json:"nonce"`
}

// New generates a fresh wallet with a random SECP256k1 keypair.
func New() (*Wallet, error) {
	key, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &Wallet{private: key}, nil
}

// FromRecord restores a wallet from its persisted form.
func FromRecord(r Record) (*Wallet, error) {
	raw, err := hex.DecodeString(r.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}
	key, _ := btcec.PrivKeyFromBytes(raw)
	return &Wallet{private: key, nonce: r.Nonce}, nil
}

// Address returns the hex-encoded uncompressed public key for the wallet.
func (w *Wallet) Address() string {
	return hex.EncodeToString(w.private.PubKey().SerializeUncompressed())
}

// CurrentNonce returns the wallet's nonce counter without mutating it.
func (w *Wallet) CurrentNonce() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.nonce
}

// IncrementNonce advances the nonce counter and returns the new value.
func (w *Wallet) IncrementNonce() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nonce++
	return w.nonce
}

// Sign signs a 32-byte digest (the transaction's recomputed txid hash)
// with the wallet's private key, returning a canonical, low-S-enforced
// hex-encoded signature.
func (w *Wallet) Sign(digest []byte) (string, error) {
	r, s, err := ecdsa.Sign(rand.Reader, w.private.ToECDSA(), digest)
	if err != nil {
		return "", fmt.Errorf("sign: %w", err)
	}
	r, s = canonicalize(r, s)
	sig := make([]byte, 64)
	r.FillBytes(sig[:32])
	s.FillBytes(sig[32:])
	return hex.EncodeToString(sig), nil
}

// Verify checks a hex-encoded signature over digest against the
// hex-encoded address (uncompressed public key). It never panics on
// malformed input; it returns false instead.
func Verify(digest []byte, signatureHex, addressHex string) bool {
	sigRaw, err := hex.DecodeString(signatureHex)
	if err != nil || len(sigRaw) != 64 {
		return false
	}
	pubRaw, err := hex.DecodeString(addressHex)
	if err != nil {
		return false
	}
	pubKey, err := btcec.ParsePubKey(pubRaw)
	if err != nil {
		return false
	}
	r := new(big.Int).SetBytes(sigRaw[:32])
	s := new(big.Int).SetBytes(sigRaw[32:])
	return ecdsa.Verify(pubKey.ToECDSA(), digest, r, s)
}

// canonicalize enforces low-S per BIP-0062 so a signature has a single
// valid encoding and can't be malleated by flipping s.
func canonicalize(r, s *big.Int) (*big.Int, *big.Int) {
	halfOrder := new(big.Int).Rsh(btcec.S256().N, 1)
	if s.Cmp(halfOrder) > 0 {
		s = new(big.Int).Sub(btcec.S256().N, s)
	}
	return r, s
}

// ToRecord serializes the wallet for persistence.
func (w *Wallet) ToRecord() Record {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Record{
		PrivateKey: hex.EncodeToString(w.private.Serialize()),
		Nonce:      w.nonce,
	}
}

// MarshalJSON lets a Wallet be persisted directly as part of a larger
// document without callers reaching for ToRecord explicitly.
func (w *Wallet) MarshalJSON() ([]byte, error) {
	return json.Marshal(w.ToRecord())
}
