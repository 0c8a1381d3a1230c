package wallet

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignThenVerify(t *testing.T) {
	w, err := New()
	require.NoError(t, err)

	digest := sha256.Sum256([]byte("hello blockchain"))
	sig, err := w.Sign(digest[:])
	require.NoError(t, err)

	assert.True(t, Verify(digest[:], sig, w.Address()))
}

func TestVerifyRejectsFlippedDigest(t *testing.T) {
	w, err := New()
	require.NoError(t, err)

	digest := sha256.Sum256([]byte("original"))
	sig, err := w.Sign(digest[:])
	require.NoError(t, err)

	other := sha256.Sum256([]byte("tampered"))
	assert.False(t, Verify(other[:], sig, w.Address()))
}

func TestVerifyRejectsWrongAddress(t *testing.T) {
	w1, err := New()
	require.NoError(t, err)
	w2, err := New()
	require.NoError(t, err)

	digest := sha256.Sum256([]byte("payload"))
	sig, err := w1.Sign(digest[:])
	require.NoError(t, err)

	assert.False(t, Verify(digest[:], sig, w2.Address()))
}

func TestVerifyMalformedInputsDoNotPanic(t *testing.T) {
	assert.False(t, Verify([]byte("digest"), "not-hex!!", "also-not-hex"))
	assert.False(t, Verify([]byte("digest"), "", ""))
}

func TestNonceRoundTrip(t *testing.T) {
	w, err := New()
	require.NoError(t, err)

	assert.Equal(t, uint64(0), w.CurrentNonce())
	assert.Equal(t, uint64(1), w.IncrementNonce())

	rec := w.ToRecord()
	assert.Equal(t, uint64(1), rec.Nonce)

	restored, err := FromRecord(rec)
	require.NoError(t, err)
	assert.Equal(t, w.Address(), restored.Address())
	assert.Equal(t, uint64(1), restored.CurrentNonce())
}
