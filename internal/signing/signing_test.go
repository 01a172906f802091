package signing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestLoadOrCreatePersistsKey(t *testing.T) {
	keyring.MockInit()
	ks := NewKeyStore("pf-bet-engine-test", "")

	first, err := LoadOrCreate(ks, "result-signing")
	require.NoError(t, err)
	second, err := LoadOrCreate(ks, "result-signing")
	require.NoError(t, err)

	r := Receipt{BetID: 7, UserID: "alice", Game: "dice", Wager: "100", Multiplier: 1.98, Payout: "198", Nonce: 3}
	sig1, err := first.Sign(r)
	require.NoError(t, err)
	sig2, err := second.Sign(r)
	require.NoError(t, err)
	assert.Equal(t, sig1, sig2)
	assert.Len(t, sig1, 64)
}

func TestSignAndVerify(t *testing.T) {
	s := NewSigner([]byte("0123456789abcdef0123456789abcdef"))
	r := Receipt{BetID: 1, UserID: "bob", Game: "limbo", Wager: "5", Multiplier: 2, Payout: "10", SeedID: "s", ServerSeedHash: "h", ClientSeed: "c", Nonce: 9}

	sig, err := s.Sign(r)
	require.NoError(t, err)
	assert.True(t, s.Verify(r, sig))

	tampered := r
	tampered.Payout = "1000"
	assert.False(t, s.Verify(tampered, sig))

	credited := r
	credited.Bonus = "5"
	assert.False(t, s.Verify(credited, sig))
	assert.False(t, s.Verify(r, "not-hex"))

	other := NewSigner([]byte("another key entirely, 32 bytes!!"))
	assert.False(t, other.Verify(r, sig))
}

func TestKeyStoreFallbackFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.json")
	ks := NewKeyStore("pf-bet-engine-test", path)

	require.NoError(t, ks.setFallback("acct", "value"))
	got, err := ks.getFallback("acct")
	require.NoError(t, err)
	assert.Equal(t, "value", got)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	_, err = ks.getFallback("missing")
	assert.ErrorIs(t, err, keyring.ErrNotFound)
}

func TestKeyStoreDelete(t *testing.T) {
	keyring.MockInit()
	ks := NewKeyStore("pf-bet-engine-test", filepath.Join(t.TempDir(), "secrets.json"))

	require.NoError(t, ks.Set("acct", "v"))
	require.NoError(t, ks.Delete("acct"))
	_, err := ks.Get("acct")
	assert.ErrorIs(t, err, keyring.ErrNotFound)
}
