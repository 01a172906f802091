package signing

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const keyBytes = 32

// Receipt is the canonical form of a settled bet. Field order is fixed, so the
// JSON encoding is stable and the signature can be recomputed by anyone
// holding the key.
type Receipt struct {
	BetID          int64   `json:"betId"`
	UserID         string  `json:"userId"`
	Game           string  `json:"game"`
	Wager          string  `json:"wager"`
	Multiplier     float64 `json:"multiplier"`
	Payout         string  `json:"payout"`
	SeedID         string  `json:"seedId"`
	ServerSeedHash string  `json:"serverSeedHash"`
	ClientSeed     string  `json:"clientSeed"`
	Nonce          uint64  `json:"nonce"`
	Bonus          string  `json:"bonus"`
	NewBalance     string  `json:"newBalance"`
}

// Signer produces hex HMAC-SHA256 signatures over receipts.
type Signer struct {
	key []byte
}

// NewSigner uses key directly. Intended for tests and offline verification.
func NewSigner(key []byte) *Signer {
	return &Signer{key: append([]byte(nil), key...)}
}

// LoadOrCreate reads the signing key from the store, generating and saving a
// new one on first start.
func LoadOrCreate(ks *KeyStore, account string) (*Signer, error) {
	val, err := ks.Get(account)
	switch {
	case err == nil:
		key, derr := hex.DecodeString(val)
		if derr != nil || len(key) != keyBytes {
			return nil, fmt.Errorf("signing: stored key for %q is malformed", account)
		}
		return NewSigner(key), nil
	case errors.Is(err, keyring.ErrNotFound):
	default:
		return nil, err
	}

	key := make([]byte, keyBytes)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("signing: generate key: %w", err)
	}
	if err := ks.Set(account, hex.EncodeToString(key)); err != nil {
		return nil, err
	}
	return NewSigner(key), nil
}

// Sign returns the hex signature of r.
func (s *Signer) Sign(r Receipt) (string, error) {
	payload, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("signing: encode receipt: %w", err)
	}
	mac := hmac.New(sha256.New, s.key)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify reports whether signature matches r.
func (s *Signer) Verify(r Receipt, signature string) bool {
	want, err := s.Sign(r)
	if err != nil {
		return false
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	wantRaw, _ := hex.DecodeString(want)
	return hmac.Equal(got, wantRaw)
}
