package signing

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"
)

// KeyStore keeps secrets in the OS keychain with an optional JSON file fallback
// for hosts without a keyring service.
type KeyStore struct {
	service      string
	fallbackPath string
	mu           sync.Mutex
}

func NewKeyStore(service, fallbackPath string) *KeyStore {
	if strings.TrimSpace(service) == "" {
		service = "pf-bet-engine"
	}
	return &KeyStore{service: service, fallbackPath: fallbackPath}
}

// Get returns the secret stored under account, or keyring.ErrNotFound.
func (k *KeyStore) Get(account string) (string, error) {
	account = strings.TrimSpace(account)
	if account == "" {
		return "", fmt.Errorf("signing: account is required")
	}

	val, err := keyring.Get(k.service, account)
	if err == nil {
		return val, nil
	}
	if !isKeyringUnavailable(err) && !errors.Is(err, keyring.ErrNotFound) {
		return "", fmt.Errorf("signing: keyring get: %w", err)
	}

	fallback, ferr := k.getFallback(account)
	if ferr == nil {
		return fallback, nil
	}
	if errors.Is(err, keyring.ErrNotFound) {
		return "", keyring.ErrNotFound
	}
	return "", ferr
}

// Set stores a secret, falling back to the file when no keyring is available.
func (k *KeyStore) Set(account, value string) error {
	account = strings.TrimSpace(account)
	if account == "" {
		return fmt.Errorf("signing: account is required")
	}

	err := keyring.Set(k.service, account, value)
	if err == nil {
		return nil
	}
	if !isKeyringUnavailable(err) {
		return fmt.Errorf("signing: keyring set: %w", err)
	}
	return k.setFallback(account, value)
}

// Delete removes the secret from both the keyring and the fallback file.
func (k *KeyStore) Delete(account string) error {
	err := keyring.Delete(k.service, account)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) && !isKeyringUnavailable(err) {
		return fmt.Errorf("signing: keyring delete: %w", err)
	}
	if strings.TrimSpace(k.fallbackPath) == "" {
		return nil
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	data, err := k.readFallbackUnlocked()
	if err != nil {
		return err
	}
	delete(data, account)
	return k.writeFallbackUnlocked(data)
}

func isKeyringUnavailable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "secret service") ||
		strings.Contains(msg, "dbus") ||
		strings.Contains(msg, "no keychain") ||
		strings.Contains(msg, "keyring backend not available")
}

func (k *KeyStore) setFallback(account, value string) error {
	if strings.TrimSpace(k.fallbackPath) == "" {
		return fmt.Errorf("signing: keyring unavailable and no fallback path configured")
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	data, err := k.readFallbackUnlocked()
	if err != nil {
		return err
	}
	data[account] = value
	return k.writeFallbackUnlocked(data)
}

func (k *KeyStore) getFallback(account string) (string, error) {
	if strings.TrimSpace(k.fallbackPath) == "" {
		return "", fmt.Errorf("signing: fallback path not configured")
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	data, err := k.readFallbackUnlocked()
	if err != nil {
		return "", err
	}
	val, ok := data[account]
	if !ok {
		return "", keyring.ErrNotFound
	}
	return val, nil
}

func (k *KeyStore) readFallbackUnlocked() (map[string]string, error) {
	out := map[string]string{}
	raw, err := os.ReadFile(k.fallbackPath)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, fmt.Errorf("signing: read fallback secrets: %w", err)
	}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("signing: decode fallback secrets: %w", err)
	}
	return out, nil
}

func (k *KeyStore) writeFallbackUnlocked(data map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(k.fallbackPath), 0o700); err != nil {
		return fmt.Errorf("signing: mkdir fallback dir: %w", err)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("signing: encode fallback secrets: %w", err)
	}
	if err := os.WriteFile(k.fallbackPath, raw, 0o600); err != nil {
		return fmt.Errorf("signing: write fallback secrets: %w", err)
	}
	return nil
}
