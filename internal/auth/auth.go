// Package auth holds the API keys clients scrobble with and checks the
// admin password.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"io/fs"
	"math/big"
	"sort"
	"sync"

	"github.com/spf13/viper"
)

const keyAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// KeyStore maps client names to API keys.
type KeyStore struct {
	mu   sync.RWMutex
	v    *viper.Viper
	path string
	keys map[string]string
}

func NewKeyStore(path string) (*KeyStore, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading api keys: %w", err)
		}
	}
	return &KeyStore{v: v, path: path, keys: v.GetStringMapString("keys")}, nil
}

// Check returns the client owning key.
func (k *KeyStore) Check(key string) (string, bool) {
	if key == "" {
		return "", false
	}
	k.mu.RLock()
	defer k.mu.RUnlock()
	for client, candidate := range k.keys {
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(key)) == 1 {
			return client, true
		}
	}
	return "", false
}

// Update sets client=key pairs. An empty key removes the client.
func (k *KeyStore) Update(pairs map[string]string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	next := make(map[string]string, len(k.keys)+len(pairs))
	for c, key := range k.keys {
		next[c] = key
	}
	for c, key := range pairs {
		if key == "" {
			delete(next, c)
			continue
		}
		next[c] = key
	}

	k.v.Set("keys", next)
	if err := k.v.WriteConfigAs(k.path); err != nil {
		return fmt.Errorf("writing api keys: %w", err)
	}
	k.keys = next
	return nil
}

func (k *KeyStore) Clients() []string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	clients := make([]string, 0, len(k.keys))
	for c := range k.keys {
		clients = append(clients, c)
	}
	sort.Strings(clients)
	return clients
}

// GenerateKey returns a random 64 character key.
func GenerateKey() (string, error) {
	b := make([]byte, 64)
	limit := big.NewInt(int64(len(keyAlphabet)))
	for i := range b {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("generating key: %w", err)
		}
		b[i] = keyAlphabet[n.Int64()]
	}
	return string(b), nil
}

// CheckPassword compares against the configured admin password. An empty
// configured password disables admin access.
func CheckPassword(configured, given string) bool {
	if configured == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(configured), []byte(given)) == 1
}
