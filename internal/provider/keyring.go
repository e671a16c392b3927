package provider

import (
	"errors"
	"sync"
)

// ErrNoKeys is returned by NewKeyring without any keys.
var ErrNoKeys = errors.New("keyring requires at least one key")

// Keyring holds the API keys of one backend and the one in use.
type Keyring struct {
	mu   sync.Mutex
	keys []string
	idx  int
}

// NewKeyring returns a keyring starting at the first key.
func NewKeyring(keys ...string) (*Keyring, error) {
	if len(keys) == 0 {
		return nil, ErrNoKeys
	}
	return &Keyring{keys: append([]string(nil), keys...)}, nil
}

// Current returns the key in use.
func (k *Keyring) Current() string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.keys[k.idx]
}

// Index returns the position of the key in use.
func (k *Keyring) Index() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.idx
}

// Len returns the number of keys.
func (k *Keyring) Len() int {
	return len(k.keys)
}

// Rotate moves to the next key, wrapping around. It reports false when
// there is only one key.
func (k *Keyring) Rotate() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	if len(k.keys) < 2 {
		return false
	}
	k.idx = (k.idx + 1) % len(k.keys)
	return true
}
