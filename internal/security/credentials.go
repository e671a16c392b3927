// Package security provides credential tracking, log redaction and
// per-session rate limiting.
package security

import (
	"maps"
	"slices"
	"sync"
)

// CredentialStore records the secrets modules resolve while provisioning,
// keyed by a name such as "provider.openai.key0". The Redactor reads it to
// know which literal values must never reach a log line.
type CredentialStore struct {
	mu      sync.RWMutex
	secrets map[string]string
}

// NewCredentialStore returns an empty store.
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{secrets: make(map[string]string)}
}

// Set records value under name. An empty value forgets name.
func (s *CredentialStore) Set(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if value == "" {
		delete(s.secrets, name)
		return
	}
	s.secrets[name] = value
}

// Values returns the recorded secrets ordered by name.
func (s *CredentialStore) Values() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.secrets))
	for _, name := range slices.Sorted(maps.Keys(s.secrets)) {
		out = append(out, s.secrets[name])
	}
	return out
}

// Len returns the number of recorded secrets.
func (s *CredentialStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.secrets)
}
