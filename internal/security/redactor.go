package security

import (
	"cmp"
	"regexp"
	"slices"
	"strings"
	"sync"
)

// Mask replaces every secret the Redactor finds.
const Mask = "[REDACTED]"

// keyFormats matches the API key shapes an OpenAI-compatible backend is
// configured with: Groq gsk_ keys, OpenAI sk- and sk-proj- keys, and bearer
// header values.
var keyFormats = regexp.MustCompile(
	`gsk_[a-zA-Z0-9]{20,}` +
		`|sk-(?:proj-)?[a-zA-Z0-9_\-]{20,}` +
		`|(?i:bearer) [a-zA-Z0-9._\-]{16,}`,
)

// Redactor masks secrets in strings. Well-known key formats are always
// masked; literal values are masked once registered, which covers keys
// that match no known format. Safe for concurrent use.
type Redactor struct {
	mu       sync.RWMutex
	literals []string
	replacer *strings.Replacer
}

// NewRedactor returns a Redactor with no literals.
func NewRedactor() *Redactor {
	return &Redactor{}
}

// AddLiteral masks secret from now on. Empty strings are ignored.
func (r *Redactor) AddLiteral(secret string) {
	if secret == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setLiterals(append(slices.Clone(r.literals), secret))
}

// SyncCredentials replaces the literals with the contents of store.
func (r *Redactor) SyncCredentials(store *CredentialStore) {
	values := store.Values()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setLiterals(values)
}

// setLiterals must be called with mu held. Longer literals are tried first
// so a secret that contains another is masked whole.
func (r *Redactor) setLiterals(literals []string) {
	slices.SortFunc(literals, func(a, b string) int {
		return cmp.Or(cmp.Compare(len(b), len(a)), strings.Compare(a, b))
	})
	r.literals = slices.Compact(literals)
	if len(r.literals) == 0 {
		r.replacer = nil
		return
	}
	pairs := make([]string, 0, 2*len(r.literals))
	for _, lit := range r.literals {
		pairs = append(pairs, lit, Mask)
	}
	r.replacer = strings.NewReplacer(pairs...)
}

// Redact returns s with every known secret replaced by Mask.
func (r *Redactor) Redact(s string) string {
	if s == "" {
		return s
	}
	r.mu.RLock()
	replacer := r.replacer
	r.mu.RUnlock()

	if replacer != nil {
		s = replacer.Replace(s)
	}
	return keyFormats.ReplaceAllString(s, Mask)
}
