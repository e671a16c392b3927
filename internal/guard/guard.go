// Package guard neutralizes replies in which the model tells the user they
// are being quiet when the user never said so.
//
// The model tends to pick this up from its own earlier turns and repeat it,
// so the Sanitizer filters stored history before it is sent upstream and
// rewrites fresh replies before they reach the user.
package guard

import (
	"strings"

	"github.com/flemzord/aamo/internal/session"
)

// DefaultSafeReply replaces a reply that accuses the user of being quiet.
const DefaultSafeReply = "I'm really glad you're here with me. What's on your mind right now? 💛"

// DefaultQuietPhrases are phrases that show the user brought up quietness
// themselves.
var DefaultQuietPhrases = []string{
	"quiet",
	"silent",
	"silence",
	"shy",
	"don't talk much",
	"not talking",
	"not much to say",
	"nothing to say",
	"haven't said much",
}

// DefaultAccusationPhrases are phrases by which a reply claims the user is
// quiet.
var DefaultAccusationPhrases = []string{
	"you seem quiet",
	"you seem a bit quiet",
	"you seem a little quiet",
	"you seem really quiet",
	"you seem silent",
	"you're quiet",
	"you are quiet",
	"you're so quiet",
	"you are so quiet",
	"you're being quiet",
	"you've been quiet",
	"you have been quiet",
	"you're a bit quiet",
	"you're pretty quiet",
	"you're not saying much",
	"you don't talk much",
	"you haven't said much",
	"you've been silent",
	"you're the quiet one",
	"you are the quiet one",
	"you're the quiet type",
}

// Config customizes a Sanitizer. Empty fields select the defaults.
type Config struct {
	QuietPhrases      []string `yaml:"quiet_phrases"`
	AccusationPhrases []string `yaml:"accusation_phrases"`
	SafeReply         string   `yaml:"safe_reply"`
}

// Sanitizer applies the quietness rule. It is immutable and safe for
// concurrent use.
type Sanitizer struct {
	quiet      []string
	accusation []string
	safeReply  string
}

// New builds a Sanitizer from cfg.
func New(cfg Config) *Sanitizer {
	s := &Sanitizer{
		quiet:      normalizePhrases(cfg.QuietPhrases),
		accusation: normalizePhrases(cfg.AccusationPhrases),
		safeReply:  strings.TrimSpace(cfg.SafeReply),
	}
	if len(s.quiet) == 0 {
		s.quiet = normalizePhrases(DefaultQuietPhrases)
	}
	if len(s.accusation) == 0 {
		s.accusation = normalizePhrases(DefaultAccusationPhrases)
	}
	if s.safeReply == "" {
		s.safeReply = DefaultSafeReply
	}
	return s
}

// SafeReply returns the fallback used by GuardReply.
func (s *Sanitizer) SafeReply() string {
	return s.safeReply
}

// UserMentionedQuiet reports whether the user's own text talks about
// being quiet.
func (s *Sanitizer) UserMentionedQuiet(text string) bool {
	return containsAny(fold(text), s.quiet)
}

// ContainsQuietAccusation reports whether text claims the user is quiet.
func (s *Sanitizer) ContainsQuietAccusation(text string) bool {
	return containsAny(fold(text), s.accusation)
}

// SanitizeHistory returns a copy of history without the assistant turns
// that contain an accusation. User turns are always kept.
func (s *Sanitizer) SanitizeHistory(history []session.Turn) []session.Turn {
	out := make([]session.Turn, 0, len(history))
	for _, t := range history {
		if t.Role == session.RoleAssistant && s.ContainsQuietAccusation(t.Text) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// GuardReply returns the safe reply when reply accuses the user of being
// quiet and userText did not bring it up. Otherwise reply is returned
// unchanged. The boolean reports whether the reply was replaced.
func (s *Sanitizer) GuardReply(userText, reply string) (string, bool) {
	if s.ContainsQuietAccusation(reply) && !s.UserMentionedQuiet(userText) {
		return s.safeReply, true
	}
	return reply, false
}

// apostrophes maps typographic apostrophes to ASCII so "you’re" matches
// "you're".
var apostrophes = strings.NewReplacer("’", "'", "‘", "'", "ʼ", "'")

func fold(s string) string {
	return strings.ToLower(apostrophes.Replace(s))
}

func normalizePhrases(in []string) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		p = strings.TrimSpace(fold(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}
