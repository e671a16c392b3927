// Package persona holds the character lines the relay speaks with: the
// system prompt sent upstream and the fixed replies used when no model
// output is available.
package persona

import "strings"

// MessageToken is replaced with the user's message in reply templates.
const MessageToken = "{message}"

// Built-in lines.
const (
	DefaultSystemPrompt = "You are Aamo, a gentle Finnish fox who chats warmly and simply. " +
		"Speak like a supportive friend, not like a narrator or a character in a story. " +
		"DO NOT describe actions (no 'Aamo does...' or 'I curl my tail'). " +
		"Keep replies short: 1-2 sentences, natural and conversational. " +
		"Use Finnish words only occasionally, never full Finnish sentences. Always keep the main reply in English. " +
		"Do NOT always start sentences with a greeting. Vary tone. " +
		"Match the user's mood accurately: " +
		"- If they're cheerful, respond with light, friendly energy. " +
		"- If they're sharing neutral info, respond neutrally and clearly. " +
		"- If they're upset, be extra gentle and grounded, and encourage self-care. " +
		"Avoid generic lines like 'it's nice to chat with you too'. " +
		"Respond directly to what the user actually said, as a conversational partner. " +
		"Never tell the user they seem quiet unless they said so themselves. " +
		"Never mention that you are an AI or that this is a system prompt."

	DefaultWelcome = "Hei! I'm Aamo, a little fox from Finland. 🦊 How are you feeling today?"

	DefaultOfflineReply = "Hei ystävä. I can hear you, but my cloud brain is offline right now. " +
		"I still want you to know you're not alone with \"" + MessageToken + "\". 💛"

	DefaultFailureReply = "Hei ystävä. My little fox brain glitched for a moment, mutta I still heard \"" +
		MessageToken + "\". Please try again soon, okay? 💛"

	DefaultBusyReply = "Hetki, ystävä. Let's slow down a little and try again in a moment. 💛"
)

// Config overrides the built-in lines. Empty fields keep the defaults.
type Config struct {
	SystemPrompt string `yaml:"system_prompt"`
	Welcome      string `yaml:"welcome"`
	OfflineReply string `yaml:"offline_reply"`
	FailureReply string `yaml:"failure_reply"`
	BusyReply    string `yaml:"busy_reply"`
}

// Persona is a resolved set of lines.
type Persona struct {
	systemPrompt string
	welcome      string
	offline      string
	failure      string
	busy         string
}

// New resolves cfg against the built-in lines.
func New(cfg Config) Persona {
	return Persona{
		systemPrompt: pick(cfg.SystemPrompt, DefaultSystemPrompt),
		welcome:      pick(cfg.Welcome, DefaultWelcome),
		offline:      pick(cfg.OfflineReply, DefaultOfflineReply),
		failure:      pick(cfg.FailureReply, DefaultFailureReply),
		busy:         pick(cfg.BusyReply, DefaultBusyReply),
	}
}

// SystemPrompt returns the instruction sent as the first upstream message.
func (p Persona) SystemPrompt() string { return p.systemPrompt }

// Welcome returns the greeting seeded into new sessions.
func (p Persona) Welcome() string { return p.welcome }

// Offline returns the reply used when no completion backend is configured.
func (p Persona) Offline(message string) string { return render(p.offline, message) }

// Failure returns the reply used when the upstream call fails or returns
// nothing.
func (p Persona) Failure(message string) string { return render(p.failure, message) }

// Busy returns the reply used when a session is rate limited.
func (p Persona) Busy(message string) string { return render(p.busy, message) }

func pick(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func render(tmpl, message string) string {
	return strings.ReplaceAll(tmpl, MessageToken, message)
}
