// Package ingest turns whatever a chat client sends into a usable
// (session, message) pair.
//
// Clients are game engines and browser pages that send flat JSON, a
// dictionary wrapper around JSON, bare text or nothing at all. Normalize
// accepts all of them and never fails: missing pieces are filled from
// Options.
package ingest

import (
	"bytes"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Field names shared by query parameters and JSON payloads.
const (
	FieldSessionID = "sessionId"
	FieldMessage   = "message"
)

// Defaults used when Options leaves a value unset.
const (
	DefaultSessionID   = "session1"
	DefaultPlaceholder = "..."
)

// Options controls the fallbacks applied by Normalize.
type Options struct {
	// DefaultSessionID is used when no session identifier is supplied.
	DefaultSessionID string

	// Placeholder replaces a missing or blank message.
	Placeholder string

	// MaxMessageRunes truncates longer messages. Zero disables truncation.
	MaxMessageRunes int
}

func (o Options) withDefaults() Options {
	if strings.TrimSpace(o.DefaultSessionID) == "" {
		o.DefaultSessionID = DefaultSessionID
	}
	if strings.TrimSpace(o.Placeholder) == "" {
		o.Placeholder = DefaultPlaceholder
	}
	return o
}

// Source records where the message text came from.
type Source string

// Source values.
const (
	SourceFields      Source = "fields"
	SourceWrapper     Source = "wrapper"
	SourceJSON        Source = "json"
	SourceText        Source = "text"
	SourcePlaceholder Source = "placeholder"
)

// Input is a normalized chat request. Message is never empty.
type Input struct {
	SessionID string
	Message   string
	Source    Source
	Truncated bool
}

// Normalize extracts the session identifier and message from fields
// (usually the query string) and raw (the request body).
//
// Each non-blank field wins over the body for that field only. The body is
// decoded as JSON when possible: a {"c2dictionary": true, "data": {...}}
// wrapper is read from data, any other object from its top level, and a
// JSON string is unwrapped. A body that is not JSON becomes the message
// verbatim. Whitespace is trimmed and invalid UTF-8 is replaced.
func Normalize(raw []byte, fields url.Values, opts Options) Input {
	opts = opts.withDefaults()

	var in Input
	in.SessionID = fieldValue(fields, FieldSessionID)
	if msg := fieldValue(fields, FieldMessage); msg != "" {
		in.Message = msg
		in.Source = SourceFields
	}

	if in.SessionID == "" || in.Message == "" {
		sessionID, message, source := parseBody(raw)
		if in.SessionID == "" {
			in.SessionID = sessionID
		}
		if in.Message == "" && message != "" {
			in.Message = message
			in.Source = source
		}
	}

	if in.SessionID == "" {
		in.SessionID = opts.DefaultSessionID
	}
	if in.Message == "" {
		in.Message = opts.Placeholder
		in.Source = SourcePlaceholder
	}
	if opts.MaxMessageRunes > 0 && utf8.RuneCountInString(in.Message) > opts.MaxMessageRunes {
		in.Message = truncateRunes(in.Message, opts.MaxMessageRunes)
		in.Truncated = true
	}
	return in
}

func fieldValue(fields url.Values, key string) string {
	if fields == nil {
		return ""
	}
	return clean(fields.Get(key))
}

// parseBody returns the session and message found in raw, either of which
// may be empty.
func parseBody(raw []byte) (sessionID, message string, source Source) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", "", ""
	}

	var decoded any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&decoded); err != nil || dec.More() {
		return "", clean(string(raw)), SourceText
	}

	switch v := decoded.(type) {
	case map[string]any:
		if data, ok := wrapperData(v); ok {
			return scalarText(data[FieldSessionID]), scalarText(data[FieldMessage]), SourceWrapper
		}
		return scalarText(v[FieldSessionID]), scalarText(v[FieldMessage]), SourceJSON
	case string:
		return "", clean(v), SourceJSON
	default:
		// Numbers, arrays and literals carry no fields; keep the payload
		// as the message text.
		return "", clean(string(raw)), SourceText
	}
}

// wrapperData returns the inner object of a dictionary wrapper.
func wrapperData(obj map[string]any) (map[string]any, bool) {
	marker, ok := obj["c2dictionary"].(bool)
	if !ok || !marker {
		return nil, false
	}
	data, ok := obj["data"].(map[string]any)
	return data, ok
}

// scalarText renders strings, numbers and booleans as text. Any other
// value yields "".
func scalarText(v any) string {
	switch x := v.(type) {
	case string:
		return clean(x)
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	default:
		return ""
	}
}

func clean(s string) string {
	return strings.TrimSpace(strings.ToValidUTF8(s, "�"))
}

func truncateRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return strings.TrimSpace(s[:pos])
		}
		i++
	}
	return s
}
