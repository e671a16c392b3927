package provider

// MessageRole is who a Message comes from.
type MessageRole string

// Roles understood by chat completion backends.
const (
	MessageRoleSystem    MessageRole = "system"
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// FinishReason is why the backend stopped generating. Backends may report
// values beyond the ones below; they are passed through as is.
type FinishReason string

// Common finish reasons.
const (
	FinishReasonStop      FinishReason = "stop"
	FinishReasonLength    FinishReason = "length"
	FinishReasonFiltering FinishReason = "filtering"
)

// Message is one entry of the conversation sent upstream.
type Message struct {
	Role    MessageRole
	Content string
}

// CompletionRequest is what the relay asks a backend for. A zero
// MaxTokens lets the provider apply its configured limit; nil Temperature
// and TopP leave the backend's defaults. A non-nil zero Temperature is a
// real setting and must reach the backend.
type CompletionRequest struct {
	Messages    []Message
	MaxTokens   int
	Temperature *float64
	TopP        *float64
	Stop        []string
}

// CompletionResponse is a backend's answer.
type CompletionResponse struct {
	Content      string
	FinishReason FinishReason
	Usage        TokenUsage
}

// TokenUsage counts the tokens one completion consumed.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Float64 returns a pointer to v, for optional request fields.
func Float64(v float64) *float64 {
	return &v
}
