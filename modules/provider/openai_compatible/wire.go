package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/flemzord/aamo/internal/provider"
)

// Chat completions wire format shared by Groq, OpenAI and the other
// compatible servers.

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	TopP        *float64      `json:"top_p,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// errorEnvelope is the body of a failed call.
type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// newChatRequest falls back to maxTokens when req leaves it unset.
func newChatRequest(model string, maxTokens int, req provider.CompletionRequest) chatRequest {
	out := chatRequest{
		Model:       model,
		Messages:    make([]chatMessage, 0, len(req.Messages)),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stop:        req.Stop,
	}
	if out.MaxTokens == 0 {
		out.MaxTokens = maxTokens
	}
	for _, m := range req.Messages {
		out.Messages = append(out.Messages, chatMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}

// completion keeps the first choice only.
func (r chatResponse) completion() provider.CompletionResponse {
	out := provider.CompletionResponse{
		Usage: provider.TokenUsage{
			PromptTokens:     r.Usage.PromptTokens,
			CompletionTokens: r.Usage.CompletionTokens,
			TotalTokens:      r.Usage.TotalTokens,
		},
	}
	if len(r.Choices) > 0 {
		out.Content = r.Choices[0].Message.Content
		out.FinishReason = mapFinishReason(r.Choices[0].FinishReason)
	}
	return out
}

func mapFinishReason(reason string) provider.FinishReason {
	switch reason {
	case "stop":
		return provider.FinishReasonStop
	case "length":
		return provider.FinishReasonLength
	case "content_filter":
		return provider.FinishReasonFiltering
	}
	return provider.FinishReason(reason)
}

// call sends body as JSON to path and decodes a 2xx reply into out. A nil
// body sends no payload; a nil out discards the reply.
func (p *Provider) call(ctx context.Context, method, path string, body, out any) error {
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		payload = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.config.BaseURL+path, payload)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	p.setHeaders(req)

	resp, err := p.client.Do(req)
	if err != nil {
		// A cancelled caller says nothing about the backend.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %w", provider.ErrProviderDown, err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %w", provider.ErrProviderDown, err)
	}
	return nil
}

// maxErrorBody caps how much of a failed reply is read.
const maxErrorBody = 4 << 10

// statusError maps a failed reply to the matching provider sentinel. The
// server's own message is kept when the body carries one.
func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	detail := strings.TrimSpace(string(raw))
	var env errorEnvelope
	if json.Unmarshal(raw, &env) == nil && env.Error.Message != "" {
		detail = env.Error.Message
	}

	var kind error
	switch code := resp.StatusCode; {
	case code == http.StatusTooManyRequests:
		kind = provider.ErrRateLimit
		if after := resp.Header.Get("Retry-After"); after != "" {
			detail += " (retry after " + after + ")"
		}
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		kind = provider.ErrAuthentication
	case code >= 500:
		kind = provider.ErrProviderDown
	case code == http.StatusBadRequest && (env.Error.Code == "context_length_exceeded" || mentionsContextLength(detail)):
		kind = provider.ErrContextLength
	}

	if kind == nil {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, detail)
	}
	return fmt.Errorf("%w: HTTP %d: %s", kind, resp.StatusCode, detail)
}

func mentionsContextLength(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "context length") || strings.Contains(msg, "maximum context") ||
		strings.Contains(msg, "context_length_exceeded")
}
