package openai

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/aamo/internal/core"
	"github.com/flemzord/aamo/internal/provider"
	"github.com/flemzord/aamo/internal/security"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustNode(t *testing.T, text string) *yaml.Node {
	t.Helper()
	var node yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte(text), &node))
	return node.Content[0]
}

// provisioned configures and provisions a provider against baseURL.
func provisioned(t *testing.T, baseURL string, extra string) (*Provider, *core.AppContext) {
	t.Helper()
	appCtx := core.NewAppContext(discardLogger(), t.TempDir())
	appCtx.RegisterService("security.credentials", security.NewCredentialStore())

	p := &Provider{}
	require.NoError(t, p.Configure(mustNode(t, "base_url: "+baseURL+"\napi_key: sk-test\nmodel: test-model\n"+extra)))
	require.NoError(t, p.Provision(appCtx.ForModule(moduleID)))
	return p, appCtx
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func completion(content string) map[string]any {
	return map[string]any{
		"id":     "chatcmpl-1",
		"object": "chat.completion",
		"model":  "test-model",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
		"usage": map[string]any{"prompt_tokens": 12, "completion_tokens": 4, "total_tokens": 16},
	}
}

func apiError(code string) map[string]any {
	return map[string]any{"error": map[string]any{"message": "upstream said no", "type": "error", "code": code}}
}

func hi() provider.CompletionRequest {
	return provider.CompletionRequest{
		Messages: []provider.Message{
			{Role: provider.MessageRoleSystem, Content: "be brief"},
			{Role: provider.MessageRoleUser, Content: "Hi"},
		},
		Temperature: provider.Float64(0.7),
	}
}

func TestConfigure(t *testing.T) {
	t.Parallel()

	p := &Provider{}
	require.NoError(t, p.Configure(mustNode(t, `
base_url: "https://proxy.example.com/v1/"
api_keys: ["sk-a", " ", "sk-b"]
organization: org-1
max_tokens: 200
timeout: 10s
`)))

	assert.Equal(t, "https://proxy.example.com/v1", p.config.BaseURL)
	assert.Equal(t, DefaultModel, p.config.Model)
	assert.Equal(t, 10*time.Second, p.config.Timeout)
	assert.Equal(t, []string{"sk-a", "sk-b"}, p.config.keys())
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "empty", cfg: Config{}},
		{name: "https base", cfg: Config{BaseURL: "https://api.example.com/v1"}},
		{name: "bad scheme", cfg: Config{BaseURL: "ftp://example.com"}, wantErr: true},
		{name: "negative tokens", cfg: Config{MaxTokens: -1}, wantErr: true},
		{name: "negative timeout", cfg: Config{Timeout: -time.Second}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := &Provider{config: tt.cfg}
			if tt.wantErr {
				assert.Error(t, p.Validate())
			} else {
				assert.NoError(t, p.Validate())
			}
		})
	}
}

func TestProvision_NoKey(t *testing.T) {
	t.Parallel()

	appCtx := core.NewAppContext(discardLogger(), t.TempDir())
	p := &Provider{}
	require.NoError(t, p.Configure(mustNode(t, `model: gpt-4o`)))
	require.NoError(t, p.Provision(appCtx.ForModule(moduleID)))

	_, ok := appCtx.Service(provider.ServiceName)
	assert.False(t, ok)
	assert.NoError(t, p.Start())
	assert.NoError(t, p.Stop(context.Background()))

	_, err := p.Complete(context.Background(), hi())
	assert.ErrorIs(t, err, provider.ErrNoProvider)
}

func TestProvision_RegistersUpstream(t *testing.T) {
	t.Parallel()

	p, appCtx := provisioned(t, "https://api.example.com/v1", "")

	svc, ok := appCtx.Service(provider.ServiceName)
	require.True(t, ok)
	status := svc.(*provider.Upstream).Status()
	assert.Equal(t, "openai", status.Name)
	assert.Equal(t, "test-model", status.Model)
	assert.Equal(t, 1, status.Keys)

	creds, _ := appCtx.Service("security.credentials")
	assert.Equal(t, []string{"sk-test"}, creds.(*security.CredentialStore).Values())
	assert.Equal(t, "test-model", p.ModelName())
}

func TestComplete(t *testing.T) {
	t.Parallel()

	var got goopenai.ChatCompletionRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		auth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, http.StatusOK, completion("Hello there"))
	}))
	t.Cleanup(srv.Close)

	p, _ := provisioned(t, srv.URL, "max_tokens: 99")
	resp, err := p.Complete(context.Background(), hi())
	require.NoError(t, err)

	assert.Equal(t, "Hello there", resp.Content)
	assert.Equal(t, provider.FinishReasonStop, resp.FinishReason)
	assert.Equal(t, 16, resp.Usage.TotalTokens)

	assert.Equal(t, "Bearer sk-test", auth)
	assert.Equal(t, "test-model", got.Model)
	assert.Equal(t, 99, got.MaxTokens)
	assert.InDelta(t, 0.7, got.Temperature, 0.001)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "Hi", got.Messages[1].Content)
}

func TestComplete_NoChoices(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"choices": []any{}})
	}))
	t.Cleanup(srv.Close)

	p, _ := provisioned(t, srv.URL, "")
	resp, err := p.Complete(context.Background(), hi())
	require.NoError(t, err)
	assert.Empty(t, resp.Content)
}

func TestComplete_ErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   any
		want   error
	}{
		{name: "rate limit", status: http.StatusTooManyRequests, body: apiError("rate_limit_exceeded"), want: provider.ErrRateLimit},
		{name: "unauthorized", status: http.StatusUnauthorized, body: apiError("invalid_api_key"), want: provider.ErrAuthentication},
		{name: "server error", status: http.StatusBadGateway, body: apiError("server_error"), want: provider.ErrProviderDown},
		{name: "context length", status: http.StatusBadRequest, body: apiError("context_length_exceeded"), want: provider.ErrContextLength},
		{name: "unparseable body", status: http.StatusServiceUnavailable, body: "overloaded", want: provider.ErrProviderDown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, tt.status, tt.body)
			}))
			t.Cleanup(srv.Close)

			p, _ := provisioned(t, srv.URL, "")
			_, err := p.Complete(context.Background(), hi())
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestComplete_BadRequestNotTransient(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusBadRequest, apiError("invalid_request_error"))
	}))
	t.Cleanup(srv.Close)

	p, _ := provisioned(t, srv.URL, "")
	_, err := p.Complete(context.Background(), hi())
	require.Error(t, err)
	assert.False(t, provider.IsTransient(err))
}

func TestComplete_ContextCancel(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)

	p, _ := provisioned(t, srv.URL, "")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.Complete(ctx, hi())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, provider.ErrProviderDown)
}

func TestBuildRequest_ZeroTemperatureKept(t *testing.T) {
	t.Parallel()

	p := &Provider{config: Config{Model: "m"}}
	req := p.buildRequest(provider.CompletionRequest{Temperature: provider.Float64(0)})
	assert.Greater(t, req.Temperature, float32(0))

	req = p.buildRequest(provider.CompletionRequest{})
	assert.Zero(t, req.Temperature)
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"object": "list", "data": []any{}})
	}))
	t.Cleanup(srv.Close)

	p, _ := provisioned(t, srv.URL, "")
	assert.NoError(t, p.HealthCheck(context.Background()))
}

func TestHealthCheck_Failure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusInternalServerError, apiError("server_error"))
	}))
	t.Cleanup(srv.Close)

	p, _ := provisioned(t, srv.URL, "")
	assert.ErrorIs(t, p.HealthCheck(context.Background()), provider.ErrProviderDown)
}

func TestMapFinishReason(t *testing.T) {
	t.Parallel()

	assert.Equal(t, provider.FinishReasonStop, mapFinishReason(goopenai.FinishReasonStop))
	assert.Equal(t, provider.FinishReasonLength, mapFinishReason(goopenai.FinishReasonLength))
	assert.Equal(t, provider.FinishReasonFiltering, mapFinishReason(goopenai.FinishReasonContentFilter))
	assert.Equal(t, provider.FinishReason("tool_calls"), mapFinishReason(goopenai.FinishReasonToolCalls))
}
