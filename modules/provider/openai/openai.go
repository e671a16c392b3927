// Package openai provides a completion provider module built on the
// go-openai SDK.
package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"

	goopenai "github.com/sashabaranov/go-openai"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/aamo/internal/core"
	"github.com/flemzord/aamo/internal/provider"
	"github.com/flemzord/aamo/internal/security"
)

const moduleID = "provider.openai"

func init() {
	core.RegisterModule(&Provider{})
}

// Provider implements provider.Provider with the go-openai client. It
// keeps one client per configured key and follows the keyring's rotation.
type Provider struct {
	config   Config
	logger   *slog.Logger
	keys     *provider.Keyring
	clients  []*goopenai.Client
	upstream *provider.Upstream
}

// ModuleInfo implements core.Module.
func (p *Provider) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  moduleID,
		New: func() core.Module { return &Provider{} },
	}
}

// Configure implements core.Configurable.
func (p *Provider) Configure(node *yaml.Node) error {
	if err := node.Decode(&p.config); err != nil {
		return err
	}
	p.config.defaults()
	return nil
}

// Provision implements core.Provisioner. Without a key it leaves the
// relay offline instead of failing startup.
func (p *Provider) Provision(ctx *core.AppContext) error {
	p.config.defaults()
	p.logger = ctx.Logger

	keys := p.config.keys()
	if len(keys) == 0 {
		p.logger.Warn("no API key configured, replies will use the offline line", "model", p.config.Model)
		return nil
	}

	if svc, ok := ctx.Service("security.credentials"); ok {
		if creds, ok := svc.(*security.CredentialStore); ok {
			for i, k := range keys {
				creds.Set(fmt.Sprintf("%s.key%d", moduleID, i), k)
			}
		}
	}

	keyring, err := provider.NewKeyring(keys...)
	if err != nil {
		return fmt.Errorf("create keyring: %w", err)
	}
	p.keys = keyring
	p.clients = make([]*goopenai.Client, len(keys))
	for i, k := range keys {
		p.clients[i] = p.newClient(k)
	}

	upstream, err := provider.NewUpstream("openai", p,
		provider.WithKeyring(keyring),
		provider.WithHealth(p.config.Health),
		provider.WithLogger(p.logger),
	)
	if err != nil {
		return fmt.Errorf("create upstream: %w", err)
	}
	p.upstream = upstream

	ctx.RegisterService(provider.ServiceName, upstream)
	return nil
}

func (p *Provider) newClient(key string) *goopenai.Client {
	cfg := goopenai.DefaultConfig(key)
	if p.config.BaseURL != "" {
		cfg.BaseURL = p.config.BaseURL
	}
	cfg.OrgID = p.config.Organization
	cfg.HTTPClient = &http.Client{Timeout: p.config.Timeout}
	return goopenai.NewClientWithConfig(cfg)
}

// Validate implements core.Validator.
func (p *Provider) Validate() error {
	return p.config.validate()
}

// Start implements core.Starter. It runs the upstream's health probes.
func (p *Provider) Start() error {
	if p.upstream != nil {
		p.upstream.Start(context.Background())
	}
	return nil
}

// Stop implements core.Stopper.
func (p *Provider) Stop(_ context.Context) error {
	if p.upstream != nil {
		p.upstream.Stop()
	}
	return nil
}

// client returns the client for the key currently selected by the keyring.
func (p *Provider) client() *goopenai.Client {
	if p.keys == nil || len(p.clients) == 0 {
		return nil
	}
	return p.clients[p.keys.Index()%len(p.clients)]
}

// Complete implements provider.Provider.
func (p *Provider) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	c := p.client()
	if c == nil {
		return provider.CompletionResponse{}, provider.ErrNoProvider
	}

	resp, err := c.CreateChatCompletion(ctx, p.buildRequest(req))
	if err != nil {
		return provider.CompletionResponse{}, mapError(ctx, err)
	}

	out := provider.CompletionResponse{
		Usage: provider.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	if len(resp.Choices) == 0 {
		return out, nil
	}
	out.Content = resp.Choices[0].Message.Content
	out.FinishReason = mapFinishReason(resp.Choices[0].FinishReason)
	return out, nil
}

func (p *Provider) buildRequest(req provider.CompletionRequest) goopenai.ChatCompletionRequest {
	msgs := make([]goopenai.ChatCompletionMessage, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = goopenai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content}
	}

	out := goopenai.ChatCompletionRequest{
		Model:     p.config.Model,
		Messages:  msgs,
		MaxTokens: req.MaxTokens,
		Stop:      req.Stop,
	}
	if out.MaxTokens == 0 {
		out.MaxTokens = p.config.MaxTokens
	}
	if req.Temperature != nil {
		// The SDK omits a zero temperature, which the API reads as 1.
		out.Temperature = float32(*req.Temperature)
		if out.Temperature == 0 {
			out.Temperature = math.SmallestNonzeroFloat32
		}
	}
	if req.TopP != nil {
		out.TopP = float32(*req.TopP)
	}
	return out
}

// ModelName implements provider.Provider.
func (p *Provider) ModelName() string {
	return p.config.Model
}

// HealthCheck implements provider.HealthChecker by listing models.
func (p *Provider) HealthCheck(ctx context.Context) error {
	c := p.client()
	if c == nil {
		return provider.ErrNoProvider
	}
	if _, err := c.ListModels(ctx); err != nil {
		return fmt.Errorf("%w: health check: %w", provider.ErrProviderDown, err)
	}
	return nil
}

// mapError converts SDK errors into provider sentinel errors.
func mapError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	status := 0
	var apiErr *goopenai.APIError
	var reqErr *goopenai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
		if code, ok := apiErr.Code.(string); ok && code == "context_length_exceeded" {
			return fmt.Errorf("%w: %w", provider.ErrContextLength, err)
		}
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	default:
		return fmt.Errorf("%w: %w", provider.ErrProviderDown, err)
	}

	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", provider.ErrRateLimit, err)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: %w", provider.ErrAuthentication, err)
	case status >= 500 || status == 0:
		return fmt.Errorf("%w: %w", provider.ErrProviderDown, err)
	default:
		return fmt.Errorf("openai: HTTP %d: %w", status, err)
	}
}

func mapFinishReason(reason goopenai.FinishReason) provider.FinishReason {
	switch reason {
	case goopenai.FinishReasonStop:
		return provider.FinishReasonStop
	case goopenai.FinishReasonLength:
		return provider.FinishReasonLength
	case goopenai.FinishReasonContentFilter:
		return provider.FinishReasonFiltering
	default:
		return provider.FinishReason(reason)
	}
}

// Compile-time interface assertions.
var (
	_ core.Module            = (*Provider)(nil)
	_ core.Configurable      = (*Provider)(nil)
	_ core.Provisioner       = (*Provider)(nil)
	_ core.Validator         = (*Provider)(nil)
	_ core.Starter           = (*Provider)(nil)
	_ core.Stopper           = (*Provider)(nil)
	_ provider.Provider      = (*Provider)(nil)
	_ provider.HealthChecker = (*Provider)(nil)
)
