// Package openaicompat provides an OpenAI-compatible completion provider
// module. It works with any API that implements the OpenAI chat completions
// interface (Groq, Mistral, DeepSeek, Together, vLLM, LiteLLM, etc.) via a
// configurable base_url. Groq is the default.
package openaicompat

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/aamo/internal/core"
	"github.com/flemzord/aamo/internal/provider"
	"github.com/flemzord/aamo/internal/security"
)

const moduleID = "provider.openai_compatible"

func init() {
	core.RegisterModule(&Provider{})
}

// Provider is an OpenAI-compatible completion provider.
type Provider struct {
	config   Config
	client   *http.Client
	logger   *slog.Logger
	keys     *provider.Keyring
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
	p.client = &http.Client{Timeout: p.config.Timeout}

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

	upstream, err := provider.NewUpstream("openai_compatible", p,
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

// Complete implements provider.Provider.
func (p *Provider) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	var out chatResponse
	body := newChatRequest(p.config.Model, p.config.MaxTokens, req)
	if err := p.call(ctx, http.MethodPost, "/chat/completions", body, &out); err != nil {
		return provider.CompletionResponse{}, err
	}
	return out.completion(), nil
}

// ModelName implements provider.Provider.
func (p *Provider) ModelName() string {
	return p.config.Model
}

// HealthCheck implements provider.HealthChecker by listing models.
func (p *Provider) HealthCheck(ctx context.Context) error {
	if err := p.call(ctx, http.MethodGet, "/models", nil, nil); err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	return nil
}

// apiKey returns the key in use, following rotation by the upstream.
func (p *Provider) apiKey() string {
	if p.keys != nil {
		return p.keys.Current()
	}
	return p.config.APIKey
}

func (p *Provider) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+p.apiKey())
	for k, v := range p.config.Headers {
		req.Header.Set(k, v)
	}
}

// errMissingField returns a validation error for a missing required field.
func errMissingField(field string) error {
	return fmt.Errorf("%s: %s is required", moduleID, field)
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
