// Package provider talks to chat completion backends. A Provider sends one
// request; an Upstream wraps it with key rotation and a health breaker.
package provider

import "context"

// Provider sends completion requests to one backend. Implementations live
// under modules/provider and also implement core.Module.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)

	// ModelName returns the identifier of the model requests are sent to.
	ModelName() string
}

// HealthChecker is implemented by providers that can be probed cheaply.
// The Upstream probes a tripped backend through it to bring it back.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ServiceName is the AppContext service under which a provider module
// publishes its *Upstream.
const ServiceName = "provider.upstream"
