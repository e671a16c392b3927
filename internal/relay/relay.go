// Package relay runs one chat exchange: it reads a session's history,
// asks the completion backend for a reply, guards the reply and records
// the exchange.
//
// Every exchange produces a reply. Failures are reported through the
// Result's Outcome and Err, never as a missing reply.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/flemzord/aamo/internal/guard"
	"github.com/flemzord/aamo/internal/ingest"
	"github.com/flemzord/aamo/internal/persona"
	"github.com/flemzord/aamo/internal/provider"
	"github.com/flemzord/aamo/internal/session"
)

const tracerName = "github.com/flemzord/aamo/internal/relay"

// Defaults for the completion parameters.
const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 160
)

// Completer produces a completion. *provider.Upstream satisfies it.
type Completer interface {
	Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error)
}

// Limiter decides whether a session may send another message.
// *security.RateLimiter satisfies it.
type Limiter interface {
	Allow(key string) error
}

// Recorder observes finished exchanges.
type Recorder interface {
	RecordExchange(outcome Outcome, latency time.Duration)
	RecordTokens(usage provider.TokenUsage)
}

// Config wires a Relay. Store is required; every other field has a usable
// zero value. A nil Completer puts the relay in offline mode.
type Config struct {
	Store     session.Store
	Completer Completer
	Sanitizer *guard.Sanitizer
	Persona   persona.Persona
	Limiter   Limiter
	Recorder  Recorder
	Logger    *slog.Logger
	Tracer    trace.Tracer

	// Ingest controls how raw requests become exchange inputs.
	Ingest ingest.Options

	Temperature float64
	MaxTokens   int

	// Timeout bounds each upstream call. Zero means no timeout beyond the
	// caller's context.
	Timeout time.Duration
}

// Result is the outcome of one exchange.
type Result struct {
	SessionID string
	Reply     string
	Outcome   Outcome
	Usage     provider.TokenUsage

	// Err is the underlying failure for degraded outcomes. It is for logs
	// and metrics only; Reply is always set.
	Err error
}

// Relay runs exchanges. It is safe for concurrent use: exchanges on the
// same session are serialized, other sessions proceed in parallel.
type Relay struct {
	store       session.Store
	completer   Completer
	sanitizer   *guard.Sanitizer
	persona     persona.Persona
	limiter     Limiter
	recorder    Recorder
	logger      *slog.Logger
	tracer      trace.Tracer
	temperature float64
	maxTokens   int
	timeout     time.Duration
	ingest      ingest.Options

	lanes *session.LaneLock
	now   func() time.Time
}

// New creates a Relay from cfg.
func New(cfg Config) (*Relay, error) {
	if cfg.Store == nil {
		return nil, errors.New("relay: store is required")
	}
	if cfg.Sanitizer == nil {
		cfg.Sanitizer = guard.New(guard.Config{})
	}
	if cfg.Persona == (persona.Persona{}) {
		cfg.Persona = persona.New(persona.Config{})
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer(tracerName)
	}
	if cfg.Temperature < 0 {
		return nil, fmt.Errorf("relay: temperature must not be negative, got %v", cfg.Temperature)
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}

	return &Relay{
		store:       cfg.Store,
		completer:   cfg.Completer,
		sanitizer:   cfg.Sanitizer,
		persona:     cfg.Persona,
		limiter:     cfg.Limiter,
		recorder:    cfg.Recorder,
		logger:      cfg.Logger,
		tracer:      cfg.Tracer,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.Timeout,
		ingest:      cfg.Ingest,
		lanes:       session.NewLaneLock(),
		now:         time.Now,
	}, nil
}

// Online reports whether a completion backend is configured.
func (r *Relay) Online() bool {
	return r.completer != nil
}

// Normalize turns a raw request body and its query fields into an Input
// using the relay's ingest options.
func (r *Relay) Normalize(raw []byte, fields url.Values) ingest.Input {
	return ingest.Normalize(raw, fields, r.ingest)
}

// Store returns the session store the relay writes to.
func (r *Relay) Store() session.Store {
	return r.store
}

// Chat runs one exchange for in.
func (r *Relay) Chat(ctx context.Context, in ingest.Input) Result {
	start := r.now()
	ctx, span := r.tracer.Start(ctx, "relay.chat",
		trace.WithAttributes(
			attribute.String("session.id", in.SessionID),
			attribute.Int("message.runes", utf8.RuneCountInString(in.Message)),
		),
	)
	defer span.End()

	res := r.chat(ctx, in)

	span.SetAttributes(attribute.String("relay.outcome", string(res.Outcome)))
	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, string(res.Outcome))
	}
	r.finish(res, r.now().Sub(start))
	return res
}

func (r *Relay) chat(ctx context.Context, in ingest.Input) Result {
	res := Result{SessionID: in.SessionID}

	if r.limiter != nil {
		if err := r.limiter.Allow(in.SessionID); err != nil {
			res.Outcome = OutcomeRateLimited
			res.Reply = r.persona.Busy(in.Message)
			res.Err = err
			return res
		}
	}

	r.lanes.Acquire(in.SessionID)
	defer r.lanes.Release(in.SessionID)

	if r.completer == nil {
		res.Outcome = OutcomeOffline
		res.Reply = r.persona.Offline(in.Message)
		return res
	}

	history, err := r.store.History(ctx, in.SessionID)
	if err != nil {
		// A history read failure degrades context, not the exchange.
		r.logger.Warn("reading session history failed", "session", in.SessionID, "error", err)
		history = nil
	}
	history = r.sanitizer.SanitizeHistory(history)

	resp, err := r.complete(ctx, r.buildRequest(history, in.Message))
	res.Usage = resp.Usage
	if err != nil {
		res.Reply = r.persona.Failure(in.Message)
		res.Err = err
		res.Outcome = OutcomeUpstreamError
		if errors.Is(err, provider.ErrEmptyCompletion) {
			res.Outcome = OutcomeEmptyCompletion
		}
		return res
	}

	reply, guarded := r.sanitizer.GuardReply(in.Message, strings.TrimSpace(resp.Content))
	res.Reply = reply
	res.Outcome = OutcomeReply
	if guarded {
		res.Outcome = OutcomeGuarded
	}

	if !res.Outcome.Persisted() {
		return res
	}
	if err := r.store.Append(ctx, in.SessionID, session.UserTurn(in.Message), session.AssistantTurn(reply)); err != nil {
		r.logger.Error("appending exchange failed", "session", in.SessionID, "error", err)
	}
	return res
}

// complete calls the backend once and turns a blank answer into
// provider.ErrEmptyCompletion.
func (r *Relay) complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	ctx, span := r.tracer.Start(ctx, "provider.complete",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.Int("request.messages", len(req.Messages)),
			attribute.Int("request.max_tokens", req.MaxTokens),
		),
	)
	defer span.End()

	resp, err := r.completer.Complete(ctx, req)
	if err == nil && strings.TrimSpace(resp.Content) == "" {
		err = provider.ErrEmptyCompletion
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		return resp, err
	}

	span.SetAttributes(
		attribute.String("response.finish_reason", string(resp.FinishReason)),
		attribute.Int("usage.total_tokens", resp.Usage.TotalTokens),
	)
	return resp, nil
}

func (r *Relay) buildRequest(history []session.Turn, message string) provider.CompletionRequest {
	msgs := make([]provider.Message, 0, len(history)+2)
	msgs = append(msgs, provider.Message{Role: provider.MessageRoleSystem, Content: r.persona.SystemPrompt()})
	for _, t := range history {
		role := provider.MessageRoleUser
		if t.Role == session.RoleAssistant {
			role = provider.MessageRoleAssistant
		}
		msgs = append(msgs, provider.Message{Role: role, Content: t.Text})
	}
	msgs = append(msgs, provider.Message{Role: provider.MessageRoleUser, Content: message})

	return provider.CompletionRequest{
		Messages:    msgs,
		MaxTokens:   r.maxTokens,
		Temperature: provider.Float64(r.temperature),
	}
}

// Start seeds the welcome turn for a new session and returns the welcome
// line. Sessions that already have history are left untouched.
func (r *Relay) Start(ctx context.Context, sessionID string) Result {
	start := r.now()
	ctx, span := r.tracer.Start(ctx, "relay.start",
		trace.WithAttributes(attribute.String("session.id", sessionID)),
	)
	defer span.End()

	r.lanes.Acquire(sessionID)
	seeded, err := r.store.SeedWelcome(ctx, sessionID, r.persona.Welcome())
	r.lanes.Release(sessionID)

	if err != nil {
		span.RecordError(err)
		r.logger.Error("seeding welcome failed", "session", sessionID, "error", err)
	}
	span.SetAttributes(attribute.Bool("session.seeded", seeded))

	res := Result{
		SessionID: sessionID,
		Reply:     r.persona.Welcome(),
		Outcome:   OutcomeWelcome,
		Err:       err,
	}
	r.finish(res, r.now().Sub(start))
	return res
}

// Reset clears a session's history.
func (r *Relay) Reset(ctx context.Context, sessionID string) error {
	r.lanes.Acquire(sessionID)
	defer r.lanes.Release(sessionID)

	if err := r.store.Reset(ctx, sessionID); err != nil {
		return fmt.Errorf("relay: reset %s: %w", sessionID, err)
	}
	r.logger.Info("session reset", "session", sessionID)
	return nil
}

// finish logs and records a completed exchange.
func (r *Relay) finish(res Result, latency time.Duration) {
	attrs := []any{
		"session", res.SessionID,
		"outcome", string(res.Outcome),
		"latency", latency,
	}
	if res.Err != nil {
		attrs = append(attrs, "error", res.Err)
	}
	if res.Outcome.Degraded() {
		r.logger.Warn("exchange degraded", attrs...)
	} else {
		r.logger.Info("exchange complete", attrs...)
	}

	if r.recorder == nil {
		return
	}
	r.recorder.RecordExchange(res.Outcome, latency)
	if res.Usage.TotalTokens > 0 {
		r.recorder.RecordTokens(res.Usage)
	}
}
