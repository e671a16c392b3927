package relay

// Outcome classifies how an exchange ended. Clients always receive a reply;
// the outcome is what operators see in logs and metrics.
type Outcome string

// Outcome values.
const (
	// OutcomeReply is a model reply delivered unchanged.
	OutcomeReply Outcome = "reply"

	// OutcomeGuarded is a model reply replaced by the safe line.
	OutcomeGuarded Outcome = "guarded"

	// OutcomeOffline means no completion backend is configured.
	OutcomeOffline Outcome = "offline"

	// OutcomeUpstreamError means the completion call failed.
	OutcomeUpstreamError Outcome = "upstream_error"

	// OutcomeEmptyCompletion means the backend answered with blank text.
	OutcomeEmptyCompletion Outcome = "empty_completion"

	// OutcomeRateLimited means the session exceeded its message rate.
	OutcomeRateLimited Outcome = "rate_limited"

	// OutcomeWelcome is the greeting returned by Start.
	OutcomeWelcome Outcome = "welcome"
)

// Outcomes lists every outcome, for pre-registering metric labels.
var Outcomes = []Outcome{
	OutcomeReply,
	OutcomeGuarded,
	OutcomeOffline,
	OutcomeUpstreamError,
	OutcomeEmptyCompletion,
	OutcomeRateLimited,
	OutcomeWelcome,
}

// Persisted reports whether an exchange with this outcome is written to
// the session store.
func (o Outcome) Persisted() bool {
	return o == OutcomeReply || o == OutcomeGuarded
}

// Degraded reports whether the reply is a fixed line rather than model
// output or its guarded replacement.
func (o Outcome) Degraded() bool {
	switch o {
	case OutcomeOffline, OutcomeUpstreamError, OutcomeEmptyCompletion, OutcomeRateLimited:
		return true
	default:
		return false
	}
}
