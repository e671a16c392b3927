package gateway

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/flemzord/aamo/internal/provider"
	"github.com/flemzord/aamo/internal/relay"
)

func TestMetrics_RecordExchange(t *testing.T) {
	t.Parallel()

	m := NewMetrics()
	m.RecordExchange(relay.OutcomeReply, 200*time.Millisecond)
	m.RecordExchange(relay.OutcomeReply, time.Second)
	m.RecordExchange(relay.OutcomeGuarded, time.Second)

	if got := testutil.ToFloat64(m.exchanges.WithLabelValues("reply")); got != 2 {
		t.Errorf("reply = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.exchanges.WithLabelValues("guarded")); got != 1 {
		t.Errorf("guarded = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.exchanges.WithLabelValues("offline")); got != 0 {
		t.Errorf("offline = %v, want 0", got)
	}
	if n := testutil.CollectAndCount(m.exchanges); n != len(relay.Outcomes) {
		t.Errorf("exchange series = %d, want one per outcome (%d)", n, len(relay.Outcomes))
	}
	if n := testutil.CollectAndCount(m.latency); n != 2 {
		t.Errorf("latency series = %d, want 2", n)
	}
}

func TestMetrics_RecordTokens(t *testing.T) {
	t.Parallel()

	m := NewMetrics()
	m.RecordTokens(provider.TokenUsage{PromptTokens: 100, CompletionTokens: 20, TotalTokens: 120})
	m.RecordTokens(provider.TokenUsage{PromptTokens: 50, CompletionTokens: 5, TotalTokens: 55})
	m.RecordTokens(provider.TokenUsage{})

	if got := testutil.ToFloat64(m.tokens.WithLabelValues("prompt")); got != 150 {
		t.Errorf("prompt = %v, want 150", got)
	}
	if got := testutil.ToFloat64(m.tokens.WithLabelValues("completion")); got != 25 {
		t.Errorf("completion = %v, want 25", got)
	}
}

func TestMetrics_SessionGauge(t *testing.T) {
	t.Parallel()

	m := NewMetrics()
	if got := m.sessionCount(); got != 0 {
		t.Errorf("sessions without counter = %d, want 0", got)
	}

	m.SetSessionCounter(func() int { return 7 })
	if got := m.sessionCount(); got != 7 {
		t.Errorf("sessions = %d, want 7", got)
	}
}

func TestMetrics_RegistryGathers(t *testing.T) {
	t.Parallel()

	m := NewMetrics()
	m.SetSessionCounter(func() int { return 3 })

	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "aamo_sessions" {
			found = true
			if v := f.GetMetric()[0].GetGauge().GetValue(); v != 3 {
				t.Errorf("aamo_sessions = %v, want 3", v)
			}
		}
	}
	if !found {
		t.Error("aamo_sessions not gathered")
	}
}

func TestMetrics_ConcurrentRecording(t *testing.T) {
	t.Parallel()

	m := NewMetrics()
	var wg sync.WaitGroup
	for range 50 {
		wg.Go(func() {
			m.RecordExchange(relay.OutcomeOffline, time.Millisecond)
			m.RecordTokens(provider.TokenUsage{PromptTokens: 1})
		})
	}
	wg.Wait()

	if got := testutil.ToFloat64(m.exchanges.WithLabelValues("offline")); got != 50 {
		t.Errorf("offline = %v, want 50", got)
	}
}
