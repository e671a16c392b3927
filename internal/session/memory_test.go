package session_test

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/flemzord/aamo/internal/session"
)

func mustHistory(t *testing.T, s session.Store, id string) []session.Turn {
	t.Helper()
	h, err := s.History(context.Background(), id)
	if err != nil {
		t.Fatalf("History(%q): %v", id, err)
	}
	return h
}

func appendPair(t *testing.T, s session.Store, id string, n int) {
	t.Helper()
	err := s.Append(context.Background(), id,
		session.UserTurn(fmt.Sprintf("u%d", n)),
		session.AssistantTurn(fmt.Sprintf("a%d", n)),
	)
	if err != nil {
		t.Fatalf("Append(%d): %v", n, err)
	}
}

func TestMemoryStore_HistoryUnknownSession(t *testing.T) {
	t.Parallel()

	s := session.NewMemoryStore(10)
	h := mustHistory(t, s, "nobody")
	if h == nil || len(h) != 0 {
		t.Errorf("History = %#v, want empty non-nil slice", h)
	}
}

func TestMemoryStore_AppendKeepsOrder(t *testing.T) {
	t.Parallel()

	s := session.NewMemoryStore(10)
	appendPair(t, s, "s1", 1)
	appendPair(t, s, "s1", 2)

	want := []session.Turn{
		session.UserTurn("u1"), session.AssistantTurn("a1"),
		session.UserTurn("u2"), session.AssistantTurn("a2"),
	}
	if got := mustHistory(t, s, "s1"); !slices.Equal(got, want) {
		t.Errorf("History = %v, want %v", got, want)
	}
}

func TestMemoryStore_SlidingWindow(t *testing.T) {
	t.Parallel()

	// Window 4, three pairs: the first pair is evicted.
	s := session.NewMemoryStore(4)
	for i := 1; i <= 3; i++ {
		appendPair(t, s, "s1", i)
	}

	want := []session.Turn{
		session.UserTurn("u2"), session.AssistantTurn("a2"),
		session.UserTurn("u3"), session.AssistantTurn("a3"),
	}
	if got := mustHistory(t, s, "s1"); !slices.Equal(got, want) {
		t.Errorf("History = %v, want %v", got, want)
	}
}

func TestMemoryStore_WindowNeverExceeded(t *testing.T) {
	t.Parallel()

	const window = 10
	s := session.NewMemoryStore(window)
	for i := 0; i < 25; i++ {
		appendPair(t, s, "s1", i)
		if got := len(mustHistory(t, s, "s1")); got > window {
			t.Fatalf("after %d appends len = %d, want <= %d", i+1, got, window)
		}
	}

	h := mustHistory(t, s, "s1")
	if len(h) != window {
		t.Fatalf("len = %d, want %d", len(h), window)
	}
	if h[0].Text != "u20" || h[window-1].Text != "a24" {
		t.Errorf("window = [%s .. %s], want [u20 .. a24]", h[0].Text, h[window-1].Text)
	}
}

func TestMemoryStore_HistoryReturnsCopy(t *testing.T) {
	t.Parallel()

	s := session.NewMemoryStore(10)
	appendPair(t, s, "s1", 1)

	h := mustHistory(t, s, "s1")
	h[0].Text = "mutated"

	if got := mustHistory(t, s, "s1")[0].Text; got != "u1" {
		t.Errorf("stored turn changed through returned slice: %q", got)
	}
}

func TestMemoryStore_ResetIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := session.NewMemoryStore(10)
	appendPair(t, s, "s1", 1)

	for i := 0; i < 2; i++ {
		if err := s.Reset(ctx, "s1"); err != nil {
			t.Fatalf("Reset #%d: %v", i+1, err)
		}
		if h := mustHistory(t, s, "s1"); len(h) != 0 {
			t.Errorf("after Reset #%d history = %v, want empty", i+1, h)
		}
	}
}

func TestMemoryStore_SeedWelcomeAtMostOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := session.NewMemoryStore(10)

	seeded, err := s.SeedWelcome(ctx, "s1", "Hei!")
	if err != nil || !seeded {
		t.Fatalf("first SeedWelcome = %v, %v; want true, nil", seeded, err)
	}
	seeded, err = s.SeedWelcome(ctx, "s1", "Hei!")
	if err != nil || seeded {
		t.Fatalf("second SeedWelcome = %v, %v; want false, nil", seeded, err)
	}

	want := []session.Turn{session.AssistantTurn("Hei!")}
	if got := mustHistory(t, s, "s1"); !slices.Equal(got, want) {
		t.Errorf("History = %v, want %v", got, want)
	}
}

func TestMemoryStore_SeedWelcomeKeepsExistingHistory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := session.NewMemoryStore(10)
	appendPair(t, s, "s1", 1)

	seeded, err := s.SeedWelcome(ctx, "s1", "Hei!")
	if err != nil || seeded {
		t.Fatalf("SeedWelcome = %v, %v; want false, nil", seeded, err)
	}
	if h := mustHistory(t, s, "s1"); len(h) != 2 || h[0].Text != "u1" {
		t.Errorf("History = %v, existing turns must be kept", h)
	}
}

func TestMemoryStore_SessionsIndependent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := session.NewMemoryStore(4)
	appendPair(t, s, "a", 1)
	appendPair(t, s, "b", 1)
	if err := s.Reset(ctx, "a"); err != nil {
		t.Fatal(err)
	}

	if h := mustHistory(t, s, "b"); len(h) != 2 {
		t.Errorf("session b len = %d, want 2", len(h))
	}
	n, err := s.Len(ctx)
	if err != nil || n != 1 {
		t.Errorf("Len = %d, %v; want 1", n, err)
	}
}

func TestMemoryStore_ConcurrentAppends(t *testing.T) {
	t.Parallel()

	const (
		window   = 8
		sessions = 16
		perSess  = 50
	)
	s := session.NewMemoryStore(window)

	var wg sync.WaitGroup
	for i := 0; i < sessions; i++ {
		id := fmt.Sprintf("s%d", i)
		for j := 0; j < perSess; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = s.Append(context.Background(), id, session.UserTurn("u"), session.AssistantTurn("a"))
			}()
		}
	}
	wg.Wait()

	for i := 0; i < sessions; i++ {
		h := mustHistory(t, s, fmt.Sprintf("s%d", i))
		if len(h) != window {
			t.Errorf("s%d len = %d, want %d", i, len(h), window)
		}
		for k := 0; k < len(h); k += 2 {
			if h[k].Role != session.RoleUser || h[k+1].Role != session.RoleAssistant {
				t.Fatalf("s%d pairs interleaved: %v", i, h)
			}
		}
	}
}

func TestMemoryStore_RangeAndPrune(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := session.NewMemoryStore(10)
	appendPair(t, s, "old", 1)
	time.Sleep(20 * time.Millisecond)
	appendPair(t, s, "fresh", 1)

	var ids []string
	if err := s.Range(ctx, func(info session.Info) bool {
		ids = append(ids, info.ID)
		if info.Turns != 2 {
			t.Errorf("%s turns = %d, want 2", info.ID, info.Turns)
		}
		return true
	}); err != nil {
		t.Fatal(err)
	}
	slices.Sort(ids)
	if !slices.Equal(ids, []string{"fresh", "old"}) {
		t.Errorf("Range ids = %v", ids)
	}

	pruned, err := s.Prune(ctx, 10*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if pruned != 1 {
		t.Errorf("pruned = %d, want 1", pruned)
	}
	if h := mustHistory(t, s, "fresh"); len(h) != 2 {
		t.Error("fresh session should survive pruning")
	}
}

func TestMemoryStore_RangeStopsEarly(t *testing.T) {
	t.Parallel()

	s := session.NewMemoryStore(10)
	for i := 0; i < 5; i++ {
		appendPair(t, s, fmt.Sprintf("s%d", i), 1)
	}

	calls := 0
	_ = s.Range(context.Background(), func(session.Info) bool {
		calls++
		return false
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestClampWindow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want int
	}{
		{0, session.DefaultWindow},
		{-3, session.DefaultWindow},
		{1, 2},
		{8, 8},
	}
	for _, tt := range tests {
		if got := session.ClampWindow(tt.in); got != tt.want {
			t.Errorf("ClampWindow(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
