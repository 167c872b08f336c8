package querycache

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"
)

const key Key = "numbers"

func TestFetchStoresAndNotifies(t *testing.T) {
	c := New[[]int]()
	c.Define(key, func(ctx context.Context) ([]int, error) {
		return []int{1, 2}, nil
	})

	var got []int
	unsubscribe := c.Subscribe(key, func(v []int) { got = v })

	if _, ok := c.Get(key); ok {
		t.Fatal("Get before Fetch: expected no value")
	}
	if err := c.Fetch(context.Background(), key); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if v, ok := c.Get(key); !ok || !reflect.DeepEqual(v, []int{1, 2}) {
		t.Errorf("Get: got %v %v", v, ok)
	}
	if !reflect.DeepEqual(got, []int{1, 2}) {
		t.Errorf("subscriber: got %v", got)
	}

	unsubscribe()
	c.Set(key, []int{3})
	if !reflect.DeepEqual(got, []int{1, 2}) {
		t.Error("subscriber called after unsubscribe")
	}
}

func TestFetchError(t *testing.T) {
	c := New[int]()
	boom := errors.New("boom")
	c.Define(key, func(ctx context.Context) (int, error) { return 0, boom })
	c.Set(key, 7)

	if err := c.Invalidate(context.Background(), key); !errors.Is(err, boom) {
		t.Fatalf("Invalidate: got %v, want boom", err)
	}
	if !errors.Is(c.Err(key), boom) {
		t.Errorf("Err: got %v", c.Err(key))
	}
	if !c.Stale(key) {
		t.Error("failed refetch should leave the key stale")
	}
	if v, _ := c.Get(key); v != 7 {
		t.Errorf("failed fetch replaced the value: %d", v)
	}
}

func TestFetchWithoutFetcher(t *testing.T) {
	c := New[int]()
	if err := c.Fetch(context.Background(), key); err == nil {
		t.Fatal("expected error without fetcher")
	}
}

// blockingFetcher returns values pushed into release, one per call, and
// reports each call start on started.
type blockingFetcher struct {
	started chan struct{}
	release chan int
}

func newBlockingFetcher() *blockingFetcher {
	return &blockingFetcher{started: make(chan struct{}, 8), release: make(chan int, 8)}
}

func (b *blockingFetcher) fetch(ctx context.Context) (int, error) {
	b.started <- struct{}{}
	v := <-b.release
	return v, nil
}

func TestCancelDiscardsInFlightFetch(t *testing.T) {
	c := New[int]()
	bf := newBlockingFetcher()
	c.Define(key, bf.fetch)
	c.Set(key, 1)

	done := make(chan error, 1)
	go func() { done <- c.Fetch(context.Background(), key) }()
	<-bf.started

	c.Cancel(key)
	c.Set(key, 2)
	bf.release <- 99

	if err := <-done; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("Fetch: got %v, want ErrSuperseded", err)
	}
	if v, _ := c.Get(key); v != 2 {
		t.Errorf("stale fetch overwrote the value: got %d, want 2", v)
	}
}

func TestLastStartedFetchWins(t *testing.T) {
	c := New[int]()
	bf := newBlockingFetcher()
	c.Define(key, bf.fetch)

	first := make(chan error, 1)
	go func() { first <- c.Fetch(context.Background(), key) }()
	<-bf.started

	second := make(chan error, 1)
	go func() { second <- c.Fetch(context.Background(), key) }()
	<-bf.started

	// Both fetchers are waiting; whichever receives first, only the
	// result of the second Fetch may be stored.
	bf.release <- 1
	bf.release <- 2
	e1, e2 := <-first, <-second
	if !errors.Is(e1, ErrSuperseded) {
		t.Errorf("first Fetch: got %v, want ErrSuperseded", e1)
	}
	if e2 != nil {
		t.Errorf("second Fetch: %v", e2)
	}
	if _, ok := c.Get(key); !ok {
		t.Error("expected a stored value")
	}
}

func appendMutation(c *Cache[[]int], call func(context.Context, int) error, phases *[]Phase) *Mutation[[]int, int] {
	return &Mutation[[]int, int]{
		Key:  key,
		Zero: func() []int { return []int{} },
		Apply: func(current []int, n int) []int {
			next := make([]int, len(current), len(current)+1)
			copy(next, current)
			return append(next, n)
		},
		Call: call,
		OnPhase: func(p Phase) {
			*phases = append(*phases, p)
		},
	}
}

func TestMutationConfirmed(t *testing.T) {
	c := New[[]int]()
	var server []int
	var mu sync.Mutex
	c.Define(key, func(ctx context.Context) ([]int, error) {
		mu.Lock()
		defer mu.Unlock()
		return append([]int{}, server...), nil
	})

	var phases []Phase
	var seenDuringCall []int
	m := appendMutation(c, func(ctx context.Context, n int) error {
		seenDuringCall, _ = c.Get(key)
		mu.Lock()
		defer mu.Unlock()
		server = append(server, n*10)
		return nil
	}, &phases)

	if err := m.Run(context.Background(), c, 4); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !reflect.DeepEqual(seenDuringCall, []int{4}) {
		t.Errorf("optimistic value during call: got %v, want [4] (unset cache treated as empty)", seenDuringCall)
	}
	if v, _ := c.Get(key); !reflect.DeepEqual(v, []int{40}) {
		t.Errorf("after settle: got %v, want server state [40]", v)
	}
	want := []Phase{PhaseIdle, PhaseOptimistic, PhaseConfirmed, PhaseReconciled}
	if !reflect.DeepEqual(phases, want) {
		t.Errorf("phases: got %v, want %v", phases, want)
	}
}

func TestMutationRollsBack(t *testing.T) {
	c := New[[]int]()
	c.Define(key, func(ctx context.Context) ([]int, error) {
		return []int{1, 2, 3}, nil
	})
	if err := c.Fetch(context.Background(), key); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	before, _ := c.Get(key)
	before = append([]int(nil), before...)

	boom := errors.New("boom")
	var phases []Phase
	var afterRollback []int
	var notified error
	m := appendMutation(c, func(ctx context.Context, n int) error { return boom }, &phases)
	m.OnError = func(err error, n int) {
		notified = err
		afterRollback, _ = c.Get(key)
	}

	if err := m.Run(context.Background(), c, 9); !errors.Is(err, boom) {
		t.Fatalf("Run: got %v, want boom", err)
	}
	if !reflect.DeepEqual(afterRollback, before) {
		t.Errorf("rollback: got %v, want %v", afterRollback, before)
	}
	if !errors.Is(notified, boom) {
		t.Errorf("OnError: got %v", notified)
	}
	want := []Phase{PhaseIdle, PhaseOptimistic, PhaseRolledBack, PhaseReconciled}
	if !reflect.DeepEqual(phases, want) {
		t.Errorf("phases: got %v, want %v", phases, want)
	}
}

func TestMutationCancelsPendingRefetch(t *testing.T) {
	c := New[[]int]()
	bf := make(chan []int)
	started := make(chan struct{}, 1)
	c.Define(key, func(ctx context.Context) ([]int, error) {
		started <- struct{}{}
		select {
		case v := <-bf:
			return v, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})

	stale := make(chan error, 1)
	go func() { stale <- c.Fetch(context.Background(), key) }()
	<-started

	var phases []Phase
	m := appendMutation(c, func(ctx context.Context, n int) error { return nil }, &phases)
	done := make(chan error, 1)
	go func() { done <- m.Run(context.Background(), c, 5) }()

	if err := <-stale; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("pending fetch: got %v, want ErrSuperseded", err)
	}

	// The mutation's own refetch.
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("mutation did not refetch")
	}
	bf <- []int{5}
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if v, _ := c.Get(key); !reflect.DeepEqual(v, []int{5}) {
		t.Errorf("after settle: got %v", v)
	}
}

func TestPhaseString(t *testing.T) {
	if PhaseOptimistic.String() != "optimistic-applied" || PhaseRolledBack.String() != "rolled-back" {
		t.Error("unexpected phase names")
	}
}
