package hitl

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sequentialIDs() func() string {
	var n int64
	return func() string {
		return fmt.Sprintf("req-%d", atomic.AddInt64(&n, 1))
	}
}

func TestMemoryStore_CreateAndList(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(WithIDGenerator(sequentialIDs()))
	defer store.Close()

	pending, err := store.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	id1, err := store.Create(ctx, CreateOptions{Kind: KindTextInput, Prompt: "name?"})
	require.NoError(t, err)
	id2, err := store.Create(ctx, CreateOptions{
		Kind:    KindSelection,
		Prompt:  "pick",
		Options: []string{"a", "b"},
	})
	require.NoError(t, err)

	pending, err = store.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, id1, pending[0].ID)
	assert.Equal(t, id2, pending[1].ID)
	assert.Less(t, pending[0].Sequence, pending[1].Sequence)
	assert.Equal(t, StatusPending, pending[0].Status)
	assert.True(t, pending[0].Required)
	assert.Empty(t, pending[0].Options)
	assert.Equal(t, []string{"a", "b"}, pending[1].Options)
}

func TestMemoryStore_CreateValidation(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	_, err := store.Create(context.Background(), CreateOptions{Prompt: "x"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = store.Create(context.Background(), CreateOptions{Kind: KindLogin})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestMemoryStore_OptionsClearedForNonSelection(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	defer store.Close()

	_, err := store.Create(ctx, CreateOptions{Kind: KindConfirmation, Prompt: "ok?", Options: []string{"x"}})
	require.NoError(t, err)

	pending, err := store.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.NotNil(t, pending[0].Options)
	assert.Empty(t, pending[0].Options)
}

func TestMemoryStore_ListReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	defer store.Close()

	_, err := store.Create(ctx, CreateOptions{Kind: KindSelection, Prompt: "pick", Options: []string{"a"}})
	require.NoError(t, err)

	first, _ := store.ListPending(ctx)
	first[0].Options[0] = "mutated"
	first[0].Prompt = "mutated"

	second, _ := store.ListPending(ctx)
	assert.Equal(t, "a", second[0].Options[0])
	assert.Equal(t, "pick", second[0].Prompt)
}

func TestMemoryStore_ResolveWakesAwaiter(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	defer store.Close()

	id, err := store.Create(ctx, CreateOptions{Kind: KindTextInput, Prompt: "name?"})
	require.NoError(t, err)

	result := make(chan *Outcome, 1)
	go func() {
		out, err := store.Await(ctx, id)
		assert.NoError(t, err)
		result <- out
	}()

	out, err := store.Resolve(ctx, id, "alice")
	require.NoError(t, err)
	assert.Equal(t, StatusAnswered, out.Status)

	select {
	case got := <-result:
		assert.Equal(t, "alice", got.Value)
		assert.Equal(t, StatusAnswered, got.Status)
		assert.False(t, got.Cancelled())
	case <-time.After(time.Second):
		t.Fatal("awaiter was not woken")
	}

	pending, _ := store.ListPending(ctx)
	assert.Empty(t, pending)
}

func TestMemoryStore_CancelDeliversSignal(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	defer store.Close()

	id, err := store.Create(ctx, CreateOptions{Kind: KindConfirmation, Prompt: "ok?"})
	require.NoError(t, err)

	out, err := store.Cancel(ctx, id)
	require.NoError(t, err)
	assert.True(t, out.Cancelled())
	assert.Nil(t, out.Value)

	got, err := store.Await(ctx, id)
	require.NoError(t, err)
	assert.True(t, got.Cancelled())
}

func TestMemoryStore_TerminalIsFinal(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	defer store.Close()

	id, _ := store.Create(ctx, CreateOptions{Kind: KindTextInput, Prompt: "name?"})

	_, err := store.Resolve(ctx, id, "first")
	require.NoError(t, err)

	_, err = store.Resolve(ctx, id, "second")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Cancel(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)

	out, err := store.Await(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "first", out.Value)
}

func TestMemoryStore_UnknownID(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	defer store.Close()

	_, err := store.Resolve(ctx, "missing", "x")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Cancel(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Await(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_AwaitHonoursContext(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	id, _ := store.Create(context.Background(), CreateOptions{Kind: KindTextInput, Prompt: "name?"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := store.Await(ctx, id)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// 请求仍然挂起
	pending, _ := store.ListPending(context.Background())
	assert.Len(t, pending, 1)
}

func TestMemoryStore_OutcomeDeliveredOnce(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	defer store.Close()

	id, _ := store.Create(ctx, CreateOptions{Kind: KindLogin, Prompt: "login"})
	_, err := store.Resolve(ctx, id, ValueCompleted)
	require.NoError(t, err)

	_, err = store.Await(ctx, id)
	require.NoError(t, err)
	_, err = store.Await(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_UnclaimedOutcomeExpires(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store := NewMemoryStore(WithClock(clock), WithOutcomeRetention(time.Minute))
	defer store.Close()

	id, _ := store.Create(ctx, CreateOptions{Kind: KindTextInput, Prompt: "name?"})
	_, err := store.Resolve(ctx, id, "x")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = store.Create(ctx, CreateOptions{Kind: KindTextInput, Prompt: "again"})
	require.NoError(t, err)

	_, err = store.Await(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ConcurrentResolveSingleWinner(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	defer store.Close()

	id, _ := store.Create(ctx, CreateOptions{Kind: KindTextInput, Prompt: "race"})

	const racers = 16
	var wins, notFound int64
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				_, err = store.Resolve(ctx, id, fmt.Sprintf("v%d", i))
			} else {
				_, err = store.Cancel(ctx, id)
			}
			switch {
			case err == nil:
				atomic.AddInt64(&wins, 1)
			case errors.Is(err, ErrNotFound):
				atomic.AddInt64(&notFound, 1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), wins)
	assert.Equal(t, int64(racers-1), notFound)
}

func TestMemoryStore_Changes(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	changes, err := store.Changes(ctx)
	require.NoError(t, err)

	id, _ := store.Create(context.Background(), CreateOptions{Kind: KindTextInput, Prompt: "x"})
	select {
	case <-changes:
	case <-time.After(time.Second):
		t.Fatal("no change notification after create")
	}

	_, _ = store.Cancel(context.Background(), id)
	select {
	case <-changes:
	case <-time.After(time.Second):
		t.Fatal("no change notification after cancel")
	}

	cancel()
	assert.Eventually(t, func() bool {
		_, ok := <-changes
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestMemoryStore_Close(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	id, _ := store.Create(ctx, CreateOptions{Kind: KindTextInput, Prompt: "x"})

	done := make(chan error, 1)
	go func() {
		_, err := store.Await(ctx, id)
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrStoreClosed)
	case <-time.After(time.Second):
		t.Fatal("awaiter not released on close")
	}

	assert.ErrorIs(t, store.Ping(ctx), ErrStoreClosed)
	_, err := store.Create(ctx, CreateOptions{Kind: KindTextInput, Prompt: "x"})
	assert.ErrorIs(t, err, ErrStoreClosed)
}
