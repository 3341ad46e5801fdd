package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medchat-backend/internal/dialogue"
	"medchat-backend/internal/nlu"
)

type echoGenerator struct{}

func (echoGenerator) Generate(_ context.Context, _, intent string, _ dialogue.Context) (string, error) {
	return "reply for " + intent, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newRegistry(t *testing.T, ttl time.Duration) (*Registry, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	lex, err := nlu.DefaultLexicon()
	require.NoError(t, err)
	engine, err := dialogue.NewEngine(lex, echoGenerator{}, dialogue.WithClock(clock.Now))
	require.NoError(t, err)
	return NewRegistry(engine, ttl, WithClock(clock.Now)), clock
}

func TestGetOrCreate(t *testing.T) {
	r, _ := newRegistry(t, time.Hour)

	s, created := r.GetOrCreate("abc")
	require.True(t, created)
	assert.Equal(t, "abc", s.ID())

	again, created := r.GetOrCreate("abc")
	assert.False(t, created)
	assert.Same(t, s, again)

	fresh, created := r.GetOrCreate("")
	assert.True(t, created)
	assert.NotEmpty(t, fresh.ID())
	assert.NotEqual(t, "abc", fresh.ID())
	assert.Equal(t, 2, r.Len())
}

func TestGet(t *testing.T) {
	r, _ := newRegistry(t, time.Hour)

	_, err := r.Get("missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	created, _ := r.GetOrCreate("abc")
	got, err := r.Get("abc")
	require.NoError(t, err)
	assert.Same(t, created, got)
}

func TestSessionsAreIsolated(t *testing.T) {
	r, _ := newRegistry(t, time.Hour)
	a, _ := r.GetOrCreate("a")
	b, _ := r.GetOrCreate("b")

	_, err := a.ProcessTurn(context.Background(), "I have a fever")
	require.NoError(t, err)

	assert.Len(t, a.History(), 2)
	assert.Empty(t, b.History())
	assert.Empty(t, b.Context())
}

func TestReset(t *testing.T) {
	r, _ := newRegistry(t, time.Hour)
	s, _ := r.GetOrCreate("abc")
	_, err := s.ProcessTurn(context.Background(), "I have a fever")
	require.NoError(t, err)

	reset := r.Reset("abc")
	assert.Same(t, s, reset)
	assert.Empty(t, reset.History())
	assert.Empty(t, reset.Context())

	other := r.Reset("new-id")
	assert.Equal(t, "new-id", other.ID())
	assert.Equal(t, 2, r.Len())
}

func TestDelete(t *testing.T) {
	r, _ := newRegistry(t, time.Hour)
	r.GetOrCreate("abc")

	assert.True(t, r.Delete("abc"))
	assert.False(t, r.Delete("abc"))
	assert.Equal(t, 0, r.Len())
}

func TestSweep(t *testing.T) {
	r, clock := newRegistry(t, 30*time.Minute)
	r.GetOrCreate("stale")
	clock.Advance(20 * time.Minute)
	active, _ := r.GetOrCreate("active")

	clock.Advance(15 * time.Minute)
	_, err := active.ProcessTurn(context.Background(), "hello")
	require.NoError(t, err)

	assert.Equal(t, 1, r.Sweep())
	_, err = r.Get("stale")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = r.Get("active")
	assert.NoError(t, err)
}

func TestSweepDisabled(t *testing.T) {
	r, clock := newRegistry(t, 0)
	r.GetOrCreate("abc")
	clock.Advance(24 * time.Hour)
	assert.Equal(t, 0, r.Sweep())
	assert.Equal(t, 1, r.Len())
}

func TestRunStopsWithContext(t *testing.T) {
	r, _ := newRegistry(t, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		r.Run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestConcurrentGetOrCreate(t *testing.T) {
	r, _ := newRegistry(t, time.Hour)

	var wg sync.WaitGroup
	seen := make(chan *dialogue.Session, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, _ := r.GetOrCreate("shared")
			seen <- s
		}()
	}
	wg.Wait()
	close(seen)

	first := <-seen
	for s := range seen {
		assert.Same(t, first, s)
	}
	assert.Equal(t, 1, r.Len())
}
