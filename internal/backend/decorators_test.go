package backend_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shreyachakravarty07/AgentTrace/internal/backend"
	"github.com/shreyachakravarty07/AgentTrace/internal/testutil"
	"github.com/shreyachakravarty07/AgentTrace/pkg/conversation"
	"github.com/shreyachakravarty07/AgentTrace/pkg/generation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimited(t *testing.T) {
	ctx := context.Background()

	t.Run("PassesThrough", func(t *testing.T) {
		gen := testutil.NewFakeGenerator()
		limited := backend.NewRateLimited(gen, 0, 0)
		text, err := limited.Generate(ctx, "m", "p", 5)
		require.NoError(t, err)
		assert.Equal(t, "m: p", text)
	})

	t.Run("WaitRespectsContext", func(t *testing.T) {
		gen := testutil.NewFakeGenerator()
		limited := backend.NewRateLimited(gen, 0.001, 1)
		_, err := limited.Generate(ctx, "m", "first", 5)
		require.NoError(t, err)

		short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		_, err = limited.Generate(short, "m", "second", 5)
		var genErr *generation.Error
		assert.ErrorAs(t, err, &genErr)
		assert.Len(t, gen.Calls(), 1)
	})
}

func TestCached(t *testing.T) {
	ctx := context.Background()

	t.Run("RepeatedRequestServedFromCache", func(t *testing.T) {
		gen := testutil.NewFakeGenerator()
		cached := backend.NewCached(gen, backend.NewMemoryCache(), time.Minute, testutil.NopLogger{})

		first, err := cached.Generate(ctx, "m", "p", 5)
		require.NoError(t, err)
		second, err := cached.Generate(ctx, "m", "p", 5)
		require.NoError(t, err)
		assert.Equal(t, first, second)
		assert.Len(t, gen.Calls(), 1)

		_, err = cached.Generate(ctx, "m", "p", 6)
		require.NoError(t, err)
		assert.Len(t, gen.Calls(), 2)
	})

	t.Run("FailuresNotCached", func(t *testing.T) {
		gen := testutil.NewFakeGenerator().FailModel("m", errors.New("boom"))
		cached := backend.NewCached(gen, backend.NewMemoryCache(), time.Minute, testutil.NopLogger{})
		_, err := cached.Generate(ctx, "m", "p", 5)
		assert.Error(t, err)
		_, err = cached.Generate(ctx, "m", "p", 5)
		assert.Error(t, err)
		assert.Len(t, gen.Calls(), 2)
	})

	t.Run("TraceBypassesCache", func(t *testing.T) {
		gen := testutil.NewFakeGenerator()
		cached := backend.NewCached(gen, backend.NewMemoryCache(), time.Minute, testutil.NopLogger{})
		for i := 0; i < 2; i++ {
			_, _, err := cached.GenerateWithTrace(ctx, "m", "p", 5)
			require.NoError(t, err)
		}
		assert.Len(t, gen.Calls(), 2)
	})

	t.Run("WithoutCacheReachesModel", func(t *testing.T) {
		gen := testutil.NewFakeGenerator()
		cached := backend.NewCached(gen, backend.NewMemoryCache(), time.Minute, testutil.NopLogger{})
		_, err := cached.Generate(ctx, "m", "p", 5)
		require.NoError(t, err)
		_, err = cached.Generate(generation.WithoutCache(ctx), "m", "p", 5)
		require.NoError(t, err)
		assert.Len(t, gen.Calls(), 2)
	})

	t.Run("ReplaySamplesAgain", func(t *testing.T) {
		n := 0
		gen := testutil.NewFakeGenerator().WithResponse(func(model, prompt string) string {
			n++
			return fmt.Sprintf("sample-%d", n)
		})
		cached := backend.NewCached(gen, backend.NewMemoryCache(), time.Minute, testutil.NopLogger{})
		conv := conversation.New(cached, testutil.NopLogger{}, "m", 10)

		first, err := conv.AddTurn(ctx, "hi")
		require.NoError(t, err)
		replayed, err := conv.ReplayTurn(ctx, 0, "")
		require.NoError(t, err)

		assert.Equal(t, "sample-1", first)
		assert.Equal(t, "sample-2", replayed)
		assert.Len(t, gen.Calls(), 2)
	})

	t.Run("MemoryCacheExpires", func(t *testing.T) {
		c := backend.NewMemoryCache()
		require.NoError(t, c.Set(ctx, "k", "v", time.Millisecond))
		time.Sleep(5 * time.Millisecond)
		_, ok, err := c.Get(ctx, "k")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("KeysDistinguishFields", func(t *testing.T) {
		assert.NotEqual(t, backend.CacheKey("ab", "c", 1), backend.CacheKey("a", "bc", 1))
		assert.Equal(t, backend.CacheKey("a", "b", 1), backend.CacheKey("a", "b", 1))
	})
}

// slowGenerator tracks how many calls overlap.
type slowGenerator struct {
	*testutil.FakeGenerator
	inFlight int32
	maxSeen  int32
}

func (s *slowGenerator) Generate(ctx context.Context, model, prompt string, maxLength int) (string, error) {
	n := atomic.AddInt32(&s.inFlight, 1)
	defer atomic.AddInt32(&s.inFlight, -1)
	for {
		m := atomic.LoadInt32(&s.maxSeen)
		if n <= m || atomic.CompareAndSwapInt32(&s.maxSeen, m, n) {
			break
		}
	}
	time.Sleep(2 * time.Millisecond)
	return s.FakeGenerator.Generate(ctx, model, prompt, maxLength)
}

func TestExclusive(t *testing.T) {
	ctx := context.Background()

	t.Run("OneCallInFlight", func(t *testing.T) {
		gen := &slowGenerator{FakeGenerator: testutil.NewFakeGenerator()}
		pool := backend.NewExclusive(gen, testutil.NopLogger{})
		defer pool.Stop()

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := pool.Generate(ctx, "m", "p", 5)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), atomic.LoadInt32(&gen.maxSeen))
		assert.Len(t, gen.Calls(), 8)
	})

	t.Run("Trace", func(t *testing.T) {
		pool := backend.NewExclusive(testutil.NewFakeGenerator(), testutil.NopLogger{})
		defer pool.Stop()
		text, trace, err := pool.GenerateWithTrace(ctx, "m", "a b", 5)
		require.NoError(t, err)
		assert.Equal(t, "m: a b", text)
		assert.Len(t, trace, 3)
	})

	t.Run("CancelledCallSkipped", func(t *testing.T) {
		gen := testutil.NewFakeGenerator()
		pool := backend.NewExclusive(gen, testutil.NopLogger{})
		defer pool.Stop()

		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := pool.Generate(cancelled, "m", "p", 5)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("StoppedPoolRejects", func(t *testing.T) {
		pool := backend.NewExclusive(testutil.NewFakeGenerator(), testutil.NopLogger{})
		pool.Stop()
		pool.Stop()
		_, err := pool.Generate(ctx, "m", "p", 5)
		assert.ErrorIs(t, err, backend.ErrPoolStopped)
	})
}
