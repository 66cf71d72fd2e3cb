package groutine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/blec/internal/groutine"
)

func TestGoCarriesName(t *testing.T) {
	// GOAL: Verify spawned goroutines can recover their name from the context

	got := make(chan string, 1)
	groutine.Go(context.Background(), "worker-1", func(ctx context.Context) {
		got <- groutine.Name(ctx)
	})

	select {
	case name := <-got:
		assert.Equal(t, "worker-1", name, "name MUST be recoverable inside the goroutine")
	case <-time.After(time.Second):
		t.Fatal("goroutine MUST run")
	}
}

func TestGoNilParentContext(t *testing.T) {
	// GOAL: Verify a nil parent context falls back to Background

	done := make(chan context.Context, 1)
	groutine.Go(nil, "worker-2", func(ctx context.Context) {
		done <- ctx
	})

	select {
	case ctx := <-done:
		require.NotNil(t, ctx, "context MUST never be nil")
		assert.NoError(t, ctx.Err(), "context MUST be live")
	case <-time.After(time.Second):
		t.Fatal("goroutine MUST run")
	}
}

func TestNameOutsideGo(t *testing.T) {
	// GOAL: Verify Name degrades to empty for foreign contexts

	assert.Equal(t, "", groutine.Name(context.Background()), "unnamed context MUST yield empty")
	assert.Equal(t, "", groutine.Name(nil), "nil context MUST yield empty")
}
