package workers

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shortlink-service/models"
)

type recordingStore struct {
	mu      sync.Mutex
	batches [][]*models.Visit
}

func (s *recordingStore) BatchInsertVisits(_ context.Context, visits []*models.Visit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := make([]*models.Visit, len(visits))
	copy(batch, visits)
	s.batches = append(s.batches, batch)
	return nil
}

func (s *recordingStore) totalVisits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

func visit(slug string) models.Visit {
	return models.Visit{ID: slug + "-id", Slug: slug, Timestamp: time.Now()}
}

func TestEnqueueRejectsWhenFull(t *testing.T) {
	pool := NewPool(&recordingStore{}, Config{QueueSize: 2, Workers: 1, BatchSize: 10, FlushInterval: time.Second}, zerolog.Nop())

	// Workers are not started, so the queue fills up.
	assert.True(t, pool.Enqueue(visit("a")))
	assert.True(t, pool.Enqueue(visit("b")))
	assert.False(t, pool.Enqueue(visit("c")))
}

func TestPoolFlushesFullBatches(t *testing.T) {
	store := &recordingStore{}
	pool := NewPool(store, Config{QueueSize: 100, Workers: 1, BatchSize: 3, FlushInterval: time.Hour}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		pool.Start(ctx)
		close(done)
	}()

	for i := 0; i < 3; i++ {
		require.True(t, pool.Enqueue(visit("x")))
	}

	assert.Eventually(t, func() bool {
		return store.totalVisits() == 3
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestPoolFlushesOnInterval(t *testing.T) {
	store := &recordingStore{}
	pool := NewPool(store, Config{QueueSize: 100, Workers: 1, BatchSize: 100, FlushInterval: 20 * time.Millisecond}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		pool.Start(ctx)
		close(done)
	}()

	require.True(t, pool.Enqueue(visit("a")))

	assert.Eventually(t, func() bool {
		return store.totalVisits() == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestPoolDrainsOnShutdown(t *testing.T) {
	store := &recordingStore{}
	pool := NewPool(store, Config{QueueSize: 100, Workers: 2, BatchSize: 100, FlushInterval: time.Hour}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		pool.Start(ctx)
		close(done)
	}()

	for i := 0; i < 10; i++ {
		require.True(t, pool.Enqueue(visit("a")))
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not shut down")
	}

	assert.Equal(t, 10, store.totalVisits(), "queued visits must be flushed on shutdown")
}
