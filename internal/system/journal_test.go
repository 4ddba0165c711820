package system

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/l1jgo/frametask/internal/async"
	"github.com/l1jgo/frametask/internal/core/ecs"
)

type fakeWriter struct {
	mu    sync.Mutex
	recs  []async.Lifecycle
	calls int
	fail  bool
}

func (f *fakeWriter) Write(_ context.Context, recs []async.Lifecycle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail {
		return errors.New("db down")
	}
	f.recs = append(f.recs, recs...)
	return nil
}

func rec(ev async.LifecycleEvent) async.Lifecycle {
	return async.Lifecycle{Routine: uuid.New(), Event: ev, At: time.Unix(0, 0)}
}

func TestJournalBufferLimit(t *testing.T) {
	b := NewJournalBuffer(2)
	b.Record(rec(async.LifecycleSpawned))
	b.Record(rec(async.LifecycleCompleted))
	b.Record(rec(async.LifecycleFailed))

	recs, dropped := b.Take()
	assert.Len(t, recs, 2)
	assert.Equal(t, 1, dropped)

	recs, dropped = b.Take()
	assert.Empty(t, recs)
	assert.Zero(t, dropped)
}

func TestJournalSystemFlushesEveryInterval(t *testing.T) {
	b := NewJournalBuffer(16)
	s := NewJournalSystem(b, zap.NewNop(), 3)
	w := ecs.NewWorld()

	b.Record(rec(async.LifecycleSpawned))
	s.Update(w)
	s.Update(w)
	assert.Len(t, s.out, 0)
	s.Update(w)
	require.Len(t, s.out, 1)

	fw := &fakeWriter{}
	b.Record(rec(async.LifecycleCompleted))
	s.Close()
	require.NoError(t, s.RunWriter(context.Background(), fw))
	assert.Equal(t, 2, fw.calls)
	assert.Len(t, fw.recs, 2)
}

func TestJournalSystemCarriesWhenWriterBehind(t *testing.T) {
	b := NewJournalBuffer(16)
	s := NewJournalSystem(b, zap.NewNop(), 1)
	w := ecs.NewWorld()

	for i := 0; i < cap(s.out)+2; i++ {
		b.Record(rec(async.LifecycleSpawned))
		s.Update(w)
	}
	assert.Len(t, s.carry, 2, "overflowing batches merge")

	fw := &fakeWriter{}
	done := make(chan struct{})
	go func() {
		_ = s.RunWriter(context.Background(), fw)
		close(done)
	}()
	require.Eventually(t, func() bool { return len(s.out) == 0 }, time.Second, time.Millisecond)
	s.Close()
	<-done
	assert.Len(t, fw.recs, cap(s.out)+2)
}

func TestJournalWriterSurvivesErrors(t *testing.T) {
	b := NewJournalBuffer(16)
	s := NewJournalSystem(b, zap.NewNop(), 1)
	b.Record(rec(async.LifecycleFailed))
	s.Close()

	fw := &fakeWriter{fail: true}
	assert.NoError(t, s.RunWriter(context.Background(), fw))
	assert.Equal(t, 1, fw.calls)
}

func TestCleanupFlushesDestroyQueue(t *testing.T) {
	w := ecs.NewWorld()
	id := w.Spawn()
	w.MarkForDestruction(id)
	assert.True(t, w.Alive(id))

	NewCleanupSystem().Update(w)
	assert.False(t, w.Alive(id))
}

func TestJournalCarryRespectsBufferLimit(t *testing.T) {
	b := NewJournalBuffer(3)
	s := NewJournalSystem(b, zap.NewNop(), 1)
	w := ecs.NewWorld()

	// fill the writer's queue
	for i := 0; i < cap(s.out); i++ {
		b.Record(rec(async.LifecycleSpawned))
		s.Update(w)
	}
	require.Len(t, s.out, cap(s.out))

	for i := 0; i < 5; i++ {
		b.Record(rec(async.LifecycleSpawned))
		b.Record(rec(async.LifecycleCompleted))
		s.Update(w)
		assert.LessOrEqual(t, len(s.carry), 3)
	}
	assert.Len(t, s.carry, 3)
	assert.Equal(t, 7, s.Dropped())
}
