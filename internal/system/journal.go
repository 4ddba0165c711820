package system

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/l1jgo/frametask/internal/async"
	"github.com/l1jgo/frametask/internal/core/ecs"
	coresys "github.com/l1jgo/frametask/internal/core/system"
)

// BatchWriter persists lifecycle records. persist.JournalRepo implements it.
type BatchWriter interface {
	Write(ctx context.Context, recs []async.Lifecycle) error
}

// JournalBuffer collects lifecycle records from routine goroutines until the
// frame side takes them. Records past the limit are counted and discarded.
type JournalBuffer struct {
	mu      sync.Mutex
	recs    []async.Lifecycle
	limit   int
	dropped int
}

func NewJournalBuffer(limit int) *JournalBuffer {
	if limit <= 0 {
		limit = 1024
	}
	return &JournalBuffer{limit: limit}
}

// Record implements async.Recorder.
func (b *JournalBuffer) Record(l async.Lifecycle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.recs) >= b.limit {
		b.dropped++
		return
	}
	b.recs = append(b.recs, l)
}

// Take empties the buffer and returns what it held and how many records were
// discarded since the last call.
func (b *JournalBuffer) Take() ([]async.Lifecycle, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	recs, dropped := b.recs, b.dropped
	b.recs, b.dropped = nil, 0
	return recs, dropped
}

// JournalSystem hands buffered lifecycle records to the journal writer every
// interval ticks. It never blocks the frame: when the writer is behind, the
// batch goes back to the buffer's next flush. Phase 5 (Last).
type JournalSystem struct {
	buf       *JournalBuffer
	out       chan []async.Lifecycle
	log       *zap.Logger
	interval  int
	tickCount int
	carry     []async.Lifecycle
	dropped   int
}

func NewJournalSystem(buf *JournalBuffer, log *zap.Logger, intervalTicks int) *JournalSystem {
	if intervalTicks <= 0 {
		intervalTicks = 1
	}
	return &JournalSystem{
		buf:      buf,
		out:      make(chan []async.Lifecycle, 4),
		log:      log,
		interval: intervalTicks,
	}
}

func (s *JournalSystem) Phase() coresys.Phase { return coresys.PhaseLast }

func (s *JournalSystem) Update(_ *ecs.World) {
	s.tickCount++
	if s.tickCount < s.interval {
		return
	}
	s.tickCount = 0
	s.Flush()
}

// Flush offers everything buffered to the writer now. Records held back for
// a busy writer count against the buffer limit; the newest past it are
// dropped.
func (s *JournalSystem) Flush() {
	recs, dropped := s.buf.Take()
	batch := append(s.carry, recs...)
	if over := len(batch) - s.buf.limit; over > 0 {
		batch = batch[:s.buf.limit]
		dropped += over
	}
	if dropped > 0 {
		s.dropped += dropped
		s.log.Warn("journal buffer overflow", zap.Int("dropped", dropped), zap.Int("total_dropped", s.dropped))
	}
	if len(batch) == 0 {
		s.carry = nil
		return
	}
	select {
	case s.out <- batch:
		s.carry = nil
	default:
		s.carry = batch
		s.log.Debug("journal writer busy", zap.Int("pending", len(batch)))
	}
}

// Dropped returns how many records were discarded since the system started.
func (s *JournalSystem) Dropped() int { return s.dropped }

// Close flushes and ends the writer's input, blocking while the writer is
// behind. The system must not run again.
func (s *JournalSystem) Close() {
	s.Flush()
	if s.carry != nil {
		s.out <- s.carry
		s.carry = nil
	}
	close(s.out)
}

// RunWriter writes batches until Close, then drains what is left. Write
// errors are logged and the batch is discarded.
func (s *JournalSystem) RunWriter(ctx context.Context, w BatchWriter) error {
	for batch := range s.out {
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if err := w.Write(wctx, batch); err != nil {
			s.log.Error("journal write failed", zap.Int("records", len(batch)), zap.Error(err))
		}
		cancel()
	}
	return nil
}
