package persist

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/l1jgo/frametask/internal/async"
)

type JournalRepo struct {
	db *DB
}

func NewJournalRepo(db *DB) *JournalRepo {
	return &JournalRepo{db: db}
}

// Write inserts a batch of lifecycle records in one transaction.
func (r *JournalRepo) Write(ctx context.Context, recs []async.Lifecycle) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("journal begin: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, l := range recs {
		batch.Queue(
			`INSERT INTO routine_journal (routine_id, entity, event, error, occurred_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			l.Routine, int64(l.Entity), string(l.Event), l.Err, l.At,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("journal insert: %w", err)
	}
	return tx.Commit(ctx)
}

// History returns the recorded events of one routine, oldest first.
func (r *JournalRepo) History(ctx context.Context, routine uuid.UUID) ([]async.LifecycleEvent, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT event FROM routine_journal WHERE routine_id = $1 ORDER BY occurred_at, id`, routine)
	if err != nil {
		return nil, fmt.Errorf("journal history: %w", err)
	}
	evs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (async.LifecycleEvent, error) {
		var s string
		err := row.Scan(&s)
		return async.LifecycleEvent(s), err
	})
	if err != nil {
		return nil, fmt.Errorf("journal history: %w", err)
	}
	return evs, nil
}
