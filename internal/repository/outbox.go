package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/dtambussi/fanout/internal/idgen"
	"github.com/dtambussi/fanout/internal/models"
)

// OutboxStore implements the transactional outbox: Enqueue runs inside the
// caller's write transaction, ClaimBatch/MarkProcessed/Compact run from the
// dispatcher's own poller loop.
type OutboxStore struct {
	db *sqlx.DB
}

// NewOutboxStore creates an OutboxStore.
func NewOutboxStore(db *sqlx.DB) *OutboxStore {
	return &OutboxStore{db: db}
}

// Enqueue writes an outbox row using execer, so it is committed atomically
// with the domain row that produced it.
func (s *OutboxStore) Enqueue(ctx context.Context, execer sqlx.ExecerContext, aggregateID idgen.ID, eventType models.EventType, payload []byte) error {
	query := `
		INSERT INTO outbox (id, aggregate_id, event_type, payload)
		VALUES ($1, $2, $3, $4)
	`
	_, err := execer.ExecContext(ctx, query, idgen.Generate(), aggregateID, eventType, payload)
	if err != nil {
		return fmt.Errorf("enqueue outbox record: %w", err)
	}
	return nil
}

// ClaimBatch locks up to limit unprocessed rows using SELECT ... FOR UPDATE
// SKIP LOCKED so multiple dispatcher instances can drain the outbox
// concurrently without claiming the same rows, then returns them still
// uncommitted inside tx. The caller must publish the batch and call
// MarkProcessed (or roll back on failure) before the transaction ends.
func (s *OutboxStore) ClaimBatch(ctx context.Context, limit int) (*sqlx.Tx, []*models.OutboxRecord, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin tx: %w", err)
	}

	query := `
		SELECT id, aggregate_id, event_type, payload, created_at, processed_at
		FROM outbox
		WHERE processed_at IS NULL
		ORDER BY created_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`
	records := []*models.OutboxRecord{}
	if err := tx.SelectContext(ctx, &records, query, limit); err != nil {
		tx.Rollback()
		return nil, nil, fmt.Errorf("claim outbox batch: %w", err)
	}

	return tx, records, nil
}

// MarkProcessed marks the given ids processed within tx and commits it.
// Callers must have already successfully published every record in the
// batch before calling this.
func (s *OutboxStore) MarkProcessed(ctx context.Context, tx *sqlx.Tx, ids []idgen.ID) error {
	if len(ids) == 0 {
		return tx.Commit()
	}
	query := `UPDATE outbox SET processed_at = now() WHERE id = ANY($1)`
	if _, err := tx.ExecContext(ctx, query, idsToStrings(ids)); err != nil {
		tx.Rollback()
		return fmt.Errorf("mark outbox processed: %w", err)
	}
	return tx.Commit()
}

// Compact deletes processed rows older than olderThan, keeping the table
// from growing unboundedly once the dispatcher has drained it.
func (s *OutboxStore) Compact(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `DELETE FROM outbox WHERE processed_at IS NOT NULL AND processed_at < $1`
	res, err := s.db.ExecContext(ctx, query, time.Now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("compact outbox: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("compact outbox: %w", err)
	}
	return n, nil
}

// CountUnprocessed returns the number of outbox rows still awaiting dispatch,
// used by the demo stats endpoint.
func (s *OutboxStore) CountUnprocessed(ctx context.Context) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM outbox WHERE processed_at IS NULL")
	if err != nil {
		return 0, fmt.Errorf("count unprocessed outbox: %w", err)
	}
	return count, nil
}

// Truncate removes all outbox rows. Used by the demo-reset CLI command.
func (s *OutboxStore) Truncate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "TRUNCATE outbox")
	if err != nil {
		return fmt.Errorf("truncate outbox: %w", err)
	}
	return nil
}
