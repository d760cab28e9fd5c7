// Package outbox drains the transactional outbox table and republishes each
// captured domain event onto the partitioned message log.
package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/jmoiron/sqlx"

	"github.com/dtambussi/fanout/internal/eventbus"
	"github.com/dtambussi/fanout/internal/idgen"
	"github.com/dtambussi/fanout/internal/logging"
	"github.com/dtambussi/fanout/internal/models"
)

// Store is the subset of repository.OutboxStore the dispatcher depends on,
// narrowed so the poll loop can be tested against a fake.
type Store interface {
	ClaimBatch(ctx context.Context, limit int) (*sqlx.Tx, []*models.OutboxRecord, error)
	MarkProcessed(ctx context.Context, tx *sqlx.Tx, ids []idgen.ID) error
	Compact(ctx context.Context, olderThan time.Duration) (int64, error)
}

// EventPublisher is the subset of eventbus.Publisher the dispatcher depends
// on.
type EventPublisher interface {
	Publish(subject string, msg *message.Message) error
}

// DispatcherConfig tunes the poll and compaction cadence.
type DispatcherConfig struct {
	PollInterval     time.Duration
	BatchSize        int
	CompactInterval  time.Duration
	CompactRetention time.Duration
}

// DefaultDispatcherConfig polls every second in batches of 100, and compacts
// processed rows older than 24h once an hour.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		PollInterval:     time.Second,
		BatchSize:        100,
		CompactInterval:  time.Hour,
		CompactRetention: 24 * time.Hour,
	}
}

var eventTopics = map[models.EventType]eventbus.Topic{
	models.EventPostCreated:    eventbus.TopicPostCreated,
	models.EventUserFollowed:   eventbus.TopicUserFollowed,
	models.EventUserUnfollowed: eventbus.TopicUserUnfollowed,
}

// Dispatcher polls the outbox table and republishes unprocessed rows onto
// the message log, in order, at least once.
type Dispatcher struct {
	store     Store
	publisher EventPublisher
	cfg       DispatcherConfig
}

// NewDispatcher builds a Dispatcher.
func NewDispatcher(store Store, publisher EventPublisher, cfg DispatcherConfig) *Dispatcher {
	return &Dispatcher{store: store, publisher: publisher, cfg: cfg}
}

// Run polls and compacts the outbox on their respective tickers until ctx is
// cancelled. Intended to be run in its own goroutine.
func (d *Dispatcher) Run(ctx context.Context) {
	pollTicker := time.NewTicker(d.cfg.PollInterval)
	defer pollTicker.Stop()
	compactTicker := time.NewTicker(d.cfg.CompactInterval)
	defer compactTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pollTicker.C:
			if err := d.drainOnce(ctx); err != nil {
				logging.L().Error().Err(err).Msg("outbox drain failed")
			}
		case <-compactTicker.C:
			n, err := d.store.Compact(ctx, d.cfg.CompactRetention)
			if err != nil {
				logging.L().Error().Err(err).Msg("outbox compact failed")
				continue
			}
			if n > 0 {
				logging.L().Info().Int64("rows", n).Msg("outbox compacted")
			}
		}
	}
}

// drainOnce claims one batch, publishes every record, and marks the batch
// processed. A publish failure aborts the whole batch by rolling back the
// claiming transaction, so the rows are re-claimed and retried on the next
// tick — at-least-once delivery, never at-most-once.
func (d *Dispatcher) drainOnce(ctx context.Context) error {
	tx, records, err := d.store.ClaimBatch(ctx, d.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("claim batch: %w", err)
	}
	if len(records) == 0 {
		return tx.Commit()
	}

	processed := make([]idgen.ID, 0, len(records))
	for _, record := range records {
		if err := d.publish(record); err != nil {
			tx.Rollback()
			return fmt.Errorf("publish record %s: %w", record.ID, err)
		}
		processed = append(processed, record.ID)
	}

	if err := d.store.MarkProcessed(ctx, tx, processed); err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	logging.L().Debug().Int("count", len(processed)).Msg("outbox batch dispatched")
	return nil
}

func (d *Dispatcher) publish(record *models.OutboxRecord) error {
	subject, err := subjectFor(record)
	if err != nil {
		return err
	}

	msg := message.NewMessage(record.ID.String(), record.Payload)
	msg.Metadata.Set("event_type", string(record.EventType))
	msg.Metadata.Set("aggregate_id", record.AggregateID.String())
	msg.Metadata.Set("outbox_id", record.ID.String())

	return d.publisher.Publish(subject, msg)
}

// subjectFor derives the partitioned NATS subject a record must be
// published to, keeping every event for the same aggregate on the same
// partition and therefore in order.
func subjectFor(record *models.OutboxRecord) (string, error) {
	topic, ok := eventTopics[record.EventType]
	if !ok {
		return "", fmt.Errorf("unknown event type %q", record.EventType)
	}
	partition := eventbus.PartitionOf(record.AggregateID)
	return eventbus.Subject(topic, partition), nil
}
