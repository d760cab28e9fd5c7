package eventbus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// StreamConfig describes the JetStream stream backing the message log.
type StreamConfig struct {
	Name            string
	MaxAge          time.Duration
	DuplicateWindow time.Duration
}

// DefaultStreamConfig returns sane defaults for a single-node deployment.
func DefaultStreamConfig(name string) StreamConfig {
	return StreamConfig{
		Name:            name,
		MaxAge:          7 * 24 * time.Hour,
		DuplicateWindow: 2 * time.Minute,
	}
}

// EnsureStream idempotently creates or updates the stream covering every
// partitioned subject of every topic. Safe to call on every startup.
func EnsureStream(ctx context.Context, js jetstream.JetStream, cfg StreamConfig) (jetstream.Stream, error) {
	subjects := make([]string, 0, len(AllTopics()))
	for _, topic := range AllTopics() {
		subjects = append(subjects, SubjectWildcard(topic))
	}

	streamCfg := jetstream.StreamConfig{
		Name:        cfg.Name,
		Subjects:    subjects,
		Retention:   jetstream.LimitsPolicy,
		Storage:     jetstream.FileStorage,
		MaxAge:      cfg.MaxAge,
		Duplicates:  cfg.DuplicateWindow,
		AllowDirect: true,
		Discard:     jetstream.DiscardOld,
		AllowRollup: true,
	}

	_, err := js.Stream(ctx, cfg.Name)
	if err == nil {
		stream, err := js.UpdateStream(ctx, streamCfg)
		if err != nil {
			return nil, fmt.Errorf("update stream %s: %w", cfg.Name, err)
		}
		return stream, nil
	}

	if errors.Is(err, jetstream.ErrStreamNotFound) {
		stream, err := js.CreateStream(ctx, streamCfg)
		if err != nil {
			return nil, fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
		return stream, nil
	}

	return nil, fmt.Errorf("check stream %s: %w", cfg.Name, err)
}
