// Package materializer consumes domain events off the message log and
// applies the hybrid fan-out policy to the Redis timeline cache: regular
// authors are fanned out on write, celebrity authors are recorded for
// fan-out-on-read, and follow/unfollow edges trigger backfill/purge of the
// follower's own cached timeline.
package materializer

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	"github.com/dtambussi/fanout/internal/eventbus"
)

// RouterConfig tunes the watermill router.
type RouterConfig struct {
	CloseTimeout time.Duration
}

// DefaultRouterConfig returns production defaults.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{CloseTimeout: 15 * time.Second}
}

// Router wraps a watermill Router pre-configured with panic recovery, and
// registers one consumer handler per partition of every event topic.
// Handlers never return an error here: a failed event is logged and the
// message acked anyway (there is no dead-letter topic), so a bad event
// never blocks its partition. Recoverer exists purely to keep an
// unexpected panic from taking the whole router down.
type Router struct {
	router *message.Router
	logger watermill.LoggerAdapter
}

// NewRouter builds a Router. Pass nil for logger to use watermill's stdlib
// logger.
func NewRouter(cfg RouterConfig, logger watermill.LoggerAdapter) (*Router, error) {
	if logger == nil {
		logger = watermill.NewStdLogger(false, false)
	}

	wmRouter, err := message.NewRouter(message.RouterConfig{CloseTimeout: cfg.CloseTimeout}, logger)
	if err != nil {
		return nil, fmt.Errorf("create materializer router: %w", err)
	}

	wmRouter.AddMiddleware(middleware.Recoverer)

	return &Router{router: wmRouter, logger: logger}, nil
}

// RegisterHandler subscribes handler to every partition subject of topic
// under a named, durable queue group, so N running materializer instances
// share the partitions without double-processing any one of them.
func (r *Router) RegisterHandler(name string, topic eventbus.Topic, subscriber message.Subscriber, handler message.NoPublishHandlerFunc) {
	for partition := 0; partition < eventbus.NumPartitions; partition++ {
		subject := eventbus.Subject(topic, partition)
		handlerName := fmt.Sprintf("%s.%d", name, partition)
		r.router.AddConsumerHandler(handlerName, subject, subscriber, handler)
	}
}

// Run blocks processing messages until ctx is cancelled or Close is called.
func (r *Router) Run(ctx context.Context) error {
	return r.router.Run(ctx)
}

// Running returns a channel that closes once the router has started
// processing messages.
func (r *Router) Running() <-chan struct{} {
	return r.router.Running()
}

// Close gracefully stops the router, waiting up to CloseTimeout for
// in-flight handlers to finish.
func (r *Router) Close() error {
	return r.router.Close()
}
