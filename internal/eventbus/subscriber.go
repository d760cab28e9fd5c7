package eventbus

import (
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmnats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	natsgo "github.com/nats-io/nats.go"
)

// SubscriberConfig configures a durable JetStream queue subscription. One
// queue group per consumer group name lets several processes share a
// partition's work while still reading at most once per message.
type SubscriberConfig struct {
	URL           string
	QueueGroup    string
	DurablePrefix string
}

// NewSubscriber dials the message log for consumption.
func NewSubscriber(cfg SubscriberConfig, logger watermill.LoggerAdapter) (*wmnats.Subscriber, error) {
	if logger == nil {
		logger = watermill.NewStdLogger(false, false)
	}

	wmCfg := wmnats.SubscriberConfig{
		URL:              cfg.URL,
		QueueGroupPrefix: cfg.QueueGroup,
		DurablePrefix:    cfg.DurablePrefix,
		SubscribersCount: 1,
		AckWaitTimeout:   30 * time.Second,
		NatsOptions: []natsgo.Option{
			natsgo.RetryOnFailedConnect(true),
		},
		Unmarshaler: &wmnats.NATSMarshaler{},
		JetStream: wmnats.JetStreamConfig{
			Disabled:      false,
			AutoProvision: false,
		},
	}

	sub, err := wmnats.NewSubscriber(wmCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill nats subscriber: %w", err)
	}
	return sub, nil
}
