package materializer

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/dtambussi/fanout/internal/eventbus"
)

// RegisterHandlers subscribes every topic's handler onto router under one
// shared subscriber, one durable queue group per topic so several running
// materializer instances split the partitions without double-processing.
func RegisterHandlers(router *Router, subscriber message.Subscriber, m *Materializer) error {
	if router == nil || subscriber == nil || m == nil {
		return fmt.Errorf("materializer: router, subscriber, and materializer must all be non-nil")
	}

	router.RegisterHandler("materializer.post_created", eventbus.TopicPostCreated, subscriber, m.HandlePostCreated)
	router.RegisterHandler("materializer.user_followed", eventbus.TopicUserFollowed, subscriber, m.HandleUserFollowed)
	router.RegisterHandler("materializer.user_unfollowed", eventbus.TopicUserUnfollowed, subscriber, m.HandleUserUnfollowed)

	return nil
}
