package eventbus

import (
	"fmt"
	"hash/fnv"

	"github.com/dtambussi/fanout/internal/idgen"
)

// Topic names the subject family for one domain event type.
type Topic string

const (
	TopicPostCreated    Topic = "outbox.post_created"
	TopicUserFollowed   Topic = "outbox.user_followed"
	TopicUserUnfollowed Topic = "outbox.user_unfollowed"
)

// NumPartitions is the number of independent, sequentially-consumed
// partitions each topic is split across. One queue subscriber per
// partition gives N-way concurrency while keeping every aggregate's
// events in a single, strictly ordered partition.
const NumPartitions = 8

// PartitionOf deterministically maps an aggregate id to a partition index
// in [0, NumPartitions), so all events for that aggregate always land on
// the same partition and are therefore delivered in order relative to
// each other.
func PartitionOf(aggregateID idgen.ID) int {
	h := fnv.New32a()
	h.Write(aggregateID.Bytes())
	return int(h.Sum32() % NumPartitions)
}

// Subject returns the concrete NATS subject for a topic and partition,
// e.g. "outbox.post_created.3".
func Subject(topic Topic, partition int) string {
	return fmt.Sprintf("%s.%d", topic, partition)
}

// SubjectWildcard returns the wildcard subject matching every partition of
// a topic, used when provisioning the JetStream stream.
func SubjectWildcard(topic Topic) string {
	return fmt.Sprintf("%s.*", topic)
}

// AllTopics lists every topic family the stream must accept.
func AllTopics() []Topic {
	return []Topic{TopicPostCreated, TopicUserFollowed, TopicUserUnfollowed}
}
