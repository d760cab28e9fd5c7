// Package models holds the domain types shared across the write, outbox,
// materializer, and read paths.
package models

import (
	"time"

	"github.com/dtambussi/fanout/internal/idgen"
)

// MaxContentLength is the maximum number of runes a post's content may hold.
const MaxContentLength = 280

// User is a registered account.
type User struct {
	ID             idgen.ID  `json:"id" db:"id"`
	Username       string    `json:"username" db:"username"`
	FollowerCount  int       `json:"follower_count" db:"follower_count"`
	FollowingCount int       `json:"following_count" db:"following_count"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// IsCelebrity reports whether the user's follower count strictly exceeds
// threshold, the cutoff at which the materializer switches from
// fan-out-on-write to fan-out-on-read for that author.
func (u *User) IsCelebrity(threshold int) bool {
	return u.FollowerCount > threshold
}

// Post is a single authored post.
type Post struct {
	ID        idgen.ID  `json:"id" db:"id"`
	AuthorID  idgen.ID  `json:"author_id" db:"author_id"`
	Content   string    `json:"content" db:"content"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// AuthorUsername is populated by joined queries, never persisted.
	AuthorUsername string `json:"author_username,omitempty" db:"author_username"`
}

// Follow is a directed follower -> followee edge.
type Follow struct {
	FollowerID idgen.ID  `json:"follower_id" db:"follower_id"`
	FolloweeID idgen.ID  `json:"followee_id" db:"followee_id"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// EventType names the kinds of domain events that flow through the outbox
// and the message log.
type EventType string

const (
	EventPostCreated    EventType = "POST_CREATED"
	EventUserFollowed   EventType = "USER_FOLLOWED"
	EventUserUnfollowed EventType = "USER_UNFOLLOWED"
)

// OutboxRecord is a domain event captured in the same transaction as the
// write that produced it, waiting to be claimed and published by the
// dispatcher.
type OutboxRecord struct {
	ID          idgen.ID   `json:"id" db:"id"`
	AggregateID idgen.ID   `json:"aggregate_id" db:"aggregate_id"`
	EventType   EventType  `json:"event_type" db:"event_type"`
	Payload     []byte     `json:"payload" db:"payload"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty" db:"processed_at"`
}

// PostCreatedPayload is the JSON body of an EventPostCreated outbox record.
type PostCreatedPayload struct {
	PostID    idgen.ID  `json:"postId"`
	AuthorID  idgen.ID  `json:"authorId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// UserFollowedPayload is the JSON body of an EventUserFollowed outbox record.
type UserFollowedPayload struct {
	FollowerID idgen.ID `json:"followerId"`
	FolloweeID idgen.ID `json:"followeeId"`
}

// UserUnfollowedPayload is the JSON body of an EventUserUnfollowed outbox
// record.
type UserUnfollowedPayload struct {
	FollowerID idgen.ID `json:"followerId"`
	FolloweeID idgen.ID `json:"followeeId"`
}

// TimelineEntry is one row of a materialized or merged timeline result.
type TimelineEntry struct {
	Post     Post   `json:"post"`
	SourceID string `json:"-"` // "fanout" or "celebrity", for debugging only
}
