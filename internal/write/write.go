// Package write implements the transactional write path: every operation
// writes its domain row and an outbox row in the same database transaction,
// so the event that downstream consumers react to can never be observed
// without the write it describes having committed (and vice versa).
package write

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/dtambussi/fanout/internal/apperr"
	"github.com/dtambussi/fanout/internal/idgen"
	"github.com/dtambussi/fanout/internal/models"
)

// MaxContentLength is the maximum number of Unicode code points a post's
// content may hold after trimming.
const MaxContentLength = models.MaxContentLength

// pqForeignKeyViolation is the Postgres SQLSTATE for a foreign key
// constraint failure.
const pqForeignKeyViolation = "23503"

// OutboxEnqueuer is the subset of repository.OutboxStore the write services
// depend on, narrowed so it can be faked in tests without a database.
type OutboxEnqueuer interface {
	Enqueue(ctx context.Context, execer sqlx.ExecerContext, aggregateID idgen.ID, eventType models.EventType, payload []byte) error
}

// PostCreator is the subset of repository.PostStore the write services
// depend on.
type PostCreator interface {
	Create(ctx context.Context, execer sqlx.QueryerContext, authorID idgen.ID, content string) (*models.Post, error)
}

// UserUpserter is the subset of repository.UserStore the write services
// depend on: upserting a placeholder for a not-yet-seen followee, and
// maintaining the cached follower/following counters.
type UserUpserter interface {
	EnsureExists(ctx context.Context, execer sqlx.ExtContext, id idgen.ID) error
	IncrementFollowerCount(ctx context.Context, execer sqlx.ExecerContext, userID idgen.ID, delta int) error
	IncrementFollowingCount(ctx context.Context, execer sqlx.ExecerContext, userID idgen.ID, delta int) error
}

// FollowStore is the subset of repository.FollowStore the write services
// depend on.
type FollowStore interface {
	Create(ctx context.Context, execer sqlx.ExecerContext, followerID, followeeID idgen.ID) (bool, error)
	Delete(ctx context.Context, execer sqlx.ExecerContext, followerID, followeeID idgen.ID) (bool, error)
}

// Services bundles the transactional write operations: CreatePost, Follow,
// Unfollow.
type Services struct {
	db      *sqlx.DB
	posts   PostCreator
	users   UserUpserter
	follows FollowStore
	outbox  OutboxEnqueuer
}

// New builds a Services.
func New(db *sqlx.DB, posts PostCreator, users UserUpserter, follows FollowStore, outbox OutboxEnqueuer) *Services {
	return &Services{db: db, posts: posts, users: users, follows: follows, outbox: outbox}
}

// CreatePost validates and stores a new post, enqueueing a POST_CREATED
// outbox record keyed by the author so the partitioned message log
// preserves per-author ordering.
func (s *Services) CreatePost(ctx context.Context, authorID idgen.ID, rawContent string) (*models.Post, error) {
	content, err := normalizeContent(rawContent)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback()

	post, err := s.posts.Create(ctx, tx, authorID, content)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, apperr.New(apperr.CodeUserNotFound, "author does not exist")
		}
		return nil, apperr.Internal(fmt.Errorf("create post: %w", err))
	}

	payload, err := json.Marshal(models.PostCreatedPayload{
		PostID:    post.ID,
		AuthorID:  post.AuthorID,
		Content:   post.Content,
		CreatedAt: post.CreatedAt,
	})
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("marshal post_created payload: %w", err))
	}

	if err := s.outbox.Enqueue(ctx, tx, post.AuthorID, models.EventPostCreated, payload); err != nil {
		return nil, apperr.Internal(fmt.Errorf("enqueue post_created: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.Internal(fmt.Errorf("commit create post: %w", err))
	}
	return post, nil
}

// Follow records followerID -> followeeID, rejecting self-follows and
// already-following pairs. The followee is upserted as a placeholder user
// row first: a user can receive a follow before they have ever posted or
// otherwise registered, so the followee might not exist yet.
func (s *Services) Follow(ctx context.Context, followerID, followeeID idgen.ID) error {
	if followerID == followeeID {
		return apperr.New(apperr.CodeSelfFollow, "cannot follow yourself")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperr.Internal(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback()

	if err := s.users.EnsureExists(ctx, tx, followeeID); err != nil {
		return apperr.Internal(fmt.Errorf("ensure followee exists: %w", err))
	}

	created, err := s.follows.Create(ctx, tx, followerID, followeeID)
	if err != nil {
		return apperr.Internal(fmt.Errorf("create follow: %w", err))
	}
	if !created {
		return apperr.New(apperr.CodeAlreadyFollowing, "already following this user")
	}

	if err := s.users.IncrementFollowerCount(ctx, tx, followeeID, 1); err != nil {
		return apperr.Internal(fmt.Errorf("increment follower count: %w", err))
	}
	if err := s.users.IncrementFollowingCount(ctx, tx, followerID, 1); err != nil {
		return apperr.Internal(fmt.Errorf("increment following count: %w", err))
	}

	payload, err := json.Marshal(models.UserFollowedPayload{FollowerID: followerID, FolloweeID: followeeID})
	if err != nil {
		return apperr.Internal(fmt.Errorf("marshal user_followed payload: %w", err))
	}
	if err := s.outbox.Enqueue(ctx, tx, followerID, models.EventUserFollowed, payload); err != nil {
		return apperr.Internal(fmt.Errorf("enqueue user_followed: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return apperr.Internal(fmt.Errorf("commit follow: %w", err))
	}
	return nil
}

// Unfollow removes followerID -> followeeID, rejecting pairs that were not
// following.
func (s *Services) Unfollow(ctx context.Context, followerID, followeeID idgen.ID) error {
	if followerID == followeeID {
		return apperr.New(apperr.CodeSelfFollow, "cannot unfollow yourself")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperr.Internal(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback()

	deleted, err := s.follows.Delete(ctx, tx, followerID, followeeID)
	if err != nil {
		return apperr.Internal(fmt.Errorf("delete follow: %w", err))
	}
	if !deleted {
		return apperr.New(apperr.CodeNotFollowing, "not following this user")
	}

	if err := s.users.IncrementFollowerCount(ctx, tx, followeeID, -1); err != nil {
		return apperr.Internal(fmt.Errorf("decrement follower count: %w", err))
	}
	if err := s.users.IncrementFollowingCount(ctx, tx, followerID, -1); err != nil {
		return apperr.Internal(fmt.Errorf("decrement following count: %w", err))
	}

	payload, err := json.Marshal(models.UserUnfollowedPayload{FollowerID: followerID, FolloweeID: followeeID})
	if err != nil {
		return apperr.Internal(fmt.Errorf("marshal user_unfollowed payload: %w", err))
	}
	if err := s.outbox.Enqueue(ctx, tx, followerID, models.EventUserUnfollowed, payload); err != nil {
		return apperr.Internal(fmt.Errorf("enqueue user_unfollowed: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return apperr.Internal(fmt.Errorf("commit unfollow: %w", err))
	}
	return nil
}

// normalizeContent trims rawContent and validates it against the post
// content rules: non-empty after trimming, at most MaxContentLength Unicode
// code points.
func normalizeContent(rawContent string) (string, error) {
	content := strings.TrimSpace(rawContent)
	if content == "" {
		return "", apperr.New(apperr.CodePostContentEmpty, "post content must not be empty")
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return "", apperr.New(apperr.CodePostContentTooLong, fmt.Sprintf("post content must not exceed %d characters", MaxContentLength))
	}
	return content, nil
}

// isForeignKeyViolation reports whether err is a Postgres foreign key
// constraint failure.
func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqForeignKeyViolation
	}
	return false
}
