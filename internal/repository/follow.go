package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/dtambussi/fanout/internal/idgen"
	"github.com/dtambussi/fanout/internal/models"
)

// FollowStore handles follow-related database operations.
type FollowStore struct {
	db *sqlx.DB
}

// NewFollowStore creates a FollowStore.
func NewFollowStore(db *sqlx.DB) *FollowStore {
	return &FollowStore{db: db}
}

// Create inserts a follow edge using execer, so it can run inside the same
// transaction as an outbox enqueue. Returns false without error if the edge
// already existed.
func (s *FollowStore) Create(ctx context.Context, execer sqlx.ExecerContext, followerID, followeeID idgen.ID) (bool, error) {
	query := `INSERT INTO follows (follower_id, followee_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	res, err := execer.ExecContext(ctx, query, followerID, followeeID)
	if err != nil {
		return false, fmt.Errorf("create follow: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("create follow: %w", err)
	}
	return n > 0, nil
}

// Delete removes a follow edge. Returns false without error if it did not exist.
func (s *FollowStore) Delete(ctx context.Context, execer sqlx.ExecerContext, followerID, followeeID idgen.ID) (bool, error) {
	query := `DELETE FROM follows WHERE follower_id = $1 AND followee_id = $2`
	res, err := execer.ExecContext(ctx, query, followerID, followeeID)
	if err != nil {
		return false, fmt.Errorf("delete follow: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete follow: %w", err)
	}
	return n > 0, nil
}

// GetFollowers returns all follower ids of userID.
func (s *FollowStore) GetFollowers(ctx context.Context, userID idgen.ID) ([]idgen.ID, error) {
	query := `SELECT follower_id FROM follows WHERE followee_id = $1`
	var followers []idgen.ID
	if err := s.db.SelectContext(ctx, &followers, query, userID); err != nil {
		return nil, fmt.Errorf("get followers: %w", err)
	}
	return followers, nil
}

// GetFollowersPage returns follow edges with userID as followee, ordered
// most-recently followed first, optionally continuing from a cursor
// timestamp. Unlike GetFollowers (which the materializer uses to fan a post
// out to every follower at once), this carries each edge's CreatedAt so the
// API layer can build the next ISO-8601 cursor, backing the paginated HTTP
// followers listing.
func (s *FollowStore) GetFollowersPage(ctx context.Context, userID idgen.ID, before *time.Time, limit int) ([]models.Follow, error) {
	var (
		followers []models.Follow
		err       error
	)
	if before == nil {
		query := `SELECT follower_id, followee_id, created_at FROM follows WHERE followee_id = $1 ORDER BY created_at DESC LIMIT $2`
		err = s.db.SelectContext(ctx, &followers, query, userID, limit)
	} else {
		query := `SELECT follower_id, followee_id, created_at FROM follows WHERE followee_id = $1 AND created_at < $2 ORDER BY created_at DESC LIMIT $3`
		err = s.db.SelectContext(ctx, &followers, query, userID, *before, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("get followers page: %w", err)
	}
	return followers, nil
}

// GetFollowing returns follow edges with userID as follower, ordered
// most-recently followed first, optionally continuing from a cursor
// timestamp (the ISO-8601 instant encoded by the API layer's follow
// cursor).
func (s *FollowStore) GetFollowing(ctx context.Context, userID idgen.ID, before *time.Time, limit int) ([]models.Follow, error) {
	var (
		following []models.Follow
		err       error
	)
	if before == nil {
		query := `SELECT follower_id, followee_id, created_at FROM follows WHERE follower_id = $1 ORDER BY created_at DESC LIMIT $2`
		err = s.db.SelectContext(ctx, &following, query, userID, limit)
	} else {
		query := `SELECT follower_id, followee_id, created_at FROM follows WHERE follower_id = $1 AND created_at < $2 ORDER BY created_at DESC LIMIT $3`
		err = s.db.SelectContext(ctx, &following, query, userID, *before, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("get following: %w", err)
	}
	return following, nil
}

// GetFollowingCelebrities returns users userID follows whose follower_count
// strictly exceeds threshold.
func (s *FollowStore) GetFollowingCelebrities(ctx context.Context, userID idgen.ID, threshold int) ([]*models.User, error) {
	query := `
		SELECT u.id, u.username, u.follower_count, u.following_count, u.created_at
		FROM users u
		JOIN follows f ON u.id = f.followee_id
		WHERE f.follower_id = $1 AND u.follower_count > $2
	`
	users := []*models.User{}
	if err := s.db.SelectContext(ctx, &users, query, userID, threshold); err != nil {
		return nil, fmt.Errorf("get following celebrities: %w", err)
	}
	return users, nil
}

// Count returns the total number of follow relationships.
func (s *FollowStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM follows"); err != nil {
		return 0, fmt.Errorf("count follows: %w", err)
	}
	return count, nil
}

// BulkCreate inserts many follow edges in one statement. Used by the seed CLI.
func (s *FollowStore) BulkCreate(ctx context.Context, followerIDs, followeeIDs []idgen.ID) error {
	if len(followerIDs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, "INSERT INTO follows (follower_id, followee_id) VALUES ($1, $2) ON CONFLICT DO NOTHING")
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for i := range followerIDs {
		if followerIDs[i] == followeeIDs[i] {
			continue
		}
		if _, err := stmt.ExecContext(ctx, followerIDs[i], followeeIDs[i]); err != nil {
			return fmt.Errorf("insert follow: %w", err)
		}
	}
	return tx.Commit()
}

// Truncate removes all follows. Used by the demo-reset CLI command.
func (s *FollowStore) Truncate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "TRUNCATE follows CASCADE")
	if err != nil {
		return fmt.Errorf("truncate follows: %w", err)
	}
	return nil
}
