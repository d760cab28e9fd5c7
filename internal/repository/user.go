package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/dtambussi/fanout/internal/idgen"
	"github.com/dtambussi/fanout/internal/models"
)

// ErrNotFound is returned by lookups that find no matching row.
var ErrNotFound = errors.New("repository: not found")

// UserStore handles user-related database operations.
type UserStore struct {
	db *sqlx.DB
}

// NewUserStore creates a UserStore.
func NewUserStore(db *sqlx.DB) *UserStore {
	return &UserStore{db: db}
}

// Create inserts a new user and returns the stored row.
func (s *UserStore) Create(ctx context.Context, username string) (*models.User, error) {
	query := `
		INSERT INTO users (id, username)
		VALUES ($1, $2)
		RETURNING id, username, follower_count, following_count, created_at
	`
	user := &models.User{}
	err := s.db.QueryRowxContext(ctx, query, idgen.Generate(), username).StructScan(user)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// GetByID retrieves a user by id.
func (s *UserStore) GetByID(ctx context.Context, id idgen.ID) (*models.User, error) {
	query := `SELECT id, username, follower_count, following_count, created_at FROM users WHERE id = $1`
	user := &models.User{}
	if err := s.db.GetContext(ctx, user, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	return user, nil
}

// EnsureExists upserts a placeholder user row for id if one does not
// already exist, with a generated username. Used by the follow write path:
// a user can be followed before they have ever posted or registered, so the
// followee row may not exist yet.
func (s *UserStore) EnsureExists(ctx context.Context, execer sqlx.ExtContext, id idgen.ID) error {
	query := `
		INSERT INTO users (id, username)
		VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := execer.ExecContext(ctx, query, id, placeholderUsername(id))
	if err != nil {
		return fmt.Errorf("ensure user exists %s: %w", id, err)
	}
	return nil
}

// placeholderUsername derives a stable, collision-free username for a user
// row created on someone else's behalf, so it never collides with a
// genuinely registered username.
func placeholderUsername(id idgen.ID) string {
	return "user_" + id.String()
}

// GetByUsername retrieves a user by username.
func (s *UserStore) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `SELECT id, username, follower_count, following_count, created_at FROM users WHERE username = $1`
	user := &models.User{}
	if err := s.db.GetContext(ctx, user, query, username); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user %s: %w", username, err)
	}
	return user, nil
}

// GetAll retrieves all users with pagination, ordered by id (= creation order).
func (s *UserStore) GetAll(ctx context.Context, limit, offset int) ([]*models.User, error) {
	query := `SELECT id, username, follower_count, following_count, created_at FROM users ORDER BY id LIMIT $1 OFFSET $2`
	users := []*models.User{}
	if err := s.db.SelectContext(ctx, &users, query, limit, offset); err != nil {
		return nil, fmt.Errorf("get users: %w", err)
	}
	return users, nil
}

// GetCelebrities retrieves users whose follower count strictly exceeds threshold.
func (s *UserStore) GetCelebrities(ctx context.Context, threshold int) ([]*models.User, error) {
	query := `
		SELECT id, username, follower_count, following_count, created_at
		FROM users
		WHERE follower_count > $1
		ORDER BY follower_count DESC
	`
	users := []*models.User{}
	if err := s.db.SelectContext(ctx, &users, query, threshold); err != nil {
		return nil, fmt.Errorf("get celebrities: %w", err)
	}
	return users, nil
}

// Count returns the total number of users.
func (s *UserStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM users"); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}

// CountCelebrities returns the number of celebrities.
func (s *UserStore) CountCelebrities(ctx context.Context, threshold int) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM users WHERE follower_count > $1", threshold); err != nil {
		return 0, fmt.Errorf("count celebrities: %w", err)
	}
	return count, nil
}

// BulkCreate creates multiple users within a single transaction, skipping
// usernames that already exist. Used by the seed CLI.
func (s *UserStore) BulkCreate(ctx context.Context, usernames []string) error {
	if len(usernames) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, "INSERT INTO users (id, username) VALUES ($1, $2) ON CONFLICT (username) DO NOTHING")
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, username := range usernames {
		if _, err := stmt.ExecContext(ctx, idgen.Generate(), username); err != nil {
			return fmt.Errorf("insert user %s: %w", username, err)
		}
	}

	return tx.Commit()
}

// IncrementFollowerCount adjusts a user's cached follower_count by delta.
func (s *UserStore) IncrementFollowerCount(ctx context.Context, execer sqlx.ExecerContext, userID idgen.ID, delta int) error {
	_, err := execer.ExecContext(ctx, "UPDATE users SET follower_count = follower_count + $1 WHERE id = $2", delta, userID)
	if err != nil {
		return fmt.Errorf("update follower count: %w", err)
	}
	return nil
}

// IncrementFollowingCount adjusts a user's cached following_count by delta.
func (s *UserStore) IncrementFollowingCount(ctx context.Context, execer sqlx.ExecerContext, userID idgen.ID, delta int) error {
	_, err := execer.ExecContext(ctx, "UPDATE users SET following_count = following_count + $1 WHERE id = $2", delta, userID)
	if err != nil {
		return fmt.Errorf("update following count: %w", err)
	}
	return nil
}

// Truncate removes all users. Used by the demo-reset CLI command.
func (s *UserStore) Truncate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "TRUNCATE users CASCADE")
	if err != nil {
		return fmt.Errorf("truncate users: %w", err)
	}
	return nil
}
