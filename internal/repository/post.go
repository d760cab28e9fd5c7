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

// PostStore handles post-related database operations.
type PostStore struct {
	db *sqlx.DB
}

// NewPostStore creates a PostStore.
func NewPostStore(db *sqlx.DB) *PostStore {
	return &PostStore{db: db}
}

// Create inserts a post using execer, so callers can run it inside the same
// transaction as an outbox enqueue (internal/write relies on this).
func (s *PostStore) Create(ctx context.Context, execer sqlx.QueryerContext, authorID idgen.ID, content string) (*models.Post, error) {
	query := `
		INSERT INTO posts (id, author_id, content)
		VALUES ($1, $2, $3)
		RETURNING id, author_id, content, created_at
	`
	post := &models.Post{}
	row := sqlx.QueryRowxContext(ctx, execer, query, idgen.Generate(), authorID, content)
	if err := row.StructScan(post); err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	return post, nil
}

// GetByID retrieves a post by id.
func (s *PostStore) GetByID(ctx context.Context, id idgen.ID) (*models.Post, error) {
	query := `
		SELECT p.id, p.author_id, p.content, p.created_at, u.username AS author_username
		FROM posts p
		JOIN users u ON p.author_id = u.id
		WHERE p.id = $1
	`
	post := &models.Post{}
	if err := s.db.GetContext(ctx, post, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get post %s: %w", id, err)
	}
	return post, nil
}

// GetByIDs retrieves multiple posts, most recent first.
func (s *PostStore) GetByIDs(ctx context.Context, ids []idgen.ID) ([]*models.Post, error) {
	if len(ids) == 0 {
		return []*models.Post{}, nil
	}
	query := `
		SELECT p.id, p.author_id, p.content, p.created_at, u.username AS author_username
		FROM posts p
		JOIN users u ON p.author_id = u.id
		WHERE p.id = ANY($1)
		ORDER BY p.id DESC
	`
	posts := []*models.Post{}
	if err := s.db.SelectContext(ctx, &posts, query, idsToStrings(ids)); err != nil {
		return nil, fmt.Errorf("get posts: %w", err)
	}
	return posts, nil
}

// GetByAuthor retrieves a single author's posts, most recent first, optionally
// before a cursor id (strict-descending pagination).
func (s *PostStore) GetByAuthor(ctx context.Context, authorID idgen.ID, beforeID *idgen.ID, limit int) ([]*models.Post, error) {
	var (
		posts []*models.Post
		err   error
	)
	if beforeID == nil {
		query := `
			SELECT p.id, p.author_id, p.content, p.created_at, u.username AS author_username
			FROM posts p
			JOIN users u ON p.author_id = u.id
			WHERE p.author_id = $1
			ORDER BY p.id DESC
			LIMIT $2
		`
		err = s.db.SelectContext(ctx, &posts, query, authorID, limit)
	} else {
		query := `
			SELECT p.id, p.author_id, p.content, p.created_at, u.username AS author_username
			FROM posts p
			JOIN users u ON p.author_id = u.id
			WHERE p.author_id = $1 AND p.id < $2
			ORDER BY p.id DESC
			LIMIT $3
		`
		err = s.db.SelectContext(ctx, &posts, query, authorID, *beforeID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("get posts by author: %w", err)
	}
	return posts, nil
}

// GetRecentByAuthors retrieves the most recent posts across many authors,
// capped at perAuthorLimit per author via a lateral join, then truncated
// overall to totalLimit. This backs the celebrity fan-out-on-read path.
func (s *PostStore) GetRecentByAuthors(ctx context.Context, authorIDs []idgen.ID, perAuthorLimit, totalLimit int) ([]*models.Post, error) {
	if len(authorIDs) == 0 {
		return []*models.Post{}, nil
	}
	query := `
		SELECT p.id, p.author_id, p.content, p.created_at, u.username AS author_username
		FROM unnest($1::varchar[]) AS author(id)
		CROSS JOIN LATERAL (
			SELECT id, author_id, content, created_at
			FROM posts
			WHERE author_id = author.id
			ORDER BY id DESC
			LIMIT $2
		) p
		JOIN users u ON p.author_id = u.id
		ORDER BY p.id DESC
		LIMIT $3
	`
	posts := []*models.Post{}
	if err := s.db.SelectContext(ctx, &posts, query, idsToStrings(authorIDs), perAuthorLimit, totalLimit); err != nil {
		return nil, fmt.Errorf("get recent posts by authors: %w", err)
	}
	return posts, nil
}

// Count returns the total number of posts.
func (s *PostStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM posts"); err != nil {
		return 0, fmt.Errorf("count posts: %w", err)
	}
	return count, nil
}

// BulkCreate inserts many posts in one statement. Used by the seed CLI.
func (s *PostStore) BulkCreate(ctx context.Context, authorIDs []idgen.ID, contents []string) error {
	if len(authorIDs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, "INSERT INTO posts (id, author_id, content) VALUES ($1, $2, $3)")
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for i := range authorIDs {
		if _, err := stmt.ExecContext(ctx, idgen.Generate(), authorIDs[i], contents[i]); err != nil {
			return fmt.Errorf("insert post: %w", err)
		}
	}
	return tx.Commit()
}

// Truncate removes all posts. Used by the demo-reset CLI command.
func (s *PostStore) Truncate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "TRUNCATE posts CASCADE")
	if err != nil {
		return fmt.Errorf("truncate posts: %w", err)
	}
	return nil
}

func idsToStrings(ids []idgen.ID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
