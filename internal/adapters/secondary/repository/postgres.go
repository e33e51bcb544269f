package repository

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jupiterclapton/cenackle/services/post-feed/internal/core/domain"
	"github.com/jupiterclapton/cenackle/services/post-feed/internal/core/ports"
)

//go:embed schema.sql
var schema string

const postColumns = `id, title, content, creator_id, image_url, image_asset_id, image_public_id, created_at, updated_at`

type PostgresRepo struct {
	db *pgxpool.Pool
}

func NewPostgresRepo(db *pgxpool.Pool) *PostgresRepo {
	return &PostgresRepo{db: db}
}

var _ ports.PostRepository = (*PostgresRepo)(nil)

// Migrate crée les tables si besoin (idempotent).
func (r *PostgresRepo) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("db: migrate: %w", err)
	}
	return nil
}

// Create : l'ID est généré ici, les timestamps par Postgres.
func (r *PostgresRepo) Create(ctx context.Context, np *domain.NewPost) (*domain.Post, error) {
	q := `
		INSERT INTO posts (id, title, content, creator_id, image_url, image_asset_id, image_public_id)
		VALUES (@id, @title, @content, @creator_id, @image_url, @image_asset_id, @image_public_id)
		RETURNING ` + postColumns

	args := pgx.NamedArgs{
		"id":              uuid.NewString(),
		"title":           np.Title,
		"content":         np.Content,
		"creator_id":      np.CreatorID,
		"image_url":       np.Image.URL,
		"image_asset_id":  np.Image.AssetID,
		"image_public_id": np.Image.PublicID,
	}

	post, err := scanPost(r.db.QueryRow(ctx, q, args))
	if err != nil {
		return nil, r.handleError(err)
	}
	return post, nil
}

func (r *PostgresRepo) FindByID(ctx context.Context, postID string) (*domain.Post, error) {
	q := `SELECT ` + postColumns + ` FROM posts WHERE id = $1`

	post, err := scanPost(r.db.QueryRow(ctx, q, postID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("db: find post: %w", err)
	}
	return post, nil
}

// Update : last-write-wins sur title/content. Les colonnes image ne sont
// écrites que pour un swap, et seulement si le post pointe encore vers
// l'image lue avant l'upload.
func (r *PostgresRepo) Update(ctx context.Context, u domain.PostUpdate) (*domain.Post, error) {
	args := pgx.NamedArgs{
		"id":      u.ID,
		"title":   u.Title,
		"content": u.Content,
	}

	q := `
		UPDATE posts
		SET title = @title, content = @content, updated_at = now()
		WHERE id = @id
		RETURNING ` + postColumns

	if u.Image != nil {
		q = `
		UPDATE posts
		SET title = @title, content = @content,
		    image_url = @image_url, image_asset_id = @image_asset_id, image_public_id = @image_public_id,
		    updated_at = now()
		WHERE id = @id AND image_public_id = @previous_public_id
		RETURNING ` + postColumns
		args["image_url"] = u.Image.URL
		args["image_asset_id"] = u.Image.AssetID
		args["image_public_id"] = u.Image.PublicID
		args["previous_public_id"] = u.PreviousPublicID
	}

	updated, err := scanPost(r.db.QueryRow(ctx, q, args))
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, r.handleError(err)
	}
	if u.Image == nil {
		return nil, domain.ErrNotFound
	}

	// Swap refusé : post supprimé entre-temps, ou image déjà remplacée.
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM posts WHERE id = $1)`, u.ID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("db: post lookup: %w", err)
	}
	if !exists {
		return nil, domain.ErrNotFound
	}
	return nil, domain.ErrConflict
}

func (r *PostgresRepo) Delete(ctx context.Context, postID string) error {
	tag, err := r.db.Exec(ctx, "DELETE FROM posts WHERE id = $1", postID)
	if err != nil {
		return fmt.Errorf("db: delete post: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) List(ctx context.Context, offset, limit int) ([]*domain.Post, error) {
	q := `
		SELECT ` + postColumns + `
		FROM posts
		ORDER BY created_at DESC, id DESC
		OFFSET $1 LIMIT $2
	`
	rows, err := r.db.Query(ctx, q, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("db: list posts: %w", err)
	}
	defer rows.Close()

	posts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.Post, error) {
		return scanPost(row)
	})
	if err != nil {
		return nil, fmt.Errorf("db: scan posts: %w", err)
	}
	return posts, nil
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM posts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("db: count posts: %w", err)
	}
	return n, nil
}

func (r *PostgresRepo) ExistsByImagePublicID(ctx context.Context, publicID string) (bool, error) {
	var exists bool
	q := `SELECT EXISTS (SELECT 1 FROM posts WHERE image_public_id = $1)`
	if err := r.db.QueryRow(ctx, q, publicID).Scan(&exists); err != nil {
		return false, fmt.Errorf("db: image lookup: %w", err)
	}
	return exists, nil
}

// --- HELPERS ---

func scanPost(row pgx.Row) (*domain.Post, error) {
	var p domain.Post
	err := row.Scan(
		&p.ID, &p.Title, &p.Content, &p.CreatorID,
		&p.Image.URL, &p.Image.AssetID, &p.Image.PublicID,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// handleError traduit les codes PostgreSQL en erreurs du domaine.
func (r *PostgresRepo) handleError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation : image déjà référencée par un autre post
			return domain.Invalid("Image is already used by another post")
		case "23503": // foreign_key_violation : créateur inconnu
			return domain.ErrUserNotFound
		}
	}
	return fmt.Errorf("db: %w", err)
}
