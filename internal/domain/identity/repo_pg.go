package identity

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinsight/clinsight/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func (r *repoPG) GetByID(ctx context.Context, id string) (*UserProfile, error) {
	var profile UserProfile
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, email, display_name, role FROM user_profile WHERE id = $1`, id,
	).Scan(&profile.ID, &profile.Email, &profile.DisplayName, &profile.Role)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *repoPG) Upsert(ctx context.Context, profile *UserProfile) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO user_profile (id, email, display_name, role)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET email = EXCLUDED.email, display_name = EXCLUDED.display_name`,
		profile.ID, profile.Email, profile.DisplayName, profile.Role)
	return err
}
