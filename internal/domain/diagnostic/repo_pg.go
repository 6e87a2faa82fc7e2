package diagnostic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
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

const recordCols = `id, patient_name, age, features, prediction, created_by, created_at`

func scanRecord(row pgx.Row) (*DiagnosticRecord, error) {
	var (
		rec            DiagnosticRecord
		features, pred []byte
	)
	if err := row.Scan(&rec.ID, &rec.PatientName, &rec.Age, &features, &pred, &rec.CreatedBy, &rec.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(features, &rec.Features); err != nil {
		return nil, fmt.Errorf("decode features: %w", err)
	}
	if err := json.Unmarshal(pred, &rec.Prediction); err != nil {
		return nil, fmt.Errorf("decode prediction: %w", err)
	}
	return &rec, nil
}

func (r *repoPG) Create(ctx context.Context, rec *DiagnosticRecord) error {
	rec.ID = uuid.New()

	features, err := json.Marshal(rec.Features)
	if err != nil {
		return fmt.Errorf("encode features: %w", err)
	}
	pred, err := json.Marshal(rec.Prediction)
	if err != nil {
		return fmt.Errorf("encode prediction: %w", err)
	}

	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO diagnostic_record (id, patient_name, age, features, prediction, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		rec.ID, rec.PatientName, rec.Age, features, pred, rec.CreatedBy,
	).Scan(&rec.CreatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*DiagnosticRecord, error) {
	rec, err := scanRecord(r.conn(ctx).QueryRow(ctx,
		`SELECT `+recordCols+` FROM diagnostic_record WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

func (r *repoPG) ListRecent(ctx context.Context, limit int) ([]*DiagnosticRecord, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+recordCols+` FROM diagnostic_record ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*DiagnosticRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rec)
	}
	return items, rows.Err()
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*DiagnosticRecord, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM diagnostic_record`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+recordCols+` FROM diagnostic_record ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*DiagnosticRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, rec)
	}
	return items, total, rows.Err()
}
