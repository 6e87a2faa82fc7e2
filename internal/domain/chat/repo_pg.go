package chat

import (
	"context"

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

func (r *repoPG) Append(ctx context.Context, msg *ChatMessage) error {
	msg.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO chat_message (id, user_id, sender, text)
		VALUES ($1, $2, $3, $4)
		RETURNING timestamp`,
		msg.ID, msg.UserID, msg.Sender, msg.Text,
	).Scan(&msg.Timestamp)
}

// ListByUser returns the newest messages up to limit, ordered oldest first
// so the transcript reads top to bottom. Selecting ascending with a limit
// would silently drop the latest turns on long transcripts.
func (r *repoPG) ListByUser(ctx context.Context, userID string, limit int) ([]*ChatMessage, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, user_id, sender, text, timestamp FROM (
			SELECT id, user_id, sender, text, timestamp FROM chat_message
			WHERE user_id = $1 ORDER BY timestamp DESC LIMIT $2
		) latest ORDER BY timestamp ASC`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*ChatMessage
	for rows.Next() {
		var msg ChatMessage
		if err := rows.Scan(&msg.ID, &msg.UserID, &msg.Sender, &msg.Text, &msg.Timestamp); err != nil {
			return nil, err
		}
		items = append(items, &msg)
	}
	return items, rows.Err()
}
