package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

type contextKey string

// ConnKey carries a request-scoped connection through the context, letting
// several repository calls share one connection (e.g. inside a transaction).
const ConnKey contextKey = "db_conn"

// WithConn returns a context carrying a dedicated connection. Repositories
// prefer it over the shared pool when present.
func WithConn(ctx context.Context, conn *pgxpool.Conn) context.Context {
	return context.WithValue(ctx, ConnKey, conn)
}

// ConnFromContext retrieves the request-scoped connection, or nil when the
// caller should fall back to the pool.
func ConnFromContext(ctx context.Context) *pgxpool.Conn {
	conn, _ := ctx.Value(ConnKey).(*pgxpool.Conn)
	return conn
}
