package chat

import "context"

// Repository is the append-only transcript store.
type Repository interface {
	Append(ctx context.Context, msg *ChatMessage) error
	// ListByUser returns the user's transcript in ascending timestamp
	// order.
	ListByUser(ctx context.Context, userID string, limit int) ([]*ChatMessage, error)
}
