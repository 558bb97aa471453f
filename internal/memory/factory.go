package memory

import (
	"context"
	"strings"
)

// NewPersistentStore creates a postgres-backed store when configured,
// otherwise in-memory.
func NewPersistentStore(ctx context.Context, databaseURL string) (PersistentStore, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewInMemoryStore(), nil
	}
	return NewPostgresStore(ctx, databaseURL)
}
