package chat

import (
	"context"
	"fmt"

	"github.com/studyflow/toolchat/internal/models"
	"github.com/studyflow/toolchat/internal/storage"
)

// SessionRegistry maps each (user, tool) pair to exactly one persistent
// thread. Threads are created lazily and never deleted.
type SessionRegistry struct {
	store storage.Storage
}

func NewSessionRegistry(store storage.Storage) *SessionRegistry {
	return &SessionRegistry{store: store}
}

// EnsureThread returns the thread id for (userID, tool), creating the thread
// on first use. Repeated calls for the same pair return the same id; the
// store's unique constraint resolves concurrent first calls.
func (r *SessionRegistry) EnsureThread(ctx context.Context, userID string, tool models.ToolType) (string, error) {
	if !tool.Valid() {
		return "", ErrInvalidToolType
	}

	thread, err := r.store.EnsureThread(ctx, userID, tool)
	if err != nil {
		return "", fmt.Errorf("failed to ensure thread: %w", err)
	}

	return thread.ID, nil
}
