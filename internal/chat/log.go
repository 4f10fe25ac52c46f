package chat

import (
	"context"
	"fmt"

	"github.com/studyflow/toolchat/internal/models"
	"github.com/studyflow/toolchat/internal/storage"
)

const (
	// DefaultWindowSize is how many recent messages go to the provider as
	// context. Older history stays in storage but is silently dropped from
	// the window.
	DefaultWindowSize = 20

	// DefaultHistoryLimit bounds the history endpoint.
	DefaultHistoryLimit = 100
)

// MessageLog is the append-only message store for a thread.
type MessageLog struct {
	store storage.Storage
}

func NewMessageLog(store storage.Storage) *MessageLog {
	return &MessageLog{store: store}
}

// Append adds a message to the thread. The store assigns the id and a
// monotonic creation timestamp.
func (l *MessageLog) Append(ctx context.Context, threadID, role, content string, structured bool) (*models.Message, error) {
	msg, err := l.store.CreateMessage(ctx, threadID, role, content, structured)
	if err != nil {
		return nil, fmt.Errorf("failed to append message: %w", err)
	}
	return msg, nil
}

// Window returns at most limit of the newest messages, oldest first. The
// just-appended message is always included.
func (l *MessageLog) Window(ctx context.Context, threadID string, limit int) ([]*models.Message, error) {
	if limit <= 0 {
		limit = DefaultWindowSize
	}
	return l.store.RecentMessages(ctx, threadID, limit)
}

// History returns the messages shown to the user, oldest first.
func (l *MessageLog) History(ctx context.Context, threadID string) ([]*models.Message, error) {
	return l.store.RecentMessages(ctx, threadID, DefaultHistoryLimit)
}

// Clear deletes every message in the thread. The thread row persists.
func (l *MessageLog) Clear(ctx context.Context, threadID string) error {
	return l.store.DeleteMessages(ctx, threadID)
}
