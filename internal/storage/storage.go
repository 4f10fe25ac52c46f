package storage

import (
	"context"

	"github.com/studyflow/toolchat/internal/models"
)

type Storage interface {
	// EnsureThread returns the thread for (userID, tool), creating it if
	// needed. Safe under concurrent first calls for the same pair.
	EnsureThread(ctx context.Context, userID string, tool models.ToolType) (*models.Thread, error)

	// CreateMessage appends a message to a thread. The store assigns the
	// id and creation timestamp.
	CreateMessage(ctx context.Context, threadID, role, content string, structured bool) (*models.Message, error)

	// RecentMessages returns at most limit of the newest messages in a
	// thread, ordered oldest first.
	RecentMessages(ctx context.Context, threadID string, limit int) ([]*models.Message, error)

	// DeleteMessages removes all messages from a thread. The thread row
	// itself is kept.
	DeleteMessages(ctx context.Context, threadID string) error

	// ActiveToolConfig returns the active config row for a tool, or nil
	// when none has been set.
	ActiveToolConfig(ctx context.Context, tool models.ToolType) (*models.ToolConfig, error)

	// ReplaceToolConfig deactivates the current active row for the tool
	// and inserts cfg as the new active row. Deactivated rows are kept.
	ReplaceToolConfig(ctx context.Context, cfg *models.ToolConfig) (*models.ToolConfig, error)

	// PublishedPrompts lists the published prompt-library entries in
	// category order.
	PublishedPrompts(ctx context.Context) ([]*models.PromptSummary, error)

	Close() error
}
