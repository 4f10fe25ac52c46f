package chat

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/studyflow/toolchat/internal/models"
)

// TransferBridge seeds content from one tool's thread into another tool's
// thread. This is the only cross-thread write in the system: just the
// extracted payload is carried over, never the originating history.
type TransferBridge struct {
	registry *SessionRegistry
	log      *MessageLog
	logger   *zap.Logger
}

func NewTransferBridge(registry *SessionRegistry, log *MessageLog, logger *zap.Logger) *TransferBridge {
	return &TransferBridge{registry: registry, log: log, logger: logger}
}

// Transfer appends payload as a new user message in the target tool's
// thread, creating the thread if needed, and returns the target thread id.
func (b *TransferBridge) Transfer(ctx context.Context, userID, payload string, targetTool models.ToolType) (string, error) {
	if strings.TrimSpace(payload) == "" {
		return "", ErrEmptyPayload
	}
	if !targetTool.Valid() {
		return "", ErrInvalidToolType
	}

	threadID, err := b.registry.EnsureThread(ctx, userID, targetTool)
	if err != nil {
		return "", &PersistenceError{Err: err}
	}

	if _, err := b.log.Append(ctx, threadID, models.RoleUser, payload, false); err != nil {
		return "", &PersistenceError{Err: err}
	}

	b.logger.Info("Transferred payload to tool thread",
		zap.String("user_id", userID),
		zap.String("target_tool", string(targetTool)),
		zap.String("thread_id", threadID))

	return threadID, nil
}
