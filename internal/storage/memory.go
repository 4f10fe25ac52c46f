package storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/studyflow/toolchat/internal/models"
)

// MemoryStorage is an in-memory Storage used for local development and tests.
type MemoryStorage struct {
	mu       sync.RWMutex
	threads  map[string]*models.Thread   // keyed by userID + "\x00" + toolType
	messages map[string][]*models.Message // keyed by thread id
	configs  map[models.ToolType][]*models.ToolConfig
	prompts  []*models.PromptSummary
	lastTS   time.Time
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		threads:  make(map[string]*models.Thread),
		messages: make(map[string][]*models.Message),
		configs:  make(map[models.ToolType][]*models.ToolConfig),
	}
}

func threadKey(userID string, tool models.ToolType) string {
	return userID + "\x00" + string(tool)
}

// nextTimestamp returns a strictly increasing time, mirroring the
// server-assigned ordering the database gives us.
func (s *MemoryStorage) nextTimestamp() time.Time {
	now := time.Now()
	if !now.After(s.lastTS) {
		now = s.lastTS.Add(time.Nanosecond)
	}
	s.lastTS = now
	return now
}

func (s *MemoryStorage) EnsureThread(ctx context.Context, userID string, tool models.ToolType) (*models.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := threadKey(userID, tool)
	if thread, exists := s.threads[key]; exists {
		return thread, nil
	}

	thread := &models.Thread{
		ID:        uuid.New().String(),
		UserID:    userID,
		ToolType:  tool,
		CreatedAt: time.Now(),
	}
	s.threads[key] = thread
	return thread, nil
}

func (s *MemoryStorage) CreateMessage(ctx context.Context, threadID, role, content string, structured bool) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := &models.Message{
		ID:                   uuid.New().String(),
		ThreadID:             threadID,
		Role:                 role,
		Content:              content,
		HasStructuredContent: structured,
		CreatedAt:            s.nextTimestamp(),
	}
	s.messages[threadID] = append(s.messages[threadID], msg)
	return msg, nil
}

func (s *MemoryStorage) RecentMessages(ctx context.Context, threadID string, limit int) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.messages[threadID]
	if len(all) > limit {
		all = all[len(all)-limit:]
	}

	out := make([]*models.Message, len(all))
	copy(out, all)
	return out, nil
}

func (s *MemoryStorage) DeleteMessages(ctx context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.messages, threadID)
	return nil
}

func (s *MemoryStorage) ActiveToolConfig(ctx context.Context, tool models.ToolType) (*models.ToolConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, cfg := range s.configs[tool] {
		if cfg.Active {
			return cfg, nil
		}
	}
	return nil, nil
}

func (s *MemoryStorage) ReplaceToolConfig(ctx context.Context, cfg *models.ToolConfig) (*models.ToolConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, prev := range s.configs[cfg.ToolType] {
		prev.Active = false
	}

	now := time.Now()
	saved := &models.ToolConfig{
		ID:          uuid.New().String(),
		Name:        cfg.Name,
		ToolType:    cfg.ToolType,
		Content:     cfg.Content,
		ModelID:     cfg.ModelID,
		Active:      true,
		CreatedByID: cfg.CreatedByID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.configs[cfg.ToolType] = append(s.configs[cfg.ToolType], saved)
	return saved, nil
}

// SetPrompts seeds the published prompt library.
func (s *MemoryStorage) SetPrompts(prompts []*models.PromptSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prompts = prompts
}

func (s *MemoryStorage) PublishedPrompts(ctx context.Context) ([]*models.PromptSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.PromptSummary, len(s.prompts))
	copy(out, s.prompts)
	return out, nil
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}
