package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/studyflow/toolchat/internal/models"
)

//go:embed migrations.sql
var migrations embed.FS

type DatabaseConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
	UseInMemory bool
}

type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresStorage(config DatabaseConfig, logger *zap.Logger) (*PostgresStorage, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %v", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to the database: %v", err)
	}

	storage := &PostgresStorage{db: db, logger: logger}

	// Initialize database schema
	if err := storage.initializeSchema(); err != nil {
		return nil, fmt.Errorf("error initializing database schema: %v", err)
	}

	return storage, nil
}

func (s *PostgresStorage) initializeSchema() error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %v", err)
	}

	_, err = s.db.Exec(string(migrationSQL))
	if err != nil {
		return fmt.Errorf("error executing migrations: %v", err)
	}

	return nil
}

func (s *PostgresStorage) EnsureThread(ctx context.Context, userID string, tool models.ToolType) (*models.Thread, error) {
	// The unique constraint on (user_id, tool_type) is the source of truth
	// for concurrent first calls; losers of the insert race fall through to
	// the select.
	insert := `
		INSERT INTO tool_chats (user_id, tool_type)
		VALUES ($1, $2)
		ON CONFLICT (user_id, tool_type) DO NOTHING
		RETURNING id, user_id, tool_type, created_at`

	thread := &models.Thread{}
	err := s.db.QueryRowContext(ctx, insert, userID, string(tool)).
		Scan(&thread.ID, &thread.UserID, &thread.ToolType, &thread.CreatedAt)
	if err == nil {
		return thread, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("error creating thread: %v", err)
	}

	query := `
		SELECT id, user_id, tool_type, created_at
		FROM tool_chats
		WHERE user_id = $1 AND tool_type = $2`

	err = s.db.QueryRowContext(ctx, query, userID, string(tool)).
		Scan(&thread.ID, &thread.UserID, &thread.ToolType, &thread.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("error querying thread: %v", err)
	}

	return thread, nil
}

func (s *PostgresStorage) CreateMessage(ctx context.Context, threadID, role, content string, structured bool) (*models.Message, error) {
	query := `
		INSERT INTO tool_messages (chat_id, role, content, has_structured_content)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	msg := &models.Message{
		ThreadID:             threadID,
		Role:                 role,
		Content:              content,
		HasStructuredContent: structured,
	}

	err := s.db.QueryRowContext(ctx, query, threadID, role, content, structured).
		Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("error creating message: %v", err)
	}

	return msg, nil
}

func (s *PostgresStorage) RecentMessages(ctx context.Context, threadID string, limit int) ([]*models.Message, error) {
	query := `
		SELECT id, chat_id, role, content, has_structured_content, created_at
		FROM tool_messages
		WHERE chat_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, threadID, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying messages: %v", err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		msg := &models.Message{}
		err := rows.Scan(
			&msg.ID,
			&msg.ThreadID,
			&msg.Role,
			&msg.Content,
			&msg.HasStructuredContent,
			&msg.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("error scanning message: %v", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %v", err)
	}

	// Newest-first from the query, oldest-first for callers
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

func (s *PostgresStorage) DeleteMessages(ctx context.Context, threadID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tool_messages WHERE chat_id = $1`, threadID)
	if err != nil {
		return fmt.Errorf("error deleting messages: %v", err)
	}
	return nil
}

func (s *PostgresStorage) ActiveToolConfig(ctx context.Context, tool models.ToolType) (*models.ToolConfig, error) {
	query := `
		SELECT id, name, content, COALESCE(model_id, ''), tool_type, is_active,
		       COALESCE(created_by_id, ''), created_at, updated_at
		FROM ai_system_instructions
		WHERE tool_type = $1 AND is_active = true
		LIMIT 1`

	cfg := &models.ToolConfig{}
	err := s.db.QueryRowContext(ctx, query, string(tool)).Scan(
		&cfg.ID,
		&cfg.Name,
		&cfg.Content,
		&cfg.ModelID,
		&cfg.ToolType,
		&cfg.Active,
		&cfg.CreatedByID,
		&cfg.CreatedAt,
		&cfg.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error querying tool config: %v", err)
	}

	return cfg, nil
}

func (s *PostgresStorage) ReplaceToolConfig(ctx context.Context, cfg *models.ToolConfig) (*models.ToolConfig, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("error starting transaction: %v", err)
	}
	defer tx.Rollback()

	// Deactivate instead of delete so the history stays auditable
	_, err = tx.ExecContext(ctx,
		`UPDATE ai_system_instructions SET is_active = false WHERE tool_type = $1 AND is_active = true`,
		string(cfg.ToolType))
	if err != nil {
		return nil, fmt.Errorf("error deactivating tool config: %v", err)
	}

	insert := `
		INSERT INTO ai_system_instructions (name, content, model_id, tool_type, is_active, created_by_id)
		VALUES ($1, $2, $3, $4, true, $5)
		RETURNING id, created_at, updated_at`

	saved := &models.ToolConfig{
		Name:        cfg.Name,
		ToolType:    cfg.ToolType,
		Content:     cfg.Content,
		ModelID:     cfg.ModelID,
		Active:      true,
		CreatedByID: cfg.CreatedByID,
	}
	err = tx.QueryRowContext(ctx, insert, cfg.Name, cfg.Content, cfg.ModelID, string(cfg.ToolType), cfg.CreatedByID).
		Scan(&saved.ID, &saved.CreatedAt, &saved.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("error inserting tool config: %v", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("error committing tool config: %v", err)
	}

	return saved, nil
}

func (s *PostgresStorage) PublishedPrompts(ctx context.Context) ([]*models.PromptSummary, error) {
	query := `
		SELECT p.title, COALESCE(p.description, ''), pc.name
		FROM prompts p
		JOIN prompt_categories pc ON p.category_id = pc.id
		WHERE p.status = 'published' AND p.deleted_at IS NULL AND pc.deleted_at IS NULL
		ORDER BY pc.sort_order, p.sort_order, p.title`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error querying prompts: %v", err)
	}
	defer rows.Close()

	var prompts []*models.PromptSummary
	for rows.Next() {
		p := &models.PromptSummary{}
		if err := rows.Scan(&p.Title, &p.Description, &p.Category); err != nil {
			return nil, fmt.Errorf("error scanning prompt: %v", err)
		}
		prompts = append(prompts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating prompts: %v", err)
	}

	return prompts, nil
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}
