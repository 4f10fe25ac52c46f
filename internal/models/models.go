package models

import "time"

// ToolType identifies one of the fixed AI tool modes.
type ToolType string

const (
	ToolAssistant ToolType = "assistant"
	ToolTZHelper  ToolType = "tz_helper"
	ToolIdeas     ToolType = "ideas"
)

// Valid reports whether t is one of the known tool types.
func (t ToolType) Valid() bool {
	switch t {
	case ToolAssistant, ToolTZHelper, ToolIdeas:
		return true
	}
	return false
}

// AllToolTypes lists every tool type in display order.
func AllToolTypes() []ToolType {
	return []ToolType{ToolAssistant, ToolTZHelper, ToolIdeas}
}

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Thread is the persistent conversation for one (user, tool) pair
type Thread struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	ToolType  ToolType  `json:"tool_type"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is a single entry in a thread's append-only log
type Message struct {
	ID                   string    `json:"id"`
	ThreadID             string    `json:"thread_id"`
	Role                 string    `json:"role"`
	Content              string    `json:"content"`
	HasStructuredContent bool      `json:"has_structured_content"`
	CreatedAt            time.Time `json:"created_at"`
}

// ToolConfig is one row of the soft-versioned tool configuration history.
// At most one row per tool type is active at any time.
type ToolConfig struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ToolType    ToolType  `json:"tool_type"`
	Content     string    `json:"content"`
	ModelID     string    `json:"model_id"`
	Active      bool      `json:"is_active"`
	CreatedByID string    `json:"created_by_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PromptSummary is a published prompt-library entry used to build the
// assistant's reference block.
type PromptSummary struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
}
