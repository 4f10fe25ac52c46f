package chat

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/studyflow/toolchat/internal/models"
	"github.com/studyflow/toolchat/internal/storage"
)

// ToolSettings is the resolved prompt and model for one tool.
type ToolSettings struct {
	SystemPrompt string
	ModelID      string
}

const defaultAssistantPrompt = `You are an experienced web development mentor.
Your goal is to help students build beautiful, functional web applications, explain difficult concepts in simple terms, and keep them motivated.
Answer briefly and to the point, use code examples.`

// defaultModels and defaultPrompts are the built-in per-tool fallbacks,
// loaded once at process start. Admin overrides come from the store at
// request time and never mutate these.
var defaultModels = map[models.ToolType]string{
	models.ToolAssistant: "google/gemini-2.5-flash-lite",
	models.ToolTZHelper:  "z-ai/glm-4.7",
	models.ToolIdeas:     "xiaomi/mimo-v2-flash:free",
}

var defaultPrompts = map[models.ToolType]string{
	models.ToolAssistant: defaultAssistantPrompt,
	models.ToolTZHelper:  "",
	models.ToolIdeas:     "",
}

var modelLabels = map[string]string{
	"google/gemini-2.5-flash-lite":       "Gemini 2.5 Flash Lite",
	"google/gemini-2.0-flash-001":        "Gemini 2.0 Flash",
	"anthropic/claude-3.5-sonnet":        "Claude 3.5 Sonnet",
	"anthropic/claude-3-haiku":           "Claude 3 Haiku",
	"openai/gpt-4o-mini":                 "GPT-4o Mini",
	"openai/gpt-4o":                      "GPT-4o",
	"z-ai/glm-4.7":                       "GLM-4.7",
	"xiaomi/mimo-v2-flash:free":          "MiMo V2 Flash",
	"meta-llama/llama-3.3-70b-instruct":  "Llama 3.3 70B",
}

// ToolConfigResolver resolves the active system prompt and model per tool,
// with built-in defaults and read-time prompt augmentation.
type ToolConfigResolver struct {
	store  storage.Storage
	logger *zap.Logger
}

func NewToolConfigResolver(store storage.Storage, logger *zap.Logger) *ToolConfigResolver {
	return &ToolConfigResolver{store: store, logger: logger}
}

// Resolve returns the settings for a tool: the active config row when one
// exists, the built-in defaults otherwise. The model id is never empty.
// Store failures fall back to the defaults so a broken config read cannot
// fail a chat turn.
func (r *ToolConfigResolver) Resolve(ctx context.Context, tool models.ToolType) ToolSettings {
	settings := ToolSettings{
		SystemPrompt: defaultPrompts[tool],
		ModelID:      defaultModels[tool],
	}

	cfg, err := r.store.ActiveToolConfig(ctx, tool)
	if err != nil {
		r.logger.Warn("Failed to fetch tool config, using defaults",
			zap.Error(err),
			zap.String("tool_type", string(tool)))
		return settings
	}
	if cfg == nil {
		return settings
	}

	if cfg.Content != "" {
		settings.SystemPrompt = cfg.Content
	}
	if cfg.ModelID != "" {
		settings.ModelID = cfg.ModelID
	}
	return settings
}

// Augment appends the prompt-library reference block to basePrompt for the
// general assistant. Any other tool gets basePrompt unchanged. This is a
// secondary read against unrelated content; if it fails the augmentation is
// omitted and the primary request proceeds.
func (r *ToolConfigResolver) Augment(ctx context.Context, tool models.ToolType, basePrompt string) string {
	if tool != models.ToolAssistant {
		return basePrompt
	}

	prompts, err := r.store.PublishedPrompts(ctx)
	if err != nil {
		r.logger.Warn("Failed to fetch prompts reference", zap.Error(err))
		return basePrompt
	}
	if len(prompts) == 0 {
		return basePrompt
	}

	return basePrompt + buildPromptsReference(prompts)
}

// buildPromptsReference formats the published prompt library grouped by
// category, preserving the store's category ordering.
func buildPromptsReference(prompts []*models.PromptSummary) string {
	var categories []string
	grouped := make(map[string][]string)
	for _, p := range prompts {
		if _, seen := grouped[p.Category]; !seen {
			categories = append(categories, p.Category)
		}
		line := "• " + p.Title
		if p.Description != "" {
			desc := p.Description
			if len(desc) > 80 {
				desc = desc[:80]
			}
			line += " — " + desc
		}
		grouped[p.Category] = append(grouped[p.Category], line)
	}

	var sb strings.Builder
	sb.WriteString("\n\n---\n## Prompt library\n")
	sb.WriteString("Recommend prompts from the Prompts section to students when they:\n")
	sb.WriteString("- Ask how to improve their design, code, or structure\n")
	sb.WriteString("- Want to fix errors or bugs\n")
	sb.WriteString("- Don't know where to start\n\n")

	for _, category := range categories {
		sb.WriteString("### " + category + "\n")
		sb.WriteString(strings.Join(grouped[category], "\n"))
		sb.WriteString("\n\n")
	}

	sb.WriteString("Point students to the Prompts section in the platform menu.")
	return sb.String()
}

// Upsert deactivates the current active config for the tool and inserts a
// new active row, keeping the old rows for audit and rollback. An empty
// model id falls back to the tool's default so resolution never sees one.
func (r *ToolConfigResolver) Upsert(ctx context.Context, tool models.ToolType, content, modelID, actorID string) (*models.ToolConfig, error) {
	if !tool.Valid() {
		return nil, ErrInvalidToolType
	}
	if modelID == "" {
		modelID = defaultModels[tool]
	}

	saved, err := r.store.ReplaceToolConfig(ctx, &models.ToolConfig{
		Name:        string(tool) + "_custom",
		ToolType:    tool,
		Content:     content,
		ModelID:     modelID,
		CreatedByID: actorID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save tool config: %w", err)
	}
	return saved, nil
}

// ActiveConfig returns the raw active config row, or nil when the tool runs
// on its built-in defaults.
func (r *ToolConfigResolver) ActiveConfig(ctx context.Context, tool models.ToolType) (*models.ToolConfig, error) {
	if !tool.Valid() {
		return nil, ErrInvalidToolType
	}
	return r.store.ActiveToolConfig(ctx, tool)
}

// DefaultModel returns the built-in model id for a tool.
func DefaultModel(tool models.ToolType) string {
	return defaultModels[tool]
}

// ModelLabel returns a human-readable name for a model id, autoformatting
// unknown ids: "google/gemini-2.5-pro" becomes "Gemini 2.5 Pro".
func ModelLabel(modelID string) string {
	if label, ok := modelLabels[modelID]; ok {
		return label
	}

	name := modelID
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	name = strings.TrimSuffix(name, ":free")

	words := strings.Split(name, "-")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
