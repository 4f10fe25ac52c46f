package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"go.uber.org/zap"

	"github.com/studyflow/toolchat/internal/chat"
	"github.com/studyflow/toolchat/internal/models"
)

type toolConfigRequest struct {
	ToolType string `json:"tool_type"`
	Content  string `json:"content"`
	ModelID  string `json:"model_id"`
}

type toolConfigView struct {
	ID        string     `json:"id,omitempty"`
	ToolType  string     `json:"tool_type"`
	Content   string     `json:"content"`
	ModelID   string     `json:"model_id"`
	UpdatedAt *time.Time `json:"updated_at"`
}

// getToolConfig returns the active config for one tool, or for all tools
// when tool_type is omitted. Tools without an admin-set config report their
// built-in default model and empty content.
func (s *Server) getToolConfig(c *echo.Context) error {
	if raw := c.QueryParam("tool_type"); raw != "" {
		tool := models.ToolType(raw)
		if !tool.Valid() {
			return c.JSON(http.StatusBadRequest, fail("Invalid tool_type"))
		}

		view, err := s.toolConfigView(c, tool)
		if err != nil {
			s.logger.Error("Failed to fetch tool config", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, fail("Database error"))
		}
		return c.JSON(http.StatusOK, ok(view))
	}

	views := make(map[string]toolConfigView, len(models.AllToolTypes()))
	for _, tool := range models.AllToolTypes() {
		view, err := s.toolConfigView(c, tool)
		if err != nil {
			s.logger.Error("Failed to fetch tool config", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, fail("Database error"))
		}
		views[string(tool)] = view
	}

	return c.JSON(http.StatusOK, ok(views))
}

func (s *Server) toolConfigView(c *echo.Context, tool models.ToolType) (toolConfigView, error) {
	cfg, err := s.resolver.ActiveConfig(c.Request().Context(), tool)
	if err != nil {
		return toolConfigView{}, err
	}
	if cfg == nil {
		return toolConfigView{
			ToolType: string(tool),
			Content:  "",
			ModelID:  chat.DefaultModel(tool),
		}, nil
	}

	modelID := cfg.ModelID
	if modelID == "" {
		modelID = chat.DefaultModel(tool)
	}
	updatedAt := cfg.UpdatedAt
	return toolConfigView{
		ID:        cfg.ID,
		ToolType:  string(tool),
		Content:   cfg.Content,
		ModelID:   modelID,
		UpdatedAt: &updatedAt,
	}, nil
}

// putToolConfig writes a new active config row for a tool, deactivating the
// previous one. The replaced rows stay in the table as history.
func (s *Server) putToolConfig(c *echo.Context) error {
	id := identityFrom(c)

	var req toolConfigRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, fail("Invalid request body"))
	}

	tool := models.ToolType(req.ToolType)
	saved, err := s.resolver.Upsert(c.Request().Context(), tool, req.Content, req.ModelID, id.UserID)
	if err != nil {
		if errors.Is(err, chat.ErrInvalidToolType) {
			return c.JSON(http.StatusBadRequest, fail("Specify a valid tool_type (assistant, tz_helper, ideas)"))
		}
		s.logger.Error("Failed to save tool config", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, fail("Database error"))
	}

	updatedAt := saved.UpdatedAt
	return c.JSON(http.StatusOK, ok(toolConfigView{
		ID:        saved.ID,
		ToolType:  string(saved.ToolType),
		Content:   saved.Content,
		ModelID:   saved.ModelID,
		UpdatedAt: &updatedAt,
	}))
}
