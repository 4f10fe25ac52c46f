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

type sendMessageRequest struct {
	ToolType string `json:"tool_type"`
	Message  string `json:"message"`
}

type transferRequest struct {
	Payload    string `json:"payload"`
	TargetTool string `json:"target_tool"`
}

type messageView struct {
	ID                   string    `json:"id"`
	Role                 string    `json:"role"`
	Content              string    `json:"content"`
	HasStructuredContent bool      `json:"has_structured_content"`
	Timestamp            time.Time `json:"timestamp"`
}

type modelView struct {
	ModelID   string `json:"model_id"`
	ModelName string `json:"model_name"`
}

// toolTypeParam reads tool_type from the query string, defaulting to the
// general assistant.
func toolTypeParam(c *echo.Context) (models.ToolType, bool) {
	raw := c.QueryParam("tool_type")
	if raw == "" {
		raw = string(models.ToolAssistant)
	}
	tool := models.ToolType(raw)
	return tool, tool.Valid()
}

// sendMessage handles a chat turn. On success the body is an SSE stream of
// content fragments terminated by [DONE]; failures before streaming starts
// get a plain JSON error instead.
func (s *Server) sendMessage(c *echo.Context) error {
	id := identityFrom(c)

	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, fail("Invalid request body"))
	}
	if req.ToolType == "" {
		req.ToolType = string(models.ToolAssistant)
	}

	sink := newSSESink(c.Response())
	err := s.gateway.Send(c.Request().Context(), id.UserID, models.ToolType(req.ToolType), req.Message, sink)
	if err == nil {
		return nil
	}
	if sink.Started() {
		// Should not happen: the gateway signals in-band once streaming
		// begins. Nothing more can be sent on this connection.
		s.logger.Error("Gateway returned error after streaming started", zap.Error(err))
		return nil
	}

	switch {
	case errors.Is(err, chat.ErrInvalidToolType):
		return c.JSON(http.StatusBadRequest, fail("Invalid tool_type"))
	case errors.Is(err, chat.ErrEmptyMessage):
		return c.JSON(http.StatusBadRequest, fail("Message is required"))
	}

	var upstream *chat.UpstreamError
	if errors.As(err, &upstream) {
		s.logger.Error("Upstream unavailable", zap.Error(err))
		return c.JSON(http.StatusBadGateway, fail("The assistant is unavailable right now. Please try again."))
	}

	s.logger.Error("Failed to handle chat turn", zap.Error(err))
	return c.JSON(http.StatusInternalServerError, fail("Database error"))
}

// listMessages returns the caller's thread history for a tool.
func (s *Server) listMessages(c *echo.Context) error {
	id := identityFrom(c)

	tool, valid := toolTypeParam(c)
	if !valid {
		return c.JSON(http.StatusBadRequest, fail("Invalid tool_type"))
	}

	ctx := c.Request().Context()
	threadID, err := s.registry.EnsureThread(ctx, id.UserID, tool)
	if err != nil {
		s.logger.Error("Failed to ensure thread", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, fail("Database error"))
	}

	messages, err := s.log.History(ctx, threadID)
	if err != nil {
		s.logger.Error("Failed to load history", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, fail("Database error"))
	}

	views := make([]messageView, 0, len(messages))
	for _, m := range messages {
		views = append(views, messageView{
			ID:                   m.ID,
			Role:                 m.Role,
			Content:              m.Content,
			HasStructuredContent: m.HasStructuredContent,
			Timestamp:            m.CreatedAt,
		})
	}

	return c.JSON(http.StatusOK, ok(views))
}

// getChat ensures the caller's thread for a tool and returns its id.
func (s *Server) getChat(c *echo.Context) error {
	id := identityFrom(c)

	tool, valid := toolTypeParam(c)
	if !valid {
		return c.JSON(http.StatusBadRequest, fail("Invalid tool_type"))
	}

	threadID, err := s.registry.EnsureThread(c.Request().Context(), id.UserID, tool)
	if err != nil {
		s.logger.Error("Failed to ensure thread", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, fail("Database error"))
	}

	return c.JSON(http.StatusOK, ok(map[string]string{
		"chat_id":   threadID,
		"tool_type": string(tool),
	}))
}

// clearChat deletes every message in the caller's thread for a tool. The
// thread itself persists, so the operation is idempotent.
func (s *Server) clearChat(c *echo.Context) error {
	id := identityFrom(c)

	tool, valid := toolTypeParam(c)
	if !valid {
		return c.JSON(http.StatusBadRequest, fail("Invalid tool_type"))
	}

	ctx := c.Request().Context()
	threadID, err := s.registry.EnsureThread(ctx, id.UserID, tool)
	if err != nil {
		s.logger.Error("Failed to ensure thread", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, fail("Database error"))
	}

	if err := s.log.Clear(ctx, threadID); err != nil {
		s.logger.Error("Failed to clear history", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, fail("Database error"))
	}

	return c.JSON(http.StatusOK, ok(map[string]string{"message": "History cleared"}))
}

// transferIdea seeds an extracted payload into another tool's thread as a
// new user message.
func (s *Server) transferIdea(c *echo.Context) error {
	id := identityFrom(c)

	var req transferRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, fail("Invalid request body"))
	}
	if req.TargetTool == "" {
		req.TargetTool = string(models.ToolTZHelper)
	}

	threadID, err := s.bridge.Transfer(c.Request().Context(), id.UserID, req.Payload, models.ToolType(req.TargetTool))
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrEmptyPayload):
			return c.JSON(http.StatusBadRequest, fail("Payload is required"))
		case errors.Is(err, chat.ErrInvalidToolType):
			return c.JSON(http.StatusBadRequest, fail("Invalid target_tool"))
		}
		s.logger.Error("Failed to transfer payload", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, fail("Database error"))
	}

	return c.JSON(http.StatusOK, ok(map[string]string{
		"chat_id":     threadID,
		"target_tool": req.TargetTool,
	}))
}

// listModels returns the currently resolved model for every tool.
func (s *Server) listModels(c *echo.Context) error {
	ctx := c.Request().Context()

	views := make(map[string]modelView, len(models.AllToolTypes()))
	for _, tool := range models.AllToolTypes() {
		settings := s.resolver.Resolve(ctx, tool)
		views[string(tool)] = modelView{
			ModelID:   settings.ModelID,
			ModelName: chat.ModelLabel(settings.ModelID),
		}
	}

	return c.JSON(http.StatusOK, ok(views))
}
