package server

import (
	"net/http"

	"github.com/labstack/echo/v5"
	"go.uber.org/zap"

	"github.com/studyflow/toolchat/internal/chat"
)

// Server exposes the tool chat subsystem over HTTP. Authentication is owned
// by the platform gateway in front of this service; identity arrives as
// trusted headers.
type Server struct {
	echo     *echo.Echo
	gateway  *chat.Gateway
	registry *chat.SessionRegistry
	log      *chat.MessageLog
	resolver *chat.ToolConfigResolver
	bridge   *chat.TransferBridge
	logger   *zap.Logger
}

func New(gateway *chat.Gateway, registry *chat.SessionRegistry, log *chat.MessageLog, resolver *chat.ToolConfigResolver, bridge *chat.TransferBridge, logger *zap.Logger) *Server {
	s := &Server{
		echo:     echo.New(),
		gateway:  gateway,
		registry: registry,
		log:      log,
		resolver: resolver,
		bridge:   bridge,
		logger:   logger,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	tools := s.echo.Group("/api/tools")
	tools.Use(s.withIdentity)
	tools.GET("/models", s.listModels)
	tools.GET("/chats", s.getChat)
	tools.DELETE("/chats", s.clearChat)
	tools.GET("/messages", s.listMessages)
	tools.POST("/messages", s.sendMessage)
	tools.POST("/transfer", s.transferIdea)

	admin := s.echo.Group("/api/admin")
	admin.Use(s.withIdentity, s.requireAdmin)
	admin.GET("/ai-instruction", s.getToolConfig)
	admin.PUT("/ai-instruction", s.putToolConfig)
}

func (s *Server) Start(address string) error {
	s.logger.Info("Starting HTTP server", zap.String("address", address))
	srv := &http.Server{
		Addr:    address,
		Handler: s.echo,
	}
	return srv.ListenAndServe()
}

// Handler exposes the routing tree, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// response is the JSON envelope shared by all non-streaming endpoints.
type response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func ok(data any) response {
	return response{Success: true, Data: data}
}

func fail(message string) response {
	return response{Success: false, Error: message}
}
