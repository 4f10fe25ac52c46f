package chat

import (
	"context"
	"errors"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/studyflow/toolchat/internal/models"
	"github.com/studyflow/toolchat/internal/provider"
)

// turnState tracks where a chat turn is in its lifecycle. failed is
// reachable from any state before persisted.
type turnState string

const (
	stateReceived     turnState = "received"
	stateContextBuilt turnState = "context_built"
	stateStreaming    turnState = "streaming"
	stateFinalized    turnState = "finalized"
	statePersisted    turnState = "persisted"
	stateFailed       turnState = "failed"
)

// tzHelperMaxTokens caps generation length for the technical-specification
// tool, which produces long documents.
const tzHelperMaxTokens = 8192

// upstreamFailureMessage is what callers see for mid-stream provider
// failures. Kept generic and retry-oriented; the real cause goes to the log.
const upstreamFailureMessage = "The assistant is unavailable right now. Please try again."

// EventSink receives the streamed output of a chat turn. Once streaming has
// begun the gateway always finishes with Error or Done; the connection is
// never left hanging.
type EventSink interface {
	// Fragment forwards one completion fragment. An error return means the
	// caller is gone and the turn should be abandoned.
	Fragment(content string) error
	// Error emits the in-band terminal error frame.
	Error(message string) error
	// Done emits the terminal completion signal.
	Done() error
}

// Gateway orchestrates a chat turn: persist the user message, build the
// bounded context, stream the completion to the sink, classify and persist
// the result.
//
// Concurrent turns on the same thread are not serialized; each produces its
// own user/assistant pair and the append-only log stays consistent.
type Gateway struct {
	registry *SessionRegistry
	log      *MessageLog
	resolver *ToolConfigResolver
	provider provider.Client
	logger   *zap.Logger
	window   int
}

func NewGateway(registry *SessionRegistry, log *MessageLog, resolver *ToolConfigResolver, client provider.Client, window int, logger *zap.Logger) *Gateway {
	if window <= 0 {
		window = DefaultWindowSize
	}
	return &Gateway{
		registry: registry,
		log:      log,
		resolver: resolver,
		provider: client,
		logger:   logger,
		window:   window,
	}
}

// Send runs one chat turn. Failures before streaming starts are returned as
// typed errors and leave no assistant message behind; the user message is
// kept once persisted. After streaming starts Send always returns nil and
// signals the outcome in-band through the sink.
func (g *Gateway) Send(ctx context.Context, userID string, tool models.ToolType, message string, sink EventSink) error {
	if !tool.Valid() {
		return ErrInvalidToolType
	}
	if strings.TrimSpace(message) == "" {
		return ErrEmptyMessage
	}

	state := stateReceived
	logger := g.logger.With(
		zap.String("user_id", userID),
		zap.String("tool_type", string(tool)))

	threadID, err := g.registry.EnsureThread(ctx, userID, tool)
	if err != nil {
		return &PersistenceError{Err: err}
	}
	logger = logger.With(zap.String("thread_id", threadID))

	// Persist the user message first; if this fails nothing else happens.
	if _, err := g.log.Append(ctx, threadID, models.RoleUser, message, false); err != nil {
		logger.Error("Failed to save user message", zap.Error(err), zap.String("state", string(stateFailed)))
		return &PersistenceError{Err: err}
	}

	settings := g.resolver.Resolve(ctx, tool)
	settings.SystemPrompt = g.resolver.Augment(ctx, tool, settings.SystemPrompt)

	window, err := g.log.Window(ctx, threadID, g.window)
	if err != nil {
		logger.Error("Failed to load context window", zap.Error(err), zap.String("state", string(stateFailed)))
		return &PersistenceError{Err: err}
	}

	prompt := make([]provider.Message, 0, len(window)+1)
	if settings.SystemPrompt != "" {
		prompt = append(prompt, provider.Message{Role: provider.RoleSystem, Content: settings.SystemPrompt})
	}
	for _, m := range window {
		prompt = append(prompt, provider.Message{Role: m.Role, Content: m.Content})
	}

	state = stateContextBuilt
	logger.Debug("Context built",
		zap.String("state", string(state)),
		zap.String("model", settings.ModelID),
		zap.Int("window_messages", len(window)))

	req := provider.Request{
		Model:    settings.ModelID,
		Messages: prompt,
	}
	if tool == models.ToolTZHelper {
		req.MaxTokens = tzHelperMaxTokens
	}

	stream, err := g.provider.StreamCompletion(ctx, req)
	if err != nil {
		logger.Error("Failed to open completion stream", zap.Error(err), zap.String("state", string(stateFailed)))
		return &UpstreamError{Err: err}
	}
	defer stream.Close()

	state = stateStreaming
	logger.Debug("Streaming started", zap.String("state", string(state)))

	// From here on failures are signaled in-band: the headers are already
	// committed once the first fragment goes out.
	var full strings.Builder
	for {
		fragment, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				// Caller disconnected: abort the provider call and
				// discard the partial text so only completed
				// generations are ever persisted.
				logger.Info("Client disconnected mid-stream, discarding partial response",
					zap.Int("discarded_bytes", full.Len()))
				return nil
			}
			logger.Error("Completion stream failed", zap.Error(err), zap.String("state", string(stateFailed)))
			if err := sink.Error(upstreamFailureMessage); err != nil {
				logger.Warn("Failed to emit error frame", zap.Error(err))
			}
			return nil
		}

		full.WriteString(fragment)
		if err := sink.Fragment(fragment); err != nil {
			logger.Info("Client write failed mid-stream, discarding partial response",
				zap.Error(err),
				zap.Int("discarded_bytes", full.Len()))
			return nil
		}
	}

	state = stateFinalized
	response := full.String()

	if response != "" {
		segments := ExtractMarkers(response)
		if _, err := g.log.Append(ctx, threadID, models.RoleAssistant, response, segments.Structured()); err != nil {
			// The caller already has the content in-stream; display wins
			// over storage once streaming has started.
			logger.Error("Failed to save assistant message", zap.Error(err))
		} else {
			state = statePersisted
		}
	}

	logger.Debug("Turn complete",
		zap.String("state", string(state)),
		zap.Int("response_bytes", len(response)))

	if err := sink.Done(); err != nil {
		logger.Warn("Failed to emit done frame", zap.Error(err))
	}
	return nil
}
