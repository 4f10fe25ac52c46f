package chat

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/studyflow/toolchat/internal/models"
	"github.com/studyflow/toolchat/internal/provider"
	"github.com/studyflow/toolchat/internal/storage"
)

// fakeStream replays scripted fragments, then finishes with err (io.EOF for
// a clean completion).
type fakeStream struct {
	fragments []string
	err       error
	idx       int
	closed    bool
}

func (s *fakeStream) Recv() (string, error) {
	if s.idx < len(s.fragments) {
		fragment := s.fragments[s.idx]
		s.idx++
		return fragment, nil
	}
	if s.err != nil {
		return "", s.err
	}
	return "", io.EOF
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

type fakeProvider struct {
	stream  *fakeStream
	openErr error
	lastReq provider.Request
}

func (p *fakeProvider) StreamCompletion(ctx context.Context, req provider.Request) (provider.Stream, error) {
	p.lastReq = req
	if p.openErr != nil {
		return nil, p.openErr
	}
	return p.stream, nil
}

// recordSink captures emitted events; fragmentErr simulates a caller that
// disconnected.
type recordSink struct {
	fragments   []string
	errs        []string
	done        int
	fragmentErr error
}

func (s *recordSink) Fragment(content string) error {
	if s.fragmentErr != nil {
		return s.fragmentErr
	}
	s.fragments = append(s.fragments, content)
	return nil
}

func (s *recordSink) Error(message string) error {
	s.errs = append(s.errs, message)
	return nil
}

func (s *recordSink) Done() error {
	s.done++
	return nil
}

// failingStore makes assistant-message writes fail after the stream.
type failingStore struct {
	*storage.MemoryStorage
	failRole string
}

func (s *failingStore) CreateMessage(ctx context.Context, threadID, role, content string, structured bool) (*models.Message, error) {
	if role == s.failRole {
		return nil, errors.New("disk full")
	}
	return s.MemoryStorage.CreateMessage(ctx, threadID, role, content, structured)
}

type gatewayFixture struct {
	store    storage.Storage
	registry *SessionRegistry
	log      *MessageLog
	gateway  *Gateway
	provider *fakeProvider
}

func newGatewayFixture(store storage.Storage, p *fakeProvider) *gatewayFixture {
	logger := zap.NewNop()
	registry := NewSessionRegistry(store)
	log := NewMessageLog(store)
	resolver := NewToolConfigResolver(store, logger)
	return &gatewayFixture{
		store:    store,
		registry: registry,
		log:      log,
		gateway:  NewGateway(registry, log, resolver, p, DefaultWindowSize, logger),
		provider: p,
	}
}

func (f *gatewayFixture) history(t *testing.T, userID string, tool models.ToolType) []*models.Message {
	t.Helper()
	threadID, err := f.registry.EnsureThread(context.Background(), userID, tool)
	require.NoError(t, err)
	history, err := f.log.History(context.Background(), threadID)
	require.NoError(t, err)
	return history
}

func TestSendStreamsAndPersists(t *testing.T) {
	p := &fakeProvider{stream: &fakeStream{fragments: []string{"Hello", " there", "!"}}}
	f := newGatewayFixture(storage.NewMemoryStorage(), p)
	sink := &recordSink{}

	err := f.gateway.Send(context.Background(), "user-1", models.ToolAssistant, "Hi!", sink)
	require.NoError(t, err)

	assert.Equal(t, []string{"Hello", " there", "!"}, sink.fragments)
	assert.Empty(t, sink.errs)
	assert.Equal(t, 1, sink.done)

	history := f.history(t, "user-1", models.ToolAssistant)
	require.Len(t, history, 2)
	assert.Equal(t, models.RoleUser, history[0].Role)
	assert.Equal(t, "Hi!", history[0].Content)
	assert.Equal(t, models.RoleAssistant, history[1].Role)
	assert.Equal(t, "Hello there!", history[1].Content)
	assert.False(t, history[1].HasStructuredContent)

	// The context sent upstream: system prompt followed by the window,
	// ending with the just-persisted user message.
	require.NotEmpty(t, p.lastReq.Messages)
	assert.Equal(t, provider.RoleSystem, p.lastReq.Messages[0].Role)
	last := p.lastReq.Messages[len(p.lastReq.Messages)-1]
	assert.Equal(t, provider.RoleUser, last.Role)
	assert.Equal(t, "Hi!", last.Content)
	assert.Equal(t, DefaultModel(models.ToolAssistant), p.lastReq.Model)
	assert.True(t, p.stream.closed)
}

func TestSendMarksStructuredResponses(t *testing.T) {
	p := &fakeProvider{stream: &fakeStream{fragments: []string{
		"Try this: [IDEA_START]Build a ", "habit tracker[IDEA_END] Good luck",
	}}}
	f := newGatewayFixture(storage.NewMemoryStorage(), p)

	err := f.gateway.Send(context.Background(), "user-1", models.ToolIdeas, "Portfolio site", &recordSink{})
	require.NoError(t, err)

	history := f.history(t, "user-1", models.ToolIdeas)
	require.Len(t, history, 2)
	assert.True(t, history[1].HasStructuredContent)

	segments := ExtractMarkers(history[1].Content)
	assert.Equal(t, MarkerIdea, segments.Kind)
	assert.Equal(t, "Build a habit tracker", segments.Payload)
}

func TestSendValidation(t *testing.T) {
	f := newGatewayFixture(storage.NewMemoryStorage(), &fakeProvider{})
	ctx := context.Background()

	err := f.gateway.Send(ctx, "user-1", models.ToolType("bogus"), "hi", &recordSink{})
	assert.ErrorIs(t, err, ErrInvalidToolType)

	err = f.gateway.Send(ctx, "user-1", models.ToolAssistant, "   ", &recordSink{})
	assert.ErrorIs(t, err, ErrEmptyMessage)

	// Rejected before any I/O: no thread, no messages
	assert.Empty(t, f.history(t, "user-1", models.ToolAssistant))
}

func TestSendProviderOpenFailure(t *testing.T) {
	p := &fakeProvider{openErr: provider.ErrMissingAPIKey}
	f := newGatewayFixture(storage.NewMemoryStorage(), p)
	sink := &recordSink{}

	err := f.gateway.Send(context.Background(), "user-1", models.ToolAssistant, "Hi!", sink)

	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.ErrorIs(t, err, provider.ErrMissingAPIKey)

	// Nothing was streamed and no assistant message exists; the user's own
	// message is the only new row.
	assert.Empty(t, sink.fragments)
	assert.Zero(t, sink.done)
	history := f.history(t, "user-1", models.ToolAssistant)
	require.Len(t, history, 1)
	assert.Equal(t, models.RoleUser, history[0].Role)
}

func TestSendMidStreamFailure(t *testing.T) {
	p := &fakeProvider{stream: &fakeStream{
		fragments: []string{"partial "},
		err:       errors.New("connection reset"),
	}}
	f := newGatewayFixture(storage.NewMemoryStorage(), p)
	sink := &recordSink{}

	// Mid-stream failures are in-band, not returned: headers are committed.
	err := f.gateway.Send(context.Background(), "user-1", models.ToolAssistant, "Hi!", sink)
	require.NoError(t, err)

	assert.Equal(t, []string{"partial "}, sink.fragments)
	require.Len(t, sink.errs, 1)
	assert.Zero(t, sink.done)

	// The partial text is never persisted
	history := f.history(t, "user-1", models.ToolAssistant)
	require.Len(t, history, 1)
	assert.Equal(t, models.RoleUser, history[0].Role)
}

func TestSendCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &fakeProvider{stream: &fakeStream{
		fragments: []string{"partial "},
		err:       context.Canceled,
	}}
	f := newGatewayFixture(storage.NewMemoryStorage(), p)
	sink := &recordSink{}

	cancel()
	err := f.gateway.Send(ctx, "user-1", models.ToolAssistant, "Hi!", sink)
	require.NoError(t, err)

	// No terminal frame for a caller that is gone, and the partial text is
	// discarded rather than persisted.
	assert.Empty(t, sink.errs)
	assert.Zero(t, sink.done)
	history := f.history(t, "user-1", models.ToolAssistant)
	require.Len(t, history, 1)
	assert.Equal(t, models.RoleUser, history[0].Role)
	assert.True(t, p.stream.closed)
}

func TestSendCallerWriteFailure(t *testing.T) {
	p := &fakeProvider{stream: &fakeStream{fragments: []string{"a", "b"}}}
	f := newGatewayFixture(storage.NewMemoryStorage(), p)
	sink := &recordSink{fragmentErr: errors.New("broken pipe")}

	err := f.gateway.Send(context.Background(), "user-1", models.ToolAssistant, "Hi!", sink)
	require.NoError(t, err)

	assert.Zero(t, sink.done)
	history := f.history(t, "user-1", models.ToolAssistant)
	require.Len(t, history, 1)
}

func TestSendPersistFailureAfterStream(t *testing.T) {
	store := &failingStore{MemoryStorage: storage.NewMemoryStorage(), failRole: models.RoleAssistant}
	p := &fakeProvider{stream: &fakeStream{fragments: []string{"the answer"}}}
	f := newGatewayFixture(store, p)
	sink := &recordSink{}

	// The caller already has the content in-stream: no error, still done.
	err := f.gateway.Send(context.Background(), "user-1", models.ToolAssistant, "Hi!", sink)
	require.NoError(t, err)
	assert.Equal(t, []string{"the answer"}, sink.fragments)
	assert.Empty(t, sink.errs)
	assert.Equal(t, 1, sink.done)
}

func TestSendUserPersistFailureFailsFast(t *testing.T) {
	store := &failingStore{MemoryStorage: storage.NewMemoryStorage(), failRole: models.RoleUser}
	p := &fakeProvider{stream: &fakeStream{fragments: []string{"never sent"}}}
	f := newGatewayFixture(store, p)
	sink := &recordSink{}

	err := f.gateway.Send(context.Background(), "user-1", models.ToolAssistant, "Hi!", sink)

	var persistence *PersistenceError
	require.ErrorAs(t, err, &persistence)
	assert.Empty(t, sink.fragments)
	assert.Zero(t, sink.done)
	assert.Empty(t, f.history(t, "user-1", models.ToolAssistant))
}

func TestSendTZHelperCapsTokens(t *testing.T) {
	p := &fakeProvider{stream: &fakeStream{fragments: []string{"spec"}}}
	f := newGatewayFixture(storage.NewMemoryStorage(), p)

	err := f.gateway.Send(context.Background(), "user-1", models.ToolTZHelper, "Write a spec", &recordSink{})
	require.NoError(t, err)
	assert.Equal(t, tzHelperMaxTokens, p.lastReq.MaxTokens)

	p2 := &fakeProvider{stream: &fakeStream{fragments: []string{"chat"}}}
	f2 := newGatewayFixture(storage.NewMemoryStorage(), p2)
	require.NoError(t, f2.gateway.Send(context.Background(), "user-1", models.ToolAssistant, "Hi", &recordSink{}))
	assert.Zero(t, p2.lastReq.MaxTokens)
}

func TestSendWindowIsBounded(t *testing.T) {
	store := storage.NewMemoryStorage()
	p := &fakeProvider{stream: &fakeStream{fragments: []string{"ok"}}}
	f := newGatewayFixture(store, p)
	ctx := context.Background()

	threadID, err := f.registry.EnsureThread(ctx, "user-1", models.ToolAssistant)
	require.NoError(t, err)
	for i := 0; i < 30; i++ {
		_, err := f.log.Append(ctx, threadID, models.RoleUser, "old message", false)
		require.NoError(t, err)
	}

	require.NoError(t, f.gateway.Send(ctx, "user-1", models.ToolAssistant, "newest", &recordSink{}))

	// System prompt plus at most the window of 20
	require.LessOrEqual(t, len(p.lastReq.Messages), DefaultWindowSize+1)
	last := p.lastReq.Messages[len(p.lastReq.Messages)-1]
	assert.Equal(t, "newest", last.Content)
}

func TestIdeaTransferScenario(t *testing.T) {
	p := &fakeProvider{stream: &fakeStream{fragments: []string{
		"How about this?\n[IDEA_START]A portfolio site with a blog[IDEA_END]\nHave fun!",
	}}}
	f := newGatewayFixture(storage.NewMemoryStorage(), p)
	logger := zap.NewNop()
	bridge := NewTransferBridge(f.registry, f.log, logger)
	ctx := context.Background()

	require.NoError(t, f.gateway.Send(ctx, "user-1", models.ToolIdeas, "Portfolio site", &recordSink{}))

	ideasBefore := f.history(t, "user-1", models.ToolIdeas)
	require.Len(t, ideasBefore, 2)
	require.True(t, ideasBefore[1].HasStructuredContent)

	payload := ExtractMarkers(ideasBefore[1].Content).Payload
	targetThreadID, err := bridge.Transfer(ctx, "user-1", payload, models.ToolTZHelper)
	require.NoError(t, err)

	// The extracted payload seeds the target thread as a user message
	target, err := f.log.History(ctx, targetThreadID)
	require.NoError(t, err)
	require.Len(t, target, 1)
	assert.Equal(t, models.RoleUser, target[0].Role)
	assert.Equal(t, "A portfolio site with a blog", target[0].Content)

	// The originating thread is untouched
	ideasAfter := f.history(t, "user-1", models.ToolIdeas)
	require.Len(t, ideasAfter, 2)
	assert.Equal(t, ideasBefore[0].ID, ideasAfter[0].ID)
	assert.Equal(t, ideasBefore[1].ID, ideasAfter[1].ID)
}

func TestTransferValidation(t *testing.T) {
	store := storage.NewMemoryStorage()
	registry := NewSessionRegistry(store)
	bridge := NewTransferBridge(registry, NewMessageLog(store), zap.NewNop())
	ctx := context.Background()

	_, err := bridge.Transfer(ctx, "user-1", "  ", models.ToolTZHelper)
	assert.ErrorIs(t, err, ErrEmptyPayload)

	_, err = bridge.Transfer(ctx, "user-1", "an idea", models.ToolType("bogus"))
	assert.ErrorIs(t, err, ErrInvalidToolType)
}

func TestDoubleSubmitBothTurnsSurvive(t *testing.T) {
	// Rapid double-submits are not serialized; each turn produces its own
	// user/assistant pair and the log stays consistent.
	store := storage.NewMemoryStorage()
	f1 := newGatewayFixture(store, &fakeProvider{stream: &fakeStream{fragments: []string{"first reply"}}})
	f2 := newGatewayFixture(store, &fakeProvider{stream: &fakeStream{fragments: []string{"second reply"}}})
	ctx := context.Background()

	require.NoError(t, f1.gateway.Send(ctx, "user-1", models.ToolAssistant, "first", &recordSink{}))
	require.NoError(t, f2.gateway.Send(ctx, "user-1", models.ToolAssistant, "second", &recordSink{}))

	history := f1.history(t, "user-1", models.ToolAssistant)
	require.Len(t, history, 4)

	var contents []string
	for _, m := range history {
		contents = append(contents, m.Content)
	}
	assert.Equal(t, []string{"first", "first reply", "second", "second reply"}, contents)
	assert.True(t, strings.HasPrefix(history[1].Content, "first"))
}
