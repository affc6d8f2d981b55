package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"comerse-go/internal/model"
	"comerse-go/internal/service"
	"comerse-go/pkg/llm"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubIdentity struct {
	tenant *model.Tenant
	creds  []service.Credential
}

func (s *stubIdentity) Resolve(ctx context.Context, cred service.Credential) (*model.Tenant, error) {
	s.creds = append(s.creds, cred)
	if cred.APIKey == "key-ok" || cred.SessionToken == "session-ok" {
		return s.tenant, nil
	}
	return nil, service.ErrUnauthenticated
}

type stubChat struct {
	turns  []*service.TurnRequest
	chunks []string
	err    error
}

func (s *stubChat) StreamTurn(ctx context.Context, req *service.TurnRequest, w llm.ChunkWriter) (*service.TurnResult, error) {
	s.turns = append(s.turns, req)
	for _, chunk := range s.chunks {
		if err := w.WriteChunk([]byte(chunk)); err != nil {
			return nil, err
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return &service.TurnResult{Answer: strings.Join(s.chunks, ""), ElapsedMs: 5}, nil
}

type stubSessionRepo struct{}

func (stubSessionRepo) Append(ctx context.Context, tenantID uint, sessionID string, entries []model.SessionEntry) error {
	return nil
}

func (stubSessionRepo) History(ctx context.Context, tenantID uint, sessionID string, limit int) ([]model.SessionEntry, error) {
	return nil, nil
}

func (stubSessionRepo) EnsureExpiry(ctx context.Context) (int, error) { return 0, nil }

func newChatRouter(identity *stubIdentity, chat *stubChat) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewChatHandler(identity, chat, stubSessionRepo{}, 25)
	r.POST("/api/v1/chat", h.Stream)
	return r
}

const chatBody = `{"messages":[{"role":"user","content":"where is my order?"}],"sessionId":"sess-1"}`

func TestStream_APIKeyHeader(t *testing.T) {
	identity := &stubIdentity{tenant: &model.Tenant{ID: 1}}
	chat := &stubChat{chunks: []string{"It ships ", "tomorrow."}}
	r := newChatRouter(identity, chat)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(chatBody))
	req.Header.Set("X-API-Key", "key-ok")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "data: It ships ")
	assert.Contains(t, w.Body.String(), "data: [DONE]")
	require.Len(t, chat.turns, 1)
	assert.Equal(t, uint(1), chat.turns[0].Tenant.ID)
}

func TestStream_SessionTokenFallback(t *testing.T) {
	identity := &stubIdentity{tenant: &model.Tenant{ID: 7}}
	chat := &stubChat{chunks: []string{"hello"}}
	r := newChatRouter(identity, chat)

	// no API key anywhere: the dashboard's Bearer session token authenticates
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(chatBody))
	req.Header.Set("Authorization", "Bearer session-ok")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "data: hello")
	require.Len(t, identity.creds, 1)
	assert.Empty(t, identity.creds[0].APIKey)
	assert.Equal(t, "session-ok", identity.creds[0].SessionToken)
	require.Len(t, chat.turns, 1)
	assert.Equal(t, uint(7), chat.turns[0].Tenant.ID)
}

func TestStream_APIKeyWinsOverSession(t *testing.T) {
	identity := &stubIdentity{tenant: &model.Tenant{ID: 1}}
	chat := &stubChat{chunks: []string{"ok"}}
	r := newChatRouter(identity, chat)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(chatBody))
	req.Header.Set("X-API-Key", "key-ok")
	req.Header.Set("Authorization", "Bearer session-ok")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, identity.creds, 1)
	assert.Equal(t, "key-ok", identity.creds[0].APIKey)
	assert.Empty(t, identity.creds[0].SessionToken)
}

func TestStream_MissingCredential(t *testing.T) {
	identity := &stubIdentity{tenant: &model.Tenant{ID: 1}}
	chat := &stubChat{}
	r := newChatRouter(identity, chat)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(chatBody))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, chat.turns)
}

func TestStream_UsageExceededBeforeStreaming(t *testing.T) {
	identity := &stubIdentity{tenant: &model.Tenant{ID: 1}}
	chat := &stubChat{err: service.ErrUsageExceeded}
	r := newChatRouter(identity, chat)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(chatBody))
	req.Header.Set("X-API-Key", "key-ok")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	// the error went out as plain text, not as an SSE stream
	assert.NotEqual(t, "text/event-stream", w.Header().Get("Content-Type"))
}
