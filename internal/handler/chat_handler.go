// Package handler contains the HTTP controllers.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"comerse-go/internal/model"
	"comerse-go/internal/repository"
	"comerse-go/internal/service"
	"comerse-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// the widget is embedded on arbitrary merchant storefronts
		return true
	},
}

// ChatHandler exposes the chat turn over SSE and websocket. Both transports
// run the same pipeline; only the chunk delivery differs.
type ChatHandler struct {
	identity    service.IdentityService
	chatService service.ChatService
	sessionRepo repository.SessionRepository
	historyTurn int
}

// NewChatHandler creates a ChatHandler.
func NewChatHandler(identity service.IdentityService, chatService service.ChatService, sessionRepo repository.SessionRepository, historyTurnLimit int) *ChatHandler {
	return &ChatHandler{
		identity:    identity,
		chatService: chatService,
		sessionRepo: sessionRepo,
		historyTurn: historyTurnLimit,
	}
}

// sseWriter flushes each generated chunk to the client as one SSE data
// event. Headers go out with the first chunk, so errors raised before any
// output can still map to a plain-text status.
type sseWriter struct {
	w       gin.ResponseWriter
	flusher http.Flusher
	started bool
}

func (s *sseWriter) WriteChunk(data []byte) error {
	if !s.started {
		s.w.Header().Set("Content-Type", "text/event-stream")
		s.w.Header().Set("Cache-Control", "no-cache")
		s.w.Header().Set("Connection", "keep-alive")
		s.started = true
	}
	if _, err := s.w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := s.w.Write(data); err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("\n\n")); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// Stream handles POST /api/v1/chat. Errors before the first chunk map to
// plain-text statuses; once streaming started the stream just ends.
func (h *ChatHandler) Stream(c *gin.Context) {
	var req model.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.String(http.StatusBadRequest, "invalid request body")
		return
	}

	// embedded-widget traffic carries an API key; dashboard traffic (the
	// merchant testing their own bot) carries a Bearer session token instead
	apiKey := req.APIKey
	if apiKey == "" {
		apiKey = c.GetHeader("X-API-Key")
	}
	cred := service.Credential{APIKey: apiKey}
	if apiKey == "" {
		cred = service.Credential{SessionToken: bearerToken(c)}
	}
	tenant, err := h.identity.Resolve(c.Request.Context(), cred)
	if err != nil {
		writeTurnError(c, err)
		return
	}

	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.New().String()
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.String(http.StatusInternalServerError, "streaming unsupported")
		return
	}

	c.Header("X-Request-ID", requestID)
	c.Header("X-Session-ID", sessionID)

	turn := &service.TurnRequest{
		Tenant:    tenant,
		Messages:  req.Messages,
		SessionID: sessionID,
		RequestID: requestID,
	}
	writer := &sseWriter{w: c.Writer, flusher: flusher}

	if _, err := h.chatService.StreamTurn(c.Request.Context(), turn, writer); err != nil {
		if !c.Writer.Written() {
			writeTurnError(c, err)
		}
		return
	}

	writer.w.Write([]byte("data: [DONE]\n\n"))
	flusher.Flush()
}

// wsChunkWriter delivers chunks as websocket text frames.
type wsChunkWriter struct {
	conn *websocket.Conn
}

func (w *wsChunkWriter) WriteChunk(data []byte) error {
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

type wsTurnRequest struct {
	Messages  []model.ChatMessage `json:"messages"`
	SessionID string              `json:"sessionId"`
	RequestID string              `json:"requestId"`
}

// Handle serves the widget websocket at /api/v1/chat/ws/:apikey. Each inbound
// frame is one turn request; chunks stream back as text frames followed by a
// JSON completion frame.
func (h *ChatHandler) Handle(c *gin.Context) {
	tenant, err := h.identity.Resolve(c.Request.Context(), service.Credential{APIKey: c.Param("apikey")})
	if err != nil {
		c.String(http.StatusUnauthorized, "invalid api key")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("websocket upgrade failed", err)
		return
	}
	defer conn.Close()

	log.Infof("widget websocket connected: tenant=%d", tenant.ID)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Warnf("websocket read failed: %v", err)
			break
		}

		var req wsTurnRequest
		if err := json.Unmarshal(message, &req); err != nil || len(req.Messages) == 0 {
			// a bare text frame is treated as a single user message
			req = wsTurnRequest{Messages: []model.ChatMessage{{Role: "user", Content: string(message)}}}
		}
		if req.SessionID == "" {
			req.SessionID = uuid.New().String()
		}
		if req.RequestID == "" {
			req.RequestID = uuid.New().String()
		}

		turn := &service.TurnRequest{
			Tenant:    tenant,
			Messages:  req.Messages,
			SessionID: req.SessionID,
			RequestID: req.RequestID,
		}
		result, err := h.chatService.StreamTurn(c.Request.Context(), turn, &wsChunkWriter{conn: conn})
		if err != nil {
			log.Errorf("websocket turn failed: tenant=%d err=%v", tenant.ID, err)
			_ = conn.WriteJSON(gin.H{"type": "error", "message": turnErrorMessage(err)})
			continue
		}
		_ = conn.WriteJSON(gin.H{
			"type":      "completion",
			"requestId": req.RequestID,
			"sessionId": req.SessionID,
			"elapsedMs": result.ElapsedMs,
		})
	}
}

// History handles GET /api/v1/chat/sessions/:sessionId (widget auth via API
// key): the folded session log in sequence order.
func (h *ChatHandler) History(c *gin.Context) {
	apiKey := c.GetHeader("X-API-Key")
	tenant, err := h.identity.Resolve(c.Request.Context(), service.Credential{APIKey: apiKey})
	if err != nil {
		writeTurnError(c, err)
		return
	}

	entries, err := h.sessionRepo.History(c.Request.Context(), tenant.ID, c.Param("sessionId"), h.historyTurn*2)
	if err != nil {
		log.Errorf("failed to read session history: tenant=%d err=%v", tenant.ID, err)
		c.String(http.StatusInternalServerError, "internal error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessionId": c.Param("sessionId"), "messages": entries})
}

// bearerToken extracts the session token from the Authorization header.
func bearerToken(c *gin.Context) string {
	const prefix = "Bearer "
	auth := c.GetHeader("Authorization")
	if strings.HasPrefix(auth, prefix) {
		return strings.TrimPrefix(auth, prefix)
	}
	return ""
}

func writeTurnError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrUnauthenticated):
		c.String(http.StatusUnauthorized, "invalid or missing credentials")
	case errors.Is(err, service.ErrTenantNotFound):
		c.String(http.StatusNotFound, "tenant not found")
	case errors.Is(err, service.ErrUsageExceeded):
		c.String(http.StatusPaymentRequired, "monthly usage limit exceeded")
	case errors.Is(err, service.ErrValidation):
		c.String(http.StatusBadRequest, "invalid request")
	default:
		c.String(http.StatusInternalServerError, "internal error")
	}
}

func turnErrorMessage(err error) string {
	switch {
	case errors.Is(err, service.ErrUsageExceeded):
		return "monthly usage limit exceeded"
	case errors.Is(err, service.ErrValidation):
		return "invalid request"
	default:
		return "the assistant is temporarily unavailable, please retry"
	}
}
