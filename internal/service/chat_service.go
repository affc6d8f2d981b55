package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"comerse-go/internal/model"
	"comerse-go/internal/repository"
	"comerse-go/pkg/llm"
	"comerse-go/pkg/log"
	"comerse-go/pkg/tasks"
)

// TaskPublisher enqueues a task payload on a durable queue. Satisfied by
// *queue.Producer; the indirection keeps the streamer testable.
type TaskPublisher interface {
	Publish(ctx context.Context, key string, payload interface{}) error
}

// TurnRequest is one chat turn, already authenticated.
type TurnRequest struct {
	Tenant    *model.Tenant
	Messages  []model.ChatMessage
	SessionID string
	RequestID string
}

// TurnResult reports a completed turn.
type TurnResult struct {
	Answer    string
	ElapsedMs int64
}

// ChatService drives the retrieval-augmented chat turn: usage gate,
// retrieval, prompt composition, token streaming, and the post-completion
// record task.
type ChatService interface {
	StreamTurn(ctx context.Context, req *TurnRequest, w llm.ChunkWriter) (*TurnResult, error)
}

type chatService struct {
	gate              UsageGateService
	retrieval         RetrievalService
	llmClient         llm.Client
	turnProducer      TaskPublisher
	usageRepo         repository.UsageEventRepository
	retrievalTopK     int
	generationTimeout time.Duration
}

// NewChatService creates a ChatService.
func NewChatService(
	gate UsageGateService,
	retrieval RetrievalService,
	llmClient llm.Client,
	turnProducer TaskPublisher,
	usageRepo repository.UsageEventRepository,
	retrievalTopK int,
	generationTimeout time.Duration,
) ChatService {
	return &chatService{
		gate:              gate,
		retrieval:         retrieval,
		llmClient:         llmClient,
		turnProducer:      turnProducer,
		usageRepo:         usageRepo,
		retrievalTopK:     retrievalTopK,
		generationTimeout: generationTimeout,
	}
}

// StreamTurn runs one turn. Ordering within the request is strict: the gate
// and retrieval complete before generation starts, and the recorder task is
// enqueued only after the stream completed. Errors after the first streamed
// byte terminate the stream without a status change; the caller never sees a
// partial stream followed by a second error payload.
func (s *chatService) StreamTurn(ctx context.Context, req *TurnRequest, w llm.ChunkWriter) (*TurnResult, error) {
	query, err := latestUserMessage(req.Messages)
	if err != nil {
		return nil, err
	}

	if status := s.gate.Status(req.Tenant); !status.Allowed {
		return nil, ErrUsageExceeded
	}

	chunks := s.retrieval.Retrieve(ctx, req.Tenant, query, s.retrievalTopK)
	system := ComposePrompt(req.Tenant.Profile(), chunks)

	messages := make([]llm.Message, 0, len(req.Messages)+1)
	messages = append(messages, llm.Message{Role: "system", Content: system})
	for _, m := range req.Messages {
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}

	acc := &accumulatingWriter{inner: w}
	start := time.Now()

	genCtx, cancel := context.WithTimeout(ctx, s.generationTimeout)
	defer cancel()

	streamErr := s.llmClient.StreamChat(genCtx, messages, nil, acc)
	elapsed := time.Since(start).Milliseconds()

	if streamErr != nil {
		s.recordAbandoned(req, elapsed)
		if errors.Is(streamErr, context.Canceled) || errors.Is(genCtx.Err(), context.Canceled) {
			// caller disconnect: generation was aborted, nothing billed
			return nil, streamErr
		}
		if acc.wrote {
			// output already delivered; surface the raw error and let the
			// transport just end the stream
			return nil, streamErr
		}
		log.Errorf("generation failed before streaming: tenant=%d err=%v", req.Tenant.ID, streamErr)
		return nil, ErrUpstreamUnavailable
	}

	answer := acc.builder.String()

	// Completed fires exactly once per turn; the recorder subscribes to the
	// task, not to individual tokens. Use a background context so a caller
	// that disconnects right after the last token still gets recorded.
	task := tasks.TurnRecordTask{
		RequestID:  req.RequestID,
		TenantID:   req.Tenant.ID,
		SessionID:  req.SessionID,
		Query:      query,
		Answer:     answer,
		TokensUsed: 1,
		ElapsedMs:  elapsed,
	}
	pubCtx, pubCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer pubCancel()
	if err := s.turnProducer.Publish(pubCtx, req.RequestID, task); err != nil {
		// the response already streamed; losing the task loses one metered
		// unit, never the answer
		log.Errorf("failed to enqueue turn record task: request=%s tenant=%d err=%v", req.RequestID, req.Tenant.ID, err)
	}

	return &TurnResult{Answer: answer, ElapsedMs: elapsed}, nil
}

// recordAbandoned writes a best-effort unresolved usage event for
// observability. Failed turns are never billed, so this bypasses the
// recorder and its usage increment entirely.
func (s *chatService) recordAbandoned(req *TurnRequest, elapsedMs int64) {
	event := &model.UsageEvent{
		TenantID:       req.Tenant.ID,
		RequestID:      req.RequestID,
		QueryType:      "chat_abandoned",
		TokensUsed:     0,
		ResponseTimeMs: elapsedMs,
		Resolved:       false,
	}
	if err := s.usageRepo.Insert(event); err != nil && !errors.Is(err, repository.ErrDuplicateEvent) {
		log.Warnf("failed to record abandoned turn: request=%s err=%v", req.RequestID, err)
	}
}

func latestUserMessage(messages []model.ChatMessage) (string, error) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" && strings.TrimSpace(messages[i].Content) != "" {
			return messages[i].Content, nil
		}
	}
	return "", ErrValidation
}

// accumulatingWriter forwards chunks to the caller while capturing the full
// reply for the completion signal.
type accumulatingWriter struct {
	inner   llm.ChunkWriter
	builder strings.Builder
	wrote   bool
}

func (a *accumulatingWriter) WriteChunk(data []byte) error {
	a.builder.Write(data)
	a.wrote = true
	return a.inner.WriteChunk(data)
}
