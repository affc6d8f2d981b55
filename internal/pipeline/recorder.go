// Package pipeline contains the Kafka task processors.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"comerse-go/internal/model"
	"comerse-go/internal/repository"
	"comerse-go/pkg/log"
	"comerse-go/pkg/tasks"
)

// Recorder consumes TurnRecordTask messages and performs the three
// post-completion writes: the usage increment, the usage event, and the
// session append. The writes hit independent stores with no cross-store
// transaction; each is guarded by its own idempotency marker so a
// redelivered task retries only the writes that have not succeeded yet.
// Usage accounting runs first: a failure in the other two never blocks it.
type Recorder struct {
	tenantRepo  repository.TenantRepository
	usageRepo   repository.UsageEventRepository
	sessionRepo repository.SessionRepository
	idem        repository.IdempotencyStore
}

// NewRecorder creates a Recorder.
func NewRecorder(
	tenantRepo repository.TenantRepository,
	usageRepo repository.UsageEventRepository,
	sessionRepo repository.SessionRepository,
	idem repository.IdempotencyStore,
) *Recorder {
	return &Recorder{
		tenantRepo:  tenantRepo,
		usageRepo:   usageRepo,
		sessionRepo: sessionRepo,
		idem:        idem,
	}
}

// Handle processes one completed turn. Returning an error leaves the Kafka
// offset uncommitted, so the task is redelivered and retried.
func (r *Recorder) Handle(ctx context.Context, key string, value []byte) error {
	var task tasks.TurnRecordTask
	if err := json.Unmarshal(value, &task); err != nil {
		// malformed payloads are not retryable
		log.Errorf("failed to unmarshal turn record task: key=%s err=%v", key, err)
		return nil
	}

	var errs []error

	if err := r.incrementUsage(ctx, &task); err != nil {
		errs = append(errs, err)
	}
	if err := r.insertUsageEvent(ctx, &task); err != nil {
		errs = append(errs, err)
	}
	if err := r.appendSession(ctx, &task); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// incrementUsage adds the turn's metered unit to the tenant counter. The
// increment itself is atomic at the store layer; the marker makes retries
// of the whole task add zero.
func (r *Recorder) incrementUsage(ctx context.Context, task *tasks.TurnRecordTask) error {
	fresh, err := r.idem.Acquire(ctx, task.RequestID+":usage")
	if err != nil {
		return fmt.Errorf("usage marker: %w", err)
	}
	if !fresh {
		return nil
	}

	if err := r.tenantRepo.IncrementUsage(task.TenantID, int64(task.TokensUsed)); err != nil {
		// give the retry another shot at the increment
		if relErr := r.idem.Release(ctx, task.RequestID+":usage"); relErr != nil {
			log.Errorf("failed to release usage marker: request=%s err=%v", task.RequestID, relErr)
		}
		return fmt.Errorf("usage increment: %w", err)
	}
	return nil
}

func (r *Recorder) insertUsageEvent(ctx context.Context, task *tasks.TurnRecordTask) error {
	fresh, err := r.idem.Acquire(ctx, task.RequestID+":event")
	if err != nil {
		return fmt.Errorf("event marker: %w", err)
	}
	if !fresh {
		return nil
	}

	event := &model.UsageEvent{
		TenantID:       task.TenantID,
		RequestID:      task.RequestID,
		QueryType:      "chat_query",
		TokensUsed:     task.TokensUsed,
		ResponseTimeMs: task.ElapsedMs,
		Resolved:       true,
	}
	if err := r.usageRepo.Insert(event); err != nil && !errors.Is(err, repository.ErrDuplicateEvent) {
		if relErr := r.idem.Release(ctx, task.RequestID+":event"); relErr != nil {
			log.Errorf("failed to release event marker: request=%s err=%v", task.RequestID, relErr)
		}
		return fmt.Errorf("usage event insert: %w", err)
	}
	return nil
}

func (r *Recorder) appendSession(ctx context.Context, task *tasks.TurnRecordTask) error {
	fresh, err := r.idem.Acquire(ctx, task.RequestID+":session")
	if err != nil {
		return fmt.Errorf("session marker: %w", err)
	}
	if !fresh {
		return nil
	}

	now := time.Now()
	entries := []model.SessionEntry{
		{RequestID: task.RequestID, Role: "user", Content: task.Query, Timestamp: now},
		{RequestID: task.RequestID, Role: "assistant", Content: task.Answer, Timestamp: now},
	}
	if err := r.sessionRepo.Append(ctx, task.TenantID, task.SessionID, entries); err != nil {
		if relErr := r.idem.Release(ctx, task.RequestID+":session"); relErr != nil {
			log.Errorf("failed to release session marker: request=%s err=%v", task.RequestID, relErr)
		}
		return fmt.Errorf("session append: %w", err)
	}
	return nil
}
