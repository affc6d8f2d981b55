// Package tasks defines the payloads carried on the Kafka task topics.
package tasks

import "comerse-go/internal/model"

// TurnRecordTask is enqueued exactly once per completed chat turn. RequestID
// doubles as the idempotency key: redelivery of the same task must not
// double-count usage.
type TurnRecordTask struct {
	RequestID  string `json:"request_id"`
	TenantID   uint   `json:"tenant_id"`
	SessionID  string `json:"session_id"`
	Query      string `json:"query"`
	Answer     string `json:"answer"`
	TokensUsed int    `json:"tokens_used"`
	ElapsedMs  int64  `json:"elapsed_ms"`
}

// KnowledgeIngestTask carries normalized chunks from an upload to the
// embedding/indexing worker.
type KnowledgeIngestTask struct {
	JobID     string                 `json:"job_id"`
	TenantID  uint                   `json:"tenant_id"`
	Namespace string                 `json:"namespace"`
	Chunks    []model.KnowledgeChunk `json:"chunks"`
}
