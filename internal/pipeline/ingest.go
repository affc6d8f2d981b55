package pipeline

import (
	"context"
	"encoding/json"

	"comerse-go/internal/model"
	"comerse-go/internal/repository"
	"comerse-go/pkg/embedding"
	"comerse-go/pkg/log"
	"comerse-go/pkg/search"
	"comerse-go/pkg/tasks"

	"github.com/google/uuid"
)

// Ingestor consumes KnowledgeIngestTask messages: it embeds each chunk and
// indexes it into the tenant's namespace, then finalizes the training job.
type Ingestor struct {
	jobRepo  repository.TrainingJobRepository
	embedder embedding.Client
	store    search.Store
}

// NewIngestor creates an Ingestor.
func NewIngestor(jobRepo repository.TrainingJobRepository, embedder embedding.Client, store search.Store) *Ingestor {
	return &Ingestor{
		jobRepo:  jobRepo,
		embedder: embedder,
		store:    store,
	}
}

// Handle processes one ingestion job. Chunk indexing is idempotent per run
// because a failed run is retried wholesale; re-indexed chunks just overwrite
// their documents.
func (g *Ingestor) Handle(ctx context.Context, key string, value []byte) error {
	var task tasks.KnowledgeIngestTask
	if err := json.Unmarshal(value, &task); err != nil {
		log.Errorf("failed to unmarshal ingest task: key=%s err=%v", key, err)
		return nil
	}

	if err := g.store.EnsureIndex(ctx, task.Namespace); err != nil {
		return g.fail(task.JobID, err)
	}

	indexed := 0
	for _, chunk := range task.Chunks {
		vector, err := g.embedder.CreateEmbedding(ctx, chunk.Content)
		if err != nil {
			return g.fail(task.JobID, err)
		}

		doc := model.ChunkDocument{
			ChunkID:  uuid.New().String(),
			Content:  chunk.Content,
			Vector:   vector,
			DataType: chunk.DataType,
			Metadata: chunk.Metadata,
		}
		if err := g.store.IndexChunk(ctx, task.Namespace, doc); err != nil {
			return g.fail(task.JobID, err)
		}
		indexed++
	}

	if err := g.jobRepo.Finish(task.JobID, "completed"); err != nil {
		log.Errorf("failed to mark training job completed: job=%s err=%v", task.JobID, err)
		return err
	}

	log.Infof("ingestion completed: job=%s namespace=%s chunks=%d", task.JobID, task.Namespace, indexed)
	return nil
}

// fail records the job failure and still returns the error so the queue
// retries the task until its attempt cap.
func (g *Ingestor) fail(jobID string, err error) error {
	log.Errorf("ingestion failed: job=%s err=%v", jobID, err)
	if finishErr := g.jobRepo.Finish(jobID, "failed"); finishErr != nil {
		log.Errorf("failed to mark training job failed: job=%s err=%v", jobID, finishErr)
	}
	return err
}
