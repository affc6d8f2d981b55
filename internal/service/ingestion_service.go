package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"comerse-go/internal/model"
	"comerse-go/internal/repository"
	"comerse-go/pkg/log"
	"comerse-go/pkg/search"
	"comerse-go/pkg/storage"
	"comerse-go/pkg/tasks"

	"github.com/google/uuid"
)

// IngestionService accepts tenant knowledge uploads, normalizes them into
// chunks, archives the raw file, and hands the chunks to the async indexing
// worker. The HTTP request returns as soon as the job is enqueued; embedding
// and indexing happen on the consumer.
type IngestionService interface {
	Upload(ctx context.Context, tenant *model.Tenant, fileName, dataType string, data []byte) (*model.TrainingJob, error)
	// Replace drops the tenant's entire knowledge index before ingesting,
	// so the upload becomes the new knowledge base.
	Replace(ctx context.Context, tenant *model.Tenant, fileName, dataType string, data []byte) (*model.TrainingJob, error)
	// DeleteKnowledgeBase removes every chunk the tenant has indexed.
	DeleteKnowledgeBase(ctx context.Context, tenant *model.Tenant) error
	GetJob(tenantID uint, jobID string) (*model.TrainingJob, error)
	ListJobs(tenantID uint) ([]model.TrainingJob, error)
}

type ingestionService struct {
	jobRepo  repository.TrainingJobRepository
	archive  *storage.Archive
	store    search.Store
	producer TaskPublisher
}

// NewIngestionService creates an IngestionService.
func NewIngestionService(
	jobRepo repository.TrainingJobRepository,
	archive *storage.Archive,
	store search.Store,
	producer TaskPublisher,
) IngestionService {
	return &ingestionService{
		jobRepo:  jobRepo,
		archive:  archive,
		store:    store,
		producer: producer,
	}
}

var validDataTypes = map[string]bool{
	"product": true,
	"faq":     true,
	"policy":  true,
	"custom":  true,
}

func (s *ingestionService) Upload(ctx context.Context, tenant *model.Tenant, fileName, dataType string, data []byte) (*model.TrainingJob, error) {
	if !validDataTypes[dataType] {
		return nil, fmt.Errorf("%w: unsupported data type %q", ErrValidation, dataType)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrValidation)
	}

	chunks, err := parseUpload(fileName, dataType, data)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: file contains no usable records", ErrValidation)
	}

	objectKey := fmt.Sprintf("%s/%s-%s", tenant.Namespace, uuid.New().String(), fileName)
	if err := s.archive.Put(ctx, objectKey, data, contentTypeFor(fileName)); err != nil {
		// archival is replay insurance, not a prerequisite for indexing
		log.Warnf("failed to archive upload: tenant=%d file=%s err=%v", tenant.ID, fileName, err)
		objectKey = ""
	}

	job := &model.TrainingJob{
		ID:         uuid.New().String(),
		TenantID:   tenant.ID,
		DataType:   dataType,
		FileName:   fileName,
		ObjectKey:  objectKey,
		ChunkCount: len(chunks),
		Status:     "processing",
	}
	if err := s.jobRepo.Create(job); err != nil {
		return nil, fmt.Errorf("failed to create training job: %w", err)
	}

	task := tasks.KnowledgeIngestTask{
		JobID:     job.ID,
		TenantID:  tenant.ID,
		Namespace: tenant.Namespace,
		Chunks:    chunks,
	}
	pubCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := s.producer.Publish(pubCtx, job.ID, task); err != nil {
		if finishErr := s.jobRepo.Finish(job.ID, "failed"); finishErr != nil {
			log.Errorf("failed to mark training job failed: job=%s err=%v", job.ID, finishErr)
		}
		return nil, fmt.Errorf("failed to enqueue ingest task: %w", err)
	}

	log.Infof("training upload accepted: tenant=%d job=%s type=%s chunks=%d", tenant.ID, job.ID, dataType, len(chunks))
	return job, nil
}

func (s *ingestionService) Replace(ctx context.Context, tenant *model.Tenant, fileName, dataType string, data []byte) (*model.TrainingJob, error) {
	if err := s.store.DropIndex(ctx, tenant.Namespace); err != nil {
		return nil, fmt.Errorf("failed to clear knowledge base: %w", err)
	}
	return s.Upload(ctx, tenant, fileName, dataType, data)
}

func (s *ingestionService) DeleteKnowledgeBase(ctx context.Context, tenant *model.Tenant) error {
	if err := s.store.DropIndex(ctx, tenant.Namespace); err != nil {
		return fmt.Errorf("failed to delete knowledge base: %w", err)
	}
	// recreate empty so retrieval keeps hitting a real index
	if err := s.store.EnsureIndex(ctx, tenant.Namespace); err != nil {
		return fmt.Errorf("failed to recreate knowledge index: %w", err)
	}
	log.Infof("knowledge base deleted: tenant=%d namespace=%s", tenant.ID, tenant.Namespace)
	return nil
}

func (s *ingestionService) GetJob(tenantID uint, jobID string) (*model.TrainingJob, error) {
	job, err := s.jobRepo.FindByID(jobID)
	if err != nil {
		return nil, err
	}
	if job.TenantID != tenantID {
		// a foreign job id looks identical to a missing one
		return nil, ErrTenantNotFound
	}
	return job, nil
}

func (s *ingestionService) ListJobs(tenantID uint) ([]model.TrainingJob, error) {
	return s.jobRepo.ListByTenant(tenantID)
}

// parseUpload normalizes a CSV or JSON upload into knowledge chunks. The file
// extension picks the parser; both converge on per-record field maps.
func parseUpload(fileName, dataType string, data []byte) ([]model.KnowledgeChunk, error) {
	var records []map[string]string
	var err error

	switch {
	case strings.HasSuffix(strings.ToLower(fileName), ".csv"):
		records, err = parseCSV(data)
	case strings.HasSuffix(strings.ToLower(fileName), ".json"):
		records, err = parseJSON(data)
	default:
		return nil, fmt.Errorf("%w: unsupported file format, expected .csv or .json", ErrValidation)
	}
	if err != nil {
		return nil, err
	}

	chunks := make([]model.KnowledgeChunk, 0, len(records))
	for _, rec := range records {
		content := renderRecord(dataType, rec)
		if strings.TrimSpace(content) == "" {
			continue
		}
		chunks = append(chunks, model.KnowledgeChunk{
			Content:  content,
			DataType: dataType,
			Metadata: rec,
		})
	}
	return chunks, nil
}

func parseCSV(data []byte) ([]map[string]string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: invalid csv: %v", ErrValidation, err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("%w: csv needs a header row and at least one data row", ErrValidation)
	}

	header := rows[0]
	for i, h := range header {
		header[i] = strings.ToLower(strings.TrimSpace(h))
	}

	records := make([]map[string]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rec := make(map[string]string, len(header))
		for i, cell := range row {
			if i >= len(header) || header[i] == "" {
				continue
			}
			rec[header[i]] = strings.TrimSpace(cell)
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseJSON(data []byte) ([]map[string]string, error) {
	var raw []map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: invalid json, expected an array of objects: %v", ErrValidation, err)
	}

	records := make([]map[string]string, 0, len(raw))
	for _, obj := range raw {
		rec := make(map[string]string, len(obj))
		for k, v := range obj {
			key := strings.ToLower(strings.TrimSpace(k))
			switch val := v.(type) {
			case string:
				rec[key] = strings.TrimSpace(val)
			case float64:
				rec[key] = strings.TrimRight(strings.TrimRight(fmt.Sprintf("%f", val), "0"), ".")
			case bool:
				rec[key] = fmt.Sprintf("%t", val)
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// renderRecord builds the retrievable text for one record. Each data type
// has its own field layout; unknown fields survive in chunk metadata only.
func renderRecord(dataType string, rec map[string]string) string {
	switch dataType {
	case "product":
		name := firstOf(rec, "name", "title", "product_name")
		var b strings.Builder
		if name != "" {
			fmt.Fprintf(&b, "Product: %s", name)
		}
		if desc := firstOf(rec, "description", "details"); desc != "" {
			fmt.Fprintf(&b, "\nDescription: %s", desc)
		}
		if price := rec["price"]; price != "" {
			fmt.Fprintf(&b, "\nPrice: %s", price)
		}
		if cat := rec["category"]; cat != "" {
			fmt.Fprintf(&b, "\nCategory: %s", cat)
		}
		if sku := rec["sku"]; sku != "" {
			fmt.Fprintf(&b, "\nSKU: %s", sku)
		}
		return b.String()
	case "faq":
		q := firstOf(rec, "question", "q")
		a := firstOf(rec, "answer", "a")
		if q == "" || a == "" {
			return ""
		}
		return fmt.Sprintf("Q: %s\nA: %s", q, a)
	case "policy":
		title := firstOf(rec, "title", "name", "policy")
		body := firstOf(rec, "content", "text", "description")
		if body == "" {
			return ""
		}
		if title == "" {
			return body
		}
		return fmt.Sprintf("%s:\n%s", title, body)
	default: // custom
		return firstOf(rec, "content", "text", "description")
	}
}

func firstOf(rec map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := rec[k]; v != "" {
			return v
		}
	}
	return ""
}

func contentTypeFor(fileName string) string {
	if strings.HasSuffix(strings.ToLower(fileName), ".json") {
		return "application/json"
	}
	return "text/csv"
}
