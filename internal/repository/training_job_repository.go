package repository

import (
	"time"

	"comerse-go/internal/model"

	"gorm.io/gorm"
)

// TrainingJobRepository tracks knowledge-base ingestion runs.
type TrainingJobRepository interface {
	Create(j *model.TrainingJob) error
	FindByID(id string) (*model.TrainingJob, error)
	ListByTenant(tenantID uint) ([]model.TrainingJob, error)
	Finish(id, status string) error
}

type trainingJobRepository struct {
	db *gorm.DB
}

// NewTrainingJobRepository creates a gorm-backed TrainingJobRepository.
func NewTrainingJobRepository(db *gorm.DB) TrainingJobRepository {
	return &trainingJobRepository{db: db}
}

func (r *trainingJobRepository) Create(j *model.TrainingJob) error {
	return r.db.Create(j).Error
}

func (r *trainingJobRepository) FindByID(id string) (*model.TrainingJob, error) {
	var j model.TrainingJob
	if err := r.db.Where("id = ?", id).First(&j).Error; err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *trainingJobRepository) ListByTenant(tenantID uint) ([]model.TrainingJob, error) {
	var jobs []model.TrainingJob
	err := r.db.Where("tenant_id = ?", tenantID).Order("created_at desc").Find(&jobs).Error
	return jobs, err
}

func (r *trainingJobRepository) Finish(id, status string) error {
	now := time.Now()
	return r.db.Model(&model.TrainingJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":      status,
			"finished_at": now,
		}).Error
}
