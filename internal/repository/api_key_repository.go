package repository

import (
	"time"

	"comerse-go/internal/model"

	"gorm.io/gorm"
)

// APIKeyRepository persists widget API keys. Keys are stored as SHA-256
// hashes only.
type APIKeyRepository interface {
	Create(k *model.APIKey) error
	FindByHash(keyHash string) (*model.APIKey, error)
	// TouchLastUsed stamps the key's last_used column. Called off the
	// request path; a failure must not fail the request.
	TouchLastUsed(keyHash string) error
	ListByTenant(tenantID uint) ([]model.APIKey, error)
}

type apiKeyRepository struct {
	db *gorm.DB
}

// NewAPIKeyRepository creates a gorm-backed APIKeyRepository.
func NewAPIKeyRepository(db *gorm.DB) APIKeyRepository {
	return &apiKeyRepository{db: db}
}

func (r *apiKeyRepository) Create(k *model.APIKey) error {
	return r.db.Create(k).Error
}

func (r *apiKeyRepository) FindByHash(keyHash string) (*model.APIKey, error) {
	var k model.APIKey
	if err := r.db.Where("key_hash = ?", keyHash).First(&k).Error; err != nil {
		return nil, err
	}
	return &k, nil
}

func (r *apiKeyRepository) TouchLastUsed(keyHash string) error {
	now := time.Now()
	return r.db.Model(&model.APIKey{}).
		Where("key_hash = ?", keyHash).
		UpdateColumn("last_used", now).Error
}

func (r *apiKeyRepository) ListByTenant(tenantID uint) ([]model.APIKey, error) {
	var keys []model.APIKey
	err := r.db.Where("tenant_id = ?", tenantID).Order("created_at desc").Find(&keys).Error
	return keys, err
}
