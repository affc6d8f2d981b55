package model

import "time"

// TrainingJob tracks one knowledge-base ingestion run.
type TrainingJob struct {
	ID         string     `gorm:"type:varchar(64);primaryKey" json:"id"`
	TenantID   uint       `gorm:"not null;index" json:"tenantId"`
	DataType   string     `gorm:"type:varchar(32);not null" json:"dataType"`
	FileName   string     `gorm:"type:varchar(255);not null" json:"fileName"`
	ObjectKey  string     `gorm:"type:varchar(512)" json:"objectKey"`
	ChunkCount int        `gorm:"not null;default:0" json:"chunkCount"`
	Status     string     `gorm:"type:varchar(32);not null;default:processing" json:"status"` // processing, completed, failed
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	FinishedAt *time.Time `gorm:"default:null" json:"finishedAt"`
}

func (TrainingJob) TableName() string {
	return "training_jobs"
}
