package model

import "time"

// APIKey is a long-lived widget credential. Only the SHA-256 hash of the key
// is stored; the plaintext is returned once at creation time.
type APIKey struct {
	ID        uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	TenantID  uint       `gorm:"not null;index" json:"tenantId"`
	KeyHash   string     `gorm:"type:char(64);not null;uniqueIndex" json:"-"`
	Name      string     `gorm:"type:varchar(100);not null" json:"name"`
	LastUsed  *time.Time `gorm:"default:null" json:"lastUsed"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"createdAt"`
}

func (APIKey) TableName() string {
	return "api_keys"
}
