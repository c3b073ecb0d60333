package models

import "time"

// BaseModel is shared by every persisted entity.
type BaseModel struct {
	ID        string `gorm:"primaryKey;type:uuid"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
