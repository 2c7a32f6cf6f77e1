// internal/models/search_history.go
package models

import "github.com/google/uuid"

type SearchHistory struct {
	BaseModel
	UserID uuid.UUID `json:"user_id" gorm:"type:uuid;not null;index"`
	Query  string    `json:"query" gorm:"size:255;not null"`
}
