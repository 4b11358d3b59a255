package models

import (
	"time"

	"gorm.io/gorm"
)

type Notification struct {
	gorm.Model
	UserID  uint       `json:"user_id"`
	Type    string     `json:"type"`
	Message string     `json:"message"`
	Path    string     `json:"path"`
	ReadAt  *time.Time `json:"read_at"`
}
