package models

import (
	"gorm.io/gorm"
)

// Company is a corporate payer. When a patient belongs to a company, the
// company user is billed instead of the patient.
type Company struct {
	gorm.Model
	UserID uint   `json:"user_id"`
	User   User   `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Name   string `json:"name"`
}
