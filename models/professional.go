package models

import (
	"gorm.io/gorm"
)

type ProfessionalLevel string

const (
	LevelStandard ProfessionalLevel = "standard"
	LevelLicensed ProfessionalLevel = "licensed"
	LevelSchool   ProfessionalLevel = "school"
)

// Professional is the clinical-side profile of a user. Level drives the
// commission policy applied when sessions are completed.
type Professional struct {
	gorm.Model
	UserID uint              `json:"user_id"`
	User   User              `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Level  ProfessionalLevel `json:"level"`
}
