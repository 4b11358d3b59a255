package models

import (
	"gorm.io/gorm"
)

// Patient links a user to the professional that originated them and,
// optionally, to the company that pays for their sessions. CreatedAt ranks
// externally assigned patients for the school-tier commission exemption.
type Patient struct {
	gorm.Model
	UserID                  uint          `json:"user_id"`
	User                    User          `json:"user,omitempty" gorm:"foreignKey:UserID"`
	CompanyID               *uint         `json:"company_id"`
	Company                 *Company      `json:"company,omitempty" gorm:"foreignKey:CompanyID"`
	CreatedByProfessionalID *uint         `json:"created_by_professional_id"`
	Appointments            []Appointment `json:"appointments,omitempty" gorm:"foreignKey:PatientID"`
}
