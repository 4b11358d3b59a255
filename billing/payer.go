package billing

import (
	"errors"
	"fmt"

	"github.com/cuidarlink/clinic-app/models"
	"gorm.io/gorm"
)

// ErrNoPayer means no billable party exists for the patient.
var ErrNoPayer = errors.New("no payer could be resolved")

// ResolvePayer returns the user to bill for a patient's sessions: the
// patient's company when one is set, otherwise the patient's own user.
// The linkage is read without locking; see DESIGN.md on the accepted race
// between concurrent package creations.
func ResolvePayer(tx *gorm.DB, patient models.Patient) (models.User, error) {
	if patient.CompanyID != nil {
		var company models.Company
		if err := tx.Preload("User").First(&company, *patient.CompanyID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.User{}, ErrNoPayer
			}
			return models.User{}, fmt.Errorf("resolve company payer: %w", err)
		}
		return company.User, nil
	}

	var user models.User
	if err := tx.First(&user, patient.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.User{}, ErrNoPayer
		}
		return models.User{}, fmt.Errorf("resolve patient payer: %w", err)
	}
	return user, nil
}
