package billing

import (
	"github.com/cuidarlink/clinic-app/models"
	"gorm.io/gorm"
)

// DefaultCommissionRate is the platform's cut of a session's gross value.
const DefaultCommissionRate = 0.25

// SchoolExemptPatients is how many externally assigned patients a
// school-tier professional serves commission-free.
const SchoolExemptPatients = 2

// CommissionRate resolves the commission rate for one completed session.
// It is pure over its inputs: externalPatients must be the professional's
// externally assigned patients ordered by creation time ascending (see
// ExternalPatients), so the rank of the treated patient can be read off the
// slice without touching storage.
//
// Standard pays the flat rate. Licensed professionals are on a fixed-fee
// arrangement billed outside this system and pay nothing here. School-tier
// professionals pay nothing for patients they originated themselves nor for
// their first two external patients.
func CommissionRate(prof models.Professional, patient models.Patient, externalPatients []models.Patient) float64 {
	switch prof.Level {
	case models.LevelLicensed:
		return 0
	case models.LevelSchool:
		if patient.CreatedByProfessionalID != nil && *patient.CreatedByProfessionalID == prof.ID {
			return 0
		}
		for rank, p := range externalPatients {
			if p.ID == patient.ID {
				if rank < SchoolExemptPatients {
					return 0
				}
				break
			}
		}
		return DefaultCommissionRate
	}
	return DefaultCommissionRate
}

// ExternalPatients returns every patient linked to the professional by an
// explicit assignment or any historical appointment, excluding the ones the
// professional originated, ordered by patient creation time ascending. The
// position in this list is the patient's external rank.
func ExternalPatients(tx *gorm.DB, professionalID uint) ([]models.Patient, error) {
	var patients []models.Patient
	err := tx.Model(&models.Patient{}).
		Distinct("patients.*").
		Joins("LEFT JOIN appointments ON appointments.patient_id = patients.id AND appointments.deleted_at IS NULL").
		Where("appointments.professional_id = ?", professionalID).
		Where("patients.created_by_professional_id IS NULL OR patients.created_by_professional_id <> ?", professionalID).
		Order("patients.created_at asc").
		Find(&patients).Error
	if err != nil {
		return nil, err
	}
	return patients, nil
}
