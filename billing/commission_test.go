package billing

import (
	"testing"

	"github.com/cuidarlink/clinic-app/models"
	"gorm.io/gorm"
)

func professional(id uint, level models.ProfessionalLevel) models.Professional {
	return models.Professional{Model: gorm.Model{ID: id}, Level: level}
}

func patient(id uint, createdBy *uint) models.Patient {
	return models.Patient{Model: gorm.Model{ID: id}, CreatedByProfessionalID: createdBy}
}

func TestCommissionRate(t *testing.T) {
	profID := uint(1)
	otherID := uint(9)

	externals := []models.Patient{
		patient(10, &otherID),
		patient(11, nil),
		patient(12, &otherID),
		patient(13, nil),
	}

	tests := []struct {
		name    string
		prof    models.Professional
		patient models.Patient
		want    float64
	}{
		{name: "standard flat rate", prof: professional(profID, models.LevelStandard), patient: patient(10, &otherID), want: 0.25},
		{name: "standard own patient still pays", prof: professional(profID, models.LevelStandard), patient: patient(20, &profID), want: 0.25},
		{name: "licensed pays nothing", prof: professional(profID, models.LevelLicensed), patient: patient(10, &otherID), want: 0},
		{name: "school self-originated exempt", prof: professional(profID, models.LevelSchool), patient: patient(20, &profID), want: 0},
		{name: "school external rank 0 exempt", prof: professional(profID, models.LevelSchool), patient: patient(10, &otherID), want: 0},
		{name: "school external rank 1 exempt", prof: professional(profID, models.LevelSchool), patient: patient(11, nil), want: 0},
		{name: "school external rank 2 pays", prof: professional(profID, models.LevelSchool), patient: patient(12, &otherID), want: 0.25},
		{name: "school external rank 3 pays", prof: professional(profID, models.LevelSchool), patient: patient(13, nil), want: 0.25},
		{name: "school unknown external pays", prof: professional(profID, models.LevelSchool), patient: patient(99, &otherID), want: 0.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CommissionRate(tt.prof, tt.patient, externals); got != tt.want {
				t.Fatalf("CommissionRate() = %v, want %v", got, tt.want)
			}
		})
	}
}
