package models

import (
	"time"

	"gorm.io/gorm"
)

type Frequency string

const (
	FrequencyNone     Frequency = "none"
	FrequencyWeekly   Frequency = "weekly"
	FrequencyBiweekly Frequency = "biweekly"
)

// IntervalDays returns the number of days between occurrences, or 0 for a
// non-recurring frequency.
func (f Frequency) IntervalDays() int {
	switch f {
	case FrequencyWeekly:
		return 7
	case FrequencyBiweekly:
		return 14
	}
	return 0
}

// AppointmentSeries is the recurrence rule a batch of appointments was
// generated from. Appointments hold the back-reference; deleting future
// occurrences never deletes the series row itself.
type AppointmentSeries struct {
	gorm.Model
	ProfessionalID uint          `json:"professional_id"`
	PatientID      uint          `json:"patient_id"`
	StartDate      time.Time     `json:"start_date"`
	Frequency      Frequency     `json:"frequency"`
	SessionValue   *float64      `json:"session_value"`
	Appointments   []Appointment `json:"appointments,omitempty" gorm:"foreignKey:SeriesID"`
}
