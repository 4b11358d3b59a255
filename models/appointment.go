package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

type AppointmentStatus string

const (
	StatusScheduled       AppointmentStatus = "scheduled"
	StatusAwaitingPayment AppointmentStatus = "awaiting_payment"
	StatusCompleted       AppointmentStatus = "completed"
	StatusCancelled       AppointmentStatus = "cancelled"
)

// PendingReviewAge is how old a scheduled, non-package appointment must be
// before it is flagged for review.
const PendingReviewAge = 27 * time.Hour

type Appointment struct {
	gorm.Model
	SeriesID         *uint              `json:"series_id"`
	Series           *AppointmentSeries `json:"series,omitempty" gorm:"foreignKey:SeriesID"`
	ProfessionalID   uint               `json:"professional_id"`
	Professional     Professional       `json:"professional,omitempty" gorm:"foreignKey:ProfessionalID"`
	PatientID        uint               `json:"patient_id"`
	Patient          Patient            `json:"patient,omitempty" gorm:"foreignKey:PatientID"`
	StartTime        time.Time          `json:"start_time"`
	SessionValue     *float64           `json:"session_value"`
	Status           AppointmentStatus  `json:"status"`
	PackageInvoiceID *uint              `json:"package_invoice_id"`
	PackageInvoice   *Invoice           `json:"package_invoice,omitempty" gorm:"foreignKey:PackageInvoiceID"`
	IsPendingReview  bool               `json:"is_pending_review" gorm:"-"`
}

func (a *Appointment) BeforeCreate(tx *gorm.DB) error {
	if a.Status == "" {
		a.Status = StatusScheduled
	}
	return nil
}

func (a *Appointment) AfterFind(tx *gorm.DB) error {
	a.IsPendingReview = a.PendingReviewAt(time.Now())
	return nil
}

// PendingReviewAt reports whether the appointment should be flagged for
// review at the given instant: still scheduled, older than 27 hours and not
// part of a pre-paid package. Derived on read, never stored.
func (a *Appointment) PendingReviewAt(now time.Time) bool {
	return a.Status == StatusScheduled &&
		a.StartTime.Before(now.Add(-PendingReviewAge)) &&
		a.PackageInvoiceID == nil
}

// CanTransition reports whether the status machine allows moving to the
// target status. Transitions only go forward; completed and cancelled are
// terminal. An awaiting_payment appointment can only be cancelled here; it
// goes back to scheduled solely through package payment confirmation.
func (a *Appointment) CanTransition(to AppointmentStatus) error {
	switch a.Status {
	case StatusScheduled:
		if to != StatusCompleted && to != StatusCancelled {
			return fmt.Errorf("invalid transition from scheduled to %s", to)
		}
	case StatusAwaitingPayment:
		if to != StatusCancelled {
			return fmt.Errorf("appointment awaits package payment, only cancellation is allowed")
		}
	case StatusCompleted, StatusCancelled:
		return fmt.Errorf("no transitions allowed from %s", a.Status)
	}
	return nil
}

// IsValidStatus reports whether s is a status a caller may request.
func IsValidStatus(s AppointmentStatus) bool {
	switch s {
	case StatusScheduled, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}
