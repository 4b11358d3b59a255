package models

import (
	"time"

	"gorm.io/gorm"
)

type BillingStatus string

const (
	BillingUnbilled BillingStatus = "unbilled"
	BillingBilled   BillingStatus = "billed"
	BillingPaid     BillingStatus = "paid"
)

// ProfessionalBilling is one commission ledger row per completed,
// non-package appointment. AppointmentID is the idempotency key: a second
// insert for the same appointment is a no-op.
type ProfessionalBilling struct {
	gorm.Model
	ProfessionalID  uint          `json:"professional_id"`
	Professional    Professional  `json:"professional,omitempty" gorm:"foreignKey:ProfessionalID"`
	AppointmentID   uint          `json:"appointment_id" gorm:"uniqueIndex"`
	BillingDate     time.Time     `json:"billing_date"`
	GrossValue      float64       `json:"gross_value"`
	CommissionValue float64       `json:"commission_value"`
	Status          BillingStatus `json:"status"`
}

func (b *ProfessionalBilling) BeforeCreate(tx *gorm.DB) error {
	if b.Status == "" {
		b.Status = BillingUnbilled
	}
	return nil
}
