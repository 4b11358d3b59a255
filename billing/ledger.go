package billing

import (
	"fmt"
	"time"

	"github.com/cuidarlink/clinic-app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreateInvoice writes an invoice inside the caller's transaction.
func CreateInvoice(tx *gorm.DB, payerUserID, creatorUserID uint, amount float64, dueDate time.Time, description string) (models.Invoice, error) {
	invoice := models.Invoice{
		PayerUserID:   payerUserID,
		CreatorUserID: creatorUserID,
		Amount:        amount,
		DueDate:       dueDate,
		Description:   description,
		Status:        models.InvoicePending,
	}
	if err := tx.Create(&invoice).Error; err != nil {
		return models.Invoice{}, fmt.Errorf("create invoice: %w", err)
	}
	return invoice, nil
}

// RecordCommission inserts one commission ledger row for a completed
// appointment. The unique index on appointment_id makes a repeat insert a
// no-op, so completing the same appointment twice can never double-bill.
func RecordCommission(tx *gorm.DB, professionalID, appointmentID uint, grossValue, rate float64) error {
	record := models.ProfessionalBilling{
		ProfessionalID:  professionalID,
		AppointmentID:   appointmentID,
		BillingDate:     time.Now(),
		GrossValue:      grossValue,
		CommissionValue: grossValue * rate,
		Status:          models.BillingUnbilled,
	}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "appointment_id"}},
		DoNothing: true,
	}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("record commission: %w", err)
	}
	return nil
}
