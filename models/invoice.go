package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type InvoiceStatus string

const (
	InvoicePending   InvoiceStatus = "pending"
	InvoicePaid      InvoiceStatus = "paid"
	InvoiceCancelled InvoiceStatus = "cancelled"
)

// Invoice is a bill issued to a payer, either up front for a session
// package or per session on completion. Settlement happens outside this
// system; only the paid status comes back in.
type Invoice struct {
	gorm.Model
	Number        string        `json:"number" gorm:"uniqueIndex"`
	PayerUserID   uint          `json:"payer_user_id"`
	Payer         User          `json:"payer,omitempty" gorm:"foreignKey:PayerUserID"`
	CreatorUserID uint          `json:"creator_user_id"`
	Amount        float64       `json:"amount"`
	DueDate       time.Time     `json:"due_date"`
	Description   string        `json:"description"`
	Status        InvoiceStatus `json:"status"`
}

func (i *Invoice) BeforeCreate(tx *gorm.DB) error {
	if i.Number == "" {
		i.Number = uuid.NewString()
	}
	if i.Status == "" {
		i.Status = InvoicePending
	}
	return nil
}
