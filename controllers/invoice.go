package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/cuidarlink/clinic-app/db"
	"github.com/cuidarlink/clinic-app/models"
	"github.com/cuidarlink/clinic-app/notifications"
	"github.com/cuidarlink/clinic-app/scheduling"
	"github.com/cuidarlink/clinic-app/utils"
)

// GetInvoices lists invoices. Admins see everything; everyone else sees the
// invoices billed to them.
func GetInvoices(c *fiber.Ctx) error {
	userID, ok := c.Locals("userID").(uint)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "User ID not found in context",
		})
	}
	role, _ := c.Locals("role").(string)

	query := db.DB.Preload("Payer").Order("due_date asc")
	if role != models.RoleAdmin {
		query = query.Where("payer_user_id = ?", userID)
	}
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var invoices []models.Invoice
	if err := query.Find(&invoices).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(utils.ErrorResponse{
			Message: "Failed to fetch invoices",
			Error:   err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"invoices": invoices,
		"count":    len(invoices),
	})
}

// GetInvoice returns one invoice by ID
func GetInvoice(c *fiber.Ctx) error {
	id := c.Params("id")
	var invoice models.Invoice
	if err := db.DB.Preload("Payer").First(&invoice, id).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(utils.ErrorResponse{
			Message: "Invoice not found",
			Error:   err.Error(),
		})
	}
	return c.JSON(invoice)
}

// ConfirmInvoicePayment consumes the external payment confirmation for a
// package invoice: marks it paid and releases the sessions that were
// awaiting payment.
func ConfirmInvoicePayment(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(utils.ErrorResponse{
			Message: "Invalid invoice ID",
		})
	}

	engine := scheduling.NewEngine(db.DB)
	result, err := engine.ConfirmPackagePayment(uint(id))
	if err != nil {
		return engineError(c, err)
	}

	notifications.Dispatch(func() {
		// All package appointments share one patient.
		if len(result.Appointments) == 0 {
			return
		}
		var patient models.Patient
		if db.DB.First(&patient, result.Appointments[0].PatientID).Error == nil {
			notifications.Notify(patient.UserID, "appointment",
				"Your package was paid and your sessions are confirmed", "/appointments")
		}
	})

	return c.JSON(fiber.Map{
		"ok":       true,
		"invoice":  result.Invoice,
		"released": len(result.Appointments),
	})
}

// GetBillingRecords returns the commission ledger of the authenticated
// professional.
func GetBillingRecords(c *fiber.Ctx) error {
	userID, ok := c.Locals("userID").(uint)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "User ID not found in context",
		})
	}

	var professional models.Professional
	if err := db.DB.Where("user_id = ?", userID).First(&professional).Error; err != nil {
		return c.Status(fiber.StatusForbidden).JSON(utils.ErrorResponse{
			Message: "Only professionals have a billing ledger",
		})
	}

	var records []models.ProfessionalBilling
	if err := db.DB.Where("professional_id = ?", professional.ID).
		Order("billing_date desc").Find(&records).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(utils.ErrorResponse{
			Message: "Failed to fetch billing records",
			Error:   err.Error(),
		})
	}

	var totalGross, totalCommission float64
	for _, r := range records {
		totalGross += r.GrossValue
		totalCommission += r.CommissionValue
	}

	return c.JSON(fiber.Map{
		"records":          records,
		"total_gross":      totalGross,
		"total_commission": totalCommission,
	})
}
