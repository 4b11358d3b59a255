package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/cuidarlink/clinic-app/controllers"
	"github.com/cuidarlink/clinic-app/middleware"
	"github.com/cuidarlink/clinic-app/models"
)

// SetupInvoiceRoutes configures invoice and billing ledger routes
func SetupInvoiceRoutes(app *fiber.App) {
	invoice := app.Group("/invoices", middleware.Protected())

	invoice.Get("/", controllers.GetInvoices)
	invoice.Get("/:id", controllers.GetInvoice)
	invoice.Post("/:id/confirm-payment", middleware.RequireRole(models.RoleAdmin), controllers.ConfirmInvoicePayment)

	billing := app.Group("/billing", middleware.Protected())
	billing.Get("/records", middleware.RequireRole(models.RoleProfessional), controllers.GetBillingRecords)
}
