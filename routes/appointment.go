package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/cuidarlink/clinic-app/controllers"
	"github.com/cuidarlink/clinic-app/middleware"
	"github.com/cuidarlink/clinic-app/models"
)

// SetupAppointmentRoutes configures all appointment related routes
func SetupAppointmentRoutes(app *fiber.App) {
	appointment := app.Group("/appointments", middleware.Protected())

	appointment.Get("/", controllers.GetAllAppointments)
	appointment.Get("/:id", controllers.GetAppointment)
	appointment.Post("/", middleware.RequireRole(models.RoleProfessional, models.RoleAdmin), controllers.CreateAppointment)
	appointment.Patch("/:id", middleware.RequireRole(models.RoleProfessional, models.RoleAdmin), controllers.UpdateAppointment)
	appointment.Patch("/:id/status", middleware.RequireRole(models.RoleProfessional), controllers.UpdateAppointmentStatus)
	appointment.Delete("/:id", middleware.RequireRole(models.RoleProfessional, models.RoleAdmin), controllers.DeleteAppointment)
}
