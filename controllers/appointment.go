package controllers

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/cuidarlink/clinic-app/db"
	"github.com/cuidarlink/clinic-app/models"
	"github.com/cuidarlink/clinic-app/notifications"
	"github.com/cuidarlink/clinic-app/scheduling"
	"github.com/cuidarlink/clinic-app/utils"
)

var validate = validator.New()

// engineError maps engine failures onto HTTP statuses. Everything the
// engine rejects happened before commit, so a non-2xx answer means nothing
// was written.
func engineError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, scheduling.ErrValidation):
		status = fiber.StatusBadRequest
	case errors.Is(err, scheduling.ErrNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, scheduling.ErrForbidden):
		status = fiber.StatusForbidden
	case errors.Is(err, scheduling.ErrNoPayer):
		status = fiber.StatusUnprocessableEntity
	}
	return c.Status(status).JSON(utils.ErrorResponse{
		Message: "Request failed",
		Error:   err.Error(),
	})
}

// GetAllAppointments returns appointments, optionally filtered by
// professional, patient or the pending-review flag.
func GetAllAppointments(c *fiber.Ctx) error {
	query := db.DB.Preload("Professional.User").Preload("Patient.User").Preload("Series")

	if professionalID := c.QueryInt("professional_id"); professionalID > 0 {
		query = query.Where("professional_id = ?", professionalID)
	}
	if patientID := c.QueryInt("patient_id"); patientID > 0 {
		query = query.Where("patient_id = ?", patientID)
	}

	var appointments []models.Appointment
	if err := query.Order("start_time asc").Find(&appointments).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(utils.ErrorResponse{
			Message: "Failed to fetch appointments",
			Error:   err.Error(),
		})
	}

	// Pending review is derived on read, so it is filtered here rather
	// than in SQL.
	if c.Query("pending_review") == "true" {
		pending := make([]models.Appointment, 0, len(appointments))
		for _, a := range appointments {
			if a.IsPendingReview {
				pending = append(pending, a)
			}
		}
		appointments = pending
	}

	return c.JSON(fiber.Map{
		"appointments": appointments,
		"count":        len(appointments),
	})
}

// GetAppointment returns one appointment by ID
func GetAppointment(c *fiber.Ctx) error {
	id := c.Params("id")
	var appointment models.Appointment
	if err := db.DB.Preload("Professional.User").Preload("Patient.User").Preload("Series").
		First(&appointment, id).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(utils.ErrorResponse{
			Message: "Appointment not found",
			Error:   err.Error(),
		})
	}
	return c.JSON(appointment)
}

type createAppointmentRequest struct {
	ProfessionalID uint        `json:"professional_id" validate:"required"`
	PatientID      uint        `json:"patient_id" validate:"required"`
	CompanyID      *uint       `json:"company_id"`
	SessionValue   *float64    `json:"session_value"`
	Frequency      string      `json:"frequency" validate:"omitempty,oneof=none weekly biweekly"`
	Timestamps     []time.Time `json:"timestamps" validate:"required,min=1"`
	IsPackage      bool        `json:"is_package"`
	DiscountPct    float64     `json:"discount_pct"`
	TotalValue     float64     `json:"total_value"`
}

// CreateAppointment books a single appointment, a recurring series or a
// pre-paid package of sessions.
func CreateAppointment(c *fiber.Ctx) error {
	var req createAppointmentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(utils.ErrorResponse{
			Message: "Failed to parse request body",
			Error:   err.Error(),
		})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(utils.ErrorResponse{
			Message: "Missing or invalid fields",
			Error:   err.Error(),
		})
	}

	frequency := models.Frequency(req.Frequency)
	if req.Frequency == "" {
		frequency = models.FrequencyNone
	}

	engine := scheduling.NewEngine(db.DB)
	result, err := engine.Create(scheduling.CreateRequest{
		ProfessionalID: req.ProfessionalID,
		PatientID:      req.PatientID,
		CompanyID:      req.CompanyID,
		SessionValue:   req.SessionValue,
		Frequency:      frequency,
		Timestamps:     req.Timestamps,
		IsPackage:      req.IsPackage,
		DiscountPct:    req.DiscountPct,
		TotalValue:     req.TotalValue,
	})
	if err != nil {
		return engineError(c, err)
	}

	// Side effects run after the commit and never change this response.
	notifications.Dispatch(func() {
		first := result.Appointments[0]
		notifications.NotifyAppointmentCreated(result.Patient.UserID, result.Professional.UserID, first.StartTime)
		if result.Invoice != nil && result.Payer != nil {
			notifications.SendInvoiceNotice(*result.Payer, *result.Invoice)
		} else {
			notifications.SendConfirmation(result.Patient.User, result.Professional.User, first)
		}
	})

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"created_count": result.CreatedCount,
	})
}

type updateAppointmentRequest struct {
	ProfessionalID *uint      `json:"professional_id"`
	PatientID      *uint      `json:"patient_id"`
	CompanyID      *uint      `json:"company_id"`
	StartTime      *time.Time `json:"start_time"`
	SessionValue   *float64   `json:"session_value"`
	Frequency      *string    `json:"frequency" validate:"omitempty,oneof=none weekly biweekly"`
}

// UpdateAppointment edits one appointment and reconciles its series.
func UpdateAppointment(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(utils.ErrorResponse{
			Message: "Invalid appointment ID",
		})
	}

	var req updateAppointmentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(utils.ErrorResponse{
			Message: "Failed to parse request body",
			Error:   err.Error(),
		})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(utils.ErrorResponse{
			Message: "Invalid fields",
			Error:   err.Error(),
		})
	}

	var frequency *models.Frequency
	if req.Frequency != nil {
		f := models.Frequency(*req.Frequency)
		frequency = &f
	}

	engine := scheduling.NewEngine(db.DB)
	result, err := engine.Update(uint(id), scheduling.UpdateRequest{
		ProfessionalID: req.ProfessionalID,
		PatientID:      req.PatientID,
		CompanyID:      req.CompanyID,
		StartTime:      req.StartTime,
		SessionValue:   req.SessionValue,
		Frequency:      frequency,
	})
	if err != nil {
		return engineError(c, err)
	}

	notifications.Dispatch(func() {
		msg := "Your appointment was updated"
		notifications.Notify(result.Patient.UserID, "appointment", msg, "/appointments")
		notifications.Notify(result.Professional.UserID, "appointment", msg, "/appointments")
		if result.Patient.User.Phone != "" {
			notifications.SendReschedule(result.Patient.User, result.Professional.User, result.Appointment)
		}
	})

	return c.JSON(fiber.Map{"ok": true})
}

// DeleteAppointment removes one appointment or, with ?type=future, the
// whole tail of its series.
func DeleteAppointment(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(utils.ErrorResponse{
			Message: "Invalid appointment ID",
		})
	}

	deleteType := scheduling.DeleteType(c.Query("type", string(scheduling.DeleteSingle)))

	engine := scheduling.NewEngine(db.DB)
	if err := engine.Delete(uint(id), deleteType); err != nil {
		return engineError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

// UpdateAppointmentStatus transitions one appointment's status. Completing
// a non-package session also records the commission and invoices the payer.
func UpdateAppointmentStatus(c *fiber.Ctx) error {
	userID, ok := c.Locals("userID").(uint)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "User ID not found in context",
		})
	}

	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(utils.ErrorResponse{
			Message: "Invalid appointment ID",
		})
	}

	var req statusRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(utils.ErrorResponse{
			Message: "Failed to parse request body",
			Error:   err.Error(),
		})
	}

	// The acting professional is resolved from the authenticated user.
	var professional models.Professional
	if err := db.DB.Where("user_id = ?", userID).First(&professional).Error; err != nil {
		return c.Status(fiber.StatusForbidden).JSON(utils.ErrorResponse{
			Message: "Only professionals can update appointment status",
		})
	}

	engine := scheduling.NewEngine(db.DB)
	result, err := engine.TransitionStatus(uint(id), models.AppointmentStatus(req.Status), professional.ID)
	if err != nil {
		return engineError(c, err)
	}

	notifications.Dispatch(func() {
		msg := "Your appointment is now " + string(result.Appointment.Status)
		notifications.Notify(result.Patient.UserID, "appointment", msg, "/appointments")
		notifications.Emit(result.Patient.UserID, "appointment:status", fiber.Map{
			"appointment_id": result.Appointment.ID,
			"status":         result.Appointment.Status,
		})
		if result.InvoiceCreated && result.Payer != nil {
			notifications.SendInvoiceNotice(*result.Payer, *result.Invoice)
		}
	})

	return c.JSON(fiber.Map{
		"ok":              true,
		"invoice_created": result.InvoiceCreated,
	})
}
