package scheduling

import (
	"errors"
	"fmt"
	"time"

	"github.com/cuidarlink/clinic-app/billing"
	"github.com/cuidarlink/clinic-app/models"
	"github.com/cuidarlink/clinic-app/utils"
	"gorm.io/gorm"
)

// Due dates applied to the invoices this engine creates.
const (
	PackageInvoiceDueDays = 7
	SessionInvoiceDueDays = 15
)

type DeleteType string

const (
	DeleteSingle DeleteType = "single"
	DeleteFuture DeleteType = "future"
)

// Engine runs the scheduling use cases. Every exported method is one atomic
// transaction: either all of its appointments, series, invoice and ledger
// writes land, or none do. Side effects belong to the caller, after commit.
type Engine struct {
	db *gorm.DB
}

func NewEngine(db *gorm.DB) *Engine {
	return &Engine{db: db}
}

type CreateRequest struct {
	ProfessionalID uint
	PatientID      uint
	CompanyID      *uint
	SessionValue   *float64
	Frequency      models.Frequency
	Timestamps     []time.Time
	IsPackage      bool
	DiscountPct    float64
	TotalValue     float64
}

type CreateResult struct {
	CreatedCount int
	Appointments []models.Appointment
	Invoice      *models.Invoice
	Payer        *models.User
	Professional models.Professional
	Patient      models.Patient
}

// Create books a single appointment, a recurring series or a pre-paid
// package. Recurring creation expands occurrences under the date-bounded
// three-month horizon; a funded package keeps the caller's explicit
// timestamps, gets exactly one invoice due in seven days and every
// occurrence starts in awaiting_payment.
func (e *Engine) Create(req CreateRequest) (CreateResult, error) {
	if req.ProfessionalID == 0 || req.PatientID == 0 || len(req.Timestamps) == 0 {
		return CreateResult{}, fmt.Errorf("%w: professional, patient and at least one timestamp are required", ErrValidation)
	}

	var result CreateResult
	err := e.db.Transaction(func(tx *gorm.DB) error {
		var professional models.Professional
		if err := tx.Preload("User").First(&professional, req.ProfessionalID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: professional %d", ErrNotFound, req.ProfessionalID)
			}
			return err
		}

		var patient models.Patient
		if err := tx.Preload("User").First(&patient, req.PatientID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: patient %d", ErrNotFound, req.PatientID)
			}
			return err
		}

		// A company passed on creation is assigned to the patient before the
		// payer is resolved.
		if req.CompanyID != nil && (patient.CompanyID == nil || *patient.CompanyID != *req.CompanyID) {
			patient.CompanyID = req.CompanyID
			if err := tx.Model(&patient).Update("company_id", *req.CompanyID).Error; err != nil {
				return fmt.Errorf("assign company: %w", err)
			}
		}

		isFundedPackage := req.IsPackage && req.TotalValue > 0

		// A package is priced for the explicit session list, so only
		// free-standing recurring creation expands under the horizon.
		occurrences := req.Timestamps
		if !isFundedPackage && req.Frequency.IntervalDays() > 0 {
			occurrences = GenerateUntilHorizon(req.Timestamps[0], req.Frequency)
		}

		var packageInvoiceID *uint
		if isFundedPackage {
			payer, err := billing.ResolvePayer(tx, patient)
			if err != nil {
				if errors.Is(err, billing.ErrNoPayer) {
					return ErrNoPayer
				}
				return err
			}

			amount := req.TotalValue
			if req.DiscountPct > 0 {
				amount = amount - (amount * req.DiscountPct / 100)
			}
			invoice, err := billing.CreateInvoice(
				tx,
				payer.ID,
				professional.UserID,
				amount,
				utils.DueIn(PackageInvoiceDueDays),
				fmt.Sprintf("Session package (%d sessions)", len(occurrences)),
			)
			if err != nil {
				return err
			}
			packageInvoiceID = &invoice.ID
			result.Invoice = &invoice
			result.Payer = &payer
		}

		var seriesID *uint
		if !isFundedPackage && req.Frequency.IntervalDays() > 0 {
			series := models.AppointmentSeries{
				ProfessionalID: req.ProfessionalID,
				PatientID:      req.PatientID,
				StartDate:      occurrences[0],
				Frequency:      req.Frequency,
				SessionValue:   req.SessionValue,
			}
			if err := tx.Create(&series).Error; err != nil {
				return fmt.Errorf("create series: %w", err)
			}
			seriesID = &series.ID
		}

		status := models.StatusScheduled
		if isFundedPackage {
			status = models.StatusAwaitingPayment
		}

		appointments := make([]models.Appointment, 0, len(occurrences))
		for _, at := range occurrences {
			appointments = append(appointments, models.Appointment{
				SeriesID:         seriesID,
				ProfessionalID:   req.ProfessionalID,
				PatientID:        req.PatientID,
				StartTime:        at,
				SessionValue:     req.SessionValue,
				Status:           status,
				PackageInvoiceID: packageInvoiceID,
			})
		}
		if err := tx.Create(&appointments).Error; err != nil {
			return fmt.Errorf("create appointments: %w", err)
		}

		result.CreatedCount = len(appointments)
		result.Appointments = appointments
		result.Professional = professional
		result.Patient = patient
		return nil
	})
	if err != nil {
		return CreateResult{}, err
	}
	return result, nil
}

type UpdateRequest struct {
	ProfessionalID *uint
	PatientID      *uint
	CompanyID      *uint
	StartTime      *time.Time
	SessionValue   *float64
	Frequency      *models.Frequency
}

type UpdateResult struct {
	Appointment  models.Appointment
	Professional models.Professional
	Patient      models.Patient
	TimeChanged  bool
}

// Update edits one appointment and reconciles its recurrence. A single
// appointment given a frequency becomes the anchor of a fresh series with
// twelve future occurrences; a series member set to frequency "none" sheds
// every future scheduled occurrence; an interval change regenerates the
// future occurrences under the same series; and a plain time change on a
// series member shifts every future scheduled occurrence by the same delta.
func (e *Engine) Update(id uint, req UpdateRequest) (UpdateResult, error) {
	var result UpdateResult
	err := e.db.Transaction(func(tx *gorm.DB) error {
		// Lock the appointment row to prevent race conditions
		var appt models.Appointment
		if err := tx.Raw(`
			SELECT *
			FROM appointments
			WHERE id = ? AND deleted_at IS NULL FOR UPDATE
		`, id).Scan(&appt).Error; err != nil {
			return err
		}
		if appt.ID == 0 {
			return fmt.Errorf("%w: appointment %d", ErrNotFound, id)
		}

		// Terminal appointments are immutable. A completed session already
		// drove a ledger row and an invoice off its value and time.
		if appt.Status == models.StatusCompleted || appt.Status == models.StatusCancelled {
			return fmt.Errorf("%w: %s appointments cannot be edited", ErrForbidden, appt.Status)
		}

		timeChanged := req.StartTime != nil && !req.StartTime.Equal(appt.StartTime)

		if err := e.reconcileRecurrence(tx, &appt, req, timeChanged); err != nil {
			return err
		}

		// Apply scalar changes to the edited row only.
		if req.ProfessionalID != nil {
			appt.ProfessionalID = *req.ProfessionalID
		}
		if req.PatientID != nil {
			appt.PatientID = *req.PatientID
		}
		if timeChanged {
			appt.StartTime = *req.StartTime
		}
		if req.SessionValue != nil {
			appt.SessionValue = req.SessionValue
		}
		if err := tx.Save(&appt).Error; err != nil {
			return fmt.Errorf("update appointment: %w", err)
		}

		var patient models.Patient
		if err := tx.Preload("User").First(&patient, appt.PatientID).Error; err != nil {
			return err
		}

		// A company reassignment travels with the edit and lands on the
		// patient record.
		if req.CompanyID != nil {
			patient.CompanyID = req.CompanyID
			if err := tx.Model(&patient).Update("company_id", *req.CompanyID).Error; err != nil {
				return fmt.Errorf("reassign company: %w", err)
			}
		}

		var professional models.Professional
		if err := tx.Preload("User").First(&professional, appt.ProfessionalID).Error; err != nil {
			return err
		}

		result.Appointment = appt
		result.Professional = professional
		result.Patient = patient
		result.TimeChanged = timeChanged
		return nil
	})
	if err != nil {
		return UpdateResult{}, err
	}
	return result, nil
}

func (e *Engine) reconcileRecurrence(tx *gorm.DB, appt *models.Appointment, req UpdateRequest, timeChanged bool) error {
	anchor := appt.StartTime
	if req.StartTime != nil {
		anchor = *req.StartTime
	}

	if req.Frequency != nil {
		freq := *req.Frequency

		switch {
		case appt.SeriesID == nil && freq.IntervalDays() > 0:
			// Conversion single → recurring: fresh series, twelve future
			// occurrences inheriting patient, professional and value.
			series := models.AppointmentSeries{
				ProfessionalID: appt.ProfessionalID,
				PatientID:      appt.PatientID,
				StartDate:      anchor,
				Frequency:      freq,
				SessionValue:   appt.SessionValue,
			}
			if err := tx.Create(&series).Error; err != nil {
				return fmt.Errorf("create series: %w", err)
			}
			appt.SeriesID = &series.ID
			return e.insertOccurrences(tx, *appt, series.ID, GenerateCount(anchor, freq, ConversionOccurrences))

		case appt.SeriesID != nil && freq.IntervalDays() == 0:
			// Back to a single appointment: drop future scheduled
			// occurrences and detach. The series row stays.
			if err := e.deleteFutureScheduled(tx, *appt.SeriesID, appt.StartTime, appt.ID); err != nil {
				return err
			}
			appt.SeriesID = nil
			return nil

		case appt.SeriesID != nil && freq.IntervalDays() > 0:
			var series models.AppointmentSeries
			if err := tx.First(&series, *appt.SeriesID).Error; err != nil {
				return err
			}
			if series.Frequency != freq {
				// Interval change: regenerate the future occurrences at
				// the new cadence under the same series id.
				if err := e.deleteFutureScheduled(tx, series.ID, appt.StartTime, appt.ID); err != nil {
					return err
				}
				if err := tx.Model(&series).Update("frequency", freq).Error; err != nil {
					return fmt.Errorf("update series frequency: %w", err)
				}
				return e.insertOccurrences(tx, *appt, series.ID, GenerateCount(anchor, freq, ConversionOccurrences))
			}
		}
	}

	// Staying recurrent with a moved time: shift the future scheduled
	// occurrences of the series by the same delta, leaving past and
	// non-scheduled rows alone.
	if appt.SeriesID != nil && timeChanged {
		return e.shiftFutureScheduled(tx, *appt.SeriesID, *appt, req.StartTime.Sub(appt.StartTime))
	}
	return nil
}

func (e *Engine) insertOccurrences(tx *gorm.DB, template models.Appointment, seriesID uint, times []time.Time) error {
	if len(times) == 0 {
		return nil
	}
	occurrences := make([]models.Appointment, 0, len(times))
	for _, at := range times {
		occurrences = append(occurrences, models.Appointment{
			SeriesID:       &seriesID,
			ProfessionalID: template.ProfessionalID,
			PatientID:      template.PatientID,
			StartTime:      at,
			SessionValue:   template.SessionValue,
			Status:         models.StatusScheduled,
		})
	}
	if err := tx.Create(&occurrences).Error; err != nil {
		return fmt.Errorf("create occurrences: %w", err)
	}
	return nil
}

func (e *Engine) deleteFutureScheduled(tx *gorm.DB, seriesID uint, after time.Time, excludeID uint) error {
	err := tx.
		Where("series_id = ? AND start_time > ? AND status = ? AND id <> ?",
			seriesID, after, models.StatusScheduled, excludeID).
		Delete(&models.Appointment{}).Error
	if err != nil {
		return fmt.Errorf("delete future occurrences: %w", err)
	}
	return nil
}

func (e *Engine) shiftFutureScheduled(tx *gorm.DB, seriesID uint, edited models.Appointment, delta time.Duration) error {
	var future []models.Appointment
	err := tx.
		Where("series_id = ? AND start_time > ? AND status = ? AND id <> ?",
			seriesID, edited.StartTime, models.StatusScheduled, edited.ID).
		Find(&future).Error
	if err != nil {
		return fmt.Errorf("load future occurrences: %w", err)
	}
	for i := range future {
		future[i].StartTime = future[i].StartTime.Add(delta)
		if err := tx.Save(&future[i]).Error; err != nil {
			return fmt.Errorf("shift occurrence %d: %w", future[i].ID, err)
		}
	}
	return nil
}

// Delete removes one appointment. For a series member with deleteType=future
// it also removes every occurrence of its series at
// or after its time. Nothing is removed when the target does not exist.
func (e *Engine) Delete(id uint, deleteType DeleteType) error {
	return e.db.Transaction(func(tx *gorm.DB) error {
		var appt models.Appointment
		if err := tx.First(&appt, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: appointment %d", ErrNotFound, id)
			}
			return err
		}

		switch deleteType {
		case DeleteSingle:
			return tx.Delete(&appt).Error
		case DeleteFuture:
			if appt.SeriesID == nil {
				return fmt.Errorf("%w: appointment %d is not part of a series", ErrValidation, id)
			}
			return tx.
				Where("series_id = ? AND start_time >= ?", *appt.SeriesID, appt.StartTime).
				Delete(&models.Appointment{}).Error
		default:
			return fmt.Errorf("%w: unknown delete type %q", ErrValidation, deleteType)
		}
	})
}

type TransitionResult struct {
	Appointment    models.Appointment
	Professional   models.Professional
	Patient        models.Patient
	Invoice        *models.Invoice
	Payer          *models.User
	InvoiceCreated bool
}

// TransitionStatus moves one appointment through the status machine under a
// row-level exclusive lock, so two concurrent completions can never bill
// the same session twice. Completing a non-package appointment resolves the
// professional's commission rate, records the ledger row and invoices the
// payer for the gross session value, all in the same transaction.
func (e *Engine) TransitionStatus(id uint, newStatus models.AppointmentStatus, actingProfessionalID uint) (TransitionResult, error) {
	if !models.IsValidStatus(newStatus) {
		return TransitionResult{}, fmt.Errorf("%w: invalid status %q", ErrValidation, newStatus)
	}

	var result TransitionResult
	err := e.db.Transaction(func(tx *gorm.DB) error {
		// The lock is taken before the current status is read and held
		// until commit.
		var appt models.Appointment
		if err := tx.Raw(`
			SELECT *
			FROM appointments
			WHERE id = ? AND deleted_at IS NULL FOR UPDATE
		`, id).Scan(&appt).Error; err != nil {
			return err
		}
		if appt.ID == 0 {
			return fmt.Errorf("%w: appointment %d", ErrNotFound, id)
		}

		if appt.ProfessionalID != actingProfessionalID {
			return fmt.Errorf("%w: appointment belongs to another professional", ErrForbidden)
		}

		if err := appt.CanTransition(newStatus); err != nil {
			return fmt.Errorf("%w: %v", ErrForbidden, err)
		}

		appt.Status = newStatus
		if err := tx.Model(&models.Appointment{}).Where("id = ?", appt.ID).
			Update("status", newStatus).Error; err != nil {
			return fmt.Errorf("update status: %w", err)
		}

		var professional models.Professional
		if err := tx.Preload("User").First(&professional, appt.ProfessionalID).Error; err != nil {
			return err
		}
		var patient models.Patient
		if err := tx.Preload("User").First(&patient, appt.PatientID).Error; err != nil {
			return err
		}
		result.Appointment = appt
		result.Professional = professional
		result.Patient = patient

		// Package sessions are billed up front; only free-standing
		// completions generate commission and a session invoice.
		if newStatus != models.StatusCompleted || appt.PackageInvoiceID != nil {
			return nil
		}

		gross := 0.0
		if appt.SessionValue != nil {
			gross = *appt.SessionValue
		}
		if gross <= 0 {
			return nil
		}

		externals, err := billing.ExternalPatients(tx, appt.ProfessionalID)
		if err != nil {
			return err
		}
		rate := billing.CommissionRate(professional, patient, externals)
		if err := billing.RecordCommission(tx, appt.ProfessionalID, appt.ID, gross, rate); err != nil {
			return err
		}

		payer, err := billing.ResolvePayer(tx, patient)
		if err != nil {
			if errors.Is(err, billing.ErrNoPayer) {
				return nil
			}
			return err
		}
		invoice, err := billing.CreateInvoice(
			tx,
			payer.ID,
			professional.UserID,
			gross,
			utils.DueIn(SessionInvoiceDueDays),
			fmt.Sprintf("Session on %s", appt.StartTime.Format("2006-01-02")),
		)
		if err != nil {
			return err
		}
		result.Invoice = &invoice
		result.Payer = &payer
		result.InvoiceCreated = true
		return nil
	})
	if err != nil {
		return TransitionResult{}, err
	}
	return result, nil
}

type PaymentResult struct {
	Invoice      models.Invoice
	Appointments []models.Appointment
}

// ConfirmPackagePayment consumes the external payment confirmation for a
// package invoice: the invoice is marked paid and every appointment still
// awaiting that payment becomes scheduled.
func (e *Engine) ConfirmPackagePayment(invoiceID uint) (PaymentResult, error) {
	var result PaymentResult
	err := e.db.Transaction(func(tx *gorm.DB) error {
		var invoice models.Invoice
		if err := tx.First(&invoice, invoiceID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: invoice %d", ErrNotFound, invoiceID)
			}
			return err
		}
		if invoice.Status == models.InvoicePaid {
			result.Invoice = invoice
			return nil
		}

		if err := tx.Model(&invoice).Update("status", models.InvoicePaid).Error; err != nil {
			return fmt.Errorf("mark invoice paid: %w", err)
		}
		invoice.Status = models.InvoicePaid

		if err := tx.Model(&models.Appointment{}).
			Where("package_invoice_id = ? AND status = ?", invoice.ID, models.StatusAwaitingPayment).
			Update("status", models.StatusScheduled).Error; err != nil {
			return fmt.Errorf("release package appointments: %w", err)
		}

		var released []models.Appointment
		if err := tx.Where("package_invoice_id = ?", invoice.ID).Find(&released).Error; err != nil {
			return err
		}
		result.Invoice = invoice
		result.Appointments = released
		return nil
	})
	if err != nil {
		return PaymentResult{}, err
	}
	return result, nil
}
