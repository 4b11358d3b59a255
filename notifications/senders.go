package notifications

import (
	"fmt"
	"log"
	"time"

	"github.com/cuidarlink/clinic-app/models"
	"github.com/cuidarlink/clinic-app/utils"
)

var whatsapp = NewWhatsAppClient()

const sessionTimeLayout = "2006-01-02 15:04"

// SendConfirmation emails the patient that the appointment was booked and,
// when a phone number is on file, mirrors it over WhatsApp.
func SendConfirmation(patient models.User, professional models.User, appt models.Appointment) {
	body := fmt.Sprintf(`
		<p>Dear %s,</p>
		<p>Your appointment has been successfully scheduled.</p>
		<p><strong>Details:</strong></p>
		<ul>
			<li><strong>Professional:</strong> %s</li>
			<li><strong>Start Time:</strong> %s</li>
		</ul>
		<p>Best regards,</p>
		<p>Your Clinic Team</p>
	`, patient.Name, professional.Name, appt.StartTime.Format(sessionTimeLayout))
	if err := utils.SendEmail(patient.Email, "Appointment Confirmation", body); err != nil {
		log.Printf("Failed to send confirmation email to %s: %v", patient.Email, err)
	}
	if patient.Phone != "" {
		msg := fmt.Sprintf("Your session with %s is confirmed for %s.",
			professional.Name, appt.StartTime.Format(sessionTimeLayout))
		if err := whatsapp.Send(patient.Phone, msg); err != nil {
			log.Printf("Failed to send confirmation message to %s: %v", patient.Phone, err)
		}
	}
}

// SendReschedule tells the patient an appointment moved.
func SendReschedule(patient models.User, professional models.User, appt models.Appointment) {
	body := fmt.Sprintf(`
		<p>Dear %s,</p>
		<p>Your appointment with %s has been updated.</p>
		<p>New time: <strong>%s</strong></p>
		<p>Best regards,</p>
		<p>Your Clinic Team</p>
	`, patient.Name, professional.Name, appt.StartTime.Format(sessionTimeLayout))
	if err := utils.SendEmail(patient.Email, "Appointment Updated", body); err != nil {
		log.Printf("Failed to send reschedule email to %s: %v", patient.Email, err)
	}
	if patient.Phone != "" {
		msg := fmt.Sprintf("Your session with %s moved to %s.",
			professional.Name, appt.StartTime.Format(sessionTimeLayout))
		if err := whatsapp.Send(patient.Phone, msg); err != nil {
			log.Printf("Failed to send reschedule message to %s: %v", patient.Phone, err)
		}
	}
}

// SendInvoiceNotice emails the payer about a freshly created invoice.
func SendInvoiceNotice(payer models.User, invoice models.Invoice) {
	body := fmt.Sprintf(`
		<p>Dear %s,</p>
		<p>A new invoice has been issued to you.</p>
		<ul>
			<li><strong>Number:</strong> %s</li>
			<li><strong>Amount:</strong> %.2f</li>
			<li><strong>Due Date:</strong> %s</li>
			<li><strong>Description:</strong> %s</li>
		</ul>
		<p>Best regards,</p>
		<p>Your Clinic Team</p>
	`, payer.Name, invoice.Number, invoice.Amount, invoice.DueDate.Format("2006-01-02"), invoice.Description)
	if err := utils.SendEmail(payer.Email, "New Invoice", body); err != nil {
		log.Printf("Failed to send invoice notice to %s: %v", payer.Email, err)
	}
	Notify(payer.ID, "invoice", fmt.Sprintf("New invoice of %.2f due %s", invoice.Amount, invoice.DueDate.Format("2006-01-02")), "/invoices")
}

// NotifyAppointmentCreated pushes in-app notifications to both sides of a
// new booking.
func NotifyAppointmentCreated(patientUserID, professionalUserID uint, at time.Time) {
	msg := fmt.Sprintf("New appointment scheduled for %s", at.Format(sessionTimeLayout))
	Notify(patientUserID, "appointment", msg, "/appointments")
	Notify(professionalUserID, "appointment", msg, "/appointments")
}
