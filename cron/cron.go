package cron

import (
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/cuidarlink/clinic-app/db"
	"github.com/cuidarlink/clinic-app/models"
	"github.com/cuidarlink/clinic-app/utils"
)

// StartCronJobs initializes and starts the cron scheduler
func StartCronJobs() {
	c := cron.New()
	// Run every minute to check for sessions in the next hour
	_, err := c.AddFunc("* * * * *", sendSessionReminders)
	if err != nil {
		log.Fatalf("Failed to add cron job: %v", err)
	}
	// Daily digest of appointments waiting for a status decision
	_, err = c.AddFunc("0 8 * * *", sendPendingReviewDigest)
	if err != nil {
		log.Fatalf("Failed to add cron job: %v", err)
	}
	c.Start()
	log.Println("Cron job scheduler started")
}

// sendSessionReminders checks for upcoming sessions and sends reminders
func sendSessionReminders() {
	var appointments []models.Appointment
	now := time.Now()
	// Look for sessions starting in the next hour
	startWindow := now.Add(55 * time.Minute)
	endWindow := now.Add(65 * time.Minute)

	err := db.DB.Preload("Patient.User").Preload("Professional.User").
		Where("status = ? AND start_time BETWEEN ? AND ?", models.StatusScheduled, startWindow, endWindow).
		Find(&appointments).Error
	if err != nil {
		log.Printf("Error fetching appointments for reminders: %v", err)
		return
	}

	for _, appointment := range appointments {
		if err := sendReminderEmail(&appointment); err != nil {
			log.Printf("Failed to send reminder for appointment %d: %v", appointment.ID, err)
			continue
		}
		log.Printf("Sent reminder for appointment %d to %s", appointment.ID, appointment.Patient.User.Email)
	}
}

// sendReminderEmail constructs and sends the reminder email
func sendReminderEmail(appointment *models.Appointment) error {
	subject := "Reminder: Upcoming Session"
	body := fmt.Sprintf(`
		<p>Dear %s,</p>
		<p>This is a reminder for your session scheduled in one hour.</p>
		<p><strong>Details:</strong></p>
		<ul>
			<li><strong>Professional:</strong> %s</li>
			<li><strong>Start Time:</strong> %s</li>
		</ul>
		<p>Please be on time. If you need to reschedule or cancel, contact us as soon as possible.</p>
		<p>Best regards,</p>
		<p>Your Clinic Team</p>
	`, appointment.Patient.User.Name, appointment.Professional.User.Name,
		appointment.StartTime.Format("2006-01-02 15:04:05"))

	return utils.SendEmail(appointment.Patient.User.Email, subject, body)
}

// sendPendingReviewDigest emails each professional the appointments that
// went past their time without being completed or cancelled.
func sendPendingReviewDigest() {
	cutoff := time.Now().Add(-models.PendingReviewAge)

	var appointments []models.Appointment
	err := db.DB.Preload("Professional.User").Preload("Patient.User").
		Where("status = ? AND start_time < ? AND package_invoice_id IS NULL", models.StatusScheduled, cutoff).
		Order("professional_id asc, start_time asc").
		Find(&appointments).Error
	if err != nil {
		log.Printf("Error fetching pending review appointments: %v", err)
		return
	}
	if len(appointments) == 0 {
		return
	}

	byProfessional := make(map[uint][]models.Appointment)
	for _, a := range appointments {
		byProfessional[a.ProfessionalID] = append(byProfessional[a.ProfessionalID], a)
	}

	for _, group := range byProfessional {
		professional := group[0].Professional
		list := ""
		for _, a := range group {
			list += fmt.Sprintf("<li>%s - %s</li>", a.StartTime.Format("2006-01-02 15:04"), a.Patient.User.Name)
		}
		body := fmt.Sprintf(`
			<p>Dear %s,</p>
			<p>The following sessions still need to be marked as completed or cancelled:</p>
			<ul>%s</ul>
			<p>Best regards,</p>
			<p>Your Clinic Team</p>
		`, professional.User.Name, list)
		if err := utils.SendEmail(professional.User.Email, "Sessions pending review", body); err != nil {
			log.Printf("Failed to send pending review digest to %s: %v", professional.User.Email, err)
		}
	}
}
