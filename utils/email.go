package utils

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/gomail.v2"
)

// SendEmail delivers one HTML email through the SMTP server configured by
// SMTP_HOST, SMTP_PORT, SMTP_USER and SMTP_PASSWORD.
func SendEmail(to, subject, body string) error {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading SMTP settings from the environment")
	}

	user := os.Getenv("SMTP_USER")
	port, err := strconv.Atoi(os.Getenv("SMTP_PORT"))
	if err != nil {
		port = 587
	}

	m := gomail.NewMessage()
	m.SetHeader("From", user)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	d := gomail.NewDialer(os.Getenv("SMTP_HOST"), port, user, os.Getenv("SMTP_PASSWORD"))
	return d.DialAndSend(m)
}
