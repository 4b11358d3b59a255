package db

import (
	"fmt"
	"log"

	"github.com/cuidarlink/clinic-app/models"
)

func Migrate() {
	// Initialize DB connection
	Init()

	// Run AutoMigrate only when explicitly called
	err := DB.AutoMigrate(
		&models.User{},
		&models.Role{},
		&models.Company{},
		&models.Professional{},
		&models.Patient{},
		&models.AppointmentSeries{},
		&models.Invoice{},
		&models.Appointment{},
		&models.ProfessionalBilling{},
		&models.Notification{},
	)
	if err != nil {
		log.Fatal("Failed to run migrations: ", err)
	}

	fmt.Println("✅ Migrations applied successfully!")
}
