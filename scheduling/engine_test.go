package scheduling

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/cuidarlink/clinic-app/models"
)

// testDB connects to the database named by DATABASE_URL and resets the
// schema. Without a configured database the engine tests are skipped.
func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set, skipping engine integration tests")
	}

	db, err := gorm.Open(postgres.Open(url), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
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
	))

	require.NoError(t, db.Exec(`TRUNCATE appointments, appointment_series, invoices,
		professional_billings, notifications, patients, professionals, companies,
		users, roles RESTART IDENTITY CASCADE`).Error)
	return db
}

type fixture struct {
	professional models.Professional
	patient      models.Patient
	company      *models.Company
}

func seed(t *testing.T, db *gorm.DB, level models.ProfessionalLevel, withCompany bool) fixture {
	t.Helper()

	profUser := models.User{Name: "Dr. Test", Email: "prof@example.com"}
	patientUser := models.User{Name: "Pat Test", Email: "patient@example.com", Phone: "+5511999990000"}
	require.NoError(t, db.Create(&profUser).Error)
	require.NoError(t, db.Create(&patientUser).Error)

	professional := models.Professional{UserID: profUser.ID, Level: level}
	require.NoError(t, db.Create(&professional).Error)

	var f fixture
	f.professional = professional

	patient := models.Patient{UserID: patientUser.ID}
	if withCompany {
		companyUser := models.User{Name: "Acme", Email: "billing@acme.example.com"}
		require.NoError(t, db.Create(&companyUser).Error)
		company := models.Company{UserID: companyUser.ID, Name: "Acme"}
		require.NoError(t, db.Create(&company).Error)
		patient.CompanyID = &company.ID
		f.company = &company
	}
	require.NoError(t, db.Create(&patient).Error)
	f.patient = patient
	return f
}

func floatPtr(v float64) *float64 { return &v }

func TestCreateValidation(t *testing.T) {
	db := testDB(t)
	engine := NewEngine(db)

	_, err := engine.Create(CreateRequest{PatientID: 1, Timestamps: []time.Time{time.Now()}})
	require.ErrorIs(t, err, ErrValidation)

	_, err = engine.Create(CreateRequest{ProfessionalID: 1, PatientID: 1})
	require.ErrorIs(t, err, ErrValidation)

	f := seed(t, db, models.LevelStandard, false)
	_, err = engine.Create(CreateRequest{
		ProfessionalID: 9999,
		PatientID:      f.patient.ID,
		Timestamps:     []time.Time{time.Now().Add(24 * time.Hour)},
	})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCreatePackage(t *testing.T) {
	db := testDB(t)
	engine := NewEngine(db)
	f := seed(t, db, models.LevelStandard, true)

	base := time.Now().Add(48 * time.Hour).Truncate(time.Second)
	timestamps := []time.Time{base, base.AddDate(0, 0, 7), base.AddDate(0, 0, 14)}

	result, err := engine.Create(CreateRequest{
		ProfessionalID: f.professional.ID,
		PatientID:      f.patient.ID,
		Timestamps:     timestamps,
		IsPackage:      true,
		TotalValue:     300,
	})
	require.NoError(t, err)
	require.Equal(t, 3, result.CreatedCount)
	require.NotNil(t, result.Invoice)
	require.Equal(t, 300.0, result.Invoice.Amount)

	// Company payer wins over the patient.
	var company models.Company
	require.NoError(t, db.Preload("User").First(&company, *f.patient.CompanyID).Error)
	require.Equal(t, company.User.ID, result.Invoice.PayerUserID)

	// Due in seven days.
	wantDue := time.Now().AddDate(0, 0, 7)
	require.Equal(t, wantDue.Year(), result.Invoice.DueDate.Year())
	require.Equal(t, wantDue.YearDay(), result.Invoice.DueDate.YearDay())

	// Exactly one invoice for the whole package.
	var invoiceCount int64
	require.NoError(t, db.Model(&models.Invoice{}).Count(&invoiceCount).Error)
	require.EqualValues(t, 1, invoiceCount)

	var appointments []models.Appointment
	require.NoError(t, db.Order("start_time asc").Find(&appointments).Error)
	require.Len(t, appointments, 3)
	for _, a := range appointments {
		require.Equal(t, models.StatusAwaitingPayment, a.Status)
		require.NotNil(t, a.PackageInvoiceID)
		require.Equal(t, result.Invoice.ID, *a.PackageInvoiceID)
		require.Nil(t, a.SeriesID)
	}
}

func TestCreatePackageWithoutPayer(t *testing.T) {
	db := testDB(t)
	engine := NewEngine(db)
	f := seed(t, db, models.LevelStandard, false)

	// Point the patient at a user that does not exist.
	require.NoError(t, db.Model(&models.Patient{}).Where("id = ?", f.patient.ID).
		Update("user_id", 9999).Error)

	_, err := engine.Create(CreateRequest{
		ProfessionalID: f.professional.ID,
		PatientID:      f.patient.ID,
		Timestamps:     []time.Time{time.Now().Add(24 * time.Hour)},
		IsPackage:      true,
		TotalValue:     100,
	})
	require.ErrorIs(t, err, ErrNoPayer)

	// Nothing was persisted.
	var count int64
	require.NoError(t, db.Model(&models.Appointment{}).Count(&count).Error)
	require.Zero(t, count)
	require.NoError(t, db.Model(&models.Invoice{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestCreatePackageIgnoresFrequency(t *testing.T) {
	db := testDB(t)
	engine := NewEngine(db)
	f := seed(t, db, models.LevelStandard, true)

	base := time.Now().Add(48 * time.Hour).Truncate(time.Second)
	timestamps := []time.Time{base, base.AddDate(0, 0, 7)}

	// A frequency on a package request must not expand into a series; the
	// invoice priced exactly the listed sessions.
	result, err := engine.Create(CreateRequest{
		ProfessionalID: f.professional.ID,
		PatientID:      f.patient.ID,
		Frequency:      models.FrequencyWeekly,
		Timestamps:     timestamps,
		IsPackage:      true,
		TotalValue:     200,
	})
	require.NoError(t, err)
	require.Equal(t, len(timestamps), result.CreatedCount)

	var appointments []models.Appointment
	require.NoError(t, db.Order("start_time asc").Find(&appointments).Error)
	require.Len(t, appointments, len(timestamps))
	for i, a := range appointments {
		require.True(t, a.StartTime.Equal(timestamps[i]))
		require.Equal(t, models.StatusAwaitingPayment, a.Status)
		require.Nil(t, a.SeriesID)
	}

	var seriesCount int64
	require.NoError(t, db.Model(&models.AppointmentSeries{}).Count(&seriesCount).Error)
	require.Zero(t, seriesCount)
}

func TestCreateRecurringSeries(t *testing.T) {
	db := testDB(t)
	engine := NewEngine(db)
	f := seed(t, db, models.LevelStandard, false)

	start := time.Now().Add(24 * time.Hour).Truncate(time.Second)
	result, err := engine.Create(CreateRequest{
		ProfessionalID: f.professional.ID,
		PatientID:      f.patient.ID,
		SessionValue:   floatPtr(150),
		Frequency:      models.FrequencyWeekly,
		Timestamps:     []time.Time{start},
	})
	require.NoError(t, err)

	// Date-bounded horizon: three months of weekly sessions.
	want := len(GenerateUntilHorizon(start, models.FrequencyWeekly))
	require.Equal(t, want, result.CreatedCount)

	var series []models.AppointmentSeries
	require.NoError(t, db.Find(&series).Error)
	require.Len(t, series, 1)
	require.Equal(t, models.FrequencyWeekly, series[0].Frequency)

	var appointments []models.Appointment
	require.NoError(t, db.Order("start_time asc").Find(&appointments).Error)
	require.Len(t, appointments, want)
	for _, a := range appointments {
		require.Equal(t, models.StatusScheduled, a.Status)
		require.NotNil(t, a.SeriesID)
		require.Equal(t, series[0].ID, *a.SeriesID)
	}
}

func TestCompleteSessionBilling(t *testing.T) {
	db := testDB(t)
	engine := NewEngine(db)
	f := seed(t, db, models.LevelStandard, false)

	result, err := engine.Create(CreateRequest{
		ProfessionalID: f.professional.ID,
		PatientID:      f.patient.ID,
		SessionValue:   floatPtr(100),
		Timestamps:     []time.Time{time.Now().Add(-2 * time.Hour)},
	})
	require.NoError(t, err)
	apptID := result.Appointments[0].ID

	transition, err := engine.TransitionStatus(apptID, models.StatusCompleted, f.professional.ID)
	require.NoError(t, err)
	require.True(t, transition.InvoiceCreated)

	var records []models.ProfessionalBilling
	require.NoError(t, db.Find(&records).Error)
	require.Len(t, records, 1)
	require.Equal(t, 100.0, records[0].GrossValue)
	require.Equal(t, 25.0, records[0].CommissionValue)
	require.Equal(t, apptID, records[0].AppointmentID)

	var invoices []models.Invoice
	require.NoError(t, db.Find(&invoices).Error)
	require.Len(t, invoices, 1)
	require.Equal(t, 100.0, invoices[0].Amount)
	require.Equal(t, f.patient.UserID, invoices[0].PayerUserID)
	wantDue := time.Now().AddDate(0, 0, 15)
	require.Equal(t, wantDue.YearDay(), invoices[0].DueDate.YearDay())

	// A completed appointment is terminal; a repeat completion fails and
	// cannot double-bill.
	_, err = engine.TransitionStatus(apptID, models.StatusCompleted, f.professional.ID)
	require.ErrorIs(t, err, ErrForbidden)
	require.NoError(t, db.Find(&records).Error)
	require.Len(t, records, 1)
}

func TestTransitionAuthorization(t *testing.T) {
	db := testDB(t)
	engine := NewEngine(db)
	f := seed(t, db, models.LevelStandard, false)

	result, err := engine.Create(CreateRequest{
		ProfessionalID: f.professional.ID,
		PatientID:      f.patient.ID,
		Timestamps:     []time.Time{time.Now().Add(time.Hour)},
	})
	require.NoError(t, err)
	apptID := result.Appointments[0].ID

	_, err = engine.TransitionStatus(apptID, "nonsense", f.professional.ID)
	require.ErrorIs(t, err, ErrValidation)

	_, err = engine.TransitionStatus(apptID, models.StatusCompleted, f.professional.ID+1)
	require.ErrorIs(t, err, ErrForbidden)

	_, err = engine.TransitionStatus(9999, models.StatusCompleted, f.professional.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPackageSessionCannotCompleteBeforePayment(t *testing.T) {
	db := testDB(t)
	engine := NewEngine(db)
	f := seed(t, db, models.LevelStandard, true)

	result, err := engine.Create(CreateRequest{
		ProfessionalID: f.professional.ID,
		PatientID:      f.patient.ID,
		Timestamps:     []time.Time{time.Now().Add(time.Hour)},
		IsPackage:      true,
		TotalValue:     100,
	})
	require.NoError(t, err)
	apptID := result.Appointments[0].ID

	_, err = engine.TransitionStatus(apptID, models.StatusCompleted, f.professional.ID)
	require.ErrorIs(t, err, ErrForbidden)

	// Cancellation stays allowed.
	_, err = engine.TransitionStatus(apptID, models.StatusCancelled, f.professional.ID)
	require.NoError(t, err)
}

func TestConcurrentCompletionBillsOnce(t *testing.T) {
	db := testDB(t)
	engine := NewEngine(db)
	f := seed(t, db, models.LevelStandard, false)

	result, err := engine.Create(CreateRequest{
		ProfessionalID: f.professional.ID,
		PatientID:      f.patient.ID,
		SessionValue:   floatPtr(100),
		Timestamps:     []time.Time{time.Now().Add(-2 * time.Hour)},
	})
	require.NoError(t, err)
	apptID := result.Appointments[0].ID

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = engine.TransitionStatus(apptID, models.StatusCompleted, f.professional.ID)
		}(i)
	}
	wg.Wait()

	// The row lock serializes the two completions: one wins, the other
	// sees a terminal state.
	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			require.ErrorIs(t, err, ErrForbidden)
		}
	}
	require.Equal(t, 1, succeeded)

	var billingCount, invoiceCount int64
	require.NoError(t, db.Model(&models.ProfessionalBilling{}).Count(&billingCount).Error)
	require.EqualValues(t, 1, billingCount)
	require.NoError(t, db.Model(&models.Invoice{}).Count(&invoiceCount).Error)
	require.EqualValues(t, 1, invoiceCount)
}

func TestRescheduleShiftsFutureOccurrences(t *testing.T) {
	db := testDB(t)
	engine := NewEngine(db)
	f := seed(t, db, models.LevelStandard, false)

	start := time.Now().Add(24 * time.Hour).Truncate(time.Second)
	_, err := engine.Create(CreateRequest{
		ProfessionalID: f.professional.ID,
		PatientID:      f.patient.ID,
		Frequency:      models.FrequencyWeekly,
		Timestamps:     []time.Time{start},
	})
	require.NoError(t, err)

	var before []models.Appointment
	require.NoError(t, db.Order("start_time asc").Find(&before).Error)
	require.GreaterOrEqual(t, len(before), 4)

	// One future occurrence is already completed and must not move.
	frozen := before[3]
	require.NoError(t, db.Model(&models.Appointment{}).Where("id = ?", frozen.ID).
		Update("status", models.StatusCompleted).Error)

	edited := before[1]
	delta := 3 * time.Hour
	newTime := edited.StartTime.Add(delta)
	_, err = engine.Update(edited.ID, UpdateRequest{StartTime: &newTime})
	require.NoError(t, err)

	var after []models.Appointment
	require.NoError(t, db.Find(&after).Error)
	byID := make(map[uint]models.Appointment, len(after))
	for _, a := range after {
		byID[a.ID] = a
	}

	// Earlier occurrence untouched, edited row moved, frozen row untouched,
	// everything else shifted by exactly the delta.
	require.True(t, byID[before[0].ID].StartTime.Equal(before[0].StartTime))
	require.True(t, byID[edited.ID].StartTime.Equal(newTime))
	require.True(t, byID[frozen.ID].StartTime.Equal(frozen.StartTime))
	for _, orig := range before[2:] {
		if orig.ID == frozen.ID {
			continue
		}
		require.True(t, byID[orig.ID].StartTime.Equal(orig.StartTime.Add(delta)),
			"occurrence %d not shifted by delta", orig.ID)
	}
}

func TestConvertSingleToRecurring(t *testing.T) {
	db := testDB(t)
	engine := NewEngine(db)
	f := seed(t, db, models.LevelStandard, false)

	start := time.Now().Add(24 * time.Hour).Truncate(time.Second)
	result, err := engine.Create(CreateRequest{
		ProfessionalID: f.professional.ID,
		PatientID:      f.patient.ID,
		SessionValue:   floatPtr(120),
		Timestamps:     []time.Time{start},
	})
	require.NoError(t, err)
	apptID := result.Appointments[0].ID

	weekly := models.FrequencyWeekly
	updated, err := engine.Update(apptID, UpdateRequest{Frequency: &weekly})
	require.NoError(t, err)
	require.NotNil(t, updated.Appointment.SeriesID)

	var future []models.Appointment
	require.NoError(t, db.Where("id <> ?", apptID).Order("start_time asc").Find(&future).Error)
	require.Len(t, future, ConversionOccurrences)
	for i, a := range future {
		require.NotNil(t, a.SeriesID)
		require.Equal(t, *updated.Appointment.SeriesID, *a.SeriesID)
		require.True(t, a.StartTime.After(start))
		wantAt := start.AddDate(0, 0, 7*(i+1))
		require.True(t, a.StartTime.Equal(wantAt), "occurrence %d at %v, want %v", i, a.StartTime, wantAt)
		require.Equal(t, 120.0, *a.SessionValue)
	}
}

func TestSeriesBackToSingle(t *testing.T) {
	db := testDB(t)
	engine := NewEngine(db)
	f := seed(t, db, models.LevelStandard, false)

	start := time.Now().Add(24 * time.Hour).Truncate(time.Second)
	_, err := engine.Create(CreateRequest{
		ProfessionalID: f.professional.ID,
		PatientID:      f.patient.ID,
		Frequency:      models.FrequencyWeekly,
		Timestamps:     []time.Time{start},
	})
	require.NoError(t, err)

	var first models.Appointment
	require.NoError(t, db.Order("start_time asc").First(&first).Error)
	seriesID := *first.SeriesID

	none := models.FrequencyNone
	updated, err := engine.Update(first.ID, UpdateRequest{Frequency: &none})
	require.NoError(t, err)
	require.Nil(t, updated.Appointment.SeriesID)

	var remaining int64
	require.NoError(t, db.Model(&models.Appointment{}).Count(&remaining).Error)
	require.EqualValues(t, 1, remaining)

	// The series row itself survives.
	var series models.AppointmentSeries
	require.NoError(t, db.First(&series, seriesID).Error)
}

func TestIntervalChangeRegeneratesSeries(t *testing.T) {
	db := testDB(t)
	engine := NewEngine(db)
	f := seed(t, db, models.LevelStandard, false)

	start := time.Now().Add(24 * time.Hour).Truncate(time.Second)
	_, err := engine.Create(CreateRequest{
		ProfessionalID: f.professional.ID,
		PatientID:      f.patient.ID,
		Frequency:      models.FrequencyWeekly,
		Timestamps:     []time.Time{start},
	})
	require.NoError(t, err)

	var first models.Appointment
	require.NoError(t, db.Order("start_time asc").First(&first).Error)
	seriesID := *first.SeriesID

	biweekly := models.FrequencyBiweekly
	_, err = engine.Update(first.ID, UpdateRequest{Frequency: &biweekly})
	require.NoError(t, err)

	var series models.AppointmentSeries
	require.NoError(t, db.First(&series, seriesID).Error)
	require.Equal(t, models.FrequencyBiweekly, series.Frequency)

	var future []models.Appointment
	require.NoError(t, db.Where("id <> ?", first.ID).Order("start_time asc").Find(&future).Error)
	require.Len(t, future, ConversionOccurrences)
	for i, a := range future {
		require.Equal(t, seriesID, *a.SeriesID)
		wantAt := start.AddDate(0, 0, 14*(i+1))
		require.True(t, a.StartTime.Equal(wantAt), "occurrence %d at %v, want %v", i, a.StartTime, wantAt)
	}
}

func TestDeleteFuture(t *testing.T) {
	db := testDB(t)
	engine := NewEngine(db)
	f := seed(t, db, models.LevelStandard, false)

	start := time.Now().Add(24 * time.Hour).Truncate(time.Second)
	_, err := engine.Create(CreateRequest{
		ProfessionalID: f.professional.ID,
		PatientID:      f.patient.ID,
		Frequency:      models.FrequencyWeekly,
		Timestamps:     []time.Time{start},
	})
	require.NoError(t, err)

	var appointments []models.Appointment
	require.NoError(t, db.Order("start_time asc").Find(&appointments).Error)
	require.GreaterOrEqual(t, len(appointments), 3)

	require.NoError(t, engine.Delete(appointments[1].ID, DeleteFuture))

	var remaining []models.Appointment
	require.NoError(t, db.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	require.Equal(t, appointments[0].ID, remaining[0].ID)

	require.ErrorIs(t, engine.Delete(9999, DeleteSingle), ErrNotFound)

	// future delete on a standalone appointment is rejected.
	single, err := engine.Create(CreateRequest{
		ProfessionalID: f.professional.ID,
		PatientID:      f.patient.ID,
		Timestamps:     []time.Time{start.AddDate(1, 0, 0)},
	})
	require.NoError(t, err)
	require.ErrorIs(t, engine.Delete(single.Appointments[0].ID, DeleteFuture), ErrValidation)
}

func TestUpdateRejectsTerminalAppointments(t *testing.T) {
	db := testDB(t)
	engine := NewEngine(db)
	f := seed(t, db, models.LevelStandard, false)

	result, err := engine.Create(CreateRequest{
		ProfessionalID: f.professional.ID,
		PatientID:      f.patient.ID,
		SessionValue:   floatPtr(100),
		Timestamps:     []time.Time{time.Now().Add(-2 * time.Hour)},
	})
	require.NoError(t, err)
	apptID := result.Appointments[0].ID

	_, err = engine.TransitionStatus(apptID, models.StatusCompleted, f.professional.ID)
	require.NoError(t, err)

	// The ledger billed 100; the completed row must not be rewritten.
	_, err = engine.Update(apptID, UpdateRequest{SessionValue: floatPtr(250)})
	require.ErrorIs(t, err, ErrForbidden)

	newTime := time.Now().Add(72 * time.Hour)
	_, err = engine.Update(apptID, UpdateRequest{StartTime: &newTime})
	require.ErrorIs(t, err, ErrForbidden)

	var appt models.Appointment
	require.NoError(t, db.First(&appt, apptID).Error)
	require.Equal(t, 100.0, *appt.SessionValue)
	require.Equal(t, models.StatusCompleted, appt.Status)

	// Cancelled rows are just as frozen.
	cancelled, err := engine.Create(CreateRequest{
		ProfessionalID: f.professional.ID,
		PatientID:      f.patient.ID,
		Timestamps:     []time.Time{time.Now().Add(time.Hour)},
	})
	require.NoError(t, err)
	cancelledID := cancelled.Appointments[0].ID
	_, err = engine.TransitionStatus(cancelledID, models.StatusCancelled, f.professional.ID)
	require.NoError(t, err)
	_, err = engine.Update(cancelledID, UpdateRequest{SessionValue: floatPtr(50)})
	require.ErrorIs(t, err, ErrForbidden)
}

func TestConfirmPackagePayment(t *testing.T) {
	db := testDB(t)
	engine := NewEngine(db)
	f := seed(t, db, models.LevelStandard, true)

	base := time.Now().Add(48 * time.Hour).Truncate(time.Second)
	created, err := engine.Create(CreateRequest{
		ProfessionalID: f.professional.ID,
		PatientID:      f.patient.ID,
		Timestamps:     []time.Time{base, base.AddDate(0, 0, 7)},
		IsPackage:      true,
		TotalValue:     200,
	})
	require.NoError(t, err)

	result, err := engine.ConfirmPackagePayment(created.Invoice.ID)
	require.NoError(t, err)
	require.Equal(t, models.InvoicePaid, result.Invoice.Status)
	require.Len(t, result.Appointments, 2)

	var appointments []models.Appointment
	require.NoError(t, db.Find(&appointments).Error)
	for _, a := range appointments {
		require.Equal(t, models.StatusScheduled, a.Status)
	}

	// Confirming again is a no-op.
	again, err := engine.ConfirmPackagePayment(created.Invoice.ID)
	require.NoError(t, err)
	require.Equal(t, models.InvoicePaid, again.Invoice.Status)
}
