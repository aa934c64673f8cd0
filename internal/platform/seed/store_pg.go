package seed

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/pkg/dates"
)

// PGStore writes synthetic records with their original timestamps, which
// the domain repositories leave to the database.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// WriteRecord inserts the patient and the whole visit history in one
// transaction. A patient code collision skips the record and reports false.
func (s *PGStore) WriteRecord(ctx context.Context, rec *Record) (bool, error) {
	written := false
	err := db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		conn := db.Conn(ctx, s.pool)
		p := rec.Patient
		tag, err := conn.Exec(ctx, `
			INSERT INTO patients (id, patient_code, first_name, middle_name, last_name, email, phone_number,
				date_of_birth, street_address, barangay, municipal_city, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$12)
			ON CONFLICT (patient_code) DO NOTHING`,
			p.ID, p.PatientCode, p.FirstName, p.MiddleName, p.LastName, p.Email, p.PhoneNumber,
			p.DateOfBirth.Time, p.StreetAddress, p.Barangay, p.MunicipalCity, p.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert patient: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}

		for i := range rec.Visits {
			v := &rec.Visits[i]
			e := &v.Entry
			if err := conn.QueryRow(ctx, `
				INSERT INTO queue_entries (id, patient_id, priority_level, status, complaint, queue_date, created_at, updated_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
				RETURNING queue_number`,
				e.ID, e.PatientID, e.PriorityLevel, e.Status, e.Complaint, e.QueueDate, e.CreatedAt, e.UpdatedAt,
			).Scan(&e.QueueNumber); err != nil {
				return fmt.Errorf("insert visit: %w", err)
			}

			if a := v.Assessment; a != nil {
				if _, err := conn.Exec(ctx, `
					INSERT INTO preliminary_assessments (id, patient_id, queue_entry_id, blood_pressure, temperature,
						heart_rate, respiratory_rate, pulse_rate, symptoms, pain_scale, smoking_status, alcohol_use,
						assessment, assessment_date)
					VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
					a.ID, a.PatientID, a.QueueEntryID, a.BloodPressure, a.Temperature, a.HeartRate,
					a.RespiratoryRate, a.PulseRate, a.Symptoms, a.PainScale, a.SmokingStatus, a.AlcoholUse,
					a.Assessment, a.AssessmentDate); err != nil {
					return fmt.Errorf("insert assessment: %w", err)
				}
			}

			t := v.Treatment
			if t == nil {
				continue
			}
			if _, err := conn.Exec(ctx, `
				INSERT INTO treatments (id, patient_id, doctor_id, queue_entry_id, treatment_notes, created_at)
				VALUES ($1,$2,$3,$4,$5,$6)`,
				t.ID, t.PatientID, t.DoctorID, t.QueueEntryID, t.TreatmentNotes, t.CreatedAt); err != nil {
				return fmt.Errorf("insert treatment: %w", err)
			}
			for _, d := range t.Diagnoses {
				if _, err := conn.Exec(ctx, `
					INSERT INTO diagnoses (id, patient_id, treatment_id, code, description, date)
					VALUES ($1,$2,$3,$4,$5,$6)`,
					d.ID, d.PatientID, d.TreatmentID, d.Code, d.Description, d.Date); err != nil {
					return fmt.Errorf("insert diagnosis: %w", err)
				}
			}
			for _, rx := range t.Prescriptions {
				if _, err := conn.Exec(ctx, `
					INSERT INTO prescriptions (id, patient_id, treatment_id, medicine_id, dosage, frequency, quantity,
						start_date, end_date, status, dispensed_at, created_at)
					VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
					rx.ID, rx.PatientID, rx.TreatmentID, rx.MedicineID, rx.Dosage, rx.Frequency, rx.Quantity,
					dateArg(rx.StartDate), dateArg(rx.EndDate), rx.Status, rx.DispensedAt, rx.CreatedAt); err != nil {
					return fmt.Errorf("insert prescription: %w", err)
				}
			}
		}
		written = true
		return nil
	})
	return written, err
}

func dateArg(d *dates.Date) any {
	if d == nil {
		return nil
	}
	return d.Time
}
