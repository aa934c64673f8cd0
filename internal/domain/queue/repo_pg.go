package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/db"
)

// -- Entry Repository --

type entryRepoPG struct {
	pool *pgxpool.Pool
}

func NewEntryRepo(pool *pgxpool.Pool) EntryRepository {
	return &entryRepoPG{pool: pool}
}

func (r *entryRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const entryCols = `id, patient_id, queue_number, priority_level, status, complaint, queue_date, position, created_at, updated_at`

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.PatientID, &e.QueueNumber, &e.PriorityLevel, &e.Status, &e.Complaint,
		&e.QueueDate, &e.Position, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

func (r *entryRepoPG) Create(ctx context.Context, e *Entry) error {
	e.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO queue_entries (id, patient_id, priority_level, status, complaint, queue_date, position)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING queue_number, created_at, updated_at`,
		e.ID, e.PatientID, e.PriorityLevel, e.Status, e.Complaint, e.QueueDate, e.Position,
	).Scan(&e.QueueNumber, &e.CreatedAt, &e.UpdatedAt)
}

func (r *entryRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Entry, error) {
	return scanEntry(r.conn(ctx).QueryRow(ctx, `SELECT `+entryCols+` FROM queue_entries WHERE id = $1`, id))
}

func (r *entryRepoPG) GetByPatientAndNumber(ctx context.Context, patientID uuid.UUID, number int64) (*Entry, error) {
	return scanEntry(r.conn(ctx).QueryRow(ctx,
		`SELECT `+entryCols+` FROM queue_entries WHERE patient_id = $1 AND queue_number = $2`, patientID, number))
}

func (r *entryRepoPG) Latest(ctx context.Context, patientID uuid.UUID) (*Entry, error) {
	return scanEntry(r.conn(ctx).QueryRow(ctx,
		`SELECT `+entryCols+` FROM queue_entries WHERE patient_id = $1 ORDER BY created_at DESC LIMIT 1`, patientID))
}

func (r *entryRepoPG) Earliest(ctx context.Context, patientID uuid.UUID) (*Entry, error) {
	return scanEntry(r.conn(ctx).QueryRow(ctx,
		`SELECT `+entryCols+` FROM queue_entries WHERE patient_id = $1 ORDER BY created_at ASC LIMIT 1`, patientID))
}

func (r *entryRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE queue_entries SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *entryRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Entry, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+entryCols+` FROM queue_entries WHERE patient_id = $1 ORDER BY created_at DESC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

const boardSelect = `
	SELECT q.id, q.patient_id, q.queue_number, q.priority_level, q.status, q.complaint, q.queue_date,
		q.position, q.created_at, q.updated_at,
		p.patient_code, p.first_name, p.last_name, p.phone_number, p.date_of_birth,
		NOT EXISTS (
			SELECT 1 FROM queue_entries prev
			WHERE prev.patient_id = q.patient_id AND prev.created_at < q.created_at
		) AS is_new_patient
	FROM queue_entries q
	JOIN patients p ON p.id = q.patient_id`

func scanBoardEntry(row pgx.Row) (*BoardEntry, error) {
	var b BoardEntry
	err := row.Scan(&b.ID, &b.PatientID, &b.QueueNumber, &b.PriorityLevel, &b.Status, &b.Complaint, &b.QueueDate,
		&b.Position, &b.CreatedAt, &b.UpdatedAt,
		&b.PatientCode, &b.FirstName, &b.LastName, &b.PhoneNumber, &b.DateOfBirth.Time, &b.IsNewPatient)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *entryRepoPG) queryBoard(ctx context.Context, query string, args ...interface{}) ([]*BoardEntry, error) {
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*BoardEntry
	for rows.Next() {
		b, err := scanBoardEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *entryRepoPG) ListBoard(ctx context.Context, status string, day *time.Time) ([]*BoardEntry, error) {
	order := ` ORDER BY q.position, q.queue_number, q.created_at`
	if day != nil {
		return r.queryBoard(ctx, boardSelect+` WHERE q.status = $1 AND q.queue_date = $2`+order, status, *day)
	}
	return r.queryBoard(ctx, boardSelect+` WHERE q.status = $1`+order, status)
}

func (r *entryRepoPG) ListBetween(ctx context.Context, from, to time.Time) ([]*BoardEntry, error) {
	return r.queryBoard(ctx, boardSelect+`
		WHERE q.queue_date >= $1 AND q.queue_date < $2
		ORDER BY q.queue_number`, from, to)
}

// -- Assessment Repository --

type assessmentRepoPG struct {
	pool *pgxpool.Pool
}

func NewAssessmentRepo(pool *pgxpool.Pool) AssessmentRepository {
	return &assessmentRepoPG{pool: pool}
}

func (r *assessmentRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const assessmentCols = `id, patient_id, queue_entry_id, blood_pressure, temperature, heart_rate, respiratory_rate,
	pulse_rate, allergies, medical_history, symptoms, current_medications, current_symptoms, pain_scale,
	pain_location, smoking_status, alcohol_use, assessment, assessment_date`

func scanAssessment(row pgx.Row) (*Assessment, error) {
	var a Assessment
	err := row.Scan(&a.ID, &a.PatientID, &a.QueueEntryID, &a.BloodPressure, &a.Temperature, &a.HeartRate,
		&a.RespiratoryRate, &a.PulseRate, &a.Allergies, &a.MedicalHistory, &a.Symptoms, &a.CurrentMedications,
		&a.CurrentSymptoms, &a.PainScale, &a.PainLocation, &a.SmokingStatus, &a.AlcoholUse, &a.Assessment,
		&a.AssessmentDate)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrAssessmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (r *assessmentRepoPG) Create(ctx context.Context, a *Assessment) error {
	a.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO preliminary_assessments (id, patient_id, queue_entry_id, blood_pressure, temperature,
			heart_rate, respiratory_rate, pulse_rate, allergies, medical_history, symptoms, current_medications,
			current_symptoms, pain_scale, pain_location, smoking_status, alcohol_use, assessment)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		RETURNING assessment_date`,
		a.ID, a.PatientID, a.QueueEntryID, a.BloodPressure, a.Temperature, a.HeartRate, a.RespiratoryRate,
		a.PulseRate, a.Allergies, a.MedicalHistory, a.Symptoms, a.CurrentMedications, a.CurrentSymptoms,
		a.PainScale, a.PainLocation, a.SmokingStatus, a.AlcoholUse, a.Assessment,
	).Scan(&a.AssessmentDate)
}

func (r *assessmentRepoPG) GetByEntry(ctx context.Context, entryID uuid.UUID) (*Assessment, error) {
	return scanAssessment(r.conn(ctx).QueryRow(ctx, `
		SELECT `+assessmentCols+` FROM preliminary_assessments
		WHERE queue_entry_id = $1 ORDER BY assessment_date DESC LIMIT 1`, entryID))
}

func (r *assessmentRepoPG) Latest(ctx context.Context, patientID uuid.UUID) (*Assessment, error) {
	return scanAssessment(r.conn(ctx).QueryRow(ctx, `
		SELECT `+assessmentCols+` FROM preliminary_assessments
		WHERE patient_id = $1 ORDER BY assessment_date DESC LIMIT 1`, patientID))
}
