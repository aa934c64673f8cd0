package treatment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/pkg/dates"
)

type treatmentRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &treatmentRepoPG{pool: pool}
}

func (r *treatmentRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *treatmentRepoPG) Create(ctx context.Context, t *Treatment) error {
	t.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO treatments (id, patient_id, doctor_id, queue_entry_id, treatment_notes)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at`,
		t.ID, t.PatientID, t.DoctorID, t.QueueEntryID, t.TreatmentNotes,
	).Scan(&t.CreatedAt)
}

func (r *treatmentRepoPG) CreateDiagnosis(ctx context.Context, d *Diagnosis) error {
	d.ID = uuid.New()
	if d.Date.IsZero() {
		d.Date = time.Now().UTC()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO diagnoses (id, patient_id, treatment_id, code, description, date)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		d.ID, d.PatientID, d.TreatmentID, d.Code, d.Description, d.Date)
	return err
}

func (r *treatmentRepoPG) CreatePrescription(ctx context.Context, p *Prescription) error {
	p.ID = uuid.New()
	if p.Status == "" {
		p.Status = PrescriptionPending
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO prescriptions (id, patient_id, treatment_id, medicine_id, dosage, frequency, quantity,
			start_date, end_date, note, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING created_at`,
		p.ID, p.PatientID, p.TreatmentID, p.MedicineID, p.Dosage, p.Frequency, p.Quantity,
		dateArg(p.StartDate), dateArg(p.EndDate), p.Note, p.Status,
	).Scan(&p.CreatedAt)
}

func dateArg(d *dates.Date) *time.Time {
	if d == nil || d.IsZero() {
		return nil
	}
	t := d.Time
	return &t
}

func dateOf(t *time.Time) *dates.Date {
	if t == nil {
		return nil
	}
	return &dates.Date{Time: *t}
}

const treatmentSelect = `
	SELECT t.id, t.patient_id, t.doctor_id, t.queue_entry_id, t.treatment_notes, t.created_at,
		COALESCE(u.first_name || ' ' || u.last_name, ''), COALESCE(d.specialization, '')
	FROM treatments t
	LEFT JOIN users u ON u.id = t.doctor_id
	LEFT JOIN doctors d ON d.user_id = t.doctor_id`

func scanTreatment(row pgx.Row) (*Treatment, error) {
	var t Treatment
	var info DoctorInfo
	if err := row.Scan(&t.ID, &t.PatientID, &t.DoctorID, &t.QueueEntryID, &t.TreatmentNotes, &t.CreatedAt,
		&info.Name, &info.Specialization); err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if info.Name != "" {
		t.DoctorInfo = &info
	}
	t.Diagnoses = []*Diagnosis{}
	t.Prescriptions = []*Prescription{}
	return &t, nil
}

func (r *treatmentRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Treatment, error) {
	rows, err := r.conn(ctx).Query(ctx, treatmentSelect+` WHERE t.patient_id = $1 ORDER BY t.created_at DESC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Treatment
	byID := map[uuid.UUID]*Treatment{}
	for rows.Next() {
		t, err := scanTreatment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
		byID[t.ID] = t
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return items, nil
	}

	diagnoses, err := r.ListDiagnoses(ctx, patientID)
	if err != nil {
		return nil, err
	}
	for _, d := range diagnoses {
		if d.TreatmentID == nil {
			continue
		}
		if t, ok := byID[*d.TreatmentID]; ok {
			t.Diagnoses = append(t.Diagnoses, d)
		}
	}

	prescriptions, err := r.listPrescriptions(ctx, `WHERE rx.patient_id = $1 ORDER BY rx.created_at`, patientID)
	if err != nil {
		return nil, err
	}
	for _, p := range prescriptions {
		if p.TreatmentID == nil {
			continue
		}
		if t, ok := byID[*p.TreatmentID]; ok {
			t.Prescriptions = append(t.Prescriptions, p)
		}
	}
	return items, nil
}

func (r *treatmentRepoPG) ListLatestPerPatient(ctx context.Context, limit, offset int) ([]*Summary, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(DISTINCT patient_id) FROM treatments`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT * FROM (
			SELECT DISTINCT ON (t.patient_id)
				t.id, t.treatment_notes, t.created_at,
				COALESCE(u.first_name || ' ' || u.last_name, ''),
				p.id AS pid, p.patient_code, p.first_name, p.last_name,
				q.queue_number, q.priority_level, q.status, q.complaint
			FROM treatments t
			JOIN patients p ON p.id = t.patient_id
			LEFT JOIN users u ON u.id = t.doctor_id
			LEFT JOIN queue_entries q ON q.id = t.queue_entry_id
			ORDER BY t.patient_id, t.created_at DESC
		) latest
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Summary
	for rows.Next() {
		var s Summary
		var number *int64
		var priority, status, complaint *string
		if err := rows.Scan(&s.ID, &s.TreatmentNotes, &s.CreatedAt, &s.DoctorName,
			&s.Patient.ID, &s.Patient.PatientCode, &s.Patient.FirstName, &s.Patient.LastName,
			&number, &priority, &status, &complaint); err != nil {
			return nil, 0, err
		}
		if number != nil {
			s.Patient.QueueData = &QueueData{QueueNumber: *number, PriorityLevel: *priority, Status: *status, Complaint: *complaint}
		}
		items = append(items, &s)
	}
	return items, total, rows.Err()
}

func (r *treatmentRepoPG) ListDiagnoses(ctx context.Context, patientID uuid.UUID) ([]*Diagnosis, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, patient_id, treatment_id, code, description, date
		FROM diagnoses WHERE patient_id = $1 ORDER BY date DESC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Diagnosis
	for rows.Next() {
		var d Diagnosis
		if err := rows.Scan(&d.ID, &d.PatientID, &d.TreatmentID, &d.Code, &d.Description, &d.Date); err != nil {
			return nil, err
		}
		items = append(items, &d)
	}
	return items, rows.Err()
}

const prescriptionSelect = `
	SELECT rx.id, rx.patient_id, p.first_name || ' ' || p.last_name, rx.treatment_id, rx.medicine_id,
		m.name, m.strength, m.stocks,
		rx.dosage, rx.frequency, rx.quantity, rx.start_date, rx.end_date, rx.note, rx.status,
		rx.dispensed_at, rx.created_at
	FROM prescriptions rx
	JOIN medicines m ON m.id = rx.medicine_id
	JOIN patients p ON p.id = rx.patient_id`

func scanPrescription(row pgx.Row) (*Prescription, error) {
	var p Prescription
	var med Medication
	var start, end *time.Time
	if err := row.Scan(&p.ID, &p.PatientID, &p.PatientName, &p.TreatmentID, &p.MedicineID,
		&med.Name, &med.Strength, &med.Stocks,
		&p.Dosage, &p.Frequency, &p.Quantity, &start, &end, &p.Note, &p.Status,
		&p.DispensedAt, &p.CreatedAt); err != nil {
		if db.IsNoRows(err) {
			return nil, ErrPrescriptionNotFound
		}
		return nil, err
	}
	med.ID = p.MedicineID
	p.Medication = &med
	p.StartDate = dateOf(start)
	p.EndDate = dateOf(end)
	return &p, nil
}

func (r *treatmentRepoPG) listPrescriptions(ctx context.Context, where string, args ...interface{}) ([]*Prescription, error) {
	rows, err := r.conn(ctx).Query(ctx, prescriptionSelect+" "+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Prescription
	for rows.Next() {
		p, err := scanPrescription(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func (r *treatmentRepoPG) ListPendingPrescriptions(ctx context.Context) ([]*Prescription, error) {
	return r.listPrescriptions(ctx, `WHERE rx.status = $1 ORDER BY rx.created_at`, PrescriptionPending)
}

func (r *treatmentRepoPG) GetPrescriptionForUpdate(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	q := prescriptionSelect + ` WHERE rx.id = $1`
	if db.TxFromContext(ctx) != nil {
		q += ` FOR UPDATE OF rx`
	}
	return scanPrescription(r.conn(ctx).QueryRow(ctx, q, id))
}

func (r *treatmentRepoPG) SetPrescriptionStatus(ctx context.Context, id uuid.UUID, status string, dispensedAt *time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE prescriptions SET status = $2, dispensed_at = $3 WHERE id = $1`, id, status, dispensedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPrescriptionNotFound
	}
	return nil
}
