package referral

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/db"
)

// -- Referral Repository --

type referralRepoPG struct {
	pool *pgxpool.Pool
}

func NewReferralRepo(pool *pgxpool.Pool) ReferralRepository {
	return &referralRepoPG{pool: pool}
}

func (r *referralRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const referralSelect = `
	SELECT r.id, r.referring_doctor_id, rf.first_name || ' ' || rf.last_name,
		r.receiving_doctor_id, rc.first_name || ' ' || rc.last_name,
		r.patient_id, p.first_name || ' ' || p.last_name,
		r.reason, r.notes, r.status, r.appointment_id, a.appointment_date, r.created_at, r.updated_at
	FROM referrals r
	JOIN users rf ON rf.id = r.referring_doctor_id
	JOIN users rc ON rc.id = r.receiving_doctor_id
	JOIN patients p ON p.id = r.patient_id
	LEFT JOIN appointments a ON a.id = r.appointment_id`

func scanReferral(row pgx.Row) (*Referral, error) {
	var ref Referral
	err := row.Scan(&ref.ID, &ref.ReferringDoctorID, &ref.ReferringDoctorName,
		&ref.ReceivingDoctorID, &ref.ReceivingDoctorName,
		&ref.PatientID, &ref.PatientName,
		&ref.Reason, &ref.Notes, &ref.Status, &ref.AppointmentID, &ref.AppointmentDate, &ref.CreatedAt, &ref.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &ref, nil
}

func (r *referralRepoPG) list(ctx context.Context, where string, args ...interface{}) ([]*Referral, error) {
	rows, err := r.conn(ctx).Query(ctx, referralSelect+" "+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Referral
	for rows.Next() {
		ref, err := scanReferral(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, ref)
	}
	return items, rows.Err()
}

func (r *referralRepoPG) Create(ctx context.Context, ref *Referral) error {
	ref.ID = uuid.New()
	if ref.Status == "" {
		ref.Status = StatusPending
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO referrals (id, referring_doctor_id, receiving_doctor_id, patient_id, reason, notes, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at, updated_at`,
		ref.ID, ref.ReferringDoctorID, ref.ReceivingDoctorID, ref.PatientID, ref.Reason, ref.Notes, ref.Status,
	).Scan(&ref.CreatedAt, &ref.UpdatedAt)
}

func (r *referralRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Referral, error) {
	return scanReferral(r.conn(ctx).QueryRow(ctx, referralSelect+` WHERE r.id = $1`, id))
}

func (r *referralRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Referral, error) {
	q := referralSelect + ` WHERE r.id = $1`
	if db.TxFromContext(ctx) != nil {
		q += ` FOR UPDATE OF r`
	}
	return scanReferral(r.conn(ctx).QueryRow(ctx, q, id))
}

func (r *referralRepoPG) GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Referral, error) {
	return scanReferral(r.conn(ctx).QueryRow(ctx, referralSelect+` WHERE r.appointment_id = $1`, appointmentID))
}

func (r *referralRepoPG) ListByStatus(ctx context.Context, status string) ([]*Referral, error) {
	return r.list(ctx, `WHERE r.status = $1 ORDER BY r.created_at DESC`, status)
}

func (r *referralRepoPG) ListForDoctor(ctx context.Context, doctorID uuid.UUID, pastOnly bool) ([]*Referral, error) {
	where := `WHERE (r.referring_doctor_id = $1 OR r.receiving_doctor_id = $1)`
	if pastOnly {
		where += ` AND r.status <> 'pending'`
	}
	return r.list(ctx, where+` ORDER BY r.created_at DESC`, doctorID)
}

func (r *referralRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status string, appointmentID *uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE referrals SET status = $2, appointment_id = $3, updated_at = NOW() WHERE id = $1`,
		id, status, appointmentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// -- Appointment Repository --

type appointmentRepoPG struct {
	pool *pgxpool.Pool
}

func NewAppointmentRepo(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const appointmentSelect = `
	SELECT a.id, a.patient_id, p.first_name || ' ' || p.last_name, a.doctor_id, u.first_name || ' ' || u.last_name,
		a.scheduled_by, a.appointment_date, a.status, a.notes, a.created_at, a.updated_at
	FROM appointments a
	JOIN patients p ON p.id = a.patient_id
	JOIN users u ON u.id = a.doctor_id`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.PatientID, &a.PatientName, &a.DoctorID, &a.DoctorName,
		&a.ScheduledBy, &a.AppointmentDate, &a.Status, &a.Notes, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (r *appointmentRepoPG) list(ctx context.Context, where string, args ...interface{}) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, appointmentSelect+" "+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	if a.Status == "" {
		a.Status = AppointmentScheduled
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, scheduled_by, appointment_date, status, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at, updated_at`,
		a.ID, a.PatientID, a.DoctorID, a.ScheduledBy, a.AppointmentDate, a.Status, a.Notes,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return scanAppointment(r.conn(ctx).QueryRow(ctx, appointmentSelect+` WHERE a.id = $1`, id))
}

func (r *appointmentRepoPG) BookedTimes(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]time.Time, error) {
	q := `
		SELECT appointment_date FROM appointments
		WHERE doctor_id = $1 AND status = $2 AND appointment_date >= $3 AND appointment_date < $4
		ORDER BY appointment_date`
	if db.TxFromContext(ctx) != nil {
		q += ` FOR UPDATE`
	}
	rows, err := r.conn(ctx).Query(ctx, q, doctorID, AppointmentScheduled, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

func (r *appointmentRepoPG) ListUpcoming(ctx context.Context, doctorID *uuid.UUID, from time.Time) ([]*Appointment, error) {
	if doctorID != nil {
		return r.list(ctx, `WHERE a.status = $1 AND a.appointment_date >= $2 AND a.doctor_id = $3 ORDER BY a.appointment_date`,
			AppointmentScheduled, from, *doctorID)
	}
	return r.list(ctx, `WHERE a.status = $1 AND a.appointment_date >= $2 ORDER BY a.appointment_date`,
		AppointmentScheduled, from)
}

func (r *appointmentRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Appointment, error) {
	return r.list(ctx, `WHERE a.patient_id = $1 ORDER BY a.appointment_date DESC`, patientID)
}

func (r *appointmentRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE appointments SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}
