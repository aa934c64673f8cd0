package report

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/db"
)

type reportRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &reportRepoPG{pool: pool}
}

func (r *reportRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *reportRepoPG) ListVisits(ctx context.Context, from, to time.Time) ([]Visit, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT q.id, q.patient_id, p.patient_code, p.first_name || ' ' || p.last_name,
			q.priority_level, q.status, q.complaint, q.queue_number, q.queue_date, q.created_at,
			(SELECT MIN(t.created_at) FROM treatments t WHERE t.queue_entry_id = q.id)
		FROM queue_entries q
		JOIN patients p ON p.id = q.patient_id
		WHERE q.created_at >= $1 AND q.created_at < $2
		ORDER BY q.created_at`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Visit
	for rows.Next() {
		var v Visit
		var created time.Time
		if err := rows.Scan(&v.ID, &v.PatientID, &v.PatientCode, &v.PatientName,
			&v.PriorityLevel, &v.Status, &v.Complaint, &v.QueueNumber, &v.VisitDate.Time, &created,
			&v.TreatmentCreatedAt); err != nil {
			return nil, err
		}
		v.VisitCreatedAt = &created
		items = append(items, v)
	}
	return items, rows.Err()
}

func (r *reportRepoPG) ListLabRequests(ctx context.Context, from, to time.Time) ([]LabDetail, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT lr.id, p.first_name || ' ' || p.last_name,
			CASE WHEN lr.test_name = 'Other' AND lr.custom_test <> '' THEN lr.custom_test ELSE lr.test_name END,
			lr.status, COALESCE(u.first_name || ' ' || u.last_name, ''), lr.created_at, res.uploaded_at
		FROM lab_requests lr
		JOIN patients p ON p.id = lr.patient_id
		LEFT JOIN users u ON u.id = lr.requested_by
		LEFT JOIN lab_results res ON res.lab_request_id = lr.id
		WHERE lr.created_at >= $1 AND lr.created_at < $2
		ORDER BY lr.created_at`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []LabDetail
	for rows.Next() {
		var d LabDetail
		if err := rows.Scan(&d.ID, &d.PatientName, &d.TestName, &d.Status, &d.RequestedBy, &d.CreatedAt, &d.UploadedAt); err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}

func (r *reportRepoPG) ListDiagnoses(ctx context.Context, from, to time.Time) ([]DiagnosisRow, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT description, date FROM diagnoses
		WHERE date >= $1 AND date < $2
		ORDER BY date`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []DiagnosisRow
	for rows.Next() {
		var d DiagnosisRow
		if err := rows.Scan(&d.Description, &d.Date); err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}

func (r *reportRepoPG) FrequentMedicines(ctx context.Context, from, to time.Time, limit int) ([]MedicineCount, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT m.name, COUNT(*) AS n
		FROM prescriptions pr
		JOIN medicines m ON m.id = pr.medicine_id
		WHERE pr.created_at >= $1 AND pr.created_at < $2
		GROUP BY m.name
		ORDER BY n DESC, m.name
		LIMIT $3`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []MedicineCount{}
	for rows.Next() {
		var m MedicineCount
		if err := rows.Scan(&m.Name, &m.Count); err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

func (r *reportRepoPG) ListPatients(ctx context.Context, from, to time.Time) ([]PatientRow, error) {
	q := `SELECT id, patient_code, first_name, middle_name, last_name, date_of_birth, created_at FROM patients`
	var args []interface{}
	if !from.IsZero() && !to.IsZero() {
		q += ` WHERE created_at >= $1 AND created_at < $2`
		args = append(args, from, to)
	}
	q += ` ORDER BY created_at DESC`

	rows, err := r.conn(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []PatientRow
	for rows.Next() {
		var p PatientRow
		if err := rows.Scan(&p.ID, &p.PatientCode, &p.FirstName, &p.MiddleName, &p.LastName,
			&p.DateOfBirth.Time, &p.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}
