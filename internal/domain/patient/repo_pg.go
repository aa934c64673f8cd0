package patient

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/pkg/shortcode"
)

const codeAttempts = 5

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const patientCols = `id, patient_code, first_name, middle_name, last_name, email, phone_number, date_of_birth,
	street_address, barangay, municipal_city, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.PatientCode, &p.FirstName, &p.MiddleName, &p.LastName, &p.Email, &p.PhoneNumber,
		&p.DateOfBirth.Time, &p.StreetAddress, &p.Barangay, &p.MunicipalCity, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// Create inserts the patient under a fresh random code. A code collision
// inserts nothing and a new code is drawn.
func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	var err error
	for i := 0; i < codeAttempts; i++ {
		p.PatientCode = shortcode.New()
		err = r.conn(ctx).QueryRow(ctx, `
			INSERT INTO patients (id, patient_code, first_name, middle_name, last_name, email, phone_number,
				date_of_birth, street_address, barangay, municipal_city)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
			ON CONFLICT (patient_code) DO NOTHING
			RETURNING created_at, updated_at`,
			p.ID, p.PatientCode, p.FirstName, p.MiddleName, p.LastName, p.Email, p.PhoneNumber,
			p.DateOfBirth.Time, p.StreetAddress, p.Barangay, p.MunicipalCity,
		).Scan(&p.CreatedAt, &p.UpdatedAt)
		if !db.IsNoRows(err) {
			return err
		}
	}
	return fmt.Errorf("allocate patient code: %w", err)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE id = $1`, id))
}

func (r *repoPG) GetByCode(ctx context.Context, code string) (*Patient, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx,
		`SELECT `+patientCols+` FROM patients WHERE patient_code = $1`, strings.ToUpper(strings.TrimSpace(code))))
}

func (r *repoPG) Update(ctx context.Context, p *Patient) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE patients SET first_name=$2, middle_name=$3, last_name=$4, email=$5, phone_number=$6,
			date_of_birth=$7, street_address=$8, barangay=$9, municipal_city=$10, updated_at=NOW()
		WHERE id = $1
		RETURNING patient_code, created_at, updated_at`,
		p.ID, p.FirstName, p.MiddleName, p.LastName, p.Email, p.PhoneNumber,
		p.DateOfBirth.Time, p.StreetAddress, p.Barangay, p.MunicipalCity,
	).Scan(&p.PatientCode, &p.CreatedAt, &p.UpdatedAt)
	if db.IsNoRows(err) {
		return ErrNotFound
	}
	return err
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patients`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, `SELECT `+patientCols+` FROM patients
		ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var patients []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		patients = append(patients, p)
	}
	return patients, total, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern builds a lower-cased LIKE pattern that matches q literally
// anywhere in a value.
func containsPattern(q string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(strings.TrimSpace(q))) + "%"
}

func (r *repoPG) Search(ctx context.Context, q string, limit int) ([]*Patient, error) {
	pattern := containsPattern(q)
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+patientCols+` FROM patients p
		WHERE $1 = '%%'
			OR lower(p.first_name) LIKE $1 ESCAPE '\'
			OR lower(p.middle_name) LIKE $1 ESCAPE '\'
			OR lower(p.last_name) LIKE $1 ESCAPE '\'
			OR lower(p.email) LIKE $1 ESCAPE '\'
			OR p.phone_number LIKE $1 ESCAPE '\'
			OR lower(p.patient_code) LIKE $1 ESCAPE '\'
			OR EXISTS (
				SELECT 1 FROM (
					SELECT complaint FROM queue_entries q
					WHERE q.patient_id = p.id ORDER BY q.created_at DESC LIMIT 1
				) latest WHERE lower(latest.complaint) LIKE $1 ESCAPE '\'
			)
		ORDER BY p.last_name, p.first_name
		LIMIT $2`, pattern, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var patients []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		patients = append(patients, p)
	}
	return patients, rows.Err()
}
