package medicine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/pkg/dates"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const medicineCols = `id, name, category, dosage_form, strength, manufacturer, indication, classification,
	stocks, expiration_date, created_at, updated_at`

func scanMedicine(row pgx.Row) (*Medicine, error) {
	var m Medicine
	var exp *time.Time
	err := row.Scan(&m.ID, &m.Name, &m.Category, &m.DosageForm, &m.Strength, &m.Manufacturer, &m.Indication,
		&m.Classification, &m.Stocks, &exp, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if exp != nil {
		m.ExpirationDate = &dates.Date{Time: *exp}
	}
	return &m, nil
}

func expirationArg(m *Medicine) *time.Time {
	if m.ExpirationDate == nil || m.ExpirationDate.IsZero() {
		return nil
	}
	t := m.ExpirationDate.Time
	return &t
}

func (r *repoPG) Create(ctx context.Context, m *Medicine) error {
	m.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO medicines (id, name, category, dosage_form, strength, manufacturer, indication,
			classification, stocks, expiration_date)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at, updated_at`,
		m.ID, m.Name, m.Category, m.DosageForm, m.Strength, m.Manufacturer, m.Indication,
		m.Classification, m.Stocks, expirationArg(m),
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return ErrDuplicateName
	}
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Medicine, error) {
	return scanMedicine(r.conn(ctx).QueryRow(ctx, `SELECT `+medicineCols+` FROM medicines WHERE id = $1`, id))
}

func (r *repoPG) GetByName(ctx context.Context, name string) (*Medicine, error) {
	return scanMedicine(r.conn(ctx).QueryRow(ctx,
		`SELECT `+medicineCols+` FROM medicines WHERE lower(name) = lower($1)`, strings.TrimSpace(name)))
}

func (r *repoPG) Update(ctx context.Context, m *Medicine) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE medicines SET name=$2, category=$3, dosage_form=$4, strength=$5, manufacturer=$6,
			indication=$7, classification=$8, stocks=$9, expiration_date=$10, updated_at=NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		m.ID, m.Name, m.Category, m.DosageForm, m.Strength, m.Manufacturer, m.Indication,
		m.Classification, m.Stocks, expirationArg(m),
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	if db.IsNoRows(err) {
		return ErrNotFound
	}
	if db.IsUniqueViolation(err) {
		return ErrDuplicateName
	}
	return err
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM medicines WHERE id = $1`, id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return fmt.Errorf("medicine is referenced by prescriptions")
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, q string, limit, offset int) ([]*Medicine, int, error) {
	where := ""
	args := []interface{}{}
	idx := 1
	if q = strings.TrimSpace(q); q != "" {
		where = fmt.Sprintf(` WHERE lower(name) LIKE $%d OR lower(category) LIKE $%d`, idx, idx)
		args = append(args, "%"+strings.ToLower(q)+"%")
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM medicines`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + medicineCols + ` FROM medicines` + where +
		fmt.Sprintf(` ORDER BY name LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Medicine
	for rows.Next() {
		m, err := scanMedicine(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, m)
	}
	return items, total, rows.Err()
}

func (r *repoPG) Search(ctx context.Context, q string, limit int) ([]*Medicine, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+medicineCols+` FROM medicines
		WHERE lower(name) LIKE $1 ORDER BY name LIMIT $2`, "%"+strings.ToLower(strings.TrimSpace(q))+"%", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Medicine
	for rows.Next() {
		m, err := scanMedicine(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

func (r *repoPG) AdjustStock(ctx context.Context, id uuid.UUID, delta int) (int, error) {
	var stocks int
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE medicines SET stocks = stocks + $2, updated_at = NOW()
		WHERE id = $1 AND stocks + $2 >= 0
		RETURNING stocks`, id, delta).Scan(&stocks)
	if db.IsNoRows(err) {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return 0, getErr
		}
		return 0, ErrInsufficientStock
	}
	return stocks, err
}

func (r *repoPG) UpsertByName(ctx context.Context, m *Medicine) (bool, error) {
	var inserted bool
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO medicines (id, name, category, dosage_form, strength, manufacturer, indication,
			classification, stocks, expiration_date)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT ((lower(name))) DO UPDATE SET
			category = EXCLUDED.category,
			dosage_form = EXCLUDED.dosage_form,
			strength = EXCLUDED.strength,
			manufacturer = EXCLUDED.manufacturer,
			indication = EXCLUDED.indication,
			classification = EXCLUDED.classification,
			stocks = EXCLUDED.stocks,
			expiration_date = EXCLUDED.expiration_date,
			updated_at = NOW()
		RETURNING id, created_at, updated_at, (xmax = 0)`,
		uuid.New(), m.Name, m.Category, m.DosageForm, m.Strength, m.Manufacturer, m.Indication,
		m.Classification, m.Stocks, expirationArg(m),
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt, &inserted)
	return inserted, err
}
