package lab

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/db"
)

type labRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &labRepoPG{pool: pool}
}

func (r *labRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const requestSelect = `
	SELECT lr.id, lr.patient_id, p.first_name || ' ' || p.last_name, lr.test_name, lr.custom_test, lr.status,
		lr.requested_by, COALESCE(u.first_name || ' ' || u.last_name, ''), lr.created_at, lr.updated_at,
		res.id, res.blob_id, res.file_name, res.content_type, res.submitted_by, res.uploaded_at,
		su.first_name, su.last_name, su.role
	FROM lab_requests lr
	JOIN patients p ON p.id = lr.patient_id
	LEFT JOIN users u ON u.id = lr.requested_by
	LEFT JOIN lab_results res ON res.lab_request_id = lr.id
	LEFT JOIN users su ON su.id = res.submitted_by`

func scanRequest(row pgx.Row) (*Request, error) {
	var req Request
	var (
		resID                         *uuid.UUID
		blobID, fileName, contentType *string
		submittedBy                   *uuid.UUID
		uploadedAt                    *time.Time
		subFirst, subLast, subRole    *string
	)
	err := row.Scan(&req.ID, &req.PatientID, &req.PatientName, &req.TestName, &req.CustomTest, &req.Status,
		&req.RequestedBy, &req.RequestedByName, &req.CreatedAt, &req.UpdatedAt,
		&resID, &blobID, &fileName, &contentType, &submittedBy, &uploadedAt,
		&subFirst, &subLast, &subRole)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	if resID != nil {
		req.Result = &Result{
			ID:           *resID,
			LabRequestID: req.ID,
			PatientID:    req.PatientID,
			TestName:     req.DisplayName(),
			BlobID:       deref(blobID),
			FileName:     deref(fileName),
			ContentType:  deref(contentType),
			SubmittedBy:  submittedBy,
		}
		if uploadedAt != nil {
			req.Result.UploadedAt = *uploadedAt
		}
		if subFirst != nil {
			req.Result.Submitter = &Submitter{FirstName: *subFirst, LastName: deref(subLast), Role: deref(subRole)}
		}
	}
	return &req, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (r *labRepoPG) CreateRequest(ctx context.Context, req *Request) error {
	req.ID = uuid.New()
	if req.Status == "" {
		req.Status = StatusPending
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO lab_requests (id, patient_id, test_name, custom_test, status, requested_by)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at, updated_at`,
		req.ID, req.PatientID, req.TestName, req.CustomTest, req.Status, req.RequestedBy,
	).Scan(&req.CreatedAt, &req.UpdatedAt)
}

func (r *labRepoPG) GetRequest(ctx context.Context, id uuid.UUID) (*Request, error) {
	return scanRequest(r.conn(ctx).QueryRow(ctx, requestSelect+` WHERE lr.id = $1`, id))
}

func (r *labRepoPG) ListRequests(ctx context.Context, status string) ([]*Request, error) {
	q := requestSelect
	var args []interface{}
	if status != "" {
		q += ` WHERE lr.status = $1`
		args = append(args, status)
	}
	q += ` ORDER BY lr.created_at DESC`

	rows, err := r.conn(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, req)
	}
	return items, rows.Err()
}

func (r *labRepoPG) SetRequestStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE lab_requests SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRequestNotFound
	}
	return nil
}

func (r *labRepoPG) CreateResult(ctx context.Context, res *Result) error {
	res.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO lab_results (id, lab_request_id, patient_id, blob_id, file_name, content_type, submitted_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING uploaded_at`,
		res.ID, res.LabRequestID, res.PatientID, res.BlobID, res.FileName, res.ContentType, res.SubmittedBy,
	).Scan(&res.UploadedAt)
	if db.IsUniqueViolation(err) {
		return ErrAlreadyCompleted
	}
	return err
}

const resultSelect = `
	SELECT res.id, res.lab_request_id, res.patient_id,
		CASE WHEN lr.test_name = 'Other' AND lr.custom_test <> '' THEN lr.custom_test ELSE lr.test_name END,
		res.blob_id, res.file_name, res.content_type, res.submitted_by, res.uploaded_at,
		su.first_name, su.last_name, su.role
	FROM lab_results res
	JOIN lab_requests lr ON lr.id = res.lab_request_id
	LEFT JOIN users su ON su.id = res.submitted_by`

func scanResult(row pgx.Row) (*Result, error) {
	var res Result
	var subFirst, subLast, subRole *string
	err := row.Scan(&res.ID, &res.LabRequestID, &res.PatientID, &res.TestName,
		&res.BlobID, &res.FileName, &res.ContentType, &res.SubmittedBy, &res.UploadedAt,
		&subFirst, &subLast, &subRole)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrResultNotFound
		}
		return nil, err
	}
	if subFirst != nil {
		res.Submitter = &Submitter{FirstName: *subFirst, LastName: deref(subLast), Role: deref(subRole)}
	}
	return &res, nil
}

func (r *labRepoPG) GetResult(ctx context.Context, id uuid.UUID) (*Result, error) {
	return scanResult(r.conn(ctx).QueryRow(ctx, resultSelect+` WHERE res.id = $1`, id))
}

func (r *labRepoPG) ListResults(ctx context.Context, patientID uuid.UUID) ([]*Result, error) {
	rows, err := r.conn(ctx).Query(ctx, resultSelect+` WHERE res.patient_id = $1 ORDER BY res.uploaded_at DESC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Result
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, res)
	}
	return items, rows.Err()
}
