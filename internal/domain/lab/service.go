package lab

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/domain/patient"
	"github.com/clinic/clinic/internal/platform/blobstore"
	"github.com/clinic/clinic/internal/platform/db"
)

// DownloadPath is the route a result's image_url points at.
const DownloadPath = "/api/v1/lab/results/%s/download"

type Patients interface {
	Get(ctx context.Context, id uuid.UUID) (*patient.View, error)
}

type Service struct {
	repo     Repository
	blobs    blobstore.BlobStore
	patients Patients
	tx       db.TxRunner
	logger   zerolog.Logger
}

func NewService(repo Repository, blobs blobstore.BlobStore, patients Patients, tx db.TxRunner, logger zerolog.Logger) *Service {
	if tx == nil {
		tx = db.NoTx{}
	}
	return &Service{
		repo:     repo,
		blobs:    blobs,
		patients: patients,
		tx:       tx,
		logger:   logger.With().Str("component", "lab").Logger(),
	}
}

func (s *Service) CreateRequest(ctx context.Context, req *Request, requestedBy uuid.UUID) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if _, err := s.patients.Get(ctx, req.PatientID); err != nil {
		return err
	}
	req.Status = StatusPending
	if requestedBy != uuid.Nil {
		req.RequestedBy = &requestedBy
	}
	if err := s.repo.CreateRequest(ctx, req); err != nil {
		return err
	}
	s.logger.Info().Str("lab_request_id", req.ID.String()).Str("test", req.DisplayName()).Msg("lab request created")
	return nil
}

func (s *Service) ListRequests(ctx context.Context, status string) ([]*Request, error) {
	status, err := NormalizeStatus(status)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.ListRequests(ctx, status)
	if err != nil {
		return nil, err
	}
	for _, r := range items {
		withURL(r.Result)
	}
	return items, nil
}

// Upload is a lab result file as received from the client.
type Upload struct {
	FileName    string
	ContentType string
	Content     io.Reader
}

// UploadResult stores the file and completes the request. The blob is
// removed again when the database side fails.
func (s *Service) UploadResult(ctx context.Context, requestID uuid.UUID, f Upload, submittedBy uuid.UUID) (*Result, error) {
	req, err := s.repo.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status == StatusCompleted || req.Result != nil {
		return nil, ErrAlreadyCompleted
	}

	meta, err := s.blobs.Upload(ctx, blobstore.BlobMetadata{
		FileName:    f.FileName,
		ContentType: f.ContentType,
		PatientID:   req.PatientID.String(),
		CreatedBy:   submittedBy.String(),
	}, f.Content)
	if err != nil {
		return nil, err
	}

	res := &Result{
		LabRequestID: req.ID,
		PatientID:    req.PatientID,
		TestName:     req.DisplayName(),
		BlobID:       meta.ID,
		FileName:     meta.FileName,
		ContentType:  meta.ContentType,
	}
	if submittedBy != uuid.Nil {
		res.SubmittedBy = &submittedBy
	}

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.CreateResult(ctx, res); err != nil {
			return err
		}
		return s.repo.SetRequestStatus(ctx, req.ID, StatusCompleted)
	})
	if err != nil {
		if derr := s.blobs.Delete(ctx, meta.ID); derr != nil && !errors.Is(derr, blobstore.ErrBlobNotFound) {
			s.logger.Warn().Err(derr).Str("blob_id", meta.ID).Msg("orphaned lab result blob")
		}
		return nil, err
	}

	withURL(res)
	s.logger.Info().
		Str("lab_request_id", req.ID.String()).
		Str("content_type", res.ContentType).
		Int64("size", meta.Size).
		Msg("lab result uploaded")
	return res, nil
}

func (s *Service) ListResults(ctx context.Context, patientID uuid.UUID) ([]*Result, error) {
	if _, err := s.patients.Get(ctx, patientID); err != nil {
		return nil, err
	}
	items, err := s.repo.ListResults(ctx, patientID)
	if err != nil {
		return nil, err
	}
	for _, r := range items {
		withURL(r)
	}
	return items, nil
}

// Download opens the stored file of a result. The caller closes the reader.
func (s *Service) Download(ctx context.Context, resultID uuid.UUID) (io.ReadCloser, *Result, error) {
	res, err := s.repo.GetResult(ctx, resultID)
	if err != nil {
		return nil, nil, err
	}
	rc, _, err := s.blobs.Download(ctx, res.BlobID)
	if err != nil {
		if errors.Is(err, blobstore.ErrBlobNotFound) {
			return nil, nil, fmt.Errorf("%w: file missing", ErrResultNotFound)
		}
		return nil, nil, err
	}
	return rc, res, nil
}

func withURL(r *Result) {
	if r != nil {
		r.ImageURL = fmt.Sprintf(DownloadPath, r.ID)
	}
}
