package medicine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/pkg/dates"
)

const searchLimit = 20

type Service struct {
	repo   Repository
	loc    *time.Location
	now    func() time.Time
	logger zerolog.Logger
}

func NewService(repo Repository, loc *time.Location, logger zerolog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		repo:   repo,
		loc:    loc,
		now:    time.Now,
		logger: logger.With().Str("component", "medicine").Logger(),
	}
}

func (s *Service) Create(ctx context.Context, m *Medicine) error {
	if err := m.Validate(); err != nil {
		return err
	}
	return s.repo.Create(ctx, m)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Medicine, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) Update(ctx context.Context, m *Medicine) error {
	if err := m.Validate(); err != nil {
		return err
	}
	return s.repo.Update(ctx, m)
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

func (s *Service) List(ctx context.Context, q string, limit, offset int) ([]*Medicine, int, error) {
	return s.repo.List(ctx, q, limit, offset)
}

// Search returns compact matches for q. A blank query returns nothing.
func (s *Service) Search(ctx context.Context, q string) ([]SearchHit, error) {
	hits := []SearchHit{}
	if strings.TrimSpace(q) == "" {
		return hits, nil
	}
	items, err := s.repo.Search(ctx, q, searchLimit)
	if err != nil {
		return nil, err
	}
	for _, m := range items {
		hits = append(hits, SearchHit{ID: m.ID, Name: m.Name, Stocks: m.Stocks, Strength: m.Strength})
	}
	return hits, nil
}

// Resolve finds a medicine by id, falling back to a case-insensitive name
// match, and refuses expired stock.
func (s *Service) Resolve(ctx context.Context, ref string) (*Medicine, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, ErrNotFound
	}
	var m *Medicine
	var err error
	if id, parseErr := uuid.Parse(ref); parseErr == nil {
		m, err = s.repo.GetByID(ctx, id)
	} else {
		m, err = s.repo.GetByName(ctx, ref)
	}
	if err != nil {
		return nil, err
	}
	if m.ExpiredOn(dates.Today(s.now(), s.loc)) {
		return m, ErrExpired
	}
	return m, nil
}

// AdjustStock changes the stock level by delta, refusing to go below zero.
func (s *Service) AdjustStock(ctx context.Context, id uuid.UUID, delta int) (int, error) {
	return s.repo.AdjustStock(ctx, id, delta)
}

// Import upserts every valid catalogue row by name. Row failures are
// reported in the result and do not stop the import.
func (s *Service) Import(ctx context.Context, r io.Reader, format string) (*ImportResult, error) {
	rows, err := ReadRows(r, format)
	if err != nil {
		return nil, err
	}
	parsed, skipped, err := ParseCatalogue(rows)
	if err != nil {
		return nil, err
	}

	res := &ImportResult{Skipped: skipped, Errors: []string{}}
	for _, row := range parsed {
		if row.Err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("row %d: %v", row.Line, row.Err))
			continue
		}
		created, err := s.repo.UpsertByName(ctx, row.Medicine)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			res.Errors = append(res.Errors, fmt.Sprintf("row %d: %v", row.Line, err))
			continue
		}
		if created {
			res.Created++
		} else {
			res.Updated++
		}
	}

	s.logger.Info().
		Int("created", res.Created).
		Int("updated", res.Updated).
		Int("skipped", res.Skipped).
		Int("errors", len(res.Errors)).
		Msg("medicine catalogue imported")
	return res, nil
}
