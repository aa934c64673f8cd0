package main

import (
	"context"
	crypto_rand "crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/config"
	"github.com/clinic/clinic/internal/domain/lab"
	"github.com/clinic/clinic/internal/domain/medicine"
	"github.com/clinic/clinic/internal/domain/patient"
	"github.com/clinic/clinic/internal/domain/queue"
	"github.com/clinic/clinic/internal/domain/referral"
	"github.com/clinic/clinic/internal/domain/report"
	"github.com/clinic/clinic/internal/domain/staff"
	"github.com/clinic/clinic/internal/domain/treatment"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/blobstore"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/websocket"
)

// services holds every domain service wired against one pool.
type services struct {
	tokens    *auth.TokenIssuer
	medRepo   medicine.Repository
	staff     *staff.Service
	patients  *patient.Service
	queue     *queue.Service
	medicines *medicine.Service
	treatment *treatment.Service
	referral  *referral.Service
	lab       *lab.Service
	report    *report.Service
}

func newServices(cfg *config.Config, pool *pgxpool.Pool, events websocket.EventPublisher,
	blobs blobstore.BlobStore, logger zerolog.Logger) (*services, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("clinic timezone: %w", err)
	}
	key, generated, err := resolveSigningKey(cfg.JWTSecret)
	if err != nil {
		return nil, err
	}
	if generated {
		logger.Warn().Msg("JWT_SECRET not set, tokens are signed with a random key and expire on restart")
	}
	if blobs == nil {
		blobs = blobstore.NewInMemoryBlobStore()
	}
	tx := db.PoolTxRunner{Pool: pool}

	s := &services{
		tokens:  auth.NewTokenIssuer(key, cfg.JWTIssuer, cfg.AccessTokenTTL, cfg.RefreshTokenTTL),
		medRepo: medicine.NewRepo(pool),
	}
	s.staff = staff.NewService(staff.NewUserRepo(pool), staff.NewDoctorRepo(pool), staff.NewScheduleRepo(pool), s.tokens, tx)
	s.queue = queue.NewService(queue.NewEntryRepo(pool), queue.NewAssessmentRepo(pool), tx, events, loc, logger)
	s.patients = patient.NewService(patient.NewRepo(pool), s.queue, tx)
	s.medicines = medicine.NewService(s.medRepo, loc, logger)
	s.treatment = treatment.NewService(treatment.NewRepo(pool), s.medicines, s.queue, s.patients, tx, logger)
	s.referral = referral.NewService(referral.NewReferralRepo(pool), referral.NewAppointmentRepo(pool), s.staff, s.patients,
		tx, loc, time.Duration(cfg.SlotMinutes)*time.Minute, logger)
	s.lab = lab.NewService(lab.NewRepo(pool), blobs, s.patients, tx, logger)
	s.report = report.NewService(report.NewRepo(pool), report.Sources{
		Patients:   s.patients,
		Queue:      s.queue,
		Treatments: s.treatment,
		Labs:       s.lab,
	}, loc, cfg.ClinicName, logger)
	return s, nil
}

// resolveSigningKey uses secret verbatim, or a hex-encoded random key when
// it is empty. The bool reports whether the key was generated.
func resolveSigningKey(secret string) ([]byte, bool, error) {
	if secret != "" {
		return []byte(secret), false, nil
	}
	raw := make([]byte, 32)
	if _, err := crypto_rand.Read(raw); err != nil {
		return nil, false, fmt.Errorf("generate signing key: %w", err)
	}
	return []byte(hex.EncodeToString(raw)), true, nil
}

// openPool loads the configuration and connects to the database.
func openPool(ctx context.Context) (*config.Config, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	pool, err := db.NewPool(ctx, poolConfig(cfg), newLogger(cfg))
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	return cfg, pool, nil
}

func poolConfig(cfg *config.Config) db.PoolConfig {
	return db.PoolConfig{
		URL:       cfg.DatabaseURL,
		MaxConns:  cfg.DBMaxConns,
		MinConns:  cfg.DBMinConns,
		SlowQuery: cfg.DBSlowQuery,
	}
}
