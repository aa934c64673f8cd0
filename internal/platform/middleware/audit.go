package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/auth"
)

// AuditEntry records who touched which patient-scoped resource.
type AuditEntry struct {
	UserID     string
	UserRoles  []string
	Resource   string
	PatientID  string
	Action     string // read, create, update, delete
	IPAddress  string
	UserAgent  string
	Path       string
	Method     string
	Timestamp  time.Time
	RequestID  string
	StatusCode int
}

// AuditRecorder persists audit entries.
type AuditRecorder interface {
	RecordAccess(ctx context.Context, entry AuditEntry) error
}

// AuditRecorderFunc is a function adapter for AuditRecorder.
type AuditRecorderFunc func(ctx context.Context, entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(ctx context.Context, entry AuditEntry) error {
	return f(ctx, entry)
}

// PGAuditRecorder writes entries to the audit_log table.
type PGAuditRecorder struct {
	pool *pgxpool.Pool
}

func NewPGAuditRecorder(pool *pgxpool.Pool) *PGAuditRecorder {
	return &PGAuditRecorder{pool: pool}
}

func (r *PGAuditRecorder) RecordAccess(ctx context.Context, e AuditEntry) error {
	var patientID *uuid.UUID
	if id, err := uuid.Parse(e.PatientID); err == nil {
		patientID = &id
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO audit_log (user_id, user_roles, resource, patient_id, action, method, path,
			status_code, ip_address, user_agent, request_id, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		e.UserID, e.UserRoles, e.Resource, patientID, e.Action, e.Method, e.Path,
		e.StatusCode, e.IPAddress, e.UserAgent, e.RequestID, e.Timestamp)
	return err
}

// patientScoped lists the /api/v1 resources whose routes carry a patient id.
var patientScoped = map[string]bool{
	"patients":      true,
	"treatments":    true,
	"queue":         true,
	"lab":           true,
	"prescriptions": true,
	"reports":       true,
	"referrals":     true,
	"appointments":  true,
}

// Audit logs every request to a patient-scoped /api/v1 resource and hands
// the entry to the first recorder, if any. Recorder failures are logged but
// never fail the request.
func Audit(logger zerolog.Logger, recorders ...AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			path := req.URL.Path

			resource := extractResource(path)
			if !patientScoped[resource] {
				return next(c)
			}

			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}

			ctx := req.Context()
			entry := AuditEntry{
				UserID:     auth.UserIDFromContext(ctx),
				UserRoles:  auth.RolesFromContext(ctx),
				Resource:   resource,
				PatientID:  extractPatientID(c),
				Action:     httpMethodToAction(req.Method),
				IPAddress:  c.RealIP(),
				UserAgent:  req.UserAgent(),
				Path:       path,
				Method:     req.Method,
				Timestamp:  time.Now().UTC(),
				StatusCode: status,
			}
			entry.RequestID, _ = c.Get("request_id").(string)

			if len(recorders) > 0 && recorders[0] != nil {
				if recErr := recorders[0].RecordAccess(ctx, entry); recErr != nil {
					logger.Error().Err(recErr).
						Str("request_id", entry.RequestID).
						Msg("failed to record audit entry")
				}
			}

			logger.Info().
				Str("type", "audit").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Strs("user_roles", entry.UserRoles).
				Str("resource", entry.Resource).
				Str("patient_id", entry.PatientID).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Int("status", entry.StatusCode).
				Msg("patient_access")

			return err
		}
	}
}

func httpMethodToAction(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

// extractResource returns the first path segment below /api/v1/.
func extractResource(path string) string {
	if !strings.HasPrefix(path, "/api/v1/") {
		return ""
	}
	seg := strings.SplitN(strings.TrimPrefix(path, "/api/v1/"), "/", 2)
	return seg[0]
}

// extractPatientID looks for a patient id in the route params, the
// /api/v1/patients/<id> path, and the ?patient= query.
func extractPatientID(c echo.Context) string {
	if id := c.Param("patient_id"); isUUIDLike(id) {
		return id
	}

	path := c.Request().URL.Path
	if strings.HasPrefix(path, "/api/v1/patients/") {
		seg := strings.SplitN(strings.TrimPrefix(path, "/api/v1/patients/"), "/", 2)
		if isUUIDLike(seg[0]) {
			return seg[0]
		}
	}
	if strings.HasPrefix(path, "/api/v1/reports/patient/") {
		seg := strings.SplitN(strings.TrimPrefix(path, "/api/v1/reports/patient/"), "/", 2)
		if isUUIDLike(seg[0]) {
			return seg[0]
		}
	}

	if p := c.QueryParam("patient"); isUUIDLike(p) {
		return p
	}
	return ""
}

func isUUIDLike(s string) bool {
	if s == "" {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}
