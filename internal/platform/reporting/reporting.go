// Package reporting exposes a fixed catalogue of SQL measures over the
// clinic schema. Measures take named parameters from the query string.
package reporting

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/db"
)

// ParameterKind controls how a query string value is parsed.
type ParameterKind string

const (
	KindDate ParameterKind = "date"
	KindInt  ParameterKind = "int"
)

// Parameter is a named SQL argument with its default.
type Parameter struct {
	Name    string        `json:"name"`
	Kind    ParameterKind `json:"kind"`
	Default string        `json:"default"`
}

// MeasureDefinition defines a reporting measure with its SQL query.
type MeasureDefinition struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	SQL         string      `json:"sql"`
	Parameters  []Parameter `json:"parameters"`
}

// MeasureReport holds the results of evaluating a measure.
type MeasureReport struct {
	MeasureID   string                   `json:"measure_id"`
	MeasureName string                   `json:"measure_name"`
	GeneratedAt time.Time                `json:"generated_at"`
	Results     []map[string]interface{} `json:"results"`
	Parameters  map[string]string        `json:"parameters,omitempty"`
}

var dateRange = []Parameter{
	{Name: "start", Kind: KindDate, Default: "1900-01-01"},
	{Name: "end", Kind: KindDate, Default: "2999-12-31"},
}

// PredefinedMeasures is the list of available reporting measures.
var PredefinedMeasures = []MeasureDefinition{
	{
		ID:          "patient-count",
		Name:        "Patient Count",
		Description: "Registered patients and how many visited in the range",
		SQL: `SELECT COUNT(*) AS total,
			COUNT(*) FILTER (WHERE EXISTS (
				SELECT 1 FROM queue_entries q WHERE q.patient_id = p.id AND q.queue_date BETWEEN @start::date AND @end::date
			)) AS visited
			FROM patients p`,
		Parameters: dateRange,
	},
	{
		ID:          "visits-by-status",
		Name:        "Visits by Status",
		Description: "Queue entries grouped by status",
		SQL: `SELECT status, COUNT(*) AS total FROM queue_entries
			WHERE queue_date BETWEEN @start::date AND @end::date
			GROUP BY status ORDER BY total DESC`,
		Parameters: dateRange,
	},
	{
		ID:          "visits-by-priority",
		Name:        "Visits by Priority",
		Description: "Queue entries grouped by priority level",
		SQL: `SELECT priority_level, COUNT(*) AS total FROM queue_entries
			WHERE queue_date BETWEEN @start::date AND @end::date
			GROUP BY priority_level ORDER BY total DESC`,
		Parameters: dateRange,
	},
	{
		ID:          "prescriptions-by-medicine",
		Name:        "Prescriptions by Medicine",
		Description: "Prescription count and dispensed quantity per medicine",
		SQL: `SELECT m.name AS medicine, COUNT(*) AS prescriptions,
			COALESCE(SUM(pr.quantity) FILTER (WHERE pr.status = 'dispensed'), 0) AS dispensed_quantity
			FROM prescriptions pr JOIN medicines m ON m.id = pr.medicine_id
			WHERE pr.created_at::date BETWEEN @start::date AND @end::date
			GROUP BY m.name ORDER BY prescriptions DESC`,
		Parameters: dateRange,
	},
	{
		ID:          "lab-requests-by-status",
		Name:        "Lab Requests by Status",
		Description: "Lab requests grouped by test and status",
		SQL: `SELECT test_name, status, COUNT(*) AS total FROM lab_requests
			WHERE created_at::date BETWEEN @start::date AND @end::date
			GROUP BY test_name, status ORDER BY total DESC`,
		Parameters: dateRange,
	},
	{
		ID:          "low-stock-medicines",
		Name:        "Low Stock Medicines",
		Description: "Medicines at or below the stock threshold",
		SQL: `SELECT name, strength, stocks, expiration_date FROM medicines
			WHERE stocks <= @threshold ORDER BY stocks, name`,
		Parameters: []Parameter{{Name: "threshold", Kind: KindInt, Default: "10"}},
	},
}

// FindMeasure looks up a measure by ID.
func FindMeasure(id string) *MeasureDefinition {
	for i := range PredefinedMeasures {
		if PredefinedMeasures[i].ID == id {
			return &PredefinedMeasures[i]
		}
	}
	return nil
}

// BindParameters validates values against the measure's parameters and
// returns the named arguments along with the effective values.
func BindParameters(m *MeasureDefinition, values map[string]string) (pgx.NamedArgs, map[string]string, error) {
	args := pgx.NamedArgs{}
	effective := map[string]string{}
	for _, p := range m.Parameters {
		v := values[p.Name]
		if v == "" {
			v = p.Default
		}
		switch p.Kind {
		case KindDate:
			if _, err := time.Parse("2006-01-02", v); err != nil {
				return nil, nil, fmt.Errorf("%s must be a date in YYYY-MM-DD format", p.Name)
			}
			args[p.Name] = v
		case KindInt:
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, nil, fmt.Errorf("%s must be an integer", p.Name)
			}
			args[p.Name] = n
		}
		effective[p.Name] = v
	}
	return args, effective, nil
}

// Handler provides HTTP handlers for the measures API.
type Handler struct {
	conn db.Querier
}

func NewHandler(conn db.Querier) *Handler {
	return &Handler{conn: conn}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/reports/measures", auth.RequireRole(auth.RoleAdmin))
	g.GET("", h.ListMeasures)
	g.GET("/:id/evaluate", h.EvaluateMeasure)
}

func (h *Handler) ListMeasures(c echo.Context) error {
	return c.JSON(http.StatusOK, PredefinedMeasures)
}

// EvaluateMeasure executes a measure's SQL and returns the rows.
func (h *Handler) EvaluateMeasure(c echo.Context) error {
	measure := FindMeasure(c.Param("id"))
	if measure == nil {
		return echo.NewHTTPError(http.StatusNotFound, "measure not found")
	}

	values := map[string]string{}
	for _, p := range measure.Parameters {
		values[p.Name] = c.QueryParam(p.Name)
	}
	args, effective, err := BindParameters(measure, values)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	results, err := h.executeSQL(c.Request().Context(), measure.SQL, args)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("query failed: %v", err))
	}

	return c.JSON(http.StatusOK, MeasureReport{
		MeasureID:   measure.ID,
		MeasureName: measure.Name,
		GeneratedAt: time.Now().UTC(),
		Results:     results,
		Parameters:  effective,
	})
}

// executeSQL runs a SQL query and returns results as a slice of maps.
func (h *Handler) executeSQL(ctx context.Context, sql string, args pgx.NamedArgs) ([]map[string]interface{}, error) {
	rows, err := h.conn.Query(ctx, sql, args)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	results := []map[string]interface{}{}

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}

		row := make(map[string]interface{}, len(fieldDescs))
		for i, fd := range fieldDescs {
			row[fd.Name] = values[i]
		}
		results = append(results, row)
	}

	return results, rows.Err()
}
