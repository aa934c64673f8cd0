package staff

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/pkg/pagination"
)

func newTestHandler() (*Handler, *echo.Echo) {
	svc := newTestService()
	h := NewHandler(svc)
	e := echo.New()
	return h, e
}

func asUser(req *http.Request, id uuid.UUID, role string) *http.Request {
	return req.WithContext(auth.WithUser(req.Context(), id.String(), []string{role}))
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func TestHandler_Login(t *testing.T) {
	h, e := newTestHandler()
	mustRegister(t, h.svc, "login@clinic.test", auth.RoleSecretary)

	req := jsonRequest(http.MethodPost, "/auth/jwt/create", `{"email":"login@clinic.test","password":"password123"}`)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Login(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var pair auth.TokenPair
	json.Unmarshal(rec.Body.Bytes(), &pair)
	if pair.Access == "" || pair.Refresh == "" {
		t.Error("expected access and refresh tokens")
	}
}

func TestHandler_Login_Invalid(t *testing.T) {
	h, e := newTestHandler()

	req := jsonRequest(http.MethodPost, "/auth/jwt/create", `{"email":"x@clinic.test","password":"nope"}`)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Login(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
	var body map[string]string
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["detail"] != ErrInvalidCredentials.Error() {
		t.Errorf("unexpected body %v", body)
	}
}

func TestHandler_RefreshAndVerify(t *testing.T) {
	h, e := newTestHandler()
	mustRegister(t, h.svc, "rv@clinic.test", auth.RoleSecretary)
	pair, _ := h.svc.Authenticate(context.Background(), "rv@clinic.test", "password123")

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/auth/jwt/refresh", `{"refresh":"`+pair.Refresh+`"}`), rec)
	if err := h.RefreshToken(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	json.Unmarshal(rec.Body.Bytes(), &body)

	rec = httptest.NewRecorder()
	c = e.NewContext(jsonRequest(http.MethodPost, "/auth/jwt/verify", `{"token":"`+body["access"]+`"}`), rec)
	h.VerifyToken(c)
	if rec.Code != http.StatusOK {
		t.Errorf("expected verify 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	c = e.NewContext(jsonRequest(http.MethodPost, "/auth/jwt/verify", `{"token":"garbage"}`), rec)
	h.VerifyToken(c)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected verify 401, got %d", rec.Code)
	}
}

func TestHandler_RegisterUser(t *testing.T) {
	h, e := newTestHandler()

	body := `{"first_name":"Ana","last_name":"Cruz","email":"ana@clinic.test","password":"password123","role":"doctor","specialization":"Pediatrics"}`
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/api/v1/users", body), rec)

	if err := h.RegisterUser(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Error("password hash must not be serialised")
	}
	var u User
	json.Unmarshal(rec.Body.Bytes(), &u)
	if u.Specialization == nil || *u.Specialization != "Pediatrics" {
		t.Errorf("expected specialization, got %+v", u)
	}
}

func TestHandler_RegisterUser_BadRequest(t *testing.T) {
	h, e := newTestHandler()

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/api/v1/users", `{"email":"x@clinic.test","role":"doctor"}`), rec)

	err := h.RegisterUser(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_ListUsers_ExcludesCaller(t *testing.T) {
	h, e := newTestHandler()
	me := mustRegister(t, h.svc, "admin@clinic.test", auth.RoleAdmin)
	mustRegister(t, h.svc, "d@clinic.test", auth.RoleDoctor)

	req := asUser(httptest.NewRequest(http.MethodGet, "/api/v1/users?role=doctor", nil), me.ID, auth.RoleAdmin)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.ListUsers(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp pagination.Page[User]
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Total != 1 {
		t.Errorf("expected 1 user, got %d", resp.Total)
	}
}

func TestHandler_GetUser_NotFound(t *testing.T) {
	h, e := newTestHandler()

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())

	err := h.GetUser(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
}

func TestHandler_GetUser_InvalidID(t *testing.T) {
	h, e := newTestHandler()

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")

	err := h.GetUser(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_ArchiveAndRestore(t *testing.T) {
	h, e := newTestHandler()
	u := mustRegister(t, h.svc, "arc@clinic.test", auth.RoleSecretary)

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodDelete, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(u.ID.String())
	if err := h.ArchiveUser(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodPatch, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(u.ID.String())
	if err := h.RestoreUser(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body map[string]string
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["status"] != "restored" || body["user_id"] != u.ID.String() {
		t.Errorf("unexpected body %v", body)
	}
}

func TestHandler_Whoami(t *testing.T) {
	h, e := newTestHandler()
	u := mustRegister(t, h.svc, "who@clinic.test", auth.RoleDoctor)

	req := asUser(httptest.NewRequest(http.MethodGet, "/api/v1/users/whoami", nil), u.ID, auth.RoleDoctor)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Whoami(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["email"] != "who@clinic.test" || body["role"] != auth.RoleDoctor {
		t.Errorf("unexpected body %v", body)
	}
	if len(body) != 3 {
		t.Errorf("whoami returns id, email and role only, got %v", body)
	}
}

func TestHandler_UpdateMe(t *testing.T) {
	h, e := newTestHandler()
	u := mustRegister(t, h.svc, "me@clinic.test", auth.RoleDoctor)

	req := asUser(jsonRequest(http.MethodPatch, "/api/v1/users/me", `{"specialization":"Cardiology","role":"admin"}`), u.ID, auth.RoleDoctor)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.UpdateMe(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var p Profile
	json.Unmarshal(rec.Body.Bytes(), &p)
	if p.Specialization == nil || *p.Specialization != "Cardiology" {
		t.Errorf("expected specialization updated, got %+v", p)
	}
	if p.Role != auth.RoleDoctor {
		t.Errorf("role must not change through update-me, got %s", p.Role)
	}
}

func TestHandler_CreateSchedule(t *testing.T) {
	h, e := newTestHandler()
	doc := mustRegister(t, h.svc, "s@clinic.test", auth.RoleDoctor)

	req := asUser(jsonRequest(http.MethodPost, "/", `{"day_of_week":"Tuesday","start_time":"08:00","end_time":"11:00"}`), doc.ID, auth.RoleDoctor)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(doc.ID.String())

	if err := h.CreateSchedule(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
}

func TestHandler_CreateSchedule_Forbidden(t *testing.T) {
	h, e := newTestHandler()
	doc := mustRegister(t, h.svc, "s@clinic.test", auth.RoleDoctor)

	req := asUser(jsonRequest(http.MethodPost, "/", `{"day_of_week":"Tuesday","start_time":"08:00","end_time":"11:00"}`), uuid.New(), auth.RoleDoctor)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(doc.ID.String())

	err := h.CreateSchedule(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %v", err)
	}
}

func TestHandler_RoutesRequireAdmin(t *testing.T) {
	h, e := newTestHandler()
	api := e.Group("/api/v1", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := auth.WithUser(c.Request().Context(), uuid.NewString(), []string{auth.RoleSecretary})
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	})
	h.RegisterRoutes(api)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/users", nil))
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for secretary on user admin, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/users/secretaries", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for secretaries listing, got %d", rec.Code)
	}
}
