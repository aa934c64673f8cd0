package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestRequireRole_Allowed(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	ctx := context.WithValue(req.Context(), UserRolesKey, []string{RoleSecretary})
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := RequireRole(MedicalStaff...)(okHandler)(c)
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestRequireRole_Denied(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	ctx := context.WithValue(req.Context(), UserRolesKey, []string{RoleSecretary})
	req = req.WithContext(ctx)
	c := e.NewContext(req, httptest.NewRecorder())

	err := RequireRole(Doctors...)(okHandler)(c)
	if err == nil {
		t.Fatal("expected forbidden error")
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", httpErr.Code)
	}
	if httpErr.Message != "required role: doctor or on-call-doctor" {
		t.Errorf("unexpected message %v", httpErr.Message)
	}
}

func TestRequireRole_AdminPassesEverything(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithUser(req.Context(), "u1", []string{RoleAdmin}))
	c := e.NewContext(req, httptest.NewRecorder())

	if err := RequireRole(RoleSecretary)(okHandler)(c); err != nil {
		t.Errorf("expected admin to pass, got %v", err)
	}
}

func TestRequireRole_NoRoles(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	if err := RequireRole(RoleDoctor)(okHandler)(c); err == nil {
		t.Error("expected error without roles")
	}
}

func TestNormalizeRoleFilter(t *testing.T) {
	tests := []struct {
		raw  string
		want []string
	}{
		{"", nil},
		{"secretary", []string{"secretary"}},
		{"Doctor", []string{"doctor", "on-call-doctor", "on-call"}},
		{"oncall", []string{"on-call-doctor", "on-call"}},
		{"doctor,on-call-doctor", []string{"doctor", "on-call-doctor", "on-call"}},
		{" secretary , doctor", []string{"secretary", "doctor", "on-call-doctor", "on-call"}},
	}
	for _, tt := range tests {
		got := NormalizeRoleFilter(tt.raw)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("NormalizeRoleFilter(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestIsValidRole(t *testing.T) {
	for _, r := range []string{RoleAdmin, RoleDoctor, RoleOnCallDoctor, RoleSecretary} {
		if !IsValidRole(r) {
			t.Errorf("expected %s to be valid", r)
		}
	}
	if IsValidRole("nurse") {
		t.Error("expected nurse to be invalid")
	}
	if !IsDoctorRole(RoleOnCallDoctor) || IsDoctorRole(RoleSecretary) {
		t.Error("IsDoctorRole mismatch")
	}
}
