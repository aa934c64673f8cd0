package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	RoleAdmin        = "admin"
	RoleDoctor       = "doctor"
	RoleOnCallDoctor = "on-call-doctor"
	RoleSecretary    = "secretary"
)

// Role groups used by route registration.
var (
	MedicalStaff = []string{RoleDoctor, RoleOnCallDoctor, RoleSecretary}
	Doctors      = []string{RoleDoctor, RoleOnCallDoctor}
)

var validRoles = map[string]bool{
	RoleAdmin:        true,
	RoleDoctor:       true,
	RoleOnCallDoctor: true,
	RoleSecretary:    true,
}

func IsValidRole(role string) bool {
	return validRoles[role]
}

// IsDoctorRole reports whether the role carries a doctor profile.
func IsDoctorRole(role string) bool {
	return role == RoleDoctor || role == RoleOnCallDoctor
}

// HasRole reports whether roles satisfies any of the wanted roles. Admin
// satisfies everything.
func HasRole(roles []string, wanted ...string) bool {
	for _, has := range roles {
		if has == RoleAdmin {
			return true
		}
		for _, w := range wanted {
			if has == w {
				return true
			}
		}
	}
	return false
}

// RequireRole returns middleware that checks if the user has at least one of the specified roles.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if HasRole(RolesFromContext(c.Request().Context()), roles...) {
				return next(c)
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}

// NormalizeRoleFilter expands a comma separated ?role= value into the stored
// role names it covers, preserving order without duplicates.
func NormalizeRoleFilter(raw string) []string {
	var out []string
	seen := map[string]bool{}
	add := func(r string) {
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	for _, part := range strings.Split(raw, ",") {
		r := strings.ToLower(strings.TrimSpace(part))
		switch r {
		case "":
		case "doctor":
			add(RoleDoctor)
			add(RoleOnCallDoctor)
			add("on-call")
		case "oncall", "on-call", "on-call-doctor":
			add(RoleOnCallDoctor)
			add("on-call")
		default:
			add(r)
		}
	}
	return out
}
