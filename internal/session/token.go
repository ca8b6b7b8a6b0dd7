package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront-sync/internal/events"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrBadToken     = errors.New("session: malformed access token")
	ErrTokenExpired = errors.New("session: access token expired")
	ErrUnknownRole  = errors.New("session: unsupported role")
)

// Roles as issued by the auth service.
const (
	RoleCustomer = "ROLE_CUSTOMER"
	RoleVendor   = "ROLE_VENDOR"
	RoleAdmin    = "ROLE_ADMIN"
)

type claims struct {
	Sub      string `json:"sub"`
	Role     string `json:"role"`
	VendorID string `json:"vendor_id"`
	jwt.RegisteredClaims
}

// ViewerFromToken derives the viewer identity from an access token. The
// signature is not checked here: the token is verified by the API on every
// call, the session only needs to know whose rooms to join.
func ViewerFromToken(raw string, now time.Time) (events.Viewer, error) {
	raw = stripBearer(raw)
	var c claims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &c); err != nil {
		return events.Viewer{}, fmt.Errorf("%w: %w", ErrBadToken, err)
	}
	if c.ExpiresAt != nil && c.ExpiresAt.Before(now) {
		return events.Viewer{}, ErrTokenExpired
	}
	sub := c.Sub
	if sub == "" {
		sub = c.Subject
	}

	switch strings.ToUpper(c.Role) {
	case RoleCustomer, "ROLE_USER", "CUSTOMER", "USER":
		if sub == "" {
			return events.Viewer{}, fmt.Errorf("%w: no subject", ErrBadToken)
		}
		return events.Viewer{Kind: events.ViewerUser, ID: sub}, nil
	case RoleVendor, "VENDOR":
		id := c.VendorID
		if id == "" {
			id = sub
		}
		if id == "" {
			return events.Viewer{}, fmt.Errorf("%w: no vendor id", ErrBadToken)
		}
		return events.Viewer{Kind: events.ViewerVendor, ID: id}, nil
	case RoleAdmin, "ADMIN":
		return events.Viewer{Kind: events.ViewerAdmin, ID: sub}, nil
	}
	return events.Viewer{}, fmt.Errorf("%w: %q", ErrUnknownRole, c.Role)
}

// stripBearer принимает как голый токен, так и "Bearer <token>" в кавычках
func stripBearer(s string) string {
	s = strings.Trim(strings.TrimSpace(s), "\"'")
	if scheme, rest, ok := strings.Cut(s, " "); ok && strings.EqualFold(scheme, "Bearer") {
		s = strings.TrimSpace(rest)
	}
	return strings.Trim(s, " \"'")
}
