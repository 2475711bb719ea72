package handlers

import (
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/courtline/internal/auth"
	"github.com/md-rashed-zaman/courtline/internal/reservation"
)

// resolveIdentity extracts the caller's identity from the Bearer token.
// An absent or invalid token yields an unresolved identity; handlers
// decide whether that is a 401 (the read surface requires no auth).
func resolveIdentity(r *http.Request, secret string) reservation.Identity {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return reservation.Identity{}
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return reservation.Identity{}
	}
	claims, err := auth.ParseAndVerifyHS256(token, secret)
	if err != nil {
		return reservation.Identity{}
	}
	return reservation.Identity{
		UserID:      claims.Sub,
		PhoneNumber: claims.PhoneNumber,
	}
}
