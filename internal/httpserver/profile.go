// internal/httpserver/profile.go
//
// Anonymous player profiles.
// Responsibilities:
//   - Resolve the profile id from a bearer token or the profile cookie.
//   - Issue a fresh random profile in a signed HS256 cookie otherwise.
//   - Expose the id to handlers through the request context.

package httpserver

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ctxProfileKey is the context key type for the profile id.
type ctxProfileKey struct{}

// withProfile resolves the caller's profile from a bearer token or the profile
// cookie, issuing a fresh profile when neither carries a valid one.
func (s *Server) withProfile(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := s.parseProfile(s.bearerOrCookie(r))
		if !ok {
			id = uuid.NewString()
			tok, exp, err := s.signProfile(id)
			if err != nil {
				log.Error().Err(err).Msg("sign profile")
				writeError(w, http.StatusInternalServerError, "sign_failed")
				return
			}
			s.setProfileCookie(w, tok, exp)
			log.Debug().Str("profile", id).Msg("issued profile")
		}
		ctx := context.WithValue(r.Context(), ctxProfileKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// profileFrom returns the profile id placed by withProfile.
func profileFrom(r *http.Request) string {
	id, _ := r.Context().Value(ctxProfileKey{}).(string)
	return id
}

// signProfile creates an HS256 JWT whose subject is the profile id.
func (s *Server) signProfile(id string) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(s.cfg.ProfileTTL)
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   id,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	ss, err := t.SignedString([]byte(s.cfg.JWTSecret))
	return ss, exp, err
}

// parseProfile validates tok and returns its subject.
func (s *Server) parseProfile(tok string) (string, bool) {
	if tok == "" {
		return "", false
	}
	claims := &jwt.RegisteredClaims{}
	t, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !t.Valid || claims.Subject == "" {
		return "", false
	}
	return claims.Subject, true
}

// setProfileCookie writes the profile cookie with appropriate security attributes.
func (s *Server) setProfileCookie(w http.ResponseWriter, token string, exp time.Time) {
	sameSite := http.SameSiteLaxMode
	if s.cfg.SecureCookies {
		sameSite = http.SameSiteNoneMode // required for third-party contexts when Secure
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: sameSite,
		Expires:  exp,
	})
}

// bearerOrCookie extracts a bearer token from the Authorization header or the profile cookie.
func (s *Server) bearerOrCookie(r *http.Request) string {
	if a := r.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(a), "bearer ") {
		return strings.TrimSpace(a[7:])
	}
	if c, err := r.Cookie(s.cfg.CookieName); err == nil {
		return c.Value
	}
	return ""
}
