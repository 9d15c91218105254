package web

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	log "github.com/sirupsen/logrus"
)

// Identity is the verified (userID, username) pair extracted from a bearer
// token minted by the external auth service. The core never issues tokens
// or checks credentials; it only verifies the token signature.
type Identity struct {
	UserID   string
	Username string
}

type identityClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

type contextKey string

const identityKey contextKey = "identity"

// IdentityFrom returns the verified identity stored on the request context.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// authMiddleware verifies the bearer token, lazily provisions the user row
// on first sight, and stores the identity on the request context. Tokens are
// read from the Authorization header, with a token query parameter fallback
// for WebSocket upgrades.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing auth")
			return
		}

		identity, err := s.verifyToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		if _, err := s.userService.GetOrCreateUser(r.Context(), identity.UserID, identity.Username); err != nil {
			log.WithFields(log.Fields{
				"userID": identity.UserID,
				"error":  err,
			}).Error("Failed to provision user")
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		ctx := context.WithValue(r.Context(), identityKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

func (s *Server) verifyToken(token string) (Identity, error) {
	var claims identityClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.tokenSecret), nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("failed to parse token: %w", err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return Identity{}, fmt.Errorf("token has no subject")
	}

	return Identity{
		UserID:   claims.Subject,
		Username: claims.Username,
	}, nil
}
