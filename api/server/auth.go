package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"medvault/types/ids"
)

// Identity is the already-authenticated caller as asserted by the session
// layer's token. The core trusts this input as given.
type Identity struct {
	Actor ids.Address
	Role  string
}

type contextKey string

const identityKey contextKey = "medvault-identity"

// authMiddleware verifies the Bearer JWT and attaches the caller identity to
// the request context. The token's "sub" claim is the actor address, "role"
// the caller role.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(s.jwtSecret), nil
		})
		if err != nil || !token.Valid {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		sub, _ := claims["sub"].(string)
		actor, err := ids.Parse(sub)
		if err != nil {
			http.Error(w, "Unauthorized: malformed subject", http.StatusUnauthorized)
			return
		}
		role, _ := claims["role"].(string)

		ctx := context.WithValue(r.Context(), identityKey, Identity{Actor: actor, Role: role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// identityFrom extracts the caller identity placed by authMiddleware.
func identityFrom(r *http.Request) (Identity, bool) {
	id, ok := r.Context().Value(identityKey).(Identity)
	return id, ok
}
