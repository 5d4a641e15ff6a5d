package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt"

	"github.com/agrilink/agrilink-gobackend/internal/models"
)

type contextKey string

const claimsKey contextKey = "claims"

// AuthMiddleware verifies bearer JWTs and makes the claims available to
// handlers through the request context.
type AuthMiddleware struct {
	secret []byte
}

func NewAuthMiddleware(secret string) *AuthMiddleware {
	return &AuthMiddleware{secret: []byte(secret)}
}

// IssueToken signs a token for the user, carrying their id, phone number and
// role.
func (m *AuthMiddleware) IssueToken(user *models.User) (string, error) {
	claims := jwt.MapClaims{
		"sub":          user.ID.Hex(),
		"phone_number": user.PhoneNumber,
		"role":         user.Role,
		"exp":          time.Now().Add(24 * time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Require rejects requests without a valid bearer token.
func (m *AuthMiddleware) Require(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, `{"error":"Authorization header required"}`, http.StatusUnauthorized)
			return
		}
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return m.secret, nil
		})
		if err != nil || !token.Valid {
			http.Error(w, `{"error":"Invalid token"}`, http.StatusUnauthorized)
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			http.Error(w, `{"error":"Invalid token claims"}`, http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next(w, r.WithContext(ctx))
	}
}

// RequireRole additionally checks the role claim.
func (m *AuthMiddleware) RequireRole(role string, next http.HandlerFunc) http.HandlerFunc {
	return m.Require(func(w http.ResponseWriter, r *http.Request) {
		claims := ClaimsFrom(r)
		if claims == nil || claims["role"] != role {
			http.Error(w, `{"error":"Forbidden for this role"}`, http.StatusForbidden)
			return
		}
		next(w, r)
	})
}

// ClaimsFrom returns the verified claims for the request, or nil when the
// request did not pass through Require.
func ClaimsFrom(r *http.Request) jwt.MapClaims {
	claims, _ := r.Context().Value(claimsKey).(jwt.MapClaims)
	return claims
}

// UserIDFrom extracts the authenticated user's id from the claims.
func UserIDFrom(r *http.Request) string {
	claims := ClaimsFrom(r)
	if claims == nil {
		return ""
	}
	sub, _ := claims["sub"].(string)
	return sub
}
