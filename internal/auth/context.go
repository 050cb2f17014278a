package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

type contextKey string

const userIDKey = contextKey("userID")

var ErrNoToken = errors.New("no bearer token")

// WithUserID stores the acting user's id in the context.
func WithUserID(ctx context.Context, userID uint) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// GetUserIDFromContext returns the acting user's id.
func GetUserIDFromContext(ctx context.Context) (uint, error) {
	val := ctx.Value(userIDKey)
	id, ok := val.(uint)
	if !ok {
		return 0, errors.New("user ID not found in context")
	}
	return id, nil
}

// ViewerID returns the acting user's id or 0 for anonymous viewers.
func ViewerID(ctx context.Context) uint {
	id, err := GetUserIDFromContext(ctx)
	if err != nil {
		return 0
	}
	return id
}

// UserIDFromHeader validates an "Authorization: Bearer ..." header signed with
// secret (HS256) and returns the user_id claim.
func UserIDFromHeader(header, secret string) (uint, error) {
	tokenStr := extractTokenFromHeader(header)
	if tokenStr == "" {
		return 0, ErrNoToken
	}
	if secret == "" {
		return 0, errors.New("JWT secret not set")
	}

	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return 0, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, errors.New("unexpected claims type")
	}

	idFloat, ok := claims["user_id"].(float64)
	if !ok || idFloat <= 0 {
		return 0, errors.New("user_id claim missing")
	}
	return uint(idFloat), nil
}

// TokenExpired reports whether an access token is unusable at now. The
// signature is not checked: the issuing API does that, the client only needs
// to know when to refresh. Malformed tokens count as expired.
func TokenExpired(tokenStr string, now time.Time) bool {
	claims := &jwt.RegisteredClaims{}
	_, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims)
	if err != nil {
		return true
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return !now.Before(claims.ExpiresAt.Time)
}

func extractTokenFromHeader(header string) string {
	parts := strings.Split(header, " ")
	if len(parts) == 2 && parts[0] == "Bearer" {
		return parts[1]
	}
	return ""
}
