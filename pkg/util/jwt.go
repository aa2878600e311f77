package util

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ActorClaims is what a marketplace token carries: who the caller is and
// which side of the contract they act for.
type ActorClaims struct {
	UserID int
	Actor  string // contractor | homeowner
}

// GenerateJWT creates a token for a user acting as the given party.
func GenerateJWT(userID int, actor, secret string) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"actor":   actor,
		"exp":     time.Now().Add(24 * time.Hour).Unix(),
		"iat":     time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseJWT validates a token and extracts the actor claims.
func ParseJWT(tokenStr, secret string) (ActorClaims, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return ActorClaims{}, err
	}

	if !token.Valid {
		return ActorClaims{}, jwt.ErrTokenInvalidClaims
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return ActorClaims{}, jwt.ErrTokenMalformed
	}

	userIDFloat, ok := claims["user_id"].(float64)
	if !ok {
		return ActorClaims{}, jwt.ErrTokenMalformed
	}
	actor, ok := claims["actor"].(string)
	if !ok {
		return ActorClaims{}, jwt.ErrTokenMalformed
	}

	return ActorClaims{UserID: int(userIDFloat), Actor: actor}, nil
}

func ExtractToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}

	parts := strings.Split(auth, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}

	return parts[1]
}
