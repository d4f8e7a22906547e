package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var errBadClaims = errors.New("token has no user_id claim")

func GenerateToken(secret []byte, userID int, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": userID,
		"exp":     now.Add(ttl).Unix(),
		"iat":     now.Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(secret)
}

func ParseToken(secret []byte, tokenString string) (int, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return 0, err
	}
	if !token.Valid {
		return 0, jwt.ErrTokenInvalidClaims
	}

	data, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, errBadClaims
	}
	uidFloat, ok := data["user_id"].(float64)
	if !ok {
		return 0, errBadClaims
	}
	return int(uidFloat), nil
}
