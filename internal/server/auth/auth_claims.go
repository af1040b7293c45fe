package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

type TokenType string

const (
	AccessToken TokenType = "access"
	StreamToken TokenType = "stream"
)

// Level is the permission level the auth collaborator grants a client
type Level string

const (
	LevelUser  Level = "user"
	LevelAdmin Level = "admin"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrWrongLevel   = errors.New("insufficient permission level")
)

// Claims of a bearer access token
type Claims struct {
	Type  TokenType `json:"type"`
	Level Level     `json:"level"`
	jwt.RegisteredClaims
}

// StreamClaims scope a playback capability to one object
type StreamClaims struct {
	Type   TokenType `json:"type"`
	Object string    `json:"obj"`
	jwt.RegisteredClaims
}

func parseHS256(tokenString, secret string, claims jwt.Claims, opts ...jwt.ParserOption) error {
	opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, opts...)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid {
		return ErrInvalidToken
	}
	return nil
}

// ParseClaims verifies an access token and returns its claims
func ParseClaims(tokenString, secret string) (*Claims, error) {
	claims := &Claims{}
	if err := parseHS256(tokenString, secret, claims, jwt.WithIssuedAt()); err != nil {
		return nil, err
	}
	return claims, nil
}
