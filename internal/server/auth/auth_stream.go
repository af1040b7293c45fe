package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// clockSkew tolerates issuers whose clocks run slightly ahead
const clockSkew = time.Minute

// StreamTokens signs and checks playback tokens. A token carries the object id and its issue time,
// it is valid for one object until validity has elapsed since issue.
type StreamTokens struct {
	secret   []byte
	validity time.Duration
}

func NewStreamTokens(secret string, validity time.Duration) *StreamTokens {
	if validity <= 0 {
		validity = DefaultStreamTokenValidity
	}
	return &StreamTokens{secret: []byte(secret), validity: validity}
}

func (s *StreamTokens) Validity() time.Duration {
	return s.validity
}

// Issue mints a token for objectID issued at `at`
func (s *StreamTokens) Issue(objectID string, at time.Time) (string, error) {
	if objectID == "" {
		return "", fmt.Errorf("object id required")
	}

	claims := StreamClaims{
		Type:   StreamToken,
		Object: objectID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       uuid.New().String(),
			IssuedAt: jwt.NewNumericDate(at),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Validate reports whether token grants access to objectID at now.
// Any malformed, foreign or stale token is simply invalid.
func (s *StreamTokens) Validate(token, objectID string, now time.Time) bool {
	if token == "" || objectID == "" {
		return false
	}

	claims := &StreamClaims{}
	// the issue-time window is checked below against the caller's clock
	if err := parseHS256(token, string(s.secret), claims, jwt.WithoutClaimsValidation()); err != nil {
		return false
	}

	if claims.Type != StreamToken || claims.Object != objectID || claims.IssuedAt == nil {
		return false
	}

	issued := claims.IssuedAt.Time
	if issued.After(now.Add(clockSkew)) {
		return false
	}
	return now.Sub(issued) <= s.validity
}
