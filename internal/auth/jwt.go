package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Actor types carried in tokens and recorded on intents
const (
	ActorTypeUser   = "user"
	ActorTypeSystem = "system"
)

// Claims identifies the actor behind a request
type Claims struct {
	ActorID   string `json:"sub"`
	Role      string `json:"role"`
	ActorType string `json:"actorType"`
	jwt.RegisteredClaims
}

// Signer issues and verifies HS256 tokens
type Signer struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewSigner creates a Signer
func NewSigner(secret, issuer string, ttl time.Duration) *Signer {
	return &Signer{secret: []byte(secret), issuer: issuer, ttl: ttl}
}

// Generate signs a token for an actor
func (s *Signer) Generate(actorID, role, actorType string) (string, error) {
	if len(s.secret) == 0 {
		return "", fmt.Errorf("JWT secret not initialized")
	}
	now := time.Now()
	claims := Claims{
		ActorID:   actorID,
		Role:      role,
		ActorType: actorType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actorID,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Parse verifies a token and returns its claims
func (s *Signer) Parse(tokenString string) (*Claims, error) {
	if len(s.secret) == 0 {
		return nil, fmt.Errorf("JWT secret not initialized")
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(s.issuer))
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		if claims.ActorType == "" {
			claims.ActorType = ActorTypeUser
		}
		return claims, nil
	}
	return nil, fmt.Errorf("invalid token")
}
