// Package auth issues and verifies staff session tokens.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// SecretEnv names the environment variable holding the HMAC signing secret
	SecretEnv = "DPC_JWT_SECRET"

	// DefaultSessionTTL applies when no session lifetime is configured
	DefaultSessionTTL = 8 * time.Hour

	issuer    = "dpc-admin"
	minSecret = 32
)

var (
	jwtSecret     string
	jwtSecretOnce sync.Once
	jwtSecretErr  error
)

// Claims identify a signed-in staff member
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

func isDevMode() bool {
	dev := os.Getenv("DPC_DEV_MODE")
	return dev == "true" || dev == "1" || os.Getenv("GIN_MODE") == "debug"
}

func generateRandomSecret() (string, error) {
	b := make([]byte, minSecret)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// ValidateJWTSecret loads the signing secret once. Outside dev mode a missing secret is
// fatal; in dev mode a random secret is generated and sessions do not survive restarts.
func ValidateJWTSecret() error {
	jwtSecretOnce.Do(func() {
		secret := os.Getenv(SecretEnv)
		if secret == "" {
			if !isDevMode() {
				jwtSecretErr = fmt.Errorf("%s is required; generate one with: openssl rand -hex 32", SecretEnv)
				return
			}
			secret, jwtSecretErr = generateRandomSecret()
			if jwtSecretErr != nil {
				return
			}
			slog.Warn("JWT secret not set, using a generated development secret", "env", SecretEnv)
		} else if len(secret) < minSecret {
			slog.Warn("JWT secret is shorter than recommended", "env", SecretEnv, "min_length", minSecret)
		}
		jwtSecret = secret
	})
	return jwtSecretErr
}

func secret() ([]byte, error) {
	if err := ValidateJWTSecret(); err != nil {
		return nil, err
	}
	return []byte(jwtSecret), nil
}

// GenerateJWT signs a session token for a staff member. A zero ttl uses eight hours.
func GenerateJWT(userID, email, name string, ttl time.Duration) (string, error) {
	key, err := secret()
	if err != nil {
		return "", err
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}

	now := time.Now()
	claims := &Claims{
		UserID: userID,
		Email:  email,
		Name:   name,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}

// ValidateJWT verifies signature, issuer and expiry and returns the claims
func ValidateJWT(tokenString string) (*Claims, error) {
	key, err := secret()
	if err != nil {
		return nil, err
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (interface{}, error) { return key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.UserID == "" {
		return nil, errors.New("token has no user_id claim")
	}
	return claims, nil
}
