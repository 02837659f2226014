package auth

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-jwt-secret-that-is-32-chars-!"

// resetJWTSecret lets a test load a fresh secret.
func resetJWTSecret() {
	jwtSecret = ""
	jwtSecretOnce = sync.Once{}
	jwtSecretErr = nil
}

func TestMain(m *testing.M) {
	os.Setenv(SecretEnv, testSecret)
	os.Exit(m.Run())
}

func TestValidateJWTSecret(t *testing.T) {
	t.Run("secret from env", func(t *testing.T) {
		resetJWTSecret()
		t.Setenv(SecretEnv, testSecret)
		if err := ValidateJWTSecret(); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("production requires secret", func(t *testing.T) {
		resetJWTSecret()
		t.Setenv(SecretEnv, "")
		t.Setenv("DPC_DEV_MODE", "")
		t.Setenv("GIN_MODE", "release")
		if err := ValidateJWTSecret(); err == nil {
			t.Error("expected error without secret outside dev mode")
		}
		if _, err := GenerateJWT("u", "e", "n", 0); err == nil {
			t.Error("GenerateJWT must fail when the secret is missing")
		}
	})

	t.Run("dev mode generates secret", func(t *testing.T) {
		resetJWTSecret()
		t.Setenv(SecretEnv, "")
		t.Setenv("DPC_DEV_MODE", "true")
		if err := ValidateJWTSecret(); err != nil {
			t.Errorf("unexpected error in dev mode: %v", err)
		}
		if len(jwtSecret) != 2*minSecret {
			t.Errorf("generated secret length = %d", len(jwtSecret))
		}
	})
	resetJWTSecret()
}

func TestGenerateAndValidateJWT(t *testing.T) {
	resetJWTSecret()

	token, err := GenerateJWT("staff-1", "pat@example.gov", "Pat Kim", time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT() error: %v", err)
	}
	claims, err := ValidateJWT(token)
	if err != nil {
		t.Fatalf("ValidateJWT() error: %v", err)
	}
	if claims.UserID != "staff-1" || claims.Email != "pat@example.gov" || claims.Name != "Pat Kim" {
		t.Errorf("claims = %+v", claims)
	}
	if claims.Issuer != issuer || claims.Subject != "staff-1" {
		t.Errorf("registered claims = %+v", claims.RegisteredClaims)
	}
}

func TestGenerateJWT_DefaultTTL(t *testing.T) {
	resetJWTSecret()
	token, _ := GenerateJWT("staff-1", "pat@example.gov", "", 0)
	claims, err := ValidateJWT(token)
	if err != nil {
		t.Fatal(err)
	}
	ttl := claims.ExpiresAt.Sub(claims.IssuedAt.Time)
	if ttl != DefaultSessionTTL {
		t.Errorf("ttl = %v, want %v", ttl, DefaultSessionTTL)
	}
}

func TestValidateJWT_Rejects(t *testing.T) {
	resetJWTSecret()
	sign := func(method jwt.SigningMethod, key interface{}, c *Claims) string {
		s, err := jwt.NewWithClaims(method, c).SignedString(key)
		if err != nil {
			t.Fatal(err)
		}
		return s
	}
	valid := func() *Claims {
		return &Claims{UserID: "staff-1", RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}}
	}

	expired := valid()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	wrongIssuer := valid()
	wrongIssuer.Issuer = "someone-else"
	noExpiry := valid()
	noExpiry.ExpiresAt = nil
	noUser := valid()
	noUser.UserID = ""

	tests := map[string]string{
		"garbage":      "not-a-token",
		"wrong secret": sign(jwt.SigningMethodHS256, []byte("another-secret-another-secret-!!!"), valid()),
		"hs512":        sign(jwt.SigningMethodHS512, []byte(testSecret), valid()),
		"none":         sign(jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, valid()),
		"expired":      sign(jwt.SigningMethodHS256, []byte(testSecret), expired),
		"wrong issuer": sign(jwt.SigningMethodHS256, []byte(testSecret), wrongIssuer),
		"no expiry":    sign(jwt.SigningMethodHS256, []byte(testSecret), noExpiry),
		"no user id":   sign(jwt.SigningMethodHS256, []byte(testSecret), noUser),
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ValidateJWT(token); err == nil {
				t.Error("ValidateJWT() = nil error, want rejection")
			}
		})
	}
}
