package admin

import (
	"os"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/dpc-platform/dpc-admin/internal/auth"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	// Set JWT secret for tests that exercise GenerateJWT (the OIDC callback success path)
	os.Setenv(auth.SecretEnv, "test-admin-jwt-secret-that-is-32chars!!")
	os.Exit(m.Run())
}
