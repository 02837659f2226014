package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// newRequestIDRouter echoes the context request id back as X-Context-Request-ID.
func newRequestIDRouter() *gin.Engine {
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/", func(c *gin.Context) {
		c.Header("X-Context-Request-ID", c.GetString(RequestIDKey))
		c.Status(http.StatusOK)
	})
	return r
}

func serveRequestID(r *gin.Engine, inbound string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if inbound != "" {
		req.Header.Set(RequestIDHeader, inbound)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequestIDMiddleware_GeneratesUUIDWhenAbsent(t *testing.T) {
	w := serveRequestID(newRequestIDRouter(), "")

	id := w.Header().Get(RequestIDHeader)
	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("X-Request-ID = %q, want a UUID", id)
	}
	if got := w.Header().Get("X-Context-Request-ID"); got != id {
		t.Errorf("context id %q != response id %q", got, id)
	}
}

func TestRequestIDMiddleware_PropagatesIncomingID(t *testing.T) {
	const upstreamID = "lb-request-0001"

	w := serveRequestID(newRequestIDRouter(), upstreamID)
	if got := w.Header().Get(RequestIDHeader); got != upstreamID {
		t.Errorf("X-Request-ID = %q, want %q", got, upstreamID)
	}
}

func TestRequestIDMiddleware_ReplacesOversizedID(t *testing.T) {
	inbound := strings.Repeat("x", maxRequestIDLength+1)

	w := serveRequestID(newRequestIDRouter(), inbound)
	if got := w.Header().Get(RequestIDHeader); got == inbound {
		t.Error("oversized inbound id was propagated")
	}
}

func TestRequestIDMiddleware_DifferentIDsPerRequest(t *testing.T) {
	r := newRequestIDRouter()

	ids := make(map[string]struct{}, 10)
	for i := range 10 {
		id := serveRequestID(r, "").Header().Get(RequestIDHeader)
		if _, seen := ids[id]; seen {
			t.Errorf("duplicate request ID %q on iteration %d", id, i)
		}
		ids[id] = struct{}{}
	}
}
