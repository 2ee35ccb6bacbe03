package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"field-agent/internal/auth"

	"github.com/gin-gonic/gin"
)

func TestRateLimiter_PerWorkerBudget(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(0.001, 2)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		if w := c.GetHeader("X-Worker"); w != "" {
			c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), w, "org1", "worker"))
		}
		c.Next()
	}, rl.Middleware())
	r.POST("/hook", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	send := func(worker string) int {
		req := httptest.NewRequest(http.MethodPost, "/hook", nil)
		if worker != "" {
			req.Header.Set("X-Worker", worker)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	for i := 0; i < 2; i++ {
		if code := send("u1"); code != http.StatusNoContent {
			t.Fatalf("request %d: expected 204, got %d", i, code)
		}
	}
	if code := send("u1"); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %d", code)
	}
	if code := send("u2"); code != http.StatusNoContent {
		t.Fatalf("other worker must have its own budget, got %d", code)
	}
	if code := send(""); code != http.StatusNoContent {
		t.Fatalf("anonymous caller keyed by ip, got %d", code)
	}
}
