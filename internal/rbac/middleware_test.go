package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"field-agent/internal/auth"

	"github.com/gin-gonic/gin"
)

func serveWithIdentity(workerID, orgID, role string, chain ...gin.HandlerFunc) int {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	handlers := []gin.HandlerFunc{func(c *gin.Context) {
		ctx := auth.WithIdentity(c.Request.Context(), workerID, orgID, role)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}}
	handlers = append(handlers, chain...)
	handlers = append(handlers, func(c *gin.Context) { c.Status(200) })
	r.GET("/x", handlers...)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	return w.Code
}

func TestRequireAnyRole_AdminBypasses(t *testing.T) {
	if code := serveWithIdentity("u", "o", RoleAdmin, RequireOrganization(), RequireAnyRole(RoleDispatcher)); code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestRequireAnyRole_WorkerDenied(t *testing.T) {
	if code := serveWithIdentity("u", "o", RoleWorker, RequireOrganization(), RequireAnyRole(RoleDispatcher)); code != 403 {
		t.Fatalf("expected 403, got %d", code)
	}
}

func TestRequireAnyRole_MissingRole(t *testing.T) {
	if code := serveWithIdentity("u", "o", "", RequireAnyRole(RoleWorker)); code != 401 {
		t.Fatalf("expected 401, got %d", code)
	}
}

func TestRequireOrganization(t *testing.T) {
	if code := serveWithIdentity("u", "", RoleWorker, RequireOrganization(), RequireAnyRole(RoleWorker)); code != 401 {
		t.Fatalf("expected 401, got %d", code)
	}
}

func TestCanActFor(t *testing.T) {
	cases := []struct {
		role, caller, target string
		want                 bool
	}{
		{RoleWorker, "u1", "u1", true},
		{RoleWorker, "u1", "u2", false},
		{RoleDispatcher, "d1", "u2", true},
		{RoleAdmin, "a1", "u2", true},
		{"guest", "u1", "u1", false},
	}
	for _, tc := range cases {
		if got := CanActFor(tc.role, tc.caller, tc.target); got != tc.want {
			t.Fatalf("CanActFor(%q,%q,%q)=%v want %v", tc.role, tc.caller, tc.target, got, tc.want)
		}
	}
}
