package rbac

import (
	"net/http"

	"field-agent/internal/auth"

	"github.com/gin-gonic/gin"
)

// RequireOrganization enforces that an organization_id is present in context.
func RequireOrganization() gin.HandlerFunc {
	return func(c *gin.Context) {
		oid, err := auth.OrganizationID(c.Request.Context())
		if err != nil || oid == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "organization_id required"})
			return
		}
		c.Next()
	}
}

// RequireAnyRole allows the request if the caller has one of the given roles.
// admin passes every check.
func RequireAnyRole(allowed ...string) gin.HandlerFunc {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, r := range allowed {
		allowedSet[r] = struct{}{}
	}

	return func(c *gin.Context) {
		role, err := auth.Role(c.Request.Context())
		if err != nil || role == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "role required"})
			return
		}
		if IsAdmin(role) {
			c.Next()
			return
		}
		if _, ok := allowedSet[role]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "error": "forbidden"})
			return
		}
		c.Next()
	}
}

// CanActFor reports whether the caller may act on behalf of workerID.
// Workers may only act for themselves; dispatchers and admins for anyone in their organization.
func CanActFor(role, callerWorkerID, workerID string) bool {
	switch role {
	case RoleAdmin, RoleDispatcher:
		return true
	case RoleWorker:
		return callerWorkerID == workerID
	}
	return false
}
