package rbac

// Role names. They are carried in access tokens; keep them stable.
const (
	RoleWorker     = "worker"
	RoleDispatcher = "dispatcher"
	RoleAdmin      = "admin"
)

func IsAdmin(role string) bool { return role == RoleAdmin }

func IsKnownRole(role string) bool {
	switch role {
	case RoleWorker, RoleDispatcher, RoleAdmin:
		return true
	}
	return false
}
