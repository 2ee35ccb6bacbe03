package main

import (
	"net/http"

	"field-agent/internal/auth"
	"field-agent/internal/httpapi"
	"field-agent/internal/rbac"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers. No business logic here.
func registerRoutes(r *gin.Engine, a *app) {
	h := httpapi.Handlers{
		Auth:     a.auth,
		Tracking: a.daemon,
		Calls:    a.machine,
		Router:   a.router,
		History:  a.history,
	}
	authMW := auth.RequireAccessToken(a.auth)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"tracking": a.daemon.Running(),
			"call":     a.machine.Snapshot().State,
			"push":     a.dispatcher.Stats(),
		})
	})

	// Push delivery from the messaging transport.
	limiter := httpapi.NewRateLimiter(a.cfg.Push.WebhookRate, a.cfg.Push.WebhookBurst)
	r.POST("/webhooks/push", authMW, rbac.RequireOrganization(), limiter.Middleware(), h.PushWebhook)

	v1 := r.Group("/v1")
	v1.Use(authMW, rbac.RequireOrganization())
	{
		tr := v1.Group("/tracking")
		tr.Use(rbac.RequireAnyRole(rbac.RoleWorker, rbac.RoleDispatcher))
		{
			tr.POST("/start", h.StartTracking)
			tr.POST("/stop", h.StopTracking)
			tr.GET("/status", h.TrackingStatus)
			tr.POST("/location", h.ReportLocation)
		}

		cl := v1.Group("/calls")
		cl.Use(rbac.RequireAnyRole(rbac.RoleWorker))
		{
			cl.POST("/incoming", h.IncomingCall)
			cl.POST("/accept", h.AcceptCall)
			cl.POST("/decline", h.DeclineCall)
			cl.POST("/end", h.EndCall)
			cl.POST("/cancel", h.CancelCall)
			cl.POST("/connected", h.CallConnected)
			cl.GET("/current", h.CurrentCall)
		}

		v1.POST("/system/restart", rbac.RequireAnyRole(rbac.RoleWorker), h.SystemRestart)

		admin := v1.Group("/admin")
		admin.Use(rbac.RequireAnyRole(rbac.RoleDispatcher))
		{
			admin.GET("/calls/history", h.CallHistory)
			admin.GET("/calls/summary", h.CallSummary)
			admin.POST("/tokens", rbac.RequireAnyRole(rbac.RoleAdmin), h.IssueToken)
		}
	}
}
