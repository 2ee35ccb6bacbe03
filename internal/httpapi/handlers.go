package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"field-agent/internal/auth"
	"field-agent/internal/calls"
	"field-agent/internal/history"
	"field-agent/internal/inbound"
	"field-agent/internal/rbac"
	"field-agent/internal/tracking"

	"github.com/gin-gonic/gin"
)

type TrackingService interface {
	Start(ctx context.Context, id tracking.Identity) error
	Stop(ctx context.Context, explicit bool) (bool, error)
	Report(s tracking.Sample) error
	Status() tracking.Status
}

type CallService interface {
	Snapshot() calls.Session
	OnIncoming(ctx context.Context, in calls.Incoming) error
	OnAccept(ctx context.Context) error
	OnDecline(ctx context.Context) error
	OnEnd(ctx context.Context, callID string) error
	OnConnected(ctx context.Context, c calls.Connect) error
}

type EventRouter interface {
	Route(ctx context.Context, msg inbound.Message) (inbound.Outcome, error)
	HandleSystemSignal(ctx context.Context, action string) (bool, error)
}

type HistoryLister interface {
	List(ctx context.Context, f history.Filter) ([]history.Event, error)
	Summary(ctx context.Context, from, to time.Time) (history.Summary, error)
}

// Handlers groups the command handlers. Keep them thin: parse, check the
// caller, delegate, map the result. A nil dependency answers 503.
type Handlers struct {
	Auth     *auth.Manager
	Tracking TrackingService
	Calls    CallService
	Router   EventRouter
	History  HistoryLister
}

// bindOptional decodes a JSON body when one is present.
func bindOptional(c *gin.Context, v any) error {
	if err := c.ShouldBindJSON(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", errInvalidJSON, err)
	}
	return nil
}

func unavailable(c *gin.Context, what string) {
	fail(c, http.StatusServiceUnavailable, what+" not configured")
}

// --- Tracking ---

func (h Handlers) StartTracking(c *gin.Context) {
	if h.Tracking == nil {
		unavailable(c, "tracking")
		return
	}
	var req tracking.Identity
	if err := c.ShouldBindJSON(&req); err != nil {
		failErr(c, fmt.Errorf("%w: %v", errInvalidJSON, err))
		return
	}
	if err := req.Validate(); err != nil {
		failErr(c, err)
		return
	}

	ctx := c.Request.Context()
	workerID, _ := auth.WorkerID(ctx)
	orgID, _ := auth.OrganizationID(ctx)
	role, _ := auth.Role(ctx)
	if !rbac.CanActFor(role, workerID, req.WorkerID) || (!rbac.IsAdmin(role) && orgID != req.OrganizationID) {
		fail(c, http.StatusForbidden, "not allowed to track for this worker")
		return
	}

	if err := h.Tracking.Start(ctx, req); err != nil {
		failErr(c, err)
		return
	}
	ok(c, "Location tracking started")
}

func (h Handlers) StopTracking(c *gin.Context) {
	if h.Tracking == nil {
		unavailable(c, "tracking")
		return
	}
	was, err := h.Tracking.Stop(c.Request.Context(), true)
	if err != nil {
		failErr(c, err)
		return
	}
	if !was {
		ok(c, "Location tracking already stopped")
		return
	}
	ok(c, "Location tracking stopped")
}

func (h Handlers) TrackingStatus(c *gin.Context) {
	if h.Tracking == nil {
		unavailable(c, "tracking")
		return
	}
	st := h.Tracking.Status()
	okWith(c, gin.H{"isLocationTrackingActive": st.Active, "status": st})
}

type locationRequest struct {
	Latitude  *float64  `json:"latitude"`
	Longitude *float64  `json:"longitude"`
	Accuracy  float64   `json:"accuracy"`
	SampledAt time.Time `json:"sampledAt"`
}

func (h Handlers) ReportLocation(c *gin.Context) {
	if h.Tracking == nil {
		unavailable(c, "tracking")
		return
	}
	var req locationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failErr(c, fmt.Errorf("%w: %v", errInvalidJSON, err))
		return
	}
	if req.Latitude == nil || req.Longitude == nil {
		fail(c, http.StatusBadRequest, "latitude and longitude are required")
		return
	}
	err := h.Tracking.Report(tracking.Sample{
		Latitude:  *req.Latitude,
		Longitude: *req.Longitude,
		Accuracy:  req.Accuracy,
		SampledAt: req.SampledAt,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, "Location accepted")
}

// --- Calls ---

func (h Handlers) IncomingCall(c *gin.Context) {
	if h.Calls == nil {
		unavailable(c, "calls")
		return
	}
	var req calls.Incoming
	if err := c.ShouldBindJSON(&req); err != nil {
		failErr(c, fmt.Errorf("%w: %v", errInvalidJSON, err))
		return
	}
	if err := h.Calls.OnIncoming(c.Request.Context(), req); err != nil {
		failErr(c, err)
		return
	}
	ok(c, "Incoming call ringing")
}

func (h Handlers) AcceptCall(c *gin.Context) {
	h.callAction(c, "Call accepted", h.callsOrNil(func(s CallService) error {
		return s.OnAccept(c.Request.Context())
	}))
}

func (h Handlers) DeclineCall(c *gin.Context) {
	h.callAction(c, "Call declined", h.callsOrNil(func(s CallService) error {
		return s.OnDecline(c.Request.Context())
	}))
}

type callIDRequest struct {
	CallID string `json:"callId"`
}

func (h Handlers) EndCall(c *gin.Context) {
	h.endCall(c, "Call ended")
}

// CancelCall handles a call answered elsewhere or withdrawn by the caller.
func (h Handlers) CancelCall(c *gin.Context) {
	h.endCall(c, "Call cancelled")
}

func (h Handlers) endCall(c *gin.Context, message string) {
	var req callIDRequest
	if err := bindOptional(c, &req); err != nil {
		failErr(c, err)
		return
	}
	h.callAction(c, message, h.callsOrNil(func(s CallService) error {
		return s.OnEnd(c.Request.Context(), req.CallID)
	}))
}

func (h Handlers) CallConnected(c *gin.Context) {
	var req calls.Connect
	if err := c.ShouldBindJSON(&req); err != nil {
		failErr(c, fmt.Errorf("%w: %v", errInvalidJSON, err))
		return
	}
	h.callAction(c, "Call connected", h.callsOrNil(func(s CallService) error {
		return s.OnConnected(c.Request.Context(), req)
	}))
}

func (h Handlers) CurrentCall(c *gin.Context) {
	if h.Calls == nil {
		unavailable(c, "calls")
		return
	}
	okWith(c, gin.H{"call": h.Calls.Snapshot()})
}

var errCallsUnavailable = errors.New("calls not configured")

func (h Handlers) callsOrNil(fn func(CallService) error) func() error {
	return func() error {
		if h.Calls == nil {
			return errCallsUnavailable
		}
		return fn(h.Calls)
	}
}

func (h Handlers) callAction(c *gin.Context, message string, run func() error) {
	if err := run(); err != nil {
		if errors.Is(err, errCallsUnavailable) {
			unavailable(c, "calls")
			return
		}
		failErr(c, err)
		return
	}
	ok(c, message)
}

// --- System and push delivery ---

type restartRequest struct {
	Action string `json:"action"`
}

func (h Handlers) SystemRestart(c *gin.Context) {
	if h.Router == nil {
		unavailable(c, "router")
		return
	}
	var req restartRequest
	if err := bindOptional(c, &req); err != nil {
		failErr(c, err)
		return
	}
	if req.Action == "" {
		req.Action = inbound.SignalProcessRestart
	}
	resumed, err := h.Router.HandleSystemSignal(c.Request.Context(), req.Action)
	if err != nil {
		failErr(c, err)
		return
	}
	if !resumed {
		okWith(c, gin.H{"message": "No tracking session to resume", "resumed": false})
		return
	}
	okWith(c, gin.H{"message": "Location tracking resumed", "resumed": true})
}

type pushRequest struct {
	Notification struct {
		Title string `json:"title"`
		Body  string `json:"body"`
	} `json:"notification"`
	Data map[string]string `json:"data"`
}

func (h Handlers) PushWebhook(c *gin.Context) {
	if h.Router == nil {
		unavailable(c, "router")
		return
	}
	var req pushRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failErr(c, fmt.Errorf("%w: %v", errInvalidJSON, err))
		return
	}
	out, err := h.Router.Route(c.Request.Context(), inbound.Message{
		Title: req.Notification.Title,
		Body:  req.Notification.Body,
		Data:  req.Data,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	okWith(c, gin.H{"message": "Message routed", "outcome": out})
}

// --- Admin ---

func (h Handlers) CallHistory(c *gin.Context) {
	if h.History == nil {
		unavailable(c, "history")
		return
	}
	f := history.Filter{Kind: history.Kind(c.Query("kind"))}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			fail(c, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		f.Limit = n
	}
	events, err := h.History.List(c.Request.Context(), f)
	if err != nil {
		failErr(c, err)
		return
	}
	if events == nil {
		events = []history.Event{}
	}
	okWith(c, gin.H{"events": events})
}

// CallSummary aggregates call outcomes over [from, to), RFC 3339 query
// parameters. The default window is the last 24 hours.
func (h Handlers) CallSummary(c *gin.Context) {
	if h.History == nil {
		unavailable(c, "history")
		return
	}
	to := time.Now().UTC()
	from := to.Add(-24 * time.Hour)
	for _, p := range []struct {
		name string
		dst  *time.Time
	}{{"from", &from}, {"to", &to}} {
		v := c.Query(p.name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			fail(c, http.StatusBadRequest, p.name+" must be an RFC 3339 timestamp")
			return
		}
		*p.dst = t
	}
	sum, err := h.History.Summary(c.Request.Context(), from, to)
	if err != nil {
		failErr(c, err)
		return
	}
	okWith(c, gin.H{"summary": sum})
}

type issueTokenRequest struct {
	WorkerID string `json:"worker_id"`
	Role     string `json:"role"`
}

// IssueToken mints a token pair for a worker of the caller's organization.
// It does not validate credentials; it is an admin provisioning endpoint.
func (h Handlers) IssueToken(c *gin.Context) {
	if h.Auth == nil {
		unavailable(c, "auth")
		return
	}
	var req issueTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failErr(c, fmt.Errorf("%w: %v", errInvalidJSON, err))
		return
	}
	if req.WorkerID == "" {
		fail(c, http.StatusBadRequest, "worker_id is required")
		return
	}
	if req.Role == "" {
		req.Role = rbac.RoleWorker
	}
	if !rbac.IsKnownRole(req.Role) {
		fail(c, http.StatusBadRequest, "unknown role")
		return
	}
	orgID, err := auth.OrganizationID(c.Request.Context())
	if err != nil {
		fail(c, http.StatusUnauthorized, "organization_id required")
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.WorkerID, orgID, req.Role)
	if err != nil {
		failErr(c, err)
		return
	}
	okWith(c, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}
