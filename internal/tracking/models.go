package tracking

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"field-agent/internal/sessionstore"
)

// TimeLayout is the wire format of every timestamp pushed to the backend.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// SourceTag marks documents produced by this daemon.
const SourceTag = "native_service"

const defaultDisplayName = "User"

var (
	ErrMissingField     = errors.New("tracking: missing required field")
	ErrPermissionDenied = errors.New("tracking: location permission not granted")
	ErrUnavailable      = errors.New("tracking: subsystem unavailable")
	ErrNotRunning       = errors.New("tracking: not running")
	ErrInvalidSample    = errors.New("tracking: invalid location sample")
	ErrSampleDropped    = errors.New("tracking: sample dropped, source busy")
)

// Identity is what a tracking session reports as.
type Identity struct {
	WorkerID        string `json:"workerId"`
	OrganizationID  string `json:"organizationId"`
	EndpointBaseURL string `json:"endpointBaseUrl"`
	DisplayName     string `json:"displayName"`
}

// Validate checks the required fields in a fixed order and reports the first one missing.
func (id Identity) Validate() error {
	switch {
	case strings.TrimSpace(id.WorkerID) == "":
		return fmt.Errorf("%w: workerId is required", ErrMissingField)
	case strings.TrimSpace(id.OrganizationID) == "":
		return fmt.Errorf("%w: organizationId is required", ErrMissingField)
	case strings.TrimSpace(id.EndpointBaseURL) == "":
		return fmt.Errorf("%w: endpointBaseUrl is required", ErrMissingField)
	}
	return nil
}

func (id Identity) normalized() Identity {
	id.WorkerID = strings.TrimSpace(id.WorkerID)
	id.OrganizationID = strings.TrimSpace(id.OrganizationID)
	id.EndpointBaseURL = strings.TrimRight(strings.TrimSpace(id.EndpointBaseURL), "/")
	id.DisplayName = strings.TrimSpace(id.DisplayName)
	if id.DisplayName == "" {
		id.DisplayName = defaultDisplayName
	}
	return id
}

func (id Identity) record() sessionstore.Record {
	return sessionstore.Record{
		WorkerID:        id.WorkerID,
		OrganizationID:  id.OrganizationID,
		EndpointBaseURL: id.EndpointBaseURL,
		DisplayName:     id.DisplayName,
	}
}

func identityFromRecord(r sessionstore.Record) Identity {
	return Identity{
		WorkerID:        r.WorkerID,
		OrganizationID:  r.OrganizationID,
		EndpointBaseURL: r.EndpointBaseURL,
		DisplayName:     r.DisplayName,
	}
}

// LocationURL is <base>/userLocations/<workerId>.json.
func (id Identity) LocationURL() string {
	return id.EndpointBaseURL + "/userLocations/" + url.PathEscape(id.WorkerID) + ".json"
}

// PresenceURL is <base>/presence/<workerId>.json.
func (id Identity) PresenceURL() string {
	return id.EndpointBaseURL + "/presence/" + url.PathEscape(id.WorkerID) + ".json"
}

// Sample is one position fix.
type Sample struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  float64   `json:"accuracy"`
	SampledAt time.Time `json:"sampledAt"`
}

func (s Sample) Validate() error {
	if s.Latitude < -90 || s.Latitude > 90 || s.Longitude < -180 || s.Longitude > 180 {
		return fmt.Errorf("%w: coordinates out of range", ErrInvalidSample)
	}
	if s.Accuracy < 0 {
		return fmt.Errorf("%w: negative accuracy", ErrInvalidSample)
	}
	return nil
}

// LocationRequest is the cadence asked of a LocationSource.
type LocationRequest struct {
	Interval        time.Duration
	MinInterval     time.Duration
	MinDisplacement float64 // meters
}

func DefaultLocationRequest() LocationRequest {
	return LocationRequest{
		Interval:        10 * time.Second,
		MinInterval:     5 * time.Second,
		MinDisplacement: 5,
	}
}

// LocationDoc is the body PUT to the userLocations path.
type LocationDoc struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy"`
	Timestamp string  `json:"timestamp"`
	Source    string  `json:"source"`
}

// PresenceDoc is the body PUT to the presence path. The offline document carries no source.
type PresenceDoc struct {
	IsOnline   bool   `json:"isOnline"`
	LastActive string `json:"lastActive"`
	Source     string `json:"source,omitempty"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// Status is a snapshot of the daemon.
type Status struct {
	Active         bool         `json:"isLocationTrackingActive"`
	Identity       *Identity    `json:"identity,omitempty"`
	StartedAt      string       `json:"startedAt,omitempty"`
	LastLocation   *LocationDoc `json:"lastLocation,omitempty"`
	LastPresenceAt string       `json:"lastPresenceAt,omitempty"`
}
