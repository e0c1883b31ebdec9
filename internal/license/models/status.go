package models

import "time"

// Status is the classified license status for one license id.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusNotFound Status = "not_found"
	StatusError    Status = "error"
	// StatusCacheHit is reserved; cache hits report the cached status with SourceCache.
	StatusCacheHit Status = "cache_hit"
)

// IsProblem reports whether the status should hold an open alert.
func (s Status) IsProblem() bool {
	return s == StatusInactive || s == StatusNotFound
}

// Cacheable reports whether a status may be stored as a reusable answer.
func (s Status) Cacheable() bool {
	return s == StatusActive || s == StatusInactive || s == StatusNotFound
}

// Source tells where a StatusResult came from.
type Source string

const (
	SourceCache     Source = "cache"
	SourceAuthority Source = "authority"
)

// Member is one roster entry. Sourced fresh on every sweep and never persisted.
type Member struct {
	Name      string `json:"name"`
	LicenseID string `json:"license_id"`
}

// StatusResult is the outcome of resolving one license id.
type StatusResult struct {
	LicenseID  string         `json:"license_id"`
	Status     Status         `json:"status"`
	ObservedAt time.Time      `json:"observed_at"`
	Source     Source         `json:"source"`
	Raw        map[string]any `json:"raw,omitempty"`
	Message    string         `json:"message,omitempty"`
}

// CacheEntry is the last authority answer stored for a license id.
type CacheEntry struct {
	LicenseID  string
	Status     Status
	ObservedAt time.Time
	Raw        map[string]any
}

// IsFresh reports whether the entry is younger than ttl at now.
func (e CacheEntry) IsFresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.ObservedAt) < ttl
}

// AuthorityResponse is what the licensing authority returned for a lookup.
// NotFound is set when the authority answered with a not-found response code.
type AuthorityResponse struct {
	StatusText string
	NotFound   bool
	Raw        map[string]any
}
