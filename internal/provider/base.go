package provider

import (
	"sync"
	"time"

	"trading-data-pipeline/internal/types"
)

// Status is a provider's coarse operational state, set by the provider itself.
type Status string

const (
	StatusActive      Status = "active"
	StatusRateLimited Status = "rate_limited"
	StatusError       Status = "error"
	StatusInactive    Status = "inactive"
)

// Priority orders providers when no explicit configuration exists.
type Priority int

const (
	PriorityPrimary Priority = iota + 1
	PrioritySecondary
	PriorityTertiary
	PriorityBackup
)

const defaultMaxErrors = 5

// Base carries the bookkeeping shared by every concrete provider: status,
// request/error counters and the advisory rate limit gate. Concrete providers
// embed it and call RecordRequest / RecordError / ResetErrors around their
// API calls. All fields are mutex guarded; providers are called from the
// failover manager but may also be probed concurrently for status.
type Base struct {
	name     string
	priority Priority

	mu              sync.Mutex
	status          Status
	errorCount      int
	maxErrors       int
	requestsToday   int
	lastRequestTime time.Time

	// RateLimitDelay is the minimum spacing between requests; DailyLimit is
	// the request cap per day. Both are set once at construction.
	rateLimitDelay time.Duration
	dailyLimit     int
}

// NewBase constructs the embedded bookkeeping for a provider.
func NewBase(name string, priority Priority, rateLimitDelay time.Duration, dailyLimit int) *Base {
	return &Base{
		name:           name,
		priority:       priority,
		status:         StatusInactive,
		maxErrors:      defaultMaxErrors,
		rateLimitDelay: rateLimitDelay,
		dailyLimit:     dailyLimit,
	}
}

func (b *Base) Name() string { return b.name }

// SetStatus replaces the provider status.
func (b *Base) SetStatus(s Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = s
}

// Status returns the current provider status.
func (b *Base) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// CheckRateLimit reports whether a request may be issued now: under the
// daily cap and at least the configured delay since the last request.
// Hitting the daily cap flips status to rate_limited.
func (b *Base) CheckRateLimit() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.dailyLimit > 0 && b.requestsToday >= b.dailyLimit {
		b.status = StatusRateLimited
		return false
	}
	if !b.lastRequestTime.IsZero() && time.Since(b.lastRequestTime) < b.rateLimitDelay {
		return false
	}
	return true
}

// RecordRequest stamps the last-request time and bumps the daily counter.
func (b *Base) RecordRequest() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastRequestTime = time.Now()
	b.requestsToday++
}

// RecordError bumps the error counter; too many consecutive errors flip the
// provider into error status.
func (b *Base) RecordError() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errorCount++
	if b.errorCount >= b.maxErrors {
		b.status = StatusError
	}
}

// ResetErrors clears the error counter after a successful request. A provider
// parked in error status returns to active.
func (b *Base) ResetErrors() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.errorCount == 0 {
		return
	}
	b.errorCount = 0
	if b.status == StatusError {
		b.status = StatusActive
	}
}

// Available reports whether the provider may serve a request: status allows
// it (active or inactive, i.e. not rate limited and not erroring) and the
// rate limit gate passes. This gate is advisory; the failover manager is the
// enforcement point for switching.
func (b *Base) Available() bool {
	b.mu.Lock()
	st := b.status
	b.mu.Unlock()
	if st != StatusActive && st != StatusInactive {
		return false
	}
	return b.CheckRateLimit()
}

// StatusInfo snapshots the provider bookkeeping for status reports.
func (b *Base) StatusInfo() types.ProviderStatusInfo {
	avail := b.Available()

	b.mu.Lock()
	defer b.mu.Unlock()
	return types.ProviderStatusInfo{
		Name:            b.name,
		Status:          string(b.status),
		Priority:        int(b.priority),
		ErrorCount:      b.errorCount,
		RequestsToday:   b.requestsToday,
		DailyLimit:      b.dailyLimit,
		Available:       avail,
		LastRequestTime: b.lastRequestTime,
	}
}
