package provider

import (
	"strings"
	"sync"
	"time"
)

// Health classifies a provider's recent failure history.
type Health string

const (
	HealthUnknown    Health = "unknown"
	HealthHealthy    Health = "healthy"
	HealthDegraded   Health = "degraded"
	HealthFailed     Health = "failed"
	HealthRecovering Health = "recovering"
)

const (
	degradedThreshold = 3
	failedThreshold   = 5
)

// classifyFailures maps a failure count to a health state. Pure so the
// thresholds stay testable in one place.
func classifyFailures(count int) Health {
	switch {
	case count >= failedThreshold:
		return HealthFailed
	case count >= degradedThreshold:
		return HealthDegraded
	case count > 0:
		return HealthHealthy
	default:
		return HealthUnknown
	}
}

// HealthRecord is the snapshot of one provider's health.
type HealthRecord struct {
	Health           Health    `json:"health"`
	FailureCount     int       `json:"failure_count"`
	LastFailureTime  time.Time `json:"last_failure_time"`
	RecoveryNotified bool      `json:"recovery_notified"`
}

// HealthTracker owns per-provider failure counters and health transitions.
// It is created and owned by the Manager; there is no package-global state.
type HealthTracker struct {
	mu      sync.Mutex
	records map[string]*HealthRecord

	// onRecovery fires once per failed->healthy transition when set.
	onRecovery func(provider string)
}

func NewHealthTracker(onRecovery func(provider string)) *HealthTracker {
	return &HealthTracker{
		records:    make(map[string]*HealthRecord),
		onRecovery: onRecovery,
	}
}

func (t *HealthTracker) record(name string) *HealthRecord {
	name = strings.ToLower(name)
	rec, ok := t.records[name]
	if !ok {
		rec = &HealthRecord{Health: HealthUnknown}
		t.records[name] = rec
	}
	return rec
}

// Track initializes a record for a newly registered provider.
func (t *HealthTracker) Track(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record(name)
}

// RecordSuccess resets the failure count and flips health to healthy. The
// first success after the provider was failed fires the recovery callback
// exactly once; the notified latch holds until the next failure streak
// reaches failed again.
func (t *HealthTracker) RecordSuccess(name string) {
	t.mu.Lock()
	rec := t.record(name)
	wasFailed := rec.Health == HealthFailed
	notify := wasFailed && !rec.RecoveryNotified
	rec.FailureCount = 0
	rec.Health = HealthHealthy
	if notify {
		rec.RecoveryNotified = true
	}
	cb := t.onRecovery
	t.mu.Unlock()

	if notify && cb != nil {
		cb(name)
	}
}

// RecordFailure bumps the failure count and reclassifies health. Entering
// failed re-arms the recovery notification.
func (t *HealthTracker) RecordFailure(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec := t.record(name)
	rec.FailureCount++
	rec.LastFailureTime = time.Now()
	if rec.FailureCount >= failedThreshold {
		rec.Health = HealthFailed
		rec.RecoveryNotified = false
	} else if rec.FailureCount >= degradedThreshold {
		rec.Health = HealthDegraded
	}
}

// SetHealth force-sets a provider's health, used by the startup probe.
func (t *HealthTracker) SetHealth(name string, h Health) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record(name).Health = h
}

// Healthy reports whether the provider is usable for selection: anything
// except failed counts (unknown providers get the benefit of the doubt).
func (t *HealthTracker) Healthy(name string) bool {
	return t.Get(name).Health != HealthFailed
}

// Get returns a copy of the provider's record.
func (t *HealthTracker) Get(name string) HealthRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	return *t.record(name)
}

// Reset returns one provider (or all, for empty name) to unknown with
// cleared counters.
func (t *HealthTracker) Reset(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	reset := func(rec *HealthRecord) {
		rec.FailureCount = 0
		rec.Health = HealthUnknown
		rec.RecoveryNotified = false
		rec.LastFailureTime = time.Time{}
	}
	if name == "" {
		for _, rec := range t.records {
			reset(rec)
		}
		return
	}
	reset(t.record(name))
}

// Snapshot copies all records keyed by provider name.
func (t *HealthTracker) Snapshot() map[string]HealthRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]HealthRecord, len(t.records))
	for name, rec := range t.records {
		out[name] = *rec
	}
	return out
}
