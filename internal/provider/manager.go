package provider

import (
	"context"
	"strings"
	"sync"
	"time"

	"trading-data-pipeline/internal/interfaces"
	"trading-data-pipeline/internal/logger"
	"trading-data-pipeline/internal/symbols"
	"trading-data-pipeline/internal/types"
)

// Settings is the read-only failover configuration consumed by the Manager.
// It is refreshed on demand by the caller, never re-validated mid-operation.
type Settings interface {
	DefaultProvider() string
	ProviderPriority() []string
	FailoverEnabled() bool
	RetryAttempts() int
	NotifyRecovery() bool
}

// Manager routes every data-fetch call through the registry, tracking health
// and cascading across providers in priority order. Selection intent, in
// rank: manual pin > configured default > configured priority > anything
// that works > give up.
//
// One Manager instance is owned by the composition root and passed to
// callers; all mutable state lives behind its mutex.
type Manager struct {
	registry *Registry
	health   *HealthTracker
	settings Settings

	mu        sync.Mutex
	preferred string
	current   string

	// retryDelay spaces local retries of the same provider. Tests shrink it.
	retryDelay time.Duration
}

// EnhancedStatus is the administrative status report.
type EnhancedStatus struct {
	CurrentProvider   string                    `json:"current_provider"`
	PreferredProvider string                    `json:"preferred_provider,omitempty"`
	TotalProviders    int                       `json:"total_providers"`
	ProviderOrder     []string                  `json:"provider_order"`
	FailoverEnabled   bool                      `json:"failover_enabled"`
	Providers         map[string]ProviderStatus `json:"providers"`
}

// ProviderStatus joins a provider's own status info with its health record.
type ProviderStatus struct {
	types.ProviderStatusInfo
	HealthRecord
}

func NewManager(settings Settings) *Manager {
	m := &Manager{
		registry:   NewRegistry(settings.ProviderPriority()),
		settings:   settings,
		retryDelay: time.Second,
	}
	m.health = NewHealthTracker(func(name string) {
		if settings.NotifyRecovery() {
			logger.Info(context.Background(), "Provider back online", "provider", name)
		}
	})
	return m
}

// Register adds a provider, optionally authenticating it first. Expected
// authentication failures reject the registration without error.
func (m *Manager) Register(ctx context.Context, p interfaces.DataProvider, credentials map[string]string) error {
	if credentials != nil {
		ok, err := p.Authenticate(ctx, credentials)
		if err != nil {
			return err
		}
		if !ok {
			logger.Warn(ctx, "Provider authentication rejected, not registering", "provider", p.Name())
			return NewAuthError(p.Name(), "")
		}
	}

	if err := m.registry.Register(p); err != nil {
		return err
	}
	m.health.Track(p.Name())

	m.mu.Lock()
	if m.current == "" {
		m.current = strings.ToLower(m.settings.DefaultProvider())
	}
	m.mu.Unlock()

	logger.Info(ctx, "Registered data provider", "provider", p.Name())
	return nil
}

// SetPreferredProvider pins the manager to a provider until changed. The pin
// survives failed calls (the manager cascades away and comes back when the
// pinned provider recovers) but not process restarts.
func (m *Manager) SetPreferredProvider(name string) bool {
	name = strings.ToLower(name)
	if _, ok := m.registry.Get(name); !ok {
		return false
	}

	m.mu.Lock()
	m.preferred = name
	m.current = name
	m.mu.Unlock()

	logger.Info(context.Background(), "Preferred provider set", "provider", name)
	return true
}

// ClearPreferredProvider removes the manual pin.
func (m *Manager) ClearPreferredProvider() {
	m.mu.Lock()
	m.preferred = ""
	m.mu.Unlock()
}

// CurrentProviderName returns the provider serving the next request.
func (m *Manager) CurrentProviderName() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// usable reports whether a provider may be selected: registered, not failed
// and passing its own availability gate.
func (m *Manager) usable(name string) bool {
	p, ok := m.registry.Get(name)
	if !ok {
		return false
	}
	return m.health.Healthy(name) && p.Available()
}

// selectBestProvider establishes the current provider:
//  1. the manual pin, when usable;
//  2. with no pin, the configured default, when registered and usable;
//  3. the first usable provider in priority order;
//  4. last resort: any registered provider passing its availability gate,
//     health notwithstanding;
//  5. otherwise there is no current provider.
func (m *Manager) selectBestProvider() bool {
	m.mu.Lock()
	preferred := m.preferred
	m.mu.Unlock()

	set := func(name string) bool {
		m.mu.Lock()
		if m.current != name {
			logger.Debug(context.Background(), "Selecting provider", "provider", name)
			m.current = name
		}
		m.mu.Unlock()
		return true
	}

	if preferred != "" && m.usable(preferred) {
		return set(preferred)
	}

	def := strings.ToLower(m.settings.DefaultProvider())
	if preferred == "" && def != "" {
		if _, ok := m.registry.Get(def); ok && m.usable(def) {
			return set(def)
		}
	}

	for _, name := range m.registry.Order() {
		if m.usable(name) {
			return set(name)
		}
	}

	for _, name := range m.registry.Order() {
		p, _ := m.registry.Get(name)
		if p != nil && p.Available() {
			logger.Warn(context.Background(), "Using last resort provider", "provider", name)
			return set(name)
		}
	}

	m.mu.Lock()
	m.current = ""
	m.mu.Unlock()
	return false
}

// switchToNext advances to the next usable provider strictly after the
// current one's position in the priority order. Earlier providers are never
// revisited within one operation.
func (m *Manager) switchToNext() bool {
	if !m.settings.FailoverEnabled() {
		logger.Debug(context.Background(), "Failover disabled, not switching")
		return false
	}

	order := m.registry.Order()
	m.mu.Lock()
	current := m.current
	m.mu.Unlock()

	idx := -1
	for i, name := range order {
		if name == current {
			idx = i
			break
		}
	}

	for i := idx + 1; i < len(order); i++ {
		if m.usable(order[i]) {
			logger.Info(context.Background(), "Switching provider", "from", current, "to", order[i])
			m.mu.Lock()
			m.current = order[i]
			m.mu.Unlock()
			return true
		}
	}
	return false
}

// retryAttempts clamps the configured budget to [1, 10].
func (m *Manager) retryAttempts() int {
	n := m.settings.RetryAttempts()
	if n < 1 {
		return 1
	}
	if n > 10 {
		return 10
	}
	return n
}

// execute runs op against the current provider with retry-then-cascade
// semantics:
//
//   - rate limit and auth errors bypass local retry and switch immediately,
//     since retrying an exhausted or unauthenticated provider is pointless;
//   - not-found propagates untouched and records neither failure nor switch;
//   - transient errors retry the same provider up to the budget, then switch.
//
// With N registered providers the cascade visits at most N providers before
// surfacing the last error encountered.
func (m *Manager) execute(ctx context.Context, opName string, op func(ctx context.Context, p interfaces.DataProvider) (any, error)) (any, string, error) {
	if m.registry.Len() == 0 {
		return nil, "", &Error{Provider: "manager", Kind: KindTransient, Message: "no providers registered"}
	}
	if !m.selectBestProvider() {
		return nil, "", &Error{Provider: "manager", Kind: KindTransient, Message: "no available providers"}
	}

	budget := m.retryAttempts()
	var lastErr error

	for hops := 0; hops < m.registry.Len(); hops++ {
		name := m.CurrentProviderName()
		p, ok := m.registry.Get(name)
		if !ok {
			break
		}

		for attempt := 1; attempt <= budget; attempt++ {
			logger.Debug(ctx, "Trying provider operation", "op", opName, "provider", name, "attempt", attempt)

			result, err := op(ctx, p)
			if err == nil {
				m.health.RecordSuccess(name)
				return result, name, nil
			}
			if IsNotFound(err) {
				logger.Debug(ctx, "No data at provider", "op", opName, "provider", name)
				return nil, name, err
			}

			m.health.RecordFailure(name)
			lastErr = err

			if IsRateLimit(err) || IsAuth(err) {
				logger.Warn(ctx, "Provider unusable, switching immediately",
					"op", opName, "provider", name, "error", err)
				break
			}

			logger.Warn(ctx, "Provider operation failed", "op", opName, "provider", name,
				"attempt", attempt, "error", err)
			if attempt < budget {
				select {
				case <-ctx.Done():
					return nil, name, ctx.Err()
				case <-time.After(m.retryDelay):
				}
			}
		}

		if !m.switchToNext() {
			break
		}
	}

	logger.Error(ctx, "All providers failed", "op", opName)
	if lastErr != nil {
		return nil, "", lastErr
	}
	return nil, "", &Error{Provider: "manager", Kind: KindTransient, Message: "all providers failed for " + opName}
}

// providerSymbol asks the provider for its native representation when it
// normalizes symbols; otherwise the canonical form passes through.
func providerSymbol(p interfaces.DataProvider, symbol, exchange string) string {
	if n, ok := p.(interfaces.SymbolNormalizer); ok {
		return n.NormalizeSymbol(symbol, exchange)
	}
	return symbols.Canonical(symbol)
}

// StockInfo fetches instrument metadata, failing over as needed. A nil
// result without error means no provider knows the symbol.
func (m *Manager) StockInfo(ctx context.Context, symbol, exchange string) (*types.StockInfo, error) {
	canonical := symbols.Canonical(symbol)

	result, served, err := m.execute(ctx, "stock_info", func(ctx context.Context, p interfaces.DataProvider) (any, error) {
		return p.StockInfo(ctx, canonical)
	})
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	info, _ := result.(*types.StockInfo)
	if info == nil {
		return nil, nil
	}
	// The canonical symbol goes back to the caller regardless of which
	// provider served the request.
	info.Symbol = canonical
	info.Exchange = exchange
	info.Provider = served
	if info.ProviderSymbol == "" {
		if p, ok := m.registry.Get(served); ok {
			info.ProviderSymbol = providerSymbol(p, canonical, exchange)
		}
	}
	return info, nil
}

// HistoricalData fetches OHLCV bars, failing over as needed. A nil result
// without error means no provider has data for the symbol.
func (m *Manager) HistoricalData(ctx context.Context, symbol string, from, to time.Time, interval types.Interval, exchange string) (*types.HistoricalResult, error) {
	canonical := symbols.Canonical(symbol)

	result, served, err := m.execute(ctx, "historical_data", func(ctx context.Context, p interfaces.DataProvider) (any, error) {
		return p.HistoricalData(ctx, canonical, from, to, interval)
	})
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	bars, _ := result.([]types.Bar)
	if len(bars) == 0 {
		return nil, nil
	}

	res := &types.HistoricalResult{
		Symbol:   canonical,
		Exchange: exchange,
		Interval: interval,
		Provider: served,
		Bars:     bars,
	}
	if p, ok := m.registry.Get(served); ok {
		res.ProviderSymbol = providerSymbol(p, canonical, exchange)
	}
	return res, nil
}

// RealTimeData fetches quotes for a batch of symbols. Results are keyed by
// canonical symbol whatever form the serving provider returned them in.
func (m *Manager) RealTimeData(ctx context.Context, syms []string, exchange string) (map[string]types.Quote, error) {
	canonical := make([]string, 0, len(syms))
	for _, s := range syms {
		canonical = append(canonical, symbols.Canonical(s))
	}

	result, served, err := m.execute(ctx, "real_time_data", func(ctx context.Context, p interfaces.DataProvider) (any, error) {
		return p.RealTimeData(ctx, canonical)
	})
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	raw, _ := result.(map[string]types.Quote)
	if raw == nil {
		return nil, nil
	}

	var denorm interfaces.SymbolNormalizer
	if p, ok := m.registry.Get(served); ok {
		denorm, _ = p.(interfaces.SymbolNormalizer)
	}

	out := make(map[string]types.Quote, len(raw))
	for _, want := range canonical {
		for key, q := range raw {
			match := symbols.Canonical(key) == want
			if !match && denorm != nil {
				match = symbols.Canonical(denorm.DenormalizeSymbol(key)) == want
			}
			if match {
				q.Symbol = want
				q.Exchange = exchange
				q.Provider = served
				out[want] = q
				break
			}
		}
	}
	return out, nil
}

// SearchStocks runs a free-text search, failing over as needed. Symbols in
// the results are denormalized back to canonical form.
func (m *Manager) SearchStocks(ctx context.Context, query string) ([]types.SearchResult, error) {
	result, served, err := m.execute(ctx, "search_stocks", func(ctx context.Context, p interfaces.DataProvider) (any, error) {
		return p.SearchStocks(ctx, query)
	})
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	hits, _ := result.([]types.SearchResult)

	var denorm interfaces.SymbolNormalizer
	if p, ok := m.registry.Get(served); ok {
		denorm, _ = p.(interfaces.SymbolNormalizer)
	}
	for i := range hits {
		if hits[i].ProviderSymbol == "" {
			hits[i].ProviderSymbol = hits[i].Symbol
		}
		if denorm != nil {
			hits[i].Symbol = denorm.DenormalizeSymbol(hits[i].Symbol)
		}
		hits[i].Symbol = symbols.Canonical(hits[i].Symbol)
		hits[i].Provider = served
	}
	return hits, nil
}

// StartupHealthCheck probes every registered provider's availability once,
// seeds health from the outcome and establishes the initial current
// provider. Called on demand, not on every operation.
func (m *Manager) StartupHealthCheck(ctx context.Context) {
	logger.Info(ctx, "Running startup health check", "providers", m.registry.Len())

	m.registry.Each(func(name string, p interfaces.DataProvider) {
		if p.Available() {
			m.health.SetHealth(name, HealthHealthy)
			logger.Info(ctx, "Provider healthy", "provider", name)
		} else {
			m.health.SetHealth(name, HealthFailed)
			logger.Warn(ctx, "Provider failed health check", "provider", name)
		}
	})

	if m.selectBestProvider() {
		logger.Info(ctx, "Starting with provider", "provider", m.CurrentProviderName())
	} else {
		logger.Error(ctx, "No available providers after health check")
	}
}

// ResetHealth returns one provider (or all, for empty name) to unknown.
func (m *Manager) ResetHealth(name string) {
	m.health.Reset(strings.ToLower(name))
	logger.Info(context.Background(), "Provider health reset", "provider", name)
}

// Status assembles the full administrative status report.
func (m *Manager) Status() EnhancedStatus {
	m.mu.Lock()
	current, preferred := m.current, m.preferred
	m.mu.Unlock()

	st := EnhancedStatus{
		CurrentProvider:   current,
		PreferredProvider: preferred,
		TotalProviders:    m.registry.Len(),
		ProviderOrder:     m.registry.Order(),
		FailoverEnabled:   m.settings.FailoverEnabled(),
		Providers:         make(map[string]ProviderStatus),
	}
	m.registry.Each(func(name string, p interfaces.DataProvider) {
		st.Providers[name] = ProviderStatus{
			ProviderStatusInfo: p.StatusInfo(),
			HealthRecord:       m.health.Get(name),
		}
	})
	return st
}

// Health exposes the tracker for administrative tooling.
func (m *Manager) Health(name string) HealthRecord {
	return m.health.Get(name)
}
