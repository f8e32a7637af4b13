package symbols

import (
	"strings"
	"sync"
)

// Canonical returns the provider-agnostic form of a ticker.
func Canonical(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Mapper is a bidirectional cache between canonical (symbol, exchange) pairs
// and provider-specific symbols. Each provider owns one; the cache is
// unbounded for the process lifetime, which is acceptable at the scale of a
// few hundred NSE tickers.
type Mapper struct {
	forward map[string]string // "SYMBOL|EXCHANGE" -> provider symbol
	reverse map[string]string // provider symbol -> canonical symbol
	mu      sync.RWMutex
}

func NewMapper() *Mapper {
	return &Mapper{
		forward: make(map[string]string),
		reverse: make(map[string]string),
	}
}

func key(symbol, exchange string) string {
	return Canonical(symbol) + "|" + strings.ToUpper(exchange)
}

// Put records the mapping in both directions.
func (m *Mapper) Put(symbol, exchange, providerSymbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.forward[key(symbol, exchange)] = providerSymbol
	m.reverse[providerSymbol] = Canonical(symbol)
}

// Forward returns the cached provider symbol.
func (m *Mapper) Forward(symbol, exchange string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ps, ok := m.forward[key(symbol, exchange)]
	return ps, ok
}

// Reverse returns the cached canonical symbol.
func (m *Mapper) Reverse(providerSymbol string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.reverse[providerSymbol]
	return s, ok
}

// Len reports the number of forward entries.
func (m *Mapper) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.forward)
}

// Clear drops all cached mappings.
func (m *Mapper) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.forward = make(map[string]string)
	m.reverse = make(map[string]string)
}
