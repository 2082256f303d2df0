// Package integration locates an optional role/currency provider (the
// zombie-plague core) by name and exposes what it offers as narrow
// capability interfaces. A missing provider, or a provider missing some
// capability, is a normal state: callers fall back to built-in behaviour.
package integration

import (
	"sync"

	"github.com/MRamiBalles/zpvip/internal/events"
	"github.com/MRamiBalles/zpvip/internal/platform/logger"
)

// DefaultProviderName is the name the zombie-plague core registers under.
const DefaultProviderName = "HanZombiePlague"

// Provider is anything registered in the Registry. Capabilities are
// discovered by type assertion.
type Provider interface {
	Name() string
}

// RoleClassifier reports whether a slot currently plays an infected role,
// including special roles a team check cannot see.
type RoleClassifier interface {
	IsInfected(playerID int) (bool, error)
}

// CurrencyCounter is the provider's live ammo-pack counter.
type CurrencyCounter interface {
	Get(playerID int) (int, error)
	Set(playerID int, value int) error
}

// CurrencyProvider hands out the counter. It may return nil until the
// provider has finished initialising.
type CurrencyProvider interface {
	CurrencyCounter() CurrencyCounter
}

// InfectionSource delivers infection notifications.
type InfectionSource interface {
	OnInfect(fn func(events.InfectionPayload)) error
}

// Registry maps provider names to providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds or replaces a provider under its name.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Unregister removes a provider.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.providers, name)
}

// Lookup finds a provider by name.
func (r *Registry) Lookup(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// Capabilities is what was found at startup. Nil fields are absent.
type Capabilities struct {
	Provider  Provider
	Roles     RoleClassifier
	Currency  CurrencyProvider
	Infection InfectionSource
}

// Present reports whether any provider was found.
func (c Capabilities) Present() bool {
	return c.Provider != nil
}

// Counter returns the live currency counter, or nil when unavailable.
// Each call asks the provider again so a late initialisation is picked up.
func (c Capabilities) Counter() CurrencyCounter {
	if c.Currency == nil {
		return nil
	}
	return c.Currency.CurrencyCounter()
}

// Resolve looks name up once and records which capabilities it offers.
func Resolve(r *Registry, name string, log *logger.Logger) Capabilities {
	p, ok := r.Lookup(name)
	if !ok || p == nil {
		log.Warnf("%s API not found. Zombie state falls back to team check (T = zombie), rewards are chat-only.", name)
		return Capabilities{}
	}

	caps := Capabilities{Provider: p}
	caps.Roles, _ = p.(RoleClassifier)
	caps.Currency, _ = p.(CurrencyProvider)
	caps.Infection, _ = p.(InfectionSource)

	bridge := "unavailable (chat-only rewards)"
	if caps.Counter() != nil {
		bridge = "active"
	} else if caps.Currency != nil {
		bridge = "pending (provider not initialised yet)"
	}
	log.Infof("%s API connected. Role classifier: %t, AmmoPacks bridge: %s, infection events: %t",
		name, caps.Roles != nil, bridge, caps.Infection != nil)
	return caps
}
