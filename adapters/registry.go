package adapters

import (
	"errors"
	"sort"
	"sync"
)

// Registry maps each bidder to its Adapter and default Settings.
//
// It is read on every auction and written rarely, usually at startup. Registering the same bidder
// twice replaces the earlier entry, which lets hosts override the defaults a built-in adapter ships with.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]registryEntry
}

type registryEntry struct {
	adapter  Adapter
	settings Settings
}

func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]registryEntry),
	}
}

// Register adds or replaces the adapter and settings for bidder.
func (r *Registry) Register(bidder string, adapter Adapter, settings Settings) error {
	if bidder == "" {
		return errors.New("bidder name must not be empty")
	}
	if adapter == nil {
		return errors.New("adapter for bidder " + bidder + " must not be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[bidder] = registryEntry{
		adapter:  adapter,
		settings: settings.Clone(),
	}
	return nil
}

// RegisterDefaults replaces the settings for bidder and keeps its adapter, if it has one.
// A bidder with settings but no adapter can't be dispatched until Register is called.
func (r *Registry) RegisterDefaults(bidder string, settings Settings) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry := r.entries[bidder]
	entry.settings = settings.Clone()
	r.entries[bidder] = entry
}

// Lookup returns the adapter and a copy of the settings for bidder. ok is false if the bidder has no adapter.
func (r *Registry) Lookup(bidder string) (adapter Adapter, settings Settings, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, found := r.entries[bidder]
	if !found || entry.adapter == nil {
		return nil, Settings{}, false
	}
	return entry.adapter, entry.settings.Clone(), true
}

// Settings returns a copy of the settings registered for bidder.
func (r *Registry) Settings(bidder string) (Settings, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, found := r.entries[bidder]
	if !found {
		return Settings{}, false
	}
	return entry.settings.Clone(), true
}

// Bidders returns the names of all bidders with an adapter, sorted.
func (r *Registry) Bidders() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bidders := make([]string, 0, len(r.entries))
	for bidder, entry := range r.entries {
		if entry.adapter != nil {
			bidders = append(bidders, bidder)
		}
	}
	sort.Strings(bidders)
	return bidders
}

// Unregister removes the bidder. It returns false if the bidder wasn't registered.
func (r *Registry) Unregister(bidder string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, found := r.entries[bidder]
	delete(r.entries, bidder)
	return found
}

// Clear removes every bidder. Mostly useful to isolate tests.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]registryEntry)
}
