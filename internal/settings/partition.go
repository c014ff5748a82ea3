package settings

import (
	"sync"

	"golang.org/x/exp/slices"
)

// Reserved keys of the per-client settings message. A host named like one of
// these cannot be addressed by a settings fragment.
const (
	LocalKey  = "local"
	GlobalKey = "global"
)

// Partition holds the settings each connected host declared, plus a handle
// to the single global configuration shared by every host.
//
// Architecture:
//
//	┌───────────────────────────────────────┐
//	│               Partition               │
//	├───────────────────────────────────────┤
//	│ hosts:  "10.0.0.4" → {theme: dark}    │
//	│         "10.0.0.7" → {security: ...}  │
//	│ global: Global store (memory / file)  │
//	├───────────────────────────────────────┤
//	│ PublicView: hosts minus private ones  │
//	│ ViewFor(h): PublicView - h            │
//	│             + local: hosts[h]         │
//	│             + global: global          │
//	└───────────────────────────────────────┘
//
// Thread Safety:
// All methods are safe for concurrent use. Returned objects are deep copies.
type Partition struct {
	mu     sync.RWMutex              // Protects hosts
	hosts  map[string]map[string]any // host id -> declared settings
	global Global                    // shared configuration store
}

// NewPartition creates an empty partition backed by the given global store.
// A nil store falls back to an in-memory one.
func NewPartition(global Global) *Partition {
	if global == nil {
		global = NewMemoryGlobal(nil)
	}
	return &Partition{
		hosts:  make(map[string]map[string]any),
		global: global,
	}
}

// Merge folds fragment into the entry for host, creating the entry on first
// use. See Merge for the per-key rules.
func (p *Partition) Merge(host string, fragment map[string]any) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.hosts[host] = Merge(p.hosts[host], fragment)
}

// MergeGlobal folds fragment into the shared global configuration.
func (p *Partition) MergeGlobal(fragment map[string]any) error {
	return p.global.Merge(fragment)
}

// Global returns a copy of the shared global configuration.
func (p *Partition) Global() map[string]any {
	return p.global.Get()
}

// Get returns a copy of the entry for host.
func (p *Partition) Get(host string) (map[string]any, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	entry, ok := p.hosts[host]
	if !ok {
		return nil, false
	}
	return Clone(entry), true
}

// Remove deletes every setting declared by host. No error if absent.
func (p *Partition) Remove(host string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.hosts, host)
}

// Hosts returns the hosts with an entry, sorted.
func (p *Partition) Hosts() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	hosts := make([]string, 0, len(p.hosts))
	for host := range p.hosts {
		hosts = append(hosts, host)
	}
	slices.Sort(hosts)
	return hosts
}

// PublicView returns every host entry except those flagged private through
// security.options.private. Redaction is all-or-nothing per host.
func (p *Partition) PublicView() map[string]any {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.publicViewLocked()
}

func (p *Partition) publicViewLocked() map[string]any {
	view := make(map[string]any, len(p.hosts))
	for host, entry := range p.hosts {
		if IsPrivate(entry) {
			continue
		}
		view[host] = Clone(entry)
	}
	return view
}

// ViewFor builds the settings message sent to a client on host: the public
// view without the recipient's own key, the recipient's full entry under
// "local" (private or not), and the global configuration under "global".
func (p *Partition) ViewFor(host string) map[string]any {
	p.mu.RLock()
	view := p.publicViewLocked()
	local := Clone(p.hosts[host])
	p.mu.RUnlock()

	delete(view, host)
	view[LocalKey] = local
	view[GlobalKey] = p.global.Get()
	return view
}
