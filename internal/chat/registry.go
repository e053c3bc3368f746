package chat

import (
	"sort"
	"sync"

	"github.com/johndosdos/huddle/internal/model"
)

// DefaultRoom is the room every connection lands in after joining.
const DefaultRoom = "general"

// Registry maps connections to profiles and display names to connections.
// A display name maps to at most one connection: the last join wins.
type Registry struct {
	mu       sync.RWMutex
	profiles map[string]model.Profile // connID -> profile
	byName   map[string]string        // displayName -> connID
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		profiles: make(map[string]model.Profile),
		byName:   make(map[string]string),
	}
}

// Join registers connID under displayName in DefaultRoom, overwriting any
// previous profile for connID. If another connection held displayName it
// is dropped from the registry and its old profile is returned as evicted.
func (r *Registry) Join(connID, displayName, avatar string) (profile model.Profile, evicted *model.Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Re-join under a new name releases the old name.
	if prev, ok := r.profiles[connID]; ok && r.byName[prev.DisplayName] == connID {
		delete(r.byName, prev.DisplayName)
	}

	if holder, ok := r.byName[displayName]; ok && holder != connID {
		if old, ok := r.profiles[holder]; ok {
			evicted = &old
		}
		delete(r.profiles, holder)
	}

	profile = model.Profile{
		ConnID:      connID,
		DisplayName: displayName,
		Avatar:      avatar,
		CurrentRoom: DefaultRoom,
	}
	r.profiles[connID] = profile
	r.byName[displayName] = connID

	return profile, evicted
}

// Lookup returns the profile registered for connID.
func (r *Registry) Lookup(connID string) (model.Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.profiles[connID]
	return p, ok
}

// LookupByName returns the connection currently holding displayName.
func (r *Registry) LookupByName(displayName string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	connID, ok := r.byName[displayName]
	return connID, ok
}

// SetRoom moves connID's profile to room. It reports false for an unknown
// connection.
func (r *Registry) SetRoom(connID, room string) (model.Profile, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.profiles[connID]
	if !ok {
		return model.Profile{}, false
	}
	p.CurrentRoom = room
	r.profiles[connID] = p
	return p, true
}

// Remove deletes connID and, if it still owns it, its name mapping. The
// removed profile is returned so the caller can announce the departure.
func (r *Registry) Remove(connID string) (model.Profile, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.profiles[connID]
	if !ok {
		return model.Profile{}, false
	}
	delete(r.profiles, connID)
	if r.byName[p.DisplayName] == connID {
		delete(r.byName, p.DisplayName)
	}
	return p, true
}

// List returns a snapshot of every registered profile ordered by name.
func (r *Registry) List() []model.Profile {
	r.mu.RLock()
	list := make([]model.Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		list = append(list, p)
	}
	r.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		return list[i].DisplayName < list[j].DisplayName
	})
	return list
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.profiles)
}
