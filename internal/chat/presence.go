package chat

import "github.com/johndosdos/huddle/internal/model"

// Presence derives the online list from a Registry.
type Presence struct {
	registry *Registry
}

// NewPresence returns a Presence reading from reg.
func NewPresence(reg *Registry) *Presence {
	return &Presence{registry: reg}
}

// CurrentList returns one entry per registered connection.
func (p *Presence) CurrentList() []model.PresenceEntry {
	profiles := p.registry.List()
	list := make([]model.PresenceEntry, 0, len(profiles))
	for _, prof := range profiles {
		list = append(list, model.PresenceEntry{
			Username: prof.DisplayName,
			Avatar:   prof.Avatar,
			Room:     prof.CurrentRoom,
		})
	}
	return list
}

// BroadcastTo pushes the current list to every live connection.
func (p *Presence) BroadcastTo(t Transport) {
	t.EmitAll(model.EventPresence, p.CurrentList())
}
