package network

import (
	"github.com/automoto/physrep/shared/messages"
	"github.com/yohamta/donburi"
)

// EntityMap maps origin object IDs to local entities.
type EntityMap struct {
	local map[messages.ObjectID]donburi.Entity
}

// NewEntityMap creates an empty map.
func NewEntityMap() *EntityMap {
	return &EntityMap{local: make(map[messages.ObjectID]donburi.Entity)}
}

// Bind maps id to entity. If id was already bound to another entity, that
// entity is returned so the caller can detach it.
func (m *EntityMap) Bind(id messages.ObjectID, entity donburi.Entity) (replaced donburi.Entity, ok bool) {
	prev, exists := m.local[id]
	m.local[id] = entity
	if exists && prev != entity {
		return prev, true
	}
	return donburi.Null, false
}

// Unbind removes the mapping for id, but only while it still points at
// entity; a newer binding for the same id is left in place.
func (m *EntityMap) Unbind(id messages.ObjectID, entity donburi.Entity) {
	if cur, ok := m.local[id]; ok && cur == entity {
		delete(m.local, id)
	}
}

// Lookup returns the local entity for id.
func (m *EntityMap) Lookup(id messages.ObjectID) (donburi.Entity, bool) {
	e, ok := m.local[id]
	return e, ok
}

// Len returns the number of bound IDs.
func (m *EntityMap) Len() int {
	return len(m.local)
}
