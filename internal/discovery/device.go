package discovery

import (
	"maps"
	"slices"
)

// DeviceID names one attached device for the lifetime of its connection.
type DeviceID string

// DeviceSet is the set of devices reported by one discovery query.
type DeviceSet map[DeviceID]struct{}

// NewDeviceSet builds a set from the given identifiers.
func NewDeviceSet(ids ...DeviceID) DeviceSet {
	set := make(DeviceSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// Has reports whether id is in the set.
func (s DeviceSet) Has(id DeviceID) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the identifiers in lexical order.
func (s DeviceSet) Sorted() []DeviceID {
	return slices.Sorted(maps.Keys(s))
}

// Equal reports whether both sets hold the same identifiers.
func (s DeviceSet) Equal(other DeviceSet) bool {
	if len(s) != len(other) {
		return false
	}
	for id := range s {
		if !other.Has(id) {
			return false
		}
	}
	return true
}

// Diff returns the identifiers present only in next (added) and only in s (removed).
func (s DeviceSet) Diff(next DeviceSet) (added, removed []DeviceID) {
	for id := range next {
		if !s.Has(id) {
			added = append(added, id)
		}
	}
	for id := range s {
		if !next.Has(id) {
			removed = append(removed, id)
		}
	}
	slices.Sort(added)
	slices.Sort(removed)
	return added, removed
}

// Clone returns an independent copy of the set.
func (s DeviceSet) Clone() DeviceSet {
	return maps.Clone(s)
}
