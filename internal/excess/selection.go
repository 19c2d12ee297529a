package excess

import (
	"sort"

	"github.com/gustavo-detarso/atestmed-defender-sub000/domain/core"
)

// Selection is the subset of entities under scrutiny.
type Selection map[core.EntityID]struct{}

// NewSelection builds a selection from ids
func NewSelection(ids ...core.EntityID) Selection {
	sel := make(Selection, len(ids))
	for _, id := range ids {
		sel[id] = struct{}{}
	}
	return sel
}

// Add inserts id
func (s Selection) Add(id core.EntityID) {
	s[id] = struct{}{}
}

// Contains reports membership
func (s Selection) Contains(id core.EntityID) bool {
	_, ok := s[id]
	return ok
}

// Len returns the number of selected ids
func (s Selection) Len() int {
	return len(s)
}

// IDs returns the selected ids sorted
func (s Selection) IDs() []core.EntityID {
	ids := make([]core.EntityID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
