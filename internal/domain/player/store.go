package player

import (
	"sort"

	"github.com/yohamta/donburi"
	"github.com/yohamta/donburi/filter"
)

// slotData tags a perk entity with the player slot it belongs to.
type slotData struct {
	ID int
}

var (
	slotComponent = donburi.NewComponentType[slotData]()
	perkComponent = donburi.NewComponentType[PerkState]()

	perkQuery = donburi.NewQuery(filter.Contains(slotComponent, perkComponent))
)

// Store owns the PerkState of every player slot. Records live as entities in
// an ECS world and are indexed by slot id, so a slot reused by a new
// connection starts from a fresh entity once Remove has run.
//
// Store is not safe for concurrent use: the engine touches it only from its
// dispatch goroutine.
type Store struct {
	world donburi.World
	slots map[int]donburi.Entity
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		world: donburi.NewWorld(),
		slots: make(map[int]donburi.Entity),
	}
}

// Get returns the mutable state for id, creating it on first use.
func (s *Store) Get(id int) *PerkState {
	entity, ok := s.slots[id]
	if !ok || !s.world.Valid(entity) {
		entity = s.world.Create(slotComponent, perkComponent)
		entry := s.world.Entry(entity)
		slotComponent.SetValue(entry, slotData{ID: id})
		perkComponent.SetValue(entry, PerkState{})
		s.slots[id] = entity
	}
	return perkComponent.Get(s.world.Entry(entity))
}

// Peek returns a copy of the state for id without creating it.
func (s *Store) Peek(id int) (PerkState, bool) {
	entity, ok := s.slots[id]
	if !ok || !s.world.Valid(entity) {
		return PerkState{}, false
	}
	return *perkComponent.Get(s.world.Entry(entity)), true
}

// ResetJump drops jump tracking for id, leaving damage and announce state.
func (s *Store) ResetJump(id int) {
	entity, ok := s.slots[id]
	if !ok || !s.world.Valid(entity) {
		return
	}
	perkComponent.Get(s.world.Entry(entity)).ResetJump()
}

// Remove destroys every record held for id (client disconnect).
func (s *Store) Remove(id int) {
	entity, ok := s.slots[id]
	if !ok {
		return
	}
	delete(s.slots, id)
	if s.world.Valid(entity) {
		s.world.Remove(entity)
	}
}

// ClearAll destroys the records of every slot (round end).
func (s *Store) ClearAll() {
	for id, entity := range s.slots {
		if s.world.Valid(entity) {
			s.world.Remove(entity)
		}
		delete(s.slots, id)
	}
}

// Len returns the number of slots holding state.
func (s *Store) Len() int {
	return len(s.slots)
}

// Each calls fn for every tracked slot in ascending slot order.
func (s *Store) Each(fn func(id int, state *PerkState)) {
	type item struct {
		id    int
		state *PerkState
	}
	var items []item
	perkQuery.Each(s.world, func(entry *donburi.Entry) {
		items = append(items, item{
			id:    slotComponent.Get(entry).ID,
			state: perkComponent.Get(entry),
		})
	})
	sort.Slice(items, func(i, j int) bool { return items[i].id < items[j].id })
	for _, it := range items {
		fn(it.id, it.state)
	}
}
