package player

import "testing"

func TestStoreLazyCreate(t *testing.T) {
	s := NewStore()
	if _, ok := s.Peek(3); ok {
		t.Fatalf("expected no state before first use")
	}

	st := s.Get(3)
	st.DamageAccumulator = 120

	got, ok := s.Peek(3)
	if !ok {
		t.Fatalf("expected state after Get")
	}
	if got.DamageAccumulator != 120 {
		t.Errorf("expected accumulator 120, got %d", got.DamageAccumulator)
	}
	if s.Len() != 1 {
		t.Errorf("expected 1 slot, got %d", s.Len())
	}
}

func TestStoreSlotsAreIndependent(t *testing.T) {
	s := NewStore()
	s.Get(1).DamageAccumulator = 10
	s.Get(2).DamageAccumulator = 20
	s.Get(1).SetCharges(2, 2)

	a, _ := s.Peek(1)
	b, _ := s.Peek(2)
	if a.DamageAccumulator != 10 || b.DamageAccumulator != 20 {
		t.Errorf("slots leaked into each other: %+v %+v", a, b)
	}
	if b.JumpChargesSet {
		t.Errorf("slot 2 should not have jump charges")
	}
}

func TestStoreRemoveResetsEveryField(t *testing.T) {
	s := NewStore()
	st := s.Get(5)
	st.DamageAccumulator = 499
	st.SetCharges(1, 1)
	st.ObserveJump(true)
	st.MarkAnnounced()

	s.Remove(5)

	if _, ok := s.Peek(5); ok {
		t.Fatalf("state must be gone after Remove")
	}
	fresh := s.Get(5)
	if *fresh != (PerkState{}) {
		t.Errorf("reused slot inherited state: %+v", *fresh)
	}
}

func TestStoreClearAll(t *testing.T) {
	s := NewStore()
	for id := 0; id < 8; id++ {
		st := s.Get(id)
		st.DamageAccumulator = id * 10
		st.MarkAnnounced()
	}
	s.ClearAll()

	if s.Len() != 0 {
		t.Fatalf("expected empty store, got %d slots", s.Len())
	}
	for id := 0; id < 8; id++ {
		if !s.Get(id).MarkAnnounced() {
			t.Errorf("slot %d should be announceable again after ClearAll", id)
		}
	}
}

func TestStoreResetJumpKeepsDamage(t *testing.T) {
	s := NewStore()
	st := s.Get(1)
	st.DamageAccumulator = 77
	st.SetCharges(2, 2)
	s.ResetJump(1)

	got, _ := s.Peek(1)
	if got.JumpChargesSet || got.PrevJumpSet {
		t.Errorf("jump state should be cleared: %+v", got)
	}
	if got.DamageAccumulator != 77 {
		t.Errorf("damage should survive a jump reset, got %d", got.DamageAccumulator)
	}
}

func TestStoreEachOrdered(t *testing.T) {
	s := NewStore()
	for _, id := range []int{9, 2, 5} {
		s.Get(id)
	}
	var seen []int
	s.Each(func(id int, _ *PerkState) {
		seen = append(seen, id)
	})
	if len(seen) != 3 || seen[0] != 2 || seen[1] != 5 || seen[2] != 9 {
		t.Errorf("unexpected iteration order %v", seen)
	}
}
