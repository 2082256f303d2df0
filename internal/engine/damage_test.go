package engine

import (
	"strings"
	"testing"

	"github.com/MRamiBalles/zpvip/internal/config"
	"github.com/MRamiBalles/zpvip/internal/events"
	"github.com/MRamiBalles/zpvip/internal/world"
)

func fall(victim int) *events.DamageInfo {
	return &events.DamageInfo{
		Victim:   events.Entity{Valid: true, PlayerPawn: true, Controller: victim, DesignerName: "player"},
		AmmoType: events.NoAmmo,
		Damage:   35,
	}
}

func TestFallDamageSuppression(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.human(1, true)
	h.human(2, true)

	cases := []struct {
		name     string
		attacker events.Entity
		want     float64
	}{
		{"no attacker", events.Entity{}, 0},
		{"own pawn", events.Entity{Valid: true, PlayerPawn: true, Controller: 1}, 0},
		{"world brush", events.Entity{Valid: true, DesignerName: "trigger_hurt", Controller: world.NoPlayer}, 0},
		{"another player", events.Entity{Valid: true, PlayerPawn: true, Controller: 2}, 35},
	}
	for _, tc := range cases {
		info := fall(1)
		info.Attacker = tc.attacker
		h.engine.HandleDamage(info)
		if info.Damage != tc.want {
			t.Errorf("%s: expected damage %.0f, got %.0f", tc.name, tc.want, info.Damage)
		}
	}
}

func TestFallDamageOnlyForVIPHumans(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.human(1, false)
	h.zombie(2, true)

	for _, id := range []int{1, 2} {
		info := fall(id)
		h.engine.HandleDamage(info)
		if info.Damage != 35 {
			t.Errorf("Slot %d: fall damage should not be suppressed, got %.0f", id, info.Damage)
		}
	}

	h2 := newHarness(t, nil, func(c *config.Config) { c.NoFallDamage = false })
	h2.human(1, true)
	info := fall(1)
	h2.engine.HandleDamage(info)
	if info.Damage != 35 {
		t.Errorf("Disabled no-fall perk still suppressed damage")
	}
}

func TestWeaponSelfDamageNotSuppressed(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.human(1, true)

	info := fall(1)
	info.AmmoType = 3 // own grenade launcher, not environmental
	h.engine.HandleDamage(info)
	if info.Damage != 35 {
		t.Errorf("Weapon damage was zeroed: %.0f", info.Damage)
	}
}

func TestMultiplierApplies(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.human(1, true)
	h.zombie(2, false)

	info := hit(1, 2, 100)
	h.engine.HandleDamage(info)
	if info.Damage != 150.0 {
		t.Errorf("Expected 150.0, got %.2f", info.Damage)
	}
	entries := h.journal.ByPlayer(1)
	if len(entries) != 1 || entries[0].Type != events.EntryMultiplied || entries[0].Amount != 150 {
		t.Errorf("Expected one multiplied-damage entry of 150, got %+v", entries)
	}
}

func TestMultiplierConditions(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.human(1, true)
	h.human(2, false)
	h.zombie(3, true)
	h.zombie(4, false)
	h.human(5, true)

	cases := []struct {
		name     string
		attacker int
		victim   int
	}{
		{"regular human vs zombie", 2, 4},
		{"VIP zombie vs zombie", 3, 4},
		{"VIP zombie vs human", 3, 1},
		{"VIP human vs human", 1, 5},
	}
	for _, tc := range cases {
		info := hit(tc.attacker, tc.victim, 100)
		h.engine.HandleDamage(info)
		if info.Damage != 100 {
			t.Errorf("%s: damage should be unscaled, got %.1f", tc.name, info.Damage)
		}
	}
}

func TestMultiplierSkipsHEGrenade(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.human(1, true)
	h.zombie(2, false)

	info := hit(1, 2, 100)
	info.Inflictor = events.Entity{Valid: true, DesignerName: "HEGrenade_Projectile", Controller: world.NoPlayer}
	h.engine.HandleDamage(info)
	if info.Damage != 100 {
		t.Errorf("HE grenade damage was scaled: %.1f", info.Damage)
	}

	h2 := newHarness(t, nil, func(c *config.Config) { c.ExcludeHEGrenade = false })
	h2.human(1, true)
	h2.zombie(2, false)
	info = hit(1, 2, 100)
	info.Inflictor = events.Entity{Valid: true, DesignerName: "hegrenade_projectile"}
	h2.engine.HandleDamage(info)
	if info.Damage != 150 {
		t.Errorf("Exclusion disabled: expected 150, got %.1f", info.Damage)
	}
}

func TestMultiplierDisabledAtOrBelowOne(t *testing.T) {
	for _, mult := range []float64{1.0, 0.5} {
		h := newHarness(t, nil, func(c *config.Config) { c.DamageMultiplier = mult })
		h.human(1, true)
		h.zombie(2, false)
		info := hit(1, 2, 100)
		h.engine.HandleDamage(info)
		if info.Damage != 100 {
			t.Errorf("Multiplier %.1f: expected 100, got %.1f", mult, info.Damage)
		}
	}
}

func TestDamageRewardExample(t *testing.T) {
	p := newFakeProvider()
	h := newHarness(t, p, func(c *config.Config) { c.DamageMultiplier = 1.0 })
	h.human(1, true)
	h.zombie(2, false)

	h.engine.HandleDamage(hit(1, 2, 300))
	if p.packs[1] != 0 {
		t.Fatalf("Paid out early: %d", p.packs[1])
	}
	h.engine.HandleDamage(hit(1, 2, 250))
	if p.packs[1] != 1 {
		t.Fatalf("Expected 1 pack after 550 damage, got %d", p.packs[1])
	}
	if s, _ := h.engine.Store().Peek(1); s.DamageAccumulator != 50 {
		t.Errorf("Expected remainder 50, got %d", s.DamageAccumulator)
	}
	h.engine.HandleDamage(hit(1, 2, 10))
	if p.packs[1] != 1 {
		t.Errorf("Expected total 1 pack, got %d", p.packs[1])
	}
	if s, _ := h.engine.Store().Peek(1); s.DamageAccumulator != 60 {
		t.Errorf("Expected remainder 60, got %d", s.DamageAccumulator)
	}

	chats := h.world.Chats(1)
	if len(chats) == 0 || chats[len(chats)-1] != "[VIP] +1 Ammo Packs (VIP) | Total: 1" {
		t.Errorf("Unexpected reward notice %v", chats)
	}
}

func TestDamageRewardUsesMultipliedDamage(t *testing.T) {
	p := newFakeProvider()
	h := newHarness(t, p, nil)
	h.human(1, true)
	h.zombie(2, false)

	// 400 * 1.5 = 600 -> one pack, 100 carried.
	h.engine.HandleDamage(hit(1, 2, 400))
	if p.packs[1] != 1 {
		t.Errorf("Expected 1 pack, got %d", p.packs[1])
	}
	if s, _ := h.engine.Store().Peek(1); s.DamageAccumulator != 100 {
		t.Errorf("Expected remainder 100, got %d", s.DamageAccumulator)
	}
}

func TestDamageRewardChunkingInvariant(t *testing.T) {
	chunkings := [][]float64{
		{1234},
		{617, 617},
		{100, 200, 300, 400, 234},
		{499, 1, 499, 1, 234},
	}
	for _, chunks := range chunkings {
		p := newFakeProvider()
		h := newHarness(t, p, func(c *config.Config) {
			c.DamageMultiplier = 1.0
			c.DamageRewardThreshold = 500
			c.DamageRewardAmount = 3
		})
		h.human(1, true)
		h.zombie(2, false)
		for _, d := range chunks {
			h.engine.HandleDamage(hit(1, 2, d))
		}
		if p.packs[1] != 6 {
			t.Errorf("%v: expected floor(1234/500)*3 = 6 packs, got %d", chunks, p.packs[1])
		}
		if s, _ := h.engine.Store().Peek(1); s.DamageAccumulator != 234 {
			t.Errorf("%v: expected remainder 234, got %d", chunks, s.DamageAccumulator)
		}
	}
}

func TestDamageRewardDisabledDoesNotTrack(t *testing.T) {
	for _, tweak := range []func(*config.Config){
		func(c *config.Config) { c.DamageRewardThreshold = 0 },
		func(c *config.Config) { c.DamageRewardAmount = 0 },
	} {
		h := newHarness(t, nil, tweak)
		h.human(1, true)
		h.zombie(2, false)
		h.engine.HandleDamage(hit(1, 2, 1000))
		if s, ok := h.engine.Store().Peek(1); ok && s.DamageAccumulator != 0 {
			t.Errorf("Accumulator tracked while disabled: %d", s.DamageAccumulator)
		}
		for _, msg := range h.world.Chats(1) {
			if strings.Contains(msg, "Ammo") || strings.Contains(msg, "AP") {
				t.Errorf("Reward paid while disabled: %q", msg)
			}
		}
	}
}

func TestDamageIgnoresInvalidEntities(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.human(1, true)
	h.zombie(2, false)

	h.engine.HandleDamage(nil)

	info := hit(1, 9, 100) // victim slot empty
	h.engine.HandleDamage(info)
	if info.Damage != 100 {
		t.Errorf("Damage to unknown victim was modified")
	}

	info = hit(9, 2, 100) // attacker slot empty
	h.engine.HandleDamage(info)
	if info.Damage != 100 {
		t.Errorf("Damage from unknown attacker was modified")
	}
}
