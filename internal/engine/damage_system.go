package engine

import (
	"strings"

	"github.com/MRamiBalles/zpvip/internal/config"
	"github.com/MRamiBalles/zpvip/internal/domain/rules"
	"github.com/MRamiBalles/zpvip/internal/events"
	"github.com/MRamiBalles/zpvip/internal/platform/logger"
	"github.com/MRamiBalles/zpvip/internal/platform/metrics"
	"github.com/MRamiBalles/zpvip/internal/world"
)

// excludedInflictor is matched case-insensitively against the inflictor's
// designer name when ExcludeHEGrenade is on.
const excludedInflictor = "hegrenade"

// DamageSystem is the pre-damage hook: no fall damage for VIP humans, the
// VIP damage multiplier against zombies and damage-based ammo packs.
type DamageSystem struct {
	env    *Env
	logger *logger.Logger
}

// NewDamageSystem creates the damage hook system.
func NewDamageSystem(env *Env, log *logger.Logger) *DamageSystem {
	return &DamageSystem{env: env, logger: log}
}

// OnTakeDamage may rewrite info.Damage; the host applies whatever value is
// left once it returns.
func (ds *DamageSystem) OnTakeDamage(info *events.DamageInfo) {
	if info == nil || !info.Victim.Valid || !info.Victim.PlayerPawn {
		return
	}
	victim, ok := ds.env.livePlayer(info.Victim.Controller)
	if !ok {
		return
	}

	cfg := ds.env.Config.Current()
	victimID := victim.ID()
	victimZombie := ds.env.Classifier.IsOpposingRole(victimID)

	if !victimZombie && cfg.NoFallDamage && info.AmmoType == events.NoAmmo &&
		ds.env.Classifier.IsPrivileged(victim) && selfInflicted(info) {
		info.Damage = 0
		metrics.Get().RecordFallBlocked()
		ds.env.record(events.EntryFallBlocked, victimID, 0, info.Attacker.DesignerName)
		return
	}

	if !info.Attacker.Valid || !info.Attacker.PlayerPawn {
		return
	}
	attacker, ok := ds.env.livePlayer(info.Attacker.Controller)
	if !ok {
		return
	}
	if !victimZombie || !ds.env.eligible(attacker) {
		return
	}

	ds.applyMultiplier(info, cfg, attacker)
	ds.accumulate(info, cfg, attacker)
}

// selfInflicted reports environmental damage: no attacker, the victim's own
// pawn, or an entity that is not a player.
func selfInflicted(info *events.DamageInfo) bool {
	atk := info.Attacker
	if !atk.Valid {
		return true
	}
	if !atk.PlayerPawn {
		return true
	}
	return atk.Controller != world.NoPlayer && atk.Controller == info.Victim.Controller
}

func (ds *DamageSystem) applyMultiplier(info *events.DamageInfo, cfg *config.Config, attacker world.Player) {
	if !cfg.MultiplierEnabled() {
		return
	}
	if cfg.ExcludeHEGrenade && info.Inflictor.Valid &&
		strings.Contains(strings.ToLower(info.Inflictor.DesignerName), excludedInflictor) {
		return
	}
	info.Damage *= cfg.DamageMultiplier
	metrics.Get().RecordMultipliedHit()
	ds.env.record(events.EntryMultiplied, attacker.ID(), int(info.Damage), "")
	ds.logger.Debugf("Slot %d damage x%.2f -> %.1f", attacker.ID(), cfg.DamageMultiplier, info.Damage)
}

// accumulate reads the damage after the multiplier step, truncated to int.
func (ds *DamageSystem) accumulate(info *events.DamageInfo, cfg *config.Config, attacker world.Player) {
	if !cfg.DamageRewardEnabled() {
		return
	}
	state := ds.env.Store.Get(attacker.ID())
	batches, remainder := rules.SettleDamage(state.DamageAccumulator, int(info.Damage), cfg.DamageRewardThreshold)
	state.DamageAccumulator = remainder
	if batches > 0 {
		ds.env.Rewards.Grant(attacker, batches*cfg.DamageRewardAmount, ReasonDamage)
	}
}
