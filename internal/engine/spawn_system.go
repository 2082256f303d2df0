package engine

import (
	"fmt"
	"strconv"

	"github.com/MRamiBalles/zpvip/internal/domain/rules"
	"github.com/MRamiBalles/zpvip/internal/events"
	"github.com/MRamiBalles/zpvip/internal/platform/logger"
	"github.com/MRamiBalles/zpvip/internal/platform/metrics"
	"github.com/MRamiBalles/zpvip/internal/world"
)

// SpawnSystem hands out spawn perks: armor floor, a full set of extra
// jumps and the once-per-round join announcement.
type SpawnSystem struct {
	env    *Env
	logger *logger.Logger
}

// NewSpawnSystem creates the spawn perk system.
func NewSpawnSystem(env *Env, log *logger.Logger) *SpawnSystem {
	return &SpawnSystem{env: env, logger: log}
}

// OnPlayerSpawn drops stale jump state right away and applies the perks one
// scheduling step later, once the pawn exists.
func (ss *SpawnSystem) OnPlayerSpawn(event events.GameEvent) {
	payload, ok := event.Payload.(events.SpawnPayload)
	if !ok {
		ss.logger.Error("Failed to parse SpawnPayload")
		return
	}
	p, ok := ss.env.livePlayer(payload.PlayerID)
	if !ok {
		return
	}

	ss.env.Store.ResetJump(p.ID())
	ss.env.Scheduler.Defer(p, ss.applySpawnPerks)
}

func (ss *SpawnSystem) applySpawnPerks(p world.Player) {
	if !ss.env.eligible(p) {
		return
	}
	pawn := p.Pawn()
	if pawn == nil || !pawn.IsValid() {
		return
	}

	cfg := ss.env.Config.Current()
	id := p.ID()

	if current := pawn.Armor(); cfg.ArmorAmount > 0 {
		if raised := rules.ClampArmor(current, cfg.ArmorAmount); raised != current {
			pawn.SetArmor(raised)
			ss.env.record(events.EntryArmor, id, raised, "spawn")
		}
	}

	state := ss.env.Store.Get(id)
	if cfg.JumpsEnabled() {
		state.SetCharges(cfg.ExtraJumps, cfg.ExtraJumps)
	}

	if cfg.JoinAnnounceEnabled && state.MarkAnnounced() {
		name := p.Name()
		if name == "" {
			name = "Player"
		}
		sent := world.Broadcast(ss.env.World, fmt.Sprintf("%s VIP %s has joined the game!", cfg.ChatPrefix, name))
		metrics.Get().RecordAnnouncement()
		ss.env.record(events.EntryAnnounce, id, sent, name)
		ss.logger.Event("VIP_ANNOUNCE", strconv.Itoa(id), name)
	}
}
