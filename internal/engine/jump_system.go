package engine

import (
	"fmt"
	"strconv"

	"github.com/MRamiBalles/zpvip/internal/events"
	"github.com/MRamiBalles/zpvip/internal/platform/logger"
	"github.com/MRamiBalles/zpvip/internal/platform/metrics"
	"github.com/MRamiBalles/zpvip/internal/world"
)

// JumpSystem runs the extra-jump machine once per tick for every living
// VIP human.
//
// Ground contact is a level signal and refills charges on every tick it is
// seen. The jump button is edge-triggered: a held button spends at most one
// charge.
type JumpSystem struct {
	env    *Env
	logger *logger.Logger
}

// NewJumpSystem creates the extra-jump system.
func NewJumpSystem(env *Env, log *logger.Logger) *JumpSystem {
	return &JumpSystem{env: env, logger: log}
}

// OnTick evaluates every living player independently.
func (js *JumpSystem) OnTick(event events.GameEvent) {
	cfg := js.env.Config.Current()
	if !cfg.JumpsEnabled() {
		return
	}

	for _, p := range world.Alive(js.env.World) {
		if !js.env.eligible(p) {
			continue
		}
		pawn := p.Pawn()
		if pawn == nil || !pawn.IsValid() {
			continue
		}

		id := p.ID()
		state := js.env.Store.Get(id)
		pressed := p.Buttons().Has(world.ButtonJump)

		if pawn.OnGround() {
			state.SetCharges(cfg.ExtraJumps, cfg.ExtraJumps)
			state.ObserveJump(pressed)
			continue
		}

		if !state.JumpChargesSet || state.JumpCharges <= 0 {
			continue
		}
		if !state.ObserveJump(pressed) {
			continue
		}
		if !state.ConsumeCharge() {
			continue
		}

		vel := pawn.Velocity()
		vel.Z = cfg.JumpVelocity
		pawn.SetVelocity(vel)

		metrics.Get().RecordJump()
		js.env.record(events.EntryJump, id, state.JumpCharges, "")
		js.logger.Event("EXTRA_JUMP", strconv.Itoa(id), fmt.Sprintf("%d left", state.JumpCharges))
	}
}
