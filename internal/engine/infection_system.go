package engine

import (
	"github.com/MRamiBalles/zpvip/internal/domain/rules"
	"github.com/MRamiBalles/zpvip/internal/events"
	"github.com/MRamiBalles/zpvip/internal/platform/logger"
	"github.com/MRamiBalles/zpvip/internal/platform/metrics"
	"github.com/MRamiBalles/zpvip/internal/world"
)

// InfectionSystem rewards a VIP zombie for turning a human. It only exists
// for providers that publish infection events.
type InfectionSystem struct {
	env    *Env
	logger *logger.Logger
}

// NewInfectionSystem creates the infection reward system.
func NewInfectionSystem(env *Env, log *logger.Logger) *InfectionSystem {
	return &InfectionSystem{env: env, logger: log}
}

// Available reports whether the provider publishes infection events.
func (is *InfectionSystem) Available() bool {
	return is.env.Caps.Infection != nil
}

// OnPlayerInfect grants the infection ammo packs now and the health bonus
// one scheduling step later.
func (is *InfectionSystem) OnPlayerInfect(event events.GameEvent) {
	if !is.Available() {
		return
	}
	cfg := is.env.Config.Current()
	if !cfg.InfectRewardsEnabled {
		return
	}
	payload, ok := event.Payload.(events.InfectionPayload)
	if !ok {
		is.logger.Error("Failed to parse InfectionPayload")
		return
	}
	infector, ok := is.env.livePlayer(payload.InfectorID)
	if !ok || !is.env.Classifier.IsPrivileged(infector) {
		return
	}

	metrics.Get().RecordInfectionReward()
	is.env.Rewards.Grant(infector, cfg.InfectRewardAP, ReasonInfect)

	if cfg.InfectRewardHealth > 0 {
		is.env.Scheduler.Defer(infector, is.heal)
	}
}

func (is *InfectionSystem) heal(p world.Player) {
	pawn := p.Pawn()
	if pawn == nil || !pawn.IsValid() {
		return
	}
	bonus := is.env.Config.Current().InfectRewardHealth
	before := pawn.Health()
	after := rules.HealCapped(before, bonus, pawn.MaxHealth())
	if after == before {
		return
	}
	pawn.SetHealth(after)
	is.env.record(events.EntryHeal, p.ID(), after-before, ReasonInfect)
}
