package engine

import (
	"fmt"
	"strconv"

	"github.com/MRamiBalles/zpvip/internal/events"
	"github.com/MRamiBalles/zpvip/internal/platform/logger"
)

// DeathSystem pays kill rewards and the happy-hour kill bonuses.
type DeathSystem struct {
	env    *Env
	logger *logger.Logger
}

// NewDeathSystem creates the kill reward system.
func NewDeathSystem(env *Env, log *logger.Logger) *DeathSystem {
	return &DeathSystem{env: env, logger: log}
}

// OnPlayerDeath clears the victim's jump state, then rewards a VIP human
// that killed a zombie.
func (ds *DeathSystem) OnPlayerDeath(event events.GameEvent) {
	payload, ok := event.Payload.(events.DeathPayload)
	if !ok {
		ds.logger.Error("Failed to parse DeathPayload")
		return
	}
	victim, ok := ds.env.livePlayer(payload.VictimID)
	if !ok {
		return
	}
	victimID := victim.ID()
	ds.env.Store.ResetJump(victimID)

	if !ds.env.Classifier.IsOpposingRole(victimID) {
		return
	}
	attacker, ok := ds.env.livePlayer(payload.AttackerID)
	if !ok || !ds.env.eligible(attacker) {
		return
	}

	cfg := ds.env.Config.Current()
	ds.env.Rewards.Grant(attacker, cfg.KillRewardAmount, ReasonKill)

	if !ds.env.happyHour(cfg) {
		return
	}
	if cfg.KillRewardHappyHourBonus {
		ds.env.Rewards.Grant(attacker, cfg.HappyHourBonusAP, ReasonHappyHour)
	}
	if cfg.HappyHourBonusFrags > 0 {
		attacker.AddKills(cfg.HappyHourBonusFrags)
		attacker.AddRankingWins(1)
		ds.env.record(events.EntryBonusFrags, attacker.ID(), cfg.HappyHourBonusFrags, ReasonHappyHour)
		ds.logger.Event("HAPPY_HOUR_FRAGS", strconv.Itoa(attacker.ID()), fmt.Sprintf("+%d frags", cfg.HappyHourBonusFrags))
	}
}
