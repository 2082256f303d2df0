package engine

import (
	"time"

	"github.com/MRamiBalles/zpvip/internal/config"
	"github.com/MRamiBalles/zpvip/internal/domain/player"
	"github.com/MRamiBalles/zpvip/internal/events"
	"github.com/MRamiBalles/zpvip/internal/integration"
	"github.com/MRamiBalles/zpvip/internal/world"
)

// Env is the shared state every perk system reads. It is owned by the
// dispatch goroutine; nothing in it is locked.
type Env struct {
	World      world.World
	Config     *config.Holder
	Caps       integration.Capabilities
	Store      *player.Store
	Classifier *Classifier
	Rewards    *RewardBridge
	Scheduler  *Scheduler
	Journal    *events.Journal
	Now        func() time.Time
}

// livePlayer resolves a slot to a valid connected player.
func (env *Env) livePlayer(id int) (world.Player, bool) {
	if id < 0 {
		return nil, false
	}
	p, ok := env.World.Player(id)
	if !ok || p == nil || !p.IsValid() {
		return nil, false
	}
	return p, true
}

// eligible reports a privileged player on the non-opposing side, the only
// players perks apply to.
func (env *Env) eligible(p world.Player) bool {
	return !env.Classifier.IsOpposingRole(p.ID()) && env.Classifier.IsPrivileged(p)
}

func (env *Env) happyHour(cfg *config.Config) bool {
	return cfg.HappyHour().ActiveAt(env.Now())
}

func (env *Env) record(entryType events.EntryType, playerID, amount int, reason string) {
	if env.Journal == nil {
		return
	}
	env.Journal.Append(events.JournalEntry{
		Type:      entryType,
		PlayerID:  playerID,
		Amount:    amount,
		Reason:    reason,
		Timestamp: env.Now(),
	})
}

// chat sends a prefixed private message, the format every perk notice uses.
func chat(p world.Player, cfg *config.Config, msg string) {
	p.SendChat(cfg.ChatPrefix + " " + msg)
}
