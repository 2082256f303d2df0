package engine

import (
	"github.com/MRamiBalles/zpvip/internal/events"
	"github.com/MRamiBalles/zpvip/internal/platform/logger"
)

// LifecycleSystem owns the round and connection boundaries of perk state.
type LifecycleSystem struct {
	env    *Env
	logger *logger.Logger
}

// NewLifecycleSystem creates the lifecycle system.
func NewLifecycleSystem(env *Env, log *logger.Logger) *LifecycleSystem {
	return &LifecycleSystem{env: env, logger: log}
}

// OnRoundEnd wipes every player's accumulator, jump state and announce flag.
// Queued deferred tasks stay; they re-validate their player when they run.
func (ls *LifecycleSystem) OnRoundEnd(event events.GameEvent) {
	cleared := ls.env.Store.Len()
	ls.env.Store.ClearAll()
	ls.logger.Debugf("Round end: cleared perk state of %d slots", cleared)
}

// OnClientDisconnect destroys the slot's state so the next client in the
// same slot starts fresh.
func (ls *LifecycleSystem) OnClientDisconnect(event events.GameEvent) {
	payload, ok := event.Payload.(events.DisconnectPayload)
	if !ok {
		ls.logger.Error("Failed to parse DisconnectPayload")
		return
	}
	ls.env.Store.Remove(payload.PlayerID)
}
