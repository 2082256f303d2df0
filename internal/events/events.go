// Package events defines the game events the perk engine consumes and the
// journal of perk effects it produces.
package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType defines the category of an inbound game event.
type EventType string

const (
	EventTypePlayerSpawn      EventType = "PLAYER_SPAWN"
	EventTypePlayerDeath      EventType = "PLAYER_DEATH"
	EventTypeRoundEnd         EventType = "ROUND_END"
	EventTypeTick             EventType = "TICK"
	EventTypeClientDisconnect EventType = "CLIENT_DISCONNECT"
	EventTypeTakeDamage       EventType = "TAKE_DAMAGE"
	EventTypePlayerInfect     EventType = "PLAYER_INFECT"
	EventTypeChatCommand      EventType = "CHAT_COMMAND"
)

// GameEvent is one inbound notification from the game host.
type GameEvent struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	Type      EventType   `json:"type"`
	Payload   interface{} `json:"payload"` // one of the payload types below
}

// New stamps a payload into a GameEvent.
func New(eventType EventType, payload interface{}) GameEvent {
	return GameEvent{
		ID:        GenerateEventID(),
		Timestamp: time.Now(),
		Type:      eventType,
		Payload:   payload,
	}
}

// GenerateEventID creates a unique event identifier.
func GenerateEventID() string {
	return uuid.NewString()
}

// SpawnPayload: a player (re)spawned.
type SpawnPayload struct {
	PlayerID int `json:"player_id"`
}

// DeathPayload: a player died. AttackerID is world.NoPlayer for
// environmental deaths.
type DeathPayload struct {
	VictimID   int `json:"victim_id"`
	AttackerID int `json:"attacker_id"`
}

// RoundEndPayload: the round is over.
type RoundEndPayload struct {
	Winner string `json:"winner,omitempty"`
}

// TickPayload: one scheduling interval elapsed.
type TickPayload struct {
	Number int64 `json:"number"`
}

// DisconnectPayload: a client left and its slot may be reused.
type DisconnectPayload struct {
	PlayerID int `json:"player_id"`
}

// InfectionPayload: the role provider turned a human into a zombie.
type InfectionPayload struct {
	InfectorID  int    `json:"infector_id"`
	VictimID    int    `json:"victim_id"`
	Explosive   bool   `json:"explosive"`
	ZombieClass string `json:"zombie_class"`
}

// ChatCommandPayload: a player typed a chat line starting with ! or /.
type ChatCommandPayload struct {
	PlayerID int    `json:"player_id"`
	Text     string `json:"text"`
}

// NoAmmo is the AmmoType of damage not dealt by a weapon (falls, triggers).
const NoAmmo = -1

// Entity is a world entity referenced by a damage record.
type Entity struct {
	Valid        bool   `json:"valid"`
	DesignerName string `json:"designer_name"`
	// PlayerPawn is true when the entity is a player body; Controller is then
	// the slot of the controlling player.
	PlayerPawn bool `json:"player_pawn"`
	Controller int  `json:"controller"`
}

// DamageInfo is the mutable damage record of a take-damage event. Handlers
// may rewrite Damage before the host resolves it.
type DamageInfo struct {
	Victim    Entity  `json:"victim"`
	Attacker  Entity  `json:"attacker"`
	Inflictor Entity  `json:"inflictor"`
	AmmoType  int     `json:"ammo_type"`
	Damage    float64 `json:"damage"`
}
