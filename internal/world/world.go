// Package world describes what the perk engine needs from the game host:
// player identity, team, pawn physics, armor and health, permissions, chat
// and list menus. The engine never talks to the game directly.
package world

// Team is the side a player controller is on.
type Team int

const (
	TeamNone Team = iota
	TeamSpectator
	TeamT
	TeamCT
)

// String returns the short team name used in logs and on the wire.
func (t Team) String() string {
	switch t {
	case TeamSpectator:
		return "SPEC"
	case TeamT:
		return "T"
	case TeamCT:
		return "CT"
	default:
		return "NONE"
	}
}

// ParseTeam is the inverse of Team.String. Unknown names map to TeamNone.
func ParseTeam(s string) Team {
	switch s {
	case "SPEC":
		return TeamSpectator
	case "T":
		return TeamT
	case "CT":
		return TeamCT
	default:
		return TeamNone
	}
}

// Buttons is the bit set of controls a player holds this tick.
type Buttons uint64

const (
	ButtonAttack Buttons = 1 << 0
	ButtonJump   Buttons = 1 << 1
	ButtonDuck   Buttons = 1 << 2
	ButtonUse    Buttons = 1 << 5
)

// Has reports whether every bit of b is held.
func (bs Buttons) Has(b Buttons) bool {
	return bs&b == b
}

// Vector is a 3D velocity or position in game units.
type Vector struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// NoPlayer marks an entity that is not controlled by any player slot.
const NoPlayer = -1

// Pawn is the in-world body of a player.
type Pawn interface {
	IsValid() bool
	OnGround() bool
	Velocity() Vector
	// SetVelocity teleports the pawn in place with a new velocity.
	SetVelocity(v Vector)
	Armor() int
	SetArmor(armor int)
	Health() int
	MaxHealth() int
	SetHealth(health int)
}

// Player is a connected controller occupying a slot.
type Player interface {
	// ID is the per-connection slot index.
	ID() int
	// SteamID is the stable external identity; 0 means unauthenticated.
	SteamID() uint64
	Name() string
	IsValid() bool
	IsBot() bool
	IsAlive() bool
	Team() Team
	Buttons() Buttons
	// Pawn returns nil when the player has no body.
	Pawn() Pawn
	SendChat(msg string)
	AddKills(n int)
	AddRankingWins(n int)
}

// Menu is a list display of non-selectable text lines.
type Menu struct {
	Title string   `json:"title"`
	Lines []string `json:"lines"`
}

// World is the host surface the engine reads and mutates.
type World interface {
	// Player resolves a slot; ok is false for empty or invalid slots.
	Player(id int) (Player, bool)
	// Players lists every connected player.
	Players() []Player
	// HasPermission checks a permission flag for a stable identity.
	HasPermission(steamID uint64, flag string) bool
	OpenMenu(p Player, menu Menu)
}

// Alive filters Players down to valid living players.
func Alive(w World) []Player {
	all := w.Players()
	alive := make([]Player, 0, len(all))
	for _, p := range all {
		if p != nil && p.IsValid() && p.IsAlive() {
			alive = append(alive, p)
		}
	}
	return alive
}

// Broadcast sends msg to every connected human player.
func Broadcast(w World, msg string) int {
	sent := 0
	for _, p := range w.Players() {
		if p == nil || !p.IsValid() || p.IsBot() {
			continue
		}
		p.SendChat(msg)
		sent++
	}
	return sent
}
