package world

import (
	"sort"
	"sync"
)

// CommandType names a host mutation recorded by Memory.
type CommandType string

const (
	CmdSetArmor       CommandType = "set_armor"
	CmdSetHealth      CommandType = "set_health"
	CmdSetVelocity    CommandType = "set_velocity"
	CmdAddKills       CommandType = "add_kills"
	CmdAddRankingWins CommandType = "add_ranking_wins"
	CmdChat           CommandType = "chat"
	CmdMenu           CommandType = "menu"
)

// Command is one mutation the host must apply to the real game.
type Command struct {
	Type     CommandType `json:"type"`
	PlayerID int         `json:"player_id"`
	Value    int         `json:"value,omitempty"`
	Velocity *Vector     `json:"velocity,omitempty"`
	Text     string      `json:"text,omitempty"`
	Menu     *Menu       `json:"menu,omitempty"`
}

// PlayerState is the host-reported snapshot of one slot.
type PlayerState struct {
	ID          int     `json:"id"`
	SteamID     uint64  `json:"steam_id"`
	Name        string  `json:"name"`
	Bot         bool    `json:"bot"`
	Alive       bool    `json:"alive"`
	Team        string  `json:"team"`
	Buttons     Buttons `json:"buttons"`
	HasPawn     bool    `json:"has_pawn"`
	OnGround    bool    `json:"on_ground"`
	Velocity    Vector  `json:"velocity"`
	Armor       int     `json:"armor"`
	Health      int     `json:"health"`
	MaxHealth   int     `json:"max_health"`
	Zombie      bool    `json:"zombie"`
	Kills       int     `json:"kills"`
	RankingWins int     `json:"ranking_wins"`
}

// Memory is an in-process World. It mirrors host snapshots and turns every
// mutation into a Command handed to the sink. The websocket bridge uses it
// as its world and tests use it as the game.
type Memory struct {
	mu      sync.RWMutex
	players map[int]*PlayerState
	perms   map[uint64]map[string]bool
	chats   map[int][]string
	menus   map[int][]Menu
	sink    func(Command)
}

// NewMemory creates an empty world.
func NewMemory() *Memory {
	return &Memory{
		players: make(map[int]*PlayerState),
		perms:   make(map[uint64]map[string]bool),
		chats:   make(map[int][]string),
		menus:   make(map[int][]Menu),
	}
}

// SetCommandSink installs the receiver of outbound commands.
func (m *Memory) SetCommandSink(fn func(Command)) {
	m.mu.Lock()
	m.sink = fn
	m.mu.Unlock()
}

// Upsert replaces the snapshot of a slot.
func (m *Memory) Upsert(s PlayerState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.MaxHealth <= 0 {
		s.MaxHealth = 100
	}
	cp := s
	m.players[s.ID] = &cp
}

// Remove empties a slot (client disconnect).
func (m *Memory) Remove(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.players, id)
	delete(m.chats, id)
	delete(m.menus, id)
}

// Mutate edits a slot snapshot in place without emitting commands. Used to
// mirror host-side changes (physics, team switches) between snapshots.
func (m *Memory) Mutate(id int, fn func(s *PlayerState)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.players[id]
	if !ok {
		return false
	}
	fn(s)
	return true
}

// State returns a copy of a slot snapshot.
func (m *Memory) State(id int) (PlayerState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.players[id]
	if !ok {
		return PlayerState{}, false
	}
	return *s, true
}

// GrantPermission gives a stable identity a permission flag.
func (m *Memory) GrantPermission(steamID uint64, flag string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.perms[steamID]
	if !ok {
		set = make(map[string]bool)
		m.perms[steamID] = set
	}
	set[flag] = true
}

// SetPermissions replaces the flags held by a stable identity.
func (m *Memory) SetPermissions(steamID uint64, flags []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := make(map[string]bool, len(flags))
	for _, f := range flags {
		set[f] = true
	}
	m.perms[steamID] = set
}

// Chats returns the private messages delivered to a slot.
func (m *Memory) Chats(id int) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.chats[id]...)
}

// Menus returns the menus opened for a slot.
func (m *Memory) Menus(id int) []Menu {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Menu(nil), m.menus[id]...)
}

// Zombie reports the host-side infected flag of a slot.
func (m *Memory) Zombie(id int) (zombie bool, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.players[id]
	if !ok {
		return false, false
	}
	return s.Zombie, true
}

// Player implements World.
func (m *Memory) Player(id int) (Player, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.players[id]; !ok {
		return nil, false
	}
	return &memPlayer{m: m, id: id}, true
}

// Players implements World. Players are returned in slot order.
func (m *Memory) Players() []Player {
	m.mu.RLock()
	ids := make([]int, 0, len(m.players))
	for id := range m.players {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	sort.Ints(ids)
	out := make([]Player, 0, len(ids))
	for _, id := range ids {
		out = append(out, &memPlayer{m: m, id: id})
	}
	return out
}

// HasPermission implements World.
func (m *Memory) HasPermission(steamID uint64, flag string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.perms[steamID][flag]
}

// OpenMenu implements World.
func (m *Memory) OpenMenu(p Player, menu Menu) {
	if p == nil {
		return
	}
	id := p.ID()
	m.mu.Lock()
	if _, ok := m.players[id]; !ok {
		m.mu.Unlock()
		return
	}
	m.menus[id] = append(m.menus[id], menu)
	m.mu.Unlock()
	m.emit(Command{Type: CmdMenu, PlayerID: id, Menu: &menu})
}

// update applies fn to a live slot and emits cmd when it succeeded.
func (m *Memory) update(id int, cmd Command, fn func(s *PlayerState)) {
	m.mu.Lock()
	s, ok := m.players[id]
	if ok {
		fn(s)
	}
	m.mu.Unlock()
	if ok {
		m.emit(cmd)
	}
}

func (m *Memory) read(id int, fn func(s *PlayerState)) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.players[id]
	if ok {
		fn(s)
	}
	return ok
}

func (m *Memory) emit(cmd Command) {
	m.mu.RLock()
	sink := m.sink
	m.mu.RUnlock()
	if sink != nil {
		sink(cmd)
	}
}

// memPlayer is a live handle: every call reads the current snapshot, so a
// handle held across a disconnect reports invalid.
type memPlayer struct {
	m  *Memory
	id int
}

func (p *memPlayer) ID() int { return p.id }

func (p *memPlayer) SteamID() uint64 {
	var v uint64
	p.m.read(p.id, func(s *PlayerState) { v = s.SteamID })
	return v
}

func (p *memPlayer) Name() string {
	var v string
	p.m.read(p.id, func(s *PlayerState) { v = s.Name })
	return v
}

func (p *memPlayer) IsValid() bool {
	return p.m.read(p.id, func(*PlayerState) {})
}

func (p *memPlayer) IsBot() bool {
	var v bool
	p.m.read(p.id, func(s *PlayerState) { v = s.Bot })
	return v
}

func (p *memPlayer) IsAlive() bool {
	var v bool
	p.m.read(p.id, func(s *PlayerState) { v = s.Alive })
	return v
}

func (p *memPlayer) Team() Team {
	var v Team
	p.m.read(p.id, func(s *PlayerState) { v = ParseTeam(s.Team) })
	return v
}

func (p *memPlayer) Buttons() Buttons {
	var v Buttons
	p.m.read(p.id, func(s *PlayerState) { v = s.Buttons })
	return v
}

func (p *memPlayer) Pawn() Pawn {
	var has bool
	p.m.read(p.id, func(s *PlayerState) { has = s.HasPawn })
	if !has {
		return nil
	}
	return &memPawn{m: p.m, id: p.id}
}

func (p *memPlayer) SendChat(msg string) {
	p.m.mu.Lock()
	_, ok := p.m.players[p.id]
	if ok {
		p.m.chats[p.id] = append(p.m.chats[p.id], msg)
	}
	p.m.mu.Unlock()
	if ok {
		p.m.emit(Command{Type: CmdChat, PlayerID: p.id, Text: msg})
	}
}

func (p *memPlayer) AddKills(n int) {
	p.m.update(p.id, Command{Type: CmdAddKills, PlayerID: p.id, Value: n}, func(s *PlayerState) {
		s.Kills += n
	})
}

func (p *memPlayer) AddRankingWins(n int) {
	p.m.update(p.id, Command{Type: CmdAddRankingWins, PlayerID: p.id, Value: n}, func(s *PlayerState) {
		s.RankingWins += n
	})
}

type memPawn struct {
	m  *Memory
	id int
}

func (p *memPawn) IsValid() bool {
	var has bool
	ok := p.m.read(p.id, func(s *PlayerState) { has = s.HasPawn })
	return ok && has
}

func (p *memPawn) OnGround() bool {
	var v bool
	p.m.read(p.id, func(s *PlayerState) { v = s.OnGround })
	return v
}

func (p *memPawn) Velocity() Vector {
	var v Vector
	p.m.read(p.id, func(s *PlayerState) { v = s.Velocity })
	return v
}

func (p *memPawn) SetVelocity(v Vector) {
	vel := v
	p.m.update(p.id, Command{Type: CmdSetVelocity, PlayerID: p.id, Velocity: &vel}, func(s *PlayerState) {
		s.Velocity = v
	})
}

func (p *memPawn) Armor() int {
	var v int
	p.m.read(p.id, func(s *PlayerState) { v = s.Armor })
	return v
}

func (p *memPawn) SetArmor(armor int) {
	p.m.update(p.id, Command{Type: CmdSetArmor, PlayerID: p.id, Value: armor}, func(s *PlayerState) {
		s.Armor = armor
	})
}

func (p *memPawn) Health() int {
	var v int
	p.m.read(p.id, func(s *PlayerState) { v = s.Health })
	return v
}

func (p *memPawn) MaxHealth() int {
	var v int
	p.m.read(p.id, func(s *PlayerState) { v = s.MaxHealth })
	return v
}

func (p *memPawn) SetHealth(health int) {
	p.m.update(p.id, Command{Type: CmdSetHealth, PlayerID: p.id, Value: health}, func(s *PlayerState) {
		s.Health = health
	})
}
