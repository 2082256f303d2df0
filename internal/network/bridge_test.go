package network

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MRamiBalles/zpvip/internal/config"
	"github.com/MRamiBalles/zpvip/internal/engine"
	"github.com/MRamiBalles/zpvip/internal/events"
	"github.com/MRamiBalles/zpvip/internal/infra/storage"
	"github.com/MRamiBalles/zpvip/internal/integration"
	"github.com/MRamiBalles/zpvip/internal/platform/logger"
	"github.com/MRamiBalles/zpvip/internal/world"
)

const vipFlag = "@zpovip/vip"

// noon is outside the default happy hour.
var noon = time.Date(2026, 3, 14, 12, 0, 0, 0, time.Local)

type bridgeFixture struct {
	bridge *Bridge
	ledger *storage.Ledger
	server *httptest.Server
	world  *world.Memory
}

func newBridgeFixture(t *testing.T, tweak func(*config.Config)) *bridgeFixture {
	t.Helper()
	log := logger.NewDiscard()

	db, err := storage.InitSQLite(filepath.Join(t.TempDir(), "ledger.sqlite"))
	if err != nil {
		t.Fatalf("InitSQLite error: %v", err)
	}
	ledger := storage.NewLedger(db, storage.DialectSQLite)
	t.Cleanup(func() { ledger.Close() })

	w := world.NewMemory()
	bridge := NewBridge("", w, ledger, Options{}, log)

	reg := integration.NewRegistry()
	reg.Register(bridge)
	caps := integration.Resolve(reg, integration.DefaultProviderName, log)

	cfg := config.Default()
	if tweak != nil {
		tweak(cfg)
	}
	eng := engine.NewEngine(w, config.NewHolder(cfg), caps, events.NewJournal(nil, 0), log, engine.Options{
		Now: func() time.Time { return noon },
	})
	bridge.Attach(eng)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	eng.Start(ctx)

	server := httptest.NewServer(http.HandlerFunc(bridge.ServeHost))
	t.Cleanup(server.Close)

	return &bridgeFixture{bridge: bridge, ledger: ledger, server: server, world: w}
}

func (f *bridgeFixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial error: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	hello := readEnvelope(t, conn)
	if hello.Type != MsgHello {
		t.Fatalf("Expected hello first, got %s", hello.Type)
	}
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msgType MessageType, seq int64, payload interface{}) {
	t.Helper()
	msg, err := encode(msgType, seq, payload)
	if err != nil {
		t.Fatalf("encode error: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		t.Fatalf("WriteMessage error: %v", err)
	}
}

func sendEvent(t *testing.T, conn *websocket.Conn, eventType string, data interface{}) {
	t.Helper()
	raw, _ := json.Marshal(data)
	send(t, conn, MsgEvent, 0, EventPayload{Type: events.EventType(eventType), Data: raw})
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage error: %v", err)
	}
	var env Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		t.Fatalf("Bad envelope %s: %v", msg, err)
	}
	return env
}

// waitFor polls cond until it holds or three seconds passed.
func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func snapshot() SnapshotPayload {
	return SnapshotPayload{
		Players: []world.PlayerState{
			{ID: 1, SteamID: 111, Name: "vip", Alive: true, Team: "CT", HasPawn: true, OnGround: true, Health: 100, MaxHealth: 100},
			{ID: 2, SteamID: 222, Name: "zombie", Alive: true, Team: "T", HasPawn: true, OnGround: true, Health: 2000, MaxHealth: 2000, Zombie: true},
		},
		Permissions: map[uint64][]string{111: {vipFlag}},
	}
}

func TestBridgeDamageRoundTripAndCommands(t *testing.T) {
	f := newBridgeFixture(t, nil)
	conn := f.dial(t)

	send(t, conn, MsgSnapshot, 0, snapshot())
	sendEvent(t, conn, "player_spawn", events.SpawnPayload{PlayerID: 1})
	sendEvent(t, conn, "tick", events.TickPayload{Number: 1})

	info := events.DamageInfo{
		Victim:    events.Entity{Valid: true, PlayerPawn: true, Controller: 2, DesignerName: "player"},
		Attacker:  events.Entity{Valid: true, PlayerPawn: true, Controller: 1, DesignerName: "player"},
		Inflictor: events.Entity{Valid: true, PlayerPawn: true, Controller: 1, DesignerName: "weapon_m4a1"},
		AmmoType:  2,
		Damage:    100,
	}
	send(t, conn, MsgDamage, 7, info)

	var commands []world.Command
	for {
		env := readEnvelope(t, conn)
		if env.Type == MsgDamageResult {
			if env.Seq != 7 {
				t.Errorf("Expected seq 7, got %d", env.Seq)
			}
			var res DamageResult
			json.Unmarshal(env.Payload, &res)
			if res.Damage != 150 {
				t.Errorf("Expected multiplied damage 150, got %.1f", res.Damage)
			}
			break
		}
		if env.Type == MsgCommand {
			var cmd world.Command
			json.Unmarshal(env.Payload, &cmd)
			commands = append(commands, cmd)
		}
	}

	armored := false
	for _, cmd := range commands {
		if cmd.Type == world.CmdSetArmor && cmd.PlayerID == 1 && cmd.Value == 100 {
			armored = true
		}
	}
	if !armored {
		t.Errorf("Expected a set_armor command for slot 1, got %+v", commands)
	}
}

func TestBridgeSecondHostRefused(t *testing.T) {
	f := newBridgeFixture(t, nil)
	f.dial(t)

	url := "ws" + strings.TrimPrefix(f.server.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatalf("Second host should be refused")
	}
	if resp == nil || resp.StatusCode != http.StatusConflict {
		t.Errorf("Expected 409, got %v", resp)
	}
}

func TestBridgeRolesFromSnapshot(t *testing.T) {
	f := newBridgeFixture(t, nil)
	if _, err := f.bridge.IsInfected(2); err != ErrBridgeClosed {
		t.Errorf("Expected ErrBridgeClosed without a host, got %v", err)
	}

	conn := f.dial(t)
	send(t, conn, MsgSnapshot, 0, snapshot())

	mirrored := waitFor(func() bool {
		zombie, err := f.bridge.IsInfected(2)
		return err == nil && zombie
	})
	if !mirrored {
		t.Fatalf("Snapshot zombie flag not mirrored")
	}
	if zombie, _ := f.bridge.IsInfected(1); zombie {
		t.Errorf("Human reported infected")
	}
	if _, err := f.bridge.IsInfected(9); err == nil {
		t.Errorf("Unknown slot should be an error")
	}
}

func TestBridgeInfectionGrantsIntoLedger(t *testing.T) {
	f := newBridgeFixture(t, func(c *config.Config) { c.InfectRewardsEnabled = true })
	conn := f.dial(t)

	send(t, conn, MsgSnapshot, 0, snapshot())
	sendEvent(t, conn, "player_infect", events.InfectionPayload{InfectorID: 1, VictimID: 2})

	stored := waitFor(func() bool {
		v, _ := f.ledger.Get(1)
		return v == 1
	})
	if !stored {
		v, err := f.ledger.Get(1)
		t.Fatalf("Expected 1 pack in the ledger, got %d (err %v)", v, err)
	}
}

func TestBridgeDisconnectEmptiesSlot(t *testing.T) {
	f := newBridgeFixture(t, nil)
	conn := f.dial(t)

	send(t, conn, MsgSnapshot, 0, snapshot())
	if !waitFor(func() bool { _, ok := f.world.State(1); return ok }) {
		t.Fatalf("Snapshot not applied")
	}
	f.ledger.Set(1, 5)
	sendEvent(t, conn, "client_disconnect", events.DisconnectPayload{PlayerID: 1})

	if !waitFor(func() bool { _, ok := f.world.State(1); return !ok }) {
		t.Fatalf("Slot 1 still mirrored after disconnect")
	}
	if v, _ := f.ledger.Get(1); v != 0 {
		t.Errorf("Disconnected slot kept %d packs", v)
	}
}

func TestBridgeKillRewardSurvivesVictimDisconnect(t *testing.T) {
	f := newBridgeFixture(t, nil)
	conn := f.dial(t)

	send(t, conn, MsgSnapshot, 0, snapshot())
	sendEvent(t, conn, "player_death", events.DeathPayload{VictimID: 2, AttackerID: 1})
	sendEvent(t, conn, "client_disconnect", events.DisconnectPayload{PlayerID: 2})

	if !waitFor(func() bool { _, ok := f.world.State(2); return !ok }) {
		t.Fatalf("Slot 2 still mirrored after disconnect")
	}
	// The removal runs after the death, so the reward is already stored.
	if v, err := f.ledger.Get(1); err != nil || v != 2 {
		t.Errorf("Expected the kill reward of 2 packs, got %d (err %v)", v, err)
	}
}

func TestDecodeEventRejectsUnknown(t *testing.T) {
	if _, err := decodeEvent(EventPayload{Type: "bomb_planted"}); err == nil {
		t.Errorf("Expected ErrUnknownEvent")
	}
	ev, err := decodeEvent(EventPayload{Type: "player_death", Data: json.RawMessage(`{"victim_id":3,"attacker_id":4}`)})
	if err != nil {
		t.Fatalf("decodeEvent error: %v", err)
	}
	death, ok := ev.Payload.(events.DeathPayload)
	if ev.Type != events.EventTypePlayerDeath || !ok || death.VictimID != 3 || death.AttackerID != 4 {
		t.Errorf("Unexpected event %+v", ev)
	}
}
