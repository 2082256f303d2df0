// Package main - host-sim
// Load generator that plays a game host against /ws/host: N fake players,
// scripted rounds of spawns, jumps, zombie hits, kills and round ends.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MRamiBalles/zpvip/internal/events"
	"github.com/MRamiBalles/zpvip/internal/network"
	"github.com/MRamiBalles/zpvip/internal/world"
)

const vipFlag = "@zpovip/vip"

// Config for the simulator
type Config struct {
	ServerURL     string
	NumPlayers    int
	VIPRatio      float64
	FrameInterval time.Duration
	RoundLength   time.Duration
	TestDuration  time.Duration
}

// Stats tracks performance metrics
type Stats struct {
	MessagesSent     int64
	MessagesReceived int64
	Commands         int64
	Errors           int64
	DamageRequests   int64
	Latencies        []time.Duration
	mu               sync.Mutex
}

// sim is the fake game host state.
type sim struct {
	cfg     Config
	conn    *websocket.Conn
	writeMu sync.Mutex
	stats   *Stats
	players []world.PlayerState
	perms   map[uint64][]string
	seq     int64

	pendingMu sync.Mutex
	pending   map[int64]time.Time
}

func main() {
	serverURL := flag.String("url", "ws://localhost:8080/ws/host", "Host bridge URL")
	numPlayers := flag.Int("players", 32, "Number of simulated players")
	vipRatio := flag.Float64("vips", 0.25, "Share of players holding the VIP flag")
	frame := flag.Duration("frame", time.Second/64, "Frame interval")
	round := flag.Duration("round", 20*time.Second, "Round length")
	duration := flag.Duration("duration", 60*time.Second, "Test duration")
	flag.Parse()

	cfg := Config{
		ServerURL:     *serverURL,
		NumPlayers:    *numPlayers,
		VIPRatio:      *vipRatio,
		FrameInterval: *frame,
		RoundLength:   *round,
		TestDuration:  *duration,
	}

	fmt.Println("=========================================")
	fmt.Println("HOST-SIM - VIP perk server load test")
	fmt.Println("=========================================")
	fmt.Printf("Server:   %s\n", cfg.ServerURL)
	fmt.Printf("Players:  %d (%.0f%% VIP)\n", cfg.NumPlayers, cfg.VIPRatio*100)
	fmt.Printf("Frame:    %v\n", cfg.FrameInterval)
	fmt.Printf("Round:    %v\n", cfg.RoundLength)
	fmt.Printf("Duration: %v\n", cfg.TestDuration)
	fmt.Println("=========================================")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.TestDuration)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	go func() {
		<-sigChan
		fmt.Println("\nInterrupt received, stopping...")
		cancel()
	}()

	stats := &Stats{Latencies: make([]time.Duration, 0, 10000)}
	if err := run(ctx, cfg, stats); err != nil {
		log.Fatalf("host-sim: %v", err)
	}
	printResults(stats, cfg)
}

func run(ctx context.Context, cfg Config, stats *Stats) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, cfg.ServerURL, nil)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	defer conn.Close()

	s := &sim{
		cfg:     cfg,
		conn:    conn,
		stats:   stats,
		perms:   make(map[uint64][]string),
		pending: make(map[int64]time.Time),
	}
	s.seedPlayers()

	go s.receive()

	frames := time.NewTicker(cfg.FrameInterval)
	defer frames.Stop()
	progress := time.NewTicker(5 * time.Second)
	defer progress.Stop()

	s.startRound()
	roundStart := time.Now()
	var frame int64
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-progress.C:
			fmt.Printf("Progress: Sent=%d Recv=%d Commands=%d Errors=%d\n",
				atomic.LoadInt64(&stats.MessagesSent),
				atomic.LoadInt64(&stats.MessagesReceived),
				atomic.LoadInt64(&stats.Commands),
				atomic.LoadInt64(&stats.Errors))
		case <-frames.C:
			frame++
			if time.Since(roundStart) >= cfg.RoundLength {
				s.event(events.EventTypeRoundEnd, events.RoundEndPayload{Winner: "CT"})
				s.startRound()
				roundStart = time.Now()
				continue
			}
			s.step(frame)
		}
	}
}

func (s *sim) seedPlayers() {
	for i := 1; i <= s.cfg.NumPlayers; i++ {
		steamID := uint64(76561198000000000 + i)
		s.players = append(s.players, world.PlayerState{
			ID:        i,
			SteamID:   steamID,
			Name:      fmt.Sprintf("player%02d", i),
			MaxHealth: 100,
		})
		if rand.Float64() < s.cfg.VIPRatio {
			s.perms[steamID] = []string{vipFlag}
		}
	}
}

// startRound respawns everyone; a fifth of the players start infected.
func (s *sim) startRound() {
	for i := range s.players {
		p := &s.players[i]
		p.Alive = true
		p.HasPawn = true
		p.OnGround = true
		p.Velocity = world.Vector{}
		p.Zombie = i%5 == 0
		if p.Zombie {
			p.Team, p.Health, p.MaxHealth = "T", 2000, 2000
		} else {
			p.Team, p.Health, p.MaxHealth = "CT", 100, 100
		}
	}
	s.snapshot()
	for _, p := range s.players {
		s.event(events.EventTypePlayerSpawn, events.SpawnPayload{PlayerID: p.ID})
	}
}

// step advances one frame: jump physics, a few shots and the odd kill.
func (s *sim) step(frame int64) {
	for i := range s.players {
		p := &s.players[i]
		if !p.Alive {
			continue
		}
		switch {
		case p.OnGround && rand.Intn(40) == 0:
			p.OnGround = false
			p.Buttons |= world.ButtonJump
			p.Velocity.Z = 300
		case !p.OnGround:
			p.Velocity.Z -= 25
			if rand.Intn(8) == 0 {
				p.Buttons ^= world.ButtonJump
			}
			if p.Velocity.Z < -300 {
				p.OnGround = true
				p.Velocity.Z = 0
				p.Buttons &^= world.ButtonJump
			}
		}
	}
	s.snapshot()
	s.event(events.EventTypeTick, events.TickPayload{Number: frame})

	human := s.pick(false)
	zombie := s.pick(true)
	if human == nil || zombie == nil {
		return
	}
	dmg := float64(20 + rand.Intn(80))
	s.damage(human.ID, zombie.ID, dmg)
	zombie.Health -= int(dmg)
	if zombie.Health <= 0 {
		zombie.Alive = false
		s.event(events.EventTypePlayerDeath, events.DeathPayload{VictimID: zombie.ID, AttackerID: human.ID})
	}

	if rand.Intn(200) == 0 {
		victim := s.pick(false)
		if victim != nil && victim != human {
			victim.Zombie, victim.Team = true, "T"
			s.event(events.EventTypePlayerInfect, events.InfectionPayload{InfectorID: zombie.ID, VictimID: victim.ID, ZombieClass: "Classic"})
		}
	}
	if rand.Intn(500) == 0 {
		s.event(events.EventTypeChatCommand, events.ChatCommandPayload{PlayerID: human.ID, Text: "!vips"})
	}
}

func (s *sim) pick(zombie bool) *world.PlayerState {
	start := rand.Intn(len(s.players))
	for k := 0; k < len(s.players); k++ {
		p := &s.players[(start+k)%len(s.players)]
		if p.Alive && p.Zombie == zombie {
			return p
		}
	}
	return nil
}

func (s *sim) snapshot() {
	s.send(network.MsgSnapshot, 0, network.SnapshotPayload{Players: s.players, Permissions: s.perms})
}

func (s *sim) event(t events.EventType, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		atomic.AddInt64(&s.stats.Errors, 1)
		return
	}
	s.send(network.MsgEvent, 0, network.EventPayload{Type: t, Data: data})
}

func (s *sim) damage(attacker, victim int, amount float64) {
	s.seq++
	seq := s.seq
	s.pendingMu.Lock()
	s.pending[seq] = time.Now()
	s.pendingMu.Unlock()
	atomic.AddInt64(&s.stats.DamageRequests, 1)
	s.send(network.MsgDamage, seq, events.DamageInfo{
		Victim:    events.Entity{Valid: true, PlayerPawn: true, Controller: victim, DesignerName: "player"},
		Attacker:  events.Entity{Valid: true, PlayerPawn: true, Controller: attacker, DesignerName: "player"},
		Inflictor: events.Entity{Valid: true, PlayerPawn: true, Controller: attacker, DesignerName: "weapon_ak47"},
		AmmoType:  1,
		Damage:    amount,
	})
}

func (s *sim) send(t network.MessageType, seq int64, payload interface{}) {
	raw, err := json.Marshal(payload)
	if err != nil {
		atomic.AddInt64(&s.stats.Errors, 1)
		return
	}
	s.writeMu.Lock()
	err = s.conn.WriteJSON(network.Envelope{Type: t, Seq: seq, Payload: raw})
	s.writeMu.Unlock()
	if err != nil {
		atomic.AddInt64(&s.stats.Errors, 1)
		return
	}
	atomic.AddInt64(&s.stats.MessagesSent, 1)
}

// receive counts commands and measures damage round-trips.
func (s *sim) receive() {
	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		atomic.AddInt64(&s.stats.MessagesReceived, 1)

		var env network.Envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			atomic.AddInt64(&s.stats.Errors, 1)
			continue
		}
		switch env.Type {
		case network.MsgCommand:
			atomic.AddInt64(&s.stats.Commands, 1)
		case network.MsgDamageResult:
			s.pendingMu.Lock()
			sent, ok := s.pending[env.Seq]
			delete(s.pending, env.Seq)
			s.pendingMu.Unlock()
			if ok {
				s.stats.mu.Lock()
				s.stats.Latencies = append(s.stats.Latencies, time.Since(sent))
				s.stats.mu.Unlock()
			}
		}
	}
}

func printResults(stats *Stats, cfg Config) {
	fmt.Println("\n=========================================")
	fmt.Println("HOST-SIM RESULTS")
	fmt.Println("=========================================")

	sent := atomic.LoadInt64(&stats.MessagesSent)
	recv := atomic.LoadInt64(&stats.MessagesReceived)
	cmds := atomic.LoadInt64(&stats.Commands)
	errs := atomic.LoadInt64(&stats.Errors)
	dmg := atomic.LoadInt64(&stats.DamageRequests)

	fmt.Printf("Messages Sent:     %d\n", sent)
	fmt.Printf("Messages Received: %d\n", recv)
	fmt.Printf("Commands:          %d\n", cmds)
	fmt.Printf("Errors:            %d\n", errs)
	fmt.Printf("Error Rate:        %.2f%%\n", float64(errs)/float64(sent+1)*100)
	fmt.Printf("Throughput:        %.2f msg/sec\n", float64(sent)/cfg.TestDuration.Seconds())

	stats.mu.Lock()
	latencies := append([]time.Duration(nil), stats.Latencies...)
	stats.mu.Unlock()

	fmt.Printf("\nDamage round-trips: %d answered of %d\n", len(latencies), dmg)
	if len(latencies) > 0 {
		var total time.Duration
		lo, hi := latencies[0], latencies[0]
		for _, l := range latencies {
			total += l
			lo = min(lo, l)
			hi = max(hi, l)
		}
		fmt.Printf("  Min: %v\n", lo)
		fmt.Printf("  Avg: %v\n", total/time.Duration(len(latencies)))
		fmt.Printf("  Max: %v\n", hi)
	}

	fmt.Println("\n-----------------------------------------")
	switch {
	case errs == 0 && int64(len(latencies)) >= dmg*99/100:
		fmt.Println("TEST PASSED: every damage request was answered")
	case float64(errs)/float64(sent+1) < 0.05:
		fmt.Println("TEST WARNING: some errors or unanswered damage requests")
	default:
		fmt.Println("TEST FAILED: high error rate")
	}
	fmt.Println("=========================================")

	results := map[string]interface{}{
		"messages_sent":     sent,
		"messages_received": recv,
		"commands":          cmds,
		"errors":            errs,
		"damage_requests":   dmg,
		"damage_answered":   len(latencies),
		"config": map[string]interface{}{
			"players":  cfg.NumPlayers,
			"frame":    cfg.FrameInterval.String(),
			"round":    cfg.RoundLength.String(),
			"duration": cfg.TestDuration.String(),
		},
	}
	jsonData, _ := json.MarshalIndent(results, "", "  ")
	os.WriteFile("host_sim_results.json", jsonData, 0644)
	fmt.Println("\nResults saved to host_sim_results.json")
}
