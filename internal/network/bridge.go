package network

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/MRamiBalles/zpvip/internal/events"
	"github.com/MRamiBalles/zpvip/internal/infra/storage"
	"github.com/MRamiBalles/zpvip/internal/integration"
	"github.com/MRamiBalles/zpvip/internal/platform/logger"
	"github.com/MRamiBalles/zpvip/internal/platform/metrics"
	"github.com/MRamiBalles/zpvip/internal/world"
)

var (
	// ErrBridgeClosed is returned while no game host is connected.
	ErrBridgeClosed = errors.New("network: host bridge closed")
	// ErrHostConnected rejects a second host connection.
	ErrHostConnected = errors.New("network: a game host is already connected")
)

// damageTimeout bounds the engine round-trip of one damage request.
const damageTimeout = 250 * time.Millisecond

// EngineLink is the part of the engine the bridge feeds.
type EngineLink interface {
	Post(ev events.GameEvent) error
	Do(fn func()) error
	TakeDamage(ctx context.Context, info *events.DamageInfo) error
}

// Bridge links exactly one game host to the engine. It mirrors host
// snapshots into a world.Memory, forwards host events, answers damage
// requests and ships every world mutation back to the host as a command.
//
// The bridge also stands in for the zombie-plague core: it reports the
// host's zombie flag, relays infection events and exposes the ledger as the
// ammo-pack counter.
type Bridge struct {
	name   string
	world  *world.Memory
	ledger *storage.Ledger
	opts   Options
	logger *logger.Logger
	outSeq atomic.Int64

	mu        sync.Mutex
	engine    EngineLink
	host      *Client
	session   string
	infectFns []func(events.InfectionPayload)
}

// NewBridge creates a bridge registered under name. ledger may be nil.
func NewBridge(name string, w *world.Memory, ledger *storage.Ledger, opts Options, log *logger.Logger) *Bridge {
	if name == "" {
		name = integration.DefaultProviderName
	}
	b := &Bridge{
		name:   name,
		world:  w,
		ledger: ledger,
		opts:   opts.withDefaults(),
		logger: log,
	}
	w.SetCommandSink(b.sendCommand)
	return b
}

// Attach connects the engine. Events arriving before are dropped.
func (b *Bridge) Attach(e EngineLink) {
	b.mu.Lock()
	b.engine = e
	b.mu.Unlock()
}

// Name implements integration.Provider.
func (b *Bridge) Name() string { return b.name }

// Connected reports whether a host is attached.
func (b *Bridge) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.host != nil
}

// IsInfected implements integration.RoleClassifier from the last snapshot.
func (b *Bridge) IsInfected(playerID int) (bool, error) {
	if !b.Connected() {
		return false, ErrBridgeClosed
	}
	zombie, ok := b.world.Zombie(playerID)
	if !ok {
		return false, fmt.Errorf("network: slot %d not in snapshot", playerID)
	}
	return zombie, nil
}

// CurrencyCounter implements integration.CurrencyProvider.
func (b *Bridge) CurrencyCounter() integration.CurrencyCounter {
	if b.ledger == nil {
		return nil
	}
	return b.ledger
}

// OnInfect implements integration.InfectionSource.
func (b *Bridge) OnInfect(fn func(events.InfectionPayload)) error {
	if fn == nil {
		return errors.New("network: nil infection callback")
	}
	b.mu.Lock()
	b.infectFns = append(b.infectFns, fn)
	b.mu.Unlock()
	return nil
}

// ServeHost upgrades the game host connection. A second host is refused
// with 409 while the first one is attached.
func (b *Bridge) ServeHost(w http.ResponseWriter, r *http.Request) {
	if b.Connected() {
		http.Error(w, ErrHostConnected.Error(), http.StatusConflict)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Error("Failed to upgrade host websocket connection")
		return
	}

	client := NewClient(conn, b.opts.SendBuffer, maxHostMessageSize, b.handleMessage, b.hostClosed)

	b.mu.Lock()
	if b.host != nil {
		b.mu.Unlock()
		conn.Close()
		return
	}
	b.host = client
	b.session = uuid.NewString()
	session := b.session
	b.mu.Unlock()

	metrics.Get().RecordWSConnection(1)
	b.logger.Infof("Game host connected (session %s)", session)

	if hello, err := encode(MsgHello, 0, HelloPayload{Session: session, Provider: b.name}); err == nil {
		client.Send(hello)
	}

	go client.WritePump()
	go client.ReadPump()
}

func (b *Bridge) hostClosed(c *Client) {
	b.mu.Lock()
	if b.host == c {
		b.host = nil
		b.session = ""
	}
	b.mu.Unlock()
	c.Close()
	metrics.Get().RecordWSConnection(-1)
	b.logger.Warn("Game host disconnected")
}

func (b *Bridge) handleMessage(c *Client, message []byte) {
	var env Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		metrics.Get().RecordWSError()
		b.logger.Warnf("Malformed host message: %v", err)
		return
	}

	// Damage requests are always answered; the host is waiting on them.
	if env.Type != MsgDamage && !c.allow(b.opts.MaxMessagesPerSecond, time.Now()) {
		metrics.Get().RecordWSError()
		return
	}

	switch env.Type {
	case MsgSnapshot:
		b.applySnapshot(env.Payload)
	case MsgEvent:
		b.handleEvent(env.Payload)
	case MsgDamage:
		b.handleDamage(c, env)
	default:
		b.logger.Warnf("Unknown host message type %q", env.Type)
	}
}

// applySnapshot replaces the mirrored world with the host's player list,
// after the events already received were handled.
func (b *Bridge) applySnapshot(raw json.RawMessage) {
	var snap SnapshotPayload
	if err := json.Unmarshal(raw, &snap); err != nil {
		metrics.Get().RecordWSError()
		b.logger.Warnf("Malformed snapshot: %v", err)
		return
	}

	b.inOrder(func() {
		seen := make(map[int]bool, len(snap.Players))
		for _, ps := range snap.Players {
			seen[ps.ID] = true
			if b.ledger != nil {
				if err := b.ledger.Bind(context.Background(), ps.ID, ps.SteamID); err != nil {
					b.logger.Warnf("Ledger bind for slot %d failed: %v", ps.ID, err)
				}
			}
			b.world.Upsert(ps)
		}
		for _, p := range b.world.Players() {
			if !seen[p.ID()] {
				b.world.Remove(p.ID())
			}
		}
		for steamID, flags := range snap.Permissions {
			b.world.SetPermissions(steamID, flags)
		}
	})
}

func (b *Bridge) handleEvent(raw json.RawMessage) {
	var p EventPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		metrics.Get().RecordWSError()
		b.logger.Warnf("Malformed event: %v", err)
		return
	}
	ev, err := decodeEvent(p)
	if err != nil {
		metrics.Get().RecordWSError()
		b.logger.Warn(err.Error())
		return
	}

	switch payload := ev.Payload.(type) {
	case events.InfectionPayload:
		// Delivered to OnInfect subscribers; the engine subscribes itself.
		b.mu.Lock()
		fns := slices.Clone(b.infectFns)
		b.mu.Unlock()
		for _, fn := range fns {
			fn(payload)
		}
		return
	case events.DisconnectPayload:
		// The slot stays resolvable until the events before the
		// disconnect were handled.
		b.post(ev)
		b.inOrder(func() {
			if b.ledger != nil {
				if err := b.ledger.ResetSlot(context.Background(), payload.PlayerID); err != nil {
					b.logger.Warnf("Ledger reset for slot %d failed: %v", payload.PlayerID, err)
				}
			}
			b.world.Remove(payload.PlayerID)
		})
		return
	}
	b.post(ev)
}

func (b *Bridge) attached() EngineLink {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.engine
}

func (b *Bridge) post(ev events.GameEvent) {
	e := b.attached()
	if e == nil {
		return
	}
	if err := e.Post(ev); err != nil {
		b.logger.Warnf("Dropped %s: %v", ev.Type, err)
	}
}

// inOrder runs fn on the engine after the events posted so far, or at once
// when no engine takes it.
func (b *Bridge) inOrder(fn func()) {
	e := b.attached()
	if e == nil {
		fn()
		return
	}
	if err := e.Do(fn); err != nil {
		b.logger.Warnf("Engine unavailable, applying world change directly: %v", err)
		fn()
	}
}

// handleDamage runs the synchronous damage hook and replies with the final
// amount. On any failure the host gets its own amount back.
func (b *Bridge) handleDamage(c *Client, env Envelope) {
	var info events.DamageInfo
	if err := json.Unmarshal(env.Payload, &info); err != nil {
		metrics.Get().RecordWSError()
		b.logger.Warnf("Malformed damage request: %v", err)
		return
	}
	final := info.Damage

	if e := b.attached(); e != nil {
		// The engine owns work until TakeDamage returns nil.
		work := info
		ctx, cancel := context.WithTimeout(context.Background(), damageTimeout)
		err := e.TakeDamage(ctx, &work)
		cancel()
		if err != nil {
			b.logger.Warnf("Damage hook skipped: %v", err)
		} else {
			final = work.Damage
		}
	}

	reply, err := encode(MsgDamageResult, env.Seq, DamageResult{Damage: final})
	if err != nil {
		return
	}
	if !c.Send(reply) {
		metrics.Get().RecordWSError()
	}
}

// sendCommand is the world.Memory sink.
func (b *Bridge) sendCommand(cmd world.Command) {
	b.mu.Lock()
	host := b.host
	b.mu.Unlock()
	if host == nil {
		return
	}
	message, err := encode(MsgCommand, b.outSeq.Add(1), cmd)
	if err != nil {
		b.logger.Errorf("Failed to serialize %s command: %v", cmd.Type, err)
		return
	}
	if !host.Send(message) {
		metrics.Get().RecordWSError()
		b.logger.Warnf("Host send queue full, dropped %s for slot %d", cmd.Type, cmd.PlayerID)
	}
}

var (
	_ integration.Provider         = (*Bridge)(nil)
	_ integration.RoleClassifier   = (*Bridge)(nil)
	_ integration.CurrencyProvider = (*Bridge)(nil)
	_ integration.InfectionSource  = (*Bridge)(nil)
)
