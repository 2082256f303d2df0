package network

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/MRamiBalles/zpvip/internal/events"
	"github.com/MRamiBalles/zpvip/internal/platform/optimization"
	"github.com/MRamiBalles/zpvip/internal/world"
)

// MessageType tags a websocket envelope.
type MessageType string

const (
	// host -> server
	MsgSnapshot MessageType = "snapshot"
	MsgEvent    MessageType = "event"
	MsgDamage   MessageType = "damage"

	// server -> host
	MsgHello        MessageType = "hello"
	MsgCommand      MessageType = "command"
	MsgDamageResult MessageType = "damage_result"

	// server <-> observer
	MsgJournal MessageType = "journal"
	MsgReplay  MessageType = "replay"
)

// ErrUnknownEvent is returned for an event type the engine does not consume.
var ErrUnknownEvent = errors.New("unknown event type")

// Envelope is the frame of every websocket message.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Seq     int64           `json:"seq,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SnapshotPayload is the full player list of the host. Slots missing from
// it are treated as empty.
type SnapshotPayload struct {
	Players     []world.PlayerState `json:"players"`
	Permissions map[uint64][]string `json:"permissions,omitempty"`
}

// EventPayload carries one game event. Type accepts either case
// ("player_spawn" or "PLAYER_SPAWN").
type EventPayload struct {
	Type events.EventType `json:"type"`
	Data json.RawMessage  `json:"data,omitempty"`
}

// DamageResult answers a damage request with the final amount.
type DamageResult struct {
	Damage float64 `json:"damage"`
}

// HelloPayload opens a host session.
type HelloPayload struct {
	Session  string `json:"session"`
	Provider string `json:"provider"`
}

// ReplayRequest asks for journal entries after a sequence number.
type ReplayRequest struct {
	Since int64 `json:"since"`
}

// Options sizes the websocket layer.
type Options struct {
	BroadcastBuffer      int
	SendBuffer           int
	MaxObservers         int
	MaxMessagesPerSecond int
}

// OptionsFrom maps the tuning profile onto the websocket layer.
func OptionsFrom(cfg *optimization.Config) Options {
	return Options{
		BroadcastBuffer:      cfg.BroadcastChannelBuffer,
		SendBuffer:           cfg.ClientSendBuffer,
		MaxObservers:         cfg.MaxObservers,
		MaxMessagesPerSecond: cfg.MaxMessagesPerSecond,
	}
}

func (o Options) withDefaults() Options {
	if o.BroadcastBuffer <= 0 {
		o.BroadcastBuffer = 256
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	return o
}

// encode wraps a payload into an envelope.
func encode(t MessageType, seq int64, payload interface{}) ([]byte, error) {
	env := Envelope{Type: t, Seq: seq}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %w", t, err)
		}
		env.Payload = raw
	}
	return json.Marshal(env)
}

// decodeEvent turns a host event into the engine's GameEvent.
func decodeEvent(p EventPayload) (events.GameEvent, error) {
	eventType := events.EventType(strings.ToUpper(string(p.Type)))

	var payload interface{}
	var err error
	switch eventType {
	case events.EventTypePlayerSpawn:
		var v events.SpawnPayload
		err = unmarshalData(p.Data, &v)
		payload = v
	case events.EventTypePlayerDeath:
		var v events.DeathPayload
		err = unmarshalData(p.Data, &v)
		payload = v
	case events.EventTypeRoundEnd:
		var v events.RoundEndPayload
		err = unmarshalData(p.Data, &v)
		payload = v
	case events.EventTypeTick:
		var v events.TickPayload
		err = unmarshalData(p.Data, &v)
		payload = v
	case events.EventTypeClientDisconnect:
		var v events.DisconnectPayload
		err = unmarshalData(p.Data, &v)
		payload = v
	case events.EventTypePlayerInfect:
		var v events.InfectionPayload
		err = unmarshalData(p.Data, &v)
		payload = v
	case events.EventTypeChatCommand:
		var v events.ChatCommandPayload
		err = unmarshalData(p.Data, &v)
		payload = v
	case events.EventTypeTakeDamage:
		v := &events.DamageInfo{}
		err = unmarshalData(p.Data, v)
		payload = v
	default:
		return events.GameEvent{}, fmt.Errorf("%w %q", ErrUnknownEvent, p.Type)
	}
	if err != nil {
		return events.GameEvent{}, fmt.Errorf("failed to decode %s: %w", eventType, err)
	}
	return events.New(eventType, payload), nil
}

func unmarshalData(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}
