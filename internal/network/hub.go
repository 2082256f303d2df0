package network

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MRamiBalles/zpvip/internal/events"
	"github.com/MRamiBalles/zpvip/internal/platform/logger"
	"github.com/MRamiBalles/zpvip/internal/platform/metrics"
)

// Hub fans the perk journal out to read-only observers (dashboards, stream
// overlays). Observers may ask for a replay of retained entries.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	stopOnce   sync.Once
	opts       Options
	logger     *logger.Logger
	count      atomic.Int64

	mu      sync.RWMutex
	journal *events.Journal
}

// NewHub initializes a new observer Hub.
func NewHub(opts Options, log *logger.Logger) *Hub {
	opts = opts.withDefaults()
	return &Hub{
		broadcast:  make(chan []byte, opts.BroadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
		opts:       opts,
		logger:     log,
	}
}

// Run handles registrations and broadcasts until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		h.stopOnce.Do(func() { close(h.done) })
		for client := range h.clients {
			client.Close()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("Observer hub shutting down.")
			return
		case client := <-h.register:
			if h.opts.MaxObservers > 0 && len(h.clients) >= h.opts.MaxObservers {
				h.logger.Warnf("Observer limit %d reached, refusing connection", h.opts.MaxObservers)
				client.Close()
				continue
			}
			h.clients[client] = true
			h.count.Store(int64(len(h.clients)))
			metrics.Get().RecordWSConnection(1)
			h.logger.Info("Observer connected")
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				h.count.Store(int64(len(h.clients)))
				client.Close()
				metrics.Get().RecordWSConnection(-1)
				h.logger.Info("Observer disconnected")
			}
		case message := <-h.broadcast:
			for client := range h.clients {
				if !client.Send(message) {
					// Too slow to keep up.
					delete(h.clients, client)
					h.count.Store(int64(len(h.clients)))
					client.Close()
					metrics.Get().RecordWSConnection(-1)
				}
			}
		}
	}
}

// Observers returns the number of connected observers.
func (h *Hub) Observers() int {
	return int(h.count.Load())
}

// BroadcastEntry serializes a journal entry and queues it for every observer.
func (h *Hub) BroadcastEntry(entry events.JournalEntry) {
	payload, err := encode(MsgJournal, entry.Seq, entry)
	if err != nil {
		h.logger.Errorf("Failed to serialize journal entry for broadcast: %v", err)
		return
	}
	select {
	case h.broadcast <- payload:
	case <-h.done:
	}
}

// StartJournalPoller spawns a goroutine that polls the journal and pushes
// new entries to the Hub, so the engine never waits on observers.
func (h *Hub) StartJournalPoller(ctx context.Context, journal *events.Journal, interval time.Duration) {
	h.mu.Lock()
	h.journal = journal
	h.mu.Unlock()
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}

	go func() {
		poll := time.NewTicker(interval)
		defer poll.Stop()

		var lastSeq int64
		for {
			select {
			case <-ctx.Done():
				return
			case <-poll.C:
				for _, entry := range journal.Since(lastSeq) {
					h.BroadcastEntry(entry)
					lastSeq = entry.Seq
				}
			}
		}
	}()
}

// ServeWS upgrades an observer connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade observer websocket connection")
		return
	}

	client := NewClient(conn, h.opts.SendBuffer, maxMessageSize, h.handleMessage, func(c *Client) {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
	})
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}

// handleMessage answers replay requests; anything else is ignored.
func (h *Hub) handleMessage(c *Client, message []byte) {
	if !c.allow(h.opts.MaxMessagesPerSecond, time.Now()) {
		metrics.Get().RecordWSError()
		return
	}
	var env Envelope
	if err := json.Unmarshal(message, &env); err != nil || env.Type != MsgReplay {
		return
	}
	var req ReplayRequest
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return
		}
	}

	h.mu.RLock()
	journal := h.journal
	h.mu.RUnlock()
	if journal == nil {
		return
	}
	entries := journal.Since(req.Since)
	if entries == nil {
		entries = []events.JournalEntry{}
	}
	payload, err := encode(MsgReplay, env.Seq, entries)
	if err != nil {
		h.logger.Errorf("Failed to serialize replay: %v", err)
		return
	}
	if !c.Send(payload) {
		metrics.Get().RecordWSError()
	}
}
