package engine

import (
	"fmt"
	"strconv"
	"time"

	"github.com/MRamiBalles/zpvip/internal/config"
	"github.com/MRamiBalles/zpvip/internal/events"
	"github.com/MRamiBalles/zpvip/internal/integration"
	"github.com/MRamiBalles/zpvip/internal/platform/logger"
	"github.com/MRamiBalles/zpvip/internal/platform/metrics"
	"github.com/MRamiBalles/zpvip/internal/world"
)

// Grant reasons recorded in the journal.
const (
	ReasonDamage    = "damage"
	ReasonKill      = "kill"
	ReasonHappyHour = "happy_hour"
	ReasonInfect    = "infect"
)

// GrantResult describes what a Grant did.
type GrantResult struct {
	Amount int
	Total  int  // counter value after the grant, when Stored
	Stored bool // false = chat-only notification
}

// RewardBridge pays ammo packs into the provider's counter, or announces
// them in chat when no counter is reachable.
type RewardBridge struct {
	caps    integration.Capabilities
	config  *config.Holder
	journal *events.Journal
	logger  *logger.Logger
	now     func() time.Time

	counter       integration.CurrencyCounter
	offlineLogged bool
}

// NewRewardBridge creates a bridge over the resolved capabilities.
func NewRewardBridge(caps integration.Capabilities, cfg *config.Holder, journal *events.Journal, log *logger.Logger, now func() time.Time) *RewardBridge {
	if now == nil {
		now = time.Now
	}
	return &RewardBridge{
		caps:    caps,
		config:  cfg,
		journal: journal,
		logger:  log,
		now:     now,
		counter: caps.Counter(),
	}
}

// Online reports whether a live counter is currently reachable.
func (rb *RewardBridge) Online() bool {
	return rb.resolveCounter() != nil
}

// resolveCounter retries discovery while the provider has not handed out a
// counter yet.
func (rb *RewardBridge) resolveCounter() integration.CurrencyCounter {
	if rb.counter == nil && rb.caps.Currency != nil {
		rb.counter = rb.caps.Counter()
		if rb.counter != nil {
			rb.logger.Info("AmmoPacks bridge became active.")
		}
	}
	return rb.counter
}

// Grant adds amount packs to p. Non-positive amounts and invalid players are
// ignored. A failing counter degrades this one grant to chat-only.
func (rb *RewardBridge) Grant(p world.Player, amount int, reason string) GrantResult {
	if amount <= 0 || p == nil || !p.IsValid() {
		return GrantResult{}
	}
	cfg := rb.config.Current()
	id := p.ID()

	if counter := rb.resolveCounter(); counter != nil {
		total, err := rb.store(counter, id, amount)
		if err == nil {
			chat(p, cfg, fmt.Sprintf("+%d Ammo Packs (VIP) | Total: %d", amount, total))
			rb.recordGrant(events.EntryGrant, id, amount, reason, false)
			return GrantResult{Amount: amount, Total: total, Stored: true}
		}
		rb.logger.Warnf("AmmoPacks counter failed for slot %d, notifying only: %v", id, err)
	} else if !rb.offlineLogged {
		rb.offlineLogged = true
		rb.logger.Warn("AmmoPacks bridge offline: VIP rewards are chat-only.")
	}

	chat(p, cfg, fmt.Sprintf("+%d VIP AP reward (HZP bridge offline)", amount))
	rb.recordGrant(events.EntryGrantOffline, id, amount, reason, true)
	return GrantResult{Amount: amount}
}

// store performs the read-modify-write. The floor at zero covers a counter
// that starts out negative.
func (rb *RewardBridge) store(counter integration.CurrencyCounter, id, amount int) (int, error) {
	current, err := counter.Get(id)
	if err != nil {
		return 0, fmt.Errorf("read counter: %w", err)
	}
	total := max(0, current+amount)
	if err := counter.Set(id, total); err != nil {
		return 0, fmt.Errorf("write counter: %w", err)
	}
	return total, nil
}

func (rb *RewardBridge) recordGrant(entryType events.EntryType, id, amount int, reason string, offline bool) {
	metrics.Get().RecordGrant(amount, offline)
	rb.logger.Event(string(entryType), strconv.Itoa(id), fmt.Sprintf("+%d AP (%s)", amount, reason))
	if rb.journal != nil {
		rb.journal.Append(events.JournalEntry{
			Type:      entryType,
			PlayerID:  id,
			Amount:    amount,
			Reason:    reason,
			Timestamp: rb.now(),
		})
	}
}
