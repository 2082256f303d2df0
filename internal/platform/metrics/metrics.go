// Package metrics provides observability for the perk server.
package metrics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Collector gathers perk and transport metrics.
type Collector struct {
	// Tick metrics
	TickCount      int64
	TickLatencySum int64 // nanoseconds
	TickLatencyMax int64
	LastTickTime   time.Time

	// Perk metrics
	Grants              int64
	GrantedAmount       int64
	GrantsOffline       int64
	Jumps               int64
	MultipliedHits      int64
	FallDamageBlocked   int64
	Announcements       int64
	InfectionRewards    int64
	ClassifierFallbacks int64
	DeferredDropped     int64
	DamageAbandoned     int64

	// Ledger metrics
	LedgerWrites      int64
	LedgerWriteLatSum int64
	LedgerWriteLatMax int64
	LedgerWriteErrors int64

	// WebSocket metrics
	WSConnectionsActive int64
	WSMessagesIn        int64
	WSMessagesOut       int64
	WSErrors            int64

	// System
	StartTime time.Time
	mu        sync.RWMutex
}

// Global collector instance
var collector = &Collector{
	StartTime: time.Now(),
}

// Get returns the global collector.
func Get() *Collector {
	return collector
}

// RecordTick records a tick pass completion.
func (c *Collector) RecordTick(latency time.Duration) {
	atomic.AddInt64(&c.TickCount, 1)
	atomic.AddInt64(&c.TickLatencySum, int64(latency))

	// Update max (non-atomic but acceptable for metrics)
	if int64(latency) > atomic.LoadInt64(&c.TickLatencyMax) {
		atomic.StoreInt64(&c.TickLatencyMax, int64(latency))
	}

	c.mu.Lock()
	c.LastTickTime = time.Now()
	c.mu.Unlock()
}

// RecordGrant records one reward grant.
func (c *Collector) RecordGrant(amount int, offline bool) {
	atomic.AddInt64(&c.Grants, 1)
	atomic.AddInt64(&c.GrantedAmount, int64(amount))
	if offline {
		atomic.AddInt64(&c.GrantsOffline, 1)
	}
}

// RecordJump records an accepted extra jump.
func (c *Collector) RecordJump() {
	atomic.AddInt64(&c.Jumps, 1)
}

// RecordMultipliedHit records a damage event scaled by the VIP multiplier.
func (c *Collector) RecordMultipliedHit() {
	atomic.AddInt64(&c.MultipliedHits, 1)
}

// RecordFallBlocked records zeroed self-inflicted damage.
func (c *Collector) RecordFallBlocked() {
	atomic.AddInt64(&c.FallDamageBlocked, 1)
}

// RecordAnnouncement records a VIP join broadcast.
func (c *Collector) RecordAnnouncement() {
	atomic.AddInt64(&c.Announcements, 1)
}

// RecordInfectionReward records a reward for infecting a human.
func (c *Collector) RecordInfectionReward() {
	atomic.AddInt64(&c.InfectionRewards, 1)
}

// RecordClassifierFallback records a role check that fell back to the team rule.
func (c *Collector) RecordClassifierFallback() {
	atomic.AddInt64(&c.ClassifierFallbacks, 1)
}

// RecordDamageAbandoned records a damage request whose caller timed out
// before the hook ran.
func (c *Collector) RecordDamageAbandoned() {
	atomic.AddInt64(&c.DamageAbandoned, 1)
}

// RecordDeferredDropped records a deferred task abandoned on a stale target.
func (c *Collector) RecordDeferredDropped() {
	atomic.AddInt64(&c.DeferredDropped, 1)
}

// RecordLedgerWrite records a write to the ammo-pack ledger.
func (c *Collector) RecordLedgerWrite(latency time.Duration, err error) {
	atomic.AddInt64(&c.LedgerWrites, 1)
	atomic.AddInt64(&c.LedgerWriteLatSum, int64(latency))

	if int64(latency) > atomic.LoadInt64(&c.LedgerWriteLatMax) {
		atomic.StoreInt64(&c.LedgerWriteLatMax, int64(latency))
	}

	if err != nil {
		atomic.AddInt64(&c.LedgerWriteErrors, 1)
	}
}

// RecordWSConnection records WebSocket connection changes.
func (c *Collector) RecordWSConnection(delta int64) {
	atomic.AddInt64(&c.WSConnectionsActive, delta)
}

// RecordWSMessage records WebSocket messages.
func (c *Collector) RecordWSMessage(incoming bool) {
	if incoming {
		atomic.AddInt64(&c.WSMessagesIn, 1)
	} else {
		atomic.AddInt64(&c.WSMessagesOut, 1)
	}
}

// RecordWSError records a WebSocket error.
func (c *Collector) RecordWSError() {
	atomic.AddInt64(&c.WSErrors, 1)
}

// Snapshot returns current metrics as a map.
func (c *Collector) Snapshot() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tickCount := atomic.LoadInt64(&c.TickCount)
	ledgerWrites := atomic.LoadInt64(&c.LedgerWrites)

	// Calculate averages
	var tickAvg, ledgerAvg float64
	if tickCount > 0 {
		tickAvg = float64(atomic.LoadInt64(&c.TickLatencySum)) / float64(tickCount) / 1e6 // ms
	}
	if ledgerWrites > 0 {
		ledgerAvg = float64(atomic.LoadInt64(&c.LedgerWriteLatSum)) / float64(ledgerWrites) / 1e6
	}

	return map[string]interface{}{
		"uptime_seconds": time.Since(c.StartTime).Seconds(),

		"tick": map[string]interface{}{
			"count":          tickCount,
			"avg_latency_ms": tickAvg,
			"max_latency_ms": float64(atomic.LoadInt64(&c.TickLatencyMax)) / 1e6,
			"last_tick":      c.LastTickTime.Format(time.RFC3339),
		},

		"perks": map[string]interface{}{
			"grants":               atomic.LoadInt64(&c.Grants),
			"granted_amount":       atomic.LoadInt64(&c.GrantedAmount),
			"grants_offline":       atomic.LoadInt64(&c.GrantsOffline),
			"jumps":                atomic.LoadInt64(&c.Jumps),
			"multiplied_hits":      atomic.LoadInt64(&c.MultipliedHits),
			"fall_damage_blocked":  atomic.LoadInt64(&c.FallDamageBlocked),
			"announcements":        atomic.LoadInt64(&c.Announcements),
			"infection_rewards":    atomic.LoadInt64(&c.InfectionRewards),
			"classifier_fallbacks": atomic.LoadInt64(&c.ClassifierFallbacks),
			"deferred_dropped":     atomic.LoadInt64(&c.DeferredDropped),
			"damage_abandoned":     atomic.LoadInt64(&c.DamageAbandoned),
		},

		"ledger": map[string]interface{}{
			"writes":           ledgerWrites,
			"avg_write_lat_ms": ledgerAvg,
			"max_write_lat_ms": float64(atomic.LoadInt64(&c.LedgerWriteLatMax)) / 1e6,
			"errors":           atomic.LoadInt64(&c.LedgerWriteErrors),
		},

		"websocket": map[string]interface{}{
			"active_connections": atomic.LoadInt64(&c.WSConnectionsActive),
			"messages_in":        atomic.LoadInt64(&c.WSMessagesIn),
			"messages_out":       atomic.LoadInt64(&c.WSMessagesOut),
			"errors":             atomic.LoadInt64(&c.WSErrors),
		},
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")

		snapshot := collector.Snapshot()
		json.NewEncoder(w).Encode(snapshot)
	}
}

// PrometheusHandler returns metrics in Prometheus format.
func PrometheusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		c := collector

		// Tick metrics
		fmt.Fprintf(w, "# HELP zpvip_tick_count Total tick passes\n")
		fmt.Fprintf(w, "# TYPE zpvip_tick_count counter\n")
		fmt.Fprintf(w, "zpvip_tick_count %d\n\n", atomic.LoadInt64(&c.TickCount))

		fmt.Fprintf(w, "# HELP zpvip_tick_latency_max_ms Maximum tick latency\n")
		fmt.Fprintf(w, "# TYPE zpvip_tick_latency_max_ms gauge\n")
		fmt.Fprintf(w, "zpvip_tick_latency_max_ms %.2f\n\n", float64(atomic.LoadInt64(&c.TickLatencyMax))/1e6)

		// Perk metrics
		fmt.Fprintf(w, "# HELP zpvip_grants_total Ammo pack grants\n")
		fmt.Fprintf(w, "# TYPE zpvip_grants_total counter\n")
		fmt.Fprintf(w, "zpvip_grants_total{bridge=\"online\"} %d\n", atomic.LoadInt64(&c.Grants)-atomic.LoadInt64(&c.GrantsOffline))
		fmt.Fprintf(w, "zpvip_grants_total{bridge=\"offline\"} %d\n\n", atomic.LoadInt64(&c.GrantsOffline))

		fmt.Fprintf(w, "# HELP zpvip_granted_amount_total Ammo packs granted\n")
		fmt.Fprintf(w, "# TYPE zpvip_granted_amount_total counter\n")
		fmt.Fprintf(w, "zpvip_granted_amount_total %d\n\n", atomic.LoadInt64(&c.GrantedAmount))

		fmt.Fprintf(w, "# HELP zpvip_perk_effects_total Applied perk effects\n")
		fmt.Fprintf(w, "# TYPE zpvip_perk_effects_total counter\n")
		fmt.Fprintf(w, "zpvip_perk_effects_total{perk=\"jump\"} %d\n", atomic.LoadInt64(&c.Jumps))
		fmt.Fprintf(w, "zpvip_perk_effects_total{perk=\"multiplier\"} %d\n", atomic.LoadInt64(&c.MultipliedHits))
		fmt.Fprintf(w, "zpvip_perk_effects_total{perk=\"no_fall\"} %d\n", atomic.LoadInt64(&c.FallDamageBlocked))
		fmt.Fprintf(w, "zpvip_perk_effects_total{perk=\"announce\"} %d\n", atomic.LoadInt64(&c.Announcements))
		fmt.Fprintf(w, "zpvip_perk_effects_total{perk=\"infect\"} %d\n\n", atomic.LoadInt64(&c.InfectionRewards))

		fmt.Fprintf(w, "# HELP zpvip_classifier_fallbacks_total Role checks answered by the team fallback after a provider error\n")
		fmt.Fprintf(w, "# TYPE zpvip_classifier_fallbacks_total counter\n")
		fmt.Fprintf(w, "zpvip_classifier_fallbacks_total %d\n\n", atomic.LoadInt64(&c.ClassifierFallbacks))

		fmt.Fprintf(w, "# HELP zpvip_deferred_dropped_total Deferred tasks abandoned on a stale player\n")
		fmt.Fprintf(w, "# TYPE zpvip_deferred_dropped_total counter\n")
		fmt.Fprintf(w, "zpvip_deferred_dropped_total %d\n\n", atomic.LoadInt64(&c.DeferredDropped))

		fmt.Fprintf(w, "# HELP zpvip_damage_abandoned_total Damage requests dropped after the host stopped waiting\n")
		fmt.Fprintf(w, "# TYPE zpvip_damage_abandoned_total counter\n")
		fmt.Fprintf(w, "zpvip_damage_abandoned_total %d\n\n", atomic.LoadInt64(&c.DamageAbandoned))

		// Ledger metrics
		fmt.Fprintf(w, "# HELP zpvip_ledger_writes Total ledger writes\n")
		fmt.Fprintf(w, "# TYPE zpvip_ledger_writes counter\n")
		fmt.Fprintf(w, "zpvip_ledger_writes %d\n\n", atomic.LoadInt64(&c.LedgerWrites))

		fmt.Fprintf(w, "# HELP zpvip_ledger_write_errors Total ledger write errors\n")
		fmt.Fprintf(w, "# TYPE zpvip_ledger_write_errors counter\n")
		fmt.Fprintf(w, "zpvip_ledger_write_errors %d\n\n", atomic.LoadInt64(&c.LedgerWriteErrors))

		// WebSocket metrics
		fmt.Fprintf(w, "# HELP zpvip_ws_connections Active WebSocket connections\n")
		fmt.Fprintf(w, "# TYPE zpvip_ws_connections gauge\n")
		fmt.Fprintf(w, "zpvip_ws_connections %d\n\n", atomic.LoadInt64(&c.WSConnectionsActive))

		fmt.Fprintf(w, "# HELP zpvip_ws_messages_total Total WebSocket messages\n")
		fmt.Fprintf(w, "# TYPE zpvip_ws_messages_total counter\n")
		fmt.Fprintf(w, "zpvip_ws_messages_total{direction=\"in\"} %d\n", atomic.LoadInt64(&c.WSMessagesIn))
		fmt.Fprintf(w, "zpvip_ws_messages_total{direction=\"out\"} %d\n", atomic.LoadInt64(&c.WSMessagesOut))
	}
}
