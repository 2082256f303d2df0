// Package optimization provides buffer and pool tuning for the perk server.
package optimization

import (
	"runtime"
)

// Config holds tuned parameters for the dispatch loop and transports.
type Config struct {
	// Channel buffer sizes
	EventChannelBuffer     int // engine inbox
	BroadcastChannelBuffer int // observer hub
	ClientSendBuffer       int // per WebSocket

	// Connection pools
	DBMaxOpenConns int
	DBMaxIdleConns int

	// Journal retention
	JournalCapacity int

	// Rate limiting
	MaxMessagesPerSecond int
	MaxObservers         int
}

// DefaultConfig returns sensible defaults for production.
func DefaultConfig() *Config {
	numCPU := runtime.NumCPU()

	return &Config{
		// A 64-slot server at 64 ticks/s with damage bursts.
		EventChannelBuffer:     1024,
		BroadcastChannelBuffer: 256,
		ClientSendBuffer:       64,

		DBMaxOpenConns: numCPU * 2,
		DBMaxIdleConns: numCPU,

		JournalCapacity: 4096,

		MaxMessagesPerSecond: 2000, // host link, ticks included
		MaxObservers:         50,
	}
}

// StressTestConfig returns aggressive settings for load generation.
func StressTestConfig() *Config {
	numCPU := runtime.NumCPU()

	return &Config{
		EventChannelBuffer:     8192,
		BroadcastChannelBuffer: 1024,
		ClientSendBuffer:       256,

		DBMaxOpenConns: numCPU * 4,
		DBMaxIdleConns: numCPU * 2,

		JournalCapacity: 16384,

		MaxMessagesPerSecond: 10000,
		MaxObservers:         200,
	}
}

// LowResourceConfig returns minimal settings for development.
func LowResourceConfig() *Config {
	return &Config{
		EventChannelBuffer:     64,
		BroadcastChannelBuffer: 16,
		ClientSendBuffer:       8,

		DBMaxOpenConns: 2,
		DBMaxIdleConns: 1,

		JournalCapacity: 512,

		MaxMessagesPerSecond: 500,
		MaxObservers:         5,
	}
}

// ForProfile picks a config by name ("stress", "low", anything else = default).
func ForProfile(name string) *Config {
	switch name {
	case "stress":
		return StressTestConfig()
	case "low":
		return LowResourceConfig()
	default:
		return DefaultConfig()
	}
}

// Recommendations provides suggestions based on observed metrics.
type Recommendations struct {
	IncreaseEventBuffer     bool
	IncreaseBroadcastBuffer bool
	IncreaseDBConnections   bool
	Notes                   []string
}

// Analyze examines a metrics snapshot and returns tuning recommendations.
func Analyze(metrics map[string]interface{}) *Recommendations {
	rec := &Recommendations{
		Notes: make([]string, 0),
	}

	// A tick pass must fit well inside one 64 Hz frame.
	if tick, ok := metrics["tick"].(map[string]interface{}); ok {
		if maxLat, ok := tick["max_latency_ms"].(float64); ok && maxLat > 8 {
			rec.IncreaseEventBuffer = true
			rec.Notes = append(rec.Notes, "Tick latency exceeds 8ms - increase engine inbox buffer")
		}
	}

	if ledger, ok := metrics["ledger"].(map[string]interface{}); ok {
		if maxLat, ok := ledger["max_write_lat_ms"].(float64); ok && maxLat > 50 {
			rec.IncreaseDBConnections = true
			rec.Notes = append(rec.Notes, "Ledger write latency exceeds 50ms - increase DB connections")
		}
		if errors, ok := ledger["errors"].(int64); ok && errors > 0 {
			rec.IncreaseDBConnections = true
			rec.Notes = append(rec.Notes, "Ledger write errors detected - check DB connection pool")
		}
	}

	if ws, ok := metrics["websocket"].(map[string]interface{}); ok {
		if errors, ok := ws["errors"].(int64); ok && errors > 0 {
			rec.IncreaseBroadcastBuffer = true
			rec.Notes = append(rec.Notes, "WebSocket errors detected - increase client send buffer")
		}
	}

	return rec
}

// ApplyRecommendations modifies config based on recommendations.
func ApplyRecommendations(config *Config, rec *Recommendations) *Config {
	if rec.IncreaseEventBuffer {
		config.EventChannelBuffer *= 2
	}
	if rec.IncreaseBroadcastBuffer {
		config.BroadcastChannelBuffer *= 2
		config.ClientSendBuffer *= 2
	}
	if rec.IncreaseDBConnections {
		config.DBMaxOpenConns = int(float64(config.DBMaxOpenConns) * 1.5)
		config.DBMaxIdleConns = int(float64(config.DBMaxIdleConns) * 1.5)
	}
	return config
}
