// Package main is the entry point for the VIP perk server.
// It only handles dependency injection and server initialization.
// NO business logic belongs here.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/MRamiBalles/zpvip/internal/config"
	"github.com/MRamiBalles/zpvip/internal/engine"
	"github.com/MRamiBalles/zpvip/internal/events"
	"github.com/MRamiBalles/zpvip/internal/infra/storage"
	"github.com/MRamiBalles/zpvip/internal/integration"
	"github.com/MRamiBalles/zpvip/internal/network"
	"github.com/MRamiBalles/zpvip/internal/platform/logger"
	"github.com/MRamiBalles/zpvip/internal/platform/metrics"
	"github.com/MRamiBalles/zpvip/internal/platform/optimization"
	"github.com/MRamiBalles/zpvip/internal/world"
)

func main() {
	log.Println("[VIP-SERVER] Initializing zombie-plague VIP perk server...")

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("[VIP-SERVER] .env not loaded: %v", err)
	}

	appLogger := logger.NewLogger()
	appLogger.SetDebug(envBool("VIP_DEBUG"))

	tuning := optimization.ForProfile(os.Getenv("VIP_PROFILE"))

	configPath := envOr("VIP_CONFIG", "zpovip.json")
	cfg := loadConfig(configPath, appLogger)
	holder := config.NewHolder(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watcher := config.NewWatcher(configPath, holder, appLogger, 0)
	watcher.OnReload(func(c *config.Config) {
		appLogger.Infof("Config reloaded. Permission: '%s', happy hour %02d-%02d", c.VIPPermission, c.HappyHourStart, c.HappyHourEnd)
	})
	go watcher.Start(ctx)

	appLogger.Info("Opening ammo-pack ledger...")
	ledger, err := storage.OpenLedgerFromEnv()
	if err != nil {
		appLogger.Error("Failed to open ledger: " + err.Error())
		os.Exit(1)
	}

	var journal *events.Journal
	if ledger != nil {
		defer ledger.Close()
		ledger.DB().SetMaxOpenConns(tuning.DBMaxOpenConns)
		ledger.DB().SetMaxIdleConns(tuning.DBMaxIdleConns)
		if ledger.Dialect() == storage.DialectSQLite {
			ledger.DB().SetMaxOpenConns(1)
		}
		ledger.OnWriteError(func(id int, err error) {
			appLogger.Warnf("Ledger write for slot %d failed: %v", id, err)
		})
		appLogger.Infof("Ledger ready (dialect=%s)", ledger.Dialect())
		journal = events.NewJournal(ledger, tuning.JournalCapacity)
		defer journal.Close()
		journal.OnPersist(func(_ time.Duration, err error) {
			if err != nil {
				appLogger.Warnf("Journal write-through failed: %v", err)
			}
		})
	} else {
		appLogger.Warn("DB_DIALECT=none: grants are not persisted and rewards fall back to chat-only")
		journal = events.NewJournal(nil, tuning.JournalCapacity)
	}

	appLogger.Info("Bootstrapping host bridge...")
	wsOpts := network.OptionsFrom(tuning)
	gameWorld := world.NewMemory()
	providerName := envOr("VIP_PROVIDER", integration.DefaultProviderName)
	bridge := network.NewBridge(providerName, gameWorld, ledger, wsOpts, appLogger)

	registry := integration.NewRegistry()
	registry.Register(bridge)
	caps := integration.Resolve(registry, providerName, appLogger)

	appLogger.Info("Bootstrapping perk engine...")
	perkEngine := engine.NewEngine(gameWorld, holder, caps, journal, appLogger, engine.Options{
		TickRate:    tickRate(),
		InboxBuffer: tuning.EventChannelBuffer,
	})
	bridge.Attach(perkEngine)
	perkEngine.Start(ctx)

	appLogger.Info("Bootstrapping observer hub...")
	hub := network.NewHub(wsOpts, appLogger)
	go hub.Run(ctx)
	hub.StartJournalPoller(ctx, journal, 200*time.Millisecond)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws/host", bridge.ServeHost)
	mux.HandleFunc("/ws/observe", hub.ServeWS)
	mux.HandleFunc("/metrics", metrics.Handler())
	mux.HandleFunc("/metrics/prometheus", metrics.PrometheusHandler())
	mux.HandleFunc("/api/tuning", func(w http.ResponseWriter, r *http.Request) {
		rec := optimization.Analyze(metrics.Get().Snapshot())
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"current":         tuning,
			"recommendations": rec,
			"suggested":       optimization.ApplyRecommendations(cloneTuning(tuning), rec),
		})
	})
	mux.HandleFunc("/api/grants", func(w http.ResponseWriter, r *http.Request) {
		serveGrants(w, r, ledger, appLogger)
	})

	listen := envOr("VIP_LISTEN", ":8080")
	server := &http.Server{Addr: listen, Handler: mux}
	go func() {
		log.Printf("[VIP-SERVER] HTTP API & WS Server listening on %s", listen)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	log.Println("[VIP-SERVER] Server running. Press Ctrl+C to exit.")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[VIP-SERVER] Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)
	cancel()
}

// loadConfig falls back to defaults when the file is missing or invalid; the
// watcher picks the file up once it is fixed.
func loadConfig(path string, appLogger *logger.Logger) *config.Config {
	cfg, warnings, err := config.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			appLogger.Warnf("Config %s not found, using defaults", path)
		} else {
			appLogger.Errorf("Config %s invalid, using defaults: %v", path, err)
		}
		return config.Default()
	}
	for _, w := range warnings {
		appLogger.Warn(w)
	}
	return cfg
}

// serveGrants answers GET /api/grants?player=N[&steam_id=S] with the recap
// and history of a slot.
func serveGrants(w http.ResponseWriter, r *http.Request, ledger *storage.Ledger, appLogger *logger.Logger) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if ledger == nil {
		http.Error(w, "Ledger disabled", http.StatusServiceUnavailable)
		return
	}
	playerID, err := strconv.Atoi(r.URL.Query().Get("player"))
	if err != nil {
		http.Error(w, "Invalid player", http.StatusBadRequest)
		return
	}
	var steamID uint64
	if raw := r.URL.Query().Get("steam_id"); raw != "" {
		if steamID, err = strconv.ParseUint(raw, 10, 64); err != nil {
			http.Error(w, "Invalid steam_id", http.StatusBadRequest)
			return
		}
	}

	recap, err := storage.NewReconstructor(ledger).Rebuild(r.Context(), playerID, steamID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	history, err := ledger.GrantsFor(r.Context(), playerID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	balance, err := ledger.Get(playerID)
	if err != nil {
		appLogger.Errorf("Balance lookup for slot %d failed: %v", playerID, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"recap":   recap,
		"balance": balance,
		"history": history,
	})
}

func tickRate() time.Duration {
	raw := strings.TrimSpace(os.Getenv("VIP_TICK_RATE"))
	if raw == "" {
		return time.Second / 64
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if hz, err := strconv.Atoi(raw); err == nil && hz > 0 {
		return time.Second / time.Duration(hz)
	}
	// "0" or garbage: the host forwards its own ticks.
	return 0
}

func cloneTuning(c *optimization.Config) *optimization.Config {
	cp := *c
	return &cp
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envBool(key string) bool {
	v, _ := strconv.ParseBool(os.Getenv(key))
	return v
}
