package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/MRamiBalles/zpvip/internal/infra/storage"
	"github.com/MRamiBalles/zpvip/internal/platform/logger"
)

func TestTickRate(t *testing.T) {
	cases := map[string]time.Duration{
		"":      time.Second / 64,
		"64":    time.Second / 64,
		"20ms":  20 * time.Millisecond,
		"0":     0,
		"bogus": 0,
	}
	for raw, want := range cases {
		t.Setenv("VIP_TICK_RATE", raw)
		if got := tickRate(); got != want {
			t.Errorf("VIP_TICK_RATE=%q: expected %s, got %s", raw, want, got)
		}
	}
}

func TestServeGrants(t *testing.T) {
	db, err := storage.InitSQLite(filepath.Join(t.TempDir(), "ledger.sqlite"))
	if err != nil {
		t.Fatalf("InitSQLite error: %v", err)
	}
	ledger := storage.NewLedger(db, storage.DialectSQLite)
	defer ledger.Close()
	appLogger := logger.NewDiscard()

	ctx := context.Background()
	ledger.Bind(ctx, 4, 444)
	ledger.Set(4, 3)
	ledger.RecordGrant(ctx, storage.GrantRecord{PlayerID: 4, Kind: "GRANT", Amount: 3, Reason: "kill"})

	rec := httptest.NewRecorder()
	serveGrants(rec, httptest.NewRequest(http.MethodGet, "/api/grants?player=4", nil), ledger, appLogger)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Balance int                   `json:"balance"`
		History []storage.GrantRecord `json:"history"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Bad body: %v", err)
	}
	if body.Balance != 3 || len(body.History) != 1 || body.History[0].SteamID != 444 {
		t.Errorf("Unexpected grants response %+v", body)
	}

	rec = httptest.NewRecorder()
	serveGrants(rec, httptest.NewRequest(http.MethodGet, "/api/grants?player=x", nil), ledger, appLogger)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for a bad player, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	serveGrants(rec, httptest.NewRequest(http.MethodGet, "/api/grants?player=4", nil), nil, appLogger)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 without a ledger, got %d", rec.Code)
	}
}

func TestServeGrantsBalanceError(t *testing.T) {
	db, err := storage.InitSQLite(filepath.Join(t.TempDir(), "ledger.sqlite"))
	if err != nil {
		t.Fatalf("InitSQLite error: %v", err)
	}
	ledger := storage.NewLedger(db, storage.DialectSQLite)
	defer ledger.Close()
	ctx := context.Background()
	ledger.RecordGrant(ctx, storage.GrantRecord{PlayerID: 8, SteamID: 88, Kind: "GRANT", Amount: 1, Reason: "kill"})

	// Slot 8 was never read, so its balance needs the table.
	if _, err := db.ExecContext(ctx, `DROP TABLE ammo_packs`); err != nil {
		t.Fatalf("DROP TABLE error: %v", err)
	}

	rec := httptest.NewRecorder()
	serveGrants(rec, httptest.NewRequest(http.MethodGet, "/api/grants?player=8", nil), ledger, logger.NewDiscard())
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500 when the balance cannot be read, got %d", rec.Code)
	}
}
