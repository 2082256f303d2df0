package storage

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MRamiBalles/zpvip/internal/events"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	db, err := InitSQLite(filepath.Join(t.TempDir(), "ledger.sqlite"))
	if err != nil {
		t.Fatalf("InitSQLite error: %v", err)
	}
	l := NewLedger(db, DialectSQLite)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestOpenLedgerFromEnvErrors(t *testing.T) {
	t.Setenv("DB_POSTGRES_DSN", "")
	t.Setenv("DATABASE_URL", "")

	t.Setenv("DB_DIALECT", "postgres")
	l, err := OpenLedgerFromEnv()
	if err == nil || !strings.Contains(err.Error(), "requires DB_POSTGRES_DSN or DATABASE_URL") {
		t.Fatalf("expected postgres DSN error, got ledger=%v err=%v", l, err)
	}

	t.Setenv("DB_DIALECT", "bogus")
	l, err = OpenLedgerFromEnv()
	if !errors.Is(err, ErrUnsupportedDialect) {
		t.Fatalf("expected ErrUnsupportedDialect, got ledger=%v err=%v", l, err)
	}

	t.Setenv("DB_DIALECT", "none")
	l, err = OpenLedgerFromEnv()
	if err != nil || l != nil {
		t.Fatalf("expected no ledger for none, got ledger=%v err=%v", l, err)
	}
}

func TestOpenLedgerFromEnvSQLite(t *testing.T) {
	t.Setenv("DB_DIALECT", "SQLite")
	t.Setenv("DB_SQLITE_PATH", filepath.Join(t.TempDir(), "nested", "zpvip.sqlite"))

	l, err := OpenLedgerFromEnv()
	if err != nil {
		t.Fatalf("OpenLedgerFromEnv sqlite error: %v", err)
	}
	defer l.Close()
	if l.Dialect() != DialectSQLite {
		t.Errorf("Expected sqlite dialect, got %s", l.Dialect())
	}
}

func TestLedgerBalanceRoundTrip(t *testing.T) {
	l := openTestLedger(t)

	if v, err := l.Get(3); err != nil || v != 0 {
		t.Fatalf("Expected empty balance, got %d err=%v", v, err)
	}
	if err := l.Set(3, 12); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	if err := l.Set(3, 15); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	if v, _ := l.Get(3); v != 15 {
		t.Errorf("Expected 15, got %d", v)
	}
}

func TestLedgerNewClientOnSlotStartsFromZero(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	if err := l.Bind(ctx, 1, 111); err != nil {
		t.Fatalf("Bind error: %v", err)
	}
	l.Set(1, 40)

	// Same client again keeps the balance.
	l.Bind(ctx, 1, 111)
	if v, _ := l.Get(1); v != 40 {
		t.Fatalf("Rebinding the same client lost the balance: %d", v)
	}

	l.Bind(ctx, 1, 222)
	if v, _ := l.Get(1); v != 0 {
		t.Errorf("New client inherited %d packs", v)
	}
}

func TestLedgerResetSlot(t *testing.T) {
	l := openTestLedger(t)
	l.Set(2, 9)
	if err := l.ResetSlot(context.Background(), 2); err != nil {
		t.Fatalf("ResetSlot error: %v", err)
	}
	if v, _ := l.Get(2); v != 0 {
		t.Errorf("Expected 0 after reset, got %d", v)
	}
}

func TestLedgerPersistsOnlyGrantEntries(t *testing.T) {
	l := openTestLedger(t)
	l.Bind(context.Background(), 4, 76561198000000004)
	base := time.Date(2026, 3, 14, 21, 0, 0, 0, time.UTC)

	entries := []events.JournalEntry{
		{ID: "a", Type: events.EntryGrant, PlayerID: 4, Amount: 2, Reason: "kill", Timestamp: base},
		{ID: "b", Type: events.EntryJump, PlayerID: 4, Amount: 1, Timestamp: base.Add(time.Second)},
		{ID: "c", Type: events.EntryGrantOffline, PlayerID: 4, Amount: 1, Reason: "damage", Timestamp: base.Add(2 * time.Second)},
	}
	for _, e := range entries {
		if err := l.AppendEntry(e); err != nil {
			t.Fatalf("AppendEntry error: %v", err)
		}
	}

	grants, err := l.GrantsFor(context.Background(), 4)
	if err != nil {
		t.Fatalf("GrantsFor error: %v", err)
	}
	if len(grants) != 2 || grants[0].ID != "a" || grants[1].ID != "c" {
		t.Fatalf("Unexpected history %+v", grants)
	}
	if grants[0].SteamID != 76561198000000004 || grants[1].Kind != string(events.EntryGrantOffline) {
		t.Errorf("Unexpected grant fields %+v", grants)
	}
}

func TestReconstructorRecap(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 14, 21, 0, 0, 0, time.UTC)

	l.RecordGrant(ctx, GrantRecord{PlayerID: 5, SteamID: 55, Kind: "GRANT", Amount: 2, Reason: "kill", CreatedAt: base})
	l.RecordGrant(ctx, GrantRecord{PlayerID: 5, SteamID: 55, Kind: "GRANT", Amount: 2, Reason: "happy_hour", CreatedAt: base.Add(time.Minute)})
	l.RecordGrant(ctx, GrantRecord{PlayerID: 5, SteamID: 55, Kind: "GRANT_OFFLINE", Amount: 1, Reason: "damage", CreatedAt: base.Add(2 * time.Minute)})
	l.RecordGrant(ctx, GrantRecord{PlayerID: 5, SteamID: 66, Kind: "GRANT", Amount: 9, Reason: "kill", CreatedAt: base.Add(3 * time.Minute)})

	recap, err := NewReconstructor(l).Rebuild(ctx, 5, 55)
	if err != nil {
		t.Fatalf("Rebuild error: %v", err)
	}
	if recap.Grants != 3 || recap.Stored != 4 || recap.Offline != 1 {
		t.Errorf("Unexpected totals %+v", recap)
	}
	if recap.ByReason["kill"] != 2 || recap.ByReason["happy_hour"] != 2 {
		t.Errorf("Unexpected reasons %v", recap.ByReason)
	}
	if recap.LastGrant == nil || !recap.LastGrant.Equal(base.Add(2*time.Minute)) {
		t.Errorf("Unexpected last grant %v", recap.LastGrant)
	}

	all, _ := NewReconstructor(l).Rebuild(ctx, 5, 0)
	if all.Grants != 4 || all.Stored != 13 {
		t.Errorf("Unfiltered recap wrong: %+v", all)
	}
}

func TestRebind(t *testing.T) {
	got := rebind(`UPDATE t SET a = ? WHERE b = ? AND c = ?`)
	if got != `UPDATE t SET a = $1 WHERE b = $2 AND c = $3` {
		t.Errorf("Unexpected rebind %q", got)
	}
}

func TestLedgerRestartDoesNotLeakBalanceToNewClient(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.sqlite")
	open := func() *Ledger {
		db, err := InitSQLite(path)
		if err != nil {
			t.Fatalf("InitSQLite error: %v", err)
		}
		return NewLedger(db, DialectSQLite)
	}
	ctx := context.Background()

	l := open()
	l.Bind(ctx, 3, 111)
	l.Set(3, 42)
	l.Close()

	l = open()
	l.Bind(ctx, 3, 111)
	if v, _ := l.Get(3); v != 42 {
		t.Fatalf("Returning client lost its balance across restart: %d", v)
	}
	l.Close()

	l = open()
	defer l.Close()
	if err := l.Bind(ctx, 3, 222); err != nil {
		t.Fatalf("Bind error: %v", err)
	}
	if v, _ := l.Get(3); v != 0 {
		t.Errorf("New client inherited %d packs after restart", v)
	}
	if err := l.Flush(ctx); err != nil {
		t.Fatalf("Flush error: %v", err)
	}
	var rows int
	l.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM ammo_packs WHERE player_id = 3`).Scan(&rows)
	if rows != 0 {
		t.Errorf("Stale row for the previous client still stored")
	}
}

func TestLedgerWritesDoNotWaitOnDatabase(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()
	l.Bind(ctx, 1, 111)
	l.Get(1)

	// Hold the only sqlite connection so every statement blocks.
	conn, err := l.DB().Conn(ctx)
	if err != nil {
		t.Fatalf("Conn error: %v", err)
	}

	start := time.Now()
	for i := 1; i <= 1000; i++ {
		if err := l.Set(1, i); err != nil {
			t.Fatalf("Set error: %v", err)
		}
		if v, _ := l.Get(1); v != i {
			t.Fatalf("Expected %d, got %d", i, v)
		}
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Burst of balance updates took %s with the database busy", elapsed)
	}
	conn.Close()

	if err := l.Flush(ctx); err != nil {
		t.Fatalf("Flush error: %v", err)
	}
	var amount int
	if err := l.DB().QueryRowContext(ctx, `SELECT amount FROM ammo_packs WHERE player_id = 1`).Scan(&amount); err != nil {
		t.Fatalf("Query error: %v", err)
	}
	if amount != 1000 {
		t.Errorf("Expected the last balance to be written, got %d", amount)
	}
}

func TestLedgerCloseFlushesPending(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.sqlite")
	db, err := InitSQLite(path)
	if err != nil {
		t.Fatalf("InitSQLite error: %v", err)
	}
	l := NewLedger(db, DialectSQLite)
	l.Set(6, 7)
	l.Close()
	if err := l.Set(6, 8); !errors.Is(err, ErrLedgerClosed) {
		t.Errorf("Expected ErrLedgerClosed after Close, got %v", err)
	}

	db, err = InitSQLite(path)
	if err != nil {
		t.Fatalf("InitSQLite error: %v", err)
	}
	l = NewLedger(db, DialectSQLite)
	defer l.Close()
	if v, _ := l.Get(6); v != 7 {
		t.Errorf("Expected 7 after reopen, got %d", v)
	}
}
