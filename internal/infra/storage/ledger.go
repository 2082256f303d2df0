package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/MRamiBalles/zpvip/internal/events"
	"github.com/MRamiBalles/zpvip/internal/platform/metrics"
)

// Dialect names a supported SQL backend.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
	DialectNone     Dialect = "none"
)

// ErrUnsupportedDialect is returned for an unknown DB_DIALECT.
var ErrUnsupportedDialect = errors.New("unsupported DB_DIALECT")

// ErrLedgerClosed is returned by writes after Close.
var ErrLedgerClosed = errors.New("ledger closed")

// DefaultTimeout bounds every ledger statement.
const DefaultTimeout = 2 * time.Second

// writeQueueSize bounds the slots waiting for the write-behind worker. A slot
// is queued at most once however often it changes.
const writeQueueSize = 256

// slotBalance is the cached balance of one slot.
type slotBalance struct {
	steamID uint64
	amount  int
	stored  bool // a row exists, or must exist once written
}

// writeOp asks the worker to persist a slot, or to signal a barrier.
type writeOp struct {
	id      int
	barrier chan struct{}
}

// Ledger is the reference ammo-pack store. Balances are keyed by slot and
// belong to the client currently holding it; a new SteamID on a slot starts
// from zero, even across restarts.
//
// Reads and writes are served from memory once a slot was loaded. A single
// worker writes changed slots behind, so callers on the dispatch goroutine
// never wait on the database for a cached slot.
type Ledger struct {
	dialect Dialect
	db      *sql.DB
	timeout time.Duration

	mu      sync.Mutex
	slots   map[int]*slotBalance
	dirty   map[int]bool
	onError func(id int, err error)

	sendMu    sync.RWMutex
	closed    bool
	writes    chan writeOp
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewLedger wraps an initialised database and starts its writer.
func NewLedger(db *sql.DB, dialect Dialect) *Ledger {
	l := &Ledger{
		dialect: dialect,
		db:      db,
		timeout: DefaultTimeout,
		slots:   make(map[int]*slotBalance),
		dirty:   make(map[int]bool),
		writes:  make(chan writeOp, writeQueueSize),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go l.writeBehind()
	return l
}

// OpenLedgerFromEnv opens the ledger selected by DB_DIALECT. It returns a
// nil ledger for "none".
func OpenLedgerFromEnv() (*Ledger, error) {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv("DB_DIALECT")))
	if raw == "" {
		raw = string(DialectSQLite)
	}

	switch Dialect(raw) {
	case DialectNone:
		return nil, nil
	case DialectSQLite:
		path := strings.TrimSpace(os.Getenv("DB_SQLITE_PATH"))
		if path == "" {
			path = filepath.Join("data", "zpvip.sqlite")
		}
		db, err := InitSQLite(path)
		if err != nil {
			return nil, err
		}
		return NewLedger(db, DialectSQLite), nil
	case DialectPostgres:
		dsn := strings.TrimSpace(os.Getenv("DB_POSTGRES_DSN"))
		if dsn == "" {
			dsn = strings.TrimSpace(os.Getenv("DATABASE_URL"))
		}
		if dsn == "" {
			return nil, errors.New("DB_DIALECT=postgres requires DB_POSTGRES_DSN or DATABASE_URL")
		}
		db, err := InitPostgres(dsn)
		if err != nil {
			return nil, err
		}
		return NewLedger(db, DialectPostgres), nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnsupportedDialect, raw)
	}
}

// Dialect reports the backend in use.
func (l *Ledger) Dialect() Dialect { return l.dialect }

// DB exposes the handle so callers can tune the pool.
func (l *Ledger) DB() *sql.DB { return l.db }

// OnWriteError installs a callback for failed background writes.
func (l *Ledger) OnWriteError(fn func(id int, err error)) {
	l.mu.Lock()
	l.onError = fn
	l.mu.Unlock()
}

// Flush waits until every change queued so far is written.
func (l *Ledger) Flush(ctx context.Context) error {
	barrier := make(chan struct{})
	if err := l.send(writeOp{barrier: barrier}); err != nil {
		return err
	}
	select {
	case <-barrier:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close writes pending balances and releases the database.
func (l *Ledger) Close() error {
	var err error
	l.closeOnce.Do(func() {
		l.sendMu.Lock()
		l.closed = true
		l.sendMu.Unlock()
		close(l.quit)
		<-l.done
		err = l.db.Close()
	})
	return err
}

// Bind ties a slot to the SteamID currently holding it. When the stored
// balance belongs to another SteamID it is cleared.
func (l *Ledger) Bind(ctx context.Context, id int, steamID uint64) error {
	if _, err := l.load(ctx, id); err != nil {
		return err
	}

	l.mu.Lock()
	entry := l.slots[id]
	reset := entry.stored && entry.steamID != steamID
	if reset {
		entry.amount = 0
		entry.stored = false
	}
	entry.steamID = steamID
	queue := reset && l.markDirty(id)
	l.mu.Unlock()

	if queue {
		return l.send(writeOp{id: id})
	}
	return nil
}

// ResetSlot forgets the balance and owner of a slot.
func (l *Ledger) ResetSlot(ctx context.Context, id int) error {
	l.mu.Lock()
	l.slots[id] = &slotBalance{}
	queue := l.markDirty(id)
	l.mu.Unlock()

	if queue {
		if err := l.send(writeOp{id: id}); err != nil {
			return fmt.Errorf("failed to reset slot %d: %w", id, err)
		}
	}
	return nil
}

// Get returns the balance of a slot. Only the first read of a slot touches
// the database.
func (l *Ledger) Get(id int) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	entry, err := l.load(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("failed to read balance: %w", err)
	}
	return entry.amount, nil
}

// Set overwrites the balance of a slot. The row is written behind.
func (l *Ledger) Set(id int, v int) error {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	if _, err := l.load(ctx, id); err != nil {
		return fmt.Errorf("failed to store balance: %w", err)
	}

	l.mu.Lock()
	entry := l.slots[id]
	entry.amount = v
	entry.stored = true
	queue := l.markDirty(id)
	l.mu.Unlock()

	if queue {
		if err := l.send(writeOp{id: id}); err != nil {
			return fmt.Errorf("failed to store balance: %w", err)
		}
	}
	return nil
}

// load returns a copy of the cached slot, reading the row on first use.
func (l *Ledger) load(ctx context.Context, id int) (slotBalance, error) {
	l.mu.Lock()
	if entry, ok := l.slots[id]; ok {
		cp := *entry
		l.mu.Unlock()
		return cp, nil
	}
	l.mu.Unlock()

	var (
		steam  int64
		amount int
		loaded slotBalance
	)
	err := l.db.QueryRowContext(ctx, l.q(`SELECT steam_id, amount FROM ammo_packs WHERE player_id = ?`), id).Scan(&steam, &amount)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return slotBalance{}, err
	default:
		loaded = slotBalance{steamID: uint64(steam), amount: amount, stored: true}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if entry, ok := l.slots[id]; ok {
		return *entry, nil
	}
	l.slots[id] = &loaded
	return loaded, nil
}

// markDirty reports whether id must be queued. Callers hold l.mu.
func (l *Ledger) markDirty(id int) bool {
	if l.dirty[id] {
		return false
	}
	l.dirty[id] = true
	return true
}

func (l *Ledger) send(op writeOp) error {
	l.sendMu.RLock()
	defer l.sendMu.RUnlock()
	if l.closed {
		return ErrLedgerClosed
	}
	l.writes <- op
	return nil
}

// writeBehind is the only goroutine writing ammo_packs.
func (l *Ledger) writeBehind() {
	defer close(l.done)
	for {
		select {
		case op := <-l.writes:
			l.apply(op)
		case <-l.quit:
			for {
				select {
				case op := <-l.writes:
					l.apply(op)
				default:
					return
				}
			}
		}
	}
}

// apply writes the current state of a slot, not the state it had when it
// was queued.
func (l *Ledger) apply(op writeOp) {
	if op.barrier != nil {
		close(op.barrier)
		return
	}

	l.mu.Lock()
	delete(l.dirty, op.id)
	var snap slotBalance
	if entry, ok := l.slots[op.id]; ok {
		snap = *entry
	}
	onError := l.onError
	l.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	var err error
	if snap.stored {
		_, err = l.exec(ctx, `
			INSERT INTO ammo_packs (player_id, steam_id, amount, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(player_id) DO UPDATE SET
				steam_id = excluded.steam_id,
				amount = excluded.amount,
				updated_at = excluded.updated_at
		`, op.id, int64(snap.steamID), snap.amount, time.Now().UTC())
	} else {
		_, err = l.exec(ctx, `DELETE FROM ammo_packs WHERE player_id = ?`, op.id)
	}
	if err != nil && onError != nil {
		onError(op.id, err)
	}
}

// RecordGrant appends a reward line.
func (l *Ledger) RecordGrant(ctx context.Context, g GrantRecord) error {
	if g.ID == "" {
		g.ID = events.GenerateEventID()
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	if g.SteamID == 0 {
		g.SteamID = l.steamOf(g.PlayerID)
	}
	_, err := l.exec(ctx, `
		INSERT INTO grants (id, player_id, steam_id, kind, amount, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, g.ID, g.PlayerID, int64(g.SteamID), g.Kind, g.Amount, g.Reason, g.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record grant: %w", err)
	}
	return nil
}

// GrantsFor returns the reward history of a slot, oldest first.
func (l *Ledger) GrantsFor(ctx context.Context, playerID int) ([]GrantRecord, error) {
	rows, err := l.db.QueryContext(ctx, l.q(`
		SELECT id, player_id, steam_id, kind, amount, reason, created_at
		FROM grants
		WHERE player_id = ?
		ORDER BY created_at ASC, id ASC
	`), playerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query grants: %w", err)
	}
	defer rows.Close()

	var grants []GrantRecord
	for rows.Next() {
		var g GrantRecord
		var steam int64
		if err := rows.Scan(&g.ID, &g.PlayerID, &steam, &g.Kind, &g.Amount, &g.Reason, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}
		g.SteamID = uint64(steam)
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

// AppendEntry persists the reward entries of the perk journal and ignores
// every other kind.
func (l *Ledger) AppendEntry(entry events.JournalEntry) error {
	if entry.Type != events.EntryGrant && entry.Type != events.EntryGrantOffline {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()
	return l.RecordGrant(ctx, GrantRecord{
		ID:        entry.ID,
		PlayerID:  entry.PlayerID,
		Kind:      string(entry.Type),
		Amount:    entry.Amount,
		Reason:    entry.Reason,
		CreatedAt: entry.Timestamp.UTC(),
	})
}

func (l *Ledger) steamOf(id int) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if entry, ok := l.slots[id]; ok {
		return entry.steamID
	}
	return 0
}

func (l *Ledger) q(query string) string {
	if l.dialect == DialectPostgres {
		return rebind(query)
	}
	return query
}

func (l *Ledger) exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	start := time.Now()
	res, err := l.db.ExecContext(ctx, l.q(query), args...)
	metrics.Get().RecordLedgerWrite(time.Since(start), err)
	return res, err
}

var (
	_ BalanceRepository       = (*Ledger)(nil)
	_ GrantRepository         = (*Ledger)(nil)
	_ events.JournalPersister = (*Ledger)(nil)
)
