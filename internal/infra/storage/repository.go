// Package storage provides the persistence layer for the ammo-pack ledger.
// The engine never imports this package; it only sees the
// integration.CurrencyCounter and events.JournalPersister interfaces.
package storage

import (
	"context"
	"time"
)

// GrantRecord is one persisted reward line.
type GrantRecord struct {
	ID        string    `json:"id" db:"id"`
	PlayerID  int       `json:"player_id" db:"player_id"`
	SteamID   uint64    `json:"steam_id" db:"steam_id"`
	Kind      string    `json:"kind" db:"kind"`
	Amount    int       `json:"amount" db:"amount"`
	Reason    string    `json:"reason" db:"reason"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// BalanceRepository stores the current ammo-pack balance of each slot.
type BalanceRepository interface {
	// Get returns the balance of a slot, 0 when none is stored.
	Get(id int) (int, error)

	// Set overwrites the balance of a slot.
	Set(id int, v int) error

	// ResetSlot forgets the balance of a slot whose client left.
	ResetSlot(ctx context.Context, id int) error
}

// GrantRepository stores the append-only reward history.
type GrantRepository interface {
	// RecordGrant appends a reward line.
	RecordGrant(ctx context.Context, g GrantRecord) error

	// GrantsFor returns the history of a slot, oldest first.
	GrantsFor(ctx context.Context, playerID int) ([]GrantRecord, error)
}
