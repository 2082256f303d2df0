package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/MRamiBalles/zpvip/internal/events"
)

// Reconstructor rebuilds per-slot reward summaries from the grant history.
// Balances can be overwritten by the provider; the history cannot.
type Reconstructor struct {
	grants GrantRepository
}

// NewReconstructor creates a reconstructor over a grant history.
func NewReconstructor(grants GrantRepository) *Reconstructor {
	return &Reconstructor{grants: grants}
}

// Recap summarises what a slot earned.
type Recap struct {
	PlayerID  int            `json:"player_id"`
	SteamID   uint64         `json:"steam_id,omitempty"`
	Stored    int            `json:"stored"`
	Offline   int            `json:"offline"`
	ByReason  map[string]int `json:"by_reason"`
	Grants    int            `json:"grants"`
	LastGrant *time.Time     `json:"last_grant,omitempty"`
}

// Rebuild folds the history of a slot. When steamID is non-zero only lines
// earned by that client count, so a reused slot starts clean.
func (r *Reconstructor) Rebuild(ctx context.Context, playerID int, steamID uint64) (*Recap, error) {
	history, err := r.grants.GrantsFor(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get grants for slot %d: %w", playerID, err)
	}

	recap := &Recap{PlayerID: playerID, SteamID: steamID, ByReason: make(map[string]int)}
	for _, g := range history {
		if steamID != 0 && g.SteamID != steamID {
			continue
		}
		recap.Grants++
		recap.ByReason[g.Reason] += g.Amount
		if g.Kind == string(events.EntryGrantOffline) {
			recap.Offline += g.Amount
		} else {
			recap.Stored += g.Amount
		}
		at := g.CreatedAt
		if recap.LastGrant == nil || at.After(*recap.LastGrant) {
			recap.LastGrant = &at
		}
	}
	return recap, nil
}
