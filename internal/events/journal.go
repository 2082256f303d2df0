package events

import (
	"errors"
	"sync"
	"time"
)

// EntryType categorises a perk effect recorded in the journal.
type EntryType string

const (
	EntryGrant        EntryType = "GRANT"
	EntryGrantOffline EntryType = "GRANT_OFFLINE"
	EntryArmor        EntryType = "ARMOR"
	EntryJump         EntryType = "EXTRA_JUMP"
	EntryAnnounce     EntryType = "ANNOUNCE"
	EntryFallBlocked  EntryType = "FALL_BLOCKED"
	EntryMultiplied   EntryType = "DAMAGE_MULTIPLIED"
	EntryBonusFrags   EntryType = "BONUS_FRAGS"
	EntryHeal         EntryType = "INFECT_HEAL"
)

// JournalEntry is an immutable record of one applied perk effect.
type JournalEntry struct {
	Seq       int64     `json:"seq"`
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      EntryType `json:"type"`
	PlayerID  int       `json:"player_id"`
	Amount    int       `json:"amount"`
	Reason    string    `json:"reason,omitempty"`
}

// JournalPersister defines how an entry is durably stored.
type JournalPersister interface {
	AppendEntry(entry JournalEntry) error
}

// DefaultJournalSize bounds the in-memory journal.
const DefaultJournalSize = 4096

// ErrPersistQueueFull reports an entry dropped because the persister fell
// behind. The entry stays in the in-memory journal.
var ErrPersistQueueFull = errors.New("journal persist queue full")

// Journal is the in-memory append-only log of perk effects. Old entries are
// dropped past the capacity; readers page with Since.
type Journal struct {
	mu        sync.RWMutex
	entries   []JournalEntry
	nextSeq   int64
	capacity  int
	persister JournalPersister
	onPersist func(latency time.Duration, err error)

	queue     chan JournalEntry
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewJournal creates a journal with an optional persister.
func NewJournal(persister JournalPersister, capacity int) *Journal {
	if capacity <= 0 {
		capacity = DefaultJournalSize
	}
	j := &Journal{
		entries:   make([]JournalEntry, 0, 64),
		nextSeq:   1,
		capacity:  capacity,
		persister: persister,
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	if persister != nil {
		j.queue = make(chan JournalEntry, capacity)
		go j.persist()
	} else {
		close(j.done)
	}
	return j
}

// Close stops the persister after writing the entries already queued.
func (j *Journal) Close() {
	j.closeOnce.Do(func() {
		close(j.quit)
		<-j.done
	})
}

// persist is the only goroutine calling the persister.
func (j *Journal) persist() {
	defer close(j.done)
	for {
		select {
		case e := <-j.queue:
			j.write(e)
		case <-j.quit:
			for {
				select {
				case e := <-j.queue:
					j.write(e)
				default:
					return
				}
			}
		}
	}
}

func (j *Journal) write(e JournalEntry) {
	start := time.Now()
	err := j.persister.AppendEntry(e)
	j.report(time.Since(start), err)
}

func (j *Journal) report(latency time.Duration, err error) {
	j.mu.RLock()
	onPersist := j.onPersist
	j.mu.RUnlock()
	if onPersist != nil {
		onPersist(latency, err)
	}
}

// OnPersist installs a callback observing every persister write.
func (j *Journal) OnPersist(fn func(latency time.Duration, err error)) {
	j.mu.Lock()
	j.onPersist = fn
	j.mu.Unlock()
}

// Append records an entry, assigning its sequence number, id and timestamp.
func (j *Journal) Append(entry JournalEntry) JournalEntry {
	j.mu.Lock()
	entry.Seq = j.nextSeq
	j.nextSeq++
	if entry.ID == "" {
		entry.ID = GenerateEventID()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	j.entries = append(j.entries, entry)
	if over := len(j.entries) - j.capacity; over > 0 {
		j.entries = append(j.entries[:0], j.entries[over:]...)
	}
	j.mu.Unlock()

	if j.queue != nil {
		select {
		case <-j.quit:
		case j.queue <- entry:
		default:
			j.report(0, ErrPersistQueueFull)
		}
	}
	return entry
}

// Since returns entries with a sequence number greater than seq.
func (j *Journal) Since(seq int64) []JournalEntry {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var result []JournalEntry
	for _, e := range j.entries {
		if e.Seq > seq {
			result = append(result, e)
		}
	}
	return result
}

// ByPlayer returns all retained entries for a slot.
func (j *Journal) ByPlayer(playerID int) []JournalEntry {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var result []JournalEntry
	for _, e := range j.entries {
		if e.PlayerID == playerID {
			result = append(result, e)
		}
	}
	return result
}

// Replay returns a copy of every retained entry.
func (j *Journal) Replay() []JournalEntry {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return append([]JournalEntry(nil), j.entries...)
}
