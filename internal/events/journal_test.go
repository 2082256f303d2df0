package events

import (
	"sync"
	"testing"
	"time"
)

func TestJournalSequenceAndSince(t *testing.T) {
	j := NewJournal(nil, 0)
	j.Append(JournalEntry{Type: EntryGrant, PlayerID: 1, Amount: 2})
	j.Append(JournalEntry{Type: EntryJump, PlayerID: 2})
	third := j.Append(JournalEntry{Type: EntryGrant, PlayerID: 1, Amount: 1})

	if third.Seq != 3 {
		t.Errorf("expected seq 3, got %d", third.Seq)
	}
	if third.ID == "" || third.Timestamp.IsZero() {
		t.Errorf("expected id and timestamp to be stamped")
	}

	tail := j.Since(1)
	if len(tail) != 2 || tail[0].Seq != 2 {
		t.Errorf("unexpected Since(1) result: %+v", tail)
	}
	if got := j.ByPlayer(1); len(got) != 2 {
		t.Errorf("expected 2 entries for player 1, got %d", len(got))
	}
}

func TestJournalCapacity(t *testing.T) {
	j := NewJournal(nil, 3)
	for i := 0; i < 10; i++ {
		j.Append(JournalEntry{Type: EntryGrant, Amount: i})
	}
	all := j.Replay()
	if len(all) != 3 {
		t.Fatalf("expected 3 retained entries, got %d", len(all))
	}
	if all[0].Seq != 8 || all[2].Seq != 10 {
		t.Errorf("expected the newest entries to be retained, got seqs %d..%d", all[0].Seq, all[2].Seq)
	}
}

type recordingPersister struct {
	mu      sync.Mutex
	entries []JournalEntry
}

func (p *recordingPersister) AppendEntry(e JournalEntry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append(p.entries, e)
	return nil
}

func TestJournalWritesThrough(t *testing.T) {
	p := &recordingPersister{}
	j := NewJournal(p, 0)
	done := make(chan struct{}, 1)
	j.OnPersist(func(time.Duration, error) { done <- struct{}{} })

	j.Append(JournalEntry{Type: EntryGrant, PlayerID: 4, Amount: 3})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("persister was never called")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.entries) != 1 || p.entries[0].Amount != 3 {
		t.Errorf("unexpected persisted entries: %+v", p.entries)
	}
}

type blockingPersister struct {
	release chan struct{}
	mu      sync.Mutex
	written int
}

func (p *blockingPersister) AppendEntry(JournalEntry) error {
	<-p.release
	p.mu.Lock()
	p.written++
	p.mu.Unlock()
	return nil
}

func TestJournalAppendDoesNotWaitOnPersister(t *testing.T) {
	p := &blockingPersister{release: make(chan struct{})}
	j := NewJournal(p, 8)

	var mu sync.Mutex
	dropped := 0
	j.OnPersist(func(_ time.Duration, err error) {
		if err == ErrPersistQueueFull {
			mu.Lock()
			dropped++
			mu.Unlock()
		}
	})

	start := time.Now()
	for i := 0; i < 1000; i++ {
		j.Append(JournalEntry{Type: EntryGrant, PlayerID: 1, Amount: 1})
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("burst of appends took %s with a stalled persister", elapsed)
	}
	if got := len(j.Replay()); got != 8 {
		t.Errorf("expected 8 retained entries, got %d", got)
	}

	close(p.release)
	j.Close()

	mu.Lock()
	defer mu.Unlock()
	p.mu.Lock()
	defer p.mu.Unlock()
	if dropped == 0 {
		t.Errorf("expected overflow to be reported")
	}
	if p.written+dropped != 1000 {
		t.Errorf("expected every entry written or reported, written=%d dropped=%d", p.written, dropped)
	}
	if p.written > 9 {
		t.Errorf("persist queue not bounded: %d entries written", p.written)
	}
}
