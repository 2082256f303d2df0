package engine

import (
	"github.com/MRamiBalles/zpvip/internal/platform/metrics"
	"github.com/MRamiBalles/zpvip/internal/world"
)

// deferredTask is work postponed to the next scheduling step. It remembers
// who it was for so a disconnect, or a new client in the same slot, is
// detected before it runs.
type deferredTask struct {
	playerID int
	steamID  uint64
	fn       func(p world.Player)
}

// Scheduler is the one-step delay queue used after spawn and infection to
// let pawn state settle.
type Scheduler struct {
	world world.World
	queue []deferredTask
}

// NewScheduler creates an empty queue resolving players through w.
func NewScheduler(w world.World) *Scheduler {
	return &Scheduler{world: w}
}

// Defer queues fn for p. It runs on the next Step if p is still the same
// valid player.
func (s *Scheduler) Defer(p world.Player, fn func(p world.Player)) {
	if p == nil || fn == nil {
		return
	}
	s.queue = append(s.queue, deferredTask{
		playerID: p.ID(),
		steamID:  p.SteamID(),
		fn:       fn,
	})
}

// Pending returns the number of queued tasks.
func (s *Scheduler) Pending() int {
	return len(s.queue)
}

// Step runs exactly the tasks queued before it started; tasks deferred while
// stepping wait for the next Step. It returns how many tasks ran.
func (s *Scheduler) Step() int {
	if len(s.queue) == 0 {
		return 0
	}
	batch := s.queue
	s.queue = nil

	ran := 0
	for _, task := range batch {
		p, ok := s.world.Player(task.playerID)
		if !ok || p == nil || !p.IsValid() || p.SteamID() != task.steamID {
			metrics.Get().RecordDeferredDropped()
			continue
		}
		task.fn(p)
		ran++
	}
	return ran
}
