package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/MRamiBalles/zpvip/internal/config"
	"github.com/MRamiBalles/zpvip/internal/domain/player"
	"github.com/MRamiBalles/zpvip/internal/events"
	"github.com/MRamiBalles/zpvip/internal/integration"
	"github.com/MRamiBalles/zpvip/internal/platform/logger"
	"github.com/MRamiBalles/zpvip/internal/platform/metrics"
	"github.com/MRamiBalles/zpvip/internal/world"
)

// ErrStopped is returned by Post and TakeDamage once Run has returned.
var ErrStopped = errors.New("engine stopped")

// DefaultInboxBuffer is the inbox size when Options leaves it unset.
const DefaultInboxBuffer = 1024

// Options tune an Engine.
type Options struct {
	// TickRate > 0 makes the engine emit its own TICK events. Hosts that
	// forward their server frames as TICK events leave it at 0.
	TickRate time.Duration
	// InboxBuffer sizes the event channel.
	InboxBuffer int
	// Now is the wall clock used for happy hour. Defaults to time.Now.
	Now func() time.Time
}

// Damage request states. A request is claimed by the dispatch goroutine or
// abandoned by its caller, never both.
const (
	damagePending int32 = iota
	damageClaimed
	damageAbandoned
)

// request is one unit of work for the dispatch goroutine: an event, a task
// or a damage hook. Damage requests carry a done channel closed after the
// hook ran.
type request struct {
	event  events.GameEvent
	task   func()
	damage *events.DamageInfo
	state  *atomic.Int32
	done   chan struct{}
}

// Engine is the central orchestrator: it owns the perk state and runs every
// handler on a single goroutine, one event at a time.
type Engine struct {
	env    *Env
	logger *logger.Logger
	ticker *Ticker

	inbox   chan request
	stopped chan struct{}

	// Sub-systems
	spawnSystem     *SpawnSystem
	damageSystem    *DamageSystem
	deathSystem     *DeathSystem
	jumpSystem      *JumpSystem
	infectionSystem *InfectionSystem
	commandSystem   *CommandSystem
	lifecycleSystem *LifecycleSystem
}

// NewEngine wires the perk systems over a world, a live config and whatever
// capabilities the integration provider offered.
func NewEngine(w world.World, cfg *config.Holder, caps integration.Capabilities, journal *events.Journal, log *logger.Logger, opts Options) *Engine {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	if opts.InboxBuffer <= 0 {
		opts.InboxBuffer = DefaultInboxBuffer
	}

	env := &Env{
		World:     w,
		Config:    cfg,
		Caps:      caps,
		Store:     player.NewStore(),
		Scheduler: NewScheduler(w),
		Journal:   journal,
		Now:       now,
	}
	env.Classifier = NewClassifier(w, cfg, caps.Roles, log, now)
	env.Rewards = NewRewardBridge(caps, cfg, journal, log, now)

	e := &Engine{
		env:     env,
		logger:  log,
		inbox:   make(chan request, opts.InboxBuffer),
		stopped: make(chan struct{}),

		spawnSystem:     NewSpawnSystem(env, log),
		damageSystem:    NewDamageSystem(env, log),
		deathSystem:     NewDeathSystem(env, log),
		jumpSystem:      NewJumpSystem(env, log),
		infectionSystem: NewInfectionSystem(env, log),
		commandSystem:   NewCommandSystem(env, log),
		lifecycleSystem: NewLifecycleSystem(env, log),
	}
	if opts.TickRate > 0 {
		e.ticker = NewTicker(opts.TickRate, e.Post, log)
	}

	if caps.Infection != nil {
		err := caps.Infection.OnInfect(func(p events.InfectionPayload) {
			e.Post(events.New(events.EventTypePlayerInfect, p))
		})
		if err != nil {
			e.logger.Warnf("Infection events unavailable: %v", err)
		} else {
			e.logger.Info("Subscribed to provider infection events.")
		}
	}

	c := cfg.Current()
	if c.EveryoneVIP() {
		e.logger.Warn("vip_permission is empty: EVERY player is treated as VIP (testing mode).")
	}
	e.logger.Infof("Perk engine ready. Permission: '%s', Commands: !%s / !%s",
		c.VIPPermission, c.VipMenuCommand, c.VipsListCommand)
	return e
}

// Start runs the dispatch loop (and the self-clock, if configured) in the
// background.
func (e *Engine) Start(ctx context.Context) {
	if e.ticker != nil {
		go e.ticker.Start(ctx)
	}
	go e.Run(ctx)
}

// Run processes the inbox until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	e.logger.Info("Starting perk engine...")
	defer close(e.stopped)

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Perk engine stopped.")
			return
		case req := <-e.inbox:
			e.handle(req)
		}
	}
}

func (e *Engine) handle(req request) {
	switch {
	case req.damage != nil:
		if !req.state.CompareAndSwap(damagePending, damageClaimed) {
			// The caller gave up and the host already applied its own value.
			metrics.Get().RecordDamageAbandoned()
			return
		}
		e.HandleDamage(req.damage)
		close(req.done)
	case req.task != nil:
		req.task()
	default:
		e.Dispatch(req.event)
	}
}

// Post queues an event for the dispatch goroutine. Safe from any goroutine.
func (e *Engine) Post(event events.GameEvent) error {
	return e.enqueue(request{event: event})
}

// Do queues fn to run on the dispatch goroutine after everything posted
// before it. Hosts use it to change the world in event order.
func (e *Engine) Do(fn func()) error {
	if fn == nil {
		return nil
	}
	return e.enqueue(request{task: fn})
}

func (e *Engine) enqueue(req request) error {
	select {
	case <-e.stopped:
		return ErrStopped
	default:
	}
	select {
	case e.inbox <- req:
		return nil
	case <-e.stopped:
		return ErrStopped
	}
}

// TakeDamage runs the damage hook on the dispatch goroutine and waits for
// it, so info.Damage holds the final value when it returns nil.
//
// When ctx ends before the hook started, the request is abandoned: the
// engine never touches info and no reward is counted for the hit. Once the
// hook started, TakeDamage waits for it and returns nil.
func (e *Engine) TakeDamage(ctx context.Context, info *events.DamageInfo) error {
	req := request{damage: info, state: new(atomic.Int32), done: make(chan struct{})}
	select {
	case <-e.stopped:
		return ErrStopped
	default:
	}
	select {
	case e.inbox <- req:
	case <-e.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	var err error
	select {
	case <-req.done:
		return nil
	case <-e.stopped:
		err = ErrStopped
	case <-ctx.Done():
		err = ctx.Err()
	}
	if req.state.CompareAndSwap(damagePending, damageAbandoned) {
		return err
	}
	<-req.done
	return nil
}

// HandleDamage runs the damage hook on the caller's goroutine. Only for
// hosts that already serialise their game callbacks.
func (e *Engine) HandleDamage(info *events.DamageInfo) {
	e.damageSystem.OnTakeDamage(info)
}

// Dispatch routes an event to the subsystems on the caller's goroutine.
// Only for hosts that already serialise their game callbacks.
func (e *Engine) Dispatch(event events.GameEvent) {
	switch event.Type {
	case events.EventTypeTick:
		start := time.Now()
		e.env.Scheduler.Step()
		e.jumpSystem.OnTick(event)
		metrics.Get().RecordTick(time.Since(start))

	case events.EventTypePlayerSpawn:
		e.spawnSystem.OnPlayerSpawn(event)

	case events.EventTypePlayerDeath:
		e.deathSystem.OnPlayerDeath(event)

	case events.EventTypeRoundEnd:
		e.lifecycleSystem.OnRoundEnd(event)

	case events.EventTypeClientDisconnect:
		e.lifecycleSystem.OnClientDisconnect(event)

	case events.EventTypePlayerInfect:
		e.infectionSystem.OnPlayerInfect(event)

	case events.EventTypeChatCommand:
		e.commandSystem.OnChatCommand(event)

	case events.EventTypeTakeDamage:
		if info, ok := event.Payload.(*events.DamageInfo); ok {
			e.damageSystem.OnTakeDamage(info)
		}

	default:
		e.logger.Warnf("Ignoring unknown event type %s", event.Type)
	}
}

// Store exposes the perk state for inspection.
func (e *Engine) Store() *player.Store {
	return e.env.Store
}

// Scheduler exposes the deferred-task queue for inspection.
func (e *Engine) Scheduler() *Scheduler {
	return e.env.Scheduler
}
