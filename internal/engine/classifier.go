package engine

import (
	"fmt"
	"time"

	"github.com/MRamiBalles/zpvip/internal/config"
	"github.com/MRamiBalles/zpvip/internal/integration"
	"github.com/MRamiBalles/zpvip/internal/platform/logger"
	"github.com/MRamiBalles/zpvip/internal/platform/metrics"
	"github.com/MRamiBalles/zpvip/internal/world"
)

// InfectedTeam is the team that plays zombies on a standard server.
const InfectedTeam = world.TeamT

// failureLogEvery bounds how often a failing role provider is logged.
const failureLogEvery = time.Minute

// Classifier answers the two questions every perk asks: is this player a
// VIP, and is this player a zombie.
type Classifier struct {
	world  world.World
	config *config.Holder
	roles  integration.RoleClassifier
	logger *logger.Logger
	now    func() time.Time

	lastFailureLog time.Time
}

// NewClassifier creates a classifier. roles may be nil, in which case every
// role check uses the team rule.
func NewClassifier(w world.World, cfg *config.Holder, roles integration.RoleClassifier, log *logger.Logger, now func() time.Time) *Classifier {
	if now == nil {
		now = time.Now
	}
	return &Classifier{
		world:  w,
		config: cfg,
		roles:  roles,
		logger: log,
		now:    now,
	}
}

// IsPrivileged reports whether p holds any configured VIP flag. It fails
// closed for invalid players and players without a SteamID. An empty flag
// list makes every authenticated player a VIP.
func (c *Classifier) IsPrivileged(p world.Player) bool {
	if p == nil || !p.IsValid() {
		return false
	}
	steamID := p.SteamID()
	if steamID == 0 {
		return false
	}

	cfg := c.config.Current()
	if cfg.EveryoneVIP() {
		return true
	}
	for _, flag := range cfg.PermissionFlags() {
		if c.world.HasPermission(steamID, flag) {
			return true
		}
	}
	return false
}

// IsOpposingRole reports whether the slot is infected. The role provider is
// preferred; when it errors or panics this one evaluation uses the team rule.
func (c *Classifier) IsOpposingRole(id int) bool {
	if c.roles != nil {
		infected, err := c.askProvider(id)
		if err == nil {
			return infected
		}
		metrics.Get().RecordClassifierFallback()
		c.logFailure(err)
	}
	return c.teamFallback(id)
}

func (c *Classifier) askProvider(id int) (infected bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("role provider panicked: %v", r)
		}
	}()
	return c.roles.IsInfected(id)
}

func (c *Classifier) teamFallback(id int) bool {
	p, ok := c.world.Player(id)
	if !ok || p == nil || !p.IsValid() {
		return false
	}
	return p.Team() == InfectedTeam
}

func (c *Classifier) logFailure(err error) {
	now := c.now()
	if !c.lastFailureLog.IsZero() && now.Sub(c.lastFailureLog) < failureLogEvery {
		return
	}
	c.lastFailureLog = now
	c.logger.Warnf("Role provider failed, using team check: %v", err)
}
