package engine

import (
	"fmt"
	"strings"

	"github.com/MRamiBalles/zpvip/internal/config"
	"github.com/MRamiBalles/zpvip/internal/events"
	"github.com/MRamiBalles/zpvip/internal/platform/logger"
	"github.com/MRamiBalles/zpvip/internal/world"
)

// Menu footer lines.
const (
	menuSeparator   = "─────────────────────────"
	statusVIP       = "✓ You are a VIP player"
	statusNotVIP    = "✗ You are not a VIP player"
	happyHourActive = "★ Happy Hour is ACTIVE now!"
	noVIPsOnline    = "No VIPs are online at the moment"
)

// CommandSystem answers the !vip and !vips chat commands with list menus.
// Command names are read from the live config on every message.
type CommandSystem struct {
	env    *Env
	logger *logger.Logger
}

// NewCommandSystem creates the chat command system.
func NewCommandSystem(env *Env, log *logger.Logger) *CommandSystem {
	return &CommandSystem{env: env, logger: log}
}

// OnChatCommand reports whether the line was one of ours.
func (cs *CommandSystem) OnChatCommand(event events.GameEvent) bool {
	payload, ok := event.Payload.(events.ChatCommandPayload)
	if !ok {
		cs.logger.Error("Failed to parse ChatCommandPayload")
		return false
	}
	p, ok := cs.env.livePlayer(payload.PlayerID)
	if !ok {
		return false
	}

	name := commandName(payload.Text)
	if name == "" {
		return false
	}
	cfg := cs.env.Config.Current()
	switch {
	case cfg.VipMenuCommand != "" && strings.EqualFold(name, cfg.VipMenuCommand):
		cs.env.World.OpenMenu(p, cs.benefitsMenu(p, cfg))
		return true
	case cfg.VipsListCommand != "" && strings.EqualFold(name, cfg.VipsListCommand):
		cs.env.World.OpenMenu(p, cs.vipListMenu())
		return true
	}
	return false
}

// commandName extracts "vip" from "!vip", "/vip" or "!vip extra args".
func commandName(text string) string {
	text = strings.TrimSpace(text)
	if text == "" || (text[0] != '!' && text[0] != '/') {
		return ""
	}
	fields := strings.Fields(text[1:])
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func (cs *CommandSystem) benefitsMenu(p world.Player, cfg *config.Config) world.Menu {
	happyNow := cs.env.happyHour(cfg)

	lines := make([]string, 0, 12)
	for _, line := range cfg.BenefitLines {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if len(cfg.BenefitLines) == 0 {
		lines = append(lines, generatedBenefits(cfg, happyNow)...)
	}

	lines = append(lines, menuSeparator)
	if cs.env.Classifier.IsPrivileged(p) {
		lines = append(lines, statusVIP)
	} else {
		lines = append(lines, statusNotVIP)
	}
	if happyNow {
		lines = append(lines, happyHourActive)
	}
	return world.Menu{Title: cfg.VipMenuTitle, Lines: lines}
}

// generatedBenefits describes the active settings when no lines are configured.
func generatedBenefits(cfg *config.Config, happyNow bool) []string {
	fall := "Normal"
	if cfg.NoFallDamage {
		fall = "Disabled"
	}
	lines := []string{
		fmt.Sprintf("★ Armor on spawn: +%d", cfg.ArmorAmount),
		fmt.Sprintf("★ Extra jumps: %d", cfg.ExtraJumps),
		fmt.Sprintf("★ Fall damage: %s", fall),
		fmt.Sprintf("★ Damage multiplier: ×%.1f vs zombies", cfg.DamageMultiplier),
	}
	if cfg.KillRewardAmount > 0 {
		lines = append(lines, fmt.Sprintf("★ Kill reward: +%d AP per zombie kill", cfg.KillRewardAmount))
	}
	if cfg.DamageRewardThreshold > 0 {
		lines = append(lines, fmt.Sprintf("★ Damage reward: +%d AP per %d dmg", cfg.DamageRewardAmount, cfg.DamageRewardThreshold))
	}
	if cfg.HappyHourEnabled {
		status := ""
		if happyNow {
			status = " [ACTIVE]"
		}
		lines = append(lines,
			fmt.Sprintf("★ Happy Hour %02d:00–%02d:00%s", cfg.HappyHourStart, cfg.HappyHourEnd, status),
			fmt.Sprintf("  +%d AP & +%d frags per kill", cfg.HappyHourBonusAP, cfg.HappyHourBonusFrags),
		)
	}
	return lines
}

func (cs *CommandSystem) vipListMenu() world.Menu {
	var names []string
	for _, other := range cs.env.World.Players() {
		if other == nil || !other.IsValid() || other.IsBot() {
			continue
		}
		if !cs.env.Classifier.IsPrivileged(other) {
			continue
		}
		name := other.Name()
		if name == "" {
			name = "?"
		}
		names = append(names, name)
	}

	menu := world.Menu{Title: fmt.Sprintf("Online VIPs (%d)", len(names))}
	if len(names) == 0 {
		menu.Lines = []string{noVIPsOnline}
		return menu
	}
	for _, name := range names {
		menu.Lines = append(menu.Lines, "★ "+name)
	}
	return menu
}
