// Package config holds the perk configuration document. The document is
// JSON (line comments allowed) and is hot-reloaded by Watcher; readers take
// one snapshot per handler through Holder.Current.
package config

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"github.com/MRamiBalles/zpvip/internal/domain/rules"
)

// ErrUnknownKey is returned when the document holds a key Config does not know.
var ErrUnknownKey = errors.New("unknown config key")

// Config is the perk configuration. Zero values of the numeric knobs are
// "feature disabled" sentinels, never errors.
type Config struct {
	// Comma-separated permission flags granting VIP. A player matching ANY
	// flag is VIP. Empty makes EVERY player VIP (testing/demo mode).
	VIPPermission string `json:"vip_permission"`

	VipMenuCommand  string   `json:"vip_menu_command"`
	VipsListCommand string   `json:"vips_list_command"`
	VipMenuTitle    string   `json:"vip_menu_title"`
	BenefitLines    []string `json:"benefit_lines"` // empty = generated from active settings

	JoinAnnounceEnabled bool   `json:"join_announce_enabled"`
	ChatPrefix          string `json:"chat_prefix"`

	ArmorAmount int `json:"armor_amount"` // armor floor on spawn, 0 disables

	ExtraJumps   int     `json:"extra_jumps"` // 1 = double jump, 0 disables
	JumpVelocity float64 `json:"jump_velocity"`

	NoFallDamage bool `json:"no_fall_damage"`

	DamageMultiplier float64 `json:"damage_multiplier"` // <= 1.0 disables
	ExcludeHEGrenade bool    `json:"exclude_he_grenade"`

	DamageRewardThreshold int `json:"damage_reward_threshold"` // 0 disables
	DamageRewardAmount    int `json:"damage_reward_amount"`    // 0 disables

	KillRewardAmount         int  `json:"kill_reward_amount"` // 0 disables
	KillRewardHappyHourBonus bool `json:"kill_reward_happy_hour_bonus"`

	HappyHourEnabled    bool `json:"happy_hour_enabled"`
	HappyHourStart      int  `json:"happy_hour_start"` // 0-23, Start > End wraps overnight
	HappyHourEnd        int  `json:"happy_hour_end"`
	HappyHourBonusAP    int  `json:"happy_hour_bonus_ap"`
	HappyHourBonusFrags int  `json:"happy_hour_bonus_frags"`

	InfectRewardsEnabled bool `json:"infect_rewards_enabled"`
	InfectRewardAP       int  `json:"infect_reward_ap"`
	InfectRewardHealth   int  `json:"infect_reward_health"` // 0 disables the heal
}

// Default returns the shipped configuration.
func Default() *Config {
	return &Config{
		VIPPermission:   "@zpovip/vip",
		VipMenuCommand:  "vip",
		VipsListCommand: "vips",
		VipMenuTitle:    "VIP Benefits",
		BenefitLines: []string{
			"★ Armor on spawn",
			"★ Double Jump (extra mid-air jumps)",
			"★ No Fall Damage",
			"★ ×1.5 Damage vs Zombies",
			"★ AP reward every 500 damage dealt",
			"★ +2 AP per Zombie Kill",
			"★ Happy Hour: bonus AP & frags",
		},
		JoinAnnounceEnabled:      true,
		ChatPrefix:               "[VIP]",
		ArmorAmount:              100,
		ExtraJumps:               1,
		JumpVelocity:             300,
		NoFallDamage:             true,
		DamageMultiplier:         1.5,
		ExcludeHEGrenade:         true,
		DamageRewardThreshold:    500,
		DamageRewardAmount:       1,
		KillRewardAmount:         2,
		KillRewardHappyHourBonus: true,
		HappyHourEnabled:         true,
		HappyHourStart:           19,
		HappyHourEnd:             8,
		HappyHourBonusAP:         2,
		HappyHourBonusFrags:      1,
		InfectRewardsEnabled:     false,
		InfectRewardAP:           1,
		InfectRewardHealth:       500,
	}
}

// Parse decodes a document over the defaults. Keys absent from the document
// keep their default value. The returned warnings describe values that were
// normalised.
func Parse(data []byte) (*Config, []string, error) {
	cfg := Default()
	dec := json.NewDecoder(bytes.NewReader(stripComments(data)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		if strings.HasPrefix(err.Error(), "json: unknown field") {
			return nil, nil, fmt.Errorf("%w: %s", ErrUnknownKey, strings.TrimPrefix(err.Error(), "json: unknown field "))
		}
		return nil, nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, cfg.normalize(), nil
}

// Load reads and parses a config file.
func Load(path string) (*Config, []string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return Parse(data)
}

// normalize clamps out-of-range values into their documented domain.
func (c *Config) normalize() []string {
	var warnings []string
	clampHour := func(name string, v *int) {
		if *v < 0 || *v > 23 {
			clamped := *v
			if clamped < 0 {
				clamped = 0
			} else {
				clamped = 23
			}
			warnings = append(warnings, fmt.Sprintf("%s=%d out of range, using %d", name, *v, clamped))
			*v = clamped
		}
	}
	floorZero := func(name string, v *int) {
		if *v < 0 {
			warnings = append(warnings, fmt.Sprintf("%s=%d is negative, treating as disabled", name, *v))
			*v = 0
		}
	}

	clampHour("happy_hour_start", &c.HappyHourStart)
	clampHour("happy_hour_end", &c.HappyHourEnd)
	floorZero("armor_amount", &c.ArmorAmount)
	floorZero("extra_jumps", &c.ExtraJumps)
	floorZero("damage_reward_threshold", &c.DamageRewardThreshold)
	floorZero("damage_reward_amount", &c.DamageRewardAmount)
	floorZero("kill_reward_amount", &c.KillRewardAmount)
	floorZero("happy_hour_bonus_ap", &c.HappyHourBonusAP)
	floorZero("happy_hour_bonus_frags", &c.HappyHourBonusFrags)
	floorZero("infect_reward_ap", &c.InfectRewardAP)
	floorZero("infect_reward_health", &c.InfectRewardHealth)

	c.VipMenuCommand = strings.TrimLeft(strings.TrimSpace(c.VipMenuCommand), "!/")
	c.VipsListCommand = strings.TrimLeft(strings.TrimSpace(c.VipsListCommand), "!/")
	return warnings
}

// PermissionFlags splits VIPPermission. A nil result means everyone is VIP.
func (c *Config) PermissionFlags() []string {
	var flags []string
	for _, f := range strings.Split(c.VIPPermission, ",") {
		if f = strings.TrimSpace(f); f != "" {
			flags = append(flags, f)
		}
	}
	return flags
}

// EveryoneVIP reports the testing mode where no permission is required.
func (c *Config) EveryoneVIP() bool {
	return strings.TrimSpace(c.VIPPermission) == ""
}

// HappyHour returns the configured bonus window.
func (c *Config) HappyHour() rules.HappyHour {
	return rules.HappyHour{
		Enabled: c.HappyHourEnabled,
		Start:   c.HappyHourStart,
		End:     c.HappyHourEnd,
	}
}

// JumpsEnabled reports whether extra jumps are on.
func (c *Config) JumpsEnabled() bool {
	return c.ExtraJumps > 0
}

// DamageRewardEnabled reports whether damage is tracked toward rewards.
func (c *Config) DamageRewardEnabled() bool {
	return c.DamageRewardThreshold > 0 && c.DamageRewardAmount > 0
}

// MultiplierEnabled reports whether VIP damage is amplified.
func (c *Config) MultiplierEnabled() bool {
	return c.DamageMultiplier > 1.0
}

// stripComments removes // line comments outside string literals.
func stripComments(data []byte) []byte {
	var out bytes.Buffer
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		inString, escaped := false, false
		cut := len(line)
		for i := 0; i < len(line); i++ {
			ch := line[i]
			switch {
			case escaped:
				escaped = false
			case ch == '\\' && inString:
				escaped = true
			case ch == '"':
				inString = !inString
			case ch == '/' && !inString && i+1 < len(line) && line[i+1] == '/':
				cut = i
				i = len(line)
			}
		}
		out.WriteString(line[:cut])
		out.WriteByte('\n')
	}
	return out.Bytes()
}

// Holder publishes the current configuration to concurrent readers.
type Holder struct {
	current atomic.Pointer[Config]
}

// NewHolder creates a holder seeded with cfg (Default when nil).
func NewHolder(cfg *Config) *Holder {
	if cfg == nil {
		cfg = Default()
	}
	h := &Holder{}
	h.current.Store(cfg)
	return h
}

// Current returns the active configuration. Callers must not mutate it.
func (h *Holder) Current() *Config {
	return h.current.Load()
}

// Swap installs a new configuration.
func (h *Holder) Swap(cfg *Config) {
	h.current.Store(cfg)
}
