package rules

// SettleDamage adds damage to a reward accumulator and returns how many
// whole thresholds were crossed plus the carried remainder.
// A threshold <= 0 settles nothing and leaves the accumulator untouched.
func SettleDamage(accumulator, damage, threshold int) (batches int, remainder int) {
	if threshold <= 0 {
		return 0, accumulator
	}
	if damage > 0 {
		accumulator += damage
	}
	if accumulator < 0 {
		accumulator = 0
	}
	batches = accumulator / threshold
	return batches, accumulator - batches*threshold
}

// ClampArmor returns the armor a spawning VIP should end up with.
// Existing armor above the floor is never lowered; floor <= 0 disables.
func ClampArmor(current, floor int) int {
	if floor <= 0 || current >= floor {
		return current
	}
	return floor
}

// HealCapped adds bonus health without exceeding max.
func HealCapped(health, bonus, max int) int {
	if bonus <= 0 {
		return health
	}
	healed := health + bonus
	if healed > max {
		return max
	}
	return healed
}
