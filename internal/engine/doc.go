// Package engine contains the VIP perk logic and its dispatch loop.
//
// ARCHITECTURAL RULE: every handler runs on the Engine's dispatch goroutine.
// Perk state, the deferred-task queue and the reward counter are never
// touched concurrently, so none of them are locked. Other goroutines talk to
// the engine through Post and TakeDamage only.
package engine
