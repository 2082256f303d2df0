// Package player defines the per-player perk state tracked across a round.
// This package is PURE domain state and must NOT import network, events or platform.
package player

// JumpPhase is the derived airborne state used by the extra-jump machine.
type JumpPhase string

const (
	PhaseGrounded            JumpPhase = "Grounded"
	PhaseAirborneWithCharges JumpPhase = "AirborneWithCharges"
	PhaseAirborneDepleted    JumpPhase = "AirborneDepleted"
)

// PerkState is the transient record kept for one player slot.
// Every field is cleared together on round end and on disconnect.
type PerkState struct {
	// Damage dealt to the opposing role since the last reward payout.
	DamageAccumulator int `json:"damage_accumulator"`

	// Extra jumps left in the current airborne sequence. Only meaningful
	// when JumpChargesSet is true.
	JumpCharges    int  `json:"jump_charges"`
	JumpChargesSet bool `json:"jump_charges_set"`

	// Last observed jump button, for rising-edge detection.
	PrevJumpPressed bool `json:"prev_jump_pressed"`
	PrevJumpSet     bool `json:"prev_jump_set"`

	// Join broadcast already fired this round.
	Announced bool `json:"announced"`
}

// SetCharges stores n jump charges clamped into [0, max].
func (s *PerkState) SetCharges(n, max int) {
	if n > max {
		n = max
	}
	if n < 0 {
		n = 0
	}
	s.JumpCharges = n
	s.JumpChargesSet = true
}

// ConsumeCharge spends one jump charge. It returns false, and changes nothing,
// when no charge is available.
func (s *PerkState) ConsumeCharge() bool {
	if !s.JumpChargesSet || s.JumpCharges <= 0 {
		return false
	}
	s.JumpCharges--
	return true
}

// ObserveJump records the current jump button and reports a rising edge
// (pressed now, released or unknown before).
func (s *PerkState) ObserveJump(pressed bool) bool {
	prev := s.PrevJumpSet && s.PrevJumpPressed
	s.PrevJumpPressed = pressed
	s.PrevJumpSet = true
	return pressed && !prev
}

// ResetJump discards all jump tracking (death, respawn).
func (s *PerkState) ResetJump() {
	s.JumpCharges = 0
	s.JumpChargesSet = false
	s.PrevJumpPressed = false
	s.PrevJumpSet = false
}

// MarkAnnounced sets the once-per-round announce flag and reports whether
// this call was the one that set it.
func (s *PerkState) MarkAnnounced() bool {
	if s.Announced {
		return false
	}
	s.Announced = true
	return true
}

// Phase derives the jump machine state from ground contact and charges.
func (s PerkState) Phase(onGround bool) JumpPhase {
	if onGround {
		return PhaseGrounded
	}
	if s.JumpChargesSet && s.JumpCharges > 0 {
		return PhaseAirborneWithCharges
	}
	return PhaseAirborneDepleted
}
