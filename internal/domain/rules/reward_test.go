package rules

import "testing"

func TestSettleDamageExample(t *testing.T) {
	// threshold=500: 300 -> nothing, 250 -> one batch (rem 50), 10 -> nothing (rem 60)
	acc := 0
	total := 0
	for i, dmg := range []int{300, 250, 10} {
		var batches int
		batches, acc = SettleDamage(acc, dmg, 500)
		total += batches
		switch i {
		case 0:
			if batches != 0 || acc != 300 {
				t.Fatalf("event 1: batches=%d acc=%d", batches, acc)
			}
		case 1:
			if batches != 1 || acc != 50 {
				t.Fatalf("event 2: batches=%d acc=%d", batches, acc)
			}
		case 2:
			if batches != 0 || acc != 60 {
				t.Fatalf("event 3: batches=%d acc=%d", batches, acc)
			}
		}
	}
	if total != 1 {
		t.Errorf("expected 1 batch in total, got %d", total)
	}
}

func TestSettleDamageChunkingInvariant(t *testing.T) {
	const threshold = 137
	chunkings := [][]int{
		{1000},
		{500, 500},
		{1, 999},
		{137, 137, 137, 137, 137, 137, 137, 41},
		{999, 1},
		{250, 250, 250, 250},
	}
	for _, chunks := range chunkings {
		acc, total, sum := 0, 0, 0
		for _, c := range chunks {
			var b int
			b, acc = SettleDamage(acc, c, threshold)
			total += b
			sum += c
		}
		if total != sum/threshold {
			t.Errorf("chunks %v: batches=%d, want %d", chunks, total, sum/threshold)
		}
		if acc != sum%threshold {
			t.Errorf("chunks %v: remainder=%d, want %d", chunks, acc, sum%threshold)
		}
	}
}

func TestSettleDamageLargeHit(t *testing.T) {
	batches, rem := SettleDamage(20, 1490, 500)
	if batches != 3 || rem != 10 {
		t.Errorf("got batches=%d rem=%d, want 3 and 10", batches, rem)
	}
}

func TestSettleDamageDisabled(t *testing.T) {
	batches, rem := SettleDamage(40, 900, 0)
	if batches != 0 || rem != 40 {
		t.Errorf("zero threshold must not settle: batches=%d rem=%d", batches, rem)
	}
}

func TestClampArmor(t *testing.T) {
	if got := ClampArmor(20, 100); got != 100 {
		t.Errorf("ClampArmor(20, 100) = %d", got)
	}
	if got := ClampArmor(150, 100); got != 150 {
		t.Errorf("existing armor must not be lowered, got %d", got)
	}
	if got := ClampArmor(20, 0); got != 20 {
		t.Errorf("floor 0 disables, got %d", got)
	}
}

func TestHealCapped(t *testing.T) {
	if got := HealCapped(1000, 500, 1200); got != 1200 {
		t.Errorf("HealCapped = %d, want 1200", got)
	}
	if got := HealCapped(100, 500, 2000); got != 600 {
		t.Errorf("HealCapped = %d, want 600", got)
	}
	if got := HealCapped(100, 0, 2000); got != 100 {
		t.Errorf("bonus 0 must not heal, got %d", got)
	}
}
