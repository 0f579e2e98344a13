package returns

import (
	"math"
	"testing"

	"github.com/epeers/navgraph/internal/models"
)

func january() models.PeriodWindow {
	return models.PeriodWindow{
		Label:        "2024-01",
		PeriodStart:  day(2024, 1, 1),
		PeriodEnd:    day(2024, 1, 31),
		AccountStart: day(2023, 12, 31),
	}
}

func TestOffsets_Offset(t *testing.T) {
	o := DefaultOffsets
	tests := []struct {
		name     string
		day      int
		timing   models.TimingTag
		noStart  bool
		expected int
	}{
		{"end of day", 15, models.TimingEOD, false, 0},
		{"beginning of day", 15, models.TimingBOD, false, 1},
		{"untagged first of month", 1, models.TimingNone, false, 1},
		{"untagged mid month", 15, models.TimingNone, false, 0},
		{"no start adds a day", 15, models.TimingEOD, true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := o.Offset(day(2024, 1, tt.day), tt.timing, tt.noStart)
			if got != tt.expected {
				t.Errorf("expected offset %d, got %d", tt.expected, got)
			}
		})
	}
}

func TestWeight(t *testing.T) {
	w := january()
	if got := Weight(w, day(2024, 1, 1), 1); got != 1 {
		t.Errorf("expected full weight for a backdated first-of-month flow, got %f", got)
	}
	if got := Weight(w, day(2024, 1, 31), 0); got != 0 {
		t.Errorf("expected zero weight on the last day, got %f", got)
	}
	if got := Weight(w, day(2024, 1, 16), 0); math.Abs(got-15.0/31.0) > 1e-12 {
		t.Errorf("expected 15/31, got %f", got)
	}
	if got := Weight(w, day(2024, 1, 1), 5); got != 1 {
		t.Errorf("expected weight clamped to 1, got %f", got)
	}
}

func TestBackdate(t *testing.T) {
	got := Backdate(day(2024, 3, 1), 1)
	if !got.Equal(day(2024, 2, 29)) {
		t.Errorf("expected 2024-02-29, got %v", got)
	}
}

func TestSignedReturn(t *testing.T) {
	if got := SignedReturn(10, 100); got != 10 {
		t.Errorf("expected 10, got %f", got)
	}
	if got := SignedReturn(-10, 100); got != -10 {
		t.Errorf("expected -10, got %f", got)
	}
	if got := SignedReturn(10, 0); got != 0 {
		t.Errorf("expected 0 for empty denominator, got %f", got)
	}
	if got := SignedReturn(0, -50); math.Signbit(got) {
		t.Errorf("expected +0, got %f", got)
	}
}
