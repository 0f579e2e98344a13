package id

import (
	"errors"
	"testing"
	"time"
)

func TestNewRunID_SortsInCreationOrder(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	prev := NewRunID(at)
	for i := 0; i < 100; i++ {
		next := NewRunID(at)
		if next <= prev {
			t.Fatalf("expected %s > %s", next, prev)
		}
		prev = next
	}

	later := NewRunID(at.Add(time.Second))
	if later <= prev {
		t.Fatalf("expected a later run to sort after %s, got %s", prev, later)
	}
}

func TestStartedAt_RoundTripsToTheMillisecond(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 30, 45, 123456789, time.UTC)
	got, err := StartedAt(NewRunID(at))
	if err != nil {
		t.Fatalf("StartedAt: %v", err)
	}
	if want := at.Truncate(time.Millisecond); !got.Equal(want) {
		t.Errorf("StartedAt = %v, want %v", got, want)
	}
}

func TestStartedAt_RejectsForeignIDs(t *testing.T) {
	for _, s := range []string{"", "nope", "stored", "01HV-NOT-A-ULID-AT-ALL-XXXX"} {
		if _, err := StartedAt(s); !errors.Is(err, ErrInvalidRunID) {
			t.Errorf("StartedAt(%q) err = %v, want ErrInvalidRunID", s, err)
		}
	}
}
