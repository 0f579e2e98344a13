package util

import (
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func TestTrackTime_LogsFieldsAndElapsed(t *testing.T) {
	hook := test.NewGlobal()
	prev := log.GetLevel()
	log.SetLevel(log.DebugLevel)
	defer log.SetLevel(prev)

	TrackTime("NodeProcessor.Run", time.Now().Add(-25*time.Millisecond), log.Fields{"vehicle": "V", "periods": 3})

	entry := hook.LastEntry()
	if entry == nil {
		t.Fatal("expected a log entry")
	}
	if entry.Level != log.DebugLevel {
		t.Errorf("level = %v, want debug", entry.Level)
	}
	if entry.Message != "NodeProcessor.Run finished" {
		t.Errorf("message = %q", entry.Message)
	}
	if entry.Data["vehicle"] != "V" || entry.Data["periods"] != 3 {
		t.Errorf("missing fields: %v", entry.Data)
	}
	if ms, ok := entry.Data["elapsed_ms"].(int64); !ok || ms < 25 {
		t.Errorf("elapsed_ms = %v, want >= 25", entry.Data["elapsed_ms"])
	}
}

func TestTrackTime_SilentAboveDebug(t *testing.T) {
	hook := test.NewGlobal()
	prev := log.GetLevel()
	log.SetLevel(log.InfoLevel)
	defer log.SetLevel(prev)

	TrackTime("graph.Build", time.Now(), nil)

	if len(hook.AllEntries()) != 0 {
		t.Errorf("expected no entries at info level, got %d", len(hook.AllEntries()))
	}
}
