package util

import (
	"testing"
	"time"
)

func TestManualClock(t *testing.T) {
	c := NewManualClock(1_700_000_000)
	if got := UnixNow(c); got != 1_700_000_000 {
		t.Fatalf("UnixNow = %d, want 1700000000", got)
	}

	c.Advance(30 * time.Second)
	if got := UnixNow(c); got != 1_700_000_030 {
		t.Errorf("after Advance: %d, want 1700000030", got)
	}

	fired := <-c.After(time.Minute)
	if fired.Unix() != 1_700_000_090 {
		t.Errorf("After fired at %d, want 1700000090", fired.Unix())
	}

	c.Set(5)
	if got := UnixNow(c); got != 5 {
		t.Errorf("after Set: %d, want 5", got)
	}
}

func TestUnixNowClampsNegative(t *testing.T) {
	if got := UnixNow(NewManualClock(-10)); got != 0 {
		t.Errorf("UnixNow = %d, want 0", got)
	}
}

func TestNewLoggerLevel(t *testing.T) {
	if _, err := NewLogger("debug"); err != nil {
		t.Fatalf("NewLogger(debug): %v", err)
	}
	if _, err := NewLogger("loud"); err == nil {
		t.Error("expected error for unknown level")
	}

	path := t.TempDir() + "/logs/node.log"
	logger, err := NewLoggerWithFile(path, "info")
	if err != nil {
		t.Fatalf("NewLoggerWithFile: %v", err)
	}
	logger.Info("hello")
	_ = logger.Sync()
}
