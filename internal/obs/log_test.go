package obs

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLoggerFormats(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		l, err := NewLogger("debug", format, "vcsync-test")
		if err != nil {
			t.Fatalf("NewLogger(%s): %v", format, err)
		}
		if !l.Core().Enabled(zap.DebugLevel) {
			t.Fatalf("expected debug level enabled for %s", format)
		}
	}
	l, err := NewLogger("bogus", "json", "")
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	if l.Core().Enabled(zap.DebugLevel) {
		t.Fatal("unknown level should fall back to info")
	}
}

func TestSetLoggerRestores(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	restore := SetLogger(zap.New(core))
	Logger().Info("hello", zap.String("k", "v"))
	restore()

	if logs.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", logs.Len())
	}
	if got := logs.All()[0].ContextMap()["k"]; got != "v" {
		t.Fatalf("unexpected field: %v", got)
	}
	if Logger() == nil {
		t.Fatal("expected logger after restore")
	}
}
