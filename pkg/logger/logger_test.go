package logger

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLoggerInit(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() {
		if err := Sync(); err != nil {
			t.Errorf("failed to sync logger: %v", err)
		}
	}()

	if Get() == nil {
		t.Fatal("logger is nil after initialization")
	}

	// Re-initialization must be safe.
	if err := Init(); err != nil {
		t.Fatalf("failed to re-initialize logger: %v", err)
	}
	if Get() == nil {
		t.Fatal("logger is nil after re-initialization")
	}
}

func TestLoggerBasic(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}

	ctx := context.Background()
	log := Get()
	log.Info(ctx, "test message",
		String("k", "v"),
		Int("n", 42),
		Int64("big", 1<<40),
		Bool("flag", true),
		Duration("took", time.Millisecond),
		Any("blob", map[string]int{"a": 1}),
		Error(errors.New("boom")),
	)
	log.Debug(ctx, "debug message")
	log.Warn(ctx, "warn message")
	log.Error(ctx, "error message")
}

func TestLoggerNamed(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}

	named := Named("test")
	if named == nil {
		t.Fatal("named logger is nil")
	}
	named.Info(context.Background(), "test message")

	nested := named.Named("inner")
	if nested == nil {
		t.Fatal("nested named logger is nil")
	}
	nested.Info(context.Background(), "nested message")
}

func TestSetLevelString(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}

	for _, level := range []string{"debug", "info", "warn", "error"} {
		if err := SetLevelString(level); err != nil {
			t.Errorf("unexpected error for level %q: %v", level, err)
		}
	}
	if err := SetLevelString("chatty"); err == nil {
		t.Error("expected error for unknown level")
	}
}
