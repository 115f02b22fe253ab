package logger

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestDefaultLoggerIsNop(t *testing.T) {
	if Logger == nil {
		t.Fatal("Logger should be initialised at package load")
	}
	// Must not panic before Initialize
	Infow("hello", FieldJobID, "1")
	PulseInfow("tick")
}

func TestInitialize(t *testing.T) {
	prev := Logger
	defer func() { Logger = prev; JSONOutput = false }()

	if err := Initialize(true, VerbosityInfo); err != nil {
		t.Fatalf("Initialize(json) failed: %v", err)
	}
	if !JSONOutput {
		t.Error("JSONOutput should be true after Initialize(true, ...)")
	}

	if err := Initialize(false, VerbosityUser); err != nil {
		t.Fatalf("Initialize(console) failed: %v", err)
	}
	if Logger.Desugar().Core().Enabled(zapcore.InfoLevel) {
		t.Error("verbosity 0 should suppress info")
	}
}

func TestVerbosityToLevel(t *testing.T) {
	tests := []struct {
		verbosity int
		want      zapcore.Level
	}{
		{0, zapcore.WarnLevel},
		{1, zapcore.InfoLevel},
		{2, zapcore.DebugLevel},
		{5, zapcore.DebugLevel},
	}
	for _, tt := range tests {
		if got := VerbosityToLevel(tt.verbosity); got != tt.want {
			t.Errorf("VerbosityToLevel(%d) = %v, want %v", tt.verbosity, got, tt.want)
		}
	}
}

func TestSymbolHelpersAttachField(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	base := zap.New(core).Sugar()

	AddPulseSymbol(base).Infow("Job suspended", FieldJobID, "42")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	ctx := entries[0].ContextMap()
	if ctx[FieldSymbol] != "꩜" {
		t.Errorf("symbol field = %v, want ꩜", ctx[FieldSymbol])
	}
	if ctx[FieldJobID] != "42" {
		t.Errorf("job_id field = %v, want 42", ctx[FieldJobID])
	}
}

func TestFromContext(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	base := zap.New(core).Sugar()

	ctx := WithRunID(WithJobID(context.Background(), "7"), "run-1")
	FromContext(ctx, base).Infow("row processed")

	got := logs.All()[0].ContextMap()
	if got[FieldJobID] != "7" || got[FieldRunID] != "run-1" {
		t.Errorf("context fields missing: %v", got)
	}
}

func TestMinimalEncoderLine(t *testing.T) {
	enc := newMinimalEncoder()
	ent := zapcore.Entry{
		Level:      zapcore.WarnLevel,
		Time:       time.Date(2024, 1, 1, 13, 4, 35, 0, time.UTC),
		LoggerName: "pulse.batch",
		Message:    "Job suspended",
	}
	fields := []zapcore.Field{
		zap.String(FieldSymbol, "꩜"),
		zap.String(FieldJobID, "42"),
		zap.Int(FieldRemaining, 9),
		zap.String("ignored", "x"),
	}

	buf, err := enc.EncodeEntry(ent, fields)
	if err != nil {
		t.Fatalf("EncodeEntry: %v", err)
	}
	line := buf.String()

	for _, want := range []string{"13:04:35", "WARN", "p.batch", "꩜", "Job suspended", "42", "remaining"} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
	if strings.Contains(line, "ignored") {
		t.Errorf("line %q should not include unlisted fields", line)
	}
}

func TestAbbreviateName(t *testing.T) {
	tests := map[string]string{
		"pulse.batch": "p.batch",
		"tracker":     "tracker",
		"a.b.c":       "a.b.c",
	}
	for in, want := range tests {
		if got := abbreviateName(in); got != want {
			t.Errorf("abbreviateName(%q) = %q, want %q", in, got, want)
		}
	}
}
