package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestLogger(t *testing.T) (*SlogLogger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})
	return NewSlogLogger(slog.New(h)), &buf
}

func TestSlogLogger_Levels(t *testing.T) {
	log, buf := newTestLogger(t)
	ctx := context.Background()

	log.Debug(ctx, "queue drained", "count", 1)
	log.Info(ctx, "sync complete", "synced", 2)
	log.Warn(ctx, "mirror upload failed", "id", "b3")
	log.Error(ctx, "migration failed", "attempt", 4)

	out := buf.String()
	for _, want := range []string{
		"level=DEBUG", `msg="queue drained"`, "count=1",
		"level=INFO", `msg="sync complete"`, "synced=2",
		"level=WARN", `msg="mirror upload failed"`, "id=b3",
		"level=ERROR", `msg="migration failed"`, "attempt=4",
	} {
		assert.Contains(t, out, want)
	}
}

func TestSlogLogger_With_AddsAttributes(t *testing.T) {
	log, buf := newTestLogger(t)

	child := log.With("subsystem", "backup")
	child.Info(context.Background(), "retention applied", "removed", 3)

	out := buf.String()
	assert.Contains(t, out, "subsystem=backup")
	assert.Contains(t, out, "removed=3")
}

func TestSlogLogger_ContextDoesNotPanic(t *testing.T) {
	log, _ := newTestLogger(t)

	ctx := context.TODO()
	log.Debug(ctx, "ok")
	log.Info(ctx, "ok")
	log.Warn(ctx, "ok")
	log.Error(ctx, "ok")
}
