package app

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/quest-engine/config"
	"github.com/alem-hub/quest-engine/internal/domain/quest"
	"github.com/alem-hub/quest-engine/internal/domain/shared"
)

func testConfig(t *testing.T, backend config.Backend) *config.Config {
	t.Helper()
	t.Setenv("APP_ENV", "development")
	t.Setenv("APP_TIMEZONE", "Asia/Almaty")
	t.Setenv("STORAGE_BACKEND", string(backend))
	t.Setenv("LOG_LEVEL", "info")
	t.Setenv("LOG_FORMAT", "text")

	cfg, err := config.Load()
	require.NoError(t, err)
	return cfg
}

func quietOptions() Options {
	return Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func sectionIDs(sections []*quest.Section) []string {
	ids := make([]string, 0, len(sections))
	for _, s := range sections {
		ids = append(ids, s.ID)
	}
	return ids
}

func TestNew_MemoryBackend(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(t, config.BackendMemory), quietOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	require.NoError(t, a.Engine.Initialize(ctx, "alice"))
	assert.Equal(t, "alice", a.Engine.ActorID())

	sections := a.Engine.GetSections(ctx)
	require.Len(t, sections, 2)
	assert.Equal(t, quest.ScopeShortCycle, sections[0].Scope)
	assert.Equal(t, quest.ScopeLongCycle, sections[1].Scope)

	before := map[string]int{}
	for _, q := range a.Engine.GetActiveQuests(ctx) {
		before[q.ID] = q.Progress
	}

	require.NoError(t, a.Events.ForActor("alice").StarEarned(ctx, 1))

	for _, s := range a.Engine.GetSections(ctx) {
		for _, q := range s.Quests {
			if q.Type != quest.TypeStarEarned {
				continue
			}
			if prev, ok := before[q.ID]; ok {
				assert.Equal(t, prev+1, q.Progress, "quest %s", q.ID)
			}
		}
	}

	var types []shared.EventType
	for _, e := range a.Bus.History() {
		types = append(types, e.Type)
	}
	assert.Contains(t, types, shared.EventStarEarned)
}

func TestNew_SQLiteBackendSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, config.BackendSQLite)
	cfg.SQLite.Path = filepath.Join(t.TempDir(), "quests.db")

	first, err := New(ctx, cfg, quietOptions())
	require.NoError(t, err)
	require.NoError(t, first.Engine.Initialize(ctx, "alice"))
	want := sectionIDs(first.Engine.GetSections(ctx))
	require.Len(t, want, 2)
	require.NoError(t, first.Close())

	second, err := New(ctx, cfg, quietOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close() })

	require.NoError(t, second.Engine.Initialize(ctx, "alice"))
	assert.Equal(t, want, sectionIDs(second.Engine.GetSections(ctx)))

	// Another actor never sees alice's sections.
	require.NoError(t, second.Engine.Initialize(ctx, "bob"))
	for _, id := range sectionIDs(second.Engine.GetSections(ctx)) {
		assert.NotContains(t, want, id)
	}
}

func TestNew_ResolvesActorFromHost(t *testing.T) {
	ctx := context.Background()
	opts := quietOptions()
	opts.Actors = quest.ActorResolverFunc(func(context.Context) (string, error) {
		return "carol", nil
	})

	a, err := New(ctx, testConfig(t, config.BackendMemory), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	require.NoError(t, a.Engine.Initialize(ctx, ""))
	assert.Equal(t, "carol", a.Engine.ActorID())
}

func TestNew_UnknownBackend(t *testing.T) {
	cfg := testConfig(t, config.BackendMemory)
	cfg.Storage.Backend = "bbolt"

	_, err := New(context.Background(), cfg, quietOptions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bbolt")
}

func TestClose_DeinitializesEngine(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(t, config.BackendMemory), quietOptions())
	require.NoError(t, err)
	require.NoError(t, a.Engine.Initialize(ctx, "alice"))

	require.NoError(t, a.Close())
	assert.Empty(t, a.Engine.ActorID())
	assert.Zero(t, a.Bus.HandlerCount(shared.EventStarEarned))
}

func TestStart_RunsRenewalScheduler(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(t, config.BackendMemory), quietOptions())
	require.NoError(t, err)
	require.NotNil(t, a.Scheduler)

	require.NoError(t, a.Start(ctx))
	assert.True(t, a.Scheduler.IsRunning())

	result, err := a.Scheduler.RunNow(ctx, "renew_sections")
	require.NoError(t, err)
	assert.True(t, result.Success())

	require.NoError(t, a.Close())
	assert.False(t, a.Scheduler.IsRunning())
}

func TestNew_RenewalDisabled(t *testing.T) {
	cfg := testConfig(t, config.BackendMemory)
	cfg.Quests.RenewInterval = 0

	a, err := New(context.Background(), cfg, quietOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	assert.Nil(t, a.Scheduler)
	assert.NoError(t, a.Start(context.Background()))
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), in)
	}
}

func TestTracer_NoopWhenDisabled(t *testing.T) {
	tr := tracer(config.ObservabilityConfig{})
	_, span := tr.Start(context.Background(), "op")
	defer span.End()

	assert.False(t, span.SpanContext().IsValid())
	assert.False(t, span.IsRecording())
}
