package devtools_test

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcfront/shellbus/internal/devtools"
	"github.com/arcfront/shellbus/internal/domain/bus"
	"github.com/arcfront/shellbus/internal/domain/event"
)

func seededInspector(t *testing.T) (*bus.Bus, *devtools.Inspector) {
	t.Helper()
	b := bus.New()

	b.Emit(context.Background(), event.TypeRemoteLoaded,
		event.RemoteLoaded{RemoteName: "checkout", Attempts: 1},
		bus.WithSource(event.SourceLoader), bus.WithCorrelationID("boot-1"))
	b.Emit(context.Background(), event.TypeRemoteLoadFailed,
		event.RemoteLoadFailed{RemoteName: "catalog", Error: "connection refused", ErrorCode: event.CodeLoadError, Attempts: 3, Retryable: true},
		bus.WithSource(event.SourceLoader), bus.WithCorrelationID("boot-1"))
	b.Emit(context.Background(), event.TypeAuthLogin,
		event.AuthLogin{UserID: "u-1", Username: "ada"},
		bus.WithSource(event.SourceAuth), bus.WithVersion(2))
	b.Emit(context.Background(), "CUSTOM", map[string]any{"note": "Checkout opened"})

	return b, devtools.NewInspector(b)
}

func TestInspectorFilter(t *testing.T) {
	_, insp := seededInspector(t)

	t.Run("by type set", func(t *testing.T) {
		entries := insp.Filter(devtools.Criteria{
			Types: []string{event.TypeRemoteLoaded, event.TypeRemoteLoadFailed},
		})
		require.Len(t, entries, 2)
		assert.Equal(t, event.TypeRemoteLoadFailed, entries[0].Event.Type, "newest first")
		assert.Equal(t, event.TypeRemoteLoaded, entries[1].Event.Type)
	})

	t.Run("by source", func(t *testing.T) {
		entries := insp.Filter(devtools.Criteria{Source: event.SourceAuth})
		require.Len(t, entries, 1)
		assert.Equal(t, event.TypeAuthLogin, entries[0].Event.Type)
	})

	t.Run("by correlation id", func(t *testing.T) {
		entries := insp.Filter(devtools.Criteria{CorrelationID: "boot-1"})
		assert.Len(t, entries, 2)
	})

	t.Run("by version", func(t *testing.T) {
		entries := insp.Filter(devtools.Criteria{Version: 2})
		require.Len(t, entries, 1)
		assert.Equal(t, event.TypeAuthLogin, entries[0].Event.Type)
	})

	t.Run("criteria are AND-combined", func(t *testing.T) {
		entries := insp.Filter(devtools.Criteria{
			Types:  []string{event.TypeRemoteLoaded, event.TypeAuthLogin},
			Source: event.SourceLoader,
		})
		require.Len(t, entries, 1)
		assert.Equal(t, event.TypeRemoteLoaded, entries[0].Event.Type)
	})

	t.Run("time bounds are inclusive", func(t *testing.T) {
		all := insp.Filter(devtools.Criteria{})
		require.NotEmpty(t, all)
		ts := all[0].Event.Time()

		entries := insp.Filter(devtools.Criteria{Since: ts, Until: ts})
		assert.NotEmpty(t, entries)

		none := insp.Filter(devtools.Criteria{Since: ts.Add(time.Hour)})
		assert.Empty(t, none)
	})

	t.Run("custom predicate", func(t *testing.T) {
		entries := insp.Filter(devtools.Criteria{Match: func(e bus.HistoryEntry) bool {
			return e.Event.Version > 1
		}})
		require.Len(t, entries, 1)
		assert.Equal(t, event.TypeAuthLogin, entries[0].Event.Type)
	})
}

func TestInspectorRecent(t *testing.T) {
	_, insp := seededInspector(t)
	assert.Len(t, insp.Recent(time.Minute), 4)
	assert.Empty(t, insp.Recent(-time.Second), "a window ending in the future matches nothing new")
}

func TestInspectorSearch(t *testing.T) {
	_, insp := seededInspector(t)

	t.Run("across all string fields", func(t *testing.T) {
		entries := insp.Search("checkout", "")
		// Matches the typed payload's remoteName and the map payload's note.
		assert.Len(t, entries, 2)
	})

	t.Run("case-insensitive", func(t *testing.T) {
		entries := insp.Search("CONNECTION refused", "")
		require.Len(t, entries, 1)
		assert.Equal(t, event.TypeRemoteLoadFailed, entries[0].Event.Type)
	})

	t.Run("single field", func(t *testing.T) {
		entries := insp.Search("checkout", "remoteName")
		require.Len(t, entries, 1)
		assert.Equal(t, event.TypeRemoteLoaded, entries[0].Event.Type)
	})

	t.Run("regexp", func(t *testing.T) {
		entries := insp.SearchRegexp(regexp.MustCompile(`^u-\d+$`), "userId")
		require.Len(t, entries, 1)
		assert.Equal(t, event.TypeAuthLogin, entries[0].Event.Type)
	})
}

func TestInspectorStats(t *testing.T) {
	t.Run("counts and most frequent type", func(t *testing.T) {
		b := bus.New()
		insp := devtools.NewInspector(b)
		b.Emit(context.Background(), "A", nil, bus.WithSource("svc"))
		b.Emit(context.Background(), "A", nil, bus.WithSource("svc"))
		b.Emit(context.Background(), "B", nil)

		st := insp.Stats()
		assert.Equal(t, 3, st.Total)
		assert.Equal(t, 2, st.ByType["A"])
		assert.Equal(t, 1, st.ByType["B"])
		assert.Equal(t, 2, st.BySource["svc"])
		assert.Equal(t, 1, st.BySource[devtools.SourceUnknown])
		assert.Equal(t, "A", st.MostFrequent)
	})

	t.Run("rate guard on a single entry", func(t *testing.T) {
		b := bus.New()
		insp := devtools.NewInspector(b)
		b.Emit(context.Background(), "A", nil)

		assert.Zero(t, insp.Stats().EventsPerMinute)
	})

	t.Run("rate over a real time span", func(t *testing.T) {
		b := bus.New()
		insp := devtools.NewInspector(b)
		b.Emit(context.Background(), "A", nil)
		time.Sleep(15 * time.Millisecond)
		b.Emit(context.Background(), "A", nil)

		assert.Greater(t, insp.Stats().EventsPerMinute, 0.0)
	})

	t.Run("empty history", func(t *testing.T) {
		insp := devtools.NewInspector(bus.New())
		st := insp.Stats()
		assert.Zero(t, st.Total)
		assert.Zero(t, st.EventsPerMinute)
		assert.Empty(t, st.MostFrequent)
	})
}

func TestInspectorGroupBy(t *testing.T) {
	_, insp := seededInspector(t)

	t.Run("by type", func(t *testing.T) {
		groups := insp.GroupBy(devtools.ByType)
		assert.Len(t, groups, 4)
		assert.Len(t, groups[event.TypeRemoteLoaded], 1)
	})

	t.Run("by source with sentinel", func(t *testing.T) {
		groups := insp.GroupBy(devtools.BySource)
		assert.Len(t, groups[event.SourceLoader], 2)
		assert.Len(t, groups[devtools.SourceUnknown], 1)
	})

	t.Run("by correlation with sentinel", func(t *testing.T) {
		groups := insp.GroupBy(devtools.ByCorrelation)
		assert.Len(t, groups["boot-1"], 2)
		assert.Len(t, groups[devtools.CorrelationUnknown], 2)
	})

	t.Run("custom key", func(t *testing.T) {
		groups := insp.GroupBy(func(e bus.HistoryEntry) string {
			if strings.HasPrefix(e.Event.Type, "REMOTE_") {
				return "remote"
			}
			return "other"
		})
		assert.Len(t, groups["remote"], 2)
		assert.Len(t, groups["other"], 2)
	})
}

func TestInspectorExport(t *testing.T) {
	_, insp := seededInspector(t)

	t.Run("json round-trips", func(t *testing.T) {
		raw, err := insp.ExportJSON(devtools.Criteria{Types: []string{event.TypeRemoteLoaded}})
		require.NoError(t, err)

		var entries []bus.HistoryEntry
		require.NoError(t, json.Unmarshal(raw, &entries))
		require.Len(t, entries, 1)
		assert.Equal(t, event.TypeRemoteLoaded, entries[0].Event.Type)
	})

	t.Run("empty selection stays a valid array", func(t *testing.T) {
		raw, err := insp.ExportJSON(devtools.Criteria{Types: []string{"NOPE"}})
		require.NoError(t, err)
		assert.Equal(t, "[]", string(raw))
	})

	t.Run("print renders one line per entry", func(t *testing.T) {
		var sb strings.Builder
		require.NoError(t, insp.Print(&sb, devtools.Criteria{}))
		lines := strings.Split(strings.TrimRight(sb.String(), "\n"), "\n")
		assert.Len(t, lines, 4)
		assert.Contains(t, sb.String(), event.TypeRemoteLoadFailed)
	})
}

func TestInspectorClear(t *testing.T) {
	b, insp := seededInspector(t)
	sub, err := b.Subscribe("X", func(context.Context, event.Event) error { return nil })
	require.NoError(t, err)
	defer sub.Unsubscribe()

	insp.Clear()

	assert.Empty(t, b.History())
	assert.Equal(t, 1, b.SubscriberCount("X"), "clear is a history passthrough only")
}
