package syncreport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cyp0633/caltree/alias"
	"github.com/cyp0633/caltree/store"
	"github.com/cyp0633/caltree/store/memory"
	"github.com/cyp0633/caltree/vpath"
)

func lastmod(ts string, seq int) store.Lastmod {
	return store.Lastmod{Timestamp: ts, Sequence: seq}
}

func setup(t *testing.T, cfg Config) (*memory.Store, *Engine, *store.Session) {
	t.Helper()
	backend := memory.New()
	resolver := alias.NewResolver(backend, backend, alias.Config{})
	vpaths := vpath.NewDecomposer(backend, backend, resolver, vpath.Config{})
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewFakeClockAt(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	}
	engine := NewEngine(backend, backend, backend.Resources(), resolver, vpaths, cfg)
	return backend, engine, store.NewSession("/p/alice")
}

func TestSyncReportBaseline(t *testing.T) {
	backend, e, sess := setup(t, Config{})
	ctx := context.Background()

	backend.AddCollection(&store.Collection{Path: "/cal", Type: store.CalTypeCalendarCollection, Lastmod: lastmod("20240101T000000Z", 1)})
	backend.AddEvent(&store.Event{Path: "/cal/a.ics", CollectionPath: "/cal", Lastmod: lastmod("20240101T000000Z", 2)})
	backend.AddEvent(&store.Event{Path: "/cal/b.ics", CollectionPath: "/cal", Lastmod: lastmod("20240101T000000Z", 3)})
	backend.TombstoneEvent("/cal", "b.ics", lastmod("20240101T000000Z", 4))

	report, err := e.SyncReport(ctx, sess, "/cal", "", 0, false)
	require.NoError(t, err)
	assert.True(t, report.TokenValid)

	// A baseline never reports tombstones.
	require.Len(t, report.Items, 1)
	assert.Equal(t, "/cal/a.ics", report.Items[0].Path())
	assert.Equal(t, KindEvent, report.Items[0].Kind)
	assert.Equal(t, "20240101T000000Z-0002", report.Items[0].Token)
	assert.Equal(t, "20240101T000000Z-0002", report.Token)

	// A second baseline is idempotent.
	again, err := e.SyncReport(ctx, sess, "/cal", "", 0, false)
	require.NoError(t, err)
	assert.Equal(t, report.Items, again.Items)
	assert.Equal(t, report.Token, again.Token)
}

func TestSyncReportIncremental(t *testing.T) {
	backend, e, sess := setup(t, Config{})
	ctx := context.Background()

	backend.AddCollection(&store.Collection{Path: "/cal", Type: store.CalTypeCalendarCollection, Lastmod: lastmod("20240101T000000Z", 1)})
	backend.AddEvent(&store.Event{Path: "/cal/a.ics", CollectionPath: "/cal", Lastmod: lastmod("20240101T000000Z", 1)})

	// Nothing changed since the collection token.
	report, err := e.SyncReport(ctx, sess, "/cal", "20240101T000000Z-0001", 0, false)
	require.NoError(t, err)
	assert.Empty(t, report.Items)
	assert.Equal(t, "20240101T000000Z-0001", report.Token)

	// One modification advances the token alongside the item.
	backend.AddEvent(&store.Event{Path: "/cal/a.ics", CollectionPath: "/cal", Lastmod: lastmod("20240101T000000Z", 2)})

	report, err = e.SyncReport(ctx, sess, "/cal", "20240101T000000Z-0001", 0, false)
	require.NoError(t, err)
	require.Len(t, report.Items, 1)
	assert.Equal(t, "/cal/a.ics", report.Items[0].Path())
	assert.Equal(t, "20240101T000000Z-0002", report.Token)

	// A deletion after that shows up as a tombstone.
	backend.TombstoneEvent("/cal", "a.ics", lastmod("20240101T000000Z", 3))

	report, err = e.SyncReport(ctx, sess, "/cal", "20240101T000000Z-0002", 0, false)
	require.NoError(t, err)
	require.Len(t, report.Items, 1)
	assert.True(t, report.Items[0].Tombstoned)
	assert.Equal(t, "20240101T000000Z-0003", report.Token)
}

func TestSyncReportInvalidToken(t *testing.T) {
	backend, e, sess := setup(t, Config{})
	ctx := context.Background()
	backend.AddCollection(&store.Collection{Path: "/cal", Type: store.CalTypeCalendarCollection})

	_, err := e.SyncReport(ctx, sess, "/cal", "garbage", 0, false)
	assert.ErrorIs(t, err, ErrInvalidSyncToken)
}

func TestSyncReportExpiredToken(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	backend, e, sess := setup(t, Config{TokenMaxAge: 24 * time.Hour, Clock: clock})
	ctx := context.Background()
	backend.AddCollection(&store.Collection{Path: "/cal", Type: store.CalTypeCalendarCollection})

	_, err := e.SyncReport(ctx, sess, "/cal", "20240101T000000Z-0001", 0, false)
	assert.ErrorIs(t, err, ErrInvalidSyncToken)

	report, err := e.SyncReport(ctx, sess, "/cal", "20240531T120000Z-0001", 0, false)
	require.NoError(t, err)
	assert.True(t, report.TokenValid)
}

func TestSyncReportUnknownPath(t *testing.T) {
	_, e, sess := setup(t, Config{})
	ctx := context.Background()

	// Without a token the report is empty but well-formed.
	report, err := e.SyncReport(ctx, sess, "/nope", "", 0, false)
	require.NoError(t, err)
	assert.Empty(t, report.Items)
	assert.True(t, report.TokenValid)

	// With a token the client must be told to resync from scratch.
	report, err = e.SyncReport(ctx, sess, "/nope", "20240101T000000Z-0001", 0, false)
	require.NoError(t, err)
	assert.False(t, report.TokenValid)
}

func TestSyncReportPagination(t *testing.T) {
	backend, e, sess := setup(t, Config{})
	ctx := context.Background()

	backend.AddCollection(&store.Collection{Path: "/cal", Type: store.CalTypeCalendarCollection})
	for i, name := range []string{"a.ics", "b.ics", "c.ics"} {
		backend.AddEvent(&store.Event{
			Path: "/cal/" + name, CollectionPath: "/cal",
			Lastmod: lastmod("20240101T000000Z", i+1),
		})
	}

	// The truncated report's token covers exactly the kept items.
	first, err := e.SyncReport(ctx, sess, "/cal", "", 2, false)
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	assert.Equal(t, "/cal/a.ics", first.Items[0].Path())
	assert.Equal(t, "/cal/b.ics", first.Items[1].Path())
	assert.Equal(t, "20240101T000000Z-0002", first.Token)

	// Polling with the returned token picks up where the page ended.
	second, err := e.SyncReport(ctx, sess, "/cal", first.Token, 2, false)
	require.NoError(t, err)
	require.Len(t, second.Items, 1)
	assert.Equal(t, "/cal/c.ics", second.Items[0].Path())
	assert.Equal(t, "20240101T000000Z-0003", second.Token)
}

func TestSyncReportRecursion(t *testing.T) {
	backend, e, sess := setup(t, Config{})
	ctx := context.Background()

	backend.AddCollection(&store.Collection{Path: "/home", Type: store.CalTypeFolder, Lastmod: lastmod("20240101T000000Z", 1)})
	backend.AddCollection(&store.Collection{Path: "/home/cal", Type: store.CalTypeCalendarCollection, Lastmod: lastmod("20240101T000000Z", 2)})
	backend.AddEvent(&store.Event{Path: "/home/cal/a.ics", CollectionPath: "/home/cal", Lastmod: lastmod("20240101T000000Z", 3)})

	report, err := e.SyncReport(ctx, sess, "/home", "", 0, true)
	require.NoError(t, err)
	require.Len(t, report.Items, 2)
	assert.Equal(t, KindCollection, report.Items[0].Kind)
	assert.Equal(t, "/home/cal", report.Items[0].Path())
	assert.Equal(t, KindEvent, report.Items[1].Kind)
	assert.Equal(t, "/home/cal/a.ics", report.Items[1].Path())
	assert.Equal(t, "20240101T000000Z-0003", report.Token)

	// Without recursion only the child collection itself is reported.
	flat, err := e.SyncReport(ctx, sess, "/home", "", 0, false)
	require.NoError(t, err)
	require.Len(t, flat.Items, 1)
	assert.Equal(t, "/home/cal", flat.Items[0].Path())
}

func TestSyncReportSkipsPendingInbox(t *testing.T) {
	backend, e, sess := setup(t, Config{})
	ctx := context.Background()

	backend.AddCollection(&store.Collection{Path: "/home", Type: store.CalTypeFolder})
	backend.AddCollection(&store.Collection{Path: "/home/inbox", Type: store.CalTypePendingInbox, Lastmod: lastmod("20240101T000000Z", 5)})

	report, err := e.SyncReport(ctx, sess, "/home", "", 0, true)
	require.NoError(t, err)
	assert.Empty(t, report.Items)
}

func TestSyncReportDeferredAlias(t *testing.T) {
	backend, e, sess := setup(t, Config{})
	ctx := context.Background()

	backend.AddCollection(&store.Collection{Path: "/home", Type: store.CalTypeFolder})
	backend.AddCollection(&store.Collection{Path: "/user/bob/cal", Type: store.CalTypeCalendarCollection, Lastmod: lastmod("20240101T000000Z", 5)})
	backend.AddCollection(&store.Collection{
		Path: "/home/team", Type: store.CalTypeAlias,
		AliasTarget: store.AliasScheme + "user/bob/cal",
		Lastmod:     lastmod("20231201T000000Z", 1),
	})

	// The alias's own stale token is ignored; the target moved, so the
	// alias is reported with the target's token.
	report, err := e.SyncReport(ctx, sess, "/home", "20240101T000000Z-0004", 0, false)
	require.NoError(t, err)
	require.Len(t, report.Items, 1)
	assert.Equal(t, "/home/team", report.Items[0].Path())
	assert.Equal(t, "20240101T000000Z-0005", report.Items[0].Token)
	resolved, ok := report.Items[0].ResolvedToken.Get()
	require.True(t, ok)
	assert.Equal(t, "20240101T000000Z-0005", resolved)
	assert.Equal(t, "20240101T000000Z-0005", report.Token)

	// A target at rest keeps the alias out of the report.
	report, err = e.SyncReport(ctx, sess, "/home", "20240101T000000Z-0005", 0, false)
	require.NoError(t, err)
	assert.Empty(t, report.Items)
}

func TestSyncReportDeadAliasChildDisabled(t *testing.T) {
	backend, e, sess := setup(t, Config{})
	ctx := context.Background()

	backend.AddCollection(&store.Collection{Path: "/home", Type: store.CalTypeFolder})
	backend.AddCollection(&store.Collection{
		Path: "/home/dangling", Type: store.CalTypeAlias,
		AliasTarget: store.AliasScheme + "user/gone/cal",
	})

	report, err := e.SyncReport(ctx, sess, "/home", "20240101T000000Z-0001", 0, false)
	require.NoError(t, err)
	assert.Empty(t, report.Items)

	al, err := backend.Get(ctx, "/home/dangling")
	require.NoError(t, err)
	assert.True(t, al.Disabled)
}

func TestSyncReportThroughAlias(t *testing.T) {
	backend, e, sess := setup(t, Config{})
	ctx := context.Background()

	backend.AddCollection(&store.Collection{Path: "/user/bob/cal", Type: store.CalTypeCalendarCollection})
	backend.AddCollection(&store.Collection{
		Path: "/shared/team", Type: store.CalTypeAlias,
		AliasTarget: store.AliasScheme + "user/bob/cal",
	})
	backend.AddEvent(&store.Event{Path: "/user/bob/cal/a.ics", CollectionPath: "/user/bob/cal", Lastmod: lastmod("20240101T000000Z", 1)})

	// Items read through the alias carry the alias-side virtual path.
	report, err := e.SyncReport(ctx, sess, "/shared/team", "", 0, false)
	require.NoError(t, err)
	require.Len(t, report.Items, 1)
	assert.Equal(t, "/shared/team/a.ics", report.Items[0].Path())
}

func TestSyncReportAliasCategoryFilter(t *testing.T) {
	backend, e, sess := setup(t, Config{})
	ctx := context.Background()

	backend.AddCollection(&store.Collection{Path: "/user/bob/cal", Type: store.CalTypeCalendarCollection})
	backend.AddCollection(&store.Collection{
		Path: "/shared/work", Type: store.CalTypeAlias,
		AliasTarget: store.AliasScheme + "user/bob/cal",
		Categories:  []string{"work"},
	})
	backend.AddEvent(&store.Event{
		Path: "/user/bob/cal/meeting.ics", CollectionPath: "/user/bob/cal",
		Lastmod: lastmod("20240101T000000Z", 1), Categories: []string{"work", "q1"},
	})
	backend.AddEvent(&store.Event{
		Path: "/user/bob/cal/dentist.ics", CollectionPath: "/user/bob/cal",
		Lastmod: lastmod("20240101T000000Z", 2), Categories: []string{"personal"},
	})

	report, err := e.SyncReport(ctx, sess, "/shared/work", "", 0, false)
	require.NoError(t, err)
	require.Len(t, report.Items, 1)
	assert.Equal(t, "/shared/work/meeting.ics", report.Items[0].Path())

	// A deletion crosses the filter regardless of categories.
	backend.TombstoneEvent("/user/bob/cal", "dentist.ics", lastmod("20240101T000000Z", 3))

	report, err = e.SyncReport(ctx, sess, "/shared/work", "20240101T000000Z-0002", 0, false)
	require.NoError(t, err)
	require.Len(t, report.Items, 1)
	assert.True(t, report.Items[0].Tombstoned)
	assert.Equal(t, "/shared/work/dentist.ics", report.Items[0].Path())
}

func TestSyncReportResources(t *testing.T) {
	backend, e, sess := setup(t, Config{})
	ctx := context.Background()

	backend.AddCollection(&store.Collection{Path: "/home", Type: store.CalTypeFolder})
	backend.AddResource(&store.Resource{Path: "/home/notes.txt", CollectionPath: "/home", Lastmod: lastmod("20240101T000000Z", 1)})

	report, err := e.SyncReport(ctx, sess, "/home", "", 0, false)
	require.NoError(t, err)
	require.Len(t, report.Items, 1)
	assert.Equal(t, KindResource, report.Items[0].Kind)

	// Calendar collections hold events exclusively; their resource
	// listing is never consulted.
	backend.AddCollection(&store.Collection{Path: "/cal", Type: store.CalTypeCalendarCollection})
	backend.AddResource(&store.Resource{Path: "/cal/notes.txt", CollectionPath: "/cal", Lastmod: lastmod("20240101T000000Z", 1)})

	report, err = e.SyncReport(ctx, sess, "/cal", "", 0, false)
	require.NoError(t, err)
	assert.Empty(t, report.Items)
}

func TestSyncReportEmptySynthesizesToken(t *testing.T) {
	backend, e, sess := setup(t, Config{})
	ctx := context.Background()
	backend.AddCollection(&store.Collection{Path: "/cal", Type: store.CalTypeCalendarCollection})

	report, err := e.SyncReport(ctx, sess, "/cal", "", 0, false)
	require.NoError(t, err)
	assert.Empty(t, report.Items)
	assert.Equal(t, "20240601T000000Z-0000", report.Token)
}

func TestSyncReportStoreErrorPropagates(t *testing.T) {
	cols := new(store.MockCollectionStore)
	events := new(store.MockEventStore)
	resources := new(store.MockResourceStore)
	access := new(store.MockAccessEvaluator)
	resolver := alias.NewResolver(cols, access, alias.Config{})
	vpaths := vpath.NewDecomposer(cols, access, resolver, vpath.Config{})
	e := NewEngine(cols, events, resources, resolver, vpaths, Config{})

	col := &store.Collection{Path: "/cal", Type: store.CalTypeCalendarCollection}
	boom := errors.New("backend down")
	cols.On("Get", mock.Anything, "/cal").Return(col, nil)
	events.On("ChangedSince", mock.Anything, "/cal", "").Return(nil, boom)

	_, err := e.SyncReport(context.Background(), store.NewSession("/p/alice"), "/cal", "", 0, false)
	assert.ErrorIs(t, err, boom)
	cols.AssertExpectations(t)
	events.AssertExpectations(t)
}

func TestSyncReportItemsSorted(t *testing.T) {
	backend, e, sess := setup(t, Config{})
	ctx := context.Background()

	backend.AddCollection(&store.Collection{Path: "/cal", Type: store.CalTypeCalendarCollection})
	backend.AddEvent(&store.Event{Path: "/cal/z.ics", CollectionPath: "/cal", Lastmod: lastmod("20240101T000000Z", 1)})
	backend.AddEvent(&store.Event{Path: "/cal/a.ics", CollectionPath: "/cal", Lastmod: lastmod("20240101T000000Z", 1)})
	backend.AddEvent(&store.Event{Path: "/cal/m.ics", CollectionPath: "/cal", Lastmod: lastmod("20231231T000000Z", 9)})

	report, err := e.SyncReport(ctx, sess, "/cal", "", 0, false)
	require.NoError(t, err)
	require.Len(t, report.Items, 3)
	assert.Equal(t, "/cal/m.ics", report.Items[0].Path())
	assert.Equal(t, "/cal/a.ics", report.Items[1].Path())
	assert.Equal(t, "/cal/z.ics", report.Items[2].Path())
}
