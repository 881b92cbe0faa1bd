// Command example wires the in-memory backend into the sync engine and
// walks through a baseline sync, an incremental sync after a change,
// and a share-tree inspection.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/cyp0633/caltree/alias"
	synccollection "github.com/cyp0633/caltree/internal/xml/sync-collection"
	"github.com/cyp0633/caltree/sharetree"
	"github.com/cyp0633/caltree/store"
	"github.com/cyp0633/caltree/store/memory"
	"github.com/cyp0633/caltree/syncreport"
	"github.com/cyp0633/caltree/vpath"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	backend := setupBackend()

	resolver := alias.NewResolver(backend, backend, alias.Config{Logger: logger})
	decomposer := vpath.NewDecomposer(backend, backend, resolver, vpath.Config{Logger: logger})
	engine := syncreport.NewEngine(backend, backend, backend.Resources(), resolver, decomposer, syncreport.Config{
		TokenMaxAge: 90 * 24 * time.Hour,
		Logger:      logger,
	})
	propagator := sharetree.NewPropagator(backend, backend, backend, backend, resolver, sharetree.Config{Logger: logger})

	ctx := context.Background()
	sess := store.NewSession("/principals/users/alice")

	// Baseline sync through the virtual path.
	report, err := engine.SyncReport(ctx, sess, "/shared/team", "", 0, true)
	if err != nil {
		logger.Error("baseline sync failed", "error", err)
		os.Exit(1)
	}
	fmt.Printf("baseline: %d items, token %s\n", len(report.Items), report.Token)
	baseline := report.Token

	// A new event lands in bob's calendar.
	addEvent(backend, "/user/bob/cal", "standup.ics", "Team standup", "20240101T090000Z", 3)

	report, err = engine.SyncReport(ctx, sess, "/shared/team", baseline, 0, true)
	if err != nil {
		logger.Error("incremental sync failed", "error", err)
		os.Exit(1)
	}
	doc := synccollection.BuildResponse(report)
	doc.Indent(2)
	out, _ := doc.WriteToString()
	fmt.Println(out)

	// Who has to hear about changes in bob's calendar?
	tree, err := propagator.AliasesInfo(ctx, sess, "/user/bob/cal")
	if err != nil {
		logger.Error("share tree failed", "error", err)
		os.Exit(1)
	}
	tree.Walk(func(idx int, n *sharetree.Node) {
		path := "(external)"
		if n.Collection != nil {
			path = n.Collection.Path
		}
		fmt.Printf("node %d: principal=%s collection=%s notify=%v\n",
			idx, n.PrincipalHref, path, n.NotificationsEnabled)
	})
}

func setupBackend() *memory.Store {
	backend := memory.New()

	lastmod := store.Lastmod{Timestamp: "20240101T000000Z", Sequence: 1}
	backend.AddCollection(&store.Collection{
		Path: "/user", Type: store.CalTypeFolder, Lastmod: lastmod,
	})
	backend.AddCollection(&store.Collection{
		Path: "/user/bob", Type: store.CalTypeFolder, Lastmod: lastmod,
		OwnerHref: "/principals/users/bob",
	})
	backend.AddCollection(&store.Collection{
		Path: "/user/bob/cal", Type: store.CalTypeCalendarCollection, Lastmod: lastmod,
		OwnerHref: "/principals/users/bob",
	})
	backend.AddCollection(&store.Collection{
		Path: "/shared", Type: store.CalTypeFolder, Lastmod: lastmod,
	})
	backend.AddCollection(&store.Collection{
		Path: "/shared/team", Type: store.CalTypeAlias,
		AliasTarget: store.AliasScheme + "user/bob/cal",
		Lastmod:     lastmod,
		OwnerHref:   "/principals/users/alice",
	})

	backend.AddPrincipal("mailto:alice@example.com", &store.Principal{Href: "/principals/users/alice"})
	backend.AddInvite("/user/bob/cal", store.Invitee{
		ShareeHref:           "mailto:alice@example.com",
		NotificationsEnabled: mo.Some(true),
	})

	addEvent(backend, "/user/bob/cal", "kickoff.ics", "Project kickoff", "20240101T000000Z", 2)
	return backend
}

func addEvent(backend *memory.Store, collectionPath, name, summary, timestamp string, seq int) {
	start, _ := time.Parse("20060102T150405Z", timestamp)
	backend.AddEvent(&store.Event{
		Path:           store.JoinPath(collectionPath, name),
		CollectionPath: collectionPath,
		UID:            uuid.New().String(),
		Lastmod:        store.Lastmod{Timestamp: timestamp, Sequence: seq},
		Component:      store.NewEventComponent(uuid.New().String(), summary, start),
	})
}
