// Package syncreport computes recursive, token-bounded change reports
// for a collection subtree. A report answers "what changed below this
// virtual path since token T", following aliases, honoring tombstone
// visibility and never returning a token that implies coverage of
// items it truncated away.
package syncreport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/cyp0633/caltree/alias"
	"github.com/cyp0633/caltree/store"
	"github.com/cyp0633/caltree/synctoken"
	"github.com/cyp0633/caltree/vpath"
)

// ErrInvalidSyncToken is returned when the supplied token is
// unparsable or expired; the caller must resync from baseline.
var ErrInvalidSyncToken = errors.New("syncreport: invalid sync token")

// Config holds the engine options.
type Config struct {
	// TokenMaxAge bounds the accepted age of incoming sync tokens.
	// Zero or negative disables the age check.
	TokenMaxAge time.Duration
	// Logger defaults to a discard handler.
	Logger *slog.Logger
	// Clock supplies time for token validation and synthesized tokens;
	// defaults to the real clock.
	Clock clockwork.Clock
}

// Engine produces sync reports.
type Engine struct {
	cols      store.CollectionStore
	events    store.EventStore
	resources store.ResourceStore
	resolver  *alias.Resolver
	vpaths    *vpath.Decomposer
	maxAge    time.Duration
	clock     clockwork.Clock
	log       *slog.Logger
}

// NewEngine creates an Engine on top of the collaborator stores.
func NewEngine(cols store.CollectionStore, events store.EventStore, resources store.ResourceStore, resolver *alias.Resolver, vpaths *vpath.Decomposer, cfg Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Engine{
		cols:      cols,
		events:    events,
		resources: resources,
		resolver:  resolver,
		vpaths:    vpaths,
		maxAge:    cfg.TokenMaxAge,
		clock:     cfg.Clock,
		log:       cfg.Logger,
	}
}

// SyncReport computes the changes below path since token. An empty
// token requests a baseline report. limit > 0 bounds the item count;
// recurse descends into syncable child collections.
//
// The returned token is >= the token of every returned item and < the
// token of any item excluded by the limit, so incremental polling with
// the returned token never skips changes.
func (e *Engine) SyncReport(ctx context.Context, sess *store.Session, path, token string, limit int, recurse bool) (*Report, error) {
	col, err := e.lookup(ctx, sess, path)
	if err != nil {
		return nil, err
	}
	if col == nil {
		return &Report{TokenValid: token == ""}, nil
	}

	if token != "" && !synctoken.IsValid(token, e.maxAge, e.clock) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSyncToken, token)
	}

	items, newTok, err := e.collectChanges(ctx, sess, col, path, token, recurse)
	if err != nil {
		return nil, err
	}

	sortItems(items)

	// Truncation re-walk: keep the first limit items in token order
	// and recompute the token from what is actually included, so the
	// token never claims coverage of truncated items.
	if limit > 0 && len(items) > limit {
		items = items[:limit]
		newTok = token
		for _, it := range items {
			newTok = synctoken.Max(newTok, it.Token)
		}
	}

	// An empty report still advances the client's baseline.
	if newTok == "" {
		newTok = synctoken.Encode(e.clock.Now(), 0)
	}

	e.log.Debug("sync report computed",
		"path", path,
		"items", len(items),
		"token", newTok,
		"recurse", recurse)

	return &Report{Items: items, Token: newTok, TokenValid: true}, nil
}

// lookup resolves the request path: first as a literal collection
// path, then as a virtual path through the decomposer.
func (e *Engine) lookup(ctx context.Context, sess *store.Session, path string) (*store.Collection, error) {
	col, err := e.cols.Get(ctx, path)
	if err == nil {
		return col, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	chain, err := e.vpaths.Decompose(ctx, sess, path)
	if err != nil {
		return nil, err
	}
	if len(chain) == 0 {
		return nil, nil
	}
	return chain[len(chain)-1], nil
}

// childRef remembers a child collection selected for recursion.
type childRef struct {
	col *store.Collection
	vp  string
}

// collectChanges gathers the change items of one collection and, when
// recursing, of its syncable children. The returned token is the
// incoming token merged with every item token seen.
func (e *Engine) collectChanges(ctx context.Context, sess *store.Session, col *store.Collection, vp, token string, recurse bool) ([]Item, string, error) {
	// A tombstoned branch contributes nothing further.
	if col.Tombstoned {
		return nil, token, nil
	}

	// Read contained entities through the resolved target when the
	// collection is an alias.
	resolved := col
	if col.IsAlias() {
		target, err := e.resolver.Resolve(ctx, sess, col, true, false)
		var dead *alias.DeadLinkError
		if errors.As(err, &dead) {
			e.resolver.DisableDeadLink(ctx, dead)
			return nil, token, nil
		}
		if err != nil {
			return nil, "", err
		}
		resolved = target
	}
	if resolved.Tombstoned {
		return nil, token, nil
	}

	newTok := token
	var items []Item

	events, err := e.events.ChangedSince(ctx, resolved.Path, token)
	if err != nil {
		return nil, "", err
	}
	for _, ev := range events {
		// Tombstoned events always pass through the alias-level
		// filter: the client must learn of the deletion even when the
		// event would no longer be visible.
		if !ev.Tombstoned && !categoriesVisible(col, ev.Categories) {
			continue
		}
		items = append(items, Item{
			VPath:      vp,
			Kind:       KindEvent,
			Name:       ev.Name(),
			Token:      ev.Token(),
			CanSync:    true,
			Tombstoned: ev.Tombstoned,
		})
		newTok = synctoken.Max(newTok, ev.Token())
	}

	if !resolved.EventsOnly() {
		resources, err := e.resources.ChangedSince(ctx, resolved.Path, token)
		if err != nil {
			return nil, "", err
		}
		for _, res := range resources {
			items = append(items, Item{
				VPath:      vp,
				Kind:       KindResource,
				Name:       res.Name(),
				Token:      res.Token(),
				CanSync:    true,
				Tombstoned: res.Tombstoned,
			})
			newTok = synctoken.Max(newTok, res.Token())
		}
	}

	children, err := e.cols.Children(ctx, resolved.Path)
	if err != nil {
		return nil, "", err
	}
	var (
		deferred    []*store.Collection
		recurseInto []childRef
	)
	for _, child := range children {
		if child.Type == store.CalTypePendingInbox {
			continue
		}
		if token != "" && child.IsAlias() {
			// An alias's own token does not reflect its target's
			// freshness; probe the target below instead.
			deferred = append(deferred, child)
			continue
		}
		if token == "" {
			if child.Tombstoned {
				continue
			}
		} else if !(child.Token() > token) {
			continue
		}
		items = append(items, Item{
			VPath:      vp,
			Kind:       KindCollection,
			Name:       child.Name(),
			Token:      child.Token(),
			CanSync:    child.CanSync(),
			Tombstoned: child.Tombstoned,
		})
		newTok = synctoken.Max(newTok, child.Token())
		if child.CanSync() && !child.Tombstoned {
			recurseInto = append(recurseInto, childRef{col: child, vp: store.JoinPath(vp, child.Name())})
		}
	}

	for _, al := range deferred {
		target, err := e.resolver.Resolve(ctx, sess, al, true, false)
		var dead *alias.DeadLinkError
		if errors.As(err, &dead) {
			if al.Tombstoned && !(al.Token() > token) {
				// The alias was torn down before this sync window;
				// nothing to report.
				continue
			}
			e.resolver.DisableDeadLink(ctx, dead)
			continue
		}
		if err != nil {
			return nil, "", err
		}
		if !(target.Token() > token) {
			continue
		}
		// The item carries the alias path but the target's token.
		items = append(items, Item{
			VPath:         vp,
			Kind:          KindCollection,
			Name:          al.Name(),
			Token:         target.Token(),
			CanSync:       al.CanSync(),
			Tombstoned:    al.Tombstoned,
			ResolvedToken: someToken(target.Token()),
		})
		newTok = synctoken.Max(newTok, target.Token())
		if al.CanSync() && !al.Tombstoned {
			recurseInto = append(recurseInto, childRef{col: al, vp: store.JoinPath(vp, al.Name())})
		}
	}

	if recurse {
		for _, ref := range recurseInto {
			childItems, childTok, err := e.collectChanges(ctx, sess, ref.col, ref.vp, token, true)
			if err != nil {
				return nil, "", err
			}
			items = append(items, childItems...)
			// A child token from a different epoch must not poison
			// the merged token.
			if synctoken.IsValid(childTok, e.maxAge, e.clock) {
				newTok = synctoken.Max(newTok, childTok)
			}
		}
	}

	return items, newTok, nil
}

// categoriesVisible applies the alias-level filter: an alias with
// categories only exposes entities sharing at least one of them.
func categoriesVisible(col *store.Collection, categories []string) bool {
	if !col.IsAlias() || len(col.Categories) == 0 {
		return true
	}
	for _, want := range col.Categories {
		for _, have := range categories {
			if want == have {
				return true
			}
		}
	}
	return false
}

// sortItems orders items by token, then path, for deterministic,
// token-monotonic iteration.
func sortItems(items []Item) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].Token != items[j].Token {
			return items[i].Token < items[j].Token
		}
		return items[i].Path() < items[j].Path()
	})
}
