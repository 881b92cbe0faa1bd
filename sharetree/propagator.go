package sharetree

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/cyp0633/caltree/alias"
	"github.com/cyp0633/caltree/internal/cache"
	"github.com/cyp0633/caltree/store"
)

// Config holds the propagator options.
type Config struct {
	// Cache bounds the alias-info cache (base and per-entity trees).
	Cache cache.Config
	// Logger defaults to a discard handler.
	Logger *slog.Logger
}

// Propagator builds and caches alias-info trees.
type Propagator struct {
	cols     store.CollectionStore
	events   store.EventStore
	invites  store.InviteStore
	dir      store.Directory
	resolver *alias.Resolver
	trees    *cache.Flushing[*Tree]
	log      *slog.Logger
}

// NewPropagator creates a Propagator on top of the collaborator
// stores.
func NewPropagator(cols store.CollectionStore, events store.EventStore, invites store.InviteStore, dir store.Directory, resolver *alias.Resolver, cfg Config) *Propagator {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Propagator{
		cols:     cols,
		events:   events,
		invites:  invites,
		dir:      dir,
		resolver: resolver,
		trees:    cache.New[*Tree](cfg.Cache),
		log:      cfg.Logger,
	}
}

// AliasesInfo returns the tree of every alias and sharee that
// transitively references the collection at href, or nil when the
// collection does not exist. The tree is cached; when two sessions
// build the same tree concurrently the first writer wins and the
// loser's tree is discarded.
func (p *Propagator) AliasesInfo(ctx context.Context, sess *store.Session, href string) (*Tree, error) {
	if sess == nil {
		sess = store.NewSession("")
	}
	if t, ok := p.trees.Get(href); ok {
		return t, nil
	}

	col, err := p.cols.Get(ctx, href)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	t := &Tree{}
	root := t.add(Node{
		PrincipalHref:        col.OwnerHref,
		Collection:           col,
		Parent:               -1,
		NotificationsEnabled: true,
	})
	visited := map[string]bool{col.Path: true}
	if err := p.build(ctx, sess, t, root, col, visited); err != nil {
		return nil, err
	}

	winner, _ := p.trees.PutIfAbsent(href, t)
	return winner, nil
}

// AliasesInfoForEntity returns the alias-info tree specialized for one
// entity: a structural clone of the base tree where every node carries
// whether the entity is visible through that node's collection. The
// clone is cached under the combined key.
func (p *Propagator) AliasesInfoForEntity(ctx context.Context, sess *store.Session, href, entityName string) (*Tree, error) {
	key := href + ":" + entityName
	if t, ok := p.trees.Get(key); ok {
		return t, nil
	}

	base, err := p.AliasesInfo(ctx, sess, href)
	if err != nil || base == nil {
		return nil, err
	}

	clone := base.Clone()
	for i := 0; i < clone.Len(); i++ {
		n := clone.Node(i)
		if n.Collection == nil {
			// External sharees have no local collection to filter
			// through; inherit the parent's visibility.
			if n.Parent >= 0 {
				n.Visible = clone.Node(n.Parent).Visible
			}
			continue
		}
		visible, err := p.events.IsVisible(ctx, n.Collection, entityName)
		if err != nil {
			return nil, err
		}
		n.Visible = visible
	}

	winner, _ := p.trees.PutIfAbsent(key, clone)
	return winner, nil
}

// Invalidate drops every cache entry whose tree references the given
// collection href, plus the entries keyed directly by it. Call it
// whenever a collection mutates in a way that could affect sharing.
func (p *Propagator) Invalidate(href string) {
	p.trees.DeleteFunc(func(key string, t *Tree) bool {
		if key == href || strings.HasPrefix(key, href+":") {
			return true
		}
		return t.ReferencesHref(href)
	})
}

// build attaches, below parent, every alias and sharee referencing
// col. visited keeps a looping alias graph from recursing forever.
func (p *Propagator) build(ctx context.Context, sess *store.Session, t *Tree, parent int, col *store.Collection, visited map[string]bool) error {
	invites, err := p.invites.InviteStatus(ctx, col)
	if err != nil {
		return err
	}
	// Resolve invitees first: sharee aliases are recognized by their
	// owner being an invited principal.
	principals := make([]*store.Principal, len(invites))
	sharees := make(map[string]bool, len(invites))
	for i, inv := range invites {
		principal, err := p.dir.CaladdrToPrincipal(ctx, inv.ShareeHref)
		if err != nil {
			return err
		}
		principals[i] = principal
		if principal != nil {
			sharees[principal.Href] = true
		}
	}

	aliases, err := p.cols.FindAliases(ctx, col.Path)
	if err != nil {
		return err
	}

	// User-created aliases that are not sharee materializations; they
	// may themselves be shared onward.
	for _, al := range aliases {
		if sharees[al.OwnerHref] || visited[al.Path] {
			continue
		}
		visited[al.Path] = true
		idx := t.add(Node{
			PrincipalHref:        al.OwnerHref,
			Collection:           al,
			Parent:               parent,
			NotificationsEnabled: true,
		})
		if err := p.build(ctx, sess, t, idx, al, visited); err != nil {
			return err
		}
	}

	for i, inv := range invites {
		principal := principals[i]
		if principal == nil {
			// Not a local principal; the notification pipeline must
			// deliver externally.
			t.add(Node{
				PrincipalHref:        inv.ShareeHref,
				Parent:               parent,
				NotificationsEnabled: notifyEnabled(col, inv),
				ExternalCua:          true,
			})
			continue
		}
		if !notifyEnabled(col, inv) {
			continue
		}
		if err := p.buildSharee(ctx, sess, t, parent, col, aliases, principal, visited); err != nil {
			return err
		}
	}
	return nil
}

// buildSharee attaches the sharee principal's aliases to col, scoped
// to that principal's identity for the access checks performed while
// resolving them.
func (p *Propagator) buildSharee(ctx context.Context, sess *store.Session, t *Tree, parent int, col *store.Collection, aliases []*store.Collection, principal *store.Principal, visited map[string]bool) error {
	restore := sess.PushPrincipal(principal.Href)
	defer restore()

	for _, al := range aliases {
		if al.OwnerHref != principal.Href || visited[al.Path] {
			continue
		}
		// Confirm the sharee's alias really resolves back to the
		// shared collection before fanning out through it.
		target, err := p.resolver.Resolve(ctx, sess, al, true, false)
		if err != nil {
			var dead *alias.DeadLinkError
			if errors.As(err, &dead) {
				p.log.Debug("skipping dead sharee alias", "alias", al.Path, "reason", dead.Reason)
				continue
			}
			return err
		}
		if target.Path != col.Path {
			continue
		}
		visited[al.Path] = true
		idx := t.add(Node{
			PrincipalHref:        principal.Href,
			Collection:           al,
			Parent:               parent,
			NotificationsEnabled: true,
		})
		if err := p.build(ctx, sess, t, idx, al, visited); err != nil {
			return err
		}
	}
	return nil
}

// notifyEnabled applies the notification rule: public collections
// always notify, private ones honor the invite's explicit override.
func notifyEnabled(col *store.Collection, inv store.Invitee) bool {
	if col.Public {
		return true
	}
	return inv.NotificationsEnabled.OrElse(true)
}
