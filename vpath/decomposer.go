// Package vpath decomposes user-facing virtual paths into the ordered
// chain of collections traversed to reach the target, following
// aliases at any level. Results are cached per principal.
package vpath

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/cyp0633/caltree/alias"
	"github.com/cyp0633/caltree/internal/cache"
	"github.com/cyp0633/caltree/store"
)

// ErrBadVirtualPath is returned for paths that cannot be normalized.
var ErrBadVirtualPath = errors.New("vpath: bad virtual path")

// Config holds the decomposer options.
type Config struct {
	// Cache bounds the per-principal chain cache.
	Cache cache.Config
	// Logger defaults to a discard handler.
	Logger *slog.Logger
}

// Decomposer turns virtual paths into collection chains.
type Decomposer struct {
	cols     store.CollectionStore
	access   store.AccessEvaluator
	resolver *alias.Resolver
	chains   *cache.Flushing[[]*store.Collection]
	log      *slog.Logger
}

// NewDecomposer creates a Decomposer.
func NewDecomposer(cols store.CollectionStore, access store.AccessEvaluator, resolver *alias.Resolver, cfg Config) *Decomposer {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Decomposer{
		cols:     cols,
		access:   access,
		resolver: resolver,
		chains:   cache.New[[]*store.Collection](cfg.Cache),
		log:      cfg.Logger,
	}
}

// Decompose resolves a virtual path to the ordered chain of
// collections traversed to reach it. The last chain element is the
// terminal collection; its AliasOrigin points back at the collection
// where the path entered the alias graph.
//
// A malformed path yields ErrBadVirtualPath. An unresolvable path —
// no accessible prefix, a missing child, or a dead alias along the way
// — yields a nil chain without error; dead aliases encountered during
// the walk are disabled as a side effect.
func (d *Decomposer) Decompose(ctx context.Context, sess *store.Session, vp string) ([]*store.Collection, error) {
	norm, err := store.NormalizePath(vp)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrBadVirtualPath, vp)
	}

	key := sess.CacheKey() + "|" + norm
	if chain, ok := d.chains.Get(key); ok {
		return chain, nil
	}

	chain, err := d.decompose(ctx, sess, norm)
	if err != nil {
		return nil, err
	}
	if chain != nil {
		d.chains.Put(key, chain)
	}
	return chain, nil
}

// Flush drops all cached chains.
func (d *Decomposer) Flush() { d.chains.Flush() }

func (d *Decomposer) decompose(ctx context.Context, sess *store.Session, norm string) ([]*store.Collection, error) {
	// Fast path: the exact path already names a non-alias collection.
	if col, err := d.cols.Get(ctx, norm); err == nil {
		if !col.IsAlias() {
			allowed, aerr := d.access.CheckAccess(ctx, sess, col, store.PrivRead)
			if aerr != nil {
				return nil, aerr
			}
			if !allowed {
				return nil, nil
			}
			return []*store.Collection{col}, nil
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	segs := store.SplitPath(norm)
	if len(segs) == 0 {
		return nil, nil
	}

	// Hunt for the start collection: the longest leading prefix the
	// principal can actually see. Access denials are swallowed here —
	// and only here — because the namespace roots may be masked by
	// access control.
	var start *store.Collection
	consumed := 0
	for i := 1; i <= len(segs); i++ {
		prefix := "/" + strings.Join(segs[:i], "/")
		col, err := d.cols.Get(ctx, prefix)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		allowed, err := d.access.CheckAccess(ctx, sess, col, store.PrivRead)
		if err != nil {
			return nil, err
		}
		if !allowed {
			continue
		}
		start = col
		consumed = i
		break
	}
	if start == nil {
		d.log.Debug("no accessible prefix", "vpath", norm, "principal", sess.CacheKey())
		return nil, nil
	}

	var (
		chain     []*store.Collection
		lastAlias *store.Collection
	)
	cur := start
	remaining := segs[consumed:]
	for {
		chain = append(chain, cur)

		if cur.IsAlias() {
			lastAlias = cur
			target, err := d.resolver.Resolve(ctx, sess, cur, true, false)
			var dead *alias.DeadLinkError
			if errors.As(err, &dead) {
				d.resolver.DisableDeadLink(ctx, dead)
				return nil, nil
			}
			if err != nil {
				return nil, err
			}
			cur = target
			continue
		}

		if len(remaining) == 0 {
			break
		}

		// Look the next segment up as a named child of the resolved
		// collection, not as a literal path, so aliases at
		// intermediate levels keep working.
		name := remaining[0]
		remaining = remaining[1:]
		child, err := d.cols.Get(ctx, store.JoinPath(cur.Path, name))
		if errors.Is(err, store.ErrNotFound) {
			if lastAlias != nil && !lastAlias.Disabled {
				d.resolver.DisableDeadLink(ctx, &alias.DeadLinkError{
					Alias:  lastAlias,
					Status: store.RefreshStatusBadTarget,
					Reason: fmt.Sprintf("child %q not found below %s", name, cur.Path),
				})
			}
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		allowed, err := d.access.CheckAccess(ctx, sess, child, store.PrivRead)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, nil
		}
		cur = child
	}

	terminal := chain[len(chain)-1]
	if terminal != start {
		terminal.AliasOrigin = start
	}
	return chain, nil
}
