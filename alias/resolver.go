// Package alias resolves symbolic collection references. An internal
// alias points at another collection which may itself be an alias;
// resolution follows the chain until a non-alias collection is
// reached. External subscriptions are resolution terminals and are
// never chained further.
package alias

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/cyp0633/caltree/store"
)

// MaxHops bounds the length of an alias chain. A chain that long is
// either a cycle or hopelessly broken; resolution fails closed with
// ErrAliasCycle instead of looping.
const MaxHops = 32

// ErrAliasCycle is returned when an alias chain exceeds MaxHops.
var ErrAliasCycle = errors.New("alias: chain exceeds hop limit")

// DeadLinkError reports that an alias target could not be reached. It
// carries the originating alias and the refresh status the caller
// should disable it with.
type DeadLinkError struct {
	// Alias is the alias whose target could not be reached.
	Alias  *store.Collection
	Status store.RefreshStatus
	Reason string
}

func (e *DeadLinkError) Error() string {
	return fmt.Sprintf("alias: dead link at %s (%s): %s", e.Alias.Path, e.Status, e.Reason)
}

// Config holds the resolver options.
type Config struct {
	// Logger defaults to a discard handler.
	Logger *slog.Logger
}

// Resolver follows alias chains to their terminal collection.
type Resolver struct {
	cols   store.CollectionStore
	access store.AccessEvaluator
	log    *slog.Logger
}

// NewResolver creates a Resolver on top of the collection store and
// access evaluator.
func NewResolver(cols store.CollectionStore, access store.AccessEvaluator, cfg Config) *Resolver {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Resolver{cols: cols, access: access, log: cfg.Logger}
}

// Resolve follows col's alias chain and returns the terminal
// collection. With resolveSubAlias false only the immediate target is
// fetched. freeBusy selects the privilege checked on each target.
//
// A missing, forbidden or tombstoned target yields a *DeadLinkError;
// the caller decides whether to disable the originating alias (see
// DisableDeadLink). Non-alias input is returned unchanged.
func (r *Resolver) Resolve(ctx context.Context, sess *store.Session, col *store.Collection, resolveSubAlias, freeBusy bool) (*store.Collection, error) {
	priv := store.PrivRead
	if freeBusy {
		priv = store.PrivReadFreeBusy
	}

	cur := col
	for hops := 0; cur.IsAlias(); hops++ {
		if hops >= MaxHops {
			return nil, fmt.Errorf("%w: started at %s", ErrAliasCycle, col.Path)
		}
		if cur.Disabled {
			// Known-dead alias; do not retry the target on every call.
			status := cur.LastRefreshStatus
			if status == store.RefreshStatusNone {
				status = store.RefreshStatusBadTarget
			}
			return nil, &DeadLinkError{Alias: cur, Status: status, Reason: "alias is disabled"}
		}

		targetPath, err := store.AliasTargetPath(cur.AliasTarget)
		if err != nil {
			return nil, &DeadLinkError{
				Alias:  cur,
				Status: store.RefreshStatusBadTarget,
				Reason: fmt.Sprintf("malformed target %q", cur.AliasTarget),
			}
		}

		target, err := r.cols.Get(ctx, targetPath)
		if errors.Is(err, store.ErrNotFound) {
			return nil, &DeadLinkError{
				Alias:  cur,
				Status: store.RefreshStatusBadTarget,
				Reason: fmt.Sprintf("target %s does not exist", targetPath),
			}
		}
		if err != nil {
			return nil, err
		}

		allowed, err := r.access.CheckAccess(ctx, sess, target, priv)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, &DeadLinkError{
				Alias:  cur,
				Status: store.RefreshStatusForbidden,
				Reason: fmt.Sprintf("no %s access to %s", priv, targetPath),
			}
		}
		if target.Tombstoned {
			return nil, &DeadLinkError{
				Alias:  cur,
				Status: store.RefreshStatusBadTarget,
				Reason: fmt.Sprintf("target %s is tombstoned", targetPath),
			}
		}

		cur = target
		if !resolveSubAlias {
			break
		}
	}
	return cur, nil
}

// DisableDeadLink marks the alias behind a DeadLinkError as disabled
// with its refresh status, so the dead link is not retried on every
// call. Already-disabled aliases are left alone.
func (r *Resolver) DisableDeadLink(ctx context.Context, dead *DeadLinkError) {
	if dead.Alias.Disabled {
		return
	}
	r.log.Warn("disabling dead alias",
		"path", dead.Alias.Path,
		"status", string(dead.Status),
		"reason", dead.Reason)
	if err := r.cols.Disable(ctx, dead.Alias.Path, dead.Status); err != nil {
		r.log.Error("failed to disable alias", "path", dead.Alias.Path, "error", err)
		return
	}
	dead.Alias.Disabled = true
	dead.Alias.LastRefreshStatus = dead.Status
}
