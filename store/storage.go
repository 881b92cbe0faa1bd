package store

import "context"

// CollectionStore is the narrow contract through which the engine reads
// the collection namespace. Implementations should use the error
// sentinels of this package.
type CollectionStore interface {
	// Get retrieves a collection by its path. Returns ErrNotFound when
	// no collection lives there.
	Get(ctx context.Context, path string) (*Collection, error)
	// Children lists all collections directly below parentPath,
	// including aliases and tombstoned entries.
	Children(ctx context.Context, parentPath string) ([]*Collection, error)
	// Exists reports whether a collection lives at path.
	Exists(ctx context.Context, path string) (bool, error)
	// Disable marks a collection as a dead link so that it is not
	// retried on every resolution attempt.
	Disable(ctx context.Context, path string, status RefreshStatus) error
	// FindAliases returns every alias collection whose target is
	// targetPath, regardless of owner.
	FindAliases(ctx context.Context, targetPath string) ([]*Collection, error)
}

// EventStore is the contract for reading calendar object changes.
type EventStore interface {
	// ChangedSince returns the events of a collection changed since
	// token. A baseline fetch (empty token) excludes tombstoned
	// events; an incremental fetch includes them.
	ChangedSince(ctx context.Context, collectionPath, token string) ([]*Event, error)
	// IsVisible reports whether the named entity is visible through
	// the given collection, honoring any alias-level filtering.
	IsVisible(ctx context.Context, col *Collection, entityName string) (bool, error)
}

// ResourceStore is the contract for reading non-calendar resource
// changes.
type ResourceStore interface {
	// ChangedSince follows the same tombstone-visibility rule as
	// EventStore.ChangedSince.
	ChangedSince(ctx context.Context, collectionPath, token string) ([]*Resource, error)
}

// AccessEvaluator decides whether the session's current principal holds
// a privilege on a collection.
type AccessEvaluator interface {
	CheckAccess(ctx context.Context, sess *Session, col *Collection, priv Privilege) (bool, error)
}

// InviteStore exposes a collection's sharing state.
type InviteStore interface {
	InviteStatus(ctx context.Context, col *Collection) ([]Invitee, error)
}

// Directory maps calendar user addresses to local principals.
type Directory interface {
	// CaladdrToPrincipal returns (nil, nil) when the address does not
	// belong to a local principal.
	CaladdrToPrincipal(ctx context.Context, href string) (*Principal, error)
}
