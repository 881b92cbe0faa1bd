// Package memory provides an in-memory implementation of every
// collaborator interface, for tests and examples.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/cyp0633/caltree/store"
	"github.com/cyp0633/caltree/synctoken"
)

// Store implements store.CollectionStore, store.EventStore,
// store.AccessEvaluator, store.InviteStore and store.Directory using
// in-memory maps; Resources exposes the store.ResourceStore view
// (the two ChangedSince signatures cannot live on one type).
//
// Lookups return copies, so callers can annotate results (AliasOrigin,
// Disabled) without mutating the backing state behind each other's
// backs.
type Store struct {
	mu          sync.RWMutex
	collections map[string]*store.Collection
	events      map[string][]*store.Event    // key: collection path
	resources   map[string][]*store.Resource // key: collection path
	invites     map[string][]store.Invitee   // key: collection path
	principals  map[string]*store.Principal  // key: caladdr href
	denied      map[string]bool              // key: path|privilege|principal
	visibility  map[string]bool              // key: path|entity
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		collections: make(map[string]*store.Collection),
		events:      make(map[string][]*store.Event),
		resources:   make(map[string][]*store.Resource),
		invites:     make(map[string][]store.Invitee),
		principals:  make(map[string]*store.Principal),
		denied:      make(map[string]bool),
		visibility:  make(map[string]bool),
	}
}

func copyCollection(c *store.Collection) *store.Collection {
	dup := *c
	return &dup
}

// Collection store

func (s *Store) Get(_ context.Context, path string) (*store.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	col, ok := s.collections[path]
	if !ok {
		return nil, fmt.Errorf("collection %s: %w", path, store.ErrNotFound)
	}
	return copyCollection(col), nil
}

func (s *Store) Children(_ context.Context, parentPath string) ([]*store.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var children []*store.Collection
	for _, col := range s.collections {
		if col.Parent() == parentPath && col.Path != parentPath {
			children = append(children, copyCollection(col))
		}
	}
	return children, nil
}

func (s *Store) Exists(_ context.Context, path string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.collections[path]
	return ok, nil
}

func (s *Store) Disable(_ context.Context, path string, status store.RefreshStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	col, ok := s.collections[path]
	if !ok {
		return fmt.Errorf("collection %s: %w", path, store.ErrNotFound)
	}
	col.Disabled = true
	col.LastRefreshStatus = status
	return nil
}

func (s *Store) FindAliases(_ context.Context, targetPath string) ([]*store.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var aliases []*store.Collection
	for _, col := range s.collections {
		if !col.IsAlias() {
			continue
		}
		p, err := store.AliasTargetPath(col.AliasTarget)
		if err != nil {
			continue
		}
		if p == targetPath {
			aliases = append(aliases, copyCollection(col))
		}
	}
	return aliases, nil
}

// Event store

func (s *Store) ChangedSince(_ context.Context, collectionPath, token string) ([]*store.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var changed []*store.Event
	for _, ev := range s.events[collectionPath] {
		if token == "" {
			if ev.Tombstoned {
				continue
			}
			changed = append(changed, ev)
		} else if ev.Token() > token {
			changed = append(changed, ev)
		}
	}
	return changed, nil
}

func (s *Store) IsVisible(_ context.Context, col *store.Collection, entityName string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if visible, ok := s.visibility[col.Path+"|"+entityName]; ok {
		return visible, nil
	}
	return true, nil
}

// Resource store

// Resources returns the store's resource-store view.
func (s *Store) Resources() store.ResourceStore { return resourceView{s} }

type resourceView struct{ s *Store }

func (v resourceView) ChangedSince(_ context.Context, collectionPath, token string) ([]*store.Resource, error) {
	s := v.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	var changed []*store.Resource
	for _, res := range s.resources[collectionPath] {
		if token == "" {
			if res.Tombstoned {
				continue
			}
			changed = append(changed, res)
		} else if res.Token() > token {
			changed = append(changed, res)
		}
	}
	return changed, nil
}

// Access evaluator

func (s *Store) CheckAccess(_ context.Context, sess *store.Session, col *store.Collection, priv store.Privilege) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.denied[accessKey(col.Path, priv, "*")] {
		return false, nil
	}
	return !s.denied[accessKey(col.Path, priv, sess.CacheKey())], nil
}

// Invite store

func (s *Store) InviteStatus(_ context.Context, col *store.Collection) ([]store.Invitee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]store.Invitee(nil), s.invites[col.Path]...), nil
}

// Directory

func (s *Store) CaladdrToPrincipal(_ context.Context, href string) (*store.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.principals[href], nil
}

// --- Mutators used by tests and examples ---

// AddCollection inserts or replaces a collection.
func (s *Store) AddCollection(col *store.Collection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[col.Path] = copyCollection(col)
}

// AddEvent inserts an event and advances its collection's lastmod to
// at least the event's, so the collection token reflects the change.
func (s *Store) AddEvent(ev *store.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[ev.CollectionPath] = append(s.events[ev.CollectionPath], ev)
	s.touchLocked(ev.CollectionPath, ev.Lastmod)
}

// AddResource inserts a resource, advancing the collection lastmod the
// same way as AddEvent.
func (s *Store) AddResource(res *store.Resource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resources[res.CollectionPath] = append(s.resources[res.CollectionPath], res)
	s.touchLocked(res.CollectionPath, res.Lastmod)
}

// TombstoneEvent soft-deletes an event and advances both the event's
// and the collection's lastmod.
func (s *Store) TombstoneEvent(collectionPath, name string, lastmod store.Lastmod) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range s.events[collectionPath] {
		if ev.Name() == name {
			ev.Tombstoned = true
			ev.Lastmod = lastmod
		}
	}
	s.touchLocked(collectionPath, lastmod)
}

// TombstoneCollection soft-deletes a collection.
func (s *Store) TombstoneCollection(path string, lastmod store.Lastmod) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if col, ok := s.collections[path]; ok {
		col.Tombstoned = true
		col.Lastmod = lastmod
	}
}

// Touch advances a collection's lastmod.
func (s *Store) Touch(path string, lastmod store.Lastmod) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked(path, lastmod)
}

func (s *Store) touchLocked(path string, lastmod store.Lastmod) {
	col, ok := s.collections[path]
	if !ok {
		return
	}
	if synctoken.Max(col.Token(), lastmod.Token()) == lastmod.Token() {
		col.Lastmod = lastmod
	}
}

// Deny blocks a privilege on a path. Use principal "*" to deny
// everyone.
func (s *Store) Deny(path string, priv store.Privilege, principal string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.denied[accessKey(path, priv, principal)] = true
}

// SetVisibility overrides entity visibility through a collection; the
// default is visible.
func (s *Store) SetVisibility(path, entityName string, visible bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visibility[path+"|"+entityName] = visible
}

// AddInvite appends a sharee to a collection's invite status.
func (s *Store) AddInvite(path string, inv store.Invitee) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invites[path] = append(s.invites[path], inv)
}

// AddPrincipal registers a local principal under its calendar address.
func (s *Store) AddPrincipal(caladdr string, principal *store.Principal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.principals[caladdr] = principal
}

func accessKey(path string, priv store.Privilege, principal string) string {
	return path + "|" + priv.String() + "|" + principal
}
