package syncreport

import (
	"github.com/samber/mo"

	"github.com/cyp0633/caltree/store"
)

// ItemKind identifies what a report item refers to.
type ItemKind int

const (
	KindEvent ItemKind = iota
	KindResource
	KindCollection
)

// String provides a human-readable representation of the ItemKind.
func (k ItemKind) String() string {
	switch k {
	case KindEvent:
		return "event"
	case KindResource:
		return "resource"
	case KindCollection:
		return "collection"
	default:
		return "unknown"
	}
}

// Item is one change record of a sync report.
type Item struct {
	// VPath is the virtual path of the enclosing collection.
	VPath string
	Kind  ItemKind
	// Name is the changed entity's name below VPath.
	Name  string
	Token string
	// CanSync is false for external subscriptions, which cannot be
	// meaningfully diffed.
	CanSync    bool
	Tombstoned bool
	// ResolvedToken is present when the item is an alias reporting its
	// resolved target's freshness; it then equals Token.
	ResolvedToken mo.Option[string]
}

// Path returns the full virtual path of the changed entity.
func (it Item) Path() string { return store.JoinPath(it.VPath, it.Name) }

// Report is the result of one sync-report computation.
type Report struct {
	// Items is ordered by token, then path.
	Items []Item
	// Token is the client's next sync token.
	Token string
	// TokenValid is false only when the requested collection was not
	// found and the caller supplied a token.
	TokenValid bool
}

func someToken(tok string) mo.Option[string] { return mo.Some(tok) }
