package store

import (
	"errors"
	"strings"

	"github.com/emersion/go-ical"
	"github.com/samber/mo"

	"github.com/cyp0633/caltree/synctoken"
)

// CalType identifies what kind of node a Collection is in the calendar
// namespace.
type CalType int

const (
	CalTypeFolder CalType = iota
	CalTypeCalendarCollection
	CalTypeAlias
	CalTypeExternalSubscription
	CalTypeInbox
	CalTypePendingInbox
	CalTypeOutbox
	CalTypeNotifications
	CalTypeTrash
	CalTypeDeleted
	CalTypeTasks
	CalTypePoll
)

// String provides a human-readable representation of the CalType.
func (t CalType) String() string {
	switch t {
	case CalTypeFolder:
		return "folder"
	case CalTypeCalendarCollection:
		return "calendar-collection"
	case CalTypeAlias:
		return "alias"
	case CalTypeExternalSubscription:
		return "external-subscription"
	case CalTypeInbox:
		return "inbox"
	case CalTypePendingInbox:
		return "pending-inbox"
	case CalTypeOutbox:
		return "outbox"
	case CalTypeNotifications:
		return "notifications"
	case CalTypeTrash:
		return "trash"
	case CalTypeDeleted:
		return "deleted"
	case CalTypeTasks:
		return "tasks"
	case CalTypePoll:
		return "poll"
	default:
		return "unknown"
	}
}

// RefreshStatus records why the last attempt to resolve an alias failed.
// The values mirror HTTP status codes and are stored verbatim on the
// collection so that existing deployments keep their meaning.
type RefreshStatus string

const (
	// RefreshStatusNone means resolution has not failed.
	RefreshStatusNone RefreshStatus = ""
	// RefreshStatusBadTarget is set when the alias target is malformed,
	// missing or tombstoned.
	RefreshStatusBadTarget RefreshStatus = "400"
	// RefreshStatusForbidden is set when access to the alias target was
	// denied.
	RefreshStatusForbidden RefreshStatus = "403"
)

// Privilege selects the access level checked by the access evaluator.
type Privilege int

const (
	PrivRead Privilege = iota
	PrivReadFreeBusy
)

// String provides a human-readable representation of the Privilege.
func (p Privilege) String() string {
	switch p {
	case PrivRead:
		return "read"
	case PrivReadFreeBusy:
		return "read-free-busy"
	default:
		return "unknown"
	}
}

// AliasScheme prefixes every internal alias target URI.
const AliasScheme = "caltree://"

// AliasTargetPath extracts the collection path from a scheme-prefixed
// alias target URI.
func AliasTargetPath(uri string) (string, error) {
	if !strings.HasPrefix(uri, AliasScheme) {
		return "", ErrInvalidPath
	}
	p := strings.TrimPrefix(uri, AliasScheme)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return NormalizePath(p)
}

// Lastmod is the change marker of a collection, event or resource. The
// timestamp is a fixed-width UTC string and together with the sequence
// number forms the entity's sync token.
type Lastmod struct {
	Timestamp string // UTC, format 20060102T150405Z
	Sequence  int
}

// Token renders the lastmod as a sync token.
func (l Lastmod) Token() string {
	return synctoken.Join(l.Timestamp, l.Sequence)
}

// Collection represents a node in the hierarchical calendar namespace.
type Collection struct {
	// Path is the unique, slash-separated key of this collection.
	// Example: "/user/alice/calendar"
	Path string
	Type CalType

	// AliasTarget is the scheme-prefixed URI of the referenced
	// collection. Only set when Type is CalTypeAlias or
	// CalTypeExternalSubscription.
	AliasTarget string

	Lastmod Lastmod

	// Tombstoned marks a soft-deleted collection. Tombstoned
	// collections are excluded from normal listings but remain visible
	// to synchronization callers that supply a token.
	Tombstoned bool

	// Disabled is set when alias resolution failed, together with
	// LastRefreshStatus, so the broken alias is not retried on every
	// call.
	Disabled          bool
	LastRefreshStatus RefreshStatus

	Categories  []string
	OwnerHref   string
	CreatorHref string

	// Special marks system collections (inbox, trash, ...) which are
	// never deletable.
	Special bool

	// Public collections always notify their sharees of changes.
	Public bool

	// AliasOrigin points back at the collection where a virtual path
	// entered the alias graph. It is set by the virtual-path
	// decomposer and never persisted.
	AliasOrigin *Collection
}

// Token returns the collection's change token.
func (c *Collection) Token() string { return c.Lastmod.Token() }

// IsAlias reports whether this collection is an internal symbolic
// pointer that can be followed to another collection. External
// subscriptions are resolution terminals and report false.
func (c *Collection) IsAlias() bool { return c.Type == CalTypeAlias }

// CanSync reports whether the collection can be meaningfully diffed.
// External subscriptions cannot.
func (c *Collection) CanSync() bool { return c.Type != CalTypeExternalSubscription }

// EventsOnly reports whether the collection holds calendar objects
// exclusively, in which case resource changes need not be fetched.
func (c *Collection) EventsOnly() bool { return c.Type == CalTypeCalendarCollection }

// Name returns the last segment of the collection path.
func (c *Collection) Name() string { return PathName(c.Path) }

// Parent returns the path of the enclosing collection.
func (c *Collection) Parent() string { return ParentPath(c.Path) }

// Event represents a calendar object inside a collection.
type Event struct {
	// Path is the unique URI path of the event resource.
	// Example: "/user/alice/calendar/event1.ics"
	Path           string
	CollectionPath string
	UID            string
	Lastmod        Lastmod
	Tombstoned     bool
	Categories     []string

	// Component stores the underlying VEVENT data using go-ical.
	Component *ical.Component
}

// Token returns the event's change token.
func (e *Event) Token() string { return e.Lastmod.Token() }

// Name returns the last segment of the event path.
func (e *Event) Name() string { return PathName(e.Path) }

// Resource represents a non-calendar child resource of a collection,
// such as an attachment or a notification document.
type Resource struct {
	Path           string
	CollectionPath string
	ContentType    string
	Lastmod        Lastmod
	Tombstoned     bool
}

// Token returns the resource's change token.
func (r *Resource) Token() string { return r.Lastmod.Token() }

// Name returns the last segment of the resource path.
func (r *Resource) Name() string { return PathName(r.Path) }

// Principal identifies a local calendar user.
type Principal struct {
	// Href is the principal path, e.g. "/principals/users/alice".
	Href string
}

// Invitee is one entry of a collection's sharing state.
type Invitee struct {
	ShareeHref string
	// NotificationsEnabled overrides the sharee's notification
	// preference when present. Absent means the default applies.
	NotificationsEnabled mo.Option[bool]
}

var (
	// ErrNotFound is returned when a requested entity doesn't exist.
	ErrNotFound = errors.New("entity not found")
	// ErrAccessDenied is returned when the access evaluator rejects an
	// operation.
	ErrAccessDenied = errors.New("access denied")
	// ErrInvalidPath is returned when a path cannot be normalized.
	ErrInvalidPath = errors.New("invalid path")
)
