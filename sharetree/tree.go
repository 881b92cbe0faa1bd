// Package sharetree discovers, for a real collection, every alias and
// sharee that transitively references it. The resulting tree drives
// the decision of which sharees a change notification must fan out to.
package sharetree

import "github.com/cyp0633/caltree/store"

// Node is one entry of an alias-info tree. Nodes live in the tree's
// arena and reference each other by index, so parent links never form
// ownership cycles.
type Node struct {
	// PrincipalHref owns this alias or sharee entry.
	PrincipalHref string
	// Collection is the alias collection materializing the reference.
	// Nil for external sharees, which have no local collection.
	Collection *store.Collection
	// Parent is the arena index of the referencing node, -1 at the
	// root.
	Parent int
	// Children are the arena indices of the sharees of this node.
	Children []int
	// NotificationsEnabled is false when the sharee opted out of
	// change notifications.
	NotificationsEnabled bool
	// ExternalCua marks sharees that are not local principals.
	ExternalCua bool
	// Visible is the per-entity overlay: whether the entity the tree
	// was specialized for is visible through this node's collection.
	// Always false on base trees.
	Visible bool
}

// Tree is an arena-allocated alias-info tree. The root node describes
// the shared collection itself; children describe aliases and sharees.
type Tree struct {
	nodes []Node
}

// Root returns the arena index of the root node, or -1 for an empty
// tree.
func (t *Tree) Root() int {
	if len(t.nodes) == 0 {
		return -1
	}
	return 0
}

// Node returns the node at an arena index.
func (t *Tree) Node(i int) *Node { return &t.nodes[i] }

// Len returns the number of nodes.
func (t *Tree) Len() int { return len(t.nodes) }

// add appends a node to the arena, links it below parent and returns
// its index.
func (t *Tree) add(n Node) int {
	idx := len(t.nodes)
	t.nodes = append(t.nodes, n)
	if n.Parent >= 0 {
		t.nodes[n.Parent].Children = append(t.nodes[n.Parent].Children, idx)
	}
	return idx
}

// Clone produces a structural copy sharing no node storage with the
// original. Collection pointers are shared; the clone only exists to
// carry a different visibility overlay.
func (t *Tree) Clone() *Tree {
	c := &Tree{nodes: make([]Node, len(t.nodes))}
	copy(c.nodes, t.nodes)
	for i := range c.nodes {
		if len(t.nodes[i].Children) > 0 {
			c.nodes[i].Children = append([]int(nil), t.nodes[i].Children...)
		}
	}
	return c
}

// ReferencesHref reports whether any node of the tree references the
// given collection path.
func (t *Tree) ReferencesHref(href string) bool {
	for i := range t.nodes {
		if t.nodes[i].Collection != nil && t.nodes[i].Collection.Path == href {
			return true
		}
	}
	return false
}

// Walk visits every node in arena order (parents before children).
func (t *Tree) Walk(visit func(idx int, n *Node)) {
	for i := range t.nodes {
		visit(i, &t.nodes[i])
	}
}
