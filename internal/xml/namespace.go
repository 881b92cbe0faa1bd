package xml

import "github.com/beevik/etree"

// Namespace definitions for WebDAV and the caltree extensions
const (
	// DAV is the WebDAV namespace
	DAV = "DAV:"
	// CalDAV is the CalDAV namespace
	CalDAV = "urn:ietf:params:xml:ns:caldav"
	// Caltree is the namespace of caltree-specific extension elements
	Caltree = "http://caltree.dev/ns/"
)

// AddNamespaces adds the standard namespaces to the XML document
func AddNamespaces(doc *etree.Document) {
	root := doc.Root()
	if root == nil {
		return
	}
	root.CreateAttr("xmlns:D", DAV)
	root.CreateAttr("xmlns:C", CalDAV)
	root.CreateAttr("xmlns:CT", Caltree)
}
