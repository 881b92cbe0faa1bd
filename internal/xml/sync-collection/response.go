// Package synccollection renders a finished sync report as a
// DAV:multistatus document. Only response generation lives here; the
// engine itself never touches XML.
package synccollection

import (
	"github.com/beevik/etree"

	"github.com/cyp0633/caltree/internal/xml"
	"github.com/cyp0633/caltree/syncreport"
)

// TokenPrefix is prepended to the raw change token to form the
// sync-token URI handed to clients.
const TokenPrefix = "data:,"

// BuildResponse renders a report into a multistatus document. Each
// item becomes one response element: tombstoned items report 404 so
// the client drops its copy, everything else reports 200 with the
// item's token as etag. The document ends with the sync-token the
// client should present next time.
func BuildResponse(report *syncreport.Report) *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	ms := doc.CreateElement("D:multistatus")
	xml.AddNamespaces(doc)

	for _, item := range report.Items {
		resp := ms.CreateElement("D:response")
		resp.CreateElement("D:href").SetText(item.Path())

		if item.Tombstoned {
			resp.CreateElement("D:status").SetText("HTTP/1.1 404 Not Found")
			continue
		}

		propstat := resp.CreateElement("D:propstat")
		prop := propstat.CreateElement("D:prop")
		prop.CreateElement("D:getetag").SetText(`"` + item.Token + `"`)

		if item.Kind == syncreport.KindCollection {
			rt := prop.CreateElement("D:resourcetype")
			rt.CreateElement("D:collection")
			if !item.CanSync {
				// External subscriptions cannot be diffed; flag them
				// so clients do not attempt incremental sync below.
				prop.CreateElement("CT:no-sync")
			}
		}
		if resolved, ok := item.ResolvedToken.Get(); ok {
			prop.CreateElement("CT:resolved-token").SetText(resolved)
		}

		propstat.CreateElement("D:status").SetText("HTTP/1.1 200 OK")
	}

	ms.CreateElement("D:sync-token").SetText(TokenPrefix + report.Token)
	return doc
}
