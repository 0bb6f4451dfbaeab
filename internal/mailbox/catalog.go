package mailbox

import (
	"sort"
	"strings"

	"github.com/emersion/go-imap/v2"
)

// Catalog lists the remote mailbox hierarchy.
type Catalog struct {
	sess Session
}

func NewCatalog(sess Session) *Catalog {
	return &Catalog{sess: sess}
}

// Subtree lists every mailbox at or below root, sorted by display name.
// An empty root lists the whole account. Entries the server pads the
// listing with (nil terminator artifacts) are skipped.
func (c *Catalog) Subtree(root string) ([]MailboxNode, error) {
	entries, err := c.sess.List(StripPath(root), "*")
	if err != nil {
		return nil, err
	}

	nodes := make([]MailboxNode, 0, len(entries))
	for _, entry := range entries {
		if entry == nil {
			continue
		}
		nodes = append(nodes, MailboxNode{
			Path:        entry.Mailbox,
			DisplayName: StripPath(entry.Mailbox),
			Delim:       entry.Delim,
			HasChildren: hasChildrenAttr(entry.Attrs),
		})
	}

	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].DisplayName < nodes[j].DisplayName
	})
	return nodes, nil
}

// hasChildrenAttr reports whether any listing attribute carries the
// HasChildren token. The substring test is safe against \HasNoChildren:
// the interposed "No" breaks the match.
func hasChildrenAttr(attrs []imap.MailboxAttr) bool {
	for _, attr := range attrs {
		if strings.Contains(string(attr), "HasChildren") {
			return true
		}
	}
	return false
}
