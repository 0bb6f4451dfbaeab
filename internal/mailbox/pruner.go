package mailbox

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/nhle/mailkeep/internal/session"
)

// maxPrunePasses bounds the fixed-point iteration against a server whose
// listing never converges.
const maxPrunePasses = 32

// PruneRecord reports one mailbox deleted (or deletable, under a dry run)
// and the pass that caught it.
type PruneRecord struct {
	Mailbox  string
	Pass     int
	Executed bool
}

// Pruner removes mailboxes that hold no messages and have no children,
// cascading upward as deletions turn parents into empty leaves.
type Pruner struct {
	sess    Session
	catalog *Catalog
	log     zerolog.Logger
}

func NewPruner(sess Session, log zerolog.Logger) *Pruner {
	return &Pruner{sess: sess, catalog: NewCatalog(sess), log: log}
}

// Clean prunes the subtree under root to a fixed point: each pass
// re-lists the tree and deletes every empty leaf, and a pass that deleted
// anything triggers another, since a removed leaf can leave its parent
// childless. Mailboxes whose name carries no hierarchy delimiter are
// never candidates. A dry run reports the first pass only: it cannot
// observe the deletions it skipped.
func (p *Pruner) Clean(root string, dryRun bool) ([]PruneRecord, error) {
	var records []PruneRecord

	for pass := 1; ; pass++ {
		if pass > maxPrunePasses {
			return records, &session.ProtocolError{
				Op:      "clean",
				Mailbox: root,
				Message: fmt.Sprintf("mailbox tree did not converge after %d passes", maxPrunePasses),
			}
		}

		nodes, err := p.catalog.Subtree(root)
		if err != nil {
			return records, err
		}

		deleted := 0
		for _, node := range nodes {
			if node.HasChildren {
				continue
			}
			if !strings.ContainsRune(node.DisplayName, node.Delim) {
				// Top-of-tree entries stay, empty or not.
				continue
			}

			h, err := p.sess.Select(node.DisplayName)
			if err != nil {
				return records, err
			}
			if h.NumMessages != 0 {
				continue
			}

			p.log.Info().
				Str("mailbox", node.DisplayName).
				Int("pass", pass).
				Bool("dry_run", dryRun).
				Msg("removing mailbox: no mails, no children")

			records = append(records, PruneRecord{
				Mailbox:  node.DisplayName,
				Pass:     pass,
				Executed: !dryRun,
			})

			if dryRun {
				continue
			}
			// Step out of the mailbox before removing it.
			if _, err := p.sess.Select("INBOX"); err != nil {
				return records, err
			}
			if err := p.sess.Delete(node.DisplayName); err != nil {
				return records, err
			}
			deleted++
		}

		if deleted == 0 {
			return records, nil
		}
	}
}
