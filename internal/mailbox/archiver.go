package mailbox

import (
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// ArchiveRecord reports one (mailbox, year) batch moved into the archive
// hierarchy, or that would be moved under a dry run.
type ArchiveRecord struct {
	Mailbox  string
	Year     int
	Target   string
	Moved    int
	Executed bool
}

// Mover migrates seen messages older than a cutoff year into per-year
// mirror mailboxes under a target root.
type Mover struct {
	sess      Session
	catalog   *Catalog
	inspector *Inspector
	log       zerolog.Logger
}

func NewMover(sess Session, log zerolog.Logger) *Mover {
	return &Mover{
		sess:      sess,
		catalog:   NewCatalog(sess),
		inspector: NewInspector(sess, log),
		log:       log,
	}
}

// Archive walks every mailbox under sourceRoot and, for each year bucket
// older than cutoff, copies the seen messages to
// targetRoot<delim>year<delim>sourceName, flags the originals deleted and
// expunges the source once after all its buckets. Mailboxes whose display
// name appears in omit are left untouched. Under a dry run every read
// runs and every record is produced, but nothing is created, copied,
// flagged or expunged.
func (m *Mover) Archive(sourceRoot, targetRoot string, cutoff int, omit []string, dryRun bool) ([]ArchiveRecord, error) {
	nodes, err := m.catalog.Subtree(sourceRoot)
	if err != nil {
		return nil, err
	}

	var records []ArchiveRecord
	for _, node := range nodes {
		if slices.Contains(omit, node.DisplayName) {
			m.log.Debug().Str("mailbox", node.DisplayName).Msg("mailbox omitted")
			continue
		}

		h, err := m.sess.Select(node.DisplayName)
		if err != nil {
			return records, err
		}
		res, err := m.inspector.Inspect(h)
		if err != nil {
			return records, err
		}
		if len(res.Skips) > 0 {
			m.log.Warn().
				Str("mailbox", node.DisplayName).
				Int("mails", len(res.Skips)).
				Msg("mails without a usable date stay in place")
		}

		years := make([]int, 0, len(res.Years))
		for year := range res.Years {
			years = append(years, year)
		}
		sort.Ints(years)

		mutated := false
		for _, year := range years {
			if year >= cutoff {
				continue
			}
			ids := res.Years[year]
			target := archivePath(targetRoot, node, year)

			m.log.Info().
				Str("mailbox", node.DisplayName).
				Int("year", year).
				Int("mails", len(ids)).
				Str("target", target).
				Bool("dry_run", dryRun).
				Msg("moving mails")

			if !dryRun {
				if err := m.createMailboxRecursive(StripPath(target), node.Delim); err != nil {
					return records, err
				}
				// The existence probes above moved the selection; step
				// back into the source before touching ids. Sequence
				// numbers are stable across selects, only expunge
				// renumbers them.
				h, err = m.sess.Select(node.DisplayName)
				if err != nil {
					return records, err
				}
				if err := m.sess.Copy(h, ids, StripPath(target)); err != nil {
					return records, err
				}
				if err := m.sess.MarkDeleted(h, ids); err != nil {
					return records, err
				}
				mutated = true
			}

			records = append(records, ArchiveRecord{
				Mailbox:  node.DisplayName,
				Year:     year,
				Target:   target,
				Moved:    len(ids),
				Executed: !dryRun,
			})
		}

		if mutated {
			if err := m.sess.Expunge(h); err != nil {
				return records, err
			}
		}
	}

	return records, nil
}

// createMailboxRecursive ensures path and every ancestor exist, probing
// each prefix with a select and creating it on failure. Each prefix is
// subscribed whether or not it was just created.
func (m *Mover) createMailboxRecursive(path string, delim rune) error {
	prefix := ""
	for _, segment := range strings.Split(path, string(delim)) {
		if prefix == "" {
			prefix = segment
		} else {
			prefix = prefix + string(delim) + segment
		}
		if _, err := m.sess.Select(prefix); err != nil {
			if err := m.sess.Create(prefix); err != nil {
				return err
			}
			m.log.Debug().Str("mailbox", prefix).Msg("created mailbox")
		}
		if err := m.sess.Subscribe(prefix); err != nil {
			return err
		}
	}
	return nil
}

// archivePath builds the quoted mirror path for one (mailbox, year)
// bucket.
func archivePath(targetRoot string, node MailboxNode, year int) string {
	delim := string(node.Delim)
	return QuotePath(StripPath(targetRoot) + delim + strconv.Itoa(year) + delim + node.DisplayName)
}
