package mailbox

import (
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/mailkeep/internal/session"
)

// chunkSize caps how many message ids a single header fetch names, so the
// command line stays within server limits on large mailboxes.
const chunkSize = 1000

// SkipRecord names a seen message that could not be bucketed by year.
type SkipRecord struct {
	ID     uint32
	Reason string
}

// InspectionResult is the census of one selected mailbox.
type InspectionResult struct {
	// All, Seen and Deleted hold the message ids matching the respective
	// search, valid only against the handle that produced them.
	All     []uint32
	Seen    []uint32
	Deleted []uint32

	// Years buckets the seen ids by the year of their Date header.
	Years map[int][]uint32

	// Skips lists seen messages whose Date header was missing or
	// unparsable. They stay out of every year bucket.
	Skips []SkipRecord
}

// Inspector takes the census of mailboxes: id counts per search plus year
// buckets derived from message headers.
type Inspector struct {
	sess Session
	log  zerolog.Logger
}

func NewInspector(sess Session, log zerolog.Logger) *Inspector {
	return &Inspector{sess: sess, log: log}
}

// Inspect runs the three searches against the selected mailbox and
// buckets the seen messages by Date-header year. Messages whose year
// cannot be deduced are tagged in Skips and logged, never dropped
// silently.
func (i *Inspector) Inspect(h *session.MailboxHandle) (*InspectionResult, error) {
	all, err := i.sess.SearchAll(h)
	if err != nil {
		return nil, err
	}
	seen, err := i.sess.SearchSeen(h)
	if err != nil {
		return nil, err
	}
	deleted, err := i.sess.SearchDeleted(h)
	if err != nil {
		return nil, err
	}

	res := &InspectionResult{
		All:     all,
		Seen:    seen,
		Deleted: deleted,
		Years:   make(map[int][]uint32),
	}

	for _, chunk := range chunkIDs(seen, chunkSize) {
		headers, err := i.sess.PeekHeaders(h, chunk)
		if err != nil {
			return nil, err
		}
		for _, id := range chunk {
			raw, ok := headers[id]
			if !ok {
				res.Skips = append(res.Skips, SkipRecord{ID: id, Reason: "header unavailable"})
				i.log.Warn().Str("mailbox", h.Path).Uint32("id", id).Msg("no header returned for mail")
				continue
			}
			sent, err := dateFromHeader(raw)
			if err != nil {
				res.Skips = append(res.Skips, SkipRecord{ID: id, Reason: err.Error()})
				i.log.Warn().Str("mailbox", h.Path).Uint32("id", id).Err(err).Msg("cannot deduce year of mail")
				continue
			}
			year := sent.Year()
			res.Years[year] = append(res.Years[year], id)
		}
	}

	return res, nil
}

// chunkIDs splits ids into slices of at most size elements, preserving
// order.
func chunkIDs(ids []uint32, size int) [][]uint32 {
	if len(ids) == 0 {
		return nil
	}
	chunks := make([][]uint32, 0, (len(ids)+size-1)/size)
	for len(ids) > size {
		chunks = append(chunks, ids[:size])
		ids = ids[size:]
	}
	return append(chunks, ids)
}

// dateFromHeader extracts the sent time from a raw RFC 5322 header block.
// Folded continuation lines are joined before parsing.
func dateFromHeader(raw []byte) (time.Time, error) {
	lines := strings.Split(string(raw), "\n")
	for n, line := range lines {
		line = strings.TrimSuffix(line, "\r")
		if !strings.HasPrefix(line, "Date:") {
			continue
		}
		value := strings.TrimSpace(line[len("Date:"):])
		for _, next := range lines[n+1:] {
			next = strings.TrimSuffix(next, "\r")
			if !strings.HasPrefix(next, " ") && !strings.HasPrefix(next, "\t") {
				break
			}
			value += " " + strings.TrimSpace(next)
		}
		sent, err := mail.ParseDate(value)
		if err != nil {
			return time.Time{}, fmt.Errorf("parsing Date %q: %w", value, err)
		}
		return sent, nil
	}
	return time.Time{}, fmt.Errorf("no Date header")
}
