package mailbox

import (
	"strings"

	"github.com/emersion/go-imap/v2"

	"github.com/nhle/mailkeep/internal/session"
)

// Session is the connection surface the housekeeping engine drives. It is
// satisfied by *session.Session; tests substitute an in-memory fake.
type Session interface {
	List(ref, pattern string) ([]*imap.ListData, error)
	Select(path string) (*session.MailboxHandle, error)
	SearchAll(h *session.MailboxHandle) ([]uint32, error)
	SearchSeen(h *session.MailboxHandle) ([]uint32, error)
	SearchDeleted(h *session.MailboxHandle) ([]uint32, error)
	PeekHeaders(h *session.MailboxHandle, ids []uint32) (map[uint32][]byte, error)
	FetchBody(h *session.MailboxHandle, id uint32) ([]byte, error)
	Copy(h *session.MailboxHandle, ids []uint32, target string) error
	MarkDeleted(h *session.MailboxHandle, ids []uint32) error
	Expunge(h *session.MailboxHandle) error
	Create(path string) error
	Subscribe(path string) error
	Delete(path string) error
}

var _ Session = (*session.Session)(nil)

// MailboxNode is one folder in the remote hierarchy as reported by a
// single listing call. Nodes are ephemeral: rebuilt fresh on every
// listing, never cached across mutations.
type MailboxNode struct {
	// Path is the server-native mailbox path as reported.
	Path string

	// DisplayName is Path with surrounding double quotes stripped.
	DisplayName string

	// Delim is the hierarchy separator reported for this entry.
	Delim rune

	// HasChildren reports whether the listing flagged child mailboxes.
	HasChildren bool
}

// StripPath removes all leading and trailing double quotes from a mailbox
// path.
func StripPath(path string) string {
	for len(path) > 0 && path[0] == '"' {
		path = path[1:]
	}
	for len(path) > 0 && path[len(path)-1] == '"' {
		path = path[:len(path)-1]
	}
	return path
}

// QuotePath wraps a mailbox path in double quotes iff it contains a space
// and is not already quoted. Quoting is presentation-level: the transport
// encodes mailbox names itself, so the quoted and plain forms name the
// same mailbox.
func QuotePath(path string) string {
	if !strings.Contains(path, " ") {
		return path
	}
	if !strings.HasPrefix(path, `"`) {
		path = `"` + path
	}
	if !strings.HasSuffix(path, `"`) {
		path = path + `"`
	}
	return path
}
