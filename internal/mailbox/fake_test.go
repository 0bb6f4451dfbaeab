package mailbox

import (
	"fmt"
	"sort"
	"strings"

	"github.com/emersion/go-imap/v2"

	"github.com/nhle/mailkeep/internal/session"
)

type fakeMessage struct {
	header  string
	body    string
	seen    bool
	deleted bool
}

type fakeMailboxState struct {
	messages   []*fakeMessage
	subscribed bool
}

// fakeSession is an in-memory Session. It hands out one live handle at a
// time and rejects operations through superseded ones, mirroring how
// selection and expunge invalidate sequence numbers on a real connection.
type fakeSession struct {
	delim     rune
	mailboxes map[string]*fakeMailboxState

	selected string
	live     *session.MailboxHandle

	// knobs
	emitNilEntry  bool
	ignoreDeletes bool

	// recorded activity
	creates     []string
	subscribes  []string
	deletes     []string
	copies      int
	expunges    int
	peekBatches [][]uint32
}

func newFakeSession(delim rune) *fakeSession {
	return &fakeSession{delim: delim, mailboxes: map[string]*fakeMailboxState{}}
}

func (f *fakeSession) addMailbox(path string) *fakeMailboxState {
	state := &fakeMailboxState{}
	f.mailboxes[path] = state
	return state
}

func (f *fakeSession) addMessage(path, header, body string, seen bool) {
	state, ok := f.mailboxes[path]
	if !ok {
		state = f.addMailbox(path)
	}
	state.messages = append(state.messages, &fakeMessage{header: header, body: body, seen: seen})
}

func (f *fakeSession) hasChildren(path string) bool {
	prefix := path + string(f.delim)
	for other := range f.mailboxes {
		if strings.HasPrefix(other, prefix) {
			return true
		}
	}
	return false
}

func (f *fakeSession) check(h *session.MailboxHandle) error {
	if h == nil || h != f.live {
		return &session.ProtocolError{Op: "handle", Message: "stale mailbox handle"}
	}
	return nil
}

func (f *fakeSession) state(h *session.MailboxHandle) (*fakeMailboxState, error) {
	if err := f.check(h); err != nil {
		return nil, err
	}
	state, ok := f.mailboxes[f.selected]
	if !ok {
		return nil, fmt.Errorf("selected mailbox %q vanished", f.selected)
	}
	return state, nil
}

func (f *fakeSession) List(ref, pattern string) ([]*imap.ListData, error) {
	names := make([]string, 0, len(f.mailboxes))
	for name := range f.mailboxes {
		if ref != "" && name != ref && !strings.HasPrefix(name, ref+string(f.delim)) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([]*imap.ListData, 0, len(names)+1)
	for _, name := range names {
		attr := imap.MailboxAttr("\\HasNoChildren")
		if f.hasChildren(name) {
			attr = imap.MailboxAttr("\\HasChildren")
		}
		entries = append(entries, &imap.ListData{
			Attrs:   []imap.MailboxAttr{attr},
			Delim:   f.delim,
			Mailbox: name,
		})
	}
	if f.emitNilEntry {
		entries = append(entries, nil)
	}
	return entries, nil
}

func (f *fakeSession) Select(path string) (*session.MailboxHandle, error) {
	state, ok := f.mailboxes[path]
	if !ok {
		return nil, &session.ProtocolError{Op: "select", Mailbox: path, Message: "no such mailbox"}
	}
	f.selected = path
	f.live = &session.MailboxHandle{Path: path, NumMessages: uint32(len(state.messages))}
	return f.live, nil
}

func (f *fakeSession) SearchAll(h *session.MailboxHandle) ([]uint32, error) {
	return f.search(h, func(*fakeMessage) bool { return true })
}

func (f *fakeSession) SearchSeen(h *session.MailboxHandle) ([]uint32, error) {
	return f.search(h, func(msg *fakeMessage) bool { return msg.seen })
}

func (f *fakeSession) SearchDeleted(h *session.MailboxHandle) ([]uint32, error) {
	return f.search(h, func(msg *fakeMessage) bool { return msg.deleted })
}

func (f *fakeSession) search(h *session.MailboxHandle, match func(*fakeMessage) bool) ([]uint32, error) {
	state, err := f.state(h)
	if err != nil {
		return nil, err
	}
	var ids []uint32
	for n, msg := range state.messages {
		if match(msg) {
			ids = append(ids, uint32(n+1))
		}
	}
	return ids, nil
}

func (f *fakeSession) PeekHeaders(h *session.MailboxHandle, ids []uint32) (map[uint32][]byte, error) {
	state, err := f.state(h)
	if err != nil {
		return nil, err
	}
	f.peekBatches = append(f.peekBatches, append([]uint32(nil), ids...))
	headers := make(map[uint32][]byte, len(ids))
	for _, id := range ids {
		if int(id) < 1 || int(id) > len(state.messages) {
			continue
		}
		headers[id] = []byte(state.messages[id-1].header)
	}
	return headers, nil
}

func (f *fakeSession) FetchBody(h *session.MailboxHandle, id uint32) ([]byte, error) {
	state, err := f.state(h)
	if err != nil {
		return nil, err
	}
	if int(id) < 1 || int(id) > len(state.messages) {
		return nil, fmt.Errorf("message %d not found", id)
	}
	msg := state.messages[id-1]
	msg.seen = true
	return []byte(msg.body), nil
}

func (f *fakeSession) Copy(h *session.MailboxHandle, ids []uint32, target string) error {
	if len(ids) == 0 {
		return nil
	}
	state, err := f.state(h)
	if err != nil {
		return err
	}
	dst, ok := f.mailboxes[target]
	if !ok {
		return &session.ProtocolError{Op: "copy", Mailbox: target, Message: "no such mailbox"}
	}
	for _, id := range ids {
		if int(id) < 1 || int(id) > len(state.messages) {
			return fmt.Errorf("message %d not found", id)
		}
		src := state.messages[id-1]
		dst.messages = append(dst.messages, &fakeMessage{
			header:  src.header,
			body:    src.body,
			seen:    src.seen,
			deleted: src.deleted,
		})
	}
	f.copies++
	return nil
}

func (f *fakeSession) MarkDeleted(h *session.MailboxHandle, ids []uint32) error {
	state, err := f.state(h)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if int(id) < 1 || int(id) > len(state.messages) {
			return fmt.Errorf("message %d not found", id)
		}
		state.messages[id-1].deleted = true
	}
	return nil
}

func (f *fakeSession) Expunge(h *session.MailboxHandle) error {
	state, err := f.state(h)
	if err != nil {
		return err
	}
	kept := state.messages[:0]
	for _, msg := range state.messages {
		if !msg.deleted {
			kept = append(kept, msg)
		}
	}
	state.messages = kept
	f.expunges++
	f.live = nil
	return nil
}

func (f *fakeSession) Create(path string) error {
	if _, ok := f.mailboxes[path]; ok {
		return &session.ProtocolError{Op: "create", Mailbox: path, Message: "mailbox exists"}
	}
	f.addMailbox(path)
	f.creates = append(f.creates, path)
	return nil
}

func (f *fakeSession) Subscribe(path string) error {
	state, ok := f.mailboxes[path]
	if !ok {
		return &session.ProtocolError{Op: "subscribe", Mailbox: path, Message: "no such mailbox"}
	}
	state.subscribed = true
	f.subscribes = append(f.subscribes, path)
	return nil
}

func (f *fakeSession) Delete(path string) error {
	if _, ok := f.mailboxes[path]; !ok {
		return &session.ProtocolError{Op: "delete", Mailbox: path, Message: "no such mailbox"}
	}
	f.deletes = append(f.deletes, path)
	if f.ignoreDeletes {
		return nil
	}
	delete(f.mailboxes, path)
	if path == f.selected {
		f.live = nil
	}
	return nil
}

func (f *fakeSession) messageCount(path string) int {
	state, ok := f.mailboxes[path]
	if !ok {
		return -1
	}
	return len(state.messages)
}

var _ Session = (*fakeSession)(nil)
