package session

import (
	"fmt"
	"mime"
	"slices"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/charset"
	"github.com/rs/zerolog"

	"github.com/nhle/mailkeep/internal/config"
)

// MailboxHandle identifies one selected mailbox within a session. Message
// ids are only meaningful against a live handle: reselecting or expunging
// invalidates every handle minted before it, and id-scoped operations on a
// stale handle fail with a ProtocolError.
type MailboxHandle struct {
	// Path is the mailbox path that was selected.
	Path string

	// NumMessages is the message count the server reported at selection.
	NumMessages uint32

	generation uint64
}

// Session owns exactly one authenticated IMAP connection. Operations are
// strictly sequential: the protocol allows a single outstanding command per
// connection, and the housekeeping flows are ordered anyway.
type Session struct {
	client     *imapclient.Client
	caps       imap.CapSet
	log        zerolog.Logger
	selected   string
	generation uint64
}

// Connect dials the endpoint described by desc, negotiates TLS (immediate,
// or via STARTTLS upgrade when a plaintext server offers it), and
// authenticates. CRAM-MD5 is preferred when advertised so the password
// stays off the wire; plaintext LOGIN is the fallback unless the server
// forbids it.
func Connect(desc config.ConnectionDescriptor, log zerolog.Logger) (*Session, error) {
	addr := desc.Addr()

	opts := &imapclient.Options{
		WordDecoder: &mime.WordDecoder{CharsetReader: charset.Reader},
	}
	if log.GetLevel() <= zerolog.DebugLevel {
		opts.DebugWriter = &protocolTraceWriter{log: log}
	}

	log.Debug().Str("addr", addr).Bool("tls", desc.TLS).Msg("connecting")

	var client *imapclient.Client
	var err error
	if desc.TLS {
		client, err = imapclient.DialTLS(addr, opts)
	} else {
		client, err = dialWithUpgrade(addr, opts, log)
	}
	if err != nil {
		return nil, &ConnectionError{Addr: addr, Message: err.Error()}
	}

	s := &Session{client: client, log: log}

	caps, err := s.capabilities()
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	s.caps = caps
	for c := range caps {
		log.Debug().Str("capability", string(c)).Msg("remote capability")
	}

	if err := s.authenticate(desc); err != nil {
		_ = client.Logout().Wait()
		return nil, err
	}
	log.Debug().Str("user", desc.Username).Msg("logged in")

	return s, nil
}

// dialWithUpgrade connects without TLS, then reconnects through a STARTTLS
// upgrade when the server advertises one. The library only negotiates
// STARTTLS at dial time, so the upgrade is a redial rather than in-band.
func dialWithUpgrade(
	addr string, opts *imapclient.Options, log zerolog.Logger,
) (*imapclient.Client, error) {
	client, err := imapclient.DialInsecure(addr, opts)
	if err != nil {
		return nil, err
	}

	caps := client.Caps()
	if len(caps) == 0 {
		caps, err = client.Capability().Wait()
		if err != nil {
			_ = client.Close()
			return nil, err
		}
	}
	if !caps.Has(imap.CapStartTLS) {
		return client, nil
	}

	if err := client.Close(); err != nil {
		return nil, err
	}
	log.Debug().Str("addr", addr).Msg("server offers STARTTLS, reconnecting with upgrade")
	return imapclient.DialStartTLS(addr, opts)
}

// capabilities returns the server capability set, issuing an explicit
// CAPABILITY round trip when the greeting carried none. Capabilities are
// trusted from this first listing and not re-queried.
func (s *Session) capabilities() (imap.CapSet, error) {
	caps := s.client.Caps()
	if len(caps) > 0 {
		return caps, nil
	}
	caps, err := s.client.Capability().Wait()
	if err != nil {
		return nil, &ProtocolError{Op: "capability", Message: err.Error()}
	}
	return caps, nil
}

// authenticate logs in with the strongest mechanism the server offers.
func (s *Session) authenticate(desc config.ConnectionDescriptor) error {
	mechs := s.caps.AuthMechanisms()

	switch {
	case slices.Contains(mechs, "CRAM-MD5"):
		s.log.Debug().Msg("authenticating with CRAM-MD5")
		err := s.client.Authenticate(newCRAMMD5Client(desc.Username, desc.Password))
		if err != nil {
			return &AuthError{
				Username: desc.Username,
				Message:  fmt.Sprintf("CRAM-MD5 authentication failed: %v", err),
			}
		}
	case !s.caps.Has(imap.CapLoginDisabled):
		s.log.Debug().Msg("authenticating with LOGIN")
		if err := s.client.Login(desc.Username, desc.Password).Wait(); err != nil {
			return &AuthError{
				Username: desc.Username,
				Message:  fmt.Sprintf("login failed: %v", err),
			}
		}
	default:
		return &AuthError{
			Username: desc.Username,
			Message:  "no supported authentication mechanism offered",
		}
	}

	return nil
}

// Logout ends the session. Teardown is best-effort: failures are logged at
// warn level and swallowed.
func (s *Session) Logout() {
	if err := s.client.Logout().Wait(); err != nil {
		s.log.Warn().Err(err).Msg("logout failed")
	}
}

// Select makes path the target of subsequent id-scoped operations and
// returns a fresh handle for it. Handles minted earlier become stale.
func (s *Session) Select(path string) (*MailboxHandle, error) {
	data, err := s.client.Select(path, nil).Wait()
	if err != nil {
		return nil, &ProtocolError{Op: "select", Mailbox: path, Message: err.Error()}
	}

	s.generation++
	s.selected = path
	return &MailboxHandle{
		Path:        path,
		NumMessages: data.NumMessages,
		generation:  s.generation,
	}, nil
}

// check validates that h is the live handle for the current selection.
func (s *Session) check(h *MailboxHandle) error {
	if h == nil || h.generation != s.generation {
		return &ProtocolError{
			Op:      "handle",
			Mailbox: handlePath(h),
			Message: "stale mailbox handle: mailbox was reselected or expunged since the handle was obtained",
		}
	}
	return nil
}

func handlePath(h *MailboxHandle) string {
	if h == nil {
		return ""
	}
	return h.Path
}

// SearchAll returns the ids of every message in the mailbox behind h.
func (s *Session) SearchAll(h *MailboxHandle) ([]uint32, error) {
	return s.search(h, &imap.SearchCriteria{})
}

// SearchSeen returns the ids of the messages flagged seen.
func (s *Session) SearchSeen(h *MailboxHandle) ([]uint32, error) {
	return s.search(h, &imap.SearchCriteria{Flag: []imap.Flag{imap.FlagSeen}})
}

// SearchDeleted returns the ids of the messages flagged deleted.
func (s *Session) SearchDeleted(h *MailboxHandle) ([]uint32, error) {
	return s.search(h, &imap.SearchCriteria{Flag: []imap.Flag{imap.FlagDeleted}})
}

func (s *Session) search(h *MailboxHandle, criteria *imap.SearchCriteria) ([]uint32, error) {
	if err := s.check(h); err != nil {
		return nil, err
	}

	data, err := s.client.Search(criteria, nil).Wait()
	if err != nil {
		return nil, &ProtocolError{Op: "search", Mailbox: h.Path, Message: err.Error()}
	}
	return data.AllSeqNums(), nil
}

// PeekHeaders fetches the raw header block of each given message without
// touching the seen flag. Ids the server does not answer for are absent
// from the result map; the caller decides how tolerant to be.
func (s *Session) PeekHeaders(h *MailboxHandle, ids []uint32) (map[uint32][]byte, error) {
	if err := s.check(h); err != nil {
		return nil, err
	}

	headers := make(map[uint32][]byte, len(ids))
	if len(ids) == 0 {
		return headers, nil
	}

	section := &imap.FetchItemBodySection{
		Specifier: imap.PartSpecifierHeader,
		Peek:      true,
	}
	fetchCmd := s.client.Fetch(imap.SeqSetNum(ids...), &imap.FetchOptions{
		BodySection: []*imap.FetchItemBodySection{section},
	})

	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}

		buf, err := msg.Collect()
		if err != nil {
			continue
		}
		if raw := buf.FindBodySection(section); raw != nil {
			headers[buf.SeqNum] = raw
		}
	}

	if err := fetchCmd.Close(); err != nil {
		return nil, &ProtocolError{Op: "fetch", Mailbox: h.Path, Message: err.Error()}
	}
	return headers, nil
}

// FetchBody retrieves the complete raw message. This is a plain, non-peek
// fetch: the message gets marked seen, matching archival read semantics.
func (s *Session) FetchBody(h *MailboxHandle, id uint32) ([]byte, error) {
	if err := s.check(h); err != nil {
		return nil, err
	}

	section := &imap.FetchItemBodySection{}
	fetchCmd := s.client.Fetch(imap.SeqSetNum(id), &imap.FetchOptions{
		BodySection: []*imap.FetchItemBodySection{section},
	})
	defer fetchCmd.Close()

	msg := fetchCmd.Next()
	if msg == nil {
		return nil, &ProtocolError{
			Op:      "fetch",
			Mailbox: h.Path,
			Message: fmt.Sprintf("message %d not found", id),
		}
	}

	buf, err := msg.Collect()
	if err != nil {
		return nil, &ProtocolError{Op: "fetch", Mailbox: h.Path, Message: err.Error()}
	}

	body := buf.FindBodySection(section)
	if err := fetchCmd.Close(); err != nil {
		return nil, &ProtocolError{Op: "fetch", Mailbox: h.Path, Message: err.Error()}
	}
	if body == nil {
		return nil, &ProtocolError{
			Op:      "fetch",
			Mailbox: h.Path,
			Message: fmt.Sprintf("no body returned for message %d", id),
		}
	}
	return body, nil
}

// Copy copies the given messages into the target mailbox. An empty id list
// is a no-op.
func (s *Session) Copy(h *MailboxHandle, ids []uint32, target string) error {
	if err := s.check(h); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	if _, err := s.client.Copy(imap.SeqSetNum(ids...), target).Wait(); err != nil {
		return &ProtocolError{Op: "copy", Mailbox: h.Path, Message: err.Error()}
	}
	return nil
}

// MarkDeleted adds the \Deleted flag to the given messages. Flag changes
// do not renumber ids, so the handle stays live.
func (s *Session) MarkDeleted(h *MailboxHandle, ids []uint32) error {
	if err := s.check(h); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	storeCmd := s.client.Store(imap.SeqSetNum(ids...), &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagDeleted},
	}, nil)
	if err := storeCmd.Close(); err != nil {
		return &ProtocolError{Op: "store", Mailbox: h.Path, Message: err.Error()}
	}
	return nil
}

// Expunge permanently removes the messages flagged deleted in the mailbox
// behind h. Expunging renumbers the remaining messages, so it consumes the
// handle: further id-scoped operations need a fresh Select.
func (s *Session) Expunge(h *MailboxHandle) error {
	if err := s.check(h); err != nil {
		return err
	}

	if _, err := s.client.Expunge().Collect(); err != nil {
		return &ProtocolError{Op: "expunge", Mailbox: h.Path, Message: err.Error()}
	}
	s.generation++
	return nil
}

// List enumerates mailboxes matching pattern under ref and returns the raw
// listing entries for the catalog to interpret.
func (s *Session) List(ref, pattern string) ([]*imap.ListData, error) {
	entries, err := s.client.List(ref, pattern, nil).Collect()
	if err != nil {
		return nil, &ProtocolError{Op: "list", Mailbox: ref, Message: err.Error()}
	}
	return entries, nil
}

// Create makes a new mailbox at path.
func (s *Session) Create(path string) error {
	if err := s.client.Create(path, nil).Wait(); err != nil {
		return &ProtocolError{Op: "create", Mailbox: path, Message: err.Error()}
	}
	return nil
}

// Subscribe adds path to the server-side subscription list.
func (s *Session) Subscribe(path string) error {
	if err := s.client.Subscribe(path).Wait(); err != nil {
		return &ProtocolError{Op: "subscribe", Mailbox: path, Message: err.Error()}
	}
	return nil
}

// Delete removes the mailbox at path. Deleting the currently selected
// mailbox invalidates its handle.
func (s *Session) Delete(path string) error {
	if err := s.client.Delete(path).Wait(); err != nil {
		return &ProtocolError{Op: "delete", Mailbox: path, Message: err.Error()}
	}
	if path == s.selected {
		s.generation++
	}
	return nil
}
