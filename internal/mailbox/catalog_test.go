package mailbox

import (
	"testing"

	"github.com/emersion/go-imap/v2"
)

func TestSubtreeBuildsSortedNodes(t *testing.T) {
	sess := newFakeSession('.')
	sess.addMailbox("INBOX")
	sess.addMailbox("INBOX.Work")
	sess.addMailbox("INBOX.Archive")

	nodes, err := NewCatalog(sess).Subtree("")
	if err != nil {
		t.Fatalf("Subtree failed: %v", err)
	}
	if len(nodes) != 3 {
		t.Fatalf("expected 3 nodes, got %d", len(nodes))
	}

	want := []string{"INBOX", "INBOX.Archive", "INBOX.Work"}
	for n, node := range nodes {
		if node.DisplayName != want[n] {
			t.Errorf("node %d: expected %q, got %q", n, want[n], node.DisplayName)
		}
		if node.Delim != '.' {
			t.Errorf("node %d: expected delimiter '.', got %q", n, node.Delim)
		}
	}

	if !nodes[0].HasChildren {
		t.Error("INBOX should have children")
	}
	if nodes[1].HasChildren {
		t.Error("INBOX.Archive should not have children")
	}
}

func TestSubtreeScopesToRoot(t *testing.T) {
	sess := newFakeSession('.')
	sess.addMailbox("INBOX")
	sess.addMailbox("INBOX.Work")
	sess.addMailbox("INBOX.Work.Clients")
	sess.addMailbox("Archive")

	nodes, err := NewCatalog(sess).Subtree("INBOX.Work")
	if err != nil {
		t.Fatalf("Subtree failed: %v", err)
	}
	if len(nodes) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(nodes))
	}
	if nodes[0].DisplayName != "INBOX.Work" || nodes[1].DisplayName != "INBOX.Work.Clients" {
		t.Errorf("unexpected subtree: %q, %q", nodes[0].DisplayName, nodes[1].DisplayName)
	}
}

func TestSubtreeSkipsNilEntries(t *testing.T) {
	sess := newFakeSession('.')
	sess.addMailbox("INBOX")
	sess.emitNilEntry = true

	nodes, err := NewCatalog(sess).Subtree("")
	if err != nil {
		t.Fatalf("Subtree failed: %v", err)
	}
	if len(nodes) != 1 {
		t.Fatalf("expected 1 node, got %d", len(nodes))
	}
}

func TestHasChildrenAttr(t *testing.T) {
	cases := []struct {
		name  string
		attrs []imap.MailboxAttr
		want  bool
	}{
		{"has children", []imap.MailboxAttr{"\\HasChildren"}, true},
		{"has no children", []imap.MailboxAttr{"\\HasNoChildren"}, false},
		{"mixed", []imap.MailboxAttr{"\\Noselect", "\\HasChildren"}, true},
		{"empty", nil, false},
	}
	for _, c := range cases {
		if got := hasChildrenAttr(c.attrs); got != c.want {
			t.Errorf("%s: expected %v, got %v", c.name, c.want, got)
		}
	}
}

func TestStripPath(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{`"INBOX.Work"`, "INBOX.Work"},
		{"INBOX.Work", "INBOX.Work"},
		{`""Folder""`, "Folder"},
		{`"`, ""},
		{"", ""},
	}
	for _, c := range cases {
		if got := StripPath(c.in); got != c.want {
			t.Errorf("StripPath(%q): expected %q, got %q", c.in, c.want, got)
		}
	}
}

func TestQuotePath(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"INBOX.Work", "INBOX.Work"},
		{"Client Projects", `"Client Projects"`},
		{`"Client Projects"`, `"Client Projects"`},
		{`"Client Projects`, `"Client Projects"`},
	}
	for _, c := range cases {
		if got := QuotePath(c.in); got != c.want {
			t.Errorf("QuotePath(%q): expected %q, got %q", c.in, c.want, got)
		}
	}
}

func TestQuoteStripRoundTrip(t *testing.T) {
	original := "Archive.2019.Client Projects"
	if got := StripPath(QuotePath(original)); got != original {
		t.Errorf("round trip changed path: %q", got)
	}
}
