package mailbox

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/nhle/mailkeep/internal/session"
)

func cascadeSession(t *testing.T) *fakeSession {
	t.Helper()
	sess := newFakeSession('.')
	sess.addMessage("INBOX", header2019, "keep", false)
	sess.addMailbox("Lists")
	sess.addMailbox("Lists.Old")
	sess.addMailbox("Lists.Old.Leaf")
	return sess
}

func TestCleanCascadesUpward(t *testing.T) {
	sess := cascadeSession(t)

	records, err := NewPruner(sess, zerolog.Nop()).Clean("", false)
	if err != nil {
		t.Fatalf("Clean failed: %v", err)
	}

	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %+v", records)
	}
	if records[0].Mailbox != "Lists.Old.Leaf" || records[0].Pass != 1 {
		t.Errorf("unexpected first record: %+v", records[0])
	}
	if records[1].Mailbox != "Lists.Old" || records[1].Pass != 2 {
		t.Errorf("unexpected second record: %+v", records[1])
	}

	if _, ok := sess.mailboxes["Lists.Old.Leaf"]; ok {
		t.Error("Lists.Old.Leaf still exists")
	}
	if _, ok := sess.mailboxes["Lists.Old"]; ok {
		t.Error("Lists.Old still exists")
	}
	// Top-of-tree entries survive even when empty and childless.
	if _, ok := sess.mailboxes["Lists"]; !ok {
		t.Error("Lists was deleted")
	}
	if _, ok := sess.mailboxes["INBOX"]; !ok {
		t.Error("INBOX was deleted")
	}
}

func TestCleanKeepsPopulatedLeaves(t *testing.T) {
	sess := newFakeSession('.')
	sess.addMessage("INBOX", header2019, "keep", false)
	sess.addMessage("Lists.Keep", header2020, "still here", true)

	records, err := NewPruner(sess, zerolog.Nop()).Clean("", false)
	if err != nil {
		t.Fatalf("Clean failed: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no records, got %+v", records)
	}
	if _, ok := sess.mailboxes["Lists.Keep"]; !ok {
		t.Error("populated leaf was deleted")
	}
}

func TestCleanDryRunReportsFirstPassOnly(t *testing.T) {
	sess := cascadeSession(t)

	records, err := NewPruner(sess, zerolog.Nop()).Clean("", true)
	if err != nil {
		t.Fatalf("Clean failed: %v", err)
	}

	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %+v", records)
	}
	if records[0].Mailbox != "Lists.Old.Leaf" || records[0].Executed {
		t.Errorf("unexpected record: %+v", records[0])
	}
	if len(sess.deletes) != 0 {
		t.Errorf("dry run deleted mailboxes: %v", sess.deletes)
	}
	if len(sess.mailboxes) != 4 {
		t.Errorf("dry run changed the tree: %d mailboxes left", len(sess.mailboxes))
	}
}

func TestCleanSecondRunFindsNothing(t *testing.T) {
	sess := cascadeSession(t)
	pruner := NewPruner(sess, zerolog.Nop())

	if _, err := pruner.Clean("", false); err != nil {
		t.Fatalf("first Clean failed: %v", err)
	}
	records, err := pruner.Clean("", false)
	if err != nil {
		t.Fatalf("second Clean failed: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected fixed point, got %+v", records)
	}
}

func TestCleanScopesToRoot(t *testing.T) {
	sess := newFakeSession('.')
	sess.addMessage("INBOX", header2019, "keep", false)
	sess.addMailbox("Lists")
	sess.addMailbox("Lists.Old")
	sess.addMailbox("Other")
	sess.addMailbox("Other.Empty")

	_, err := NewPruner(sess, zerolog.Nop()).Clean("Lists", false)
	if err != nil {
		t.Fatalf("Clean failed: %v", err)
	}
	if _, ok := sess.mailboxes["Lists.Old"]; ok {
		t.Error("Lists.Old still exists")
	}
	if _, ok := sess.mailboxes["Other.Empty"]; !ok {
		t.Error("mailbox outside root was deleted")
	}
}

func TestCleanStopsAtPassBound(t *testing.T) {
	sess := cascadeSession(t)
	sess.ignoreDeletes = true

	_, err := NewPruner(sess, zerolog.Nop()).Clean("", false)
	if err == nil {
		t.Fatal("expected an error when the tree never converges")
	}
	if !session.IsProtocolError(err) {
		t.Errorf("expected a protocol error, got %v", err)
	}
}
