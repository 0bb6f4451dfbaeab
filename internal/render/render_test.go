package render

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/nhle/mailkeep/internal/journal"
	"github.com/nhle/mailkeep/internal/mailbox"
)

func TestScanTable(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, false).ScanTable([]ScanRow{
		{Mailbox: "INBOX.Work", All: 10, Seen: 6, Deleted: 0, Skipped: 1},
	})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header and one row, got %q", buf.String())
	}
	if !strings.HasPrefix(lines[0], "MAILBOX") {
		t.Errorf("missing header: %q", lines[0])
	}
	for _, want := range []string{"INBOX.Work", "10", "6", "1"} {
		if !strings.Contains(lines[1], want) {
			t.Errorf("row missing %q: %q", want, lines[1])
		}
	}
}

func TestMoveSummary(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, false).MoveSummary([]mailbox.ArchiveRecord{
		{Mailbox: "Work", Year: 2019, Target: "Archive.2019.Work", Moved: 4, Executed: true},
		{Mailbox: "Work", Year: 2021, Target: "Archive.2021.Work", Moved: 2, Executed: true},
	})

	out := buf.String()
	if !strings.Contains(out, "moving 4 mails to Archive.2019.Work") {
		t.Errorf("missing first batch line: %q", out)
	}
	if !strings.Contains(out, "6 mails in 2 batches.") {
		t.Errorf("missing total line: %q", out)
	}
}

func TestMoveSummaryDryRunPhrasing(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, false).MoveSummary([]mailbox.ArchiveRecord{
		{Mailbox: "Work", Year: 2019, Target: "Archive.2019.Work", Moved: 4},
	})

	if !strings.Contains(buf.String(), "would move 4 mails") {
		t.Errorf("dry-run record not phrased conditionally: %q", buf.String())
	}
}

func TestMoveSummaryEmpty(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, false).MoveSummary(nil)
	if !strings.Contains(buf.String(), "Nothing to move.") {
		t.Errorf("unexpected empty output: %q", buf.String())
	}
}

func TestCleanSummary(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, false).CleanSummary([]mailbox.PruneRecord{
		{Mailbox: "Lists.Old.Leaf", Pass: 1, Executed: true},
		{Mailbox: "Lists.Old", Pass: 2, Executed: true},
	})

	out := buf.String()
	if !strings.Contains(out, "Removing mailbox Lists.Old.Leaf") {
		t.Errorf("missing first line: %q", out)
	}
	if !strings.Contains(out, "2 mailboxes removed.") {
		t.Errorf("missing total line: %q", out)
	}
}

func TestDownloadSummary(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, false).DownloadSummary([]mailbox.DownloadRecord{
		{Mailbox: "Work", Dir: "/tmp/mail/Work", Count: 12},
	})

	out := buf.String()
	if !strings.Contains(out, "downloaded 12 mails to /tmp/mail/Work") {
		t.Errorf("missing download line: %q", out)
	}
	if !strings.Contains(out, "12 mails downloaded.") {
		t.Errorf("missing total line: %q", out)
	}
}

func TestHistoryTable(t *testing.T) {
	var buf bytes.Buffer
	started := time.Date(2026, time.August, 20, 9, 30, 0, 0, time.UTC)
	New(&buf, false).HistoryTable([]journal.Run{
		{
			ID:        "4be0643f-1d98-573b-97cd-ca98a65347dd",
			Command:   "move",
			Host:      "imap.example.com",
			Username:  "bob",
			DryRun:    true,
			StartedAt: started,
			Outcome:   "ok",
			Actions:   3,
		},
	})

	out := buf.String()
	for _, want := range []string{"4be0643f", "move", "bob@imap.example.com", "yes", "ok"} {
		if !strings.Contains(out, want) {
			t.Errorf("history missing %q: %q", want, out)
		}
	}
}

func TestHistoryTableMarksUnfinishedRuns(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, false).HistoryTable([]journal.Run{
		{ID: "abc", Command: "scan", Host: "h", Username: "u", StartedAt: time.Now()},
	})
	if !strings.Contains(buf.String(), "unfinished") {
		t.Errorf("unfinished run not marked: %q", buf.String())
	}
}

func TestRunDetail(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, false).RunDetail([]journal.Action{
		{Action: "move", Mailbox: "Work", Target: "Archive.2019.Work", Year: 2019, Count: 4, Executed: true},
		{Action: "delete", Mailbox: "Lists.Old", Executed: false},
	})

	out := buf.String()
	if !strings.Contains(out, "Archive.2019.Work") || !strings.Contains(out, "2019") {
		t.Errorf("detail missing move action: %q", out)
	}
	if !strings.Contains(out, "delete") {
		t.Errorf("detail missing delete action: %q", out)
	}
}

func TestColorOffEmitsNoEscapes(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, false).ScanTable([]ScanRow{{Mailbox: "INBOX", All: 1}})
	if strings.Contains(buf.String(), "\x1b[") {
		t.Errorf("output contains ANSI escapes: %q", buf.String())
	}
}
