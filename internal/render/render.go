package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mailkeep/internal/journal"
	"github.com/nhle/mailkeep/internal/mailbox"
)

// Adaptive color pairs (dark terminal value, light terminal value).
var (
	ColorBlue   = lipgloss.AdaptiveColor{Dark: "#5B9BD5", Light: "#2B6CB0"}
	ColorGreen  = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	ColorYellow = lipgloss.AdaptiveColor{Dark: "#FFD93D", Light: "#B7791F"}
	ColorRed    = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	ColorGray   = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}
	ColorWhite  = lipgloss.AdaptiveColor{Dark: "#F8F9FA", Light: "#1A202C"}
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(ColorWhite)
	mailboxStyle = lipgloss.NewStyle().Foreground(ColorBlue)
	warnStyle    = lipgloss.NewStyle().Foreground(ColorYellow)
	successStyle = lipgloss.NewStyle().Foreground(ColorGreen)
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(ColorRed)
	dimStyle     = lipgloss.NewStyle().Foreground(ColorGray)
)

// outcomeStyle returns a color-coded style for a recorded run outcome.
func outcomeStyle(outcome string) lipgloss.Style {
	switch {
	case outcome == "ok":
		return successStyle
	case outcome == "":
		return warnStyle
	default:
		return errorStyle
	}
}

// Renderer writes the human-facing reports. Styling is skipped entirely
// when color is off, so output stays grep-friendly under --no-color and
// in pipes.
type Renderer struct {
	out   io.Writer
	color bool
}

func New(out io.Writer, color bool) *Renderer {
	return &Renderer{out: out, color: color}
}

// style pads before coloring; ANSI escapes would otherwise break column
// alignment.
func (r *Renderer) style(st lipgloss.Style, s string) string {
	if !r.color {
		return s
	}
	return st.Render(s)
}

// ScanRow is one mailbox line of the scan table.
type ScanRow struct {
	Mailbox string
	All     int
	Seen    int
	Deleted int
	Skipped int
}

// ScanTable prints the census of every scanned mailbox.
func (r *Renderer) ScanTable(rows []ScanRow) {
	header := fmt.Sprintf("%-50s %8s %8s %8s %8s", "MAILBOX", "MAILS", "SEEN", "DELETED", "SKIPPED")
	fmt.Fprintln(r.out, r.style(headerStyle, header))
	for _, row := range rows {
		fmt.Fprintf(r.out, "%s %8d %8d %8d %8d\n",
			r.style(mailboxStyle, fmt.Sprintf("%-50s", row.Mailbox)),
			row.All, row.Seen, row.Deleted, row.Skipped,
		)
	}
}

// MailboxList prints bare mailbox names, one per line.
func (r *Renderer) MailboxList(names []string) {
	for _, name := range names {
		fmt.Fprintln(r.out, name)
	}
}

// MoveSummary prints one line per archived (mailbox, year) batch.
func (r *Renderer) MoveSummary(records []mailbox.ArchiveRecord) {
	if len(records) == 0 {
		fmt.Fprintln(r.out, r.style(dimStyle, "Nothing to move."))
		return
	}

	total := 0
	for _, rec := range records {
		verb := "moving"
		if !rec.Executed {
			verb = "would move"
		}
		fmt.Fprintf(r.out, "Mailbox: %s - %s %d mails to %s\n",
			r.style(mailboxStyle, rec.Mailbox), verb, rec.Moved,
			r.style(mailboxStyle, rec.Target),
		)
		total += rec.Moved
	}
	fmt.Fprintln(r.out, r.style(successStyle,
		fmt.Sprintf("%d mails in %d batches.", total, len(records))))
}

// CleanSummary prints one line per pruned mailbox.
func (r *Renderer) CleanSummary(records []mailbox.PruneRecord) {
	if len(records) == 0 {
		fmt.Fprintln(r.out, r.style(dimStyle, "Nothing to remove."))
		return
	}

	for _, rec := range records {
		verb := "Removing"
		if !rec.Executed {
			verb = "Would remove"
		}
		fmt.Fprintf(r.out, "%s mailbox %s (no mails, no children)\n",
			verb, r.style(mailboxStyle, rec.Mailbox))
	}
	fmt.Fprintln(r.out, r.style(successStyle,
		fmt.Sprintf("%d mailboxes removed.", len(records))))
}

// DownloadSummary prints one line per exported mailbox.
func (r *Renderer) DownloadSummary(records []mailbox.DownloadRecord) {
	if len(records) == 0 {
		fmt.Fprintln(r.out, r.style(dimStyle, "Nothing to download."))
		return
	}

	total := 0
	for _, rec := range records {
		fmt.Fprintf(r.out, "Mailbox: %s - downloaded %d mails to %s\n",
			r.style(mailboxStyle, rec.Mailbox), rec.Count, rec.Dir)
		total += rec.Count
	}
	fmt.Fprintln(r.out, r.style(successStyle,
		fmt.Sprintf("%d mails downloaded.", total)))
}

// HistoryTable prints the recorded runs, newest first.
func (r *Renderer) HistoryTable(runs []journal.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(r.out, r.style(dimStyle, "No recorded runs."))
		return
	}

	header := fmt.Sprintf("%-10s %-19s %-10s %-28s %-4s %7s  %s",
		"RUN", "STARTED", "COMMAND", "ACCOUNT", "DRY", "ACTIONS", "OUTCOME")
	fmt.Fprintln(r.out, r.style(headerStyle, header))
	for _, run := range runs {
		dry := ""
		if run.DryRun {
			dry = "yes"
		}
		outcome := run.Outcome
		if outcome == "" {
			outcome = "unfinished"
		}
		fmt.Fprintf(r.out, "%-10s %-19s %-10s %-28s %-4s %7d  %s\n",
			shortID(run.ID),
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			run.Command,
			run.Username+"@"+run.Host,
			dry,
			run.Actions,
			r.style(outcomeStyle(run.Outcome), outcome),
		)
	}
}

// RunDetail prints the actions of a single run.
func (r *Renderer) RunDetail(actions []journal.Action) {
	if len(actions) == 0 {
		fmt.Fprintln(r.out, r.style(dimStyle, "No recorded actions."))
		return
	}

	header := fmt.Sprintf("%-10s %-36s %-40s %5s %6s  %s",
		"ACTION", "MAILBOX", "TARGET", "YEAR", "COUNT", "EXECUTED")
	fmt.Fprintln(r.out, r.style(headerStyle, header))
	for _, a := range actions {
		year := ""
		if a.Year != 0 {
			year = fmt.Sprintf("%d", a.Year)
		}
		executed := "yes"
		if !a.Executed {
			executed = "no"
		}
		fmt.Fprintf(r.out, "%-10s %s %-40s %5s %6d  %s\n",
			a.Action,
			r.style(mailboxStyle, fmt.Sprintf("%-36s", a.Mailbox)),
			a.Target, year, a.Count, executed,
		)
	}
}

// shortID compresses a UUID for table display.
func shortID(id string) string {
	if n := strings.IndexByte(id, '-'); n > 0 {
		return id[:n]
	}
	return id
}
