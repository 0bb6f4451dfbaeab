package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/nhle/mailkeep/internal/config"
	"github.com/nhle/mailkeep/internal/credential"
	"github.com/nhle/mailkeep/internal/export"
	"github.com/nhle/mailkeep/internal/journal"
	"github.com/nhle/mailkeep/internal/mailbox"
	"github.com/nhle/mailkeep/internal/render"
	"github.com/nhle/mailkeep/internal/session"
)

const version = "0.5.0"

type app struct {
	cfg            *config.Config
	log            zerolog.Logger
	render         *render.Renderer
	dryRun         bool
	plain          bool
	savePassword   bool
	forgetPassword bool
}

func main() {
	// .env values feed both the config overlay and the password lookup.
	_ = godotenv.Load()

	var (
		dryRun         bool
		verbose        bool
		noColor        bool
		plain          bool
		savePassword   bool
		forgetPassword bool
		configPath     string
	)
	flag.BoolVar(&dryRun, "n", false, "report actions without performing them")
	flag.BoolVar(&dryRun, "dry-run", false, "report actions without performing them")
	flag.BoolVar(&verbose, "v", false, "verbose diagnostics with protocol tracing")
	flag.BoolVar(&verbose, "verbose", false, "verbose diagnostics with protocol tracing")
	flag.BoolVar(&noColor, "C", false, "disable colored output")
	flag.BoolVar(&noColor, "no-color", false, "disable colored output")
	flag.BoolVar(&plain, "plain", false, "connect without TLS (STARTTLS is still used when offered)")
	flag.BoolVar(&savePassword, "save-password", false, "store a prompted password in the system keyring")
	flag.BoolVar(&forgetPassword, "forget-password", false, "drop the stored password and prompt again")
	flag.StringVar(&configPath, "config", config.DefaultConfigPath(), "path to the config file")
	flag.Usage = usage
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	verbose = verbose || cfg.Verbose
	plain = plain || cfg.Plain
	noColor = noColor || cfg.NoColor

	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: noColor}).
		Level(level).
		With().Timestamp().Logger()

	a := &app{
		cfg:            cfg,
		log:            logger,
		render:         render.New(os.Stdout, !noColor),
		dryRun:         dryRun,
		plain:          plain,
		savePassword:   savePassword,
		forgetPassword: forgetPassword,
	}

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	var runErr error
	switch args[0] {
	case "scan":
		runErr = a.runScan(args[1:])
	case "move":
		runErr = a.runMove(args[1:])
	case "clean":
		runErr = a.runClean(args[1:])
	case "download":
		runErr = a.runDownload(args[1:])
	case "history":
		runErr = a.runHistory(args[1:])
	case "version":
		fmt.Printf("mailkeep V%s\n", version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", args[0])
		usage()
		os.Exit(1)
	}

	if runErr != nil {
		logger.Error().Err(runErr).Msg("fatal")
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `mailkeep - IMAP mailbox housekeeping

Usage:
  mailkeep [flags] <command> [command flags] [arguments]

Commands:
  scan      CONNECT              take a census of every mailbox
  move      CONNECT FROM [TO]    archive old seen mails into per-year mailboxes
  clean     CONNECT MAILBOX      delete empty leaf mailboxes under MAILBOX
  download  CONNECT MAILBOX DIR  download every mail to local files
  history   [RUN-ID]             show recorded runs, or one run's actions
  version                        print the program version

CONNECT has the form USER[:PASSWORD]@HOST[:PORT]; "-" uses the configured
server. A missing password is resolved from $MAILKEEP_PASSWORD, the system
keyring, or an interactive prompt.

Flags:
`)
	flag.PrintDefaults()
}

// resolveConnect expands the CONNECT argument, with "-" or absence falling
// back to the configured server, and completes the password.
func (a *app) resolveConnect(arg string) (config.ConnectionDescriptor, error) {
	connect := arg
	if connect == "" || connect == "-" {
		connect = a.cfg.Server
	}
	if connect == "" {
		return config.ConnectionDescriptor{}, &config.ConfigError{
			Field:   "server",
			Message: "no connection string given and none configured",
		}
	}

	desc, err := config.ParseConnectionString(connect, !a.plain)
	if err != nil {
		return config.ConnectionDescriptor{}, err
	}
	if desc.Password == "" {
		desc.Password, err = a.resolvePassword(desc)
		if err != nil {
			return config.ConnectionDescriptor{}, err
		}
	}
	return desc, nil
}

// resolvePassword finds the account password: environment first, then the
// system keyring, then an interactive prompt.
func (a *app) resolvePassword(desc config.ConnectionDescriptor) (string, error) {
	if pw := os.Getenv("MAILKEEP_PASSWORD"); pw != "" {
		return pw, nil
	}

	key := "imap:" + desc.Username + "@" + desc.Host
	if a.forgetPassword {
		if err := credential.Delete(key); err != nil {
			a.log.Warn().Err(err).Msg("could not remove stored password")
		}
	} else if pw, err := credential.Get(key); err == nil && pw != "" {
		a.log.Debug().Str("key", key).Msg("password found in keyring")
		return pw, nil
	}

	var pw string
	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title(fmt.Sprintf("IMAP password for %s@%s", desc.Username, desc.Host)).
			EchoMode(huh.EchoModePassword).
			Value(&pw),
	))
	if err := form.Run(); err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}

	if a.savePassword {
		if err := credential.Set(key, pw); err != nil {
			a.log.Warn().Err(err).Msg("could not store password in keyring")
		} else {
			a.log.Info().Str("key", key).Msg("password stored in keyring")
		}
	}
	return pw, nil
}

// openJournal opens the run journal. Journal trouble never blocks mail
// housekeeping: it degrades to a warning and the run proceeds unrecorded.
func (a *app) openJournal() *journal.Journal {
	j, err := journal.Open(a.cfg.JournalPath)
	if err != nil {
		a.log.Warn().Err(err).Msg("run journal unavailable")
		return nil
	}
	return j
}

// runLog records one run and its actions, tolerating a missing journal.
type runLog struct {
	j     *journal.Journal
	log   zerolog.Logger
	runID string
}

func (a *app) beginRun(j *journal.Journal, command string, desc config.ConnectionDescriptor, root string) *runLog {
	rl := &runLog{j: j, log: a.log}
	if j == nil {
		return rl
	}
	id, err := j.BeginRun(context.Background(), command, desc.Host, desc.Username, root, a.dryRun)
	if err != nil {
		a.log.Warn().Err(err).Msg("could not record run")
		rl.j = nil
		return rl
	}
	rl.runID = id
	return rl
}

func (rl *runLog) action(act journal.Action) {
	if rl.j == nil {
		return
	}
	if err := rl.j.RecordAction(context.Background(), rl.runID, act); err != nil {
		rl.log.Warn().Err(err).Msg("could not record action")
	}
}

func (rl *runLog) finish(runErr error) {
	if rl.j == nil {
		return
	}
	outcome := "ok"
	if runErr != nil {
		outcome = "error: " + runErr.Error()
	}
	if err := rl.j.FinishRun(context.Background(), rl.runID, outcome); err != nil {
		rl.log.Warn().Err(err).Msg("could not finish run record")
	}
}

func (a *app) runScan(args []string) error {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	listOnly := fs.Bool("l", false, "list mailbox names only")
	fs.BoolVar(listOnly, "list-boxes-only", false, "list mailbox names only")
	root := fs.String("m", "", "top mailbox to start scanning from")
	fs.StringVar(root, "mailbox", "", "top mailbox to start scanning from")
	if err := fs.Parse(args); err != nil {
		return err
	}

	desc, err := a.resolveConnect(fs.Arg(0))
	if err != nil {
		return err
	}
	sess, err := session.Connect(desc, a.log)
	if err != nil {
		return err
	}
	defer sess.Logout()

	j := a.openJournal()
	if j != nil {
		defer j.Close()
	}
	rl := a.beginRun(j, "scan", desc, *root)

	err = a.scan(sess, *root, *listOnly)
	rl.finish(err)
	return err
}

func (a *app) scan(sess *session.Session, root string, listOnly bool) error {
	nodes, err := mailbox.NewCatalog(sess).Subtree(root)
	if err != nil {
		return err
	}

	if listOnly {
		names := make([]string, 0, len(nodes))
		for _, node := range nodes {
			names = append(names, node.DisplayName)
		}
		a.render.MailboxList(names)
		return nil
	}

	inspector := mailbox.NewInspector(sess, a.log)
	rows := make([]render.ScanRow, 0, len(nodes))
	for _, node := range nodes {
		h, err := sess.Select(node.DisplayName)
		if err != nil {
			return err
		}
		res, err := inspector.Inspect(h)
		if err != nil {
			return err
		}
		rows = append(rows, render.ScanRow{
			Mailbox: node.DisplayName,
			All:     len(res.All),
			Seen:    len(res.Seen),
			Deleted: len(res.Deleted),
			Skipped: len(res.Skips),
		})
	}
	a.render.ScanTable(rows)
	return nil
}

func (a *app) runMove(args []string) error {
	fs := flag.NewFlagSet("move", flag.ExitOnError)
	year := fs.Int("year", 0, "archive mails sent before this year (default: last year)")
	omit := fs.String("omit-mailbox", "", "comma-separated mailboxes to leave untouched")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 2 {
		return &config.ConfigError{
			Field:   "arguments",
			Message: "usage: move [flags] CONNECT MAILBOX-FROM [MAILBOX-TO]",
		}
	}

	sourceRoot := fs.Arg(1)
	targetRoot := fs.Arg(2)
	if targetRoot == "" {
		targetRoot = a.cfg.ArchiveRoot
	}

	cutoff := *year
	if cutoff == 0 {
		cutoff = a.cfg.CutoffYear
	}
	if cutoff == 0 {
		cutoff = time.Now().Year() - 1
	}

	omitList := append([]string(nil), a.cfg.Omit...)
	if *omit != "" {
		for _, name := range strings.Split(*omit, ",") {
			omitList = append(omitList, strings.TrimSpace(name))
		}
	}

	desc, err := a.resolveConnect(fs.Arg(0))
	if err != nil {
		return err
	}
	sess, err := session.Connect(desc, a.log)
	if err != nil {
		return err
	}
	defer sess.Logout()

	j := a.openJournal()
	if j != nil {
		defer j.Close()
	}
	rl := a.beginRun(j, "move", desc, sourceRoot)

	records, err := mailbox.NewMover(sess, a.log).
		Archive(sourceRoot, targetRoot, cutoff, omitList, a.dryRun)
	for _, rec := range records {
		rl.action(journal.Action{
			Action:   "move",
			Mailbox:  rec.Mailbox,
			Target:   rec.Target,
			Year:     rec.Year,
			Count:    rec.Moved,
			Executed: rec.Executed,
		})
	}
	a.render.MoveSummary(records)
	rl.finish(err)
	return err
}

func (a *app) runClean(args []string) error {
	fs := flag.NewFlagSet("clean", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 2 {
		return &config.ConfigError{
			Field:   "arguments",
			Message: "usage: clean CONNECT MAILBOX",
		}
	}
	root := fs.Arg(1)

	desc, err := a.resolveConnect(fs.Arg(0))
	if err != nil {
		return err
	}
	sess, err := session.Connect(desc, a.log)
	if err != nil {
		return err
	}
	defer sess.Logout()

	j := a.openJournal()
	if j != nil {
		defer j.Close()
	}
	rl := a.beginRun(j, "clean", desc, root)

	records, err := mailbox.NewPruner(sess, a.log).Clean(root, a.dryRun)
	for _, rec := range records {
		rl.action(journal.Action{
			Action:   "delete",
			Mailbox:  rec.Mailbox,
			Executed: rec.Executed,
		})
	}
	a.render.CleanSummary(records)
	rl.finish(err)
	return err
}

func (a *app) runDownload(args []string) error {
	fs := flag.NewFlagSet("download", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 3 {
		return &config.ConfigError{
			Field:   "arguments",
			Message: "usage: download CONNECT MAILBOX FOLDER",
		}
	}
	root, dest := fs.Arg(1), fs.Arg(2)

	desc, err := a.resolveConnect(fs.Arg(0))
	if err != nil {
		return err
	}
	sess, err := session.Connect(desc, a.log)
	if err != nil {
		return err
	}
	defer sess.Logout()

	var exporter mailbox.Exporter
	if a.cfg.S3.Enabled {
		mirror, err := export.NewS3Mirror(context.Background(), a.cfg.S3, a.log)
		if err != nil {
			return err
		}
		exporter = mirror
		a.log.Info().Str("bucket", a.cfg.S3.Bucket).Msg("mirroring downloads to object storage")
	}

	j := a.openJournal()
	if j != nil {
		defer j.Close()
	}
	rl := a.beginRun(j, "download", desc, root)

	records, err := mailbox.NewDownloader(sess, exporter, a.log).Download(root, dest)
	for _, rec := range records {
		rl.action(journal.Action{
			Action:   "download",
			Mailbox:  rec.Mailbox,
			Target:   rec.Dir,
			Count:    rec.Count,
			Executed: true,
		})
	}
	a.render.DownloadSummary(records)
	rl.finish(err)
	return err
}

func (a *app) runHistory(args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	limit := fs.Int("n", 20, "number of runs to show")
	if err := fs.Parse(args); err != nil {
		return err
	}

	j, err := journal.Open(a.cfg.JournalPath)
	if err != nil {
		return err
	}
	defer j.Close()

	if fs.NArg() > 0 {
		actions, err := j.RunActions(context.Background(), fs.Arg(0))
		if err != nil {
			return err
		}
		a.render.RunDetail(actions)
		return nil
	}

	runs, err := j.RecentRuns(context.Background(), *limit)
	if err != nil {
		return err
	}
	a.render.HistoryTable(runs)
	return nil
}
