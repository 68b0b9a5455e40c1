package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"orarsync/internal/bot"
	"orarsync/internal/caldav"
	"orarsync/internal/config"
	"orarsync/internal/ics"
	appLog "orarsync/internal/log"
	"orarsync/internal/model"
	"orarsync/internal/monitor"
	"orarsync/internal/notify"
	"orarsync/internal/portal"
	"orarsync/internal/recon"
	"orarsync/internal/schedule"
	"orarsync/internal/snapshot"
	"orarsync/internal/timetable"
)

// cliFlags holds flag values shared across subcommands.
type cliFlags struct {
	configPath  string
	group       string
	weeks       string
	startWeek   int
	endWeek     int
	noOverwrite bool
	prune       bool
	debug       bool
	out         string
}

const usageText = `usage: orarsync <command> [flags]

commands:
  sync      fetch the schedule and reconcile it onto the CalDAV calendar
  check     fetch the schedule and diff it against the stored snapshot
  bot       run the Telegram bot with periodic monitoring
  export    fetch the schedule and write it to an .ics file

flags:
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usageText)
		flag.CommandLine.PrintDefaults()
		os.Exit(2)
	}
	command := os.Args[1]
	flags := parseFlags(os.Args[2:])

	appLog.SetDebug(flags.debug)
	defer appLog.Sync()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	conf.ApplyEnv()
	if flags.group != "" {
		conf.Group = flags.group
	}

	epoch, err := conf.Epoch()
	if err != nil {
		appLog.Error("invalid semester configuration", err)
		os.Exit(1)
	}

	appLog.Info("orarsync starting",
		"command", command,
		"group", conf.Group,
		"semester_start", conf.SemesterStart,
		"timezone", conf.Timezone,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	app := &app{conf: conf, epoch: epoch, flags: flags}

	switch command {
	case "sync":
		err = app.runSync(ctx)
	case "check":
		err = app.runCheck(ctx)
	case "bot":
		err = app.runBot(ctx)
	case "export":
		err = app.runExport(ctx)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", command)
		fmt.Fprint(os.Stderr, usageText)
		os.Exit(2)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		appLog.Error("run failed", err, "command", command)
		os.Exit(1)
	}
	appLog.Info("orarsync exiting")
}

func parseFlags(args []string) cliFlags {
	var f cliFlags

	flag.StringVar(&f.configPath, "config", "orarsync.yaml", "Path to config file")
	flag.StringVar(&f.group, "group", "", "Group name (overrides config if set)")
	flag.StringVar(&f.weeks, "weeks", "", "Comma-separated list of weeks (e.g. 1,2,3)")
	flag.IntVar(&f.startWeek, "start-week", 0, "First week to process (inclusive)")
	flag.IntVar(&f.endWeek, "end-week", 0, "Last week to process (inclusive)")
	flag.BoolVar(&f.noOverwrite, "no-overwrite", false, "Leave existing calendar events untouched")
	flag.BoolVar(&f.prune, "prune", false, "After sync, delete orphaned events in the synced range")
	flag.BoolVar(&f.debug, "debug", false, "Enable debug output")
	flag.StringVar(&f.out, "out", "", "Output path for export (defaults to <group>.ics)")

	flag.CommandLine.Parse(args)
	return f
}

type app struct {
	conf  *config.Config
	epoch time.Time
	flags cliFlags
}

// resolveWeeks builds the requested week set: an explicit -weeks list
// wins, then a -start-week/-end-week range, then the rolling window of
// the current week plus the configured number of following ones.
func (a *app) resolveWeeks() ([]int, error) {
	if a.flags.weeks != "" {
		var weeks []int
		for _, part := range strings.Split(a.flags.weeks, ",") {
			w, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil || w < 1 {
				return nil, fmt.Errorf("bad week %q in -weeks", part)
			}
			weeks = append(weeks, w)
		}
		sort.Ints(weeks)
		return weeks, nil
	}

	if a.flags.startWeek != 0 || a.flags.endWeek != 0 {
		if a.flags.startWeek < 1 || a.flags.endWeek < a.flags.startWeek {
			return nil, fmt.Errorf("bad week range %d..%d", a.flags.startWeek, a.flags.endWeek)
		}
		var weeks []int
		for w := a.flags.startWeek; w <= a.flags.endWeek; w++ {
			weeks = append(weeks, w)
		}
		return weeks, nil
	}

	current := timetable.WeekForDate(a.epoch, time.Now())
	if current < 1 {
		current = 1
	}
	if current > monitor.DefaultMaxWeek {
		current = monitor.DefaultMaxWeek
	}
	var weeks []int
	for w := current; w <= current+a.conf.MonitorWeeks && w <= monitor.DefaultMaxWeek; w++ {
		weeks = append(weeks, w)
	}
	return weeks, nil
}

// fetchSchedule fetches and normalizes the given weeks.
func (a *app) fetchSchedule(ctx context.Context, weeks []int) (*model.Schedule, int, error) {
	client := portal.NewClient(a.conf.PortalURL, a.conf.Semester)
	raw, err := client.FetchWeeks(ctx, a.conf.Group, weeks)
	if err != nil {
		return nil, 0, err
	}
	norm := schedule.Normalizer{Epoch: a.epoch}
	sched, dropped := norm.Normalize(raw, a.conf.Group, weeks)
	return sched, dropped, nil
}

func (a *app) runSync(ctx context.Context) error {
	weeks, err := a.resolveWeeks()
	if err != nil {
		return err
	}
	appLog.Info("syncing weeks", "group", a.conf.Group, "weeks", fmt.Sprint(weeks))

	sched, dropped, err := a.fetchSchedule(ctx, weeks)
	if err != nil {
		return err
	}

	cal, err := caldav.Connect(ctx, caldav.Config{
		URL:      a.conf.CalDAV.URL,
		Username: a.conf.CalDAV.Username,
		Password: a.conf.CalDAV.Password,
		Calendar: a.conf.CalDAV.Calendar,
	})
	if err != nil {
		return err
	}

	report := recon.Reconcile(ctx, sched, cal, !a.flags.noOverwrite)
	report.Dropped = dropped
	fmt.Println(notify.FormatReport(report))

	if a.flags.prune {
		from := timetable.DateFor(a.epoch, weeks[0], 1)
		to := timetable.DateFor(a.epoch, weeks[len(weeks)-1], timetable.MaxWeekday).AddDate(0, 0, 1)
		pruneReport, err := recon.PruneOrphans(ctx, sched, cal, from, to)
		if err != nil {
			return err
		}
		fmt.Printf("Prune complete: deleted=%d kept=%d failed=%d\n",
			pruneReport.Deleted, pruneReport.Kept, pruneReport.Failed)
	}

	// Record the synced schedule as the monitoring baseline.
	store, err := snapshot.Open(a.conf.SnapshotDB)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.Save(ctx, sched, time.Now())
}

func (a *app) runCheck(ctx context.Context) error {
	store, err := snapshot.Open(a.conf.SnapshotDB)
	if err != nil {
		return err
	}
	defer store.Close()

	mon := monitor.New(monitor.Config{
		Group:  a.conf.Group,
		Window: a.conf.MonitorWeeks,
		Epoch:  a.epoch,
	}, portal.NewClient(a.conf.PortalURL, a.conf.Semester), store, a.optionalSender(), nil)

	diff, err := mon.Check(ctx)
	if err != nil {
		return err
	}
	fmt.Println(notify.FormatDiff(diff))
	return nil
}

func (a *app) runBot(ctx context.Context) error {
	if a.conf.Telegram.Token == "" {
		return errors.New("TELEGRAM_BOT_TOKEN is not set")
	}
	tg, err := notify.NewTelegram(a.conf.Telegram.Token, a.conf.Telegram.ChatID)
	if err != nil {
		return err
	}

	store, err := snapshot.Open(a.conf.SnapshotDB)
	if err != nil {
		return err
	}
	defer store.Close()

	syncSched := func(ctx context.Context, sched *model.Schedule) (*model.ReconcileReport, error) {
		cal, err := caldav.Connect(ctx, caldav.Config{
			URL:      a.conf.CalDAV.URL,
			Username: a.conf.CalDAV.Username,
			Password: a.conf.CalDAV.Password,
			Calendar: a.conf.CalDAV.Calendar,
		})
		if err != nil {
			return nil, err
		}
		return recon.Reconcile(ctx, sched, cal, true), nil
	}

	mon := monitor.New(monitor.Config{
		Group:    a.conf.Group,
		Window:   a.conf.MonitorWeeks,
		Epoch:    a.epoch,
		AutoSync: a.conf.AutoSync,
	}, portal.NewClient(a.conf.PortalURL, a.conf.Semester), store, tg, syncSched)

	syncAll := func(ctx context.Context) (*model.ReconcileReport, error) {
		weeks := mon.Weeks(time.Now())
		sched, dropped, err := a.fetchSchedule(ctx, weeks)
		if err != nil {
			return nil, err
		}
		report, err := syncSched(ctx, sched)
		if err != nil {
			return nil, err
		}
		report.Dropped = dropped
		if err := store.Save(ctx, sched, time.Now()); err != nil {
			appLog.Error("snapshot save after sync failed", err)
		}
		return report, nil
	}

	// Periodic change checks run alongside the command loop.
	go func() {
		if err := mon.Run(ctx, a.conf.MonitorCron); err != nil && !errors.Is(err, context.Canceled) {
			appLog.Error("monitor loop stopped", err)
		}
	}()

	return bot.New(tg, mon, syncAll, a.conf.Group).Run(ctx)
}

func (a *app) runExport(ctx context.Context) error {
	weeks, err := a.resolveWeeks()
	if err != nil {
		return err
	}
	sched, _, err := a.fetchSchedule(ctx, weeks)
	if err != nil {
		return err
	}

	out := a.flags.out
	if out == "" {
		out = a.conf.Group + ".ics"
	}
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := ics.Write(f, sched); err != nil {
		return err
	}
	fmt.Printf("Exported %d events to %s\n", sched.Total(), out)
	return nil
}

// optionalSender returns a Telegram sender when credentials are present,
// nil otherwise. A check run without a bot configured just prints.
func (a *app) optionalSender() monitor.Sender {
	if a.conf.Telegram.Token == "" || a.conf.Telegram.ChatID == 0 {
		return nil
	}
	tg, err := notify.NewTelegram(a.conf.Telegram.Token, a.conf.Telegram.ChatID)
	if err != nil {
		appLog.Error("telegram disabled", err)
		return nil
	}
	return tg
}
