package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"variazioni/internal/commands"
	"variazioni/internal/config"
	"variazioni/internal/ics"
	"variazioni/internal/identity"
	appLog "variazioni/internal/log"
	"variazioni/internal/model"
	"variazioni/internal/notify"
	"variazioni/internal/prefs"
	"variazioni/internal/render"
	"variazioni/internal/source"
	"variazioni/internal/web"
)

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	listen     string
	once       bool
	date       string
	mode       string
	value      string
	debug      bool
}

func main() {
	// Subcommands before flag parsing, winterberg-style.
	if len(os.Args) > 1 && os.Args[1] == "hash-password" {
		commands.HashPassword(os.Args[2:])
		return
	}

	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.debug {
		appLog.SetLevel(appLog.LevelDebug)
	} else {
		appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
	}

	appLog.Info("variazioni starting",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"backend", conf.Backend.URL != "",
		"ics_count", len(conf.ICS),
		"refresh", conf.RefreshCron,
		"digest", conf.DigestCron,
		"once", flags.once,
	)

	loc := resolveLocationOrLocal(conf.Timezone)

	dataDir := conf.DataDir
	if flags.debug {
		dataDir = "./cache"
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		appLog.Error("failed to create data dir", err, "data_dir", dataDir)
		os.Exit(1)
	}

	sources := buildSources(conf, dataDir, loc)
	if len(sources) == 0 {
		appLog.Error("no variation sources configured", errors.New("set backend.url or at least one ics source"))
		os.Exit(1)
	}

	if flags.once {
		if err := runOnce(sources, flags, loc); err != nil {
			appLog.Error("one-shot run failed", err)
			os.Exit(1)
		}
		return
	}

	store, err := prefs.Open(filepath.Join(dataDir, "prefs.db"))
	if err != nil {
		appLog.Error("failed to open preference store", err, "data_dir", dataDir)
		os.Exit(1)
	}
	defer store.Close()

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

	server := web.NewServer(conf, store, sources, loc)
	httpSrv := &http.Server{
		Addr:    conf.Listen,
		Handler: server.Handler(),
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(conf.RefreshCron, func() {
		refreshPreview(ctx, conf, dataDir, loc)
	}); err != nil {
		appLog.Error("invalid refresh cron expression", err, "refresh", conf.RefreshCron)
		os.Exit(1)
	}
	if _, err := scheduler.AddFunc(conf.DigestCron, func() {
		deliverDigests(ctx, conf, store, sources, loc)
	}); err != nil {
		appLog.Error("invalid digest cron expression", err, "digest", conf.DigestCron)
		os.Exit(1)
	}
	scheduler.Start()

	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+conf.Listen)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Error("HTTP server failed", err)
			cancel()
		}
	}()

	<-ctx.Done()

	cronCtx := scheduler.Stop()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("HTTP shutdown failed", err)
	}
	// Let an in-flight cron job finish within the shutdown budget.
	select {
	case <-cronCtx.Done():
	case <-shutdownCtx.Done():
	}

	appLog.Info("variazioni exiting")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/variazioni/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run one fetch+filter cycle, print the result and exit")
	flag.StringVar(&cfg.date, "date", "", "Target day for -once (YYYY-MM-DD, default today)")
	flag.StringVar(&cfg.mode, "mode", "all", "Query mode for -once: all, section or professor")
	flag.StringVar(&cfg.value, "value", "", "Class code or professor name for -once")
	flag.BoolVar(&cfg.debug, "debug", false, "Debug logging and relative cache/data paths")

	flag.Parse()
	return cfg
}

// buildSources assembles the configured day sources: the JSON backend plus
// any ICS feeds.
func buildSources(conf *config.Config, dataDir string, loc *time.Location) []web.DaySource {
	sources := make([]web.DaySource, 0, 1+len(conf.ICS))

	if conf.Backend.URL != "" {
		sources = append(sources, source.NewClient(conf.Backend.URL, filepath.Join(dataDir, "backend-cache")))
	}
	for _, feed := range conf.ICS {
		if feed.URL == "" {
			continue
		}
		id := feed.ID
		if id == "" {
			if feed.Name != "" {
				id = feed.Name
			} else {
				id = feed.URL
			}
		}
		sources = append(sources, ics.FeedSource{ID: id, URL: feed.URL, Loc: loc})
	}
	return sources
}

// runOnce performs a single fetch+filter cycle and prints the result to
// stdout, one line per variation.
func runOnce(sources []web.DaySource, flags flagConfig, loc *time.Location) error {
	date := flags.date
	if date == "" {
		date = time.Now().In(loc).Format("2006-01-02")
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return fmt.Errorf("invalid -date %q: %w", flags.date, err)
	}
	if !identity.ValidMode(flags.mode) {
		return fmt.Errorf("invalid -mode %q", flags.mode)
	}
	if flags.mode != string(identity.ModeAll) && strings.TrimSpace(flags.value) == "" {
		return errors.New("-value is required for section/professor mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	events, err := fetchAll(ctx, sources, date)
	if err != nil {
		return err
	}
	selected := identity.SelectAndSort(events, identity.Query{
		Mode:       identity.Mode(flags.mode),
		Value:      flags.value,
		TargetDate: date,
	})

	fmt.Printf("Variazioni %s (%d)\n", date, len(selected))
	for _, ev := range selected {
		prefix := "tutto il giorno"
		if ev.Start.Kind == model.StampTimed {
			prefix = ev.Start.At.Format("15:04")
		}
		fmt.Printf("  %s  %s\n", prefix, ev.Summary)
	}
	return nil
}

// fetchAll merges events from every source, tolerating partial failures.
func fetchAll(ctx context.Context, sources []web.DaySource, date string) ([]model.Event, error) {
	merged := make([]model.Event, 0)
	failed := 0
	var lastErr error
	for _, src := range sources {
		events, err := src.FetchDay(ctx, date)
		if err != nil {
			failed++
			lastErr = err
			appLog.Error("variation source failed", err, "date", date)
			continue
		}
		merged = append(merged, events...)
	}
	if failed == len(sources) && len(sources) > 0 {
		return nil, lastErr
	}
	return merged, nil
}

// refreshPreview captures the current day sheet into the data dir so
// /preview.png serves a fresh image.
func refreshPreview(ctx context.Context, conf *config.Config, dataDir string, loc *time.Location) {
	day := time.Now().In(loc).Format("2006-01-02")
	opts := render.CaptureOptions{
		URL:        "http://" + conf.Listen + "/sheet?date=" + day,
		OutputPath: filepath.Join(dataDir, "preview.png"),
	}
	if err := render.CaptureSheetPNG(ctx, opts); err != nil {
		appLog.Error("preview capture failed", err, "day", day)
		return
	}
	appLog.Info("preview captured", "day", day, "path", opts.OutputPath)
}

// deliverDigests fetches the day's events once and fans them out to every
// digest subscription.
func deliverDigests(ctx context.Context, conf *config.Config, store *prefs.Store, sources []web.DaySource, loc *time.Location) {
	jobCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	day := time.Now().In(loc).Format("2006-01-02")

	subs, err := store.ListSubscriptions(jobCtx)
	if err != nil {
		appLog.Error("digest: failed to list subscriptions", err)
		return
	}
	if len(subs) == 0 {
		appLog.Debug("digest: no subscriptions")
		return
	}

	events, err := fetchAll(jobCtx, sources, day)
	if err != nil {
		appLog.Error("digest: all sources failed", err, "day", day)
		return
	}

	sent, errs := notify.NewDeliverer(conf.DigestSendEmpty).DeliverAll(jobCtx, subs, events, day)
	appLog.Info("digest run completed", "day", day, "subscriptions", len(subs), "sent", sent, "failed", len(errs))
}

func resolveLocationOrLocal(name string) *time.Location {
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", name)
		return time.Local
	}
	return loc
}
