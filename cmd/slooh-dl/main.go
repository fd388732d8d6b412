package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/sloohtools/slooh-downloader/internal/batch"
	"github.com/sloohtools/slooh-downloader/internal/config"
	"github.com/sloohtools/slooh-downloader/internal/fetch"
	"github.com/sloohtools/slooh-downloader/internal/ledger"
	"github.com/sloohtools/slooh-downloader/internal/logging"
	"github.com/sloohtools/slooh-downloader/internal/model"
	"github.com/sloohtools/slooh-downloader/internal/organize"
	"github.com/sloohtools/slooh-downloader/internal/slooh"
	"go.uber.org/zap"
)

func main() {
	// Command line flags
	var (
		userFlag      = flag.String("user", "", "Slooh account email (overrides config)")
		passFlag      = flag.String("pass", "", "Slooh account password (overrides config)")
		configFlag    = flag.String("config", "", "Path to config file")
		outputFlag    = flag.String("output", "", "Base download directory (overrides config)")
		missionFlag   = flag.String("mission", "", "Download a single mission by id")
		maxFlag       = flag.Int("max", 0, "Maximum number of images to download (0 = unlimited)")
		maxScanFlag   = flag.Int("max-scan", 0, "Maximum photoroll entries to scan (0 = all)")
		startFlag     = flag.Int("start", 1, "Photoroll position to start from (1 = newest)")
		telescopeFlag = flag.String("telescope", "", "Filter by telescope name(s), comma-separated substrings")
		objectFlag    = flag.String("object", "", "Filter by object name (substring of title)")
		typeFlag      = flag.String("type", "", "Filter by image type(s), comma-separated (png, jpeg, FITS)")
		fromFlag      = flag.String("from", "", "Only images captured on or after this date (YYYY-MM-DD)")
		toFlag        = flag.String("to", "", "Only images captured on or before this date (YYYY-MM-DD)")
		workersFlag   = flag.Int("workers", 0, "Number of concurrent downloads (overrides config)")
		dryRunFlag    = flag.Bool("dry-run", false, "Scan and report without downloading")
		forceFlag     = flag.Bool("force", false, "Re-download images already in the ledger")
		verboseFlag   = flag.Bool("verbose", false, "Show verbose output")

		testFlag    = flag.Bool("test", false, "Test connectivity to the Slooh API and exit")
		statsFlag   = flag.Bool("stats", false, "Print ledger statistics and exit")
		verifyFlag  = flag.Bool("verify", false, "Verify tracked files exist on disk and exit")
		orphansFlag = flag.Bool("orphans", false, "List untracked image files under the base path and exit")
		pruneFlag   = flag.Bool("prune", false, "Remove ledger entries whose files are missing and exit")
		trimFlag    = flag.Int("trim-sessions", 0, "Trim session history to the last N entries and exit")
	)

	flag.Parse()

	settings := config.DefaultSettings()
	if *configFlag != "" {
		var err error
		settings, err = config.Load(*configFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
	}

	// Apply flags
	if *userFlag != "" {
		settings.Username = *userFlag
	}
	if *passFlag != "" {
		settings.Password = *passFlag
	}
	if *outputFlag != "" {
		settings.BasePath = *outputFlag
	}
	if *workersFlag > 0 {
		settings.WorkerCount = *workersFlag
	}
	if *verboseFlag {
		settings.LogLevel = "debug"
	}

	if err := settings.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, closeLog, err := logging.New(settings.LogLevel, settings.LogFolder)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error setting up logging: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	// Handle interrupts
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Maintenance modes work on local state and need no login.
	if *statsFlag || *verifyFlag || *orphansFlag || *pruneFlag || *trimFlag > 0 {
		if err := runMaintenance(settings, log, *statsFlag, *verifyFlag, *orphansFlag, *pruneFlag, *trimFlag); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	client := slooh.NewClient(settings.BaseURL, settings.Timeout(), log)

	if *testFlag {
		if err := client.TestConnection(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "❌ Connection failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("✅ Slooh API reachable")
		return
	}

	if !settings.HasCredentials() {
		fmt.Println("Slooh Downloader - Batch download your Slooh images")
		fmt.Println()
		fmt.Println("Usage:")
		fmt.Println("  slooh-dl -user <email> -pass <password> [options]")
		fmt.Println()
		fmt.Println("For interactive mode, use: slooh-tui")
		fmt.Println()
		flag.PrintDefaults()
		os.Exit(1)
	}

	filters, err := buildFilters(*telescopeFlag, *objectFlag, *typeFlag, *fromFlag, *toFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid filter: %v\n", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	fmt.Println("🔭 Slooh Downloader")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	if err := client.Login(ctx, settings.Username, settings.Password); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Login failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✅ Logged in as %s\n\n", settings.Username)

	lgr := ledger.New(settings.LedgerFile, log)
	if err := lgr.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading ledger: %v\n", err)
		os.Exit(1)
	}

	resolver := organize.NewResolver(settings.BasePath, settings.FolderTemplate, settings.FilenameTemplate, settings.UnknownObject, log)

	httpClient := client.HTTP()
	newEngine := func(cb fetch.Callbacks) batch.Downloader {
		return fetch.NewEngine(httpClient, fetch.Config{
			WorkerCount:        settings.WorkerCount,
			MaxRetries:         settings.MaxRetries,
			RetryDelay:         settings.RetryDelay(),
			RateLimitPerMinute: settings.RateLimitPerMin,
			VerifyHash:         settings.VerifyHash,
		}, cb, log)
	}

	orch := batch.New(client, lgr, resolver, newEngine, settings, batch.Callbacks{
		OnProgress: func(p model.Progress) {
			fmt.Printf("\r📥 Batch #%d: %d/%d done, %d failed, %d active   ",
				p.BatchNumber, p.Completed, p.Total, p.Failed, p.Active)
		},
		OnTaskComplete: func(t *model.Task) {
			if *verboseFlag {
				fmt.Printf("\n  ✓ %s\n", filepath.Base(t.Destination))
			}
		},
		OnTaskError: func(t *model.Task) {
			fmt.Printf("\n  ✗ %s: %v\n", filepath.Base(t.Destination), t.Err)
		},
	}, log)

	go func() {
		<-sigCh
		fmt.Println("\nInterrupted, cancelling...")
		orch.Cancel()
		cancel()
	}()

	stats, err := orch.Run(ctx, batch.Options{
		MissionID: *missionFlag,
		MaxTotal:  *maxFlag,
		MaxScan:   *maxScanFlag,
		StartAt:   *startFlag,
		Filters:   filters,
		DryRun:    *dryRunFlag,
		Force:     *forceFlag,
	})
	fmt.Println()
	if err != nil {
		if ctx.Err() != nil {
			fmt.Println("\nDownload cancelled.")
			os.Exit(130)
		}
		fmt.Fprintf(os.Stderr, "Error during download: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	if stats.DryRun {
		fmt.Printf("✨ Dry run complete: %d image(s) would be downloaded (scanned %d)\n", stats.Queued, stats.Scanned)
		return
	}
	fmt.Printf("✨ Complete! Downloaded %d/%d files (%.2f MB)\n",
		stats.Downloaded, stats.Queued, float64(stats.TotalBytes)/1024/1024)
	if stats.AlreadyTracked > 0 {
		fmt.Printf("   %d already tracked, %d failed\n", stats.AlreadyTracked, stats.Failed)
	} else if stats.Failed > 0 {
		fmt.Printf("   %d failed\n", stats.Failed)
	}
}

// buildFilters assembles the candidate predicates from CLI flags. End
// dates are pushed to the last second of the day so the whole day is
// included.
func buildFilters(telescopes, object, types, from, to string) (model.FilterSet, error) {
	var filters model.FilterSet

	filters.Telescopes = splitList(telescopes)
	filters.Object = object
	filters.Types = splitList(types)

	if from != "" {
		start, err := time.Parse("2006-01-02", from)
		if err != nil {
			return filters, fmt.Errorf("parsing -from date %q: %w", from, err)
		}
		filters.Start = start
	}
	if to != "" {
		end, err := time.Parse("2006-01-02", to)
		if err != nil {
			return filters, fmt.Errorf("parsing -to date %q: %w", to, err)
		}
		filters.End = end.Add(24*time.Hour - time.Second)
	}

	return filters, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func runMaintenance(settings *config.Settings, log *zap.SugaredLogger, stats, verify, orphans, prune bool, trim int) error {
	lgr := ledger.New(settings.LedgerFile, log)
	if err := lgr.Load(); err != nil {
		return err
	}

	if stats {
		printStats(lgr)
	}

	if verify {
		res := lgr.Verify()
		fmt.Printf("Verified %d tracked files: %d valid, %d missing, %d without a path\n",
			res.Total, res.Valid, res.Missing, res.Errors)
		for _, rec := range res.MissingFiles {
			fmt.Printf("  missing: %s (%s)\n", rec.FilePath, rec.ObjectName)
		}
	}

	if orphans {
		found, err := lgr.FindOrphans(settings.BasePath)
		if err != nil {
			return err
		}
		fmt.Printf("Found %d untracked image file(s) under %s\n", len(found), settings.BasePath)
		for _, path := range found {
			fmt.Printf("  %s\n", path)
		}
	}

	if prune {
		removed, err := lgr.PruneMissing()
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d ledger entries for missing files\n", removed)
	}

	if trim > 0 {
		if err := lgr.TrimSessions(trim); err != nil {
			return err
		}
		fmt.Printf("Session history trimmed to the last %d entries\n", trim)
	}

	return nil
}

func printStats(lgr *ledger.Ledger) {
	s := lgr.Statistics()
	fmt.Println("📊 Ledger statistics")
	fmt.Printf("  Images:   %d\n", s.TotalImages)
	fmt.Printf("  Sessions: %d\n", s.TotalSessions)
	fmt.Printf("  Size:     %.2f MB\n", float64(s.TotalBytes)/1024/1024)

	printBreakdown := func(label string, m map[string]int) {
		if len(m) == 0 {
			return
		}
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Printf("  %s:\n", label)
		for _, k := range keys {
			fmt.Printf("    %-24s %d\n", k, m[k])
		}
	}
	printBreakdown("By type", s.ByType)
	printBreakdown("By telescope", s.ByTelescope)
	printBreakdown("By object", s.ByObject)

	if last := lgr.LastDownloadDate(); !last.IsZero() {
		fmt.Printf("  Last download: %s\n", last.Format(time.RFC3339))
	}
}
