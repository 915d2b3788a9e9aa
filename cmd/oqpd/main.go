package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/lucaslellis/oracle-quarter-patch-downloader/internal/catalog"
	"github.com/lucaslellis/oracle-quarter-patch-downloader/internal/config"
	"github.com/lucaslellis/oracle-quarter-patch-downloader/internal/fetch"
	"github.com/lucaslellis/oracle-quarter-patch-downloader/internal/filter"
	oqpdhttp "github.com/lucaslellis/oracle-quarter-patch-downloader/internal/http"
	"github.com/lucaslellis/oracle-quarter-patch-downloader/internal/layout"
	"github.com/lucaslellis/oracle-quarter-patch-downloader/internal/logging"
	"github.com/lucaslellis/oracle-quarter-patch-downloader/internal/plan"
	"github.com/lucaslellis/oracle-quarter-patch-downloader/internal/progress"
	"github.com/lucaslellis/oracle-quarter-patch-downloader/internal/session"
)

// Exit codes
const (
	ExitSuccess         = 0
	ExitGeneralError    = 1
	ExitInvalidArgs     = 2
	ExitAuthError       = 3
	ExitCatalogError    = 4
	ExitDownloadsFailed = 5
)

// Patch numbers for the two non-quarterly tools that ship with every run.
const (
	opatchPatchNumber = "6880880"
	ahfPatchNumber    = "30166242"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("oqpd", flag.ContinueOnError)

	configPath := fs.String("c", "config.yaml", "Path to the YAML configuration file")
	username := fs.String("u", "", "Oracle Support username (overrides config)")
	promptPassword := fs.Bool("p", false, "Prompt for the Oracle Support password")
	patchList := fs.String("f", "", "CSV patch list file (patch,cpu,description,group,platform)")
	listPlatforms := fs.Bool("l", false, "List catalog platforms and exit")
	refreshCatalog := fs.Bool("r", false, "Discard the cached catalog bundle and fetch it again")
	dryRun := fs.Bool("dry-run", false, "Resolve and estimate only; download nothing")
	debug := fs.Bool("debug", false, "Enable debug logging")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: oqpd [options]

Download the quarterly recommended Oracle patches (plus OPatch and AHF)
for the configured platforms, or the patches named in a CSV list (-f).

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(os.Stderr, "Error: unexpected argument: %s\n", fs.Arg(0))
		fs.Usage()
		return ExitInvalidArgs
	}

	logging.Init(*debug)

	cfg, err := loadConfig(*configPath, *username, *promptPassword)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitGeneralError
	}

	switch {
	case *listPlatforms:
		// Listing needs a session and the catalog bundle, nothing more.
		if cfg.Credentials.Username == "" {
			fmt.Fprintln(os.Stderr, "Error: config: credentials.username is required")
			return ExitGeneralError
		}
	case *patchList != "":
		// Patch-list mode does not use the filter configuration.
		if cfg.Credentials.Username == "" {
			fmt.Fprintln(os.Stderr, "Error: config: credentials.username is required")
			return ExitGeneralError
		}
		if cfg.DownloadRoot == "" && !*dryRun {
			fmt.Fprintln(os.Stderr, "Error: config: download_root is required")
			return ExitGeneralError
		}
	default:
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return ExitGeneralError
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\n[oqpd] Received interrupt, shutting down...")
		cancel()
	}()

	sess, err := session.New(session.Options{
		BaseURL:  cfg.BaseURL,
		Username: cfg.Credentials.Username,
		Password: cfg.Credentials.Password,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitGeneralError
	}

	if err := sess.Logon(ctx); err != nil {
		if errors.Is(err, session.ErrAuth) {
			fmt.Fprintln(os.Stderr, "Error: Oracle Support rejected the credentials")
			return ExitAuthError
		}
		fmt.Fprintf(os.Stderr, "Error: not able to connect to %s: %v\n", cfg.BaseURL, err)
		return ExitCatalogError
	}

	httpClient := oqpdhttp.NewClient(sess, oqpdhttp.Options{
		RetryAttempts:   cfg.Retry.Attempts,
		RetryBackoff:    cfg.Retry.Backoff,
		RetryMaxBackoff: cfg.Retry.MaxBackoff,
	})

	cat := catalog.New(httpClient, cfg.BaseURL, cacheDir(cfg))
	if err := cat.EnsureBundle(ctx, *refreshCatalog); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitCatalogError
	}
	platforms, err := cat.ListPlatforms()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitCatalogError
	}

	if *listPlatforms {
		printPlatforms(platforms)
		return ExitSuccess
	}

	var records []catalog.PatchRecord
	if *patchList != "" {
		records, err = recordsFromPatchList(ctx, cat, platforms, *patchList)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return ExitGeneralError
		}
	} else {
		records, err = recommendedRecords(ctx, cfg, cat, platforms)
		if err != nil {
			if errors.Is(err, errBadFilter) {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				return ExitGeneralError
			}
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return ExitCatalogError
		}
	}

	p := plan.Build(records, layout.PathFor)
	if len(p.Tasks) == 0 {
		fmt.Println("[oqpd] Nothing to download")
		return ExitSuccess
	}

	if *dryRun {
		fmt.Printf("[oqpd] Dry run: %d file(s), estimated %s\n",
			len(p.Tasks), progress.FormatBytes(p.TotalBytes))
		printTotal(p.TotalBytes)
		return ExitSuccess
	}

	bkt, err := openBucket(ctx, cfg.DownloadRoot)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitGeneralError
	}
	defer bkt.Close()

	rep := progress.NewReporter(progress.Options{
		TotalBytes: p.TotalBytes,
		TotalTasks: len(p.Tasks),
		Workers:    cfg.MaxConcurrency,
	})
	rep.Start()

	runner := &plan.Runner{
		Workers: cfg.MaxConcurrency,
		Executor: &fetch.Fetcher{
			Client:   httpClient,
			Bucket:   bkt,
			Reporter: rep,
		},
		Recorder: layout.NewWriter(bkt),
	}
	sum := runner.Run(ctx, p)
	rep.Stop()

	if sum.Failed > 0 {
		fmt.Fprintf(os.Stderr, "[oqpd] %d file(s) failed:\n", sum.Failed)
		for _, name := range sum.FailedFiles {
			fmt.Fprintf(os.Stderr, "  %s\n", name)
		}
	}
	printTotal(sum.TransferredBytes)

	if ctx.Err() != nil {
		return ExitGeneralError
	}
	if sum.Failed > 0 {
		return ExitDownloadsFailed
	}
	return ExitSuccess
}

var errBadFilter = errors.New("invalid filter configuration")

// recommendedRecords resolves the default download set: the quarterly
// recommendations filtered by the configured rules, plus the current
// OPatch and AHF for the selected platforms.
func recommendedRecords(ctx context.Context, cfg config.Config, cat *catalog.Client, platforms []catalog.Platform) ([]catalog.PatchRecord, error) {
	selector, err := filter.Compile(filter.Config{
		Platforms:               cfg.Platforms,
		IgnoredReleases:         cfg.IgnoredReleases,
		IgnoredDescriptionWords: cfg.IgnoredDescriptionWords,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadFilter, err)
	}

	recommended, err := cat.RecommendedPatches()
	if err != nil {
		return nil, err
	}
	records := selector.Select(recommended)

	dropped := selector.Dropped()
	logging.L("cli").Debug("filtered recommendations",
		"selected", len(records),
		"dropped_platform", dropped.Platform,
		"dropped_release", dropped.Release,
		"dropped_description", dropped.Description,
	)

	selected := selector.Platforms(platforms)
	for _, tool := range []struct {
		number   string
		category catalog.Category
	}{
		{opatchPatchNumber, catalog.CategoryOPatch},
		{ahfPatchNumber, catalog.CategoryAHF},
	} {
		recs, err := cat.PatchByNumber(ctx, tool.number, selected, tool.category, "")
		if err != nil {
			return nil, err
		}
		records = append(records, recs...)
	}

	return records, nil
}

func loadConfig(path, username string, promptPassword bool) (config.Config, error) {
	cfg := config.Default()

	loaded, err := config.LoadFromFile(path)
	switch {
	case err == nil:
		cfg = loaded
	case errors.Is(err, os.ErrNotExist):
		// No config file; env and flags must carry everything.
	default:
		return config.Config{}, err
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return config.Config{}, err
	}

	if username != "" {
		cfg.Credentials.Username = username
	}
	if promptPassword || cfg.Credentials.Password == "" {
		pw, err := readPassword()
		if err != nil {
			return config.Config{}, err
		}
		cfg.Credentials.Password = pw
	}

	return cfg, nil
}

// cacheDir is where the catalog bundle lives between runs.
func cacheDir(cfg config.Config) string {
	if cfg.CacheDir != "" {
		return cfg.CacheDir
	}
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "oqpd")
	}
	return filepath.Join(os.TempDir(), "oqpd")
}

// openBucket opens the download root. URLs go straight to the driver
// registry; plain paths are created and opened as a file bucket.
func openBucket(ctx context.Context, root string) (*blob.Bucket, error) {
	if strings.Contains(root, "://") {
		return blob.OpenBucket(ctx, root)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create download root: %w", err)
	}
	return fileblob.OpenBucket(root, nil)
}

func printPlatforms(platforms []catalog.Platform) {
	fmt.Println("CODE   - NAME")
	fmt.Println("==========================================================")
	for _, p := range platforms {
		fmt.Printf("%-6s - %s\n", p.Code, p.Name)
	}
}

func printTotal(bytes int64) {
	fmt.Printf("Total downloaded ~ %.2f MB\n", float64(bytes)/1024/1024)
}
