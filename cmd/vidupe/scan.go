package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"vidupe/internal/config"
	"vidupe/internal/engine"
	"vidupe/internal/logging"
	"vidupe/internal/store"
	"vidupe/internal/types"
)

// scanOptions holds CLI flags for the scan command.
type scanOptions struct {
	configFile string
	verbosity  int
	noProgress bool
	noReport   bool
}

// newScanCmd creates the scan subcommand.
func newScanCmd() *cobra.Command {
	opts := &scanOptions{}
	cfg := config.Default()

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan a directory tree and report duplicate groups",
		Long: `Walks the given path, fingerprints new and changed files into the
database and prints the resulting duplicate groups.

With --videohash, video files additionally get a perceptual fingerprint so
re-encoded, rescaled or clipped copies are reported as near-duplicates.

Without --path only the report is produced, from the existing database.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runScan(cfg, opts)
		},
	}

	cmd.Flags().StringVarP(&cfg.Path, "path", "p", cfg.Path, "Directory tree to scan")
	cmd.Flags().StringVarP(&cfg.DatabasePath, "database", "d", cfg.DatabasePath, "Fingerprint database file")
	cmd.Flags().IntVarP(&cfg.Threads, "threads", "t", cfg.Threads, "Number of hashing workers")
	cmd.Flags().IntVar(&cfg.CommitBatchSize, "commit-batchsize", cfg.CommitBatchSize, "Database commit batch size")
	cmd.Flags().BoolVar(&cfg.VideoHash, "videohash", cfg.VideoHash, "Enable perceptual video fingerprinting (needs ffmpeg/ffprobe)")
	cmd.Flags().BoolVarP(&cfg.ResetDatabase, "reset-database", "r", cfg.ResetDatabase, "Discard all persisted fingerprints before scanning")
	cmd.Flags().BoolVarP(&cfg.CleanUnfound, "clean-unfound", "c", cfg.CleanUnfound, "Prune database entries for files no longer present")
	cmd.Flags().Float64Var(&cfg.SimilarityThreshold, "similarity-threshold", cfg.SimilarityThreshold, "Near-duplicate distance threshold (0..1)")
	cmd.Flags().IntVar(&cfg.SampleFrames, "sample-frames", cfg.SampleFrames, "Frames sampled per video for perceptual hashing")
	cmd.Flags().StringVar(&opts.configFile, "config", "", "YAML config file (flags override)")
	cmd.Flags().CountVarP(&opts.verbosity, "verbose", "v", "Increase log verbosity (-v, -vv)")
	cmd.Flags().BoolVar(&opts.noProgress, "no-progress", false, "Disable progress output")
	cmd.Flags().BoolVar(&opts.noReport, "no-report", false, "Skip the duplicate-group report")

	return cmd
}

// runScan executes the pipeline: open store, scan, report groups.
func runScan(cfg config.Config, opts *scanOptions) error {
	if opts.configFile != "" {
		fileCfg, err := config.Load(opts.configFile)
		if err != nil {
			return err
		}
		// File provides the base; explicitly set flags already mutated cfg,
		// so only fill fields still at their defaults.
		cfg = mergeConfig(fileCfg, cfg)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log := logging.New(os.Stderr, opts.verbosity)

	st, err := store.Open(cfg.DatabasePath, cfg.ResetDatabase)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng := engine.New(cfg, st, log)

	if cfg.Path != "" {
		summary, err := eng.Scan(ctx, !opts.noProgress)
		if err != nil {
			return err
		}
		fmt.Println(summary)
	}

	if opts.noReport {
		return nil
	}

	groups, err := eng.Groups(cfg.VideoHash)
	if err != nil {
		return err
	}
	printGroups(groups)
	return nil
}

// mergeConfig overlays flag-set values on top of the file config. A flag
// value differing from the built-in default wins over the file.
func mergeConfig(file, flags config.Config) config.Config {
	def := config.Default()
	merged := file
	if flags.Path != def.Path {
		merged.Path = flags.Path
	}
	if flags.DatabasePath != def.DatabasePath {
		merged.DatabasePath = flags.DatabasePath
	}
	if flags.Threads != def.Threads {
		merged.Threads = flags.Threads
	}
	if flags.CommitBatchSize != def.CommitBatchSize {
		merged.CommitBatchSize = flags.CommitBatchSize
	}
	if flags.VideoHash {
		merged.VideoHash = true
	}
	if flags.ResetDatabase {
		merged.ResetDatabase = true
	}
	if flags.CleanUnfound {
		merged.CleanUnfound = true
	}
	if flags.SimilarityThreshold != def.SimilarityThreshold {
		merged.SimilarityThreshold = flags.SimilarityThreshold
	}
	if flags.SampleFrames != def.SampleFrames {
		merged.SampleFrames = flags.SampleFrames
	}
	return merged
}

// printGroups writes the duplicate report to stdout: one block per group,
// keeper first and marked.
func printGroups(groups []types.DuplicateGroup) {
	if len(groups) == 0 {
		fmt.Println("No duplicates found.")
		return
	}

	for i, g := range groups {
		kind := "near-duplicate"
		if g.Exact {
			kind = "exact"
		}
		fmt.Printf("Group %d (%s, %d files):\n", i+1, kind, len(g.Files))
		fmt.Printf("  keep  %s (%s)\n", g.Keeper.Path, humanize.IBytes(uint64(g.Keeper.Size)))
		for _, f := range g.Files {
			if f.Path == g.Keeper.Path {
				continue
			}
			fmt.Printf("        %s (%s)\n", f.Path, humanize.IBytes(uint64(f.Size)))
		}
	}
	fmt.Printf("%d duplicate groups.\n", len(groups))
}
