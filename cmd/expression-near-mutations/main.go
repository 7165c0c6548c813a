// Package main provides the expression-near-mutations command-line tool.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/inodb/expression-near-mutations/internal/duckdb"
	"github.com/inodb/expression-near-mutations/internal/expression"
	"github.com/inodb/expression-near-mutations/internal/genome"
	"github.com/inodb/expression-near-mutations/internal/manifest"
	"github.com/inodb/expression-near-mutations/internal/pipeline"
)

// Exit codes
const (
	ExitSuccess = 0
	ExitError   = 1
	ExitUsage   = 2
)

// Version information (set at build time)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// errUsage reports a command line that names no participants.
var errUsage = errors.New("no participant ids given")

type options struct {
	alleleSpecific bool
	configFile     string
	verbose        bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the command line and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	v := viper.New()
	root := newRootCmd(v, stdout, stderr)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, errUsage):
		fmt.Fprint(stderr, root.UsageString())
		return ExitUsage
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitError
	}
}

func newRootCmd(v *viper.Viper, stdout, stderr io.Writer) *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "expression-near-mutations [-a] <participantId> [<participantId> ...]",
		Short: "Summarize expression around mutated genes",
		Long: `Summarize regional expression, or allele-specific expression with -a,
as a function of distance from each gene of a participant, and write one
gene expression table per participant next to its input file.`,
		Example: `  expression-near-mutations --manifest experiments.tsv --genes hg19=gencode.v19.gtf.gz P1 P2
  expression-near-mutations -a --workers 8 P1 P2 P3
  expression-near-mutations --db results.duckdb --skip-unchanged --gene-cache ~/.cache/expression-near-mutations P1`,
		Version:       fmt.Sprintf("%s (%s) built %s", version, commit, date),
		Args:          cobra.ArbitraryArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(v, opts.configFile)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return errUsage
			}
			for _, name := range []string{"manifest", "genes", "workers", "db", "skip-unchanged", "gene-cache"} {
				if err := v.BindPFlag(name, cmd.Flags().Lookup(name)); err != nil {
					return err
				}
			}

			logger := newLogger(stderr, opts.verbose)
			defer logger.Sync()

			mode := expression.Regional
			if opts.alleleSpecific {
				mode = expression.AlleleSpecific
			}
			return runParticipants(cmd.Context(), v, logger, mode, args)
		},
	}

	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	flags := cmd.Flags()
	flags.BoolVarP(&opts.alleleSpecific, "allele-specific", "a", false, "Use allele-specific expression rather than regional expression")
	flags.String("manifest", "", "Experiments TSV mapping participants to MAF and expression files")
	flags.StringArray("genes", nil, "Gene annotation GTF, as [reference=]path (repeatable, reference defaults to hg19)")
	flags.String("gene-cache", "", "Directory caching parsed gene annotation between runs (optional)")
	flags.Int("workers", 1, "Number of participants processed concurrently")
	flags.String("db", "", "DuckDB file to store per-gene bin statistics in (optional)")
	flags.Bool("skip-unchanged", false, "Skip participants whose stored run in --db is up to date")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")
	flags.SortFlags = false
	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "Config file (default ~/"+configFileName+")")

	cmd.AddCommand(newConfigCmd(v, stdout))

	return cmd
}

// runParticipants loads the manifest and gene indices, then processes the
// participants.
func runParticipants(ctx context.Context, v *viper.Viper, logger *zap.Logger, mode expression.Mode, ids []string) error {
	manifestPath := v.GetString("manifest")
	if manifestPath == "" {
		return fmt.Errorf("no manifest configured: use --manifest or set manifest in the config file")
	}

	start := time.Now()
	m, err := manifest.Load(manifestPath)
	if err != nil {
		return err
	}
	logger.Info(fmt.Sprintf("loaded %d experiments in %s", m.Len(), time.Since(start).Round(time.Millisecond)))

	geneFiles, err := parseGeneSources(v.GetStringSlice("genes"))
	if err != nil {
		return err
	}

	load := genome.LoadGTF
	if dir := v.GetString("gene-cache"); dir != "" {
		load = duckdb.NewGeneIndexCache(dir).Load
	}

	start = time.Now()
	indices, err := genome.LoadIndicesWith(ctx, geneFiles, load)
	if err != nil {
		return err
	}
	for ref, idx := range indices {
		logger.Info(fmt.Sprintf("loaded %d genes for %s in %s", idx.GeneCount(), ref, time.Since(start).Round(time.Millisecond)),
			zap.Strings("chromosomes", idx.Chromosomes()))
	}

	proc := pipeline.NewProcessor(mode, m, indices)
	proc.SetLogger(logger)

	d := pipeline.NewDispatcher(proc, v.GetInt("workers"))
	d.SetLogger(logger)

	if dbPath := v.GetString("db"); dbPath != "" {
		store, err := duckdb.Open(dbPath)
		if err != nil {
			return err
		}
		defer store.Close()
		d.SetSink(store)

		if v.GetBool("skip-unchanged") {
			if ids, err = skipUpToDate(store, mode, ids, logger); err != nil {
				return err
			}
		}
	}

	summary, err := d.Run(ctx, ids)
	logger.Info(fmt.Sprintf("processed %d participants in %s", summary.Processed, summary.Elapsed.Round(time.Second)),
		zap.Int("failed", summary.Failed),
		zap.Float64("median_seconds", summary.MedianSeconds),
		zap.Float64("max_seconds", summary.MaxSeconds))
	return err
}

// parseGeneSources turns [reference=]path flags into a reference to path map.
func parseGeneSources(sources []string) (map[string]string, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("no gene annotation configured: use --genes or set genes in the config file")
	}
	files := make(map[string]string, len(sources))
	for _, source := range sources {
		ref, path := genome.ParseGeneSource(source)
		if path == "" {
			return nil, fmt.Errorf("invalid --genes value %q", source)
		}
		if prev, ok := files[ref]; ok {
			return nil, fmt.Errorf("reference %s given twice: %s and %s", ref, prev, path)
		}
		files[ref] = path
	}
	return files, nil
}

// skipUpToDate drops participants whose stored results are current.
func skipUpToDate(store *duckdb.Store, mode expression.Mode, ids []string, logger *zap.Logger) ([]string, error) {
	var todo []string
	for _, id := range ids {
		ok, err := store.UpToDate(id, mode)
		if err != nil {
			return nil, err
		}
		if ok {
			logger.Info("skipping up to date participant", zap.String("participant", id))
			continue
		}
		todo = append(todo, id)
	}
	return todo, nil
}
