package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/ehreval/internal/checkpoint"
	"github.com/ogulcanaydogan/ehreval/internal/config"
	"github.com/ogulcanaydogan/ehreval/internal/ehr"
	"github.com/ogulcanaydogan/ehreval/internal/evaluate"
	"github.com/ogulcanaydogan/ehreval/internal/metrics"
	"github.com/ogulcanaydogan/ehreval/internal/model"
	"github.com/ogulcanaydogan/ehreval/internal/report"
	"github.com/ogulcanaydogan/ehreval/internal/store"
	"github.com/ogulcanaydogan/ehreval/internal/tensor"
)

const (
	exitConfig     = 10
	exitData       = 11
	exitCheckpoint = 12
	exitModel      = 13
	exitMetric     = 14
)

type cliError struct {
	code int
	err  error
}

func (e cliError) Error() string { return e.err.Error() }

func (e cliError) Unwrap() error { return e.err }

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		var ce cliError
		if errors.As(err, &ce) {
			fmt.Fprintln(os.Stderr, ce.err)
			os.Exit(ce.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var newBackend = func(rt *config.Runtime) model.Backend {
	return model.NewRemoteBackend(rt.InferenceURL, rt.InferenceTimeout)
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "ehreval",
		Short:         "Evaluate EHR sequence models and their ablations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newInitCommand())
	root.AddCommand(newValidateCommand())
	root.AddCommand(newRunCommand())
	root.AddCommand(newReportCommand())
	root.AddCommand(newHistoryCommand())
	return root
}

// classify maps sentinel errors to process exit codes.
func classify(err error) error {
	if err == nil {
		return nil
	}
	code := 1
	switch {
	case errors.Is(err, config.ErrInvalid):
		code = exitConfig
	case errors.Is(err, checkpoint.ErrMissing):
		code = exitCheckpoint
	case errors.Is(err, model.ErrShapeMismatch), errors.Is(err, model.ErrBackend), errors.Is(err, model.ErrNotLoaded):
		code = exitModel
	case errors.Is(err, metrics.ErrSingleClass):
		code = exitMetric
	case errors.Is(err, tensor.ErrShape), errors.Is(err, ehr.ErrFormat), errors.Is(err, metrics.ErrDimension), errors.Is(err, fs.ErrNotExist):
		code = exitData
	}
	return cliError{code: code, err: err}
}

func newLogger(w io.Writer, appEnv, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	if appEnv == "local" {
		return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}).Level(lvl).With().Timestamp().Logger()
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

func loadSweep(path string) (config.Sweep, error) {
	if path == "" {
		return config.DefaultSweep(), nil
	}
	return config.LoadSweep(path)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func newInitCommand() *cobra.Command {
	var outPath string
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a sweep configuration with the reference defaults",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if fileExists(outPath) && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", outPath)
			}
			raw, err := config.DefaultYAML()
			if err != nil {
				return err
			}
			if err := store.EnsureDir(filepath.Dir(outPath)); err != nil {
				return err
			}
			if err := os.WriteFile(outPath, raw, 0o644); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), outPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "ehreval.yaml", "sweep config output")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func newValidateCommand() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a sweep configuration without evaluating",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadSweep(cfgPath)
			if err != nil {
				return classify(err)
			}
			evaluations := len(cfg.Tasks) * len(cfg.Datasets) * len(cfg.Variants) * len(cfg.CheckpointIndices)
			fmt.Fprintf(cmd.OutOrStdout(), "%s: valid (%d evaluations)\n", cfgPath, evaluations)
			return nil
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "ehreval.yaml", "sweep config file")
	return cmd
}

func newRunCommand() *cobra.Command {
	var cfgPath, markdownPath string
	var noHistory bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Evaluate every configured checkpoint and write result tables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := config.LoadRuntime()
			if err != nil {
				return classify(fmt.Errorf("%w: %w", config.ErrInvalid, err))
			}
			logger := newLogger(cmd.ErrOrStderr(), rt.Env, rt.LogLevel)

			cfg, err := loadSweep(cfgPath)
			if err != nil {
				return classify(err)
			}
			digest, err := cfg.Digest()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			started := time.Now().UTC()
			sweepID := report.NewSweepID()
			logger.Info().Str("sweep_id", sweepID).Str("config_digest", digest).Msg("starting sweep")

			runner := evaluate.NewRunner(cfg, ehr.NewReader(cfg.DataRoot), newBackend(rt), &logger, cmd.OutOrStdout())
			acc, err := runner.Run(ctx, evaluate.NewAccumulator())
			if err != nil {
				logger.Error().Err(err).Int("completed", acc.Len()).Msg("sweep aborted")
				return classify(err)
			}

			sections, err := report.WriteTasks(cfg.OutRoot, acc)
			if err != nil {
				return err
			}
			variants := make([]string, len(cfg.Variants))
			for i, v := range cfg.Variants {
				variants[i] = string(v)
			}
			manifest := report.Manifest{
				SweepID:           sweepID,
				StartedAt:         started,
				FinishedAt:        time.Now().UTC(),
				ConfigDigest:      digest,
				DataRoot:          cfg.DataRoot,
				OutRoot:           cfg.OutRoot,
				Datasets:          cfg.Datasets,
				Variants:          variants,
				CheckpointIndices: cfg.CheckpointIndices,
				Seeds:             cfg.Seeds,
				Tasks:             sections,
			}
			manifestPath := filepath.Join(cfg.OutRoot, report.ManifestFile)
			if err := report.WriteJSON(manifestPath, manifest); err != nil {
				return err
			}
			if cfgPath != "" {
				if _, err := store.CopyInto(cfgPath, cfg.OutRoot, "sweep.config.yaml"); err != nil {
					return err
				}
			}
			if markdownPath != "" {
				if err := report.WriteMarkdown(markdownPath, manifest); err != nil {
					return err
				}
			}
			if !noHistory {
				db, err := store.Open(rt.HistoryDB)
				if err != nil {
					return err
				}
				defer db.Close()
				if err := db.SaveSweep(ctx, manifest, manifestPath); err != nil {
					return err
				}
			}

			for _, s := range sections {
				logger.Info().Str("task", string(s.Task)).Int("records", len(s.Records)).Str("file", s.File).Msg("wrote results")
			}
			logger.Info().Str("sweep_id", sweepID).Str("manifest", manifestPath).Msg("sweep complete")
			return nil
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "", "sweep config file (defaults when empty)")
	cmd.Flags().StringVar(&markdownPath, "markdown", "", "also write a markdown summary")
	cmd.Flags().BoolVar(&noHistory, "no-history", false, "do not record the sweep in the history database")
	return cmd
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func newReportCommand() *cobra.Command {
	var inPath, outPath string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render a sweep manifest as markdown",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if inPath == "" {
				return fmt.Errorf("--in is required")
			}
			m, err := report.ReadJSON(inPath)
			if err != nil {
				return err
			}
			if outPath == "" {
				_, err := io.WriteString(cmd.OutOrStdout(), report.BuildMarkdown(m))
				return err
			}
			if err := report.WriteMarkdown(outPath, m); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), outPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&inPath, "in", "", "sweep manifest json input")
	cmd.Flags().StringVar(&outPath, "out", "", "markdown output (stdout when empty)")
	return cmd
}

func newHistoryCommand() *cobra.Command {
	var sweepID string
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded sweeps or the results of one sweep",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := config.LoadRuntime()
			if err != nil {
				return classify(fmt.Errorf("%w: %w", config.ErrInvalid, err))
			}
			db, err := store.Open(rt.HistoryDB)
			if err != nil {
				return err
			}
			defer db.Close()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			defer tw.Flush()
			if sweepID != "" {
				records, err := db.Records(cmdContext(cmd), sweepID)
				if err != nil {
					return err
				}
				if len(records) == 0 {
					return fmt.Errorf("no results for sweep %s", sweepID)
				}
				for _, r := range records {
					fmt.Fprintf(tw, "%s\t%s\t%d\t%s", r.Dataset, r.Task, r.TrainIndex, r.Model)
					for _, m := range r.Metrics {
						fmt.Fprintf(tw, "\t%s=%.4f", m.Name, m.Value)
					}
					fmt.Fprintln(tw)
				}
				return nil
			}

			sweeps, err := db.ListSweeps(cmdContext(cmd), limit)
			if err != nil {
				return err
			}
			fmt.Fprintln(tw, "SWEEP\tSTARTED\tDURATION\tRECORDS\tOUT")
			for _, s := range sweeps {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", s.SweepID, s.StartedAt.Format(time.RFC3339),
					s.FinishedAt.Sub(s.StartedAt).Round(time.Second), s.Records, s.OutRoot)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sweepID, "sweep", "", "show the results of one sweep")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum sweeps to list (0 for all)")
	return cmd
}
