package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"globalsig/adapters/postgres"
	"globalsig/adapters/rng"
	"globalsig/adapters/tabular"
	"globalsig/app"
	"globalsig/domain/toys"
	"globalsig/internal/config"
	apperrors "globalsig/internal/errors"
	"globalsig/internal/logging"
	"globalsig/internal/migration"

	"github.com/spf13/cobra"
)

// setup loads the configuration, applies changed flags and builds the logger
func setup(overrides func(*config.Config)) (*environment, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if overrides != nil {
		overrides(cfg)
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return nil, apperrors.WithCode(apperrors.CodeConfigInvalid, err)
	}
	return &environment{cfg: cfg, logger: logger}, nil
}

func newGlobalCmd() *cobra.Command {
	var (
		toysRef      string
		nullRefs     []string
		method       string
		observedQ0   float64
		observedZ0   float64
		observedMass int
		expected     int
		tailPolicy   string
		failure      string
		bootstraps   int
		workers      int
		seed         int64
		asJSON       bool
	)

	cmd := &cobra.Command{
		Use:   "global",
		Short: "Compute the global significance of an observed excess",
		Long: `Compute the global p-value and significance of the observed excess from a
scan of toy experiments, with a 68% profile-likelihood interval, the fitted
trial factor and optionally a bootstrap of the null samples.

Example: globalsig global --toys toys.csv --null 'q0_*.csv' --method toys --observed-z0 3.0127 --bootstraps 1000 --seed 42`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			env, err := setup(func(c *config.Config) {
				if flags.Changed("method") {
					c.Significance.Method = method
				}
				if flags.Changed("observed-q0") {
					c.Observation.Q0, c.Observation.Z0 = &observedQ0, nil
				}
				if flags.Changed("observed-z0") {
					c.Observation.Z0 = &observedZ0
					if !flags.Changed("observed-q0") {
						c.Observation.Q0 = nil
					}
				}
				if flags.Changed("observed-mass") {
					c.Observation.Mass = observedMass
				}
				if flags.Changed("expected-masses") {
					c.Scan.ExpectedMasses = expected
				}
				if flags.Changed("tail-policy") {
					c.Significance.TailPolicy = tailPolicy
				}
				if flags.Changed("failure-policy") {
					c.Scan.FailurePolicy = failure
				}
				if flags.Changed("bootstraps") {
					c.Bootstrap.Replicates = bootstraps
				}
				if flags.Changed("workers") {
					c.Bootstrap.Workers = workers
				}
				if flags.Changed("seed") {
					c.Bootstrap.Seed = seed
				}
			})
			if err != nil {
				return err
			}
			defer env.close()
			return runGlobal(cmd.Context(), env, toysRef, nullRefs, asJSON)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&toysRef, "toys", "", "Toy fit table (CSV/XLSX file or postgres:<table>)")
	flags.StringSliceVar(&nullRefs, "null", nil, "Null samples: q0_<mass>.csv files or globs, or postgres:<table>")
	flags.StringVar(&method, "method", "asymptotics", "Local significance method: asymptotics|toys")
	flags.Float64Var(&observedQ0, "observed-q0", 0, "Observed test statistic")
	flags.Float64Var(&observedZ0, "observed-z0", 0, "Observed asymptotic local significance (q0 = Z0^2)")
	flags.IntVar(&observedMass, "observed-mass", 1000, "Mass hypothesis of the observed excess")
	flags.IntVar(&expected, "expected-masses", 20, "Number of null distributions the scan requires (0 disables the check)")
	flags.StringVar(&tailPolicy, "tail-policy", "sentinel", "Saturated empirical tail: sentinel|sqrt")
	flags.StringVar(&failure, "failure-policy", "drop", "Failed fits: drop the experiment or zero the test statistic")
	flags.IntVar(&bootstraps, "bootstraps", 0, "Number of bootstrap replicates (0 disables)")
	flags.IntVar(&workers, "workers", 8, "Parallel bootstrap workers")
	flags.Int64Var(&seed, "seed", 0, "Root seed of the bootstrap streams")
	flags.BoolVar(&asJSON, "json", false, "Print the report as JSON")

	return cmd
}

func runGlobal(ctx context.Context, env *environment, toysRef string, nullRefs []string, asJSON bool) error {
	settings, err := app.SettingsFromConfig(env.cfg)
	if err != nil {
		return apperrors.Wrap(err, "invalid analysis settings")
	}
	toySource, err := env.toySource(toysRef, 0)
	if err != nil {
		return err
	}
	nullSource, err := env.nullSource(nullRefs)
	if err != nil {
		return err
	}

	service := app.NewAnalysisService(rng.NewSeedSequence(), env.logger)
	report, err := service.Run(ctx, toySource, nullSource, settings)
	if err != nil {
		return apperrors.Wrap(err, "global significance analysis failed")
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	return report.WriteText(os.Stdout)
}

func newLocalCmd() *cobra.Command {
	var (
		toysRef string
		mass    int
		out     string
	)

	cmd := &cobra.Command{
		Use:   "local",
		Short: "Build the null q0 sample of one mass from local toys",
		Long: `Clean a local-significance toy table of one mass hypothesis (duplicates
rejected, failed fits dropped, boundary rule and negative clamp applied) and
write the null sample for the global analysis.

Example: globalsig local --toys local_1000.csv --mass 1000 --out q0_1000.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(nil)
			if err != nil {
				return err
			}
			defer env.close()
			return runLocal(cmd.Context(), env, toysRef, mass, out)
		},
	}

	cmd.Flags().StringVar(&toysRef, "toys", "", "Local toy fit table (CSV/XLSX file or postgres:<table>)")
	cmd.Flags().IntVar(&mass, "mass", 1000, "Mass hypothesis of the table")
	cmd.Flags().StringVar(&out, "out", "", "Output: file (default q0_<mass>.csv) or postgres:<table>")

	return cmd
}

func runLocal(ctx context.Context, env *environment, toysRef string, mass int, out string) error {
	toySource, err := env.toySource(toysRef, mass)
	if err != nil {
		return err
	}

	service := app.NewAnalysisService(rng.NewSeedSequence(), env.logger)
	sample, summary, err := service.BuildLocalNullSample(ctx, toySource, env.cfg.Scan.NegativeTolerance)
	if err != nil {
		return apperrors.Wrap(err, "failed to build null sample")
	}

	if out == "" {
		out = tabular.NullSampleFileName(mass)
	}
	if table, ok := tableName(out); ok {
		db, err := env.connect()
		if err != nil {
			return err
		}
		if err := postgres.EnsureNullSampleTable(ctx, db, table); err != nil {
			return apperrors.DatabaseError("failed to prepare null-sample table", err)
		}
		if err := postgres.NewNullSampleRepository(db, table).SaveNullSample(ctx, mass, sample); err != nil {
			return apperrors.DatabaseError("failed to store null sample", err)
		}
	} else if err := tabular.WriteNullSample(filepath.Clean(out), sample); err != nil {
		return apperrors.Wrap(err, "failed to write null sample")
	}

	fmt.Printf("Total fits: %d\n", summary.TotalFits)
	fmt.Printf("Failed fits: %d (%.1f %%)\n", summary.FailedFits, 100*summary.FailureRate)
	fmt.Printf("Retained: %d (%d negative q0 clamped)\n", summary.Retained, summary.NegativeClamped)
	fmt.Printf("Wrote null sample for mass %d to %s\n", mass, out)
	return nil
}

func newFailedCmd() *cobra.Command {
	var (
		toysRef     string
		diagnostics bool
	)

	cmd := &cobra.Command{
		Use:   "failed",
		Short: "List failed fits as toyindex,mass lines",
		Long: `List every failed fit of a toy table as headerless toyindex,mass CSV lines,
ready to be resubmitted. With --diagnostics the per-mass fitted signal
strength summary is printed to stderr.

Example: globalsig failed --toys toys.csv > failed.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(nil)
			if err != nil {
				return err
			}
			defer env.close()
			return runFailed(cmd.Context(), env, toysRef, diagnostics)
		},
	}

	cmd.Flags().StringVar(&toysRef, "toys", "", "Toy fit table (CSV/XLSX file or postgres:<table>)")
	cmd.Flags().BoolVar(&diagnostics, "diagnostics", false, "Print per-mass fit diagnostics to stderr")

	return cmd
}

func runFailed(ctx context.Context, env *environment, toysRef string, diagnostics bool) error {
	toySource, err := env.toySource(toysRef, 0)
	if err != nil {
		return err
	}
	policy, err := toys.ParseFailurePolicy(env.cfg.Scan.FailurePolicy)
	if err != nil {
		return apperrors.WithCode(apperrors.CodeConfigInvalid, err)
	}

	service := app.NewAnalysisService(rng.NewSeedSequence(), env.logger)
	dataset, diag, err := service.AuditFits(ctx, toySource, toys.NormalizeOptions{
		NegativeTolerance: env.cfg.Scan.NegativeTolerance,
		FailurePolicy:     policy,
	})
	if err != nil {
		return apperrors.Wrap(err, "failed to audit fits")
	}

	if diagnostics {
		fmt.Fprintf(os.Stderr, "%6s %6s %10s %10s %10s %10s %8s\n",
			"mass", "fits", "muhat_mean", "muhat_std", "bias_sig", "max/range", "fail")
		for _, d := range diag {
			fmt.Fprintf(os.Stderr, "%6d %6d %10.4f %10.4f %10.2f %10.3f %7.1f%%\n",
				d.Mass, d.NumFits, d.MuhatMean, d.MuhatStd, d.BiasSig, d.MaxOverRange, 100*d.FailureRate)
		}
	}
	return tabular.WriteFailedFits(os.Stdout, dataset.FailedFits())
}

func newImportCmd() *cobra.Command {
	var (
		toysRef string
		table   string
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load a toy fit table file into PostgreSQL",
		Long: `Create the toy table if needed and insert every record of a CSV/XLSX toy
table, so later runs can read it with --toys postgres:<table>.

Example: globalsig import --toys toys.csv --table scan_toys`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(nil)
			if err != nil {
				return err
			}
			defer env.close()

			records, err := tabular.NewToyFile(toysRef, env.logger).ReadToys(cmd.Context())
			if err != nil {
				return apperrors.Wrap(err, "failed to read toys")
			}
			if _, err := toys.Normalize(records, toys.DefaultNormalizeOptions()); err != nil {
				return apperrors.Wrap(err, "refusing to import an inconsistent toy table")
			}
			db, err := env.connect()
			if err != nil {
				return err
			}
			if err := postgres.EnsureToyTable(cmd.Context(), db, table); err != nil {
				return apperrors.DatabaseError("failed to prepare toy table", err)
			}
			if err := postgres.InsertToys(cmd.Context(), db, table, records); err != nil {
				return apperrors.DatabaseError("failed to import toys", err)
			}
			env.logger.Infof("[Import] %d toy records written to %s", len(records), table)
			return nil
		},
	}

	cmd.Flags().StringVar(&toysRef, "toys", "", "Toy fit table file (CSV/XLSX)")
	cmd.Flags().StringVar(&table, "table", "toys", "Destination table")

	return cmd
}

func newMigrateCmd() *cobra.Command {
	var toyTable, nullTable string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the toy and null-sample tables in PostgreSQL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(nil)
			if err != nil {
				return err
			}
			defer env.close()

			db, err := env.connect()
			if err != nil {
				return err
			}
			runner := migration.NewRunner(toyTable, nullTable)
			if err := runner.Run(cmd.Context(), db); err != nil {
				return err
			}
			env.logger.Infof("[Migrate] schema %s applied (toys=%q, null=%q)", runner.Version(), toyTable, nullTable)
			return nil
		},
	}

	cmd.Flags().StringVar(&toyTable, "toy-table", "toys", "Toy fit table (empty to skip)")
	cmd.Flags().StringVar(&nullTable, "null-table", "null_q0", "Null-sample table (empty to skip)")

	return cmd
}
