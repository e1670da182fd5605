// recon-report runs the reconciliation controls and NL-to-SQL queries from the
// command line, printing summaries and optionally writing CSV.
//
// Usage:
//
//	go run ./scripts/recon-report completeness --product "Fiber 100Mbps" --out completeness.csv
//	go run ./scripts/recon-report accuracy --product "Fiber 100Mbps"
//	go run ./scripts/recon-report query "How many active fiber assets per account?"
//	go run ./scripts/recon-report query --sql "SELECT status, COUNT(*) AS n FROM siebel_assets GROUP BY status"
//
// Configuration is read the same way as the server (config.yaml plus
// environment); a .env file in the working directory is loaded first.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-recon/pkg/adapters/warehouse"
	_ "github.com/ekaya-inc/ekaya-recon/pkg/adapters/warehouse/bigquery"
	_ "github.com/ekaya-inc/ekaya-recon/pkg/adapters/warehouse/mssql"
	_ "github.com/ekaya-inc/ekaya-recon/pkg/adapters/warehouse/postgres"
	"github.com/ekaya-inc/ekaya-recon/pkg/config"
	"github.com/ekaya-inc/ekaya-recon/pkg/llm"
	"github.com/ekaya-inc/ekaya-recon/pkg/logging"
	"github.com/ekaya-inc/ekaya-recon/pkg/services"
	"github.com/ekaya-inc/ekaya-recon/pkg/storage"
	"github.com/ekaya-inc/ekaya-recon/pkg/table"
)

// Set by LDFLAGS
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type rootFlags struct {
	configPath string
	envFile    string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:          "recon-report",
		Short:        "Run billing reconciliation controls and warehouse queries.",
		Version:      version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "config.yaml", "path to config.yaml")
	rootCmd.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "set debug logging level")

	rootCmd.AddCommand(
		newCompletenessCmd(flags),
		newAccuracyCmd(flags),
		newQueryCmd(flags),
	)
	return rootCmd
}

// app holds the services one command run needs.
type app struct {
	logger   *zap.Logger
	exec     warehouse.QueryExecutor
	query    services.QueryService
	recon    services.ReconciliationService
	accuracy services.AccuracyService
}

// newApp wires the services from configuration. The LLM client is only built
// when withLLM is set, and the mapping store only when the LLM or a control
// needs it, so plain SQL and the controls work without cloud credentials.
func newApp(ctx context.Context, flags *rootFlags, withLLM bool) (*app, error) {
	if err := godotenv.Load(flags.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", flags.envFile, err)
	}

	cfg, err := config.LoadFile(flags.configPath, version)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	level := "warn"
	if flags.verbose {
		level = "debug"
	}
	logger, err := logging.NewLogger(cfg.Env, level)
	if err != nil {
		return nil, err
	}

	controls, err := config.LoadControls(cfg.Reconciliation.ControlsFile)
	if err != nil {
		return nil, err
	}

	exec, err := warehouse.NewFromConfig(ctx, cfg.Warehouse, logger)
	if err != nil {
		return nil, err
	}

	var mappings services.MappingService
	if withLLM || controls.HasMappings() {
		store, err := storage.New(ctx, cfg.Storage, logger)
		if err != nil {
			_ = exec.Close()
			return nil, fmt.Errorf("create object store: %w", err)
		}
		mappings = services.NewMappingService(store, cfg.Mappings, cfg.Cache, logger)
	}

	var generator services.SQLGenerator
	if withLLM {
		generator, err = newGenerator(cfg, mappings, exec.Dialect(), logger)
		if err != nil {
			_ = exec.Close()
			return nil, err
		}
	}

	loader := services.NewDataLoader(exec, cfg.Sources, cfg.Reconciliation, cfg.Cache, logger)
	recon := services.NewReconciliationService(loader, mappings, controls, cfg.Reconciliation, logger)
	return &app{
		logger:   logger,
		exec:     exec,
		query:    services.NewQueryService(exec, generator, cfg.Warehouse.MaxRows, cfg.Warehouse.PreviewLimit, logger),
		recon:    recon,
		accuracy: services.NewAccuracyService(recon, logger),
	}, nil
}

func newGenerator(cfg *config.Config, mappings services.MappingService, dialect string, logger *zap.Logger) (services.SQLGenerator, error) {
	llmClient, err := llm.NewFromConfig(cfg.LLM, logger)
	if err != nil {
		return nil, fmt.Errorf("create llm client: %w", err)
	}
	return services.NewSQLGenerator(llmClient, mappings, services.SQLGeneratorConfig{
		Dialect:     dialect,
		Temperature: cfg.LLM.Temperature,
		SampleRows:  cfg.Mappings.SampleRows,
		MaxRetries:  cfg.LLM.MaxRetries,
		RetryDelay:  time.Duration(cfg.LLM.RetryDelayMS) * time.Millisecond,
	}, logger), nil
}

func (a *app) Close() {
	if err := a.exec.Close(); err != nil {
		a.logger.Warn("Failed to close warehouse executor", zap.Error(err))
	}
	_ = a.logger.Sync()
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func newCompletenessCmd(flags *rootFlags) *cobra.Command {
	var (
		product     string
		controlType string
		out         string
		top         int
	)
	cmd := &cobra.Command{
		Use:   "completeness",
		Short: "Classify every billing product and asset pair into a KPI.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()

			a, err := newApp(ctx, flags, false)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.recon.Completeness(ctx, controlType, product)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			printCompleteness(w, report)

			if top != 0 {
				groups, err := a.recon.TopExceptions(ctx, services.ExceptionsRequest{RunID: report.RunID, Limit: top})
				if err != nil {
					return err
				}
				printExceptions(w, groups)
			}
			if out != "" {
				return writeFile(out, func(f io.Writer) error { return services.WriteCompletenessCSV(f, report) })
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&product, "product", "p", "", "product name to reconcile")
	cmd.Flags().StringVar(&controlType, "control", services.ControlCompleteness, "control type from the controls file")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write detail records to this CSV file")
	cmd.Flags().IntVar(&top, "top", 10, "exception groups to print (0 to skip, negative for all)")
	_ = cmd.MarkFlagRequired("product")
	return cmd
}

func newAccuracyCmd(flags *rootFlags) *cobra.Command {
	var (
		product string
		out     string
	)
	cmd := &cobra.Command{
		Use:   "accuracy",
		Short: "Compare billed and asset amounts on Happy Path records.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()

			a, err := newApp(ctx, flags, false)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.accuracy.Run(ctx, product)
			if err != nil {
				return err
			}
			printAccuracy(cmd.OutOrStdout(), report)
			if out != "" {
				return writeFile(out, func(f io.Writer) error { return services.WriteAccuracyCSV(f, report) })
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&product, "product", "p", "", "product name to check")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write detail records to this CSV file")
	_ = cmd.MarkFlagRequired("product")
	return cmd
}

func newQueryCmd(flags *rootFlags) *cobra.Command {
	var (
		limit  int
		out    string
		sqlArg string
	)
	cmd := &cobra.Command{
		Use:   "query [question]",
		Short: "Generate SQL for a question and run it against the warehouse.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && sqlArg == "" {
				return errors.New("a question or --sql is required")
			}
			// A pasted SELECT runs as-is without a model round trip.
			if sqlArg == "" && looksLikeSelect(args[0]) {
				sqlArg = args[0]
			}

			ctx, cancel := signalContext(cmd)
			defer cancel()

			a, err := newApp(ctx, flags, sqlArg == "")
			if err != nil {
				return err
			}
			defer a.Close()

			w := cmd.OutOrStdout()
			var res *services.QueryResult
			if sqlArg != "" {
				res, err = a.query.Execute(ctx, &services.ExecuteQueryRequest{SQL: sqlArg, Limit: limit})
				if err != nil {
					return err
				}
			} else {
				run, err := a.query.Run(ctx, args[0], limit)
				if err != nil {
					return err
				}
				printGenerated(w, run.Generated)
				res = run.Result
			}

			printResult(w, res)
			if out != "" {
				return writeFile(out, func(f io.Writer) error { return table.WriteCSV(f, res.Table()) })
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum rows (0 = configured maximum)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the result to this CSV file")
	cmd.Flags().StringVar(&sqlArg, "sql", "", "run this SELECT instead of generating one")
	return cmd
}

// looksLikeSelect matches a pasted SELECT. Questions opening with "With"
// are not SQL.
func looksLikeSelect(q string) bool {
	fields := strings.Fields(q)
	return len(fields) > 1 && strings.EqualFold(fields[0], "SELECT")
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
