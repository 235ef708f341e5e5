package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinlabel/sepsis/internal/config"
	"github.com/clinlabel/sepsis/internal/database"
	"github.com/clinlabel/sepsis/internal/migrations"
	"github.com/clinlabel/sepsis/internal/pipeline"
)

type globalFlags struct {
	configPath string
	dsn        string
	verbose    bool
	quiet      bool
	logFormat  string
	debugSQL   bool
}

func main() {
	var flags globalFlags

	rootCmd := &cobra.Command{
		Use:           "sepsis-labeler",
		Short:         "Label inpatient admissions with sepsis from OMOP facts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "YAML configuration file")
	pf.StringVar(&flags.dsn, "dsn", "", "database DSN (postgres:// or sqlite file)")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "log stage progress")
	pf.BoolVarP(&flags.quiet, "quiet", "q", false, "log warnings and errors only")
	pf.StringVar(&flags.logFormat, "log-format", "", "json or console")
	pf.BoolVar(&flags.debugSQL, "debug-sql", false, "log every SQL statement")

	rootCmd.AddCommand(runCmd(&flags))
	rootCmd.AddCommand(planCmd(&flags))
	rootCmd.AddCommand(extractCmd(&flags))
	rootCmd.AddCommand(migrateCmd(&flags))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func runCmd(flags *globalFlags) *cobra.Command {
	var o runOverrides
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full labeling pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd, flags, &o)
			if err != nil {
				return err
			}
			res, err := pipeline.Run(cmd.Context(), cfg, pipeline.WithLogger(logger))
			if err != nil {
				return err
			}
			if !cfg.SaveToDatabase && !cfg.PrintOnly {
				return writeLabels(cmd.OutOrStdout(), res.Labeled)
			}
			return nil
		},
	}
	o.register(cmd)
	return cmd
}

func planCmd(flags *globalFlags) *cobra.Command {
	var o runOverrides
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the relations and queries a run would execute",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd, flags, &o)
			if err != nil {
				return err
			}
			cfg.PrintOnly = true
			res, err := pipeline.Run(cmd.Context(), cfg, pipeline.WithLogger(logger))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, q := range res.Plan {
				fmt.Fprintf(out, "-- %s: %s\n", q.Stage, q.Relation)
				if q.SQL != "" {
					fmt.Fprintf(out, "%s;\n", q.SQL)
				}
			}
			return nil
		},
	}
	o.register(cmd)
	return cmd
}

func extractCmd(flags *globalFlags) *cobra.Command {
	var o runOverrides
	cmd := &cobra.Command{
		Use:   "extract-flowsheets",
		Short: "Unpack flowsheet observations into the flat flowsheet relation",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd, flags, &o)
			if err != nil {
				return err
			}
			cfg.SaveToDatabase = true
			db, err := database.NewDB(cfg.DatabaseDSN, cfg.DebugSQL)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			r, err := pipeline.New(db, cfg, pipeline.WithLogger(logger))
			if err != nil {
				return err
			}
			rows, err := r.ExtractFlowsheets(cmd.Context())
			if err != nil {
				return err
			}
			logger.Info().Int("rows", len(rows)).Str("relation", cfg.FlowsheetRelation()).Msg("flowsheets extracted")
			return nil
		},
	}
	o.register(cmd)
	return cmd
}

func migrateCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the OMOP fact-store tables and indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd, flags, nil)
			if err != nil {
				return err
			}
			db, err := database.NewDB(cfg.DatabaseDSN, cfg.DebugSQL)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()
			return migrations.RunMigrations(cmd.Context(), db, logger)
		},
	}
}

// loadConfig reads the config file, environment and flags, in increasing
// precedence, and builds the logger.
func loadConfig(cmd *cobra.Command, flags *globalFlags, o *runOverrides) (config.Config, zerolog.Logger, error) {
	cfg, err := config.LoadFile(flags.configPath)
	if err != nil {
		return config.Config{}, zerolog.Nop(), err
	}

	pf := cmd.Flags()
	if pf.Changed("dsn") {
		cfg.DatabaseDSN = flags.dsn
	}
	if pf.Changed("verbose") {
		cfg.Verbose = flags.verbose
	}
	if pf.Changed("quiet") && flags.quiet {
		cfg.Verbose = false
	}
	if pf.Changed("log-format") {
		cfg.LogFormat = flags.logFormat
	}
	if pf.Changed("debug-sql") {
		cfg.DebugSQL = flags.debugSQL
	}
	if o != nil {
		o.apply(cmd, &cfg)
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, zerolog.Nop(), err
	}
	return cfg, newLogger(cfg), nil
}

func newLogger(cfg config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if cfg.LogFormat == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	if cfg.Verbose {
		return logger.Level(zerolog.InfoLevel)
	}
	return logger.Level(zerolog.WarnLevel)
}
