package cmd

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rustyeddy/tradeguard/config"
	"github.com/rustyeddy/tradeguard/journal"
	"github.com/rustyeddy/tradeguard/metrics"
	"github.com/rustyeddy/tradeguard/pathsafe"
	"github.com/rustyeddy/tradeguard/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:   "tradeguard",
	Short: "Safety gates for automated trading strategies",
	Long: `Tradeguard keeps untrusted strategy code and runaway orders away from a
trading account.

It provides tools for:
  - Static validation of strategy scripts before they run
  - Secure, integrity checked downloads of strategy bundles
  - Risk limit checks on trade signals against a ledger snapshot
  - A SQLite journal of risk events and validation audits`,
	SilenceUsage:       true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: teardown,
}

var (
	cfgFile  string
	logLevel string

	app = &appState{}
)

// appState is built once per invocation from the config file and flags.
type appState struct {
	cfg     *config.Config
	log     *zap.Logger
	reg     *prometheus.Registry
	metrics *metrics.Collectors
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (YAML or JSON)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")
}

func setup(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if cfgFile != "" {
		loaded, err := config.LoadFromFile(cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	log, err := logger.NewWithWriter(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	*app = appState{
		cfg:     cfg,
		log:     log,
		reg:     reg,
		metrics: metrics.New(reg),
	}
	return nil
}

func teardown(cmd *cobra.Command, args []string) error {
	if app.log != nil {
		_ = app.log.Sync()
	}
	if app.cfg == nil || app.cfg.Metrics.Textfile == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(app.cfg.Metrics.Textfile, app.reg); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}

// openJournal returns the journal named by the config. dbPath overrides
// the configured SQLite path and forces the SQLite journal.
func openJournal(dbPath string) (journal.Journal, error) {
	if dbPath == "" && app.cfg.Journal.Type == "sqlite" {
		dbPath = app.cfg.Journal.DBPath
	}
	if dbPath == "" {
		return journal.Nop{}, nil
	}
	j, err := journal.NewSQLite(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return j, nil
}

// newResolver roots a resolver at base, then the configured base dir, then
// the working directory, and adds the configured extra roots.
func newResolver(base string) (*pathsafe.Resolver, error) {
	if base == "" {
		base = app.cfg.Security.BaseDir
	}
	if base == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		base = wd
	}
	r, err := pathsafe.NewResolver(base)
	if err != nil {
		return nil, err
	}
	for _, root := range app.cfg.Security.ExtraRoots {
		if err := r.AddRoot(root); err != nil {
			return nil, err
		}
	}
	return r, nil
}
