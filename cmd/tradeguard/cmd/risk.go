package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/tradeguard/risk"
)

var riskCmd = &cobra.Command{
	Use:   "risk",
	Short: "Check trade signals against risk limits",
	Long: `Evaluate risk limits against a ledger snapshot.

The ledger file is YAML:

  cash: 10000
  positions:
    600000.SH: {market_value: 9600}
    AAPL: {current_price: 180.5, volume: 10}
  orders_today: 12
  daily_pnl: -250

Subcommands:
  check  - Check one signal and exit non-zero when it is rejected
  report - Print the full risk report after checking

Examples:
  tradeguard risk check --ledger ledger.yaml --code AAPL --volume 100 --price 180
  tradeguard risk report --ledger ledger.yaml`,
}

var riskCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check one signal",
	Args:  cobra.NoArgs,
	RunE:  runRiskCheck,
}

var riskReportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the risk report for a ledger snapshot",
	Args:  cobra.NoArgs,
	RunE:  runRiskReport,
}

var (
	riskLedgerPath string
	riskSignal     risk.Signal
)

// ledgerFile is the on-disk ledger snapshot plus the day counters.
type ledgerFile struct {
	Snapshot    risk.Snapshot `yaml:",inline"`
	OrdersToday int           `yaml:"orders_today"`
	DailyPnL    float64       `yaml:"daily_pnl"`
}

func init() {
	rootCmd.AddCommand(riskCmd)
	riskCmd.AddCommand(riskCheckCmd)
	riskCmd.AddCommand(riskReportCmd)

	riskCmd.PersistentFlags().StringVarP(&riskLedgerPath, "ledger", "l", "", "ledger snapshot YAML (required)")
	_ = riskCmd.MarkPersistentFlagRequired("ledger")

	riskCheckCmd.Flags().StringVar(&riskSignal.Action, "action", "buy", "signal action")
	riskCheckCmd.Flags().StringVar(&riskSignal.Code, "code", "", "instrument code")
	riskCheckCmd.Flags().Float64Var(&riskSignal.Volume, "volume", 0, "order volume")
	riskCheckCmd.Flags().Float64Var(&riskSignal.Price, "price", 0, "order price")
}

func loadLedger(path string) (*ledgerFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	var lf ledgerFile
	if err := yaml.Unmarshal(data, &lf); err != nil {
		return nil, fmt.Errorf("parse ledger: %w", err)
	}
	return &lf, nil
}

// newEngine builds an engine over the snapshot with its day counters replayed.
func newEngine(lf *ledgerFile, sink risk.EventSink) *risk.Engine {
	e := risk.NewEngine(app.cfg.Risk,
		risk.WithLedger(&lf.Snapshot),
		risk.WithLogger(app.log),
		risk.WithMetrics(app.metrics),
		risk.WithEventSink(sink),
	)
	e.RecordOrderSubmitted(lf.OrdersToday)
	e.RecordPnL(lf.DailyPnL)
	return e
}

func runRiskCheck(cmd *cobra.Command, args []string) error {
	lf, err := loadLedger(riskLedgerPath)
	if err != nil {
		return err
	}
	j, err := openJournal("")
	if err != nil {
		return err
	}
	defer j.Close()

	var sig *risk.Signal
	if riskSignal.Volume != 0 || riskSignal.Price != 0 {
		s := riskSignal
		sig = &s
	}

	d := newEngine(lf, j).CheckContext(cmd.Context(), sig)
	out := cmd.OutOrStdout()
	if d.Allowed {
		fmt.Fprintln(out, "✓ allowed")
		return nil
	}
	fmt.Fprintf(out, "✗ rejected (%s): %s\n", d.Kind, d.Reason)
	return fmt.Errorf("signal rejected: %s", d.Kind)
}

func runRiskReport(cmd *cobra.Command, args []string) error {
	lf, err := loadLedger(riskLedgerPath)
	if err != nil {
		return err
	}
	j, err := openJournal("")
	if err != nil {
		return err
	}
	defer j.Close()

	e := newEngine(lf, j)
	e.CheckContext(cmd.Context(), nil)

	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(e.Report()); err != nil {
		return err
	}
	return enc.Close()
}
