package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/tradeguard/journal"
	"github.com/rustyeddy/tradeguard/risk"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query the risk event journal",
	Long: `Query risk events and validation audits from the SQLite journal.

Subcommands:
  events      - List risk events, newest first
  validations - List strategy validation audits

Examples:
  tradeguard journal events --db tradeguard.db --kind order_limit_exceeded
  tradeguard journal events --since 2026-01-05 --format csv
  tradeguard journal validations --path /srv/strategies/ma.py`,
}

var journalEventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List risk events",
	Args:  cobra.NoArgs,
	RunE:  runJournalEvents,
}

var journalValidationsCmd = &cobra.Command{
	Use:   "validations",
	Short: "List validation audits",
	Args:  cobra.NoArgs,
	RunE:  runJournalValidations,
}

var (
	journalDBPath string
	journalKind   string
	journalSince  string
	journalLimit  int
	journalFormat string
	journalPath   string
)

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalEventsCmd)
	journalCmd.AddCommand(journalValidationsCmd)

	journalCmd.PersistentFlags().StringVarP(&journalDBPath, "db", "d", "", "path to SQLite journal DB (default: config journal.db_path)")
	journalCmd.PersistentFlags().IntVarP(&journalLimit, "limit", "n", 50, "maximum rows")

	journalEventsCmd.Flags().StringVar(&journalKind, "kind", "", "only events of this kind")
	journalEventsCmd.Flags().StringVar(&journalSince, "since", "", "only events on or after this day (YYYY-MM-DD)")
	journalEventsCmd.Flags().StringVar(&journalFormat, "format", "yaml", "output format (yaml, csv)")

	journalValidationsCmd.Flags().StringVar(&journalPath, "path", "", "only audits of this resolved path")
}

func openSQLite() (*journal.SQLite, error) {
	j, err := openJournal(journalDBPath)
	if err != nil {
		return nil, err
	}
	db, ok := j.(*journal.SQLite)
	if !ok {
		return nil, errors.New("no SQLite journal configured, pass --db")
	}
	return db, nil
}

func runJournalEvents(cmd *cobra.Command, args []string) error {
	j, err := openSQLite()
	if err != nil {
		return err
	}
	defer j.Close()

	f := journal.EventFilter{Kind: risk.EventKind(journalKind), Limit: journalLimit}
	if journalSince != "" {
		f.Since, err = time.Parse("2006-01-02", journalSince)
		if err != nil {
			return fmt.Errorf("invalid --since: %w", err)
		}
	}

	events, err := j.ListRiskEvents(cmd.Context(), f)
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}

	switch journalFormat {
	case "csv":
		return journal.WriteEventsCSV(cmd.OutOrStdout(), events)
	case "yaml":
		if len(events) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no risk events")
			return nil
		}
		return yaml.NewEncoder(cmd.OutOrStdout()).Encode(events)
	default:
		return fmt.Errorf("unknown format %q", journalFormat)
	}
}

func runJournalValidations(cmd *cobra.Command, args []string) error {
	j, err := openSQLite()
	if err != nil {
		return err
	}
	defer j.Close()

	recs, err := j.ListValidations(cmd.Context(), journalPath, journalLimit)
	if err != nil {
		return fmt.Errorf("list validations: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(recs) == 0 {
		fmt.Fprintln(out, "no validations")
		return nil
	}
	for _, r := range recs {
		mark := "✓"
		if !r.Safe {
			mark = "✗"
		}
		fmt.Fprintf(out, "%s %s %s\n", mark, r.Time.Format(time.RFC3339), r.Path)
		for _, e := range r.Errors {
			fmt.Fprintf(out, "  error: %s\n", e)
		}
		for _, w := range r.Warnings {
			fmt.Fprintf(out, "  warning: %s\n", w)
		}
	}
	return nil
}
