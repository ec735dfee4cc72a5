package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/tradeguard/loader"
	"github.com/rustyeddy/tradeguard/security"
)

var validateCmd = &cobra.Command{
	Use:   "validate <file>...",
	Short: "Validate strategy scripts before they are allowed to run",
	Long: `Check strategy scripts against the path, extension and code security rules.

Each file is resolved under the base directory, must be a .py or .kh file and
must pass static validation. Warnings are printed but do not fail a file.

Examples:
  tradeguard validate strategies/ma_cross.py
  tradeguard validate --base /srv/strategies *.py`,
	Args: cobra.MinimumNArgs(1),
	RunE: runValidate,
}

var validateBase string

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().StringVar(&validateBase, "base", "", "base directory scripts must live under (default: config or working dir)")
}

func runValidate(cmd *cobra.Command, args []string) error {
	resolver, err := newResolver(validateBase)
	if err != nil {
		return err
	}
	j, err := openJournal("")
	if err != nil {
		return err
	}
	defer j.Close()

	l := loader.New(resolver, security.NewValidator(),
		loader.WithLogger(app.log),
		loader.WithMetrics(app.metrics),
		loader.WithAuditSink(j),
	)

	results, err := l.LoadAll(cmd.Context(), args)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Fprintf(out, "✗ %s\n  %v\n", r.Path, r.Err)
			continue
		}
		fmt.Fprintf(out, "✓ %s\n", r.Path)
		for _, w := range r.Script.Outcome.Warnings {
			fmt.Fprintf(out, "  warning: %s\n", w)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d strategies refused", failed, len(results))
	}
	return nil
}
