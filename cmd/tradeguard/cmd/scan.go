package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/tradeguard/security"
)

var scanCmd = &cobra.Command{
	Use:   "scan <file>",
	Short: "Report risky constructs in downloaded source",
	Long: `Scan a file for risky constructs such as eval calls, subprocess use or
file writes. The scan is advisory and never fails on findings.`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}
	printIssues(cmd, args[0], security.ScanForRisk(data))
	return nil
}

func printIssues(cmd *cobra.Command, name string, issues []string) {
	out := cmd.OutOrStdout()
	if len(issues) == 0 {
		fmt.Fprintf(out, "%s: no risky constructs found\n", name)
		return
	}
	fmt.Fprintf(out, "%s: %d risky construct(s)\n", name, len(issues))
	for _, issue := range issues {
		fmt.Fprintf(out, "  - %s\n", issue)
	}
}
