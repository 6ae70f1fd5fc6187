// Package cmd defines and implements the CLI commands for the siftcrawl
// executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "siftcrawl",
		Short: "An objective-driven web crawler guided by a local LLM",
		Long: `siftcrawl crawls a single website toward a free-text objective.
It scouts the site on a small page budget, learns which URL shapes carry
relevant content, and spends the rest of the budget on the pages an
inference model ranks highest. Extracted content and a synthesized answer
are written as JSON and Markdown reports.`,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); env vars with the SIFTCRAWL_ prefix override")

	cmd.AddCommand(newCrawlCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
