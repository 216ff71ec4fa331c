package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-bstore/internal/services"
)

var (
	verifyDump     bool
	verifyAlloc    uint32
	verifyFixedLen uint32
)

var verifyCmd = &cobra.Command{
	Use:   "verify <file>",
	Short: "Check a database file's structural integrity",
	Long: `verify walks every page reachable from a database file's root,
validates each page's on-disk encoding and key ordering, and confirms
that every allocation unit of the file belongs to exactly one page.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := services.LoadConfig()
		if err != nil {
			return err
		}
		if verifyAlloc != 0 {
			cfg.AllocSize = verifyAlloc
		}
		if verifyFixedLen != 0 {
			cfg.FixedLen = verifyFixedLen
		}

		opts := services.VerifyOptions{
			Path:   args[0],
			Config: cfg,
		}
		if verifyDump {
			opts.Dump = cmd.OutOrStdout()
		}
		if !quiet {
			opts.Progress = func(name string, count uint64) {
				fmt.Fprintf(cmd.ErrOrStderr(), "\r%s: %d pages", name, count)
			}
		}

		report, err := services.VerifyFile(cmd.Context(), opts)
		if err != nil {
			return err
		}
		if !quiet {
			fmt.Fprintln(cmd.ErrOrStderr())
		}

		for _, problem := range report.Problems {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", problem)
		}
		if !report.Valid() {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: verification failed: %v\n", report.Path, report.Err)
			os.Exit(1)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d pages verified\n", report.Path, report.Pages)
		return nil
	},
}

func init() {
	verifyCmd.Flags().BoolVar(&verifyDump, "dump", false, "dump each page as it is verified")
	verifyCmd.Flags().Uint32Var(&verifyAlloc, "alloc-size", 0, "override the configured allocation unit")
	verifyCmd.Flags().Uint32Var(&verifyFixedLen, "fixed-len", 0, "override the configured fixed record length")
	rootCmd.AddCommand(verifyCmd)
}
