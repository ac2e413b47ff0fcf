package main

import (
	"fmt"
	"os"

	apperrors "globalsig/internal/errors"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	// Environment overrides are optional
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "globalsig",
		Short: "Look-elsewhere-corrected global significance from toy experiments",
		Long: `globalsig turns the fit outputs of toy experiments into local and global
significances: exceedance-rate global p-values with profile-likelihood
intervals, a fitted trial factor, and a bootstrap of the null samples.

Configuration is read from the environment (and a .env file); flags override it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newGlobalCmd(),
		newLocalCmd(),
		newFailedCmd(),
		newImportCmd(),
		newMigrateCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error [%s]: %v\n", apperrors.GetCode(err), err)
		os.Exit(apperrors.ExitCode(err))
	}
}
