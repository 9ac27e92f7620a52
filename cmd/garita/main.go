package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:   "garita",
	Short: "Gate intake service for logistics facilities",
	Long: `garita runs the facility-side intake service: questionnaires, submissions,
the business-partner catalog, and document recognition. The fill command walks
an operator through a questionnaire from the terminal.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the garita version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("garita version %s\n", version)
	},
}

func main() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(fillCmd)
	rootCmd.AddCommand(submissionsCmd)
	rootCmd.AddCommand(actorsCmd)
	rootCmd.AddCommand(questionnairesCmd)
	rootCmd.AddCommand(configCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
