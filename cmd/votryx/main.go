package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath  string
	profilePath string

	rootCmd = &cobra.Command{
		Use:   "votryx",
		Short: "Votryx - Batch voting orchestrator",
		Long: `Votryx drives parallel browser sessions against a voting page.
It schedules attempts in batches, backs off on sustained errors,
and cleans up every browser it launches.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&profilePath, "profile", "", "target profile YAML to overlay")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
