package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "evoface",
	Short: "Face recognition attendance with self-evolving templates",
	Long: `Evoface turns face detections from capture devices into attendance punches.
Each employee is represented by a template that slowly adapts to their
appearance; punches are attributed to shifts and aggregated into daily
work-hour records.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
