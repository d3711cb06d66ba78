package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var finalizeCmd = &cobra.Command{
	Use:   "finalize",
	Short: "Finalize daily records of closed business days",
	Long: `Marks every open or closed record whose business day has ended as finalized.
A business day ends at the day cutoff of the following calendar day. The
command is idempotent; the server also runs it periodically.`,
	RunE: runFinalize,
}

func init() {
	rootCmd.AddCommand(finalizeCmd)
	finalizeCmd.Flags().String("at", "", "Evaluate as of this RFC 3339 time (default now)")
}

func runFinalize(cmd *cobra.Command, args []string) error {
	at, err := parseInstant(mustGetString(cmd, "at"), time.Now())
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.pipeline.Finalize(ctx, at)
	if err != nil {
		return err
	}
	fmt.Printf("Finalized %d daily records\n", n)
	return nil
}
