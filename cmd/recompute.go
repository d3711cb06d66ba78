package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/kozaktomas/evoface/internal/constants"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var recomputeCmd = &cobra.Command{
	Use:   "recompute",
	Short: "Rebuild daily records from stored punches",
	Long: `Recomputes daily attendance records from the raw punch trail, for example
after changing break or late rules in the policy. Finalized records whose
punches are unchanged are left as they are; finalized records with new
punches are skipped with a warning.`,
	RunE: runRecompute,
}

func init() {
	rootCmd.AddCommand(recomputeCmd)

	recomputeCmd.Flags().String("employee", "", "Only this employee (default all)")
	recomputeCmd.Flags().String("from", "", "First business date, YYYY-MM-DD (default 31 days before --to)")
	recomputeCmd.Flags().String("to", "", "Last business date, YYYY-MM-DD (default today)")
}

func runRecompute(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	to, err := parseDay(mustGetString(cmd, "to"), a.pipeline.Shifts().BusinessDate(time.Now()))
	if err != nil {
		return err
	}
	from, err := parseDay(mustGetString(cmd, "from"), to.AddDate(0, 0, -(constants.DefaultAttendanceDays-1)))
	if err != nil {
		return err
	}
	if from.After(to) {
		return fmt.Errorf("--from must not be after --to")
	}

	ids := []string{}
	if id := mustGetString(cmd, "employee"); id != "" {
		ids = append(ids, id)
	} else {
		employees, err := a.repos.Employees.ListEmployees(ctx)
		if err != nil {
			return fmt.Errorf("failed to list employees: %w", err)
		}
		for _, e := range employees {
			ids = append(ids, e.ID)
		}
	}

	bar := progressbar.NewOptions(len(ids),
		progressbar.OptionSetDescription("Recomputing"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("employees"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionFullWidth(),
	)

	total := 0
	for _, id := range ids {
		n, err := a.pipeline.Recompute(ctx, id, from, to)
		if err != nil {
			return fmt.Errorf("recomputing %s: %w", id, err)
		}
		total += n
		_ = bar.Add(1)
	}
	_ = bar.Finish()

	fmt.Printf("\nRecomputed %d daily records for %d employees (%s to %s)\n",
		total, len(ids), from.Format(time.DateOnly), to.Format(time.DateOnly))
	return nil
}
