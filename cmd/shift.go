package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kozaktomas/evoface/internal/config"
	"github.com/kozaktomas/evoface/internal/shift"
	"github.com/spf13/cobra"
)

var shiftCmd = &cobra.Command{
	Use:   "shift [time]",
	Short: "Show configured shifts and how a punch time resolves",
	Long: `Prints the shifts of the attendance policy (POLICY_FILE or the built-in
default). With an RFC 3339 time argument it also shows the business date and
shift a punch at that time would be attributed to. Needs no database.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runShift,
}

func init() {
	rootCmd.AddCommand(shiftCmd)
}

func runShift(cmd *cobra.Command, args []string) error {
	policy, err := config.LoadPolicy(os.Getenv("POLICY_FILE"))
	if err != nil {
		return err
	}
	resolver, err := shift.FromPolicy(policy)
	if err != nil {
		return err
	}

	fmt.Printf("Timezone: %s, day cutoff %s\n\n", resolver.Location(), resolver.DayCutoff())
	fmt.Printf("%-10s %-14s %-13s %-13s %s\n", "CODE", "NAME", "HOURS", "RANGE", "PAID")
	for _, s := range resolver.Shifts() {
		fmt.Printf("%-10s %-14s %-13s %-13s %dh%02d\n", s.Code, s.Name,
			s.Start.String()+"-"+s.End.String(), s.RangeStart.String()+"-"+s.RangeEnd.String(),
			s.NominalPaidMinutes/60, s.NominalPaidMinutes%60)
	}

	if len(args) == 0 {
		return nil
	}
	at, err := parseInstant(args[0], time.Now())
	if err != nil {
		return err
	}

	fmt.Printf("\nPunch at %s\n", at.In(resolver.Location()).Format(time.RFC3339))
	fmt.Printf("  Business date: %s\n", resolver.BusinessDate(at).Format(time.DateOnly))
	m, err := resolver.Resolve(at)
	switch {
	case errors.Is(err, shift.ErrShiftUnresolved):
		fmt.Println("  Shift:         none (unmatched, needs manual resolution)")
	case err != nil:
		return err
	default:
		note := ""
		if m.Ambiguous {
			note = " (ranges overlap, nearest start chosen)"
		}
		fmt.Printf("  Shift:         %s%s\n", m.Shift.Code, note)
	}
	return nil
}
