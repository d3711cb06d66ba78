package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kozaktomas/evoface/internal/database"
	"github.com/spf13/cobra"
)

var employeeCmd = &cobra.Command{
	Use:   "employee",
	Short: "Manage registered employees",
}

var employeeAddCmd = &cobra.Command{
	Use:   "add <id> <name>",
	Short: "Register an employee with a first face embedding",
	Long: `Registers (or re-registers) an employee. The embedding is read from
--embedding-file (a JSON array of numbers) or --embedding (comma-separated).
Re-registering replaces every template of the employee.`,
	Args: cobra.ExactArgs(2),
	RunE: runEmployeeAdd,
}

var employeeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered employees",
	RunE:  runEmployeeList,
}

var employeeRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove an employee with templates and punches",
	Args:  cobra.ExactArgs(1),
	RunE:  runEmployeeRemove,
}

func init() {
	rootCmd.AddCommand(employeeCmd)
	employeeCmd.AddCommand(employeeAddCmd, employeeListCmd, employeeRemoveCmd)

	employeeAddCmd.Flags().String("embedding", "", "Comma-separated embedding components")
	employeeAddCmd.Flags().String("embedding-file", "", "Path to a JSON array with the embedding")
	employeeAddCmd.Flags().String("shift", "", "Default shift code (empty for automatic resolution)")

	employeeListCmd.Flags().String("search", "", "Only employees whose name contains this text")
	employeeListCmd.Flags().Bool("json", false, "Output as JSON")
}

// parseEmbedding parses comma-separated float components.
func parseEmbedding(s string) ([]float32, error) {
	parts := strings.Split(s, ",")
	out := make([]float32, 0, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("embedding component %d: %w", i, err)
		}
		out = append(out, float32(v))
	}
	return out, nil
}

// readEmbeddingFile reads a JSON array of numbers.
func readEmbeddingFile(path string) ([]float32, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is given by the operator
	if err != nil {
		return nil, fmt.Errorf("reading embedding file: %w", err)
	}
	var out []float32
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parsing embedding file: %w", err)
	}
	return out, nil
}

func embeddingFromFlags(cmd *cobra.Command) ([]float32, error) {
	inline := mustGetString(cmd, "embedding")
	file := mustGetString(cmd, "embedding-file")
	switch {
	case inline != "" && file != "":
		return nil, fmt.Errorf("use either --embedding or --embedding-file, not both")
	case file != "":
		return readEmbeddingFile(file)
	case inline != "":
		return parseEmbedding(inline)
	default:
		return nil, fmt.Errorf("an embedding is required (--embedding or --embedding-file)")
	}
}

func runEmployeeAdd(cmd *cobra.Command, args []string) error {
	embedding, err := embeddingFromFlags(cmd)
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	e := database.Employee{ID: args[0], Name: args[1], DefaultShift: mustGetString(cmd, "shift"), CreatedAt: time.Now()}
	if err := a.pipeline.RegisterEmployee(ctx, e, embedding); err != nil {
		return fmt.Errorf("failed to register employee: %w", err)
	}
	fmt.Printf("Registered %s (%s) with a %d-dimensional template\n", e.ID, e.Name, len(embedding))
	return nil
}

func runEmployeeList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var employees []database.Employee
	if q := mustGetString(cmd, "search"); q != "" {
		employees, err = a.repos.Employees.SearchEmployees(ctx, q)
	} else {
		employees, err = a.repos.Employees.ListEmployees(ctx)
	}
	if err != nil {
		return fmt.Errorf("failed to list employees: %w", err)
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(employees)
	}
	if len(employees) == 0 {
		fmt.Println("No employees registered.")
		return nil
	}
	fmt.Printf("%-20s %-30s %-10s %s\n", "ID", "NAME", "SHIFT", "REGISTERED")
	for _, e := range employees {
		shiftCode := e.DefaultShift
		if shiftCode == "" {
			shiftCode = "-"
		}
		fmt.Printf("%-20s %-30s %-10s %s\n", e.ID, e.Name, shiftCode, e.CreatedAt.Format(time.DateOnly))
	}
	return nil
}

func runEmployeeRemove(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.pipeline.RemoveEmployee(ctx, args[0]); err != nil {
		return err
	}
	fmt.Printf("Removed %s\n", args[0])
	return nil
}
