package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/noah-isme/civic-portal-api/pkg/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE:  runMigrate,
}

var migrateList bool

func init() {
	migrateCmd.Flags().BoolVar(&migrateList, "list", false, "show which migrations are applied without running any")
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	e, err := connect(cmd.Context())
	if err != nil {
		return err
	}
	defer e.Close()

	m, err := database.NewMigrator(e.db.DB)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if migrateList {
		statuses, err := m.Status(cmd.Context())
		if err != nil {
			return err
		}
		return renderMigrations(out, statuses)
	}

	applied, err := m.Up(cmd.Context())
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		fmt.Fprintln(out, "database is up to date")
		return nil
	}
	for _, name := range applied {
		fmt.Fprintf(out, "applied %s\n", name)
	}
	return nil
}

func renderMigrations(w io.Writer, statuses []database.MigrationStatus) error {
	rows := make([][]string, 0, len(statuses))
	for _, st := range statuses {
		state, at := "pending", "-"
		if st.Applied {
			state = "applied"
			at = st.AppliedAt.UTC().Format("2006-01-02 15:04:05")
		}
		rows = append(rows, []string{strconv.FormatInt(st.Version, 10), st.Name, state, at})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		Headers("VERSION", "NAME", "STATE", "APPLIED AT").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case rows[row][2] == "pending":
				return mutedStyle
			default:
				return cellStyle
			}
		})
	_, err := fmt.Fprintln(w, t.Render())
	return err
}
