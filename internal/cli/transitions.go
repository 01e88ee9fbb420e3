package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/noah-isme/civic-portal-api/internal/dto"
	"github.com/noah-isme/civic-portal-api/internal/service"
	"github.com/noah-isme/civic-portal-api/internal/workflow"
)

var transitionsCmd = &cobra.Command{
	Use:   "transitions",
	Short: "Print the workflow transition tables",
	Long:  `Show which roles may apply each action, from which statuses, and the resulting status.`,
	RunE:  runTransitions,
}

var transitionsFlags struct {
	entity string
	lang   string
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#2563eb")).MarginTop(1)
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	mutedStyle  = cellStyle.Foreground(lipgloss.Color("#94a3b8"))
)

func init() {
	transitionsCmd.Flags().StringVar(&transitionsFlags.entity, "entity", "", "issue or fund_request (default both)")
	transitionsCmd.Flags().StringVar(&transitionsFlags.lang, "lang", workflow.LangEnglish, "label language: en, kn or hi")
	rootCmd.AddCommand(transitionsCmd)
}

func runTransitions(cmd *cobra.Command, args []string) error {
	catalog := service.NewMetaService(0).StatusCatalog(transitionsFlags.lang)
	return renderTransitions(cmd.OutOrStdout(), catalog, workflow.Entity(transitionsFlags.entity))
}

func renderTransitions(w io.Writer, catalog *dto.StatusCatalogResponse, only workflow.Entity) error {
	labels := make(map[workflow.Entity]map[workflow.Status]string)
	for _, set := range [][]workflow.StatusLabel{catalog.Issue, catalog.FundRequest} {
		for _, l := range set {
			if labels[l.Entity] == nil {
				labels[l.Entity] = make(map[workflow.Status]string)
			}
			labels[l.Entity][l.Status] = l.Label
		}
	}

	entities := []workflow.Entity{workflow.EntityIssue, workflow.EntityFundRequest}
	if only != "" {
		if only != workflow.EntityIssue && only != workflow.EntityFundRequest {
			return fmt.Errorf("unknown entity %q", only)
		}
		entities = []workflow.Entity{only}
	}

	for _, entity := range entities {
		var rows [][]string
		for _, rule := range catalog.Transitions {
			if rule.Entity != entity {
				continue
			}
			rows = append(rows, []string{
				string(rule.Action),
				joinStatuses(rule.From, labels[entity]),
				labelOr(rule.To, labels[entity]),
				joinRoles(rule.Roles, rule.LevelScoped),
			})
		}

		t := table.New().
			Border(lipgloss.RoundedBorder()).
			Headers("ACTION", "FROM", "TO", "ROLES").
			Rows(rows...).
			StyleFunc(func(row, col int) lipgloss.Style {
				switch {
				case row == table.HeaderRow:
					return headerStyle
				case col == 2 && rows[row][col] == "-":
					return mutedStyle
				default:
					return cellStyle
				}
			})

		if _, err := fmt.Fprintln(w, titleStyle.Render(strings.ReplaceAll(string(entity), "_", " "))); err != nil {
			return err
		}
		if _, err := fmt.Fprintln(w, t.Render()); err != nil {
			return err
		}
	}
	return nil
}

func joinStatuses(statuses []workflow.Status, labels map[workflow.Status]string) string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, labelOr(s, labels))
	}
	return strings.Join(out, ", ")
}

// labelOr renders a status by its label. An empty status means the action keeps the current one.
func labelOr(s workflow.Status, labels map[workflow.Status]string) string {
	if s == "" {
		return "-"
	}
	if l, ok := labels[s]; ok {
		return l
	}
	return string(s)
}

func joinRoles(roles []workflow.Role, levelScoped bool) string {
	if levelScoped {
		return "by escalation level"
	}
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		out = append(out, string(r))
	}
	return strings.Join(out, ", ")
}
