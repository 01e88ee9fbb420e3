package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/civic-portal-api/internal/service"
	"github.com/noah-isme/civic-portal-api/internal/workflow"
	"github.com/noah-isme/civic-portal-api/pkg/database"
)

func TestRenderTransitionsIssueTable(t *testing.T) {
	var buf bytes.Buffer
	catalog := service.NewMetaService(0).StatusCatalog(workflow.LangEnglish)

	require.NoError(t, renderTransitions(&buf, catalog, workflow.EntityIssue))

	out := buf.String()
	assert.Contains(t, out, "issue")
	assert.Contains(t, out, "ACTION")
	assert.Contains(t, out, "escalate")
	assert.Contains(t, out, "assign")
	assert.NotContains(t, out, "disburse")
}

func TestRenderTransitionsBothEntities(t *testing.T) {
	var buf bytes.Buffer
	catalog := service.NewMetaService(0).StatusCatalog(workflow.LangEnglish)

	require.NoError(t, renderTransitions(&buf, catalog, ""))

	out := buf.String()
	assert.Contains(t, out, "fund request")
	assert.Contains(t, out, "disburse")
	assert.Less(t, strings.Index(out, "verify"), strings.Index(out, "disburse"))
}

func TestRenderTransitionsRejectsUnknownEntity(t *testing.T) {
	err := renderTransitions(&bytes.Buffer{}, service.NewMetaService(0).StatusCatalog(), workflow.Entity("grades"))
	assert.Error(t, err)
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["migrate"])
	assert.True(t, names["create-admin"])
	assert.True(t, names["transitions"])
}

func TestCreateAdminRequiresPassword(t *testing.T) {
	t.Setenv("PORTAL_ADMIN_PASSWORD", "")
	adminFlags.password = ""
	err := runCreateAdmin(createAdminCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "password required")
}

func TestRenderMigrationsShowsState(t *testing.T) {
	var buf bytes.Buffer
	applied := time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC)
	statuses := []database.MigrationStatus{
		{Migration: database.Migration{Version: 1, Name: "0001_identity"}, Applied: true, AppliedAt: applied},
		{Migration: database.Migration{Version: 2, Name: "0002_workflow"}},
	}

	require.NoError(t, renderMigrations(&buf, statuses))

	out := buf.String()
	assert.Contains(t, out, "0001_identity")
	assert.Contains(t, out, "2026-03-01 08:30:00")
	assert.Contains(t, out, "pending")
	assert.Less(t, strings.Index(out, "0001_identity"), strings.Index(out, "0002_workflow"))
}

func TestMigrateListFlag(t *testing.T) {
	flag := migrateCmd.Flags().Lookup("list")
	require.NotNil(t, flag)
	assert.Equal(t, "false", flag.DefValue)
}
