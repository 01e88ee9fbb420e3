package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/civic-portal-api/internal/models"
	"github.com/noah-isme/civic-portal-api/internal/workflow"
)

func TestIssueListAppliesScopeAndFilters(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewIssueRepository(db)

	status := workflow.StatusInProgress
	filter := models.IssueFilter{
		Scope:     models.Scope{Level: models.ScopePanchayat, Jurisdiction: models.Jurisdiction{PanchayatID: "P1"}},
		Status:    &status,
		Search:    "Pipe",
		Escalated: true,
	}
	where := "WHERE 1=1 AND panchayat_id = $1 AND status = $2 AND (LOWER(title) LIKE $3 ESCAPE '\\' OR LOWER(description) LIKE $3 ESCAPE '\\') AND escalation_level > 0"

	mock.ExpectQuery(regexp.QuoteMeta("SELECT "+issueColumns+" FROM issues "+where+" ORDER BY created_at DESC LIMIT 20 OFFSET 0")).
		WithArgs("P1", status, "%pipe%").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "status", "escalation_level"}).AddRow("i1", "Pipe burst", "in_progress", 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM issues " + where)).
		WithArgs("P1", status, "%pipe%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	issues, total, err := repo.List(context.Background(), filter)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, 1, issues[0].EscalationLevel)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIssueCreateWritesCreationEvent(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewIssueRepository(db)

	now := time.Now().UTC()
	issue := &models.Issue{Title: "Broken handpump", Status: workflow.StatusSubmitted, ReporterID: "u1", CreatedAt: now, UpdatedAt: now}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO issues").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO workflow_events").
		WithArgs(sqlmock.AnyArg(), workflow.EntityIssue, sqlmock.AnyArg(), models.EventActionCreate, workflow.Status(""), workflow.StatusSubmitted, 0, "u1", models.RoleVillager, nil, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Create(context.Background(), issue, models.RoleVillager, nil))
	assert.NotEmpty(t, issue.ID)
	assert.Equal(t, 1, issue.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIssueCountEscalatedAndOverdue(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewIssueRepository(db)

	cutoff := time.Now().Add(-72 * time.Hour)
	mock.ExpectQuery(regexp.QuoteMeta("FROM issues WHERE 1=1 AND district_id = $1")).
		WithArgs("D1", cutoff).
		WillReturnRows(sqlmock.NewRows([]string{"escalated", "overdue"}).AddRow(2, 5))

	escalated, overdue, err := repo.CountEscalatedAndOverdue(context.Background(), models.Scope{Level: models.ScopeDistrict, Jurisdiction: models.Jurisdiction{DistrictID: "D1"}}, cutoff)
	require.NoError(t, err)
	assert.Equal(t, 2, escalated)
	assert.Equal(t, 5, overdue)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventTimelineOrdersOldestFirst(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEventRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at ASC, id ASC")).
		WithArgs(workflow.EntityFundRequest, "fr-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "entity_type", "entity_id", "action", "from_status", "to_status", "escalation_level", "actor_id", "actor_role", "note", "created_at"}).
			AddRow("e1", "fund_request", "fr-1", "create", "", "pending", 0, "u1", "PDO", nil, now).
			AddRow("e2", "fund_request", "fr-1", "approve", "pending", "approved", 0, "u2", "DDO", "ok", now.Add(time.Minute)))

	events, err := repo.Timeline(context.Background(), workflow.EntityFundRequest, "fr-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, workflow.ActionApprove, events[1].Action)
	require.NotNil(t, events[1].Note)
	assert.NoError(t, mock.ExpectationsWereMet())
}
