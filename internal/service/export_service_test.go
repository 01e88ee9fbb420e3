package service

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/civic-portal-api/internal/dto"
	"github.com/noah-isme/civic-portal-api/internal/models"
	"github.com/noah-isme/civic-portal-api/internal/workflow"
	"github.com/noah-isme/civic-portal-api/pkg/storage"
)

type issueExportStub struct {
	rows       []models.Issue
	lastFilter models.IssueFilter
}

func (s *issueExportStub) Export(_ context.Context, filter models.IssueFilter, _, _ *time.Time, _ int) ([]models.Issue, error) {
	s.lastFilter = filter
	return s.rows, nil
}

func (s *issueExportStub) CountByStatus(context.Context, models.Scope) ([]dto.CountByKey, error) {
	return []dto.CountByKey{{Key: "submitted", Count: 3}, {Key: "escalated_to_tdo", Count: 1}}, nil
}

func (s *issueExportStub) CountByCategory(context.Context, models.Scope) ([]dto.CountByKey, error) {
	return []dto.CountByKey{{Key: "ROAD", Count: 4}}, nil
}

type fundExportStub struct {
	rows       []models.FundRequest
	lastFilter models.FundRequestFilter
}

func (s *fundExportStub) Export(_ context.Context, filter models.FundRequestFilter, _, _ *time.Time, _ int) ([]models.FundRequest, error) {
	s.lastFilter = filter
	return s.rows, nil
}

func (s *fundExportStub) TotalsByStatus(context.Context, models.Scope) ([]dto.FundStatusTotal, error) {
	return []dto.FundStatusTotal{{Status: "pending", Count: 2, Amount: 1500}}, nil
}

func newExportServiceForTest(t *testing.T) (*ExportService, *issueExportStub, *fundExportStub) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("secret", time.Hour)
	issues := &issueExportStub{rows: []models.Issue{seededIssue(workflow.StatusPDOAssigned, 1)}}
	comment := "urgent"
	funds := &fundExportStub{rows: []models.FundRequest{{
		ID: testFundID, Purpose: "Flood relief", Amount: 25000, Status: workflow.StatusPending,
		Jurisdiction: villageJ, CreatedAt: fixedNow, TDOComment: &comment,
	}}}
	cfg := ExportConfig{APIPrefix: "/api/v1", ResultTTL: time.Hour}
	svc := NewExportService(issues, funds, store, signer, cfg, zap.NewNop(), nil, nil)
	return svc, issues, funds
}

func scopedJob(id string, typ models.ReportType, format models.ReportFormat, actor Actor) *models.ReportJob {
	return &models.ReportJob{
		ID:   id,
		Type: typ,
		Params: models.ReportJobParams{
			Format:     format,
			ScopeLevel: actor.Scope.Level,
			ScopeUser:  actor.Scope.UserID,
			Scope:      actor.Scope.Jurisdiction,
			Language:   workflow.LangEnglish,
		},
		CreatedBy: actor.ID,
	}
}

func readExport(t *testing.T, svc *ExportService, result *ExportResult) string {
	t.Helper()
	file, err := svc.Open(result.RelativePath)
	require.NoError(t, err)
	defer file.Close()
	raw, err := io.ReadAll(file)
	require.NoError(t, err)
	return string(raw)
}

func TestExportServiceGenerateIssuesCSV(t *testing.T) {
	svc, issues, _ := newExportServiceForTest(t)
	job := scopedJob("job-1", models.ReportTypeIssues, models.ReportFormatCSV, pdoA)
	job.Params.Status = string(workflow.StatusEscalatedToTDO)

	result, err := svc.Generate(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Rows)
	assert.True(t, strings.HasPrefix(result.URL, "/api/v1/export/"))
	assert.Contains(t, result.RelativePath, "issues_panchayat-P1_")

	// The requester's scope and the display status both reach the store filter.
	assert.Equal(t, pdoA.Scope, issues.lastFilter.Scope)
	assert.Nil(t, issues.lastFilter.Status)
	require.NotNil(t, issues.lastFilter.EscalationLevel)
	assert.Equal(t, 1, *issues.lastFilter.EscalationLevel)

	body := readExport(t, svc, result)
	assert.Contains(t, body, "ID,Title,Category,Status,Village,Panchayat,Reported,Overdue")
	assert.Contains(t, body, "Broken culvert,ROAD,Escalated to TDO,V1,P1")
}

func TestExportServiceGenerateFundRequestsPDF(t *testing.T) {
	svc, _, funds := newExportServiceForTest(t)
	job := scopedJob("job-2", models.ReportTypeFundRequests, models.ReportFormatPDF, ddoA)

	result, err := svc.Generate(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, models.ReportFormatPDF, result.Format)
	assert.Equal(t, models.ScopeDistrict, funds.lastFilter.Scope.Level)
	assert.True(t, strings.HasPrefix(readExport(t, svc, result), "%PDF-"))
}

func TestExportServiceGenerateSummary(t *testing.T) {
	svc, _, _ := newExportServiceForTest(t)
	job := scopedJob("job-3", models.ReportTypeSummary, models.ReportFormatCSV, testAdmin)

	result, err := svc.Generate(context.Background(), job)
	require.NoError(t, err)
	body := readExport(t, svc, result)
	assert.Contains(t, body, "Issues,Total,4,")
	assert.Contains(t, body, "Issues by category,ROAD,4,")
	assert.Contains(t, body, "Fund requests,Total,2,1500.00")
}

func TestExportServiceRejectsUnknownType(t *testing.T) {
	svc, _, _ := newExportServiceForTest(t)
	_, err := svc.Generate(context.Background(), scopedJob("job-4", models.ReportType("grades"), models.ReportFormatCSV, pdoA))
	assert.Error(t, err)

	_, err = svc.Generate(context.Background(), scopedJob("job-5", models.ReportTypeIssues, models.ReportFormat("xlsx"), pdoA))
	assert.Error(t, err)
}

func TestExportServiceParseToken(t *testing.T) {
	svc, _, _ := newExportServiceForTest(t)
	result, err := svc.Generate(context.Background(), scopedJob("job-6", models.ReportTypeIssues, models.ReportFormatCSV, pdoA))
	require.NoError(t, err)

	grant, err := svc.ParseToken(result.Token, false)
	require.NoError(t, err)
	assert.Equal(t, "job-6", grant.JobID)
	assert.Equal(t, result.RelativePath, grant.Path)

	_, err = svc.ParseToken(result.Token+"x", false)
	assert.Error(t, err)
}
