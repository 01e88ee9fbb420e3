package service

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/civic-portal-api/internal/dto"
	"github.com/noah-isme/civic-portal-api/internal/models"
	"github.com/noah-isme/civic-portal-api/internal/workflow"
	"github.com/noah-isme/civic-portal-api/pkg/export"
	"github.com/noah-isme/civic-portal-api/pkg/storage"
)

type issueExportSource interface {
	Export(ctx context.Context, filter models.IssueFilter, from, to *time.Time, limit int) ([]models.Issue, error)
	CountByStatus(ctx context.Context, scope models.Scope) ([]dto.CountByKey, error)
	CountByCategory(ctx context.Context, scope models.Scope) ([]dto.CountByKey, error)
}

type fundExportSource interface {
	Export(ctx context.Context, filter models.FundRequestFilter, from, to *time.Time, limit int) ([]models.FundRequest, error)
	TotalsByStatus(ctx context.Context, scope models.Scope) ([]dto.FundStatusTotal, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type datasetRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
	MaxRows   int
	IssueSLA  time.Duration
	Priority  workflow.PriorityPolicy
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ReportFormat
	Rows         int
	ExpiresAt    time.Time
}

// ExportService builds report datasets and persists rendered files.
type ExportService struct {
	issues  issueExportSource
	funds   fundExportSource
	storage fileStorage
	csv     datasetRenderer
	pdf     datasetRenderer
	signer  *storage.SignedURLSigner
	logger  *zap.Logger
	now     func() time.Time
	cfg     ExportConfig
}

// NewExportService constructs an ExportService. Nil renderers fall back to the defaults.
func NewExportService(issues issueExportSource, funds fundExportSource, files fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv, pdf datasetRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = 10000
	}
	if cfg.IssueSLA <= 0 {
		cfg.IssueSLA = 72 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		issues:  issues,
		funds:   funds,
		storage: files,
		csv:     csv,
		pdf:     pdf,
		signer:  signer,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
		cfg:     cfg,
	}
}

// Generate builds the dataset for job within the requester's scope and stores the rendered export.
func (s *ExportService) Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	dataset, err := s.buildDataset(ctx, job)
	if err != nil {
		return nil, err
	}

	var payload []byte
	switch job.Params.Format {
	case models.ReportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.ReportFormatPDF:
		payload, err = s.pdf.Render(dataset)
	default:
		err = fmt.Errorf("unsupported format %s", job.Params.Format)
	}
	if err != nil {
		return nil, err
	}

	relPath, err := s.storage.Save(s.buildFilename(job), payload)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}

	s.logger.Debug("report rendered",
		zap.String("job_id", job.ID),
		zap.String("type", string(job.Type)),
		zap.Int("rows", len(dataset.Rows)),
		zap.Int("bytes", len(payload)),
	)
	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/export/%s", prefix, token),
		Format:       job.Params.Format,
		Rows:         len(dataset.Rows),
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates a download token and returns the grant it carries.
func (s *ExportService) ParseToken(token string, allowExpired bool) (storage.Grant, error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) buildFilename(job *models.ReportJob) string {
	timestamp := s.now().Format("20060102_150405")
	scope := sanitizeFilename(job.Params.RequesterScope().Key())
	return fmt.Sprintf("%s_%s_%s.%s", job.Type, scope, timestamp, job.Params.Format)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func (s *ExportService) buildDataset(ctx context.Context, job *models.ReportJob) (export.Dataset, error) {
	switch job.Type {
	case models.ReportTypeIssues:
		return s.buildIssueDataset(ctx, job.Params)
	case models.ReportTypeFundRequests:
		return s.buildFundDataset(ctx, job.Params)
	case models.ReportTypeSummary:
		return s.buildSummaryDataset(ctx, job.Params)
	default:
		return export.Dataset{}, fmt.Errorf("unsupported report type %s", job.Type)
	}
}

func (s *ExportService) buildIssueDataset(ctx context.Context, params models.ReportJobParams) (export.Dataset, error) {
	filter := models.IssueFilter{Scope: params.RequesterScope()}
	if params.Status != "" {
		status := workflow.Status(params.Status)
		filter.Status = &status
		if err := resolveStatusFilter(&filter); err != nil {
			return export.Dataset{}, err
		}
	}
	if params.Category != "" {
		category := models.IssueCategory(params.Category)
		filter.Category = &category
	}
	issues, err := s.issues.Export(ctx, filter, params.From, params.To, s.cfg.MaxRows)
	if err != nil {
		return export.Dataset{}, err
	}

	now := s.now()
	dataset := export.Dataset{
		Title:    "Issue Report",
		Subtitle: reportSubtitle(params),
		Headers:  []string{"ID", "Title", "Category", "Status", "Village", "Panchayat", "Reported", "Overdue"},
	}
	for i := range issues {
		issue := &issues[i]
		issue.Decorate(models.RoleAdmin, now, s.cfg.IssueSLA)
		dataset.Append(
			issue.ID,
			issue.Title,
			string(issue.Category),
			workflow.Describe(workflow.EntityIssue, issue.DisplayStatus, params.Language).Label,
			issue.VillageID,
			issue.PanchayatID,
			formatReportTime(issue.CreatedAt),
			yesNo(issue.Overdue),
		)
	}
	return dataset, nil
}

func (s *ExportService) buildFundDataset(ctx context.Context, params models.ReportJobParams) (export.Dataset, error) {
	filter := models.FundRequestFilter{Scope: params.RequesterScope()}
	if params.Status != "" {
		status := workflow.Status(params.Status)
		filter.Status = &status
	}
	requests, err := s.funds.Export(ctx, filter, params.From, params.To, s.cfg.MaxRows)
	if err != nil {
		return export.Dataset{}, err
	}

	dataset := export.Dataset{
		Title:    "Fund Request Report",
		Subtitle: reportSubtitle(params),
		Headers:  []string{"ID", "Purpose", "Amount", "Priority", "Status", "Panchayat", "Requested", "TDO Comment"},
	}
	for _, fr := range requests {
		comment := ""
		if fr.TDOComment != nil {
			comment = *fr.TDOComment
		}
		dataset.Append(
			fr.ID,
			fr.Purpose,
			strconv.FormatFloat(fr.Amount, 'f', 2, 64),
			string(s.cfg.Priority.Classify(fr.Amount, fr.Purpose)),
			workflow.Describe(workflow.EntityFundRequest, fr.Status, params.Language).Label,
			fr.PanchayatID,
			formatReportTime(fr.CreatedAt),
			comment,
		)
	}
	return dataset, nil
}

func (s *ExportService) buildSummaryDataset(ctx context.Context, params models.ReportJobParams) (export.Dataset, error) {
	scope := params.RequesterScope()
	byStatus, err := s.issues.CountByStatus(ctx, scope)
	if err != nil {
		return export.Dataset{}, err
	}
	byCategory, err := s.issues.CountByCategory(ctx, scope)
	if err != nil {
		return export.Dataset{}, err
	}
	totals, err := s.funds.TotalsByStatus(ctx, scope)
	if err != nil {
		return export.Dataset{}, err
	}

	dataset := export.Dataset{
		Title:    "Summary Report",
		Subtitle: reportSubtitle(params),
		Headers:  []string{"Section", "Metric", "Count", "Amount"},
	}
	issueTotal := 0
	for _, row := range byStatus {
		issueTotal += row.Count
		label := workflow.Describe(workflow.EntityIssue, workflow.Status(row.Key), params.Language).Label
		dataset.Append("Issues by status", label, strconv.Itoa(row.Count), "")
	}
	dataset.Append("Issues", "Total", strconv.Itoa(issueTotal), "")
	for _, row := range byCategory {
		dataset.Append("Issues by category", row.Key, strconv.Itoa(row.Count), "")
	}
	var fundCount int
	var fundAmount float64
	for _, t := range totals {
		fundCount += t.Count
		fundAmount += t.Amount
		label := workflow.Describe(workflow.EntityFundRequest, workflow.Status(t.Status), params.Language).Label
		dataset.Append("Fund requests by status", label, strconv.Itoa(t.Count), strconv.FormatFloat(t.Amount, 'f', 2, 64))
	}
	dataset.Append("Fund requests", "Total", strconv.Itoa(fundCount), strconv.FormatFloat(fundAmount, 'f', 2, 64))
	return dataset, nil
}

func reportSubtitle(params models.ReportJobParams) string {
	parts := []string{"Scope " + params.RequesterScope().Key()}
	if params.Status != "" {
		parts = append(parts, "status "+params.Status)
	}
	if params.Category != "" {
		parts = append(parts, "category "+params.Category)
	}
	if params.From != nil {
		parts = append(parts, "from "+params.From.UTC().Format("2006-01-02"))
	}
	if params.To != nil {
		parts = append(parts, "to "+params.To.UTC().Format("2006-01-02"))
	}
	return strings.Join(parts, ", ")
}

func formatReportTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
