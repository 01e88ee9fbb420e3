package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/civic-portal-api/internal/dto"
	"github.com/noah-isme/civic-portal-api/internal/models"
	"github.com/noah-isme/civic-portal-api/internal/realtime"
	"github.com/noah-isme/civic-portal-api/internal/repository"
	"github.com/noah-isme/civic-portal-api/internal/workflow"
	appErrors "github.com/noah-isme/civic-portal-api/pkg/errors"
)

type issueStore interface {
	Create(ctx context.Context, issue *models.Issue, reporterRole models.UserRole, audit *models.AuditLog) error
	FindByID(ctx context.Context, id string) (*models.Issue, error)
	ApplyTransition(ctx context.Context, rec repository.TransitionRecord) error
	List(ctx context.Context, filter models.IssueFilter) ([]models.Issue, int, error)
}

type timelineStore interface {
	Timeline(ctx context.Context, entity workflow.Entity, id string) ([]models.WorkflowEvent, error)
	Recorded(ctx context.Context, eventID string) (bool, error)
}

// IssueService implements the issue lifecycle on top of the workflow engine.
type IssueService struct {
	repo      issueStore
	events    timelineStore
	validator *validator.Validate
	workflowDeps
}

// NewIssueService constructs an IssueService.
func NewIssueService(repo issueStore, events timelineStore, validate *validator.Validate, settings WorkflowSettings, opts ...WorkflowOption) *IssueService {
	if validate == nil {
		validate = validator.New()
	}
	return &IssueService{
		repo:         repo,
		events:       events,
		validator:    validate,
		workflowDeps: newWorkflowDeps(settings, opts),
	}
}

// Create files a new issue in the reporter's jurisdiction.
func (s *IssueService) Create(ctx context.Context, actor Actor, req dto.CreateIssueRequest) (*models.Issue, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid issue payload")
	}
	actor, err := s.confirmActor(ctx, actor)
	if err != nil {
		return nil, err
	}
	if actor.Role != models.RoleVillager && actor.Role != models.RoleVillageIncharge {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only villagers and village in-charges can report issues")
	}
	if actor.Scope.VillageID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "profile has no village; update your jurisdiction first")
	}

	now := s.now()
	issue := &models.Issue{
		ID:           uuid.NewString(),
		Title:        strings.TrimSpace(req.Title),
		Description:  strings.TrimSpace(req.Description),
		Category:     req.Category,
		Status:       workflow.StatusSubmitted,
		ReporterID:   actor.ID,
		Location:     strings.TrimSpace(req.Location),
		Latitude:     req.Latitude,
		Longitude:    req.Longitude,
		Jurisdiction: actor.Scope.Jurisdiction,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	audit := &models.AuditLog{
		UserID:     &actor.ID,
		Action:     models.AuditActionIssueCreate,
		Resource:   "issue",
		ResourceID: &issue.ID,
		NewValues:  auditValues(map[string]any{"title": issue.Title, "category": issue.Category, "status": issue.Status}),
		IPAddress:  actor.IP,
		UserAgent:  actor.UserAgent,
	}

	if err := s.store(ctx, func(ctx context.Context) error {
		return s.repo.Create(ctx, issue, actor.Role, audit)
	}); err != nil {
		return nil, loadError(err, "issue")
	}

	s.logger.Info("issue created", zap.String("issue_id", issue.ID), zap.String("reporter_id", actor.ID), zap.String("category", string(issue.Category)))
	s.afterCommit(ctx, realtime.Event{
		Type:         realtime.IssueCreated,
		EntityID:     issue.ID,
		Data:         issue,
		At:           now,
		OwnerID:      issue.ReporterID,
		Jurisdiction: issue.Jurisdiction,
	})
	issue.Decorate(actor.Role, now, s.settings.IssueSLA)
	return issue, nil
}

// List returns the issues visible to actor.
func (s *IssueService) List(ctx context.Context, actor Actor, filter models.IssueFilter) ([]models.Issue, *models.Pagination, error) {
	filter.Scope = actor.Scope
	if err := resolveStatusFilter(&filter); err != nil {
		return nil, nil, err
	}
	now := s.now()
	if filter.Overdue && s.settings.IssueSLA > 0 {
		cutoff := now.Add(-s.settings.IssueSLA)
		filter.OverdueBefore = &cutoff
	}

	var (
		issues []models.Issue
		total  int
	)
	if err := s.store(ctx, func(ctx context.Context) error {
		var err error
		issues, total, err = s.repo.List(ctx, filter)
		return err
	}); err != nil {
		return nil, nil, loadError(err, "issues")
	}

	for i := range issues {
		issues[i].Decorate(actor.Role, now, s.settings.IssueSLA)
	}
	if issues == nil {
		issues = []models.Issue{}
	}
	page, size := pageBounds(filter.Page, filter.PageSize)
	return issues, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// resolveStatusFilter turns a display status into the stored escalation level it stands for.
func resolveStatusFilter(filter *models.IssueFilter) error {
	if filter.Status == nil {
		return nil
	}
	switch *filter.Status {
	case workflow.StatusEscalatedToTDO, workflow.StatusEscalatedToDDO:
		level := 1
		if *filter.Status == workflow.StatusEscalatedToDDO {
			level = workflow.MaxEscalationLevel
		}
		filter.EscalationLevel = &level
		filter.Status = nil
	default:
		if !workflow.ValidStatus(workflow.EntityIssue, *filter.Status) {
			return appErrors.Clone(appErrors.ErrValidation, "unknown issue status "+string(*filter.Status))
		}
	}
	return nil
}

// Get returns one issue. Issues outside the actor's scope are reported as not found.
func (s *IssueService) Get(ctx context.Context, actor Actor, id string) (*models.Issue, error) {
	issue, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	issue.Decorate(actor.Role, s.now(), s.settings.IssueSLA)
	return issue, nil
}

// Timeline returns the transition history of an issue, oldest first.
func (s *IssueService) Timeline(ctx context.Context, actor Actor, id string) (*dto.TimelineResponse, error) {
	if _, err := s.load(ctx, actor, id); err != nil {
		return nil, err
	}
	var events []models.WorkflowEvent
	if err := s.store(ctx, func(ctx context.Context) error {
		var err error
		events, err = s.events.Timeline(ctx, workflow.EntityIssue, id)
		return err
	}); err != nil {
		return nil, loadError(err, "timeline")
	}
	if events == nil {
		events = []models.WorkflowEvent{}
	}
	return &dto.TimelineResponse{EntityID: id, Events: events}, nil
}

// Transition applies action to the issue. The boolean result is true when an
// Idempotency-Key replay returned the current state without applying anything.
func (s *IssueService) Transition(ctx context.Context, actor Actor, id string, action workflow.Action, req dto.TransitionRequest, idempotencyKey string) (issue *models.Issue, replayed bool, err error) {
	ctx, span := s.startSpan(ctx, workflow.EntityIssue, action, id, actor)
	outcome := OutcomeApplied
	defer func() { s.finish(span, workflow.EntityIssue, action, outcome, err) }()

	if err = s.validator.Struct(req); err != nil {
		outcome = OutcomeInvalid
		return nil, false, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid action payload")
	}

	if actor, err = s.confirmActor(ctx, actor); err != nil {
		outcome = OutcomeForbidden
		return nil, false, err
	}

	ok, release, _ := s.reserve(ctx, "issue:"+id+":"+actor.ID, idempotencyKey)
	if !ok {
		outcome = OutcomeReplayed
		issue, err = s.Get(ctx, actor, id)
		return issue, err == nil, err
	}
	applied := false
	defer func() {
		if release != nil && !applied {
			release()
		}
	}()

	issue, err = s.load(ctx, actor, id)
	if err != nil {
		outcome = OutcomeError
		return nil, false, err
	}
	if err = checkVersion(req.Version, issue.Version); err != nil {
		outcome = OutcomeConflict
		return nil, false, err
	}

	now := s.now()
	delta, terr := workflow.Transition(workflow.Request{
		Entity:  workflow.EntityIssue,
		Current: issue.State(),
		Action:  action,
		Actor:   actor.workflow(),
		Params:  workflow.Params{WorkerID: strings.TrimSpace(req.WorkerID), Note: strings.TrimSpace(req.NoteText())},
		Now:     now,
	})
	if terr != nil {
		var appErr *appErrors.Error
		appErr, outcome = transitionError(terr)
		return nil, false, appErr
	}

	rec := repository.TransitionRecord{
		EventID:         uuid.NewString(),
		EntityID:        issue.ID,
		ExpectedVersion: issue.Version,
		Delta:           delta,
		ActorID:         actor.ID,
		ActorRole:       actor.Role,
		Note:            strings.TrimSpace(req.NoteText()),
		At:              now,
		Audit: &models.AuditLog{
			UserID:     &actor.ID,
			Action:     models.AuditActionIssueTransition,
			Resource:   "issue",
			ResourceID: &issue.ID,
			OldValues:  auditValues(delta.From),
			NewValues:  auditValues(map[string]any{"action": action, "state": delta.To, "fields": delta.Fields}),
			IPAddress:  actor.IP,
			UserAgent:  actor.UserAgent,
		},
	}
	err = s.store(ctx, func(ctx context.Context) error { return s.repo.ApplyTransition(ctx, rec) })
	if err != nil && s.settleCommit(ctx, s.events, rec.EventID, err) {
		err = nil
	}
	if err != nil {
		var appErr *appErrors.Error
		appErr, outcome = transitionError(err)
		s.logger.Warn("issue transition not persisted", zap.String("issue_id", id), zap.String("action", string(action)), zap.Error(err))
		return nil, false, appErr
	}
	applied = true

	issue.Apply(delta, now)
	issue.Decorate(actor.Role, now, s.settings.IssueSLA)
	s.logger.Info("issue transitioned",
		zap.String("issue_id", id),
		zap.String("action", string(action)),
		zap.String("from", string(delta.From.Status)),
		zap.String("to", string(delta.To.Status)),
		zap.Int("escalation_level", delta.To.EscalationLevel),
		zap.String("actor_id", actor.ID),
	)
	s.afterCommit(ctx, realtime.Event{
		Type:         realtime.IssueTransitioned,
		EntityID:     issue.ID,
		Data:         map[string]any{"action": action, "from": delta.From, "to": delta.To, "displayStatus": issue.DisplayStatus, "version": issue.Version},
		At:           now,
		OwnerID:      issue.ReporterID,
		Jurisdiction: issue.Jurisdiction,
	})
	return issue, false, nil
}

func (s *IssueService) load(ctx context.Context, actor Actor, id string) (*models.Issue, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "issue not found")
	}
	var issue *models.Issue
	if err := s.store(ctx, func(ctx context.Context) error {
		var err error
		issue, err = s.repo.FindByID(ctx, id)
		return err
	}); err != nil {
		return nil, loadError(err, "issue")
	}
	if !actor.Scope.Covers(issue.ReporterID, issue.Jurisdiction) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "issue not found")
	}
	return issue, nil
}

// pageBounds mirrors the repository's paging defaults for response metadata.
func pageBounds(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	if size > 100 {
		size = 100
	}
	return page, size
}
