package service

import (
	"context"
	"database/sql"
	"errors"
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

type fundRequestStore interface {
	Create(ctx context.Context, fr *models.FundRequest, requesterRole models.UserRole, audit *models.AuditLog) error
	FindByID(ctx context.Context, id string) (*models.FundRequest, error)
	ApplyTransition(ctx context.Context, rec repository.TransitionRecord) error
	List(ctx context.Context, filter models.FundRequestFilter) ([]models.FundRequest, int, error)
}

type issueFinder interface {
	FindByID(ctx context.Context, id string) (*models.Issue, error)
}

// FundRequestService runs the TDO/DDO approval chain.
type FundRequestService struct {
	repo      fundRequestStore
	issues    issueFinder
	events    timelineStore
	policy    workflow.PriorityPolicy
	validator *validator.Validate
	workflowDeps
}

// NewFundRequestService constructs a FundRequestService.
func NewFundRequestService(repo fundRequestStore, issues issueFinder, events timelineStore, policy workflow.PriorityPolicy, validate *validator.Validate, settings WorkflowSettings, opts ...WorkflowOption) *FundRequestService {
	if validate == nil {
		validate = validator.New()
	}
	return &FundRequestService{
		repo:         repo,
		issues:       issues,
		events:       events,
		policy:       policy,
		validator:    validate,
		workflowDeps: newWorkflowDeps(settings, opts),
	}
}

// Create submits a fund request in the requester's jurisdiction.
func (s *FundRequestService) Create(ctx context.Context, actor Actor, req dto.CreateFundRequestRequest) (*models.FundRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid fund request payload")
	}
	actor, err := s.confirmActor(ctx, actor)
	if err != nil {
		return nil, err
	}
	if actor.Role != models.RolePDO && actor.Role != models.RoleVillageIncharge {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only PDOs and village in-charges can request funds")
	}
	if actor.Scope.PanchayatID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "profile has no panchayat; update your jurisdiction first")
	}

	if req.IssueID != nil && s.issues != nil {
		var linked *models.Issue
		if err := s.store(ctx, func(ctx context.Context) error {
			var err error
			linked, err = s.issues.FindByID(ctx, *req.IssueID)
			return err
		}); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrValidation, "linked issue does not exist")
			}
			return nil, loadError(err, "linked issue")
		}
		if !actor.Scope.Covers(linked.ReporterID, linked.Jurisdiction) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "linked issue is outside your jurisdiction")
		}
	}

	now := s.now()
	fr := &models.FundRequest{
		ID:           uuid.NewString(),
		IssueID:      req.IssueID,
		Amount:       req.Amount,
		Purpose:      strings.TrimSpace(req.Purpose),
		Status:       workflow.StatusPending,
		RequesterID:  actor.ID,
		Jurisdiction: actor.Scope.Jurisdiction,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	audit := &models.AuditLog{
		UserID:     &actor.ID,
		Action:     models.AuditActionFundRequestCreate,
		Resource:   "fund_request",
		ResourceID: &fr.ID,
		NewValues:  auditValues(map[string]any{"amount": fr.Amount, "purpose": fr.Purpose, "issueId": fr.IssueID}),
		IPAddress:  actor.IP,
		UserAgent:  actor.UserAgent,
	}

	if err := s.store(ctx, func(ctx context.Context) error {
		return s.repo.Create(ctx, fr, actor.Role, audit)
	}); err != nil {
		return nil, loadError(err, "fund request")
	}

	fr.Decorate(actor.Role, s.policy)
	s.logger.Info("fund request created", zap.String("fund_request_id", fr.ID), zap.Float64("amount", fr.Amount), zap.String("priority", string(fr.Priority)))
	s.afterCommit(ctx, realtime.Event{
		Type:         realtime.FundRequestCreated,
		EntityID:     fr.ID,
		Data:         fr,
		At:           now,
		OwnerID:      fr.RequesterID,
		Jurisdiction: fr.Jurisdiction,
	})
	return fr, nil
}

// List returns fund requests visible to actor. Filtering, counting and paging by
// priority all happen in the store using the service's policy.
func (s *FundRequestService) List(ctx context.Context, actor Actor, filter models.FundRequestFilter) ([]models.FundRequest, *models.Pagination, error) {
	filter.Scope = actor.Scope
	if filter.Status != nil && !workflow.ValidStatus(workflow.EntityFundRequest, *filter.Status) {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown fund request status "+string(*filter.Status))
	}
	if filter.Priority != nil && !workflow.ValidPriority(*filter.Priority) {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown priority "+string(*filter.Priority))
	}
	page, size := pageBounds(filter.Page, filter.PageSize)
	filter.PriorityPolicy = s.policy

	var (
		rows  []models.FundRequest
		total int
	)
	if err := s.store(ctx, func(ctx context.Context) error {
		var err error
		rows, total, err = s.repo.List(ctx, filter)
		return err
	}); err != nil {
		return nil, nil, loadError(err, "fund requests")
	}
	for i := range rows {
		rows[i].Decorate(actor.Role, s.policy)
	}
	if rows == nil {
		rows = []models.FundRequest{}
	}
	return rows, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one fund request. Requests outside the actor's scope are reported as not found.
func (s *FundRequestService) Get(ctx context.Context, actor Actor, id string) (*models.FundRequest, error) {
	fr, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	fr.Decorate(actor.Role, s.policy)
	return fr, nil
}

// Timeline returns the approval history of a request, oldest first.
func (s *FundRequestService) Timeline(ctx context.Context, actor Actor, id string) (*dto.TimelineResponse, error) {
	if _, err := s.load(ctx, actor, id); err != nil {
		return nil, err
	}
	var events []models.WorkflowEvent
	if err := s.store(ctx, func(ctx context.Context) error {
		var err error
		events, err = s.events.Timeline(ctx, workflow.EntityFundRequest, id)
		return err
	}); err != nil {
		return nil, loadError(err, "timeline")
	}
	if events == nil {
		events = []models.WorkflowEvent{}
	}
	return &dto.TimelineResponse{EntityID: id, Events: events}, nil
}

// Transition applies action to the fund request; see IssueService.Transition.
func (s *FundRequestService) Transition(ctx context.Context, actor Actor, id string, action workflow.Action, req dto.TransitionRequest, idempotencyKey string) (fr *models.FundRequest, replayed bool, err error) {
	ctx, span := s.startSpan(ctx, workflow.EntityFundRequest, action, id, actor)
	outcome := OutcomeApplied
	defer func() { s.finish(span, workflow.EntityFundRequest, action, outcome, err) }()

	if err = s.validator.Struct(req); err != nil {
		outcome = OutcomeInvalid
		return nil, false, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid action payload")
	}

	if actor, err = s.confirmActor(ctx, actor); err != nil {
		outcome = OutcomeForbidden
		return nil, false, err
	}

	ok, release, _ := s.reserve(ctx, "fund_request:"+id+":"+actor.ID, idempotencyKey)
	if !ok {
		outcome = OutcomeReplayed
		fr, err = s.Get(ctx, actor, id)
		return fr, err == nil, err
	}
	applied := false
	defer func() {
		if release != nil && !applied {
			release()
		}
	}()

	fr, err = s.load(ctx, actor, id)
	if err != nil {
		outcome = OutcomeError
		return nil, false, err
	}
	if err = checkVersion(req.Version, fr.Version); err != nil {
		outcome = OutcomeConflict
		return nil, false, err
	}

	now := s.now()
	note := strings.TrimSpace(req.NoteText())
	delta, terr := workflow.Transition(workflow.Request{
		Entity:  workflow.EntityFundRequest,
		Current: fr.State(),
		Action:  action,
		Actor:   actor.workflow(),
		Params:  workflow.Params{Note: note},
		Now:     now,
	})
	if terr != nil {
		var appErr *appErrors.Error
		appErr, outcome = transitionError(terr)
		return nil, false, appErr
	}

	rec := repository.TransitionRecord{
		EventID:         uuid.NewString(),
		EntityID:        fr.ID,
		ExpectedVersion: fr.Version,
		Delta:           delta,
		ActorID:         actor.ID,
		ActorRole:       actor.Role,
		Note:            note,
		At:              now,
		Audit: &models.AuditLog{
			UserID:     &actor.ID,
			Action:     models.AuditActionFundRequestTransition,
			Resource:   "fund_request",
			ResourceID: &fr.ID,
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
		s.logger.Warn("fund request transition not persisted", zap.String("fund_request_id", id), zap.String("action", string(action)), zap.Error(err))
		return nil, false, appErr
	}
	applied = true

	fr.Apply(delta, now)
	fr.Decorate(actor.Role, s.policy)
	s.logger.Info("fund request transitioned",
		zap.String("fund_request_id", id),
		zap.String("action", string(action)),
		zap.String("from", string(delta.From.Status)),
		zap.String("to", string(delta.To.Status)),
		zap.String("actor_id", actor.ID),
	)
	s.afterCommit(ctx, realtime.Event{
		Type:         realtime.FundRequestTransitioned,
		EntityID:     fr.ID,
		Data:         map[string]any{"action": action, "from": delta.From.Status, "to": delta.To.Status, "version": fr.Version},
		At:           now,
		OwnerID:      fr.RequesterID,
		Jurisdiction: fr.Jurisdiction,
	})
	return fr, false, nil
}

func (s *FundRequestService) load(ctx context.Context, actor Actor, id string) (*models.FundRequest, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "fund request not found")
	}
	var fr *models.FundRequest
	if err := s.store(ctx, func(ctx context.Context) error {
		var err error
		fr, err = s.repo.FindByID(ctx, id)
		return err
	}); err != nil {
		return nil, loadError(err, "fund request")
	}
	if !actor.Scope.Covers(fr.RequesterID, fr.Jurisdiction) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "fund request not found")
	}
	return fr, nil
}
