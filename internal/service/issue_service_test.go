package service

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/civic-portal-api/internal/dto"
	"github.com/noah-isme/civic-portal-api/internal/models"
	"github.com/noah-isme/civic-portal-api/internal/realtime"
	"github.com/noah-isme/civic-portal-api/internal/repository"
	"github.com/noah-isme/civic-portal-api/internal/workflow"
	"github.com/noah-isme/civic-portal-api/pkg/database"
	appErrors "github.com/noah-isme/civic-portal-api/pkg/errors"
)

func seededIssue(status workflow.Status, level int) models.Issue {
	return models.Issue{
		ID:              testIssue,
		Title:           "Broken culvert",
		Category:        models.IssueCategoryRoad,
		Status:          status,
		EscalationLevel: level,
		ReporterID:      villagerA.ID,
		Jurisdiction:    villageJ,
		Version:         3,
		CreatedAt:       fixedNow.Add(-time.Hour),
		UpdatedAt:       fixedNow.Add(-time.Hour),
	}
}

func newTestIssueService(store *memIssueStore, opts ...WorkflowOption) *IssueService {
	opts = append([]WorkflowOption{WithClock(fixedClock)}, opts...)
	return NewIssueService(store, &stubTimeline{}, validator.New(), WorkflowSettings{IssueSLA: 72 * time.Hour}, opts...)
}

func TestIssueServiceCreate(t *testing.T) {
	store := newMemIssueStore()
	pub := &recordingPublisher{}
	cache := newMemCache()
	require.NoError(t, cache.Set(context.Background(), "dash:VILLAGER:user:x", 1, time.Minute))
	svc := newTestIssueService(store, WithPublisher(pub), WithCache(NewCacheService(cache, nil, time.Minute, nil, true)))

	issue, err := svc.Create(context.Background(), villagerA, dto.CreateIssueRequest{
		Title:       "  No water since Monday ",
		Description: "Tank pump failed",
		Category:    models.IssueCategoryWater,
	})
	require.NoError(t, err)
	assert.Equal(t, "No water since Monday", issue.Title)
	assert.Equal(t, workflow.StatusSubmitted, issue.Status)
	assert.Equal(t, 1, issue.Version)
	assert.Equal(t, villageJ, issue.Jurisdiction)
	assert.Equal(t, workflow.StatusSubmitted, issue.DisplayStatus)
	assert.Empty(t, issue.AllowedActions)

	require.Len(t, store.audits, 1)
	assert.Equal(t, models.AuditActionIssueCreate, store.audits[0].Action)
	require.Len(t, pub.events, 1)
	assert.Equal(t, realtime.IssueCreated, pub.events[0].Type)
	assert.Equal(t, 0, cache.size())
}

func TestIssueServiceCreateRejectsAuthorities(t *testing.T) {
	svc := newTestIssueService(newMemIssueStore())
	_, err := svc.Create(context.Background(), pdoA, dto.CreateIssueRequest{Title: "x", Description: "y", Category: models.IssueCategoryRoad})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	noVillage := villagerA
	noVillage.Scope.VillageID = ""
	_, err = svc.Create(context.Background(), noVillage, dto.CreateIssueRequest{Title: "x", Description: "y", Category: models.IssueCategoryRoad})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Create(context.Background(), villagerA, dto.CreateIssueRequest{Title: "x", Description: "y", Category: "POTHOLE"})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestIssueServiceGetOutsideScopeIsNotFound(t *testing.T) {
	svc := newTestIssueService(newMemIssueStore(seededIssue(workflow.StatusSubmitted, 0)))

	issue, err := svc.Get(context.Background(), pdoA, testIssue)
	require.NoError(t, err)
	assert.Equal(t, testIssue, issue.ID)

	_, err = svc.Get(context.Background(), outsiderA, testIssue)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	_, err = svc.Get(context.Background(), pdoA, "not-a-uuid")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestIssueServiceListMapsDisplayStatus(t *testing.T) {
	store := newMemIssueStore()
	store.listResults = []models.Issue{seededIssue(workflow.StatusInProgress, 1)}
	svc := newTestIssueService(store)

	status := workflow.StatusEscalatedToTDO
	issues, page, err := svc.List(context.Background(), tdoA, models.IssueFilter{Status: &status, Overdue: true})
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, workflow.StatusEscalatedToTDO, issues[0].DisplayStatus)
	assert.Contains(t, issues[0].AllowedActions, workflow.ActionEscalate)
	assert.Equal(t, 1, page.TotalCount)

	assert.Nil(t, store.lastFilter.Status)
	require.NotNil(t, store.lastFilter.EscalationLevel)
	assert.Equal(t, 1, *store.lastFilter.EscalationLevel)
	require.NotNil(t, store.lastFilter.OverdueBefore)
	assert.Equal(t, fixedNow.Add(-72*time.Hour), *store.lastFilter.OverdueBefore)
	assert.Equal(t, models.ScopeTaluk, store.lastFilter.Scope.Level)

	bogus := workflow.Status("lost")
	_, _, err = svc.List(context.Background(), tdoA, models.IssueFilter{Status: &bogus})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestIssueServiceTransitionHappyPath(t *testing.T) {
	store := newMemIssueStore(seededIssue(workflow.StatusVIVerified, 0))
	pub := &recordingPublisher{}
	svc := newTestIssueService(store, WithPublisher(pub))

	issue, replayed, err := svc.Transition(context.Background(), pdoA, testIssue, workflow.ActionAssign, dto.TransitionRequest{WorkerID: " w-7 "}, "")
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.Equal(t, workflow.StatusPDOAssigned, issue.Status)
	assert.Equal(t, 4, issue.Version)
	require.NotNil(t, issue.AssignedWorkerID)
	assert.Equal(t, "w-7", *issue.AssignedWorkerID)
	assert.ElementsMatch(t, []workflow.Action{workflow.ActionStart, workflow.ActionReassign, workflow.ActionEscalate, workflow.ActionResolve}, issue.AllowedActions)

	require.Len(t, store.records, 1)
	rec := store.records[0]
	assert.Equal(t, 3, rec.ExpectedVersion)
	assert.Equal(t, models.RolePDO, rec.ActorRole)
	assert.Equal(t, models.AuditActionIssueTransition, rec.Audit.Action)
	require.Len(t, pub.events, 1)
	assert.Equal(t, realtime.IssueTransitioned, pub.events[0].Type)
	assert.Equal(t, villageJ, pub.events[0].Jurisdiction)
}

func TestIssueServiceTransitionErrors(t *testing.T) {
	cases := []struct {
		name   string
		from   workflow.Status
		level  int
		actor  Actor
		action workflow.Action
		req    dto.TransitionRequest
		code   string
		status int
	}{
		{"illegal from submitted", workflow.StatusSubmitted, 0, pdoA, workflow.ActionResolve, dto.TransitionRequest{}, appErrors.ErrIllegalTransition.Code, 409},
		{"wrong role", workflow.StatusSubmitted, 0, pdoA, workflow.ActionVerify, dto.TransitionRequest{}, appErrors.ErrTransitionForbidden.Code, 403},
		{"escalate beyond ddo", workflow.StatusInProgress, 2, ddoA, workflow.ActionEscalate, dto.TransitionRequest{}, appErrors.ErrIllegalTransition.Code, 409},
		{"escalate by wrong level", workflow.StatusInProgress, 1, pdoA, workflow.ActionEscalate, dto.TransitionRequest{}, appErrors.ErrTransitionForbidden.Code, 403},
		{"assign without worker", workflow.StatusVIVerified, 0, pdoA, workflow.ActionAssign, dto.TransitionRequest{}, appErrors.ErrValidation.Code, 400},
		{"unknown action", workflow.StatusSubmitted, 0, inchargeA, workflow.Action("teleport"), dto.TransitionRequest{}, appErrors.ErrIllegalTransition.Code, 409},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newMemIssueStore(seededIssue(tc.from, tc.level))
			svc := newTestIssueService(store)

			_, _, err := svc.Transition(context.Background(), tc.actor, testIssue, tc.action, tc.req, "")
			require.Error(t, err)
			appErr := appErrors.FromError(err)
			assert.Equal(t, tc.code, appErr.Code)
			assert.Equal(t, tc.status, appErr.Status)
			assert.Empty(t, store.records)
		})
	}
}

func TestIssueServiceTransitionStaleVersion(t *testing.T) {
	store := newMemIssueStore(seededIssue(workflow.StatusSubmitted, 0))
	svc := newTestIssueService(store)

	stale := 2
	_, _, err := svc.Transition(context.Background(), inchargeA, testIssue, workflow.ActionVerify, dto.TransitionRequest{Version: &stale}, "")
	require.Error(t, err)
	assert.Equal(t, 409, appErrors.FromError(err).Status)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	store.applyErrs = []error{repository.ErrVersionConflict}
	_, _, err = svc.Transition(context.Background(), inchargeA, testIssue, workflow.ActionVerify, dto.TransitionRequest{}, "")
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestIssueServiceTransitionIdempotency(t *testing.T) {
	store := newMemIssueStore(seededIssue(workflow.StatusSubmitted, 0))
	idem := &memIdempotency{}
	pub := &recordingPublisher{}
	svc := newTestIssueService(store, WithIdempotency(idem), WithPublisher(pub))

	first, replayed, err := svc.Transition(context.Background(), inchargeA, testIssue, workflow.ActionVerify, dto.TransitionRequest{}, "key-1")
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.Equal(t, workflow.StatusVIVerified, first.Status)

	second, replayed, err := svc.Transition(context.Background(), inchargeA, testIssue, workflow.ActionVerify, dto.TransitionRequest{}, "key-1")
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, first.Version, second.Version)
	assert.Len(t, store.records, 1)
	assert.Len(t, pub.events, 1)
	assert.Empty(t, idem.released)
}

func TestIssueServiceFailedActionReleasesKey(t *testing.T) {
	store := newMemIssueStore(seededIssue(workflow.StatusSubmitted, 0))
	idem := &memIdempotency{}
	svc := newTestIssueService(store, WithIdempotency(idem))

	_, _, err := svc.Transition(context.Background(), inchargeA, testIssue, workflow.ActionAssign, dto.TransitionRequest{WorkerID: "w-1"}, "key-2")
	require.Error(t, err)
	assert.Len(t, idem.released, 1)

	_, replayed, err := svc.Transition(context.Background(), inchargeA, testIssue, workflow.ActionVerify, dto.TransitionRequest{}, "key-2")
	require.NoError(t, err)
	assert.False(t, replayed)
}

func TestIssueServiceTransitionRetriesThenUnavailable(t *testing.T) {
	store := newMemIssueStore(seededIssue(workflow.StatusSubmitted, 0))
	store.applyErrs = []error{driver.ErrBadConn}
	svc := NewIssueService(store, &stubTimeline{}, validator.New(), WorkflowSettings{
		Retry: database.RetryPolicy{MaxAttempts: 2, Backoff: time.Millisecond},
	}, WithClock(fixedClock))

	issue, _, err := svc.Transition(context.Background(), inchargeA, testIssue, workflow.ActionVerify, dto.TransitionRequest{}, "")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusVIVerified, issue.Status)

	store.applyErrs = []error{driver.ErrBadConn, driver.ErrBadConn}
	_, _, err = svc.Transition(context.Background(), pdoA, testIssue, workflow.ActionAssign, dto.TransitionRequest{WorkerID: "w-1"}, "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrStoreUnavailable.Code, appErrors.FromError(err).Code)
	assert.Equal(t, 503, appErrors.FromError(err).Status)
}

func TestIssueServiceCommitAcknowledgedLateKeepsKey(t *testing.T) {
	store := newMemIssueStore(seededIssue(workflow.StatusSubmitted, 0))
	store.commitErr = database.CommitError(context.DeadlineExceeded)
	idem := &memIdempotency{}
	pub := &recordingPublisher{}
	svc := NewIssueService(store, &stubTimeline{recorded: store.recorded}, validator.New(), WorkflowSettings{
		Retry: database.RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond},
	}, WithClock(fixedClock), WithIdempotency(idem), WithPublisher(pub))

	issue, replayed, err := svc.Transition(context.Background(), inchargeA, testIssue, workflow.ActionVerify, dto.TransitionRequest{}, "key-late")
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.Equal(t, workflow.StatusVIVerified, issue.Status)
	assert.Len(t, store.records, 1)
	assert.Empty(t, idem.released)
	assert.Len(t, pub.events, 1)

	again, replayed, err := svc.Transition(context.Background(), inchargeA, testIssue, workflow.ActionVerify, dto.TransitionRequest{}, "key-late")
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, issue.Version, again.Version)
	assert.Len(t, store.records, 1)
}

func TestIssueServiceLostCommitIsUnavailableNotConflict(t *testing.T) {
	store := newMemIssueStore(seededIssue(workflow.StatusSubmitted, 0))
	store.applyErrs = []error{database.CommitError(driver.ErrBadConn)}
	idem := &memIdempotency{}
	svc := NewIssueService(store, &stubTimeline{recorded: store.recorded}, validator.New(), WorkflowSettings{
		Retry: database.RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond},
	}, WithClock(fixedClock), WithIdempotency(idem))

	_, _, err := svc.Transition(context.Background(), inchargeA, testIssue, workflow.ActionVerify, dto.TransitionRequest{}, "key-lost")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrStoreUnavailable.Code, appErr.Code)
	assert.Equal(t, 503, appErr.Status)
	assert.Empty(t, store.records, "a failed commit must not be replayed")
	assert.Len(t, idem.released, 1)
}

func TestIssueServiceReadsActorFromDirectory(t *testing.T) {
	rejected := userFor(pdoA, models.VerificationRejected)
	inactive := userFor(tdoA, models.VerificationVerified)
	inactive.Active = false
	pdo2 := Actor{ID: "pdo-2", Role: models.RolePDO, Verified: true, Scope: models.ScopeFor(models.RolePDO, "pdo-2", villageJ)}
	demoted := userFor(pdo2, models.VerificationVerified)
	demoted.Role = models.RoleVillageIncharge

	tests := []struct {
		name  string
		actor Actor
		code  string
	}{
		{name: "rejected pdo", actor: pdoA, code: appErrors.ErrNotVerified.Code},
		{name: "deactivated tdo", actor: tdoA, code: appErrors.ErrInactiveAccount.Code},
		{name: "demoted pdo", actor: pdo2, code: appErrors.ErrTransitionForbidden.Code},
		{name: "deleted account", actor: outsiderA, code: appErrors.ErrUnauthorized.Code},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemIssueStore(seededIssue(workflow.StatusVIVerified, 0))
			svc := newTestIssueService(store, WithActorCheck(directoryOf(rejected, inactive, demoted)))

			_, _, err := svc.Transition(context.Background(), tt.actor, testIssue, workflow.ActionAssign, dto.TransitionRequest{WorkerID: "w-1"}, "")
			require.Error(t, err)
			assert.Equal(t, tt.code, appErrors.FromError(err).Code)
			assert.Empty(t, store.records)
		})
	}
}

func TestIssueServiceActorCheckAllowsCurrentProfile(t *testing.T) {
	store := newMemIssueStore(seededIssue(workflow.StatusVIVerified, 0))
	svc := newTestIssueService(store, WithActorCheck(directoryOf(userFor(pdoA, models.VerificationVerified))))

	issue, _, err := svc.Transition(context.Background(), pdoA, testIssue, workflow.ActionAssign, dto.TransitionRequest{WorkerID: "w-1"}, "")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusPDOAssigned, issue.Status)
	assert.Len(t, store.records, 1)
	assert.NotEmpty(t, store.records[0].EventID)
}

func TestIssueServiceCreateRejectsSuspendedReporter(t *testing.T) {
	suspended := userFor(villagerA, models.VerificationVerified)
	suspended.Active = false
	store := newMemIssueStore()
	svc := newTestIssueService(store, WithActorCheck(directoryOf(suspended)))

	_, err := svc.Create(context.Background(), villagerA, dto.CreateIssueRequest{Title: "x", Description: "y", Category: models.IssueCategoryRoad})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
	assert.Empty(t, store.created)
}

func TestIssueServiceTimeline(t *testing.T) {
	store := newMemIssueStore(seededIssue(workflow.StatusSubmitted, 0))
	svc := NewIssueService(store, &stubTimeline{events: []models.WorkflowEvent{{ID: "e1", Action: models.EventActionCreate}}}, nil, WorkflowSettings{})

	resp, err := svc.Timeline(context.Background(), villagerA, testIssue)
	require.NoError(t, err)
	assert.Equal(t, testIssue, resp.EntityID)
	assert.Len(t, resp.Events, 1)

	_, err = svc.Timeline(context.Background(), outsiderA, testIssue)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
