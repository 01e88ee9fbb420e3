package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/noah-isme/civic-portal-api/internal/models"
	"github.com/noah-isme/civic-portal-api/internal/realtime"
	"github.com/noah-isme/civic-portal-api/internal/repository"
	"github.com/noah-isme/civic-portal-api/internal/workflow"
	"github.com/noah-isme/civic-portal-api/pkg/database"
	appErrors "github.com/noah-isme/civic-portal-api/pkg/errors"
)

var tracer = otel.Tracer("github.com/noah-isme/civic-portal-api/internal/service")

// Actor is the authenticated caller of a service operation.
type Actor struct {
	ID        string
	Role      models.UserRole
	Verified  bool
	Scope     models.Scope
	IP        string
	UserAgent string
}

// ActorFromClaims builds an Actor from verified token claims.
func ActorFromClaims(claims *models.JWTClaims, ip, userAgent string) Actor {
	if claims == nil {
		return Actor{IP: ip, UserAgent: userAgent}
	}
	return Actor{
		ID:        claims.UserID,
		Role:      claims.Role,
		Verified:  claims.Verified(),
		Scope:     claims.Scope(),
		IP:        ip,
		UserAgent: userAgent,
	}
}

func (a Actor) workflow() workflow.Actor {
	return workflow.Actor{ID: a.ID, Role: a.Role.Workflow()}
}

// actorDirectory reads the current profile behind a token.
type actorDirectory interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type idempotencyStore interface {
	Reserve(ctx context.Context, scope, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, scope, key string) error
}

type eventLookup interface {
	Recorded(ctx context.Context, eventID string) (bool, error)
}

// EventPublisher receives realtime events after a change is committed.
type EventPublisher interface {
	Publish(ev realtime.Event)
}

// WorkflowSettings tunes how workflow actions reach the store.
type WorkflowSettings struct {
	Retry          database.RetryPolicy
	IdempotencyTTL time.Duration
	IssueSLA       time.Duration
}

// workflowDeps is shared by the issue and fund request services.
type workflowDeps struct {
	settings  WorkflowSettings
	users     actorDirectory
	idem      idempotencyStore
	cache     *CacheService
	publisher EventPublisher
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time
}

// WorkflowOption configures the issue and fund request services.
type WorkflowOption func(*workflowDeps)

// WithActorCheck re-reads the caller's profile before every change, so a
// deactivated or rejected account loses access before its token expires.
func WithActorCheck(users actorDirectory) WorkflowOption {
	return func(d *workflowDeps) { d.users = users }
}

// WithIdempotency enables Idempotency-Key handling.
func WithIdempotency(store idempotencyStore) WorkflowOption {
	return func(d *workflowDeps) { d.idem = store }
}

// WithCache enables dashboard invalidation after changes.
func WithCache(cache *CacheService) WorkflowOption {
	return func(d *workflowDeps) { d.cache = cache }
}

// WithPublisher enables realtime broadcasts.
func WithPublisher(p EventPublisher) WorkflowOption {
	return func(d *workflowDeps) { d.publisher = p }
}

// WithMetrics records transition outcomes.
func WithMetrics(m *MetricsService) WorkflowOption {
	return func(d *workflowDeps) { d.metrics = m }
}

// WithLogger overrides the zap logger.
func WithLogger(l *zap.Logger) WorkflowOption {
	return func(d *workflowDeps) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) WorkflowOption {
	return func(d *workflowDeps) {
		if now != nil {
			d.now = now
		}
	}
}

func newWorkflowDeps(settings WorkflowSettings, opts []WorkflowOption) workflowDeps {
	if settings.Retry.MaxAttempts <= 0 {
		settings.Retry.MaxAttempts = 2
	}
	if settings.IdempotencyTTL <= 0 {
		settings.IdempotencyTTL = 10 * time.Minute
	}
	deps := workflowDeps{
		settings: settings,
		logger:   zap.NewNop(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&deps)
		}
	}
	return deps
}

// store runs fn under the retry policy.
func (d *workflowDeps) store(ctx context.Context, fn func(context.Context) error) error {
	return d.settings.Retry.Do(ctx, fn)
}

// confirmActor refreshes role, scope and verification from the user record.
// Without an actor directory the token claims are trusted as issued.
func (d *workflowDeps) confirmActor(ctx context.Context, actor Actor) (Actor, error) {
	if d.users == nil {
		return actor, nil
	}
	var user *models.User
	if err := d.store(ctx, func(ctx context.Context) error {
		var err error
		user, err = d.users.FindByID(ctx, actor.ID)
		return err
	}); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Actor{}, appErrors.Clone(appErrors.ErrUnauthorized, "account no longer exists")
		}
		return Actor{}, loadError(err, "account")
	}
	if !user.Active {
		return Actor{}, appErrors.Clone(appErrors.ErrInactiveAccount, "account is deactivated")
	}
	if !user.Verified() {
		return Actor{}, appErrors.Clone(appErrors.ErrNotVerified, "account is "+strings.ToLower(string(user.VerificationStatus)))
	}
	actor.Role = user.Role
	actor.Verified = true
	actor.Scope = models.ScopeFor(user.Role, user.ID, user.Jurisdiction)
	return actor, nil
}

// settleCommit decides the fate of a transition whose COMMIT outcome is unknown.
// The event row is written in the same transaction, so finding it proves the commit.
func (d *workflowDeps) settleCommit(ctx context.Context, events eventLookup, eventID string, err error) (committed bool) {
	if !errors.Is(err, database.ErrCommitUnknown) || events == nil {
		return false
	}
	var found bool
	lookupErr := d.store(context.WithoutCancel(ctx), func(ctx context.Context) error {
		var err error
		found, err = events.Recorded(ctx, eventID)
		return err
	})
	if lookupErr != nil {
		d.logger.Error("commit outcome unknown", zap.String("event_id", eventID), zap.Error(lookupErr))
		return false
	}
	if found {
		d.logger.Warn("commit acknowledged late, transition was applied", zap.String("event_id", eventID), zap.Error(err))
	}
	return found
}

// reserve claims an idempotency key. It returns release=nil when no key was given.
// A false ok means the key was already used.
func (d *workflowDeps) reserve(ctx context.Context, scope, key string) (ok bool, release func(), err error) {
	if key == "" || d.idem == nil {
		return true, nil, nil
	}
	ok, err = d.idem.Reserve(ctx, scope, key, d.settings.IdempotencyTTL)
	if err != nil {
		d.logger.Warn("idempotency reserve failed, continuing without it", zap.String("scope", scope), zap.Error(err))
		return true, nil, nil
	}
	release = func() {
		if err := d.idem.Release(context.WithoutCancel(ctx), scope, key); err != nil {
			d.logger.Warn("idempotency release failed", zap.String("scope", scope), zap.Error(err))
		}
	}
	return ok, release, nil
}

// afterCommit runs the side effects of a committed change. None of them can fail the request.
func (d *workflowDeps) afterCommit(ctx context.Context, ev realtime.Event) {
	d.cache.InvalidateDashboards(ctx)
	if d.publisher != nil {
		d.publisher.Publish(ev)
	}
}

func (d *workflowDeps) startSpan(ctx context.Context, entity workflow.Entity, action workflow.Action, id string, actor Actor) (context.Context, trace.Span) {
	return tracer.Start(ctx, "workflow."+string(entity)+"."+string(action), trace.WithAttributes(
		attribute.String("workflow.entity", string(entity)),
		attribute.String("workflow.action", string(action)),
		attribute.String("workflow.entity_id", id),
		attribute.String("actor.role", string(actor.Role)),
	))
}

// finish records the outcome on the span and the transition counter.
func (d *workflowDeps) finish(span trace.Span, entity workflow.Entity, action workflow.Action, outcome string, err error) {
	d.metrics.RecordTransition(string(entity), string(action), outcome)
	span.SetAttributes(attribute.String("workflow.outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	span.End()
}

// transitionError maps engine and store failures onto API errors plus a metrics outcome.
func transitionError(err error) (*appErrors.Error, string) {
	var te *workflow.TransitionError
	errors.As(err, &te)

	switch {
	case errors.Is(err, workflow.ErrIllegalTransition):
		msg := appErrors.ErrIllegalTransition.Message
		if te != nil {
			msg = "cannot " + string(te.Action) + " a " + string(te.Entity) + " in status " + string(workflow.DisplayStatus(te.Entity, te.From))
			if te.Reason != "" {
				msg += ": " + te.Reason
			}
		}
		return appErrors.Wrap(err, appErrors.ErrIllegalTransition.Code, appErrors.ErrIllegalTransition.Status, msg), OutcomeIllegal
	case errors.Is(err, workflow.ErrUnauthorized):
		msg := appErrors.ErrTransitionForbidden.Message
		if te != nil {
			msg = "role " + string(te.Role) + " may not " + string(te.Action) + " this " + string(te.Entity)
		}
		return appErrors.Wrap(err, appErrors.ErrTransitionForbidden.Code, appErrors.ErrTransitionForbidden.Status, msg), OutcomeForbidden
	case errors.Is(err, workflow.ErrInvalidParams):
		msg := appErrors.ErrValidation.Message
		if te != nil && te.Reason != "" {
			msg = te.Reason
		}
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, msg), OutcomeInvalid
	case errors.Is(err, repository.ErrVersionConflict):
		return appErrors.Wrap(err, appErrors.ErrStaleVersion.Code, appErrors.ErrStaleVersion.Status, appErrors.ErrStaleVersion.Message), OutcomeConflict
	case errors.Is(err, database.ErrUnavailable), errors.Is(err, database.ErrCommitUnknown), errors.Is(err, context.DeadlineExceeded):
		return appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, appErrors.ErrStoreUnavailable.Message), OutcomeUnavailable
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, appErrors.ErrNotFound.Message), OutcomeError
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr, OutcomeError
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply workflow action"), OutcomeError
}

// loadError maps a failed read.
func loadError(err error, what string) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.Clone(appErrors.ErrNotFound, what+" not found")
	case errors.Is(err, database.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		return appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, appErrors.ErrStoreUnavailable.Message)
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load "+what)
	}
}

func auditValues(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}

func checkVersion(expected *int, current int) error {
	if expected != nil && *expected != current {
		return appErrors.Wrap(repository.ErrVersionConflict, appErrors.ErrStaleVersion.Code, appErrors.ErrStaleVersion.Status, appErrors.ErrStaleVersion.Message)
	}
	return nil
}
