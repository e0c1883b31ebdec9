// Package sweep reconciles the member roster against the licensing authority
// and drives the alert lifecycle.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"licensewatch/internal/audit"
	"licensewatch/internal/license/metrics"
	"licensewatch/internal/license/models"
	"licensewatch/internal/license/ports"
	"licensewatch/internal/license/roster"
	dErrors "licensewatch/pkg/domain-errors"
	"licensewatch/pkg/platform/sentinel"
	"licensewatch/pkg/requestcontext"
)

const (
	msgNoMembers   = "no members returned"
	msgDuplicateID = "duplicate license id; first roster entry used"
)

var (
	ErrNoHistory     = dErrors.New(dErrors.CodeNotFound, "no run history")
	ErrAlertNotFound = dErrors.New(dErrors.CodeNotFound, "no open alert for license id")
	ErrStorage       = dErrors.New(dErrors.CodeInternal, "storage failure")
)

// Resolver turns a license id into a status.
type Resolver interface {
	Resolve(ctx context.Context, licenseID string) (models.StatusResult, error)
}

// Notifier delivers a batch of alerts and records the delivery.
type Notifier interface {
	Notify(ctx context.Context, alerts []models.Alert) (*models.NotificationResult, error)
}

// HealthChecker probes the roster source.
type HealthChecker interface {
	Health(ctx context.Context) roster.Health
}

// Deps are the collaborators an Engine is built from.
type Deps struct {
	Roster   ports.RosterSource
	Resolver Resolver
	Notifier Notifier
	Tx       ports.StoreTx
	Alerts   ports.AlertStore
	Runs     ports.RunStore
}

// Engine is the single writer of alerts and run records. Sweep and Resend
// are serialized on one mutex.
type Engine struct {
	deps    Deps
	policy  RenotifyPolicy
	health  HealthChecker
	auditor ports.AuditPublisher
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer

	mu sync.Mutex
}

type Option func(*Engine)

func WithPolicy(p RenotifyPolicy) Option {
	return func(e *Engine) {
		if p != nil {
			e.policy = p
		}
	}
}

func WithHealthChecker(h HealthChecker) Option {
	return func(e *Engine) {
		e.health = h
	}
}

func WithAuditor(p ports.AuditPublisher) Option {
	return func(e *Engine) {
		e.auditor = p
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func New(deps Deps, opts ...Option) *Engine {
	e := &Engine{
		deps:   deps,
		policy: AlwaysRenotify{},
		logger: slog.New(slog.DiscardHandler),
		tracer: otel.Tracer("licensewatch/sweep"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Sweep runs one full reconciliation pass. Every outcome, including roster
// and storage failures, is reported through the returned RunOutcome; the
// error is non-nil only when the run itself could not be recorded.
func (e *Engine) Sweep(ctx context.Context) (*models.RunOutcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	runAt := requestcontext.Now(ctx)
	ctx = requestcontext.WithTime(ctx, runAt)
	ctx, span := e.tracer.Start(ctx, "sweep.Sweep")
	defer span.End()
	start := time.Now()

	run := models.RunRecord{ID: uuid.New(), RunAt: runAt}
	logger := e.logger.With("run_id", run.ID.String())

	members, err := e.deps.Roster.ListActiveMembers(ctx)
	if err != nil {
		run.Status = models.RunError
		run.Message = fmt.Sprintf("failed to fetch roster: %v", err)
		logger.ErrorContext(ctx, "roster fetch failed", "error", err)
		return e.record(ctx, run, nil, start)
	}
	if len(members) == 0 {
		run.Status = models.RunAborted
		run.Message = msgNoMembers
		logger.WarnContext(ctx, "sweep aborted: roster returned no members")
		return e.record(ctx, run, nil, start)
	}

	var batch []models.Alert
	processed := make([]models.MemberOutcome, 0, len(members))
	seen := make(map[string]struct{}, len(members))
	for _, m := range members {
		id := strings.TrimSpace(m.LicenseID)
		if _, dup := seen[id]; dup && id != "" {
			processed = append(processed, models.MemberOutcome{
				Name:      m.Name,
				LicenseID: m.LicenseID,
				Outcome:   models.OutcomeSkipped,
				Message:   msgDuplicateID,
			})
			logger.WarnContext(ctx, "duplicate license id in roster", "license_id", m.LicenseID, "name", m.Name)
			continue
		}
		seen[id] = struct{}{}
		outcome, queued, err := e.reconcile(ctx, m, runAt)
		if err != nil {
			outcome.Outcome = models.OutcomeErrorChecking
			outcome.Message = err.Error()
			processed = append(processed, outcome)
			run.Status = models.RunError
			run.Message = fmt.Sprintf("storage failure while processing %s: %v", m.LicenseID, err)
			run.ProcessedMembers = processed
			run.Summary = models.Summarize(processed)
			logger.ErrorContext(ctx, "sweep aborted on storage failure",
				"license_id", m.LicenseID,
				"error", err,
			)
			return e.record(ctx, run, nil, start)
		}
		if queued != nil {
			batch = append(batch, *queued)
		}
		processed = append(processed, outcome)
	}

	run.ProcessedMembers = processed
	run.Summary = models.Summarize(processed)
	open, err := e.deps.Alerts.Count(ctx)
	if err != nil {
		run.Status = models.RunError
		run.Message = fmt.Sprintf("storage failure while counting open alerts: %v", err)
		logger.ErrorContext(ctx, "sweep aborted: failed to count open alerts", "error", err)
		return e.record(ctx, run, nil, start)
	}
	run.Status = models.RunCompleted
	run.FlaggedCount = len(batch)
	run.Summary.OpenAlerts = open

	out, err := e.record(ctx, run, batch, start)
	if err != nil {
		return nil, err
	}
	if len(batch) == 0 {
		return out, nil
	}

	result, err := e.deps.Notifier.Notify(ctx, batch)
	out.Notification = result
	if err != nil {
		out.Message = joinMessage(out.Message, notificationMessage(result, err))
		logger.ErrorContext(ctx, "notification dispatch failed", "alerts", len(batch), "error", err)
		return out, nil
	}
	out.Message = joinMessage(out.Message, result.Message)
	span.SetAttributes(attribute.Int("sweep.notified", result.Updated))
	return out, nil
}

// reconcile applies one member's transition in its own transactional scope.
// It returns the alert to notify, if any. A non-nil error is a storage failure.
func (e *Engine) reconcile(ctx context.Context, m models.Member, now time.Time) (models.MemberOutcome, *models.Alert, error) {
	outcome := models.MemberOutcome{Name: m.Name, LicenseID: m.LicenseID}
	if strings.TrimSpace(m.LicenseID) == "" {
		outcome.Outcome = models.OutcomeSkipped
		outcome.Message = "missing license id"
		return outcome, nil, nil
	}

	result, err := e.deps.Resolver.Resolve(ctx, m.LicenseID)
	if err != nil {
		outcome.Outcome = models.OutcomeSkipped
		outcome.Message = err.Error()
		return outcome, nil, nil
	}
	outcome.Status = result.Status
	outcome.Source = result.Source
	outcome.ObservedAt = result.ObservedAt

	switch {
	case result.Status == models.StatusActive:
		var deleted bool
		err := e.deps.Tx.RunInTx(ctx, func(stores ports.Stores) error {
			var err error
			deleted, err = stores.Alerts.Delete(ctx, m.LicenseID)
			return err
		})
		if err != nil {
			return outcome, nil, fmt.Errorf("%w: %w", ErrStorage, err)
		}
		outcome.Outcome = models.OutcomeOK
		if deleted {
			e.emit(ctx, audit.Event{Action: audit.ActionAlertCleared, LicenseID: m.LicenseID, Name: m.Name, Status: string(result.Status)})
		}
		return outcome, nil, nil

	case result.Status.IsProblem():
		alert, opened, reopened, err := e.flag(ctx, m, result, now)
		if err != nil {
			return outcome, nil, fmt.Errorf("%w: %w", ErrStorage, err)
		}
		outcome.Outcome = models.OutcomeFlagged
		action := audit.ActionAlertReflagged
		if opened {
			action = audit.ActionAlertOpened
		}
		e.emit(ctx, audit.Event{Action: action, LicenseID: m.LicenseID, Name: m.Name, Status: string(result.Status)})
		if !reopened {
			return outcome, nil, nil
		}
		outcome.Queued = true
		return outcome, alert, nil

	default:
		outcome.Outcome = models.OutcomeErrorChecking
		outcome.Message = result.Message
		e.logger.WarnContext(ctx, "license check inconclusive",
			"license_id", m.LicenseID,
			"status", result.Status,
			"message", result.Message,
		)
		return outcome, nil, nil
	}
}

// flag opens a new alert or re-flags the existing one. opened reports a new
// alert; reopened reports whether the alert joins the notification batch.
func (e *Engine) flag(ctx context.Context, m models.Member, result models.StatusResult, now time.Time) (*models.Alert, bool, bool, error) {
	var (
		alert    *models.Alert
		opened   bool
		reopened bool
	)
	err := e.deps.Tx.RunInTx(ctx, func(stores ports.Stores) error {
		existing, err := stores.Alerts.Find(ctx, m.LicenseID)
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			created, err := models.NewAlert(m, result, now)
			if err != nil {
				return err
			}
			if err := stores.Alerts.Insert(ctx, created); err != nil {
				return err
			}
			alert, opened, reopened = created, true, true
			return nil
		case err != nil:
			return err
		}

		reopen := e.policy.Reopen(*existing, now)
		if err := existing.Reflag(m, result, now, reopen); err != nil {
			return err
		}
		if err := stores.Alerts.Reflag(ctx, existing, reopen); err != nil {
			return err
		}
		alert, reopened = existing, reopen
		return nil
	})
	if err != nil {
		return nil, false, false, err
	}
	return alert, opened, reopened, nil
}

// record appends the run and builds the outcome. Failing to append is the
// one error Sweep surfaces to its caller.
func (e *Engine) record(ctx context.Context, run models.RunRecord, batch []models.Alert, start time.Time) (*models.RunOutcome, error) {
	if run.ProcessedMembers == nil {
		run.ProcessedMembers = []models.MemberOutcome{}
	}
	err := e.deps.Tx.RunInTx(ctx, func(stores ports.Stores) error {
		return stores.Runs.Append(ctx, &run)
	})
	e.metrics.ObserveSweep(run, time.Since(start))
	e.emit(ctx, audit.Event{Action: sweepAction(run.Status), RunID: run.ID.String(), Status: string(run.Status), Detail: run.Message})
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to record run", "run_id", run.ID.String(), "error", err)
		return nil, dErrors.Wrap(fmt.Errorf("%w: %w", ErrStorage, err), dErrors.CodeInternal, "failed to record run")
	}
	e.logger.InfoContext(ctx, "sweep recorded",
		"run_id", run.ID.String(),
		"status", run.Status,
		"total", run.Summary.TotalMembers,
		"flagged", run.Summary.Flagged,
		"errors", run.Summary.Errors,
		"open_alerts", run.Summary.OpenAlerts,
	)
	if batch == nil {
		batch = []models.Alert{}
	}
	return &models.RunOutcome{RunRecord: run, FlaggedThisRun: batch}, nil
}

// LastRun returns the most recent run. The batch is rebuilt from the
// members that run queued for notification.
func (e *Engine) LastRun(ctx context.Context) (*models.RunOutcome, error) {
	run, err := e.deps.Runs.Latest(ctx)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, ErrNoHistory
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read run history")
	}
	return &models.RunOutcome{RunRecord: *run, FlaggedThisRun: batchFromRun(*run)}, nil
}

// History returns up to limit recent runs, newest first.
func (e *Engine) History(ctx context.Context, limit int) ([]*models.RunRecord, error) {
	runs, err := e.deps.Runs.List(ctx, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read run history")
	}
	if runs == nil {
		runs = []*models.RunRecord{}
	}
	return runs, nil
}

// OpenAlerts lists open alerts, most recently flagged first.
func (e *Engine) OpenAlerts(ctx context.Context) ([]models.Alert, error) {
	rows, err := e.deps.Alerts.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list alerts")
	}
	out := make([]models.Alert, 0, len(rows))
	for _, a := range rows {
		out = append(out, *a)
	}
	return out, nil
}

// Resend re-dispatches the notification for one open alert and reports the
// alert as it stands afterwards. Alert is nil when the row disappeared in
// between.
func (e *Engine) Resend(ctx context.Context, licenseID string) (*models.ResendResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	alert, err := e.deps.Alerts.Find(ctx, licenseID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, ErrAlertNotFound
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read alert")
	}

	result, notifyErr := e.deps.Notifier.Notify(ctx, []models.Alert{*alert})
	message := notificationMessage(result, notifyErr)
	if notifyErr != nil {
		e.logger.ErrorContext(ctx, "resend failed", "license_id", licenseID, "error", notifyErr)
	}

	after, err := e.deps.Alerts.Find(ctx, licenseID)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return &models.ResendResult{
			Success: notifyErr == nil,
			Message: message + " (alert may have been cleared)",
		}, nil
	case err != nil:
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read alert after resend")
	}
	return &models.ResendResult{Success: notifyErr == nil, Message: message, Alert: after}, nil
}

// RosterHealth probes the roster source when a checker is configured.
func (e *Engine) RosterHealth(ctx context.Context) roster.Health {
	if e.health == nil {
		return roster.Health{Healthy: false, Message: "roster health check not configured"}
	}
	return e.health.Health(ctx)
}

func (e *Engine) emit(ctx context.Context, event audit.Event) {
	if e.auditor == nil {
		return
	}
	if err := e.auditor.Emit(ctx, event); err != nil {
		e.logger.WarnContext(ctx, "audit emit failed", "action", event.Action, "error", err)
	}
}

// batchFromRun rebuilds the notification batch of a recorded run. Only a
// completed run dispatches.
func batchFromRun(run models.RunRecord) []models.Alert {
	out := []models.Alert{}
	if run.Status != models.RunCompleted {
		return out
	}
	for _, p := range run.ProcessedMembers {
		if p.Outcome != models.OutcomeFlagged || !p.Queued {
			continue
		}
		out = append(out, models.Alert{
			LicenseID:      p.LicenseID,
			Name:           p.Name,
			ReportedStatus: p.Status,
			LastChecked:    p.ObservedAt,
			LastFlaggedAt:  run.RunAt,
		})
	}
	return out
}

func sweepAction(status models.RunStatus) audit.Action {
	switch status {
	case models.RunCompleted:
		return audit.ActionSweepCompleted
	case models.RunAborted:
		return audit.ActionSweepAborted
	default:
		return audit.ActionSweepFailed
	}
}

func notificationMessage(result *models.NotificationResult, err error) string {
	if result != nil && result.Message != "" {
		return result.Message
	}
	if err != nil {
		return fmt.Sprintf("Failed to send notification: %v", err)
	}
	return ""
}

func joinMessage(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + "; " + b
}
