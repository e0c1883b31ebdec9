// Package notify sends one aggregate message per batch of newly flagged
// alerts and records the delivery on exactly those alerts.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"licensewatch/internal/audit"
	"licensewatch/internal/license/metrics"
	"licensewatch/internal/license/models"
	"licensewatch/internal/license/ports"
	"licensewatch/pkg/requestcontext"
)

const DefaultSubjectPrefix = "MDC Alert"

var ErrNotificationFailed = errors.New("notification failed")

// Dispatcher renders and sends alert notifications. It only ever touches the
// notification fields of the alerts it is handed, and only after the
// provider accepted the message.
type Dispatcher struct {
	transport     ports.MailTransport
	tx            ports.StoreTx
	to            string
	from          string
	subjectPrefix string
	logger        *slog.Logger
	metrics       *metrics.Metrics
	auditor       ports.AuditPublisher
	tracer        trace.Tracer
}

type Option func(*Dispatcher)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

func WithAuditor(p ports.AuditPublisher) Option {
	return func(d *Dispatcher) {
		d.auditor = p
	}
}

func WithSubjectPrefix(prefix string) Option {
	return func(d *Dispatcher) {
		if prefix != "" {
			d.subjectPrefix = prefix
		}
	}
}

func New(transport ports.MailTransport, tx ports.StoreTx, to, from string, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		transport:     transport,
		tx:            tx,
		to:            to,
		from:          from,
		subjectPrefix: DefaultSubjectPrefix,
		logger:        slog.New(slog.DiscardHandler),
		tracer:        otel.Tracer("licensewatch/notify"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Notify sends one message covering alerts. On failure the returned result
// describes what went wrong and the error wraps ErrNotificationFailed; no
// alert is modified.
func (d *Dispatcher) Notify(ctx context.Context, alerts []models.Alert) (*models.NotificationResult, error) {
	if len(alerts) == 0 {
		return &models.NotificationResult{Success: true, Message: "no alerts to notify"}, nil
	}

	ctx, span := d.tracer.Start(ctx, "notify.Notify", trace.WithAttributes(attribute.Int("alerts", len(alerts))))
	defer span.End()

	subject := subjectFor(d.subjectPrefix, len(alerts))
	body, err := renderBody(alerts)
	if err != nil {
		return d.fail(ctx, alerts, err)
	}

	resp, err := d.transport.Send(ctx, ports.MailMessage{
		Subject:  subject,
		HTMLBody: body,
		To:       d.to,
		From:     d.from,
	})
	if err != nil {
		return d.fail(ctx, alerts, err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return d.fail(ctx, alerts, fmt.Errorf("provider returned status %d: %s", resp.StatusCode, truncate(resp.Body, 250)))
	}

	now := requestcontext.Now(ctx)
	meta := models.NotificationMeta{
		Recipient:  d.to,
		Subject:    subject,
		StatusCode: resp.StatusCode,
		MessageID:  firstHeader(resp.Headers, "X-Message-Id"),
		SentAt:     now,
	}
	ids := make([]string, 0, len(alerts))
	for _, a := range alerts {
		ids = append(ids, a.LicenseID)
	}

	var updated int
	err = d.tx.RunInTx(ctx, func(stores ports.Stores) error {
		n, err := stores.Alerts.MarkNotified(ctx, ids, now, meta)
		updated = n
		return err
	})
	if err != nil {
		// The message went out; leaving notified_at unset means it will be
		// sent again rather than lost.
		return d.fail(ctx, alerts, fmt.Errorf("message accepted but recording delivery failed: %w", err))
	}

	d.metrics.ObserveNotification(true)
	d.logger.InfoContext(ctx, "notification sent",
		"recipient", d.to,
		"status_code", resp.StatusCode,
		"alerts", len(alerts),
		"updated", updated,
	)
	for _, a := range alerts {
		d.emit(ctx, audit.ActionNotificationSent, a, fmt.Sprintf("status %d", resp.StatusCode))
	}
	return &models.NotificationResult{
		Success: true,
		Message: fmt.Sprintf("Notification sent successfully. Status: %d. Alerts updated: %d", resp.StatusCode, updated),
		Updated: updated,
		Meta:    &meta,
	}, nil
}

func (d *Dispatcher) fail(ctx context.Context, alerts []models.Alert, cause error) (*models.NotificationResult, error) {
	d.metrics.ObserveNotification(false)
	d.logger.ErrorContext(ctx, "notification failed",
		"recipient", d.to,
		"alerts", len(alerts),
		"error", cause,
	)
	trace.SpanFromContext(ctx).RecordError(cause)
	for _, a := range alerts {
		d.emit(ctx, audit.ActionNotificationFailed, a, cause.Error())
	}
	return &models.NotificationResult{
		Success: false,
		Message: fmt.Sprintf("Failed to send notification: %v", cause),
	}, fmt.Errorf("%w: %w", ErrNotificationFailed, cause)
}

func (d *Dispatcher) emit(ctx context.Context, action audit.Action, a models.Alert, detail string) {
	if d.auditor == nil {
		return
	}
	if err := d.auditor.Emit(ctx, audit.Event{
		Action:    action,
		LicenseID: a.LicenseID,
		Name:      a.Name,
		Status:    string(a.ReportedStatus),
		Detail:    detail,
	}); err != nil {
		d.logger.WarnContext(ctx, "audit emit failed", "action", action, "error", err)
	}
}

func firstHeader(headers map[string][]string, key string) string {
	for k, v := range headers {
		if http.CanonicalHeaderKey(k) == http.CanonicalHeaderKey(key) && len(v) > 0 {
			return v[0]
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
