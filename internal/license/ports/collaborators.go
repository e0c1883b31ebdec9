// Package ports declares the narrow contracts the license engine consumes.
package ports

//go:generate mockgen -source=collaborators.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"licensewatch/internal/audit"
	"licensewatch/internal/license/models"
)

// RosterSource lists the members to reconcile. An empty slice is a valid
// "nothing to do" answer, distinct from an error.
type RosterSource interface {
	ListActiveMembers(ctx context.Context) ([]models.Member, error)
}

// AuthorityClient looks up one license id at the licensing authority.
// A not-found response is reported through AuthorityResponse.NotFound, not as an error.
type AuthorityClient interface {
	Lookup(ctx context.Context, licenseID string) (*models.AuthorityResponse, error)
}

// MailMessage is a rendered notification ready for a transport.
type MailMessage struct {
	Subject  string
	HTMLBody string
	To       string
	From     string
}

// MailResponse is the provider's answer to a send.
type MailResponse struct {
	StatusCode int
	Headers    map[string][]string
	Body       string
}

// MailTransport delivers a rendered message.
type MailTransport interface {
	Send(ctx context.Context, msg MailMessage) (*MailResponse, error)
}

// AuditPublisher receives alert lifecycle events.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}
