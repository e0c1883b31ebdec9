package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"licensewatch/internal/license/ports"
)

const sendEndpoint = "/v3/mail/send"

var ErrNotConfigured = errors.New("sendgrid API key not configured")

// SendGrid delivers messages through the SendGrid v3 mail API.
type SendGrid struct {
	apiKey string
	client *sendgrid.Client
}

// NewSendGrid builds a transport. host overrides the API host and is empty
// in production.
func NewSendGrid(apiKey, host string) *SendGrid {
	req := sendgrid.GetRequest(apiKey, sendEndpoint, host)
	req.Method = rest.Post
	return &SendGrid{apiKey: apiKey, client: &sendgrid.Client{Request: req}}
}

// Send refuses to call the provider without an API key.
func (s *SendGrid) Send(ctx context.Context, msg ports.MailMessage) (*ports.MailResponse, error) {
	if s.apiKey == "" {
		return nil, ErrNotConfigured
	}
	email := mail.NewSingleEmail(
		mail.NewEmail("", msg.From),
		msg.Subject,
		mail.NewEmail("", msg.To),
		"",
		msg.HTMLBody,
	)
	resp, err := s.client.SendWithContext(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("sendgrid send: %w", err)
	}
	return &ports.MailResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Headers,
		Body:       resp.Body,
	}, nil
}
