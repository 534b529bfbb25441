package email

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/smallbiznis/streamgate/internal/providers/httpapi"
)

const sendGridEndpoint = "/v3/mail/send"

var ErrSendGridNotConfigured = errors.New("sendgrid_not_configured")

// SendGridProvider sends mail through the SendGrid v3 mail/send endpoint.
type SendGridProvider struct {
	apiKey string
	host   string
	from   *mail.Email
}

// NewSendGrid builds the provider. An empty host means the public API.
func NewSendGrid(apiKey, host, from string) *SendGridProvider {
	return &SendGridProvider{
		apiKey: strings.TrimSpace(apiKey),
		host:   strings.TrimRight(strings.TrimSpace(host), "/"),
		from:   mail.NewEmail("", from),
	}
}

func (p *SendGridProvider) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	if p.apiKey == "" {
		return ErrSendGridNotConfigured
	}
	if len(to) == 0 {
		return ErrNoRecipients
	}

	personalization := mail.NewPersonalization()
	for _, addr := range to {
		personalization.AddTos(mail.NewEmail("", addr))
	}
	personalization.Subject = subject

	message := mail.NewV3Mail()
	message.SetFrom(p.from)
	message.Subject = subject
	message.AddPersonalizations(personalization)
	message.AddContent(mail.NewContent("text/html", htmlBody))

	req := sendgrid.GetRequest(p.apiKey, sendGridEndpoint, p.host)
	req.Method = http.MethodPost
	req.Body = mail.GetRequestBody(message)

	resp, err := sendgrid.MakeRequestWithContext(ctx, req)
	if err != nil {
		return err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return &httpapi.Error{
			Provider:   "sendgrid",
			StatusCode: resp.StatusCode,
			Message:    sendGridErrorMessage(resp.Body),
		}
	}
	return nil
}

func (p *SendGridProvider) SendTemplate(ctx context.Context, to []string, templateName string, data interface{}) error {
	subject, body, err := render(templateName, data)
	if err != nil {
		return err
	}
	return p.Send(ctx, to, subject, body)
}

func sendGridErrorMessage(body string) string {
	var resp struct {
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal([]byte(body), &resp); err != nil || len(resp.Errors) == 0 {
		return strings.TrimSpace(body)
	}
	parts := make([]string, 0, len(resp.Errors))
	for _, e := range resp.Errors {
		parts = append(parts, e.Message)
	}
	return strings.Join(parts, "; ")
}
