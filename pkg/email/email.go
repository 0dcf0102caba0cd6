package email

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/resend/resend-go/v2"

	"github.com/castmaster/castmaster-backend/pkg/config"
)

var errAPIKeyRequired = errors.New("resend api key is required")

// Message is one outbound email.
type Message struct {
	To      []string
	Cc      []string
	Subject string
	HTML    string
}

// Sender delivers a message and returns the provider's message id.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// ResendSender sends through the Resend HTTP API.
type ResendSender struct {
	client *resend.Client
	from   string
}

// NewResendSender builds a sender from the email config. A custom base URL is
// honored so tests and regional endpoints can be targeted.
func NewResendSender(cfg config.EmailConfig) (*ResendSender, error) {
	key := strings.TrimSpace(cfg.ResendAPIKey)
	if key == "" {
		return nil, errAPIKeyRequired
	}
	client := resend.NewClient(key)
	if raw := strings.TrimSpace(cfg.ResendBaseURL); raw != "" {
		if !strings.HasSuffix(raw, "/") {
			raw += "/"
		}
		base, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse resend base url: %w", err)
		}
		client.BaseURL = base
	}
	return &ResendSender{client: client, from: cfg.From}, nil
}

func (s *ResendSender) Send(ctx context.Context, msg Message) (string, error) {
	if len(msg.To) == 0 {
		return "", errors.New("email recipient required")
	}
	req := &resend.SendEmailRequest{
		From:    s.from,
		To:      msg.To,
		Cc:      msg.Cc,
		Subject: msg.Subject,
		Html:    msg.HTML,
	}
	sent, err := s.client.Emails.SendWithContext(ctx, req)
	if err != nil {
		return "", fmt.Errorf("resend send: %w", err)
	}
	return sent.Id, nil
}
