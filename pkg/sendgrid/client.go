package sendgrid

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/sendgrid/rest"
	sendgridgo "github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

var (
	errAPIKeyRequired = errors.New("sendgrid api key is required")
	errFromRequired   = errors.New("sendgrid from address is required")
)

// Message is a single transactional email.
type Message struct {
	ToEmail string
	ToName  string
	Subject string
	Text    string
	HTML    string
}

type sender interface {
	SendWithContext(ctx context.Context, email *sgmail.SGMailV3) (*rest.Response, error)
}

// Client delivers transactional email through SendGrid's v3 API.
type Client struct {
	api  sender
	from *sgmail.Email
}

// NewClient validates the SendGrid configuration and builds a send client.
func NewClient(ctx context.Context, cfg config.SendgridConfig, logg *logger.Logger) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	from := strings.TrimSpace(cfg.DefaultFrom)
	if from == "" {
		return nil, errFromRequired
	}
	if _, err := mail.ParseAddress(from); err != nil {
		return nil, fmt.Errorf("invalid sendgrid from address %q: %w", from, err)
	}

	if logg != nil {
		logg.Info(ctx, "sendgrid client initialized")
	}
	return &Client{
		api:  sendgridgo.NewSendClient(apiKey),
		from: sgmail.NewEmail(cfg.FromName, from),
	}, nil
}

// Send delivers msg. Any non-2xx API response is returned as an error.
func (c *Client) Send(ctx context.Context, msg Message) error {
	if c == nil || c.api == nil {
		return errors.New("sendgrid client not initialized")
	}
	if strings.TrimSpace(msg.ToEmail) == "" {
		return errors.New("recipient email is required")
	}

	email := sgmail.NewSingleEmail(c.from, msg.Subject, sgmail.NewEmail(msg.ToName, msg.ToEmail), msg.Text, msg.HTML)
	resp, err := c.api.SendWithContext(ctx, email)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("sendgrid send: status %d: %s", resp.StatusCode, strings.TrimSpace(resp.Body))
	}
	return nil
}
