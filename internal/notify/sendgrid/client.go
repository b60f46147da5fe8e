// Package sendgrid sends notify messages through the SendGrid v3 mail API.
package sendgrid

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BearBump/PriceDrop/internal/notify"
	"github.com/pkg/errors"
	sg "github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

const (
	DefaultBaseURL = "https://api.sendgrid.com"
	sendEndpoint   = "/v3/mail/send"
)

type Client struct {
	baseURL string
	apiKey  string
	from    *mail.Email
	timeout time.Duration
}

func New(baseURL, apiKey, fromEmail, fromName string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		from:    mail.NewEmail(fromName, fromEmail),
		timeout: 10 * time.Second,
	}
}

func (c *Client) sendClient() *sg.Client {
	req := sg.GetRequest(c.apiKey, sendEndpoint, c.baseURL)
	req.Method = "POST"
	return &sg.Client{Request: req}
}

func (c *Client) Send(ctx context.Context, msg notify.Message) error {
	// text/plain must precede text/html
	var contents []*mail.Content
	if msg.Text != "" {
		contents = append(contents, mail.NewContent("text/plain", msg.Text))
	}
	if msg.HTML != "" {
		contents = append(contents, mail.NewContent("text/html", msg.HTML))
	}
	m := mail.NewV3MailInit(c.from, msg.Subject, mail.NewEmail("", msg.To), contents...)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.sendClient().SendWithContext(ctx, m)
	if err != nil {
		return errors.Wrap(err, "sendgrid send")
	}
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("sendgrid http %d: %s", resp.StatusCode, strings.TrimSpace(resp.Body))
	}
	return nil
}
