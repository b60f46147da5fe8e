// Package notify renders PriceDrop emails and hands them to a Transport.
package notify

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"log/slog"
	"net/mail"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/BearBump/PriceDrop/internal/pricing"
	"github.com/pkg/errors"
)

//go:embed templates
var templateFS embed.FS

type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

type Transport interface {
	Send(ctx context.Context, msg Message) error
}

type Kind string

const (
	KindInvalidAddress Kind = "invalid_address"
	KindRender         Kind = "render"
	KindTransport      Kind = "transport"
)

type DispatchError struct {
	Kind Kind
	To   string
	Err  error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s to %q: %v", e.Kind, e.To, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

type PriceDrop struct {
	To          string
	Name        string
	ProductName string
	ProductURL  string
	ImageURL    string
	OldPrice    float64
	NewPrice    float64
}

type Welcome struct {
	To   string
	Name string
}

type DigestItem struct {
	ProductName string
	ProductURL  string
	OldPrice    float64
	NewPrice    float64
}

type Digest struct {
	To    string
	Name  string
	Items []DigestItem
}

// TotalSavings sums the drop of every item, ignoring rises.
func (d Digest) TotalSavings() float64 {
	var total float64
	for _, it := range d.Items {
		if s := pricing.Savings(it.OldPrice, it.NewPrice); s > 0 {
			total += s
		}
	}
	return total
}

type template struct {
	html *htmltemplate.Template
	text *texttemplate.Template
}

func mustTemplate(name string) template {
	return template{
		html: htmltemplate.Must(htmltemplate.ParseFS(templateFS, "templates/"+name+".html")),
		text: texttemplate.Must(texttemplate.ParseFS(templateFS, "templates/"+name+".txt")),
	}
}

type Dispatcher struct {
	transport Transport
	appURL    string
	now       func() time.Time

	priceDrop template
	welcome   template
	digest    template
}

func New(transport Transport, appURL string) *Dispatcher {
	if transport == nil {
		transport = LogTransport{}
	}
	return &Dispatcher{
		transport: transport,
		appURL:    strings.TrimRight(appURL, "/"),
		now:       time.Now,
		priceDrop: mustTemplate("price_drop"),
		welcome:   mustTemplate("welcome"),
		digest:    mustTemplate("digest"),
	}
}

type lineView struct {
	ProductName string
	ProductURL  string
	Old         string
	New         string
	Savings     string
	PercentOff  int
}

func newLineView(name, url string, oldPrice, newPrice float64) lineView {
	return lineView{
		ProductName: name,
		ProductURL:  url,
		Old:         pricing.Format(oldPrice),
		New:         pricing.Format(newPrice),
		Savings:     pricing.Format(pricing.Savings(oldPrice, newPrice)),
		PercentOff:  pricing.PercentOff(oldPrice, newPrice),
	}
}

func (d *Dispatcher) SendPriceDrop(ctx context.Context, in PriceDrop) error {
	view := struct {
		lineView
		Name     string
		ImageURL string
		AppURL   string
		Year     int
	}{
		lineView: newLineView(in.ProductName, in.ProductURL, in.OldPrice, in.NewPrice),
		Name:     greeting(in.Name),
		ImageURL: in.ImageURL,
		AppURL:   d.appURL,
		Year:     d.now().Year(),
	}
	subject := fmt.Sprintf("Price Drop Alert: %s is now $%s!", in.ProductName, view.New)
	return d.send(ctx, in.To, subject, d.priceDrop, view)
}

func (d *Dispatcher) SendWelcome(ctx context.Context, in Welcome) error {
	view := struct {
		Name   string
		AppURL string
		Year   int
	}{greeting(in.Name), d.appURL, d.now().Year()}
	return d.send(ctx, in.To, "Welcome to PriceDrop - Start Saving Today!", d.welcome, view)
}

func (d *Dispatcher) SendWeeklyDigest(ctx context.Context, in Digest) error {
	items := make([]lineView, 0, len(in.Items))
	for _, it := range in.Items {
		items = append(items, newLineView(it.ProductName, it.ProductURL, it.OldPrice, it.NewPrice))
	}
	view := struct {
		Name   string
		Total  string
		Items  []lineView
		AppURL string
		Year   int
	}{greeting(in.Name), pricing.Format(in.TotalSavings()), items, d.appURL, d.now().Year()}
	subject := fmt.Sprintf("Your Weekly Report: $%s in Savings!", view.Total)
	return d.send(ctx, in.To, subject, d.digest, view)
}

func (d *Dispatcher) send(ctx context.Context, to, subject string, tpl template, view any) error {
	addr, err := mail.ParseAddress(to)
	if err != nil {
		return &DispatchError{Kind: KindInvalidAddress, To: to, Err: err}
	}

	var html, text bytes.Buffer
	if err := tpl.html.Execute(&html, view); err != nil {
		return &DispatchError{Kind: KindRender, To: to, Err: errors.Wrap(err, "render html")}
	}
	if err := tpl.text.Execute(&text, view); err != nil {
		return &DispatchError{Kind: KindRender, To: to, Err: errors.Wrap(err, "render text")}
	}

	msg := Message{To: addr.Address, Subject: subject, HTML: html.String(), Text: text.String()}
	if err := d.transport.Send(ctx, msg); err != nil {
		return &DispatchError{Kind: KindTransport, To: to, Err: err}
	}
	return nil
}

func greeting(name string) string {
	if strings.TrimSpace(name) == "" {
		return "there"
	}
	return name
}

// LogTransport writes messages to the log instead of sending them.
type LogTransport struct{}

func (LogTransport) Send(ctx context.Context, msg Message) error {
	slog.Info("email not sent, no transport configured", "to", msg.To, "subject", msg.Subject)
	return nil
}
