// Package notify is the notification gateway used by reminder dispatch. A send
// either succeeds or returns an error; *Failure carries a provider reason.
package notify

import (
	"context"
	"errors"
	"fmt"
)

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

type Message struct {
	Channel    Channel
	Recipient  string
	TemplateID string
	Payload    map[string]string
}

type Gateway interface {
	Send(ctx context.Context, msg Message) error
}

// Failure is a send the provider rejected or that could not be delivered.
type Failure struct {
	Reason string
	Err    error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("notification failed: %s: %v", f.Reason, f.Err)
	}
	return "notification failed: " + f.Reason
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Reason extracts a short failure reason for attempt logs.
func Reason(err error) string {
	var f *Failure
	switch {
	case errors.As(err, &f):
		return f.Reason
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case err != nil:
		return err.Error()
	}
	return ""
}

// EmailSender delivers a rendered message to one address.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMSSender delivers a rendered text to one phone number.
type SMSSender interface {
	Send(ctx context.Context, to, body string) error
	ProviderID() string
}

// Router renders msg with its template and hands it to the channel's sender.
type Router struct {
	templates *Templates
	email     EmailSender
	sms       SMSSender
}

func NewRouter(templates *Templates, email EmailSender, sms SMSSender) *Router {
	return &Router{templates: templates, email: email, sms: sms}
}

func (r *Router) Send(ctx context.Context, msg Message) error {
	if msg.Recipient == "" {
		return &Failure{Reason: "missing recipient"}
	}
	rendered, err := r.templates.Render(msg.TemplateID, msg.Channel, msg.Payload)
	if err != nil {
		return &Failure{Reason: "template", Err: err}
	}

	switch msg.Channel {
	case ChannelEmail:
		if r.email == nil {
			return &Failure{Reason: "email channel not configured"}
		}
		return wrapFailure("email", r.email.Send(ctx, msg.Recipient, rendered.Subject, rendered.Body))
	case ChannelSMS:
		if r.sms == nil {
			return &Failure{Reason: "sms channel not configured"}
		}
		return wrapFailure(r.sms.ProviderID(), r.sms.Send(ctx, msg.Recipient, rendered.Body))
	}
	return &Failure{Reason: fmt.Sprintf("unknown channel %q", msg.Channel)}
}

func wrapFailure(provider string, err error) error {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return &Failure{Reason: provider + " send error", Err: err}
}
