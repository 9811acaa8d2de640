package notify

import (
	"bytes"
	"fmt"
	"text/template"
)

const (
	TemplateConfirmation = "reminder.confirmation"
	TemplateUrgent       = "reminder.urgent"
)

type Rendered struct {
	Subject string
	Body    string
}

type messageTemplate struct {
	subject *template.Template
	body    map[Channel]*template.Template
}

// Templates holds the reminder texts keyed by template id and channel.
type Templates struct {
	byID map[string]messageTemplate
}

func DefaultTemplates() *Templates {
	t := &Templates{byID: map[string]messageTemplate{}}
	t.must(TemplateConfirmation,
		`Your appointment at {{.shop_name}} is tomorrow`,
		`Hi {{.client_name}},

This is a reminder of your {{.service_name}} appointment at {{.shop_name}} on {{.local_start}}.
Reply to this email if you need to change it.`,
		`Reminder: {{.service_name}} at {{.shop_name}} on {{.local_start}}.`,
	)
	t.must(TemplateUrgent,
		`Your appointment at {{.shop_name}} starts soon`,
		`Hi {{.client_name}},

Your {{.service_name}} appointment at {{.shop_name}} starts at {{.local_start}}. See you soon.`,
		`{{.shop_name}}: your {{.service_name}} appointment starts at {{.local_start}}.`,
	)
	return t
}

func (t *Templates) must(id, subject, emailBody, smsBody string) {
	opts := "missingkey=zero"
	t.byID[id] = messageTemplate{
		subject: template.Must(template.New(id + ".subject").Option(opts).Parse(subject)),
		body: map[Channel]*template.Template{
			ChannelEmail: template.Must(template.New(id + ".email").Option(opts).Parse(emailBody)),
			ChannelSMS:   template.Must(template.New(id + ".sms").Option(opts).Parse(smsBody)),
		},
	}
}

func (t *Templates) Render(id string, channel Channel, payload map[string]string) (Rendered, error) {
	mt, ok := t.byID[id]
	if !ok {
		return Rendered{}, fmt.Errorf("unknown template %q", id)
	}
	body, ok := mt.body[channel]
	if !ok {
		return Rendered{}, fmt.Errorf("template %q has no %s body", id, channel)
	}

	var subj, text bytes.Buffer
	if err := mt.subject.Execute(&subj, payload); err != nil {
		return Rendered{}, err
	}
	if err := body.Execute(&text, payload); err != nil {
		return Rendered{}, err
	}
	return Rendered{Subject: subj.String(), Body: text.String()}, nil
}
