package notify

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/gomail.v2"
)

// defaultSMTPTimeout bounds a delivery whose context carries no deadline.
const defaultSMTPTimeout = 30 * time.Second

type mailTransport interface {
	Deliver(ctx context.Context, m *gomail.Message) error
}

// SMTPSender sends email through an SMTP relay. Username may be empty for
// unauthenticated relays such as Mailpit.
type SMTPSender struct {
	transport mailTransport
	from      string
}

func NewSMTPSender(host string, port int, username, password, from string) *SMTPSender {
	host = strings.TrimSpace(host)
	from = strings.TrimSpace(from)
	if from == "" {
		from = "no-reply@apptbook.local"
	}
	return &SMTPSender{
		transport: &smtpTransport{
			addr:     net.JoinHostPort(host, strconv.Itoa(port)),
			host:     host,
			username: username,
			password: password,
		},
		from: from,
	}
}

func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)
	return s.transport.Deliver(ctx, m)
}

// smtpTransport delivers one message per connection. The connection deadline
// follows ctx, so a relay that stops answering fails the send instead of
// holding the goroutine.
type smtpTransport struct {
	addr     string
	host     string
	username string
	password string
}

func (t *smtpTransport) Deliver(ctx context.Context, m *gomail.Message) error {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", t.addr)
	if err != nil {
		return deliveryErr(ctx, err)
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultSMTPTimeout)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return err
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	c, err := smtp.NewClient(conn, t.host)
	if err != nil {
		conn.Close()
		return deliveryErr(ctx, err)
	}
	defer c.Close()

	if err := c.Hello("localhost"); err != nil {
		return deliveryErr(ctx, err)
	}
	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: t.host}); err != nil {
			return deliveryErr(ctx, err)
		}
	}
	if t.username != "" {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(smtp.PlainAuth("", t.username, t.password, t.host)); err != nil {
				return deliveryErr(ctx, err)
			}
		}
	}

	send := gomail.SendFunc(func(from string, to []string, msg io.WriterTo) error {
		if err := c.Mail(from); err != nil {
			return err
		}
		for _, rcpt := range to {
			if err := c.Rcpt(rcpt); err != nil {
				return err
			}
		}
		w, err := c.Data()
		if err != nil {
			return err
		}
		if _, err := msg.WriteTo(w); err != nil {
			w.Close()
			return err
		}
		return w.Close()
	})
	if err := gomail.Send(send, m); err != nil {
		return deliveryErr(ctx, err)
	}
	return deliveryErr(ctx, c.Quit())
}

// deliveryErr reports the context error in place of the i/o timeout it caused.
func deliveryErr(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if cerr := ctx.Err(); cerr != nil {
		return cerr
	}
	if deadline, ok := ctx.Deadline(); ok && !time.Now().Before(deadline) {
		return context.DeadlineExceeded
	}
	return err
}
