// Package mail delivers outbound messages with attachments.
package mail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	gomail "github.com/wneessen/go-mail"

	"tallybook.io/internal/config"
	"tallybook.io/internal/obs"
)

var ErrNoRecipients = errors.New("mail: at least one recipient is required")

type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

type Message struct {
	To          []string
	CC          []string
	Subject     string
	Body        string
	Attachments []Attachment
}

// recipients drops blanks and case-insensitive duplicates. An address listed
// in both To and CC stays in To only.
func (m Message) recipients() (to, cc []string) {
	seen := map[string]bool{}
	pick := func(in []string) []string {
		var out []string
		for _, addr := range in {
			addr = strings.TrimSpace(addr)
			key := strings.ToLower(addr)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, addr)
		}
		return out
	}
	to = pick(m.To)
	cc = pick(m.CC)
	return to, cc
}

// Sender delivers a message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// New returns an SMTP sender when the server is configured and a logging
// sender otherwise.
func New(cfg config.MailConfig) (Sender, error) {
	if !cfg.Enabled() {
		return LogSender{}, nil
	}
	client, err := gomail.NewClient(cfg.Server,
		gomail.WithPort(cfg.Port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(cfg.Username),
		gomail.WithPassword(cfg.Password),
		gomail.WithTLSPolicy(gomail.TLSMandatory),
		gomail.WithTimeout(30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("mail: client: %w", err)
	}
	return &SMTPSender{cfg: cfg, client: client}, nil
}

type dialer interface {
	DialAndSendWithContext(ctx context.Context, messages ...*gomail.Msg) error
}

// SMTPSender sends through an authenticated SMTP relay.
type SMTPSender struct {
	cfg    config.MailConfig
	client dialer
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	m, err := Compose(s.cfg.FromName, s.cfg.Username, msg)
	if err != nil {
		return err
	}
	if err := s.client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("mail: send: %w", err)
	}
	to, cc := msg.recipients()
	obs.FromContext(ctx).WithFields(logrus.Fields{
		"subject":     msg.Subject,
		"recipients":  len(to) + len(cc),
		"attachments": len(msg.Attachments),
	}).Info("mail sent")
	return nil
}

// LogSender only records that a message would have been sent.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, msg Message) error {
	to, cc := msg.recipients()
	if len(to)+len(cc) == 0 {
		return ErrNoRecipients
	}
	obs.FromContext(ctx).WithFields(logrus.Fields{
		"to":          to,
		"cc":          cc,
		"subject":     msg.Subject,
		"attachments": len(msg.Attachments),
	}).Info("mail delivery disabled, message logged")
	return nil
}

// Compose builds the multipart message with a plain text body and one part
// per attachment.
func Compose(fromName, from string, msg Message) (*gomail.Msg, error) {
	to, cc := msg.recipients()
	if len(to)+len(cc) == 0 {
		return nil, ErrNoRecipients
	}
	m := gomail.NewMsg(gomail.WithNoDefaultUserAgent())
	if err := m.FromFormat(fromName, from); err != nil {
		return nil, fmt.Errorf("mail: from: %w", err)
	}
	if len(to) > 0 {
		if err := m.To(to...); err != nil {
			return nil, fmt.Errorf("mail: to: %w", err)
		}
	}
	if len(cc) > 0 {
		if err := m.Cc(cc...); err != nil {
			return nil, fmt.Errorf("mail: cc: %w", err)
		}
	}
	m.Subject(msg.Subject)
	m.SetDate()
	m.SetMessageID()
	m.SetBodyString(gomail.TypeTextPlain, msg.Body)
	for _, a := range msg.Attachments {
		ct := gomail.ContentType(a.ContentType)
		if ct == "" {
			ct = gomail.TypeAppOctetStream
		}
		if err := m.AttachReader(a.Filename, bytes.NewReader(a.Data), gomail.WithFileContentType(ct)); err != nil {
			return nil, fmt.Errorf("mail: attach %s: %w", a.Filename, err)
		}
	}
	return m, nil
}
