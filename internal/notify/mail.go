package notify

import (
	"bytes"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/moodlesync/moodlesync/internal/course"
)

// Mail sends the change report as an HTML mail over SMTP.
type Mail struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

var _ Notifier = (*Mail)(nil)

// NotifyChanges mails the report. Change-free runs send nothing.
func (m *Mail) NotifyChanges(set course.ChangeSet, failures []Failure) error {
	if set.Empty() && len(failures) == 0 {
		return nil
	}

	t := set.Tally()
	subject := fmt.Sprintf("moodlesync: %d changes", t.Total())
	if len(failures) > 0 {
		subject = fmt.Sprintf("%s, %d failed", subject, len(failures))
	}

	var html bytes.Buffer
	if err := goldmark.Convert([]byte(Summary(set, failures)), &html); err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", m.Host, m.Port)
	var auth smtp.Auth
	if m.Username != "" {
		auth = smtp.PlainAuth("", m.Username, m.Password, m.Host)
	}
	return smtp.SendMail(addr, auth, m.From, m.To, buildMessage(m.From, m.To, subject, html.String()))
}

// buildMessage assembles a minimal single-part HTML mail.
func buildMessage(from string, to []string, subject, htmlBody string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(htmlBody)
	b.WriteString("\r\n")
	return []byte(b.String())
}
