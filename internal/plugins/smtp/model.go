// Package smtp provides outbound email for the portal. Settings come from
// the environment at startup; when no host is configured, mail is disabled
// and callers are expected to check IsConfigured.
package smtp

import (
	"fmt"
	"net/mail"
	"strings"
	"time"
)

// Settings holds the SMTP configuration.
type Settings struct {
	Host        string
	Port        int
	Username    string
	Password    string
	FromAddress string
	FromName    string

	// Encryption is "starttls", "ssl" or "none".
	Encryption string

	// Timeout bounds dialing and the whole SMTP conversation.
	Timeout time.Duration
}

// Mail represents an email message to be sent.
type Mail struct {
	To      []string
	Subject string
	Body    string
}

// buildMessage renders an RFC 5322 message with a plain-text UTF-8 body.
// Header values are stripped of CR and LF so user-influenced fields cannot
// inject headers.
func buildMessage(from mail.Address, m Mail, now time.Time) string {
	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("From: %s\r\n", from.String()))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", headerValue(strings.Join(m.To, ", "))))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", headerValue(m.Subject)))
	msg.WriteString(fmt.Sprintf("Date: %s\r\n", now.UTC().Format(time.RFC1123Z)))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(m.Body)
	return msg.String()
}

func headerValue(s string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(s)
}
