package smtp

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/mail"
	gosmtp "net/smtp"
	"strconv"
	"time"

	"github.com/carelinkhealth/portal/internal/apperror"
)

// defaultTimeout bounds a send when Settings.Timeout is unset.
const defaultTimeout = 10 * time.Second

// MailService is the interface other plugins use to send email.
type MailService interface {
	SendMail(ctx context.Context, to []string, subject, body string) error
	IsConfigured(ctx context.Context) bool
}

// smtpService implements MailService over net/smtp.
type smtpService struct {
	settings Settings
}

// NewMailService creates a mail service from static settings.
func NewMailService(settings Settings) MailService {
	if settings.Timeout <= 0 {
		settings.Timeout = defaultTimeout
	}
	if settings.Port <= 0 {
		settings.Port = 587
	}
	if settings.Encryption == "" {
		settings.Encryption = "starttls"
	}
	return &smtpService{settings: settings}
}

// IsConfigured returns true if a host and sender address are set.
func (s *smtpService) IsConfigured(_ context.Context) bool {
	return s.settings.Host != "" && s.settings.FromAddress != ""
}

// SendMail sends a plain-text email. The context deadline, if any, caps the
// connection deadline.
func (s *smtpService) SendMail(ctx context.Context, to []string, subject, body string) error {
	if !s.IsConfigured(ctx) {
		return apperror.NewBadRequest("SMTP is not configured")
	}
	if len(to) == 0 {
		return apperror.NewBadRequest("no recipients")
	}

	from := mail.Address{Name: s.settings.FromName, Address: s.settings.FromAddress}
	msg := buildMessage(from, Mail{To: to, Subject: subject, Body: body}, time.Now())

	deadline := time.Now().Add(s.settings.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	addr := net.JoinHostPort(s.settings.Host, strconv.Itoa(s.settings.Port))

	var err error
	switch s.settings.Encryption {
	case "ssl":
		err = s.sendSSL(ctx, addr, deadline, from.Address, to, msg)
	case "none":
		err = s.sendPlain(ctx, addr, deadline, from.Address, to, msg, false)
	default: // "starttls"
		err = s.sendPlain(ctx, addr, deadline, from.Address, to, msg, true)
	}
	if err != nil {
		return err
	}

	slog.Debug("mail sent",
		slog.String("subject", subject),
		slog.Int("recipients", len(to)),
	)
	return nil
}

// sendPlain dials without TLS and optionally upgrades with STARTTLS (port
// 587 typical).
func (s *smtpService) sendPlain(ctx context.Context, addr string, deadline time.Time, from string, to []string, msg string, startTLS bool) error {
	dialer := &net.Dialer{Deadline: deadline}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", addr, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(deadline)

	client, err := gosmtp.NewClient(conn, s.settings.Host)
	if err != nil {
		return fmt.Errorf("creating smtp client: %w", err)
	}
	defer client.Close()

	if startTLS {
		tlsConfig := &tls.Config{ServerName: s.settings.Host, MinVersion: tls.VersionTLS12}
		if err := client.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("starting TLS: %w", err)
		}
	}

	if err := s.authenticate(client); err != nil {
		return err
	}
	return sendMessage(client, from, to, msg)
}

// sendSSL sends email using implicit SSL/TLS (port 465 typical).
func (s *smtpService) sendSSL(ctx context.Context, addr string, deadline time.Time, from string, to []string, msg string) error {
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Deadline: deadline},
		Config:    &tls.Config{ServerName: s.settings.Host, MinVersion: tls.VersionTLS12},
	}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("connecting to %s (SSL): %w", addr, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(deadline)

	client, err := gosmtp.NewClient(conn, s.settings.Host)
	if err != nil {
		return fmt.Errorf("creating smtp client: %w", err)
	}
	defer client.Close()

	if err := s.authenticate(client); err != nil {
		return err
	}
	return sendMessage(client, from, to, msg)
}

// authenticate performs PLAIN auth when credentials are configured.
// net/smtp refuses PLAIN over an unencrypted connection to a remote host.
func (s *smtpService) authenticate(client *gosmtp.Client) error {
	if s.settings.Username == "" {
		return nil
	}
	auth := gosmtp.PlainAuth("", s.settings.Username, s.settings.Password, s.settings.Host)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("authenticating: %w", err)
	}
	return nil
}

// sendMessage handles MAIL FROM, RCPT TO, DATA for an existing SMTP client.
func sendMessage(client *gosmtp.Client, from string, to []string, msg string) error {
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	for _, recipient := range to {
		if err := client.Rcpt(recipient); err != nil {
			return fmt.Errorf("RCPT TO %s: %w", recipient, err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := w.Write([]byte(msg)); err != nil {
		return fmt.Errorf("writing message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing data: %w", err)
	}
	return client.Quit()
}
