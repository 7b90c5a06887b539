package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"
)

// mailTimeout bounds one background send.
const mailTimeout = 30 * time.Second

// EventKind identifies an outbound account notification.
type EventKind string

const (
	EventVerificationCode EventKind = "verification_code"
	EventPasswordReset    EventKind = "password_reset"
)

// Event is a one-way notification the auth flow emits. Code and Token carry
// the raw one-time secret; they exist only in memory on the way to the
// mailer.
type Event struct {
	Kind  EventKind
	To    string
	Name  string
	Code  string
	Token string
}

// Notifier is the outbound port for account notifications. Notify must not
// block on delivery and has no error result: delivery failures are the
// notifier's to log.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

// MailSender is the subset of the mail service the notifier needs.
type MailSender interface {
	SendMail(ctx context.Context, to []string, subject, body string) error
	IsConfigured(ctx context.Context) bool
}

// MailNotifier renders account emails and sends them in the background.
type MailNotifier struct {
	mail        MailSender
	frontendURL string
	codeTTL     time.Duration
	resetTTL    time.Duration
	wg          sync.WaitGroup
}

// NewMailNotifier creates a notifier. frontendURL is the SPA origin reset
// links point to; the TTLs are only quoted in the email text.
func NewMailNotifier(mail MailSender, frontendURL string, codeTTL, resetTTL time.Duration) *MailNotifier {
	return &MailNotifier{
		mail:        mail,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		codeTTL:     codeTTL,
		resetTTL:    resetTTL,
	}
}

// Notify renders the event and sends it on a goroutine detached from the
// request's cancellation.
func (n *MailNotifier) Notify(ctx context.Context, ev Event) {
	subject, body, err := n.render(ev)
	if err != nil {
		slog.Error("rendering notification", slog.String("kind", string(ev.Kind)), slog.Any("error", err))
		return
	}

	if !n.mail.IsConfigured(ctx) {
		slog.Warn("mail not configured, notification dropped",
			slog.String("kind", string(ev.Kind)),
		)
		return
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), mailTimeout)
		defer cancel()

		if err := n.mail.SendMail(sendCtx, []string{ev.To}, subject, body); err != nil {
			slog.Error("sending notification email",
				slog.String("kind", string(ev.Kind)),
				slog.Any("error", err),
			)
		}
	}()
}

// Wait blocks until in-flight sends finish. Called on shutdown.
func (n *MailNotifier) Wait() {
	n.wg.Wait()
}

func (n *MailNotifier) render(ev Event) (subject, body string, err error) {
	greeting := "Hello,"
	if ev.Name != "" {
		greeting = fmt.Sprintf("Hello %s,", ev.Name)
	}

	switch ev.Kind {
	case EventVerificationCode:
		subject = "Your verification code"
		body = fmt.Sprintf("%s\n\n"+
			"Welcome! Please verify your email address.\n\n"+
			"Your verification code is: %s\n\n"+
			"This code expires in %s.\n\n"+
			"If you didn't create an account, you can ignore this email.\n",
			greeting, ev.Code, humanDuration(n.codeTTL))

	case EventPasswordReset:
		link := fmt.Sprintf("%s/reset-password?token=%s", n.frontendURL, url.QueryEscape(ev.Token))
		subject = "Reset your password"
		body = fmt.Sprintf("%s\n\n"+
			"You requested a password reset.\n\n"+
			"Open the link below to set a new password. This link expires in %s.\n\n"+
			"%s\n\n"+
			"If you did not request this, you can ignore this email.\n",
			greeting, humanDuration(n.resetTTL), link)

	default:
		return "", "", fmt.Errorf("unknown notification kind %q", ev.Kind)
	}
	return subject, body, nil
}

// humanDuration renders whole hours or minutes ("24 hours", "1 hour",
// "30 minutes").
func humanDuration(d time.Duration) string {
	plural := func(n int, unit string) string {
		if n == 1 {
			return fmt.Sprintf("1 %s", unit)
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}
	if d >= time.Hour && d%time.Hour == 0 {
		return plural(int(d/time.Hour), "hour")
	}
	return plural(int(d.Round(time.Minute)/time.Minute), "minute")
}
