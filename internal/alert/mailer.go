// Package alert delivers operational email alerts, primarily for upstream
// credential failures that need a human to rotate a token.
package alert

import (
	"context"
	"fmt"
	"sync"
	"time"

	"clickbridge_backend/platform/config"
	"clickbridge_backend/platform/logger"

	gomail "github.com/wneessen/go-mail"
)

// Alerts for the same subject are suppressed for this long, so a broken
// token retried by the queue does not flood the inbox.
const throttleWindow = time.Hour

// Mailer sends operator alerts over SMTP. An unconfigured mailer is a valid
// no-op, which keeps local and test environments quiet.
type Mailer struct {
	host     string
	port     int
	username string
	password string
	from     string
	to       string
	enabled  bool
	log      *logger.Logger

	mu       sync.Mutex
	lastSent map[string]time.Time
	now      func() time.Time
}

// NewMailer creates an alert mailer from configuration.
func NewMailer(cfg config.AlertConfig, log *logger.Logger) *Mailer {
	return &Mailer{
		host:     cfg.GetAlertSMTPHost(),
		port:     cfg.GetAlertSMTPPort(),
		username: cfg.GetAlertSMTPUsername(),
		password: cfg.GetAlertSMTPPassword(),
		from:     cfg.GetAlertFromAddress(),
		to:       cfg.GetAlertToAddress(),
		enabled:  cfg.IsAlertEnabled(),
		log:      log,
		lastSent: make(map[string]time.Time),
		now:      time.Now,
	}
}

// Notify sends one alert email, throttled per subject.
func (m *Mailer) Notify(ctx context.Context, subject, body string) error {
	if m == nil || !m.enabled {
		return nil
	}

	if !m.shouldSend(subject) {
		m.log.Debug("alert throttled", "subject", subject)
		return nil
	}

	msg := gomail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return fmt.Errorf("alert from: %w", err)
	}
	if err := msg.To(m.to); err != nil {
		return fmt.Errorf("alert to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextPlain, body)

	client, err := gomail.NewClient(m.host,
		gomail.WithPort(m.port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(m.username),
		gomail.WithPassword(m.password),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15*time.Second),
	)
	if err != nil {
		return fmt.Errorf("alert smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("alert smtp send: %w", err)
	}

	m.log.Info("alert sent", "subject", subject)
	return nil
}

func (m *Mailer) shouldSend(subject string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if last, ok := m.lastSent[subject]; ok && now.Sub(last) < throttleWindow {
		return false
	}
	m.lastSent[subject] = now
	return true
}
