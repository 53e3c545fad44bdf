package mailer

import (
	"fmt"
	"net"
	"net/smtp"
	"strings"

	"github.com/rs/zerolog"
)

type Config struct {
	Host      string
	Port      string
	From      string
	Password  string
	Operators []string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Mailer notifies operators about registrations that could not be reconciled.
type Mailer struct {
	cfg  Config
	log  *zerolog.Logger
	send sendFunc
}

func New(cfg Config, log *zerolog.Logger) *Mailer {
	return &Mailer{cfg: cfg, log: log, send: smtp.SendMail}
}

func (m *Mailer) Enabled() bool {
	return m.cfg.Host != "" && len(m.cfg.Operators) > 0
}

// SendReconcileAlert reports a registration whose membership was committed
// but whose record is still missing after all reconcile attempts.
func (m *Mailer) SendReconcileAlert(eventID, userID string, attempts int, cause string) error {
	if !m.Enabled() {
		m.log.Warn().
			Str("event_id", eventID).
			Str("user_id", userID).
			Msg("SMTP not configured, reconcile alert not mailed")
		return nil
	}

	subject := fmt.Sprintf("[eventsphere] registration needs manual reconciliation (event %s)", eventID)
	body := fmt.Sprintf(
		"User %s holds a seat in event %s but has no registration record.\n"+
			"Reconciliation gave up after %d attempts.\n\nLast error: %s\n",
		userID, eventID, attempts, cause,
	)
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		m.cfg.From, strings.Join(m.cfg.Operators, ", "), subject, body,
	)

	addr := net.JoinHostPort(m.cfg.Host, m.cfg.Port)
	auth := smtp.PlainAuth("", m.cfg.From, m.cfg.Password, m.cfg.Host)

	if err := m.send(addr, auth, m.cfg.From, m.cfg.Operators, []byte(msg)); err != nil {
		m.log.Warn().Err(err).Strs("to", m.cfg.Operators).Msg("failed to send reconcile alert")
		return fmt.Errorf("send email: %w", err)
	}

	m.log.Info().Str("event_id", eventID).Str("user_id", userID).Msg("reconcile alert sent")
	return nil
}
