package security

import (
	"fmt"
	"net"
	"net/smtp"
	"sync"
	"time"

	"stillness-api/internal/config"
	"stillness-api/pkg/logger"
)

// alertCooldown suppresses repeat alerts for the same (type, subject) pair.
const alertCooldown = 5 * time.Minute

// Alerter delivers security alerts by email. Delivery is fire-and-forget:
// it runs off the request path and failures are only logged. When email is
// disabled the alert is logged and nothing is sent.
type Alerter struct {
	cfg *config.Config
	log *logger.Logger
	now func() time.Time

	mu       sync.Mutex
	lastSent map[string]time.Time

	// send is swappable for tests; defaults to smtp.SendMail.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewAlerter creates an alerter from config.
func NewAlerter(cfg *config.Config, log *logger.Logger, now func() time.Time) *Alerter {
	if now == nil {
		now = time.Now
	}
	return &Alerter{
		cfg:      cfg,
		log:      log,
		now:      now,
		lastSent: make(map[string]time.Time),
		send:     smtp.SendMail,
	}
}

// Send emits an alert unless the same (type, subject) fired within the
// cooldown window. Returns whether the alert was accepted for delivery.
func (a *Alerter) Send(alertType, subject, message string) bool {
	key := alertType + "_" + subject
	now := a.now()

	a.mu.Lock()
	if last, ok := a.lastSent[key]; ok && now.Sub(last) < alertCooldown {
		a.mu.Unlock()
		return false
	}
	a.lastSent[key] = now
	a.mu.Unlock()

	if !a.cfg.EnableEmailAlerts {
		a.log.WithFields(map[string]interface{}{
			"alert_type": alertType,
			"subject":    subject,
			"detail":     message,
		}).Warn("Security alert (email delivery disabled)")
		return true
	}

	go a.deliver(alertType, subject, message)
	return true
}

func (a *Alerter) deliver(alertType, subject, message string) {
	body := fmt.Sprintf(
		"Subject: Security Alert: %s\r\nFrom: %s\r\nTo: %s\r\n\r\n"+
			"Security Alert for Stillness Timer\r\n\r\n"+
			"Alert Type: %s\r\nTime: %s\r\n\r\nDetails:\r\n%s\r\n",
		subject, a.cfg.AlertEmailFrom, a.cfg.AlertEmailTo,
		alertType, a.now().Format(eventTimeFormat), message)

	addr := net.JoinHostPort(a.cfg.SMTPHost, a.cfg.SMTPPort)
	auth := smtp.PlainAuth("", a.cfg.AlertEmailFrom, a.cfg.AlertEmailPassword, a.cfg.SMTPHost)

	if err := a.send(addr, auth, a.cfg.AlertEmailFrom, []string{a.cfg.AlertEmailTo}, []byte(body)); err != nil {
		a.log.WithError(err).WithField("subject", subject).Error("Failed to send security alert")
		return
	}

	a.log.WithField("subject", subject).Warn("Security alert sent")
}
