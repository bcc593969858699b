package email

import (
	"fmt"
	"net/smtp"
	"time"

	"github.com/Dan9191/sales-forecast/internal/config"
	"github.com/Dan9191/sales-forecast/internal/models"
	"github.com/jordan-wright/email"
	"github.com/sirupsen/logrus"
)

// Sender handles sending emails via SMTP
type Sender struct {
	cfg    *config.Config
	logger *logrus.Logger
	send   func(e *email.Email, addr string, a smtp.Auth) error
}

// NewSender creates a new email sender
func NewSender(cfg *config.Config, logger *logrus.Logger) *Sender {
	return &Sender{
		cfg:    cfg,
		logger: logger,
		send: func(e *email.Email, addr string, a smtp.Auth) error {
			return e.Send(addr, a)
		},
	}
}

// Enabled reports whether SMTP and a recipient are configured
func (s *Sender) Enabled() bool {
	return s.cfg.NotificationsEnabled()
}

// SendRunSummary sends the outcome of a successful forecast run
func (s *Sender) SendRunSummary(summary *models.RunSummary) error {
	e := email.NewEmail()
	e.Subject = fmt.Sprintf("Sales forecast completed for %s", summary.PredictionDate.Format("2006-01-02"))

	// Format email body
	body := "Hello,\n\n"
	body += fmt.Sprintf(
		"The sales forecast run %s finished at %s.\n\n"+
			"Last observed date: %s\n"+
			"Observations: %d\n"+
			"Model: %s\n"+
			"Forecast horizon: %d months\n"+
			"Forecast rows: %d\n"+
			"Confidence interval rows: %d\n"+
			"Artifact: %s\n"+
			"Artifact digest: %s\n",
		summary.RunID, summary.FinishedAt.Format(time.RFC3339),
		summary.PredictionDate.Format("2006-01-02"),
		summary.Observations,
		summary.Model,
		summary.Horizon,
		summary.ForecastRows,
		summary.IntervalRows,
		summary.ArtifactPath,
		summary.ArtifactDigest,
	)
	body += "\nBest regards,\nSales Forecast"
	e.Text = []byte(body)

	return s.deliver(e)
}

// SendRunFailure sends a notification that a forecast run failed
func (s *Sender) SendRunFailure(runErr error) error {
	e := email.NewEmail()
	e.Subject = "Sales forecast run failed"

	body := "Hello,\n\n"
	body += fmt.Sprintf(
		"The sales forecast run failed at %s:\n\n%v\n\n"+
			"No confidence intervals were written unless stated otherwise in the job logs.\n",
		time.Now().UTC().Format(time.RFC3339), runErr,
	)
	body += "\nBest regards,\nSales Forecast"
	e.Text = []byte(body)

	return s.deliver(e)
}

func (s *Sender) deliver(e *email.Email) error {
	if !s.Enabled() {
		s.logger.Debugf("Notifications disabled, skipping email: %s", e.Subject)
		return nil
	}
	e.From = s.cfg.SenderEmail
	e.To = []string{s.cfg.NotifyEmail}

	// Send email
	addr := fmt.Sprintf("%s:%s", s.cfg.SMTPHost, s.cfg.SMTPPort)
	auth := smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	if err := s.send(e, addr, auth); err != nil {
		s.logger.Errorf("Failed to send email to %s: %v", s.cfg.NotifyEmail, err)
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Infof("Email sent to %s: %s", s.cfg.NotifyEmail, e.Subject)
	return nil
}
