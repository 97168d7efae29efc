package mailer

import "github.com/tourbase/experience-bookings/pkg/logger"

// DevMailer prints outbound mail to the log instead of sending it.
type DevMailer struct{}

func NewDevMailer() *DevMailer { return &DevMailer{} }

func (d *DevMailer) Send(toEmail, toName, subject, text, html string) (string, error) {
	logger.Info("DEV MAIL (not sent)",
		"to", toEmail,
		"to_name", toName,
		"subject", subject,
		"text", text,
	)
	return "dev", nil
}

var _ Service = (*DevMailer)(nil)
