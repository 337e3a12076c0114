// Package emailsvc sends the portal's notification emails.
package emailsvc

import (
	"github.com/trezcool/beet/core"
)

// New returns the email service selected by conf.Email.Backend.
// Without an API key, sendgrid falls back to the console.
func New(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Email.Backend == core.EmailSendgrid {
		if conf.Email.SendgridAPIKey != "" {
			return NewSendgridService(conf, logger)
		}
		logger.Warn("sendgrid selected without an API key, emails are written to the console")
	}
	return NewConsoleService(conf, logger)
}
