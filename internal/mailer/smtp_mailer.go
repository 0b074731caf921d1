package mailer

import (
	"fmt"

	"gopkg.in/gomail.v2"
)

// SMTPConfig holds the SMTP connection details.
type SMTPConfig struct {
	Host     string
	Port     int
	From     string
	Password string
}

// SMTPMailer sends mail over SMTP via gomail.
type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
}

// NewSMTPMailer creates a new SMTPMailer.
func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.From, cfg.Password),
		from:   cfg.From,
	}
}

func (m *SMTPMailer) send(to, subject, body string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)
	return m.dialer.DialAndSend(msg)
}

// SendVerificationCode mails the email-verification code.
func (m *SMTPMailer) SendVerificationCode(to, code string) error {
	return m.send(to, "Verify your email address",
		"Your verification code is "+code+". It expires in 24 hours.")
}

// SendPasswordResetCode mails the password-reset code.
func (m *SMTPMailer) SendPasswordResetCode(to, code string) error {
	return m.send(to, "Password reset requested",
		"Your password reset code is "+code+". It expires in 15 minutes. If you did not request a reset, ignore this message.")
}

// SendEmailChangeCode mails the confirmation code to the new address.
func (m *SMTPMailer) SendEmailChangeCode(to, code string) error {
	return m.send(to, "Confirm your new email address",
		"Your email change code is "+code+". It expires in 15 minutes.")
}

// SendOrderConfirmation mails the order confirmation.
func (m *SMTPMailer) SendOrderConfirmation(to, orderNumber string, total float64) error {
	return m.send(to, fmt.Sprintf("Order %s confirmed", orderNumber),
		fmt.Sprintf("Thank you for your purchase. Order %s for %.2f has been received.", orderNumber, total))
}
