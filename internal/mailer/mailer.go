package mailer

// Mailer sends transactional storefront mail. Every send is a
// best-effort side effect: callers log failures and move on, the
// primary operation never depends on delivery.
type Mailer interface {
	SendVerificationCode(to, code string) error
	SendPasswordResetCode(to, code string) error
	SendEmailChangeCode(to, code string) error
	SendOrderConfirmation(to, orderNumber string, total float64) error
}

// Noop is a Mailer that silently drops everything. Used in tests and
// when SMTP is not configured.
type Noop struct{}

func (Noop) SendVerificationCode(to, code string) error  { return nil }
func (Noop) SendPasswordResetCode(to, code string) error { return nil }
func (Noop) SendEmailChangeCode(to, code string) error   { return nil }
func (Noop) SendOrderConfirmation(to, orderNumber string, total float64) error {
	return nil
}
