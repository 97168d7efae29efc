package mailer

// Service is the outbound email transport. Delivery is fire-and-forget
// from the booking core's perspective; failures are the transport's to
// handle beyond being reported to the caller.
type Service interface {
	Send(toEmail, toName, subject, text, html string) (string, error)
}
