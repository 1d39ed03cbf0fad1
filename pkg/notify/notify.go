// Package notify sends member and admin email notifications.
package notify

import (
	"net/mail"
)

type Message struct {
	To      []mail.Address
	Subject string
	Text    string
	HTML    string
}

func (m *Message) HasRecipients() bool { return len(m.To) > 0 }
func (m *Message) HasContent() bool    { return m.Text != "" || m.HTML != "" }

// Mailer is any service that can send emails.
type Mailer interface {
	// SendMessages sends messages without blocking the caller.
	SendMessages(messages ...*Message)
}
