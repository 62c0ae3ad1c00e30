package local

import (
	"context"

	"spendly/internal/log"
)

// ActionKind names what an action code authorizes.
type ActionKind string

const (
	ActionVerifyEmail   ActionKind = "verifyEmail"
	ActionResetPassword ActionKind = "resetPassword"
)

// Message is an out-of-band email carrying an action code.
type Message struct {
	To   string
	Kind ActionKind
	Code string
}

// Mailer delivers action-code emails.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// LogMailer writes messages to the log instead of sending them.
type LogMailer struct {
	Logger *log.Logger
}

func (m LogMailer) Send(ctx context.Context, msg Message) error {
	m.Logger.InfoContext(ctx, "Action email",
		"to", msg.To,
		"kind", string(msg.Kind),
		"code", msg.Code)
	return nil
}
