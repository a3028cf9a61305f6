// Package delivery hands verification codes to the out-of-process channel
// (email or SMS gateway) that actually reaches the user.
package delivery

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/logging"
)

// Message is one code addressed to one identity.
type Message struct {
	Channel   string    `json:"channel"`
	To        string    `json:"to"`
	Purpose   string    `json:"purpose"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender writes codes to the log. Development only.
type LogSender struct {
	log logging.Logger
}

func NewLogSender(log logging.Logger) *LogSender {
	return &LogSender{log: log.With("module", "delivery")}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.log.Info(ctx, "verification code",
		"channel", msg.Channel, "to", msg.To, "purpose", msg.Purpose,
		"code", msg.Code, "expires_at", msg.ExpiresAt)
	return nil
}
