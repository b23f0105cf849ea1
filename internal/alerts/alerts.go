// Package alerts pushes operator notifications through pushover and
// telegram. Senders are best-effort: a failed push never fails the
// hedge cycle that triggered it.
package alerts

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Pushover priority levels. Telegram ignores them.
const (
	PriorityLow       = -1
	PriorityNormal    = 0
	PriorityHigh      = 1
	PriorityEmergency = 2
)

type Message struct {
	Title    string
	Body     string
	Priority int
	Sound    string
}

type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// Sender fans a message out to every configured notifier and joins
// their failures.
type Sender struct {
	notifiers []Notifier
	log       *zap.Logger
}

func NewSender(log *zap.Logger, notifiers ...Notifier) *Sender {
	return &Sender{notifiers: notifiers, log: log}
}

func (s *Sender) Send(ctx context.Context, msg Message) error {
	var errs []error
	for _, n := range s.notifiers {
		if err := n.Send(ctx, msg); err != nil {
			errs = append(errs, err)
			if s.log != nil {
				s.log.Warn("alert delivery failed", zap.String("title", msg.Title), zap.Error(err))
			}
		}
	}
	return errors.Join(errs...)
}

func ThresholdExceeded(symbol string, offset float64, detail string) Message {
	return Message{
		Title: "Hedge offset out of band",
		Body: fmt.Sprintf("symbol: %s\noffset: %.4f\n%s",
			symbol, offset, detail),
		Priority: PriorityHigh,
		Sound:    "siren",
	}
}

func ForceClose(symbol, side string, size float64) Message {
	return Message{
		Title: "Force close executed",
		Body: fmt.Sprintf("symbol: %s\nside: %s\nsize: %.4f\nreason: resting order timed out",
			symbol, side, size),
		Priority: PriorityNormal,
	}
}

func OrderPlaced(symbol, side string, size, price float64) Message {
	return Message{
		Title: "Hedge order placed",
		Body: fmt.Sprintf("symbol: %s\nside: %s\nsize: %.4f\nprice: $%.2f",
			symbol, side, size, price),
		Priority: PriorityLow,
	}
}

func SymbolFailing(symbol string, failures int, err error) Message {
	return Message{
		Title: "Symbol pipeline failing",
		Body: fmt.Sprintf("symbol: %s\nconsecutive_failures: %d\nlast_error: %v",
			symbol, failures, err),
		Priority: PriorityHigh,
	}
}
