package contact

import (
	"context"
	"log/slog"
	"time"
)

// Payload holds the template parameters sent to the delivery service.
type Payload struct {
	FromName string `json:"from_name"`
	ReplyTo  string `json:"reply_to"`
	Subject  string `json:"subject"`
	Message  string `json:"message"`
}

// Dispatcher delivers a single contact message.
type Dispatcher interface {
	Send(ctx context.Context, p Payload) error
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(ctx context.Context, p Payload) error

func (f DispatcherFunc) Send(ctx context.Context, p Payload) error {
	return f(ctx, p)
}

// Notifier surfaces a failed dispatch to the visitor.
type Notifier interface {
	Notify(err *DispatchError)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(err *DispatchError)

func (f NotifierFunc) Notify(err *DispatchError) {
	f(err)
}

// Attempt describes one finished dispatch, reported by Observed.
type Attempt struct {
	Payload  Payload
	Duration time.Duration
	Err      error
}

// Observed wraps next and reports every attempt to fn after it completes.
func Observed(next Dispatcher, fn func(ctx context.Context, a Attempt)) Dispatcher {
	return DispatcherFunc(func(ctx context.Context, p Payload) error {
		start := time.Now()
		err := next.Send(ctx, p)
		fn(ctx, Attempt{Payload: p, Duration: time.Since(start), Err: err})
		return err
	})
}

// LogDispatcher only logs the message. Used in development when no
// delivery service is configured.
type LogDispatcher struct {
	log *slog.Logger
}

func NewLogDispatcher(log *slog.Logger) *LogDispatcher {
	return &LogDispatcher{log: log.With("component", "contact_dispatch")}
}

func (d *LogDispatcher) Send(ctx context.Context, p Payload) error {
	d.log.InfoContext(ctx, "contact message delivered to log",
		"from_name", p.FromName,
		"reply_to", p.ReplyTo,
		"subject", p.Subject,
		"length", len(p.Message),
	)
	return nil
}
