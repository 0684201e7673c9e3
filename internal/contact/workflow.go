package contact

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultResetDelay is how long the workflow stays Succeeded before it
// returns to Idle on its own.
const DefaultResetDelay = 3 * time.Second

// Options configures a Workflow. Dispatcher is required.
type Options struct {
	Dispatcher Dispatcher
	Notifier   Notifier
	Clock      Clock
	ResetDelay time.Duration
	Logger     *slog.Logger

	// OnTransition is called for every state change while the workflow
	// lock is held. It must not call back into the workflow.
	OnTransition func(from, to State)
}

// Workflow owns one visitor's contact message and submission state.
// It is safe for concurrent use; the Submitting state is the only guard
// against overlapping dispatches.
type Workflow struct {
	mu     sync.Mutex
	msg    Message
	state  State
	closed bool

	reset    Timer
	resetGen uint64

	dispatcher   Dispatcher
	notifier     Notifier
	clock        Clock
	resetDelay   time.Duration
	log          *slog.Logger
	onTransition func(from, to State)
}

// Snapshot is a consistent view of a workflow.
type Snapshot struct {
	State   State   `json:"state"`
	Message Message `json:"message"`
}

func NewWorkflow(opts Options) *Workflow {
	w := &Workflow{
		dispatcher:   opts.Dispatcher,
		notifier:     opts.Notifier,
		clock:        opts.Clock,
		resetDelay:   opts.ResetDelay,
		log:          opts.Logger,
		onTransition: opts.OnTransition,
	}
	if w.clock == nil {
		w.clock = SystemClock
	}
	if w.resetDelay <= 0 {
		w.resetDelay = DefaultResetDelay
	}
	if w.log == nil {
		w.log = slog.Default()
	}
	if w.notifier == nil {
		w.notifier = NotifierFunc(func(*DispatchError) {})
	}
	return w
}

// UpdateField overwrites one field of the message. No validation happens
// here; it is deferred to Submit.
func (w *Workflow) UpdateField(f Field, value string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	w.msg.Set(f, value)
	return nil
}

// State returns the current submission state.
func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Message returns a copy of the message being edited.
func (w *Workflow) Message() Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.msg
}

func (w *Workflow) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Snapshot{State: w.state, Message: w.msg}
}

// Submit validates the current message and dispatches it once.
//
// It returns ErrInProgress without side effects while another dispatch is
// outstanding, a *ValidationError when a field is missing or malformed, and
// a *DispatchError when the delivery service fails. On failure the message
// is kept and the workflow is Idle again. On success the message is cleared
// and the workflow stays Succeeded for the reset delay.
func (w *Workflow) Submit(ctx context.Context) error {
	return w.SubmitWith(ctx, nil)
}

// SubmitWith applies updates and submits in one step. Nothing is applied
// when the workflow is closed or already Submitting, so a concurrent
// resubmission cannot overwrite the message in flight.
func (w *Workflow) SubmitWith(ctx context.Context, updates map[Field]string) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	if w.state == Submitting {
		w.mu.Unlock()
		return ErrInProgress
	}
	for f, v := range updates {
		w.msg.Set(f, v)
	}
	if err := Validate(w.msg); err != nil {
		w.mu.Unlock()
		return err
	}

	w.cancelReset()
	payload := w.msg.Payload()
	w.transition(Submitting)
	w.mu.Unlock()

	err := w.dispatcher.Send(ctx, payload)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		w.log.Debug("dispatch finished after teardown", "error", err)
		return ErrClosed
	}

	if err != nil {
		derr := &DispatchError{Err: err}
		w.transition(Idle)
		w.log.Warn("contact dispatch failed", "error", err)
		w.notifier.Notify(derr)
		return derr
	}

	w.msg = Message{}
	w.transition(Succeeded)
	w.scheduleReset()
	w.log.Info("contact message dispatched")
	return nil
}

// Close tears the workflow down. The pending reset is cancelled and a
// dispatch still in flight will not touch the state when it returns.
func (w *Workflow) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	w.cancelReset()
}

// Closed reports whether Close has been called.
func (w *Workflow) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

func (w *Workflow) transition(to State) {
	from := w.state
	if from == to {
		return
	}
	w.state = to
	if w.onTransition != nil {
		w.onTransition(from, to)
	}
}

// scheduleReset must be called with mu held.
func (w *Workflow) scheduleReset() {
	w.resetGen++
	gen := w.resetGen
	w.reset = w.clock.AfterFunc(w.resetDelay, func() {
		w.expire(gen)
	})
}

// cancelReset must be called with mu held.
func (w *Workflow) cancelReset() {
	w.resetGen++
	if w.reset != nil {
		w.reset.Stop()
		w.reset = nil
	}
}

func (w *Workflow) expire(gen uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	// A timer that lost the race with Stop or a newer schedule is stale.
	if w.closed || gen != w.resetGen || w.state != Succeeded {
		return
	}
	w.reset = nil
	w.transition(Idle)
}
