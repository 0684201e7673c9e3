package contact

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockDispatcher struct {
	mock.Mock
}

func (m *mockDispatcher) Send(ctx context.Context, p Payload) error {
	return m.Called(ctx, p).Error(0)
}

type recorder struct {
	mu       sync.Mutex
	states   []State
	notified []*DispatchError
}

func newRecorder() *recorder {
	return &recorder{states: []State{Idle}}
}

func (r *recorder) transition(_, to State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, to)
}

func (r *recorder) Notify(err *DispatchError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notified = append(r.notified, err)
}

func (r *recorder) Sequence() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func newTestWorkflow(d Dispatcher) (*Workflow, *fakeClock, *recorder) {
	clock := &fakeClock{}
	rec := newRecorder()
	w := NewWorkflow(Options{
		Dispatcher:   d,
		Notifier:     rec,
		Clock:        clock,
		OnTransition: rec.transition,
	})
	return w, clock, rec
}

func fill(t *testing.T, w *Workflow, name, email, subject, message string) {
	t.Helper()
	require.NoError(t, w.UpdateField(FieldName, name))
	require.NoError(t, w.UpdateField(FieldEmail, email))
	require.NoError(t, w.UpdateField(FieldSubject, subject))
	require.NoError(t, w.UpdateField(FieldMessage, message))
}

var adaPayload = Payload{
	FromName: "Ada",
	ReplyTo:  "ada@example.com",
	Subject:  "Hello",
	Message:  "Hi there",
}

func TestUpdateFieldOverwritesOnlyThatField(t *testing.T) {
	w, _, _ := newTestWorkflow(&mockDispatcher{})

	fill(t, w, "Ada", "ada@example.com", "Hello", "Hi there")
	require.NoError(t, w.UpdateField(FieldSubject, "Changed"))
	require.NoError(t, w.UpdateField(FieldSubject, ""))

	assert.Equal(t, Message{Name: "Ada", Email: "ada@example.com", Subject: "", Body: "Hi there"}, w.Message())
	assert.Equal(t, Idle, w.State())
}

func TestSubmitSuccessResetsAfterDelay(t *testing.T) {
	d := &mockDispatcher{}
	d.On("Send", mock.Anything, adaPayload).Return(nil).Once()
	w, clock, rec := newTestWorkflow(d)
	fill(t, w, "Ada", "ada@example.com", "Hello", "Hi there")

	require.NoError(t, w.Submit(context.Background()))

	assert.Equal(t, Succeeded, w.State())
	assert.True(t, w.Message().IsEmpty())

	clock.Advance(DefaultResetDelay - time.Millisecond)
	assert.Equal(t, Succeeded, w.State())

	clock.Advance(time.Millisecond)
	assert.Equal(t, Idle, w.State())
	assert.True(t, w.Message().IsEmpty())

	assert.Equal(t, []State{Idle, Submitting, Succeeded, Idle}, rec.Sequence())
	assert.Empty(t, rec.notified)
	d.AssertExpectations(t)
}

func TestSubmitFailureKeepsFields(t *testing.T) {
	d := &mockDispatcher{}
	d.On("Send", mock.Anything, adaPayload).Return(errors.New("network unreachable")).Once()
	w, clock, rec := newTestWorkflow(d)
	fill(t, w, "Ada", "ada@example.com", "Hello", "Hi there")

	err := w.Submit(context.Background())

	var derr *DispatchError
	require.ErrorAs(t, err, &derr)
	assert.Contains(t, derr.Error(), "network unreachable")
	assert.Equal(t, DispatchErrorMessage, derr.UserMessage())

	assert.Equal(t, Idle, w.State())
	assert.Equal(t, Message{Name: "Ada", Email: "ada@example.com", Subject: "Hello", Body: "Hi there"}, w.Message())
	assert.Equal(t, []State{Idle, Submitting, Idle}, rec.Sequence())
	require.Len(t, rec.notified, 1)
	assert.Same(t, derr, rec.notified[0])
	assert.Zero(t, clock.Pending())
	d.AssertExpectations(t)
}

func TestSubmitWithMissingFieldNeverDispatches(t *testing.T) {
	for _, missing := range Fields {
		t.Run(missing.String(), func(t *testing.T) {
			d := &mockDispatcher{}
			w, _, rec := newTestWorkflow(d)
			fill(t, w, "Ada", "ada@example.com", "Hello", "Hi there")
			require.NoError(t, w.UpdateField(missing, ""))

			err := w.Submit(context.Background())

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.True(t, verr.Has(missing))
			assert.Len(t, verr.Fields, 1)
			assert.Equal(t, ReasonRequired, verr.Fields[0].Reason)
			assert.Equal(t, Idle, w.State())
			assert.Equal(t, []State{Idle}, rec.Sequence())
			d.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
		})
	}
}

func TestSubmitEmptySubjectIndicatesField(t *testing.T) {
	d := &mockDispatcher{}
	w, _, _ := newTestWorkflow(d)
	fill(t, w, "Ada", "ada@example.com", "", "Hi there")

	err := w.Submit(context.Background())

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, map[string]string{"subject": "Subject is required"}, verr.ByField())
	d.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestSubmitAllEmptyNamesEveryField(t *testing.T) {
	w, _, _ := newTestWorkflow(&mockDispatcher{})

	err := w.Submit(context.Background())

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Fields, 4)
	for i, f := range Fields {
		assert.Equal(t, f, verr.Fields[i].Field)
	}
}

func TestSubmitRejectsMalformedEmail(t *testing.T) {
	d := &mockDispatcher{}
	w, _, _ := newTestWorkflow(d)
	fill(t, w, "Ada", "not-an-address", "Hello", "Hi there")

	err := w.Submit(context.Background())

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []FieldError{{Field: FieldEmail, Reason: ReasonInvalid}}, verr.Fields)
	d.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

// blockingDispatcher holds every Send until release is closed.
type blockingDispatcher struct {
	started chan struct{}
	release chan struct{}
	err     error

	mu    sync.Mutex
	calls int
}

func newBlockingDispatcher(err error) *blockingDispatcher {
	return &blockingDispatcher{
		started: make(chan struct{}, 8),
		release: make(chan struct{}),
		err:     err,
	}
}

func (b *blockingDispatcher) Send(ctx context.Context, p Payload) error {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	b.started <- struct{}{}
	<-b.release
	return b.err
}

func (b *blockingDispatcher) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func TestSubmitWhileSubmittingHasNoSideEffect(t *testing.T) {
	d := newBlockingDispatcher(nil)
	w, _, rec := newTestWorkflow(d)
	fill(t, w, "Ada", "ada@example.com", "Hello", "Hi there")

	done := make(chan error, 1)
	go func() { done <- w.Submit(context.Background()) }()
	<-d.started
	require.Equal(t, Submitting, w.State())

	assert.ErrorIs(t, w.Submit(context.Background()), ErrInProgress)
	assert.ErrorIs(t, w.Submit(context.Background()), ErrInProgress)
	assert.Equal(t, 1, d.Calls())

	close(d.release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, d.Calls())
	assert.Equal(t, []State{Idle, Submitting, Succeeded}, rec.Sequence())
}

func TestSubmitWithAppliesUpdatesThenDispatches(t *testing.T) {
	d := &mockDispatcher{}
	d.On("Send", mock.Anything, adaPayload).Return(nil).Once()
	w, _, _ := newTestWorkflow(d)
	require.NoError(t, w.UpdateField(FieldName, "Someone else"))

	err := w.SubmitWith(context.Background(), map[Field]string{
		FieldName:    "Ada",
		FieldEmail:   "ada@example.com",
		FieldSubject: "Hello",
		FieldMessage: "Hi there",
	})
	require.NoError(t, err)
	assert.Equal(t, Succeeded, w.State())
	d.AssertExpectations(t)
}

func TestSubmitWithDuringSubmittingLeavesMessageAlone(t *testing.T) {
	d := newBlockingDispatcher(nil)
	w, _, _ := newTestWorkflow(d)
	fill(t, w, "Ada", "ada@example.com", "Hello", "Hi there")

	done := make(chan error, 1)
	go func() { done <- w.Submit(context.Background()) }()
	<-d.started

	err := w.SubmitWith(context.Background(), map[Field]string{
		FieldName:    "Eve",
		FieldMessage: "overwritten",
	})
	assert.ErrorIs(t, err, ErrInProgress)
	assert.Equal(t, "Ada", w.Message().Name)
	assert.Equal(t, "Hi there", w.Message().Body)

	close(d.release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, d.Calls())
}

func TestSubmitWithAfterCloseAppliesNothing(t *testing.T) {
	w, _, _ := newTestWorkflow(&mockDispatcher{})
	w.Close()

	err := w.SubmitWith(context.Background(), map[Field]string{FieldName: "Ada"})
	assert.ErrorIs(t, err, ErrClosed)
	assert.Empty(t, w.Message().Name)
}

func TestDispatchReturningAfterCloseLeavesStateAlone(t *testing.T) {
	d := newBlockingDispatcher(errors.New("timeout"))
	w, clock, rec := newTestWorkflow(d)
	fill(t, w, "Ada", "ada@example.com", "Hello", "Hi there")

	done := make(chan error, 1)
	go func() { done <- w.Submit(context.Background()) }()
	<-d.started

	w.Close()
	close(d.release)

	assert.ErrorIs(t, <-done, ErrClosed)
	assert.Equal(t, Submitting, w.State())
	assert.Empty(t, rec.notified)
	assert.Zero(t, clock.Pending())
	assert.Equal(t, "Ada", w.Message().Name)
}

func TestCloseCancelsPendingReset(t *testing.T) {
	d := &mockDispatcher{}
	d.On("Send", mock.Anything, mock.Anything).Return(nil)
	w, clock, rec := newTestWorkflow(d)
	fill(t, w, "Ada", "ada@example.com", "Hello", "Hi there")
	require.NoError(t, w.Submit(context.Background()))
	require.Equal(t, 1, clock.Pending())

	w.Close()
	assert.Zero(t, clock.Pending())

	assert.NotPanics(t, func() { clock.Advance(time.Minute) })
	assert.Equal(t, []State{Idle, Submitting, Succeeded}, rec.Sequence())
	assert.True(t, w.Closed())

	assert.ErrorIs(t, w.UpdateField(FieldName, "x"), ErrClosed)
	assert.ErrorIs(t, w.Submit(context.Background()), ErrClosed)
	w.Close()
}

func TestResubmitAfterFailureDispatchesAgain(t *testing.T) {
	d := &mockDispatcher{}
	d.On("Send", mock.Anything, adaPayload).Return(errors.New("rate limited")).Once()
	d.On("Send", mock.Anything, adaPayload).Return(nil).Once()
	w, _, rec := newTestWorkflow(d)
	fill(t, w, "Ada", "ada@example.com", "Hello", "Hi there")

	require.Error(t, w.Submit(context.Background()))
	require.NoError(t, w.Submit(context.Background()))

	d.AssertNumberOfCalls(t, "Send", 2)
	assert.Len(t, rec.notified, 1)
	assert.Equal(t, Succeeded, w.State())
}

func TestSubmitDuringSucceededCancelsOldReset(t *testing.T) {
	d := &mockDispatcher{}
	d.On("Send", mock.Anything, mock.Anything).Return(nil)
	w, clock, _ := newTestWorkflow(d)

	fill(t, w, "Ada", "ada@example.com", "Hello", "Hi there")
	require.NoError(t, w.Submit(context.Background()))
	clock.Advance(2 * time.Second)

	fill(t, w, "Ada", "ada@example.com", "Again", "Second note")
	require.NoError(t, w.Submit(context.Background()))

	// The first reset would have fired here.
	clock.Advance(time.Second)
	assert.Equal(t, Succeeded, w.State())

	clock.Advance(2 * time.Second)
	assert.Equal(t, Idle, w.State())
}

func TestObservedReportsEveryAttempt(t *testing.T) {
	boom := errors.New("boom")
	var attempts []Attempt
	d := Observed(DispatcherFunc(func(ctx context.Context, p Payload) error {
		if p.Subject == "fail" {
			return boom
		}
		return nil
	}), func(_ context.Context, a Attempt) {
		attempts = append(attempts, a)
	})

	require.NoError(t, d.Send(context.Background(), Payload{Subject: "ok"}))
	require.ErrorIs(t, d.Send(context.Background(), Payload{Subject: "fail"}), boom)

	require.Len(t, attempts, 2)
	assert.NoError(t, attempts[0].Err)
	assert.ErrorIs(t, attempts[1].Err, boom)
	assert.Equal(t, "fail", attempts[1].Payload.Subject)
}
