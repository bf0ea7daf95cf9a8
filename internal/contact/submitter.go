package contact

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang/glog"
)

var (
	// ErrInFlight is returned when a submit is already outstanding. No
	// request is sent.
	ErrInFlight = errors.New("contact: submission already in flight")
	// ErrIncomplete is returned when a required field is empty.
	ErrIncomplete = errors.New("contact: form incomplete")
)

// Status is the submission state.
type Status int

const (
	StatusIdle Status = iota
	StatusSubmitting
	StatusSuccess
	StatusFailure
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusSubmitting:
		return "submitting"
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// User-visible messages.
const (
	SuccessMessage = "Message sent successfully!"
	FailureMessage = "Failed to send message. Please try again."
)

// RevertDelay is how long a result message stays up.
const RevertDelay = 5 * time.Second

// Sender delivers one message.
type Sender interface {
	Send(ctx context.Context, f Form) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, f Form) error

// Send implements Sender.
func (fn SenderFunc) Send(ctx context.Context, f Form) error { return fn(ctx, f) }

// Timer is a pending revert.
type Timer interface {
	Stop() bool
}

// Clock schedules the revert. Tests substitute a manual clock.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// View is a read-only copy of the submitter state for rendering.
type View struct {
	Form           Form   `json:"form"`
	Status         string `json:"status"`
	Message        string `json:"message,omitempty"`
	SubmitDisabled bool   `json:"submitDisabled"`
}

// Submitter owns one visitor's form and submission status.
//
//	idle -> submitting -> success|failure -> idle (after the revert delay)
type Submitter struct {
	sender Sender
	clock  Clock
	delay  time.Duration

	mu       sync.Mutex
	form     Form
	status   Status
	message  string
	revert   Timer
	gen      uint64
	onChange func(View)
	touched  time.Time
}

// SubmitterOption configures a Submitter.
type SubmitterOption func(*Submitter)

// WithClock replaces the wall clock.
func WithClock(c Clock) SubmitterOption {
	return func(s *Submitter) { s.clock = c }
}

// WithRevertDelay changes how long result messages stay up.
func WithRevertDelay(d time.Duration) SubmitterOption {
	return func(s *Submitter) { s.delay = d }
}

// WithOnChange observes every state transition.
func WithOnChange(fn func(View)) SubmitterOption {
	return func(s *Submitter) { s.onChange = fn }
}

// NewSubmitter returns an idle submitter with empty fields.
func NewSubmitter(sender Sender, opts ...SubmitterOption) *Submitter {
	s := &Submitter{sender: sender, clock: realClock{}, delay: RevertDelay, touched: time.Now()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Submitter) viewLocked() View {
	return View{
		Form:           s.form,
		Status:         s.status.String(),
		Message:        s.message,
		SubmitDisabled: s.status == StatusSubmitting,
	}
}

// View returns the current state.
func (s *Submitter) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// Status returns the current status.
func (s *Submitter) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// SetField updates one field.
func (s *Submitter) SetField(name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched = time.Now()
	return s.form.set(name, value)
}

// SetForm replaces all fields.
func (s *Submitter) SetForm(f Form) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched = time.Now()
	s.form = f
}

func (s *Submitter) notify(v View) {
	if s.onChange != nil {
		s.onChange(v)
	}
}

// Submit sends the current form and blocks until the sender answers.
// Success clears the fields; failure keeps them for a retry. Either way the
// result message reverts to idle after the revert delay.
func (s *Submitter) Submit(ctx context.Context) error {
	return s.submit(ctx, nil)
}

// SubmitForm replaces the fields with f and submits them. While a send is
// in flight it returns ErrInFlight and leaves the in-flight fields alone.
func (s *Submitter) SubmitForm(ctx context.Context, f Form) error {
	return s.submit(ctx, &f)
}

func (s *Submitter) submit(ctx context.Context, replace *Form) error {
	s.mu.Lock()
	if s.status == StatusSubmitting {
		s.mu.Unlock()
		return ErrInFlight
	}
	if replace != nil {
		s.form = *replace
		s.touched = time.Now()
	}
	if err := s.form.Validate(); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.revert != nil {
		s.revert.Stop()
		s.revert = nil
	}
	s.gen++
	gen := s.gen
	s.status = StatusSubmitting
	s.message = ""
	s.touched = time.Now()
	form := s.form
	v := s.viewLocked()
	s.mu.Unlock()
	s.notify(v)

	err := s.sender.Send(ctx, form)

	s.mu.Lock()
	if err == nil {
		s.form = Form{}
		s.status = StatusSuccess
		s.message = SuccessMessage
	} else {
		var se *StatusError
		if errors.As(err, &se) {
			glog.Warningf("contact: endpoint rejected message: %v", err)
		} else {
			glog.Warningf("contact: endpoint unreachable: %v", err)
		}
		s.status = StatusFailure
		s.message = FailureMessage
	}
	s.revert = s.clock.AfterFunc(s.delay, func() { s.expire(gen) })
	v = s.viewLocked()
	s.mu.Unlock()
	s.notify(v)
	return err
}

// expire returns a result state to idle unless a newer submit replaced it.
func (s *Submitter) expire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || (s.status != StatusSuccess && s.status != StatusFailure) {
		s.mu.Unlock()
		return
	}
	s.status = StatusIdle
	s.message = ""
	s.revert = nil
	v := s.viewLocked()
	s.mu.Unlock()
	s.notify(v)
}

// idleSince reports when the submitter was last used, and whether it is
// safe to drop.
func (s *Submitter) idleSince() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.touched, s.status != StatusSubmitting
}
