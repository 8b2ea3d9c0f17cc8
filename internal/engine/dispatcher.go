package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/nakiaasuryanto/bday-bot/internal/config"
)

// Messenger is the send primitive of an open messaging session.
type Messenger interface {
	SendText(ctx context.Context, groupID, text string) error
}

// SessionSource hands out the current Messenger when the session is open.
type SessionSource interface {
	Messenger() (Messenger, bool)
}

// Ledger records deliveries and answers whether a person was already greeted
// on a civil day. Implementations return *StorageError on I/O failures.
type Ledger interface {
	WasNotified(ctx context.Context, name string, day Moment) (bool, error)
	Record(ctx context.Context, name, groupName string, day Moment) error
	RecordFailure(ctx context.Context, name string, cause error, day Moment) error
}

// Outcome is the per-entry result of a scan.
type Outcome int

const (
	Sent Outcome = iota
	Skipped
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Sent:
		return config.StatusSent
	case Skipped:
		return "skipped"
	default:
		return config.StatusFailed
	}
}

// Result describes what happened to one matching entry.
type Result struct {
	Entry   Entry
	Outcome Outcome
	Age     int
	// Attempted is true when a message actually left for the platform.
	Attempted bool
	Err       error
}

// Dispatcher delivers a single greeting and records the outcome.
type Dispatcher struct {
	Session  SessionSource
	Ledger   Ledger
	Composer *Composer
}

// Send composes and delivers the greeting for e. Delivery failures are
// contained in the Result; the returned error is reserved for ledger
// storage failures, which the caller must treat as fatal for the cycle.
func (d *Dispatcher) Send(ctx context.Context, e Entry, day Moment) (Result, error) {
	log := slog.With(
		config.LogKeyComponent, config.CompDispatch,
		config.LogKeyName, e.Name,
		config.LogKeyGroup, e.GroupName,
	)
	res := Result{Entry: e, Outcome: Failed}

	msgr, ok := d.Session.Messenger()
	if !ok {
		log.WarnContext(ctx, config.MsgNotConnected)
		res.Err = ErrNotConnected
		return res, nil
	}

	birth, err := e.Birth()
	if err != nil {
		res.Err = err
		return res, d.Ledger.RecordFailure(ctx, e.Name, err, day)
	}
	res.Age = Age(birth, day.Time)

	text, err := d.Composer.Compose(e, res.Age)
	if err != nil {
		res.Err = err
		return res, d.Ledger.RecordFailure(ctx, e.Name, err, day)
	}

	log.InfoContext(ctx, config.MsgSending, config.LogKeyAge, res.Age)
	sendCtx, cancel := context.WithTimeout(ctx, config.SendTimeout)
	defer cancel()

	res.Attempted = true
	if err := msgr.SendText(sendCtx, e.GroupID, text); err != nil {
		res.Err = &SendError{Name: e.Name, GroupID: e.GroupID, Err: err}
		log.ErrorContext(ctx, config.MsgSendFailed, config.LogKeyError, err)
		return res, d.Ledger.RecordFailure(ctx, e.Name, err, day)
	}

	res.Outcome = Sent
	log.InfoContext(ctx, config.MsgSent)
	return res, d.Ledger.Record(ctx, e.Name, e.GroupName, day)
}

// IsStorage reports whether err is a ledger or roster storage failure.
func IsStorage(err error) bool {
	return errors.Is(err, ErrStorage)
}
