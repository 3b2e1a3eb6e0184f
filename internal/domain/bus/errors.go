package bus

import "errors"

var (
	// ErrEmptyType rejects subscriptions without an event type.
	ErrEmptyType = errors.New("bus: empty event type")
	// ErrNilHandler rejects subscriptions without a handler.
	ErrNilHandler = errors.New("bus: nil handler")
	// ErrWaitTimeout reports that WaitFor saw no matching event in time.
	ErrWaitTimeout = errors.New("bus: wait timeout")
)
