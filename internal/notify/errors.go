package notify

import "github.com/cockroachdb/errors"

var (
	// ErrQueueUnavailable marks any failure to reach the queue backend
	ErrQueueUnavailable = errors.New("notification queue unavailable")

	// ErrQueueFull is returned by a bounded in-memory queue at capacity
	ErrQueueFull = errors.New("notification queue full")

	// ErrDelivery marks a transport failure
	ErrDelivery = errors.New("notification delivery failed")

	// ErrPermanent marks a delivery failure that retrying cannot fix
	ErrPermanent = errors.New("permanent delivery failure")

	// ErrMalformedTask is returned when a queued payload cannot be decoded
	ErrMalformedTask = errors.New("malformed notification task")
)

func unavailable(err error, op string) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrap(err, op), ErrQueueUnavailable)
}

func deliveryFailed(err error, msg string) error {
	return errors.Mark(errors.Wrap(err, msg), ErrDelivery)
}

// Permanent marks err so the worker dead-letters instead of retrying
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(err, ErrPermanent)
}

// IsPermanent reports whether err was marked with Permanent
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}

// IsUnavailable reports whether err came from an unreachable queue
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrQueueUnavailable)
}
