package cnst

import "errors"

var (
	// ErrNotReceiver is returned when a bus cannot receive events
	ErrNotReceiver = errors.New("bus cannot receive events")
	// ErrNotSender is returned when a bus cannot send events
	ErrNotSender = errors.New("bus cannot send events")
	// ErrUnsupportedBus is returned for an unknown bus type
	ErrUnsupportedBus = errors.New("unsupported bus type")
	// ErrUnsupportedStorage is returned for an unknown outbox storage type
	ErrUnsupportedStorage = errors.New("unsupported storage type")
)
