package events

import "errors"

// ErrUnknownEventType is returned by sinks for event types they do not map.
var ErrUnknownEventType = errors.New("events: unknown event type")
