package services

import (
	"context"
)

// captureNotifier records emitted events on a channel so tests can wait for
// the async notification goroutine without racing it.
type captureNotifier struct {
	events chan Event
}

func newCaptureNotifier() *captureNotifier {
	return &captureNotifier{events: make(chan Event, 8)}
}

func (n *captureNotifier) Notify(_ context.Context, ev Event) error {
	n.events <- ev
	return nil
}
