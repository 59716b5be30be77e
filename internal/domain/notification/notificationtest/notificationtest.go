// Package notificationtest provides a Notifier that records events for assertions.
package notificationtest

import (
	"context"
	"sync"

	"github.com/matiasleandrokruk/agencyhub/internal/domain/notification"
)

// Recorder is a notification.Notifier that keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []notification.Event
}

// Notify appends evt.
func (r *Recorder) Notify(_ context.Context, evt notification.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []notification.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notification.Event(nil), r.events...)
}

// Actions returns the recorded event actions in order.
func (r *Recorder) Actions() []string {
	evts := r.Events()
	out := make([]string, len(evts))
	for i, e := range evts {
		out[i] = e.Action
	}
	return out
}

// Last returns the most recent event and whether there was one.
func (r *Recorder) Last() (notification.Event, bool) {
	evts := r.Events()
	if len(evts) == 0 {
		return notification.Event{}, false
	}
	return evts[len(evts)-1], true
}
