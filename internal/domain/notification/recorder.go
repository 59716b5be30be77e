package notification

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/matiasleandrokruk/agencyhub/internal/infra/eventbus"
	"github.com/matiasleandrokruk/agencyhub/internal/infra/metrics"
)

// drainTimeout bounds how long shutdown spends persisting buffered events.
const drainTimeout = 5 * time.Second

// Recorder consumes TopicActivity, persists each event and republishes the
// stored notification on TopicStored.
type Recorder struct {
	svc    *Service
	bus    eventbus.EventBus
	logger *zap.Logger
}

// NewRecorder returns a Recorder.
func NewRecorder(svc *Service, bus eventbus.EventBus, logger *zap.Logger) *Recorder {
	return &Recorder{svc: svc, bus: bus, logger: logger}
}

// Run blocks until ctx is cancelled. Events still buffered at that point are
// persisted before returning.
func (r *Recorder) Run(ctx context.Context) error {
	ch := r.bus.Subscribe(TopicActivity)
	defer r.bus.Unsubscribe(TopicActivity, ch)

	for {
		select {
		case <-ctx.Done():
			r.drain(ch)
			return nil
		case evt, ok := <-ch:
			if !ok {
				return nil
			}
			r.handle(ctx, evt)
		}
	}
}

func (r *Recorder) drain(ch <-chan eventbus.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				return
			}
			r.handle(ctx, evt)
		default:
			return
		}
	}
}

func (r *Recorder) handle(ctx context.Context, evt eventbus.Event) {
	e, ok := evt.Payload.(Event)
	if !ok {
		r.logger.Warn("notification: unexpected payload", zap.String("topic", evt.Topic))
		return
	}
	n, err := r.svc.Record(ctx, e)
	if err != nil {
		metrics.RecordNotification("failed")
		r.logger.Error("notification: record failed",
			zap.String("agency_id", e.AgencyID),
			zap.String("action", e.Action),
			zap.Error(err))
		return
	}
	metrics.RecordNotification("stored")
	r.bus.Publish(TopicStored, n)
}
