package store

import (
	"context"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/securelock/securelock/pkg/logging"
	"github.com/securelock/securelock/pkg/metrics"
	"github.com/securelock/securelock/pkg/model"
	"github.com/securelock/securelock/pkg/uuidutil"
)

// Sink is a named Journal.
type Sink struct {
	Name    string
	Journal Journal
}

// Recorder stamps records and writes them to every sink concurrently.
// Writes are best-effort: failures are logged and counted, never returned,
// never retried.
type Recorder struct {
	sinks   []Sink
	clock   clockwork.Clock
	logger  *logging.Logger
	metrics *metrics.Registry
}

// NewRecorder creates a recorder. A nil clock uses the real clock; a nil
// logger discards output.
func NewRecorder(clock clockwork.Clock, logger *logging.Logger, m *metrics.Registry, sinks ...Sink) *Recorder {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Recorder{
		sinks:   sinks,
		clock:   clock,
		logger:  logger.WithFields(map[string]any{"component": "recorder"}),
		metrics: m,
	}
}

// Event builds and records a security event, returning it.
func (r *Recorder) Event(ctx context.Context, deviceID string, typ model.EventType, details map[string]any) *model.SecurityEvent {
	e := &model.SecurityEvent{
		ID:        uuidutil.NewV4(),
		DeviceID:  deviceID,
		Type:      typ,
		Details:   details,
		Timestamp: r.clock.Now().UTC(),
	}
	r.fanOut(ctx, string(typ), func(ctx context.Context, j Journal) error {
		return j.AppendEvent(ctx, e)
	})
	return e
}

// Attempt stamps and records an intruder attempt.
func (r *Recorder) Attempt(ctx context.Context, a *model.IntruderAttempt) {
	if a.ID == "" {
		a.ID = uuidutil.NewV4()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = r.clock.Now().UTC()
	}
	r.fanOut(ctx, string(model.JournalAttempt), func(ctx context.Context, j Journal) error {
		return j.AppendAttempt(ctx, a)
	})
}

func (r *Recorder) fanOut(ctx context.Context, what string, write func(context.Context, Journal) error) {
	var g errgroup.Group
	for _, sink := range r.sinks {
		sink := sink
		g.Go(func() error {
			if err := write(ctx, sink.Journal); err != nil {
				r.metrics.RecordJournalError(sink.Name)
				r.logger.WarnErr("journal write failed", err, map[string]any{
					"sink":   sink.Name,
					"record": what,
				})
			}
			return nil
		})
	}
	_ = g.Wait()
}
