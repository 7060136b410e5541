// Package sink delivers normalized events from a stream to outputs.
package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cryptoconnect/internal/queue"
	"cryptoconnect/logger"
	"cryptoconnect/models"
)

// Sink consumes events. Several pumps may share one sink, so Write must be
// safe for concurrent use. Close flushes anything buffered.
type Sink interface {
	Name() string
	Write(ctx context.Context, ev models.Event) error
	Close() error
}

// Source is anything events can be pulled from, normally a stream manager.
type Source interface {
	Next(ctx context.Context) (models.Event, error)
}

// Key identifies the stream an event belongs to.
func Key(ev models.Event) string {
	meta := ev.Meta()
	return fmt.Sprintf("%s:%s:%s", meta.Exchange, meta.Channel, meta.Symbol)
}

// Marshal encodes ev as a single JSON document without a trailing newline.
func Marshal(ev models.Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal %s event: %w", ev.Meta().Channel, err)
	}
	return data, nil
}

// Pump drains src into every sink until the source is closed or ctx ends.
// A failing sink is logged and does not stop delivery to the others.
func Pump(ctx context.Context, src Source, log *logger.Log, sinks ...Sink) error {
	entry := log.WithComponent("sink_pump")
	var delivered, failed int64
	defer func() {
		logger.LogDataFlowEntry(entry, "stream", "sinks", int(delivered), "event")
		entry.WithFields(logger.Fields{
			"delivered": delivered,
			"failed":    failed,
		}).Info("pump stopped")
	}()

	for {
		ev, err := src.Next(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrClosed) {
				return nil
			}
			return err
		}
		for _, s := range sinks {
			if err := s.Write(ctx, ev); err != nil {
				failed++
				entry.WithError(err).WithFields(logger.Fields{
					"sink": s.Name(),
					"key":  Key(ev),
				}).Warn("sink write failed")
				continue
			}
			delivered++
		}
	}
}

// CloseAll closes every sink and joins their errors.
func CloseAll(sinks ...Sink) error {
	var errs []error
	for _, s := range sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}
