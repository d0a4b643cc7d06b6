package storage

import (
	"context"
	"errors"

	"swapScope/internal/model"
)

// Sink persists enriched swap records.
type Sink interface {
	WriteSwaps(ctx context.Context, records []model.SwapRecord) error
	Close() error
}

// MultiSink writes each batch to every sink in order.
type MultiSink struct {
	sinks []Sink
}

func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// WriteSwaps stops at the first failing sink.
func (m *MultiSink) WriteSwaps(ctx context.Context, records []model.SwapRecord) error {
	for _, sink := range m.sinks {
		if err := sink.WriteSwaps(ctx, records); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every sink and joins their errors.
func (m *MultiSink) Close() error {
	var errs []error
	for _, sink := range m.sinks {
		if err := sink.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
