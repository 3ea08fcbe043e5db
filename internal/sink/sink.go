// Package sink defines where trades and alerts go once the pipeline is
// done with them. Sinks are called at most once per item; callers do not
// retry.
package sink

import (
	"context"
	"errors"

	"big-trades/internal/alert"
	"big-trades/internal/trade"
)

// TradeRecorder durably logs every observed trade.
type TradeRecorder interface {
	Record(ctx context.Context, ev trade.Event) error
}

// AlertEmitter surfaces classified buckets.
type AlertEmitter interface {
	Emit(ctx context.Context, a alert.Alert) error
}

// Fanout delivers to every recorder/emitter and joins their errors. One
// failing sink never keeps the others from receiving the item.
type Fanout struct {
	Recorders []TradeRecorder
	Emitters  []AlertEmitter
}

func (f *Fanout) AddRecorder(r TradeRecorder) { f.Recorders = append(f.Recorders, r) }
func (f *Fanout) AddEmitter(e AlertEmitter)   { f.Emitters = append(f.Emitters, e) }

func (f *Fanout) Record(ctx context.Context, ev trade.Event) error {
	var errs []error
	for _, r := range f.Recorders {
		if err := r.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *Fanout) Emit(ctx context.Context, a alert.Alert) error {
	var errs []error
	for _, e := range f.Emitters {
		if err := e.Emit(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops everything.
type Discard struct{}

func (Discard) Record(context.Context, trade.Event) error { return nil }
func (Discard) Emit(context.Context, alert.Alert) error   { return nil }
