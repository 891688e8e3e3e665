// Package feed publishes executed trades to external consumers after the
// owning transaction has committed.
package feed

import (
	"context"

	"spotex/pkg/storage"
)

type Publisher interface {
	Publish(ctx context.Context, t storage.Trade) error
}

// Nop drops trades; used when no feed is configured.
type Nop struct{}

func (Nop) Publish(context.Context, storage.Trade) error { return nil }

// Multi fans each trade out to several publishers. Every publisher sees
// the trade; the first error is returned.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, t storage.Trade) error {
	var firstErr error
	for _, p := range m {
		if err := p.Publish(ctx, t); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
