package chaos

import (
	"context"

	"cryptofutures/internal/adapter"
	"cryptofutures/internal/order"
)

// Exchange wraps a venue and passes its user stream through an Engine.
// Every other call goes to the wrapped venue unchanged.
type Exchange struct {
	order.Exchange
	engine *Engine
}

var _ order.Exchange = (*Exchange)(nil)

func Wrap(ex order.Exchange, cfg Config) (*Exchange, error) {
	engine, err := NewEngine(cfg)
	if err != nil {
		return nil, err
	}
	return &Exchange{Exchange: ex, engine: engine}, nil
}

func (c *Exchange) UserStream(ctx context.Context) (<-chan adapter.RawEvent, error) {
	in, err := c.Exchange.UserStream(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan adapter.RawEvent, cap(in))
	go c.pipe(ctx, in, out)
	return out, nil
}

func (c *Exchange) pipe(ctx context.Context, in <-chan adapter.RawEvent, out chan<- adapter.RawEvent) {
	defer close(out)

	send := func(events []adapter.RawEvent) bool {
		for _, ev := range events {
			select {
			case out <- ev:
			case <-ctx.Done():
				return false
			}
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-in:
			if !ok {
				send(c.engine.Flush())
				return
			}
			if !send(c.engine.Process(ev)) {
				return
			}
		}
	}
}
