package book

// Matcher owns both sides of the book and crosses incoming orders
// against resting ones. It has no synchronization of its own; the
// exchange serializes access.
type Matcher struct {
	bids *OrderBook
	asks *OrderBook
}

func NewMatcher() *Matcher {
	return &Matcher{bids: New(Buy), asks: New(Sell)}
}

// Bids exposes the buy side for snapshots.
func (m *Matcher) Bids() *OrderBook { return m.bids }

// Asks exposes the sell side for snapshots.
func (m *Matcher) Asks() *OrderBook { return m.asks }

// Place crosses the incoming order against the opposite book and rests
// any remainder on its own side. It returns the total matched quantity
// and one Fill per maker touched, in match order. Every fill executes at
// the maker's price: the aggressor never pays worse than displayed, and
// a resting order's quoted terms are honored exactly.
//
// The caller must have validated o.Side, o.Price > 0 and o.Qty > 0.
func (m *Matcher) Place(o *Order) (int64, []Fill) {
	if o.Side == Buy {
		return m.cross(o, m.bids, m.asks)
	}
	return m.cross(o, m.asks, m.bids)
}

// crosses reports whether the incoming order's limit overlaps a maker
// price on the opposite side.
func crosses(incoming *Order, makerPrice int64) bool {
	if incoming.Side == Buy {
		return incoming.Price >= makerPrice
	}
	return incoming.Price <= makerPrice
}

func (m *Matcher) cross(o *Order, own, opposite *OrderBook) (int64, []Fill) {
	var (
		filled int64
		fills  []Fill
	)
	for o.Qty > 0 {
		maker := opposite.Peek()
		if maker == nil || !crosses(o, maker.Price) {
			break
		}
		match := min(o.Qty, maker.Qty)
		o.Qty -= match
		maker.Qty -= match
		filled += match
		fills = append(fills, Fill{MakerID: maker.ID, Qty: match, Price: maker.Price})
		if maker.Qty == 0 {
			opposite.Pop()
		}
	}
	if o.Qty > 0 {
		own.Add(o)
	}
	return filled, fills
}

// Remove takes the resting order with the given id off the requested
// side. Used for cancellation.
func (m *Matcher) Remove(id uint64, side Side) (*Order, error) {
	if side == Buy {
		return m.bids.Remove(id)
	}
	return m.asks.Remove(id)
}

// Seed rests already-persisted orders without matching, for startup
// reconstruction. Orders must arrive in price-time priority order per
// side; Seed preserves the given sequence among equal prices.
func (m *Matcher) Seed(orders []*Order) error {
	for _, o := range orders {
		side := m.asks
		if o.Side == Buy {
			side = m.bids
		}
		if err := side.Add(o); err != nil {
			return err
		}
	}
	return nil
}
