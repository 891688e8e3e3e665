package book

import (
	"container/heap"
	"errors"
	"fmt"
	"sort"
)

var ErrOrderNotFound = errors.New("order not found in book")

// OrderBook holds one side's resting orders in price-time priority.
// A price heap tracks the best level, a FIFO queue per level preserves
// insertion order among equal prices, and an id index makes removal by
// id cheap. An order is only ever present here with Qty > 0.
type OrderBook struct {
	side   Side
	prices priceHeap
	levels map[int64][]*Order
	index  map[uint64]int64 // order id -> price level
}

// New returns an empty book for one side.
func New(side Side) *OrderBook {
	ph := priceHeap{desc: side == Buy}
	heap.Init(&ph)
	return &OrderBook{
		side:   side,
		prices: ph,
		levels: make(map[int64][]*Order),
		index:  make(map[uint64]int64),
	}
}

func (b *OrderBook) Side() Side  { return b.side }
func (b *OrderBook) Empty() bool { return len(b.index) == 0 }
func (b *OrderBook) Len() int    { return len(b.index) }

// Add inserts a resting order, preserving price priority and, among equal
// prices, arrival order.
func (b *OrderBook) Add(o *Order) error {
	if o.Side != b.side {
		return fmt.Errorf("adding %s order %d to %s book", o.Side, o.ID, b.side)
	}
	if len(b.levels[o.Price]) == 0 {
		heap.Push(&b.prices, o.Price)
	}
	b.levels[o.Price] = append(b.levels[o.Price], o)
	b.index[o.ID] = o.Price
	return nil
}

// Peek returns the highest-priority resting order without removing it,
// or nil when the book is empty.
func (b *OrderBook) Peek() *Order {
	if b.Empty() {
		return nil
	}
	return b.levels[b.prices.peek()][0]
}

// Pop removes and returns the highest-priority order.
func (b *OrderBook) Pop() (*Order, error) {
	if b.Empty() {
		return nil, ErrOrderNotFound
	}
	price := b.prices.peek()
	o := b.levels[price][0]
	b.dropFromLevel(price, 0)
	delete(b.index, o.ID)
	return o, nil
}

// Remove deletes the order with the given id regardless of its position.
func (b *OrderBook) Remove(id uint64) (*Order, error) {
	price, ok := b.index[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrOrderNotFound, id)
	}
	for i, o := range b.levels[price] {
		if o.ID == id {
			b.dropFromLevel(price, i)
			delete(b.index, id)
			return o, nil
		}
	}
	return nil, fmt.Errorf("%w: id %d", ErrOrderNotFound, id)
}

func (b *OrderBook) dropFromLevel(price int64, i int) {
	q := b.levels[price]
	b.levels[price] = append(q[:i], q[i+1:]...)
	if len(b.levels[price]) == 0 {
		delete(b.levels, price)
		b.prices.remove(price)
	}
}

// Levels aggregates resting quantity per price, best level first
// (descending for bids, ascending for asks).
func (b *OrderBook) Levels() []PriceLevel {
	out := make([]PriceLevel, 0, len(b.levels))
	for price, q := range b.levels {
		var qty int64
		for _, o := range q {
			qty += o.Qty
		}
		out = append(out, PriceLevel{Price: price, Qty: qty})
	}
	sort.Slice(out, func(i, j int) bool {
		if b.side == Buy {
			return out[i].Price > out[j].Price
		}
		return out[i].Price < out[j].Price
	})
	return out
}
