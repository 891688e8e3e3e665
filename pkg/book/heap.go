package book

import "container/heap"

// priceHeap tracks the distinct price levels of one book side.
// desc=true makes it a max-heap (bids: best = highest price),
// desc=false a min-heap (asks: best = lowest price).
type priceHeap struct {
	desc   bool
	prices []int64
}

func (h priceHeap) Len() int { return len(h.prices) }

func (h priceHeap) Less(i, j int) bool {
	if h.desc {
		return h.prices[i] > h.prices[j]
	}
	return h.prices[i] < h.prices[j]
}

func (h priceHeap) Swap(i, j int) { h.prices[i], h.prices[j] = h.prices[j], h.prices[i] }

func (h *priceHeap) Push(x any) { h.prices = append(h.prices, x.(int64)) }

func (h *priceHeap) Pop() any {
	old := h.prices
	n := len(old)
	x := old[n-1]
	h.prices = old[:n-1]
	return x
}

// peek returns the best price. Callers must check Len first.
func (h priceHeap) peek() int64 { return h.prices[0] }

// remove drops one price level. Linear scan, but a level only disappears
// when its last order leaves.
func (h *priceHeap) remove(price int64) {
	for i, p := range h.prices {
		if p == price {
			heap.Remove(h, i)
			return
		}
	}
}
