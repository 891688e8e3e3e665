package book

import (
	"errors"
	"testing"
)

func TestParseSide(t *testing.T) {
	tests := []struct {
		in      string
		want    Side
		wantErr bool
	}{
		{"BUY", Buy, false},
		{"SELL", Sell, false},
		{"buy", Buy, false},
		{"sell", Sell, false},
		{"HOLD", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSide(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSide(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidSide) {
				t.Errorf("error should wrap ErrInvalidSide, got %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseSide(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestOrderBookPriceOrdering(t *testing.T) {
	tests := []struct {
		name   string
		side   Side
		prices []int64
		want   []int64 // expected pop order
	}{
		{
			name:   "sell side ascending",
			side:   Sell,
			prices: []int64{103, 100, 104, 102},
			want:   []int64{100, 102, 103, 104},
		},
		{
			name:   "buy side descending",
			side:   Buy,
			prices: []int64{103, 100, 104, 102},
			want:   []int64{104, 103, 102, 100},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New(tt.side)
			for i, p := range tt.prices {
				if err := b.Add(&Order{ID: uint64(i + 1), Side: tt.side, Price: p, Qty: 1}); err != nil {
					t.Fatalf("Add: %v", err)
				}
			}
			for _, want := range tt.want {
				o, err := b.Pop()
				if err != nil {
					t.Fatalf("Pop: %v", err)
				}
				if o.Price != want {
					t.Errorf("popped price %d, want %d", o.Price, want)
				}
			}
			if !b.Empty() {
				t.Errorf("book should be empty after popping all orders")
			}
		})
	}
}

func TestOrderBookTimePriorityAtEqualPrice(t *testing.T) {
	b := New(Sell)
	for id := uint64(1); id <= 4; id++ {
		if err := b.Add(&Order{ID: id, Side: Sell, Price: 100, Qty: 1}); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	for want := uint64(1); want <= 4; want++ {
		o, err := b.Pop()
		if err != nil {
			t.Fatalf("Pop: %v", err)
		}
		if o.ID != want {
			t.Errorf("popped id %d, want %d (earlier order has priority)", o.ID, want)
		}
	}
}

func TestOrderBookTimePrioritySurvivesRemoval(t *testing.T) {
	b := New(Buy)
	for id := uint64(1); id <= 3; id++ {
		b.Add(&Order{ID: id, Side: Buy, Price: 50, Qty: 1})
	}

	if _, err := b.Remove(2); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	first, _ := b.Pop()
	second, _ := b.Pop()
	if first.ID != 1 || second.ID != 3 {
		t.Errorf("pop order after removal = %d, %d; want 1, 3", first.ID, second.ID)
	}
}

func TestOrderBookPeekDoesNotMutate(t *testing.T) {
	b := New(Sell)
	b.Add(&Order{ID: 1, Side: Sell, Price: 100, Qty: 5})

	if got := b.Peek(); got == nil || got.ID != 1 {
		t.Fatalf("Peek = %+v, want order 1", got)
	}
	if b.Len() != 1 {
		t.Errorf("Peek mutated the book: len = %d", b.Len())
	}

	empty := New(Buy)
	if got := empty.Peek(); got != nil {
		t.Errorf("Peek on empty book = %+v, want nil", got)
	}
}

func TestOrderBookRemoveByID(t *testing.T) {
	b := New(Sell)
	b.Add(&Order{ID: 1, Side: Sell, Price: 100, Qty: 1})
	b.Add(&Order{ID: 2, Side: Sell, Price: 101, Qty: 2})
	b.Add(&Order{ID: 3, Side: Sell, Price: 102, Qty: 3})

	o, err := b.Remove(2)
	if err != nil {
		t.Fatalf("Remove(2): %v", err)
	}
	if o.ID != 2 || o.Qty != 2 {
		t.Errorf("removed order = %+v, want id 2 qty 2", o)
	}
	if b.Len() != 2 {
		t.Errorf("len = %d, want 2", b.Len())
	}

	if _, err := b.Remove(2); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("second Remove(2) error = %v, want ErrOrderNotFound", err)
	}
	if _, err := b.Remove(99); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("Remove(99) error = %v, want ErrOrderNotFound", err)
	}
}

func TestOrderBookAddWrongSide(t *testing.T) {
	b := New(Buy)
	if err := b.Add(&Order{ID: 1, Side: Sell, Price: 100, Qty: 1}); err == nil {
		t.Fatal("adding a SELL order to the buy book should fail")
	}
}

func TestOrderBookLevels(t *testing.T) {
	b := New(Sell)
	b.Add(&Order{ID: 1, Side: Sell, Price: 100, Qty: 3})
	b.Add(&Order{ID: 2, Side: Sell, Price: 100, Qty: 2})
	b.Add(&Order{ID: 3, Side: Sell, Price: 102, Qty: 1})

	levels := b.Levels()
	if len(levels) != 2 {
		t.Fatalf("got %d levels, want 2", len(levels))
	}
	if levels[0].Price != 100 || levels[0].Qty != 5 {
		t.Errorf("best level = %+v, want price 100 qty 5", levels[0])
	}
	if levels[1].Price != 102 || levels[1].Qty != 1 {
		t.Errorf("second level = %+v, want price 102 qty 1", levels[1])
	}
}
