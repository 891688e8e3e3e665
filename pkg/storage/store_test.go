package storage

import (
	"errors"
	"testing"

	"spotex/pkg/book"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir() + "/store.db")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSeedUserIdempotent(t *testing.T) {
	s := newTestStore(t)

	if err := s.SeedUser(&User{ID: 1, Fiat: 1000, BTC: 0}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	// Seeding again must not reset balances.
	if err := s.SeedUser(&User{ID: 1, Fiat: 9999, BTC: 9999}); err != nil {
		t.Fatalf("second seed: %v", err)
	}

	u, err := s.User(1)
	if err != nil {
		t.Fatalf("load user: %v", err)
	}
	if u.Fiat != 1000 || u.BTC != 0 {
		t.Errorf("user = %+v, want the original seed balances", u)
	}
}

func TestUserNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.User(42); !errors.Is(err, ErrNotFound) {
		t.Errorf("User(42) error = %v, want ErrNotFound", err)
	}
}

func TestInsertOrderAssignsSequentialIDs(t *testing.T) {
	s := newTestStore(t)

	tx := s.Begin()
	for want := uint64(1); want <= 3; want++ {
		id, err := tx.InsertOrder(&Order{UserID: 1, Side: book.Buy, Price: 100, Qty: 1})
		if err != nil {
			t.Fatalf("insert: %v", err)
		}
		if id != want {
			t.Errorf("id = %d, want %d", id, want)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	// A later transaction continues the sequence.
	tx2 := s.Begin()
	id, err := tx2.InsertOrder(&Order{UserID: 1, Side: book.Sell, Price: 100, Qty: 1})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if id != 4 {
		t.Errorf("id = %d, want 4", id)
	}
	if err := tx2.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestTxReadYourWrites(t *testing.T) {
	s := newTestStore(t)

	tx := s.Begin()
	defer tx.Rollback()

	id, err := tx.InsertOrder(&Order{UserID: 7, Side: book.Sell, Price: 100, Qty: 5})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	o, err := tx.Order(id)
	if err != nil {
		t.Fatalf("read inside tx: %v", err)
	}
	o.Filled = 2
	if err := tx.PutOrder(o); err != nil {
		t.Fatalf("put: %v", err)
	}

	again, err := tx.Order(id)
	if err != nil {
		t.Fatalf("re-read inside tx: %v", err)
	}
	if again.Filled != 2 {
		t.Errorf("filled = %d inside tx, want 2 (staged write visible)", again.Filled)
	}

	if err := tx.DeleteOrder(id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := tx.Order(id); !errors.Is(err, ErrNotFound) {
		t.Errorf("read of staged delete = %v, want ErrNotFound", err)
	}
}

func TestTxRollbackDiscardsEverything(t *testing.T) {
	s := newTestStore(t)

	tx := s.Begin()
	id, err := tx.InsertOrder(&Order{UserID: 1, Side: book.Buy, Price: 50, Qty: 1})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := tx.PutUser(&User{ID: 1, Fiat: 123}); err != nil {
		t.Fatalf("put user: %v", err)
	}
	tx.Rollback()

	if _, err := s.Order(id); !errors.Is(err, ErrNotFound) {
		t.Errorf("order survived rollback: %v", err)
	}
	if _, err := s.User(1); !errors.Is(err, ErrNotFound) {
		t.Errorf("user survived rollback: %v", err)
	}

	// The rolled-back id allocation is released too.
	tx2 := s.Begin()
	id2, err := tx2.InsertOrder(&Order{UserID: 1, Side: book.Buy, Price: 50, Qty: 1})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if id2 != 1 {
		t.Errorf("id after rollback = %d, want 1", id2)
	}
	if err := tx2.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestTxCommitIsAtomic(t *testing.T) {
	s := newTestStore(t)

	tx := s.Begin()
	id, err := tx.InsertOrder(&Order{UserID: 2, Side: book.Sell, Price: 10, Qty: 3})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := tx.PutUser(&User{ID: 2, Fiat: 100, BTC: 7}); err != nil {
		t.Fatalf("put user: %v", err)
	}

	// Nothing visible before commit.
	if _, err := s.Order(id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("order visible before commit")
	}

	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	o, err := s.Order(id)
	if err != nil {
		t.Fatalf("order after commit: %v", err)
	}
	if o.Price != 10 || o.Qty != 3 || o.Remaining() != 3 {
		t.Errorf("order = %+v", o)
	}
	u, err := s.User(2)
	if err != nil {
		t.Fatalf("user after commit: %v", err)
	}
	if u.Fiat != 100 || u.BTC != 7 {
		t.Errorf("user = %+v", u)
	}
}

func TestOrdersAndUserOrders(t *testing.T) {
	s := newTestStore(t)

	tx := s.Begin()
	tx.InsertOrder(&Order{UserID: 1, Side: book.Buy, Price: 100, Qty: 1})
	tx.InsertOrder(&Order{UserID: 2, Side: book.Sell, Price: 200, Qty: 2})
	tx.InsertOrder(&Order{UserID: 1, Side: book.Sell, Price: 300, Qty: 3})
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	all, err := s.Orders()
	if err != nil {
		t.Fatalf("Orders: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d orders, want 3", len(all))
	}

	mine, err := s.UserOrders(1)
	if err != nil {
		t.Fatalf("UserOrders: %v", err)
	}
	if len(mine) != 2 {
		t.Errorf("user 1 has %d orders, want 2", len(mine))
	}
	for _, o := range mine {
		if o.UserID != 1 {
			t.Errorf("foreign order in user listing: %+v", o)
		}
	}
}

func TestRecentTradesNewestFirst(t *testing.T) {
	s := newTestStore(t)

	tx := s.Begin()
	for i := int64(1); i <= 5; i++ {
		if err := tx.AppendTrade(&Trade{TakerID: 1, MakerID: 2, TakerSide: book.Buy, Price: i, Qty: 1, Timestamp: i}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	trades, err := s.RecentTrades(3)
	if err != nil {
		t.Fatalf("RecentTrades: %v", err)
	}
	if len(trades) != 3 {
		t.Fatalf("got %d trades, want 3", len(trades))
	}
	for i, want := range []int64{5, 4, 3} {
		if trades[i].Price != want {
			t.Errorf("trade %d price = %d, want %d (newest first)", i, trades[i].Price, want)
		}
	}
}
