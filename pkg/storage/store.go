// Package storage persists orders, users and trade history in a single
// Pebble database and scopes each exchange operation's mutations in a
// transaction built on a pebble batch.
package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"spotex/pkg/book"
)

var ErrNotFound = errors.New("record not found")

// Order is the persisted form of an order. Qty is the original size and
// Filled the accumulated matched size; the resting quantity is the
// difference. A record exists exactly while filled < quantity.
type Order struct {
	ID     uint64    `json:"id"`
	UserID uint64    `json:"user_id"`
	Side   book.Side `json:"side"`
	Price  int64     `json:"price"`
	Qty    int64     `json:"quantity"`
	Filled int64     `json:"filled"`
}

// Remaining returns the unfilled quantity.
func (o *Order) Remaining() int64 { return o.Qty - o.Filled }

// User carries the two balances, in minor units. Balances never go
// negative: every debit is pre-checked.
type User struct {
	ID   uint64 `json:"id"`
	Fiat int64  `json:"fiat"`
	BTC  int64  `json:"btc"`
}

// Trade is an executed fill kept for history and feeds.
type Trade struct {
	ID        uint64    `json:"id"`
	TakerID   uint64    `json:"taker_order_id"`
	MakerID   uint64    `json:"maker_order_id"`
	TakerSide book.Side `json:"taker_side"`
	Price     int64     `json:"price"`
	Qty       int64     `json:"quantity"`
	Timestamp int64     `json:"timestamp"`
}

// keys: o:<8-byte-be id>, u:<8-byte-be id>, t:<8-byte-be id>,
// seq:order, seq:trade
var (
	orderPrefix = []byte("o:")
	userPrefix  = []byte("u:")
	tradePrefix = []byte("t:")
	orderSeqKey = []byte("seq:order")
	tradeSeqKey = []byte("seq:trade")
)

func u64be(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}

func orderKey(id uint64) []byte { return append(append([]byte{}, orderPrefix...), u64be(id)...) }
func userKey(id uint64) []byte  { return append(append([]byte{}, userPrefix...), u64be(id)...) }
func tradeKey(id uint64) []byte { return append(append([]byte{}, tradePrefix...), u64be(id)...) }

// prefixUpperBound returns the smallest key greater than every key with
// the given prefix, for iterator bounds.
func prefixUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

type Store struct {
	db *pebble.DB
}

func Open(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open store at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) get(key []byte, v any) error {
	data, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	defer closer.Close()
	return json.Unmarshal(data, v)
}

// Order loads one persisted order.
func (s *Store) Order(id uint64) (*Order, error) {
	o := new(Order)
	if err := s.get(orderKey(id), o); err != nil {
		return nil, fmt.Errorf("order %d: %w", id, err)
	}
	return o, nil
}

// User loads one user record.
func (s *Store) User(id uint64) (*User, error) {
	u := new(User)
	if err := s.get(userKey(id), u); err != nil {
		return nil, fmt.Errorf("user %d: %w", id, err)
	}
	return u, nil
}

// Orders lists every persisted order. Only orders with an unfilled
// remainder are ever stored, so this is the full resting set.
func (s *Store) Orders() ([]*Order, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: orderPrefix,
		UpperBound: prefixUpperBound(orderPrefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var orders []*Order
	for iter.First(); iter.Valid(); iter.Next() {
		o := new(Order)
		if err := json.Unmarshal(iter.Value(), o); err != nil {
			return nil, fmt.Errorf("decode order record: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, iter.Error()
}

// UserOrders lists one user's open orders.
func (s *Store) UserOrders(userID uint64) ([]*Order, error) {
	all, err := s.Orders()
	if err != nil {
		return nil, err
	}
	orders := make([]*Order, 0)
	for _, o := range all {
		if o.UserID == userID {
			orders = append(orders, o)
		}
	}
	return orders, nil
}

// SeedUser inserts a user with initial balances unless the id already
// exists. Used by process bootstrap on first run.
func (s *Store) SeedUser(u *User) error {
	if _, err := s.User(u.ID); err == nil {
		return nil
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return s.db.Set(userKey(u.ID), data, pebble.Sync)
}

// RecentTrades returns up to limit trades, newest first.
func (s *Store) RecentTrades(limit int) ([]*Trade, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: tradePrefix,
		UpperBound: prefixUpperBound(tradePrefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	trades := make([]*Trade, 0, limit)
	for iter.Last(); iter.Valid() && len(trades) < limit; iter.Prev() {
		t := new(Trade)
		if err := json.Unmarshal(iter.Value(), t); err != nil {
			return nil, fmt.Errorf("decode trade record: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, iter.Error()
}
