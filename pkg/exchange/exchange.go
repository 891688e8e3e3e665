// Package exchange coordinates the in-memory matcher with user balances
// and the durable store. Every mutating operation runs inside one
// exclusive critical section and one store transaction, so matcher state
// and balance state never diverge under concurrent access. The order in
// which operations take the lock is exactly their time priority.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"

	"spotex/pkg/book"
	"spotex/pkg/feed"
	"spotex/pkg/storage"
	"spotex/pkg/util"
)

type Exchange struct {
	mu      sync.Mutex
	store   *storage.Store
	matcher *book.Matcher
	clock   util.Clock
	feed    feed.Publisher
	log     *zap.SugaredLogger
}

// New rebuilds the in-memory books from the store and wires the trade
// feed. The store remains the authority: if the process dies between a
// match and its commit, restart reconstructs the books from committed
// state only.
func New(store *storage.Store, pub feed.Publisher, clock util.Clock, log *zap.SugaredLogger) (*Exchange, error) {
	if pub == nil {
		pub = feed.Nop{}
	}
	if clock == nil {
		clock = util.RealClock{}
	}

	resting, err := store.Orders()
	if err != nil {
		return nil, fmt.Errorf("load resting orders: %w", err)
	}

	// Price-only ordering would leave ties among equal prices undefined
	// and scramble time priority across restarts. Persisted ids are
	// allocated in placement order, so (price, id) reproduces the
	// original queue on both sides.
	sort.Slice(resting, func(i, j int) bool {
		if resting[i].Price != resting[j].Price {
			return resting[i].Price < resting[j].Price
		}
		return resting[i].ID < resting[j].ID
	})

	matcher := book.NewMatcher()
	orders := make([]*book.Order, 0, len(resting))
	for _, rec := range resting {
		orders = append(orders, &book.Order{
			ID:     rec.ID,
			UserID: rec.UserID,
			Side:   rec.Side,
			Price:  rec.Price,
			Qty:    rec.Remaining(),
		})
	}
	if err := matcher.Seed(orders); err != nil {
		return nil, fmt.Errorf("seed books: %w", err)
	}

	log.Infow("exchange_initialized", "resting_orders", len(orders))
	return &Exchange{store: store, matcher: matcher, clock: clock, feed: pub, log: log}, nil
}

// PlaceOrder reserves funds, persists the order to obtain its identity,
// crosses it against the book and settles every fill, all inside one
// critical section and one store transaction. The returned id stays
// valid even when the order filled completely and its record was
// deleted; it identifies the completed trade for the caller.
func (e *Exchange) PlaceOrder(ctx context.Context, userID uint64, side book.Side, price, qty int64) (uint64, error) {
	if !side.Valid() {
		return 0, book.ErrInvalidSide
	}
	if price <= 0 {
		return 0, fmt.Errorf("%w: price must be positive", ErrInvalidOrder)
	}
	if qty <= 0 {
		return 0, fmt.Errorf("%w: quantity must be positive", ErrInvalidOrder)
	}
	// Every later notional (reservation, fills, refund) is bounded by
	// price x qty at some order's limit, so rejecting overflow here keeps
	// all settlement arithmetic in range.
	if qty > math.MaxInt64/price {
		return 0, fmt.Errorf("%w: notional %d x %d overflows", ErrInvalidOrder, price, qty)
	}

	id, trades, err := e.place(userID, side, price, qty)
	if err != nil {
		return 0, err
	}

	// Publish after the lock is released. A slow feed consumer must not
	// stall unrelated placements and cancels; the trade fields were
	// captured inside the critical section.
	for i := range trades {
		if err := e.feed.Publish(ctx, trades[i]); err != nil {
			e.log.Warnw("trade_publish_failed", "trade_id", trades[i].ID, "err", err)
		}
	}
	return id, nil
}

func (e *Exchange) place(userID uint64, side book.Side, price, qty int64) (uint64, []storage.Trade, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	tx := e.store.Begin()
	defer tx.Rollback()

	user, err := tx.User(userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return 0, nil, fmt.Errorf("%w: %d", ErrUserNotFound, userID)
		}
		return 0, nil, err
	}

	// Reserve the full notional before matching. The debit happens up
	// front; a later cancel refunds only the unfilled remainder.
	if side == book.Buy {
		notional := price * qty
		if user.Fiat < notional {
			return 0, nil, fmt.Errorf("%w: need %d fiat, have %d", ErrInsufficientFunds, notional, user.Fiat)
		}
		user.Fiat -= notional
	} else {
		if user.BTC < qty {
			return 0, nil, fmt.Errorf("%w: need %d btc, have %d", ErrInsufficientFunds, qty, user.BTC)
		}
		user.BTC -= qty
	}

	rec := &storage.Order{UserID: userID, Side: side, Price: price, Qty: qty}
	id, err := tx.InsertOrder(rec)
	if err != nil {
		return 0, nil, err
	}

	filled, fills := e.matcher.Place(&book.Order{
		ID:     id,
		UserID: userID,
		Side:   side,
		Price:  price,
		Qty:    qty,
	})

	now := e.clock.Now().UnixMilli()
	trades := make([]storage.Trade, 0, len(fills))
	for _, fill := range fills {
		if err := e.settleFill(tx, user, rec, fill); err != nil {
			// The matcher has no rollback, so the in-memory book has
			// already moved. The transaction rolls back and the store
			// stays authoritative; restart rebuilds the books from it.
			e.log.Errorw("settlement_failed",
				"order_id", id, "maker_order_id", fill.MakerID, "err", err)
			return 0, nil, err
		}
		trades = append(trades, storage.Trade{
			TakerID:   id,
			MakerID:   fill.MakerID,
			TakerSide: side,
			Price:     fill.Price,
			Qty:       fill.Qty,
			Timestamp: now,
		})
	}

	rec.Filled += filled
	if rec.Filled == rec.Qty {
		if err := tx.DeleteOrder(id); err != nil {
			return 0, nil, err
		}
	} else if err := tx.PutOrder(rec); err != nil {
		return 0, nil, err
	}
	if err := tx.PutUser(user); err != nil {
		return 0, nil, err
	}
	for i := range trades {
		if err := tx.AppendTrade(&trades[i]); err != nil {
			return 0, nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, nil, err
	}

	e.log.Infow("order_placed",
		"order_id", id, "user_id", userID, "side", side.String(),
		"price", price, "quantity", qty, "filled", filled)
	return id, trades, nil
}

// settleFill credits both parties of one fill. Each party's notional was
// debited at placement, so settlement only ever adds: the taker receives
// what they bought, the maker's owner receives the counter-asset at the
// maker's price.
func (e *Exchange) settleFill(tx *storage.Tx, taker *storage.User, takerOrder *storage.Order, fill book.Fill) error {
	maker, err := tx.Order(fill.MakerID)
	if err != nil {
		return fmt.Errorf("maker order: %w", err)
	}

	// A user matching their own resting order must settle against the
	// one struct already loaded, or the later write would clobber this one.
	owner := taker
	if maker.UserID != taker.ID {
		if owner, err = tx.User(maker.UserID); err != nil {
			return fmt.Errorf("maker user: %w", err)
		}
	}

	notional := fill.Price * fill.Qty
	if takerOrder.Side == book.Buy {
		taker.BTC += fill.Qty
		owner.Fiat += notional
	} else {
		taker.Fiat += notional
		owner.BTC += fill.Qty
	}

	maker.Filled += fill.Qty
	if maker.Filled == maker.Qty {
		// Already off the in-memory book; drop the durable record too.
		if err := tx.DeleteOrder(maker.ID); err != nil {
			return err
		}
	} else if err := tx.PutOrder(maker); err != nil {
		return err
	}

	if owner != taker {
		return tx.PutUser(owner)
	}
	return nil
}

// CancelOrder removes a resting order and refunds the unfilled
// remainder to its owner. The existence pre-check runs without the lock,
// so canceling an unknown id never queues behind in-flight placements.
func (e *Exchange) CancelOrder(ctx context.Context, orderID uint64) error {
	if _, err := e.store.Order(orderID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: %d", ErrOrderNotFound, orderID)
		}
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	tx := e.store.Begin()
	defer tx.Rollback()

	// Re-read under the lock: the order may have been fully matched
	// between the pre-check and here. That race surfaces as not-found.
	rec, err := tx.Order(orderID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: %d", ErrOrderNotFound, orderID)
		}
		return err
	}

	if err := tx.DeleteOrder(orderID); err != nil {
		return err
	}
	if _, err := e.matcher.Remove(orderID, rec.Side); err != nil {
		if errors.Is(err, book.ErrOrderNotFound) {
			return fmt.Errorf("%w: %d", ErrOrderNotFound, orderID)
		}
		return err
	}

	user, err := tx.User(rec.UserID)
	if err != nil {
		return err
	}
	// Only the unfilled remainder comes back; matched funds already
	// changed hands at execution time.
	if rec.Side == book.Buy {
		user.Fiat += rec.Remaining() * rec.Price
	} else {
		user.BTC += rec.Remaining()
	}
	if err := tx.PutUser(user); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	e.log.Infow("order_canceled",
		"order_id", orderID, "user_id", rec.UserID,
		"side", rec.Side.String(), "refunded_quantity", rec.Remaining())
	return nil
}

// BookSnapshot is the public depth view: buys best-first (descending
// price), sells best-first (ascending price).
type BookSnapshot struct {
	Buys  []book.PriceLevel
	Sells []book.PriceLevel
}

func (e *Exchange) Snapshot() BookSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return BookSnapshot{
		Buys:  e.matcher.Bids().Levels(),
		Sells: e.matcher.Asks().Levels(),
	}
}

// UserStatus bundles a user's balances with their open orders.
type UserStatus struct {
	User       *storage.User
	OpenOrders []*storage.Order
}

func (e *Exchange) UserStatus(userID uint64) (*UserStatus, error) {
	user, err := e.store.User(userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrUserNotFound, userID)
		}
		return nil, err
	}
	orders, err := e.store.UserOrders(userID)
	if err != nil {
		return nil, err
	}
	return &UserStatus{User: user, OpenOrders: orders}, nil
}

// RecentTrades returns up to limit executed trades, newest first.
func (e *Exchange) RecentTrades(limit int) ([]*storage.Trade, error) {
	return e.store.RecentTrades(limit)
}
