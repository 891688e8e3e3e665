package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"
)

// Tx scopes one exchange operation's mutations. Writes go to a pebble
// batch and a staged overlay, so reads inside the transaction observe
// its own writes; nothing reaches the database until Commit, and a
// Rollback discards everything including allocated ids.
type Tx struct {
	store  *Store
	batch  *pebble.Batch
	staged map[string][]byte // key -> value; nil value = staged delete
	done   bool
}

func (s *Store) Begin() *Tx {
	return &Tx{
		store:  s,
		batch:  s.db.NewBatch(),
		staged: make(map[string][]byte),
	}
}

func (tx *Tx) get(key []byte, v any) error {
	if data, ok := tx.staged[string(key)]; ok {
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, v)
	}
	return tx.store.get(key, v)
}

func (tx *Tx) put(key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := tx.batch.Set(key, data, nil); err != nil {
		return err
	}
	tx.staged[string(key)] = data
	return nil
}

func (tx *Tx) delete(key []byte) error {
	if err := tx.batch.Delete(key, nil); err != nil {
		return err
	}
	tx.staged[string(key)] = nil
	return nil
}

func (tx *Tx) Order(id uint64) (*Order, error) {
	o := new(Order)
	if err := tx.get(orderKey(id), o); err != nil {
		return nil, fmt.Errorf("order %d: %w", id, err)
	}
	return o, nil
}

func (tx *Tx) PutOrder(o *Order) error { return tx.put(orderKey(o.ID), o) }

func (tx *Tx) DeleteOrder(id uint64) error { return tx.delete(orderKey(id)) }

func (tx *Tx) User(id uint64) (*User, error) {
	u := new(User)
	if err := tx.get(userKey(id), u); err != nil {
		return nil, fmt.Errorf("user %d: %w", id, err)
	}
	return u, nil
}

func (tx *Tx) PutUser(u *User) error { return tx.put(userKey(u.ID), u) }

// InsertOrder assigns the next id from the persisted order sequence and
// stages the record. The sequence advances inside the same transaction,
// so a rollback releases the id.
func (tx *Tx) InsertOrder(o *Order) (uint64, error) {
	id, err := tx.nextSeq(orderSeqKey)
	if err != nil {
		return 0, err
	}
	o.ID = id
	return id, tx.put(orderKey(id), o)
}

// AppendTrade assigns a trade id and stages the history record, written
// atomically with the settlement that produced it.
func (tx *Tx) AppendTrade(t *Trade) error {
	id, err := tx.nextSeq(tradeSeqKey)
	if err != nil {
		return err
	}
	t.ID = id
	return tx.put(tradeKey(id), t)
}

func (tx *Tx) nextSeq(key []byte) (uint64, error) {
	next := uint64(1)
	if data, ok := tx.staged[string(key)]; ok && data != nil {
		next = binary.BigEndian.Uint64(data) + 1
	} else {
		data, closer, err := tx.store.db.Get(key)
		switch err {
		case nil:
			next = binary.BigEndian.Uint64(data) + 1
			closer.Close()
		case pebble.ErrNotFound:
		default:
			return 0, err
		}
	}
	buf := u64be(next)
	if err := tx.batch.Set(key, buf, nil); err != nil {
		return 0, err
	}
	tx.staged[string(key)] = buf
	return next, nil
}

// Commit applies every staged write atomically and durably.
func (tx *Tx) Commit() error {
	if tx.done {
		return nil
	}
	tx.done = true
	defer tx.batch.Close()
	return tx.batch.Commit(pebble.Sync)
}

// Rollback discards staged writes. It is a no-op after Commit, so it is
// safe to defer unconditionally.
func (tx *Tx) Rollback() {
	if tx.done {
		return
	}
	tx.done = true
	tx.batch.Close()
}
