package book

import (
	"errors"
	"fmt"
	"strings"
)

// Side marks which half of the market an order belongs to.
type Side int8

const (
	Buy  Side = 1
	Sell Side = -1
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// Opposite returns the side an order crosses against.
func (s Side) Opposite() Side { return -s }

// Valid reports whether s is one of the two defined sides.
func (s Side) Valid() bool { return s == Buy || s == Sell }

var ErrInvalidSide = errors.New("invalid side")

// ParseSide maps the wire representation ("BUY"/"SELL", case-insensitive)
// onto a Side.
func ParseSide(s string) (Side, error) {
	switch strings.ToUpper(s) {
	case "BUY":
		return Buy, nil
	case "SELL":
		return Sell, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidSide, s)
	}
}

// Order is a limit order as the matching core sees it. Qty is the
// remaining (unfilled) quantity; bookkeeping against the original size
// lives with the persisted record. Prices are quote minor units per base
// unit, quantities are base units.
type Order struct {
	ID     uint64
	UserID uint64
	Side   Side
	Price  int64
	Qty    int64
}

// Fill is one match between an incoming order and a resting maker.
// Price is always the maker's price.
type Fill struct {
	MakerID uint64
	Qty     int64
	Price   int64
}

// PriceLevel aggregates resting quantity at one price.
type PriceLevel struct {
	Price int64
	Qty   int64
}
