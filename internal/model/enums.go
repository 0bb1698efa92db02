package model

import "fmt"

// Position is the driver-owned trade state: which side the bot is waiting to
// enter next, or PENDING while an order is in flight.
type Position string

const (
	PositionBuy     Position = "BUY"
	PositionSell    Position = "SELL"
	PositionPending Position = "PENDING"
)

// ParsePosition converts a config string into a Position.
func ParsePosition(s string) (Position, error) {
	switch Position(s) {
	case PositionBuy, PositionSell, PositionPending:
		return Position(s), nil
	}
	return "", fmt.Errorf("model: unknown position %q", s)
}

// Side returns the order side matching an actionable position.
// PENDING has no side.
func (p Position) Side() (Side, error) {
	switch p {
	case PositionBuy:
		return SideBuy, nil
	case PositionSell:
		return SideSell, nil
	}
	return "", fmt.Errorf("model: position %q has no order side", p)
}

func (p Position) String() string { return string(p) }

// Side is an exchange order side.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

func (s Side) String() string { return string(s) }

// OrderStatus is an exchange order lifecycle state.
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "NEW"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCanceled        OrderStatus = "CANCELED"
	OrderStatusRejected        OrderStatus = "REJECTED"
	OrderStatusExpired         OrderStatus = "EXPIRED"
)

// Terminal reports whether the order can no longer change state.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCanceled, OrderStatusRejected, OrderStatusExpired:
		return true
	}
	return false
}

func (s OrderStatus) String() string { return string(s) }

// OrderType is an exchange order type.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// FilterType identifies a symbol trading rule from exchange info.
type FilterType string

const (
	FilterPrice       FilterType = "PRICE_FILTER"
	FilterLotSize     FilterType = "LOT_SIZE"
	FilterMinNotional FilterType = "MIN_NOTIONAL"
)
