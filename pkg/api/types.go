package api

// Request/response types for the REST endpoints and WebSocket messages.

type PriceLevel struct {
	Price int64 `json:"price"`
	Qty   int64 `json:"quantity"`
}

// BookResponse is the order book snapshot: buys sorted high to low,
// sells low to high.
type BookResponse struct {
	Buys      []PriceLevel `json:"buys"`
	Sells     []PriceLevel `json:"sells"`
	Timestamp int64        `json:"timestamp"`
}

type OrderInfo struct {
	OrderID  uint64 `json:"order_id"`
	Side     string `json:"side"`
	Price    int64  `json:"price"`
	Quantity int64  `json:"quantity"`
	Filled   int64  `json:"filled"`
}

type UserResponse struct {
	User   uint64      `json:"user"`
	Fiat   int64       `json:"fiat"`
	BTC    int64       `json:"btc"`
	Orders []OrderInfo `json:"orders"`
}

type PlaceOrderRequest struct {
	Side     string `json:"side"`
	Price    int64  `json:"price"`
	Quantity int64  `json:"quantity"`
}

type PlaceOrderResponse struct {
	OrderID uint64 `json:"order_id"`
}

type CancelOrderResponse struct {
	Canceled uint64 `json:"canceled"`
}

type TradeInfo struct {
	ID        uint64 `json:"id"`
	Price     int64  `json:"price"`
	Quantity  int64  `json:"quantity"`
	TakerSide string `json:"taker_side"`
	Timestamp int64  `json:"timestamp"`
}

type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// WSMessage is the envelope for every WebSocket broadcast.
type WSMessage struct {
	Type string `json:"type"` // "book" or "trade"
	Data any    `json:"data"`
}

// WSSubscribeRequest is sent by clients to manage channel subscriptions,
// e.g. {"op":"subscribe","channels":["book","trades"]}.
type WSSubscribeRequest struct {
	Op       string   `json:"op"`
	Channels []string `json:"channels"`
}
