// Package api is the network-facing request layer: REST routes over
// gorilla/mux plus a WebSocket hub for book and trade updates.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"spotex/pkg/book"
	"spotex/pkg/exchange"
)

const defaultTradeLimit = 100

type Server struct {
	ex     *exchange.Exchange
	router *mux.Router
	hub    *Hub
	log    *zap.SugaredLogger
}

func NewServer(ex *exchange.Exchange, hub *Hub, log *zap.SugaredLogger) *Server {
	s := &Server{
		ex:     ex,
		router: mux.NewRouter(),
		hub:    hub,
		log:    log,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/book", s.handleGetBook).Methods("GET")
	api.HandleFunc("/trades", s.handleGetTrades).Methods("GET")
	api.HandleFunc("/users/{id}", s.handleGetUser).Methods("GET")
	api.HandleFunc("/users/{id}/orders", s.handlePlaceOrder).Methods("POST")
	api.HandleFunc("/orders/{id}/cancel", s.handleCancelOrder).Methods("POST")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the router wrapped in CORS middleware.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(s.router)
}

// Start runs the hub and serves HTTP on addr. Blocks.
func (s *Server) Start(addr string) error {
	go s.hub.Run()
	s.log.Infow("api_server_starting", "addr", addr)
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.bookResponse())
}

func (s *Server) bookResponse() BookResponse {
	snap := s.ex.Snapshot()
	buys := make([]PriceLevel, len(snap.Buys))
	for i, l := range snap.Buys {
		buys[i] = PriceLevel{Price: l.Price, Qty: l.Qty}
	}
	sells := make([]PriceLevel, len(snap.Sells))
	for i, l := range snap.Sells {
		sells[i] = PriceLevel{Price: l.Price, Qty: l.Qty}
	}
	return BookResponse{Buys: buys, Sells: sells, Timestamp: time.Now().UnixMilli()}
}

func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	limit := defaultTradeLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	trades, err := s.ex.RecentTrades(limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load trades", err.Error())
		return
	}
	out := make([]TradeInfo, len(trades))
	for i, t := range trades {
		out[i] = TradeInfo{
			ID:        t.ID,
			Price:     t.Price,
			Quantity:  t.Qty,
			TakerSide: t.TakerSide.String(),
			Timestamp: t.Timestamp,
		}
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	status, err := s.ex.UserStatus(userID)
	if err != nil {
		respondError(w, statusFromErr(err), "user lookup failed", err.Error())
		return
	}

	orders := make([]OrderInfo, len(status.OpenOrders))
	for i, o := range status.OpenOrders {
		orders[i] = OrderInfo{
			OrderID:  o.ID,
			Side:     o.Side.String(),
			Price:    o.Price,
			Quantity: o.Qty,
			Filled:   o.Filled,
		}
	}
	respondJSON(w, http.StatusOK, UserResponse{
		User:   status.User.ID,
		Fiat:   status.User.Fiat,
		BTC:    status.User.BTC,
		Orders: orders,
	})
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	side, err := book.ParseSide(req.Side)
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad order", err.Error())
		return
	}

	orderID, err := s.ex.PlaceOrder(r.Context(), userID, side, req.Price, req.Quantity)
	if err != nil {
		respondError(w, statusFromErr(err), "order rejected", err.Error())
		return
	}

	s.hub.Broadcast(channelBook, WSMessage{Type: "book", Data: s.bookResponse()})
	respondJSON(w, http.StatusOK, PlaceOrderResponse{OrderID: orderID})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := s.ex.CancelOrder(r.Context(), orderID); err != nil {
		respondError(w, statusFromErr(err), "cancel rejected", err.Error())
		return
	}

	s.hub.Broadcast(channelBook, WSMessage{Type: "book", Data: s.bookResponse()})
	respondJSON(w, http.StatusOK, CancelOrderResponse{Canceled: orderID})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (uint64, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)[name], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid id", err.Error())
		return 0, false
	}
	return id, true
}

func statusFromErr(err error) int {
	switch {
	case errors.Is(err, exchange.ErrUserNotFound),
		errors.Is(err, exchange.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, exchange.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, book.ErrInvalidSide),
		errors.Is(err, exchange.ErrInvalidOrder):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg, detail string) {
	respondJSON(w, status, ErrorResponse{Error: msg, Detail: detail})
}
