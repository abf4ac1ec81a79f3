package server

import (
	"encoding/base64"
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/cdpmarket/auctionengine/core"
	"github.com/cdpmarket/auctionengine/engine"
	"github.com/cdpmarket/auctionengine/engineapi"
	"github.com/cdpmarket/auctionengine/receipts"
)

// SignedEvent is the feed frame: the event envelope plus its COSE receipt.
// Receipt is empty when the feed runs unsigned.
type SignedEvent struct {
	Event   engine.Event `json:"event"`
	Receipt string       `json:"receipt,omitempty"` // base64-encoded COSE_Sign1
}

// EventFeed implements engine.EventSink, signing each committed event and
// fanning it out to websocket subscribers. Slow subscribers are dropped
// rather than allowed to block the feed.
type EventFeed struct {
	mu     sync.Mutex
	signer *receipts.Signer
	subs   map[chan SignedEvent]struct{}
}

// NewEventFeed creates a feed. A nil signer disables receipts.
func NewEventFeed(signer *receipts.Signer) *EventFeed {
	return &EventFeed{
		signer: signer,
		subs:   make(map[chan SignedEvent]struct{}),
	}
}

func (f *EventFeed) Publish(ev engine.Event) {
	frame := SignedEvent{Event: ev}
	if f.signer != nil {
		receipt, err := f.signer.Sign(ev)
		if err != nil {
			log.Printf("ERROR: Failed to sign event %s: %v", ev.ID, err)
		} else {
			frame.Receipt = base64.StdEncoding.EncodeToString(receipt)
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for sub := range f.subs {
		select {
		case sub <- frame:
		default:
			log.Printf("INFO: Dropping slow event subscriber")
			close(sub)
			delete(f.subs, sub)
		}
	}
}

func (f *EventFeed) subscribe() chan SignedEvent {
	sub := make(chan SignedEvent, 64)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[sub] = struct{}{}
	return sub
}

func (f *EventFeed) unsubscribe(sub chan SignedEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.subs[sub]; ok {
		close(sub)
		delete(f.subs, sub)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The feed is read-only public data; origin checks belong to the
	// deployment's proxy layer.
	CheckOrigin: func(*http.Request) bool { return true },
}

// HTTPServer serves the read accessors and the event feed.
type HTTPServer struct {
	engine *engine.Engine
	feed   *EventFeed
}

func NewHTTPServer(eng *engine.Engine, feed *EventFeed) *HTTPServer {
	return &HTTPServer{engine: eng, feed: feed}
}

// Router builds the chi router with all read routes registered.
func (h *HTTPServer) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.handleHealth)
	r.Get("/auctions/{id}", h.handleGetAuction)
	r.Get("/auctions/{id}/bids", h.handleGetAuctionBids)
	r.Get("/bids/{id}", h.handleGetBid)
	r.Get("/escrow/{token}", h.handleGetEscrow)
	r.Get("/events", h.handleEvents)
	return r
}

func (h *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPServer) handleGetAuction(w http.ResponseWriter, r *http.Request) {
	id := core.AuctionID(chi.URLParam(r, "id"))
	auction, err := h.engine.GetAuctionInfo(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, engineapi.AuctionInfoFrom(auction))
}

func (h *HTTPServer) handleGetAuctionBids(w http.ResponseWriter, r *http.Request) {
	id := core.AuctionID(chi.URLParam(r, "id"))
	if _, err := h.engine.GetAuctionInfo(id); err != nil {
		writeError(w, err)
		return
	}

	bids, err := h.engine.BidsForAuction(id)
	if err != nil {
		writeError(w, err)
		return
	}

	infos := make([]engineapi.BidInfo, 0, len(bids))
	for _, bid := range bids {
		infos = append(infos, engineapi.BidInfoFrom(bid))
	}
	writeJSON(w, http.StatusOK, infos)
}

func (h *HTTPServer) handleGetBid(w http.ResponseWriter, r *http.Request) {
	id := core.BidID(chi.URLParam(r, "id"))
	bid, err := h.engine.GetBidInfo(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, engineapi.BidInfoFrom(bid))
}

func (h *HTTPServer) handleGetEscrow(w http.ResponseWriter, r *http.Request) {
	token := core.Address(chi.URLParam(r, "token"))
	balance, err := h.engine.EscrowBalance(token)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"token":   string(token),
		"balance": balance.String(),
	})
}

func (h *HTTPServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ERROR: Failed to upgrade event subscriber: %v", err)
		return
	}
	defer func() {
		if err := conn.Close(); err != nil {
			log.Printf("ERROR: Failed to close event subscriber: %v", err)
		}
	}()

	sub := h.feed.subscribe()
	defer h.feed.unsubscribe(sub)

	log.Printf("INFO: Event subscriber connected: %s", conn.RemoteAddr())

	for frame := range sub {
		if err := conn.WriteJSON(frame); err != nil {
			log.Printf("INFO: Event subscriber disconnected: %v", err)
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("ERROR: Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := core.ErrorCode(err)
	status := http.StatusBadRequest
	switch code {
	case "UnknownAuction", "UnknownBid":
		status = http.StatusNotFound
	case "Internal":
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, engineapi.ErrorResponse{
		Type:    "error",
		Code:    code,
		Message: err.Error(),
	})
}
