package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/cdpmarket/auctionengine/core"
)

// EventType discriminates audit stream events.
type EventType string

const (
	EventAuctionOpened    EventType = "auction_opened"
	EventBidSubmitted     EventType = "bid_submitted"
	EventBidRevoked       EventType = "bid_revoked"
	EventAuctionSettled   EventType = "auction_settled"
	EventAuctionCancelled EventType = "auction_cancelled"
	EventProceedsClaimed  EventType = "proceeds_claimed"
)

// Event is one structured audit record, emitted after a state transition has
// committed. It carries the full record snapshot so consumers never parse
// positional logs.
type Event struct {
	ID        string           `json:"id"`
	Type      EventType        `json:"type"`
	Height    uint64           `json:"height"`
	Timestamp time.Time        `json:"timestamp"`
	Auction   *core.Auction    `json:"auction,omitempty"`
	Bid       *core.Bid        `json:"bid,omitempty"`
	Amount    *decimal.Decimal `json:"amount,omitempty"`
}

// EventSink receives committed events. Publish must not block the engine for
// long and must never mutate engine state.
type EventSink interface {
	Publish(Event)
}

// NopSink discards events.
type NopSink struct{}

func (NopSink) Publish(Event) {}

// MultiSink fans one event out to several sinks in order.
type MultiSink []EventSink

func (m MultiSink) Publish(ev Event) {
	for _, sink := range m {
		sink.Publish(ev)
	}
}
