package core

import (
	"github.com/shopspring/decimal"
)

// Address identifies an account, proxy, or token contract on the host ledger.
// The engine never inspects addresses; they are opaque identities.
type Address string

// PositionID is the opaque handle of a collateralized position (a CDP cup).
// Custody of the position is tracked by the external custody ledger.
type PositionID string

// AuctionID identifies an auction record. IDs are derived deterministically
// from the listing terms plus a caller salt (see ComputeAuctionID) so clients
// can predict them before confirmation.
type AuctionID string

// BidID identifies a bid record, derived the same way (see ComputeBidID).
type BidID string

// AuctionStatus is the lifecycle state of an auction.
type AuctionStatus uint8

const (
	// StatusOpen means the auction is accepting bids and the engine holds
	// custody of the listed position.
	StatusOpen AuctionStatus = 1

	// StatusSettled means a qualifying bid won. Serializes as code 3;
	// existing consumers decode that value.
	StatusSettled AuctionStatus = 3

	// StatusCancelled means the listing expired and custody was returned.
	StatusCancelled AuctionStatus = 4
)

func (s AuctionStatus) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusSettled:
		return "settled"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status permits no further transitions.
func (s AuctionStatus) Terminal() bool {
	return s == StatusSettled || s == StatusCancelled
}

// Auction is a sale listing backed by a collateralized position. Records are
// created once, mutated only by settlement or cancellation, never deleted.
type Auction struct {
	ID              AuctionID       `json:"id"`
	Position        PositionID      `json:"cdp"`
	Seller          Address         `json:"seller"`
	SellerProxy     Address         `json:"seller_proxy"`
	AcceptedToken   Address         `json:"token"`
	Ask             decimal.Decimal `json:"ask"`
	ExpiryBlock     uint64          `json:"expiry"`
	Status          AuctionStatus   `json:"status"`
	WinningBid      BidID           `json:"winning_bid,omitempty"`
	ProceedsClaimed bool            `json:"proceeds_claimed"`
	CreatedBlock    uint64          `json:"created_block"`
}

// Bid is a buyer's escrow-backed offer against an open auction. The escrowed
// Value is held by the engine from submission until exactly one of
// revoke-refund or settlement occurs.
type Bid struct {
	ID             BidID           `json:"id"`
	AuctionID      AuctionID       `json:"auction_id"`
	Buyer          Address         `json:"buyer"`
	BuyerProxy     Address         `json:"buyer_proxy"`
	Token          Address         `json:"token"`
	Value          decimal.Decimal `json:"value"`
	ExpiryBlock    uint64          `json:"expiry"`
	Revoked        bool            `json:"revoked"`
	Accepted       bool            `json:"accepted"`
	SubmittedBlock uint64          `json:"submitted_block"`
}

// Outstanding reports whether the bid still holds escrow that its buyer can
// reclaim. Accepted bids are consumed by settlement and never refundable.
func (b Bid) Outstanding() bool {
	return !b.Revoked && !b.Accepted
}
