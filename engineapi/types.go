// Package engineapi defines the wire surface of the auction engine: typed
// request/response structures with a "type" discriminator, exchanged as JSON
// over the engine's socket protocol and mirrored by the HTTP read API.
package engineapi

import (
	"github.com/shopspring/decimal"

	"github.com/cdpmarket/auctionengine/core"
)

// Request type discriminators.
const (
	TypeCreateAuction  = "create_auction"
	TypeSubmitBid      = "submit_bid"
	TypeRevokeBid      = "revoke_bid"
	TypeCancelExpired  = "cancel_expired"
	TypeClaimProceeds  = "claim_proceeds"
	TypeGetAuctionInfo = "get_auction_info"
	TypeGetBidInfo     = "get_bid_info"
	TypePing           = "ping"
)

// BaseRequest carries only the discriminator; the server decodes it first to
// pick the concrete request type.
type BaseRequest struct {
	Type string `json:"type"`
}

type CreateAuctionRequest struct {
	Type        string          `json:"type"`
	Position    string          `json:"cdp"`
	Seller      string          `json:"seller"`
	SellerProxy string          `json:"seller_proxy"`
	Token       string          `json:"token"`
	Ask         decimal.Decimal `json:"ask"`
	ExpiryBlock uint64          `json:"expiry"`
	Salt        uint64          `json:"salt"`
}

type SubmitBidRequest struct {
	Type        string          `json:"type"`
	AuctionID   string          `json:"auction_id"`
	Buyer       string          `json:"buyer"`
	BuyerProxy  string          `json:"buyer_proxy"`
	Token       string          `json:"token"`
	Value       decimal.Decimal `json:"value"`
	ExpiryBlock uint64          `json:"expiry"`
	Salt        uint64          `json:"salt"`
}

type RevokeBidRequest struct {
	Type   string `json:"type"`
	BidID  string `json:"bid_id"`
	Caller string `json:"caller"`
}

type CancelExpiredRequest struct {
	Type      string `json:"type"`
	AuctionID string `json:"auction_id"`
}

type ClaimProceedsRequest struct {
	Type      string `json:"type"`
	AuctionID string `json:"auction_id"`
	Caller    string `json:"caller"`
}

type GetAuctionInfoRequest struct {
	Type      string `json:"type"`
	AuctionID string `json:"auction_id"`
}

type GetBidInfoRequest struct {
	Type  string `json:"type"`
	BidID string `json:"bid_id"`
}

// AuctionInfo is the full auction record snapshot. StatusCode carries the
// numeric lifecycle code (settled auctions report 3, the value existing
// consumers decode).
type AuctionInfo struct {
	ID              string          `json:"id"`
	Position        string          `json:"cdp"`
	Seller          string          `json:"seller"`
	SellerProxy     string          `json:"seller_proxy"`
	Token           string          `json:"token"`
	Ask             decimal.Decimal `json:"ask"`
	ExpiryBlock     uint64          `json:"expiry"`
	StatusCode      uint8           `json:"status"`
	StatusName      string          `json:"status_name"`
	WinningBid      string          `json:"winning_bid,omitempty"`
	ProceedsClaimed bool            `json:"proceeds_claimed"`
	CreatedBlock    uint64          `json:"created_block"`
}

// BidInfo is the full bid record snapshot. Field order matches the legacy
// accessor layout: id, auction, buyer, proxy, token, value, expiry, revoked,
// accepted (indices 0 through 8).
type BidInfo struct {
	ID             string          `json:"id"`
	AuctionID      string          `json:"auction_id"`
	Buyer          string          `json:"buyer"`
	BuyerProxy     string          `json:"buyer_proxy"`
	Token          string          `json:"token"`
	Value          decimal.Decimal `json:"value"`
	ExpiryBlock    uint64          `json:"expiry"`
	Revoked        bool            `json:"revoked"`
	Accepted       bool            `json:"accepted"`
	SubmittedBlock uint64          `json:"submitted_block"`
}

type CreateAuctionResponse struct {
	Type    string      `json:"type"`
	Auction AuctionInfo `json:"auction"`
}

type SubmitBidResponse struct {
	Type    string      `json:"type"`
	Bid     BidInfo     `json:"bid"`
	Auction AuctionInfo `json:"auction"`
	Settled bool        `json:"settled"`
}

type RevokeBidResponse struct {
	Type string  `json:"type"`
	Bid  BidInfo `json:"bid"`
}

type CancelExpiredResponse struct {
	Type    string      `json:"type"`
	Auction AuctionInfo `json:"auction"`
}

type ClaimProceedsResponse struct {
	Type   string          `json:"type"`
	Amount decimal.Decimal `json:"amount"`
}

type AuctionInfoResponse struct {
	Type    string      `json:"type"`
	Auction AuctionInfo `json:"auction"`
}

type BidInfoResponse struct {
	Type string  `json:"type"`
	Bid  BidInfo `json:"bid"`
}

type PingResponse struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// ErrorResponse reports a failed operation. Code is the stable taxonomy code
// (InvalidTerms, AuctionNotOpen, ...); Message is diagnostic only.
type ErrorResponse struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AuctionInfoFrom converts a committed auction record to its wire snapshot.
func AuctionInfoFrom(a core.Auction) AuctionInfo {
	return AuctionInfo{
		ID:              string(a.ID),
		Position:        string(a.Position),
		Seller:          string(a.Seller),
		SellerProxy:     string(a.SellerProxy),
		Token:           string(a.AcceptedToken),
		Ask:             a.Ask,
		ExpiryBlock:     a.ExpiryBlock,
		StatusCode:      uint8(a.Status),
		StatusName:      a.Status.String(),
		WinningBid:      string(a.WinningBid),
		ProceedsClaimed: a.ProceedsClaimed,
		CreatedBlock:    a.CreatedBlock,
	}
}

// BidInfoFrom converts a committed bid record to its wire snapshot.
func BidInfoFrom(b core.Bid) BidInfo {
	return BidInfo{
		ID:             string(b.ID),
		AuctionID:      string(b.AuctionID),
		Buyer:          string(b.Buyer),
		BuyerProxy:     string(b.BuyerProxy),
		Token:          string(b.Token),
		Value:          b.Value,
		ExpiryBlock:    b.ExpiryBlock,
		Revoked:        b.Revoked,
		Accepted:       b.Accepted,
		SubmittedBlock: b.SubmittedBlock,
	}
}
