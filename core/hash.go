package core

import (
	"crypto/sha256"
	"fmt"

	"github.com/shopspring/decimal"
)

// ComputeAuctionID derives the auction id from the listing terms plus the
// caller-chosen salt. The derivation is deterministic so a client can predict
// the id before the create call is confirmed.
//
// Formula: SHA256(position + "|" + seller + "|" + sellerProxy + "|" + token +
// "|" + ask + "|" + expiry + "|" + salt)
//
// The ask is rendered with decimal's canonical string form so the hash does
// not depend on how the amount was represented in memory.
func ComputeAuctionID(position PositionID, seller, sellerProxy, token Address, ask decimal.Decimal, expiryBlock, salt uint64) AuctionID {
	data := fmt.Sprintf("%s|%s|%s|%s|%s|%d|%d",
		position, seller, sellerProxy, token, ask.String(), expiryBlock, salt)
	hash := sha256.Sum256([]byte(data))
	return AuctionID(fmt.Sprintf("%x", hash))
}

// ComputeBidID derives the bid id from the submission fields plus the
// caller-chosen salt, with the same determinism guarantee as ComputeAuctionID.
//
// Formula: SHA256(auction_id + "|" + buyer + "|" + buyerProxy + "|" + token +
// "|" + value + "|" + expiry + "|" + salt)
func ComputeBidID(auctionID AuctionID, buyer, buyerProxy, token Address, value decimal.Decimal, expiryBlock, salt uint64) BidID {
	data := fmt.Sprintf("%s|%s|%s|%s|%s|%d|%d",
		auctionID, buyer, buyerProxy, token, value.String(), expiryBlock, salt)
	hash := sha256.Sum256([]byte(data))
	return BidID(fmt.Sprintf("%x", hash))
}
