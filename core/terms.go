package core

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MeetsAsk returns true if the bid value meets or exceeds the ask.
// Uses decimal arithmetic so settlement never depends on float rounding.
func MeetsAsk(value, ask decimal.Decimal) bool {
	return value.GreaterThanOrEqual(ask)
}

// ValidateAuctionTerms checks the creation preconditions: a positive ask and
// an expiry block strictly in the future relative to the supplied height.
func ValidateAuctionTerms(ask decimal.Decimal, expiryBlock, height uint64) error {
	if !ask.IsPositive() {
		return fmt.Errorf("ask %s is not positive: %w", ask.String(), ErrInvalidTerms)
	}
	if expiryBlock <= height {
		return fmt.Errorf("expiry block %d is not past height %d: %w", expiryBlock, height, ErrInvalidTerms)
	}
	return nil
}

// ValidateBidTerms checks the submission preconditions against an auction
// record. The height is evaluated once, at the start of the operation, and
// never re-checked mid-operation.
func ValidateBidTerms(auction Auction, token Address, value decimal.Decimal, expiryBlock, height uint64) error {
	if auction.Status != StatusOpen {
		return fmt.Errorf("auction %s is %s: %w", auction.ID, auction.Status, ErrAuctionNotOpen)
	}
	if height >= auction.ExpiryBlock {
		return fmt.Errorf("auction %s expired at block %d (height %d): %w", auction.ID, auction.ExpiryBlock, height, ErrAuctionExpired)
	}
	if height >= expiryBlock {
		return fmt.Errorf("bid expiry block %d is not past height %d: %w", expiryBlock, height, ErrBidExpired)
	}
	if token != auction.AcceptedToken {
		return fmt.Errorf("bid token %s, auction accepts %s: %w", token, auction.AcceptedToken, ErrTokenMismatch)
	}
	if !value.IsPositive() {
		return fmt.Errorf("bid value %s: %w", value.String(), ErrInvalidValue)
	}
	return nil
}
