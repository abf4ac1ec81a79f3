package core

import (
	"errors"
	"testing"

	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"
)

func TestMeetsAsk(t *testing.T) {
	ask := decimal.NewFromInt(1000)

	check.True(t, MeetsAsk(decimal.NewFromInt(1000), ask))
	check.True(t, MeetsAsk(decimal.NewFromInt(1001), ask))
	check.False(t, MeetsAsk(decimal.NewFromInt(999), ask))
}

func TestValidateAuctionTerms(t *testing.T) {
	ask := decimal.NewFromInt(1000)

	check.Nil(t, ValidateAuctionTerms(ask, 100, 50))

	err := ValidateAuctionTerms(decimal.Zero, 100, 50)
	check.Error(t, err)
	check.Equal(t, "InvalidTerms", ErrorCode(err))

	err = ValidateAuctionTerms(decimal.NewFromInt(-5), 100, 50)
	check.Error(t, err)
	check.Equal(t, "InvalidTerms", ErrorCode(err))

	// Expiry at the current height is already past.
	err = ValidateAuctionTerms(ask, 50, 50)
	check.Error(t, err)
	check.Equal(t, "InvalidTerms", ErrorCode(err))
}

func TestValidateBidTerms(t *testing.T) {
	auction := Auction{
		ID:            "a1",
		AcceptedToken: "tok",
		Ask:           decimal.NewFromInt(1000),
		ExpiryBlock:   100,
		Status:        StatusOpen,
	}
	value := decimal.NewFromInt(500)

	check.Nil(t, ValidateBidTerms(auction, "tok", value, 200, 50))

	settled := auction
	settled.Status = StatusSettled
	check.Equal(t, "AuctionNotOpen", ErrorCode(ValidateBidTerms(settled, "tok", value, 200, 50)))

	cancelled := auction
	cancelled.Status = StatusCancelled
	check.Equal(t, "AuctionNotOpen", ErrorCode(ValidateBidTerms(cancelled, "tok", value, 200, 50)))

	check.Equal(t, "AuctionExpired", ErrorCode(ValidateBidTerms(auction, "tok", value, 200, 100)))
	check.Equal(t, "BidExpired", ErrorCode(ValidateBidTerms(auction, "tok", value, 50, 50)))
	check.Equal(t, "TokenMismatch", ErrorCode(ValidateBidTerms(auction, "other", value, 200, 50)))
	check.Equal(t, "InvalidValue", ErrorCode(ValidateBidTerms(auction, "tok", decimal.Zero, 200, 50)))
}

func TestStatusCodes(t *testing.T) {
	// Settled must serialize as code 3; existing consumers decode that value.
	check.Equal(t, uint8(3), uint8(StatusSettled))
	check.Equal(t, "settled", StatusSettled.String())

	check.True(t, StatusSettled.Terminal())
	check.True(t, StatusCancelled.Terminal())
	check.False(t, StatusOpen.Terminal())
}

func TestErrorCode_Unrecognized(t *testing.T) {
	check.Equal(t, "Internal", ErrorCode(errors.New("disk on fire")))
}
