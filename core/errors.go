package core

import "errors"

// Failure taxonomy for engine operations. Every failure aborts the whole
// operation with zero partial effect; callers match with errors.Is.
var (
	// ErrInvalidTerms rejects auction creation with a zero ask or an expiry
	// that is not in the future.
	ErrInvalidTerms = errors.New("invalid auction terms")

	// ErrAuctionNotOpen rejects operations against a settled or cancelled
	// auction.
	ErrAuctionNotOpen = errors.New("auction is not open")

	// ErrAuctionExpired rejects bids submitted at or past the auction's
	// expiry block.
	ErrAuctionExpired = errors.New("auction is expired")

	// ErrBidExpired rejects bids whose own expiry block is not in the future.
	ErrBidExpired = errors.New("bid is expired")

	// ErrTokenMismatch rejects bids denominated in a token other than the
	// auction's accepted token.
	ErrTokenMismatch = errors.New("bid token does not match auction token")

	// ErrInvalidValue rejects bids with a non-positive value.
	ErrInvalidValue = errors.New("bid value must be positive")

	// ErrCustodyTransferFailed means the position could not be moved on the
	// custody ledger.
	ErrCustodyTransferFailed = errors.New("position custody transfer failed")

	// ErrEscrowTransferFailed means the token ledger refused the escrow or
	// refund movement.
	ErrEscrowTransferFailed = errors.New("escrow token transfer failed")

	// ErrAlreadyRevoked rejects a second revocation of the same bid.
	ErrAlreadyRevoked = errors.New("bid already revoked")

	// ErrBidAlreadyAccepted rejects revocation of a winning bid. Permanent:
	// a settled bid can never be unwound.
	ErrBidAlreadyAccepted = errors.New("bid already accepted")

	// ErrUnknownAuction and ErrUnknownBid reject lookups of ids that were
	// never committed.
	ErrUnknownAuction = errors.New("unknown auction")
	ErrUnknownBid     = errors.New("unknown bid")

	// ErrNotAuthorized rejects callers acting on records they do not own.
	ErrNotAuthorized = errors.New("caller is not authorized")

	// ErrNotExpired rejects cancellation of a listing before its expiry
	// block.
	ErrNotExpired = errors.New("auction is not expired")

	// ErrProceedsAlreadyClaimed rejects a second proceeds claim.
	ErrProceedsAlreadyClaimed = errors.New("proceeds already claimed")

	// ErrNoProceeds rejects proceeds claims against auctions that have not
	// settled.
	ErrNoProceeds = errors.New("auction has no proceeds to claim")
)

var errorCodes = map[error]string{
	ErrInvalidTerms:           "InvalidTerms",
	ErrAuctionNotOpen:         "AuctionNotOpen",
	ErrAuctionExpired:         "AuctionExpired",
	ErrBidExpired:             "BidExpired",
	ErrTokenMismatch:          "TokenMismatch",
	ErrInvalidValue:           "InvalidValue",
	ErrCustodyTransferFailed:  "CustodyTransferFailed",
	ErrEscrowTransferFailed:   "EscrowTransferFailed",
	ErrAlreadyRevoked:         "AlreadyRevoked",
	ErrBidAlreadyAccepted:     "BidAlreadyAccepted",
	ErrUnknownAuction:         "UnknownAuction",
	ErrUnknownBid:             "UnknownBid",
	ErrNotAuthorized:          "NotAuthorized",
	ErrNotExpired:             "NotExpired",
	ErrProceedsAlreadyClaimed: "ProceedsAlreadyClaimed",
	ErrNoProceeds:             "NoProceeds",
}

// ErrorCode maps an engine error to its stable wire code. Unrecognized
// errors map to "Internal".
func ErrorCode(err error) string {
	for sentinel, code := range errorCodes {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return "Internal"
}
