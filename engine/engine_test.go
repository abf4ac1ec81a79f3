package engine

import (
	"testing"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"

	"github.com/cdpmarket/auctionengine/core"
	"github.com/cdpmarket/auctionengine/ledger"
)

const (
	engineAcct  core.Address    = "auction-engine"
	seller      core.Address    = "seller"
	sellerProxy core.Address    = "seller-proxy"
	buyer       core.Address    = "buyer"
	buyerProxy  core.Address    = "buyer-proxy"
	buyer2      core.Address    = "buyer-2"
	buyer2Proxy core.Address    = "buyer-2-proxy"
	token       core.Address    = "dai"
	cup         core.PositionID = "cup-1"
)

type captureSink struct {
	events []Event
}

func (s *captureSink) Publish(ev Event) {
	s.events = append(s.events, ev)
}

type testFixture struct {
	engine  *Engine
	custody *ledger.MemoryCustodyLedger
	tokens  *ledger.MemoryTokenLedger
	blocks  *ledger.BlockCounter
	sink    *captureSink
}

func newFixture(t *testing.T) *testFixture {
	t.Helper()

	custody := ledger.NewMemoryCustodyLedger()
	custody.SetHolder(cup, sellerProxy)

	tokens := ledger.NewMemoryTokenLedger()
	blocks := ledger.NewBlockCounter(10)
	sink := &captureSink{}

	eng := New(Config{
		Custody: custody,
		Tokens:  tokens,
		Heights: blocks,
		Events:  sink,
		Account: engineAcct,
	})
	return &testFixture{engine: eng, custody: custody, tokens: tokens, blocks: blocks, sink: sink}
}

func (f *testFixture) createAuction(t *testing.T, ask int64) core.Auction {
	t.Helper()

	auction, err := f.engine.CreateAuction(CreateAuctionParams{
		Position:    cup,
		Seller:      seller,
		SellerProxy: sellerProxy,
		Token:       token,
		Ask:         decimal.NewFromInt(ask),
		ExpiryBlock: 500,
		Salt:        1,
	})
	assert.Nil(t, err)
	return auction
}

func (f *testFixture) fund(who core.Address, amount int64) {
	f.tokens.Mint(token, who, decimal.NewFromInt(amount))
	f.tokens.Approve(token, who, engineAcct, decimal.NewFromInt(amount))
}

func (f *testFixture) submitBid(t *testing.T, auctionID core.AuctionID, who, whoProxy core.Address, value int64) (core.Bid, core.Auction, error) {
	t.Helper()

	return f.engine.SubmitBid(SubmitBidParams{
		AuctionID:   auctionID,
		Buyer:       who,
		BuyerProxy:  whoProxy,
		Token:       token,
		Value:       decimal.NewFromInt(value),
		ExpiryBlock: 600,
		Salt:        1,
	})
}

func TestCreateAuction_TakesCustody(t *testing.T) {
	f := newFixture(t)

	auction := f.createAuction(t, 1000)

	check.Equal(t, core.StatusOpen, auction.Status)
	check.Equal(t, cup, auction.Position)
	check.Equal(t, seller, auction.Seller)
	check.Equal(t, sellerProxy, auction.SellerProxy)
	check.Equal(t, "1000", auction.Ask.String())
	check.Equal(t, uint64(10), auction.CreatedBlock)

	holder, err := f.custody.CurrentHolder(cup)
	check.Nil(t, err)
	check.Equal(t, engineAcct, holder)

	stored, err := f.engine.GetAuctionInfo(auction.ID)
	check.Nil(t, err)
	check.Equal(t, auction, stored)

	assert.Equal(t, 1, len(f.sink.events))
	check.Equal(t, EventAuctionOpened, f.sink.events[0].Type)
	check.Equal(t, auction.ID, f.sink.events[0].Auction.ID)
}

func TestCreateAuction_IDPredictable(t *testing.T) {
	f := newFixture(t)

	expected := core.ComputeAuctionID(cup, seller, sellerProxy, token, decimal.NewFromInt(1000), 500, 1)
	auction := f.createAuction(t, 1000)

	check.Equal(t, expected, auction.ID)
}

func TestCreateAuction_InvalidTerms(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.CreateAuction(CreateAuctionParams{
		Position: cup, Seller: seller, SellerProxy: sellerProxy, Token: token,
		Ask: decimal.Zero, ExpiryBlock: 500, Salt: 1,
	})
	check.Equal(t, "InvalidTerms", core.ErrorCode(err))

	_, err = f.engine.CreateAuction(CreateAuctionParams{
		Position: cup, Seller: seller, SellerProxy: sellerProxy, Token: token,
		Ask: decimal.NewFromInt(1000), ExpiryBlock: 10, Salt: 1,
	})
	check.Equal(t, "InvalidTerms", core.ErrorCode(err))

	// Custody untouched by failed creation.
	holder, err := f.custody.CurrentHolder(cup)
	check.Nil(t, err)
	check.Equal(t, sellerProxy, holder)
	check.Equal(t, 0, len(f.sink.events))
}

func TestCreateAuction_CustodyFailureLeavesNoRecord(t *testing.T) {
	f := newFixture(t)

	// Position held by someone other than the claimed proxy.
	f.custody.SetHolder(cup, "stranger")

	expected := core.ComputeAuctionID(cup, seller, sellerProxy, token, decimal.NewFromInt(1000), 500, 1)
	_, err := f.engine.CreateAuction(CreateAuctionParams{
		Position: cup, Seller: seller, SellerProxy: sellerProxy, Token: token,
		Ask: decimal.NewFromInt(1000), ExpiryBlock: 500, Salt: 1,
	})
	check.Equal(t, "CustodyTransferFailed", core.ErrorCode(err))

	_, err = f.engine.GetAuctionInfo(expected)
	check.Equal(t, "UnknownAuction", core.ErrorCode(err))
}

func TestCreateAuction_DuplicateRejected(t *testing.T) {
	f := newFixture(t)
	f.createAuction(t, 1000)

	// Give the position back so only the id collision can fail the call.
	check.Nil(t, f.custody.TransferCustody(cup, engineAcct, sellerProxy))

	_, err := f.engine.CreateAuction(CreateAuctionParams{
		Position: cup, Seller: seller, SellerProxy: sellerProxy, Token: token,
		Ask: decimal.NewFromInt(1000), ExpiryBlock: 500, Salt: 1,
	})
	check.Equal(t, "InvalidTerms", core.ErrorCode(err))
}

func TestSubmitBid_BelowAskStaysPending(t *testing.T) {
	f := newFixture(t)
	auction := f.createAuction(t, 1000)
	f.fund(buyer, 999)

	bid, updated, err := f.submitBid(t, auction.ID, buyer, buyerProxy, 999)
	assert.Nil(t, err)

	check.False(t, bid.Accepted)
	check.False(t, bid.Revoked)
	check.Equal(t, core.StatusOpen, updated.Status)
	check.Equal(t, core.BidID(""), updated.WinningBid)

	// Escrow moved from buyer to the engine.
	check.Equal(t, "0", f.tokens.BalanceOf(token, buyer).String())
	check.Equal(t, "999", f.tokens.BalanceOf(token, engineAcct).String())

	escrow, err := f.engine.EscrowBalance(token)
	check.Nil(t, err)
	check.Equal(t, "999", escrow.String())

	// Custody unchanged: the engine still holds the position.
	holder, err := f.custody.CurrentHolder(cup)
	check.Nil(t, err)
	check.Equal(t, engineAcct, holder)
}

func TestSubmitBid_QualifyingSettles(t *testing.T) {
	f := newFixture(t)
	auction := f.createAuction(t, 1000)
	f.fund(buyer, 1000)

	sellerBefore := f.tokens.BalanceOf(token, seller)

	bid, updated, err := f.submitBid(t, auction.ID, buyer, buyerProxy, 1000)
	assert.Nil(t, err)

	check.True(t, bid.Accepted)
	check.Equal(t, core.StatusSettled, updated.Status)
	check.Equal(t, uint8(3), uint8(updated.Status))
	check.Equal(t, bid.ID, updated.WinningBid)

	// Custody moved to the winning bidder's proxy.
	holder, err := f.custody.CurrentHolder(cup)
	check.Nil(t, err)
	check.Equal(t, buyerProxy, holder)

	// Settlement alone does not pay the seller.
	check.Equal(t, sellerBefore.String(), f.tokens.BalanceOf(token, seller).String())

	// Proceeds stay in engine escrow until claimed.
	escrow, err := f.engine.EscrowBalance(token)
	check.Nil(t, err)
	check.Equal(t, "1000", escrow.String())

	types := make([]EventType, 0, len(f.sink.events))
	for _, ev := range f.sink.events {
		types = append(types, ev.Type)
	}
	check.Equal(t, []EventType{EventAuctionOpened, EventBidSubmitted, EventAuctionSettled}, types)
}

func TestSubmitBid_FirstQualifyingWins(t *testing.T) {
	f := newFixture(t)
	auction := f.createAuction(t, 1000)
	f.fund(buyer, 900)
	f.fund(buyer2, 1200)

	pending, _, err := f.submitBid(t, auction.ID, buyer, buyerProxy, 900)
	assert.Nil(t, err)

	winner, updated, err := f.submitBid(t, auction.ID, buyer2, buyer2Proxy, 1200)
	assert.Nil(t, err)

	check.True(t, winner.Accepted)
	check.Equal(t, winner.ID, updated.WinningBid)
	check.Equal(t, core.StatusSettled, updated.Status)

	holder, err := f.custody.CurrentHolder(cup)
	check.Nil(t, err)
	check.Equal(t, buyer2Proxy, holder)

	// The earlier sub-ask bid is still outstanding, not auto-refunded.
	stored, err := f.engine.GetBidInfo(pending.ID)
	check.Nil(t, err)
	check.False(t, stored.Revoked)
	check.False(t, stored.Accepted)

	// Submissions to a settled auction fail.
	f.fund(buyer, 2000)
	_, _, err = f.engine.SubmitBid(SubmitBidParams{
		AuctionID: auction.ID, Buyer: buyer, BuyerProxy: buyerProxy,
		Token: token, Value: decimal.NewFromInt(2000), ExpiryBlock: 600, Salt: 2,
	})
	check.Equal(t, "AuctionNotOpen", core.ErrorCode(err))
}

func TestSubmitBid_Preconditions(t *testing.T) {
	f := newFixture(t)
	auction := f.createAuction(t, 1000)
	f.fund(buyer, 5000)

	_, _, err := f.engine.SubmitBid(SubmitBidParams{
		AuctionID: "no-such-auction", Buyer: buyer, BuyerProxy: buyerProxy,
		Token: token, Value: decimal.NewFromInt(100), ExpiryBlock: 600, Salt: 1,
	})
	check.Equal(t, "UnknownAuction", core.ErrorCode(err))

	_, _, err = f.engine.SubmitBid(SubmitBidParams{
		AuctionID: auction.ID, Buyer: buyer, BuyerProxy: buyerProxy,
		Token: "usdc", Value: decimal.NewFromInt(100), ExpiryBlock: 600, Salt: 1,
	})
	check.Equal(t, "TokenMismatch", core.ErrorCode(err))

	_, _, err = f.engine.SubmitBid(SubmitBidParams{
		AuctionID: auction.ID, Buyer: buyer, BuyerProxy: buyerProxy,
		Token: token, Value: decimal.Zero, ExpiryBlock: 600, Salt: 1,
	})
	check.Equal(t, "InvalidValue", core.ErrorCode(err))

	_, _, err = f.engine.SubmitBid(SubmitBidParams{
		AuctionID: auction.ID, Buyer: buyer, BuyerProxy: buyerProxy,
		Token: token, Value: decimal.NewFromInt(100), ExpiryBlock: 10, Salt: 1,
	})
	check.Equal(t, "BidExpired", core.ErrorCode(err))

	// Past the auction deadline every bid is rejected.
	f.blocks.Advance(490) // height 500 == auction expiry
	_, _, err = f.engine.SubmitBid(SubmitBidParams{
		AuctionID: auction.ID, Buyer: buyer, BuyerProxy: buyerProxy,
		Token: token, Value: decimal.NewFromInt(100), ExpiryBlock: 600, Salt: 1,
	})
	check.Equal(t, "AuctionExpired", core.ErrorCode(err))
}

func TestSubmitBid_EscrowFailureLeavesNoRecord(t *testing.T) {
	f := newFixture(t)
	auction := f.createAuction(t, 1000)

	// Funded but never approved: the escrow pull must fail.
	f.tokens.Mint(token, buyer, decimal.NewFromInt(500))

	expected := core.ComputeBidID(auction.ID, buyer, buyerProxy, token, decimal.NewFromInt(500), 600, 1)
	_, _, err := f.submitBid(t, auction.ID, buyer, buyerProxy, 500)
	check.Equal(t, "EscrowTransferFailed", core.ErrorCode(err))

	_, err = f.engine.GetBidInfo(expected)
	check.Equal(t, "UnknownBid", core.ErrorCode(err))

	check.Equal(t, "500", f.tokens.BalanceOf(token, buyer).String())
	escrow, err := f.engine.EscrowBalance(token)
	check.Nil(t, err)
	check.Equal(t, "0", escrow.String())
}

func TestSubmitBid_SettlementCustodyFailureRefunds(t *testing.T) {
	f := newFixture(t)
	auction := f.createAuction(t, 1000)
	f.fund(buyer, 1000)

	// Simulate external interference: the position is no longer where the
	// engine left it, so settlement's custody transfer must fail.
	f.custody.SetHolder(cup, "stranger")

	expected := core.ComputeBidID(auction.ID, buyer, buyerProxy, token, decimal.NewFromInt(1000), 600, 1)
	_, _, err := f.submitBid(t, auction.ID, buyer, buyerProxy, 1000)
	check.Equal(t, "CustodyTransferFailed", core.ErrorCode(err))

	// The pulled escrow was refunded and no bid record exists.
	check.Equal(t, "1000", f.tokens.BalanceOf(token, buyer).String())
	check.Equal(t, "0", f.tokens.BalanceOf(token, engineAcct).String())

	_, err = f.engine.GetBidInfo(expected)
	check.Equal(t, "UnknownBid", core.ErrorCode(err))

	// Auction unaffected.
	stored, err := f.engine.GetAuctionInfo(auction.ID)
	check.Nil(t, err)
	check.Equal(t, core.StatusOpen, stored.Status)
}

func TestRevokeBid_RoundTrip(t *testing.T) {
	f := newFixture(t)
	auction := f.createAuction(t, 1000)
	f.fund(buyer, 800)

	before := f.tokens.BalanceOf(token, buyer)

	bid, _, err := f.submitBid(t, auction.ID, buyer, buyerProxy, 800)
	assert.Nil(t, err)

	revoked, err := f.engine.RevokeBid(bid.ID, buyer)
	assert.Nil(t, err)
	check.True(t, revoked.Revoked)

	// Exact restoration of the pre-submission balance.
	check.Equal(t, before.String(), f.tokens.BalanceOf(token, buyer).String())

	escrow, err := f.engine.EscrowBalance(token)
	check.Nil(t, err)
	check.Equal(t, "0", escrow.String())

	stored, err := f.engine.GetBidInfo(bid.ID)
	check.Nil(t, err)
	check.True(t, stored.Revoked)
	check.False(t, stored.Accepted)
}

func TestRevokeBid_TerminalStates(t *testing.T) {
	f := newFixture(t)
	auction := f.createAuction(t, 1000)
	f.fund(buyer, 800)
	f.fund(buyer2, 1000)

	pending, _, err := f.submitBid(t, auction.ID, buyer, buyerProxy, 800)
	assert.Nil(t, err)

	_, err = f.engine.RevokeBid(pending.ID, "somebody-else")
	check.Equal(t, "NotAuthorized", core.ErrorCode(err))

	_, err = f.engine.RevokeBid("no-such-bid", buyer)
	check.Equal(t, "UnknownBid", core.ErrorCode(err))

	_, err = f.engine.RevokeBid(pending.ID, buyer)
	check.Nil(t, err)
	_, err = f.engine.RevokeBid(pending.ID, buyer)
	check.Equal(t, "AlreadyRevoked", core.ErrorCode(err))

	winner, _, err := f.submitBid(t, auction.ID, buyer2, buyer2Proxy, 1000)
	assert.Nil(t, err)

	// A winning bid can never be unwound.
	_, err = f.engine.RevokeBid(winner.ID, buyer2)
	check.Equal(t, "BidAlreadyAccepted", core.ErrorCode(err))
}

func TestRevokeBid_PendingAfterSettlement(t *testing.T) {
	f := newFixture(t)
	auction := f.createAuction(t, 1000)
	f.fund(buyer, 700)
	f.fund(buyer2, 1000)

	pending, _, err := f.submitBid(t, auction.ID, buyer, buyerProxy, 700)
	assert.Nil(t, err)
	_, _, err = f.submitBid(t, auction.ID, buyer2, buyer2Proxy, 1000)
	assert.Nil(t, err)

	// Losing bidders reclaim their escrow individually after settlement.
	_, err = f.engine.RevokeBid(pending.ID, buyer)
	check.Nil(t, err)
	check.Equal(t, "700", f.tokens.BalanceOf(token, buyer).String())
}

func TestCancelExpired(t *testing.T) {
	f := newFixture(t)
	auction := f.createAuction(t, 1000)

	_, err := f.engine.CancelExpired(auction.ID)
	check.Equal(t, "NotExpired", core.ErrorCode(err))

	f.blocks.Advance(490) // height 500 == expiry

	cancelled, err := f.engine.CancelExpired(auction.ID)
	assert.Nil(t, err)
	check.Equal(t, core.StatusCancelled, cancelled.Status)

	holder, err := f.custody.CurrentHolder(cup)
	check.Nil(t, err)
	check.Equal(t, sellerProxy, holder)

	// Terminal: a cancelled auction cannot be cancelled again or bid on.
	_, err = f.engine.CancelExpired(auction.ID)
	check.Equal(t, "AuctionNotOpen", core.ErrorCode(err))

	_, err = f.engine.CancelExpired("no-such-auction")
	check.Equal(t, "UnknownAuction", core.ErrorCode(err))
}

func TestClaimProceeds(t *testing.T) {
	f := newFixture(t)
	auction := f.createAuction(t, 1000)
	f.fund(buyer, 1000)

	_, err := f.engine.ClaimProceeds(auction.ID, seller)
	check.Equal(t, "NoProceeds", core.ErrorCode(err))

	_, _, err = f.submitBid(t, auction.ID, buyer, buyerProxy, 1000)
	assert.Nil(t, err)

	_, err = f.engine.ClaimProceeds(auction.ID, "stranger")
	check.Equal(t, "NotAuthorized", core.ErrorCode(err))

	amount, err := f.engine.ClaimProceeds(auction.ID, seller)
	assert.Nil(t, err)
	check.Equal(t, "1000", amount.String())
	check.Equal(t, "1000", f.tokens.BalanceOf(token, seller).String())

	escrow, err := f.engine.EscrowBalance(token)
	check.Nil(t, err)
	check.Equal(t, "0", escrow.String())

	_, err = f.engine.ClaimProceeds(auction.ID, seller)
	check.Equal(t, "ProceedsAlreadyClaimed", core.ErrorCode(err))

	stored, err := f.engine.GetAuctionInfo(auction.ID)
	check.Nil(t, err)
	check.True(t, stored.ProceedsClaimed)
}

func TestEscrowConservation(t *testing.T) {
	f := newFixture(t)
	auction := f.createAuction(t, 1000)
	f.fund(buyer, 600)
	f.fund(buyer2, 1300)

	checkConserved := func() {
		t.Helper()
		escrow, err := f.engine.EscrowBalance(token)
		assert.Nil(t, err)
		check.Equal(t, f.tokens.BalanceOf(token, engineAcct).String(), escrow.String())
	}

	checkConserved()

	pending, _, err := f.submitBid(t, auction.ID, buyer, buyerProxy, 600)
	assert.Nil(t, err)
	checkConserved()

	_, _, err = f.submitBid(t, auction.ID, buyer2, buyer2Proxy, 1300)
	assert.Nil(t, err)
	checkConserved()

	_, err = f.engine.RevokeBid(pending.ID, buyer)
	assert.Nil(t, err)
	checkConserved()

	_, err = f.engine.ClaimProceeds(auction.ID, seller)
	assert.Nil(t, err)
	checkConserved()

	escrow, err := f.engine.EscrowBalance(token)
	assert.Nil(t, err)
	check.Equal(t, "0", escrow.String())
}

func TestBidsForAuction_SubmissionOrder(t *testing.T) {
	f := newFixture(t)
	auction := f.createAuction(t, 10000)
	f.fund(buyer, 100)
	f.fund(buyer2, 200)

	first, _, err := f.submitBid(t, auction.ID, buyer, buyerProxy, 100)
	assert.Nil(t, err)

	f.blocks.Advance(1)
	second, _, err := f.submitBid(t, auction.ID, buyer2, buyer2Proxy, 200)
	assert.Nil(t, err)

	bids, err := f.engine.BidsForAuction(auction.ID)
	assert.Nil(t, err)
	assert.Equal(t, 2, len(bids))
	check.Equal(t, first.ID, bids[0].ID)
	check.Equal(t, second.ID, bids[1].ID)
}
