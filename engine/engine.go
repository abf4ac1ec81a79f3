// Package engine implements the auction/escrow state machine: the auction
// registry, the bid ledger, and the settlement, revocation, cancellation and
// payout transitions between them. Every mutating operation is applied as one
// indivisible unit against a single authoritative store.
package engine

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cdpmarket/auctionengine/core"
	"github.com/cdpmarket/auctionengine/ledger"
)

// DefaultAccount is the engine's identity on the external ledgers when none
// is configured.
const DefaultAccount core.Address = "auction-engine"

// Config wires the engine's collaborators.
type Config struct {
	Store   Store
	Custody ledger.CustodyLedger
	Tokens  ledger.TokenLedger
	Heights ledger.HeightSource
	Events  EventSink

	// Account is the engine's own identity: the custodian of listed
	// positions and the holder of escrowed tokens.
	Account core.Address
}

// Engine owns the auction registry and the bid ledger. A single mutex
// serializes all mutating operations so escrow accounting and custody
// transfer are never observed half-applied. Reads go straight to the store.
type Engine struct {
	mu      sync.Mutex
	store   Store
	custody ledger.CustodyLedger
	tokens  ledger.TokenLedger
	heights ledger.HeightSource
	events  EventSink
	account core.Address
}

func New(cfg Config) *Engine {
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore()
	}
	events := cfg.Events
	if events == nil {
		events = NopSink{}
	}
	account := cfg.Account
	if account == "" {
		account = DefaultAccount
	}
	return &Engine{
		store:   store,
		custody: cfg.Custody,
		tokens:  cfg.Tokens,
		heights: cfg.Heights,
		events:  events,
		account: account,
	}
}

// Account returns the engine's identity on the external ledgers.
func (e *Engine) Account() core.Address {
	return e.account
}

// CreateAuctionParams are the listing terms for CreateAuction.
type CreateAuctionParams struct {
	Position    core.PositionID
	Seller      core.Address
	SellerProxy core.Address
	Token       core.Address
	Ask         decimal.Decimal
	ExpiryBlock uint64
	Salt        uint64
}

// CreateAuction opens a listing against a collateralized position. Custody of
// the position moves from the seller's proxy to the engine atomically with
// record creation: a failed custody transfer leaves no auction record.
func (e *Engine) CreateAuction(p CreateAuctionParams) (core.Auction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	height := e.heights.CurrentHeight()

	if err := core.ValidateAuctionTerms(p.Ask, p.ExpiryBlock, height); err != nil {
		return core.Auction{}, err
	}

	id := core.ComputeAuctionID(p.Position, p.Seller, p.SellerProxy, p.Token, p.Ask, p.ExpiryBlock, p.Salt)
	if _, exists, err := e.store.GetAuction(id); err != nil {
		return core.Auction{}, fmt.Errorf("auction lookup: %w", err)
	} else if exists {
		return core.Auction{}, fmt.Errorf("auction %s already exists: %w", id, core.ErrInvalidTerms)
	}

	if err := e.custody.TransferCustody(p.Position, p.SellerProxy, e.account); err != nil {
		return core.Auction{}, fmt.Errorf("taking custody of %s: %v: %w", p.Position, err, core.ErrCustodyTransferFailed)
	}

	auction := core.Auction{
		ID:            id,
		Position:      p.Position,
		Seller:        p.Seller,
		SellerProxy:   p.SellerProxy,
		AcceptedToken: p.Token,
		Ask:           p.Ask,
		ExpiryBlock:   p.ExpiryBlock,
		Status:        core.StatusOpen,
		CreatedBlock:  height,
	}

	if err := e.store.Commit(Mutation{Auctions: []core.Auction{auction}}); err != nil {
		// Hand the position back so custody and listing never disagree.
		if rbErr := e.custody.TransferCustody(p.Position, e.account, p.SellerProxy); rbErr != nil {
			log.Printf("ERROR: Custody rollback failed for position %s: %v", p.Position, rbErr)
		}
		return core.Auction{}, fmt.Errorf("committing auction %s: %w", id, err)
	}

	log.Printf("INFO: Auction %s opened: position=%s seller=%s ask=%s expiry=%d",
		id, p.Position, p.Seller, p.Ask.String(), p.ExpiryBlock)

	e.publish(EventAuctionOpened, height, &auction, nil, nil)
	return auction, nil
}

// SubmitBidParams are the submission fields for SubmitBid. The caller is the
// beneficial owner funding the escrow; BuyerProxy receives the position if
// the bid wins.
type SubmitBidParams struct {
	AuctionID   core.AuctionID
	Buyer       core.Address
	BuyerProxy  core.Address
	Token       core.Address
	Value       decimal.Decimal
	ExpiryBlock uint64
	Salt        uint64
}

// SubmitBid escrows the bid value and records the bid. If the value meets or
// exceeds the auction's ask, settlement fires synchronously within the same
// call: the first qualifying bid wins, custody moves to the buyer's proxy,
// and the auction closes. Any failure aborts the whole operation with zero
// partial effect.
func (e *Engine) SubmitBid(p SubmitBidParams) (core.Bid, core.Auction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	height := e.heights.CurrentHeight()

	auction, ok, err := e.store.GetAuction(p.AuctionID)
	if err != nil {
		return core.Bid{}, core.Auction{}, fmt.Errorf("auction lookup: %w", err)
	}
	if !ok {
		return core.Bid{}, core.Auction{}, fmt.Errorf("auction %s: %w", p.AuctionID, core.ErrUnknownAuction)
	}

	if err := core.ValidateBidTerms(auction, p.Token, p.Value, p.ExpiryBlock, height); err != nil {
		return core.Bid{}, core.Auction{}, err
	}

	id := core.ComputeBidID(p.AuctionID, p.Buyer, p.BuyerProxy, p.Token, p.Value, p.ExpiryBlock, p.Salt)
	if _, exists, err := e.store.GetBid(id); err != nil {
		return core.Bid{}, core.Auction{}, fmt.Errorf("bid lookup: %w", err)
	} else if exists {
		return core.Bid{}, core.Auction{}, fmt.Errorf("bid %s already exists: %w", id, core.ErrInvalidValue)
	}

	// Pull escrow all-or-nothing. A partial transfer is a failure, never a
	// partial fill.
	if err := e.tokens.TransferFrom(p.Token, e.account, p.Buyer, e.account, p.Value); err != nil {
		return core.Bid{}, core.Auction{}, fmt.Errorf("escrowing %s from %s: %v: %w", p.Value.String(), p.Buyer, err, core.ErrEscrowTransferFailed)
	}

	qualifies := core.MeetsAsk(p.Value, auction.Ask)
	if qualifies {
		if err := e.custody.TransferCustody(auction.Position, e.account, p.BuyerProxy); err != nil {
			// Refund the escrow just pulled; the bid never existed.
			if rbErr := e.tokens.TransferFrom(p.Token, e.account, e.account, p.Buyer, p.Value); rbErr != nil {
				log.Printf("ERROR: Escrow rollback failed for buyer %s: %v", p.Buyer, rbErr)
			}
			return core.Bid{}, core.Auction{}, fmt.Errorf("settling position %s to %s: %v: %w", auction.Position, p.BuyerProxy, err, core.ErrCustodyTransferFailed)
		}
	}

	bid := core.Bid{
		ID:             id,
		AuctionID:      p.AuctionID,
		Buyer:          p.Buyer,
		BuyerProxy:     p.BuyerProxy,
		Token:          p.Token,
		Value:          p.Value,
		ExpiryBlock:    p.ExpiryBlock,
		Accepted:       qualifies,
		SubmittedBlock: height,
	}

	mut := Mutation{
		Bids:      []core.Bid{bid},
		EscrowPut: []EscrowEntry{{Token: p.Token, Bid: id, Value: p.Value}},
	}
	if qualifies {
		auction.Status = core.StatusSettled
		auction.WinningBid = id
		mut.Auctions = []core.Auction{auction}
	}

	if err := e.store.Commit(mut); err != nil {
		if qualifies {
			if rbErr := e.custody.TransferCustody(auction.Position, p.BuyerProxy, e.account); rbErr != nil {
				log.Printf("ERROR: Custody rollback failed for position %s: %v", auction.Position, rbErr)
			}
		}
		if rbErr := e.tokens.TransferFrom(p.Token, e.account, e.account, p.Buyer, p.Value); rbErr != nil {
			log.Printf("ERROR: Escrow rollback failed for buyer %s: %v", p.Buyer, rbErr)
		}
		return core.Bid{}, core.Auction{}, fmt.Errorf("committing bid %s: %w", id, err)
	}

	log.Printf("INFO: Bid %s submitted on auction %s: buyer=%s value=%s qualifies=%t",
		id, p.AuctionID, p.Buyer, p.Value.String(), qualifies)

	e.publish(EventBidSubmitted, height, nil, &bid, nil)
	if qualifies {
		log.Printf("INFO: Auction %s settled by bid %s: position=%s -> %s",
			auction.ID, id, auction.Position, p.BuyerProxy)
		e.publish(EventAuctionSettled, height, &auction, &bid, nil)
	}
	return bid, auction, nil
}

// RevokeBid withdraws an outstanding bid and refunds the full escrowed value
// to the buyer. Only the bid's beneficial owner may revoke. Revocation of an
// accepted bid fails permanently: a winning bid can never be unwound.
func (e *Engine) RevokeBid(bidID core.BidID, caller core.Address) (core.Bid, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	height := e.heights.CurrentHeight()

	bid, ok, err := e.store.GetBid(bidID)
	if err != nil {
		return core.Bid{}, fmt.Errorf("bid lookup: %w", err)
	}
	if !ok {
		return core.Bid{}, fmt.Errorf("bid %s: %w", bidID, core.ErrUnknownBid)
	}
	if caller != bid.Buyer {
		return core.Bid{}, fmt.Errorf("caller %s is not buyer of bid %s: %w", caller, bidID, core.ErrNotAuthorized)
	}
	if bid.Accepted {
		return core.Bid{}, fmt.Errorf("bid %s: %w", bidID, core.ErrBidAlreadyAccepted)
	}
	if bid.Revoked {
		return core.Bid{}, fmt.Errorf("bid %s: %w", bidID, core.ErrAlreadyRevoked)
	}

	bid.Revoked = true
	mut := Mutation{
		Bids:         []core.Bid{bid},
		EscrowDelete: []EscrowKey{{Token: bid.Token, Bid: bid.ID}},
	}
	if err := e.store.Commit(mut); err != nil {
		return core.Bid{}, fmt.Errorf("committing revocation of bid %s: %w", bidID, err)
	}

	// Refund after the record commit; on failure the commit is reverted and
	// no funds have moved.
	if err := e.tokens.TransferFrom(bid.Token, e.account, e.account, bid.Buyer, bid.Value); err != nil {
		bid.Revoked = false
		revert := Mutation{
			Bids:      []core.Bid{bid},
			EscrowPut: []EscrowEntry{{Token: bid.Token, Bid: bid.ID, Value: bid.Value}},
		}
		if rbErr := e.store.Commit(revert); rbErr != nil {
			log.Printf("ERROR: Revocation revert failed for bid %s: %v", bidID, rbErr)
		}
		return core.Bid{}, fmt.Errorf("refunding %s to %s: %v: %w", bid.Value.String(), bid.Buyer, err, core.ErrEscrowTransferFailed)
	}

	log.Printf("INFO: Bid %s revoked: refunded %s %s to %s", bidID, bid.Value.String(), bid.Token, bid.Buyer)

	e.publish(EventBidRevoked, height, nil, &bid, nil)
	return bid, nil
}

// CancelExpired cancels an open auction whose expiry block has passed and
// returns position custody to the seller's proxy. Outstanding bids stay
// revocable by their owners; they are not auto-refunded.
func (e *Engine) CancelExpired(auctionID core.AuctionID) (core.Auction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	height := e.heights.CurrentHeight()

	auction, ok, err := e.store.GetAuction(auctionID)
	if err != nil {
		return core.Auction{}, fmt.Errorf("auction lookup: %w", err)
	}
	if !ok {
		return core.Auction{}, fmt.Errorf("auction %s: %w", auctionID, core.ErrUnknownAuction)
	}
	if auction.Status != core.StatusOpen {
		return core.Auction{}, fmt.Errorf("auction %s is %s: %w", auctionID, auction.Status, core.ErrAuctionNotOpen)
	}
	if height < auction.ExpiryBlock {
		return core.Auction{}, fmt.Errorf("auction %s expires at block %d (height %d): %w", auctionID, auction.ExpiryBlock, height, core.ErrNotExpired)
	}

	if err := e.custody.TransferCustody(auction.Position, e.account, auction.SellerProxy); err != nil {
		return core.Auction{}, fmt.Errorf("returning position %s to %s: %v: %w", auction.Position, auction.SellerProxy, err, core.ErrCustodyTransferFailed)
	}

	auction.Status = core.StatusCancelled
	if err := e.store.Commit(Mutation{Auctions: []core.Auction{auction}}); err != nil {
		if rbErr := e.custody.TransferCustody(auction.Position, auction.SellerProxy, e.account); rbErr != nil {
			log.Printf("ERROR: Custody rollback failed for position %s: %v", auction.Position, rbErr)
		}
		return core.Auction{}, fmt.Errorf("committing cancellation of auction %s: %w", auctionID, err)
	}

	log.Printf("INFO: Auction %s cancelled: position=%s -> %s", auctionID, auction.Position, auction.SellerProxy)

	e.publish(EventAuctionCancelled, height, &auction, nil, nil)
	return auction, nil
}

// ClaimProceeds pays the winning bid's escrowed value out to the seller.
// Payout is a distinct operation, not bundled into settlement; it succeeds
// once per settled auction and only for the seller or their proxy.
func (e *Engine) ClaimProceeds(auctionID core.AuctionID, caller core.Address) (decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	height := e.heights.CurrentHeight()

	auction, ok, err := e.store.GetAuction(auctionID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("auction lookup: %w", err)
	}
	if !ok {
		return decimal.Zero, fmt.Errorf("auction %s: %w", auctionID, core.ErrUnknownAuction)
	}
	if caller != auction.Seller && caller != auction.SellerProxy {
		return decimal.Zero, fmt.Errorf("caller %s is not seller of auction %s: %w", caller, auctionID, core.ErrNotAuthorized)
	}
	if auction.Status != core.StatusSettled {
		return decimal.Zero, fmt.Errorf("auction %s is %s: %w", auctionID, auction.Status, core.ErrNoProceeds)
	}
	if auction.ProceedsClaimed {
		return decimal.Zero, fmt.Errorf("auction %s: %w", auctionID, core.ErrProceedsAlreadyClaimed)
	}

	winning, ok, err := e.store.GetBid(auction.WinningBid)
	if err != nil {
		return decimal.Zero, fmt.Errorf("winning bid lookup: %w", err)
	}
	if !ok {
		return decimal.Zero, fmt.Errorf("winning bid %s: %w", auction.WinningBid, core.ErrUnknownBid)
	}

	auction.ProceedsClaimed = true
	mut := Mutation{
		Auctions:     []core.Auction{auction},
		EscrowDelete: []EscrowKey{{Token: winning.Token, Bid: winning.ID}},
	}
	if err := e.store.Commit(mut); err != nil {
		return decimal.Zero, fmt.Errorf("committing proceeds claim for auction %s: %w", auctionID, err)
	}

	if err := e.tokens.TransferFrom(winning.Token, e.account, e.account, auction.Seller, winning.Value); err != nil {
		auction.ProceedsClaimed = false
		revert := Mutation{
			Auctions:  []core.Auction{auction},
			EscrowPut: []EscrowEntry{{Token: winning.Token, Bid: winning.ID, Value: winning.Value}},
		}
		if rbErr := e.store.Commit(revert); rbErr != nil {
			log.Printf("ERROR: Proceeds revert failed for auction %s: %v", auctionID, rbErr)
		}
		return decimal.Zero, fmt.Errorf("paying %s to %s: %v: %w", winning.Value.String(), auction.Seller, err, core.ErrEscrowTransferFailed)
	}

	log.Printf("INFO: Proceeds of auction %s claimed: %s %s -> %s",
		auctionID, winning.Value.String(), winning.Token, auction.Seller)

	amount := winning.Value
	e.publish(EventProceedsClaimed, height, &auction, &winning, &amount)
	return amount, nil
}

// GetAuctionInfo returns the latest committed auction record.
func (e *Engine) GetAuctionInfo(id core.AuctionID) (core.Auction, error) {
	auction, ok, err := e.store.GetAuction(id)
	if err != nil {
		return core.Auction{}, fmt.Errorf("auction lookup: %w", err)
	}
	if !ok {
		return core.Auction{}, fmt.Errorf("auction %s: %w", id, core.ErrUnknownAuction)
	}
	return auction, nil
}

// GetBidInfo returns the latest committed bid record.
func (e *Engine) GetBidInfo(id core.BidID) (core.Bid, error) {
	bid, ok, err := e.store.GetBid(id)
	if err != nil {
		return core.Bid{}, fmt.Errorf("bid lookup: %w", err)
	}
	if !ok {
		return core.Bid{}, fmt.Errorf("bid %s: %w", id, core.ErrUnknownBid)
	}
	return bid, nil
}

// BidsForAuction returns every bid submitted against the auction in
// submission order.
func (e *Engine) BidsForAuction(id core.AuctionID) ([]core.Bid, error) {
	return e.store.BidsForAuction(id)
}

// EscrowBalance returns the engine-held balance for a token: the sum of
// escrow entries over bids neither revoked nor paid out.
func (e *Engine) EscrowBalance(token core.Address) (decimal.Decimal, error) {
	return e.store.EscrowBalance(token)
}

func (e *Engine) publish(t EventType, height uint64, auction *core.Auction, bid *core.Bid, amount *decimal.Decimal) {
	e.events.Publish(Event{
		ID:        uuid.NewString(),
		Type:      t,
		Height:    height,
		Timestamp: time.Now().UTC(),
		Auction:   auction,
		Bid:       bid,
		Amount:    amount,
	})
}
