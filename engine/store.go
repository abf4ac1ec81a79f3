package engine

import (
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/cdpmarket/auctionengine/core"
)

// EscrowEntry is one engine-held escrow balance, keyed (token, bid id).
type EscrowEntry struct {
	Token core.Address
	Bid   core.BidID
	Value decimal.Decimal
}

// EscrowKey addresses one escrow entry for release.
type EscrowKey struct {
	Token core.Address
	Bid   core.BidID
}

// Mutation is the record set of one engine operation. A Store applies it
// atomically: either every record lands or none does.
type Mutation struct {
	Auctions     []core.Auction
	Bids         []core.Bid
	EscrowPut    []EscrowEntry
	EscrowDelete []EscrowKey
}

// Store is the authoritative record store: two append-mostly tables keyed by
// opaque ids plus the escrow-balance ledger. Reads must reflect the latest
// committed state with no staleness window.
type Store interface {
	GetAuction(id core.AuctionID) (core.Auction, bool, error)
	GetBid(id core.BidID) (core.Bid, bool, error)
	BidsForAuction(id core.AuctionID) ([]core.Bid, error)
	EscrowBalance(token core.Address) (decimal.Decimal, error)
	Commit(mut Mutation) error
}

// MemoryStore is the in-process Store. A single RWMutex guarantees readers
// never observe a partially applied mutation.
type MemoryStore struct {
	mu       sync.RWMutex
	auctions map[core.AuctionID]core.Auction
	bids     map[core.BidID]core.Bid
	byAuc    map[core.AuctionID][]core.BidID
	escrow   map[core.Address]map[core.BidID]decimal.Decimal
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		auctions: make(map[core.AuctionID]core.Auction),
		bids:     make(map[core.BidID]core.Bid),
		byAuc:    make(map[core.AuctionID][]core.BidID),
		escrow:   make(map[core.Address]map[core.BidID]decimal.Decimal),
	}
}

func (s *MemoryStore) GetAuction(id core.AuctionID) (core.Auction, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	auction, ok := s.auctions[id]
	return auction, ok, nil
}

func (s *MemoryStore) GetBid(id core.BidID) (core.Bid, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bid, ok := s.bids[id]
	return bid, ok, nil
}

func (s *MemoryStore) BidsForAuction(id core.AuctionID) ([]core.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byAuc[id]
	bids := make([]core.Bid, 0, len(ids))
	for _, bidID := range ids {
		bids = append(bids, s.bids[bidID])
	}
	sort.Slice(bids, func(i, j int) bool { return bids[i].SubmittedBlock < bids[j].SubmittedBlock })
	return bids, nil
}

func (s *MemoryStore) EscrowBalance(token core.Address) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := decimal.Zero
	for _, value := range s.escrow[token] {
		total = total.Add(value)
	}
	return total, nil
}

func (s *MemoryStore) Commit(mut Mutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, auction := range mut.Auctions {
		s.auctions[auction.ID] = auction
	}
	for _, bid := range mut.Bids {
		if _, known := s.bids[bid.ID]; !known {
			s.byAuc[bid.AuctionID] = append(s.byAuc[bid.AuctionID], bid.ID)
		}
		s.bids[bid.ID] = bid
	}
	for _, entry := range mut.EscrowPut {
		if s.escrow[entry.Token] == nil {
			s.escrow[entry.Token] = make(map[core.BidID]decimal.Decimal)
		}
		s.escrow[entry.Token][entry.Bid] = entry.Value
	}
	for _, key := range mut.EscrowDelete {
		delete(s.escrow[key.Token], key.Bid)
	}
	return nil
}
