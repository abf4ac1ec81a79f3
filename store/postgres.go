// Package store provides the Postgres-backed record store for deployments
// that need the auction and bid tables to survive process restarts.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/cdpmarket/auctionengine/core"
	"github.com/cdpmarket/auctionengine/engine"
)

const (
	queryTimeout   = 5 * time.Second
	migrateTimeout = 30 * time.Second
)

// Postgres implements engine.Store with PostgreSQL persistence. Each Commit
// runs in one transaction so readers never observe a half-applied operation.
type Postgres struct {
	db *sql.DB
}

// NewPostgres opens the database, verifies connectivity, and runs migrations.
func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	s := &Postgres{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close releases the connection pool.
func (s *Postgres) Close() error {
	return s.db.Close()
}

func (s *Postgres) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS auctions (
		id VARCHAR(64) PRIMARY KEY,
		cdp VARCHAR(128) NOT NULL,
		seller VARCHAR(128) NOT NULL,
		seller_proxy VARCHAR(128) NOT NULL,
		token VARCHAR(128) NOT NULL,
		ask NUMERIC NOT NULL,
		expiry_block BIGINT NOT NULL,
		status SMALLINT NOT NULL,
		winning_bid VARCHAR(64) NOT NULL DEFAULT '',
		proceeds_claimed BOOLEAN NOT NULL DEFAULT FALSE,
		created_block BIGINT NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS bids (
		id VARCHAR(64) PRIMARY KEY,
		auction_id VARCHAR(64) NOT NULL,
		buyer VARCHAR(128) NOT NULL,
		buyer_proxy VARCHAR(128) NOT NULL,
		token VARCHAR(128) NOT NULL,
		value NUMERIC NOT NULL,
		expiry_block BIGINT NOT NULL,
		revoked BOOLEAN NOT NULL DEFAULT FALSE,
		accepted BOOLEAN NOT NULL DEFAULT FALSE,
		submitted_block BIGINT NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS escrow (
		token VARCHAR(128) NOT NULL,
		bid_id VARCHAR(64) NOT NULL,
		value NUMERIC NOT NULL,
		PRIMARY KEY (token, bid_id)
	);

	CREATE INDEX IF NOT EXISTS idx_bids_auction ON bids(auction_id);
	CREATE INDEX IF NOT EXISTS idx_escrow_token ON escrow(token);
	`

	ctx, cancel := context.WithTimeout(context.Background(), migrateTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *Postgres) GetAuction(id core.AuctionID) (core.Auction, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	row := s.db.QueryRowContext(ctx, `
	SELECT id, cdp, seller, seller_proxy, token, ask, expiry_block,
	       status, winning_bid, proceeds_claimed, created_block
	FROM auctions WHERE id = $1`, string(id))

	auction, err := scanAuction(row)
	if err == sql.ErrNoRows {
		return core.Auction{}, false, nil
	}
	if err != nil {
		return core.Auction{}, false, fmt.Errorf("reading auction %s: %w", id, err)
	}
	return auction, true, nil
}

func (s *Postgres) GetBid(id core.BidID) (core.Bid, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	row := s.db.QueryRowContext(ctx, `
	SELECT id, auction_id, buyer, buyer_proxy, token, value, expiry_block,
	       revoked, accepted, submitted_block
	FROM bids WHERE id = $1`, string(id))

	bid, err := scanBid(row)
	if err == sql.ErrNoRows {
		return core.Bid{}, false, nil
	}
	if err != nil {
		return core.Bid{}, false, fmt.Errorf("reading bid %s: %w", id, err)
	}
	return bid, true, nil
}

func (s *Postgres) BidsForAuction(id core.AuctionID) ([]core.Bid, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
	SELECT id, auction_id, buyer, buyer_proxy, token, value, expiry_block,
	       revoked, accepted, submitted_block
	FROM bids WHERE auction_id = $1 ORDER BY submitted_block, id`, string(id))
	if err != nil {
		return nil, fmt.Errorf("listing bids for auction %s: %w", id, err)
	}
	defer rows.Close()

	var bids []core.Bid
	for rows.Next() {
		bid, err := scanBid(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning bid row: %w", err)
		}
		bids = append(bids, bid)
	}
	return bids, rows.Err()
}

func (s *Postgres) EscrowBalance(token core.Address) (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	var raw string
	err := s.db.QueryRowContext(ctx, `
	SELECT COALESCE(SUM(value), 0) FROM escrow WHERE token = $1`, string(token)).Scan(&raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("summing escrow for token %s: %w", token, err)
	}

	balance, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing escrow balance %q: %w", raw, err)
	}
	return balance, nil
}

func (s *Postgres) Commit(mut engine.Mutation) error {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after a successful commit

	for _, auction := range mut.Auctions {
		_, err := tx.ExecContext(ctx, `
		INSERT INTO auctions
			(id, cdp, seller, seller_proxy, token, ask, expiry_block,
			 status, winning_bid, proceeds_claimed, created_block, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			winning_bid = EXCLUDED.winning_bid,
			proceeds_claimed = EXCLUDED.proceeds_claimed,
			updated_at = NOW()`,
			string(auction.ID), string(auction.Position), string(auction.Seller),
			string(auction.SellerProxy), string(auction.AcceptedToken),
			auction.Ask.String(), int64(auction.ExpiryBlock), int16(auction.Status),
			string(auction.WinningBid), auction.ProceedsClaimed, int64(auction.CreatedBlock))
		if err != nil {
			return fmt.Errorf("upserting auction %s: %w", auction.ID, err)
		}
	}

	for _, bid := range mut.Bids {
		_, err := tx.ExecContext(ctx, `
		INSERT INTO bids
			(id, auction_id, buyer, buyer_proxy, token, value, expiry_block,
			 revoked, accepted, submitted_block, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (id) DO UPDATE SET
			revoked = EXCLUDED.revoked,
			accepted = EXCLUDED.accepted,
			updated_at = NOW()`,
			string(bid.ID), string(bid.AuctionID), string(bid.Buyer),
			string(bid.BuyerProxy), string(bid.Token), bid.Value.String(),
			int64(bid.ExpiryBlock), bid.Revoked, bid.Accepted, int64(bid.SubmittedBlock))
		if err != nil {
			return fmt.Errorf("upserting bid %s: %w", bid.ID, err)
		}
	}

	for _, entry := range mut.EscrowPut {
		_, err := tx.ExecContext(ctx, `
		INSERT INTO escrow (token, bid_id, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (token, bid_id) DO UPDATE SET value = EXCLUDED.value`,
			string(entry.Token), string(entry.Bid), entry.Value.String())
		if err != nil {
			return fmt.Errorf("upserting escrow for bid %s: %w", entry.Bid, err)
		}
	}

	for _, key := range mut.EscrowDelete {
		_, err := tx.ExecContext(ctx, `
		DELETE FROM escrow WHERE token = $1 AND bid_id = $2`,
			string(key.Token), string(key.Bid))
		if err != nil {
			return fmt.Errorf("deleting escrow for bid %s: %w", key.Bid, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAuction(row rowScanner) (core.Auction, error) {
	var auction core.Auction
	var id, position, seller, sellerProxy, token, ask, winningBid string
	var expiryBlock, createdBlock int64
	var status int16
	err := row.Scan(&id, &position, &seller, &sellerProxy, &token, &ask,
		&expiryBlock, &status, &winningBid, &auction.ProceedsClaimed, &createdBlock)
	if err != nil {
		return core.Auction{}, err
	}

	askDec, err := decimal.NewFromString(ask)
	if err != nil {
		return core.Auction{}, fmt.Errorf("parsing ask %q: %w", ask, err)
	}

	auction.ID = core.AuctionID(id)
	auction.Position = core.PositionID(position)
	auction.Seller = core.Address(seller)
	auction.SellerProxy = core.Address(sellerProxy)
	auction.AcceptedToken = core.Address(token)
	auction.Ask = askDec
	auction.ExpiryBlock = uint64(expiryBlock)
	auction.Status = core.AuctionStatus(status)
	auction.WinningBid = core.BidID(winningBid)
	auction.CreatedBlock = uint64(createdBlock)
	return auction, nil
}

func scanBid(row rowScanner) (core.Bid, error) {
	var bid core.Bid
	var id, auctionID, buyer, buyerProxy, token, value string
	var expiryBlock, submittedBlock int64
	err := row.Scan(&id, &auctionID, &buyer, &buyerProxy, &token, &value,
		&expiryBlock, &bid.Revoked, &bid.Accepted, &submittedBlock)
	if err != nil {
		return core.Bid{}, err
	}

	valueDec, err := decimal.NewFromString(value)
	if err != nil {
		return core.Bid{}, fmt.Errorf("parsing value %q: %w", value, err)
	}

	bid.ID = core.BidID(id)
	bid.AuctionID = core.AuctionID(auctionID)
	bid.Buyer = core.Address(buyer)
	bid.BuyerProxy = core.Address(buyerProxy)
	bid.Token = core.Address(token)
	bid.Value = valueDec
	bid.ExpiryBlock = uint64(expiryBlock)
	bid.SubmittedBlock = uint64(submittedBlock)
	return bid, nil
}
